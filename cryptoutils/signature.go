package cryptoutils

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"errors"
	"fmt"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

const (
	// FieldSize is the byte width of r and s for 256-bit curves.
	FieldSize = 32

	// RawSignatureSize is the size of a raw r||s signature.
	RawSignatureSize = 2 * FieldSize
)

// ErrMalformedSignature is returned when a signature cannot be parsed or its
// components do not fit the fixed-width raw form.
var ErrMalformedSignature = errors.New("malformed signature")

// DERToRaw converts a DER ECDSA-Sig-Value into the 64-byte r||s encoding.
func DERToRaw(der []byte) ([]byte, error) {
	return DERToRawWithFieldSize(der, FieldSize)
}

// DERToRawWithFieldSize converts a DER ECDSA-Sig-Value into r||s where each
// component is left zero padded to fieldSize bytes. No output is produced
// unless both components fit.
func DERToRawWithFieldSize(der []byte, fieldSize int) ([]byte, error) {
	if fieldSize <= 0 {
		return nil, fmt.Errorf("%w: invalid field size %d", ErrMalformedSignature, fieldSize)
	}

	r, s, err := parseDERSignature(der)
	if err != nil {
		return nil, err
	}

	if len(r) > fieldSize || len(s) > fieldSize {
		return nil, fmt.Errorf("%w: integer exceeds %d bytes (r=%d, s=%d)", ErrMalformedSignature, fieldSize, len(r), len(s))
	}

	raw := make([]byte, 2*fieldSize)
	copy(raw[fieldSize-len(r):fieldSize], r)
	copy(raw[2*fieldSize-len(s):], s)
	return raw, nil
}

// parseDERSignature returns the minimal big-endian magnitudes of r and s.
func parseDERSignature(der []byte) (r, s []byte, err error) {
	var inner cryptobyte.String
	input := cryptobyte.String(der)
	if !input.ReadASN1(&inner, cbasn1.SEQUENCE) || !input.Empty() {
		return nil, nil, fmt.Errorf("%w: not an ASN.1 SEQUENCE", ErrMalformedSignature)
	}

	var rInt, sInt cryptobyte.String
	if !inner.ReadASN1(&rInt, cbasn1.INTEGER) || !inner.ReadASN1(&sInt, cbasn1.INTEGER) || !inner.Empty() {
		return nil, nil, fmt.Errorf("%w: expected exactly two INTEGER components", ErrMalformedSignature)
	}

	if r, err = unsignedMagnitude(rInt); err != nil {
		return nil, nil, fmt.Errorf("%w: r: %v", ErrMalformedSignature, err)
	}
	if s, err = unsignedMagnitude(sInt); err != nil {
		return nil, nil, fmt.Errorf("%w: s: %v", ErrMalformedSignature, err)
	}
	return r, s, nil
}

// unsignedMagnitude strips DER sign padding from a positive INTEGER body.
func unsignedMagnitude(body []byte) ([]byte, error) {
	if len(body) == 0 {
		return nil, errors.New("empty integer")
	}
	if body[0]&0x80 != 0 {
		return nil, errors.New("negative integer")
	}
	magnitude := bytes.TrimLeft(body, "\x00")
	if len(magnitude) == 0 {
		return nil, errors.New("zero integer")
	}
	return magnitude, nil
}

// RawToDER converts an r||s signature back into a DER ECDSA-Sig-Value.
func RawToDER(raw []byte) ([]byte, error) {
	if len(raw) == 0 || len(raw)%2 != 0 {
		return nil, fmt.Errorf("%w: raw signature length %d is not an even number of bytes", ErrMalformedSignature, len(raw))
	}

	half := len(raw) / 2
	r := new(big.Int).SetBytes(raw[:half])
	s := new(big.Int).SetBytes(raw[half:])
	if r.Sign() == 0 || s.Sign() == 0 {
		return nil, fmt.Errorf("%w: zero component", ErrMalformedSignature)
	}

	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1BigInt(r)
		b.AddASN1BigInt(s)
	})
	return b.Bytes()
}

// NormalizeLowS returns a copy of raw where s is replaced by n-s when s is in
// the upper half of the curve order. Signatures already in low-S form are
// returned unchanged.
func NormalizeLowS(curve Curve, raw []byte) ([]byte, error) {
	if len(raw) != RawSignatureSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedSignature, RawSignatureSize, len(raw))
	}

	out := make([]byte, RawSignatureSize)
	copy(out, raw)

	switch curve {
	case CurveSecp256k1:
		var s secp256k1.ModNScalar
		if overflow := s.SetByteSlice(raw[FieldSize:]); overflow {
			return nil, fmt.Errorf("%w: s is not below the curve order", ErrMalformedSignature)
		}
		if s.IsOverHalfOrder() {
			s.Negate()
			sBytes := s.Bytes()
			copy(out[FieldSize:], sBytes[:])
		}
	case CurveP256:
		n := elliptic.P256().Params().N
		s := new(big.Int).SetBytes(raw[FieldSize:])
		if s.Cmp(n) >= 0 {
			return nil, fmt.Errorf("%w: s is not below the curve order", ErrMalformedSignature)
		}
		if s.Cmp(new(big.Int).Rsh(n, 1)) > 0 {
			s.Sub(n, s)
			s.FillBytes(out[FieldSize:])
		}
	default:
		return nil, fmt.Errorf("%w: unsupported curve %q", ErrMalformedSignature, curve)
	}

	return out, nil
}

// VerifyRaw checks a raw r||s signature over digest against pub.
func VerifyRaw(pub *ECPublicKey, digest, raw []byte) bool {
	if pub == nil || len(raw) != RawSignatureSize {
		return false
	}

	switch pub.Curve {
	case CurveSecp256k1:
		key, err := secp256k1.ParsePubKey(pub.Point)
		if err != nil {
			return false
		}
		var r, s secp256k1.ModNScalar
		if r.SetByteSlice(raw[:FieldSize]) || s.SetByteSlice(raw[FieldSize:]) {
			return false
		}
		return secpecdsa.NewSignature(&r, &s).Verify(digest, key)
	case CurveP256:
		key, err := pub.ToECDSA()
		if err != nil {
			return false
		}
		r := new(big.Int).SetBytes(raw[:FieldSize])
		s := new(big.Int).SetBytes(raw[FieldSize:])
		return ecdsa.Verify(key, digest, r, s)
	default:
		return false
	}
}

package cryptoutils

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// ErrEncoding is returned when a public key cannot be parsed or re-encoded.
var ErrEncoding = errors.New("public key encoding error")

// Curve names an elliptic curve supported by the ledger protocol.
type Curve string

const (
	CurveSecp256k1 Curve = "secp256k1"
	CurveP256      Curve = "p256"
)

var (
	oidPublicKeyECDSA      = asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}
	oidNamedCurveP256      = asn1.ObjectIdentifier{1, 2, 840, 10045, 3, 1, 7}
	oidNamedCurveSecp256k1 = asn1.ObjectIdentifier{1, 3, 132, 0, 10}
)

// ParseCurve parses a curve name as used in configuration files.
func ParseCurve(name string) (Curve, error) {
	switch name {
	case "secp256k1", "k256", "ECC_SECG_P256K1":
		return CurveSecp256k1, nil
	case "p256", "P-256", "prime256v1", "secp256r1", "ECC_NIST_P256":
		return CurveP256, nil
	default:
		return "", fmt.Errorf("unsupported curve: %s", name)
	}
}

func (c Curve) oid() (asn1.ObjectIdentifier, error) {
	switch c {
	case CurveSecp256k1:
		return oidNamedCurveSecp256k1, nil
	case CurveP256:
		return oidNamedCurveP256, nil
	default:
		return nil, fmt.Errorf("%w: unsupported curve %q", ErrEncoding, c)
	}
}

// ECPublicKey is an EC public key with its point held in uncompressed SEC1
// form (0x04 || X || Y).
type ECPublicKey struct {
	Curve Curve
	Point []byte
}

// ParseECPublicKey parses a SubjectPublicKeyInfo or a bare SEC1 point.
// A bare point carries no curve information, so it is tried against
// secp256k1 first and P-256 second.
func ParseECPublicKey(data []byte) (*ECPublicKey, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty public key", ErrEncoding)
	}

	// SPKI starts with a SEQUENCE tag, SEC1 points with 0x02, 0x03 or 0x04.
	if data[0] == 0x30 {
		return parseSPKI(data)
	}

	if key, err := NewECPublicKey(CurveSecp256k1, data); err == nil {
		return key, nil
	}
	if key, err := NewECPublicKey(CurveP256, data); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("%w: not a point on a supported curve", ErrEncoding)
}

// NewECPublicKey validates a SEC1 point on curve and normalizes it to the
// uncompressed form.
func NewECPublicKey(curve Curve, point []byte) (*ECPublicKey, error) {
	switch curve {
	case CurveSecp256k1:
		key, err := secp256k1.ParsePubKey(point)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
		}
		return &ECPublicKey{Curve: curve, Point: key.SerializeUncompressed()}, nil
	case CurveP256:
		uncompressed, err := uncompressedP256(point)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
		}
		return &ECPublicKey{Curve: curve, Point: uncompressed}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported curve %q", ErrEncoding, curve)
	}
}

func uncompressedP256(point []byte) ([]byte, error) {
	switch {
	case len(point) == 1+2*FieldSize && point[0] == 0x04:
		// ecdh rejects points that are not on the curve
		if _, err := ecdh.P256().NewPublicKey(point); err != nil {
			return nil, err
		}
		out := make([]byte, len(point))
		copy(out, point)
		return out, nil
	case len(point) == 1+FieldSize && (point[0] == 0x02 || point[0] == 0x03):
		x, y := elliptic.UnmarshalCompressed(elliptic.P256(), point)
		if x == nil {
			return nil, errors.New("invalid compressed P-256 point")
		}
		out := make([]byte, 1+2*FieldSize)
		out[0] = 0x04
		x.FillBytes(out[1 : 1+FieldSize])
		y.FillBytes(out[1+FieldSize:])
		return out, nil
	default:
		return nil, fmt.Errorf("invalid P-256 point length %d", len(point))
	}
}

func parseSPKI(der []byte) (*ECPublicKey, error) {
	var (
		spki, algorithm  cryptobyte.String
		algOID, curveOID asn1.ObjectIdentifier
		subjectPublicKey asn1.BitString
	)

	input := cryptobyte.String(der)
	if !input.ReadASN1(&spki, cbasn1.SEQUENCE) || !input.Empty() ||
		!spki.ReadASN1(&algorithm, cbasn1.SEQUENCE) ||
		!spki.ReadASN1BitString(&subjectPublicKey) || !spki.Empty() {
		return nil, fmt.Errorf("%w: malformed SubjectPublicKeyInfo", ErrEncoding)
	}

	if !algorithm.ReadASN1ObjectIdentifier(&algOID) || !algOID.Equal(oidPublicKeyECDSA) {
		return nil, fmt.Errorf("%w: not an EC public key", ErrEncoding)
	}
	if !algorithm.ReadASN1ObjectIdentifier(&curveOID) {
		return nil, fmt.Errorf("%w: missing named curve", ErrEncoding)
	}

	var curve Curve
	switch {
	case curveOID.Equal(oidNamedCurveSecp256k1):
		curve = CurveSecp256k1
	case curveOID.Equal(oidNamedCurveP256):
		curve = CurveP256
	default:
		return nil, fmt.Errorf("%w: unsupported named curve %s", ErrEncoding, curveOID)
	}

	if subjectPublicKey.BitLength%8 != 0 {
		return nil, fmt.Errorf("%w: public key bit string is not byte aligned", ErrEncoding)
	}
	return NewECPublicKey(curve, subjectPublicKey.Bytes)
}

// MarshalSPKI encodes the key as a DER SubjectPublicKeyInfo with the
// uncompressed point and the named curve OID.
func (k *ECPublicKey) MarshalSPKI() ([]byte, error) {
	curveOID, err := k.Curve.oid()
	if err != nil {
		return nil, err
	}
	if len(k.Point) != 1+2*FieldSize || k.Point[0] != 0x04 {
		return nil, fmt.Errorf("%w: point is not uncompressed", ErrEncoding)
	}

	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(oidPublicKeyECDSA)
			b.AddASN1ObjectIdentifier(curveOID)
		})
		b.AddASN1BitString(k.Point)
	})

	der, err := b.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return der, nil
}

// ToECDSA returns the key as a crypto/ecdsa public key.
func (k *ECPublicKey) ToECDSA() (*ecdsa.PublicKey, error) {
	switch k.Curve {
	case CurveSecp256k1:
		key, err := secp256k1.ParsePubKey(k.Point)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
		}
		return key.ToECDSA(), nil
	case CurveP256:
		if len(k.Point) != 1+2*FieldSize {
			return nil, fmt.Errorf("%w: point is not uncompressed", ErrEncoding)
		}
		return &ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(k.Point[1 : 1+FieldSize]),
			Y:     new(big.Int).SetBytes(k.Point[1+FieldSize:]),
		}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported curve %q", ErrEncoding, k.Curve)
	}
}

// EncodeSPKI parses data in any form accepted by ParseECPublicKey and returns
// its canonical SubjectPublicKeyInfo encoding.
func EncodeSPKI(data []byte) ([]byte, error) {
	key, err := ParseECPublicKey(data)
	if err != nil {
		return nil, err
	}
	return key.MarshalSPKI()
}

// MarshalECDSAPublicKey encodes a crypto/ecdsa key on a supported curve as
// SubjectPublicKeyInfo.
func MarshalECDSAPublicKey(curve Curve, pub *ecdsa.PublicKey) ([]byte, error) {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil, fmt.Errorf("%w: nil public key", ErrEncoding)
	}
	point := make([]byte, 1+2*FieldSize)
	point[0] = 0x04
	pub.X.FillBytes(point[1 : 1+FieldSize])
	pub.Y.FillBytes(point[1+FieldSize:])

	key, err := NewECPublicKey(curve, point)
	if err != nil {
		return nil, err
	}
	return key.MarshalSPKI()
}

// Package principal implements the ledger's self-authenticating caller
// identifiers and their textual representation.
package principal

import (
	"bytes"
	"crypto/sha256"
	"encoding/base32"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"

	"github.com/ruteri/kms-identity/cryptoutils"
)

const (
	// MaxLength is the maximum length of a principal in bytes.
	MaxLength = 29

	selfAuthenticatingSuffix = 0x02
	anonymousSuffix          = 0x04
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// ErrInvalidPrincipal is returned when a textual principal cannot be decoded.
var ErrInvalidPrincipal = errors.New("invalid principal")

// Principal is an opaque caller identifier.
type Principal []byte

// Anonymous is the principal of unauthenticated callers.
var Anonymous = Principal{anonymousSuffix}

// ManagementCanister is the empty principal addressing the management canister.
var ManagementCanister = Principal{}

// SelfAuthenticating derives the principal of a DER-encoded public key:
// SHA-224 of the key followed by the self-authenticating suffix.
func SelfAuthenticating(derPublicKey []byte) Principal {
	hash := sha256.Sum224(derPublicKey)
	p := make(Principal, 0, len(hash)+1)
	p = append(p, hash[:]...)
	return append(p, selfAuthenticatingSuffix)
}

// IsSelfAuthenticating reports whether p was derived from a public key.
func (p Principal) IsSelfAuthenticating() bool {
	return len(p) == MaxLength && p[len(p)-1] == selfAuthenticatingSuffix
}

// IsAnonymous reports whether p is the anonymous principal.
func (p Principal) IsAnonymous() bool {
	return bytes.Equal(p, Anonymous)
}

// Equal reports whether p and other hold the same bytes.
func (p Principal) Equal(other Principal) bool {
	return bytes.Equal(p, other)
}

// Hex returns the raw bytes as a hex string.
func (p Principal) Hex() string {
	return hex.EncodeToString(p)
}

// String returns the textual form: lowercase unpadded base32 of the
// big-endian CRC32 checksum followed by the bytes, grouped by five
// characters separated by dashes.
func (p Principal) String() string {
	buf := make([]byte, 4+len(p))
	binary.BigEndian.PutUint32(buf, crc32.ChecksumIEEE(p))
	copy(buf[4:], p)

	text := strings.ToLower(encoding.EncodeToString(buf))
	var sb strings.Builder
	for i := 0; i < len(text); i += 5 {
		if i > 0 {
			sb.WriteByte('-')
		}
		end := i + 5
		if end > len(text) {
			end = len(text)
		}
		sb.WriteString(text[i:end])
	}
	return sb.String()
}

// FromText decodes and validates the textual form of a principal.
func FromText(text string) (Principal, error) {
	raw, err := encoding.DecodeString(strings.ToUpper(strings.ReplaceAll(text, "-", "")))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrincipal, err)
	}
	if len(raw) < 4 {
		return nil, fmt.Errorf("%w: too short", ErrInvalidPrincipal)
	}
	if len(raw)-4 > MaxLength {
		return nil, fmt.Errorf("%w: longer than %d bytes", ErrInvalidPrincipal, MaxLength)
	}

	p := Principal(raw[4:])
	if binary.BigEndian.Uint32(raw[:4]) != crc32.ChecksumIEEE(p) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrInvalidPrincipal)
	}

	// Reject non-canonical spellings (misplaced or missing dashes).
	if p.String() != strings.ToLower(text) {
		return nil, fmt.Errorf("%w: not in canonical form", ErrInvalidPrincipal)
	}
	return p, nil
}

// MarshalText implements encoding.TextMarshaler.
func (p Principal) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Principal) UnmarshalText(text []byte) error {
	parsed, err := FromText(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Encoding selects how the public key is prepared before deriving a
// self-authenticating principal. There is no default: the right choice
// depends on what the relying network expects for the key's curve.
type Encoding string

const (
	// EncodingRaw hashes the public key bytes exactly as the key service
	// returned them.
	EncodingRaw Encoding = "raw"

	// EncodingSPKI re-encodes the key as a DER SubjectPublicKeyInfo with an
	// uncompressed point before hashing.
	EncodingSPKI Encoding = "spki"
)

// ParseEncoding validates an encoding name from configuration.
func ParseEncoding(name string) (Encoding, error) {
	switch Encoding(name) {
	case EncodingRaw, EncodingSPKI:
		return Encoding(name), nil
	case "":
		return "", errors.New("principal encoding must be set explicitly (raw or spki)")
	default:
		return "", fmt.Errorf("unknown principal encoding %q (want raw or spki)", name)
	}
}

// EncodePublicKey returns the bytes a principal is derived from under enc.
// Failures wrap cryptoutils.ErrEncoding.
func EncodePublicKey(enc Encoding, publicKey []byte) ([]byte, error) {
	switch enc {
	case EncodingRaw:
		if len(publicKey) == 0 {
			return nil, fmt.Errorf("%w: empty public key", cryptoutils.ErrEncoding)
		}
		return publicKey, nil
	case EncodingSPKI:
		return cryptoutils.EncodeSPKI(publicKey)
	default:
		return nil, fmt.Errorf("%w: unknown principal encoding %q", cryptoutils.ErrEncoding, enc)
	}
}

// Derive computes the self-authenticating principal of publicKey under enc.
func Derive(enc Encoding, publicKey []byte) (Principal, error) {
	encoded, err := EncodePublicKey(enc, publicKey)
	if err != nil {
		return nil, err
	}
	return SelfAuthenticating(encoded), nil
}

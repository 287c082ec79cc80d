package identity

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/ruteri/kms-identity/cryptoutils"
	"github.com/ruteri/kms-identity/envelope"
	"github.com/ruteri/kms-identity/interfaces"
	"github.com/ruteri/kms-identity/principal"
)

// P256Identity signs with a local NIST P-256 key.
type P256Identity struct {
	key       *ecdsa.PrivateKey
	publicKey []byte
}

var _ interfaces.Identity = (*P256Identity)(nil)

// NewP256Identity wraps a P-256 private key.
func NewP256Identity(key *ecdsa.PrivateKey) (*P256Identity, error) {
	if key == nil || key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("%w: key is not a P-256 private key", interfaces.ErrInvalidConfig)
	}
	publicKey, err := cryptoutils.MarshalECDSAPublicKey(cryptoutils.CurveP256, &key.PublicKey)
	if err != nil {
		return nil, err
	}
	return &P256Identity{key: key, publicKey: publicKey}, nil
}

// P256IdentityFromPEM parses an "EC PRIVATE KEY" (SEC1) or "PRIVATE KEY"
// (PKCS#8) PEM block.
func P256IdentityFromPEM(data []byte) (*P256Identity, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", interfaces.ErrInvalidConfig)
	}

	var key *ecdsa.PrivateKey
	switch block.Type {
	case "EC PRIVATE KEY":
		k, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidConfig, err)
		}
		key = k
	case "PRIVATE KEY":
		k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidConfig, err)
		}
		ecKey, ok := k.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: PKCS#8 key is %T, not ECDSA", interfaces.ErrInvalidConfig, k)
		}
		key = ecKey
	default:
		return nil, fmt.Errorf("%w: unexpected PEM block %q", interfaces.ErrInvalidConfig, block.Type)
	}
	return NewP256Identity(key)
}

// GenerateP256Identity creates an identity with a fresh random P-256 key.
func GenerateP256Identity() (*P256Identity, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return NewP256Identity(key)
}

// Sender returns the self-authenticating principal of the key.
func (id *P256Identity) Sender() (principal.Principal, error) {
	return principal.SelfAuthenticating(id.publicKey), nil
}

// PublicKey returns the DER SubjectPublicKeyInfo of the key.
func (id *P256Identity) PublicKey() []byte {
	return append([]byte(nil), id.publicKey...)
}

// Sign signs the request id of content with ECDSA over SHA-256.
func (id *P256Identity) Sign(ctx context.Context, content *envelope.Content) (*envelope.Signature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if content == nil {
		return nil, fmt.Errorf("%w: nil request content", interfaces.ErrSigning)
	}

	digest := sha256.Sum256(content.RequestID().Signable())
	der, err := ecdsa.SignASN1(rand.Reader, id.key, digest[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrSigning, err)
	}

	raw, err := cryptoutils.DERToRaw(der)
	if err != nil {
		return nil, err
	}
	return &envelope.Signature{PublicKey: id.PublicKey(), Signature: raw}, nil
}

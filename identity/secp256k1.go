package identity

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/kms-identity/cryptoutils"
	"github.com/ruteri/kms-identity/envelope"
	"github.com/ruteri/kms-identity/interfaces"
	"github.com/ruteri/kms-identity/principal"
)

// Secp256k1Identity signs with a local secp256k1 key. Its public key is the
// SubjectPublicKeyInfo DER encoding of the uncompressed point.
type Secp256k1Identity struct {
	key       *ecdsa.PrivateKey
	publicKey []byte
}

var _ interfaces.Identity = (*Secp256k1Identity)(nil)

// NewSecp256k1Identity wraps key, which must be on secp256k1.
func NewSecp256k1Identity(key *ecdsa.PrivateKey) (*Secp256k1Identity, error) {
	if key == nil || key.Curve != ethcrypto.S256() {
		return nil, fmt.Errorf("%w: key is not a secp256k1 private key", interfaces.ErrInvalidConfig)
	}
	publicKey, err := cryptoutils.MarshalECDSAPublicKey(cryptoutils.CurveSecp256k1, &key.PublicKey)
	if err != nil {
		return nil, err
	}
	return &Secp256k1Identity{key: key, publicKey: publicKey}, nil
}

// Secp256k1IdentityFromHex parses a hex encoded 32-byte private key.
func Secp256k1IdentityFromHex(hexKey string) (*Secp256k1Identity, error) {
	key, err := ethcrypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidConfig, err)
	}
	return NewSecp256k1Identity(key)
}

// GenerateSecp256k1Identity creates an identity with a fresh random key.
func GenerateSecp256k1Identity() (*Secp256k1Identity, error) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return NewSecp256k1Identity(key)
}

// Sender returns the self-authenticating principal of the key.
func (id *Secp256k1Identity) Sender() (principal.Principal, error) {
	return principal.SelfAuthenticating(id.publicKey), nil
}

// PublicKey returns the DER SubjectPublicKeyInfo of the key.
func (id *Secp256k1Identity) PublicKey() []byte {
	return append([]byte(nil), id.publicKey...)
}

// Sign signs the request id of content with a low-S secp256k1 signature.
func (id *Secp256k1Identity) Sign(ctx context.Context, content *envelope.Content) (*envelope.Signature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if content == nil {
		return nil, fmt.Errorf("%w: nil request content", interfaces.ErrSigning)
	}

	digest := sha256.Sum256(content.RequestID().Signable())
	sig, err := ethcrypto.Sign(digest[:], id.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrSigning, err)
	}

	return &envelope.Signature{
		PublicKey: id.PublicKey(),
		// drop the recovery id
		Signature: sig[:cryptoutils.RawSignatureSize],
	}, nil
}

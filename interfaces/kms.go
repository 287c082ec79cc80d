package interfaces

import (
	"context"
	"fmt"
)

// SigningMode selects whether the key service hashes the message itself or
// signs a digest computed locally. It must match how the remote key was
// provisioned; it is never inferred at runtime.
type SigningMode string

const (
	// SigningModeDigest hashes the signable bytes locally and asks the
	// service to sign the digest.
	SigningModeDigest SigningMode = "digest"

	// SigningModeMessage sends the signable bytes and lets the service hash
	// them before signing.
	SigningModeMessage SigningMode = "message"
)

// ParseSigningMode validates a signing mode name from configuration.
func ParseSigningMode(name string) (SigningMode, error) {
	switch SigningMode(name) {
	case SigningModeDigest, SigningModeMessage:
		return SigningMode(name), nil
	case "":
		return "", fmt.Errorf("%w: signing mode must be set explicitly (digest or message)", ErrInvalidConfig)
	default:
		return "", fmt.Errorf("%w: unknown signing mode %q (want digest or message)", ErrInvalidConfig, name)
	}
}

// SigningAlgorithm names the signature scheme requested from the service.
type SigningAlgorithm string

const (
	// SigningAlgorithmECDSASHA256 is ECDSA over a SHA-256 digest. It is the
	// only scheme whose signatures fit the ledger's 64-byte raw format.
	SigningAlgorithmECDSASHA256 SigningAlgorithm = "ECDSA_SHA_256"
)

// SignRequest is a single signing call against a remote key.
type SignRequest struct {
	KeyID     string
	Algorithm SigningAlgorithm
	Mode      SigningMode

	// Message holds the digest in SigningModeDigest and the full message
	// in SigningModeMessage.
	Message []byte
}

// KeyService is a remote key-management service holding private keys it
// never exposes. Implementations must be safe for concurrent use and must
// honour ctx cancellation. Errors carry the service's diagnostic text.
type KeyService interface {
	// GetPublicKey returns the public key of keyID as reported by the
	// service.
	GetPublicKey(ctx context.Context, keyID string) ([]byte, error)

	// Sign returns a DER-encoded ECDSA-Sig-Value.
	Sign(ctx context.Context, req SignRequest) ([]byte, error)
}

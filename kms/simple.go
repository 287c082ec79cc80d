package kms

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/kms-identity/cryptoutils"
	"github.com/ruteri/kms-identity/interfaces"
)

// SimpleKeyService is an in-process key service that derives one key per
// key id deterministically from a master key. It behaves like a remote
// service (DER signatures, digest length checks, disabled keys) and is meant
// for development and tests.
type SimpleKeyService struct {
	masterKey []byte
	curve     cryptoutils.Curve

	mu       sync.RWMutex
	disabled map[string]bool
}

var _ interfaces.KeyService = (*SimpleKeyService)(nil)

// NewSimpleKeyService creates a new instance with the provided master key.
// The master key must be at least 32 bytes long.
func NewSimpleKeyService(masterKey []byte, curve cryptoutils.Curve) (*SimpleKeyService, error) {
	if len(masterKey) < 32 {
		return nil, errors.New("master key must be at least 32 bytes")
	}
	if curve != cryptoutils.CurveSecp256k1 && curve != cryptoutils.CurveP256 {
		return nil, fmt.Errorf("unsupported curve %q", curve)
	}

	return &SimpleKeyService{
		masterKey: append([]byte(nil), masterKey...),
		curve:     curve,
		disabled:  make(map[string]bool),
	}, nil
}

// DisableKey makes every subsequent call for keyID fail like a disabled
// remote key would.
func (k *SimpleKeyService) DisableKey(keyID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.disabled[keyID] = true
}

// EnableKey reverses DisableKey.
func (k *SimpleKeyService) EnableKey(keyID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.disabled, keyID)
}

func (k *SimpleKeyService) checkEnabled(keyID string) error {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.disabled[keyID] {
		return &interfaces.ServiceError{Service: "simple", Code: "DisabledException", Message: fmt.Sprintf("key %s is disabled", keyID)}
	}
	return nil
}

// GetPublicKey returns the DER SubjectPublicKeyInfo of the key derived for keyID.
func (k *SimpleKeyService) GetPublicKey(ctx context.Context, keyID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := k.checkEnabled(keyID); err != nil {
		return nil, err
	}

	key, err := k.deriveKey(keyID)
	if err != nil {
		return nil, err
	}
	return cryptoutils.MarshalECDSAPublicKey(k.curve, &key.PublicKey)
}

// Sign returns a DER ECDSA signature. Digest mode requires a 32-byte digest.
func (k *SimpleKeyService) Sign(ctx context.Context, req interfaces.SignRequest) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := k.checkEnabled(req.KeyID); err != nil {
		return nil, err
	}
	if req.Algorithm != interfaces.SigningAlgorithmECDSASHA256 {
		return nil, &interfaces.ServiceError{Service: "simple", Code: "UnsupportedOperationException", Message: fmt.Sprintf("unsupported algorithm %s", req.Algorithm)}
	}

	var digest []byte
	switch req.Mode {
	case interfaces.SigningModeDigest:
		if len(req.Message) != sha256.Size {
			return nil, &interfaces.ServiceError{Service: "simple", Code: "ValidationException", Message: fmt.Sprintf("digest must be %d bytes for %s, got %d", sha256.Size, req.Algorithm, len(req.Message))}
		}
		digest = req.Message
	case interfaces.SigningModeMessage:
		sum := sha256.Sum256(req.Message)
		digest = sum[:]
	default:
		return nil, &interfaces.ServiceError{Service: "simple", Code: "ValidationException", Message: fmt.Sprintf("unknown message type %q", req.Mode)}
	}

	key, err := k.deriveKey(req.KeyID)
	if err != nil {
		return nil, err
	}

	switch k.curve {
	case cryptoutils.CurveSecp256k1:
		sig, err := ethcrypto.Sign(digest, key)
		if err != nil {
			return nil, fmt.Errorf("failed to sign: %w", err)
		}
		// drop the recovery id
		return cryptoutils.RawToDER(sig[:cryptoutils.RawSignatureSize])
	default:
		return ecdsa.SignASN1(rand.Reader, key, digest)
	}
}

// deriveKey derives the private key of keyID from the master key.
func (k *SimpleKeyService) deriveKey(keyID string) (*ecdsa.PrivateKey, error) {
	// Create deterministic seed
	h := sha256.New()
	h.Write(k.masterKey)
	h.Write([]byte(keyID))
	h.Write([]byte("identity"))
	seed := h.Sum(nil)

	if k.curve == cryptoutils.CurveSecp256k1 {
		key, err := ethcrypto.ToECDSA(seed)
		if err != nil {
			return nil, fmt.Errorf("failed to derive key for %s: %w", keyID, err)
		}
		return key, nil
	}

	curve := elliptic.P256()
	// Map the seed into [1, n-1]
	n1 := new(big.Int).Sub(curve.Params().N, big.NewInt(1))
	d := new(big.Int).Mod(new(big.Int).SetBytes(seed), n1)
	d.Add(d, big.NewInt(1))

	privateKey := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: curve},
		D:         d,
	}
	privateKey.PublicKey.X, privateKey.PublicKey.Y = curve.ScalarBaseMult(d.FillBytes(make([]byte, 32)))
	return privateKey, nil
}

package kms

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/ruteri/kms-identity/interfaces"
)

// VaultConfig holds the connection settings of a Vault Transit backend.
type VaultConfig struct {
	Address   string
	Token     string
	MountPath string
	Timeout   time.Duration
}

// VaultTransitKeyService adapts the HashiCorp Vault Transit secrets engine
// to interfaces.KeyService. Keys are addressed by their Transit key name and
// must be of type ecdsa-p256.
type VaultTransitKeyService struct {
	client    *api.Client
	mountPath string
	log       *slog.Logger
}

var _ interfaces.KeyService = (*VaultTransitKeyService)(nil)

// NewVaultClient creates a Vault API client for address authenticated with token.
func NewVaultClient(address, token string, timeout time.Duration) (*api.Client, error) {
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	config := api.DefaultConfig()
	config.Address = address
	config.HttpClient = &http.Client{Timeout: timeout}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}
	return client, nil
}

// NewVaultTransitKeyService wraps client. mountPath defaults to "transit".
func NewVaultTransitKeyService(client *api.Client, mountPath string, log *slog.Logger) *VaultTransitKeyService {
	mountPath = strings.Trim(mountPath, "/")
	if mountPath == "" {
		mountPath = "transit"
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &VaultTransitKeyService{client: client, mountPath: mountPath, log: log}
}

// NewVaultTransitKeyServiceFromConfig creates the client and the service from cfg.
func NewVaultTransitKeyServiceFromConfig(cfg VaultConfig, log *slog.Logger) (*VaultTransitKeyService, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("%w: vault address is required", interfaces.ErrInvalidConfig)
	}
	client, err := NewVaultClient(cfg.Address, cfg.Token, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return NewVaultTransitKeyService(client, cfg.MountPath, log), nil
}

// GetPublicKey returns the DER SubjectPublicKeyInfo of the latest version
// of the Transit key.
func (s *VaultTransitKeyService) GetPublicKey(ctx context.Context, keyID string) ([]byte, error) {
	if err := validateTransitKeyName(keyID); err != nil {
		return nil, err
	}
	path := fmt.Sprintf("%s/keys/%s", s.mountPath, url.PathEscape(keyID))

	secret, err := s.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, vaultServiceError(err)
	}
	if secret == nil || secret.Data == nil {
		return nil, &interfaces.ServiceError{Service: "vault-transit", Code: "404", Message: fmt.Sprintf("key %s not found", keyID)}
	}

	version, err := vaultInt(secret.Data["latest_version"])
	if err != nil {
		return nil, &interfaces.ServiceError{Service: "vault-transit", Message: fmt.Sprintf("invalid latest_version: %v", err)}
	}

	keys, ok := secret.Data["keys"].(map[string]interface{})
	if !ok {
		return nil, &interfaces.ServiceError{Service: "vault-transit", Message: "response has no keys"}
	}
	entry, ok := keys[strconv.Itoa(version)].(map[string]interface{})
	if !ok {
		return nil, &interfaces.ServiceError{Service: "vault-transit", Message: fmt.Sprintf("key version %d missing from response", version)}
	}

	// An empty public key is reported as a lookup failure by the caller.
	pemKey, _ := entry["public_key"].(string)
	if pemKey == "" {
		return nil, nil
	}

	block, _ := pem.Decode([]byte(pemKey))
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, &interfaces.ServiceError{Service: "vault-transit", Message: "public key is not a PEM encoded PUBLIC KEY"}
	}

	s.log.Debug("Fetched public key from Vault Transit",
		slog.String("key", keyID),
		slog.Int("version", version))

	return block.Bytes, nil
}

// Sign asks Transit for an ASN.1 (DER) signature. Digest mode maps to
// prehashed=true.
func (s *VaultTransitKeyService) Sign(ctx context.Context, req interfaces.SignRequest) ([]byte, error) {
	if req.Algorithm != interfaces.SigningAlgorithmECDSASHA256 {
		return nil, fmt.Errorf("%w: vault transit does not support %s", interfaces.ErrInvalidConfig, req.Algorithm)
	}

	var prehashed bool
	switch req.Mode {
	case interfaces.SigningModeDigest:
		prehashed = true
	case interfaces.SigningModeMessage:
	default:
		return nil, fmt.Errorf("%w: unknown signing mode %q", interfaces.ErrInvalidConfig, req.Mode)
	}

	if err := validateTransitKeyName(req.KeyID); err != nil {
		return nil, err
	}
	path := fmt.Sprintf("%s/sign/%s/sha2-256", s.mountPath, url.PathEscape(req.KeyID))
	secret, err := s.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"input":                base64.StdEncoding.EncodeToString(req.Message),
		"prehashed":            prehashed,
		"marshaling_algorithm": "asn1",
	})
	if err != nil {
		return nil, vaultServiceError(err)
	}
	if secret == nil || secret.Data == nil {
		return nil, &interfaces.ServiceError{Service: "vault-transit", Message: "empty sign response"}
	}

	encoded, _ := secret.Data["signature"].(string)
	return decodeVaultSignature(encoded)
}

// validateTransitKeyName rejects names that would address a different
// Transit path.
func validateTransitKeyName(name string) error {
	if name == "" || name == "." || strings.Contains(name, "/") || strings.Contains(name, "..") {
		return fmt.Errorf("%w: invalid transit key name %q", interfaces.ErrInvalidConfig, name)
	}
	return nil
}

// decodeVaultSignature strips the "vault:vN:" prefix and decodes the base64 body.
func decodeVaultSignature(encoded string) ([]byte, error) {
	parts := strings.SplitN(encoded, ":", 3)
	if len(parts) != 3 || parts[0] != "vault" || !strings.HasPrefix(parts[1], "v") {
		return nil, &interfaces.ServiceError{Service: "vault-transit", Message: fmt.Sprintf("unexpected signature format %q", encoded)}
	}

	sig, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, &interfaces.ServiceError{Service: "vault-transit", Message: "signature is not base64", Err: err}
	}
	return sig, nil
}

func vaultInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func vaultServiceError(err error) error {
	var respErr *api.ResponseError
	if errors.As(err, &respErr) {
		return &interfaces.ServiceError{
			Service: "vault-transit",
			Code:    strconv.Itoa(respErr.StatusCode),
			Message: strings.Join(respErr.Errors, "; "),
			Err:     err,
		}
	}
	return &interfaces.ServiceError{Service: "vault-transit", Message: err.Error(), Err: err}
}

package config

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"

	"github.com/ruteri/kms-identity/cryptoutils"
	"github.com/ruteri/kms-identity/identity"
	"github.com/ruteri/kms-identity/interfaces"
	"github.com/ruteri/kms-identity/kms"
	"github.com/ruteri/kms-identity/principal"
)

// NamedIdentity is a built identity together with its configuration.
type NamedIdentity struct {
	Name  string
	KeyID string
	interfaces.Identity
}

// KeyService creates the configured backend client.
func (c *Config) KeyService(log *slog.Logger) (interfaces.KeyService, error) {
	b := c.Backend
	switch b.Type {
	case BackendAWS:
		svc, err := kms.NewAWSKeyServiceFromConfig(kms.AWSConfig{
			Region:    b.AWS.Region,
			Endpoint:  b.AWS.Endpoint,
			AccessKey: b.AWS.AccessKey,
			SecretKey: b.AWS.SecretKey,
			Profile:   b.AWS.Profile,
		}, log)
		if err != nil {
			return nil, err
		}
		return svc, nil
	case BackendVault:
		svc, err := kms.NewVaultTransitKeyServiceFromConfig(kms.VaultConfig{
			Address:   b.Vault.Address,
			Token:     b.Vault.Token,
			MountPath: b.Vault.Mount,
			Timeout:   b.Vault.Timeout,
		}, log)
		if err != nil {
			return nil, err
		}
		return svc, nil
	case BackendSimple:
		masterKey, err := hex.DecodeString(b.Simple.MasterKey)
		if err != nil {
			return nil, fmt.Errorf("%w: backend.simple.master_key: %v", interfaces.ErrInvalidConfig, err)
		}
		curve, err := cryptoutils.ParseCurve(b.Simple.Curve)
		if err != nil {
			return nil, fmt.Errorf("%w: backend.simple.curve: %v", interfaces.ErrInvalidConfig, err)
		}
		svc, err := kms.NewSimpleKeyService(masterKey, curve)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidConfig, err)
		}
		return svc, nil
	default:
		return nil, fmt.Errorf("%w: no key service backend configured", interfaces.ErrInvalidConfig)
	}
}

// BuildIdentity builds one identity. svc is only used by kms identities and
// may be nil otherwise.
func BuildIdentity(ctx context.Context, cfg IdentityConfig, svc interfaces.KeyService, log *slog.Logger) (*NamedIdentity, error) {
	named := &NamedIdentity{Name: cfg.Name, KeyID: cfg.KeyID}

	switch cfg.Type {
	case IdentityKMS, "":
		mode, err := interfaces.ParseSigningMode(cfg.SigningMode)
		if err != nil {
			return nil, fmt.Errorf("identity %q: %w", cfg.Name, err)
		}
		enc, err := principal.ParseEncoding(cfg.PrincipalEncoding)
		if err != nil {
			return nil, fmt.Errorf("identity %q: %w: %v", cfg.Name, interfaces.ErrInvalidConfig, err)
		}

		if log != nil {
			log = log.With(slog.String("identity", cfg.Name))
		}
		id, err := kms.NewKMSIdentity(ctx, svc, cfg.KeyID, kms.Options{
			SigningMode:       mode,
			PrincipalEncoding: enc,
			NormalizeLowS:     cfg.NormalizeLowS,
			Log:               log,
		})
		if err != nil {
			return nil, fmt.Errorf("identity %q: %w", cfg.Name, err)
		}
		named.Identity = id

	case IdentitySecp256k1:
		id, err := identity.Secp256k1IdentityFromHex(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("identity %q: %w", cfg.Name, err)
		}
		named.Identity = id

	case IdentityP256:
		data, err := os.ReadFile(cfg.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("identity %q: %w", cfg.Name, err)
		}
		id, err := identity.P256IdentityFromPEM(data)
		if err != nil {
			return nil, fmt.Errorf("identity %q: %w", cfg.Name, err)
		}
		named.Identity = id

	case IdentityAnonymous:
		named.Identity = identity.AnonymousIdentity{}

	default:
		return nil, fmt.Errorf("identity %q: %w: unknown type %q", cfg.Name, interfaces.ErrInvalidConfig, cfg.Type)
	}

	return named, nil
}

// BuildIdentities creates the backend, when any kms identity needs one, and
// builds every configured identity in order.
func (c *Config) BuildIdentities(ctx context.Context, log *slog.Logger) ([]*NamedIdentity, error) {
	var svc interfaces.KeyService
	if c.usesKMS() {
		var err error
		if svc, err = c.KeyService(log); err != nil {
			return nil, err
		}
	}

	identities := make([]*NamedIdentity, 0, len(c.Identities))
	for _, idCfg := range c.Identities {
		id, err := BuildIdentity(ctx, idCfg, svc, log)
		if err != nil {
			return nil, err
		}
		identities = append(identities, id)
	}
	return identities, nil
}

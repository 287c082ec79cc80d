package config

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ruteri/kms-identity/identity"
	"github.com/ruteri/kms-identity/interfaces"
	"github.com/ruteri/kms-identity/kms"
	"github.com/ruteri/kms-identity/principal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const simpleConfig = `
backend:
  type: simple
  simple:
    master_key: ${TEST_MASTER_KEY}
    curve: secp256k1
server:
  listen_addr: 127.0.0.1:9090
  drain_timeout: 2s
identities:
  - name: ledger
    key_id: alias/ledger
    signing_mode: digest
    principal_encoding: spki
  - name: guest
    type: anonymous
`

const testMasterKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestLoad(t *testing.T) {
	t.Setenv("TEST_MASTER_KEY", testMasterKey)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(simpleConfig), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendSimple, cfg.Backend.Type)
	assert.Equal(t, testMasterKey, cfg.Backend.Simple.MasterKey)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.ListenAddr)
	assert.Equal(t, 2*time.Second, cfg.Server.DrainTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, "transit", cfg.Backend.Vault.Mount)
	require.Len(t, cfg.Identities, 2)
	assert.Equal(t, IdentityKMS, cfg.Identities[0].Type)

	id, ok := cfg.Identity("guest")
	require.True(t, ok)
	assert.Equal(t, IdentityAnonymous, id.Type)
	_, ok = cfg.Identity("missing")
	assert.False(t, ok)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParse_ExpandsOnlyBracedReferences(t *testing.T) {
	t.Setenv("TEST_VAULT_ADDR", "http://vault:8200")
	t.Setenv("cd", "should-not-appear")

	cfg, err := Parse([]byte(`
backend:
  type: vault
  vault:
    address: ${TEST_VAULT_ADDR}
    token: "hvs.ab$cd"
  aws:
    secret_key: "pa$$word$"
identities:
  - name: ledger
    key_id: ledger
    signing_mode: digest
    principal_encoding: spki
`))
	require.NoError(t, err)
	assert.Equal(t, "http://vault:8200", cfg.Backend.Vault.Address)
	assert.Equal(t, "hvs.ab$cd", cfg.Backend.Vault.Token)
	assert.Equal(t, "pa$$word$", cfg.Backend.AWS.SecretKey)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("KMS_IDENTITY_TEST_REGION=eu-west-1\n"), 0o600))

	require.NoError(t, LoadEnvFile(path))
	t.Cleanup(func() { os.Unsetenv("KMS_IDENTITY_TEST_REGION") })
	assert.Equal(t, "eu-west-1", os.Getenv("KMS_IDENTITY_TEST_REGION"))

	assert.NoError(t, LoadEnvFile(""))
	assert.Error(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no identities", "backend: {type: simple}\n"},
		{"unknown backend", "backend: {type: gcp}\nidentities: [{name: a, key_id: k}]\n"},
		{"kms without backend", "identities: [{name: a, key_id: k}]\n"},
		{"vault without address", "backend: {type: vault}\nidentities: [{name: a, key_id: k}]\n"},
		{"missing key id", "backend: {type: aws}\nidentities: [{name: a}]\n"},
		{"missing name", "backend: {type: aws}\nidentities: [{key_id: k}]\n"},
		{"duplicate name", "backend: {type: aws}\nidentities: [{name: a, key_id: k}, {name: a, key_id: j}]\n"},
		{"unknown identity type", "identities: [{name: a, type: ed25519}]\n"},
		{"secp256k1 without key", "identities: [{name: a, type: secp256k1}]\n"},
		{"p256 without file", "identities: [{name: a, type: p256}]\n"},
		{"not yaml", "identities: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}

	_, err := Parse([]byte("identities: [{name: guest, type: anonymous}]\n"))
	assert.NoError(t, err, "local identities need no backend")
}

func TestBuildIdentities(t *testing.T) {
	t.Setenv("TEST_MASTER_KEY", testMasterKey)

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	pemPath := filepath.Join(t.TempDir(), "p256.pem")
	require.NoError(t, os.WriteFile(pemPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), 0o600))

	doc := simpleConfig + `
  - name: local-k1
    type: secp256k1
    private_key: 289c2857d4598e37fb9647507e47a309d6133539bf21a8b9cb6df88fd5232032
  - name: local-p256
    type: p256
    private_key_file: ` + pemPath + "\n"

	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)

	ids, err := cfg.BuildIdentities(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, ids, 4)

	assert.Equal(t, "ledger", ids[0].Name)
	assert.Equal(t, "alias/ledger", ids[0].KeyID)
	assert.IsType(t, &kms.KMSIdentity{}, ids[0].Identity)
	assert.IsType(t, identity.AnonymousIdentity{}, ids[1].Identity)
	assert.IsType(t, &identity.Secp256k1Identity{}, ids[2].Identity)
	assert.IsType(t, &identity.P256Identity{}, ids[3].Identity)

	want, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, want, ids[3].PublicKey())

	sender, err := ids[0].Sender()
	require.NoError(t, err)
	assert.True(t, sender.IsSelfAuthenticating())

	sig, err := ids[0].Sign(context.Background(), nil)
	assert.ErrorIs(t, err, interfaces.ErrSigning)
	assert.Nil(t, sig)
}

func TestBuildIdentity_ExplicitModes(t *testing.T) {
	svc, err := kms.NewSimpleKeyService(make([]byte, 32), "p256")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = BuildIdentity(ctx, IdentityConfig{Name: "a", Type: IdentityKMS, KeyID: "k", PrincipalEncoding: "spki"}, svc, nil)
	assert.ErrorIs(t, err, interfaces.ErrInvalidConfig, "signing mode has no default")

	_, err = BuildIdentity(ctx, IdentityConfig{Name: "a", Type: IdentityKMS, KeyID: "k", SigningMode: "digest"}, svc, nil)
	assert.ErrorIs(t, err, interfaces.ErrInvalidConfig, "principal encoding has no default")

	id, err := BuildIdentity(ctx, IdentityConfig{Name: "a", KeyID: "k", SigningMode: "message", PrincipalEncoding: string(principal.EncodingRaw)}, svc, nil)
	require.NoError(t, err)
	assert.Equal(t, "k", id.KeyID)

	svc.DisableKey("k")
	_, err = BuildIdentity(ctx, IdentityConfig{Name: "a", KeyID: "k", SigningMode: "digest", PrincipalEncoding: "raw"}, svc, nil)
	assert.ErrorIs(t, err, interfaces.ErrKeyLookup)
}

func TestKeyService(t *testing.T) {
	cfg := &Config{}
	_, err := cfg.KeyService(nil)
	assert.ErrorIs(t, err, interfaces.ErrInvalidConfig)

	cfg.Backend.Type = BackendSimple
	cfg.Backend.Simple.MasterKey = "abcd"
	cfg.Backend.Simple.Curve = "secp256k1"
	_, err = cfg.KeyService(nil)
	assert.ErrorIs(t, err, interfaces.ErrInvalidConfig, "master key too short")

	cfg.Backend.Simple.MasterKey = testMasterKey
	cfg.Backend.Simple.Curve = "ed25519"
	_, err = cfg.KeyService(nil)
	assert.ErrorIs(t, err, interfaces.ErrInvalidConfig)

	cfg.Backend.Type = BackendVault
	cfg.Backend.Vault.Address = "http://127.0.0.1:8200"
	svc, err := cfg.KeyService(nil)
	require.NoError(t, err)
	assert.IsType(t, &kms.VaultTransitKeyService{}, svc)

	cfg.Backend.Type = BackendAWS
	cfg.Backend.AWS.Region = "eu-central-1"
	cfg.Backend.AWS.AccessKey = "only-half"
	_, err = cfg.KeyService(nil)
	assert.ErrorIs(t, err, interfaces.ErrInvalidConfig)
}

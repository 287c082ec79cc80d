package kms

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ruteri/kms-identity/cryptoutils"
	"github.com/ruteri/kms-identity/interfaces"
	"github.com/ruteri/kms-identity/principal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// transitStub serves the two Transit endpoints for a single ecdsa-p256 key.
type transitStub struct {
	key       *ecdsa.PrivateKey
	publicKey []byte
	lastSign  map[string]interface{}
}

func (s *transitStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.URL.Path == "/v1/transit/keys/ledger" && r.Method == http.MethodGet:
		pemKey := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: s.publicKey})
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"type":           "ecdsa-p256",
				"latest_version": 2,
				"keys": map[string]interface{}{
					"1": map[string]interface{}{"public_key": "stale"},
					"2": map[string]interface{}{"public_key": string(pemKey)},
				},
			},
		})
	case r.URL.Path == "/v1/transit/sign/ledger/sha2-256":
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.lastSign = body

		input, _ := base64.StdEncoding.DecodeString(body["input"].(string))
		digest := input
		if prehashed, _ := body["prehashed"].(bool); !prehashed {
			sum := sha256.Sum256(input)
			digest = sum[:]
		}
		sig, _ := ecdsa.SignASN1(rand.Reader, s.key, digest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"signature":   "vault:v2:" + base64.StdEncoding.EncodeToString(sig),
				"key_version": 2,
			},
		})
	case strings.HasPrefix(r.URL.Path, "/v1/transit/sign/"):
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"errors":["permission denied"]}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTransit(t *testing.T) (*transitStub, *VaultTransitKeyService) {
	key, pk := p256KeyPair(t)
	stub := &transitStub{key: key, publicKey: pk}

	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	svc, err := NewVaultTransitKeyServiceFromConfig(VaultConfig{Address: srv.URL, Token: "root"}, nil)
	require.NoError(t, err)
	return stub, svc
}

func TestVaultTransit_IdentityFlow(t *testing.T) {
	for _, mode := range []interfaces.SigningMode{interfaces.SigningModeDigest, interfaces.SigningModeMessage} {
		t.Run(string(mode), func(t *testing.T) {
			stub, svc := newTransit(t)
			ctx := context.Background()

			id, err := NewKMSIdentity(ctx, svc, "ledger", Options{
				SigningMode:       mode,
				PrincipalEncoding: principal.EncodingSPKI,
			})
			require.NoError(t, err)
			assert.Equal(t, stub.publicKey, id.PublicKey(), "latest key version is used")

			content := testContent()
			sig, err := id.Sign(ctx, content)
			require.NoError(t, err)
			assert.Len(t, sig.Signature, 64)

			assert.Equal(t, "asn1", stub.lastSign["marshaling_algorithm"])
			assert.Equal(t, mode == interfaces.SigningModeDigest, stub.lastSign["prehashed"])

			pub, err := cryptoutils.ParseECPublicKey(stub.publicKey)
			require.NoError(t, err)
			digest := sha256.Sum256(content.RequestID().Signable())
			assert.True(t, cryptoutils.VerifyRaw(pub, digest[:], sig.Signature))
		})
	}
}

func TestVaultTransit_Errors(t *testing.T) {
	_, svc := newTransit(t)
	ctx := context.Background()

	_, err := NewKMSIdentity(ctx, svc, "unknown", testOptions)
	assert.ErrorIs(t, err, interfaces.ErrKeyLookup)

	_, err = svc.Sign(ctx, interfaces.SignRequest{
		KeyID:     "forbidden",
		Algorithm: interfaces.SigningAlgorithmECDSASHA256,
		Mode:      interfaces.SigningModeDigest,
		Message:   make([]byte, 32),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "permission denied")

	_, err = svc.Sign(ctx, interfaces.SignRequest{KeyID: "ledger", Algorithm: "ECDSA_SHA_384", Mode: interfaces.SigningModeDigest})
	assert.ErrorIs(t, err, interfaces.ErrInvalidConfig)

	_, err = NewVaultTransitKeyServiceFromConfig(VaultConfig{}, nil)
	assert.ErrorIs(t, err, interfaces.ErrInvalidConfig)
}

func TestVaultTransit_RejectsPathTraversal(t *testing.T) {
	_, svc := newTransit(t)
	ctx := context.Background()

	for _, name := range []string{"../keys/ledger", "ledger/rotate", "..", "."} {
		_, err := svc.GetPublicKey(ctx, name)
		assert.ErrorIs(t, err, interfaces.ErrInvalidConfig, name)

		_, err = svc.Sign(ctx, interfaces.SignRequest{
			KeyID:     name,
			Algorithm: interfaces.SigningAlgorithmECDSASHA256,
			Mode:      interfaces.SigningModeDigest,
			Message:   make([]byte, 32),
		})
		assert.ErrorIs(t, err, interfaces.ErrInvalidConfig, name)
	}

	_, err := NewKMSIdentity(ctx, svc, "../keys/ledger", testOptions)
	assert.ErrorIs(t, err, interfaces.ErrKeyLookup)
}

func TestDecodeVaultSignature(t *testing.T) {
	sig, err := decodeVaultSignature("vault:v1:" + base64.StdEncoding.EncodeToString([]byte{1, 2, 3}))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, sig)

	for _, bad := range []string{"", "vault:v1", "aws:v1:AQID", "vault:x1:AQID", "vault:v1:***"} {
		_, err := decodeVaultSignature(bad)
		assert.Error(t, err, bad)
	}
}

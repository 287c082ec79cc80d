package httpserver

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ruteri/kms-identity/config"
	"github.com/ruteri/kms-identity/cryptoutils"
	"github.com/ruteri/kms-identity/envelope"
	"github.com/ruteri/kms-identity/identity"
	"github.com/ruteri/kms-identity/interfaces"
	"github.com/ruteri/kms-identity/kms"
	"github.com/ruteri/kms-identity/principal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testLog = slog.New(slog.DiscardHandler)

// setupServer builds a server over a simple key service with one remote
// identity and one anonymous identity.
func setupServer(t *testing.T) (*Server, *kms.SimpleKeyService) {
	t.Helper()

	svc, err := kms.NewSimpleKeyService(bytes.Repeat([]byte{7}, 32), cryptoutils.CurveSecp256k1)
	require.NoError(t, err)

	ledger, err := kms.NewKMSIdentity(context.Background(), svc, "alias/ledger", kms.Options{
		SigningMode:       interfaces.SigningModeDigest,
		PrincipalEncoding: principal.EncodingSPKI,
	})
	require.NoError(t, err)

	handler, err := NewHandler([]*config.NamedIdentity{
		{Name: "ledger", KeyID: "alias/ledger", Identity: ledger},
		{Name: "guest", Identity: identity.AnonymousIdentity{}},
	}, testLog)
	require.NoError(t, err)
	handler.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	srv, err := New(&HTTPServerConfig{Log: testLog}, handler)
	require.NoError(t, err)
	return srv, svc
}

func do(t *testing.T, srv *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, bytes.NewReader(body)))
	return rec
}

func TestHandleListIdentities(t *testing.T) {
	srv, _ := setupServer(t)

	rec := do(t, srv, http.MethodGet, "/api/v1/identities", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var infos []IdentityInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	require.Len(t, infos, 2)
	assert.Equal(t, "ledger", infos[0].Name)
	assert.Equal(t, "alias/ledger", infos[0].KeyID)
	assert.Equal(t, "guest", infos[1].Name)
	assert.Equal(t, "2vxsx-fae", infos[1].Principal)

	p, err := principal.FromText(infos[0].Principal)
	require.NoError(t, err)
	assert.True(t, p.IsSelfAuthenticating())
}

func TestHandlePrincipalAndPublicKey(t *testing.T) {
	srv, svc := setupServer(t)

	pk, err := svc.GetPublicKey(context.Background(), "alias/ledger")
	require.NoError(t, err)

	rec := do(t, srv, http.MethodGet, "/api/v1/identities/ledger/principal", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var p map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, principal.SelfAuthenticating(pk).String(), p["principal"])

	rec = do(t, srv, http.MethodGet, "/api/v1/identities/ledger/public_key", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var k map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &k))
	assert.Equal(t, hex.EncodeToString(pk), k["public_key"])

	rec = do(t, srv, http.MethodGet, "/api/v1/identities/missing/principal", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSign(t *testing.T) {
	srv, svc := setupServer(t)

	body := []byte(`{"request_type":"call","canister_id":"aaaaa-aa","method_name":"greet","arg":"4449444c0000","nonce":"01","ingress_expiry":1700000300000000000}`)
	rec := do(t, srv, http.MethodPost, "/api/v1/identities/ledger/sign", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp SignResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	sender, err := principal.FromText(resp.Sender)
	require.NoError(t, err)
	content := envelope.NewCall(sender, principal.ManagementCanister, "greet", []byte("DIDL\x00\x00"), 1700000300000000000)
	content.Nonce = []byte{1}
	assert.Equal(t, content.RequestID().String(), resp.RequestID)

	pk, err := svc.GetPublicKey(context.Background(), "alias/ledger")
	require.NoError(t, err)
	assert.Equal(t, pk, []byte(resp.PublicKey))

	pub, err := cryptoutils.ParseECPublicKey(resp.PublicKey)
	require.NoError(t, err)
	digest := sha256.Sum256(content.RequestID().Signable())
	assert.True(t, cryptoutils.VerifyRaw(pub, digest[:], resp.Signature))
}

func TestHandleSign_Defaults(t *testing.T) {
	srv, _ := setupServer(t)

	body := []byte(`{"request_type":"query","canister_id":"aaaaa-aa","method_name":"status"}`)
	first := do(t, srv, http.MethodPost, "/api/v1/identities/ledger/sign", body)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	second := do(t, srv, http.MethodPost, "/api/v1/identities/ledger/sign", body)
	require.Equal(t, http.StatusOK, second.Code)

	var a, b SignResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	assert.NotEqual(t, a.RequestID, b.RequestID, "a fresh nonce is generated per request")

	rec := do(t, srv, http.MethodPost, "/api/v1/identities/guest/sign", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var anon SignResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &anon))
	assert.Equal(t, "2vxsx-fae", anon.Sender)
	assert.Empty(t, anon.Signature)
}

func TestHandleSign_BadRequests(t *testing.T) {
	srv, _ := setupServer(t)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"unknown identity", "/api/v1/identities/nobody/sign", `{}`, http.StatusNotFound},
		{"not json", "/api/v1/identities/ledger/sign", `{`, http.StatusBadRequest},
		{"bad principal", "/api/v1/identities/ledger/sign", `{"request_type":"call","canister_id":"2vxsx-fa1","method_name":"m"}`, http.StatusBadRequest},
		{"missing method", "/api/v1/identities/ledger/sign", `{"request_type":"call","canister_id":"aaaaa-aa"}`, http.StatusBadRequest},
		{"unknown type", "/api/v1/identities/ledger/sign", `{"request_type":"update"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, tt.path, []byte(tt.body))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestHandleSign_KeyServiceFailures(t *testing.T) {
	srv, svc := setupServer(t)
	body := []byte(`{"request_type":"read_state","paths":[["74696d65"]]}`)

	svc.DisableKey("alias/ledger")
	rec := do(t, srv, http.MethodPost, "/api/v1/identities/ledger/sign", body)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "DisabledException")

	svc.EnableKey("alias/ledger")
	rec = do(t, srv, http.MethodPost, "/api/v1/identities/ledger/sign", body)
	assert.Equal(t, http.StatusOK, rec.Code, "identity recovers once the key is usable again")
}

func TestHandleSign_MalformedSignature(t *testing.T) {
	pk := bytes.Repeat([]byte{0x02}, 33)
	svc := new(kms.MockKeyService)
	svc.On("GetPublicKey", mock.Anything, "k").Return(pk, nil)
	svc.On("Sign", mock.Anything, mock.Anything).Return([]byte{0x30, 0x00}, nil)

	id, err := kms.NewKMSIdentity(context.Background(), svc, "k", kms.Options{
		SigningMode:       interfaces.SigningModeMessage,
		PrincipalEncoding: principal.EncodingRaw,
	})
	require.NoError(t, err)

	handler, err := NewHandler([]*config.NamedIdentity{{Name: "odd", KeyID: "k", Identity: id}}, testLog)
	require.NoError(t, err)
	srv, err := New(&HTTPServerConfig{Log: testLog}, handler)
	require.NoError(t, err)

	rec := do(t, srv, http.MethodPost, "/api/v1/identities/odd/sign", []byte(`{"request_type":"read_state"}`))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(fmt.Errorf("%w: k: %w", interfaces.ErrSigning, context.DeadlineExceeded)))
	assert.Equal(t, http.StatusBadGateway, statusFor(fmt.Errorf("%w: k: denied", interfaces.ErrKeyLookup)))
	assert.Equal(t, http.StatusInternalServerError, statusFor(fmt.Errorf("%w: bad point", interfaces.ErrEncoding)))
	assert.Equal(t, http.StatusBadGateway, statusFor(fmt.Errorf("%w: k: %w", interfaces.ErrKeyLookup, interfaces.ErrEncoding)))
}

func TestNewHandler_DuplicateNames(t *testing.T) {
	_, err := NewHandler([]*config.NamedIdentity{
		{Name: "a", Identity: identity.AnonymousIdentity{}},
		{Name: "a", Identity: identity.AnonymousIdentity{}},
	}, testLog)
	assert.ErrorIs(t, err, interfaces.ErrInvalidConfig)
}

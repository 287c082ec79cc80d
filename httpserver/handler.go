package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ruteri/kms-identity/config"
	"github.com/ruteri/kms-identity/envelope"
	"github.com/ruteri/kms-identity/interfaces"
	"github.com/ruteri/kms-identity/principal"
)

const (
	// maxBodySize is the maximum allowed request body size (1MB).
	maxBodySize = 1024 * 1024

	// defaultIngressExpiry is used when the request omits ingress_expiry.
	defaultIngressExpiry = 5 * time.Minute
)

// RequestError provides structured error information for HTTP responses.
// It includes both an HTTP status code and the underlying error.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error implements error.
func (e *RequestError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// IdentityInfo is one entry of the identity listing.
type IdentityInfo struct {
	Name      string `json:"name"`
	KeyID     string `json:"key_id,omitempty"`
	Principal string `json:"principal"`
}

// SignResponse is returned by the sign endpoint.
type SignResponse struct {
	RequestID string            `json:"request_id"`
	Sender    string            `json:"sender"`
	PublicKey envelope.HexBytes `json:"public_key"`
	Signature envelope.HexBytes `json:"signature"`
}

// Handler serves the identity endpoints for a fixed set of identities.
type Handler struct {
	identities []*config.NamedIdentity
	byName     map[string]*config.NamedIdentity
	log        *slog.Logger

	// now is replaceable in tests
	now func() time.Time
}

// NewHandler creates a handler for identities. Names must be unique.
func NewHandler(identities []*config.NamedIdentity, log *slog.Logger) (*Handler, error) {
	byName := make(map[string]*config.NamedIdentity, len(identities))
	for _, id := range identities {
		if _, ok := byName[id.Name]; ok {
			return nil, fmt.Errorf("%w: duplicate identity %q", interfaces.ErrInvalidConfig, id.Name)
		}
		byName[id.Name] = id
	}

	return &Handler{
		identities: identities,
		byName:     byName,
		log:        log,
		now:        time.Now,
	}, nil
}

// HandleListIdentities lists the configured identities with their principals.
func (h *Handler) HandleListIdentities(w http.ResponseWriter, r *http.Request) {
	infos := make([]IdentityInfo, 0, len(h.identities))
	for _, id := range h.identities {
		sender, err := id.Sender()
		if err != nil {
			h.writeError(w, r, &RequestError{StatusCode: statusFor(err), Err: fmt.Errorf("identity %s: %w", id.Name, err)})
			return
		}
		infos = append(infos, IdentityInfo{Name: id.Name, KeyID: id.KeyID, Principal: sender.String()})
	}
	writeJSON(w, infos)
}

// HandlePrincipal returns the sender principal of an identity.
func (h *Handler) HandlePrincipal(w http.ResponseWriter, r *http.Request) {
	id, err := h.lookup(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	sender, err := id.Sender()
	if err != nil {
		h.writeError(w, r, &RequestError{StatusCode: statusFor(err), Err: err})
		return
	}
	writeJSON(w, map[string]string{"principal": sender.String()})
}

// HandlePublicKey returns the public key of an identity.
func (h *Handler) HandlePublicKey(w http.ResponseWriter, r *http.Request) {
	id, err := h.lookup(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]envelope.HexBytes{"public_key": id.PublicKey()})
}

// HandleSign signs request content with an identity.
func (h *Handler) HandleSign(w http.ResponseWriter, r *http.Request) {
	id, err := h.lookup(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.writeError(w, r, &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("failed to read request body: %w", err)})
		return
	}

	var doc envelope.ContentJSON
	if err := json.Unmarshal(body, &doc); err != nil {
		h.writeError(w, r, &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("invalid request content: %w", err)})
		return
	}

	resp, err := h.sign(r.Context(), id, &doc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.log.Info("Signed request",
		slog.String("identity", id.Name),
		slog.String("request_id", resp.RequestID),
		slog.String("request_type", string(doc.RequestType)))

	writeJSON(w, resp)
}

func (h *Handler) sign(ctx context.Context, id *config.NamedIdentity, doc *envelope.ContentJSON) (*SignResponse, error) {
	sender, err := id.Sender()
	if err != nil {
		return nil, &RequestError{StatusCode: statusFor(err), Err: err}
	}

	if doc.IngressExpiry == 0 {
		doc.IngressExpiry = uint64(h.now().Add(defaultIngressExpiry).UnixNano())
	}
	if doc.Nonce == nil && doc.RequestType != envelope.RequestTypeReadState {
		nonce := uuid.New()
		doc.Nonce = nonce[:]
	}

	content, err := doc.Content(sender)
	if err != nil {
		return nil, &RequestError{StatusCode: http.StatusBadRequest, Err: err}
	}

	sig, err := id.Sign(ctx, content)
	if err != nil {
		return nil, &RequestError{StatusCode: statusFor(err), Err: err}
	}

	return &SignResponse{
		RequestID: content.RequestID().String(),
		Sender:    sender.String(),
		PublicKey: sig.PublicKey,
		Signature: sig.Signature,
	}, nil
}

func (h *Handler) lookup(r *http.Request) (*config.NamedIdentity, error) {
	name := chi.URLParam(r, "name")
	id, ok := h.byName[name]
	if !ok {
		return nil, &RequestError{StatusCode: http.StatusNotFound, Err: fmt.Errorf("unknown identity %q", name)}
	}
	return id, nil
}

// statusFor maps identity errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, interfaces.ErrKeyLookup),
		errors.Is(err, interfaces.ErrSigning),
		errors.Is(err, interfaces.ErrMalformedSignature):
		return http.StatusBadGateway
	case errors.Is(err, interfaces.ErrEncoding):
		return http.StatusInternalServerError
	case errors.Is(err, principal.ErrInvalidPrincipal):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		status = reqErr.StatusCode
	}

	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", slog.String("path", r.URL.Path), slog.Int("status", status), "err", err)
	} else {
		h.log.Debug("Request rejected", slog.String("path", r.URL.Path), slog.Int("status", status), "err", err)
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

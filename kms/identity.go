package kms

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"

	"github.com/ruteri/kms-identity/cryptoutils"
	"github.com/ruteri/kms-identity/envelope"
	"github.com/ruteri/kms-identity/interfaces"
	"github.com/ruteri/kms-identity/principal"
)

// Options configures a KMSIdentity. SigningMode and PrincipalEncoding have
// no defaults and must match how the remote key was provisioned and what
// the relying network expects.
type Options struct {
	SigningMode       interfaces.SigningMode
	PrincipalEncoding principal.Encoding

	// Algorithm defaults to ECDSA_SHA_256.
	Algorithm interfaces.SigningAlgorithm

	// NormalizeLowS rewrites high-S signatures into low-S form.
	NormalizeLowS bool

	// Log defaults to a discarding logger.
	Log *slog.Logger
}

func (o *Options) validate() error {
	if _, err := interfaces.ParseSigningMode(string(o.SigningMode)); err != nil {
		return err
	}
	if _, err := principal.ParseEncoding(string(o.PrincipalEncoding)); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrInvalidConfig, err)
	}
	if o.Algorithm == "" {
		o.Algorithm = interfaces.SigningAlgorithmECDSASHA256
	}
	if o.Algorithm != interfaces.SigningAlgorithmECDSASHA256 {
		return fmt.Errorf("%w: unsupported signing algorithm %s", interfaces.ErrInvalidConfig, o.Algorithm)
	}
	if o.Log == nil {
		o.Log = slog.New(slog.DiscardHandler)
	}
	return nil
}

// KMSIdentity signs requests with a private key held by a remote key
// service. The public key is fetched once at construction; a key rotated
// behind the same key id is not detected.
//
// A KMSIdentity holds no mutable state and is safe for concurrent use.
type KMSIdentity struct {
	client    interfaces.KeyService
	keyID     string
	publicKey []byte
	curve     cryptoutils.Curve
	opts      Options
}

var _ interfaces.Identity = (*KMSIdentity)(nil)

// NewKMSIdentity looks up the public key of keyID and returns an identity
// bound to it. Lookup failures wrap interfaces.ErrKeyLookup.
func NewKMSIdentity(ctx context.Context, client interfaces.KeyService, keyID string, opts Options) (*KMSIdentity, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: nil key service", interfaces.ErrInvalidConfig)
	}
	if keyID == "" {
		return nil, fmt.Errorf("%w: empty key id", interfaces.ErrInvalidConfig)
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	publicKey, err := client.GetPublicKey(ctx, keyID)
	if err != nil {
		opts.Log.Warn("Public key lookup failed", slog.String("key_id", keyID), "err", err)
		return nil, fmt.Errorf("%w: %s: %w", interfaces.ErrKeyLookup, keyID, err)
	}
	if len(publicKey) == 0 {
		return nil, fmt.Errorf("%w: %s: response contains no public key", interfaces.ErrKeyLookup, keyID)
	}

	id := &KMSIdentity{
		client:    client,
		keyID:     keyID,
		publicKey: append([]byte(nil), publicKey...),
		opts:      opts,
	}

	if opts.NormalizeLowS {
		key, err := cryptoutils.ParseECPublicKey(publicKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", interfaces.ErrKeyLookup, keyID, err)
		}
		id.curve = key.Curve
	}

	opts.Log.Debug("Loaded remote key",
		slog.String("key_id", keyID),
		slog.Int("public_key_size", len(publicKey)),
		slog.String("signing_mode", string(opts.SigningMode)),
		slog.String("principal_encoding", string(opts.PrincipalEncoding)))

	return id, nil
}

// KeyID returns the remote key identifier.
func (id *KMSIdentity) KeyID() string {
	return id.keyID
}

// PublicKey returns a copy of the cached public key.
func (id *KMSIdentity) PublicKey() []byte {
	return append([]byte(nil), id.publicKey...)
}

// Sender derives the self-authenticating principal of the cached public
// key under the configured encoding. Failures wrap interfaces.ErrEncoding.
func (id *KMSIdentity) Sender() (principal.Principal, error) {
	return principal.Derive(id.opts.PrincipalEncoding, id.publicKey)
}

// Sign signs the request id of content with the remote key and returns the
// signature in the raw 64-byte form together with the cached public key.
func (id *KMSIdentity) Sign(ctx context.Context, content *envelope.Content) (*envelope.Signature, error) {
	if content == nil {
		return nil, fmt.Errorf("%w: nil request content", interfaces.ErrSigning)
	}

	raw, err := id.SignArbitrary(ctx, content.RequestID().Signable())
	if err != nil {
		return nil, err
	}

	return &envelope.Signature{
		PublicKey: id.PublicKey(),
		Signature: raw,
	}, nil
}

// SignArbitrary signs msg with the remote key and returns the raw r||s
// signature.
func (id *KMSIdentity) SignArbitrary(ctx context.Context, msg []byte) ([]byte, error) {
	message := msg
	if id.opts.SigningMode == interfaces.SigningModeDigest {
		digest := sha256.Sum256(msg)
		message = digest[:]
	}

	der, err := id.client.Sign(ctx, interfaces.SignRequest{
		KeyID:     id.keyID,
		Algorithm: id.opts.Algorithm,
		Mode:      id.opts.SigningMode,
		Message:   message,
	})
	if err != nil {
		id.opts.Log.Warn("Remote signing failed", slog.String("key_id", id.keyID), "err", err)
		return nil, fmt.Errorf("%w: %s: %w", interfaces.ErrSigning, id.keyID, err)
	}
	if len(der) == 0 {
		return nil, fmt.Errorf("%w: %s: response contains no signature", interfaces.ErrSigning, id.keyID)
	}

	raw, err := cryptoutils.DERToRaw(der)
	if err != nil {
		id.opts.Log.Error("Remote key returned an unusable signature", slog.String("key_id", id.keyID), "err", err)
		return nil, err
	}

	if id.opts.NormalizeLowS {
		return cryptoutils.NormalizeLowS(id.curve, raw)
	}
	return raw, nil
}

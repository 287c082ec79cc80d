package interfaces

import (
	"context"

	"github.com/ruteri/kms-identity/envelope"
	"github.com/ruteri/kms-identity/principal"
)

// Identity is the capability set an agent needs from a signer: derive the
// caller principal, expose the public key and sign request content.
type Identity interface {
	// Sender returns the principal requests are sent as.
	Sender() (principal.Principal, error)

	// PublicKey returns the public key attached to signed envelopes, or nil
	// for identities that do not sign.
	PublicKey() []byte

	// Sign signs the request id of content.
	Sign(ctx context.Context, content *envelope.Content) (*envelope.Signature, error)
}

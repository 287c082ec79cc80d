package identity

import (
	"context"

	"github.com/ruteri/kms-identity/envelope"
	"github.com/ruteri/kms-identity/interfaces"
	"github.com/ruteri/kms-identity/principal"
)

// AnonymousIdentity sends requests as the anonymous principal without a
// signature.
type AnonymousIdentity struct{}

var _ interfaces.Identity = AnonymousIdentity{}

// Sender returns the anonymous principal.
func (AnonymousIdentity) Sender() (principal.Principal, error) {
	return principal.Anonymous, nil
}

// PublicKey returns nil; anonymous requests carry no key.
func (AnonymousIdentity) PublicKey() []byte {
	return nil
}

// Sign returns an envelope with no public key or signature.
func (AnonymousIdentity) Sign(ctx context.Context, _ *envelope.Content) (*envelope.Signature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &envelope.Signature{}, nil
}

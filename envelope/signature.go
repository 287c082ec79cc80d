package envelope

import "github.com/ruteri/kms-identity/principal"

// Delegation grants the holder of PublicKey the right to sign on behalf of
// the delegating identity until Expiration (nanoseconds since epoch).
type Delegation struct {
	PublicKey  []byte                `json:"pubkey"`
	Expiration uint64                `json:"expiration"`
	Targets    []principal.Principal `json:"targets,omitempty"`
}

// SignedDelegation is a delegation with the delegator's signature.
type SignedDelegation struct {
	Delegation Delegation `json:"delegation"`
	Signature  []byte     `json:"signature"`
}

// Signature is what an identity attaches to a request envelope.
// Delegations is nil for identities that sign with their own key.
type Signature struct {
	Delegations []SignedDelegation `json:"delegations,omitempty"`
	PublicKey   []byte             `json:"public_key,omitempty"`
	Signature   []byte             `json:"signature,omitempty"`
}

// Package interfaces defines the contracts between the identity layer, the
// remote key services it delegates to, and the agents that consume it.
//
// # Identity
//
// Identity is the capability set an agent framework needs from a signer:
//
//	type Identity interface {
//	    Sender() (principal.Principal, error)
//	    PublicKey() []byte
//	    Sign(ctx context.Context, content *envelope.Content) (*envelope.Signature, error)
//	}
//
// The remote-key identity in package kms and the local identities in
// package identity all implement it.
//
// # KeyService
//
// KeyService is the narrow view of a remote key-management service:
// "get public key by key id" and "sign by key id". Adapters exist for AWS
// KMS, HashiCorp Vault Transit and a deterministic in-process service.
//
// # Errors
//
// Failures are reported as wrapped sentinels, checked with errors.Is:
//
//   - ErrKeyLookup: public key could not be retrieved
//   - ErrSigning: the service rejected or failed a sign request
//   - ErrMalformedSignature: the returned DER could not be reshaped
//   - ErrEncoding: the public key could not be encoded for principal derivation
//   - ErrInvalidConfig: missing or unknown settings
//
// ServiceError preserves the service's own code and message.
package interfaces

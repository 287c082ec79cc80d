package interfaces

import (
	"errors"

	"github.com/ruteri/kms-identity/cryptoutils"
)

var (
	// ErrKeyLookup is returned when the public key of a remote key cannot
	// be retrieved: service unreachable, unauthorized, unknown key, or a
	// response without a public key.
	ErrKeyLookup = errors.New("key lookup failed")

	// ErrSigning is returned when the remote service rejects or fails a
	// sign request. The identity stays usable.
	ErrSigning = errors.New("signing failed")

	// ErrInvalidConfig is returned for missing or contradictory settings.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrMalformedSignature is returned when the service's signature cannot
	// be converted to the raw 64-byte form.
	ErrMalformedSignature = cryptoutils.ErrMalformedSignature

	// ErrEncoding is returned when the public key cannot be encoded for
	// principal derivation.
	ErrEncoding = cryptoutils.ErrEncoding
)

// ServiceError carries the diagnostic returned by a remote key service.
type ServiceError struct {
	// Service names the backend, e.g. "aws-kms" or "vault-transit".
	Service string

	// Code is the service's error code or HTTP status, when known.
	Code string

	Message string

	// Err is the underlying client error.
	Err error
}

// Error implements error.
func (e *ServiceError) Error() string {
	if e.Code == "" {
		return e.Service + ": " + e.Message
	}
	return e.Service + ": " + e.Code + ": " + e.Message
}

// Unwrap returns the underlying transport or SDK error.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

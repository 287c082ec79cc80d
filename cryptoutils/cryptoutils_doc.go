// Package cryptoutils reshapes ECDSA material between the encodings used by
// remote key services and the encodings expected by the ledger protocol.
//
// Remote key services (AWS KMS, Vault Transit) return ECDSA signatures as a
// DER-encoded ASN.1 ECDSA-Sig-Value:
//
//	ECDSA-Sig-Value ::= SEQUENCE { r INTEGER, s INTEGER }
//
// The ledger protocol verifies signatures in a fixed-width raw form instead:
//
//	[r (32 bytes, big-endian, left zero padded)][s (32 bytes, big-endian, left zero padded)]
//
// # Signature Codec
//
// DERToRaw parses the ASN.1 container, strips the sign-padding byte DER adds
// to integers with the high bit set, restores leading zero bytes DER trimmed,
// and rejects integers that do not fit the field width. RawToDER is the
// inverse mapping, used when a raw signature has to be handed to tooling that
// speaks DER.
//
// # Public Keys
//
// ParseECPublicKey accepts either a SubjectPublicKeyInfo (as returned by AWS
// KMS GetPublicKey) or a bare SEC1 point, compressed or uncompressed, on
// secp256k1 or NIST P-256. ECPublicKey.MarshalSPKI re-encodes the key as
// SubjectPublicKeyInfo with an uncompressed point and the named curve OID,
// which is the form principals are derived from under the "spki" convention.
//
// # Errors
//
// Codec failures wrap ErrMalformedSignature, public key failures wrap
// ErrEncoding. Both are usable with errors.Is.
package cryptoutils

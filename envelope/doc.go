// Package envelope models the content of ledger requests and computes the
// request id that identities sign.
//
// The request id is the representation-independent hash of the request
// content map:
//
//	request_id = sha256( sorted( sha256(key) || hash(value) for each field ) concatenated )
//
// where blobs hash as their bytes, text as its UTF-8 bytes, natural numbers
// as their unsigned LEB128 encoding and arrays as the hash of the
// concatenation of their element hashes. The bytes handed to a signer are
// the domain separator "\x0Aic-request" followed by the 32-byte request id.
package envelope

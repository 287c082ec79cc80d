// Package identity provides identities that hold their key material in
// process: the anonymous identity, secp256k1 keys via go-ethereum and P-256
// keys via crypto/ecdsa. They implement the same interfaces.Identity
// contract as kms.KMSIdentity and are used for development and as local
// references when testing remote keys.
package identity

// Package kms implements a ledger identity whose private key lives in a
// remote key-management service.
//
// KMSIdentity implements interfaces.Identity:
//
//	// Sender derives the self-authenticating principal of the remote key.
//	Sender() (principal.Principal, error)
//
//	// PublicKey returns the public key fetched at construction.
//	PublicKey() []byte
//
//	// Sign signs the request id of content with the remote key.
//	Sign(ctx context.Context, content *envelope.Content) (*envelope.Signature, error)
//
// # Signing Flow
//
//  1. The request id of the content is computed and prefixed with the
//     "\x0Aic-request" domain separator.
//  2. In digest mode the bytes are hashed with SHA-256 locally; in message
//     mode they are sent as is and the service hashes them.
//  3. The service returns a DER ECDSA-Sig-Value, which is converted to the
//     64-byte r||s form (cryptoutils.DERToRaw).
//  4. The signature is returned with the cached public key and no
//     delegations.
//
// The signing mode and the principal encoding are explicit options; a key
// provisioned for one mode rejects requests in the other at the service.
//
// # Key Services
//
// The package includes these interfaces.KeyService implementations:
//
//   - AWSKeyService: AWS KMS via aws-sdk-go (ECC_SECG_P256K1 and
//     ECC_NIST_P256 keys, SIGN_VERIFY usage)
//   - VaultTransitKeyService: HashiCorp Vault Transit (ecdsa-p256 keys)
//   - SimpleKeyService: deterministic in-process keys for development
//   - MockKeyService: testify mock
//
// A key service client may be shared by any number of identities.
//
// # Usage Example
//
//	svc, err := kms.NewAWSKeyServiceFromConfig(kms.AWSConfig{Region: "eu-central-1"}, logger)
//	if err != nil {
//	    log.Fatalf("Failed to create key service: %v", err)
//	}
//
//	id, err := kms.NewKMSIdentity(ctx, svc, "alias/treasury", kms.Options{
//	    SigningMode:       interfaces.SigningModeDigest,
//	    PrincipalEncoding: principal.EncodingRaw,
//	})
//	if err != nil {
//	    log.Fatalf("Failed to load identity: %v", err)
//	}
//
//	sender, _ := id.Sender()
//	sig, err := id.Sign(ctx, envelope.NewCall(sender, canister, "transfer", arg, expiry))
package kms

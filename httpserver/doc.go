/*
Package httpserver implements the signer sidecar: an HTTP API that lets
agents in other processes or languages use the configured identities
without access to the key service credentials.

# API

	GET  /api/v1/identities                    list of {name, key_id, principal}
	GET  /api/v1/identities/{name}/principal   sender principal in textual form
	GET  /api/v1/identities/{name}/public_key  hex encoded public key
	POST /api/v1/identities/{name}/sign        sign request content

The sign endpoint accepts envelope.ContentJSON. The sender is always the
identity's principal; a missing ingress_expiry defaults to five minutes
from now and a missing nonce is filled with a random 16-byte value. The
response carries the request id, the sender, the public key and the raw
64-byte signature, all hex encoded except the sender.

# Errors

Errors are returned as plain text with a status code:

  - 400 for malformed or invalid request content
  - 404 for unknown identities
  - 502 when the key service rejects or fails the request or returns an
    unusable signature
  - 500 when the principal cannot be derived
  - 504 when the key service did not answer in time

# Operations

/livez, /readyz, /drain and /undrain follow the usual load balancer
contract. Metrics are served on a separate listener, pprof under /debug
when enabled.
*/
package httpserver

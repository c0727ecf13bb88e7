// Package transport delivers analytics payloads to the collection server.
//
// HTTPTransport implements analytics.Transport. Each Submit posts the payload
// once per attempt with a bearer token:
//
//	POST <endpoint>
//	Authorization: Bearer <token>
//	Content-Type: application/json | application/x-protobuf
//	X-PPAC-Force: true            (forced submissions only)
//	X-PPAC-Signature: sha256=...  (when a signing secret is configured)
//
// Network errors, 5xx and 429 responses are retried with exponential
// backoff; other 4xx responses fail immediately. The protobuf encoding wraps
// the JSON document in a google.protobuf.Struct.
package transport

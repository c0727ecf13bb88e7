// Package httputil holds the JSON request/response helpers and middleware
// used by the agent's HTTP API.
//
// Errors are always written as {"error": "..."}:
//
//	httputil.WriteBadRequest(w, "unknown event type")
//
// Request bodies are decoded strictly:
//
//	var req ConsentRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
// Middleware composes with Chain, outermost first:
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
//
// RequestIDMiddleware stores the ID with observability.WithRequestID so
// loggers built with observability.FromContext carry it.
package httputil

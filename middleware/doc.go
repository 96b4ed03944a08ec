// Package middleware holds the HTTP middleware of the authkit service.
//
//   - [Guard] verifies a bearer access token through the engine and puts the
//     payload in the request context.
//   - [RequireClientKey] admits only callers presenting the shared client key.
//   - [RequestContext] copies client IP and user agent into the context the
//     engine reads and attaches a request-scoped logger.
//   - [AccessLog] logs one line per request.
//
// # What this package must NOT do
//
//   - Parse or sign JWTs itself (the engine does).
//   - Touch storage.
package middleware

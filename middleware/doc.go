// Package middleware adapts [authcore.Engine] to net/http.
//
// # Handlers
//
//   - [ClientContext] records client IP and User-Agent for unauthenticated routes.
//   - [Guard] authenticates the bearer token and stores the result in the context.
//   - [RequireRole] restricts a guarded route to a set of roles.
//
// The package only translates HTTP into engine calls. Token parsing, session
// checks and revocation all happen inside Engine.Authenticate.
package middleware

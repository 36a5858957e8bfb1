// Package rate implements the per-(endpoint, client) attempt counter shared by
// login, registration, password reset, MFA and wallet endpoints.
//
// # Window semantics
//
// Each check increments "rate_limit:{endpoint}:{client}". The first hit of a window
// attaches an expiry equal to the window; once the counter exceeds the policy
// maximum every further call is rejected until the key expires. Keys are
// independent, so abuse of one endpoint never throttles another and one client
// never throttles another.
//
// # Store failures
//
// A failed increment fails open: the decision is allowed and the error is returned
// alongside it so the caller can log it.
//
// # What this package must NOT do
//
//   - Decide which endpoints are limited or with which policy (root Config does).
//   - Be imported outside the authcore module.
package rate

// Package session is the registry of logged-in devices.
//
// Each [Session] is bound to the SHA-256 digest of the access token it was
// issued with and expires on a rolling window (24 hours by default) that is
// pushed forward by activity. Sessions are never deleted on logout: every
// invalidation sets ExpiresAt to the current time so the row stays available to
// audits. [Registry.Purge] removes rows whose expiry is older than a grace
// period and is driven by the background reaper.
//
// # Architecture boundaries
//
// This package owns session records and their lifetime. It does NOT validate
// tokens, blacklist them or revoke refresh tokens. The engine combines those
// with the sessions returned by the Invalidate methods.
//
// # What this package must NOT do
//
//   - Import authcore, jwt or refresh.
//   - Store plaintext tokens.
package session

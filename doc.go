// Package authcore is an authentication and account-security engine: password
// and wallet logins, TOTP and email MFA, rotating refresh tokens with reuse
// detection, a token blacklist, a session registry, rate limits and
// progressive account lockout.
//
// Build an [Engine] once with [New] and share it; its methods are safe for
// concurrent use. Hot, short-lived state (rate counters, blacklist cache,
// one-time codes) lives in Redis when [Builder.WithRedis] is given and in
// process memory otherwise. Durable state goes through the store interfaces
// registered on the [Builder]; store/postgres implements all of them.
//
// # Failure policy
//
// Checks that protect accounts fail closed: a lockout store error locks the
// login for a minute, and a blacklist or session lookup error rejects the
// bearer token. Checks that only add friction fail open: a rate limiter error
// allows the request. Both are counted in the engine metrics.
//
// # What this package must NOT do
//
//   - Expose Redis clients or store internals in its public API.
//   - Import httpapi, middleware or any exporter (they import authcore).
//   - Put plaintext passwords, codes or tokens into audit events or logs.
package authcore

// Package stores keeps the short-lived secrets of the authentication flows on
// the fast [kv.Store] tier: emailed one-time codes (MFA, email verification,
// password reset) and TOTP replay markers.
//
// # Design
//
// A code record is a versioned binary blob holding the SHA-256 of the code, the
// subject it was issued for and its own expiry. The kv TTL outlives the record
// expiry by a grace period so an expired code can be reported as expired rather
// than missing, and is removed when that happens. Wrong guesses are counted on a
// sibling key with an atomic increment; the code is destroyed once the limit is
// reached. Successful consumption uses GETDEL so a code is accepted at most once.
//
// # What this package must NOT do
//
//   - Import authcore or any sibling internal package other than kv.
//   - Store or log plaintext codes.
//   - Use non-constant-time comparisons for code matching.
package stores

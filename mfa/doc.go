// Package mfa holds the second-factor primitives: TOTP secrets and codes,
// provisioning URIs and single-use recovery codes.
//
// TOTP follows RFC 6238 with a 30 second step, six digits, HMAC-SHA1 and one
// step of tolerance on either side. [TOTP.Verify] reports the matched time
// step so callers can refuse a code that was already accepted once.
//
// Recovery codes are only ever shown once. Accounts persist [HashRecoveryCode]
// digests bound to the account id.
//
// # What this package must NOT do
//
//   - Persist secrets, codes or challenge state.
//   - Decide whether a login needs a second factor.
package mfa

// Package password verifies login secrets against stored hashes.
//
// # Formats
//
// New hashes are produced by the configured primary [Hasher], bcrypt by default.
// Argon2id hashes in PHC form
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// are still verified, and [Verifier.NeedsUpgrade] reports them so the caller can
// re-hash after the next successful login.
//
// # Sentinel credentials
//
// Wallet and OAuth accounts store a sentinel instead of a hash ([SentinelWallet],
// [SentinelOAuth]). [Verifier.Check] never feeds a sentinel to a hash function and
// never accepts a password for such an account; those accounts authenticate through
// their own flows.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Reveal whether an account exists. Callers without an account use
//     [Verifier.CheckMissing] to spend the same time as a real comparison.
package password

// Package refresh implements opaque rotating refresh tokens with family-chain
// reuse detection.
//
// # Storage
//
// A token is 32 random bytes, base64url encoded, and is shown to the client
// exactly once. Stores keep only its SHA-256 hex digest together with the
// family id of the rotation chain it belongs to and the digest of its parent.
//
// # Rotation and reuse
//
// [Service.Exchange] rotates a token: the presented entry is stamped as rotated
// and a child entry with the same family is inserted. Rotated entries stay in
// the store. Presenting an entry that already has a child is the replay signal:
// every entry of the family is flagged and revoked, and the caller receives a
// [*ReuseError] naming the sessions that must be logged out.
//
// # What this package must NOT do
//
//   - Persist or log plaintext tokens.
//   - Issue access tokens or touch sessions. The caller acts on [*ReuseError].
package refresh

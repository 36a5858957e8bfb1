// Package revocation is the dual-tier access-token blacklist.
//
// Entries are keyed by the SHA-256 hex digest of the token. [Store.Blacklist]
// writes the fast tier (a [kv.Store] key "blacklist:<digest>") and the durable
// tier, both expiring when the token itself would. [Store.IsBlacklisted] asks the
// fast tier first and the durable tier second.
//
// Lookups fail closed: if neither tier can give a definite "not revoked" answer
// the token is treated as revoked and the error wraps [ErrUnavailable].
package revocation

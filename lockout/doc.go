// Package lockout implements the per-account exponential-backoff lockout state
// machine.
//
// An account moves from unlocked to locked once its consecutive failed credential
// checks reach [Policy.Threshold]. The lock lasts
//
//	min(Base * 2^(attempts-Threshold), Cap)
//
// and is lifted by time alone. Only a verified successful credential check resets
// the counter, so every further failure after a lock expires produces a longer one.
//
// # Concurrency
//
// Counter updates go through [Store.Update], which implementations must serialize
// per account (a row lock in Postgres, a mutex in [MemoryStore]). Updates for
// different accounts never contend.
//
// # What this package must NOT do
//
//   - Compare passwords or know why an attempt failed.
//   - Decide what a store outage means. [Engine.Check] reports it and the caller
//     rejects the login.
package lockout

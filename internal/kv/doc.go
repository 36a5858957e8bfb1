// Package kv provides the fast, ephemeral tier used by authcore for counters,
// revocation cache entries and short-lived one-time codes.
//
// # Implementations
//
//   - [Redis] wraps a go-redis UniversalClient. Counters are incremented by a Lua
//     script so the window expiry is attached in the same round trip.
//   - [Memory] is an in-process map split into shards, each guarded by its own
//     mutex, for single-node deployments and tests.
//
// # What this package must NOT do
//
//   - Know about endpoints, accounts or tokens. Callers own the key layout.
//   - Retry failed store calls. Fail-open or fail-closed is decided by the caller.
package kv

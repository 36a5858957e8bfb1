// Package flows contains the request orchestrators behind the Engine's
// sign-in operations.
//
// Each Run function (RunLogin, RunVerifyMFA, RunWeb3, RunRefresh, RunLogout)
// takes a dependency struct of closures and returns a flow-local [Result].
// The Engine builds those structs once and maps results back to its public
// types, which keeps ordering and failure policy testable with fakes.
//
// # Architecture boundaries
//
// Flows decide the order of checks and which failures are fatal. They do not
// own stores, clocks or the audit dispatcher; all of that arrives through
// [Hooks] and the per-flow Deps.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authcore (to avoid import cycles).
//   - Perform I/O directly.
package flows

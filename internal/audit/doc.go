// Package audit relays security events to a sink off the request path.
//
// # Components
//
//   - [Event] is the record: who, from where, what happened and how it ended.
//   - [Sink] consumes events. Channel, JSON-lines, fan-out and no-op sinks are
//     provided here; the Postgres sink lives in store/postgres.
//   - [Dispatcher] buffers events and delivers them from one goroutine, either
//     dropping or blocking when the buffer is full.
//
// # What this package must NOT do
//
//   - Decide which events are emitted.
//   - Import authcore or any sibling internal package.
package audit

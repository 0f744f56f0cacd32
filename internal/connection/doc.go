// Package connection drives IS-05 point-to-point connections between
// senders and receivers found in the resource store.
//
// The Orchestrator resolves a receiver's owning node, derives its
// Connection API base from the node's advertised services, and issues a
// staged PATCH with immediate activation. Outcomes are cached per receiver
// as a Record, emitted to a notify.Sink and optionally persisted through a
// HistoryRepository.
//
// The Record cache is this client's belief, not the device's state. Use
// QueryState to read the active parameters back from the device.
package connection

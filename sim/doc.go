// Package sim provides the discrete-event scheduling kernel for the quantum
// network simulator.
//
// # Reading Guide
//
// Start with these files to understand the kernel:
//   - event.go: Event (time, priority, action) and the Action interface
//   - timeline.go: the per-process event loop, stop-time cutoff and cancellation
//   - rng.go: deterministic per-node random streams
//
// # Architecture
//
// The kernel knows nothing about quantum networking. Higher layers live in
// sub-packages:
//   - sim/parallel/: conservative synchronization of several timelines (sync and async modes)
//   - sim/resource/: memory bookkeeping, rules and the REQUEST/RESPONSE negotiation protocol
//   - sim/network/: nodes, channels, component registry and message delivery
//   - sim/protocol/: link-level protocols and rules driven by the resource manager
//   - sim/topology/: topology configuration, validation and construction
//   - sim/trace/: negotiation and synchronization trace records
//
// # Ordering
//
// Events run in (time, priority, insertion order). Two events with equal time and
// priority run in the order they were scheduled. Every cross-entity effect is an
// event at or after the current time, so an entity never observes its own future.
package sim

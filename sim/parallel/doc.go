// Package parallel runs one partition of a simulated network on its own
// sim.Timeline and keeps it causally consistent with the partitions owned by
// other processes.
//
// Entities are assigned to groups in a Registry. A Partition owns the entities
// of one group; anything it sends to a foreign entity leaves as an Envelope
// through a Broker, and must be timestamped at least one lookahead after the
// sender's clock. Two conservative schemes are provided:
//
//   - SyncTimeline: lock-step windows. Every round all partitions exchange
//     envelopes and their next event time through the broker barrier, then
//     execute events earlier than the global minimum plus the lookahead.
//   - AsyncTimeline: null messages. Every iteration each partition posts to
//     every peer a promise (the earliest time it could still send anything),
//     even when idle, and executes events earlier than the smallest promise it
//     has received. A finite stop time is required.
//
// The broker is either an in-process Hub, used when all partitions run in one
// process, or a Hub served over gRPC by BrokerServer and reached through
// RemoteBroker.
package parallel

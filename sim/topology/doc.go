// Package topology loads a network description from YAML and builds the part of
// it owned by one process: its timeline, local nodes, channels, foreign entities,
// BSM-to-router mapping, forwarding tables and link rules.
//
// A topology is identical for every process of a parallel run. Each process
// builds it with its own rank; nodes of other groups become foreign entities
// known only through the partition's registry.
package topology

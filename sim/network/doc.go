// Package network hosts the simulated nodes of one partition and moves
// messages between them.
//
// Every message is a Payload encoded as JSON with a kind tag. Local and remote
// deliveries take the same path: a message to a node of this partition is
// scheduled on the local timeline after the channel delay; a message to a
// foreign node leaves as a parallel.Envelope and is decoded on arrival.
// Payload kinds are registered once at init time with RegisterPayload.
package network

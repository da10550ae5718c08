// Package protocol holds the link-level workload driven by the resource manager:
// the entanglement-generation protocol, the BSM station that heralds it, and the
// expiry and reset protocols that recycle memories.
//
// None of this models physics beyond a success probability per attempt. It exists
// to exercise rule matching, negotiation and cross-partition message delivery.
package protocol

// Package trace provides trace recording for negotiation and synchronization analysis.
// This package has no dependencies on other sim/ packages. It stores pure data
// types, plus a SQLite store for persisting them.
package trace

// NegotiationStep names one step of the REQUEST/RESPONSE handshake.
type NegotiationStep string

const (
	StepWait      NegotiationStep = "wait"      // protocol queued passively
	StepRequest   NegotiationStep = "request"   // REQUEST sent
	StepAccept    NegotiationStep = "accept"    // REQUEST matched a waiting protocol
	StepDecline   NegotiationStep = "decline"   // REQUEST matched nothing
	StepApproved  NegotiationStep = "approved"  // approving RESPONSE received
	StepRejected  NegotiationStep = "rejected"  // rejecting RESPONSE received
	StepLocal     NegotiationStep = "local"     // protocol activated without a partner
	StepWithdrawn NegotiationStep = "withdrawn" // waiting protocol withdrawn
)

// NegotiationRecord captures a single negotiation step on one node.
type NegotiationRecord struct {
	Clock    int64
	Node     string
	Protocol string
	Step     NegotiationStep
	Peer     string // remote node or protocol reference, empty for local steps
}

// MemoryRecord captures a memory state change.
type MemoryRecord struct {
	Clock    int64
	Node     string
	Slot     int
	From     string
	To       string
	Protocol string // protocol that caused the change
}

// WindowRecord captures one synchronization round of a parallel timeline.
type WindowRecord struct {
	Group    int
	Round    uint64
	End      int64 // exclusive end of the window that was executed
	Executed int   // events executed in the window
	Outbound int   // envelopes sent to other partitions
	Inbound  int   // envelopes received from other partitions
}

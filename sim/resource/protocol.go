package resource

import "fmt"

// ProtocolRef is an opaque, serializable handle to a protocol on some node.
// Only the owning node's ResourceManager resolves it to a Protocol.
type ProtocolRef struct {
	Node string `json:"node"`
	Name string `json:"name"`
}

func (r ProtocolRef) String() string {
	return fmt.Sprintf("%s/%s", r.Node, r.Name)
}

// Protocol is a unit of negotiated work owned by one node.
// Names must be unique per node for the lifetime of the run.
type Protocol interface {
	Name() string
	// Kind identifies the protocol family, e.g. "generation".
	Kind() string
	// Status is the protocol's current self-reported state, evaluated by conditions.
	Status() string
	// RemoteNode is the node this protocol expects its partner on, or "".
	RemoteNode() string
	// SetPartner binds the remote counterpart chosen by negotiation.
	SetPartner(partner ProtocolRef)
	// Start is invoked once the protocol becomes active.
	Start() error
	// Release is invoked when negotiation fails or the protocol is withdrawn,
	// before its memories are returned.
	Release()
}

// AdmissionState tells which of the resource manager's sets holds a protocol.
type AdmissionState string

const (
	AdmissionPending  AdmissionState = "pending"
	AdmissionWaiting  AdmissionState = "waiting"
	AdmissionActive   AdmissionState = "active"
	AdmissionReleased AdmissionState = "released"
)

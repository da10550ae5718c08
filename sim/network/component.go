package network

import "fmt"

// Component is a named piece of hardware hosted by a node.
type Component interface {
	Name() string
}

// Photon is the classical record of a photon emitted from a memory slot.
type Photon struct {
	Node           string  `json:"node"`
	Slot           int     `json:"slot"`
	Protocol       string  `json:"protocol"`
	Partner        string  `json:"partner"` // node/name of the protocol paired with the emitter
	EmittedAt      int64   `json:"emitted_at"`
	Transmissivity float64 `json:"transmissivity"` // filled in by the quantum channel
}

// KindPhoton is the payload kind of photons crossing a quantum channel.
const KindPhoton = "network.photon"

// PhotonMessage carries a photon over a quantum channel.
type PhotonMessage struct {
	Photon Photon `json:"photon"`
}

// PayloadKind implements Payload.
func (*PhotonMessage) PayloadKind() string { return KindPhoton }

// BSMResult is one Bell-state measurement outcome.
type BSMResult struct {
	Time    int64     `json:"time"`
	Success bool      `json:"success"`
	Photons [2]Photon `json:"photons"`
}

// PhotonSource is a component that emits the photon entangled with a memory slot.
type PhotonSource interface {
	Component
	RetrievePhoton(index int) (Photon, error)
}

// BSMDevice is a component that measures photon pairs.
type BSMDevice interface {
	Component
	// BSMResult returns the outcomes measured since the detectors were last cleared.
	BSMResult() []BSMResult
	// ClearDetectors forgets every recorded outcome.
	ClearDetectors()
}

// ComponentAs returns the component of n named name if it has capability T.
func ComponentAs[T Component](n *Node, name string) (T, error) {
	var zero T
	c, ok := n.components[name]
	if !ok {
		return zero, fmt.Errorf("%w: %q on node %s", ErrMissingComponent, name, n.name)
	}
	typed, ok := c.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %q on node %s is %T, lacking the requested capability", ErrMissingComponent, name, n.name, c)
	}
	return typed, nil
}

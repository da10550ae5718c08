package protocol

import (
	"fmt"

	"github.com/inference-sim/qnet-sim/sim/network"
)

// MemoryArrayName is the component name under which a router hosts its memories.
const MemoryArrayName = "memory"

// MemoryArray is the quantum memory hardware of a router. Slot i backs memory i
// of the router's resource manager.
type MemoryArray struct {
	node          *network.Node
	size          int
	coherenceTime int64
	emitted       int
}

// NewMemoryArray creates size memories on node. A coherenceTime of zero means
// entanglement never decays.
func NewMemoryArray(node *network.Node, size int, coherenceTime int64) *MemoryArray {
	return &MemoryArray{node: node, size: size, coherenceTime: coherenceTime}
}

func (a *MemoryArray) Name() string { return MemoryArrayName }

// Size returns the number of slots.
func (a *MemoryArray) Size() int { return a.size }

// CoherenceTime returns how long an entangled slot stays usable, in ticks.
func (a *MemoryArray) CoherenceTime() int64 { return a.coherenceTime }

// Emitted returns the number of photons emitted so far.
func (a *MemoryArray) Emitted() int { return a.emitted }

// RetrievePhoton emits the photon entangled with slot index.
func (a *MemoryArray) RetrievePhoton(index int) (network.Photon, error) {
	if index < 0 || index >= a.size {
		return network.Photon{}, fmt.Errorf("%w: %d on node %s, valid [0, %d)", ErrSlotOutOfRange, index, a.node.Name(), a.size)
	}
	a.emitted++
	return network.Photon{
		Node:      a.node.Name(),
		Slot:      index,
		EmittedAt: a.node.Now(),
	}, nil
}

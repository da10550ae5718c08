package protocol

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/qnet-sim/sim/network"
	"github.com/inference-sim/qnet-sim/sim/resource"
)

// KindGeneration is the protocol kind of entanglement generation.
const KindGeneration = "generation"

// Entanglement generation states.
const (
	StatusWaiting  = "WAITING"  // waiting for the peer's REQUEST
	StatusPending  = "PENDING"  // REQUEST sent, no RESPONSE yet
	StatusEmitted  = "EMITTED"  // photon sent to the BSM node
	StatusDone     = "DONE"     // herald received
	StatusReleased = "RELEASED" // negotiation failed
)

// EntanglementGeneration tries once to entangle one memory with a memory of the
// neighboring router. Once paired, both sides emit a photon to the BSM node
// between them and wait for its herald.
type EntanglementGeneration struct {
	name    string
	links   *Links
	slot    int
	peer    string
	bsm     string
	partner resource.ProtocolRef
	status  string
}

func (p *EntanglementGeneration) Name() string { return p.name }

func (p *EntanglementGeneration) Kind() string { return KindGeneration }

func (p *EntanglementGeneration) Status() string { return p.status }

func (p *EntanglementGeneration) RemoteNode() string { return p.peer }

// Slot returns the memory the protocol works on.
func (p *EntanglementGeneration) Slot() int { return p.slot }

// Partner returns the paired protocol on the peer, once negotiated.
func (p *EntanglementGeneration) Partner() resource.ProtocolRef { return p.partner }

func (p *EntanglementGeneration) SetPartner(partner resource.ProtocolRef) { p.partner = partner }

// Start emits the memory's photon towards the BSM node.
func (p *EntanglementGeneration) Start() error {
	node := p.links.node
	src, err := network.ComponentAs[network.PhotonSource](node, MemoryArrayName)
	if err != nil {
		return err
	}
	photon, err := src.RetrievePhoton(p.slot)
	if err != nil {
		return err
	}
	photon.Protocol = p.name
	photon.Partner = p.partner.String()

	node.AddReceiver(p.name, p)
	p.status = StatusEmitted
	p.links.stats.Attempts++
	return node.SendPhoton(p.bsm, BSMStationName, photon)
}

// Release drops the protocol after a failed negotiation.
func (p *EntanglementGeneration) Release() {
	p.links.node.RemoveReceiver(p.name)
	p.status = StatusReleased
}

// ReceiveMessage handles the herald from the BSM node.
func (p *EntanglementGeneration) ReceiveMessage(src string, msg network.Payload) error {
	h, ok := msg.(*HeraldMessage)
	if !ok {
		return fmt.Errorf("%s: %w: %s", p.name, network.ErrUnknownMessageType, msg.PayloadKind())
	}
	node := p.links.node
	node.RemoveReceiver(p.name)
	p.status = StatusDone

	if !h.Result.Success {
		p.links.stats.Failures++
		return p.links.rm.Update(p, p.slot, resource.MemoryRaw)
	}
	var remote network.Photon
	for _, ph := range h.Result.Photons {
		if ph.Node != node.Name() {
			remote = ph
		}
	}
	p.links.stats.Successes++
	logrus.Debugf("[tick %012d] %s: slot %d entangled with %s[%d]", node.Now(), node.Name(), p.slot, remote.Node, remote.Slot)
	return p.links.rm.Entangle(p, p.slot, resource.RemoteMemory{Node: remote.Node, Slot: remote.Slot})
}

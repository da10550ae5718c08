package protocol

import (
	"github.com/inference-sim/qnet-sim/sim"
	"github.com/inference-sim/qnet-sim/sim/resource"
)

const (
	KindExpiry = "expiry"
	KindReset  = "reset"
)

// timedUpdate is a local protocol that moves its memory to a new state after a delay.
type timedUpdate struct {
	name  string
	kind  string
	links *Links
	slot  int
	after int64
	to    resource.MemoryState
	ev    *sim.Event
}

func (p *timedUpdate) Name() string                    { return p.name }
func (p *timedUpdate) Kind() string                    { return p.kind }
func (p *timedUpdate) Status() string                  { return "ACTIVE" }
func (p *timedUpdate) RemoteNode() string              { return "" }
func (p *timedUpdate) SetPartner(resource.ProtocolRef) {}

func (p *timedUpdate) Start() error {
	ev, err := p.links.node.Timeline().ScheduleAfter(p.after, sim.ActionFunc(func() error {
		if p.to == resource.MemoryExpired {
			p.links.stats.Expired++
		}
		return p.links.rm.Update(p, p.slot, p.to)
	}))
	p.ev = ev
	return err
}

func (p *timedUpdate) Release() {
	if p.ev != nil && p.ev.Queued() {
		_ = p.links.node.Timeline().Cancel(p.ev)
	}
}

// newExpiry returns a protocol that expires an entangled memory once its coherence time has passed.
func newExpiry(name string, links *Links, slot int, coherence int64) *timedUpdate {
	return &timedUpdate{name: name, kind: KindExpiry, links: links, slot: slot, after: coherence, to: resource.MemoryExpired}
}

// newReset returns a protocol that returns an expired memory to RAW at the current time.
func newReset(name string, links *Links, slot int) *timedUpdate {
	return &timedUpdate{name: name, kind: KindReset, links: links, slot: slot, to: resource.MemoryRaw}
}

package topology

import (
	"fmt"
	"sort"

	"github.com/inference-sim/qnet-sim/sim/network"
)

// plan is a topology with connections expanded into nodes and one-way channels.
type plan struct {
	nodes      []NodeConfig
	cchannels  []network.ClassicalChannel
	qchannels  []network.QuantumChannel
	bsmRouters map[string][]string // BSM node -> routers, in quantum channel order
}

// expand resolves classical and quantum connections. A meet-in-the-middle
// connection creates BSM.<node1>.<node2>.auto halfway between the routers; its
// classical channels take half the mean delay configured between the routers.
// Every BSM node gets a classical channel back to each router it serves.
func (c *Config) expand() plan {
	p := plan{
		nodes:      append([]NodeConfig(nil), c.Nodes...),
		bsmRouters: make(map[string][]string),
	}
	for _, ch := range c.CChannels {
		p.cchannels = append(p.cchannels, classical(ch.Src, ch.Dst, ch.Distance, ch.Delay))
	}
	for _, cc := range c.CConnections {
		p.cchannels = append(p.cchannels,
			classical(cc.Node1, cc.Node2, cc.Distance, cc.Delay),
			classical(cc.Node2, cc.Node1, cc.Distance, cc.Delay))
	}
	for _, qc := range c.QChannels {
		p.addQuantum(qc.Src, qc.Dst, qc.Distance, qc.Attenuation)
	}

	for _, q := range c.QConnections {
		if q.Type != MeetInTheMiddle {
			continue
		}
		half := q.Distance / 2
		delay := p.meanDelay(q.Node1, q.Node2) / 2
		if delay == 0 {
			delay = network.PropagationDelay(half)
		}
		bsm := fmt.Sprintf("BSM.%s.%s.auto", q.Node1, q.Node2)
		group := 0
		if n, ok := c.node(q.Node1); ok {
			group = n.Group
		}
		p.nodes = append(p.nodes, NodeConfig{Name: bsm, Type: string(network.KindBSMNode), Group: group})
		for _, r := range []string{q.Node1, q.Node2} {
			p.addQuantum(r, bsm, half, q.Attenuation)
			p.cchannels = append(p.cchannels,
				network.ClassicalChannel{Src: r, Dst: bsm, Distance: half, Delay: delay},
				network.ClassicalChannel{Src: bsm, Dst: r, Distance: half, Delay: delay})
		}
	}

	for _, qc := range p.qchannels {
		if !p.hasClassical(qc.Dst, qc.Src) {
			p.cchannels = append(p.cchannels, network.ClassicalChannel{Src: qc.Dst, Dst: qc.Src, Distance: qc.Distance, Delay: qc.Delay})
		}
	}
	return p
}

func classical(src, dst string, distance float64, delay int64) network.ClassicalChannel {
	if delay == 0 {
		delay = network.PropagationDelay(distance)
	}
	return network.ClassicalChannel{Src: src, Dst: dst, Distance: distance, Delay: delay}
}

func (p *plan) addQuantum(src, dst string, distance, attenuation float64) {
	p.qchannels = append(p.qchannels, network.QuantumChannel{
		Src:         src,
		Dst:         dst,
		Distance:    distance,
		Attenuation: attenuation,
		Delay:       network.PropagationDelay(distance),
	})
	p.bsmRouters[dst] = append(p.bsmRouters[dst], src)
}

func (p *plan) hasClassical(src, dst string) bool {
	for _, ch := range p.cchannels {
		if ch.Src == src && ch.Dst == dst {
			return true
		}
	}
	return false
}

// meanDelay is the mean delay of the classical channels between a and b in either direction, or 0.
func (p *plan) meanDelay(a, b string) int64 {
	var sum, n int64
	for _, ch := range p.cchannels {
		if (ch.Src == a && ch.Dst == b) || (ch.Src == b && ch.Dst == a) {
			sum += ch.Delay
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / n
}

// neighbors returns, per router, the routers it shares a BSM node with.
func (p *plan) neighbors() map[string][]string {
	out := make(map[string][]string)
	for _, bsm := range p.bsmNames() {
		routers := p.bsmRouters[bsm]
		if len(routers) != 2 {
			continue
		}
		out[routers[0]] = append(out[routers[0]], routers[1])
		out[routers[1]] = append(out[routers[1]], routers[0])
	}
	return out
}

func (p *plan) bsmNames() []string {
	names := make([]string, 0, len(p.bsmRouters))
	for bsm := range p.bsmRouters {
		names = append(names, bsm)
	}
	sort.Strings(names)
	return names
}

func (p *plan) groupOf(name string) int {
	for _, n := range p.nodes {
		if n.Name == name {
			return n.Group
		}
	}
	return -1
}

// crossDelay returns the shortest delay of any channel whose ends live in different
// groups, and that channel. ok is false when no channel crosses groups.
func (p *plan) crossDelay() (delay int64, name string, ok bool) {
	consider := func(src, dst string, d int64, n string) {
		if p.groupOf(src) == p.groupOf(dst) {
			return
		}
		if !ok || d < delay {
			delay, name, ok = d, n, true
		}
	}
	for _, ch := range p.cchannels {
		consider(ch.Src, ch.Dst, ch.Delay, ch.String())
	}
	for _, qc := range p.qchannels {
		consider(qc.Src, qc.Dst, qc.Delay, qc.String())
	}
	return delay, name, ok
}

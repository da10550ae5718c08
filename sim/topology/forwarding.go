package topology

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/inference-sim/qnet-sim/sim/network"
)

// ForwardingTables computes, for every router, the next hop towards every other
// reachable router. Routers are adjacent when they share a BSM node; the edge
// weight is the fiber length from one router through the BSM node to the other.
// The topology must be valid.
func (c *Config) ForwardingTables() map[string]map[string]string {
	return forwardingTables(c.expand())
}

func forwardingTables(p plan) map[string]map[string]string {
	var routers []string
	for _, n := range p.nodes {
		if n.Type != string(network.KindQuantumRouter) {
			continue
		}
		routers = append(routers, n.Name)
	}
	sort.Strings(routers)
	ids := make(map[string]int64, len(routers))
	g := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	for i, r := range routers {
		ids[r] = int64(i)
		g.AddNode(simple.Node(i))
	}

	weight := make(map[string]float64)
	for _, qc := range p.qchannels {
		weight[qc.Dst] += qc.Distance
	}
	for _, bsm := range p.bsmNames() {
		ends := p.bsmRouters[bsm]
		if len(ends) != 2 {
			continue
		}
		u, okU := ids[ends[0]]
		v, okV := ids[ends[1]]
		if !okU || !okV || u == v {
			continue
		}
		w := weight[bsm]
		if existing, ok := g.Weight(u, v); ok && existing <= w {
			continue
		}
		g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(u), simple.Node(v), w))
	}

	tables := make(map[string]map[string]string, len(routers))
	for _, src := range routers {
		table := make(map[string]string)
		shortest := path.DijkstraFrom(simple.Node(ids[src]), g)
		for _, dst := range routers {
			if dst == src {
				continue
			}
			hops, _ := shortest.To(ids[dst])
			if len(hops) < 2 {
				continue
			}
			table[dst] = routers[hops[1].ID()]
		}
		tables[src] = table
	}
	return tables
}

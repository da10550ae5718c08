package topology

import (
	"errors"
	"fmt"
	"math"

	"github.com/inference-sim/qnet-sim/sim"
	"github.com/inference-sim/qnet-sim/sim/network"
)

// ErrInvalidTopology wraps every validation failure.
var ErrInvalidTopology = errors.New("invalid topology")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTopology, fmt.Sprintf(format, args...))
}

// Validate checks the topology. Errors name the offending entry.
func (c *Config) Validate() error {
	if c.StopTime < 0 {
		return invalid("stop_time must be non-negative, got %d", c.StopTime)
	}
	if c.Lookahead < 0 {
		return invalid("lookahead must be non-negative, got %d", c.Lookahead)
	}
	if err := c.validateGroups(); err != nil {
		return err
	}
	names := make(map[string]string, len(c.Nodes))
	for i, n := range c.Nodes {
		if err := c.validateNode(i, n, names); err != nil {
			return err
		}
		names[n.Name] = n.Type
	}
	for i, qc := range c.QChannels {
		prefix := fmt.Sprintf("qchannels[%d] (%s -> %s)", i, qc.Src, qc.Dst)
		if err := requireType(prefix, "src", qc.Src, names, network.KindQuantumRouter); err != nil {
			return err
		}
		if err := requireType(prefix, "dst", qc.Dst, names, network.KindBSMNode); err != nil {
			return err
		}
		if err := validateFiber(prefix, qc.Distance, qc.Attenuation); err != nil {
			return err
		}
	}
	for i, ch := range c.CChannels {
		prefix := fmt.Sprintf("cchannels[%d] (%s -> %s)", i, ch.Src, ch.Dst)
		if err := validateClassical(prefix, ch.Src, ch.Dst, ch.Distance, ch.Delay, names); err != nil {
			return err
		}
	}
	for i, cc := range c.CConnections {
		prefix := fmt.Sprintf("cconnections[%d] (%s <-> %s)", i, cc.Node1, cc.Node2)
		if err := validateClassical(prefix, cc.Node1, cc.Node2, cc.Distance, cc.Delay, names); err != nil {
			return err
		}
	}
	for i, q := range c.QConnections {
		prefix := fmt.Sprintf("qconnections[%d] (%s <-> %s)", i, q.Node1, q.Node2)
		if c.IsParallel {
			return invalid("%s: quantum connections are only supported by sequential runs", prefix)
		}
		if !validConnectionTypes[q.Type] {
			return invalid("%s: unknown type %q; valid: %s", prefix, q.Type, MeetInTheMiddle)
		}
		if q.Node1 == q.Node2 {
			return invalid("%s: connects a node to itself", prefix)
		}
		for _, end := range []string{q.Node1, q.Node2} {
			if err := requireType(prefix, "node", end, names, network.KindQuantumRouter); err != nil {
				return err
			}
		}
		if err := validateFiber(prefix, q.Distance, q.Attenuation); err != nil {
			return err
		}
	}

	p := c.expand()
	for _, n := range p.nodes {
		if n.Type != string(network.KindBSMNode) {
			continue
		}
		routers := p.bsmRouters[n.Name]
		if len(routers) != 2 || routers[0] == routers[1] {
			return invalid("BSM node %s: served by routers %v; want exactly 2 distinct routers", n.Name, routers)
		}
	}
	if c.IsParallel {
		if _, err := c.lookahead(p); err != nil {
			return err
		}
	}
	if c.StopTime == 0 {
		if reason := p.rearms(); reason != "" {
			return invalid("stop_time is required: %s, so link generation never settles", reason)
		}
	}
	return nil
}

// rearms names the first entry whose memories keep cycling through the link
// rules: a router with a coherence time, or a lossy channel from a router with memories.
func (p plan) rearms() string {
	memories := make(map[string]int, len(p.nodes))
	for _, n := range p.nodes {
		memories[n.Name] = n.MemoSize
		if n.MemoSize > 0 && n.CoherenceTime > 0 {
			return fmt.Sprintf("node %s has coherence_time %d", n.Name, n.CoherenceTime)
		}
	}
	for _, qc := range p.qchannels {
		if memories[qc.Src] > 0 && qc.Attenuation > 0 {
			return fmt.Sprintf("quantum channel %s -> %s has attenuation %g", qc.Src, qc.Dst, qc.Attenuation)
		}
	}
	return ""
}

func (c *Config) validateGroups() error {
	if !c.IsParallel {
		if c.ProcessNum > 1 {
			return invalid("process_num %d requires is_parallel", c.ProcessNum)
		}
		if len(c.Groups) > 0 {
			return invalid("groups: only allowed with is_parallel")
		}
		return nil
	}
	if c.ProcessNum < 1 {
		return invalid("process_num must be positive, got %d", c.ProcessNum)
	}
	if len(c.Groups) != c.ProcessNum {
		return invalid("groups: %d entries for process_num %d", len(c.Groups), c.ProcessNum)
	}
	for i, g := range c.Groups {
		if !validTimelineTypes[g.Type] {
			return invalid("groups[%d]: unknown type %q; valid: %s, %s", i, g.Type, TimelineAsync, TimelineSync)
		}
		if g.Type != c.Groups[0].Type {
			return invalid("groups[%d]: type %q differs from groups[0] type %q", i, g.Type, c.Groups[0].Type)
		}
	}
	if c.Groups[0].Type == TimelineAsync && c.StopTime == 0 {
		return invalid("async timelines require a stop_time")
	}
	return nil
}

func (c *Config) validateNode(i int, n NodeConfig, seen map[string]string) error {
	if n.Name == "" {
		return invalid("nodes[%d]: name is required", i)
	}
	prefix := fmt.Sprintf("nodes[%d] (%s)", i, n.Name)
	if _, dup := seen[n.Name]; dup {
		return invalid("%s: duplicate name", prefix)
	}
	if !validNodeTypes[n.Type] {
		return invalid("%s: unknown type %q; valid: %s, %s", prefix, n.Type, network.KindBSMNode, network.KindQuantumRouter)
	}
	if n.Group < 0 || n.Group >= c.Processes() {
		return invalid("%s: group %d out of range [0, %d)", prefix, n.Group, c.Processes())
	}
	if n.MemoSize < 0 {
		return invalid("%s: memo_size must be non-negative, got %d", prefix, n.MemoSize)
	}
	if n.CoherenceTime < 0 {
		return invalid("%s: coherence_time must be non-negative, got %d", prefix, n.CoherenceTime)
	}
	if n.Type == string(network.KindBSMNode) && n.MemoSize > 0 {
		return invalid("%s: BSM nodes have no memories", prefix)
	}
	return nil
}

func requireType(prefix, field, name string, types map[string]string, want network.NodeKind) error {
	got, ok := types[name]
	if !ok {
		return invalid("%s: unknown %s node %q", prefix, field, name)
	}
	if got != string(want) {
		return invalid("%s: %s node %q is a %s, want %s", prefix, field, name, got, want)
	}
	return nil
}

func validateFiber(prefix string, distance, attenuation float64) error {
	if !isFiniteNonNegative(distance) {
		return invalid("%s: distance must be a finite non-negative number, got %v", prefix, distance)
	}
	if !isFiniteNonNegative(attenuation) {
		return invalid("%s: attenuation must be a finite non-negative number, got %v", prefix, attenuation)
	}
	return nil
}

func validateClassical(prefix, src, dst string, distance float64, delay int64, types map[string]string) error {
	for _, end := range []string{src, dst} {
		if _, ok := types[end]; !ok {
			return invalid("%s: unknown node %q", prefix, end)
		}
	}
	if src == dst {
		return invalid("%s: connects a node to itself", prefix)
	}
	if !isFiniteNonNegative(distance) {
		return invalid("%s: distance must be a finite non-negative number, got %v", prefix, distance)
	}
	if delay < 0 {
		return invalid("%s: delay must be non-negative, got %d", prefix, delay)
	}
	return nil
}

func isFiniteNonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// lookahead returns the lookahead of a parallel run: the configured value, or
// the shortest cross-group channel delay when none is configured. Without any
// cross-group channel, partitions never exchange envelopes and the lookahead is unbounded.
func (c *Config) lookahead(p plan) (int64, error) {
	shortest, name, crosses := p.crossDelay()
	if !crosses {
		if c.Lookahead > 0 {
			return c.Lookahead, nil
		}
		return sim.Infinity, nil
	}
	if c.Lookahead > shortest {
		return 0, invalid("lookahead %d exceeds the delay %d of cross-group channel %s", c.Lookahead, shortest, name)
	}
	if c.Lookahead > 0 {
		return c.Lookahead, nil
	}
	if shortest == 0 {
		return 0, invalid("cross-group channel %s has no delay; parallel runs need a positive lookahead", name)
	}
	return shortest, nil
}

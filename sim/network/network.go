package network

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/qnet-sim/sim"
	"github.com/inference-sim/qnet-sim/sim/parallel"
)

// Stats counts message traffic of one network.
type Stats struct {
	Sent      int
	Remote    int
	Delivered int
}

// Network is the set of nodes owned by one partition, plus the channels leaving them.
type Network struct {
	tl        *sim.Timeline
	partition *parallel.Partition // nil in sequential runs

	nodes     map[string]*Node
	cchannels map[route]ClassicalChannel
	qchannels map[route]QuantumChannel

	stats Stats
}

// New creates a network on tl. With a non-nil partition, messages to foreign
// nodes are sent through it and inbound envelopes are delivered here.
func New(tl *sim.Timeline, partition *parallel.Partition) *Network {
	net := &Network{
		tl:        tl,
		partition: partition,
		nodes:     make(map[string]*Node),
		cchannels: make(map[route]ClassicalChannel),
		qchannels: make(map[route]QuantumChannel),
	}
	if partition != nil {
		partition.SetDeliverer(net)
	}
	return net
}

// Timeline returns the timeline driving the network.
func (net *Network) Timeline() *sim.Timeline { return net.tl }

// Partition returns the partition the network belongs to, or nil.
func (net *Network) Partition() *parallel.Partition { return net.partition }

// Stats returns the traffic counters.
func (net *Network) Stats() Stats { return net.stats }

// AddNode adds a local node and registers it as a timeline entity.
func (net *Network) AddNode(n *Node) error {
	if _, ok := net.nodes[n.name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateNode, n.name)
	}
	if err := net.tl.AddEntity(n); err != nil {
		return err
	}
	n.net = net
	net.nodes[n.name] = n
	return nil
}

// Node returns the local node named name, or nil.
func (net *Network) Node(name string) *Node { return net.nodes[name] }

// Nodes returns the local nodes sorted by name.
func (net *Network) Nodes() []*Node {
	out := make([]*Node, 0, len(net.nodes))
	for _, n := range net.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// AddClassicalChannel adds a channel. Its source must be a local node.
func (net *Network) AddClassicalChannel(ch ClassicalChannel) error {
	if _, ok := net.nodes[ch.Src]; !ok {
		return fmt.Errorf("%s: %w: source %q is not local", ch, ErrUnknownNode, ch.Src)
	}
	net.cchannels[route{ch.Src, ch.Dst}] = ch
	return nil
}

// AddQuantumChannel adds a channel. Its source must be a local node.
func (net *Network) AddQuantumChannel(ch QuantumChannel) error {
	if _, ok := net.nodes[ch.Src]; !ok {
		return fmt.Errorf("%s: %w: source %q is not local", ch, ErrUnknownNode, ch.Src)
	}
	net.qchannels[route{ch.Src, ch.Dst}] = ch
	return nil
}

// ClassicalChannel returns the classical channel from src to dst.
func (net *Network) ClassicalChannel(src, dst string) (ClassicalChannel, bool) {
	ch, ok := net.cchannels[route{src, dst}]
	return ch, ok
}

// QuantumChannel returns the quantum channel from src to dst.
func (net *Network) QuantumChannel(src, dst string) (QuantumChannel, bool) {
	ch, ok := net.qchannels[route{src, dst}]
	return ch, ok
}

// transmit encodes msg and delivers it to receiver on dst after delay.
func (net *Network) transmit(src, dst, receiver string, msg Payload, delay int64) error {
	kind, body, err := EncodePayload(msg)
	if err != nil {
		return err
	}
	env := parallel.Envelope{
		Time:     net.tl.Now() + delay,
		Src:      src,
		Dst:      dst,
		Receiver: receiver,
		Kind:     kind,
		Body:     body,
	}
	net.stats.Sent++
	if _, local := net.nodes[dst]; local {
		return net.tl.Schedule(sim.NewEvent(env.Time, sim.ActionFunc(func() error {
			return net.Deliver(env)
		})))
	}
	if net.partition == nil {
		return fmt.Errorf("send %s from %s: %w: %q", kind, src, ErrUnknownNode, dst)
	}
	net.stats.Remote++
	return net.partition.Send(env)
}

// Deliver decodes env and hands it to the addressed receiver. It implements parallel.Deliverer.
func (net *Network) Deliver(env parallel.Envelope) error {
	n, ok := net.nodes[env.Dst]
	if !ok {
		return fmt.Errorf("deliver %s: %w: %q", env.Kind, ErrUnknownNode, env.Dst)
	}
	msg, err := DecodePayload(env.Kind, env.Body)
	if err != nil {
		return fmt.Errorf("deliver to %s: %w", env.Dst, err)
	}
	net.stats.Delivered++
	logrus.Tracef("[tick %012d] %s -> %s/%s: %s", net.tl.Now(), env.Src, env.Dst, env.Receiver, env.Kind)
	return n.receive(env.Src, env.Receiver, msg)
}

package network

import (
	"fmt"
	"sort"

	"github.com/inference-sim/qnet-sim/sim"
	"github.com/inference-sim/qnet-sim/sim/resource"
)

// NodeKind is the type of a node in the topology.
type NodeKind string

const (
	// KindQuantumRouter hosts memories and a ResourceManager.
	KindQuantumRouter NodeKind = "QuantumRouter"
	// KindBSMNode hosts a Bell-state measurement station between two routers.
	KindBSMNode NodeKind = "BSMNode"
)

// Receiver consumes messages addressed to one named receiver on a node.
type Receiver interface {
	ReceiveMessage(src string, msg Payload) error
}

// ReceiverFunc adapts a function to the Receiver interface.
type ReceiverFunc func(src string, msg Payload) error

// ReceiveMessage calls f.
func (f ReceiverFunc) ReceiveMessage(src string, msg Payload) error { return f(src, msg) }

// Node is a simulated network node. It is registered on its network's timeline
// as an entity and initialized before time zero.
type Node struct {
	name string
	kind NodeKind
	net  *Network
	rng  *sim.PartitionedRNG

	components map[string]Component
	receivers  map[string]Receiver
	forwarding map[string]string // destination router -> next hop
	rm         *resource.ResourceManager

	bsmByPeer map[string]string // routers: neighbor router -> BSM node between them
	routers   []string          // BSM nodes: the two routers served

	initHooks []func() error
}

// NewNode creates a node whose random streams derive from seed.
func NewNode(name string, kind NodeKind, seed int64) *Node {
	return &Node{
		name:       name,
		kind:       kind,
		rng:        sim.NewPartitionedRNG(sim.NewSimulationKey(seed)),
		components: make(map[string]Component),
		receivers:  make(map[string]Receiver),
		forwarding: make(map[string]string),
		bsmByPeer:  make(map[string]string),
	}
}

func (n *Node) Name() string { return n.name }

// Kind returns the node type.
func (n *Node) Kind() NodeKind { return n.kind }

// RNG returns the node's random streams.
func (n *Node) RNG() *sim.PartitionedRNG { return n.rng }

// Network returns the network the node was added to, or nil.
func (n *Node) Network() *Network { return n.net }

// Timeline returns the timeline driving the node.
func (n *Node) Timeline() *sim.Timeline { return n.net.tl }

// Now returns the current simulation time.
func (n *Node) Now() int64 { return n.net.tl.Now() }

// OnInit registers fn to run when the node is initialized, after every hook registered before it.
func (n *Node) OnInit(fn func() error) {
	n.initHooks = append(n.initHooks, fn)
}

// Init runs the init hooks in registration order.
func (n *Node) Init() error {
	for _, fn := range n.initHooks {
		if err := fn(); err != nil {
			return fmt.Errorf("node %s: %w", n.name, err)
		}
	}
	return nil
}

// EnableResourceManager gives the node memorySize memories managed by a
// ResourceManager, reachable by other nodes under resource.ReceiverName.
func (n *Node) EnableResourceManager(memorySize int, conditions *resource.ConditionRegistry) *resource.ResourceManager {
	n.rm = resource.NewResourceManager(rmHost{n}, memorySize, conditions)
	rm := n.rm
	n.receivers[resource.ReceiverName] = ReceiverFunc(func(src string, msg Payload) error {
		return rm.ReceiveMessage(src, msg)
	})
	return n.rm
}

// ResourceManager returns the node's resource manager, or nil.
func (n *Node) ResourceManager() *resource.ResourceManager { return n.rm }

// AddComponent registers c under its name.
func (n *Node) AddComponent(c Component) error {
	if _, ok := n.components[c.Name()]; ok {
		return fmt.Errorf("%w: %q on node %s", ErrDuplicateComponent, c.Name(), n.name)
	}
	n.components[c.Name()] = c
	return nil
}

// Component returns the component registered under name.
func (n *Node) Component(name string) (Component, bool) {
	c, ok := n.components[name]
	return c, ok
}

// AddReceiver registers r under name, replacing any receiver of that name.
func (n *Node) AddReceiver(name string, r Receiver) {
	n.receivers[name] = r
}

// RemoveReceiver unregisters name.
func (n *Node) RemoveReceiver(name string) {
	delete(n.receivers, name)
}

// SendMessage sends msg to receiver on dst over the classical channel from this node.
func (n *Node) SendMessage(dst, receiver string, msg Payload) error {
	ch, ok := n.net.cchannels[route{n.name, dst}]
	if !ok {
		return fmt.Errorf("%w: classical %s -> %s", ErrNoChannel, n.name, dst)
	}
	return n.net.transmit(n.name, dst, receiver, msg, ch.Delay)
}

// SendPhoton sends photon to receiver on dst over the quantum channel from this
// node, stamping it with the channel's transmissivity.
func (n *Node) SendPhoton(dst, receiver string, photon Photon) error {
	ch, ok := n.net.qchannels[route{n.name, dst}]
	if !ok {
		return fmt.Errorf("%w: quantum %s -> %s", ErrNoChannel, n.name, dst)
	}
	photon.Transmissivity = ch.Transmissivity()
	return n.net.transmit(n.name, dst, receiver, &PhotonMessage{Photon: photon}, ch.Delay)
}

// AddForwardingRule routes traffic for dst through nextHop.
func (n *Node) AddForwardingRule(dst, nextHop string) {
	n.forwarding[dst] = nextHop
}

// NextHop returns the next hop towards dst.
func (n *Node) NextHop(dst string) (string, bool) {
	hop, ok := n.forwarding[dst]
	return hop, ok
}

// ForwardingTable returns a copy of the forwarding table.
func (n *Node) ForwardingTable() map[string]string {
	out := make(map[string]string, len(n.forwarding))
	for k, v := range n.forwarding {
		out[k] = v
	}
	return out
}

// AddBSMNode records that bsm sits between this router and peer.
func (n *Node) AddBSMNode(bsm, peer string) {
	n.bsmByPeer[peer] = bsm
}

// BSMNodeFor returns the BSM node between this router and peer.
func (n *Node) BSMNodeFor(peer string) (string, bool) {
	bsm, ok := n.bsmByPeer[peer]
	return bsm, ok
}

// Neighbors returns the routers this router shares a BSM node with, sorted.
func (n *Node) Neighbors() []string {
	out := make([]string, 0, len(n.bsmByPeer))
	for peer := range n.bsmByPeer {
		out = append(out, peer)
	}
	sort.Strings(out)
	return out
}

// SetRouters records the two routers a BSM node serves.
func (n *Node) SetRouters(routers []string) {
	n.routers = append([]string(nil), routers...)
}

// Routers returns the routers a BSM node serves.
func (n *Node) Routers() []string { return append([]string(nil), n.routers...) }

func (n *Node) receive(src, receiver string, msg Payload) error {
	r, ok := n.receivers[receiver]
	if !ok {
		return fmt.Errorf("%w: %q on node %s (message %s from %s)", ErrUnknownReceiver, receiver, n.name, msg.PayloadKind(), src)
	}
	return r.ReceiveMessage(src, msg)
}

// rmHost adapts a Node to resource.Host.
type rmHost struct {
	n *Node
}

func (h rmHost) Name() string { return h.n.name }
func (h rmHost) Now() int64   { return h.n.Now() }
func (h rmHost) SendMessage(dst, receiver string, msg resource.Message) error {
	return h.n.SendMessage(dst, receiver, msg)
}

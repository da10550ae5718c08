package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/qnet-sim/sim"
	"github.com/inference-sim/qnet-sim/sim/network"
	"github.com/inference-sim/qnet-sim/sim/resource"
)

type linkFixture struct {
	net    *network.Network
	a, b   *network.Node
	m      *network.Node
	la, lb *Links
	bsm    *BSMStation
}

// newLinkFixture builds routers a and b with a BSM node m between them.
// Classical a <-> b takes 10 ticks, photons reach m after 5, heralds reach the routers after 5.
func newLinkFixture(t *testing.T, stop int64, slots int, attenuation float64, coherence int64) *linkFixture {
	t.Helper()
	net := network.New(sim.NewTimeline(stop), nil)
	f := &linkFixture{net: net}
	f.a = network.NewNode("a", network.KindQuantumRouter, 1)
	f.b = network.NewNode("b", network.KindQuantumRouter, 2)
	f.m = network.NewNode("m", network.KindBSMNode, 3)
	for _, n := range []*network.Node{f.a, f.b, f.m} {
		require.NoError(t, net.AddNode(n))
	}
	require.NoError(t, net.AddClassicalChannel(network.ClassicalChannel{Src: "a", Dst: "b", Delay: 10}))
	require.NoError(t, net.AddClassicalChannel(network.ClassicalChannel{Src: "b", Dst: "a", Delay: 10}))
	for _, r := range []string{"a", "b"} {
		require.NoError(t, net.AddQuantumChannel(network.QuantumChannel{Src: r, Dst: "m", Distance: 1000, Attenuation: attenuation, Delay: 5}))
		require.NoError(t, net.AddClassicalChannel(network.ClassicalChannel{Src: "m", Dst: r, Delay: 5}))
	}
	f.m.SetRouters([]string{"a", "b"})
	f.a.AddBSMNode("m", "b")
	f.b.AddBSMNode("m", "a")

	var err error
	f.bsm, err = InstallBSMStation(f.m)
	require.NoError(t, err)
	f.la = installRouter(t, f.a, "b", slots, coherence)
	f.lb = installRouter(t, f.b, "a", slots, coherence)
	return f
}

func installRouter(t *testing.T, n *network.Node, peer string, slots int, coherence int64) *Links {
	t.Helper()
	n.EnableResourceManager(slots, nil)
	require.NoError(t, n.AddComponent(NewMemoryArray(n, slots, coherence)))
	l, err := Install(n, []LinkSlice{{Peer: peer, First: 0, Count: slots}})
	require.NoError(t, err)
	return l
}

func (f *linkFixture) run(t *testing.T) {
	t.Helper()
	require.NoError(t, f.net.Timeline().Init())
	require.NoError(t, f.net.Timeline().Run())
}

func TestLinks_LosslessChannel_EntanglesEverySlotOnce(t *testing.T) {
	// GIVEN two routers with 2 slots each and lossless fiber, no decoherence
	f := newLinkFixture(t, 1000, 2, 0, 0)

	// WHEN the simulation runs
	f.run(t)

	// THEN slot i of a is entangled with slot i of b and vice versa
	for _, side := range []struct {
		node *network.Node
		peer string
	}{{f.a, "b"}, {f.b, "a"}} {
		for _, m := range side.node.ResourceManager().Memories() {
			require.Equal(t, resource.MemoryEntangled, m.State, "%s slot %d", side.node.Name(), m.Index)
			require.NotNil(t, m.Remote)
			assert.Equal(t, resource.RemoteMemory{Node: side.peer, Slot: m.Index}, *m.Remote)
			assert.Equal(t, int64(30), m.UpdatedAt)
		}
	}
	assert.Equal(t, LinkStats{Attempts: 2, Successes: 2}, f.la.Stats())
	assert.Equal(t, LinkStats{Attempts: 2, Successes: 2}, f.lb.Stats())
	assert.Equal(t, 2, f.bsm.Measured())
	assert.Equal(t, 2, f.bsm.Succeeded())
	assert.Len(t, f.bsm.BSMResult(), 1, "detectors are cleared before each measurement")
	assert.Zero(t, f.bsm.Buffered())
}

func TestLinks_OpaqueChannel_RetriesUntilStop(t *testing.T) {
	// GIVEN fiber so lossy that no pair can succeed, and a stop time at which
	// the last herald has just arrived: attempts start at 20+30k, heralds land at 30+30k
	f := newLinkFixture(t, 510, 1, 10, 0)

	// WHEN the simulation runs
	f.run(t)

	// THEN every attempt fails and the memory keeps returning to RAW for a new attempt
	assert.Equal(t, LinkStats{Attempts: 17, Failures: 17}, f.la.Stats())
	assert.Equal(t, 17, f.bsm.Measured())
	assert.Zero(t, f.bsm.Succeeded())
}

func TestLinks_OpaqueChannel_StopWithAttemptInFlight(t *testing.T) {
	// GIVEN the same fiber stopping at 500, after the attempt started at 500-20
	// but before its herald at 510
	f := newLinkFixture(t, 500, 1, 10, 0)

	// WHEN the simulation runs
	f.run(t)

	// THEN the in-flight attempt has no outcome
	stats := f.la.Stats()
	assert.Equal(t, 17, stats.Attempts)
	assert.Equal(t, stats.Attempts-1, stats.Failures)
}

func TestLinks_Decoherence_ExpiresAndRegenerates(t *testing.T) {
	// GIVEN lossless fiber and a coherence time of 50 ticks
	f := newLinkFixture(t, 1000, 2, 0, 50)

	// WHEN the simulation runs
	f.run(t)

	// THEN a round takes 80 ticks: entangled at 30+80k, expired and reset at 80+80k
	assert.Equal(t, LinkStats{Attempts: 26, Successes: 26, Expired: 24}, f.la.Stats())
	for _, m := range f.a.ResourceManager().Memories() {
		assert.Equal(t, resource.MemoryOccupied, m.State, "slot %d held by the expiry protocol", m.Index)
		assert.Equal(t, int64(990), m.UpdatedAt)
	}
}

func TestInstall_Failures(t *testing.T) {
	net := network.New(sim.NewTimeline(10), nil)
	bare := network.NewNode("bare", network.KindQuantumRouter, 1)
	require.NoError(t, net.AddNode(bare))
	_, err := Install(bare, nil)
	assert.ErrorIs(t, err, ErrNoResourceManager)

	r := network.NewNode("r", network.KindQuantumRouter, 2)
	require.NoError(t, net.AddNode(r))
	r.EnableResourceManager(2, nil)
	_, err = Install(r, nil)
	assert.ErrorIs(t, err, network.ErrMissingComponent)

	require.NoError(t, r.AddComponent(NewMemoryArray(r, 2, 0)))
	_, err = Install(r, []LinkSlice{{Peer: "x", First: 0, Count: 2}})
	assert.ErrorIs(t, err, ErrNoBSMNode)

	r.AddBSMNode("m", "x")
	_, err = Install(r, []LinkSlice{{Peer: "x", First: 1, Count: 2}})
	assert.ErrorIs(t, err, ErrSlotOutOfRange)
}

func TestPlanLinks_UsesSmallerShare(t *testing.T) {
	// GIVEN a hub with 4 memories and two spokes of different sizes
	memories := map[string]int{"a": 4, "b": 4, "c": 1}
	neighbors := map[string][]string{"a": {"c", "b"}, "b": {"a"}, "c": {"a"}}

	// WHEN links are planned
	plan := PlanLinks(memories, neighbors)

	// THEN each link uses the smaller share on both ends, packed in neighbor order
	assert.Equal(t, []LinkSlice{{Peer: "b", First: 0, Count: 2}, {Peer: "c", First: 2, Count: 1}}, plan["a"])
	assert.Equal(t, []LinkSlice{{Peer: "a", First: 0, Count: 2}}, plan["b"])
	assert.Equal(t, []LinkSlice{{Peer: "a", First: 0, Count: 1}}, plan["c"])
}

func TestBSMStation_RejectsUnservedRouter(t *testing.T) {
	net := network.New(sim.NewTimeline(10), nil)
	m := network.NewNode("m", network.KindBSMNode, 1)
	require.NoError(t, net.AddNode(m))
	m.SetRouters([]string{"a", "b"})
	s, err := InstallBSMStation(m)
	require.NoError(t, err)

	err = s.ReceiveMessage("z", &network.PhotonMessage{Photon: network.Photon{Node: "z"}})
	assert.ErrorIs(t, err, ErrUnexpectedPhoton)
	err = s.ReceiveMessage("a", &HeraldMessage{})
	assert.ErrorIs(t, err, network.ErrUnknownMessageType)

	require.NoError(t, s.ReceiveMessage("a", &network.PhotonMessage{Photon: network.Photon{Node: "a", Protocol: "p", Partner: "b/q"}}))
	assert.Equal(t, 1, s.Buffered())
	s.ClearDetectors()
	assert.Equal(t, 1, s.Buffered(), "waiting photons survive a detector reset")

	dev, err := network.ComponentAs[network.BSMDevice](m, BSMStationName)
	require.NoError(t, err)
	assert.Empty(t, dev.BSMResult())
}

func TestMemoryArray_RetrievePhoton(t *testing.T) {
	net := network.New(sim.NewTimeline(10), nil)
	r := network.NewNode("r", network.KindQuantumRouter, 1)
	require.NoError(t, net.AddNode(r))
	array := NewMemoryArray(r, 2, 0)

	ph, err := array.RetrievePhoton(1)
	require.NoError(t, err)
	assert.Equal(t, network.Photon{Node: "r", Slot: 1}, ph)
	assert.Equal(t, 1, array.Emitted())

	_, err = array.RetrievePhoton(2)
	assert.ErrorIs(t, err, ErrSlotOutOfRange)
}

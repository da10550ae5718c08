package network

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/qnet-sim/sim"
	"github.com/inference-sim/qnet-sim/sim/parallel"
	"github.com/inference-sim/qnet-sim/sim/resource"
)

type testPing struct {
	N int `json:"n"`
}

func (*testPing) PayloadKind() string { return "test.ping" }

func init() {
	RegisterPayload("test.ping", func() Payload { return &testPing{} })
}

// inbox records received messages with their arrival time.
type inbox struct {
	node  *Node
	times []int64
	srcs  []string
	msgs  []Payload
}

func (in *inbox) ReceiveMessage(src string, msg Payload) error {
	in.times = append(in.times, in.node.Now())
	in.srcs = append(in.srcs, src)
	in.msgs = append(in.msgs, msg)
	return nil
}

// newLine builds a -- b with classical channels of the given delay in both directions.
func newLine(t *testing.T, delay int64) (*Network, *Node, *Node) {
	t.Helper()
	net := New(sim.NewTimeline(sim.Infinity), nil)
	a := NewNode("a", KindQuantumRouter, 1)
	b := NewNode("b", KindQuantumRouter, 2)
	require.NoError(t, net.AddNode(a))
	require.NoError(t, net.AddNode(b))
	require.NoError(t, net.AddClassicalChannel(ClassicalChannel{Src: "a", Dst: "b", Delay: delay}))
	require.NoError(t, net.AddClassicalChannel(ClassicalChannel{Src: "b", Dst: "a", Delay: delay}))
	return net, a, b
}

func TestPayload_UnknownKind(t *testing.T) {
	_, err := DecodePayload("nope", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrUnknownMessageType)

	_, _, err = EncodePayload(bogusPayload{})
	assert.ErrorIs(t, err, ErrUnknownMessageType)
}

type bogusPayload struct{}

func (bogusPayload) PayloadKind() string { return "bogus" }

func TestPayload_ResourceMessagesRoundTrip(t *testing.T) {
	req := &resource.RequestMessage{
		Initiator: resource.ProtocolRef{Node: "a", Name: "eg.0"},
		Condition: resource.Condition{Kind: resource.ConditionPairing, Params: map[string]string{"kind": "generation"}},
	}

	kind, body, err := EncodePayload(req)
	require.NoError(t, err)
	got, err := DecodePayload(kind, body)
	require.NoError(t, err)

	assert.Equal(t, req, got)
}

func TestNode_SendMessage_ArrivesAfterChannelDelay(t *testing.T) {
	// GIVEN a -- b with a 25 tick classical channel
	net, a, b := newLine(t, 25)
	in := &inbox{node: b}
	b.AddReceiver("app", in)

	// WHEN a sends at time 10
	require.NoError(t, net.Timeline().Schedule(sim.NewEvent(10, sim.ActionFunc(func() error {
		return a.SendMessage("b", "app", &testPing{N: 7})
	}))))
	require.NoError(t, net.Timeline().Run())

	// THEN b receives a decoded copy at 35
	require.Len(t, in.msgs, 1)
	assert.Equal(t, []int64{35}, in.times)
	assert.Equal(t, []string{"a"}, in.srcs)
	assert.Equal(t, &testPing{N: 7}, in.msgs[0])
	assert.Equal(t, Stats{Sent: 1, Delivered: 1}, net.Stats())
}

func TestNode_SendMessage_PreservesOrderPerChannel(t *testing.T) {
	net, a, b := newLine(t, 5)
	in := &inbox{node: b}
	b.AddReceiver("app", in)

	require.NoError(t, net.Timeline().Schedule(sim.NewEvent(0, sim.ActionFunc(func() error {
		for i := 0; i < 3; i++ {
			if err := a.SendMessage("b", "app", &testPing{N: i}); err != nil {
				return err
			}
		}
		return nil
	}))))
	require.NoError(t, net.Timeline().Run())

	require.Len(t, in.msgs, 3)
	for i, m := range in.msgs {
		assert.Equal(t, i, m.(*testPing).N)
	}
}

func TestNode_SendMessage_Failures(t *testing.T) {
	net, a, _ := newLine(t, 5)
	require.NoError(t, net.AddNode(NewNode("c", KindQuantumRouter, 3)))

	assert.ErrorIs(t, a.SendMessage("c", "app", &testPing{}), ErrNoChannel)

	// An unknown receiver is fatal when the message arrives.
	require.NoError(t, a.SendMessage("b", "missing", &testPing{}))
	assert.ErrorIs(t, net.Timeline().Run(), ErrUnknownReceiver)
}

func TestNetwork_AddNode_Duplicate(t *testing.T) {
	net := New(sim.NewTimeline(10), nil)
	require.NoError(t, net.AddNode(NewNode("a", KindQuantumRouter, 1)))

	assert.ErrorIs(t, net.AddNode(NewNode("a", KindBSMNode, 2)), ErrDuplicateNode)
	assert.ErrorIs(t, net.AddClassicalChannel(ClassicalChannel{Src: "zz", Dst: "a"}), ErrUnknownNode)
}

func TestNetwork_ForeignNode_GoesThroughPartition(t *testing.T) {
	// GIVEN a local, b owned by another partition
	reg, err := parallel.NewRegistry(2)
	require.NoError(t, err)
	require.NoError(t, reg.Assign("a", 0))
	require.NoError(t, reg.Assign("b", 1))
	tl := sim.NewTimeline(100)
	p, err := parallel.NewPartition(tl, reg, parallel.NewHub(2, ""), parallel.Config{Group: 0, Lookahead: 10})
	require.NoError(t, err)
	net := New(tl, p)
	a := NewNode("a", KindQuantumRouter, 1)
	require.NoError(t, net.AddNode(a))
	require.NoError(t, net.AddClassicalChannel(ClassicalChannel{Src: "a", Dst: "b", Delay: 10}))
	in := &inbox{node: a}
	a.AddReceiver("app", in)

	// WHEN a sends to b
	require.NoError(t, a.SendMessage("b", "app", &testPing{N: 1}))

	// THEN the message leaves through the partition
	assert.Equal(t, 1, p.Stats().Outbound)
	assert.Equal(t, 1, net.Stats().Remote)

	// AND an envelope from b is delivered to a like a local message
	kind, body, err := EncodePayload(&testPing{N: 2})
	require.NoError(t, err)
	require.NoError(t, net.Deliver(parallel.Envelope{Time: 0, Src: "b", Dst: "a", Receiver: "app", Kind: kind, Body: body}))
	require.Len(t, in.msgs, 1)
	assert.Equal(t, 2, in.msgs[0].(*testPing).N)
}

func TestNetwork_ForeignChannelTooShort_IsLookaheadViolation(t *testing.T) {
	reg, _ := parallel.NewRegistry(2)
	require.NoError(t, reg.Assign("a", 0))
	require.NoError(t, reg.Assign("b", 1))
	tl := sim.NewTimeline(100)
	p, err := parallel.NewPartition(tl, reg, parallel.NewHub(2, ""), parallel.Config{Group: 0, Lookahead: 10})
	require.NoError(t, err)
	net := New(tl, p)
	a := NewNode("a", KindQuantumRouter, 1)
	require.NoError(t, net.AddNode(a))
	require.NoError(t, net.AddClassicalChannel(ClassicalChannel{Src: "a", Dst: "b", Delay: 3}))

	assert.ErrorIs(t, a.SendMessage("b", "app", &testPing{}), parallel.ErrLookaheadViolation)
}

func TestNode_SendPhoton_StampsTransmissivity(t *testing.T) {
	net := New(sim.NewTimeline(sim.Infinity), nil)
	a := NewNode("a", KindQuantumRouter, 1)
	m := NewNode("m", KindBSMNode, 2)
	require.NoError(t, net.AddNode(a))
	require.NoError(t, net.AddNode(m))
	require.NoError(t, net.AddQuantumChannel(QuantumChannel{Src: "a", Dst: "m", Distance: 1000, Attenuation: 0.0002, Delay: PropagationDelay(1000)}))
	in := &inbox{node: m}
	m.AddReceiver("bsm", in)

	require.NoError(t, a.SendPhoton("m", "bsm", Photon{Node: "a", Slot: 3}))
	require.NoError(t, net.Timeline().Run())

	require.Len(t, in.msgs, 1)
	assert.Equal(t, []int64{5_000_000}, in.times)
	photon := in.msgs[0].(*PhotonMessage).Photon
	assert.Equal(t, 3, photon.Slot)
	assert.InDelta(t, math.Pow(10, -0.02), photon.Transmissivity, 1e-12)
	assert.ErrorIs(t, m.SendPhoton("a", "x", Photon{}), ErrNoChannel)
}

type fakeDetector struct{ name string }

func (d fakeDetector) Name() string           { return d.name }
func (d fakeDetector) BSMResult() []BSMResult { return nil }
func (d fakeDetector) ClearDetectors()        {}

type plainComponent struct{ name string }

func (c plainComponent) Name() string { return c.name }

func TestComponentAs(t *testing.T) {
	n := NewNode("m", KindBSMNode, 1)
	require.NoError(t, n.AddComponent(fakeDetector{name: "bsm"}))
	require.NoError(t, n.AddComponent(plainComponent{name: "lamp"}))

	dev, err := ComponentAs[BSMDevice](n, "bsm")
	require.NoError(t, err)
	assert.Equal(t, "bsm", dev.Name())

	_, err = ComponentAs[BSMDevice](n, "lamp")
	assert.ErrorIs(t, err, ErrMissingComponent)
	_, err = ComponentAs[PhotonSource](n, "detector")
	assert.ErrorIs(t, err, ErrMissingComponent)
	assert.ErrorIs(t, n.AddComponent(plainComponent{name: "lamp"}), ErrDuplicateComponent)
}

func TestNode_ForwardingAndNeighbors(t *testing.T) {
	n := NewNode("r1", KindQuantumRouter, 1)
	n.AddForwardingRule("r3", "r2")
	n.AddBSMNode("m12", "r2")
	n.AddBSMNode("m01", "r0")

	hop, ok := n.NextHop("r3")
	assert.True(t, ok)
	assert.Equal(t, "r2", hop)
	assert.Equal(t, []string{"r0", "r2"}, n.Neighbors())
	bsm, _ := n.BSMNodeFor("r2")
	assert.Equal(t, "m12", bsm)
}

func TestPropagationDelay(t *testing.T) {
	assert.Equal(t, int64(5_000_000), PropagationDelay(1000))
	assert.Equal(t, int64(0), PropagationDelay(0))
}

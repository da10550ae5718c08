package protocol

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/qnet-sim/sim"
	"github.com/inference-sim/qnet-sim/sim/network"
)

// BSMStationName is the component and receiver name of a BSM node's station.
const BSMStationName = "bsm"

// KindHerald is the payload kind of measurement outcomes sent back to routers.
const KindHerald = "protocol.herald"

// HeraldMessage reports a Bell-state measurement to one of the two emitting protocols.
type HeraldMessage struct {
	Result network.BSMResult `json:"result"`
}

// PayloadKind implements network.Payload.
func (*HeraldMessage) PayloadKind() string { return KindHerald }

func init() {
	network.RegisterPayload(KindHerald, func() network.Payload { return &HeraldMessage{} })
}

// BSMStation pairs photons arriving from the two routers of a BSM node and
// heralds each pair. A pair succeeds with the product of the transmissivities
// of both arms, drawn from the node's herald stream. The detectors are cleared
// at the start of every measurement, so only the latest outcome is kept.
type BSMStation struct {
	node      *network.Node
	buffered  map[string]network.Photon // emitter ref -> photon waiting for its partner
	results   []network.BSMResult
	measured  int
	succeeded int
}

// InstallBSMStation adds a station to node as a component and a message receiver.
func InstallBSMStation(node *network.Node) (*BSMStation, error) {
	s := &BSMStation{node: node, buffered: make(map[string]network.Photon)}
	if err := node.AddComponent(s); err != nil {
		return nil, err
	}
	node.AddReceiver(BSMStationName, s)
	return s, nil
}

func (s *BSMStation) Name() string { return BSMStationName }

// BSMResult returns the outcomes measured since the detectors were last cleared.
func (s *BSMStation) BSMResult() []network.BSMResult {
	return append([]network.BSMResult(nil), s.results...)
}

// ClearDetectors forgets recorded outcomes. Photons waiting for a partner
// belong to later measurements and are kept.
func (s *BSMStation) ClearDetectors() {
	s.results = nil
}

// Measured returns the number of pairs measured over the whole run.
func (s *BSMStation) Measured() int { return s.measured }

// Succeeded returns the number of measurements that heralded entanglement.
func (s *BSMStation) Succeeded() int { return s.succeeded }

// Buffered returns the number of photons waiting for their partner.
func (s *BSMStation) Buffered() int { return len(s.buffered) }

// ReceiveMessage accepts a photon from one of the served routers.
func (s *BSMStation) ReceiveMessage(src string, msg network.Payload) error {
	pm, ok := msg.(*network.PhotonMessage)
	if !ok {
		return fmt.Errorf("bsm %s: %w: %s", s.node.Name(), network.ErrUnknownMessageType, msg.PayloadKind())
	}
	if !s.serves(src) {
		return fmt.Errorf("bsm %s: %w: %s (serves %v)", s.node.Name(), ErrUnexpectedPhoton, src, s.node.Routers())
	}
	photon := pm.Photon
	partner, ok := s.buffered[photon.Partner]
	if !ok {
		s.buffered[photon.Node+"/"+photon.Protocol] = photon
		return nil
	}
	delete(s.buffered, photon.Partner)
	return s.measure(partner, photon)
}

func (s *BSMStation) serves(router string) bool {
	for _, r := range s.node.Routers() {
		if r == router {
			return true
		}
	}
	return false
}

func (s *BSMStation) measure(first, second network.Photon) error {
	s.ClearDetectors()
	p := first.Transmissivity * second.Transmissivity
	result := network.BSMResult{
		Time:    s.node.Now(),
		Success: s.node.RNG().ForSubsystem(sim.SubsystemHerald).Float64() < p,
		Photons: [2]network.Photon{first, second},
	}
	s.results = append(s.results, result)
	s.measured++
	if result.Success {
		s.succeeded++
	}
	logrus.Debugf("[tick %012d] %s: measured %s/%s with %s/%s, success=%v",
		s.node.Now(), s.node.Name(), first.Node, first.Protocol, second.Node, second.Protocol, result.Success)
	for _, ph := range result.Photons {
		if err := s.node.SendMessage(ph.Node, ph.Protocol, &HeraldMessage{Result: result}); err != nil {
			return err
		}
	}
	return nil
}

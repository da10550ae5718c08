package topology

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/qnet-sim/sim"
	"github.com/inference-sim/qnet-sim/sim/network"
	"github.com/inference-sim/qnet-sim/sim/parallel"
	"github.com/inference-sim/qnet-sim/sim/protocol"
	"github.com/inference-sim/qnet-sim/sim/resource"
	"github.com/inference-sim/qnet-sim/sim/trace"
)

// ErrMissingBroker is returned when a parallel topology is built without a broker.
var ErrMissingBroker = errors.New("parallel topology needs a broker")

// Options selects which process of the topology to build.
type Options struct {
	Rank       int
	Broker     parallel.Broker // required for parallel topologies
	TraceLevel trace.TraceLevel
}

// Simulation is the part of a topology owned by one process.
type Simulation struct {
	cfg       *Config
	rank      int
	broker    parallel.Broker
	tl        *sim.Timeline
	net       *network.Network
	partition *parallel.Partition
	trace     *trace.SimulationTrace
	links     map[string]*protocol.Links
	stations  map[string]*protocol.BSMStation
}

// Build validates cfg and constructs the nodes of group opts.Rank.
func Build(cfg *Config, opts Options) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Rank < 0 || opts.Rank >= cfg.Processes() {
		return nil, fmt.Errorf("rank %d: %w, valid [0, %d)", opts.Rank, parallel.ErrGroupOutOfRange, cfg.Processes())
	}
	p := cfg.expand()

	stop := cfg.StopTime
	if stop == 0 {
		stop = sim.Infinity
	}
	s := &Simulation{
		cfg:      cfg,
		rank:     opts.Rank,
		broker:   opts.Broker,
		tl:       sim.NewTimeline(stop),
		trace:    trace.NewSimulationTrace(trace.TraceConfig{Level: opts.TraceLevel, Group: opts.Rank}),
		links:    make(map[string]*protocol.Links),
		stations: make(map[string]*protocol.BSMStation),
	}

	if cfg.IsParallel {
		if opts.Broker == nil {
			return nil, ErrMissingBroker
		}
		if err := s.buildPartition(p); err != nil {
			return nil, err
		}
	}
	s.net = network.New(s.tl, s.partition)

	if err := s.buildNodes(p); err != nil {
		return nil, err
	}
	if err := s.buildChannels(p); err != nil {
		return nil, err
	}
	if err := s.installLinks(p); err != nil {
		return nil, err
	}
	logrus.Infof("rank %d: built %d local nodes of %d, stop time %d", s.rank, len(s.net.Nodes()), len(p.nodes), cfg.StopTime)
	return s, nil
}

func (s *Simulation) buildPartition(p plan) error {
	registry, err := parallel.NewRegistry(s.cfg.ProcessNum)
	if err != nil {
		return err
	}
	for _, n := range p.nodes {
		if err := registry.Assign(n.Name, n.Group); err != nil {
			return err
		}
	}
	lookahead, err := s.cfg.lookahead(p)
	if err != nil {
		return err
	}
	digest, err := s.cfg.Digest()
	if err != nil {
		return err
	}
	s.partition, err = parallel.NewPartition(s.tl, registry, s.broker, parallel.Config{
		Group:     s.rank,
		Lookahead: lookahead,
		Digest:    digest,
	})
	if err != nil {
		return err
	}
	if s.trace.Enabled() {
		s.partition.SetRecorder(s.trace)
	}
	logrus.Infof("rank %d: %s timeline, lookahead %d, %d foreign entities",
		s.rank, s.cfg.TimelineType(), lookahead, len(p.nodes)-len(registry.Entities(s.rank)))
	return nil
}

func (s *Simulation) buildNodes(p plan) error {
	for _, nc := range p.nodes {
		if nc.Group != s.rank {
			continue
		}
		node := network.NewNode(nc.Name, network.NodeKind(nc.Type), nc.Seed)
		if err := s.net.AddNode(node); err != nil {
			return err
		}
		switch node.Kind() {
		case network.KindQuantumRouter:
			rm := node.EnableResourceManager(nc.MemoSize, nil)
			if s.trace.Enabled() {
				rm.SetRecorder(s.trace)
			}
			if err := node.AddComponent(protocol.NewMemoryArray(node, nc.MemoSize, nc.CoherenceTime)); err != nil {
				return err
			}
		case network.KindBSMNode:
			node.SetRouters(p.bsmRouters[nc.Name])
			station, err := protocol.InstallBSMStation(node)
			if err != nil {
				return err
			}
			s.stations[nc.Name] = station
		}
	}

	for _, bsm := range p.bsmNames() {
		routers := p.bsmRouters[bsm]
		for i, r := range routers {
			if node := s.net.Node(r); node != nil {
				node.AddBSMNode(bsm, routers[1-i])
			}
		}
	}
	for router, table := range forwardingTables(p) {
		node := s.net.Node(router)
		if node == nil {
			continue
		}
		for dst, hop := range table {
			node.AddForwardingRule(dst, hop)
		}
	}
	return nil
}

func (s *Simulation) buildChannels(p plan) error {
	for _, ch := range p.cchannels {
		if s.net.Node(ch.Src) == nil {
			continue
		}
		if err := s.net.AddClassicalChannel(ch); err != nil {
			return err
		}
	}
	for _, qc := range p.qchannels {
		if s.net.Node(qc.Src) == nil {
			continue
		}
		if err := s.net.AddQuantumChannel(qc); err != nil {
			return err
		}
	}
	return nil
}

func (s *Simulation) installLinks(p plan) error {
	memories := make(map[string]int)
	for _, n := range p.nodes {
		if n.Type == string(network.KindQuantumRouter) {
			memories[n.Name] = n.MemoSize
		}
	}
	slices := protocol.PlanLinks(memories, p.neighbors())
	for _, node := range s.net.Nodes() {
		if node.Kind() != network.KindQuantumRouter {
			continue
		}
		links, err := protocol.Install(node, slices[node.Name()])
		if err != nil {
			return err
		}
		s.links[node.Name()] = links
	}
	return nil
}

// Run initializes the local nodes and executes the timeline with the
// configured synchronization scheme.
func (s *Simulation) Run(ctx context.Context) error {
	if err := s.tl.Init(); err != nil {
		if s.partition != nil {
			if abortErr := s.broker.Abort(ctx, s.rank, err.Error()); abortErr != nil {
				logrus.Warnf("rank %d: abort failed: %v", s.rank, abortErr)
			}
		}
		return err
	}
	switch {
	case s.partition == nil:
		return s.tl.Run()
	case s.cfg.TimelineType() == TimelineAsync:
		return parallel.NewAsyncTimeline(s.partition).Run(ctx)
	default:
		return parallel.NewSyncTimeline(s.partition).Run(ctx)
	}
}

// Rank returns the group this simulation owns.
func (s *Simulation) Rank() int { return s.rank }

// Timeline returns the local timeline.
func (s *Simulation) Timeline() *sim.Timeline { return s.tl }

// Network returns the local nodes.
func (s *Simulation) Network() *network.Network { return s.net }

// Partition returns the partition of a parallel run, or nil.
func (s *Simulation) Partition() *parallel.Partition { return s.partition }

// Trace returns the collected trace.
func (s *Simulation) Trace() *trace.SimulationTrace { return s.trace }

// Links returns the link rules of a local router, or nil.
func (s *Simulation) Links(router string) *protocol.Links { return s.links[router] }

// Station returns the BSM station of a local BSM node, or nil.
func (s *Simulation) Station(bsm string) *protocol.BSMStation { return s.stations[bsm] }

// RunID returns the broker-assigned run ID, or "" for sequential runs.
func (s *Simulation) RunID() string {
	if s.partition == nil {
		return ""
	}
	return s.partition.RunID()
}

// NodeResult summarizes one local node after a run.
type NodeResult struct {
	Name         string
	Kind         network.NodeKind
	Entangled    int // memories entangled at the end of the run
	Links        protocol.LinkStats
	Negotiation  resource.Stats
	Measurements int
}

// Result summarizes one process after a run.
type Result struct {
	Rank     int
	RunID    string
	Now      int64
	Executed uint64
	Rounds   uint64
	Traffic  network.Stats
	Nodes    []NodeResult
}

// Result collects per-node counters. Nodes are sorted by name.
func (s *Simulation) Result() Result {
	r := Result{
		Rank:     s.rank,
		RunID:    s.RunID(),
		Now:      s.tl.Now(),
		Executed: s.tl.Executed(),
		Traffic:  s.net.Stats(),
	}
	if s.partition != nil {
		r.Rounds = s.partition.Stats().Rounds
	}
	for _, node := range s.net.Nodes() {
		nr := NodeResult{Name: node.Name(), Kind: node.Kind()}
		if rm := node.ResourceManager(); rm != nil {
			nr.Negotiation = rm.Stats()
			for _, m := range rm.Memories() {
				// An expiry protocol holds an entangled memory without clearing its partner.
				if m.Remote != nil {
					nr.Entangled++
				}
			}
		}
		if l := s.links[node.Name()]; l != nil {
			nr.Links = l.Stats()
		}
		if st := s.stations[node.Name()]; st != nil {
			nr.Measurements = st.Measured()
		}
		r.Nodes = append(r.Nodes, nr)
	}
	sort.Slice(r.Nodes, func(i, j int) bool { return r.Nodes[i].Name < r.Nodes[j].Name })
	return r
}

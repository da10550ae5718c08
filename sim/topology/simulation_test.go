package topology

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/inference-sim/qnet-sim/sim/parallel"
	"github.com/inference-sim/qnet-sim/sim/protocol"
	"github.com/inference-sim/qnet-sim/sim/trace"
)

// runAllRanks builds every rank of cfg against one in-process hub and runs them concurrently.
func runAllRanks(t *testing.T, cfg *Config) []*Simulation {
	t.Helper()
	hub := parallel.NewHub(cfg.ProcessNum, "")
	sims := make([]*Simulation, cfg.ProcessNum)
	for rank := range sims {
		s, err := Build(cfg, Options{Rank: rank, Broker: hub, TraceLevel: trace.TraceLevelFull})
		require.NoError(t, err)
		sims[rank] = s
	}
	g, ctx := errgroup.WithContext(context.Background())
	for _, s := range sims {
		g.Go(func() error { return s.Run(ctx) })
	}
	require.NoError(t, g.Wait())
	return sims
}

func sequential(cfg *Config) *Config {
	cfg.IsParallel = false
	cfg.ProcessNum = 0
	cfg.Groups = nil
	for i := range cfg.Nodes {
		cfg.Nodes[i].Group = 0
	}
	return cfg
}

// outcome flattens per-node counters of one or more processes.
func outcome(sims ...*Simulation) (map[string]protocol.LinkStats, map[string]int) {
	links := make(map[string]protocol.LinkStats)
	measurements := make(map[string]int)
	for _, s := range sims {
		for _, n := range s.Result().Nodes {
			links[n.Name] = n.Links
			measurements[n.Name] = n.Measurements
		}
	}
	return links, measurements
}

func TestSimulation_ParallelRunsMatchSequential(t *testing.T) {
	// GIVEN the same lossy two-router line run sequentially
	seq, err := Build(sequential(mustParse(t, lineTopology)), Options{TraceLevel: trace.TraceLevelFull})
	require.NoError(t, err)
	require.NoError(t, seq.Run(context.Background()))
	wantLinks, wantMeasurements := outcome(seq)
	require.Greater(t, wantLinks["r1"].Attempts, 1)

	for _, kind := range []string{TimelineSync, TimelineAsync} {
		t.Run(kind, func(t *testing.T) {
			// WHEN it runs split over two processes
			cfg := mustParse(t, lineTopology)
			cfg.Groups = []GroupConfig{{Type: kind}, {Type: kind}}
			sims := runAllRanks(t, cfg)

			// THEN every node sees the same history
			gotLinks, gotMeasurements := outcome(sims...)
			assert.Equal(t, wantLinks, gotLinks)
			assert.Equal(t, wantMeasurements, gotMeasurements)
			assert.NotEmpty(t, sims[0].RunID())
			assert.Equal(t, sims[0].RunID(), sims[1].RunID())

			summary := trace.Summarize(sims[0].Trace(), sims[1].Trace())
			assert.Greater(t, summary.Windows, 0)
			assert.Greater(t, summary.Outbound, 0)
			assert.Equal(t, trace.Summarize(seq.Trace()).Requests, summary.Requests)
		})
	}
}

func TestSimulation_MeetInTheMiddle_EntanglesAllMemories(t *testing.T) {
	// GIVEN two routers with three memories each over lossless fiber
	cfg := mustParse(t, `
stop_time: 1000000000
nodes:
  - {name: a, type: QuantumRouter, seed: 1, memo_size: 3}
  - {name: b, type: QuantumRouter, seed: 2, memo_size: 3}
cconnections:
  - {node1: a, node2: b, distance: 2000}
qconnections:
  - {node1: a, node2: b, distance: 2000, attenuation: 0, type: meet_in_the_middle}
`)
	s, err := Build(cfg, Options{})
	require.NoError(t, err)

	// WHEN the run completes
	require.NoError(t, s.Run(context.Background()))

	// THEN every memory is entangled and the station measured three pairs
	res := s.Result()
	require.Len(t, res.Nodes, 3)
	assert.Equal(t, "BSM.a.b.auto", res.Nodes[0].Name)
	assert.Equal(t, 3, res.Nodes[0].Measurements)
	for _, n := range res.Nodes[1:] {
		assert.Equal(t, 3, n.Entangled, n.Name)
		assert.Equal(t, protocol.LinkStats{Attempts: 3, Successes: 3}, n.Links, n.Name)
	}
	assert.Empty(t, s.RunID())
	assert.Zero(t, res.Rounds)
	hop, ok := s.Network().Node("a").NextHop("b")
	assert.True(t, ok)
	assert.Equal(t, "b", hop)
}

func TestBuild_Failures(t *testing.T) {
	cfg := mustParse(t, lineTopology)

	_, err := Build(cfg, Options{Rank: 0})
	assert.ErrorIs(t, err, ErrMissingBroker)

	_, err = Build(cfg, Options{Rank: 2, Broker: parallel.NewHub(2, "")})
	assert.ErrorIs(t, err, parallel.ErrGroupOutOfRange)

	cfg.Nodes[0].Type = "Switch"
	_, err = Build(cfg, Options{Broker: parallel.NewHub(2, "")})
	assert.ErrorIs(t, err, ErrInvalidTopology)
}

func TestBuild_LocalNodesAndForeignEntities(t *testing.T) {
	s, err := Build(mustParse(t, lineTopology), Options{Rank: 1, Broker: parallel.NewHub(2, "")})
	require.NoError(t, err)

	assert.Nil(t, s.Network().Node("r1"))
	require.NotNil(t, s.Network().Node("r2"))
	assert.NotNil(t, s.Station("m12"))
	assert.Equal(t, []string{"r1", "r2"}, s.Network().Node("m12").Routers())
	assert.Equal(t, int64(50_000_000), s.Partition().Lookahead())
	assert.False(t, s.Partition().IsLocal("r1"))
	bsm, ok := s.Network().Node("r2").BSMNodeFor("r1")
	assert.True(t, ok)
	assert.Equal(t, "m12", bsm)
	_, ok = s.Network().ClassicalChannel("m12", "r1")
	assert.True(t, ok, "BSM nodes get a classical channel back to each router")
}

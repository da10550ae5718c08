package parallel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/qnet-sim/sim/trace"
)

func TestSyncTimeline_PingPong_MatchesSequentialOrder(t *testing.T) {
	// GIVEN a and b in different partitions, replying one lookahead after each delivery
	hub := NewHub(2, "digest")
	pair := newPingPair(t, [2]Broker{hub, hub}, 10, 10, 55)
	traces := [2]*trace.SimulationTrace{}
	for g, p := range pair.parts {
		traces[g] = trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelNegotiation, Group: g})
		p.SetRecorder(traces[g])
	}

	// WHEN both run in lock-step windows
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	errs := runAll(ctx, NewSyncTimeline(pair.parts[0]), NewSyncTimeline(pair.parts[1]))

	// THEN the exchange is exactly what a single timeline would produce, cut at the stop time
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, []int64{20, 40}, pair.players[0].received)
	assert.Equal(t, []int64{10, 30, 50}, pair.players[1].received)
	// AND local events ran independently up to the inclusive stop time
	assert.Equal(t, 8, pair.ticks[0])
	assert.Equal(t, 8, pair.ticks[1])
	// AND both partitions agreed on the run and recorded their windows
	assert.Equal(t, hub.RunID(), pair.parts[0].RunID())
	assert.Equal(t, pair.parts[0].Stats().Rounds, pair.parts[1].Stats().Rounds)
	assert.NotEmpty(t, traces[0].Windows)
	assert.Equal(t, 0, pair.parts[0].Timeline().Len(), "remaining events are discarded")
}

func TestSyncTimeline_LookaheadViolation_AbortsAllPartitions(t *testing.T) {
	// GIVEN b replying sooner than the lookahead allows
	hub := NewHub(2, "digest")
	pair := newPingPair(t, [2]Broker{hub, hub}, 10, 1, 100)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	errs := runAll(ctx, NewSyncTimeline(pair.parts[0]), NewSyncTimeline(pair.parts[1]))

	// THEN b fails with the violation and a is aborted
	assert.ErrorIs(t, errs[1], ErrLookaheadViolation)
	assert.ErrorIs(t, errs[0], ErrAborted)
}

func TestSyncTimeline_TopologyMismatch_FailsBeforeTimeZero(t *testing.T) {
	hub := NewHub(2, "other")
	pair := newPingPair(t, [2]Broker{hub, hub}, 10, 10, 100)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	errs := runAll(ctx, NewSyncTimeline(pair.parts[0]), NewSyncTimeline(pair.parts[1]))

	for g, err := range errs {
		assert.ErrorIs(t, err, ErrTopologyMismatch, "group %d", g)
		assert.Zero(t, pair.parts[g].Timeline().Executed(), "group %d", g)
	}
}

func TestSyncTimeline_EmptyQueues_EndImmediately(t *testing.T) {
	reg, _ := NewRegistry(1)
	hub := NewHub(1, "")
	p, err := NewPartition(newIdleTimeline(), reg, hub, Config{Lookahead: 5})
	require.NoError(t, err)

	require.NoError(t, NewSyncTimeline(p).Run(context.Background()))
	assert.Equal(t, uint64(1), p.Stats().Rounds)
}

package parallel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/qnet-sim/sim"
)

func newIdleTimeline() *sim.Timeline { return sim.NewTimeline(100) }

func TestAsyncTimeline_PingPong_MatchesSyncResult(t *testing.T) {
	// GIVEN the same ping-pong exchange as the synchronous test
	hub := NewHub(2, "digest")
	pair := newPingPair(t, [2]Broker{hub, hub}, 10, 10, 55)

	// WHEN both run with null messages
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	errs := runAll(ctx, NewAsyncTimeline(pair.parts[0]), NewAsyncTimeline(pair.parts[1]))

	// THEN the deliveries are identical
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, []int64{20, 40}, pair.players[0].received)
	assert.Equal(t, []int64{10, 30, 50}, pair.players[1].received)
	assert.Equal(t, 8, pair.ticks[0])
	assert.Equal(t, 8, pair.ticks[1])
}

func TestAsyncTimeline_IdlePeers_StillTerminate(t *testing.T) {
	// GIVEN three partitions, two of which never schedule anything
	const stop = 1000
	reg, _ := NewRegistry(3)
	hub := NewHub(3, "")
	var runners []runner
	var parts []*Partition
	count := 0
	for g := 0; g < 3; g++ {
		p, err := NewPartition(sim.NewTimeline(stop), reg, hub, Config{Group: g, Lookahead: 3})
		require.NoError(t, err)
		if g == 0 {
			startTicker(t, p.Timeline(), 100, &count)
		}
		parts = append(parts, p)
		runners = append(runners, NewAsyncTimeline(p))
	}
	busy := parts[0]

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	errs := runAll(ctx, runners...)

	// THEN every partition finishes, the busy one having run up to the stop time
	for g, err := range errs {
		require.NoError(t, err, "group %d", g)
	}
	assert.Equal(t, 11, count)
	assert.Equal(t, int64(stop), busy.Timeline().Now())

	// AND each peer posted only strictly growing promises: at most stop+1 packets
	// per peer, so a partition wakes at most 2*(stop+1) times after its first round
	for g, p := range parts {
		assert.LessOrEqual(t, p.Stats().Rounds, uint64(1+2*(stop+1)), "group %d", g)
	}
}

func TestAsyncTimeline_AllIdle_FinishWithoutSpinning(t *testing.T) {
	// GIVEN four partitions with empty queues and a short lookahead
	const stop = 300
	reg, _ := NewRegistry(4)
	hub := NewHub(4, "")
	var runners []runner
	var parts []*Partition
	for g := 0; g < 4; g++ {
		p, err := NewPartition(sim.NewTimeline(stop), reg, hub, Config{Group: g, Lookahead: 2})
		require.NoError(t, err)
		parts = append(parts, p)
		runners = append(runners, NewAsyncTimeline(p))
	}

	// WHEN they run
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	errs := runAll(ctx, runners...)

	// THEN all finish with a round count bounded by the number of distinct promises
	for g, err := range errs {
		require.NoError(t, err, "group %d", g)
	}
	for g, p := range parts {
		assert.Positive(t, p.Stats().Rounds, "group %d", g)
		assert.LessOrEqual(t, p.Stats().Rounds, uint64(1+3*(stop+1)), "group %d", g)
	}
}

func TestAsyncTimeline_LookaheadViolation_AbortsAllPartitions(t *testing.T) {
	hub := NewHub(2, "digest")
	pair := newPingPair(t, [2]Broker{hub, hub}, 10, 1, 100)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	errs := runAll(ctx, NewAsyncTimeline(pair.parts[0]), NewAsyncTimeline(pair.parts[1]))

	assert.ErrorIs(t, errs[1], ErrLookaheadViolation)
	assert.ErrorIs(t, errs[0], ErrAborted)
}

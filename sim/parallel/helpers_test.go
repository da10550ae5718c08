package parallel

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inference-sim/qnet-sim/sim"
)

// pingPong answers every delivered envelope with one to its peer, replyDelay later.
type pingPong struct {
	p          *Partition
	self, peer string
	replyDelay int64
	received   []int64
}

func (pp *pingPong) Deliver(env Envelope) error {
	pp.received = append(pp.received, env.Time)
	return pp.p.Send(Envelope{
		Time: pp.p.Timeline().Now() + pp.replyDelay,
		Src:  pp.self,
		Dst:  pp.peer,
		Kind: "ping",
	})
}

// startTicker schedules a local event every period ticks from time zero and counts executions.
func startTicker(t *testing.T, tl *sim.Timeline, period int64, count *int) {
	t.Helper()
	var tick sim.ActionFunc
	tick = func() error {
		*count++
		_, err := tl.ScheduleAfter(period, tick)
		return err
	}
	require.NoError(t, tl.Schedule(sim.NewEvent(0, tick)))
}

// pingPair is two partitions, "a" in group 0 and "b" in group 1, playing ping-pong.
type pingPair struct {
	parts   [2]*Partition
	players [2]*pingPong
	ticks   [2]int
}

func newPingPair(t *testing.T, brokers [2]Broker, lookahead, replyDelay, stop int64) *pingPair {
	t.Helper()
	reg, err := NewRegistry(2)
	require.NoError(t, err)
	require.NoError(t, reg.Assign("a", 0))
	require.NoError(t, reg.Assign("b", 1))

	pair := &pingPair{}
	names := [2]string{"a", "b"}
	for g := 0; g < 2; g++ {
		tl := sim.NewTimeline(stop)
		p, err := NewPartition(tl, reg, brokers[g], Config{Group: g, Lookahead: lookahead, Digest: "digest"})
		require.NoError(t, err)
		pp := &pingPong{p: p, self: names[g], peer: names[1-g], replyDelay: replyDelay}
		p.SetDeliverer(pp)
		pair.parts[g] = p
		pair.players[g] = pp
		startTicker(t, tl, 7, &pair.ticks[g])
	}

	// a serves first, at time zero.
	first := pair.parts[0]
	require.NoError(t, first.Timeline().Schedule(sim.NewEvent(0, sim.ActionFunc(func() error {
		return first.Send(Envelope{Time: lookahead, Src: "a", Dst: "b", Kind: "ping"})
	}))))
	return pair
}

type runner interface {
	Run(ctx context.Context) error
}

// runAll runs every runner concurrently and returns their errors by index.
func runAll(ctx context.Context, runners ...runner) []error {
	errs := make([]error, len(runners))
	var wg sync.WaitGroup
	for i, r := range runners {
		wg.Add(1)
		go func(i int, r runner) {
			defer wg.Done()
			errs[i] = r.Run(ctx)
		}(i, r)
	}
	wg.Wait()
	return errs
}

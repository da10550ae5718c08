package parallel

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/inference-sim/qnet-sim/sim"
)

// AsyncTimeline drives a partition with null messages.
//
// The partition keeps, per peer, the latest promise received: the peer will
// never send an envelope earlier than that time. Events earlier than the
// smallest promise (the safe time) are executed freely. After each step the
// partition computes the promise min(next local event, safe time) + lookahead
// and posts it to a peer only when it exceeds the last promise sent there or
// when envelopes are due for that peer; otherwise it blocks until a packet
// arrives. Promises never decrease. The partition holding the smallest
// min(next local event, safe time) always has a larger promise to post, so
// no partition blocks forever. A partition that has nothing left up to the
// stop time, and can receive nothing up to it, posts an infinite promise and
// returns.
type AsyncTimeline struct {
	*Partition
}

// NewAsyncTimeline wraps p in the asynchronous scheme.
func NewAsyncTimeline(p *Partition) *AsyncTimeline {
	return &AsyncTimeline{Partition: p}
}

// Run joins the broker and executes until this partition and its inbound
// horizon are both past the stop time. Events left in the queue are discarded.
func (a *AsyncTimeline) Run(ctx context.Context) error {
	if a.tl.StopTime() == sim.Infinity {
		return ErrInfiniteStopTime
	}
	if err := a.join(ctx); err != nil {
		return err
	}
	err := a.loop(ctx)
	if err != nil && !errors.Is(err, ErrAborted) {
		a.abort(err)
	}
	if n := a.tl.Discard(); n > 0 {
		logrus.Debugf("[tick %012d] group %d discarded %d events past stop time", a.tl.Now(), a.cfg.Group, n)
	}
	if err == nil {
		logrus.Infof("[tick %012d] group %d finished after %d rounds, %d events",
			a.tl.Now(), a.cfg.Group, a.stats.Rounds, a.tl.Executed())
	}
	return err
}

func (a *AsyncTimeline) loop(ctx context.Context) error {
	stop := a.tl.StopTime()
	peers := make([]int, 0, a.registry.ProcessCount()-1)
	promises := make(map[int]int64)
	sent := make(map[int]int64)
	for g := 0; g < a.registry.ProcessCount(); g++ {
		if g == a.cfg.Group {
			continue
		}
		peers = append(peers, g)
		// Every peer starts at time zero, so nothing it sends is due before one lookahead.
		promises[g] = a.cfg.Lookahead
		sent[g] = a.cfg.Lookahead
	}

	inbound := 0
	for round := uint64(1); ; round++ {
		rctx, span := a.tracer.Start(ctx, "parallel.async.round")
		span.SetAttributes(attribute.Int("qnet.group", a.cfg.Group), attribute.Int64("qnet.round", int64(round)))

		safe := sim.Infinity
		for _, g := range peers {
			safe = min(safe, promises[g])
		}
		executed, err := a.tl.RunUntil(safe)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "execute")
			span.End()
			return err
		}

		localNext := a.tl.NextEventTime()
		done := localNext > stop && safe > stop
		promise := sim.Infinity
		if !done {
			promise = addTime(min(localNext, safe), a.cfg.Lookahead)
		}
		outbound := a.takeOutbox()
		byPeer := make(map[int][]Envelope)
		for _, env := range outbound {
			byPeer[env.DstGroup] = append(byPeer[env.DstGroup], env)
		}
		posted := 0
		for _, g := range peers {
			if promise <= sent[g] && len(byPeer[g]) == 0 {
				continue
			}
			pkt := NullPacket{From: a.cfg.Group, To: g, Promise: max(promise, sent[g]), Envelopes: byPeer[g]}
			if err := a.broker.Post(rctx, pkt); err != nil {
				span.RecordError(err)
				span.End()
				return err
			}
			sent[g] = pkt.Promise
			posted++
		}
		span.SetAttributes(attribute.Int64("qnet.safe", safe), attribute.Int64("qnet.promise", promise),
			attribute.Int("qnet.executed", executed), attribute.Int("qnet.posted", posted))
		logrus.Debugf("[tick %012d] group %d round %d: safe %d, promise %d, %d events, %d out, %d in",
			a.tl.Now(), a.cfg.Group, round, safe, promise, executed, len(outbound), inbound)
		a.recordWindow(round, safe, executed, len(outbound), inbound)
		if done {
			span.End()
			return nil
		}

		packets, err := a.broker.Receive(rctx, a.cfg.Group)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "receive")
			span.End()
			return err
		}
		var envs []Envelope
		for _, pkt := range packets {
			envs = append(envs, pkt.Envelopes...)
			if pkt.Promise > promises[pkt.From] {
				promises[pkt.From] = pkt.Promise
			}
		}
		sortEnvelopes(envs)
		for _, env := range envs {
			if err := a.schedule(env); err != nil {
				span.RecordError(err)
				span.End()
				return err
			}
		}
		inbound = len(envs)
		span.End()
	}
}

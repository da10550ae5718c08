package parallel

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/inference-sim/qnet-sim/sim"
)

// SyncTimeline drives a partition in lock-step windows.
//
// Each round every partition hands its outbox and next event time to the
// broker barrier. The reply carries the inbound envelopes and the global
// minimum next time m; the partition then executes its events earlier than
// m + lookahead. No envelope produced inside the window can be due before the
// window ends, so no partition ever receives an envelope from its past.
type SyncTimeline struct {
	*Partition
}

// NewSyncTimeline wraps p in the synchronous scheme.
func NewSyncTimeline(p *Partition) *SyncTimeline {
	return &SyncTimeline{Partition: p}
}

// Run joins the broker and executes windows until the global next event time
// passes the stop time. Events left in the queue are discarded.
func (s *SyncTimeline) Run(ctx context.Context) error {
	if err := s.join(ctx); err != nil {
		return err
	}
	err := s.loop(ctx)
	if err != nil && !errors.Is(err, ErrAborted) {
		s.abort(err)
	}
	if n := s.tl.Discard(); n > 0 {
		logrus.Debugf("[tick %012d] group %d discarded %d events past stop time", s.tl.Now(), s.cfg.Group, n)
	}
	if err == nil {
		logrus.Infof("[tick %012d] group %d finished after %d windows, %d events",
			s.tl.Now(), s.cfg.Group, s.stats.Rounds, s.tl.Executed())
	}
	return err
}

func (s *SyncTimeline) loop(ctx context.Context) error {
	stop := s.tl.StopTime()
	for round := uint64(1); ; round++ {
		wctx, span := s.tracer.Start(ctx, "parallel.sync.window")
		span.SetAttributes(attribute.Int("qnet.group", s.cfg.Group), attribute.Int64("qnet.round", int64(round)))

		outbound := s.takeOutbox()
		reply, err := s.broker.Exchange(wctx, SyncRequest{
			Group:    s.cfg.Group,
			Round:    round,
			NextTime: s.tl.NextEventTime(),
			Outbound: outbound,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "exchange")
			span.End()
			return err
		}
		for _, env := range reply.Inbound {
			if err := s.schedule(env); err != nil {
				span.RecordError(err)
				span.End()
				return err
			}
		}
		if reply.GlobalNext == sim.Infinity || reply.GlobalNext > stop {
			s.recordWindow(round, reply.GlobalNext, 0, len(outbound), len(reply.Inbound))
			span.End()
			return nil
		}

		end := addTime(reply.GlobalNext, s.cfg.Lookahead)
		executed, err := s.tl.RunUntil(end)
		span.SetAttributes(attribute.Int64("qnet.window_end", end), attribute.Int("qnet.executed", executed))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "window")
			span.End()
			return err
		}
		logrus.Debugf("[tick %012d] group %d window %d: end %d, %d events, %d out, %d in",
			s.tl.Now(), s.cfg.Group, round, end, executed, len(outbound), len(reply.Inbound))
		s.recordWindow(round, end, executed, len(outbound), len(reply.Inbound))
		span.End()
	}
}

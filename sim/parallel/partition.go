package parallel

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/inference-sim/qnet-sim/sim"
	"github.com/inference-sim/qnet-sim/sim/trace"
)

const tracerName = "github.com/inference-sim/qnet-sim/sim/parallel"

// Deliverer hands an inbound envelope to the local entity it is addressed to.
// It is called from the timeline at the envelope's time.
type Deliverer interface {
	Deliver(env Envelope) error
}

// WindowRecorder receives one record per synchronization round. *trace.SimulationTrace implements it.
type WindowRecorder interface {
	RecordWindow(trace.WindowRecord)
}

// Config holds the per-process parameters of a partition.
type Config struct {
	Group     int
	Lookahead int64  // minimum delay of any cross-partition effect, in ticks
	Digest    string // topology digest announced on join
}

// Stats counts synchronization work of one partition.
type Stats struct {
	Rounds   uint64
	Outbound int
	Inbound  int
}

// Partition is the part of the simulated network owned by one process:
// its timeline, its group and the outbox of envelopes bound for other groups.
type Partition struct {
	tl        *sim.Timeline
	registry  *Registry
	broker    Broker
	cfg       Config
	deliverer Deliverer
	recorder  WindowRecorder
	tracer    oteltrace.Tracer

	runID  string
	outbox []Envelope
	seq    uint64
	stats  Stats
}

// NewPartition creates the partition for cfg.Group.
func NewPartition(tl *sim.Timeline, registry *Registry, broker Broker, cfg Config) (*Partition, error) {
	if cfg.Lookahead <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLookahead, cfg.Lookahead)
	}
	if cfg.Group < 0 || cfg.Group >= registry.ProcessCount() {
		return nil, fmt.Errorf("%w: group %d, valid [0, %d)", ErrGroupOutOfRange, cfg.Group, registry.ProcessCount())
	}
	return &Partition{
		tl:       tl,
		registry: registry,
		broker:   broker,
		cfg:      cfg,
		tracer:   otel.Tracer(tracerName),
	}, nil
}

// Timeline returns the partition's timeline.
func (p *Partition) Timeline() *sim.Timeline { return p.tl }

// Group returns the group this partition owns.
func (p *Partition) Group() int { return p.cfg.Group }

// Lookahead returns the lookahead bound in ticks.
func (p *Partition) Lookahead() int64 { return p.cfg.Lookahead }

// Registry returns the remote-reference table.
func (p *Partition) Registry() *Registry { return p.registry }

// RunID returns the run identifier assigned by the broker on join.
func (p *Partition) RunID() string { return p.runID }

// Stats returns the synchronization counters.
func (p *Partition) Stats() Stats { return p.stats }

// SetDeliverer sets the target of inbound envelopes.
func (p *Partition) SetDeliverer(d Deliverer) { p.deliverer = d }

// SetRecorder attaches a window recorder. A nil recorder disables window records.
func (p *Partition) SetRecorder(r WindowRecorder) { p.recorder = r }

// IsLocal reports whether entity is owned by this partition.
func (p *Partition) IsLocal(entity string) bool {
	g, ok := p.registry.Locate(entity)
	return ok && g == p.cfg.Group
}

// Send queues env for the partition owning env.Dst. The envelope's time must be
// at least one lookahead after the local clock.
func (p *Partition) Send(env Envelope) error {
	dst, ok := p.registry.Locate(env.Dst)
	if !ok {
		return fmt.Errorf("send to %q: %w", env.Dst, ErrUnknownEntity)
	}
	if dst == p.cfg.Group {
		return fmt.Errorf("send to %q: %w", env.Dst, ErrLocalEnvelope)
	}
	if earliest := addTime(p.tl.Now(), p.cfg.Lookahead); env.Time < earliest {
		return fmt.Errorf("%w: %s sent at %d, earliest allowed %d", ErrLookaheadViolation, env, p.tl.Now(), earliest)
	}
	p.seq++
	env.SrcGroup = p.cfg.Group
	env.DstGroup = dst
	env.Seq = p.seq
	p.outbox = append(p.outbox, env)
	p.stats.Outbound++
	return nil
}

func (p *Partition) join(ctx context.Context) error {
	reply, err := p.broker.Join(ctx, JoinRequest{
		Group:        p.cfg.Group,
		ProcessCount: p.registry.ProcessCount(),
		Digest:       p.cfg.Digest,
	})
	if err != nil {
		return fmt.Errorf("join group %d: %w", p.cfg.Group, err)
	}
	p.runID = reply.RunID
	logrus.Infof("[tick %012d] group %d joined run %s (lookahead %d)", p.tl.Now(), p.cfg.Group, p.runID, p.cfg.Lookahead)
	return nil
}

func (p *Partition) takeOutbox() []Envelope {
	out := p.outbox
	p.outbox = nil
	return out
}

// schedule queues delivery of an inbound envelope at its own time.
func (p *Partition) schedule(env Envelope) error {
	if env.Time < p.tl.Now() {
		return fmt.Errorf("%w: %s arrived at %d", ErrCausalityViolation, env, p.tl.Now())
	}
	if p.deliverer == nil {
		return fmt.Errorf("group %d: no deliverer for %s", p.cfg.Group, env)
	}
	d := p.deliverer
	p.stats.Inbound++
	return p.tl.Schedule(sim.NewEvent(env.Time, sim.ActionFunc(func() error {
		return d.Deliver(env)
	})))
}

// abort reports err to the broker so that peers blocked on this partition stop.
func (p *Partition) abort(err error) {
	if abortErr := p.broker.Abort(context.Background(), p.cfg.Group, err.Error()); abortErr != nil {
		logrus.Warnf("group %d: abort failed: %v", p.cfg.Group, abortErr)
	}
}

func (p *Partition) recordWindow(round uint64, end int64, executed, outbound, inbound int) {
	p.stats.Rounds = round
	if p.recorder == nil {
		return
	}
	p.recorder.RecordWindow(trace.WindowRecord{
		Group:    p.cfg.Group,
		Round:    round,
		End:      end,
		Executed: executed,
		Outbound: outbound,
		Inbound:  inbound,
	})
}

// addTime returns t + d, saturating at sim.Infinity.
func addTime(t, d int64) int64 {
	if t > sim.Infinity-d {
		return sim.Infinity
	}
	return t + d
}

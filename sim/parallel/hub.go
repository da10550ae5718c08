package parallel

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/inference-sim/qnet-sim/sim"
)

// Hub is the in-process Broker. One Hub serves exactly one run.
type Hub struct {
	processCount int
	runID        string

	mu     sync.Mutex
	digest string
	joined map[int]bool
	ready  chan struct{} // closed when every partition has joined
	failed chan struct{} // closed on the first failure
	err    error

	round   uint64
	current *syncRound

	mailboxes []*mailbox
}

// syncRound collects the contributions of one synchronous round.
type syncRound struct {
	number  uint64
	arrived map[int]bool
	next    int64
	inbound map[int][]Envelope
	done    chan struct{}
}

type mailbox struct {
	packets []NullPacket
	notify  chan struct{}
}

// NewHub creates a Hub for processCount partitions. A non-empty digest is the
// topology digest every partition must join with; otherwise the first join sets it.
func NewHub(processCount int, digest string) *Hub {
	h := &Hub{
		processCount: processCount,
		runID:        uuid.NewString(),
		digest:       digest,
		joined:       make(map[int]bool),
		ready:        make(chan struct{}),
		failed:       make(chan struct{}),
		round:        1,
		mailboxes:    make([]*mailbox, processCount),
	}
	for i := range h.mailboxes {
		h.mailboxes[i] = &mailbox{notify: make(chan struct{}, 1)}
	}
	return h
}

// RunID returns the identifier handed to every partition on join.
func (h *Hub) RunID() string { return h.runID }

// Err returns the error that failed the run, if any.
func (h *Hub) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// failLocked records err as the run failure and wakes every waiter. The first failure wins.
func (h *Hub) failLocked(err error) error {
	if h.err == nil {
		h.err = err
		close(h.failed)
		logrus.Warnf("broker %s: run failed: %v", h.runID, err)
	}
	return h.err
}

func (h *Hub) Join(ctx context.Context, req JoinRequest) (JoinReply, error) {
	h.mu.Lock()
	if h.err != nil {
		defer h.mu.Unlock()
		return JoinReply{}, h.err
	}
	switch {
	case req.ProcessCount != h.processCount:
		err := fmt.Errorf("%w: group %d expects %d processes, broker has %d",
			ErrProcessCountMismatch, req.Group, req.ProcessCount, h.processCount)
		h.failLocked(err)
		h.mu.Unlock()
		return JoinReply{}, err
	case req.Group < 0 || req.Group >= h.processCount:
		err := fmt.Errorf("%w: group %d, valid [0, %d)", ErrGroupOutOfRange, req.Group, h.processCount)
		h.failLocked(err)
		h.mu.Unlock()
		return JoinReply{}, err
	case h.joined[req.Group]:
		err := fmt.Errorf("%w: %d", ErrDuplicateGroup, req.Group)
		h.failLocked(err)
		h.mu.Unlock()
		return JoinReply{}, err
	}
	if h.digest == "" {
		h.digest = req.Digest
	} else if req.Digest != h.digest {
		err := fmt.Errorf("%w: group %d has digest %s, expected %s", ErrTopologyMismatch, req.Group, req.Digest, h.digest)
		h.failLocked(err)
		h.mu.Unlock()
		return JoinReply{}, err
	}
	h.joined[req.Group] = true
	logrus.Infof("broker %s: group %d joined (%d/%d)", h.runID, req.Group, len(h.joined), h.processCount)
	if len(h.joined) == h.processCount {
		close(h.ready)
	}
	h.mu.Unlock()

	select {
	case <-h.ready:
		return JoinReply{RunID: h.runID}, nil
	case <-h.failed:
		return JoinReply{}, h.Err()
	case <-ctx.Done():
		return JoinReply{}, ctx.Err()
	}
}

func (h *Hub) Exchange(ctx context.Context, req SyncRequest) (SyncReply, error) {
	h.mu.Lock()
	if h.err != nil {
		defer h.mu.Unlock()
		return SyncReply{}, h.err
	}
	if req.Group < 0 || req.Group >= h.processCount {
		defer h.mu.Unlock()
		return SyncReply{}, h.failLocked(fmt.Errorf("%w: group %d", ErrGroupOutOfRange, req.Group))
	}
	if req.Round != h.round {
		defer h.mu.Unlock()
		return SyncReply{}, h.failLocked(fmt.Errorf("%w: group %d sent round %d, broker is at %d",
			ErrRoundMismatch, req.Group, req.Round, h.round))
	}
	r := h.current
	if r == nil {
		r = &syncRound{
			number:  h.round,
			arrived: make(map[int]bool),
			next:    sim.Infinity,
			inbound: make(map[int][]Envelope),
			done:    make(chan struct{}),
		}
		h.current = r
	}
	if r.arrived[req.Group] {
		defer h.mu.Unlock()
		return SyncReply{}, h.failLocked(fmt.Errorf("%w: group %d exchanged twice in round %d",
			ErrRoundMismatch, req.Group, req.Round))
	}
	r.arrived[req.Group] = true
	r.next = min(r.next, req.NextTime)
	for _, env := range req.Outbound {
		if env.DstGroup < 0 || env.DstGroup >= h.processCount {
			defer h.mu.Unlock()
			return SyncReply{}, h.failLocked(fmt.Errorf("%w: %s", ErrGroupOutOfRange, env))
		}
		r.inbound[env.DstGroup] = append(r.inbound[env.DstGroup], env)
		r.next = min(r.next, env.Time)
	}
	if len(r.arrived) == h.processCount {
		for _, envs := range r.inbound {
			sortEnvelopes(envs)
		}
		h.current = nil
		h.round++
		close(r.done)
	}
	h.mu.Unlock()

	select {
	case <-r.done:
		return SyncReply{Round: r.number, GlobalNext: r.next, Inbound: r.inbound[req.Group]}, nil
	case <-h.failed:
		return SyncReply{}, h.Err()
	case <-ctx.Done():
		return SyncReply{}, ctx.Err()
	}
}

func (h *Hub) Post(_ context.Context, pkt NullPacket) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	if pkt.To < 0 || pkt.To >= h.processCount || pkt.From < 0 || pkt.From >= h.processCount {
		return h.failLocked(fmt.Errorf("%w: packet %d -> %d", ErrGroupOutOfRange, pkt.From, pkt.To))
	}
	mb := h.mailboxes[pkt.To]
	mb.packets = append(mb.packets, pkt)
	select {
	case mb.notify <- struct{}{}:
	default:
	}
	return nil
}

func (h *Hub) Receive(ctx context.Context, group int) ([]NullPacket, error) {
	if group < 0 || group >= h.processCount {
		return nil, fmt.Errorf("%w: group %d", ErrGroupOutOfRange, group)
	}
	mb := h.mailboxes[group]
	for {
		h.mu.Lock()
		if h.err != nil {
			defer h.mu.Unlock()
			return nil, h.err
		}
		if len(mb.packets) > 0 {
			out := mb.packets
			mb.packets = nil
			h.mu.Unlock()
			return out, nil
		}
		h.mu.Unlock()

		select {
		case <-mb.notify:
		case <-h.failed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (h *Hub) Abort(_ context.Context, group int, reason string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failLocked(fmt.Errorf("%w by group %d: %s", ErrAborted, group, reason))
	return nil
}

package parallel

import "context"

// JoinRequest announces a partition to the broker before time zero.
type JoinRequest struct {
	Group        int    `json:"group"`
	ProcessCount int    `json:"process_count"`
	Digest       string `json:"digest"` // topology digest every process must agree on
}

// JoinReply is returned once every partition has joined.
type JoinReply struct {
	RunID string `json:"run_id"`
}

// SyncRequest is one partition's contribution to a synchronous round.
type SyncRequest struct {
	Group    int        `json:"group"`
	Round    uint64     `json:"round"`
	NextTime int64      `json:"next_time"` // local next event time before inbound envelopes
	Outbound []Envelope `json:"outbound,omitempty"`
}

// SyncReply closes a synchronous round.
type SyncReply struct {
	Round uint64 `json:"round"`
	// GlobalNext is the earliest pending event time across all partitions,
	// including the envelopes exchanged in this round.
	GlobalNext int64      `json:"global_next"`
	Inbound    []Envelope `json:"inbound,omitempty"`
}

// NullPacket is posted by the asynchronous scheme from one partition to one peer.
// The sender promises never to send the receiver an envelope earlier than Promise.
type NullPacket struct {
	From      int        `json:"from"`
	To        int        `json:"to"`
	Promise   int64      `json:"promise"`
	Envelopes []Envelope `json:"envelopes,omitempty"`
}

// Broker coordinates the partitions of one run.
// Hub is the in-process implementation; RemoteBroker reaches a Hub over gRPC.
type Broker interface {
	// Join blocks until every partition has joined with the same process count
	// and topology digest. Any disagreement aborts the whole run.
	Join(ctx context.Context, req JoinRequest) (JoinReply, error)
	// Exchange is the barrier of the synchronous scheme.
	Exchange(ctx context.Context, req SyncRequest) (SyncReply, error)
	// Post queues a null packet for its destination partition. It never blocks on the receiver.
	Post(ctx context.Context, pkt NullPacket) error
	// Receive blocks until at least one packet is queued for group and returns all of them.
	Receive(ctx context.Context, group int) ([]NullPacket, error)
	// Abort fails the run for every partition.
	Abort(ctx context.Context, group int, reason string) error
}

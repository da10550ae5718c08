package parallel

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Envelope carries one message across a partition boundary. Body is the
// JSON-encoded payload; Kind tells the receiving side how to decode it.
type Envelope struct {
	Time     int64           `json:"time"`
	Src      string          `json:"src"`
	Dst      string          `json:"dst"`
	Receiver string          `json:"receiver"`
	Kind     string          `json:"kind"`
	Body     json.RawMessage `json:"body,omitempty"`

	SrcGroup int    `json:"src_group"`
	DstGroup int    `json:"dst_group"`
	Seq      uint64 `json:"seq"` // per-sender send order
}

func (e Envelope) String() string {
	return fmt.Sprintf("Envelope: (time: %d, %s -> %s/%s, kind: %s, groups: %d -> %d)",
		e.Time, e.Src, e.Dst, e.Receiver, e.Kind, e.SrcGroup, e.DstGroup)
}

// sortEnvelopes orders envelopes by time, then source group, then send order,
// so inbound batches are scheduled identically regardless of arrival order.
func sortEnvelopes(envs []Envelope) {
	sort.SliceStable(envs, func(i, j int) bool {
		a, b := envs[i], envs[j]
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		if a.SrcGroup != b.SrcGroup {
			return a.SrcGroup < b.SrcGroup
		}
		return a.Seq < b.Seq
	})
}

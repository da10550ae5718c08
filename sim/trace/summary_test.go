package trace

import (
	"math"
	"testing"
)

func TestSummarize_NilAndEmpty_ReturnsZeroSummary(t *testing.T) {
	summary := Summarize(nil, NewSimulationTrace(TraceConfig{Level: TraceLevelFull}))

	if summary.Requests != 0 || summary.Windows != 0 {
		t.Errorf("expected zero counts, got requests=%d windows=%d", summary.Requests, summary.Windows)
	}
	if summary.ApprovalRate() != 0 {
		t.Errorf("expected approval rate 0 with no responses, got %f", summary.ApprovalRate())
	}
}

func TestSummarize_CountsStepsAcrossPartitions(t *testing.T) {
	// GIVEN two partition traces with a full handshake each
	left := NewSimulationTrace(TraceConfig{Level: TraceLevelFull, Group: 0})
	right := NewSimulationTrace(TraceConfig{Level: TraceLevelFull, Group: 1})
	left.RecordNegotiation(NegotiationRecord{Node: "a", Step: StepRequest})
	left.RecordNegotiation(NegotiationRecord{Node: "a", Step: StepApproved})
	left.RecordNegotiation(NegotiationRecord{Node: "a", Step: StepRequest})
	left.RecordNegotiation(NegotiationRecord{Node: "a", Step: StepRejected})
	right.RecordNegotiation(NegotiationRecord{Node: "b", Step: StepWait})
	right.RecordNegotiation(NegotiationRecord{Node: "b", Step: StepAccept})
	right.RecordNegotiation(NegotiationRecord{Node: "b", Step: StepDecline})
	right.RecordNegotiation(NegotiationRecord{Node: "b", Step: StepLocal})
	left.RecordMemory(MemoryRecord{Node: "a", From: "OCCUPIED", To: "ENTANGLED"})
	right.RecordMemory(MemoryRecord{Node: "b", From: "OCCUPIED", To: "ENTANGLED"})
	right.RecordMemory(MemoryRecord{Node: "b", From: "ENTANGLED", To: "EXPIRED"})
	left.RecordWindow(WindowRecord{Outbound: 2, Inbound: 1})
	right.RecordWindow(WindowRecord{Outbound: 1, Inbound: 2})

	// WHEN summarized together
	s := Summarize(left, right)

	// THEN counts add across partitions
	if s.Requests != 2 || s.Approved != 1 || s.Rejected != 1 {
		t.Errorf("requests/approved/rejected = %d/%d/%d, want 2/1/1", s.Requests, s.Approved, s.Rejected)
	}
	if s.Accepted != 1 || s.Declined != 1 || s.LocalActivations != 1 {
		t.Errorf("accepted/declined/local = %d/%d/%d, want 1/1/1", s.Accepted, s.Declined, s.LocalActivations)
	}
	if s.EntangledPerNode["a"] != 1 || s.EntangledPerNode["b"] != 1 {
		t.Errorf("unexpected entangled counts %v", s.EntangledPerNode)
	}
	if s.StepsPerNode["a"] != 4 || s.StepsPerNode["b"] != 4 {
		t.Errorf("unexpected step counts %v", s.StepsPerNode)
	}
	if s.Windows != 2 || s.Inbound != 3 || s.Outbound != 3 {
		t.Errorf("windows/inbound/outbound = %d/%d/%d, want 2/3/3", s.Windows, s.Inbound, s.Outbound)
	}
	if math.Abs(s.ApprovalRate()-0.5) > 1e-9 {
		t.Errorf("expected approval rate 0.5, got %f", s.ApprovalRate())
	}
}

package trace

// TraceSummary aggregates statistics from one or more SimulationTraces.
type TraceSummary struct {
	Requests         int
	Approved         int
	Rejected         int
	Accepted         int
	Declined         int
	Withdrawn        int
	LocalActivations int
	Windows          int
	Inbound          int
	Outbound         int
	// EntangledPerNode counts transitions into ENTANGLED per node (TraceLevelFull only).
	EntangledPerNode map[string]int
	// StepsPerNode counts negotiation records per node.
	StepsPerNode map[string]int
}

// ApprovalRate returns approved / (approved + rejected), or 0 with no responses.
func (s *TraceSummary) ApprovalRate() float64 {
	total := s.Approved + s.Rejected
	if total == 0 {
		return 0
	}
	return float64(s.Approved) / float64(total)
}

// Summarize computes aggregate statistics over traces.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(traces ...*SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		EntangledPerNode: make(map[string]int),
		StepsPerNode:     make(map[string]int),
	}
	for _, st := range traces {
		if st == nil {
			continue
		}
		for _, n := range st.Negotiations {
			summary.StepsPerNode[n.Node]++
			switch n.Step {
			case StepRequest:
				summary.Requests++
			case StepApproved:
				summary.Approved++
			case StepRejected:
				summary.Rejected++
			case StepAccept:
				summary.Accepted++
			case StepDecline:
				summary.Declined++
			case StepWithdrawn:
				summary.Withdrawn++
			case StepLocal:
				summary.LocalActivations++
			}
		}
		for _, m := range st.Memories {
			if m.To == "ENTANGLED" {
				summary.EntangledPerNode[m.Node]++
			}
		}
		summary.Windows += len(st.Windows)
		for _, w := range st.Windows {
			summary.Inbound += w.Inbound
			summary.Outbound += w.Outbound
		}
	}
	return summary
}

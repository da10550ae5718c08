package trace

// TraceLevel controls the verbosity of simulation tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelNegotiation captures resource-manager negotiation steps and synchronization windows.
	TraceLevelNegotiation TraceLevel = "negotiation"
	// TraceLevelFull additionally captures every memory state change.
	TraceLevelFull TraceLevel = "full"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:        true,
	TraceLevelNegotiation: true,
	TraceLevelFull:        true,
	"":                    true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
	Group int // partition that produced the trace
}

// SimulationTrace collects records for one simulation process.
// Not goroutine-safe: each partition owns its own trace.
type SimulationTrace struct {
	Config       TraceConfig
	Negotiations []NegotiationRecord
	Memories     []MemoryRecord
	Windows      []WindowRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:       config,
		Negotiations: make([]NegotiationRecord, 0),
		Memories:     make([]MemoryRecord, 0),
		Windows:      make([]WindowRecord, 0),
	}
}

// Enabled reports whether the trace records anything at all.
func (st *SimulationTrace) Enabled() bool {
	return st != nil && st.Config.Level != TraceLevelNone && st.Config.Level != ""
}

// RecordNegotiation appends a negotiation record.
func (st *SimulationTrace) RecordNegotiation(record NegotiationRecord) {
	if !st.Enabled() {
		return
	}
	st.Negotiations = append(st.Negotiations, record)
}

// RecordMemory appends a memory record. Only kept at TraceLevelFull.
func (st *SimulationTrace) RecordMemory(record MemoryRecord) {
	if st == nil || st.Config.Level != TraceLevelFull {
		return
	}
	st.Memories = append(st.Memories, record)
}

// RecordWindow appends a synchronization window record.
func (st *SimulationTrace) RecordWindow(record WindowRecord) {
	if !st.Enabled() {
		return
	}
	st.Windows = append(st.Windows, record)
}

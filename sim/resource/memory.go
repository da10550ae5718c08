package resource

import "fmt"

// MemoryState is the lifecycle state of one memory slot.
type MemoryState string

const (
	MemoryRaw       MemoryState = "RAW"
	MemoryOccupied  MemoryState = "OCCUPIED"
	MemoryEntangled MemoryState = "ENTANGLED"
	MemoryExpired   MemoryState = "EXPIRED"
)

var validMemoryStates = map[MemoryState]bool{
	MemoryRaw:       true,
	MemoryOccupied:  true,
	MemoryEntangled: true,
	MemoryExpired:   true,
}

// RemoteMemory identifies the memory slot a local memory is entangled with.
type RemoteMemory struct {
	Node string `json:"node"`
	Slot int    `json:"slot"`
}

// MemoryInfo is the state record of one memory slot.
// Rules and protocols only ever see copies; the ResourceManager owns the originals.
type MemoryInfo struct {
	Index     int
	State     MemoryState
	Protocol  string        // Name of the owning protocol while OCCUPIED
	Remote    *RemoteMemory // Entangled partner while ENTANGLED
	UpdatedAt int64         // Simulation time of the last state change
}

func (m MemoryInfo) String() string {
	return fmt.Sprintf("Memory: (Index: %d, State: %s, Protocol: %q)", m.Index, m.State, m.Protocol)
}

// MemoryView is the read-only access rules get to a node's memories.
type MemoryView interface {
	Len() int
	Memory(slot int) (MemoryInfo, bool)
	Memories() []MemoryInfo
}

// MemoryManager tracks one MemoryInfo per slot of a node.
// Records are created at construction and never destroyed during a run.
type MemoryManager struct {
	infos []MemoryInfo
}

// NewMemoryManager creates size RAW memories indexed 0..size-1.
func NewMemoryManager(size int) *MemoryManager {
	infos := make([]MemoryInfo, size)
	for i := range infos {
		infos[i] = MemoryInfo{Index: i, State: MemoryRaw}
	}
	return &MemoryManager{infos: infos}
}

// Len returns the number of memory slots.
func (mm *MemoryManager) Len() int { return len(mm.infos) }

// Memory returns a copy of the record for slot.
func (mm *MemoryManager) Memory(slot int) (MemoryInfo, bool) {
	if slot < 0 || slot >= len(mm.infos) {
		return MemoryInfo{}, false
	}
	return mm.infos[slot], true
}

// Memories returns copies of every record in slot order.
func (mm *MemoryManager) Memories() []MemoryInfo {
	out := make([]MemoryInfo, len(mm.infos))
	copy(out, mm.infos)
	return out
}

// Update sets the state of slot. Leaving OCCUPIED clears the owning protocol;
// leaving ENTANGLED clears the remote partner.
func (mm *MemoryManager) Update(slot int, state MemoryState) error {
	if slot < 0 || slot >= len(mm.infos) {
		return fmt.Errorf("%w: %d", ErrUnknownMemory, slot)
	}
	if !validMemoryStates[state] {
		return fmt.Errorf("%w: %q", ErrInvalidMemoryState, state)
	}
	info := &mm.infos[slot]
	info.State = state
	if state != MemoryOccupied {
		info.Protocol = ""
	}
	if state != MemoryEntangled {
		info.Remote = nil
	}
	return nil
}

// occupy marks slot OCCUPIED by protocol. Fails if it is already occupied.
func (mm *MemoryManager) occupy(slot int) error {
	if slot < 0 || slot >= len(mm.infos) {
		return fmt.Errorf("%w: %d", ErrUnknownMemory, slot)
	}
	if mm.infos[slot].State == MemoryOccupied {
		return fmt.Errorf("%w: slot %d held by %q", ErrDoubleClaim, slot, mm.infos[slot].Protocol)
	}
	mm.infos[slot].State = MemoryOccupied
	return nil
}

func (mm *MemoryManager) bind(slot int, protocol string) {
	mm.infos[slot].Protocol = protocol
}

func (mm *MemoryManager) stamp(slot int, now int64) {
	mm.infos[slot].UpdatedAt = now
}

func (mm *MemoryManager) setRemote(slot int, remote RemoteMemory) {
	r := remote
	mm.infos[slot].Remote = &r
}

package parallel

import (
	"fmt"
	"sort"
)

// Registry is the remote-reference table mapping every entity of the simulated
// network to the group that owns it. It is filled once at setup and read-only
// while the simulation runs.
type Registry struct {
	processCount int
	groups       map[string]int
}

// NewRegistry creates an empty registry for processCount partitions.
func NewRegistry(processCount int) (*Registry, error) {
	if processCount < 1 {
		return nil, fmt.Errorf("%w: process count %d", ErrProcessCountMismatch, processCount)
	}
	return &Registry{processCount: processCount, groups: make(map[string]int)}, nil
}

// ProcessCount returns the number of partitions.
func (r *Registry) ProcessCount() int { return r.processCount }

// Len returns the number of registered entities.
func (r *Registry) Len() int { return len(r.groups) }

// Assign records that group owns entity.
func (r *Registry) Assign(entity string, group int) error {
	if group < 0 || group >= r.processCount {
		return fmt.Errorf("%w: entity %q in group %d, valid [0, %d)", ErrGroupOutOfRange, entity, group, r.processCount)
	}
	if prev, ok := r.groups[entity]; ok && prev != group {
		return fmt.Errorf("entity %q assigned to groups %d and %d", entity, prev, group)
	}
	r.groups[entity] = group
	return nil
}

// Locate returns the group owning entity.
func (r *Registry) Locate(entity string) (int, bool) {
	g, ok := r.groups[entity]
	return g, ok
}

// Entities returns the sorted names of the entities owned by group.
func (r *Registry) Entities(group int) []string {
	var out []string
	for name, g := range r.groups {
		if g == group {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

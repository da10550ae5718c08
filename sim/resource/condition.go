package resource

import (
	"fmt"
	"sort"
)

// Condition is a serializable predicate descriptor carried by a REQUEST.
// The receiving node resolves Kind against its ConditionRegistry; no code crosses nodes.
type Condition struct {
	Kind   string            `json:"kind"`
	Params map[string]string `json:"params,omitempty"`
}

// Built-in condition kinds.
const (
	// ConditionAny matches every waiting protocol.
	ConditionAny = "any"
	// ConditionStatus matches protocols whose Status equals Params["status"].
	ConditionStatus = "status"
	// ConditionPairing matches protocols of kind Params["kind"] that expect the
	// requesting node as their partner. Params["status"], when set, must also match.
	ConditionPairing = "pairing"
)

// ConditionFunc evaluates a condition against a waiting protocol.
// requester is the node that sent the REQUEST.
type ConditionFunc func(p Protocol, params map[string]string, requester string) bool

// ConditionRegistry resolves condition kinds to evaluators.
type ConditionRegistry struct {
	funcs map[string]ConditionFunc
}

// NewConditionRegistry creates a registry holding the built-in conditions.
func NewConditionRegistry() *ConditionRegistry {
	r := &ConditionRegistry{funcs: make(map[string]ConditionFunc)}
	r.Register(ConditionAny, func(Protocol, map[string]string, string) bool { return true })
	r.Register(ConditionStatus, func(p Protocol, params map[string]string, _ string) bool {
		return p.Status() == params["status"]
	})
	r.Register(ConditionPairing, func(p Protocol, params map[string]string, requester string) bool {
		if p.Kind() != params["kind"] || p.RemoteNode() != requester {
			return false
		}
		if want, ok := params["status"]; ok && p.Status() != want {
			return false
		}
		return true
	})
	return r
}

// Register adds or replaces the evaluator for kind.
func (r *ConditionRegistry) Register(kind string, fn ConditionFunc) {
	r.funcs[kind] = fn
}

// Kinds returns the registered kinds, sorted.
func (r *ConditionRegistry) Kinds() []string {
	kinds := make([]string, 0, len(r.funcs))
	for k := range r.funcs {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Evaluate reports whether p satisfies c.
func (r *ConditionRegistry) Evaluate(c Condition, p Protocol, requester string) (bool, error) {
	fn, ok := r.funcs[c.Kind]
	if !ok {
		return false, fmt.Errorf("%w: %q; valid: %v", ErrUnknownCondition, c.Kind, r.Kinds())
	}
	return fn(p, c.Params, requester), nil
}

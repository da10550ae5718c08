package resource

// Rule is a declarative allocation rule.
//
// Match inspects a candidate memory (and, read-only, the rest of the node's
// memories) and returns the memories it would claim; an empty result means the
// rule does not apply. Apply receives the claimed memories, as they were before
// being occupied, and returns the protocol that will own them.
type Rule interface {
	Name() string
	Match(candidate MemoryInfo, memories MemoryView) []MemoryInfo
	Apply(claim []MemoryInfo) (Protocol, error)
}

// FuncRule adapts a pair of functions to the Rule interface.
type FuncRule struct {
	RuleName  string
	Condition func(candidate MemoryInfo, memories MemoryView) []MemoryInfo
	Action    func(claim []MemoryInfo) (Protocol, error)
}

// NewRule creates a FuncRule.
func NewRule(name string,
	condition func(candidate MemoryInfo, memories MemoryView) []MemoryInfo,
	action func(claim []MemoryInfo) (Protocol, error)) *FuncRule {
	return &FuncRule{RuleName: name, Condition: condition, Action: action}
}

func (r *FuncRule) Name() string { return r.RuleName }

func (r *FuncRule) Match(candidate MemoryInfo, memories MemoryView) []MemoryInfo {
	return r.Condition(candidate, memories)
}

func (r *FuncRule) Apply(claim []MemoryInfo) (Protocol, error) {
	return r.Action(claim)
}

// RuleManager holds rules in registration order. Rules are immutable once loaded.
type RuleManager struct {
	rules []Rule
}

// NewRuleManager creates an empty RuleManager.
func NewRuleManager() *RuleManager {
	return &RuleManager{}
}

// Load appends rule after every rule loaded before it.
func (rm *RuleManager) Load(rule Rule) {
	rm.rules = append(rm.rules, rule)
}

// Len returns the number of loaded rules.
func (rm *RuleManager) Len() int { return len(rm.rules) }

// Rules returns the loaded rules in registration order.
func (rm *RuleManager) Rules() []Rule {
	out := make([]Rule, len(rm.rules))
	copy(out, rm.rules)
	return out
}

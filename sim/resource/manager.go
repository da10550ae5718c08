package resource

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/qnet-sim/sim/trace"
)

// Host is the node-side environment a ResourceManager runs in.
type Host interface {
	Name() string
	Now() int64
	// SendMessage delivers msg to the receiver named receiver on node dst,
	// after the channel delay between the two nodes.
	SendMessage(dst, receiver string, msg Message) error
}

// Recorder receives negotiation and memory trace records. *trace.SimulationTrace implements it.
type Recorder interface {
	RecordNegotiation(trace.NegotiationRecord)
	RecordMemory(trace.MemoryRecord)
}

// Stats counts negotiation outcomes on one node.
type Stats struct {
	RuleFirings      int
	RequestsSent     int
	RequestsReceived int
	Accepted         int
	Declined         int
	Approved         int
	Rejected         int
	Withdrawn        int
	LocalActivations int
}

// ResourceManager matches rules against free memories and runs the REQUEST/RESPONSE
// negotiation that pairs protocols across nodes.
//
// A protocol admitted by the manager is in exactly one of the pending, waiting or
// active sets until it is released. Transitions happen only in Load, Update,
// Entangle, SendRequest, Withdraw and ReceiveMessage. The manager is driven by a
// single timeline goroutine and is not safe for concurrent use.
type ResourceManager struct {
	owner      Host
	memories   *MemoryManager
	rules      *RuleManager
	conditions *ConditionRegistry
	recorder   Recorder

	pending []Protocol
	waiting []Protocol
	active  []Protocol

	admission map[string]AdmissionState // protocol name -> set currently holding it
	claims    map[string][]int          // protocol name -> memory slots it occupies

	stats Stats
}

// NewResourceManager creates a manager for memorySize memories on owner.
// A nil conditions registry gets the built-in conditions.
func NewResourceManager(owner Host, memorySize int, conditions *ConditionRegistry) *ResourceManager {
	if conditions == nil {
		conditions = NewConditionRegistry()
	}
	return &ResourceManager{
		owner:      owner,
		memories:   NewMemoryManager(memorySize),
		rules:      NewRuleManager(),
		conditions: conditions,
		admission:  make(map[string]AdmissionState),
		claims:     make(map[string][]int),
	}
}

// SetRecorder attaches a trace recorder. A nil recorder disables tracing.
func (rm *ResourceManager) SetRecorder(r Recorder) {
	rm.recorder = r
}

// Conditions returns the registry used to evaluate inbound REQUEST conditions.
func (rm *ResourceManager) Conditions() *ConditionRegistry { return rm.conditions }

// Memories returns copies of every memory record in slot order.
func (rm *ResourceManager) Memories() []MemoryInfo { return rm.memories.Memories() }

// Memory returns a copy of the record for slot.
func (rm *ResourceManager) Memory(slot int) (MemoryInfo, bool) { return rm.memories.Memory(slot) }

// Rules returns the loaded rules in registration order.
func (rm *ResourceManager) Rules() []Rule { return rm.rules.Rules() }

// Stats returns the negotiation counters.
func (rm *ResourceManager) Stats() Stats { return rm.stats }

// PendingProtocols returns the protocols awaiting a RESPONSE, in insertion order.
func (rm *ResourceManager) PendingProtocols() []Protocol {
	return append([]Protocol(nil), rm.pending...)
}

// WaitingProtocols returns the protocols waiting for a REQUEST, in insertion order.
func (rm *ResourceManager) WaitingProtocols() []Protocol {
	return append([]Protocol(nil), rm.waiting...)
}

// ActiveProtocols returns the running protocols, in activation order.
func (rm *ResourceManager) ActiveProtocols() []Protocol {
	return append([]Protocol(nil), rm.active...)
}

// Admission returns the set currently holding p. Protocols that were never
// admitted or have left every set report AdmissionReleased.
func (rm *ResourceManager) Admission(p Protocol) AdmissionState {
	if state, ok := rm.admission[p.Name()]; ok {
		return state
	}
	return AdmissionReleased
}

// ClaimedMemories returns the slots p currently occupies.
func (rm *ResourceManager) ClaimedMemories(p Protocol) []int {
	return append([]int(nil), rm.claims[p.Name()]...)
}

// Load registers rule and immediately applies it to every memory that is
// already free, in slot order. Each memory is claimed by at most one invocation.
func (rm *ResourceManager) Load(rule Rule) error {
	rm.rules.Load(rule)
	for slot := 0; slot < rm.memories.Len(); slot++ {
		info, _ := rm.memories.Memory(slot)
		if info.State == MemoryOccupied {
			continue
		}
		if _, err := rm.apply(rule, info); err != nil {
			return fmt.Errorf("load rule %q: %w", rule.Name(), err)
		}
	}
	return nil
}

// Update sets the state of slot on behalf of p, removes p from the active set and
// offers the memory to the loaded rules in registration order. The first rule
// whose match is non-empty claims it; if none matches the memory stays idle.
func (rm *ResourceManager) Update(p Protocol, slot int, state MemoryState) error {
	return rm.update(p, slot, state, nil)
}

// Entangle marks slot ENTANGLED with remote on behalf of p, then behaves like Update.
func (rm *ResourceManager) Entangle(p Protocol, slot int, remote RemoteMemory) error {
	return rm.update(p, slot, MemoryEntangled, &remote)
}

func (rm *ResourceManager) update(p Protocol, slot int, state MemoryState, remote *RemoteMemory) error {
	if p == nil {
		return ErrNilProtocol
	}
	if state == MemoryOccupied {
		return fmt.Errorf("update slot %d: %w: memories are occupied through rules", slot, ErrInvalidMemoryState)
	}
	before, ok := rm.memories.Memory(slot)
	if !ok {
		return fmt.Errorf("update slot %d: %w", slot, ErrUnknownMemory)
	}
	if before.State == MemoryOccupied && before.Protocol != p.Name() {
		return fmt.Errorf("update slot %d by %q: %w", slot, p.Name(), ErrDoubleClaim)
	}
	if err := rm.memories.Update(slot, state); err != nil {
		return err
	}
	if remote != nil {
		rm.memories.setRemote(slot, *remote)
	}
	rm.memories.stamp(slot, rm.owner.Now())
	rm.recordMemory(slot, before.State, state, p.Name())
	rm.unbind(p.Name(), slot)
	rm.leave(p)

	info, _ := rm.memories.Memory(slot)
	for _, rule := range rm.rules.rules {
		claimed, err := rm.apply(rule, info)
		if err != nil {
			return fmt.Errorf("rule %q on slot %d: %w", rule.Name(), slot, err)
		}
		if claimed {
			break
		}
	}
	return nil
}

// apply evaluates rule against candidate and, on a non-empty claimable match,
// occupies the claimed memories and invokes the rule's action.
func (rm *ResourceManager) apply(rule Rule, candidate MemoryInfo) (bool, error) {
	claim := rule.Match(candidate, rm.memories)
	if len(claim) == 0 {
		return false, nil
	}
	slots := make([]int, 0, len(claim))
	seen := make(map[int]bool, len(claim))
	for _, m := range claim {
		current, ok := rm.memories.Memory(m.Index)
		if !ok {
			return false, fmt.Errorf("claim slot %d: %w", m.Index, ErrUnknownMemory)
		}
		if current.State == MemoryOccupied || seen[m.Index] {
			logrus.Debugf("[tick %012d] %s: rule %q skipped, slot %d already claimed",
				rm.owner.Now(), rm.owner.Name(), rule.Name(), m.Index)
			return false, nil
		}
		seen[m.Index] = true
		slots = append(slots, m.Index)
	}
	for _, slot := range slots {
		if err := rm.memories.occupy(slot); err != nil {
			return false, err
		}
	}

	p, err := rule.Apply(claim)
	if err != nil {
		return false, err
	}
	if p == nil {
		return false, fmt.Errorf("rule %q: %w", rule.Name(), ErrNilProtocol)
	}
	rm.stats.RuleFirings++
	for i, slot := range slots {
		rm.memories.bind(slot, p.Name())
		rm.memories.stamp(slot, rm.owner.Now())
		rm.recordMemory(slot, claim[i].State, MemoryOccupied, p.Name())
	}
	rm.claims[p.Name()] = append(rm.claims[p.Name()], slots...)
	logrus.Debugf("[tick %012d] %s: rule %q claimed slots %v for %s",
		rm.owner.Now(), rm.owner.Name(), rule.Name(), slots, p.Name())

	// A protocol that did not ask for a partner runs on its own.
	if _, admitted := rm.admission[p.Name()]; !admitted {
		rm.active = append(rm.active, p)
		rm.admission[p.Name()] = AdmissionActive
		rm.stats.LocalActivations++
		rm.recordNegotiation(p.Name(), trace.StepLocal, "")
		if err := p.Start(); err != nil {
			return true, fmt.Errorf("start %s: %w", p.Name(), err)
		}
	}
	return true, nil
}

// SendRequest admits p for pairing. With an empty destination p waits passively
// for an inbound REQUEST; otherwise p becomes pending and a REQUEST carrying
// condition is sent to destination's resource manager. A nil condition matches
// any waiting protocol.
func (rm *ResourceManager) SendRequest(p Protocol, destination string, condition *Condition) error {
	if p == nil {
		return ErrNilProtocol
	}
	if state, ok := rm.admission[p.Name()]; ok {
		return fmt.Errorf("%w: %s is %s", ErrAlreadyAdmitted, p.Name(), state)
	}
	if destination == "" {
		rm.waiting = append(rm.waiting, p)
		rm.admission[p.Name()] = AdmissionWaiting
		rm.recordNegotiation(p.Name(), trace.StepWait, "")
		return nil
	}

	cond := Condition{Kind: ConditionAny}
	if condition != nil {
		cond = *condition
	}
	rm.pending = append(rm.pending, p)
	rm.admission[p.Name()] = AdmissionPending
	rm.stats.RequestsSent++
	rm.recordNegotiation(p.Name(), trace.StepRequest, destination)
	msg := &RequestMessage{
		Initiator: ProtocolRef{Node: rm.owner.Name(), Name: p.Name()},
		Condition: cond,
	}
	return rm.owner.SendMessage(destination, ReceiverName, msg)
}

// Withdraw removes a waiting protocol and returns its memories to RAW through the
// Update path. Pending protocols cannot be withdrawn: their REQUEST is in flight.
func (rm *ResourceManager) Withdraw(p Protocol) error {
	if p == nil {
		return ErrNilProtocol
	}
	if rm.admission[p.Name()] != AdmissionWaiting {
		return fmt.Errorf("withdraw %s: %w", p.Name(), ErrNotWaiting)
	}
	rm.stats.Withdrawn++
	rm.recordNegotiation(p.Name(), trace.StepWithdrawn, "")
	logrus.Debugf("[tick %012d] %s: withdrew waiting protocol %s", rm.owner.Now(), rm.owner.Name(), p.Name())
	return rm.release(p)
}

// ReceiveMessage handles a REQUEST or RESPONSE from node src.
// An unrecognized message type is a fatal error.
func (rm *ResourceManager) ReceiveMessage(src string, msg Message) error {
	switch m := msg.(type) {
	case *RequestMessage:
		return rm.handleRequest(src, m)
	case *ResponseMessage:
		return rm.handleResponse(src, m)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownMessageType, msg)
	}
}

// handleRequest pairs the first waiting protocol, in insertion order, that
// satisfies the request's condition. The first REQUEST to arrive wins; an
// approval is final once sent.
func (rm *ResourceManager) handleRequest(src string, m *RequestMessage) error {
	rm.stats.RequestsReceived++
	for i, p := range rm.waiting {
		ok, err := rm.conditions.Evaluate(m.Condition, p, src)
		if err != nil {
			return fmt.Errorf("request from %s: %w", m.Initiator, err)
		}
		if !ok {
			continue
		}

		p.SetPartner(m.Initiator)
		paired := ProtocolRef{Node: rm.owner.Name(), Name: p.Name()}
		resp := &ResponseMessage{Initiator: m.Initiator, Approved: true, Paired: &paired}
		if err := rm.owner.SendMessage(src, ReceiverName, resp); err != nil {
			return err
		}
		rm.waiting = append(rm.waiting[:i], rm.waiting[i+1:]...)
		rm.active = append(rm.active, p)
		rm.admission[p.Name()] = AdmissionActive
		rm.stats.Accepted++
		rm.recordNegotiation(p.Name(), trace.StepAccept, m.Initiator.String())
		logrus.Debugf("[tick %012d] %s: paired %s with %s", rm.owner.Now(), rm.owner.Name(), p.Name(), m.Initiator)
		if err := p.Start(); err != nil {
			return fmt.Errorf("start %s: %w", p.Name(), err)
		}
		return nil
	}

	rm.stats.Declined++
	rm.recordNegotiation("", trace.StepDecline, m.Initiator.String())
	logrus.Debugf("[tick %012d] %s: no waiting protocol for %s", rm.owner.Now(), rm.owner.Name(), m.Initiator)
	return rm.owner.SendMessage(src, ReceiverName, &ResponseMessage{Initiator: m.Initiator, Approved: false})
}

func (rm *ResourceManager) handleResponse(src string, m *ResponseMessage) error {
	idx := -1
	for i, p := range rm.pending {
		if p.Name() == m.Initiator.Name {
			idx = i
			break
		}
	}
	if idx < 0 || m.Initiator.Node != rm.owner.Name() {
		return fmt.Errorf("response from %s: %w: %s is not pending", src, ErrUnknownProtocol, m.Initiator)
	}
	p := rm.pending[idx]

	if !m.Approved {
		rm.stats.Rejected++
		rm.recordNegotiation(p.Name(), trace.StepRejected, src)
		logrus.Debugf("[tick %012d] %s: request of %s rejected by %s", rm.owner.Now(), rm.owner.Name(), p.Name(), src)
		return rm.release(p)
	}
	if m.Paired == nil {
		return fmt.Errorf("response from %s: approved without paired protocol", src)
	}

	p.SetPartner(*m.Paired)
	rm.pending = append(rm.pending[:idx], rm.pending[idx+1:]...)
	rm.active = append(rm.active, p)
	rm.admission[p.Name()] = AdmissionActive
	rm.stats.Approved++
	rm.recordNegotiation(p.Name(), trace.StepApproved, m.Paired.String())
	if err := p.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.Name(), err)
	}
	return nil
}

// release takes p out of every set, lets it clean up and returns its memories to
// RAW through the Update path, so freed memories are offered to the rules again.
func (rm *ResourceManager) release(p Protocol) error {
	rm.leave(p)
	p.Release()
	slots := append([]int(nil), rm.claims[p.Name()]...)
	for _, slot := range slots {
		if err := rm.update(p, slot, MemoryRaw, nil); err != nil {
			return err
		}
	}
	return nil
}

// leave removes p from whichever set holds it.
func (rm *ResourceManager) leave(p Protocol) {
	name := p.Name()
	switch rm.admission[name] {
	case AdmissionPending:
		rm.pending = removeProtocol(rm.pending, name)
	case AdmissionWaiting:
		rm.waiting = removeProtocol(rm.waiting, name)
	case AdmissionActive:
		rm.active = removeProtocol(rm.active, name)
	}
	delete(rm.admission, name)
}

func (rm *ResourceManager) unbind(protocol string, slot int) {
	slots := rm.claims[protocol]
	for i, s := range slots {
		if s == slot {
			slots = append(slots[:i], slots[i+1:]...)
			break
		}
	}
	if len(slots) == 0 {
		delete(rm.claims, protocol)
		return
	}
	rm.claims[protocol] = slots
}

func (rm *ResourceManager) recordNegotiation(protocol string, step trace.NegotiationStep, peer string) {
	if rm.recorder == nil {
		return
	}
	rm.recorder.RecordNegotiation(trace.NegotiationRecord{
		Clock:    rm.owner.Now(),
		Node:     rm.owner.Name(),
		Protocol: protocol,
		Step:     step,
		Peer:     peer,
	})
}

func (rm *ResourceManager) recordMemory(slot int, from, to MemoryState, protocol string) {
	if rm.recorder == nil {
		return
	}
	rm.recorder.RecordMemory(trace.MemoryRecord{
		Clock:    rm.owner.Now(),
		Node:     rm.owner.Name(),
		Slot:     slot,
		From:     string(from),
		To:       string(to),
		Protocol: protocol,
	})
}

func removeProtocol(list []Protocol, name string) []Protocol {
	for i, p := range list {
		if p.Name() == name {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

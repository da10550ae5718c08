package resource

import (
	"fmt"
)

// sentMessage is a message captured by fakeHost.
type sentMessage struct {
	dst      string
	receiver string
	msg      Message
}

// fakeHost records outgoing messages instead of delivering them.
type fakeHost struct {
	name string
	now  int64
	sent []sentMessage
}

func newFakeHost(name string) *fakeHost {
	return &fakeHost{name: name}
}

func (h *fakeHost) Name() string { return h.name }
func (h *fakeHost) Now() int64   { return h.now }
func (h *fakeHost) SendMessage(dst, receiver string, msg Message) error {
	h.sent = append(h.sent, sentMessage{dst: dst, receiver: receiver, msg: msg})
	return nil
}

// take returns and clears the captured messages.
func (h *fakeHost) take() []sentMessage {
	out := h.sent
	h.sent = nil
	return out
}

// stubProtocol is a minimal Protocol recording lifecycle calls.
type stubProtocol struct {
	name     string
	kind     string
	status   string
	remote   string
	partner  *ProtocolRef
	started  int
	released int
	onStart  func() error
}

func newStub(name string) *stubProtocol {
	return &stubProtocol{name: name, kind: "stub", status: "READY"}
}

func (p *stubProtocol) Name() string       { return p.name }
func (p *stubProtocol) Kind() string       { return p.kind }
func (p *stubProtocol) Status() string     { return p.status }
func (p *stubProtocol) RemoteNode() string { return p.remote }
func (p *stubProtocol) SetPartner(ref ProtocolRef) {
	r := ref
	p.partner = &r
}
func (p *stubProtocol) Start() error {
	p.started++
	if p.onStart != nil {
		return p.onStart()
	}
	return nil
}
func (p *stubProtocol) Release() { p.released++ }

// stateRule claims the candidate memory when it is in state and records every protocol it creates.
type stateRule struct {
	name      string
	state     MemoryState // empty matches any non-occupied state
	created   []*stubProtocol
	configure func(p *stubProtocol, claim []MemoryInfo) error
}

func (r *stateRule) Name() string { return r.name }

func (r *stateRule) Match(candidate MemoryInfo, _ MemoryView) []MemoryInfo {
	if r.state != "" && candidate.State != r.state {
		return nil
	}
	return []MemoryInfo{candidate}
}

func (r *stateRule) Apply(claim []MemoryInfo) (Protocol, error) {
	p := newStub(fmt.Sprintf("%s.%d", r.name, len(r.created)))
	r.created = append(r.created, p)
	if r.configure != nil {
		if err := r.configure(p, claim); err != nil {
			return nil, err
		}
	}
	return p, nil
}

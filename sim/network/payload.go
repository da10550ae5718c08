package network

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Payload is the body of a message between nodes.
type Payload interface {
	PayloadKind() string
}

// payloadFactories maps a payload kind to a constructor of an empty value to decode into.
// Filled by init functions; read-only once the simulation starts.
var payloadFactories = map[string]func() Payload{}

// RegisterPayload registers the decoder for kind. factory must return a pointer.
func RegisterPayload(kind string, factory func() Payload) {
	payloadFactories[kind] = factory
}

// RegisteredPayloads returns the registered kinds, sorted.
func RegisteredPayloads() []string {
	kinds := make([]string, 0, len(payloadFactories))
	for k := range payloadFactories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// EncodePayload returns the kind tag and JSON body of p.
func EncodePayload(p Payload) (string, json.RawMessage, error) {
	kind := p.PayloadKind()
	if _, ok := payloadFactories[kind]; !ok {
		return "", nil, fmt.Errorf("encode %T: %w: %q", p, ErrUnknownMessageType, kind)
	}
	body, err := json.Marshal(p)
	if err != nil {
		return "", nil, fmt.Errorf("encode %q: %w", kind, err)
	}
	return kind, body, nil
}

// DecodePayload rebuilds the payload of kind from its JSON body.
func DecodePayload(kind string, body json.RawMessage) (Payload, error) {
	factory, ok := payloadFactories[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q; registered: %v", ErrUnknownMessageType, kind, RegisteredPayloads())
	}
	p := factory()
	if len(body) > 0 {
		if err := json.Unmarshal(body, p); err != nil {
			return nil, fmt.Errorf("decode %q: %w", kind, err)
		}
	}
	return p, nil
}

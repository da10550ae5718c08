package resource

import "errors"

var (
	// ErrUnknownMessageType is returned for a resource-manager message of unrecognized type.
	ErrUnknownMessageType = errors.New("unknown resource manager message type")
	// ErrUnknownProtocol is returned when a RESPONSE names a protocol that is not pending.
	ErrUnknownProtocol = errors.New("unknown protocol")
	// ErrNilProtocol is returned when a rule action or caller provides no protocol.
	ErrNilProtocol = errors.New("nil protocol")
	// ErrAlreadyAdmitted is returned when a protocol already pending, waiting or active is admitted again.
	ErrAlreadyAdmitted = errors.New("protocol already admitted")
	// ErrNotWaiting is returned when withdrawing a protocol that is not waiting.
	ErrNotWaiting = errors.New("protocol is not waiting")
	// ErrUnknownCondition is returned for a condition descriptor with an unregistered kind.
	ErrUnknownCondition = errors.New("unknown condition kind")
	// ErrUnknownMemory is returned for an out-of-range memory slot.
	ErrUnknownMemory = errors.New("unknown memory slot")
	// ErrInvalidMemoryState is returned for an unrecognized memory state.
	ErrInvalidMemoryState = errors.New("invalid memory state")
	// ErrDoubleClaim is returned when a memory would be occupied by two protocols.
	ErrDoubleClaim = errors.New("memory already occupied")
)

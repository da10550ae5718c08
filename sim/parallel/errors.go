package parallel

import "errors"

var (
	// ErrLookaheadViolation is returned when an envelope leaves a partition earlier than now + lookahead.
	ErrLookaheadViolation = errors.New("lookahead violation")
	// ErrCausalityViolation is returned when an inbound envelope is timestamped before the local clock.
	ErrCausalityViolation = errors.New("causality violation")
	// ErrProcessCountMismatch is returned when a process disagrees on the number of partitions.
	ErrProcessCountMismatch = errors.New("process count mismatch")
	// ErrGroupOutOfRange is returned for a group outside [0, process count).
	ErrGroupOutOfRange = errors.New("group out of range")
	// ErrTopologyMismatch is returned when processes join with different topology digests.
	ErrTopologyMismatch = errors.New("topology mismatch")
	// ErrDuplicateGroup is returned when two processes join for the same group.
	ErrDuplicateGroup = errors.New("group joined twice")
	// ErrRoundMismatch is returned when a partition exchanges out of step with its peers.
	ErrRoundMismatch = errors.New("synchronization round mismatch")
	// ErrAborted is returned to every partition once any partition aborts the run.
	ErrAborted = errors.New("run aborted")
	// ErrInvalidLookahead is returned for a lookahead that is not positive.
	ErrInvalidLookahead = errors.New("lookahead must be positive")
	// ErrInfiniteStopTime is returned when the asynchronous scheme is started without a stop time.
	ErrInfiniteStopTime = errors.New("asynchronous timeline needs a finite stop time")
	// ErrLocalEnvelope is returned when an envelope addressed to a local entity is sent through the broker.
	ErrLocalEnvelope = errors.New("envelope destination is local")
	// ErrUnknownEntity is returned for an entity missing from the registry.
	ErrUnknownEntity = errors.New("entity not in registry")
)

// brokerErrors are the errors a broker can report to a partition. They survive
// a round trip through the gRPC broker. ErrAborted comes first: its message
// embeds the aborting partition's own error text.
var brokerErrors = []error{
	ErrAborted,
	ErrProcessCountMismatch,
	ErrGroupOutOfRange,
	ErrTopologyMismatch,
	ErrDuplicateGroup,
	ErrRoundMismatch,
}

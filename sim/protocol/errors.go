package protocol

import "errors"

var (
	// ErrSlotOutOfRange is returned when a photon is requested from a slot the memory array lacks.
	ErrSlotOutOfRange = errors.New("memory slot out of range")
	// ErrNoBSMNode is returned when two linked routers share no BSM node.
	ErrNoBSMNode = errors.New("no BSM node between routers")
	// ErrUnexpectedPhoton is returned when a BSM station receives a photon from a router it does not serve.
	ErrUnexpectedPhoton = errors.New("photon from unserved router")
	// ErrNoResourceManager is returned when link rules are installed on a node without memories.
	ErrNoResourceManager = errors.New("node has no resource manager")
)

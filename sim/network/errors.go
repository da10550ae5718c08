package network

import "errors"

var (
	// ErrUnknownMessageType is returned when a payload kind has no registered decoder.
	ErrUnknownMessageType = errors.New("unknown message type")
	// ErrUnknownReceiver is returned when a message names a receiver the node does not host.
	ErrUnknownReceiver = errors.New("unknown receiver")
	// ErrUnknownNode is returned for a node that is neither local nor known to the partition registry.
	ErrUnknownNode = errors.New("unknown node")
	// ErrMissingComponent is returned when a node lacks a named component or its capability.
	ErrMissingComponent = errors.New("missing component")
	// ErrNoChannel is returned when no channel connects two nodes.
	ErrNoChannel = errors.New("no channel")
	// ErrDuplicateNode is returned when two nodes share a name.
	ErrDuplicateNode = errors.New("duplicate node")
	// ErrDuplicateComponent is returned when two components of a node share a name.
	ErrDuplicateComponent = errors.New("duplicate component")
)

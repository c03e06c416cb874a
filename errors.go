package audiograph

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownNode    = errors.New("unknown node")
	ErrUnknownPort    = errors.New("unknown port")
	ErrPortOccupied   = errors.New("input port already has a connection")
	ErrWouldCycle     = errors.New("connection would create a cycle")
	ErrIONode         = errors.New("graph input and output nodes cannot be removed")
	ErrCycle          = errors.New("graph contains a cycle")
	ErrUnresolvedPort = errors.New("connection refers to a port that does not exist")

	// ErrStreamInterrupted is returned by Context.Update when the backend
	// reported that the stream stopped or glitched. The context stays
	// usable; the caller may deactivate and activate again, possibly with a
	// different device.
	ErrStreamInterrupted = errors.New("audio stream interrupted")

	// ErrQueueFull is returned when queued events could not be handed to the
	// audio thread. The events are kept and retried on the next update.
	ErrQueueFull = errors.New("event queue full")

	ErrNotActivated     = errors.New("context is not activated")
	ErrAlreadyActivated = errors.New("context is already activated")
	ErrStopTimeout      = errors.New("audio thread did not acknowledge stop in time")
)

// CompileError tells which node made the compilation fail. It wraps ErrCycle
// or ErrUnresolvedPort.
type CompileError struct {
	Node NodeID
	Err  error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile graph: node %v: %v", e.Node, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

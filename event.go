package audiograph

import "fmt"

type (
	// ParamID identifies a parameter within a node. Its meaning is defined by
	// the node type.
	ParamID uint32

	// Event is a parameter or state change for one node. Events are created
	// on the control thread, queued on a Context and applied exactly once on
	// the audio thread when their delay condition is met.
	Event struct {
		Node  NodeID
		Param ParamID
		Value float64
		// Data carries payloads that do not fit in Value, such as a
		// SampleResource for a sampler. It must be created on the control
		// thread; the audio thread only reads it.
		Data  any
		Delay Delay
	}

	// Delay tells when an event takes effect.
	Delay struct {
		Kind DelayKind
		// Sample is used with DelayUntilSample: the event applies at the
		// first frame whose clock sample count is >= Sample.
		Sample int64
		// Second is used with DelayUntilSecond.
		Second float64
		// Beat is used with DelayUntilBeat. Such events wait while the
		// transport is not playing.
		Beat float64
	}

	DelayKind uint8
)

const (
	DelayImmediate DelayKind = iota
	DelayUntilSample
	DelayUntilSecond
	DelayUntilBeat
)

// Immediate applies the event at the start of the next callback.
func Immediate() Delay { return Delay{Kind: DelayImmediate} }

// AtSample applies the event at the given elapsed sample count.
func AtSample(n int64) Delay { return Delay{Kind: DelayUntilSample, Sample: n} }

// AtSecond applies the event at the given elapsed time in seconds.
func AtSecond(s float64) Delay { return Delay{Kind: DelayUntilSecond, Second: s} }

// AtBeat applies the event at the given musical position.
func AtBeat(b float64) Delay { return Delay{Kind: DelayUntilBeat, Beat: b} }

// NewEvent returns an event setting param of node to value.
func NewEvent(node NodeID, param ParamID, value float64, delay Delay) Event {
	return Event{Node: node, Param: param, Value: value, Delay: delay}
}

func (d Delay) String() string {
	switch d.Kind {
	case DelayImmediate:
		return "immediate"
	case DelayUntilSample:
		return fmt.Sprintf("sample %d", d.Sample)
	case DelayUntilSecond:
		return fmt.Sprintf("second %g", d.Second)
	case DelayUntilBeat:
		return fmt.Sprintf("beat %g", d.Beat)
	}
	return fmt.Sprintf("DelayKind(%d)", d.Kind)
}

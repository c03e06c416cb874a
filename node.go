// Package audiograph defines the building blocks of a realtime audio graph:
// nodes and the Graph connecting them, events with their delays, clocks and
// the contract audio backends implement. Compiling and running graphs lives
// in the vm package; the engine package ties everything together.
package audiograph

import (
	"math/bits"
	"strconv"

	"github.com/viterin/vek/vek32"
)

// MaxPorts is the maximum number of input or output ports a node may have.
// Port sets are tracked in 64-bit masks.
const MaxPorts = 64

type (
	// NodeID identifies a node within a Graph. IDs are never reused, so an ID
	// of a removed node stays invalid for the lifetime of the graph.
	NodeID uint64

	// Node is a unit of audio processing. After a node has been added to a
	// graph that is active, all its methods except Info are called from the
	// audio thread only; the node owns its state and no other node touches
	// it. Process, WantsProcessing and ApplyEvent must not block or allocate.
	Node interface {
		// Info returns the name and port counts of the node. It is read on
		// the control thread when the node is added and must not change
		// afterwards.
		Info() NodeInfo

		// WantsProcessing is asked before every Process call. silent has a
		// bit set for every input port whose buffer is all zeros and
		// connected has a bit set for every input port with an incoming
		// connection. Returning false skips Process for this block and the
		// engine marks all outputs silent.
		WantsProcessing(silent SilenceMask, connected ConnectedMask) bool

		// Process renders info.Frames frames. inputs and outputs have one
		// buffer per port, each exactly info.Frames long. Input buffers are
		// read-only. The returned status tells how the outputs were written.
		Process(info *ProcInfo, inputs, outputs [][]float32) ProcessStatus

		// ApplyEvent applies a parameter change. It is called between
		// Process calls, at the sample position the event was scheduled for.
		ApplyEvent(ev *Event)
	}

	// NodeInfo describes the ports of a node.
	NodeInfo struct {
		Name       string
		NumInputs  int
		NumOutputs int
	}

	// ProcInfo is passed to Node.Process.
	ProcInfo struct {
		Frames     int
		SampleRate int
		// Clock is the time of the first frame of the block.
		Clock ClockTime
		// InputSilence is the silence mask of the input buffers.
		InputSilence SilenceMask
		// Transport is the transport state in effect during the block.
		Transport TransportState
	}

	// SilenceMask has bit i set when buffer i (an input or output port) holds
	// only zeros.
	SilenceMask uint64

	// ConnectedMask has bit i set when input port i has an incoming
	// connection.
	ConnectedMask uint64

	// ProcessStatus is returned by Node.Process.
	ProcessStatus struct {
		Kind ProcessStatusKind
		// Silent is used with OutputsModifiedWithMask.
		Silent SilenceMask
	}

	ProcessStatusKind int
)

const (
	// OutputsModified means the node wrote every output buffer; the engine
	// treats them as not silent.
	OutputsModified ProcessStatusKind = iota
	// ClearAllOutputs asks the engine to zero the outputs and mark them
	// silent. The node need not touch the buffers.
	ClearAllOutputs
	// Bypass asks the engine to copy input i to output i. Outputs without a
	// matching input are cleared.
	Bypass
	// OutputsModifiedWithMask means the node wrote every output buffer and
	// reports in Silent which of them are all zeros.
	OutputsModifiedWithMask
)

// Modified returns a status for outputs that were written.
func Modified() ProcessStatus { return ProcessStatus{Kind: OutputsModified} }

// Cleared returns a status asking the engine to silence the outputs.
func Cleared() ProcessStatus { return ProcessStatus{Kind: ClearAllOutputs} }

// Bypassed returns a status asking the engine to pass inputs through.
func Bypassed() ProcessStatus { return ProcessStatus{Kind: Bypass} }

// ModifiedWithMask returns a status for written outputs with known silence.
func ModifiedWithMask(silent SilenceMask) ProcessStatus {
	return ProcessStatus{Kind: OutputsModifiedWithMask, Silent: silent}
}

func (id NodeID) String() string {
	return "#" + strconv.FormatUint(uint64(id), 10)
}

// IsSilent reports whether port i is silent.
func (m SilenceMask) IsSilent(i int) bool { return m&(1<<uint(i)) != 0 }

// Set marks port i silent.
func (m *SilenceMask) Set(i int, silent bool) {
	if silent {
		*m |= 1 << uint(i)
	} else {
		*m &^= 1 << uint(i)
	}
}

// AllSilent reports whether all of the first n ports are silent. It is true
// for n == 0.
func (m SilenceMask) AllSilent(n int) bool {
	return n == 0 || bits.TrailingZeros64(^uint64(m)) >= n
}

// IsConnected reports whether input port i has a connection.
func (m ConnectedMask) IsConnected(i int) bool { return m&(1<<uint(i)) != 0 }

// IsSilent reports whether every sample in buf is zero.
func IsSilent(buf []float32) bool {
	if len(buf) == 0 {
		return true
	}
	return vek32.Max(buf) == 0 && vek32.Min(buf) == 0
}

// Package nodes contains the built-in nodes: a sine oscillator, a volume
// control, a mixer, a sample player and a constant source.
package nodes

import (
	"math"

	"github.com/vsariola/audiograph"
)

// Parameters of Sine.
const (
	SineFreq audiograph.ParamID = iota // Hz
	SineGain                           // linear
	SineGate                           // 0 silences the oscillator, anything else opens it
)

// Sine is a sine oscillator with one output.
type Sine struct {
	freq  float64
	gain  float64
	gate  bool
	phase float64 // in cycles, [0, 1)
}

// NewSine returns an oscillator at freq Hz with gain 1 and the gate open.
func NewSine(freq float64) *Sine {
	return &Sine{freq: freq, gain: 1, gate: true}
}

func (s *Sine) Info() audiograph.NodeInfo {
	return audiograph.NodeInfo{Name: "sine", NumOutputs: 1}
}

func (s *Sine) WantsProcessing(audiograph.SilenceMask, audiograph.ConnectedMask) bool {
	return true
}

func (s *Sine) Process(info *audiograph.ProcInfo, _, outputs [][]float32) audiograph.ProcessStatus {
	if !s.gate || s.gain == 0 {
		return audiograph.Cleared()
	}
	step := s.freq / float64(info.SampleRate)
	out := outputs[0]
	for i := range out {
		out[i] = float32(math.Sin(2*math.Pi*s.phase) * s.gain)
		s.phase += step
		s.phase -= math.Floor(s.phase)
	}
	return audiograph.Modified()
}

func (s *Sine) ApplyEvent(ev *audiograph.Event) {
	switch ev.Param {
	case SineFreq:
		s.freq = ev.Value
	case SineGain:
		s.gain = ev.Value
	case SineGate:
		s.gate = ev.Value != 0
	}
}

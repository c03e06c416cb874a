package nodes

import (
	"github.com/viterin/vek/vek32"
	"github.com/vsariola/audiograph"
)

// Mixer sums several multichannel inputs. Input port i*channels+c carries
// channel c of input i; output port c carries the sum of channel c.
type Mixer struct {
	channels int
	inputs   int
}

func NewMixer(channels, inputs int) *Mixer {
	return &Mixer{channels: max(channels, 1), inputs: max(inputs, 1)}
}

func (m *Mixer) Info() audiograph.NodeInfo {
	return audiograph.NodeInfo{Name: "mixer", NumInputs: m.channels * m.inputs, NumOutputs: m.channels}
}

func (m *Mixer) WantsProcessing(silent audiograph.SilenceMask, _ audiograph.ConnectedMask) bool {
	return !silent.AllSilent(m.channels * m.inputs)
}

func (m *Mixer) Process(info *audiograph.ProcInfo, inputs, outputs [][]float32) audiograph.ProcessStatus {
	var silent audiograph.SilenceMask
	for c, out := range outputs {
		clear(out)
		allSilent := true
		for i := 0; i < m.inputs; i++ {
			port := i*m.channels + c
			if info.InputSilence.IsSilent(port) {
				continue
			}
			vek32.Add_Inplace(out, inputs[port])
			allSilent = false
		}
		silent.Set(c, allSilent)
	}
	return audiograph.ModifiedWithMask(silent)
}

func (m *Mixer) ApplyEvent(*audiograph.Event) {}

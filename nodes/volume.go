package nodes

import (
	"github.com/viterin/vek/vek32"
	"github.com/vsariola/audiograph"
)

// VolumeGain is the linear gain of a Volume node.
const VolumeGain audiograph.ParamID = 0

// Volume scales every channel by the same gain. Input i goes to output i.
type Volume struct {
	channels int
	gain     float32
}

func NewVolume(gain float64, channels int) *Volume {
	return &Volume{channels: max(channels, 1), gain: float32(gain)}
}

func (v *Volume) Info() audiograph.NodeInfo {
	return audiograph.NodeInfo{Name: "volume", NumInputs: v.channels, NumOutputs: v.channels}
}

func (v *Volume) WantsProcessing(silent audiograph.SilenceMask, _ audiograph.ConnectedMask) bool {
	return !silent.AllSilent(v.channels)
}

func (v *Volume) Process(info *audiograph.ProcInfo, inputs, outputs [][]float32) audiograph.ProcessStatus {
	switch v.gain {
	case 0:
		return audiograph.Cleared()
	case 1:
		return audiograph.Bypassed()
	}
	for c := range outputs {
		vek32.MulNumber_Into(outputs[c], inputs[c], v.gain)
	}
	return audiograph.ModifiedWithMask(info.InputSilence)
}

func (v *Volume) ApplyEvent(ev *audiograph.Event) {
	if ev.Param == VolumeGain {
		v.gain = float32(ev.Value)
	}
}

// Gain returns the current gain. It is only safe to call while the node is
// not part of a running graph.
func (v *Volume) Gain() float32 { return v.gain }

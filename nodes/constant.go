package nodes

import "github.com/vsariola/audiograph"

// ConstantValue is the value a Constant outputs.
const ConstantValue audiograph.ParamID = 0

// Constant outputs the same value on every sample, useful as a DC offset or
// as a control signal.
type Constant struct {
	value float32
}

func NewConstant(value float64) *Constant { return &Constant{value: float32(value)} }

func (c *Constant) Info() audiograph.NodeInfo {
	return audiograph.NodeInfo{Name: "constant", NumOutputs: 1}
}

func (c *Constant) WantsProcessing(audiograph.SilenceMask, audiograph.ConnectedMask) bool {
	return c.value != 0
}

func (c *Constant) Process(_ *audiograph.ProcInfo, _, outputs [][]float32) audiograph.ProcessStatus {
	for i := range outputs[0] {
		outputs[0][i] = c.value
	}
	return audiograph.Modified()
}

func (c *Constant) ApplyEvent(ev *audiograph.Event) {
	if ev.Param == ConstantValue {
		c.value = float32(ev.Value)
	}
}

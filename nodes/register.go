package nodes

import (
	"fmt"

	"github.com/vsariola/audiograph"
)

// Register adds the built-in node types to reg:
//
//	sine     freq (440), gain (1)
//	volume   gain (1), channels (1)
//	mixer    channels (2), inputs (2)
//	sampler  channels (2)
//	constant value (0)
func Register(reg *audiograph.Registry) {
	reg.MustRegister("constant", func(params map[string]float64) (audiograph.Node, error) {
		return NewConstant(audiograph.Param(params, "value", 0)), nil
	})
	reg.MustRegister("sine", func(params map[string]float64) (audiograph.Node, error) {
		s := NewSine(audiograph.Param(params, "freq", 440))
		s.gain = audiograph.Param(params, "gain", 1)
		return s, nil
	})
	reg.MustRegister("volume", func(params map[string]float64) (audiograph.Node, error) {
		ch, err := channelCount(params, "channels", 1)
		if err != nil {
			return nil, err
		}
		return NewVolume(audiograph.Param(params, "gain", 1), ch), nil
	})
	reg.MustRegister("mixer", func(params map[string]float64) (audiograph.Node, error) {
		ch, err := channelCount(params, "channels", 2)
		if err != nil {
			return nil, err
		}
		in, err := channelCount(params, "inputs", 2)
		if err != nil {
			return nil, err
		}
		if ch*in > audiograph.MaxPorts {
			return nil, fmt.Errorf("mixer with %d inputs of %d channels exceeds %d ports", in, ch, audiograph.MaxPorts)
		}
		return NewMixer(ch, in), nil
	})
	reg.MustRegister("sampler", func(params map[string]float64) (audiograph.Node, error) {
		ch, err := channelCount(params, "channels", 2)
		if err != nil {
			return nil, err
		}
		return NewSampler(ch), nil
	})
}

func channelCount(params map[string]float64, key string, def int) (int, error) {
	v := audiograph.Param(params, key, float64(def))
	if v < 1 || v > audiograph.MaxPorts || v != float64(int(v)) {
		return 0, fmt.Errorf("%s must be a whole number between 1 and %d, got %v", key, audiograph.MaxPorts, v)
	}
	return int(v), nil
}

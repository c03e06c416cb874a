package nodes_test

import (
	"math"
	"slices"
	"testing"

	"github.com/vsariola/audiograph"
	"github.com/vsariola/audiograph/nodes"
)

func buffers(channels, frames int) [][]float32 {
	b := make([][]float32, channels)
	for i := range b {
		b[i] = make([]float32, frames)
	}
	return b
}

func procInfo(frames int, silent audiograph.SilenceMask) *audiograph.ProcInfo {
	return &audiograph.ProcInfo{Frames: frames, SampleRate: 48000, InputSilence: silent}
}

func TestSine(t *testing.T) {
	s := nodes.NewSine(12000) // a quarter of the sample rate
	out := buffers(1, 4)
	if st := s.Process(procInfo(4, 0), nil, out); st.Kind != audiograph.OutputsModified {
		t.Fatalf("status: got %v", st.Kind)
	}
	want := []float32{0, 1, 0, -1}
	for i, w := range want {
		if math.Abs(float64(out[0][i]-w)) > 1e-6 {
			t.Errorf("sample %d: got %v, want %v", i, out[0][i], w)
		}
	}
	s.ApplyEvent(&audiograph.Event{Param: nodes.SineGate, Value: 0})
	if st := s.Process(procInfo(4, 0), nil, out); st.Kind != audiograph.ClearAllOutputs {
		t.Errorf("closed gate: got %v, want ClearAllOutputs", st.Kind)
	}
}

func TestVolumeStatuses(t *testing.T) {
	in := [][]float32{{1, -2}, {0, 0}}
	var silent audiograph.SilenceMask
	silent.Set(1, true)
	for _, c := range []struct {
		gain float64
		want audiograph.ProcessStatusKind
	}{
		{0, audiograph.ClearAllOutputs},
		{1, audiograph.Bypass},
		{0.5, audiograph.OutputsModifiedWithMask},
	} {
		v := nodes.NewVolume(c.gain, 2)
		out := buffers(2, 2)
		st := v.Process(procInfo(2, silent), in, out)
		if st.Kind != c.want {
			t.Errorf("gain %v: got status %v, want %v", c.gain, st.Kind, c.want)
		}
		if c.want == audiograph.OutputsModifiedWithMask {
			if !slices.Equal(out[0], []float32{0.5, -1}) || !st.Silent.IsSilent(1) || st.Silent.IsSilent(0) {
				t.Errorf("gain %v: got %v with mask %b", c.gain, out, st.Silent)
			}
		}
	}
	v := nodes.NewVolume(1, 2)
	if v.WantsProcessing(silent|1, 0) {
		t.Errorf("volume should skip when every input is silent")
	}
	v.ApplyEvent(&audiograph.Event{Param: nodes.VolumeGain, Value: 0.25})
	if v.Gain() != 0.25 {
		t.Errorf("gain after event: got %v", v.Gain())
	}
}

func TestMixerSkipsSilentInputs(t *testing.T) {
	m := nodes.NewMixer(1, 3)
	in := [][]float32{{1, 2}, {99, 99}, {10, 20}}
	var silent audiograph.SilenceMask
	silent.Set(1, true)
	out := buffers(1, 2)
	st := m.Process(procInfo(2, silent), in, out)
	if !slices.Equal(out[0], []float32{11, 22}) {
		t.Errorf("sum: got %v, want [11 22]", out[0])
	}
	if st.Silent.IsSilent(0) {
		t.Errorf("output marked silent")
	}
	if m.WantsProcessing(0b111, 0b111) {
		t.Errorf("mixer should skip when every input is silent")
	}
}

func TestSamplerPlaysOnce(t *testing.T) {
	s := nodes.NewSampler(2)
	res := audiograph.PlanarResource{{1, 2, 3}}
	s.ApplyEvent(&audiograph.Event{Param: nodes.SamplerResource, Data: res})
	if s.WantsProcessing(0, 0) {
		t.Fatalf("sampler should be idle until played")
	}
	s.ApplyEvent(&audiograph.Event{Param: nodes.SamplerPlay, Value: 1})
	out := buffers(2, 2)
	st := s.Process(procInfo(2, 0), nil, out)
	if !slices.Equal(out[0], []float32{1, 2}) || !st.Silent.IsSilent(1) {
		t.Errorf("first block: got %v, mask %b", out, st.Silent)
	}
	s.Process(procInfo(2, 0), nil, out)
	if !slices.Equal(out[0], []float32{3, 0}) {
		t.Errorf("second block: got %v, want [3 0]", out[0])
	}
	if s.WantsProcessing(0, 0) {
		t.Errorf("sampler should stop at the end of the resource")
	}
}

func TestConstant(t *testing.T) {
	c := nodes.NewConstant(0)
	if c.WantsProcessing(0, 0) {
		t.Errorf("a zero constant should not need processing")
	}
	c.ApplyEvent(&audiograph.Event{Param: nodes.ConstantValue, Value: 0.5})
	out := buffers(1, 3)
	c.Process(procInfo(3, 0), nil, out)
	if !slices.Equal(out[0], []float32{0.5, 0.5, 0.5}) {
		t.Errorf("got %v", out[0])
	}
}

func TestRegister(t *testing.T) {
	reg := audiograph.NewRegistry()
	nodes.Register(reg)
	if got := reg.Types(); !slices.Equal(got, []string{"constant", "mixer", "sampler", "sine", "volume"}) {
		t.Errorf("types: got %v", got)
	}
	n, err := reg.New("mixer", map[string]float64{"channels": 2, "inputs": 3})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if info := n.Info(); info.NumInputs != 6 || info.NumOutputs != 2 {
		t.Errorf("mixer ports: got %+v", info)
	}
	for _, params := range []map[string]float64{
		{"channels": 0},
		{"channels": 1.5},
		{"channels": 8, "inputs": 9},
	} {
		if _, err := reg.New("mixer", params); err == nil {
			t.Errorf("mixer with %v should fail", params)
		}
	}
}

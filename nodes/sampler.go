package nodes

import "github.com/vsariola/audiograph"

// Parameters of Sampler.
const (
	// SamplerResource sets the resource to play, carried in Event.Data as an
	// audiograph.SampleResource. Playback stops.
	SamplerResource audiograph.ParamID = iota
	// SamplerPlay starts playback from the beginning when the value is
	// non-zero and stops it otherwise.
	SamplerPlay
)

// Sampler plays a SampleResource once. Resource channel c goes to output c;
// outputs beyond the resource's channels are silent.
type Sampler struct {
	channels int
	res      audiograph.SampleResource
	pos      int
	playing  bool
}

func NewSampler(channels int) *Sampler {
	return &Sampler{channels: max(channels, 1)}
}

func (s *Sampler) Info() audiograph.NodeInfo {
	return audiograph.NodeInfo{Name: "sampler", NumOutputs: s.channels}
}

func (s *Sampler) WantsProcessing(audiograph.SilenceMask, audiograph.ConnectedMask) bool {
	return s.playing
}

func (s *Sampler) Process(info *audiograph.ProcInfo, _, outputs [][]float32) audiograph.ProcessStatus {
	if !s.playing || s.res == nil {
		return audiograph.Cleared()
	}
	s.res.FillBuffers(outputs, s.pos)
	var silent audiograph.SilenceMask
	for c := s.res.NumChannels(); c < len(outputs); c++ {
		clear(outputs[c])
		silent.Set(c, true)
	}
	s.pos += info.Frames
	if s.pos >= s.res.LenFrames() {
		s.playing = false
	}
	return audiograph.ModifiedWithMask(silent)
}

func (s *Sampler) ApplyEvent(ev *audiograph.Event) {
	switch ev.Param {
	case SamplerResource:
		res, _ := ev.Data.(audiograph.SampleResource)
		s.res = res
		s.playing = false
	case SamplerPlay:
		s.pos = 0
		s.playing = ev.Value != 0 && s.res != nil
	}
}

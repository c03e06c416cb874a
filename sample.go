package audiograph

type (
	// SampleResource is decoded audio that a node can play back. Loading and
	// decoding happens elsewhere; the resource only offers random access to
	// frames. FillBuffers is called from the audio thread and must not
	// allocate.
	SampleResource interface {
		NumChannels() int
		LenFrames() int
		// FillBuffers copies frames [startFrame, startFrame+len(dst[c])) of
		// channel c into dst[c]. Frames outside the resource are zero.
		// Channels beyond NumChannels are left untouched.
		FillBuffers(dst [][]float32, startFrame int)
	}

	// InterleavedResource holds frames as L R L R ...
	InterleavedResource struct {
		Channels int
		Data     []float32
	}

	// PlanarResource holds one slice per channel.
	PlanarResource [][]float32
)

func (r *InterleavedResource) NumChannels() int { return r.Channels }

func (r *InterleavedResource) LenFrames() int {
	if r.Channels <= 0 {
		return 0
	}
	return len(r.Data) / r.Channels
}

func (r *InterleavedResource) FillBuffers(dst [][]float32, startFrame int) {
	frames := r.LenFrames()
	for c := 0; c < len(dst) && c < r.Channels; c++ {
		out := dst[c]
		for i := range out {
			f := startFrame + i
			if f < 0 || f >= frames {
				out[i] = 0
				continue
			}
			out[i] = r.Data[f*r.Channels+c]
		}
	}
}

func (r PlanarResource) NumChannels() int { return len(r) }

func (r PlanarResource) LenFrames() int {
	if len(r) == 0 {
		return 0
	}
	return len(r[0])
}

func (r PlanarResource) FillBuffers(dst [][]float32, startFrame int) {
	for c := 0; c < len(dst) && c < len(r); c++ {
		out, src := dst[c], r[c]
		n := 0
		if startFrame < 0 {
			n = min(-startFrame, len(out))
			clear(out[:n])
		}
		if s := startFrame + n; s >= 0 && s < len(src) {
			n += copy(out[n:], src[s:])
		}
		clear(out[n:])
	}
}

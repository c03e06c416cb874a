package offline

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/wav"

	"github.com/vsariola/audiograph"
)

// ReadWAV decodes a PCM .wav file into a planar resource with samples scaled
// to [-1, 1]. It also returns the file's sample rate; no resampling is done.
func ReadWAV(r io.ReadSeeker) (audiograph.PlanarResource, int, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, 0, errors.New("read wav: not a valid .wav file")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("read wav: %w", err)
	}
	channels := int(d.NumChans)
	if channels < 1 || d.BitDepth < 8 || d.BitDepth > 32 {
		return nil, 0, fmt.Errorf("read wav: unsupported format (%d channels, %d bits)", channels, d.BitDepth)
	}
	frames := len(buf.Data) / channels
	scale := 1 / float32(int64(1)<<(d.BitDepth-1))
	res := make(audiograph.PlanarResource, channels)
	for c := range res {
		res[c] = make([]float32, frames)
		for f := range res[c] {
			res[c][f] = float32(buf.Data[f*channels+c]) * scale
		}
	}
	return res, int(d.SampleRate), nil
}

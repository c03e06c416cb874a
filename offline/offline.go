// Package offline implements an audio backend that renders into memory when
// asked to, instead of being driven by a sound card. It is used for
// rendering to .wav files and for testing code that drives an engine.
package offline

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/vsariola/audiograph"
)

type (
	// Backend opens offline streams. A zero Backend is ready to use and
	// honors the sample rate it is asked for.
	Backend struct {
		// SampleRate, if nonzero, overrides the requested sample rate, like a
		// sound card that only supports one rate.
		SampleRate int

		stream *Stream
	}

	// Stream calls its callback only from Render. Everything rendered is kept
	// and can be written out with WriteWAV.
	Stream struct {
		mu       sync.Mutex
		info     audiograph.StreamInfo
		cb       audiograph.Callback
		in, out  [][]float32
		pos      int64
		flags    audiograph.StreamFlags
		err      error
		closed   bool
		recorded [][]float32
	}
)

var ErrClosed = errors.New("offline: stream closed")

const DeviceID = "offline"

func (b *Backend) Devices() ([]audiograph.DeviceInfo, error) {
	return []audiograph.DeviceInfo{{
		ID:         DeviceID,
		Name:       "Offline renderer",
		NumInputs:  audiograph.MaxPorts,
		NumOutputs: audiograph.MaxPorts,
		Default:    true,
	}}, nil
}

func (b *Backend) Open(cfg audiograph.StreamConfig) (audiograph.Stream, error) {
	if cfg.Device != "" && cfg.Device != DeviceID {
		return nil, fmt.Errorf("offline: unknown device %q", cfg.Device)
	}
	info := audiograph.StreamInfo{
		SampleRate: cfg.SampleRate,
		NumInputs:  cfg.NumInputs,
		NumOutputs: cfg.NumOutputs,
	}
	if b.SampleRate > 0 {
		info.SampleRate = b.SampleRate
	}
	if info.SampleRate <= 0 {
		return nil, fmt.Errorf("offline: invalid sample rate %d", info.SampleRate)
	}
	s := &Stream{
		info:     info,
		in:       make([][]float32, info.NumInputs),
		out:      make([][]float32, info.NumOutputs),
		recorded: make([][]float32, info.NumOutputs),
	}
	b.stream = s
	return s, nil
}

// Stream returns the most recently opened stream, or nil.
func (b *Backend) Stream() *Stream { return b.stream }

func (s *Stream) Info() audiograph.StreamInfo { return s.info }

func (s *Stream) Start(cb audiograph.Callback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.cb = cb
	return nil
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cb = nil
	return nil
}

func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Render invokes the callback once for the given number of frames, with
// silent inputs, and returns the output channels. The returned slices are
// only valid until the next call. Render returns nil if the stream was not
// started or is closed.
func (s *Stream) Render(frames int) [][]float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cb == nil {
		return nil
	}
	for i := range s.in {
		s.in[i] = resize(s.in[i], frames)
		clear(s.in[i])
	}
	for i := range s.out {
		s.out[i] = resize(s.out[i], frames)
	}
	s.cb.Process(s.in, s.out, audiograph.ProcessInfo{
		Frames:          frames,
		StreamFrames:    s.pos,
		HasStreamFrames: true,
		Flags:           s.flags,
	})
	s.pos += int64(frames)
	s.flags = 0
	for i, o := range s.out {
		s.recorded[i] = append(s.recorded[i], o...)
	}
	return s.out
}

// Underflow simulates the device running dry for the given number of frames:
// the stream position skips ahead and the next callback is flagged.
func (s *Stream) Underflow(frames int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos += int64(frames)
	s.flags |= audiograph.FlagUnderflow
}

// Interrupt simulates a backend failure. The next callback is flagged and
// Err returns err from now on.
func (s *Stream) Interrupt(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	s.flags |= audiograph.FlagInterrupted
}

// Position is the stream position in frames, including underflows.
func (s *Stream) Position() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// Recorded returns everything rendered so far, one slice per output channel.
func (s *Stream) Recorded() [][]float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recorded
}

// WriteWAV writes everything rendered so far to w as a 16-bit .wav file.
func (s *Stream) WriteWAV(w io.WriteSeeker) error {
	return WriteWAV(w, s.info.SampleRate, s.Recorded())
}

// WriteWAV writes planar float samples, one slice per channel, to w as a
// 16-bit .wav file. Samples are clamped to [-1, 1].
func WriteWAV(w io.WriteSeeker, sampleRate int, channels [][]float32) error {
	if len(channels) == 0 {
		return errors.New("write wav: no channels")
	}
	frames := len(channels[0])
	for _, c := range channels[1:] {
		frames = min(frames, len(c))
	}
	enc := wav.NewEncoder(w, sampleRate, 16, len(channels), 1)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: len(channels),
			SampleRate:  sampleRate,
		},
		Data:           make([]int, frames*len(channels)),
		SourceBitDepth: 16,
	}
	for f := 0; f < frames; f++ {
		for c, ch := range channels {
			v := max(-1, min(1, ch[f]))
			buf.Data[f*len(channels)+c] = int(math.Round(float64(v) * math.MaxInt16))
		}
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	return nil
}

func resize(b []float32, n int) []float32 {
	if cap(b) < n {
		return make([]float32, n)
	}
	return b[:n]
}

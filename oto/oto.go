// Package oto implements an audio backend on top of oto, which pulls audio
// from an io.Reader on its own goroutine.
package oto

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/vsariola/audiograph"
)

type (
	// Backend opens streams on the default output device. oto allows one
	// context per process, so the first Open fixes the sample rate and
	// channel count; later streams report them in Info.
	Backend struct {
		// BufferSize is the latency oto aims for. 0 lets oto decide.
		BufferSize time.Duration

		mu       sync.Mutex
		ctx      *oto.Context
		rate     int
		channels int
	}

	Stream struct {
		player *oto.Player
		info   audiograph.StreamInfo
		reader *reader
	}

	// reader converts oto's pull requests into callbacks. mu is held for the
	// duration of a callback so that Close can wait for it to finish.
	reader struct {
		mu     sync.Mutex
		cb     audiograph.Callback
		closed bool
		in     [][]float32
		out    [][]float32
		pos    int64
	}
)

const bytesPerSample = 4

func (b *Backend) Devices() ([]audiograph.DeviceInfo, error) {
	return []audiograph.DeviceInfo{{
		ID:          "",
		Name:        "Default output",
		NumOutputs:  2,
		SampleRates: []int{44100, 48000},
		Default:     true,
	}}, nil
}

func (b *Backend) Open(cfg audiograph.StreamConfig) (audiograph.Stream, error) {
	if cfg.Device != "" {
		return nil, fmt.Errorf("oto: only the default device is supported, got %q", cfg.Device)
	}
	ctx, err := b.context(cfg)
	if err != nil {
		return nil, err
	}
	r := &reader{
		in:  make([][]float32, cfg.NumInputs),
		out: make([][]float32, b.channels),
	}
	p := ctx.NewPlayer(r)
	return &Stream{
		player: p,
		reader: r,
		info: audiograph.StreamInfo{
			SampleRate: b.rate,
			NumInputs:  cfg.NumInputs,
			NumOutputs: b.channels,
		},
	}, nil
}

func (b *Backend) context(cfg audiograph.StreamConfig) (*oto.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx != nil {
		return b.ctx, nil
	}
	op := &oto.NewContextOptions{
		SampleRate:   cfg.SampleRate,
		ChannelCount: cfg.NumOutputs,
		Format:       oto.FormatFloat32LE,
		BufferSize:   b.BufferSize,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	b.ctx, b.rate, b.channels = ctx, cfg.SampleRate, cfg.NumOutputs
	return ctx, nil
}

func (s *Stream) Info() audiograph.StreamInfo { return s.info }

func (s *Stream) Start(cb audiograph.Callback) error {
	s.reader.mu.Lock()
	if s.reader.closed {
		s.reader.mu.Unlock()
		return errors.New("oto: stream closed")
	}
	s.reader.cb = cb
	s.reader.mu.Unlock()
	s.player.Play()
	return nil
}

func (s *Stream) Close() error {
	s.reader.mu.Lock()
	s.reader.closed = true
	s.reader.cb = nil
	s.reader.mu.Unlock()
	if err := s.player.Close(); err != nil {
		return fmt.Errorf("cannot close oto player: %w", err)
	}
	return nil
}

func (s *Stream) Err() error {
	return s.player.Err()
}

// Read implements io.Reader for oto.Player.
func (r *reader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	channels := len(r.out)
	frames := len(p) / (bytesPerSample * channels)
	if frames == 0 {
		return 0, nil
	}
	for i := range r.in {
		r.in[i] = resize(r.in[i], frames)
		clear(r.in[i])
	}
	for i := range r.out {
		r.out[i] = resize(r.out[i], frames)
	}
	if r.cb == nil {
		for i := range r.out {
			clear(r.out[i])
		}
	} else {
		r.cb.Process(r.in, r.out, audiograph.ProcessInfo{
			Frames:          frames,
			StreamFrames:    r.pos,
			HasStreamFrames: true,
		})
	}
	r.pos += int64(frames)
	n := Interleave(p, r.out, frames)
	return n, nil
}

// resize only allocates while the device asks for more frames than ever
// before, which settles after the first few reads.
func resize(b []float32, n int) []float32 {
	if cap(b) < n {
		return make([]float32, n)
	}
	return b[:n]
}

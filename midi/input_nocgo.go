//go:build !cgo

package midi

import (
	"errors"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// without cgo there is no MIDI driver, so inputs can never be opened

var errNoDriver = errors.New("MIDI input needs a cgo build")

type Input struct{}

func InputNames() ([]string, error) { return nil, errNoDriver }

func OpenInput(prefix string) (*Input, error) { return nil, errNoDriver }

func (m *Input) Poll(fn func(gomidi.Message)) {}

func (m *Input) String() string { return "" }

func (m *Input) Close() error { return nil }

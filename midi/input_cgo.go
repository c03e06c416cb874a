//go:build cgo

package midi

import (
	"fmt"
	"strings"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// Input receives messages from a MIDI input device on the driver's goroutine
// and hands them to the control goroutine through Poll. Messages arriving
// while the buffer is full are dropped.
type Input struct {
	driver   *rtmididrv.Driver
	in       drivers.In
	stop     func()
	messages chan gomidi.Message
}

// InputNames lists the available input devices.
func InputNames() ([]string, error) {
	driver, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("cannot open MIDI driver: %w", err)
	}
	defer driver.Close()
	ins, err := driver.Ins()
	if err != nil {
		return nil, fmt.Errorf("cannot list MIDI inputs: %w", err)
	}
	names := make([]string, len(ins))
	for i, in := range ins {
		names[i] = in.String()
	}
	return names, nil
}

// OpenInput opens the first input device whose name starts with prefix. An
// empty prefix opens the first device.
func OpenInput(prefix string) (*Input, error) {
	driver, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("cannot open MIDI driver: %w", err)
	}
	ins, err := driver.Ins()
	if err != nil {
		driver.Close()
		return nil, fmt.Errorf("cannot list MIDI inputs: %w", err)
	}
	for _, in := range ins {
		if !strings.HasPrefix(in.String(), prefix) {
			continue
		}
		if err := in.Open(); err != nil {
			driver.Close()
			return nil, fmt.Errorf("opening MIDI input %v failed: %w", in, err)
		}
		m := &Input{driver: driver, in: in, messages: make(chan gomidi.Message, 1024)}
		m.stop, err = gomidi.ListenTo(in, m.handle)
		if err != nil {
			in.Close()
			driver.Close()
			return nil, fmt.Errorf("listening to MIDI input %v failed: %w", in, err)
		}
		return m, nil
	}
	driver.Close()
	return nil, fmt.Errorf("no MIDI input starting with %q", prefix)
}

func (m *Input) handle(msg gomidi.Message, _ int32) {
	select {
	case m.messages <- msg:
	default:
	}
}

// Poll calls fn for every message received since the previous call.
func (m *Input) Poll(fn func(gomidi.Message)) {
	for {
		select {
		case msg := <-m.messages:
			fn(msg)
		default:
			return
		}
	}
}

func (m *Input) String() string { return m.in.String() }

func (m *Input) Close() error {
	m.stop()
	m.in.Close()
	return m.driver.Close()
}

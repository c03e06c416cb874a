// Package midi turns MIDI messages into graph events.
package midi

import (
	"math"

	gomidi "gitlab.com/gomidi/midi/v2"

	"github.com/vsariola/audiograph"
	"github.com/vsariola/audiograph/nodes"
)

type (
	// Voice tells a Translator which node plays notes and through which
	// parameters.
	Voice struct {
		Node audiograph.NodeID
		Freq audiograph.ParamID // set to the note frequency in Hz
		Gain audiograph.ParamID // set to velocity / 127
		Gate audiograph.ParamID // 1 on note on, 0 on note off
	}

	// Control maps a MIDI controller linearly onto a node parameter.
	Control struct {
		Node     audiograph.NodeID
		Param    audiograph.ParamID
		Min, Max float64
	}

	// Translator converts note and control change messages into events. It
	// plays notes monophonically: a note off only closes the gate if it is
	// for the note that is currently sounding.
	Translator struct {
		Voice Voice
		// Channel is the MIDI channel listened to, or -1 for all channels.
		Channel  int
		Controls map[uint8]Control

		note    uint8
		playing bool
	}
)

// SineVoice plays notes on a nodes.Sine.
func SineVoice(id audiograph.NodeID) Voice {
	return Voice{Node: id, Freq: nodes.SineFreq, Gain: nodes.SineGain, Gate: nodes.SineGate}
}

func NewTranslator(v Voice) *Translator {
	return &Translator{Voice: v, Channel: -1, Controls: map[uint8]Control{}}
}

// NoteFrequency returns the equal-tempered frequency of a MIDI note, with
// note 69 at 440 Hz.
func NoteFrequency(note uint8) float64 {
	return 440 * math.Pow(2, (float64(note)-69)/12)
}

// Translate appends the events for msg to dst, all with the given delay, and
// returns the extended slice. Messages it does not understand add nothing.
func (t *Translator) Translate(dst []audiograph.Event, msg gomidi.Message, delay audiograph.Delay) []audiograph.Event {
	var channel, key, velocity, controller, value uint8
	ev := func(node audiograph.NodeID, param audiograph.ParamID, v float64) audiograph.Event {
		return audiograph.NewEvent(node, param, v, delay)
	}
	switch {
	case msg.GetNoteOn(&channel, &key, &velocity) && velocity > 0:
		if !t.listens(channel) {
			return dst
		}
		t.note, t.playing = key, true
		v := t.Voice
		return append(dst,
			ev(v.Node, v.Freq, NoteFrequency(key)),
			ev(v.Node, v.Gain, float64(velocity)/127),
			ev(v.Node, v.Gate, 1))
	case msg.GetNoteOn(&channel, &key, &velocity), msg.GetNoteOff(&channel, &key, &velocity):
		if !t.listens(channel) || !t.playing || key != t.note {
			return dst
		}
		t.playing = false
		return append(dst, ev(t.Voice.Node, t.Voice.Gate, 0))
	case msg.GetControlChange(&channel, &controller, &value):
		c, ok := t.Controls[controller]
		if !t.listens(channel) || !ok {
			return dst
		}
		return append(dst, ev(c.Node, c.Param, c.Min+(c.Max-c.Min)*float64(value)/127))
	}
	return dst
}

func (t *Translator) listens(channel uint8) bool {
	return t.Channel < 0 || int(channel) == t.Channel
}

package engine

import (
	"fmt"

	"github.com/vsariola/audiograph"
)

// Transport returns the transport as last set on the control side.
func (c *Context) Transport() audiograph.TransportState { return c.transport }

// Play starts or resumes the beat clock at the next Update.
func (c *Context) Play() {
	c.transport.Playing = true
	c.transportDirty = true
}

// Pause holds the beat clock where it is.
func (c *Context) Pause() {
	c.transport.Playing = false
	c.transportDirty = true
}

// Stop pauses the transport and rewinds it to beat 0.
func (c *Context) Stop() {
	c.Pause()
	c.Seek(0)
}

// Seek moves the beat clock to beat.
func (c *Context) Seek(beat float64) {
	c.transport.Seek++
	c.transport.SeekBeat = beat
	c.transportDirty = true
}

func (c *Context) SetBPM(bpm float64) error {
	if bpm <= 0 {
		return fmt.Errorf("set bpm: must be positive, got %v", bpm)
	}
	c.transport.BPM = bpm
	c.transportDirty = true
	return nil
}

// SetSpeed sets the multiplier applied to the BPM; 0 freezes the beat clock
// without pausing.
func (c *Context) SetSpeed(speed float64) error {
	if speed < 0 {
		return fmt.Errorf("set speed: must not be negative, got %v", speed)
	}
	c.transport.Speed = speed
	c.transportDirty = true
	return nil
}

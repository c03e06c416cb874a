package audiograph

type (
	// ClockTime is a snapshot of the three clocks kept by the audio thread.
	//
	// Samples counts frames processed and is exact. Seconds is corrected
	// from the position reported by the backend, so it keeps counting real
	// time through output underflows; it never goes backwards. Beats
	// advances only while the transport is playing and, like Samples, does
	// not account for underflows. The clocks may therefore drift apart
	// after the backend drops audio.
	ClockTime struct {
		Samples int64
		Seconds float64
		Beats   float64
	}

	// TransportState is the musical transport as seen by the audio thread.
	// Changes are made on the control side through the Context and picked up
	// at the start of the next callback.
	TransportState struct {
		BPM     float64
		Speed   float64 // multiplier applied to BPM, 1 = normal speed
		Playing bool

		// Seek, when different from the value last seen by the audio
		// thread, moves the beat clock to SeekBeat.
		Seek     uint64
		SeekBeat float64
	}
)

// DefaultTransport is a stopped transport at 120 BPM.
func DefaultTransport() TransportState {
	return TransportState{BPM: 120, Speed: 1}
}

// BeatsPerSample returns how far the beat clock advances per frame at the
// given sample rate. It is zero while the transport is not playing.
func (t TransportState) BeatsPerSample(sampleRate int) float64 {
	if !t.Playing || sampleRate <= 0 {
		return 0
	}
	return t.BPM / 60 * t.Speed / float64(sampleRate)
}

// SecondsToSamples converts a duration to a whole number of frames, rounding
// to the nearest frame.
func SecondsToSamples(seconds float64, sampleRate int) int64 {
	v := seconds * float64(sampleRate)
	if v < 0 {
		return -int64(-v + 0.5)
	}
	return int64(v + 0.5)
}

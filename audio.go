package audiograph

type (
	// Backend opens audio streams. Implementations live in subpackages (oto
	// for live output, offline for rendering into memory).
	Backend interface {
		// Devices lists the output devices the backend can open. Backends
		// that only know a default device return a single entry.
		Devices() ([]DeviceInfo, error)
		Open(cfg StreamConfig) (Stream, error)
	}

	DeviceInfo struct {
		ID          string
		Name        string
		NumInputs   int
		NumOutputs  int
		SampleRates []int
		Default     bool
	}

	// StreamConfig is what the engine asks for. The backend may choose a
	// different sample rate; the result is in Stream.Info.
	StreamConfig struct {
		Device         string // empty selects the default device
		SampleRate     int
		NumInputs      int
		NumOutputs     int
		MaxBlockFrames int
	}

	StreamInfo struct {
		SampleRate int
		NumInputs  int
		NumOutputs int
	}

	// Stream is an opened audio stream. Start begins invoking the callback
	// from the audio thread; after Close returns the callback is not invoked
	// again.
	Stream interface {
		Info() StreamInfo
		Start(cb Callback) error
		Close() error
		// Err returns the error that stopped or interrupted the stream, if
		// any. It is safe to call from the control thread at any time.
		Err() error
	}

	// Callback is invoked by the backend on the audio thread. in and out
	// have one buffer per channel, each info.Frames long. The callback must
	// fill out completely.
	Callback interface {
		Process(in, out [][]float32, info ProcessInfo)
	}

	// ProcessInfo describes one backend callback.
	ProcessInfo struct {
		Frames int
		// StreamFrames is the backend's position, in frames, of the first
		// frame of this callback, counting frames lost to underflows. It is
		// only meaningful when HasStreamFrames is set.
		StreamFrames    int64
		HasStreamFrames bool
		Flags           StreamFlags
	}

	StreamFlags uint8
)

const (
	// FlagUnderflow means the backend ran out of output data before this
	// callback.
	FlagUnderflow StreamFlags = 1 << iota
	// FlagInterrupted means the stream glitched or was restarted by the
	// backend.
	FlagInterrupted
)

func (f StreamFlags) Has(flag StreamFlags) bool { return f&flag != 0 }

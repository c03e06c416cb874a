package engine

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to the environment variable names in Config.
const EnvPrefix = "AUDIOGRAPH_"

// Config holds the engine settings. Values are taken from DefaultConfig,
// then from an optional .yml file, then from environment variables such as
// AUDIOGRAPH_SAMPLE_RATE.
type Config struct {
	// Device is passed to the backend; empty selects the default device.
	Device     string `yaml:",omitempty" env:"DEVICE"`
	NumInputs  int    `yaml:"numinputs" env:"NUM_INPUTS"`
	NumOutputs int    `yaml:"numoutputs" env:"NUM_OUTPUTS"`
	SampleRate int    `yaml:"samplerate" env:"SAMPLE_RATE"`

	// MaxBlockFrames is the longest block processed at once. Longer backend
	// callbacks are split; every buffer in a schedule has this length.
	MaxBlockFrames int `yaml:"maxblockframes" env:"MAX_BLOCK_FRAMES"`

	// EventQueueCapacity is the size of the ring carrying events to the
	// audio thread. It bounds how many events one Update can send.
	EventQueueCapacity int `yaml:"eventqueuecapacity" env:"EVENT_QUEUE_CAPACITY"`

	// PendingEventCapacity is how many events the audio thread can hold
	// while they wait for their delay.
	PendingEventCapacity int `yaml:"pendingeventcapacity" env:"PENDING_EVENT_CAPACITY"`

	HardClip    bool    `yaml:"hardclip" env:"HARD_CLIP"`
	ClipCeiling float32 `yaml:"clipceiling" env:"CLIP_CEILING"`

	// StopTimeout bounds how long Deactivate waits for the audio thread to
	// acknowledge the stop request.
	StopTimeout time.Duration `yaml:"stoptimeout" env:"STOP_TIMEOUT"`

	// BPM is the initial tempo of the transport.
	BPM float64 `yaml:"bpm" env:"BPM"`
}

func DefaultConfig() Config {
	return Config{
		NumOutputs:           2,
		SampleRate:           48000,
		MaxBlockFrames:       1024,
		EventQueueCapacity:   512,
		PendingEventCapacity: 1024,
		HardClip:             true,
		ClipCeiling:          1,
		StopTimeout:          time.Second,
		BPM:                  120,
	}
}

// LoadConfig returns the default configuration overridden by the .yml file
// at path (skipped when path is empty) and by the environment.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %v: %w", path, err)
		}
	}
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseEnv overrides the fields of cfg for which an environment variable is
// set.
func ParseEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if c.NumInputs < 0 || c.NumInputs > 64 {
		errs = append(errs, fmt.Errorf("numinputs must be between 0 and 64, got %d", c.NumInputs))
	}
	if c.NumOutputs < 1 || c.NumOutputs > 64 {
		errs = append(errs, fmt.Errorf("numoutputs must be between 1 and 64, got %d", c.NumOutputs))
	}
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("samplerate must be positive, got %d", c.SampleRate))
	}
	if c.MaxBlockFrames <= 0 {
		errs = append(errs, fmt.Errorf("maxblockframes must be positive, got %d", c.MaxBlockFrames))
	}
	if c.EventQueueCapacity <= 0 {
		errs = append(errs, fmt.Errorf("eventqueuecapacity must be positive, got %d", c.EventQueueCapacity))
	}
	if c.PendingEventCapacity <= 0 {
		errs = append(errs, fmt.Errorf("pendingeventcapacity must be positive, got %d", c.PendingEventCapacity))
	}
	if c.HardClip && c.ClipCeiling <= 0 {
		errs = append(errs, fmt.Errorf("clipceiling must be positive, got %v", c.ClipCeiling))
	}
	if c.BPM <= 0 {
		errs = append(errs, fmt.Errorf("bpm must be positive, got %v", c.BPM))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

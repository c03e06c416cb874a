package engine_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/vsariola/audiograph/engine"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := engine.DefaultConfig().Validate(); err != nil {
		t.Errorf("default config is invalid: %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audiograph.yml")
	data := "samplerate: 44100\nmaxblockframes: 256\nhardclip: false\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	t.Setenv("AUDIOGRAPH_MAX_BLOCK_FRAMES", "512")
	cfg, err := engine.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.SampleRate != 44100 {
		t.Errorf("SampleRate: got %d, want 44100 from the file", cfg.SampleRate)
	}
	if cfg.MaxBlockFrames != 512 {
		t.Errorf("MaxBlockFrames: got %d, want 512 from the environment", cfg.MaxBlockFrames)
	}
	if cfg.HardClip {
		t.Errorf("HardClip: got true, want false from the file")
	}
	if cfg.NumOutputs != 2 {
		t.Errorf("NumOutputs: got %d, want the default 2", cfg.NumOutputs)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := engine.LoadConfig(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Errorf("loading a missing file should fail")
	}
	t.Setenv("AUDIOGRAPH_SAMPLE_RATE", "-1")
	if _, err := engine.LoadConfig(""); err == nil {
		t.Errorf("a negative sample rate should fail validation")
	}
	t.Setenv("AUDIOGRAPH_SAMPLE_RATE", "fast")
	if _, err := engine.LoadConfig(""); err == nil {
		t.Errorf("a malformed environment variable should fail")
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := engine.DefaultConfig()
	cfg.NumOutputs = 0
	cfg.BPM = 0
	cfg.EventQueueCapacity = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected an error")
	}
	if _, err := engine.New(cfg); err == nil {
		t.Errorf("New should reject an invalid config")
	}
}

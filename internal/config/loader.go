package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := defaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultConfig returns a Config prefilled with the values that cannot be
// distinguished from "unset" after decoding (booleans that default to true).
func defaultConfig() *Config {
	return &Config{
		Recording: RecordingConfig{SilenceDetection: true},
		Playback:  PlaybackConfig{AutoPlay: true, Haptics: true},
	}
}

// applyDefaults fills zero-valued fields with their documented defaults.
func applyDefaults(cfg *Config) {
	if cfg.Client.LogLevel == "" {
		cfg.Client.LogLevel = LogInfo
	}
	if cfg.Recording.Device == "" {
		cfg.Recording.Device = DefaultDevice
	}
	if cfg.Recording.SampleRate == 0 {
		cfg.Recording.SampleRate = DefaultSampleRate
	}
	if cfg.Recording.SilenceThreshold == 0 {
		cfg.Recording.SilenceThreshold = DefaultSilenceThreshold
	}
	if cfg.Recording.SilenceDuration == 0 {
		cfg.Recording.SilenceDuration = DefaultSilenceDuration
	}
	if cfg.Recording.MaxDuration == 0 {
		cfg.Recording.MaxDuration = DefaultMaxDuration
	}
	if cfg.Recording.InterruptPolicy == "" {
		cfg.Recording.InterruptPolicy = InterruptReject
	}
	if cfg.Transport.DeviceName == "" {
		cfg.Transport.DeviceName = DefaultDeviceName
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Client.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("client.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Client.LogLevel))
	}

	if cfg.Recording.SampleRate < 8000 || cfg.Recording.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("recording.sample_rate %d is out of range [8000, 192000]", cfg.Recording.SampleRate))
	}
	if cfg.Recording.SilenceThreshold < 0 || cfg.Recording.SilenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("recording.silence_threshold %.3f is out of range [0, 1]", cfg.Recording.SilenceThreshold))
	}
	if cfg.Recording.SilenceDuration <= 0 {
		errs = append(errs, fmt.Errorf("recording.silence_duration %.2f must be positive", cfg.Recording.SilenceDuration))
	}
	if cfg.Recording.MaxDuration <= 0 {
		errs = append(errs, fmt.Errorf("recording.max_duration %d must be positive", cfg.Recording.MaxDuration))
	}
	if !cfg.Recording.InterruptPolicy.IsValid() {
		errs = append(errs, fmt.Errorf("recording.interrupt_policy %q is invalid; valid values: reject, discard", cfg.Recording.InterruptPolicy))
	}
	if cfg.Recording.SilenceDetection && cfg.Recording.SilenceDuration >= float64(cfg.Recording.MaxDuration) {
		errs = append(errs, fmt.Errorf("recording.silence_duration %.2f must be shorter than recording.max_duration %d", cfg.Recording.SilenceDuration, cfg.Recording.MaxDuration))
	}

	if cfg.Transport.Endpoint == "" {
		errs = append(errs, errors.New("transport.endpoint is required"))
	}

	return errors.Join(errs...)
}

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"parley/encoder"
	"parley/hotkey"
	"parley/realtime"
	"parley/session"
)

const appDir = "parley"

const defaultInstructions = "You are a helpful, friendly voice assistant. Keep answers short and " +
	"conversational. When the user tells you something worth remembering about " +
	"themselves, store it with the set_memory tool."

// Config is the merged configuration: built-in defaults, then the YAML
// file, then the environment, then command-line flags.
type Config struct {
	RelayURL      string        `yaml:"relay_url"`
	APIKey        string        `yaml:"api_key"`
	Model         string        `yaml:"model"`
	Voice         string        `yaml:"voice"`
	Greeting      string        `yaml:"greeting"`
	Instructions  string        `yaml:"instructions"`
	TurnMode      string        `yaml:"turn_mode"`
	SampleRate    int           `yaml:"sample_rate"`
	DecodeFormat  string        `yaml:"decode_format"`
	DecodeDir     string        `yaml:"decode_dir"`
	StoreDir      string        `yaml:"store_dir"`
	Profile       string        `yaml:"profile"`
	Device        string        `yaml:"device"`
	Hotkey        string        `yaml:"hotkey"`
	FrameInterval time.Duration `yaml:"frame_interval"`
}

func defaultConfig() Config {
	cfg := Config{
		Model:         realtime.DefaultModel,
		Voice:         "alloy",
		Greeting:      session.DefaultGreeting,
		Instructions:  defaultInstructions,
		TurnMode:      string(session.TurnManual),
		SampleRate:    24000,
		DecodeFormat:  encoder.FormatWAV,
		DecodeDir:     filepath.Join(os.TempDir(), appDir),
		Profile:       "default",
		Hotkey:        hotkey.DefaultBinding,
		FrameInterval: 33 * time.Millisecond,
	}
	if dir, err := os.UserConfigDir(); err == nil {
		cfg.StoreDir = filepath.Join(dir, appDir, "store")
	}
	return cfg
}

func defaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine config directory: %w", err)
	}
	return filepath.Join(dir, appDir, "config.yaml"), nil
}

// loadConfig reads path over the defaults. A missing file is only an error
// when the user named it explicitly.
func loadConfig(path string, explicit bool) (Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("OPENAI_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := getenv("PARLEY_RELAY_URL"); v != "" {
		c.RelayURL = v
	}
}

func (c Config) validate() error {
	var errs []error
	if c.RelayURL == "" && c.APIKey == "" {
		errs = append(errs, errors.New("no credentials: set OPENAI_API_KEY or relay_url"))
	}
	if _, err := session.ParseTurnMode(c.TurnMode); err != nil {
		errs = append(errs, err)
	}
	if c.DecodeFormat != encoder.FormatWAV && c.DecodeFormat != encoder.FormatFLAC {
		errs = append(errs, fmt.Errorf("unknown decode_format %q (want wav or flac)", c.DecodeFormat))
	}
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate))
	}
	if c.FrameInterval <= 0 {
		errs = append(errs, fmt.Errorf("frame_interval must be positive, got %s", c.FrameInterval))
	}
	if c.Hotkey != "" {
		if _, err := hotkey.ParseBinding(c.Hotkey); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// realtimeConfig builds the agent connection settings. A relay takes the
// place of the public endpoint and holds the key itself.
func (c Config) realtimeConfig() realtime.Config {
	rc := realtime.Config{
		URL:        realtime.DefaultURL,
		APIKey:     c.APIKey,
		Model:      c.Model,
		SampleRate: c.SampleRate,
		Session: realtime.SessionConfig{
			Voice:             c.Voice,
			InputAudioFormat:  "pcm16",
			OutputAudioFormat: "pcm16",
		},
	}
	if c.RelayURL != "" {
		rc.URL = c.RelayURL
		rc.APIKey = ""
	}
	if c.TurnMode == string(session.TurnVAD) {
		rc.Session.TurnDetection = realtime.ServerVAD()
	}
	return rc
}

// Package config provides the configuration schema and loader for Tallyvox.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/tallyvox/internal/discord"
)

// Duration wraps time.Duration so YAML configs can say "2s" or "1m30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Defaults applied by Validate when a field is left empty.
const (
	DefaultDebounce   = 2 * time.Second
	DefaultListenAddr = ":8080"
	DefaultStorePath  = "data/tallyvox.db"
	DefaultQueueSize  = 64
)

// Config is the root configuration structure for Tallyvox.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Discord  discord.Config `yaml:"discord"`
	Keywords KeywordsConfig `yaml:"keywords"`
	STT      STTConfig      `yaml:"stt"`
	Store    StoreConfig    `yaml:"store"`
	Audio    AudioConfig    `yaml:"audio"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the metrics endpoint listens on
	// (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// KeywordsConfig declares the tracked keywords and how detections are
// collapsed.
type KeywordsConfig struct {
	// Track lists the keywords counted per speaker. Matching is
	// case-insensitive substring matching.
	Track []string `yaml:"track"`

	// DebounceInterval is the minimum time between two counted detections
	// of the same keyword by the same speaker. Defaults to 2s.
	DebounceInterval Duration `yaml:"debounce_interval"`
}

// STTConfig selects and configures the speech recognition engine.
type STTConfig struct {
	// Name selects the engine: "whisper-native", "deepgram", or "mock".
	Name string `yaml:"name"`

	// ModelPath is the path to the model file (whisper-native).
	ModelPath string `yaml:"model_path"`

	// APIKey authenticates against a hosted engine (deepgram).
	APIKey string `yaml:"api_key"`

	// Model selects a hosted model variant (e.g., "nova-3").
	Model string `yaml:"model"`

	// Language is the expected spoken language (e.g., "en", "fr").
	Language string `yaml:"language"`
}

// StoreConfig selects and configures the durable count store.
type StoreConfig struct {
	// Name selects the backend: "sqlite" or "postgres".
	Name string `yaml:"name"`

	// Path is the SQLite database file. Defaults to data/tallyvox.db.
	Path string `yaml:"path"`

	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// AudioConfig holds pipeline tuning knobs.
type AudioConfig struct {
	// SourceRate is the capture sample rate. Defaults to 48000 (Discord).
	SourceRate int `yaml:"source_rate"`

	// TargetRate is the recognizer input sample rate. Defaults to 16000.
	TargetRate int `yaml:"target_rate"`

	// QueueSize bounds each speaker's frame queue. Defaults to 64.
	QueueSize int `yaml:"queue_size"`
}

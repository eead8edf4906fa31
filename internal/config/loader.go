package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/tallyvox/internal/counter"
)

// ValidSTTNames lists the recognised speech engine names. Used by [Validate]
// to reject typos early instead of failing at engine construction.
var ValidSTTNames = []string{"whisper-native", "deepgram", "mock"}

// ValidStoreNames lists the recognised count store backends.
var ValidStoreNames = []string{"sqlite", "postgres"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
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

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values and fills in
// defaults for empty fields. It returns a joined error listing all
// validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}

	// Discord
	if cfg.Discord.Token == "" {
		errs = append(errs, errors.New("discord.token is required"))
	}
	if cfg.Discord.GuildID == "" {
		errs = append(errs, errors.New("discord.guild_id is required"))
	}

	// Keywords
	if len(cfg.Keywords.Track) == 0 {
		errs = append(errs, errors.New("keywords.track must list at least one keyword"))
	}
	seen := make(map[string]int, len(cfg.Keywords.Track))
	for i, kw := range cfg.Keywords.Track {
		if kw == "" {
			errs = append(errs, fmt.Errorf("keywords.track[%d] is empty", i))
			continue
		}
		if prev, ok := seen[kw]; ok {
			errs = append(errs, fmt.Errorf("keywords.track[%d] %q is a duplicate of keywords.track[%d]", i, kw, prev))
		}
		seen[kw] = i
	}
	if cfg.Keywords.DebounceInterval < 0 {
		errs = append(errs, fmt.Errorf("keywords.debounce_interval %s is negative", cfg.Keywords.DebounceInterval))
	}
	if cfg.Keywords.DebounceInterval == 0 {
		cfg.Keywords.DebounceInterval = Duration(DefaultDebounce)
	}

	// Keywords that sound alike get counted together by imperfect
	// transcription; point that out at startup rather than letting users
	// puzzle over the numbers.
	for _, pair := range counter.ConfusablePairs(cfg.Keywords.Track) {
		slog.Warn("keywords sound alike and may be miscounted for each other",
			"first", pair[0],
			"second", pair[1],
		)
	}

	// STT
	switch {
	case cfg.STT.Name == "":
		errs = append(errs, fmt.Errorf("stt.name is required; valid values: %v", ValidSTTNames))
	case !slices.Contains(ValidSTTNames, cfg.STT.Name):
		errs = append(errs, fmt.Errorf("stt.name %q is unknown; valid values: %v", cfg.STT.Name, ValidSTTNames))
	case cfg.STT.Name == "whisper-native" && cfg.STT.ModelPath == "":
		errs = append(errs, errors.New("stt.model_path is required when stt.name is whisper-native"))
	case cfg.STT.Name == "deepgram" && cfg.STT.APIKey == "":
		errs = append(errs, errors.New("stt.api_key is required when stt.name is deepgram"))
	}

	// Store
	if cfg.Store.Name == "" {
		cfg.Store.Name = "sqlite"
	}
	switch {
	case !slices.Contains(ValidStoreNames, cfg.Store.Name):
		errs = append(errs, fmt.Errorf("store.name %q is unknown; valid values: %v", cfg.Store.Name, ValidStoreNames))
	case cfg.Store.Name == "postgres" && cfg.Store.PostgresDSN == "":
		errs = append(errs, errors.New("store.postgres_dsn is required when store.name is postgres"))
	}
	if cfg.Store.Name == "sqlite" && cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath
	}

	// Audio
	if cfg.Audio.SourceRate < 0 || cfg.Audio.TargetRate < 0 {
		errs = append(errs, errors.New("audio sample rates must be positive"))
	}
	if cfg.Audio.SourceRate == 0 {
		cfg.Audio.SourceRate = 48000
	}
	if cfg.Audio.TargetRate == 0 {
		cfg.Audio.TargetRate = 16000
	}
	if cfg.Audio.QueueSize < 0 {
		errs = append(errs, errors.New("audio.queue_size must not be negative"))
	}
	if cfg.Audio.QueueSize == 0 {
		cfg.Audio.QueueSize = DefaultQueueSize
	}

	return errors.Join(errs...)
}

// SlogLevel maps the configured log level to a slog.Level. Empty or invalid
// values map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

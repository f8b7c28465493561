package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/hwidmann/memovox/pkg/audio"
)

// ValidLLMProviders lists known summarizer backend names. Used by [Validate]
// to warn about likely typos without rejecting third-party backends.
var ValidLLMProviders = []string{
	"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// envOverrides are the environment variables that override file settings.
// They cover secrets and per-deployment endpoints, not tuning knobs.
type envOverrides struct {
	LogLevel    string `env:"MEMOVOX_LOG_LEVEL"`
	STTURL      string `env:"MEMOVOX_STT_URL"`
	WhisperPath string `env:"MEMOVOX_WHISPER_MODEL"`
	LLMAPIKey   string `env:"MEMOVOX_LLM_API_KEY"`
	LLMBaseURL  string `env:"MEMOVOX_LLM_BASE_URL"`
	NotesDir    string `env:"MEMOVOX_NOTES_DIR"`
	PostgresDSN string `env:"MEMOVOX_POSTGRES_DSN"`
	MetricsAddr string `env:"MEMOVOX_METRICS_ADDR"`
}

// Load reads the YAML configuration file at path, applies environment
// overrides and defaults, and returns a validated [Config].
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

// LoadFromReader decodes a YAML config from r, applies environment
// overrides and defaults, and validates the result. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.withDefaults()

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays MEMOVOX_* environment variables onto cfg.
func applyEnv(cfg *Config) error {
	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return fmt.Errorf("config: parse environment: %w", err)
	}
	if ov.LogLevel != "" {
		cfg.LogLevel = LogLevel(ov.LogLevel)
	}
	if ov.STTURL != "" {
		cfg.Providers.STT.URL = ov.STTURL
	}
	if ov.WhisperPath != "" {
		cfg.Providers.STT.ModelPath = ov.WhisperPath
	}
	if ov.LLMAPIKey != "" {
		cfg.Providers.LLM.APIKey = ov.LLMAPIKey
	}
	if ov.LLMBaseURL != "" {
		cfg.Providers.LLM.BaseURL = ov.LLMBaseURL
	}
	if ov.NotesDir != "" {
		cfg.Notes.Dir = ov.NotesDir
	}
	if ov.PostgresDSN != "" {
		cfg.Notes.PostgresDSN = ov.PostgresDSN
	}
	if ov.MetricsAddr != "" {
		cfg.MetricsAddr = ov.MetricsAddr
	}
	return nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if err := audio.CheckFormat(cfg.Audio.SampleRate, cfg.Audio.FrameMs); err != nil {
		errs = append(errs, err)
	}
	if !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.VAD.Aggressiveness < 0 || cfg.VAD.Aggressiveness > 3 {
		errs = append(errs, fmt.Errorf("vad.aggressiveness %d is out of range [0, 3]", cfg.VAD.Aggressiveness))
	}
	if cfg.VAD.HangoverFrames < 1 {
		errs = append(errs, fmt.Errorf("vad.hangover_frames must be at least 1"))
	}
	if cfg.VAD.MinSegmentMs < cfg.Audio.FrameMs {
		errs = append(errs, fmt.Errorf("vad.min_segment_ms %d is shorter than one frame (%d ms)", cfg.VAD.MinSegmentMs, cfg.Audio.FrameMs))
	}
	if cfg.Queues.Frames < 1 || cfg.Queues.Segments < 1 {
		errs = append(errs, fmt.Errorf("queues.frames and queues.segments must be at least 1"))
	}

	switch cfg.Providers.STT.Engine {
	case "whisper":
		if cfg.Providers.STT.ModelPath == "" {
			errs = append(errs, fmt.Errorf("providers.stt.model_path is required when engine is whisper"))
		}
	case "remote":
		if cfg.Providers.STT.URL == "" {
			errs = append(errs, fmt.Errorf("providers.stt.url is required when engine is remote"))
		}
	default:
		errs = append(errs, fmt.Errorf("providers.stt.engine %q is invalid; valid values: whisper, remote", cfg.Providers.STT.Engine))
	}

	if name := cfg.Providers.LLM.Provider; !slices.Contains(ValidLLMProviders, name) {
		slog.Warn("unknown LLM provider name, may be a typo or third-party backend",
			"name", name,
			"known", ValidLLMProviders,
		)
	}

	return errors.Join(errs...)
}

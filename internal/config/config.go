// Package config provides the configuration schema and loader for memovox.
// Configuration is read from a YAML file; a handful of secrets and
// deployment settings can be overridden through MEMOVOX_* environment
// variables.
package config

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

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Audio      AudioConfig     `yaml:"audio"`
	VAD        VADConfig       `yaml:"vad"`
	Queues     QueuesConfig    `yaml:"queues"`
	Providers  ProvidersConfig `yaml:"providers"`
	Notes      NotesConfig     `yaml:"notes"`
	Vocabulary []string        `yaml:"vocabulary"`
	LogLevel   LogLevel        `yaml:"log_level"`

	// MetricsAddr, when set (e.g. ":9100"), serves Prometheus metrics and
	// health probes on that address for the duration of the run.
	MetricsAddr string `yaml:"metrics_addr"`
}

// AudioConfig describes the capture format.
type AudioConfig struct {
	// SampleRate in Hz. One of 8000, 16000, 32000, 48000. Default: 16000.
	SampleRate int `yaml:"sample_rate"`

	// FrameMs is the frame duration in milliseconds: 10, 20 or 30.
	// Default: 30.
	FrameMs int `yaml:"frame_ms"`

	// InputWAV, when set, replays a mono 16-bit WAV file instead of
	// capturing from a device. Useful for reproducible runs and testing.
	InputWAV string `yaml:"input_wav"`
}

// VADConfig tunes speech detection and segmentation.
type VADConfig struct {
	// Aggressiveness is the classifier level, 0 (permissive) to 3 (strict).
	Aggressiveness int `yaml:"aggressiveness"`

	// HangoverFrames is how many consecutive silence frames close a
	// segment. Default: 10.
	HangoverFrames int `yaml:"hangover_frames"`

	// HangoverKeepMs is how much trailing silence each segment keeps.
	// Default: 100.
	HangoverKeepMs int `yaml:"hangover_keep_ms"`

	// MinSegmentMs is the minimum net speech per segment; shorter bursts
	// are discarded. Default: 250.
	MinSegmentMs int `yaml:"min_segment_ms"`
}

// QueuesConfig sets the bounded channel capacities between pipeline stages.
type QueuesConfig struct {
	// Frames is the capture-to-segmentation queue size. Default: 50.
	Frames int `yaml:"frames"`

	// Segments is the segmentation-to-transcription queue size. Default: 4.
	Segments int `yaml:"segments"`
}

// ProvidersConfig selects the decoder and summarizer backends.
type ProvidersConfig struct {
	STT STTConfig `yaml:"stt"`
	LLM LLMConfig `yaml:"llm"`
}

// STTConfig selects and configures the speech decoder.
type STTConfig struct {
	// Engine is "whisper" (local model) or "remote" (websocket decoder).
	// Default: "whisper".
	Engine string `yaml:"engine"`

	// ModelPath is the ggml model file for the whisper engine.
	ModelPath string `yaml:"model_path"`

	// URL is the websocket endpoint for the remote engine.
	URL string `yaml:"url"`

	// Language hints the spoken language ("en", "de", ...). Empty lets the
	// decoder detect it.
	Language string `yaml:"language"`
}

// LLMConfig selects and configures the note summarizer backend.
type LLMConfig struct {
	// Provider is the backend name: "openai", "anthropic", "ollama",
	// "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile".
	// Default: "ollama".
	Provider string `yaml:"provider"`

	// Model is the model name within the provider. Default: "llama3".
	Model string `yaml:"model"`

	// APIKey authenticates against the provider, when it needs one.
	// Prefer the MEMOVOX_LLM_API_KEY environment variable over the file.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`
}

// NotesConfig controls note generation output.
type NotesConfig struct {
	// Dir is the directory markdown notes are written to. Default: "notes".
	Dir string `yaml:"dir"`

	// Title is the note heading; empty derives a dated default at save
	// time.
	Title string `yaml:"title"`

	// PostgresDSN, when set, additionally stores notes in PostgreSQL.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// withDefaults fills unset fields with their documented defaults.
func (c *Config) withDefaults() {
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.FrameMs == 0 {
		c.Audio.FrameMs = 30
	}
	if c.VAD.HangoverFrames == 0 {
		c.VAD.HangoverFrames = 10
	}
	if c.VAD.HangoverKeepMs == 0 {
		c.VAD.HangoverKeepMs = 100
	}
	if c.VAD.MinSegmentMs == 0 {
		c.VAD.MinSegmentMs = 250
	}
	if c.Queues.Frames == 0 {
		c.Queues.Frames = 50
	}
	if c.Queues.Segments == 0 {
		c.Queues.Segments = 4
	}
	if c.Providers.STT.Engine == "" {
		c.Providers.STT.Engine = "whisper"
	}
	if c.Providers.LLM.Provider == "" {
		c.Providers.LLM.Provider = "ollama"
	}
	if c.Providers.LLM.Model == "" {
		c.Providers.LLM.Model = "llama3"
	}
	if c.Notes.Dir == "" {
		c.Notes.Dir = "notes"
	}
	if c.LogLevel == "" {
		c.LogLevel = LogInfo
	}
}

package config

import (
	"strings"
	"testing"
)

const validYAML = `
audio:
  sample_rate: 16000
  frame_ms: 20
vad:
  aggressiveness: 2
providers:
  stt:
    engine: whisper
    model_path: /models/ggml-base.bin
    language: en
  llm:
    provider: ollama
    model: llama3
notes:
  dir: /tmp/notes
vocabulary:
  - Eldrinax
  - Kubernetes
log_level: debug
`

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader() = %v", err)
	}
	if cfg.Audio.FrameMs != 20 {
		t.Errorf("FrameMs = %d, want 20", cfg.Audio.FrameMs)
	}
	if cfg.VAD.Aggressiveness != 2 {
		t.Errorf("Aggressiveness = %d, want 2", cfg.VAD.Aggressiveness)
	}
	if cfg.Providers.STT.ModelPath != "/models/ggml-base.bin" {
		t.Errorf("ModelPath = %q", cfg.Providers.STT.ModelPath)
	}
	if len(cfg.Vocabulary) != 2 || cfg.Vocabulary[0] != "Eldrinax" {
		t.Errorf("Vocabulary = %v", cfg.Vocabulary)
	}
	if cfg.LogLevel != LogDebug {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(`
providers:
  stt:
    engine: remote
    url: wss://stt.example.com/v1
`))
	if err != nil {
		t.Fatalf("LoadFromReader() = %v", err)
	}
	if cfg.Audio.SampleRate != 16000 || cfg.Audio.FrameMs != 30 {
		t.Errorf("audio defaults = %d Hz / %d ms", cfg.Audio.SampleRate, cfg.Audio.FrameMs)
	}
	if cfg.VAD.HangoverFrames != 10 || cfg.VAD.HangoverKeepMs != 100 || cfg.VAD.MinSegmentMs != 250 {
		t.Errorf("vad defaults = %+v", cfg.VAD)
	}
	if cfg.Queues.Frames != 50 || cfg.Queues.Segments != 4 {
		t.Errorf("queue defaults = %+v", cfg.Queues)
	}
	if cfg.Providers.LLM.Provider != "ollama" || cfg.Providers.LLM.Model != "llama3" {
		t.Errorf("llm defaults = %+v", cfg.Providers.LLM)
	}
	if cfg.Notes.Dir != "notes" {
		t.Errorf("Notes.Dir = %q, want %q", cfg.Notes.Dir, "notes")
	}
	if cfg.LogLevel != LogInfo {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader(`
audio:
  sample_rte: 16000
providers:
  stt:
    engine: remote
    url: wss://stt.example.com
`))
	if err == nil {
		t.Fatal("LoadFromReader() should reject unknown fields")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader(`
audio:
  sample_rate: 44100
  frame_ms: 25
vad:
  aggressiveness: 9
providers:
  stt:
    engine: whisper
`))
	if err == nil {
		t.Fatal("LoadFromReader() should fail validation")
	}
	msg := err.Error()
	for _, want := range []string{"sample rate", "aggressiveness", "model_path"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q missing %q", msg, want)
		}
	}
}

func TestValidate_RemoteEngineNeedsURL(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader(`
providers:
  stt:
    engine: remote
`))
	if err == nil || !strings.Contains(err.Error(), "url") {
		t.Errorf("LoadFromReader() = %v, want missing url error", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MEMOVOX_LLM_API_KEY", "sk-from-env")
	t.Setenv("MEMOVOX_NOTES_DIR", "/data/notes")

	cfg, err := LoadFromReader(strings.NewReader(`
providers:
  stt:
    engine: remote
    url: wss://stt.example.com
  llm:
    api_key: sk-from-file
`))
	if err != nil {
		t.Fatalf("LoadFromReader() = %v", err)
	}
	if cfg.Providers.LLM.APIKey != "sk-from-env" {
		t.Errorf("APIKey = %q, want the environment to win", cfg.Providers.LLM.APIKey)
	}
	if cfg.Notes.Dir != "/data/notes" {
		t.Errorf("Notes.Dir = %q", cfg.Notes.Dir)
	}
}

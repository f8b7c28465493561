package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hwidmann/memovox/internal/observe"
	"github.com/hwidmann/memovox/internal/resilience"
	"github.com/hwidmann/memovox/pkg/provider/llm"
)

// notePrompt is the system prompt sent to the model when turning a voice
// memo transcript into a note.
const notePrompt = `Turn the following voice memo transcript into a structured note.
Preserve: action items, decisions, dates, amounts, and names exactly as spoken.
Open with a one-sentence gist, then short sections or bullet lists as the content
suggests. Do not invent content that is not in the transcript. Write the note in
the language of the transcript.`

// truncationMarker is appended when the transcript had to be cut to fit the
// model's context budget.
const truncationMarker = "[transcript truncated to fit context]"

// ErrEmptyTranscript is returned by Generate when there is nothing to
// summarize.
var ErrEmptyTranscript = errors.New("notes: empty transcript")

// GeneratorConfig tunes a [Generator].
type GeneratorConfig struct {
	// Temperature for the completion. Default: 0.3.
	Temperature float64

	// MaxTokens caps the note length. Zero means provider default.
	MaxTokens int

	// ContextBudget is the rough prompt token budget; longer transcripts
	// are cut line-wise from the end. Default: 8000.
	ContextBudget int

	// Breaker configures the circuit breaker around the model calls.
	// Name defaults to "notes".
	Breaker resilience.BreakerConfig

	// Metrics receives note generation timing. Default:
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Generator produces note summaries from transcripts. A circuit breaker
// around the model call keeps a dead backend from stalling shutdown: once it
// opens, Generate fails fast with [resilience.ErrCircuitOpen].
type Generator struct {
	provider llm.Provider
	breaker  *resilience.CircuitBreaker
	cfg      GeneratorConfig
}

// NewGenerator creates a Generator over the given provider.
func NewGenerator(provider llm.Provider, cfg GeneratorConfig) (*Generator, error) {
	if provider == nil {
		return nil, errors.New("notes: provider must not be nil")
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.3
	}
	if cfg.ContextBudget <= 0 {
		cfg.ContextBudget = 8000
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = "notes"
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Generator{
		provider: provider,
		breaker:  resilience.NewCircuitBreaker(cfg.Breaker),
		cfg:      cfg,
	}, nil
}

// Generate summarizes the transcript into a note body.
func (g *Generator) Generate(ctx context.Context, transcript string) (string, error) {
	ctx, span := observe.StartSpan(ctx, "notes.generate")
	defer span.End()

	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return "", ErrEmptyTranscript
	}

	trimmed, err := g.fitBudget(transcript)
	if err != nil {
		return "", err
	}

	req := llm.CompletionRequest{
		SystemPrompt: notePrompt,
		Messages: []llm.Message{
			{Role: "user", Content: trimmed},
		},
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	}

	start := time.Now()
	var resp *llm.CompletionResponse
	err = g.breaker.Execute(func() error {
		var cerr error
		resp, cerr = g.provider.Complete(ctx, req)
		return cerr
	})
	if err != nil {
		return "", fmt.Errorf("notes: generate: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", errors.New("notes: model returned an empty note")
	}
	g.cfg.Metrics.NoteDuration.Record(ctx, time.Since(start).Seconds())

	observe.Logger(ctx).Debug("note generated",
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return resp.Content, nil
}

// fitBudget cuts the transcript line-wise from the end when its estimated
// token count exceeds the context budget.
func (g *Generator) fitBudget(transcript string) (string, error) {
	count, err := g.provider.CountTokens([]llm.Message{{Role: "user", Content: transcript}})
	if err != nil {
		return "", fmt.Errorf("notes: count tokens: %w", err)
	}
	if count <= g.cfg.ContextBudget {
		return transcript, nil
	}

	lines := strings.Split(transcript, "\n")
	keep := len(lines) * g.cfg.ContextBudget / count
	if keep < 1 {
		keep = 1
	}
	return strings.Join(lines[:keep], "\n") + "\n" + truncationMarker, nil
}

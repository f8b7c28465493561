// Package whisper implements the stt.Decoder interface on top of the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.
//
// The model is loaded once and shared across sessions; each session gets a
// fresh whisper context, so no decoder state survives from one segment to
// the next. whisper.cpp is a batch decoder — it produces no interim
// results, so Partials never emits and all text arrives from Finalize.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/hwidmann/memovox/pkg/provider/stt"
)

const defaultLanguage = "en"

// Compile-time assertion that Decoder satisfies stt.Decoder.
var _ stt.Decoder = (*Decoder)(nil)

// Decoder implements stt.Decoder using the whisper.cpp Go bindings.
type Decoder struct {
	model    whisperlib.Model
	language string
}

// Option is a functional option for configuring a Decoder.
type Option func(*Decoder)

// WithLanguage sets the default BCP-47 language code used when a session
// config leaves Language empty. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(d *Decoder) { d.language = lang }
}

// New creates a Decoder that loads the whisper.cpp model from the given
// file path. The caller must call Close when the decoder is no longer
// needed.
func New(modelPath string, opts ...Option) (*Decoder, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	d := &Decoder{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Close releases the whisper model.
func (d *Decoder) Close() error {
	if d.model != nil {
		return d.model.Close()
	}
	return nil
}

// NewSession implements stt.Decoder. The whisper context for the session is
// allocated here so that allocation pressure surfaces as
// [stt.ErrResourceExhausted] before any audio is fed.
func (d *Decoder) NewSession(ctx context.Context, cfg stt.SessionConfig) (stt.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wctx, err := d.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w: %w", stt.ErrResourceExhausted, err)
	}

	lang := cfg.Language
	if lang == "" {
		lang = d.language
	}

	return &session{
		wctx:     wctx,
		language: lang,
		partials: make(chan stt.Chunk),
	}, nil
}

// session is a live whisper decoding session for one speech segment.
// It is owned by a single goroutine; no internal locking beyond the
// close guard is needed.
type session struct {
	wctx     whisperlib.Context
	language string

	buf       []byte
	partials  chan stt.Chunk
	finalized bool

	once   sync.Once
	closed bool
	mu     sync.Mutex
}

// Feed implements stt.Session. Frames are buffered until Finalize; whisper
// performs no incremental decoding.
func (s *session) Feed(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stt.ErrSessionClosed
	}
	if len(frame) == 0 || len(frame)%2 != 0 {
		return fmt.Errorf("whisper: malformed frame of %d bytes", len(frame))
	}
	s.buf = append(s.buf, frame...)
	return nil
}

// Partials implements stt.Session. whisper.cpp emits no interim results;
// the returned channel only ever closes.
func (s *session) Partials() <-chan stt.Chunk { return s.partials }

// Finalize implements stt.Session. It runs whisper inference over the
// buffered audio and returns the concatenated segment text.
func (s *session) Finalize(ctx context.Context) (stt.Chunk, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return stt.Chunk{}, stt.ErrSessionClosed
	}
	if s.finalized {
		s.mu.Unlock()
		return stt.Chunk{}, errors.New("whisper: session already finalized")
	}
	s.finalized = true
	pcm := s.buf
	s.buf = nil
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return stt.Chunk{}, err
	}
	if len(pcm) == 0 {
		return stt.Chunk{Final: true}, nil
	}

	samples := pcmToFloat32(pcm)
	if err := s.wctx.SetLanguage(s.language); err != nil {
		return stt.Chunk{}, fmt.Errorf("whisper: set language %q: %w", s.language, err)
	}
	if err := s.wctx.Process(samples, nil, nil, nil); err != nil {
		return stt.Chunk{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := s.wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stt.Chunk{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}

	return stt.Chunk{Text: strings.Join(parts, " "), Final: true}, nil
}

// Close implements stt.Session.
func (s *session) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.buf = nil
		s.mu.Unlock()
		close(s.partials)
	})
	return nil
}

// Compile-time assertion that session satisfies stt.Session.
var _ stt.Session = (*session)(nil)

// Package remote implements the stt.Decoder interface against a websocket
// transcription server.
//
// Each decoder session opens its own websocket connection. The client sends
// a JSON start message describing the audio format, streams raw s16le PCM
// frames as binary messages, and finishes with a finalize message. The
// server replies with JSON results:
//
//	{"type": "partial", "text": "...", "confidence": 0.87}
//	{"type": "final",   "text": "...", "confidence": 0.92}
//
// A server that refuses a new session because it is saturated closes the
// socket with status 1013 (try again later); this surfaces as
// [stt.ErrResourceExhausted] so the pipeline retries with backoff.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/hwidmann/memovox/pkg/provider/stt"
)

// Compile-time assertion that Decoder satisfies stt.Decoder.
var _ stt.Decoder = (*Decoder)(nil)

// Decoder implements stt.Decoder by connecting to a remote websocket
// transcription server for every session.
type Decoder struct {
	url         string
	dialTimeout time.Duration
	finalWait   time.Duration
}

// Option is a functional option for configuring a Decoder.
type Option func(*Decoder)

// WithDialTimeout bounds how long a session open may take. Default: 5s.
func WithDialTimeout(d time.Duration) Option {
	return func(dec *Decoder) { dec.dialTimeout = d }
}

// WithFinalizeTimeout bounds how long Finalize waits for the server's final
// result. Default: 30s.
func WithFinalizeTimeout(d time.Duration) Option {
	return func(dec *Decoder) { dec.finalWait = d }
}

// New creates a Decoder for the websocket transcription server at url
// (e.g. "ws://localhost:9090/v1/stream").
func New(url string, opts ...Option) (*Decoder, error) {
	if url == "" {
		return nil, errors.New("remote: url must not be empty")
	}
	d := &Decoder{
		url:         url,
		dialTimeout: 5 * time.Second,
		finalWait:   30 * time.Second,
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// startMessage opens the protocol exchange on a fresh connection.
type startMessage struct {
	Type       string `json:"type"`
	SampleRate int    `json:"sample_rate"`
	Language   string `json:"language,omitempty"`
}

// controlMessage carries frame-less client commands (finalize).
type controlMessage struct {
	Type string `json:"type"`
}

// result is a server-side transcription message.
type result struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error,omitempty"`
}

// NewSession implements stt.Decoder.
func (d *Decoder) NewSession(ctx context.Context, cfg stt.SessionConfig) (stt.Session, error) {
	dialCtx, cancel := context.WithTimeout(ctx, d.dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, d.url, nil)
	if err != nil {
		if websocket.CloseStatus(err) == websocket.StatusTryAgainLater {
			return nil, fmt.Errorf("remote: server saturated: %w", stt.ErrResourceExhausted)
		}
		return nil, fmt.Errorf("remote: dial %s: %w", d.url, err)
	}

	sctx, scancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &session{
		conn:      conn,
		ctx:       sctx,
		cancel:    scancel,
		finalWait: d.finalWait,
		partials:  make(chan stt.Chunk, 16),
		final:     make(chan result, 1),
	}

	start, err := json.Marshal(startMessage{Type: "start", SampleRate: cfg.SampleRate, Language: cfg.Language})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("remote: marshal start: %w", err)
	}
	if err := conn.Write(dialCtx, websocket.MessageText, start); err != nil {
		s.Close()
		if websocket.CloseStatus(err) == websocket.StatusTryAgainLater {
			return nil, fmt.Errorf("remote: server saturated: %w", stt.ErrResourceExhausted)
		}
		return nil, fmt.Errorf("remote: send start: %w", err)
	}

	s.wg.Add(1)
	go s.receiveLoop()
	return s, nil
}

// session is one websocket decoding session. The receive loop owns the
// partials channel and closes it on exit.
type session struct {
	conn      *websocket.Conn
	ctx       context.Context
	cancel    context.CancelFunc
	finalWait time.Duration

	partials chan stt.Chunk
	final    chan result

	mu      sync.Mutex
	readErr error
	closed  bool

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Feed implements stt.Session. The frame bytes are written as one binary
// websocket message.
func (s *session) Feed(frame []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return stt.ErrSessionClosed
	}
	s.mu.Unlock()

	if len(frame) == 0 || len(frame)%2 != 0 {
		return fmt.Errorf("remote: malformed frame of %d bytes", len(frame))
	}
	if err := s.conn.Write(s.ctx, websocket.MessageBinary, frame); err != nil {
		return fmt.Errorf("remote: send frame: %w", err)
	}
	return nil
}

// Partials implements stt.Session.
func (s *session) Partials() <-chan stt.Chunk { return s.partials }

// Finalize implements stt.Session. It asks the server to flush and waits
// for the final result.
func (s *session) Finalize(ctx context.Context) (stt.Chunk, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return stt.Chunk{}, stt.ErrSessionClosed
	}
	s.mu.Unlock()

	fin, err := json.Marshal(controlMessage{Type: "finalize"})
	if err != nil {
		return stt.Chunk{}, fmt.Errorf("remote: marshal finalize: %w", err)
	}
	if err := s.conn.Write(ctx, websocket.MessageText, fin); err != nil {
		return stt.Chunk{}, fmt.Errorf("remote: send finalize: %w", err)
	}

	wait := time.NewTimer(s.finalWait)
	defer wait.Stop()

	select {
	case res, ok := <-s.final:
		if !ok {
			s.mu.Lock()
			err := s.readErr
			s.mu.Unlock()
			if err == nil {
				err = errors.New("remote: connection closed before final result")
			}
			return stt.Chunk{}, err
		}
		if res.Error != "" {
			return stt.Chunk{}, fmt.Errorf("remote: server error: %s", res.Error)
		}
		return stt.Chunk{Text: res.Text, Final: true, Confidence: res.Confidence}, nil
	case <-wait.C:
		return stt.Chunk{}, errors.New("remote: timed out waiting for final result")
	case <-ctx.Done():
		return stt.Chunk{}, ctx.Err()
	}
}

// receiveLoop reads server messages, forwarding partials and capturing the
// final result. It owns partials and final: both are closed when it exits.
func (s *session) receiveLoop() {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.final)

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil {
				s.mu.Lock()
				s.readErr = fmt.Errorf("remote: read: %w", err)
				s.mu.Unlock()
			}
			return
		}

		var res result
		if err := json.Unmarshal(data, &res); err != nil {
			continue
		}

		switch res.Type {
		case "partial":
			select {
			case s.partials <- stt.Chunk{Text: res.Text, Confidence: res.Confidence}:
			default:
				// Partials are advisory; drop rather than stall the reader.
			}
		case "final":
			select {
			case s.final <- res:
			default:
			}
			return
		}
	}
}

// Close implements stt.Session.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
		s.cancel()
		s.wg.Wait()
	})
	return nil
}

// Compile-time assertion that session satisfies stt.Session.
var _ stt.Session = (*session)(nil)

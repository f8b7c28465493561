// Package mock provides in-memory mock implementations of the
// [stt.Decoder] and [stt.Session] interfaces for use in unit tests.
//
// The mocks are safe for concurrent use. They record every call so tests
// can assert on session counts, fed audio, and finalization order, and they
// expose exported fields the test sets to script results and failures.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/hwidmann/memovox/pkg/provider/stt"
)

// Decoder is a mock implementation of [stt.Decoder].
// Set the exported fields before use; inspect Sessions and the Call* fields
// after.
type Decoder struct {
	mu sync.Mutex

	// Texts holds the final text returned by successive sessions, in open
	// order. Sessions beyond the list return "segment <n>".
	Texts []string

	// OpenErrors is consumed one entry per NewSession call; a non-nil entry
	// is returned as the call's error. Once exhausted, sessions open
	// normally. Use stt.ErrResourceExhausted entries to script retry paths.
	OpenErrors []error

	// FinalizeErrors maps a session index (0-based, in open order) to an
	// error returned by that session's Finalize.
	FinalizeErrors map[int]error

	// PartialTexts, when non-empty, is emitted on every session's Partials
	// channel after each Feed call (one entry per Feed, cycling).
	PartialTexts []string

	// Stall, when non-nil, makes every Finalize block until the channel is
	// closed. Use this to simulate a transcriber slower than real time.
	Stall chan struct{}

	// CallCountNewSession records how many times NewSession was called,
	// including calls that failed with a scripted OpenError.
	CallCountNewSession int

	// Sessions holds every session opened, in order.
	Sessions []*Session

	finalized []int
}

// NewSession implements [stt.Decoder].
func (d *Decoder) NewSession(ctx context.Context, cfg stt.SessionConfig) (stt.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.CallCountNewSession++
	if len(d.OpenErrors) > 0 {
		err := d.OpenErrors[0]
		d.OpenErrors = d.OpenErrors[1:]
		if err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx := len(d.Sessions)
	text := fmt.Sprintf("segment %d", idx)
	if idx < len(d.Texts) {
		text = d.Texts[idx]
	}
	s := &Session{
		Index:     idx,
		Config:    cfg,
		finalText: text,
		partials:  make(chan stt.Chunk, 64),
		decoder:   d,
	}
	if d.FinalizeErrors != nil {
		s.finalizeErr = d.FinalizeErrors[idx]
	}
	d.Sessions = append(d.Sessions, s)
	return s, nil
}

// FinalizedOrder returns the indices of sessions that have been finalized,
// in finalization order.
func (d *Decoder) FinalizedOrder() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.finalized...)
}

func (d *Decoder) recordFinalized(idx int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.finalized = append(d.finalized, idx)
}

// Session is a mock implementation of [stt.Session] created by [Decoder].
type Session struct {
	// Index is the session's position in open order.
	Index int

	// Config is the SessionConfig passed to NewSession.
	Config stt.SessionConfig

	mu          sync.Mutex
	Fed         [][]byte
	closed      bool
	finalizedAt bool

	finalText   string
	finalizeErr error
	partials    chan stt.Chunk
	decoder     *Decoder
	closeOnce   sync.Once
	partialIdx  int
}

// Feed implements [stt.Session], recording the frame.
func (s *Session) Feed(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stt.ErrSessionClosed
	}
	cp := append([]byte(nil), frame...)
	s.Fed = append(s.Fed, cp)

	if len(s.decoder.PartialTexts) > 0 {
		text := s.decoder.PartialTexts[s.partialIdx%len(s.decoder.PartialTexts)]
		s.partialIdx++
		select {
		case s.partials <- stt.Chunk{Text: text}:
		default:
		}
	}
	return nil
}

// Partials implements [stt.Session].
func (s *Session) Partials() <-chan stt.Chunk { return s.partials }

// Finalize implements [stt.Session], returning the scripted text or error.
func (s *Session) Finalize(ctx context.Context) (stt.Chunk, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return stt.Chunk{}, stt.ErrSessionClosed
	}
	s.finalizedAt = true
	stall := s.decoder.Stall
	s.mu.Unlock()

	if stall != nil {
		select {
		case <-stall:
		case <-ctx.Done():
			return stt.Chunk{}, ctx.Err()
		}
	}

	s.decoder.recordFinalized(s.Index)
	if s.finalizeErr != nil {
		return stt.Chunk{}, s.finalizeErr
	}
	return stt.Chunk{Text: s.finalText, Final: true, Confidence: 1}, nil
}

// Finalized reports whether Finalize was called on this session.
func (s *Session) Finalized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalizedAt
}

// Closed reports whether Close was called on this session.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close implements [stt.Session].
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.partials)
	})
	return nil
}

// Compile-time interface assertions.
var (
	_ stt.Decoder = (*Decoder)(nil)
	_ stt.Session = (*Session)(nil)
)

// Package mock provides an in-memory mock implementation of the
// [audio.Source] interface for use in unit tests.
//
// The mock is safe for concurrent use. It records every method call so that
// tests can assert on call counts, and it exposes exported fields the test
// sets to script the frame stream and error behaviour.
//
// Typical usage:
//
//	src := &mock.Source{
//	    Frames: []audio.Frame{{Data: pcm, Seq: 0, SampleRate: 16000}},
//	}
//	f, err := src.Next(ctx) // returns Frames[0]
//	f, err = src.Next(ctx)  // returns audio.ErrEndOfStream
package mock

import (
	"context"
	"sync"

	"github.com/hwidmann/memovox/pkg/audio"
)

// Source is a mock implementation of [audio.Source]. Set the exported fields
// before use; inspect the Call* fields after.
type Source struct {
	mu sync.Mutex

	// Frames is the scripted frame stream returned by successive Next calls.
	// When exhausted, Next returns NextError if set, otherwise
	// [audio.ErrEndOfStream].
	Frames []audio.Frame

	// NextError, when non-nil, is returned by Next after Frames is exhausted
	// (instead of ErrEndOfStream). Use this to simulate device failures.
	NextError error

	// ErrorAfter, when > 0, makes Next return NextError once that many frames
	// have been delivered, even if Frames has entries left.
	ErrorAfter int

	// BlockOnExhausted, when true, makes Next block on ctx until cancellation
	// once Frames is exhausted. Use this to simulate a stalled device.
	BlockOnExhausted bool

	// CloseError is returned by Close.
	CloseError error

	// CallCountNext records how many times Next was called.
	CallCountNext int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	next int
}

// Next implements [audio.Source] following the scripted behaviour above.
func (s *Source) Next(ctx context.Context) (audio.Frame, error) {
	s.mu.Lock()
	s.CallCountNext++
	if s.ErrorAfter > 0 && s.next >= s.ErrorAfter && s.NextError != nil {
		s.mu.Unlock()
		return audio.Frame{}, s.NextError
	}
	if s.next < len(s.Frames) {
		f := s.Frames[s.next]
		s.next++
		s.mu.Unlock()
		return f, nil
	}
	blocking := s.BlockOnExhausted
	err := s.NextError
	s.mu.Unlock()

	if blocking {
		<-ctx.Done()
		return audio.Frame{}, ctx.Err()
	}
	if err != nil {
		return audio.Frame{}, err
	}
	return audio.Frame{}, audio.ErrEndOfStream
}

// Close implements [audio.Source]. Returns CloseError.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	return s.CloseError
}

// Package stt defines the Decoder interface for streaming speech-to-text
// backends.
//
// A Decoder wraps a recognition engine (a local whisper.cpp model, a remote
// websocket transcription server, …) and exposes it as a session-per-segment
// streaming interface. The pipeline opens exactly one [Session] per speech
// segment so decoder state can never leak between utterances; sessions are
// never reused.
//
// Decoders are modeled as not safely usable by multiple concurrent segments:
// the pipeline serializes session use, and implementations only need to
// support one active session at a time (though they may allow more).
package stt

import (
	"context"
	"errors"
)

// ErrResourceExhausted indicates the decoder could not allocate a new
// session due to transient resource pressure. Callers should retry with
// backoff before treating the failure as permanent.
var ErrResourceExhausted = errors.New("stt: decoder resources exhausted")

// ErrSessionClosed is returned by Session methods after Close.
var ErrSessionClosed = errors.New("stt: session is closed")

// SessionConfig describes the audio format and recognition hints for a new
// decoder session.
type SessionConfig struct {
	// SampleRate is the PCM sample rate in Hz of the frames fed to the session.
	SampleRate int

	// Language is the BCP-47 language tag for recognition (e.g. "en", "de").
	// Empty lets the decoder auto-detect, if supported.
	Language string
}

// Session is one open decoding session, scoped to a single speech segment.
//
// The owning stage feeds raw PCM frames with Feed, then calls Finalize
// exactly once to obtain the authoritative result, then Close. Calling Close
// without Finalize discards the session's audio (used on cancellation).
//
// A Session is owned by exactly one goroutine at a time; implementations are
// not required to support concurrent method calls, except that the Partials
// channel may be consumed from another goroutine.
type Session interface {
	// Feed delivers one frame of raw s16le mono PCM to the decoder. It may
	// cause zero or more partial results to appear on Partials. Feeding a
	// malformed frame (wrong length for the configured format) is a decoder
	// error that fails the segment.
	Feed(frame []byte) error

	// Partials returns a read-only channel emitting low-latency interim
	// results. The channel is closed when the session ends. Chunks delivered
	// here are mutable-until-final guesses and must not be stored as
	// authoritative text.
	Partials() <-chan Chunk

	// Finalize flushes the decoder and returns the single final chunk for
	// the session. The text may be empty if no speech was recognized.
	// Finalize must be called at most once.
	Finalize(ctx context.Context) (Chunk, error)

	// Close releases the session's resources. Safe to call more than once.
	// After Close, Feed and Finalize return ErrSessionClosed.
	Close() error
}

// Decoder is the abstraction over any streaming speech-to-text backend.
type Decoder interface {
	// NewSession opens a decoding session for one speech segment. Returns
	// ErrResourceExhausted (possibly wrapped) when the engine is under
	// transient resource pressure and the caller should retry.
	NewSession(ctx context.Context, cfg SessionConfig) (Session, error)
}

package stt

import "time"

// Chunk is a partial or final text result from a decoder session.
type Chunk struct {
	// Text is the recognized speech content.
	Text string

	// Final indicates whether this is the session's authoritative result.
	// Partial chunks (Final == false) may be revised by later chunks;
	// final chunks are immutable.
	Final bool

	// Confidence is the decoder's confidence score (0.0–1.0). Zero when the
	// backend does not report confidence.
	Confidence float64

	// Start marks when the underlying segment started, relative to run start.
	Start time.Duration

	// Duration is the audio length of the underlying segment.
	Duration time.Duration
}

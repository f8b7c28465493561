package audio

import (
	"context"
	"errors"
)

// ErrEndOfStream is returned by [Source.Next] when the capture stream has
// ended normally (device closed, replay exhausted). It is a terminal
// condition, not a failure.
var ErrEndOfStream = errors.New("audio: end of stream")

// Source produces fixed-duration audio frames from a capture device or a
// recording. It is the leaf I/O boundary of the pipeline.
//
// Implementations guarantee monotonic, gap-free sequence numbering starting
// at 0 for the frames they return. A Source holds exclusive access to its
// underlying device for its lifetime; Close must release it on every exit
// path, including error paths.
type Source interface {
	// Next blocks until a full frame is available, then returns it with the
	// next sequence number. It returns [ErrEndOfStream] once the stream has
	// ended, ctx.Err() if ctx is cancelled while waiting, or a device error
	// if the underlying capture fails. Device errors are fatal to the run.
	Next(ctx context.Context) (Frame, error)

	// Close releases the capture device. Safe to call more than once.
	Close() error
}

// Drain reads from ch until the channel is closed, discarding all values.
// Use this to prevent goroutine leaks when a test or caller does not need
// the data from a streaming channel (e.g. partial transcript chunks).
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}

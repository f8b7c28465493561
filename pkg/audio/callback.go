package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// CallbackSource adapts a push-style platform audio API (interrupt-driven
// capture callbacks) into the blocking [Source.Next] contract. The platform
// callback delivers raw PCM chunks via [CallbackSource.Push]; an internal
// bounded queue decouples the platform event loop from the pipeline's
// synchronous stage loop.
//
// Chunks pushed while the queue is full are dropped at the device boundary,
// before sequence numbers are assigned, so the gap-free numbering guarantee
// of [Source] is preserved. Dropped chunks are counted and reported via
// [CallbackSource.Dropped].
//
// Push may be called from a single platform goroutine; Next from a single
// pipeline goroutine. The two sides never share mutable state outside the
// internal queue.
type CallbackSource struct {
	sampleRate int
	frameBytes int
	frameMs    int

	inRate     int
	inChannels int

	queue   chan []byte
	pending []byte

	mu     sync.Mutex
	closed bool

	seq     uint64
	dropped atomic.Uint64
	warned  sync.Once

	release func() error
	once    sync.Once
}

// CallbackOption configures a [CallbackSource].
type CallbackOption func(*CallbackSource)

// WithQueueCapacity sets the internal frame queue capacity. Default: 32.
func WithQueueCapacity(n int) CallbackOption {
	return func(s *CallbackSource) {
		if n > 0 {
			s.queue = make(chan []byte, n)
		}
	}
}

// WithInputFormat declares the format of the chunks the platform pushes when
// it differs from the pipeline format (e.g. 48 kHz stereo capture feeding a
// 16 kHz mono pipeline). Pushed chunks are downmixed and resampled before
// framing.
func WithInputFormat(sampleRate, channels int) CallbackOption {
	return func(s *CallbackSource) {
		s.inRate = sampleRate
		s.inChannels = channels
	}
}

// WithReleaseFunc registers fn to be invoked exactly once when the source is
// closed. Use this to release the underlying capture device handle.
func WithReleaseFunc(fn func() error) CallbackOption {
	return func(s *CallbackSource) { s.release = fn }
}

// NewCallbackSource creates a source producing frames of frameMs duration at
// sampleRate. Returns an error for unsupported rate/duration combinations.
func NewCallbackSource(sampleRate, frameMs int, opts ...CallbackOption) (*CallbackSource, error) {
	if err := CheckFormat(sampleRate, frameMs); err != nil {
		return nil, err
	}
	s := &CallbackSource{
		sampleRate: sampleRate,
		frameMs:    frameMs,
		frameBytes: FrameBytes(sampleRate, frameMs),
		inRate:     sampleRate,
		inChannels: 1,
		queue:      make(chan []byte, 32),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Push delivers a chunk of raw s16le PCM from the platform callback. The
// chunk may be any length; it is reframed internally. Push never blocks —
// if the queue is full the overflowing frames are dropped and counted.
// Returns an error once the source is closed.
func (s *CallbackSource) Push(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("audio: push on closed source")
	}

	if s.inChannels == 2 {
		chunk = StereoToMono(chunk)
	}
	if s.inRate != s.sampleRate {
		chunk = ResampleMono16(chunk, s.inRate, s.sampleRate)
	}

	s.pending = append(s.pending, chunk...)
	for len(s.pending) >= s.frameBytes {
		frame := make([]byte, s.frameBytes)
		copy(frame, s.pending[:s.frameBytes])
		s.pending = s.pending[s.frameBytes:]

		select {
		case s.queue <- frame:
		default:
			s.dropped.Add(1)
			s.warned.Do(func() {
				slog.Warn("audio capture queue full, dropping at device boundary",
					"queue_capacity", cap(s.queue))
			})
		}
	}
	return nil
}

// Next implements [Source]. It blocks until the platform has pushed a full
// frame, the source is closed (ErrEndOfStream) or ctx is cancelled.
func (s *CallbackSource) Next(ctx context.Context) (Frame, error) {
	select {
	case data, ok := <-s.queue:
		if !ok {
			return Frame{}, ErrEndOfStream
		}
		return s.frame(data), nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (s *CallbackSource) frame(data []byte) Frame {
	f := Frame{
		Data:       data,
		Seq:        s.seq,
		SampleRate: s.sampleRate,
		Timestamp:  frameTimestamp(s.seq, s.frameMs),
	}
	s.seq++
	return f
}

// Dropped returns the number of frames discarded because the queue was full.
func (s *CallbackSource) Dropped() uint64 { return s.dropped.Load() }

// Close stops accepting pushes, lets Next drain the already-queued frames and
// then report [ErrEndOfStream], and releases the capture device. Safe to call
// more than once.
func (s *CallbackSource) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		// A trailing partial frame is shorter than the classifier window and
		// is discarded rather than zero-padded.
		s.pending = nil
		close(s.queue)
		s.mu.Unlock()

		if s.release != nil {
			err = s.release()
		}
	})
	return err
}

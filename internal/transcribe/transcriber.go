// Package transcribe drives the decoder side of the pipeline: each speech
// segment is fed to its own isolated decoder session and finalized before
// the next segment is touched.
//
// Serializing decoder access is deliberate — decoders are modeled as not
// safely usable by multiple concurrent segments, and strict per-segment
// ordering keeps the transcript in capture order even when segment capture
// runs ahead of transcription.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hwidmann/memovox/internal/resilience"
	"github.com/hwidmann/memovox/internal/segment"
	"github.com/hwidmann/memovox/pkg/audio"
	"github.com/hwidmann/memovox/pkg/provider/stt"
)

// Config tunes a [Transcriber].
type Config struct {
	// Session is the decoder session configuration shared by all segments.
	Session stt.SessionConfig

	// OpenRetries is the number of retries after a ResourceExhausted session
	// open, before the failure is treated as a decoder error for that
	// segment. Default: 2.
	OpenRetries int

	// OpenBackoff is the initial backoff between session-open retries.
	// Default: 250 ms.
	OpenBackoff time.Duration

	// OnPartial, when non-nil, is invoked for every interim chunk the
	// decoder emits while a segment is being fed. Calls arrive from an
	// internal goroutine and must not block.
	OnPartial func(stt.Chunk)
}

// Transcriber turns speech segments into transcript chunks, one decoder
// session per segment. It is driven from a single goroutine.
type Transcriber struct {
	decoder stt.Decoder
	cfg     Config
}

// New creates a Transcriber over the given decoder.
func New(decoder stt.Decoder, cfg Config) (*Transcriber, error) {
	if decoder == nil {
		return nil, errors.New("transcribe: decoder must not be nil")
	}
	if cfg.OpenRetries <= 0 {
		cfg.OpenRetries = 2
	}
	if cfg.OpenBackoff <= 0 {
		cfg.OpenBackoff = 250 * time.Millisecond
	}
	return &Transcriber{decoder: decoder, cfg: cfg}, nil
}

// Process transcribes one segment and returns its final chunk, stamped with
// the segment's start time and duration. The decoder session is closed on
// every path.
//
// A returned error means this segment failed; the pipeline drops it and
// continues with the next one. Transient session-open failures
// ([stt.ErrResourceExhausted]) are retried with backoff before giving up.
func (t *Transcriber) Process(ctx context.Context, seg *segment.Segment) (stt.Chunk, error) {
	sess, err := resilience.Retry(ctx, resilience.RetryConfig{
		Attempts: t.cfg.OpenRetries,
		Backoff:  t.cfg.OpenBackoff,
		RetryOn:  func(err error) bool { return errors.Is(err, stt.ErrResourceExhausted) },
	}, func() (stt.Session, error) {
		return t.decoder.NewSession(ctx, t.cfg.Session)
	})
	if err != nil {
		return stt.Chunk{}, fmt.Errorf("transcribe: open session for frames [%d,%d]: %w",
			seg.StartSeq, seg.EndSeq, err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if t.cfg.OnPartial == nil {
			audio.Drain(sess.Partials())
			return
		}
		for chunk := range sess.Partials() {
			chunk.Start = seg.Start
			t.cfg.OnPartial(chunk)
		}
	}()
	defer func() {
		sess.Close()
		wg.Wait()
	}()

	for _, f := range seg.Frames {
		if err := ctx.Err(); err != nil {
			return stt.Chunk{}, err
		}
		if err := sess.Feed(f.Data); err != nil {
			return stt.Chunk{}, fmt.Errorf("transcribe: feed frame %d: %w", f.Seq, err)
		}
	}

	chunk, err := sess.Finalize(ctx)
	if err != nil {
		return stt.Chunk{}, fmt.Errorf("transcribe: finalize frames [%d,%d]: %w",
			seg.StartSeq, seg.EndSeq, err)
	}

	chunk.Final = true
	chunk.Start = seg.Start
	chunk.Duration = seg.Duration()

	slog.Debug("segment transcribed",
		"start_seq", seg.StartSeq,
		"end_seq", seg.EndSeq,
		"speech_frames", seg.SpeechFrames,
		"text_len", len(chunk.Text),
	)
	return chunk, nil
}

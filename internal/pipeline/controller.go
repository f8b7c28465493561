// Package pipeline wires the capture, classification, segmentation and
// transcription stages into a single controllable run.
//
// Each stage runs on its own goroutine connected by bounded channels, so a
// slow decoder exerts backpressure on segmentation and, transitively, on
// capture. The stages shut down by channel close in capture order: when the
// source ends or Stop is called, the frame channel closes, the segmenter
// flushes its open segment and closes the segment channel, and the
// transcriber finishes the queue before the run completes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/hwidmann/memovox/internal/observe"
	"github.com/hwidmann/memovox/internal/segment"
	"github.com/hwidmann/memovox/internal/transcribe"
	"github.com/hwidmann/memovox/internal/vad"
	"github.com/hwidmann/memovox/pkg/audio"
	"github.com/hwidmann/memovox/pkg/provider/stt"
)

var (
	// ErrDeviceTimeout indicates the capture source failed to deliver a
	// frame within three frame durations. The run ends with a partial
	// transcript.
	ErrDeviceTimeout = errors.New("pipeline: capture device timeout")

	// ErrAlreadyStarted is returned by Start on a controller that is
	// already running or has finished.
	ErrAlreadyStarted = errors.New("pipeline: already started")

	// ErrNotStarted is returned by Stop, Cancel and Wait before Start.
	ErrNotStarted = errors.New("pipeline: not started")
)

// deviceTimeoutFactor is the number of frame durations the capture stage
// waits for the next frame before declaring the device stalled.
const deviceTimeoutFactor = 3

// Config tunes a [Controller].
type Config struct {
	// SampleRate of the captured audio in Hz. Required.
	SampleRate int

	// FrameMs is the frame duration in milliseconds. Required.
	FrameMs int

	// Aggressiveness is the speech classifier level, 0 (permissive) to 3
	// (strict).
	Aggressiveness int

	// FrameQueue is the capacity of the frame channel between capture and
	// segmentation. Default: 50.
	FrameQueue int

	// SegmentQueue is the capacity of the segment channel between
	// segmentation and transcription. Default: 4.
	SegmentQueue int

	// Segmenter tunes segment assembly. FrameMs is filled in from the
	// top-level setting.
	Segmenter segment.Config

	// Transcribe tunes the decoder side. The session sample rate is filled
	// in from the top-level setting when zero.
	Transcribe transcribe.Config

	// Metrics receives pipeline instrumentation. Default:
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

func (c Config) withDefaults() Config {
	if c.FrameQueue <= 0 {
		c.FrameQueue = 50
	}
	if c.SegmentQueue <= 0 {
		c.SegmentQueue = 4
	}
	c.Segmenter.FrameMs = c.FrameMs
	if c.Transcribe.Session.SampleRate == 0 {
		c.Transcribe.Session.SampleRate = c.SampleRate
	}
	if c.Metrics == nil {
		c.Metrics = observe.DefaultMetrics()
	}
	return c
}

// Result is the outcome of a pipeline run. It is returned even when the run
// ended with an error, in which case it holds the partial transcript
// assembled up to that point.
type Result struct {
	// Chunks are the finalized transcript chunks in capture order.
	Chunks []stt.Chunk

	// Frames is the total number of frames captured.
	Frames uint64

	// SpeechFrames is the number of captured frames classified as speech.
	SpeechFrames uint64

	// SegmentsEmitted is the number of segments handed to the transcriber.
	SegmentsEmitted int

	// DroppedSegments counts segments lost to decoder failures or to
	// cancellation after they were emitted.
	DroppedSegments int

	// DiscardedShort counts segments discarded for falling below the
	// minimum net speech length.
	DiscardedShort int

	// Audio is the total duration of captured audio.
	Audio time.Duration
}

// Transcript joins the chunk texts into a newline-separated transcript.
func (r Result) Transcript() string {
	texts := make([]string, 0, len(r.Chunks))
	for _, c := range r.Chunks {
		if c.Text != "" {
			texts = append(texts, c.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// Controller owns one pipeline run over an audio source. It is not reusable:
// create a new Controller for each run.
type Controller struct {
	source      audio.Source
	transcriber *transcribe.Transcriber
	classifier  *vad.Classifier
	cfg         Config
	timeout     time.Duration

	// Run state. Written by Start and the stage goroutines, read after
	// done closes (the errgroup Wait provides the ordering).
	runCancel  context.CancelFunc
	stopSignal context.CancelFunc
	done       chan struct{}
	started    bool
	cancelled  bool

	// Per-stage counters. Each field is written by exactly one stage
	// goroutine and folded into result once the group has finished.
	capFrames    uint64
	speechFrames uint64
	segsEmitted  int
	dropUnqueued int
	dropDecode   int
	chunks       []stt.Chunk

	result Result
	runErr error
}

// New creates a Controller over the given source and decoder. The source
// must produce frames matching the configured sample rate and duration.
func New(source audio.Source, decoder stt.Decoder, cfg Config) (*Controller, error) {
	if source == nil {
		return nil, errors.New("pipeline: source must not be nil")
	}
	cfg = cfg.withDefaults()

	classifier, err := vad.NewClassifier(cfg.SampleRate, cfg.FrameMs, cfg.Aggressiveness)
	if err != nil {
		return nil, err
	}
	transcriber, err := transcribe.New(decoder, cfg.Transcribe)
	if err != nil {
		return nil, err
	}
	return &Controller{
		source:      source,
		transcriber: transcriber,
		classifier:  classifier,
		cfg:         cfg,
		timeout:     deviceTimeoutFactor * time.Duration(cfg.FrameMs) * time.Millisecond,
		done:        make(chan struct{}),
	}, nil
}

// Start launches the pipeline stages and returns immediately. The run ends
// when the source reports end of stream, a fatal error occurs, or Stop or
// Cancel is called.
func (c *Controller) Start(ctx context.Context) error {
	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true

	runCtx, runCancel := context.WithCancel(ctx)
	c.runCancel = runCancel
	runCtx, runSpan := observe.StartSpan(runCtx, "pipeline.run")

	g, gctx := errgroup.WithContext(runCtx)
	stopCtx, stop := context.WithCancel(gctx)
	c.stopSignal = stop

	frames := make(chan audio.Frame, c.cfg.FrameQueue)
	segments := make(chan *segment.Segment, c.cfg.SegmentQueue)

	assembler, err := segment.New(c.cfg.Segmenter)
	if err != nil {
		runCancel()
		return err
	}

	c.cfg.Metrics.ActiveRuns.Add(runCtx, 1)
	depthReg, err := c.cfg.Metrics.ObserveQueueDepths(
		func() int { return len(frames) },
		func() int { return len(segments) },
	)
	if err != nil {
		observe.Logger(runCtx).Warn("queue depth gauges unavailable", "error", err)
	}

	g.Go(func() error { return c.capture(gctx, stopCtx, frames) })
	g.Go(func() error { return c.segment(gctx, assembler, frames, segments) })
	g.Go(func() error { return c.decode(gctx, segments) })

	go func() {
		c.runErr = g.Wait()
		c.result = Result{
			Chunks:          c.chunks,
			Frames:          c.capFrames,
			SpeechFrames:    c.speechFrames,
			SegmentsEmitted: c.segsEmitted,
			DroppedSegments: c.dropUnqueued + c.dropDecode,
			DiscardedShort:  assembler.DiscardedShort(),
			Audio:           time.Duration(c.capFrames) * time.Duration(c.cfg.FrameMs) * time.Millisecond,
		}
		if n := c.result.DiscardedShort; n > 0 {
			c.cfg.Metrics.SegmentsDiscarded.Add(context.Background(), int64(n),
				metric.WithAttributes(attribute.String(observe.AttrReason, "short")))
		}
		c.cfg.Metrics.ActiveRuns.Add(context.Background(), -1)
		if depthReg != nil {
			_ = depthReg.Unregister()
		}
		runSpan.SetAttributes(
			attribute.Int64("frames", int64(c.result.Frames)),
			attribute.Int("segments", c.result.SegmentsEmitted),
			attribute.Int("dropped", c.result.DroppedSegments),
		)
		if c.runErr != nil {
			runSpan.RecordError(c.runErr)
		}
		runSpan.End()
		runCancel()
		close(c.done)
	}()
	return nil
}

// capture pulls frames from the source until end of stream, a stop signal,
// or a fatal device error. Closing the frame channel starts the drain.
func (c *Controller) capture(gctx, stopCtx context.Context, frames chan<- audio.Frame) error {
	defer close(frames)
	for {
		if stopCtx.Err() != nil {
			return nil
		}
		nextCtx, cancel := context.WithTimeout(stopCtx, c.timeout)
		f, err := c.source.Next(nextCtx)
		cancel()
		switch {
		case err == nil:
		case errors.Is(err, audio.ErrEndOfStream):
			return nil
		case stopCtx.Err() != nil && gctx.Err() == nil:
			// Stop interrupted a pending read. Not an error.
			return nil
		case gctx.Err() != nil:
			return gctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			return fmt.Errorf("%w: no frame within %v", ErrDeviceTimeout, c.timeout)
		default:
			return fmt.Errorf("pipeline: capture: %w", err)
		}

		c.capFrames++
		c.cfg.Metrics.FramesCaptured.Add(gctx, 1)

		select {
		case frames <- f:
		case <-gctx.Done():
			return gctx.Err()
		}
	}
}

// segment classifies frames and assembles speech segments. Closing the
// segment channel after the final flush completes the drain.
func (c *Controller) segment(gctx context.Context, asm *segment.Assembler, frames <-chan audio.Frame, segments chan<- *segment.Segment) error {
	defer close(segments)

	emit := func(seg *segment.Segment) error {
		c.segsEmitted++
		c.cfg.Metrics.SegmentsEmitted.Add(gctx, 1)
		select {
		case segments <- seg:
			return nil
		case <-gctx.Done():
			// The segment was emitted but will never be decoded.
			c.dropUnqueued++
			return gctx.Err()
		}
	}

	for f := range frames {
		speech, err := c.classifier.Classify(f)
		if err != nil {
			return fmt.Errorf("pipeline: classify frame %d: %w", f.Seq, err)
		}
		if speech {
			c.speechFrames++
			c.cfg.Metrics.SpeechFrames.Add(gctx, 1)
		}
		if seg := asm.Push(vad.Classification{Frame: f, Speech: speech}); seg != nil {
			if err := emit(seg); err != nil {
				return err
			}
		}
	}
	if seg := asm.Flush(); seg != nil {
		if err := emit(seg); err != nil {
			return err
		}
	}
	return nil
}

// decode transcribes queued segments in order. Decoder failures drop the
// affected segment only; cancellation drops everything still queued.
func (c *Controller) decode(gctx context.Context, segments <-chan *segment.Segment) error {
	drop := func(reason string) {
		c.dropDecode++
		c.cfg.Metrics.SegmentsDiscarded.Add(gctx, 1,
			metric.WithAttributes(attribute.String(observe.AttrReason, reason)))
	}

	for seg := range segments {
		start := time.Now()
		sctx, span := observe.StartSpan(gctx, "pipeline.decode_segment",
			trace.WithAttributes(
				attribute.Int64("start_seq", int64(seg.StartSeq)),
				attribute.Int64("end_seq", int64(seg.EndSeq)),
			))
		chunk, err := c.transcriber.Process(sctx, seg)
		span.End()
		if err != nil {
			if gctx.Err() != nil {
				drop("cancelled")
				for range segments {
					drop("cancelled")
				}
				return gctx.Err()
			}
			observe.Logger(gctx).Warn("segment dropped",
				"start_seq", seg.StartSeq,
				"end_seq", seg.EndSeq,
				"error", err,
			)
			drop("decoder")
			continue
		}
		c.cfg.Metrics.DecodeDuration.Record(gctx, time.Since(start).Seconds())
		c.chunks = append(c.chunks, chunk)
	}
	return nil
}

// Stop ends capture and drains the pipeline: buffered frames are classified,
// the open segment is flushed, and queued segments are transcribed before
// the result is returned. ctx bounds the wait only; the drain itself is not
// cancelled by it.
func (c *Controller) Stop(ctx context.Context) (Result, error) {
	if !c.started {
		return Result{}, ErrNotStarted
	}
	c.stopSignal()
	return c.Wait(ctx)
}

// Cancel aborts the run, discarding buffered frames and queued segments.
// The returned result holds the chunks finalized before cancellation;
// everything emitted but not yet decoded is counted as dropped.
func (c *Controller) Cancel() (Result, error) {
	if !c.started {
		return Result{}, ErrNotStarted
	}
	c.cancelled = true
	c.runCancel()
	<-c.done
	return c.result, nil
}

// Wait blocks until the run completes and returns the result. A run that
// ended in a fatal error still returns the partial result alongside the
// error.
func (c *Controller) Wait(ctx context.Context) (Result, error) {
	if !c.started {
		return Result{}, ErrNotStarted
	}
	select {
	case <-c.done:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	if c.cancelled {
		return c.result, nil
	}
	return c.result, c.runErr
}

// Done is closed when the run has fully completed.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

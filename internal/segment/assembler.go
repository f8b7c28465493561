// Package segment groups classified audio frames into speech segments.
//
// The [Assembler] is a two-state machine (idle, accumulating) driven by one
// classified frame at a time. Silence between utterances is discarded; a
// bounded run of trailing silence (the hangover) is tolerated inside an
// utterance so that pauses and trailing word energy do not clip the
// segment. Segments that carry less than a minimum amount of net speech are
// discarded as noise bursts rather than emitted.
//
// The assembler owns every open segment exclusively; ownership of a segment
// transfers to the caller when Push or Flush returns it.
package segment

import (
	"fmt"
	"time"

	"github.com/hwidmann/memovox/internal/vad"
	"github.com/hwidmann/memovox/pkg/audio"
)

// Segment is an ordered run of contiguous frames judged to belong to one
// utterance. Frame sequence numbers inside a segment are gap-free, and no
// two segments emitted in the same run overlap in sequence-number space.
type Segment struct {
	// Frames holds the segment's audio in capture order, including kept
	// hangover silence at the tail.
	Frames []audio.Frame

	// StartSeq and EndSeq are the sequence numbers of the first and last
	// frame (inclusive).
	StartSeq, EndSeq uint64

	// Start is the timestamp of the first frame, relative to run start.
	Start time.Duration

	// SpeechFrames counts the frames classified as speech (net speech; the
	// minimum-length rule is evaluated against this, not the total length).
	SpeechFrames int
}

// Duration returns the total audio length of the segment.
func (s *Segment) Duration() time.Duration {
	var d time.Duration
	for _, f := range s.Frames {
		d += f.Duration()
	}
	return d
}

// PCM returns the segment's audio as one contiguous s16le buffer.
func (s *Segment) PCM() []byte {
	n := 0
	for _, f := range s.Frames {
		n += len(f.Data)
	}
	out := make([]byte, 0, n)
	for _, f := range s.Frames {
		out = append(out, f.Data...)
	}
	return out
}

// Config holds the assembler's segmentation thresholds. All values are in
// frames except HangoverKeepMs.
type Config struct {
	// FrameMs is the duration of one frame in milliseconds. Required.
	FrameMs int

	// HangoverFrames is the number of consecutive silence frames that closes
	// an accumulating segment. Default: 10 (≈300 ms at 30 ms frames).
	HangoverFrames int

	// HangoverKeepMs bounds how much trailing hangover silence is kept in a
	// closed segment; the remainder is trimmed. Default: 100 ms.
	HangoverKeepMs int

	// MinSpeechFrames is the minimum net speech a segment must carry to be
	// emitted. Shorter segments are discarded as noise bursts.
	// Default: ≈250 ms worth of frames.
	MinSpeechFrames int
}

// withDefaults fills zero-valued fields with the package defaults.
func (c Config) withDefaults() Config {
	if c.HangoverFrames <= 0 {
		c.HangoverFrames = 10
	}
	if c.HangoverKeepMs <= 0 {
		c.HangoverKeepMs = 100
	}
	if c.MinSpeechFrames <= 0 {
		// Round up so the default is never weaker than 250 ms.
		c.MinSpeechFrames = (250 + c.FrameMs - 1) / c.FrameMs
	}
	return c
}

// Assembler is the segmentation state machine. It is driven from a single
// goroutine; it is not safe for concurrent use.
type Assembler struct {
	cfg Config

	cur             *Segment
	trailingSilence int

	discardedShort int
}

// New creates an Assembler. Zero-valued thresholds take package defaults.
// Returns an error if FrameMs is not a supported frame duration.
func New(cfg Config) (*Assembler, error) {
	if !audio.ValidFrameDuration(cfg.FrameMs) {
		return nil, fmt.Errorf("segment: unsupported frame duration %d ms", cfg.FrameMs)
	}
	return &Assembler{cfg: cfg.withDefaults()}, nil
}

// Push consumes one classified frame and returns a closed segment when the
// hangover threshold is crossed, or nil otherwise. Segments shorter than
// the minimum net speech length are silently discarded (counted via
// [Assembler.DiscardedShort]).
func (a *Assembler) Push(c vad.Classification) *Segment {
	switch {
	case a.cur == nil && c.Speech:
		// idle → accumulating.
		a.cur = &Segment{
			Frames:       []audio.Frame{c.Frame},
			StartSeq:     c.Frame.Seq,
			EndSeq:       c.Frame.Seq,
			Start:        c.Frame.Timestamp,
			SpeechFrames: 1,
		}
		a.trailingSilence = 0

	case a.cur == nil:
		// Silence while idle is discarded.

	case c.Speech:
		a.append(c.Frame)
		a.cur.SpeechFrames++
		a.trailingSilence = 0

	default:
		// Silence while accumulating: retained for hangover.
		a.append(c.Frame)
		a.trailingSilence++
		if a.trailingSilence >= a.cfg.HangoverFrames {
			return a.close(true)
		}
	}
	return nil
}

// Flush closes and returns the currently accumulating segment, if any,
// regardless of hangover state. Call on end of stream or cancellation so no
// speech is lost at end of run. The minimum-length rule still applies.
func (a *Assembler) Flush() *Segment {
	if a.cur == nil {
		return nil
	}
	return a.close(false)
}

// DiscardedShort returns the number of segments discarded for carrying less
// than the minimum net speech.
func (a *Assembler) DiscardedShort() int { return a.discardedShort }

func (a *Assembler) append(f audio.Frame) {
	a.cur.Frames = append(a.cur.Frames, f)
	a.cur.EndSeq = f.Seq
}

// close finishes the open segment. When trim is set (hangover close), the
// trailing silence run is cut down to the first HangoverKeepMs worth of
// frames; a flush keeps whatever has accumulated.
func (a *Assembler) close(trim bool) *Segment {
	seg := a.cur
	a.cur = nil

	if trim {
		keep := a.cfg.HangoverKeepMs / a.cfg.FrameMs
		cut := a.trailingSilence - keep
		if cut > 0 {
			seg.Frames = seg.Frames[:len(seg.Frames)-cut]
			seg.EndSeq = seg.Frames[len(seg.Frames)-1].Seq
		}
	}
	a.trailingSilence = 0

	if seg.SpeechFrames < a.cfg.MinSpeechFrames {
		a.discardedShort++
		return nil
	}
	return seg
}

// Package vad classifies individual audio frames as speech or non-speech.
//
// The classifier is a short-window energy detector: it computes the RMS
// level of each frame and compares it against a threshold selected by the
// aggressiveness level. Classification is a pure function of the frame and
// the configured parameters — no state is carried between calls — so
// decisions are reproducible under replay, which the pipeline's idempotence
// guarantee depends on.
package vad

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/hwidmann/memovox/pkg/audio"
)

// MaxAggressiveness is the highest supported aggressiveness level.
const MaxAggressiveness = 3

// rmsThresholds maps an aggressiveness level to the minimum RMS level (over
// s16 samples) at which a frame counts as speech. Higher levels classify
// more frames as non-speech. Values tuned against typical close-mic speech
// at 16 kHz.
var rmsThresholds = [MaxAggressiveness + 1]float64{250, 450, 700, 1000}

// Classifier labels frames as speech or silence.
// It is stateless after construction and safe for concurrent use.
type Classifier struct {
	sampleRate int
	frameMs    int
	frameBytes int
	threshold  float64
}

// NewClassifier creates a classifier for the given frame format and
// aggressiveness level (0..3). Returns an error for unsupported sample
// rates or frame durations, or an out-of-range aggressiveness.
func NewClassifier(sampleRate, frameMs, aggressiveness int) (*Classifier, error) {
	if err := audio.CheckFormat(sampleRate, frameMs); err != nil {
		return nil, fmt.Errorf("vad: %w", err)
	}
	if aggressiveness < 0 || aggressiveness > MaxAggressiveness {
		return nil, fmt.Errorf("vad: aggressiveness %d out of range 0..%d", aggressiveness, MaxAggressiveness)
	}
	return &Classifier{
		sampleRate: sampleRate,
		frameMs:    frameMs,
		frameBytes: audio.FrameBytes(sampleRate, frameMs),
		threshold:  rmsThresholds[aggressiveness],
	}, nil
}

// Classify reports whether f contains speech. Returns an error if the frame
// length does not match the configured format.
func (c *Classifier) Classify(f audio.Frame) (bool, error) {
	if len(f.Data) != c.frameBytes {
		return false, fmt.Errorf("vad: frame of %d bytes, want %d", len(f.Data), c.frameBytes)
	}
	return rms(f.Data) >= c.threshold, nil
}

// Classification is a frame tagged with its speech/non-speech label, the
// unit flowing from the classifier stage to the segment assembler.
type Classification struct {
	Frame  audio.Frame
	Speech bool
}

// rms computes the root-mean-square level of s16le PCM data.
func rms(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}
	var sum float64
	for i := range samples {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(samples))
}

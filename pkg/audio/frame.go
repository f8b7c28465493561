// Package audio defines the capture boundary of the memovox pipeline: the
// [Frame] value that moves through every stage and the [Source] interface
// that produces frames from a capture device.
//
// A Frame is a fixed-duration block of signed 16-bit little-endian mono PCM.
// Frames are immutable once produced and are handed downstream by transfer
// of ownership — no two pipeline stages ever hold the same frame at once.
//
// Implementations of [Source] are provided for push-style platform audio
// callbacks ([CallbackSource]) and for replaying recorded PCM or WAV data
// ([ReaderSource]). Third-party device adapters are expected to implement
// [Source] themselves, which is why this package lives under pkg/.
package audio

import (
	"fmt"
	"time"
)

// Sample rates accepted by the pipeline, in Hz.
var supportedRates = map[int]bool{8000: true, 16000: true, 32000: true, 48000: true}

// ValidSampleRate reports whether rate is one of the supported capture rates
// (8, 16, 32 or 48 kHz).
func ValidSampleRate(rate int) bool { return supportedRates[rate] }

// ValidFrameDuration reports whether ms is a supported frame duration.
// The activity classifier operates on 10, 20 or 30 ms windows only.
func ValidFrameDuration(ms int) bool { return ms == 10 || ms == 20 || ms == 30 }

// FrameBytes returns the byte length of one mono s16le frame of the given
// duration at the given sample rate.
func FrameBytes(sampleRate, frameMs int) int {
	return sampleRate * frameMs / 1000 * 2
}

// Frame is a fixed-duration block of signed 16-bit little-endian mono PCM
// samples, the atomic unit moving through the pipeline.
type Frame struct {
	// Data is the raw s16le mono PCM payload. Treated as immutable after the
	// frame leaves the Source.
	Data []byte

	// Seq is the frame's position in the capture stream. Sequence numbers
	// start at 0 and are strictly increasing and gap-free within a run.
	Seq uint64

	// SampleRate in Hz.
	SampleRate int

	// Timestamp marks when the frame starts, relative to run start.
	Timestamp time.Duration
}

// Samples returns the number of s16 samples in the frame.
func (f Frame) Samples() int { return len(f.Data) / 2 }

// Duration returns the frame's play time derived from its payload length.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.Samples()) * time.Second / time.Duration(f.SampleRate)
}

// frameTimestamp derives a frame's start time from its sequence number.
func frameTimestamp(seq uint64, frameMs int) time.Duration {
	return time.Duration(seq) * time.Duration(frameMs) * time.Millisecond
}

// CheckFormat validates sampleRate and frameMs together and returns a
// descriptive error when either value is outside the supported set.
func CheckFormat(sampleRate, frameMs int) error {
	if !ValidSampleRate(sampleRate) {
		return fmt.Errorf("audio: unsupported sample rate %d Hz (want 8000, 16000, 32000 or 48000)", sampleRate)
	}
	if !ValidFrameDuration(frameMs) {
		return fmt.Errorf("audio: unsupported frame duration %d ms (want 10, 20 or 30)", frameMs)
	}
	return nil
}

package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ReaderSource replays s16le mono PCM from an io.Reader as a frame stream.
// It is the deterministic counterpart of [CallbackSource]: feeding the same
// reader content through the pipeline twice yields identical frames, which
// makes it the backbone of replay and idempotence testing. It also serves
// live capture piped in on stdin and pre-recorded raw captures.
//
// Reads happen on an internal pump goroutine so that Next honors ctx
// cancellation even while the underlying reader is blocked mid-read. A
// stalled pipe therefore surfaces as ctx.Err() from Next, not as a hung
// call; the pending read itself cannot be interrupted and is abandoned.
//
// ReaderSource is not paced; frames are produced as fast as the consumer
// asks for them. The real-time pacing of a live run comes from the device,
// not from this type.
type ReaderSource struct {
	r          io.Reader
	sampleRate int
	frameMs    int
	frameBytes int
	seq        uint64
	closer     io.Closer

	frames    chan readResult
	pumpOnce  sync.Once
	closed    chan struct{}
	closeOnce sync.Once
}

// readResult carries one pumped frame or the read error that ended the pump.
type readResult struct {
	data []byte
	err  error
}

// NewReaderSource wraps r as a [Source] producing frames of frameMs duration
// at sampleRate. If r implements io.Closer it is closed by Close.
func NewReaderSource(r io.Reader, sampleRate, frameMs int) (*ReaderSource, error) {
	if err := CheckFormat(sampleRate, frameMs); err != nil {
		return nil, err
	}
	s := &ReaderSource{
		r:          r,
		sampleRate: sampleRate,
		frameMs:    frameMs,
		frameBytes: FrameBytes(sampleRate, frameMs),
		frames:     make(chan readResult),
		closed:     make(chan struct{}),
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s, nil
}

// NewWAVSource parses a RIFF/WAVE header from r and returns a [ReaderSource]
// positioned at the start of the sample data. The file must contain 16-bit
// mono PCM at one of the supported sample rates.
func NewWAVSource(r io.Reader, frameMs int) (*ReaderSource, error) {
	rate, err := readWAVHeader(r)
	if err != nil {
		return nil, err
	}
	return NewReaderSource(r, rate, frameMs)
}

// SampleRate returns the source's sample rate in Hz. For WAV sources this is
// the rate read from the file header.
func (s *ReaderSource) SampleRate() int { return s.sampleRate }

// Next implements [Source]. A trailing block shorter than one frame is
// zero-padded to full length so no recorded audio is lost at end of stream.
// Sequence numbers are assigned on delivery, so a frame left in flight by a
// cancelled Next is returned by the following call with no gap.
func (s *ReaderSource) Next(ctx context.Context) (Frame, error) {
	s.pumpOnce.Do(func() { go s.pump() })

	select {
	case res, ok := <-s.frames:
		if !ok {
			return Frame{}, ErrEndOfStream
		}
		if res.err != nil {
			return Frame{}, res.err
		}
		f := Frame{
			Data:       res.data,
			Seq:        s.seq,
			SampleRate: s.sampleRate,
			Timestamp:  frameTimestamp(s.seq, s.frameMs),
		}
		s.seq++
		return f, nil
	case <-s.closed:
		return Frame{}, ErrEndOfStream
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// pump reads frame-sized blocks until EOF, a read error, or Close. Closing
// the frames channel signals end of stream to Next.
func (s *ReaderSource) pump() {
	defer close(s.frames)
	for {
		data := make([]byte, s.frameBytes)
		n, err := io.ReadFull(s.r, data)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return
		case errors.Is(err, io.ErrUnexpectedEOF):
			// Pad the final short block with silence.
			for i := n; i < len(data); i++ {
				data[i] = 0
			}
			s.deliver(readResult{data: data})
			return
		default:
			s.deliver(readResult{err: fmt.Errorf("audio: read frame: %w", err)})
			return
		}
		if !s.deliver(readResult{data: data}) {
			return
		}
	}
}

// deliver hands one result to Next, reporting false once the source is
// closed.
func (s *ReaderSource) deliver(res readResult) bool {
	select {
	case s.frames <- res:
		return true
	case <-s.closed:
		return false
	}
}

// Close implements [Source]. It unblocks a pending Next with
// [ErrEndOfStream] and stops the pump; when the reader is also an io.Closer
// it is closed, which unblocks a pump stuck mid-read on a closable stream.
func (s *ReaderSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.closer != nil {
			err = s.closer.Close()
		}
	})
	return err
}

// readWAVHeader parses the RIFF header and fmt chunk, validates 16-bit mono
// PCM, skips to the data chunk, and returns the sample rate.
func readWAVHeader(r io.Reader) (int, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return 0, fmt.Errorf("audio: read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return 0, errors.New("audio: not a RIFF/WAVE stream")
	}

	var rate int
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return 0, fmt.Errorf("audio: read chunk header: %w", err)
		}
		id := string(hdr[0:4])
		size := binary.LittleEndian.Uint32(hdr[4:8])

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return 0, fmt.Errorf("audio: read fmt chunk: %w", err)
			}
			if len(body) < 16 {
				return 0, errors.New("audio: fmt chunk too short")
			}
			format := binary.LittleEndian.Uint16(body[0:2])
			channels := binary.LittleEndian.Uint16(body[2:4])
			rate = int(binary.LittleEndian.Uint32(body[4:8]))
			bits := binary.LittleEndian.Uint16(body[14:16])
			if format != 1 {
				return 0, fmt.Errorf("audio: unsupported WAV format %d (want PCM)", format)
			}
			if channels != 1 {
				return 0, fmt.Errorf("audio: unsupported channel count %d (want mono)", channels)
			}
			if bits != 16 {
				return 0, fmt.Errorf("audio: unsupported bit depth %d (want 16)", bits)
			}
		case "data":
			if rate == 0 {
				return 0, errors.New("audio: data chunk before fmt chunk")
			}
			return rate, nil
		default:
			// Skip unknown chunks (LIST, fact, ...).
			if _, err := io.CopyN(io.Discard, r, int64(size)); err != nil {
				return 0, fmt.Errorf("audio: skip %q chunk: %w", id, err)
			}
		}
	}
}

package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"
)

func TestReaderSource_FramesAndPadding(t *testing.T) {
	t.Parallel()
	frameBytes := FrameBytes(16000, 20)

	// 1.5 frames of non-zero PCM: second frame must be zero-padded.
	pcm := bytes.Repeat([]byte{0x01, 0x02}, (frameBytes+frameBytes/2)/2)
	src, err := NewReaderSource(bytes.NewReader(pcm), 16000, 20)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	f0, err := src.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if f0.Seq != 0 || len(f0.Data) != frameBytes {
		t.Errorf("frame 0: seq=%d len=%d", f0.Seq, len(f0.Data))
	}

	f1, err := src.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if f1.Seq != 1 || len(f1.Data) != frameBytes {
		t.Errorf("frame 1: seq=%d len=%d", f1.Seq, len(f1.Data))
	}
	for i := frameBytes / 2; i < frameBytes; i++ {
		if f1.Data[i] != 0 {
			t.Fatalf("frame 1 byte %d = %#x, want zero padding", i, f1.Data[i])
		}
	}

	if _, err := src.Next(ctx); !errors.Is(err, ErrEndOfStream) {
		t.Errorf("Next() = %v, want ErrEndOfStream", err)
	}
}

func TestReaderSource_Deterministic(t *testing.T) {
	t.Parallel()
	pcm := bytes.Repeat([]byte{0x10, 0x00, 0xf0, 0xff}, 4000)

	read := func() []Frame {
		src, err := NewReaderSource(bytes.NewReader(pcm), 16000, 10)
		if err != nil {
			t.Fatal(err)
		}
		var frames []Frame
		for {
			f, err := src.Next(context.Background())
			if errors.Is(err, ErrEndOfStream) {
				return frames
			}
			if err != nil {
				t.Fatal(err)
			}
			frames = append(frames, f)
		}
	}

	a, b := read(), read()
	if len(a) != len(b) {
		t.Fatalf("replay lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Seq != b[i].Seq || !bytes.Equal(a[i].Data, b[i].Data) {
			t.Fatalf("replay diverges at frame %d", i)
		}
	}
}

// buildWAV assembles a minimal mono 16-bit PCM WAV stream.
func buildWAV(t *testing.T, rate int, samples []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(samples)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(rate))
	binary.Write(&buf, binary.LittleEndian, uint32(rate*2)) // byte rate
	binary.Write(&buf, binary.LittleEndian, uint16(2))      // block align
	binary.Write(&buf, binary.LittleEndian, uint16(16))     // bits
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(samples)))
	buf.Write(samples)
	return buf.Bytes()
}

func TestNewWAVSource(t *testing.T) {
	t.Parallel()
	samples := bytes.Repeat([]byte{0x42, 0x00}, FrameBytes(16000, 20)/2)
	wav := buildWAV(t, 16000, samples)

	src, err := NewWAVSource(bytes.NewReader(wav), 20)
	if err != nil {
		t.Fatal(err)
	}
	f, err := src.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if f.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", f.SampleRate)
	}
	if !bytes.Equal(f.Data, samples) {
		t.Error("frame data does not match WAV samples")
	}
}

func TestNewWAVSource_Rejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data []byte
	}{
		{"not riff", []byte("garbage-data")},
		{"unsupported rate", buildWAV(t, 44100, make([]byte, 64))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := NewWAVSource(bytes.NewReader(tt.data), 20); err == nil {
				t.Error("expected error")
			}
		})
	}
}

// stallingReader delivers its content, then blocks every subsequent Read
// until release is closed. It mimics a live pipe whose producer went silent.
type stallingReader struct {
	data    []byte
	release chan struct{}
}

func (r *stallingReader) Read(p []byte) (int, error) {
	if len(r.data) > 0 {
		n := copy(p, r.data)
		r.data = r.data[n:]
		return n, nil
	}
	<-r.release
	return 0, io.EOF
}

func TestReaderSource_NextHonorsContextWhenStalled(t *testing.T) {
	t.Parallel()
	frameBytes := FrameBytes(16000, 30)
	r := &stallingReader{
		data:    bytes.Repeat([]byte{0x01, 0x00}, frameBytes/2),
		release: make(chan struct{}),
	}
	defer close(r.release)

	src, err := NewReaderSource(r, 16000, 30)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := src.Next(context.Background()); err != nil {
		t.Fatalf("Next() on available frame = %v", err)
	}

	// The producer has gone silent; Next must return when the deadline
	// expires instead of blocking in the stalled read.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := src.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Next() on stalled reader = %v, want context.DeadlineExceeded", err)
	}
}

func TestReaderSource_CloseUnblocksNext(t *testing.T) {
	t.Parallel()
	r := &stallingReader{release: make(chan struct{})}
	defer close(r.release)

	src, err := NewReaderSource(r, 16000, 30)
	if err != nil {
		t.Fatal(err)
	}

	errc := make(chan error, 1)
	go func() {
		_, err := src.Next(context.Background())
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if err := src.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	select {
	case err := <-errc:
		if !errors.Is(err, ErrEndOfStream) {
			t.Errorf("Next() after Close = %v, want ErrEndOfStream", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Next still blocked after Close")
	}
}

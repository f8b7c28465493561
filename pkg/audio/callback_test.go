package audio

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCallbackSource_ReframesAndNumbers(t *testing.T) {
	t.Parallel()
	src, err := NewCallbackSource(16000, 30)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	frameBytes := FrameBytes(16000, 30)

	// Push 2.5 frames worth of audio in uneven chunks.
	total := frameBytes*2 + frameBytes/2
	pushed := 0
	for pushed < total {
		n := 333
		if pushed+n > total {
			n = total - pushed
		}
		if err := src.Push(make([]byte, n)); err != nil {
			t.Fatal(err)
		}
		pushed += n
	}

	ctx := context.Background()
	for want := uint64(0); want < 2; want++ {
		f, err := src.Next(ctx)
		if err != nil {
			t.Fatalf("Next() frame %d: %v", want, err)
		}
		if f.Seq != want {
			t.Errorf("Seq = %d, want %d", f.Seq, want)
		}
		if len(f.Data) != frameBytes {
			t.Errorf("len(Data) = %d, want %d", len(f.Data), frameBytes)
		}
		if f.Timestamp != time.Duration(want)*30*time.Millisecond {
			t.Errorf("Timestamp = %v, want %v", f.Timestamp, time.Duration(want)*30*time.Millisecond)
		}
	}
}

func TestCallbackSource_CloseEndsStream(t *testing.T) {
	t.Parallel()
	src, err := NewCallbackSource(16000, 20)
	if err != nil {
		t.Fatal(err)
	}
	if err := src.Push(make([]byte, FrameBytes(16000, 20))); err != nil {
		t.Fatal(err)
	}
	if err := src.Close(); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if _, err := src.Next(ctx); err != nil {
		t.Fatalf("queued frame should survive Close: %v", err)
	}
	if _, err := src.Next(ctx); !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("Next() after drain = %v, want ErrEndOfStream", err)
	}
	if err := src.Push([]byte{0, 0}); err == nil {
		t.Error("Push after Close should fail")
	}
}

func TestCallbackSource_DropsWhenQueueFull(t *testing.T) {
	t.Parallel()
	src, err := NewCallbackSource(16000, 10, WithQueueCapacity(2))
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	frameBytes := FrameBytes(16000, 10)
	for range 5 {
		if err := src.Push(make([]byte, frameBytes)); err != nil {
			t.Fatal(err)
		}
	}
	if got := src.Dropped(); got != 3 {
		t.Errorf("Dropped() = %d, want 3", got)
	}

	// Surviving frames are still numbered without gaps.
	ctx := context.Background()
	for want := uint64(0); want < 2; want++ {
		f, err := src.Next(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if f.Seq != want {
			t.Errorf("Seq = %d, want %d", f.Seq, want)
		}
	}
}

func TestCallbackSource_ConvertsInputFormat(t *testing.T) {
	t.Parallel()
	src, err := NewCallbackSource(16000, 20, WithInputFormat(48000, 2))
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	// One 20 ms frame at 16 kHz mono needs 20 ms of 48 kHz stereo input:
	// 960 samples * 2 channels * 2 bytes.
	if err := src.Push(make([]byte, 960*2*2)); err != nil {
		t.Fatal(err)
	}
	f, err := src.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Data) != FrameBytes(16000, 20) {
		t.Errorf("len(Data) = %d, want %d", len(f.Data), FrameBytes(16000, 20))
	}
}

func TestCallbackSource_NextHonoursContext(t *testing.T) {
	t.Parallel()
	src, err := NewCallbackSource(16000, 20)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := src.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Next() = %v, want DeadlineExceeded", err)
	}
}

func TestCallbackSource_RejectsBadFormat(t *testing.T) {
	t.Parallel()
	if _, err := NewCallbackSource(44100, 20); err == nil {
		t.Error("expected error for unsupported sample rate")
	}
	if _, err := NewCallbackSource(16000, 15); err == nil {
		t.Error("expected error for unsupported frame duration")
	}
}

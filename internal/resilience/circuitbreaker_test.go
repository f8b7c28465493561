package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(BreakerConfig{Name: "test", MaxFailures: 2, ResetTimeout: time.Hour})

	for range 2 {
		if err := cb.Execute(func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("Execute() = %v, want errBoom", err)
		}
	}
	if got := cb.State(); got != StateOpen {
		t.Fatalf("State() = %v, want open", got)
	}
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_SuccessResetsCounter(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(BreakerConfig{Name: "test", MaxFailures: 2, ResetTimeout: time.Hour})

	cb.Execute(func() error { return errBoom })
	cb.Execute(func() error { return nil })
	cb.Execute(func() error { return errBoom })

	if got := cb.State(); got != StateClosed {
		t.Errorf("State() = %v, want closed (counter reset by success)", got)
	}
}

func TestCircuitBreaker_ProbeClosesAfterReset(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(BreakerConfig{Name: "test", MaxFailures: 1, ResetTimeout: 10 * time.Millisecond})

	cb.Execute(func() error { return errBoom })
	if got := cb.State(); got != StateOpen {
		t.Fatalf("State() = %v, want open", got)
	}

	time.Sleep(20 * time.Millisecond)
	if got := cb.State(); got != StateHalfOpen {
		t.Fatalf("State() = %v, want half-open after reset timeout", got)
	}

	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe Execute() = %v", err)
	}
	if got := cb.State(); got != StateClosed {
		t.Errorf("State() = %v, want closed after successful probe", got)
	}
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(BreakerConfig{Name: "test", MaxFailures: 1, ResetTimeout: 10 * time.Millisecond})

	cb.Execute(func() error { return errBoom })
	time.Sleep(20 * time.Millisecond)

	if err := cb.Execute(func() error { return errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("probe Execute() = %v, want errBoom", err)
	}
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() after failed probe = %v, want ErrCircuitOpen", err)
	}
}

package resilience

import (
	"errors"
	"testing"
	"time"
)

func testCBConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:    3,
		ResetTimeout:        20 * time.Millisecond,
		HalfOpenMaxRequests: 1,
	}
}

func TestCircuitOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("test", testCBConfig())
	boom := errors.New("down")
	for i := 0; i < 3; i++ {
		if err := cb.Execute(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("state = %v, want open", cb.GetState())
	}
	err := cb.Execute(func() error {
		t.Error("open circuit must not run the request")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("want ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitRecoversThroughHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker("test", testCBConfig())
	boom := errors.New("down")
	for i := 0; i < 3; i++ {
		cb.Execute(func() error { return boom })
	}
	time.Sleep(30 * time.Millisecond)

	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("half-open probe failed: %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("state = %v, want closed after successful probe", cb.GetState())
	}
}

func TestCircuitReopensOnFailedProbe(t *testing.T) {
	cb := NewCircuitBreaker("test", testCBConfig())
	boom := errors.New("down")
	for i := 0; i < 3; i++ {
		cb.Execute(func() error { return boom })
	}
	time.Sleep(30 * time.Millisecond)

	cb.Execute(func() error { return boom })
	if cb.GetState() != StateOpen {
		t.Errorf("state = %v, want open after failed probe", cb.GetState())
	}
}

func TestCircuitSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("test", testCBConfig())
	boom := errors.New("down")
	cb.Execute(func() error { return boom })
	cb.Execute(func() error { return boom })
	cb.Execute(func() error { return nil })
	cb.Execute(func() error { return boom })
	cb.Execute(func() error { return boom })
	if cb.GetState() != StateClosed {
		t.Errorf("state = %v, interleaved successes must keep the circuit closed", cb.GetState())
	}
}

func TestCircuitReset(t *testing.T) {
	cb := NewCircuitBreaker("test", testCBConfig())
	boom := errors.New("down")
	for i := 0; i < 3; i++ {
		cb.Execute(func() error { return boom })
	}
	cb.Reset()
	if cb.GetState() != StateClosed {
		t.Errorf("state = %v after Reset", cb.GetState())
	}
}

package resilience

import (
	"errors"
	"testing"
	"time"
)

func testBreaker(threshold int, resetTimeout time.Duration) *Breaker {
	return New(Config{
		Threshold:         threshold,
		ResetTimeout:      resetTimeout,
		HalfOpenSuccesses: 2,
	})
}

func TestBreakerStartsClosed(t *testing.T) {
	b := testBreaker(3, time.Second)
	if b.State() != Closed {
		t.Errorf("State = %v, want closed", b.State())
	}
	if err := b.Allow(); err != nil {
		t.Errorf("Allow = %v, want nil", err)
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := testBreaker(3, time.Minute)

	for i := 0; i < 3; i++ {
		b.Failure()
	}
	if b.State() != Open {
		t.Errorf("State = %v, want open after 3 failures", b.State())
	}
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Errorf("Allow = %v, want ErrOpen", err)
	}
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := testBreaker(3, time.Minute)

	b.Failure()
	b.Failure()
	b.Success()
	b.Failure()
	b.Failure()
	if b.State() != Closed {
		t.Errorf("State = %v, want closed (success reset the count)", b.State())
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := testBreaker(1, time.Millisecond)

	b.Failure()
	if b.State() != Open {
		t.Fatal("should be open")
	}

	time.Sleep(5 * time.Millisecond)

	if err := b.Allow(); err != nil {
		t.Fatalf("Allow after reset timeout = %v, want nil", err)
	}
	if b.State() != HalfOpen {
		t.Fatalf("State = %v, want half-open", b.State())
	}

	b.Success()
	b.Success()
	if b.State() != Closed {
		t.Errorf("State = %v, want closed after half-open successes", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := testBreaker(1, time.Millisecond)

	b.Failure()
	time.Sleep(5 * time.Millisecond)
	_ = b.Allow() // transitions to half-open

	b.Failure()
	if b.State() != Open {
		t.Errorf("State = %v, want open after half-open failure", b.State())
	}
}

func TestBreakerExecute(t *testing.T) {
	b := testBreaker(2, time.Minute)

	failing := errors.New("boom")
	for i := 0; i < 2; i++ {
		if err := b.Execute(func() error { return failing }); !errors.Is(err, failing) {
			t.Errorf("Execute = %v, want boom", err)
		}
	}

	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrOpen) {
		t.Errorf("Execute while open = %v, want ErrOpen", err)
	}
}

func TestExecuteWithResult(t *testing.T) {
	b := testBreaker(2, time.Minute)

	got, err := ExecuteWithResult(b, func() (string, error) { return "text", nil })
	if err != nil || got != "text" {
		t.Errorf("ExecuteWithResult = (%q, %v), want (text, nil)", got, err)
	}

	b.Failure()
	b.Failure()
	_, err = ExecuteWithResult(b, func() (string, error) { return "text", nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("ExecuteWithResult while open = %v, want ErrOpen", err)
	}
}

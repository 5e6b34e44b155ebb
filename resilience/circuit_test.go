package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker("dep", CircuitBreakerConfig{})

	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
	if cb.config.FailureThreshold != 5 {
		t.Errorf("FailureThreshold = %d, want 5", cb.config.FailureThreshold)
	}
	if cb.config.SuccessThreshold != 1 {
		t.Errorf("SuccessThreshold = %d, want 1", cb.config.SuccessThreshold)
	}
	if cb.config.OpenTimeout != 30*time.Second {
		t.Errorf("OpenTimeout = %v, want 30s", cb.config.OpenTimeout)
	}
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker("dep", CircuitBreakerConfig{
		FailureThreshold: 3,
		OpenTimeout:      time.Second,
	})

	testErr := errors.New("test error")

	for i := 0; i < 2; i++ {
		err := cb.Execute(context.Background(), func(ctx context.Context) error {
			return testErr
		})
		if err != testErr {
			t.Errorf("Execute() error = %v, want %v", err, testErr)
		}
		if cb.State() != StateClosed {
			t.Errorf("after %d failures, state = %v, want closed", i+1, cb.State())
		}
	}

	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return testErr
	})
	if cb.State() != StateOpen {
		t.Errorf("after 3 failures, state = %v, want open", cb.State())
	}

	// Rejected without invoking the operation.
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		t.Error("operation invoked while circuit open")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() when open = %v, want ErrCircuitOpen", err)
	}

	var openErr *CircuitOpenError
	if !errors.As(err, &openErr) {
		t.Fatal("error is not a *CircuitOpenError")
	}
	if openErr.Dependency != "dep" {
		t.Errorf("Dependency = %q, want %q", openErr.Dependency, "dep")
	}
	if openErr.RetryAfter <= 0 || openErr.RetryAfter > time.Second {
		t.Errorf("RetryAfter = %v, want in (0, 1s]", openErr.RetryAfter)
	}
}

func TestCircuitBreaker_SuccessResetsFailureStreak(t *testing.T) {
	cb := NewCircuitBreaker("dep", CircuitBreakerConfig{FailureThreshold: 2})
	testErr := errors.New("test error")

	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return testErr })
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return testErr })

	// The streak broke, so two non-consecutive failures do not open.
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker("dep", CircuitBreakerConfig{
		FailureThreshold: 1,
		OpenTimeout:      10 * time.Millisecond,
	})

	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("boom")
	})
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	time.Sleep(20 * time.Millisecond)

	// First call after the timeout transitions and invokes the probe.
	invoked := false
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		invoked = true
		return nil
	})
	if err != nil {
		t.Errorf("probe error = %v", err)
	}
	if !invoked {
		t.Error("probe not invoked after open timeout")
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %v after successful probe, want closed", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenSingleFailureReverts(t *testing.T) {
	cb := NewCircuitBreaker("dep", CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 3,
		OpenTimeout:      10 * time.Millisecond,
	})

	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("boom")
	})

	time.Sleep(20 * time.Millisecond)

	// One probe failure reverts to open regardless of SuccessThreshold.
	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("still failing")
	})
	if cb.State() != StateOpen {
		t.Errorf("state = %v after probe failure, want open", cb.State())
	}

	// The open timeout restarted at the probe failure.
	err := cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() = %v, want ErrCircuitOpen right after reversion", err)
	}
}

func TestCircuitBreaker_SuccessThresholdClosesCircuit(t *testing.T) {
	cb := NewCircuitBreaker("dep", CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		HalfOpenMaxCalls: 2,
		OpenTimeout:      10 * time.Millisecond,
	})

	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("boom")
	})

	time.Sleep(20 * time.Millisecond)

	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %v after 1 success, want half-open", cb.State())
	}

	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
	if cb.State() != StateClosed {
		t.Errorf("state = %v after 2 successes, want closed", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenSlotReleasedAfterProbe(t *testing.T) {
	// HalfOpenMaxCalls below SuccessThreshold: each completed probe must
	// free its slot, or a healthy dependency could never accumulate
	// enough successes to close the circuit.
	cb := NewCircuitBreaker("dep", CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		HalfOpenMaxCalls: 1,
		OpenTimeout:      10 * time.Millisecond,
	})

	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("boom")
	})

	time.Sleep(20 * time.Millisecond)

	for i := 0; i < 2; i++ {
		invoked := false
		err := cb.Execute(context.Background(), func(ctx context.Context) error {
			invoked = true
			return nil
		})
		if err != nil {
			t.Fatalf("probe %d error = %v", i+1, err)
		}
		if !invoked {
			t.Fatalf("probe %d not invoked; healthy dependency never re-admitted", i+1)
		}
	}

	if cb.State() != StateClosed {
		t.Errorf("state = %v after 2 successful probes, want closed", cb.State())
	}
}

func TestCircuitBreaker_TimedScenario(t *testing.T) {
	// failure_threshold=2, open_timeout=100ms: two failures open the
	// circuit; a call at half the timeout is rejected without invoking
	// the operation; a call after the timeout is invoked.
	cb := NewCircuitBreaker("dep", CircuitBreakerConfig{
		FailureThreshold: 2,
		OpenTimeout:      100 * time.Millisecond,
	})
	testErr := errors.New("boom")

	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error { return testErr })
	}
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	time.Sleep(50 * time.Millisecond)
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		t.Error("operation invoked before open timeout elapsed")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("mid-timeout call = %v, want ErrCircuitOpen", err)
	}

	time.Sleep(60 * time.Millisecond)
	invoked := false
	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		invoked = true
		return nil
	})
	if !invoked {
		t.Error("operation not invoked after open timeout")
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	var mu sync.Mutex
	var transitions []string

	cb := NewCircuitBreaker("dep", CircuitBreakerConfig{
		FailureThreshold: 1,
		OpenTimeout:      10 * time.Millisecond,
		OnStateChange: func(dependency string, from, to State) {
			mu.Lock()
			transitions = append(transitions, from.String()+"->"+to.String())
			mu.Unlock()
		},
	})

	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("boom")
	})
	time.Sleep(20 * time.Millisecond)
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return nil })

	mu.Lock()
	defer mu.Unlock()
	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %q, want %q", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker("dep", CircuitBreakerConfig{FailureThreshold: 1})

	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("boom")
	})
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	cb.Reset()
	if cb.State() != StateClosed {
		t.Errorf("state after Reset = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_ConcurrentExecute(t *testing.T) {
	cb := NewCircuitBreaker("dep", CircuitBreakerConfig{FailureThreshold: 100})
	testErr := errors.New("boom")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = cb.Execute(context.Background(), func(ctx context.Context) error {
					if (i+j)%2 == 0 {
						return testErr
					}
					return nil
				})
			}
		}(i)
	}
	wg.Wait()

	// Interleaved successes keep the streak below threshold.
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_IsFailureFilter(t *testing.T) {
	benign := errors.New("benign")
	cb := NewCircuitBreaker("dep", CircuitBreakerConfig{
		FailureThreshold: 1,
		IsFailure: func(err error) bool {
			return err != nil && !errors.Is(err, benign)
		},
	})

	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return benign })
	if cb.State() != StateClosed {
		t.Errorf("state = %v after benign error, want closed", cb.State())
	}
}

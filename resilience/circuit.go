package resilience

import (
	"context"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means the circuit is operating normally.
	StateClosed State = iota
	// StateOpen means the circuit is blocking all requests.
	StateOpen
	// StateHalfOpen means the circuit is testing if the dependency recovered.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures a circuit breaker. Thresholds are
// per-dependency: a dependency with high natural error variance wants a
// higher failure threshold than one expected to be always-on.
type CircuitBreakerConfig struct {
	// FailureThreshold is the consecutive failures before opening.
	// Default: 5
	FailureThreshold int

	// SuccessThreshold is the consecutive half-open successes required
	// to close.
	// Default: 1
	SuccessThreshold int

	// OpenTimeout is how long the circuit stays open before a probe is
	// allowed. The first call arriving after the timeout triggers the
	// transition; there is no background timer.
	// Default: 30 seconds
	OpenTimeout time.Duration

	// HalfOpenMaxCalls caps in-flight probes while half-open.
	// Default: SuccessThreshold
	HalfOpenMaxCalls int

	// OnStateChange is called when the circuit state changes.
	OnStateChange func(dependency string, from, to State)

	// IsFailure determines if an error counts as a failure.
	// Default: all non-nil errors are failures.
	IsFailure func(err error) bool
}

// CircuitBreaker is a per-dependency fault-detector state machine.
// One instance per dependency name, created at startup and shared by all
// callers in the process; state mutation is a critical section.
type CircuitBreaker struct {
	dependency string
	config     CircuitBreakerConfig

	mu            sync.Mutex
	state         State
	failures      int
	successes     int
	lastFailure   time.Time
	halfOpenCalls int
}

// NewCircuitBreaker creates a circuit breaker for the named dependency.
func NewCircuitBreaker(dependency string, config CircuitBreakerConfig) *CircuitBreaker {
	// Apply defaults
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = 30 * time.Second
	}
	if config.HalfOpenMaxCalls <= 0 {
		config.HalfOpenMaxCalls = config.SuccessThreshold
	}
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool { return err != nil }
	}

	return &CircuitBreaker{
		dependency: dependency,
		config:     config,
		state:      StateClosed,
	}
}

// Dependency returns the name of the protected dependency.
func (cb *CircuitBreaker) Dependency() string {
	return cb.dependency
}

// Execute runs the operation through the circuit breaker. While open it
// rejects with a CircuitOpenError without invoking the operation;
// otherwise it invokes the operation, observes the outcome, and returns
// the operation's result unchanged.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := op(ctx)
	cb.afterRequest(err)
	return err
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentStateLocked()
}

// Reset forces the circuit back to closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	oldState := cb.state
	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenCalls = 0

	if oldState != StateClosed {
		cb.notifyLocked(oldState, StateClosed)
	}
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentStateLocked() {
	case StateOpen:
		remaining := cb.config.OpenTimeout - time.Since(cb.lastFailure)
		if remaining < 0 {
			remaining = 0
		}
		return &CircuitOpenError{Dependency: cb.dependency, RetryAfter: remaining}
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.config.HalfOpenMaxCalls {
			return &CircuitOpenError{Dependency: cb.dependency}
		}
		cb.halfOpenCalls++
	}

	return nil
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	isFailure := cb.config.IsFailure(err)
	oldState := cb.state

	switch cb.state {
	case StateClosed:
		if isFailure {
			cb.failures++
			cb.lastFailure = time.Now()
			if cb.failures >= cb.config.FailureThreshold {
				cb.state = StateOpen
			}
		} else {
			// Any success while closed resets the failure streak.
			cb.failures = 0
		}

	case StateHalfOpen:
		// The probe finished; release its in-flight slot so the next
		// probe can be admitted.
		if cb.halfOpenCalls > 0 {
			cb.halfOpenCalls--
		}
		if isFailure {
			// A single probe failure reverts immediately and restarts
			// the open timeout.
			cb.lastFailure = time.Now()
			cb.state = StateOpen
			cb.successes = 0
		} else {
			cb.successes++
			if cb.successes >= cb.config.SuccessThreshold {
				cb.state = StateClosed
				cb.failures = 0
				cb.successes = 0
			}
		}
	}

	if oldState != cb.state {
		cb.notifyLocked(oldState, cb.state)
	}
}

func (cb *CircuitBreaker) currentStateLocked() State {
	if cb.state == StateOpen && time.Since(cb.lastFailure) >= cb.config.OpenTimeout {
		cb.state = StateHalfOpen
		cb.halfOpenCalls = 0
		cb.successes = 0
		cb.notifyLocked(StateOpen, StateHalfOpen)
	}
	return cb.state
}

func (cb *CircuitBreaker) notifyLocked(from, to State) {
	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.dependency, from, to)
	}
}

// Snapshot contains current circuit breaker statistics.
type Snapshot struct {
	Dependency  string
	State       State
	Failures    int
	Successes   int
	LastFailure time.Time
}

// Snapshot returns current circuit breaker statistics.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Snapshot{
		Dependency:  cb.dependency,
		State:       cb.currentStateLocked(),
		Failures:    cb.failures,
		Successes:   cb.successes,
		LastFailure: cb.lastFailure,
	}
}

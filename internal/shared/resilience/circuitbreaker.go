package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrCircuitOpen is returned by Execute when the breaker is open and the
// reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker open")

// State is the current posture of a CircuitBreaker.
type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Config controls when a CircuitBreaker trips and when it attempts recovery.
type Config struct {
	FailureThreshold float64
	MinRequests      int
	ResetTimeout     time.Duration
}

// CircuitBreaker wraps calls to an unreliable dependency (in this repository,
// bus.DaprAdapter's publishes) and stops dispatching to it once its failure rate crosses
// FailureThreshold, giving it ResetTimeout to recover before probing again.
type CircuitBreaker struct {
	config       Config
	logger       *slog.Logger
	state        int32
	failures     int32
	requests     int32
	lastFailTime int64
	mu           sync.Mutex
}

func New(config Config, logger *slog.Logger) *CircuitBreaker {
	return &CircuitBreaker{config: config, logger: logger}
}

// Execute runs fn if the breaker allows it, recording the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.allowRequest() {
		return ErrCircuitOpen
	}

	atomic.AddInt32(&cb.requests, 1)
	if err := fn(ctx); err != nil {
		cb.onFailure()
		return err
	}
	cb.onSuccess()
	return nil
}

func (cb *CircuitBreaker) allowRequest() bool {
	switch State(atomic.LoadInt32(&cb.state)) {
	case StateOpen:
		if time.Since(time.Unix(0, atomic.LoadInt64(&cb.lastFailTime))) < cb.config.ResetTimeout {
			return false
		}
		cb.mu.Lock()
		defer cb.mu.Unlock()
		if State(atomic.LoadInt32(&cb.state)) == StateOpen {
			atomic.StoreInt32(&cb.state, int32(StateHalfOpen))
		}
		return true
	default:
		return true
	}
}

func (cb *CircuitBreaker) onSuccess() {
	if State(atomic.LoadInt32(&cb.state)) == StateHalfOpen {
		cb.mu.Lock()
		atomic.StoreInt32(&cb.state, int32(StateClosed))
		atomic.StoreInt32(&cb.failures, 0)
		atomic.StoreInt32(&cb.requests, 0)
		cb.mu.Unlock()
		if cb.logger != nil {
			cb.logger.Info("circuit breaker reset to closed")
		}
	}
}

func (cb *CircuitBreaker) onFailure() {
	atomic.AddInt32(&cb.failures, 1)
	atomic.StoreInt64(&cb.lastFailTime, time.Now().UnixNano())

	failures := atomic.LoadInt32(&cb.failures)
	requests := atomic.LoadInt32(&cb.requests)
	if requests < int32(cb.config.MinRequests) {
		return
	}
	if float64(failures)/float64(requests) >= cb.config.FailureThreshold {
		cb.trip()
	}
}

func (cb *CircuitBreaker) trip() {
	if atomic.SwapInt32(&cb.state, int32(StateOpen)) != int32(StateOpen) && cb.logger != nil {
		cb.logger.Warn("circuit breaker tripped", "failures", atomic.LoadInt32(&cb.failures), "requests", atomic.LoadInt32(&cb.requests))
	}
}

// State reports the breaker's current state.
func (cb *CircuitBreaker) State() State {
	return State(atomic.LoadInt32(&cb.state))
}

package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests")
)

// CircuitBreakerSettings holds configuration for a circuit breaker
type CircuitBreakerSettings struct {
	Name         string
	MaxRequests  uint32        // trial requests let through while half-open
	Interval     time.Duration // closed-state counting window
	Timeout      time.Duration // open-state cool-down
	FailureRatio float64
	MinRequests  uint32 // requests in the window before the ratio is considered
}

// DefaultSettings suits infrastructure we run ourselves (Postgres, Redis, Kafka)
func DefaultSettings(name string) CircuitBreakerSettings {
	return CircuitBreakerSettings{
		Name:         name,
		MaxRequests:  3,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// UpstreamSettings suits slow third-party HTTP sources, which get a longer cool-down
func UpstreamSettings(name string) CircuitBreakerSettings {
	s := DefaultSettings(name)
	s.Timeout = 2 * time.Minute
	s.MinRequests = 3
	return s
}

// StateListener is notified on every state transition
type StateListener func(name string, from, to string)

type rejectedError struct{ err error }

func (e *rejectedError) Error() string { return e.err.Error() }
func (e *rejectedError) Unwrap() error { return e.err }

// Rejected marks err as a well-formed refusal from a healthy dependency,
// such as an HTTP 4xx. It is returned to the caller but counted as a success.
func Rejected(err error) error {
	if err == nil {
		return nil
	}
	return &rejectedError{err: err}
}

// IsRejected reports whether err was marked with Rejected
func IsRejected(err error) bool {
	var r *rejectedError
	return errors.As(err, &r)
}

// countsAsSuccess keeps caller cancellations and rejections from tripping a breaker
func countsAsSuccess(err error) bool {
	return err == nil || IsRejected(err) || errors.Is(err, context.Canceled)
}

// CircuitBreaker guards one dependency
type CircuitBreaker struct {
	cb   *gobreaker.CircuitBreaker
	name string

	mu        sync.RWMutex
	listeners []StateListener
}

// NewCircuitBreaker creates a new circuit breaker with the given settings
func NewCircuitBreaker(settings CircuitBreakerSettings) *CircuitBreaker {
	b := &CircuitBreaker{name: settings.Name}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:         settings.Name,
		MaxRequests:  settings.MaxRequests,
		Interval:     settings.Interval,
		Timeout:      settings.Timeout,
		IsSuccessful: countsAsSuccess,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= settings.MinRequests &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= settings.FailureRatio
		},
		OnStateChange: b.notify,
	})
	return b
}

func (c *CircuitBreaker) notify(name string, from, to gobreaker.State) {
	c.mu.RLock()
	listeners := c.listeners
	c.mu.RUnlock()
	for _, l := range listeners {
		l(name, from.String(), to.String())
	}
}

// OnStateChange registers a listener for state transitions
func (c *CircuitBreaker) OnStateChange(l StateListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Execute runs fn through the breaker, translating gobreaker's refusals
// into ErrCircuitOpen and ErrTooManyRequests
func (c *CircuitBreaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := c.cb.Execute(fn)
	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		return nil, ErrCircuitOpen
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, ErrTooManyRequests
	}
	return result, err
}

// ExecuteContext is Execute for context-aware calls. A caller whose context
// is already done never reaches the dependency.
func (c *CircuitBreaker) ExecuteContext(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
}

// Call runs fn through cb and returns its typed result
func Call[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	result, err := cb.ExecuteContext(ctx, func(ctx context.Context) (interface{}, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	v, _ := result.(T)
	return v, nil
}

// State returns the current state of the circuit breaker
func (c *CircuitBreaker) State() string {
	return c.cb.State().String()
}

// IsOpen returns true if the circuit is open
func (c *CircuitBreaker) IsOpen() bool {
	return c.cb.State() == gobreaker.StateOpen
}

func (c *CircuitBreaker) Name() string {
	return c.name
}

func (c *CircuitBreaker) Counts() gobreaker.Counts {
	return c.cb.Counts()
}

// IsUnavailable reports whether err means the breaker refused the call
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests)
}

// CircuitBreakers holds one breaker per dependency of the lookup path
type CircuitBreakers struct {
	Gleif    *CircuitBreaker
	IsinDB   *CircuitBreaker
	Postgres *CircuitBreaker
	Redis    *CircuitBreaker
	Kafka    *CircuitBreaker
}

func NewCircuitBreakers() *CircuitBreakers {
	return &CircuitBreakers{
		Gleif:    NewCircuitBreaker(UpstreamSettings("gleif")),
		IsinDB:   NewCircuitBreaker(UpstreamSettings("isindb")),
		Postgres: NewCircuitBreaker(DefaultSettings("postgres")),
		Redis:    NewCircuitBreaker(DefaultSettings("redis")),
		Kafka:    NewCircuitBreaker(DefaultSettings("kafka")),
	}
}

func (cb *CircuitBreakers) all() []*CircuitBreaker {
	return []*CircuitBreaker{cb.Gleif, cb.IsinDB, cb.Postgres, cb.Redis, cb.Kafka}
}

// OnStateChange registers l on every breaker
func (cb *CircuitBreakers) OnStateChange(l StateListener) {
	for _, b := range cb.all() {
		b.OnStateChange(l)
	}
}

// AllHealthy returns true if no circuit breakers are open
func (cb *CircuitBreakers) AllHealthy() bool {
	for _, b := range cb.all() {
		if b.IsOpen() {
			return false
		}
	}
	return true
}

// Status maps breaker names to their state
func (cb *CircuitBreakers) Status() map[string]string {
	all := cb.all()
	status := make(map[string]string, len(all))
	for _, b := range all {
		status[b.Name()] = b.State()
	}
	return status
}

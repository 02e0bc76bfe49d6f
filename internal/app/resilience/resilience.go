// Package resilience provides fault tolerance primitives backed by
// github.com/sony/gobreaker/v2 (circuit breaking) and
// github.com/cenkalti/backoff/v4 (retry with exponential backoff). It is a
// thin adapter that keeps a stable Execute(ctx, fn) / Retry(ctx, cfg, fn)
// surface over battle-tested OSS, so callers never touch gobreaker or
// backoff types directly.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// ---------------------------------------------------------------------------
// Circuit breaker
// ---------------------------------------------------------------------------

// State mirrors gobreaker's three-state machine.
type State int

const (
	StateClosed   State = State(gobreaker.StateClosed)
	StateHalfOpen State = State(gobreaker.StateHalfOpen)
	StateOpen     State = State(gobreaker.StateOpen)
)

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

// Sentinel errors callers can compare against with errors.Is.
var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config configures a CircuitBreaker. Defaults per spec §4.2: 3 consecutive
// failures to open, 300s open timeout, 1 consecutive success to close.
type Config struct {
	MaxFailures   int
	Timeout       time.Duration
	HalfOpenMax   int
	OnStateChange func(name string, from, to State)
}

// DefaultConfig returns the spec §4.2 defaults.
func DefaultConfig() Config {
	return Config{
		MaxFailures: 3,
		Timeout:     300 * time.Second,
		HalfOpenMax: 1,
	}
}

// CircuitBreaker wraps gobreaker.CircuitBreaker, named per resource (e.g.
// "provider:rich", "provider:crypto-futures").
type CircuitBreaker struct {
	name string
	gb   *gobreaker.CircuitBreaker[any]
}

// New creates a named CircuitBreaker.
func New(name string, cfg Config) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 300 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}

	maxFailures := uint32(cfg.MaxFailures)
	halfOpenMax := uint32(cfg.HalfOpenMax)

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: halfOpenMax,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	}
	if cfg.OnStateChange != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			cfg.OnStateChange(name, State(from), State(to))
		}
	}

	return &CircuitBreaker{name: name, gb: gobreaker.NewCircuitBreaker[any](settings)}
}

// Name returns the resource name this breaker guards.
func (cb *CircuitBreaker) Name() string { return cb.name }

// State returns the current circuit state.
func (cb *CircuitBreaker) State() State { return State(cb.gb.State()) }

// Execute runs fn with circuit-breaker protection. When the circuit is open,
// fn is never invoked and ErrCircuitOpen is returned so the caller can drive
// fallback. The ctx parameter is accepted for call-site symmetry with other
// resilience primitives; callers enforce deadlines via fn itself.
func (cb *CircuitBreaker) Execute(_ context.Context, fn func() error) error {
	_, err := cb.gb.Execute(func() (any, error) {
		return nil, fn()
	})
	return mapGobreakerError(err)
}

func mapGobreakerError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) {
		return ErrCircuitOpen
	}
	if errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrTooManyRequests
	}
	return err
}

// Registry holds named circuit breakers, one per upstream resource, shared
// process-wide across all scheduler tasks. Mutation is delegated entirely to
// the underlying gobreaker instances, each independently safe for
// concurrent use; the registry's own map is guarded for lazy creation.
type Registry struct {
	cfg      Config
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewRegistry creates an empty breaker registry using cfg for every breaker
// it lazily creates.
func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg, breakers: make(map[string]*CircuitBreaker)}
}

// Get returns the named breaker, creating it with the registry's default
// config on first use.
func (r *Registry) Get(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	cb := New(name, r.cfg)
	r.breakers[name] = cb
	return cb
}

// ---------------------------------------------------------------------------
// Retry
// ---------------------------------------------------------------------------

// RetryConfig configures exponential-backoff retry. Defaults per spec §4.7:
// initial 2s, multiplier 2, up to 3 attempts.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64 // 0-1, maps to backoff.RandomizationFactor
}

// DefaultRetryConfig returns the spec §4.7 task-retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       0,
	}
}

// Retry executes fn with exponential backoff using cenkalti/backoff. The
// retry-after hint, when positive, floors the first delay per spec §9's
// "treat retry-after as advisory" resolution.
func Retry(ctx context.Context, cfg RetryConfig, retryAfterHint time.Duration, fn func() error) error {
	return RetryNotify(ctx, cfg, retryAfterHint, nil, fn)
}

// RetryNotify behaves like Retry but additionally calls notify after each
// failed attempt, before the next backoff sleep, with the 1-based attempt
// number that just failed. Callers use this to advance an externally
// persisted retry counter (spec §4.7: "between attempts, update the
// backfill-state retry counter") without this package knowing anything
// about backfill state.
func RetryNotify(ctx context.Context, cfg RetryConfig, retryAfterHint time.Duration, notify func(attempt int, err error), fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	bo := backoff.NewExponentialBackOff()
	if cfg.InitialDelay > 0 {
		bo.InitialInterval = cfg.InitialDelay
	}
	if retryAfterHint > bo.InitialInterval {
		bo.InitialInterval = retryAfterHint
	}
	if cfg.MaxDelay > 0 {
		bo.MaxInterval = cfg.MaxDelay
	}
	if cfg.Multiplier > 0 {
		bo.Multiplier = cfg.Multiplier
	}
	bo.RandomizationFactor = cfg.Jitter
	bo.MaxElapsedTime = 0

	maxRetries := uint64(cfg.MaxAttempts - 1)
	withMax := backoff.WithMaxRetries(bo, maxRetries)
	withCtx := backoff.WithContext(withMax, ctx)

	attempt := 0
	return backoff.RetryNotify(func() error { return fn() }, withCtx, func(err error, _ time.Duration) {
		attempt++
		if notify != nil {
			notify(attempt, err)
		}
	})
}

// Package ratelimit provides per-provider request throttling backed by
// golang.org/x/time/rate token buckets, so a slow upstream source never
// bursts past its quota from a single scheduler sweep.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter throttles calls to a single upstream source using independent
// per-second and per-minute token buckets; a call must clear both.
type Limiter struct {
	name        string
	perSecond   *rate.Limiter
	perMinute   *rate.Limiter
}

// Config defines a source's allowed request rate.
type Config struct {
	RequestsPerSecond float64
	BurstSize         int
	RequestsPerMinute float64
}

// New creates a Limiter for the named source.
func New(name string, cfg Config) *Limiter {
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = 1
	}
	l := &Limiter{name: name}
	if cfg.RequestsPerSecond > 0 {
		l.perSecond = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	if cfg.RequestsPerMinute > 0 {
		l.perMinute = rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60.0), burst)
	}
	return l
}

// Name returns the throttled source's name.
func (l *Limiter) Name() string { return l.name }

// Wait blocks until both buckets admit one request, or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.perSecond != nil {
		if err := l.perSecond.Wait(ctx); err != nil {
			return err
		}
	}
	if l.perMinute != nil {
		if err := l.perMinute.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Allow reports whether a request may proceed immediately, without blocking.
func (l *Limiter) Allow() bool {
	if l.perSecond != nil && !l.perSecond.Allow() {
		return false
	}
	if l.perMinute != nil && !l.perMinute.Allow() {
		return false
	}
	return true
}

// Registry holds per-source limiters, created lazily from a per-name config
// lookup supplied at construction.
type Registry struct {
	configs  map[string]Config
	limiters map[string]*Limiter
}

// NewRegistry builds a Registry from a fixed set of named source configs.
func NewRegistry(configs map[string]Config) *Registry {
	return &Registry{configs: configs, limiters: make(map[string]*Limiter)}
}

// Get returns the named source's limiter, creating it from the registry's
// configured defaults on first use. An unconfigured name gets an
// unrestricted limiter.
func (r *Registry) Get(name string) *Limiter {
	if l, ok := r.limiters[name]; ok {
		return l
	}
	cfg, ok := r.configs[name]
	if !ok {
		cfg = Config{RequestsPerSecond: 0}
	}
	l := New(name, cfg)
	r.limiters[name] = l
	return l
}

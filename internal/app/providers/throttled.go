package providers

import (
	"context"

	"github.com/candlewarehouse/engine/internal/app/domain/candle"
	"github.com/candlewarehouse/engine/internal/app/domain/symbol"
	"github.com/candlewarehouse/engine/internal/app/ratelimit"
)

// Throttled wraps a MicrostructureProvider with a rate limiter, blocking
// each call until the limiter admits it or ctx is cancelled first.
type Throttled struct {
	MicrostructureProvider
	Limiter *ratelimit.Limiter
}

// NewThrottledCandleProvider wraps a CandleProvider with a rate limiter. The
// returned value implements CandleProvider only; use NewThrottled for a
// MicrostructureProvider.
func NewThrottledCandleProvider(p CandleProvider, limiter *ratelimit.Limiter) CandleProvider {
	return &throttledCandles{CandleProvider: p, limiter: limiter}
}

type throttledCandles struct {
	CandleProvider
	limiter *ratelimit.Limiter
}

func (t *throttledCandles) FetchCandles(ctx context.Context, nativeSymbol string, period symbol.Period, r Range) ([]candle.Raw, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, NewError(ErrKindRateLimited, t.Name(), err)
		}
	}
	return t.CandleProvider.FetchCandles(ctx, nativeSymbol, period, r)
}

// NewThrottled wraps a MicrostructureProvider with a rate limiter.
func NewThrottled(p MicrostructureProvider, limiter *ratelimit.Limiter) *Throttled {
	return &Throttled{MicrostructureProvider: p, Limiter: limiter}
}

func (t *Throttled) FetchCandles(ctx context.Context, nativeSymbol string, period symbol.Period, r Range) ([]candle.Raw, error) {
	if t.Limiter != nil {
		if err := t.Limiter.Wait(ctx); err != nil {
			return nil, NewError(ErrKindRateLimited, t.Name(), err)
		}
	}
	return t.MicrostructureProvider.FetchCandles(ctx, nativeSymbol, period, r)
}

func (t *Throttled) FetchMicrostructure(ctx context.Context, nativeSymbol string, period symbol.Period) (Microstructure, error) {
	if t.Limiter != nil {
		if err := t.Limiter.Wait(ctx); err != nil {
			return Microstructure{}, NewError(ErrKindRateLimited, t.Name(), err)
		}
	}
	return t.MicrostructureProvider.FetchMicrostructure(ctx, nativeSymbol, period)
}

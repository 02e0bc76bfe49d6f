// Package providers defines the typed interface every upstream market-data
// source implements, and the closed error-kind type the aggregator
// pattern-matches on to decide whether to retry, fall back, or give up.
package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/candlewarehouse/engine/internal/app/domain/candle"
	"github.com/candlewarehouse/engine/internal/app/domain/symbol"
)

// Range is an inclusive UTC instant range for a fetch request.
type Range struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether the range is well-formed (start <= end).
func (r Range) Valid() bool {
	return !r.Start.After(r.End)
}

// Microstructure is the crypto-futures-only extended data point.
type Microstructure struct {
	Symbol            string
	Period            symbol.Period
	OpenInterest      *float64
	FundingRate       *float64
	LongLiquidations  *float64
	ShortLiquidations *float64
	TakerBuyVolume    *float64
	TakerSellVolume   *float64
}

// CandleProvider fetches raw OHLCV candles from a single upstream source,
// using that source's own native symbol representation.
type CandleProvider interface {
	// Name identifies the source for circuit-breaker naming and audit rows.
	Name() string
	// FetchCandles returns candles strictly ordered ascending by open time,
	// with no duplicates and nothing future-dated.
	FetchCandles(ctx context.Context, nativeSymbol string, period symbol.Period, r Range) ([]candle.Raw, error)
}

// MicrostructureProvider is implemented only by providers that can serve
// crypto microstructure data (currently the crypto-futures client).
type MicrostructureProvider interface {
	CandleProvider
	FetchMicrostructure(ctx context.Context, nativeSymbol string, period symbol.Period) (Microstructure, error)
}

// ErrorKind is a closed discriminated-union tag for provider failures. The
// aggregator pattern-matches on this value rather than catching exceptions.
type ErrorKind int

const (
	ErrKindTransport ErrorKind = iota
	ErrKindRateLimited
	ErrKindAuth
	ErrKindNotFound
	ErrKindMalformedResponse
	ErrKindServer
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindTransport:
		return "transport"
	case ErrKindRateLimited:
		return "rate-limited"
	case ErrKindAuth:
		return "auth"
	case ErrKindNotFound:
		return "not-found"
	case ErrKindMalformedResponse:
		return "malformed-response"
	case ErrKindServer:
		return "server"
	default:
		return "unknown"
	}
}

// Error is the closed error variant every CandleProvider returns on
// failure. RetryAfter is set only for ErrKindRateLimited, when the upstream
// supplied a hint.
type Error struct {
	Kind       ErrorKind
	Source     string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: %s (retry-after %s): %v", e.Source, e.Kind, e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether a task-level retry is appropriate for this
// error kind in isolation, per spec §7. The aggregator itself always moves
// on to the next source regardless of this value.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case ErrKindTransport, ErrKindRateLimited:
		return true
	default:
		return false
	}
}

func NewError(kind ErrorKind, source string, err error) *Error {
	return &Error{Kind: kind, Source: source, Err: err}
}

func NewRateLimitedError(source string, retryAfter time.Duration, err error) *Error {
	return &Error{Kind: ErrKindRateLimited, Source: source, RetryAfter: retryAfter, Err: err}
}

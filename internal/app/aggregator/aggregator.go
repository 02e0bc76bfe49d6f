// Package aggregator selects the best upstream provider for a symbol,
// translates its ticker to that source's native spelling, and falls back
// through the asset class's source priority list on failure.
package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/candlewarehouse/engine/internal/app/concurrency"
	"github.com/candlewarehouse/engine/internal/app/domain/audit"
	"github.com/candlewarehouse/engine/internal/app/domain/candle"
	"github.com/candlewarehouse/engine/internal/app/domain/symbol"
	"github.com/candlewarehouse/engine/internal/app/metrics"
	"github.com/candlewarehouse/engine/internal/app/providers"
	"github.com/candlewarehouse/engine/internal/app/resilience"
	"github.com/candlewarehouse/engine/pkg/logger"
)

// AuditRecorder persists fetch-audit rows. Implemented by the persistence
// layer; the aggregator never touches storage directly.
type AuditRecorder interface {
	RecordFetch(ctx context.Context, entry audit.FetchEntry) error
}

// Result is what fetch_ohlcv returns on success.
type Result struct {
	Source   string
	Candles  []candle.Raw
	Attempts []Attempt
}

// Attempt records one source's outcome within a single fetch_ohlcv call.
type Attempt struct {
	Source  string
	Skipped bool // breaker open, or no alias registered
	Err     error
}

// Aggregator is the stock/etf/crypto source-priority walker described in
// spec §4.3.
type Aggregator struct {
	symbols    *symbol.Table
	sources    map[symbol.AssetClass][]providers.CandleProvider
	micro      providers.MicrostructureProvider
	breakers   *resilience.Registry
	audit      AuditRecorder
	log        *logger.Logger
}

// Config wires concrete provider clients into the priority lists spec §4.3
// defines per asset class.
type Config struct {
	// Stock/ETF priority: rich provider, then fallback provider.
	RichProvider     providers.CandleProvider
	FallbackProvider providers.CandleProvider
	// Crypto priority: crypto-futures provider, then rich provider.
	CryptoFuturesProvider providers.MicrostructureProvider
	Breakers              *resilience.Registry
	Audit                 AuditRecorder
	Log                   *logger.Logger
}

// New builds an Aggregator from the asset-class source priorities in
// spec §4.3: stock/etf → rich → fallback; crypto → crypto-futures → rich.
func New(symbols *symbol.Table, cfg Config) *Aggregator {
	a := &Aggregator{
		symbols:  symbols,
		breakers: cfg.Breakers,
		audit:    cfg.Audit,
		log:      cfg.Log,
		micro:    cfg.CryptoFuturesProvider,
		sources:  make(map[symbol.AssetClass][]providers.CandleProvider),
	}
	if cfg.RichProvider != nil {
		a.sources[symbol.AssetStock] = append(a.sources[symbol.AssetStock], cfg.RichProvider)
		a.sources[symbol.AssetETF] = append(a.sources[symbol.AssetETF], cfg.RichProvider)
	}
	if cfg.FallbackProvider != nil {
		a.sources[symbol.AssetStock] = append(a.sources[symbol.AssetStock], cfg.FallbackProvider)
		a.sources[symbol.AssetETF] = append(a.sources[symbol.AssetETF], cfg.FallbackProvider)
	}
	if cfg.CryptoFuturesProvider != nil {
		a.sources[symbol.AssetCrypto] = append(a.sources[symbol.AssetCrypto], cfg.CryptoFuturesProvider)
	}
	if cfg.RichProvider != nil {
		a.sources[symbol.AssetCrypto] = append(a.sources[symbol.AssetCrypto], cfg.RichProvider)
	}
	return a
}

// FetchOHLCV walks the asset class's source priority, translating the
// canonical ticker to each source's native alias, skipping sources with no
// alias registered or an open circuit, and returning the first success.
func (a *Aggregator) FetchOHLCV(ctx context.Context, ticker string, class symbol.AssetClass, period symbol.Period, r providers.Range) (Result, error) {
	desc, ok := a.symbols.Lookup(ticker)
	if !ok {
		return Result{}, fmt.Errorf("symbol-not-registered: %q", ticker)
	}

	var attempts []Attempt
	var lastErr error

	for _, src := range a.sources[class] {
		name := src.Name()
		alias, hasAlias := desc.AliasFor(name)
		if !hasAlias {
			attempts = append(attempts, Attempt{Source: name, Skipped: true})
			continue
		}

		cb := a.breakers.Get(breakerName(name))
		metrics.RecordCircuitState(breakerName(name), int(cb.State()))
		if cb.State() == resilience.StateOpen {
			attempts = append(attempts, Attempt{Source: name, Skipped: true})
			continue
		}

		start := time.Now()
		var candles []candle.Raw
		execErr := cb.Execute(ctx, func() error {
			var err error
			candles, err = src.FetchCandles(ctx, alias, period, r)
			return err
		})
		latency := time.Since(start)
		metrics.RecordCircuitState(breakerName(name), int(cb.State()))
		metrics.RecordFetch(name, execErr == nil, latency)

		a.recordFetch(ctx, ticker, name, period, r, len(candles), execErr == nil, latency, execErr)

		if execErr != nil {
			attempts = append(attempts, Attempt{Source: name, Err: execErr})
			lastErr = execErr
			continue
		}

		for i := range candles {
			candles[i].Symbol = ticker
			candles[i].AssetClass = class
		}
		return Result{Source: name, Candles: candles, Attempts: attempts}, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no source had a registered alias for %q", ticker)
	}
	return Result{Attempts: attempts}, fmt.Errorf("all-sources-exhausted: %w", lastErr)
}

// FetchMicrostructure routes to the crypto-futures client under its
// circuit breaker. Crypto-only, per spec §4.3.
func (a *Aggregator) FetchMicrostructure(ctx context.Context, ticker string, period symbol.Period) (providers.Microstructure, error) {
	if a.micro == nil {
		return providers.Microstructure{}, fmt.Errorf("no crypto-futures provider configured")
	}
	desc, ok := a.symbols.Lookup(ticker)
	if !ok {
		return providers.Microstructure{}, fmt.Errorf("symbol-not-registered: %q", ticker)
	}
	alias, hasAlias := desc.AliasFor(a.micro.Name())
	if !hasAlias {
		return providers.Microstructure{}, fmt.Errorf("no crypto-futures alias registered for %q", ticker)
	}

	cb := a.breakers.Get(breakerName(a.micro.Name()))
	var ms providers.Microstructure
	err := cb.Execute(ctx, func() error {
		var err error
		ms, err = a.micro.FetchMicrostructure(ctx, alias, period)
		return err
	})
	return ms, err
}

// ParallelResult pairs one requested ticker with its fetch outcome.
type ParallelResult struct {
	Ticker string
	Result Result
	Err    error
}

// FetchParallel fetches OHLCV for every ticker, bounded by maxConcurrent,
// returning one result per input ticker in input order.
func (a *Aggregator) FetchParallel(ctx context.Context, tickers []string, class symbol.AssetClass, period symbol.Period, r providers.Range, maxConcurrent int) []ParallelResult {
	out := make([]ParallelResult, len(tickers))
	group := concurrency.NewGroup(maxConcurrent)

	for i, ticker := range tickers {
		i, ticker := i, ticker
		group.Go(ctx, func(ctx context.Context) error {
			res, err := a.FetchOHLCV(ctx, ticker, class, period, r)
			out[i] = ParallelResult{Ticker: ticker, Result: res, Err: err}
			return nil
		})
	}
	group.Wait()
	return out
}

func (a *Aggregator) recordFetch(ctx context.Context, ticker, source string, period symbol.Period, r providers.Range, fetched int, success bool, latency time.Duration, err error) {
	if a.audit == nil {
		return
	}
	entry := audit.FetchEntry{
		ID:              uuid.NewString(),
		Symbol:          ticker,
		Source:          source,
		Period:          period,
		RangeStart:      r.Start,
		RangeEnd:        r.End,
		RecordsFetched:  fetched,
		LatencyMS:       latency.Milliseconds(),
		Success:         success,
		Timestamp:       time.Now().UTC(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if recErr := a.audit.RecordFetch(ctx, entry); recErr != nil && a.log != nil {
		a.log.WithError(recErr).WithField("symbol", ticker).Warn("failed to record fetch audit")
	}
}

func breakerName(source string) string { return "provider:" + source }

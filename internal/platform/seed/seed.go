// Package seed provides the static symbol table used by cmd/enrichd.
// Symbol registration is intentionally out of the engine's domain logic per
// symbol.Table's own contract; production deployments typically load this
// from an operator-maintained table instead, but a fixed table keeps the
// daemon runnable without an external dependency.
package seed

import "github.com/candlewarehouse/engine/internal/app/domain/symbol"

// Descriptors returns the default set of actively maintained symbols: a
// handful of large-cap stocks, one broad-market ETF, and two crypto
// perpetual futures, each aliased to every source the aggregator can reach
// for its asset class.
func Descriptors() []symbol.Descriptor {
	return []symbol.Descriptor{
		{
			Ticker:     "AAPL",
			AssetClass: symbol.AssetStock,
			Periods:    []symbol.Period{symbol.Period1h, symbol.Period1d},
			Aliases:    map[string]string{"rich": "AAPL", "fallback": "AAPL.US"},
			Active:     true,
		},
		{
			Ticker:     "MSFT",
			AssetClass: symbol.AssetStock,
			Periods:    []symbol.Period{symbol.Period1h, symbol.Period1d},
			Aliases:    map[string]string{"rich": "MSFT", "fallback": "MSFT.US"},
			Active:     true,
		},
		{
			Ticker:     "SPY",
			AssetClass: symbol.AssetETF,
			Periods:    []symbol.Period{symbol.Period1d},
			Aliases:    map[string]string{"rich": "SPY", "fallback": "SPY.US"},
			Active:     true,
		},
		{
			Ticker:     "BTC-USD",
			AssetClass: symbol.AssetCrypto,
			Periods:    []symbol.Period{symbol.Period15m, symbol.Period1h, symbol.Period4h, symbol.Period1d},
			Aliases:    map[string]string{"crypto-futures": "BTCUSDT", "rich": "X:BTCUSD"},
			Active:     true,
		},
		{
			Ticker:     "ETH-USD",
			AssetClass: symbol.AssetCrypto,
			Periods:    []symbol.Period{symbol.Period15m, symbol.Period1h, symbol.Period4h, symbol.Period1d},
			Aliases:    map[string]string{"crypto-futures": "ETHUSDT", "rich": "X:ETHUSD"},
			Active:     true,
		},
	}
}

// Table builds a symbol.Table from Descriptors.
func Table() *symbol.Table {
	return symbol.NewTable(Descriptors())
}

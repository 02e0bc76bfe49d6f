// Package fallbackprovider implements the historical CSV daily-granularity
// provider used as the last resort for stocks and ETFs when the rich
// provider's circuit is open or its attempt failed.
package fallbackprovider

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/candlewarehouse/engine/internal/app/domain/candle"
	"github.com/candlewarehouse/engine/internal/app/domain/symbol"
	"github.com/candlewarehouse/engine/internal/app/providers"
)

const sourceName = "fallback"

// Client calls the fallback provider's CSV historical endpoint. It only
// ever serves daily candles; requests for any other period fail fast with
// not-found, which the aggregator records as a failed attempt before trying
// the next source.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{baseURL: cfg.BaseURL, apiKey: cfg.APIKey, http: &http.Client{Timeout: timeout}}
}

func (c *Client) Name() string { return sourceName }

func (c *Client) FetchCandles(ctx context.Context, nativeSymbol string, period symbol.Period, r providers.Range) ([]candle.Raw, error) {
	if period != symbol.Period1d {
		return nil, providers.NewError(providers.ErrKindNotFound, sourceName, fmt.Errorf("fallback provider only serves daily candles, got %q", period))
	}
	if nativeSymbol == "" {
		return nil, providers.NewError(providers.ErrKindMalformedResponse, sourceName, fmt.Errorf("empty native symbol"))
	}
	if !r.Valid() {
		return nil, providers.NewError(providers.ErrKindMalformedResponse, sourceName, fmt.Errorf("invalid range"))
	}

	u := fmt.Sprintf("%s/historical/%s", c.baseURL, url.PathEscape(nativeSymbol))
	q := url.Values{}
	q.Set("from", r.Start.Format("2006-01-02"))
	q.Set("to", r.End.Format("2006-01-02"))
	q.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u+"?"+q.Encode(), nil)
	if err != nil {
		return nil, providers.NewError(providers.ErrKindTransport, sourceName, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, providers.NewError(providers.ErrKindTransport, sourceName, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, providers.NewError(providers.ErrKindAuth, sourceName, fmt.Errorf("status %d", resp.StatusCode))
	case http.StatusNotFound:
		return nil, providers.NewError(providers.ErrKindNotFound, sourceName, fmt.Errorf("symbol %q not carried", nativeSymbol))
	case http.StatusTooManyRequests:
		return nil, providers.NewRateLimitedError(sourceName, 0, fmt.Errorf("status %d", resp.StatusCode))
	default:
		if resp.StatusCode >= 500 {
			return nil, providers.NewError(providers.ErrKindServer, sourceName, fmt.Errorf("status %d", resp.StatusCode))
		}
		return nil, providers.NewError(providers.ErrKindMalformedResponse, sourceName, fmt.Errorf("status %d", resp.StatusCode))
	}

	rows, err := parseCSV(resp.Body)
	if err != nil {
		return nil, providers.NewError(providers.ErrKindMalformedResponse, sourceName, err)
	}

	out := make([]candle.Raw, 0, len(rows))
	now := time.Now().UTC()
	for _, row := range rows {
		if row.OpenTime.Before(r.Start) || row.OpenTime.After(r.End) || row.OpenTime.After(now) {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })
	return dedupe(out), nil
}

// header: date,open,high,low,close,volume
func parseCSV(r io.Reader) ([]candle.Raw, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}
	_ = header

	var out []candle.Raw
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) < 6 {
			return nil, fmt.Errorf("csv row has %d fields, want >= 6", len(rec))
		}
		openTime, err := time.Parse("2006-01-02", rec[0])
		if err != nil {
			return nil, fmt.Errorf("parse date %q: %w", rec[0], err)
		}
		open, err1 := decimal.NewFromString(rec[1])
		high, err2 := decimal.NewFromString(rec[2])
		low, err3 := decimal.NewFromString(rec[3])
		closePrice, err4 := decimal.NewFromString(rec[4])
		volume, err5 := strconv.ParseInt(rec[5], 10, 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			return nil, fmt.Errorf("unparsable csv row for %s", rec[0])
		}
		out = append(out, candle.Raw{
			Period:   symbol.Period1d,
			OpenTime: openTime.UTC(),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closePrice,
			Volume:   volume,
		})
	}
	return out, nil
}

func dedupe(in []candle.Raw) []candle.Raw {
	out := make([]candle.Raw, 0, len(in))
	var last time.Time
	for i, c := range in {
		if i > 0 && c.OpenTime.Equal(last) {
			continue
		}
		out = append(out, c)
		last = c.OpenTime
	}
	return out
}

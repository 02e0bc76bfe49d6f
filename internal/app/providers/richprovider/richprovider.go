// Package richprovider implements the rich aggregates HTTP/JSON provider:
// the primary source for stocks, ETFs, and crypto, rate-limited to the
// assumed free tier (5 req/min).
package richprovider

import (
	"context"
	"encoding/json"
	"fmt"
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

const sourceName = "rich"

// maxPageCandles is the provider's per-request page cap; requests spanning
// a wider range are split into ascending slices and concatenated.
const maxPageCandles = 1000

// Client calls the rich provider's aggregates endpoint.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// New creates a rich-provider Client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Name() string { return sourceName }

type aggregatesResponse struct {
	Results []aggregateBar `json:"results"`
}

type aggregateBar struct {
	Timestamp int64   `json:"t"` // unix millis
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    int64   `json:"v"`
}

// FetchCandles fetches candles for the given range, paging transparently
// when the range exceeds the provider's per-request limit.
func (c *Client) FetchCandles(ctx context.Context, nativeSymbol string, period symbol.Period, r providers.Range) ([]candle.Raw, error) {
	if nativeSymbol == "" {
		return nil, providers.NewError(providers.ErrKindMalformedResponse, sourceName, fmt.Errorf("empty native symbol"))
	}
	if !period.Valid() {
		return nil, providers.NewError(providers.ErrKindMalformedResponse, sourceName, fmt.Errorf("unsupported period %q", period))
	}
	if !r.Valid() {
		return nil, providers.NewError(providers.ErrKindMalformedResponse, sourceName, fmt.Errorf("invalid range"))
	}

	var all []candle.Raw
	cursor := r.Start
	for !cursor.After(r.End) {
		pageEnd := cursor.Add(period.Duration() * maxPageCandles)
		if pageEnd.After(r.End) {
			pageEnd = r.End
		}
		page, err := c.fetchPage(ctx, nativeSymbol, period, providers.Range{Start: cursor, End: pageEnd})
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) == 0 {
			break
		}
		cursor = pageEnd.Add(period.Duration())
	}

	sort.Slice(all, func(i, j int) bool { return all[i].OpenTime.Before(all[j].OpenTime) })
	return dedupe(all), nil
}

func (c *Client) fetchPage(ctx context.Context, nativeSymbol string, period symbol.Period, r providers.Range) ([]candle.Raw, error) {
	u := fmt.Sprintf("%s/v2/aggs/ticker/%s/range/%s", c.baseURL, url.PathEscape(nativeSymbol), period)
	q := url.Values{}
	q.Set("from", strconv.FormatInt(r.Start.UnixMilli(), 10))
	q.Set("to", strconv.FormatInt(r.End.UnixMilli(), 10))
	q.Set("apiKey", c.apiKey)

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
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, providers.NewRateLimitedError(sourceName, retryAfter, fmt.Errorf("status %d", resp.StatusCode))
	default:
		if resp.StatusCode >= 500 {
			return nil, providers.NewError(providers.ErrKindServer, sourceName, fmt.Errorf("status %d", resp.StatusCode))
		}
		return nil, providers.NewError(providers.ErrKindMalformedResponse, sourceName, fmt.Errorf("status %d", resp.StatusCode))
	}

	var body aggregatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, providers.NewError(providers.ErrKindMalformedResponse, sourceName, err)
	}

	out := make([]candle.Raw, 0, len(body.Results))
	now := time.Now().UTC()
	for _, bar := range body.Results {
		openTime := time.UnixMilli(bar.Timestamp).UTC()
		if openTime.After(now) {
			continue
		}
		out = append(out, candle.Raw{
			Symbol: nativeSymbol,
			Period: period,
			OpenTime: openTime,
			Open:   decimal.NewFromFloat(bar.Open),
			High:   decimal.NewFromFloat(bar.High),
			Low:    decimal.NewFromFloat(bar.Low),
			Close:  decimal.NewFromFloat(bar.Close),
			Volume: bar.Volume,
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

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}

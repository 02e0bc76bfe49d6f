// Package cryptofutures implements the crypto-futures HTTP/JSON provider:
// klines plus microstructure (open interest, funding, liquidations, taker
// volume), at the higher rate allowance (~1200 req/min).
package cryptofutures

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

const sourceName = "crypto-futures"

const maxPageCandles = 1500

// Client calls the crypto-futures exchange's klines and microstructure
// endpoints.
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
		timeout = 15 * time.Second
	}
	return &Client{baseURL: cfg.BaseURL, apiKey: cfg.APIKey, http: &http.Client{Timeout: timeout}}
}

func (c *Client) Name() string { return sourceName }

// klineBar mirrors a typical futures exchange's array-encoded kline row:
// [openTime, open, high, low, close, volume, takerBuyVol, takerSellVol].
type klineBar struct {
	OpenTimeMS     int64
	Open           string
	High           string
	Low            string
	Close          string
	Volume         string
	TakerBuyVolume string
	TakerSellVolume string
}

func (k *klineBar) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw) < 8 {
		return fmt.Errorf("kline row has %d fields, want >= 8", len(raw))
	}
	if err := json.Unmarshal(raw[0], &k.OpenTimeMS); err != nil {
		return err
	}
	fields := []*string{&k.Open, &k.High, &k.Low, &k.Close, &k.Volume, &k.TakerBuyVolume, &k.TakerSellVolume}
	for i, f := range fields {
		if err := json.Unmarshal(raw[i+1], f); err != nil {
			return err
		}
	}
	return nil
}

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
		page, err := c.fetchKlinePage(ctx, nativeSymbol, period, providers.Range{Start: cursor, End: pageEnd})
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

func (c *Client) fetchKlinePage(ctx context.Context, nativeSymbol string, period symbol.Period, r providers.Range) ([]candle.Raw, error) {
	u := fmt.Sprintf("%s/fapi/v1/klines", c.baseURL)
	q := url.Values{}
	q.Set("symbol", nativeSymbol)
	q.Set("interval", binanceInterval(period))
	q.Set("startTime", strconv.FormatInt(r.Start.UnixMilli(), 10))
	q.Set("endTime", strconv.FormatInt(r.End.UnixMilli(), 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u+"?"+q.Encode(), nil)
	if err != nil {
		return nil, providers.NewError(providers.ErrKindTransport, sourceName, err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, providers.NewError(providers.ErrKindTransport, sourceName, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return nil, err
	}

	var bars []klineBar
	if err := json.NewDecoder(resp.Body).Decode(&bars); err != nil {
		return nil, providers.NewError(providers.ErrKindMalformedResponse, sourceName, err)
	}

	out := make([]candle.Raw, 0, len(bars))
	now := time.Now().UTC()
	for _, bar := range bars {
		openTime := time.UnixMilli(bar.OpenTimeMS).UTC()
		if openTime.After(now) {
			continue
		}
		open, err1 := decimal.NewFromString(bar.Open)
		high, err2 := decimal.NewFromString(bar.High)
		low, err3 := decimal.NewFromString(bar.Low)
		closePrice, err4 := decimal.NewFromString(bar.Close)
		volDec, err5 := decimal.NewFromString(bar.Volume)
		buyVol, err6 := decimal.NewFromString(bar.TakerBuyVolume)
		sellVol, err7 := decimal.NewFromString(bar.TakerSellVolume)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil || err6 != nil || err7 != nil {
			return nil, providers.NewError(providers.ErrKindMalformedResponse, sourceName, fmt.Errorf("unparsable kline row at %s", openTime))
		}
		out = append(out, candle.Raw{
			Symbol:         nativeSymbol,
			AssetClass:     symbol.AssetCrypto,
			Period:         period,
			OpenTime:       openTime,
			Open:           open,
			High:           high,
			Low:            low,
			Close:          closePrice,
			Volume:         volDec.IntPart(),
			TakerBuyVolume:  decimalPtr(buyVol),
			TakerSellVolume: decimalPtr(sellVol),
		})
	}
	return out, nil
}

type microstructureResponse struct {
	OpenInterest      string `json:"openInterest"`
	FundingRate       string `json:"lastFundingRate"`
	LongLiquidations  string `json:"longLiquidations"`
	ShortLiquidations string `json:"shortLiquidations"`
}

// FetchMicrostructure fetches the latest open-interest, funding, and
// liquidation figures for nativeSymbol.
func (c *Client) FetchMicrostructure(ctx context.Context, nativeSymbol string, period symbol.Period) (providers.Microstructure, error) {
	u := fmt.Sprintf("%s/fapi/v1/premiumIndex?symbol=%s", c.baseURL, url.QueryEscape(nativeSymbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return providers.Microstructure{}, providers.NewError(providers.ErrKindTransport, sourceName, err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return providers.Microstructure{}, providers.NewError(providers.ErrKindTransport, sourceName, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return providers.Microstructure{}, err
	}

	var body microstructureResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return providers.Microstructure{}, providers.NewError(providers.ErrKindMalformedResponse, sourceName, err)
	}

	ms := providers.Microstructure{Symbol: nativeSymbol, Period: period}
	ms.OpenInterest = parseFloatPtr(body.OpenInterest)
	ms.FundingRate = parseFloatPtr(body.FundingRate)
	ms.LongLiquidations = parseFloatPtr(body.LongLiquidations)
	ms.ShortLiquidations = parseFloatPtr(body.ShortLiquidations)
	return ms, nil
}

func classifyStatus(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return providers.NewError(providers.ErrKindAuth, sourceName, fmt.Errorf("status %d", resp.StatusCode))
	case http.StatusNotFound:
		return providers.NewError(providers.ErrKindNotFound, sourceName, fmt.Errorf("status %d", resp.StatusCode))
	case http.StatusTooManyRequests, 418:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return providers.NewRateLimitedError(sourceName, retryAfter, fmt.Errorf("status %d", resp.StatusCode))
	default:
		if resp.StatusCode >= 500 {
			return providers.NewError(providers.ErrKindServer, sourceName, fmt.Errorf("status %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return providers.NewError(providers.ErrKindMalformedResponse, sourceName, fmt.Errorf("status %d", resp.StatusCode))
		}
		return nil
	}
}

func binanceInterval(p symbol.Period) string {
	switch p {
	case symbol.Period5m:
		return "5m"
	case symbol.Period15m:
		return "15m"
	case symbol.Period30m:
		return "30m"
	case symbol.Period1h:
		return "1h"
	case symbol.Period4h:
		return "4h"
	case symbol.Period1d:
		return "1d"
	case symbol.Period1w:
		return "1w"
	default:
		return string(p)
	}
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

func parseFloatPtr(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func decimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

package fallbackprovider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/candlewarehouse/engine/internal/app/domain/symbol"
	"github.com/candlewarehouse/engine/internal/app/providers"
)

func TestFetchCandlesParsesCSVWithinRange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "date,open,high,low,close,volume\n2026-01-01,100,101,99,100.5,1000\n2026-01-02,101,102,100,101.5,1100\n")
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL})
	r := providers.Range{Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)}
	out, err := client.FetchCandles(context.Background(), "AAPL", symbol.Period1d, r)
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, "fallback", client.Name())
}

func TestFetchCandlesRejectsNonDailyPeriod(t *testing.T) {
	client := New(Config{BaseURL: "http://unused"})
	_, err := client.FetchCandles(context.Background(), "AAPL", symbol.Period1h, providers.Range{Start: time.Now().Add(-time.Hour), End: time.Now()})
	require.Error(t, err)
	var perr *providers.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, providers.ErrKindNotFound, perr.Kind)
}

func TestFetchCandlesExcludesRowsOutsideRequestedRange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "date,open,high,low,close,volume\n2025-06-01,100,101,99,100.5,1000\n2026-01-01,101,102,100,101.5,1100\n")
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL})
	r := providers.Range{Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)}
	out, err := client.FetchCandles(context.Background(), "AAPL", symbol.Period1d, r)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, r.Start, out[0].OpenTime)
}

func TestFetchCandlesMapsNotFoundStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL})
	r := providers.Range{Start: time.Now().Add(-24 * time.Hour), End: time.Now()}
	_, err := client.FetchCandles(context.Background(), "UNKNOWN", symbol.Period1d, r)
	require.Error(t, err)
	var perr *providers.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, providers.ErrKindNotFound, perr.Kind)
}

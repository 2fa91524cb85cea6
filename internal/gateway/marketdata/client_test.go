package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thetamind/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(config.MarketConfig{BaseURL: srv.URL, APIKey: "test-token", TimeoutSeconds: 5})
	require.NoError(t, err)
	return client, srv
}

func TestFetchQuote(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets/quotes", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Write([]byte(`{"quotes":{"quote":{"symbol":"AAPL","last":189.95,"bid":189.9,"ask":190.0,"volume":1200}}}`))
	})
	q, err := client.FetchQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", q.Symbol)
	assert.Equal(t, 189.95, q.Last)
	assert.Equal(t, int64(1200), q.Volume)
}

func TestFetchChainSplitsCallsAndPuts(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/markets/options/chains":
			assert.Equal(t, "2026-09-18", r.URL.Query().Get("expiration"))
			w.Write([]byte(`{"options":{"option":[
				{"symbol":"AAPL260918C00190000","option_type":"call","strike":190,"bid":4.8,"ask":5.2},
				{"symbol":"AAPL260918P00185000","option_type":"put","strike_price":185,"bid_price":3.0,"ask_price":3.4}
			]}}`))
		case "/markets/quotes":
			w.Write([]byte(`{"quotes":{"quote":{"symbol":"AAPL","last":190.5}}}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})
	chain, err := client.FetchChain(context.Background(), "AAPL", "2026-09-18")
	require.NoError(t, err)
	require.Len(t, chain.Calls, 1)
	require.Len(t, chain.Puts, 1)
	// 字段名差异（strike_price/bid_price）在入口处被归一化
	assert.Equal(t, 185.0, chain.Puts[0].Strike)
	assert.Equal(t, 3.0, chain.Puts[0].Bid)
	assert.Equal(t, 190.5, chain.Spot)
}

func TestFetchChainDefaultsToNearestExpiry(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/markets/options/expirations":
			w.Write([]byte(`{"expirations":{"date":["2026-09-04","2026-09-11"]}}`))
		case "/markets/options/chains":
			assert.Equal(t, "2026-09-04", r.URL.Query().Get("expiration"))
			w.Write([]byte(`{"options":{"option":[{"option_type":"call","strike":100,"bid":1,"ask":1.2}]}}`))
		case "/markets/quotes":
			w.Write([]byte(`{"quotes":{"quote":{"symbol":"SPY","last":100}}}`))
		}
	})
	chain, err := client.FetchChain(context.Background(), "SPY", "")
	require.NoError(t, err)
	assert.Equal(t, "2026-09-04", chain.Expiry)
}

func TestFetchQuoteUpstreamError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})
	_, err := client.FetchQuote(context.Background(), "AAPL")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestFetchQuoteRetriesTransientFailure(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"quotes":{"quote":{"symbol":"AAPL","last":190.1}}}`))
	})
	q, err := client.FetchQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 190.1, q.Last)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchQuoteDoesNotRetryClientError(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "no such symbol", http.StatusNotFound)
	})
	_, err := client.FetchQuote(context.Background(), "NOPE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	for i := 0; i < 5; i++ {
		_, err := client.FetchQuote(context.Background(), "AAPL")
		require.Error(t, err)
	}
	_, err := client.FetchQuote(context.Background(), "AAPL")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "熔断")
}

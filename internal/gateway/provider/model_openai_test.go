package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChatClient(t *testing.T, handler http.HandlerFunc) (*OpenAIChatClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &OpenAIChatClient{BaseURL: srv.URL, APIKey: "test-key", Model: "test-model"}, srv
}

const chatOK = `{"choices":[{"message":{"content":"{\"summary\":\"ok\"}"}}]}`

func TestCallRetriesAfterRateLimit(t *testing.T) {
	var calls int32
	client, _ := newTestChatClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"rate limited"}}`))
			return
		}
		w.Write([]byte(chatOK))
	})

	start := time.Now()
	out, err := client.CallWithMessages(context.Background(), "sys", "user", true)
	require.NoError(t, err)
	assert.Contains(t, out, "summary")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	// Retry-After: 1 生效，第二次请求至少等了 1s
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
}

func TestCallGivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	client, _ := newTestChatClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	client.MaxRetries = 1

	_, err := client.CallWithMessages(context.Background(), "", "user", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=503")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCallDoesNotRetryClientError(t *testing.T) {
	var calls int32
	client, _ := newTestChatClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad request"}}`))
	})

	_, err := client.CallWithMessages(context.Background(), "", "user", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=400")
	assert.Contains(t, err.Error(), "bad request")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestEndpointNormalization(t *testing.T) {
	cases := map[string]string{
		"":                                      "https://api.openai.com/v1/chat/completions",
		"https://api.example.com/v1":            "https://api.example.com/v1/chat/completions",
		"https://api.example.com/v1/":           "https://api.example.com/v1/chat/completions",
		"https://api.example.com/v1/chat/completions": "https://api.example.com/v1/chat/completions",
	}
	for in, want := range cases {
		c := &OpenAIChatClient{BaseURL: in}
		assert.Equal(t, want, c.endpoint(), "base_url %q", in)
	}
}

func TestRetryAfterHeader(t *testing.T) {
	assert.Equal(t, time.Duration(0), retryAfter(""))
	assert.Equal(t, time.Duration(0), retryAfter("not-a-number"))
	assert.Equal(t, 2*time.Second, retryAfter("2"))
}

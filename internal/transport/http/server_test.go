package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thetamind/internal/billing"
	"thetamind/internal/config"
	"thetamind/internal/market"
	"thetamind/internal/payoff"
	"thetamind/internal/store/gormstore"
	"thetamind/internal/strategy"
	"thetamind/internal/task"
)

type fakeSource struct {
	quote market.Quote
	chain *market.Chain
	err   error
}

func (f *fakeSource) FetchQuote(ctx context.Context, symbol string) (market.Quote, error) {
	if f.err != nil {
		return market.Quote{}, f.err
	}
	q := f.quote
	q.Symbol = symbol
	return q, nil
}

func (f *fakeSource) FetchChain(ctx context.Context, symbol, expiry string) (*market.Chain, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.chain == nil {
		return &market.Chain{Symbol: symbol, Expiry: expiry}, nil
	}
	c := *f.chain
	c.Symbol = symbol
	return &c, nil
}

func (f *fakeSource) FetchExpirations(ctx context.Context, symbol string) ([]string, error) {
	return []string{"2026-09-18", "2026-10-16"}, f.err
}

func (f *fakeSource) FetchHistory(ctx context.Context, symbol string, days int) ([]market.Candle, error) {
	return nil, f.err
}

type fakeJobs struct {
	submitted []string
	err       error
}

func (f *fakeJobs) SubmitReport(ctx context.Context, strategyID int64) (task.Task, error) {
	if f.err != nil {
		return task.Task{}, f.err
	}
	f.submitted = append(f.submitted, fmt.Sprintf("report:%d", strategyID))
	return task.Task{ID: "task-report", Kind: task.KindReport, Status: task.StatusPending}, nil
}

func (f *fakeJobs) SubmitChartExport(ctx context.Context, strategyID int64) (task.Task, error) {
	if f.err != nil {
		return task.Task{}, f.err
	}
	f.submitted = append(f.submitted, fmt.Sprintf("chart:%d", strategyID))
	return task.Task{ID: "task-chart", Kind: task.KindChartExport, Status: task.StatusPending}, nil
}

type memLedger struct {
	entries []billing.Entry
}

func (l *memLedger) AppendCreditEntry(ctx context.Context, account, delta, reason, refID string) error {
	l.entries = append(l.entries, billing.Entry{Delta: delta, Reason: reason, RefID: refID})
	return nil
}

func (l *memLedger) CreditEntries(ctx context.Context, account string) ([]billing.Entry, error) {
	return l.entries, nil
}

func testChain() *market.Chain {
	return &market.Chain{
		Symbol: "AAPL",
		Spot:   100,
		Expiry: "2026-09-18",
		Calls: []market.OptionQuote{
			{Type: "call", Strike: 100, Bid: 4.8, Ask: 5.2},
			{Type: "call", Strike: 105, Bid: 2.9, Ask: 3.1},
		},
		Puts: []market.OptionQuote{
			{Type: "put", Strike: 95, Bid: 2.4, Ask: 2.6},
		},
	}
}

func newTestServer(t *testing.T, jobs JobSubmitter) (*Server, *gormstore.GormStore) {
	return newTestServerWithTemplates(t, jobs, nil)
}

func newTestServerWithTemplates(t *testing.T, jobs JobSubmitter, templates *strategy.Registry) (*Server, *gormstore.GormStore) {
	t.Helper()
	dir := t.TempDir()
	store, err := gormstore.NewGormStore(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	taskStore, err := task.NewStore(filepath.Join(dir, "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = taskStore.Close() })

	bill, err := billing.NewService(&memLedger{}, config.BillingConfig{InitialCredits: "10", ReportCost: "1"})
	require.NoError(t, err)

	svc := market.NewService(&fakeSource{quote: market.Quote{Last: 100}, chain: testChain()}, time.Minute)
	srv, err := NewServer(ServerConfig{Addr: ":0", API: &Router{
		Market:    svc,
		Store:     store,
		Templates: templates,
		Billing:   bill,
		Tasks:     taskStore,
		Jobs:      jobs,
	}})
	require.NoError(t, err)
	return srv, store
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, &fakeJobs{})
	w := doJSON(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestQuoteEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &fakeJobs{})
	w := doJSON(t, srv, http.MethodGet, "/api/market/quote?symbol=aapl", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Quote market.Quote `json:"quote"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "AAPL", resp.Quote.Symbol)
	assert.Equal(t, 100.0, resp.Quote.Last)

	w = doJSON(t, srv, http.MethodGet, "/api/market/quote", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPayoffEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &fakeJobs{})
	w := doJSON(t, srv, http.MethodPost, "/api/payoff", payoffRequest{
		Spot: 100,
		Legs: []payoff.Leg{{Type: "call", Action: "buy", Strike: 100, Quantity: 1, Premium: 5}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	var resp payoffResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Points, 201)
	require.Len(t, resp.BreakEvens, 1)
	assert.InDelta(t, 105, resp.BreakEvens[0], 0.5)
	assert.InDelta(t, -5, resp.Metrics.NetPremium, 1e-9)
}

func TestPayoffResolvesPremiumsFromChain(t *testing.T) {
	srv, _ := newTestServer(t, &fakeJobs{})
	w := doJSON(t, srv, http.MethodPost, "/api/payoff", payoffRequest{
		Symbol:          "AAPL",
		ResolvePremiums: true,
		Legs:            []payoff.Leg{{Type: "call", Action: "buy", Strike: 100, Quantity: 1}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	var resp payoffResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	// 现价来自报价，权利金来自链上买卖中间价
	assert.Equal(t, 100.0, resp.Spot)
	require.Len(t, resp.Legs, 1)
	assert.InDelta(t, 5.0, resp.Legs[0].Premium, 1e-9)
}

func TestStrategyCRUD(t *testing.T) {
	srv, _ := newTestServer(t, &fakeJobs{})
	w := doJSON(t, srv, http.MethodPost, "/api/strategies", strategy.Strategy{
		Symbol: "aapl",
		Name:   "long call",
		Legs:   []payoff.Leg{{Type: "call", Action: "buy", Strike: 100, Quantity: 1, Premium: 5}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	var saved struct {
		Strategy strategy.Strategy `json:"strategy"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &saved))
	require.Positive(t, saved.Strategy.ID)
	assert.Equal(t, "AAPL", saved.Strategy.Symbol)

	w = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/strategies/%d", saved.Strategy.ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/api/strategies?symbol=AAPL", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "long call")

	w = doJSON(t, srv, http.MethodDelete, fmt.Sprintf("/api/strategies/%d", saved.Strategy.ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/strategies/%d", saved.Strategy.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStrategyValidationRejected(t *testing.T) {
	srv, _ := newTestServer(t, &fakeJobs{})
	w := doJSON(t, srv, http.MethodPost, "/api/strategies", strategy.Strategy{
		Symbol: "AAPL",
		Legs:   []payoff.Leg{{Type: "call", Action: "buy", Strike: -1, Quantity: 1}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInstantiateTemplateEndpoint(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
templates:
  - id: long_straddle
    name: 买入跨式
    strike_increment: 5
    legs:
      - {type: call, action: buy, offset_pct: 0}
      - {type: put, action: buy, offset_pct: 0}
`), 0o644))
	registry, err := strategy.NewRegistry(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.Close() })

	srv, _ := newTestServerWithTemplates(t, &fakeJobs{}, registry)

	w := doJSON(t, srv, http.MethodPost, "/api/strategies/templates/long_straddle/instantiate", instantiateRequest{Symbol: "aapl"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Template string         `json:"template"`
		Payoff   payoffResponse `json:"payoff"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "long_straddle", resp.Template)
	require.Len(t, resp.Payoff.Legs, 2)
	// 现价 100、步进 5 → 两腿行权价都落在 100，权利金由链上中间价补齐
	assert.Equal(t, 100.0, resp.Payoff.Legs[0].Strike)
	assert.Equal(t, 100.0, resp.Payoff.Legs[1].Strike)
	assert.InDelta(t, 5.0, resp.Payoff.Legs[0].Premium, 1e-9)

	w = doJSON(t, srv, http.MethodPost, "/api/strategies/templates/no-such/instantiate", instantiateRequest{Symbol: "AAPL"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmitReportTask(t *testing.T) {
	jobs := &fakeJobs{}
	srv, _ := newTestServer(t, jobs)
	w := doJSON(t, srv, http.MethodPost, "/api/reports", reportRequest{StrategyID: 7})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), "task-report")
	assert.Equal(t, []string{"report:7"}, jobs.submitted)

	w = doJSON(t, srv, http.MethodPost, "/api/reports", reportRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitReportInsufficientCredits(t *testing.T) {
	srv, _ := newTestServer(t, &fakeJobs{err: billing.ErrInsufficientCredits})
	w := doJSON(t, srv, http.MethodPost, "/api/reports", reportRequest{StrategyID: 1})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
}

func TestExportEndpoint(t *testing.T) {
	jobs := &fakeJobs{}
	srv, _ := newTestServer(t, jobs)
	w := doJSON(t, srv, http.MethodPost, "/api/export/payoff", exportRequest{StrategyID: 3})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"chart:3"}, jobs.submitted)
}

func TestTaskLookup(t *testing.T) {
	srv, _ := newTestServer(t, &fakeJobs{})
	w := doJSON(t, srv, http.MethodGet, "/api/tasks/no-such-task", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBalanceEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &fakeJobs{})
	w := doJSON(t, srv, http.MethodGet, "/api/billing/balance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Balance    string `json:"balance"`
		ReportCost string `json:"report_cost"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "10", resp.Balance)
	assert.Equal(t, "1", resp.ReportCost)
}

// Package marketdata implements the REST client for the upstream
// quote / option chain provider (Tradier-compatible surface).
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"thetamind/internal/config"
	"thetamind/internal/logger"
	"thetamind/internal/market"
	"thetamind/internal/pkg/circuit"
	occsym "thetamind/internal/pkg/symbol"
)

// Client wraps the market data REST API used by ThetaMind.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
	breaker    *circuit.Breaker
}

// NewClient constructs a market data client from configuration.
func NewClient(cfg config.MarketConfig) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, fmt.Errorf("market.base_url 不能为空")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("解析 market.base_url 失败: %w", err)
	}
	return &Client{
		baseURL:    parsed,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: cfg.Timeout()},
		breaker:    circuit.NewBreaker("marketdata", 5, 30*time.Second),
	}, nil
}

// SetHTTPClient sets the HTTP client for testing.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// FetchQuote 拉取标的报价。
func (c *Client) FetchQuote(ctx context.Context, symbol string) (market.Quote, error) {
	body, err := c.get(ctx, "/markets/quotes", url.Values{"symbols": {symbol}})
	if err != nil {
		return market.Quote{}, err
	}
	node := gjson.GetBytes(body, "quotes.quote")
	if node.IsArray() {
		node = node.Get("0")
	}
	if !node.Exists() {
		return market.Quote{}, fmt.Errorf("上游未返回 %s 的报价", symbol)
	}
	q := market.NormalizeQuote(node)
	if q.Symbol == "" {
		q.Symbol = strings.ToUpper(symbol)
	}
	return q, nil
}

// FetchExpirations 拉取可用到期日列表（YYYY-MM-DD，升序）。
func (c *Client) FetchExpirations(ctx context.Context, symbol string) ([]string, error) {
	body, err := c.get(ctx, "/markets/options/expirations", url.Values{"symbol": {symbol}})
	if err != nil {
		return nil, err
	}
	var out []string
	for _, node := range gjson.GetBytes(body, "expirations.date").Array() {
		if s := strings.TrimSpace(node.String()); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s 无可用到期日", symbol)
	}
	return out, nil
}

// FetchChain 拉取期权链；expiry 为空时取最近到期日。
func (c *Client) FetchChain(ctx context.Context, symbol, expiry string) (*market.Chain, error) {
	if strings.TrimSpace(expiry) == "" {
		expirations, err := c.FetchExpirations(ctx, symbol)
		if err != nil {
			return nil, err
		}
		expiry = expirations[0]
	}
	body, err := c.get(ctx, "/markets/options/chains", url.Values{
		"symbol":     {symbol},
		"expiration": {expiry},
		"greeks":     {"true"},
	})
	if err != nil {
		return nil, err
	}
	chain := &market.Chain{Symbol: strings.ToUpper(symbol), Expiry: expiry}
	expDate, _ := time.Parse("2006-01-02", expiry)
	for _, node := range gjson.GetBytes(body, "options.option").Array() {
		q := market.NormalizeOptionQuote(node)
		if (q.Strike <= 0 || (q.Type != "call" && q.Type != "put")) && q.Symbol != "" {
			// 缺行权价或方向时从 OCC 合约代码里恢复
			if comp, perr := occsym.Parse(q.Symbol); perr == nil {
				if q.Strike <= 0 {
					q.Strike = comp.Strike
				}
				if q.Type != "call" && q.Type != "put" {
					if comp.OptionType == "C" {
						q.Type = "call"
					} else {
						q.Type = "put"
					}
				}
			}
		}
		if q.Symbol == "" && !expDate.IsZero() && (q.Type == "call" || q.Type == "put") {
			// 上游缺合约代码时按 OCC 规则补一个
			if occ, err := occsym.Build(symbol, expDate, strings.ToUpper(q.Type[:1]), q.Strike); err == nil {
				q.Symbol = occ
			}
		}
		switch q.Type {
		case "call":
			chain.Calls = append(chain.Calls, q)
		case "put":
			chain.Puts = append(chain.Puts, q)
		default:
			logger.Debugf("跳过无法识别方向的合约: %s", q.Symbol)
		}
	}
	if len(chain.Calls) == 0 && len(chain.Puts) == 0 {
		return nil, fmt.Errorf("%s %s 期权链为空", symbol, expiry)
	}
	if quote, err := c.FetchQuote(ctx, symbol); err == nil {
		chain.Spot = quote.Last
	}
	return chain, nil
}

// FetchHistory 拉取最近 days 天的日线。
func (c *Client) FetchHistory(ctx context.Context, symbol string, days int) ([]market.Candle, error) {
	if days <= 0 {
		days = 90
	}
	start := time.Now().AddDate(0, 0, -days).Format("2006-01-02")
	body, err := c.get(ctx, "/markets/history", url.Values{
		"symbol":   {symbol},
		"interval": {"daily"},
		"start":    {start},
	})
	if err != nil {
		return nil, err
	}
	var out []market.Candle
	for _, node := range gjson.GetBytes(body, "history.day").Array() {
		out = append(out, market.NormalizeCandle(node))
	}
	return out, nil
}

// ErrCircuitOpen 表示上游连续失败触发熔断，调用方可据此降级。
var ErrCircuitOpen = errors.New("行情接口熔断中，稍后重试")

const (
	getMaxRetries = 2
	getRetryDelay = 300 * time.Millisecond
)

// get 带有限次重试：网络错误与 5xx/429 重试，4xx 直接返回。
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint := *c.baseURL
	endpoint.Path = strings.TrimRight(endpoint.Path, "/") + path
	endpoint.RawQuery = query.Encode()

	var lastErr error
	for attempt := 0; attempt <= getMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(getRetryDelay * time.Duration(attempt)):
			}
		}
		if !c.breaker.Allow() {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, ErrCircuitOpen
		}
		body, retryable, err := c.doGet(ctx, endpoint.String())
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		if attempt < getMaxRetries {
			logger.Warnf("行情请求失败，准备第 %d 次重试: %v", attempt+1, err)
		}
	}
	return nil, lastErr
}

func (c *Client) doGet(ctx context.Context, endpoint string) (body []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, true, fmt.Errorf("请求行情接口失败: %w", err)
	}
	defer resp.Body.Close()
	body, err = io.ReadAll(resp.Body)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, true, err
	}
	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		if retryable {
			c.breaker.RecordFailure()
		}
		return nil, retryable, fmt.Errorf("行情接口返回 %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	c.breaker.RecordSuccess()
	return body, false, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

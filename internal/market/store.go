package market

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Source 抽象上游行情接口（REST）。
type Source interface {
	FetchQuote(ctx context.Context, symbol string) (Quote, error)
	FetchChain(ctx context.Context, symbol, expiry string) (*Chain, error)
	FetchExpirations(ctx context.Context, symbol string) ([]string, error)
	FetchHistory(ctx context.Context, symbol string, days int) ([]Candle, error)
}

type chainKey struct {
	symbol string
	expiry string
}

type cachedChain struct {
	chain     *Chain
	fetchedAt time.Time
}

type cachedQuote struct {
	quote     Quote
	fetchedAt time.Time
}

// Service 在 Source 之上提供带 TTL 的缓存。
// "live" 模式符号由 scheduler 主动刷新，其余符号按 static_ttl 惰性刷新。
type Service struct {
	source    Source
	staticTTL time.Duration

	mu     sync.RWMutex
	chains map[chainKey]cachedChain
	quotes map[string]cachedQuote
}

func NewService(source Source, staticTTL time.Duration) *Service {
	if staticTTL <= 0 {
		staticTTL = 5 * time.Minute
	}
	return &Service{
		source:    source,
		staticTTL: staticTTL,
		chains:    make(map[chainKey]cachedChain),
		quotes:    make(map[string]cachedQuote),
	}
}

// Quote 返回标的报价，缓存过期则回源。
func (s *Service) Quote(ctx context.Context, symbol string) (Quote, error) {
	symbol = canonicalSymbol(symbol)
	s.mu.RLock()
	cached, ok := s.quotes[symbol]
	s.mu.RUnlock()
	if ok && time.Since(cached.fetchedAt) < s.staticTTL {
		return cached.quote, nil
	}
	q, err := s.source.FetchQuote(ctx, symbol)
	if err != nil {
		if ok {
			// 回源失败时退回过期缓存，保持页面可用
			return cached.quote, nil
		}
		return Quote{}, err
	}
	q.UpdatedAt = time.Now()
	s.mu.Lock()
	s.quotes[symbol] = cachedQuote{quote: q, fetchedAt: q.UpdatedAt}
	s.mu.Unlock()
	return q, nil
}

// Chain 返回期权链，expiry 为空时由上游选最近到期日。
func (s *Service) Chain(ctx context.Context, symbol, expiry string) (*Chain, error) {
	symbol = canonicalSymbol(symbol)
	key := chainKey{symbol: symbol, expiry: expiry}
	s.mu.RLock()
	cached, ok := s.chains[key]
	s.mu.RUnlock()
	if ok && time.Since(cached.fetchedAt) < s.staticTTL {
		return cached.chain, nil
	}
	chain, err := s.source.FetchChain(ctx, symbol, expiry)
	if err != nil {
		if ok {
			return cached.chain, nil
		}
		return nil, err
	}
	chain.FetchedAt = time.Now()
	s.mu.Lock()
	s.chains[key] = cachedChain{chain: chain, fetchedAt: chain.FetchedAt}
	s.mu.Unlock()
	return chain, nil
}

// Refresh 强制回源并更新缓存（供 live 轮询使用）。
func (s *Service) Refresh(ctx context.Context, symbol string) error {
	symbol = canonicalSymbol(symbol)
	q, err := s.source.FetchQuote(ctx, symbol)
	if err != nil {
		return err
	}
	q.UpdatedAt = time.Now()
	s.mu.Lock()
	s.quotes[symbol] = cachedQuote{quote: q, fetchedAt: q.UpdatedAt}
	keys := make([]chainKey, 0, 2)
	for key := range s.chains {
		if key.symbol == symbol {
			keys = append(keys, key)
		}
	}
	s.mu.Unlock()
	for _, key := range keys {
		chain, err := s.source.FetchChain(ctx, key.symbol, key.expiry)
		if err != nil {
			return err
		}
		chain.FetchedAt = time.Now()
		s.mu.Lock()
		s.chains[key] = cachedChain{chain: chain, fetchedAt: chain.FetchedAt}
		s.mu.Unlock()
	}
	return nil
}

// Expirations 透传上游的到期日列表。
func (s *Service) Expirations(ctx context.Context, symbol string) ([]string, error) {
	return s.source.FetchExpirations(ctx, canonicalSymbol(symbol))
}

// History 透传上游日线历史。
func (s *Service) History(ctx context.Context, symbol string, days int) ([]Candle, error) {
	return s.source.FetchHistory(ctx, canonicalSymbol(symbol), days)
}

func canonicalSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

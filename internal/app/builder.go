package app

import (
	"context"
	"fmt"
	"time"

	"thetamind/internal/billing"
	"thetamind/internal/config"
	"thetamind/internal/gateway/marketdata"
	"thetamind/internal/gateway/provider"
	"thetamind/internal/logger"
	"thetamind/internal/market"
	"thetamind/internal/scheduler"
	"thetamind/internal/store/gormstore"
	"thetamind/internal/strategy"
	"thetamind/internal/task"
	apihttp "thetamind/internal/transport/http"

	"thetamind/internal/report"
)

// AppBuilder 负责按配置逐层装配依赖；测试可替换行情源与模型。
type AppBuilder struct {
	cfg *config.Config

	marketSourceFn func(config.MarketConfig) (market.Source, error)
	providerFn     func(config.AIConfig) (provider.ModelProvider, error)
}

type AppBuilderOption func(*AppBuilder)

// WithMarketSource 替换上游行情源（测试用）。
func WithMarketSource(source market.Source) AppBuilderOption {
	return func(b *AppBuilder) {
		b.marketSourceFn = func(config.MarketConfig) (market.Source, error) { return source, nil }
	}
}

// WithModelProvider 替换报告模型（测试用）。
func WithModelProvider(p provider.ModelProvider) AppBuilderOption {
	return func(b *AppBuilder) {
		b.providerFn = func(config.AIConfig) (provider.ModelProvider, error) { return p, nil }
	}
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:            cfg,
		marketSourceFn: buildMarketSource,
		providerFn:     provider.BuildProviderFromConfig,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func buildMarketSource(cfg config.MarketConfig) (market.Source, error) {
	return marketdata.NewClient(cfg)
}

// creditLedger 把 GormStore 的流水适配为计费账本视图。
type creditLedger struct {
	store *gormstore.GormStore
}

func (l creditLedger) AppendCreditEntry(ctx context.Context, account, delta, reason, refID string) error {
	return l.store.AppendCreditEntry(ctx, account, delta, reason, refID)
}

func (l creditLedger) CreditEntries(ctx context.Context, account string) ([]billing.Entry, error) {
	rows, err := l.store.CreditEntries(ctx, account)
	if err != nil {
		return nil, err
	}
	out := make([]billing.Entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, billing.Entry{Delta: row.Delta, Reason: row.Reason, RefID: row.RefID})
	}
	return out, nil
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	source, err := b.marketSourceFn(cfg.Market)
	if err != nil {
		return nil, fmt.Errorf("初始化行情源失败: %w", err)
	}
	staticTTL, ok := scheduler.ParseIntervalDuration(cfg.Market.StaticTTL)
	if !ok {
		staticTTL = 5 * time.Minute
	}
	marketSvc := market.NewService(source, staticTTL)
	logger.Infof("✓ 行情源 %s 就绪 static_ttl=%s", cfg.Market.Provider, staticTTL)

	prov, err := b.providerFn(cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("初始化模型失败: %w", err)
	}
	engine, err := report.NewEngine(prov, cfg.Report)
	if err != nil {
		return nil, err
	}
	logger.Infof("✓ 报告模型 %s 就绪", prov.ID())

	gstore, err := gormstore.NewGormStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("初始化存储失败: %w", err)
	}
	tstore, err := task.NewStore(cfg.Task.Path)
	if err != nil {
		_ = gstore.Close()
		return nil, fmt.Errorf("初始化任务存储失败: %w", err)
	}
	runner := task.NewRunner(tstore, cfg.Task.Workers)

	bill, err := billing.NewService(creditLedger{store: gstore}, cfg.Billing)
	if err != nil {
		_ = gstore.Close()
		_ = tstore.Close()
		return nil, fmt.Errorf("初始化计费失败: %w", err)
	}
	logger.Infof("✓ 计费就绪 balance=%s report_cost=%s", bill.Balance(), bill.ReportCost())

	// 模板文件缺失只降级模板接口，不阻塞启动
	var registry *strategy.Registry
	if cfg.Strategy.TemplatesPath != "" {
		registry, err = strategy.NewRegistry(cfg.Strategy.TemplatesPath)
		if err != nil {
			logger.Warnf("策略模板加载失败，相关接口停用: %v", err)
			registry = nil
		} else {
			logger.Infof("✓ 已加载 %d 个策略模板: %v", len(registry.IDs()), registry.IDs())
		}
	}

	jobs := NewJobService(cfg, runner, gstore, marketSvc, engine, bill)

	server, err := apihttp.NewServer(apihttp.ServerConfig{
		Addr: cfg.App.HTTPAddr,
		API: &apihttp.Router{
			Market:         marketSvc,
			Store:          gstore,
			Templates:      registry,
			Billing:        bill,
			Tasks:          tstore,
			Jobs:           jobs,
			AdjacentWindow: cfg.Market.AdjacentStrikeWindow,
		},
	})
	if err != nil {
		_ = gstore.Close()
		_ = tstore.Close()
		return nil, err
	}

	liveInterval, ok := scheduler.ParseIntervalDuration(cfg.Market.LiveRefresh)
	if !ok {
		liveInterval = 30 * time.Second
	}

	return &App{
		cfg:          cfg,
		server:       server,
		runner:       runner,
		marketSvc:    marketSvc,
		registry:     registry,
		gormStore:    gstore,
		taskStore:    tstore,
		liveInterval: liveInterval,
		liveSymbols:  cfg.Market.LiveSymbols,
	}, nil
}

package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"thetamind/internal/config"
	"thetamind/internal/logger"
	"thetamind/internal/market"
	"thetamind/internal/scheduler"
	"thetamind/internal/store/gormstore"
	"thetamind/internal/strategy"
	"thetamind/internal/task"
	apihttp "thetamind/internal/transport/http"
)

// App 负责应用级编排：加载配置→初始化依赖→启动 HTTP、任务池与行情轮询。
type App struct {
	cfg       *config.Config
	server    *apihttp.Server
	runner    *task.Runner
	marketSvc *market.Service
	registry  *strategy.Registry
	gormStore *gormstore.GormStore
	taskStore *task.Store

	liveInterval time.Duration
	liveSymbols  []string
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动全部服务，阻塞到 ctx 取消或任一服务出错。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.close()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Infof("HTTP 服务监听 %s", a.server.Addr())
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		return a.runner.Run(ctx)
	})

	if len(a.liveSymbols) > 0 {
		refresher := scheduler.NewLiveRefresher(ctx, a.marketSvc, a.liveInterval, a.liveSymbols)
		refresher.RunImmediately = true
		group.Go(func() error {
			refresher.Start()
			return nil
		})
	}

	return group.Wait()
}

func (a *App) close() {
	if a.registry != nil {
		_ = a.registry.Close()
	}
	if a.taskStore != nil {
		_ = a.taskStore.Close()
	}
	if a.gormStore != nil {
		_ = a.gormStore.Close()
	}
}

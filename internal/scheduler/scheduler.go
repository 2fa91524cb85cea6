package scheduler

import (
	"context"
	"time"

	"thetamind/internal/logger"
	"thetamind/internal/market"
)

// LiveRefresher 周期性强刷自选标的报价，让行情缓存在交易时段保持新鲜。
// 静态数据（期权链、历史K线）仍走 TTL 缓存，不在这里轮询。
type LiveRefresher struct {
	Interval       time.Duration
	Symbols        []string
	RunImmediately bool

	svc   *market.Service
	ctx   context.Context
	nowFn func() time.Time
}

func NewLiveRefresher(ctx context.Context, svc *market.Service, interval time.Duration, symbols []string) *LiveRefresher {
	if ctx == nil {
		ctx = context.Background()
	}
	return &LiveRefresher{
		Interval: interval,
		Symbols:  symbols,
		svc:      svc,
		ctx:      ctx,
		nowFn:    time.Now,
	}
}

func (r *LiveRefresher) Start() {
	if r == nil || r.svc == nil {
		return
	}
	if len(r.Symbols) == 0 {
		logger.Infof("LiveRefresher: 无自选标的，退出轮询")
		return
	}
	if r.Interval <= 0 {
		logger.Warnf("LiveRefresher: invalid interval=%s, exit", r.Interval)
		return
	}
	if r.nowFn == nil {
		r.nowFn = time.Now
	}

	startAt := r.nowFn().UTC()
	logger.Infof("LiveRefresher: started interval=%s symbols=%v at=%s",
		r.Interval, r.Symbols, startAt.Format(time.RFC3339))

	if r.RunImmediately {
		r.refreshAll()
	}

	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			logger.Infof("LiveRefresher: ctx done, exit")
			return
		case <-ticker.C:
			r.refreshAll()
		}
	}
}

func (r *LiveRefresher) refreshAll() {
	for _, symbol := range r.Symbols {
		if err := r.ctx.Err(); err != nil {
			return
		}
		if err := r.svc.Refresh(r.ctx, symbol); err != nil {
			// 单个标的失败不影响其余标的，下一轮会重试
			logger.Warnf("LiveRefresher: 刷新 %s 失败: %v", symbol, err)
		}
	}
}

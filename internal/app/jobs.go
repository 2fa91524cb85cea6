package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"thetamind/internal/analysis/indicator"
	"thetamind/internal/billing"
	"thetamind/internal/chart"
	"thetamind/internal/config"
	"thetamind/internal/logger"
	"thetamind/internal/market"
	"thetamind/internal/payoff"
	"thetamind/internal/report"
	"thetamind/internal/store/gormstore"
	"thetamind/internal/strategy"
	"thetamind/internal/task"
)

const historyDays = 120

type reportTaskPayload struct {
	StrategyID int64 `json:"strategy_id"`
}

type chartTaskPayload struct {
	StrategyID int64 `json:"strategy_id"`
}

// JobService 把报告生成与图表导出封装为后台任务：
// 提交时校验与扣费，执行失败时退款。
type JobService struct {
	cfg     *config.Config
	runner  *task.Runner
	store   *gormstore.GormStore
	market  *market.Service
	engine  *report.Engine
	billing *billing.Service
}

func NewJobService(cfg *config.Config, runner *task.Runner, store *gormstore.GormStore, svc *market.Service, engine *report.Engine, bill *billing.Service) *JobService {
	j := &JobService{cfg: cfg, runner: runner, store: store, market: svc, engine: engine, billing: bill}
	runner.Register(task.KindReport, j.runReport)
	runner.Register(task.KindChartExport, j.runChartExport)
	return j
}

func billingRef(strategyID int64) string {
	return fmt.Sprintf("strategy:%d", strategyID)
}

// SubmitReport 先扣费再入队；入队失败时立刻退款。
func (j *JobService) SubmitReport(ctx context.Context, strategyID int64) (task.Task, error) {
	if _, err := j.store.GetStrategy(ctx, strategyID); err != nil {
		return task.Task{}, err
	}
	if err := j.billing.ChargeReport(ctx, billingRef(strategyID)); err != nil {
		return task.Task{}, err
	}
	t, err := j.runner.Submit(ctx, task.KindReport, reportTaskPayload{StrategyID: strategyID})
	if err != nil {
		if rerr := j.billing.RefundReport(ctx, billingRef(strategyID)); rerr != nil {
			logger.Errorf("报告任务入队失败后退款失败 strategy=%d: %v", strategyID, rerr)
		}
		return task.Task{}, err
	}
	return t, nil
}

func (j *JobService) SubmitChartExport(ctx context.Context, strategyID int64) (task.Task, error) {
	if _, err := j.store.GetStrategy(ctx, strategyID); err != nil {
		return task.Task{}, err
	}
	return j.runner.Submit(ctx, task.KindChartExport, chartTaskPayload{StrategyID: strategyID})
}

func (j *JobService) runReport(ctx context.Context, payloadJSON string) (string, error) {
	var payload reportTaskPayload
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return "", fmt.Errorf("解析任务参数失败: %w", err)
	}
	refund := func(cause error) error {
		if rerr := j.billing.RefundReport(ctx, billingRef(payload.StrategyID)); rerr != nil {
			logger.Errorf("报告失败退款出错 strategy=%d: %v", payload.StrategyID, rerr)
		}
		return cause
	}

	st, spot, legs, metrics, _, err := j.loadPayoffContext(ctx, payload.StrategyID)
	if err != nil {
		return "", refund(err)
	}

	// 历史数据不足时指标降级为空，报告提示词会注明
	var snapshot *indicator.Snapshot
	if candles, herr := j.market.History(ctx, st.Symbol, historyDays); herr != nil {
		logger.Warnf("拉取 %s 历史失败，指标降级: %v", st.Symbol, herr)
	} else if snap, cerr := indicator.Compute(st.Symbol, candles); cerr != nil {
		logger.Warnf("计算 %s 指标失败，降级: %v", st.Symbol, cerr)
	} else {
		snapshot = &snap
	}

	stWithLegs := st
	stWithLegs.Legs = legs
	rep, err := j.engine.Generate(ctx, report.Input{
		Strategy:   stWithLegs,
		Spot:       spot,
		Metrics:    metrics,
		Indicators: snapshot,
	})
	if err != nil {
		return "", refund(err)
	}
	rep.StrategyID = st.ID
	saved, err := j.store.SaveReport(ctx, *rep)
	if err != nil {
		return "", refund(fmt.Errorf("保存报告失败: %w", err))
	}
	logger.Infof("报告生成完成 strategy=%d report=%d model=%s", st.ID, saved.ID, saved.Model)
	result, _ := json.Marshal(map[string]any{"report_id": saved.ID, "symbol": saved.Symbol})
	return string(result), nil
}

func (j *JobService) runChartExport(ctx context.Context, payloadJSON string) (string, error) {
	var payload chartTaskPayload
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return "", fmt.Errorf("解析任务参数失败: %w", err)
	}
	st, spot, _, metrics, points, err := j.loadPayoffContext(ctx, payload.StrategyID)
	if err != nil {
		return "", err
	}
	img, err := chart.RenderPayoffPNG(ctx, chart.PayoffInput{
		Symbol:     st.Symbol,
		Title:      st.Name,
		Spot:       spot,
		Points:     points,
		Metrics:    metrics,
		BreakEvens: metrics.BreakEvens,
		Width:      j.cfg.Chart.Width,
		Height:     j.cfg.Chart.Height,
	})
	if err != nil {
		return "", err
	}

	outDir := j.cfg.Chart.OutputDir
	if outDir == "" {
		outDir = "data/exports"
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("创建导出目录失败: %w", err)
	}
	outPath := filepath.Join(outDir, img.Filename)
	content := img.Bytes
	if len(content) == 0 {
		content = img.HTML
	}
	if err := os.WriteFile(outPath, content, 0o644); err != nil {
		return "", fmt.Errorf("写入导出文件失败: %w", err)
	}
	logger.Infof("损益图导出完成 strategy=%d file=%s", st.ID, outPath)
	fields := map[string]any{"file": outPath, "description": img.Description}
	// PNG 成功时附带 data URI，API 轮询方可直接内嵌展示
	if uri := img.DataURI(); uri != "" {
		fields["data_uri"] = uri
	}
	result, _ := json.Marshal(fields)
	return string(result), nil
}

// loadPayoffContext 加载策略并补齐现价/权利金，返回可直接使用的曲线与指标。
func (j *JobService) loadPayoffContext(ctx context.Context, strategyID int64) (strategy.Strategy, float64, []payoff.Leg, payoff.Metrics, []payoff.Point, error) {
	st, err := j.store.GetStrategy(ctx, strategyID)
	if err != nil {
		return strategy.Strategy{}, 0, nil, payoff.Metrics{}, nil, err
	}
	quote, err := j.market.Quote(ctx, st.Symbol)
	if err != nil {
		return st, 0, nil, payoff.Metrics{}, nil, fmt.Errorf("获取 %s 现价失败: %w", st.Symbol, err)
	}
	legs := st.Legs
	window := j.cfg.Market.AdjacentStrikeWindow
	if chain, cerr := j.market.Chain(ctx, st.Symbol, st.Expiry); cerr != nil {
		logger.Warnf("获取 %s 期权链失败，沿用存量权利金: %v", st.Symbol, cerr)
	} else {
		legs = payoff.ResolveLegs(legs, chain, window)
	}
	points := payoff.Compute(legs, quote.Last)
	metrics := payoff.Summarize(legs, points)
	return st, quote.Last, legs, metrics, points, nil
}

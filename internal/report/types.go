// Package report generates AI strategy analysis reports.
package report

import (
	"time"

	"thetamind/internal/analysis/indicator"
	"thetamind/internal/payoff"
	"thetamind/internal/strategy"
)

// Input 汇集生成一份报告所需的全部上下文。
type Input struct {
	Strategy   strategy.Strategy
	Spot       float64
	Metrics    payoff.Metrics
	Indicators *indicator.Snapshot // 可为 nil（历史数据不足时降级）
}

// Content 是模型返回并通过校验的报告正文。
type Content struct {
	Summary     string   `json:"summary"`
	Outlook     string   `json:"outlook"`    // bullish | bearish | neutral | volatile
	RiskLevel   string   `json:"risk_level"` // low | medium | high
	KeyPoints   []string `json:"key_points"`
	Risks       []string `json:"risks"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Report 是一份已生成的报告及其元数据。
type Report struct {
	ID         int64     `json:"id"`
	StrategyID int64     `json:"strategy_id,omitempty"`
	Symbol     string    `json:"symbol"`
	Model      string    `json:"model"`
	Content    Content   `json:"content"`
	RawJSON    string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

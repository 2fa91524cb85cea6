package apihttp

import (
	"thetamind/internal/payoff"
)

// payoffRequest 描述一次损益计算。symbol 提供时可自动补齐现价与权利金。
type payoffRequest struct {
	Symbol          string       `json:"symbol"`
	Spot            float64      `json:"spot"`
	Expiry          string       `json:"expiry"`
	Legs            []payoff.Leg `json:"legs"`
	ResolvePremiums bool         `json:"resolve_premiums"`
}

type payoffResponse struct {
	Symbol     string         `json:"symbol,omitempty"`
	Spot       float64        `json:"spot"`
	Legs       []payoff.Leg   `json:"legs"`
	Points     []payoff.Point `json:"points"`
	BreakEvens []float64      `json:"break_evens"`
	Metrics    payoff.Metrics `json:"metrics"`
}

// instantiateRequest 的模板 id 取自路径参数，这里只带实例化上下文。
type instantiateRequest struct {
	Symbol string  `json:"symbol"`
	Expiry string  `json:"expiry"`
	Spot   float64 `json:"spot"` // 可选，缺省时取实时报价
}

type reportRequest struct {
	StrategyID int64 `json:"strategy_id"`
}

type exportRequest struct {
	StrategyID int64 `json:"strategy_id"`
}

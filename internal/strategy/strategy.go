// Package strategy holds the option strategy domain model and templates.
package strategy

import (
	"fmt"
	"math"
	"strings"
	"time"

	"thetamind/internal/payoff"
)

// Strategy 是用户构建的多腿期权组合。
type Strategy struct {
	ID        int64        `json:"id"`
	Symbol    string       `json:"symbol"`
	Name      string       `json:"name"`
	Expiry    string       `json:"expiry,omitempty"`
	Notes     string       `json:"notes,omitempty"`
	Legs      []payoff.Leg `json:"legs"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Validate 校验策略可被保存与计算。
func (s *Strategy) Validate() error {
	s.Symbol = strings.ToUpper(strings.TrimSpace(s.Symbol))
	if s.Symbol == "" {
		return fmt.Errorf("策略缺少标的代码")
	}
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("策略缺少名称")
	}
	if len(s.Legs) == 0 {
		return fmt.Errorf("策略至少需要一条腿")
	}
	if len(s.Legs) > 8 {
		return fmt.Errorf("策略最多支持 8 条腿")
	}
	for i := range s.Legs {
		if err := validateLeg(&s.Legs[i]); err != nil {
			return fmt.Errorf("第 %d 条腿无效: %w", i+1, err)
		}
	}
	return nil
}

func validateLeg(leg *payoff.Leg) error {
	leg.Type = strings.ToLower(strings.TrimSpace(leg.Type))
	leg.Action = strings.ToLower(strings.TrimSpace(leg.Action))
	if leg.Type != payoff.OptionCall && leg.Type != payoff.OptionPut {
		return fmt.Errorf("type 必须是 call 或 put")
	}
	if leg.Action != payoff.ActionBuy && leg.Action != payoff.ActionSell {
		return fmt.Errorf("action 必须是 buy 或 sell")
	}
	if !finite(leg.Strike) || leg.Strike <= 0 {
		return fmt.Errorf("strike 必须是正数")
	}
	if leg.Quantity <= 0 {
		return fmt.Errorf("quantity 必须是正整数")
	}
	if !finite(leg.Premium) || leg.Premium < 0 {
		return fmt.Errorf("premium 必须是非负数")
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

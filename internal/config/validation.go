package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"thetamind/internal/scheduler"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.AI.validate(); err != nil {
		return err
	}
	if err := c.Task.validate(); err != nil {
		return err
	}
	if err := c.Billing.validate(); err != nil {
		return err
	}
	return nil
}

func (m *MarketConfig) validate() error {
	// 与运行时使用同一个解析器，避免校验通过却在装配阶段落回默认值
	if _, ok := scheduler.ParseIntervalDuration(m.LiveRefresh); !ok {
		return fmt.Errorf("market.live_refresh invalid interval: %q", m.LiveRefresh)
	}
	if _, ok := scheduler.ParseIntervalDuration(m.StaticTTL); !ok {
		return fmt.Errorf("market.static_ttl invalid interval: %q", m.StaticTTL)
	}
	return nil
}

func (a *AIConfig) validate() error {
	if strings.TrimSpace(a.Model) == "" {
		return fmt.Errorf("ai.model is required")
	}
	if a.MaxRetries < 0 {
		return fmt.Errorf("ai.max_retries must be >= 0")
	}
	return nil
}

func (t *TaskConfig) validate() error {
	if t.Workers > 16 {
		return fmt.Errorf("task.workers must be <= 16")
	}
	return nil
}

func (b *BillingConfig) validate() error {
	for key, raw := range map[string]string{
		"billing.initial_credits": b.InitialCredits,
		"billing.report_cost":     b.ReportCost,
	} {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("%s invalid decimal: %w", key, err)
		}
		if d.IsNegative() {
			return fmt.Errorf("%s must be >= 0", key)
		}
	}
	return nil
}

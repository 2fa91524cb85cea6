// Package billing tracks report generation credits.
package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"thetamind/internal/config"
	"thetamind/internal/logger"
)

// ErrInsufficientCredits 表示余额不足以扣费。
var ErrInsufficientCredits = errors.New("额度不足")

// DefaultAccount 是单租户部署下唯一的账户名。
const DefaultAccount = "default"

// Ledger 抽象额度流水的持久化。
type Ledger interface {
	AppendCreditEntry(ctx context.Context, account, delta, reason, refID string) error
	CreditEntries(ctx context.Context, account string) ([]Entry, error)
}

// Entry 是账本的一条流水视图。
type Entry struct {
	Delta  string
	Reason string
	RefID  string
}

// Service 基于流水账本维护余额；金额全部走 decimal 避免浮点误差。
type Service struct {
	ledger     Ledger
	reportCost decimal.Decimal

	mu      sync.Mutex
	balance decimal.Decimal
	loaded  bool
}

func NewService(ledger Ledger, cfg config.BillingConfig) (*Service, error) {
	cost, err := decimal.NewFromString(cfg.ReportCost)
	if err != nil {
		return nil, fmt.Errorf("billing.report_cost 无效: %w", err)
	}
	s := &Service{ledger: ledger, reportCost: cost}
	if err := s.bootstrap(cfg.InitialCredits); err != nil {
		return nil, err
	}
	return s, nil
}

// bootstrap 重放流水得到余额；空账本时记入初始额度。
func (s *Service) bootstrap(initial string) error {
	ctx := context.Background()
	entries, err := s.ledger.CreditEntries(ctx, DefaultAccount)
	if err != nil {
		return fmt.Errorf("读取额度流水失败: %w", err)
	}
	if len(entries) == 0 {
		grant, err := decimal.NewFromString(initial)
		if err != nil {
			return fmt.Errorf("billing.initial_credits 无效: %w", err)
		}
		if grant.IsPositive() {
			if err := s.ledger.AppendCreditEntry(ctx, DefaultAccount, grant.String(), "initial", ""); err != nil {
				return err
			}
		}
		s.balance = grant
		s.loaded = true
		logger.Infof("额度账本初始化，余额 %s", grant.String())
		return nil
	}
	total := decimal.Zero
	for _, e := range entries {
		d, err := decimal.NewFromString(e.Delta)
		if err != nil {
			return fmt.Errorf("额度流水损坏 (delta=%q): %w", e.Delta, err)
		}
		total = total.Add(d)
	}
	s.balance = total
	s.loaded = true
	return nil
}

// Balance 返回当前余额。
func (s *Service) Balance() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance
}

// ReportCost 返回单份报告的扣费额。
func (s *Service) ReportCost() decimal.Decimal {
	return s.reportCost
}

// ChargeReport 在报告任务启动前扣费；余额不足直接拒绝。
func (s *Service) ChargeReport(ctx context.Context, refID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.balance.LessThan(s.reportCost) {
		return fmt.Errorf("%w: 余额 %s，需要 %s", ErrInsufficientCredits, s.balance.String(), s.reportCost.String())
	}
	if err := s.ledger.AppendCreditEntry(ctx, DefaultAccount, s.reportCost.Neg().String(), "report", refID); err != nil {
		return fmt.Errorf("写入扣费流水失败: %w", err)
	}
	s.balance = s.balance.Sub(s.reportCost)
	return nil
}

// RefundReport 在任务失败时返还扣费。
func (s *Service) RefundReport(ctx context.Context, refID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ledger.AppendCreditEntry(ctx, DefaultAccount, s.reportCost.String(), "refund", refID); err != nil {
		return fmt.Errorf("写入退费流水失败: %w", err)
	}
	s.balance = s.balance.Add(s.reportCost)
	return nil
}

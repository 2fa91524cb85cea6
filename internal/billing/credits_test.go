package billing

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thetamind/internal/config"
)

type memLedger struct {
	entries []Entry
}

func (l *memLedger) AppendCreditEntry(ctx context.Context, account, delta, reason, refID string) error {
	l.entries = append(l.entries, Entry{Delta: delta, Reason: reason, RefID: refID})
	return nil
}

func (l *memLedger) CreditEntries(ctx context.Context, account string) ([]Entry, error) {
	return l.entries, nil
}

func newService(t *testing.T, ledger Ledger, initial, cost string) *Service {
	t.Helper()
	svc, err := NewService(ledger, config.BillingConfig{InitialCredits: initial, ReportCost: cost})
	require.NoError(t, err)
	return svc
}

func TestBootstrapGrantsInitialCredits(t *testing.T) {
	ledger := &memLedger{}
	svc := newService(t, ledger, "100", "1")
	assert.True(t, svc.Balance().Equal(decimal.NewFromInt(100)))
	require.Len(t, ledger.entries, 1)
	assert.Equal(t, "initial", ledger.entries[0].Reason)
}

func TestBootstrapReplaysLedger(t *testing.T) {
	ledger := &memLedger{entries: []Entry{
		{Delta: "100", Reason: "initial"},
		{Delta: "-1", Reason: "report"},
		{Delta: "-1", Reason: "report"},
	}}
	svc := newService(t, ledger, "100", "1")
	assert.True(t, svc.Balance().Equal(decimal.NewFromInt(98)))
	// 重放不应追加初始流水
	assert.Len(t, ledger.entries, 3)
}

func TestChargeAndRefund(t *testing.T) {
	svc := newService(t, &memLedger{}, "2", "1")
	ctx := context.Background()

	require.NoError(t, svc.ChargeReport(ctx, "task-1"))
	require.NoError(t, svc.ChargeReport(ctx, "task-2"))
	assert.True(t, svc.Balance().IsZero())

	err := svc.ChargeReport(ctx, "task-3")
	assert.ErrorIs(t, err, ErrInsufficientCredits)

	require.NoError(t, svc.RefundReport(ctx, "task-2"))
	assert.True(t, svc.Balance().Equal(decimal.NewFromInt(1)))
	require.NoError(t, svc.ChargeReport(ctx, "task-3"))
}

func TestFractionalCost(t *testing.T) {
	svc := newService(t, &memLedger{}, "1", "0.4")
	ctx := context.Background()
	require.NoError(t, svc.ChargeReport(ctx, "a"))
	require.NoError(t, svc.ChargeReport(ctx, "b"))
	// 0.2 < 0.4：十进制运算下不会有浮点残差
	assert.ErrorIs(t, svc.ChargeReport(ctx, "c"), ErrInsufficientCredits)
	assert.Equal(t, "0.2", svc.Balance().String())
}

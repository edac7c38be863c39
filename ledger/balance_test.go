package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clintonochieng072-gif/affiliate-settlement/models"
)

func commissionEntry(amount int64, status models.CommissionStatus) models.CommissionEntry {
	return models.CommissionEntry{
		ID:     uuid.New(),
		Amount: decimal.NewFromInt(amount),
		Status: status,
	}
}

func withdrawalEntry(amount int64, status models.WithdrawalStatus) models.Withdrawal {
	return models.Withdrawal{
		ID:              uuid.New(),
		RequestedAmount: decimal.NewFromInt(amount),
		Status:          status,
	}
}

func TestComputeCountsPaidCommissionsOnly(t *testing.T) {
	b := Compute([]models.CommissionEntry{
		commissionEntry(70, models.CommissionPaid),
		commissionEntry(70, models.CommissionPaid),
		commissionEntry(500, models.CommissionPending),
	}, nil)
	if !b.TotalEarned.Equal(decimal.NewFromInt(140)) {
		t.Fatalf("expected 140 earned got %s", b.TotalEarned)
	}
	if b.PaidEntries != 2 {
		t.Fatalf("expected 2 paid entries got %d", b.PaidEntries)
	}
	if !b.Available.Equal(decimal.NewFromInt(140)) {
		t.Fatalf("expected 140 available got %s", b.Available)
	}
}

func TestComputeActiveWithdrawalsReduceBalance(t *testing.T) {
	commissions := []models.CommissionEntry{commissionEntry(420, models.CommissionPaid)}
	b := Compute(commissions, []models.Withdrawal{
		withdrawalEntry(140, models.WithdrawalProcessing),
		withdrawalEntry(140, models.WithdrawalCompleted),
	})
	if !b.TotalWithdrawn.Equal(decimal.NewFromInt(280)) {
		t.Fatalf("expected 280 withdrawn got %s", b.TotalWithdrawn)
	}
	if !b.Available.Equal(decimal.NewFromInt(140)) {
		t.Fatalf("expected 140 available got %s", b.Available)
	}
	if b.ActivePayouts != 2 {
		t.Fatalf("expected 2 active payouts got %d", b.ActivePayouts)
	}
}

func TestComputeFailedWithdrawalsRestoreBalance(t *testing.T) {
	commissions := []models.CommissionEntry{commissionEntry(140, models.CommissionPaid)}
	b := Compute(commissions, []models.Withdrawal{
		withdrawalEntry(140, models.WithdrawalFailed),
		withdrawalEntry(140, models.WithdrawalPending),
	})
	if !b.TotalWithdrawn.IsZero() {
		t.Fatalf("expected zero withdrawn got %s", b.TotalWithdrawn)
	}
	if !b.Available.Equal(decimal.NewFromInt(140)) {
		t.Fatalf("expected full balance restored got %s", b.Available)
	}
	if b.ActivePayouts != 0 {
		t.Fatalf("expected 0 active payouts got %d", b.ActivePayouts)
	}
}

func TestComputeEmptyLedger(t *testing.T) {
	b := Compute(nil, nil)
	if !b.Available.IsZero() || !b.TotalEarned.IsZero() || !b.TotalWithdrawn.IsZero() {
		t.Fatalf("expected zero breakdown got %+v", b)
	}
}

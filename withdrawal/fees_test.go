package withdrawal

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/clintonochieng072-gif/affiliate-settlement/models"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestBreakdownBlockMultiples(t *testing.T) {
	schedule := DefaultSchedule()
	cases := []struct {
		amount   int64
		blocks   int64
		platform int64
		payout   int64
		transfer int64
	}{
		{140, 1, 30, 110, 20},
		{280, 2, 60, 220, 20},
		{420, 3, 90, 330, 20},
		{1400, 10, 300, 1100, 20},
		{2800, 20, 600, 2200, 40},
	}
	for _, tc := range cases {
		fees := schedule.Breakdown(d(tc.amount))
		if fees.Blocks != tc.blocks {
			t.Fatalf("amount %d: expected %d blocks got %d", tc.amount, tc.blocks, fees.Blocks)
		}
		if !fees.PlatformFee.Equal(d(tc.platform)) {
			t.Fatalf("amount %d: expected platform fee %d got %s", tc.amount, tc.platform, fees.PlatformFee)
		}
		if !fees.PayoutAmount.Equal(d(tc.payout)) {
			t.Fatalf("amount %d: expected payout %d got %s", tc.amount, tc.payout, fees.PayoutAmount)
		}
		if !fees.TransferFee.Equal(d(tc.transfer)) {
			t.Fatalf("amount %d: expected transfer fee %d got %s", tc.amount, tc.transfer, fees.TransferFee)
		}
	}
}

func TestBreakdownTestAmount(t *testing.T) {
	schedule := DefaultSchedule()
	fees := schedule.Breakdown(d(10))
	if fees.Blocks != 0 {
		t.Fatalf("expected 0 blocks got %d", fees.Blocks)
	}
	if !fees.PlatformFee.IsZero() {
		t.Fatalf("expected zero platform fee got %s", fees.PlatformFee)
	}
	if !fees.PayoutAmount.Equal(d(10)) {
		t.Fatalf("expected full payout got %s", fees.PayoutAmount)
	}
}

func TestCheckAmount(t *testing.T) {
	schedule := DefaultSchedule()
	for _, amount := range []int64{140, 280, 420, 1400, 10} {
		if err := schedule.CheckAmount(d(amount)); err != nil {
			t.Fatalf("amount %d should be accepted: %v", amount, err)
		}
	}
	for _, amount := range []int64{0, -140, 100, 139, 141, 150, 279} {
		err := schedule.CheckAmount(d(amount))
		if err == nil {
			t.Fatalf("amount %d should be rejected", amount)
		}
		var validation *ValidationError
		if !errors.As(err, &validation) || validation.Code != CodeInvalidAmount {
			t.Fatalf("amount %d: expected invalid_amount rejection, got %v", amount, err)
		}
	}
}

func TestCleanDestination(t *testing.T) {
	cleaned, err := CleanDestination(" 0712 345-678 ")
	if err != nil {
		t.Fatalf("clean: %v", err)
	}
	if cleaned != "0712345678" {
		t.Fatalf("expected 0712345678 got %s", cleaned)
	}
	if _, err := CleanDestination("12345"); err == nil {
		t.Fatal("expected rejection for short number")
	}
	if _, err := CleanDestination("not-a-number"); err == nil {
		t.Fatal("expected rejection for non-numeric input")
	}
}

func TestValidateTransition(t *testing.T) {
	valid := []struct{ from, to models.WithdrawalStatus }{
		{models.WithdrawalPending, models.WithdrawalProcessing},
		{models.WithdrawalPending, models.WithdrawalFailed},
		{models.WithdrawalPending, models.WithdrawalCompleted},
		{models.WithdrawalProcessing, models.WithdrawalCompleted},
		{models.WithdrawalProcessing, models.WithdrawalFailed},
		{models.WithdrawalProcessing, models.WithdrawalPending},
		{models.WithdrawalCompleted, models.WithdrawalCompleted},
	}
	for _, tc := range valid {
		if err := ValidateTransition(tc.from, tc.to); err != nil {
			t.Fatalf("expected %s -> %s to be allowed: %v", tc.from, tc.to, err)
		}
	}
	invalid := []struct{ from, to models.WithdrawalStatus }{
		{models.WithdrawalCompleted, models.WithdrawalFailed},
		{models.WithdrawalCompleted, models.WithdrawalPending},
		{models.WithdrawalFailed, models.WithdrawalCompleted},
		{models.WithdrawalFailed, models.WithdrawalProcessing},
	}
	for _, tc := range invalid {
		if err := ValidateTransition(tc.from, tc.to); err == nil {
			t.Fatalf("expected %s -> %s to be rejected", tc.from, tc.to)
		}
	}
}

func TestScheduleValidate(t *testing.T) {
	if err := DefaultSchedule().Validate(); err != nil {
		t.Fatalf("default schedule should validate: %v", err)
	}
	bad := DefaultSchedule()
	bad.PerBlockFee = bad.BlockSize
	if err := bad.Validate(); err == nil {
		t.Fatal("expected rejection when the fee consumes the block")
	}
}

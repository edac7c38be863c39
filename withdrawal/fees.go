package withdrawal

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TransferTier maps a payout amount ceiling (inclusive) to the fee the
// provider charges for the transfer. The fee is absorbed by the platform,
// never deducted from the agent's payout.
type TransferTier struct {
	Max decimal.Decimal
	Fee decimal.Decimal
}

// Schedule captures the withdrawal granularity and fee policy. All values are
// configuration, not structural invariants.
type Schedule struct {
	BlockSize          decimal.Decimal
	PerBlockFee        decimal.Decimal
	TestAmount         decimal.Decimal
	TransferTiers      []TransferTier
	DefaultTransferFee decimal.Decimal
}

// DefaultSchedule returns the production fee policy: 140 KES blocks, 30 KES
// platform fee per block, a 10 KES test bypass, and the provider's two-tier
// transfer fee table.
func DefaultSchedule() Schedule {
	return Schedule{
		BlockSize:   decimal.NewFromInt(140),
		PerBlockFee: decimal.NewFromInt(30),
		TestAmount:  decimal.NewFromInt(10),
		TransferTiers: []TransferTier{
			{Max: decimal.NewFromInt(1500), Fee: decimal.NewFromInt(20)},
			{Max: decimal.NewFromInt(20000), Fee: decimal.NewFromInt(40)},
		},
		DefaultTransferFee: decimal.NewFromInt(40),
	}
}

// Validate checks the schedule is usable at startup.
func (s Schedule) Validate() error {
	if !s.BlockSize.IsPositive() {
		return fmt.Errorf("withdrawal: block size must be positive")
	}
	if s.PerBlockFee.IsNegative() {
		return fmt.Errorf("withdrawal: per-block fee must not be negative")
	}
	if s.PerBlockFee.GreaterThanOrEqual(s.BlockSize) {
		return fmt.Errorf("withdrawal: per-block fee %s consumes the whole block %s", s.PerBlockFee, s.BlockSize)
	}
	return nil
}

// Fees is the computed breakdown for one withdrawal request.
type Fees struct {
	Blocks       int64
	PlatformFee  decimal.Decimal
	PayoutAmount decimal.Decimal
	TransferFee  decimal.Decimal
}

// IsTestAmount reports whether the amount is the designated fee-free test
// value.
func (s Schedule) IsTestAmount(amount decimal.Decimal) bool {
	return amount.Equal(s.TestAmount)
}

// ValidAmount reports whether the amount is the test value or an exact
// positive multiple of the block size.
func (s Schedule) ValidAmount(amount decimal.Decimal) bool {
	if s.IsTestAmount(amount) {
		return true
	}
	return amount.IsPositive() && amount.Mod(s.BlockSize).IsZero()
}

// Breakdown computes the fee split for a valid amount. Test-value
// withdrawals carry no platform fee and pay out the full amount.
func (s Schedule) Breakdown(amount decimal.Decimal) Fees {
	if s.IsTestAmount(amount) {
		return Fees{
			Blocks:       0,
			PlatformFee:  decimal.Zero,
			PayoutAmount: amount,
			TransferFee:  s.transferFee(amount),
		}
	}
	blocks := amount.Div(s.BlockSize).IntPart()
	platformFee := s.PerBlockFee.Mul(decimal.NewFromInt(blocks))
	payout := amount.Sub(platformFee)
	return Fees{
		Blocks:       blocks,
		PlatformFee:  platformFee,
		PayoutAmount: payout,
		TransferFee:  s.transferFee(payout),
	}
}

func (s Schedule) transferFee(payout decimal.Decimal) decimal.Decimal {
	for _, tier := range s.TransferTiers {
		if payout.LessThanOrEqual(tier.Max) {
			return tier.Fee
		}
	}
	return s.DefaultTransferFee
}

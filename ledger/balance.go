package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/clintonochieng072-gif/affiliate-settlement/models"
)

// Breakdown summarises an affiliate's ledger position. Withdrawals in
// processing count as spent so a payout awaiting provider confirmation cannot
// be spent twice; failed withdrawals are excluded, which is the refund
// mechanism.
type Breakdown struct {
	TotalEarned    decimal.Decimal `json:"totalEarned"`
	TotalWithdrawn decimal.Decimal `json:"totalWithdrawn"`
	Available      decimal.Decimal `json:"available"`
	PaidEntries    int             `json:"paidEntries"`
	ActivePayouts  int             `json:"activePayouts"`
}

// Compute derives the balance breakdown from the affiliate's commission and
// withdrawal sets. Pure and deterministic; all arithmetic is exact decimal.
func Compute(commissions []models.CommissionEntry, withdrawals []models.Withdrawal) Breakdown {
	b := Breakdown{
		TotalEarned:    decimal.Zero,
		TotalWithdrawn: decimal.Zero,
	}
	for _, c := range commissions {
		if c.Status != models.CommissionPaid {
			continue
		}
		b.TotalEarned = b.TotalEarned.Add(c.Amount)
		b.PaidEntries++
	}
	for _, w := range withdrawals {
		if w.Status != models.WithdrawalProcessing && w.Status != models.WithdrawalCompleted {
			continue
		}
		b.TotalWithdrawn = b.TotalWithdrawn.Add(w.RequestedAmount)
		b.ActivePayouts++
	}
	b.Available = b.TotalEarned.Sub(b.TotalWithdrawn)
	return b
}

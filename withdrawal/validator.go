package withdrawal

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// RejectionCode classifies why a withdrawal request was refused before any
// provider involvement.
type RejectionCode string

const (
	CodeInvalidAmount       RejectionCode = "invalid_amount"
	CodeInvalidDestination  RejectionCode = "invalid_destination"
	CodeInsufficientBalance RejectionCode = "insufficient_balance"
)

// ValidationError is a terminal business rejection of a withdrawal request.
// Available and Requested are populated on insufficient-balance rejections
// for client display.
type ValidationError struct {
	Code      RejectionCode
	Message   string
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *ValidationError) Error() string { return e.Message }

var (
	nonDigits  = regexp.MustCompile(`\D`)
	digitsOnly = regexp.MustCompile(`^\d{9,15}$`)
)

// CleanDestination strips every non-digit character and checks the remainder
// is a plausible mobile-money number (9-15 digits covers the mobile formats
// in scope; the provider performs final compatibility validation).
func CleanDestination(raw string) (string, error) {
	cleaned := nonDigits.ReplaceAllString(strings.TrimSpace(raw), "")
	if !digitsOnly.MatchString(cleaned) {
		return "", &ValidationError{
			Code:    CodeInvalidDestination,
			Message: fmt.Sprintf("invalid mobile money number: expected 9-15 digits, got %d", len(cleaned)),
		}
	}
	return cleaned, nil
}

// CheckAmount enforces the block-multiple invariant for the schedule.
func (s Schedule) CheckAmount(amount decimal.Decimal) error {
	if s.ValidAmount(amount) {
		return nil
	}
	return &ValidationError{
		Code: CodeInvalidAmount,
		Message: fmt.Sprintf("amount must be %s (test) or a positive multiple of %s",
			s.TestAmount.String(), s.BlockSize.String()),
		Requested: amount,
	}
}

package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrNotConfigured indicates no transfer provider is available for the
// deployment. Withdrawals fail immediately rather than lingering in pending.
var ErrNotConfigured = errors.New("provider: not configured")

// TransferRequest carries everything a provider needs to move funds. Amount
// is the payout amount after platform fees, Destination is already normalized
// to the provider's required format, and Reference is the withdrawal ID used
// as the outbound correlation reference.
type TransferRequest struct {
	Amount        decimal.Decimal
	Destination   string
	RecipientName string
	Reference     string
	Remarks       string
}

// TransferResult is the typed outcome of a transfer initiation. Raw preserves
// the provider's response body for diagnostics only; no decision logic may
// depend on it.
type TransferResult struct {
	Accepted        bool
	ProviderRef     string
	RejectionReason string
	Raw             json.RawMessage
}

// RejectionError marks a terminal provider rejection (validation failure,
// declined request). It is never retried.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("provider: transfer rejected: %s", e.Reason)
}

// Provider abstracts a funds-transfer backend. Variant selection is
// deployment configuration; the withdrawal state machine never branches on
// the concrete implementation.
type Provider interface {
	// Name identifies the provider variant in logs and metrics.
	Name() string
	// NormalizeDestination converts a raw mobile-money number (digits only)
	// into the format this provider requires.
	NormalizeDestination(raw string) (string, error)
	// InitiateTransfer asks the provider to move funds. A terminal rejection
	// is reported via *RejectionError; transient failures exhaust the
	// bounded retry budget before surfacing.
	InitiateTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
}

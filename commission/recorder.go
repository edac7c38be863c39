package commission

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/clintonochieng072-gif/affiliate-settlement/ledger"
	"github.com/clintonochieng072-gif/affiliate-settlement/models"
)

var (
	// ErrUnknownTrackingCode is returned when the referral code matches no
	// affiliate link.
	ErrUnknownTrackingCode = errors.New("commission: unknown tracking code")

	// ErrInvalidInput is wrapped by the validation failures below.
	ErrInvalidInput = errors.New("commission: invalid input")

	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// RecordInput describes one referred sale reported by the storefront.
type RecordInput struct {
	TrackingCode string
	PayerEmail   string
	Amount       decimal.Decimal
	Reference    string
	ProductSlug  string
}

// Recorder ingests referred sales into the commission ledger. Ingestion is
// idempotent on the payment reference: redelivered notifications return the
// previously stored entry instead of crediting the affiliate twice.
type Recorder struct {
	store  *ledger.Store
	rate   decimal.Decimal
	logger *slog.Logger
}

// NewRecorder constructs a recorder. Rate is the fraction of the sale amount
// credited as commission; zero or negative falls back to crediting the full
// amount.
func NewRecorder(store *ledger.Store, rate decimal.Decimal, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if rate.LessThanOrEqual(decimal.Zero) {
		rate = decimal.NewFromInt(1)
	}
	return &Recorder{store: store, rate: rate, logger: logger}
}

// Record stores a commission entry for the sale. The boolean result reports
// whether the reference had already been recorded.
func (r *Recorder) Record(ctx context.Context, in RecordInput) (*models.CommissionEntry, bool, error) {
	in.TrackingCode = strings.TrimSpace(in.TrackingCode)
	in.PayerEmail = strings.TrimSpace(in.PayerEmail)
	in.Reference = strings.TrimSpace(in.Reference)
	switch {
	case in.TrackingCode == "":
		return nil, false, invalid("tracking code is required")
	case in.Reference == "":
		return nil, false, invalid("payment reference is required")
	case in.Amount.LessThanOrEqual(decimal.Zero):
		return nil, false, invalid("amount must be positive")
	case in.PayerEmail == "":
		return nil, false, invalid("payer email is required")
	case !emailPattern.MatchString(in.PayerEmail):
		return nil, false, invalid("payer email is malformed")
	}

	if existing, err := r.store.CommissionByReference(ctx, in.Reference); err == nil {
		return existing, true, nil
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return nil, false, err
	}

	link, err := r.store.LinkByTrackingCode(ctx, in.TrackingCode)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, false, ErrUnknownTrackingCode
		}
		return nil, false, err
	}

	entry := &models.CommissionEntry{
		AffiliateID:      link.AffiliateID,
		PayerEmail:       in.PayerEmail,
		ProductSlug:      in.ProductSlug,
		AmountPaid:       in.Amount,
		Amount:           in.Amount.Mul(r.rate).Round(2),
		PaymentReference: in.Reference,
		Status:           models.CommissionPaid,
	}
	if err := r.store.CreateCommission(ctx, entry); err != nil {
		// A concurrent delivery may have won the unique-reference race;
		// re-read before reporting the insert failure.
		if existing, readErr := r.store.CommissionByReference(ctx, in.Reference); readErr == nil {
			return existing, true, nil
		}
		return nil, false, err
	}

	r.logger.Info("commission recorded",
		slog.String("affiliate", link.AffiliateID.String()),
		slog.String("reference", in.Reference),
		slog.String("amount", entry.Amount.String()),
	)
	return entry, false, nil
}

type inputError struct{ msg string }

func (e *inputError) Error() string { return e.msg }

func (e *inputError) Unwrap() error { return ErrInvalidInput }

func invalid(msg string) error { return &inputError{msg: msg} }

package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/clintonochieng072-gif/affiliate-settlement/ledger"
	"github.com/clintonochieng072-gif/affiliate-settlement/models"
	"github.com/clintonochieng072-gif/affiliate-settlement/observability"
	"github.com/clintonochieng072-gif/affiliate-settlement/observability/logging"
	"github.com/clintonochieng072-gif/affiliate-settlement/provider"
)

// ErrNotFound is returned when a callback reference matches no withdrawal.
var ErrNotFound = errors.New("withdrawal: not found")

const timeoutReason = "awaiting final status confirmation from provider"

// Service orchestrates the withdrawal lifecycle: validation, balance
// reservation, provider initiation, and callback reconciliation. All state
// transitions are server-authoritative and applied under the entry's row
// lock.
type Service struct {
	store    *ledger.Store
	provider provider.Provider
	fees     Schedule
	metrics  *observability.SettlementMetrics
	logger   *slog.Logger
	now      func() time.Time
}

// ServiceOption customises the service instance.
type ServiceOption func(*Service)

// WithMetrics attaches the settlement metrics registry.
func WithMetrics(m *observability.SettlementMetrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithClock sets the function used to derive timestamps.
func WithClock(clock func() time.Time) ServiceOption {
	return func(s *Service) { s.now = clock }
}

// NewService constructs a withdrawal service. The provider may be nil for
// deployments without a configured transfer backend; requests then fail
// immediately with a populated failure reason rather than stranding balance.
func NewService(store *ledger.Store, prov provider.Provider, fees Schedule, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	svc := &Service{
		store:    store,
		provider: prov,
		fees:     fees,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// FeeSchedule exposes the active schedule for display endpoints.
func (s *Service) FeeSchedule() Schedule { return s.fees }

// Request validates and executes a withdrawal for the affiliate. The pending
// entry is written before the provider is contacted, which reserves the
// requested amount against the balance; a terminal provider rejection flips
// the entry to failed so the reservation is released.
func (s *Service) Request(ctx context.Context, affiliate *models.Affiliate, amount decimal.Decimal, destination string) (*models.Withdrawal, error) {
	if affiliate == nil {
		return nil, errors.New("withdrawal: affiliate required")
	}
	if amount.IsZero() || destination == "" {
		return nil, &ValidationError{Code: CodeInvalidAmount, Message: "amount and destination number are required"}
	}
	if err := s.fees.CheckAmount(amount); err != nil {
		s.recordOutcome("rejected")
		return nil, err
	}
	cleaned, err := CleanDestination(destination)
	if err != nil {
		s.recordOutcome("rejected")
		return nil, err
	}
	normalized := cleaned
	if s.provider != nil {
		normalized, err = s.provider.NormalizeDestination(cleaned)
		if err != nil {
			s.recordOutcome("rejected")
			return nil, &ValidationError{Code: CodeInvalidDestination, Message: err.Error()}
		}
	}

	fees := s.fees.Breakdown(amount)
	entry, err := s.store.ReserveWithdrawal(ctx, affiliate.ID, func(available decimal.Decimal) (*models.Withdrawal, error) {
		if amount.GreaterThan(available) {
			return nil, &ValidationError{
				Code:      CodeInsufficientBalance,
				Message:   "insufficient balance",
				Available: available,
				Requested: amount,
			}
		}
		return &models.Withdrawal{
			RequestedAmount: amount,
			PlatformFee:     fees.PlatformFee,
			PayoutAmount:    fees.PayoutAmount,
			TransferFee:     fees.TransferFee,
			Destination:     normalized,
		}, nil
	})
	if err != nil {
		var rejection *ValidationError
		if errors.As(err, &rejection) {
			s.recordOutcome("rejected")
		}
		return nil, err
	}

	s.logger.Info("withdrawal reserved",
		slog.String("withdrawal", entry.ID.String()),
		slog.String("affiliate", affiliate.ID.String()),
		slog.String("amount", amount.String()),
		logging.MaskDestination(normalized),
	)

	if s.provider == nil {
		failed, markErr := s.markFailed(ctx, entry, "transfer provider not configured")
		if markErr != nil {
			return entry, markErr
		}
		return failed, provider.ErrNotConfigured
	}

	start := s.now()
	result, callErr := s.provider.InitiateTransfer(ctx, provider.TransferRequest{
		Amount:        fees.PayoutAmount,
		Destination:   normalized,
		RecipientName: affiliate.Name,
		Reference:     entry.ID.String(),
		Remarks:       fmt.Sprintf("Sales earnings withdrawal - %d blocks", fees.Blocks),
	})
	s.observeProvider(s.now().Sub(start), callErr)

	if callErr != nil {
		reason := "transfer provider unavailable"
		var rejection *provider.RejectionError
		if errors.As(callErr, &rejection) {
			reason = rejection.Reason
		}
		failed, markErr := s.markFailed(ctx, entry, reason)
		if markErr != nil {
			return entry, markErr
		}
		s.recordOutcome("failed")
		return failed, callErr
	}

	processing, err := s.store.UpdateWithdrawal(ctx, entry.ID, func(w *models.Withdrawal) error {
		if err := ValidateTransition(w.Status, models.WithdrawalProcessing); err != nil {
			return err
		}
		w.Status = models.WithdrawalProcessing
		w.ProviderReference = result.ProviderRef
		return nil
	})
	if err != nil {
		return entry, err
	}
	s.recordOutcome("processing")
	s.logger.Info("withdrawal accepted by provider",
		slog.String("withdrawal", processing.ID.String()),
		slog.String("provider", s.provider.Name()),
		slog.String("providerReference", processing.ProviderReference),
	)
	return processing, nil
}

// ApplyResult reconciles a provider result callback. Matching tries the
// withdrawal ID first, then the provider-assigned reference. Terminal
// entries are left untouched so redelivered callbacks are a safe no-op.
func (s *Service) ApplyResult(ctx context.Context, reference, providerRef string, success bool, reason string) (*models.Withdrawal, error) {
	entry, err := s.store.WithdrawalByReference(ctx, reference, providerRef)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	updated, err := s.store.UpdateWithdrawal(ctx, entry.ID, func(w *models.Withdrawal) error {
		if w.Status.Terminal() {
			return nil
		}
		if success {
			w.Status = models.WithdrawalCompleted
			w.FailureReason = ""
		} else {
			w.Status = models.WithdrawalFailed
			w.FailureReason = reason
		}
		if providerRef != "" && w.ProviderReference == "" {
			w.ProviderReference = providerRef
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	outcome := "completed"
	if !success {
		outcome = "failed"
	}
	s.recordOutcome(outcome)
	s.logger.Info("withdrawal result applied",
		slog.String("withdrawal", updated.ID.String()),
		slog.String("status", string(updated.Status)),
	)
	return updated, nil
}

// ApplyTimeout reconciles a provider timeout callback: the provider has no
// verdict yet, so a non-terminal entry returns to pending for follow-up.
// Already-terminal entries are not overwritten.
func (s *Service) ApplyTimeout(ctx context.Context, reference, providerRef string) (*models.Withdrawal, error) {
	entry, err := s.store.WithdrawalByReference(ctx, reference, providerRef)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	updated, err := s.store.UpdateWithdrawal(ctx, entry.ID, func(w *models.Withdrawal) error {
		if w.Status.Terminal() {
			return nil
		}
		w.Status = models.WithdrawalPending
		w.FailureReason = timeoutReason
		if providerRef != "" && w.ProviderReference == "" {
			w.ProviderReference = providerRef
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordOutcome("timeout")
	s.logger.Info("withdrawal timeout applied",
		slog.String("withdrawal", updated.ID.String()),
		slog.String("status", string(updated.Status)),
	)
	return updated, nil
}

func (s *Service) markFailed(ctx context.Context, entry *models.Withdrawal, reason string) (*models.Withdrawal, error) {
	return s.store.UpdateWithdrawal(ctx, entry.ID, func(w *models.Withdrawal) error {
		if err := ValidateTransition(w.Status, models.WithdrawalFailed); err != nil {
			return err
		}
		w.Status = models.WithdrawalFailed
		w.FailureReason = reason
		return nil
	})
}

func (s *Service) recordOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordWithdrawal(outcome)
	}
}

func (s *Service) observeProvider(d time.Duration, err error) {
	if s.metrics == nil || s.provider == nil {
		return
	}
	s.metrics.ObserveProvider(s.provider.Name(), d, err)
}

package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/clintonochieng072-gif/affiliate-settlement/models"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("ledger: record not found")

// Store persists the commission and withdrawal ledger. It owns the
// per-affiliate critical section: any balance-then-write sequence runs inside
// a transaction holding a row lock on the affiliate, so two concurrent
// withdrawal requests cannot both observe an approving balance.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore wraps an explicitly constructed database handle. Lifecycle of the
// handle is owned by the caller.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// WithClock overrides the timestamp source. Primarily for tests.
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.now = clock
	return s
}

// DB exposes the underlying handle for schema migration at startup.
func (s *Store) DB() *gorm.DB { return s.db }

// AffiliateByEmail loads an affiliate by unique email.
func (s *Store) AffiliateByEmail(ctx context.Context, email string) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	if err := s.db.WithContext(ctx).First(&affiliate, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &affiliate, nil
}

// LinkByTrackingCode resolves a tracking code to its affiliate link.
func (s *Store) LinkByTrackingCode(ctx context.Context, code string) (*models.AffiliateLink, error) {
	var link models.AffiliateLink
	if err := s.db.WithContext(ctx).Preload("Affiliate").First(&link, "tracking_code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &link, nil
}

// CreateAffiliate registers an affiliate together with its tracking link.
func (s *Store) CreateAffiliate(ctx context.Context, name, email, trackingCode string) (*models.Affiliate, *models.AffiliateLink, error) {
	now := s.now().UTC()
	affiliate := models.Affiliate{
		ID:        uuid.New(),
		Name:      name,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	link := models.AffiliateLink{
		ID:           uuid.New(),
		AffiliateID:  affiliate.ID,
		TrackingCode: trackingCode,
		CreatedAt:    now,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&affiliate).Error; err != nil {
			return err
		}
		return tx.Create(&link).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return &affiliate, &link, nil
}

// CommissionByReference looks up a commission entry by its idempotency key.
func (s *Store) CommissionByReference(ctx context.Context, reference string) (*models.CommissionEntry, error) {
	var entry models.CommissionEntry
	if err := s.db.WithContext(ctx).First(&entry, "payment_reference = ?", reference).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// CreateCommission appends a commission entry. A unique-index violation on
// the payment reference is surfaced as the insert error; callers treat it as
// "already recorded" by re-reading.
func (s *Store) CreateCommission(ctx context.Context, entry *models.CommissionEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}
	return s.db.WithContext(ctx).Create(entry).Error
}

// Balance computes the affiliate's current breakdown without locking. Used
// for reads; the withdrawal path recomputes under the affiliate row lock.
func (s *Store) Balance(ctx context.Context, affiliateID uuid.UUID) (Breakdown, error) {
	var breakdown Breakdown
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := balanceLocked(tx, affiliateID, false)
		if err != nil {
			return err
		}
		breakdown = b
		return nil
	})
	return breakdown, err
}

// ReserveWithdrawal executes the balance-check-then-create sequence
// atomically for one affiliate. The build callback receives the available
// balance observed under the lock and returns the entry to persist in
// pending; returning an error aborts without writing.
func (s *Store) ReserveWithdrawal(ctx context.Context, affiliateID uuid.UUID, build func(available decimal.Decimal) (*models.Withdrawal, error)) (*models.Withdrawal, error) {
	var created *models.Withdrawal
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var affiliate models.Affiliate
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&affiliate, "id = ?", affiliateID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		breakdown, err := balanceLocked(tx, affiliateID, true)
		if err != nil {
			return err
		}
		entry, err := build(breakdown.Available)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if entry.ID == uuid.Nil {
			entry.ID = uuid.New()
		}
		entry.AffiliateID = affiliateID
		entry.Status = models.WithdrawalPending
		entry.CreatedAt = now
		entry.UpdatedAt = now
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		created = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// WithdrawalByReference matches a withdrawal by the platform-assigned ID used
// as the outbound correlation reference, falling back to the provider-assigned
// reference stored at acceptance time.
func (s *Store) WithdrawalByReference(ctx context.Context, reference, providerRef string) (*models.Withdrawal, error) {
	var entry models.Withdrawal
	query := s.db.WithContext(ctx)
	if id, err := uuid.Parse(reference); err == nil {
		query = query.Where("id = ?", id)
		if providerRef != "" {
			query = query.Or("provider_reference = ?", providerRef)
		}
	} else if providerRef != "" {
		query = query.Where("provider_reference = ?", providerRef)
	} else {
		return nil, ErrNotFound
	}
	if err := query.First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// UpdateWithdrawal applies a mutation to one withdrawal under its row lock.
// The mutate callback inspects current state and edits the entry in place;
// returning an error aborts the transaction.
func (s *Store) UpdateWithdrawal(ctx context.Context, id uuid.UUID, mutate func(entry *models.Withdrawal) error) (*models.Withdrawal, error) {
	var updated *models.Withdrawal
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.Withdrawal
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&entry, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		beforeStatus := entry.Status
		beforeRef := entry.ProviderReference
		beforeReason := entry.FailureReason
		if err := mutate(&entry); err != nil {
			return err
		}
		if entry.Status != beforeStatus || entry.ProviderReference != beforeRef || entry.FailureReason != beforeReason {
			entry.UpdatedAt = s.now().UTC()
		}
		updated = &entry
		return tx.Save(&entry).Error
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Withdrawals returns the affiliate's withdrawal history, newest first.
func (s *Store) Withdrawals(ctx context.Context, affiliateID uuid.UUID) ([]models.Withdrawal, error) {
	var entries []models.Withdrawal
	if err := s.db.WithContext(ctx).Where("affiliate_id = ?", affiliateID).Order("created_at DESC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// Commissions returns the affiliate's commission history, newest first.
func (s *Store) Commissions(ctx context.Context, affiliateID uuid.UUID) ([]models.CommissionEntry, error) {
	var entries []models.CommissionEntry
	if err := s.db.WithContext(ctx).Where("affiliate_id = ?", affiliateID).Order("created_at DESC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func balanceLocked(tx *gorm.DB, affiliateID uuid.UUID, forUpdate bool) (Breakdown, error) {
	commissionQuery := tx.Where("affiliate_id = ?", affiliateID)
	withdrawalQuery := tx.Where("affiliate_id = ?", affiliateID)
	if forUpdate {
		commissionQuery = commissionQuery.Clauses(clause.Locking{Strength: "UPDATE"})
		withdrawalQuery = withdrawalQuery.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var commissions []models.CommissionEntry
	if err := commissionQuery.Find(&commissions).Error; err != nil {
		return Breakdown{}, err
	}
	var withdrawals []models.Withdrawal
	if err := withdrawalQuery.Find(&withdrawals).Error; err != nil {
		return Breakdown{}, err
	}
	return Compute(commissions, withdrawals), nil
}

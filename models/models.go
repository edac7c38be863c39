package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CommissionStatus tracks the lifecycle of an earned commission.
type CommissionStatus string

const (
	CommissionPending CommissionStatus = "pending"
	CommissionPaid    CommissionStatus = "paid"
)

// WithdrawalStatus tracks the lifecycle of a payout request.
type WithdrawalStatus string

const (
	WithdrawalPending    WithdrawalStatus = "pending"
	WithdrawalProcessing WithdrawalStatus = "processing"
	WithdrawalCompleted  WithdrawalStatus = "completed"
	WithdrawalFailed     WithdrawalStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s WithdrawalStatus) Terminal() bool {
	return s == WithdrawalCompleted || s == WithdrawalFailed
}

// Affiliate is a sales agent who earns commission for referred sales.
type Affiliate struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"size:128;not null" json:"name"`
	Email     string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AffiliateLink maps an externally shared tracking code to an affiliate.
type AffiliateLink struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AffiliateID  uuid.UUID `gorm:"type:uuid;index;not null" json:"affiliateId"`
	TrackingCode string    `gorm:"size:64;uniqueIndex;not null" json:"trackingCode"`
	CreatedAt    time.Time `json:"createdAt"`

	Affiliate Affiliate `json:"-"`
}

// CommissionEntry is an append-only ledger record of money owed to an
// affiliate for one referred sale. PaymentReference is the idempotency key
// supplied by the upstream payment system; the unique index is what makes
// concurrent duplicate deliveries safe.
type CommissionEntry struct {
	ID               uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	AffiliateID      uuid.UUID        `gorm:"type:uuid;index;not null" json:"affiliateId"`
	PayerEmail       string           `gorm:"size:255;not null" json:"payerEmail"`
	ProductSlug      string           `gorm:"size:64" json:"productSlug"`
	AmountPaid       decimal.Decimal  `gorm:"type:decimal(18,2);not null" json:"amountPaid"`
	Amount           decimal.Decimal  `gorm:"type:decimal(18,2);not null" json:"amount"`
	PaymentReference string           `gorm:"size:128;uniqueIndex;not null" json:"paymentReference"`
	Status           CommissionStatus `gorm:"size:16;index;not null" json:"status"`
	CreatedAt        time.Time        `json:"createdAt"`
}

// Withdrawal is an append-only ledger record of a payout request. The entry
// is created in pending before any provider call; ProviderReference is
// populated once the provider accepts and is used alongside the withdrawal ID
// to match asynchronous callbacks.
type Withdrawal struct {
	ID                uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	AffiliateID       uuid.UUID        `gorm:"type:uuid;index;not null" json:"affiliateId"`
	RequestedAmount   decimal.Decimal  `gorm:"type:decimal(18,2);not null" json:"requestedAmount"`
	PlatformFee       decimal.Decimal  `gorm:"type:decimal(18,2);not null" json:"platformFee"`
	PayoutAmount      decimal.Decimal  `gorm:"type:decimal(18,2);not null" json:"payoutAmount"`
	TransferFee       decimal.Decimal  `gorm:"type:decimal(18,2);not null" json:"transferFee"`
	Destination       string           `gorm:"size:32;not null" json:"destination"`
	Status            WithdrawalStatus `gorm:"size:16;index;not null" json:"status"`
	ProviderReference string           `gorm:"size:128;index" json:"providerReference,omitempty"`
	FailureReason     string           `gorm:"size:512" json:"failureReason,omitempty"`
	CreatedAt         time.Time        `json:"createdAt"`
	UpdatedAt         time.Time        `gorm:"autoUpdateTime:false" json:"updatedAt"`
}

// AutoMigrate performs all schema migrations for the service.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Affiliate{},
		&AffiliateLink{},
		&CommissionEntry{},
		&Withdrawal{},
	)
}

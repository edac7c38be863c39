package commission

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clintonochieng072-gif/affiliate-settlement/ledger"
	"github.com/clintonochieng072-gif/affiliate-settlement/models"
)

func setupRecorder(t *testing.T, rate decimal.Decimal) (*Recorder, *ledger.Store, string) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	store := ledger.NewStore(db)
	_, link, err := store.CreateAffiliate(context.Background(), "Jane Agent", uuid.NewString()+"@example.com", "track-"+uuid.NewString()[:8])
	if err != nil {
		t.Fatalf("create affiliate: %v", err)
	}
	return NewRecorder(store, rate, nil), store, link.TrackingCode
}

func TestRecordCreatesPaidEntry(t *testing.T) {
	recorder, store, code := setupRecorder(t, decimal.NewFromInt(1))
	ctx := context.Background()

	entry, duplicate, err := recorder.Record(ctx, RecordInput{
		TrackingCode: code,
		PayerEmail:   "buyer@example.com",
		Amount:       decimal.NewFromInt(70),
		Reference:    "pay-001",
		ProductSlug:  "starter-pack",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if duplicate {
		t.Fatal("first delivery must not report duplicate")
	}
	if entry.Status != models.CommissionPaid {
		t.Fatalf("expected paid got %s", entry.Status)
	}
	if !entry.Amount.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("expected 70 credited got %s", entry.Amount)
	}

	breakdown, err := store.Balance(ctx, entry.AffiliateID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !breakdown.Available.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("expected 70 available got %s", breakdown.Available)
	}
}

func TestRecordIsIdempotentOnReference(t *testing.T) {
	recorder, store, code := setupRecorder(t, decimal.NewFromInt(1))
	ctx := context.Background()

	first, _, err := recorder.Record(ctx, RecordInput{
		TrackingCode: code,
		PayerEmail:   "buyer@example.com",
		Amount:       decimal.NewFromInt(70),
		Reference:    "pay-dup",
	})
	if err != nil {
		t.Fatalf("first record: %v", err)
	}
	second, duplicate, err := recorder.Record(ctx, RecordInput{
		TrackingCode: code,
		PayerEmail:   "buyer@example.com",
		Amount:       decimal.NewFromInt(70),
		Reference:    "pay-dup",
	})
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if !duplicate {
		t.Fatal("redelivery must report duplicate")
	}
	if second.ID != first.ID {
		t.Fatalf("expected the original entry back, got %s", second.ID)
	}

	entries, err := store.Commissions(ctx, first.AffiliateID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected a single ledger entry, got %d", len(entries))
	}
}

func TestRecordAppliesRate(t *testing.T) {
	rate, _ := decimal.NewFromString("0.5")
	recorder, _, code := setupRecorder(t, rate)

	entry, _, err := recorder.Record(context.Background(), RecordInput{
		TrackingCode: code,
		PayerEmail:   "buyer@example.com",
		Amount:       decimal.NewFromInt(100),
		Reference:    "pay-rate",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !entry.Amount.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected 50 credited got %s", entry.Amount)
	}
	if !entry.AmountPaid.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected full sale amount retained got %s", entry.AmountPaid)
	}
}

func TestRecordRejectsUnknownTrackingCode(t *testing.T) {
	recorder, _, _ := setupRecorder(t, decimal.NewFromInt(1))
	_, _, err := recorder.Record(context.Background(), RecordInput{
		TrackingCode: "missing",
		PayerEmail:   "buyer@example.com",
		Amount:       decimal.NewFromInt(70),
		Reference:    "pay-unknown",
	})
	if !errors.Is(err, ErrUnknownTrackingCode) {
		t.Fatalf("expected ErrUnknownTrackingCode got %v", err)
	}
}

func TestRecordValidatesInput(t *testing.T) {
	recorder, store, code := setupRecorder(t, decimal.NewFromInt(1))
	ctx := context.Background()
	cases := []RecordInput{
		{TrackingCode: "", PayerEmail: "buyer@example.com", Amount: decimal.NewFromInt(70), Reference: "r1"},
		{TrackingCode: code, PayerEmail: "buyer@example.com", Amount: decimal.NewFromInt(70), Reference: ""},
		{TrackingCode: code, PayerEmail: "buyer@example.com", Amount: decimal.Zero, Reference: "r2"},
		{TrackingCode: code, PayerEmail: "buyer@example.com", Amount: decimal.NewFromInt(-70), Reference: "r3"},
		{TrackingCode: code, PayerEmail: "not-an-email", Amount: decimal.NewFromInt(70), Reference: "r4"},
		{TrackingCode: code, PayerEmail: "", Amount: decimal.NewFromInt(70), Reference: "r5"},
		{TrackingCode: code, PayerEmail: "   ", Amount: decimal.NewFromInt(70), Reference: "r6"},
	}
	for i, in := range cases {
		if _, _, err := recorder.Record(ctx, in); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("case %d: expected ErrInvalidInput got %v", i, err)
		}
	}
	entries, err := store.Commissions(ctx, affiliateIDFor(t, store, code))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("rejected input must not persist entries, found %d", len(entries))
	}
}

func affiliateIDFor(t *testing.T, store *ledger.Store, code string) uuid.UUID {
	t.Helper()
	link, err := store.LinkByTrackingCode(context.Background(), code)
	if err != nil {
		t.Fatalf("resolve link: %v", err)
	}
	return link.AffiliateID
}

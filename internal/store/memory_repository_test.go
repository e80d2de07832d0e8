package store

import (
	"context"
	"testing"
	"time"

	"github.com/bookpay/settlement-service/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Repository = (*MemoryRepository)(nil)
	_ Repository = (*PostgresRepository)(nil)
)

func TestMemoryRepository_LedgerIsUniqueOnReference(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	inserted, err := repo.InsertLedgerEntry(ctx, &domain.PaymentTransaction{PaystackReference: "ref_1", Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.InsertLedgerEntry(ctx, &domain.PaymentTransaction{PaystackReference: "ref_1", Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Len(t, repo.LedgerEntries(), 1)
}

func TestMemoryRepository_ClaimSettlementLifecycle(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	repo := NewMemoryRepository().WithClock(func() time.Time { return now })
	ctx := context.Background()
	req := domain.Settlement{Reference: "ref_claim", PaymentType: domain.PaymentTypeClientToBusiness}

	_, outcome, err := repo.ClaimSettlement(ctx, req, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimAcquired, outcome)

	_, outcome, err = repo.ClaimSettlement(ctx, req, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimInProgress, outcome, "live lease blocks a second claim")

	now = now.Add(2 * time.Minute)
	claimed, outcome, err := repo.ClaimSettlement(ctx, req, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimAcquired, outcome, "expired lease can be taken over")
	assert.Equal(t, 2, claimed.Attempts)

	require.NoError(t, repo.MarkSettlementStep(ctx, "ref_claim", domain.StepLedgerRecorded))
	require.NoError(t, repo.MarkSettlementStep(ctx, "ref_claim", domain.StepLedgerRecorded))
	require.NoError(t, repo.FinishSettlement(ctx, "ref_claim", domain.SettlementStatusCompleted, nil))

	claimed, outcome, err = repo.ClaimSettlement(ctx, req, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimCompleted, outcome)
	assert.Equal(t, []string{domain.StepLedgerRecorded}, claimed.CompletedSteps)
}

func TestMemoryRepository_RecordClientPaymentUpserts(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	businessID := uuid.New()
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	created, err := repo.RecordClientPayment(ctx, domain.Client{BusinessID: businessID, Name: "Ama", Email: "Ama@Example.com"}, decimal.NewFromInt(100), first)
	require.NoError(t, err)
	assert.Equal(t, "ama@example.com", created.Email)

	updated, err := repo.RecordClientPayment(ctx, domain.Client{BusinessID: businessID, Email: "ama@example.com"}, decimal.NewFromInt(50), first.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.True(t, decimal.NewFromInt(150).Equal(updated.TotalSpent))
	assert.Equal(t, first, *updated.LastBookingDate, "last booking date never moves backwards")
	assert.Len(t, repo.Clients(), 1)
}

func TestMemoryRepository_RecordClientPaymentByID(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	businessID := uuid.New()
	clientID := uuid.New()
	repo.SeedClient(domain.Client{ID: clientID, BusinessID: businessID, Email: "old@example.com", TotalSpent: decimal.NewFromInt(500)})

	updated, err := repo.RecordClientPaymentByID(ctx, businessID, clientID, decimal.NewFromInt(1000), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "1500", updated.TotalSpent.String())
	assert.Equal(t, domain.ClientStatusActive, updated.Status)

	_, err = repo.RecordClientPaymentByID(ctx, uuid.New(), clientID, decimal.NewFromInt(1), time.Now())
	assert.ErrorIs(t, err, ErrClientNotFound, "a client of another business is not credited")
	_, err = repo.RecordClientPaymentByID(ctx, businessID, uuid.New(), decimal.NewFromInt(1), time.Now())
	assert.ErrorIs(t, err, ErrClientNotFound)
}

func TestMemoryRepository_ConfirmBookingOnlyOnce(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	id := uuid.New()
	repo.SeedBooking(domain.Booking{ID: id, Status: domain.BookingStatusPending, PaymentStatus: domain.PaymentStatusPending})

	changed, err := repo.ConfirmBookingPayment(ctx, id, "ref_a")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.ConfirmBookingPayment(ctx, id, "ref_b")
	require.NoError(t, err)
	assert.False(t, changed)

	booking := repo.Booking(id)
	assert.Equal(t, domain.BookingStatusConfirmed, booking.Status)
	assert.Equal(t, "ref_a", *booking.PaymentReference)
}

func TestParseOriginList(t *testing.T) {
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, ParseOriginList(`["https://a.example/", " https://b.example"]`))
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, ParseOriginList(`"https://a.example,https://b.example"`))
	assert.Equal(t, []string{"https://a.example"}, ParseOriginList(`https://a.example`))
	assert.Nil(t, ParseOriginList("  "))
}

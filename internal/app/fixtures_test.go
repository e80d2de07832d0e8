package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bookpay/settlement-service/internal/domain"
	"github.com/bookpay/settlement-service/internal/store"
	"github.com/bookpay/settlement-service/pkg/paystackclient"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const testPaidAt = "2024-03-01T10:15:00Z"

type settlementFixture struct {
	repo       *store.MemoryRepository
	reconciler *Reconciler
	dispatcher *Dispatcher
	businessID uuid.UUID
	bookingID  uuid.UUID
}

func newSettlementFixture(t *testing.T) *settlementFixture {
	t.Helper()
	repo := store.NewMemoryRepository()
	logger := zap.NewNop()
	audit := NewAuditLogger(repo, logger)
	reconciler := NewReconciler(repo, nil, audit, logger, ReconcilerConfig{
		FeePercent: decimal.NewFromInt(DefaultPlatformFeePercent),
		Lease:      time.Minute,
	})
	return &settlementFixture{
		repo:       repo,
		reconciler: reconciler,
		dispatcher: NewDispatcher(reconciler, audit, logger, "GHS"),
		businessID: uuid.New(),
		bookingID:  uuid.New(),
	}
}

func (f *settlementFixture) seedPendingBooking(email string) {
	f.repo.SeedBusiness(domain.Business{ID: f.businessID, Name: "Glow Studio"})
	f.repo.SeedBooking(domain.Booking{
		ID:            f.bookingID,
		BusinessID:    f.businessID,
		Date:          "2024-03-02",
		Time:          "14:00:00",
		Status:        domain.BookingStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		TotalAmount:   decimal.NewFromInt(1000),
		ClientName:    "Ada Mensah",
		ClientEmail:   email,
	})
}

func (f *settlementFixture) clientCharge(reference string, amountMinor int64) domain.WebhookEvent {
	return domain.WebhookEvent{
		Event: domain.EventChargeSuccess,
		Data: domain.ChargeData{
			ID:        42,
			Reference: reference,
			Amount:    decimal.NewFromInt(amountMinor),
			Currency:  "GHS",
			Status:    "success",
			Channel:   "card",
			PaidAt:    testPaidAt,
			Customer:  domain.ChargeCustomer{Email: "payer@example.com"},
			Metadata: map[string]interface{}{
				"payment_type": domain.PaymentTypeClientToBusiness,
				"business_id":  f.businessID.String(),
				"booking_id":   f.bookingID.String(),
			},
		},
	}
}

func (f *settlementFixture) subscriptionCharge(reference, planType string, amountMinor int64) domain.WebhookEvent {
	return domain.WebhookEvent{
		Event: domain.EventChargeSuccess,
		Data: domain.ChargeData{
			Reference: reference,
			Amount:    decimal.NewFromInt(amountMinor),
			Currency:  "GHS",
			Status:    "success",
			Channel:   "mobile_money",
			PaidAt:    testPaidAt,
			Metadata: map[string]interface{}{
				"payment_type": domain.PaymentTypeSubscription,
				"business_id":  f.businessID.String(),
				"plan_type":    planType,
			},
		},
	}
}

type providerStub struct {
	initData     *paystackclient.InitializeData
	initErr      error
	initRequests []paystackclient.InitializeRequest

	verifyByRef map[string]*paystackclient.VerifyData
	verifyErr   error
	verifyCalls int
}

func (p *providerStub) InitializeTransaction(ctx context.Context, req paystackclient.InitializeRequest) (*paystackclient.InitializeData, error) {
	p.initRequests = append(p.initRequests, req)
	if p.initErr != nil {
		return nil, p.initErr
	}
	return p.initData, nil
}

func (p *providerStub) VerifyTransaction(ctx context.Context, reference string) (*paystackclient.VerifyData, error) {
	p.verifyCalls++
	if p.verifyErr != nil {
		return nil, p.verifyErr
	}
	data, ok := p.verifyByRef[reference]
	if !ok {
		return nil, &paystackclient.ErrorResponse{StatusCode: 404, Message: fmt.Sprintf("transaction %s not found", reference)}
	}
	return data, nil
}

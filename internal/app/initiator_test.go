package app

import (
	"context"
	"errors"
	"testing"

	"github.com/bookpay/settlement-service/internal/domain"
	"github.com/bookpay/settlement-service/internal/store"
	"github.com/bookpay/settlement-service/pkg/paystackclient"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestInitiator(repo store.Repository, provider PaymentProvider) *PaymentInitiator {
	return NewPaymentInitiator(repo, provider, zap.NewNop(), decimal.NewFromInt(DefaultPlatformFeePercent), "GHS", "https://app.example.com/payments/callback")
}

func validClientRequest() ClientPaymentRequest {
	return ClientPaymentRequest{
		ClientEmail:   " Ada@Example.com ",
		ClientPhone:   "+233201234567",
		BusinessID:    uuid.NewString(),
		BookingID:     uuid.NewString(),
		Amount:        decimal.RequireFromString("1000"),
		PaymentMethod: "mobile_money",
	}
}

func TestInitiateClientPayment_RecordsPendingTransaction(t *testing.T) {
	repo := store.NewMemoryRepository()
	provider := &providerStub{initData: &paystackclient.InitializeData{
		AuthorizationURL: "https://checkout.paystack.com/abc",
		AccessCode:       "abc",
		Reference:        "ref_init",
	}}
	req := validClientRequest()

	checkout, err := newTestInitiator(repo, provider).InitiateClientPayment(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.paystack.com/abc", checkout.AuthorizationURL)
	assert.Equal(t, "ref_init", checkout.Reference)
	assert.Equal(t, "abc", checkout.AccessCode)

	require.Len(t, provider.initRequests, 1)
	sent := provider.initRequests[0]
	assert.Equal(t, int64(100000), sent.Amount)
	assert.Equal(t, "GHS", sent.Currency)
	assert.Equal(t, "ada@example.com", sent.Email)
	assert.Equal(t, []string{"mobile_money"}, sent.Channels)
	assert.Equal(t, domain.PaymentTypeClientToBusiness, sent.Metadata["payment_type"])
	assert.Equal(t, req.BookingID, sent.Metadata["booking_id"])
	assert.Equal(t, "50.00", sent.Metadata["platform_fee"])
	assert.Equal(t, "950.00", sent.Metadata["business_amount"])

	txs := repo.ClientTransactions()
	require.Len(t, txs, 1)
	assert.Equal(t, domain.PaymentStatusPending, txs[0].Status)
	assert.Equal(t, "ref_init", txs[0].PaymentReference)
	assert.Equal(t, "50.00", txs[0].PlatformFee.StringFixed(2))
	assert.Equal(t, "950.00", txs[0].BusinessAmount.StringFixed(2))
	assert.Equal(t, "mobile_money", txs[0].PaymentMethod)
}

func TestInitiateClientPayment_ProviderFailureWritesNothing(t *testing.T) {
	repo := store.NewMemoryRepository()
	provider := &providerStub{initErr: &paystackclient.ErrorResponse{StatusCode: 400, Message: "Invalid key"}}

	_, err := newTestInitiator(repo, provider).InitiateClientPayment(context.Background(), validClientRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProviderFailure))
	assert.Equal(t, 0, repo.Writes())
}

func TestInitiateClientPayment_PersistenceFailureStillReturnsCheckout(t *testing.T) {
	repo := store.NewMemoryRepository()
	repo.FailNext("CreateClientTransaction", errors.New("insert failed"))
	provider := &providerStub{initData: &paystackclient.InitializeData{
		AuthorizationURL: "https://checkout.paystack.com/xyz",
		Reference:        "ref_unsaved",
	}}

	checkout, err := newTestInitiator(repo, provider).InitiateClientPayment(context.Background(), validClientRequest())
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.paystack.com/xyz", checkout.AuthorizationURL)
	assert.Empty(t, repo.ClientTransactions())
}

func TestInitiateClientPayment_RejectsNonPositiveAmount(t *testing.T) {
	repo := store.NewMemoryRepository()
	provider := &providerStub{}
	req := validClientRequest()
	req.Amount = decimal.Zero

	_, err := newTestInitiator(repo, provider).InitiateClientPayment(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Empty(t, provider.initRequests)
}

func TestInitiateSubscriptionPayment(t *testing.T) {
	repo := store.NewMemoryRepository()
	provider := &providerStub{initData: &paystackclient.InitializeData{
		AuthorizationURL: "https://checkout.paystack.com/sub",
		Reference:        "ref_sub_init",
	}}
	businessID := uuid.NewString()

	checkout, err := newTestInitiator(repo, provider).InitiateSubscriptionPayment(context.Background(), SubscriptionPaymentRequest{
		Amount:        decimal.RequireFromString("249.99"),
		PlanID:        "Starter",
		BusinessID:    businessID,
		CustomerEmail: "owner@glow.example.com",
		Currency:      "ngn",
	})
	require.NoError(t, err)
	assert.Equal(t, "ref_sub_init", checkout.Reference)

	require.Len(t, provider.initRequests, 1)
	sent := provider.initRequests[0]
	assert.Equal(t, int64(24999), sent.Amount)
	assert.Equal(t, "NGN", sent.Currency)
	assert.Equal(t, "starter", sent.Metadata["plan_type"])
	assert.Equal(t, domain.PaymentTypeSubscription, sent.Metadata["payment_type"])

	payments := repo.SubscriptionPayments()
	require.Len(t, payments, 1)
	assert.Equal(t, domain.PaymentStatusPending, payments[0].Status)
	assert.Equal(t, "paystack", payments[0].Provider)
	assert.Equal(t, businessID, payments[0].BusinessID.String())
}

func TestInitiateSubscriptionPayment_UnknownPlanSkipsProvider(t *testing.T) {
	repo := store.NewMemoryRepository()
	provider := &providerStub{}

	_, err := newTestInitiator(repo, provider).InitiateSubscriptionPayment(context.Background(), SubscriptionPaymentRequest{
		Amount:        decimal.NewFromInt(100),
		PlanID:        "platinum",
		BusinessID:    uuid.NewString(),
		CustomerEmail: "owner@glow.example.com",
	})
	assert.ErrorIs(t, err, ErrUnknownPlan)
	assert.Empty(t, provider.initRequests)
	assert.Equal(t, 0, repo.Writes())
}

package app

import (
	"context"
	"errors"
	"testing"

	"github.com/bookpay/settlement-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatch_UnhandledEventsChangeNothing(t *testing.T) {
	f := newSettlementFixture(t)
	f.seedPendingBooking("ada@example.com")

	transfer := domain.WebhookEvent{Event: "transfer.success", Data: domain.ChargeData{Reference: "trf_1"}}
	giftCard := f.clientCharge("ref_gift", 1000)
	giftCard.Data.Metadata["payment_type"] = "gift_card"

	for _, event := range []domain.WebhookEvent{transfer, giftCard} {
		outcome, err := f.dispatcher.Dispatch(context.Background(), event)
		require.NoError(t, err)
		assert.Equal(t, OutcomeUnhandled, outcome.Kind)
		assert.Nil(t, outcome.Settlement)
	}

	assert.Equal(t, 0, f.repo.Writes())
	assert.Equal(t, 2, f.repo.SecurityEventCount(domain.SecurityEventUnhandledEvent))
}

func TestDispatch_MissingMetadataIsRejected(t *testing.T) {
	f := newSettlementFixture(t)
	event := f.clientCharge("ref_missing", 1000)
	delete(event.Data.Metadata, "booking_id")
	event.Data.Metadata["business_id"] = "not-a-uuid"

	_, err := f.dispatcher.Dispatch(context.Background(), event)
	var missing *domain.MissingFieldsError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, domain.PaymentTypeClientToBusiness, missing.PaymentType)
	assert.Equal(t, []string{"booking_id"}, missing.Fields)
	assert.Equal(t, []string{"business_id"}, missing.Malformed)
	assert.Equal(t, 0, f.repo.Writes())
}

func TestDispatch_SubscriptionAcceptsPlanID(t *testing.T) {
	f := newSettlementFixture(t)
	f.repo.SeedBusiness(domain.Business{ID: f.businessID})
	event := f.subscriptionCharge("ref_plan_id", "", 5000)
	delete(event.Data.Metadata, "plan_type")
	event.Data.Metadata["plan_id"] = "starter"

	outcome, err := f.dispatcher.Dispatch(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, outcome.Kind)

	sub, err := f.repo.FindSubscriptionByBusinessID(context.Background(), f.businessID)
	require.NoError(t, err)
	assert.Equal(t, "starter", sub.PlanType)
	assert.Equal(t, 3, sub.StaffLimit)
}

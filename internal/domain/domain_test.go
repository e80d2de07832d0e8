package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirmTransition_OnlyMovesForward(t *testing.T) {
	cases := []struct {
		name        string
		booking     Booking
		wantStatus  BookingStatus
		wantPayment PaymentStatus
		wantChanged bool
	}{
		{"pending booking", Booking{Status: BookingStatusPending, PaymentStatus: PaymentStatusPending}, BookingStatusConfirmed, PaymentStatusCompleted, true},
		{"already settled", Booking{Status: BookingStatusConfirmed, PaymentStatus: PaymentStatusCompleted}, BookingStatusConfirmed, PaymentStatusCompleted, false},
		{"completed booking keeps status", Booking{Status: BookingStatusCompleted, PaymentStatus: PaymentStatusCompleted}, BookingStatusCompleted, PaymentStatusCompleted, false},
		{"cancelled booking records payment", Booking{Status: BookingStatusCancelled, PaymentStatus: PaymentStatusFailed}, BookingStatusCancelled, PaymentStatusCompleted, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payment, changed := tc.booking.ConfirmTransition()
			assert.Equal(t, tc.wantStatus, status)
			assert.Equal(t, tc.wantPayment, payment)
			assert.Equal(t, tc.wantChanged, changed)
		})
	}
}

func TestLookupPlan(t *testing.T) {
	limits, ok := LookupPlan(" Professional ")
	require.True(t, ok)
	assert.Equal(t, PlanLimits{StaffLimit: 10, BookingsLimit: 1000}, limits)

	limits, ok = LookupPlan("enterprise")
	require.True(t, ok)
	assert.Equal(t, Unlimited, limits.StaffLimit)

	_, ok = LookupPlan("platinum")
	assert.False(t, ok)
}

func TestSettlement_ClientVariant(t *testing.T) {
	businessID := uuid.New()
	bookingID := uuid.New()
	event := WebhookEvent{
		Event: EventChargeSuccess,
		Data: ChargeData{
			Reference: "ref_1",
			Amount:    decimal.NewFromInt(100000),
			Metadata: map[string]interface{}{
				"payment_type": "client_to_business",
				"business_id":  businessID.String(),
				"booking_id":   bookingID.String(),
			},
		},
	}

	settlement, err := event.Settlement("GHS")
	require.NoError(t, err)
	client, ok := settlement.(ClientChargeSettlement)
	require.True(t, ok)
	assert.Equal(t, "ref_1", client.Reference)
	assert.Equal(t, bookingID, client.BookingID)
	assert.True(t, decimal.NewFromInt(1000).Equal(client.Amount))
	assert.Equal(t, "GHS", client.Currency)
}

func TestSettlement_MissingMetadataFields(t *testing.T) {
	event := WebhookEvent{
		Event: EventChargeSuccess,
		Data: ChargeData{
			Reference: "ref_2",
			Metadata:  map[string]interface{}{"payment_type": "client_to_business", "business_id": uuid.NewString()},
		},
	}

	_, err := event.Settlement("GHS")
	var missing *MissingFieldsError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"booking_id"}, missing.Fields)
}

func TestSettlement_MalformedIdentifiers(t *testing.T) {
	event := WebhookEvent{
		Event: EventChargeSuccess,
		Data: ChargeData{
			Reference: "ref_3",
			Metadata:  map[string]interface{}{"payment_type": "client_to_business", "business_id": "biz1", "booking_id": "B1"},
		},
	}

	_, err := event.Settlement("GHS")
	var invalid *MissingFieldsError
	require.True(t, errors.As(err, &invalid))
	assert.Empty(t, invalid.Fields)
	assert.Equal(t, []string{"booking_id", "business_id"}, invalid.Malformed)
	assert.Equal(t, []string{
		"data.metadata.booking_id must be a UUID",
		"data.metadata.business_id must be a UUID",
	}, invalid.Problems())
	assert.NotContains(t, err.Error(), "missing")
}

func TestSettlement_UnhandledEvents(t *testing.T) {
	for _, event := range []WebhookEvent{
		{Event: "transfer.success", Data: ChargeData{Metadata: map[string]interface{}{"payment_type": "subscription"}}},
		{Event: EventChargeSuccess, Data: ChargeData{Metadata: map[string]interface{}{"payment_type": "donation"}}},
	} {
		settlement, err := event.Settlement("GHS")
		assert.NoError(t, err)
		assert.Nil(t, settlement)
	}
}

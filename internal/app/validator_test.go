package app

import (
	"errors"
	"testing"

	"github.com/bookpay/settlement-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeWebhookEvent_InvalidJSON(t *testing.T) {
	_, _, err := DecodeWebhookEvent([]byte(`{"event":`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidJSON))
}

func TestDecodeWebhookEvent_CollectsEveryProblem(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		errors []string
	}{
		{
			name:   "not an object",
			body:   `[1,2,3]`,
			errors: []string{"payload must be a JSON object"},
		},
		{
			name:   "missing event and data",
			body:   `{}`,
			errors: []string{"event is required", "data is required"},
		},
		{
			name:   "wrong types",
			body:   `{"event":7,"data":"x"}`,
			errors: []string{"event must be a string", "data must be an object"},
		},
		{
			name: "charge success without identifiers",
			body: `{"event":"charge.success","data":{"amount":"1000"}}`,
			errors: []string{
				"data.reference is required",
				"data.metadata is required",
				"data.amount must be a number",
			},
		},
		{
			name:   "charge success with empty reference",
			body:   `{"event":"charge.success","data":{"reference":"","metadata":[],"amount":100}}`,
			errors: []string{"data.reference must not be empty", "data.metadata must be an object"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, result, err := DecodeWebhookEvent([]byte(tc.body))
			require.NoError(t, err)
			assert.False(t, result.IsValid)
			assert.Equal(t, tc.errors, result.Errors)
		})
	}
}

func TestDecodeWebhookEvent_ValidChargeSuccess(t *testing.T) {
	body := `{"event":"charge.success","data":{"id":9,"reference":"ref_ok","amount":150050,"currency":"GHS",
		"paid_at":"2024-03-01T10:15:00.000Z","customer":{"email":"ada@example.com"},
		"metadata":{"payment_type":"client_to_business","business_id":"b","booking_id":"k"}}}`

	event, result, err := DecodeWebhookEvent([]byte(body))
	require.NoError(t, err)
	require.True(t, result.IsValid, result.Errors)
	assert.Equal(t, domain.EventChargeSuccess, event.Event)
	assert.Equal(t, "ref_ok", event.Data.Reference)
	assert.Equal(t, "1500.50", event.Data.MajorAmount().StringFixed(2))
	assert.Equal(t, domain.PaymentTypeClientToBusiness, event.Data.PaymentType())
	assert.Equal(t, 2024, event.Data.PaidTime().Year())
}

func TestDecodeWebhookEvent_OtherEventsOnlyNeedTheEnvelope(t *testing.T) {
	event, result, err := DecodeWebhookEvent([]byte(`{"event":"transfer.success","data":{"amount":"not-a-number"}}`))
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.Equal(t, "transfer.success", event.Event)
}

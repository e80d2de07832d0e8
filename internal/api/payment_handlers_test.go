package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bookpay/settlement-service/internal/app"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type paymentServiceStub struct {
	checkout *app.Checkout
	err      error

	clientRequests       []app.ClientPaymentRequest
	subscriptionRequests []app.SubscriptionPaymentRequest
}

func (s *paymentServiceStub) InitiateClientPayment(ctx context.Context, req app.ClientPaymentRequest) (*app.Checkout, error) {
	s.clientRequests = append(s.clientRequests, req)
	return s.checkout, s.err
}

func (s *paymentServiceStub) InitiateSubscriptionPayment(ctx context.Context, req app.SubscriptionPaymentRequest) (*app.Checkout, error) {
	s.subscriptionRequests = append(s.subscriptionRequests, req)
	return s.checkout, s.err
}

type verifierStub struct {
	verification *app.Verification
	err          error
	references   []string
}

func (s *verifierStub) VerifyAndSettle(ctx context.Context, reference string) (*app.Verification, error) {
	s.references = append(s.references, reference)
	return s.verification, s.err
}

func newPaymentRouter(payments PaymentService, verifier PaymentVerifier, jwtSecret string) http.Handler {
	return NewRouter(RouterConfig{
		Payments:      NewPaymentHandlers(payments, verifier, zap.NewNop()),
		AuthJWTSecret: jwtSecret,
		Logger:        zap.NewNop(),
	})
}

const validClientPayment = `{
	"clientEmail": "ada@example.com",
	"businessId": "7b0b6f2c-3c1e-4d7e-9a53-2f4c1f0e9b11",
	"bookingId": "0f7c5f7e-2d4a-4c33-8b8e-5d1e6a9c3b22",
	"amount": 1000,
	"paymentMethod": "mobile_money"
}`

func postJSON(handler http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestInitiateClientPayment_ReturnsCheckout(t *testing.T) {
	payments := &paymentServiceStub{checkout: &app.Checkout{
		AuthorizationURL: "https://checkout.paystack.com/abc",
		Reference:        "ref_checkout",
		AccessCode:       "abc",
	}}
	router := newPaymentRouter(payments, &verifierStub{}, "")

	rr := postJSON(router, "/payments/client", validClientPayment)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decodeBody(t, rr)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "https://checkout.paystack.com/abc", body["authorization_url"])
	assert.Equal(t, "ref_checkout", body["reference"])

	require.Len(t, payments.clientRequests, 1)
	assert.True(t, payments.clientRequests[0].Amount.Equal(decimal.NewFromInt(1000)))
}

func TestInitiateClientPayment_ValidationFailure(t *testing.T) {
	payments := &paymentServiceStub{}
	router := newPaymentRouter(payments, &verifierStub{}, "")

	rr := postJSON(router, "/payments/client", `{"businessId":"not-a-uuid","amount":10,"paymentMethod":"cash"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, "Validation failed", body["error"])
	fields, ok := body["fields"].(map[string]interface{})
	require.True(t, ok, "fields missing from %v", body)
	assert.Equal(t, "required", fields["clientEmail"])
	assert.Equal(t, "uuid", fields["businessId"])
	assert.Equal(t, "oneof", fields["paymentMethod"])
	assert.Empty(t, payments.clientRequests)
}

func TestInitiatePayment_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "provider down", err: fmt.Errorf("%w: timeout", app.ErrProviderFailure), wantStatus: http.StatusBadGateway},
		{name: "bad amount", err: app.ErrInvalidAmount, wantStatus: http.StatusBadRequest},
		{name: "unknown plan", err: fmt.Errorf("%w: %q", app.ErrUnknownPlan, "platinum"), wantStatus: http.StatusBadRequest},
		{name: "unexpected", err: fmt.Errorf("boom"), wantStatus: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newPaymentRouter(&paymentServiceStub{err: tt.err}, &verifierStub{}, "")
			rr := postJSON(router, "/payments/client", validClientPayment)
			if rr.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestInitiateSubscriptionPayment_ReturnsCheckout(t *testing.T) {
	payments := &paymentServiceStub{checkout: &app.Checkout{AuthorizationURL: "https://checkout.paystack.com/sub", Reference: "sub_ref"}}
	router := newPaymentRouter(payments, &verifierStub{}, "")

	rr := postJSON(router, "/payments/subscription", `{
		"planId": "starter",
		"businessId": "7b0b6f2c-3c1e-4d7e-9a53-2f4c1f0e9b11",
		"customerEmail": "owner@glow.example",
		"amount": 249.99
	}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Len(t, payments.subscriptionRequests, 1)
	assert.Equal(t, "starter", payments.subscriptionRequests[0].PlanID)
}

func TestVerifyPayment(t *testing.T) {
	verifier := &verifierStub{verification: &app.Verification{
		Reference:      "ref_verify",
		ProviderStatus: "success",
		Amount:         decimal.NewFromInt(1000),
		Currency:       "GHS",
		Outcome:        app.OutcomeSettled,
	}}
	router := newPaymentRouter(&paymentServiceStub{}, verifier, "")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/payments/verify/ref_verify", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decodeBody(t, rr)
	assert.Equal(t, "settled", body["outcome"])
	assert.Equal(t, "success", body["provider_status"])
	assert.Equal(t, []string{"ref_verify"}, verifier.references)
}

func TestPaymentRoutesRequireToken(t *testing.T) {
	payments := &paymentServiceStub{}
	router := newPaymentRouter(payments, &verifierStub{}, testJWTSecret)

	rr := postJSON(router, "/payments/client", validClientPayment)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, payments.clientRequests)
}

func TestHealth(t *testing.T) {
	router := NewRouter(RouterConfig{Logger: zap.NewNop()})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

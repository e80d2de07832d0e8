package app

import (
	"context"
	"fmt"

	"github.com/bookpay/settlement-service/internal/domain"
	"github.com/bookpay/settlement-service/pkg/paystackclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Verification is the provider's view of a charge plus what settlement did with it.
type Verification struct {
	Reference      string          `json:"reference"`
	ProviderStatus string          `json:"provider_status"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Outcome        OutcomeKind     `json:"outcome,omitempty"`
}

// PaymentVerifier settles charges by asking Paystack for their state rather than waiting
// for a webhook.
type PaymentVerifier struct {
	provider   PaymentProvider
	dispatcher *Dispatcher
	logger     *zap.Logger
}

func NewPaymentVerifier(provider PaymentProvider, dispatcher *Dispatcher, logger *zap.Logger) *PaymentVerifier {
	return &PaymentVerifier{provider: provider, dispatcher: dispatcher, logger: logger.Named("payment_verifier")}
}

// ChargeEventFromVerification rebuilds the webhook event Paystack would have sent for a
// verified transaction.
func ChargeEventFromVerification(data paystackclient.VerifyData) domain.WebhookEvent {
	event := domain.WebhookEvent{
		Event: "charge." + data.Status,
		Data: domain.ChargeData{
			ID:        data.ID,
			Reference: data.Reference,
			Amount:    decimal.NewFromInt(data.Amount),
			Currency:  data.Currency,
			Status:    data.Status,
			Channel:   data.Channel,
			PaidAt:    data.PaidAt,
			Customer:  domain.ChargeCustomer{Email: data.Customer.Email, Phone: data.Customer.Phone},
			Metadata:  data.Metadata,
		},
	}
	if data.Succeeded() {
		event.Event = domain.EventChargeSuccess
	}
	return event
}

// VerifyAndSettle checks a reference with Paystack and settles it when the charge
// succeeded. Settlement is idempotent, so polling a settled reference is harmless.
func (v *PaymentVerifier) VerifyAndSettle(ctx context.Context, reference string) (*Verification, error) {
	data, err := v.provider.VerifyTransaction(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}

	verification := &Verification{
		Reference:      data.Reference,
		ProviderStatus: data.Status,
		Amount:         FromMinorUnits(data.Amount),
		Currency:       data.Currency,
	}
	if !data.Succeeded() {
		v.logger.Info("charge not successful yet", zap.String("reference", reference), zap.String("status", data.Status))
		return verification, nil
	}

	outcome, err := v.dispatcher.Dispatch(ctx, ChargeEventFromVerification(*data))
	if err != nil {
		return verification, err
	}
	verification.Outcome = outcome.Kind
	return verification, nil
}

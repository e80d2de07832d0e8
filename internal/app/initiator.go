/**
 * @description
 * Payment initiation: turns a checkout request from the booking UI into a Paystack
 * transaction and a pending record keyed by the reference Paystack returns.
 *
 * The provider call always happens first. If it fails nothing is written and the error
 * goes back to the caller. If the provider succeeds but the pending row cannot be written,
 * the failure is logged and the checkout URL is still returned; settlement later creates
 * the missing row from the booking.
 *
 * @dependencies
 * - github.com/shopspring/decimal: fee split and minor-unit conversion.
 * - pkg/paystackclient: provider request/response types.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bookpay/settlement-service/internal/domain"
	"github.com/bookpay/settlement-service/internal/store"
	"github.com/bookpay/settlement-service/pkg/paystackclient"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrProviderFailure wraps every error returned by the payment provider.
var ErrProviderFailure = errors.New("payment provider request failed")

// PaymentProvider is the subset of the Paystack API the service calls.
type PaymentProvider interface {
	InitializeTransaction(ctx context.Context, req paystackclient.InitializeRequest) (*paystackclient.InitializeData, error)
	VerifyTransaction(ctx context.Context, reference string) (*paystackclient.VerifyData, error)
}

// ClientPaymentRequest is a client paying a business for a booking.
type ClientPaymentRequest struct {
	ClientEmail   string          `json:"clientEmail" validate:"required,email"`
	ClientPhone   string          `json:"clientPhone,omitempty" validate:"omitempty,min=7,max=20"`
	BusinessID    string          `json:"businessId" validate:"required,uuid"`
	BookingID     string          `json:"bookingId" validate:"required,uuid"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"paymentMethod" validate:"omitempty,oneof=card mobile_money"`
	Currency      string          `json:"currency,omitempty" validate:"omitempty,len=3"`
}

// SubscriptionPaymentRequest is a business buying a plan.
type SubscriptionPaymentRequest struct {
	Phone         string          `json:"phone,omitempty" validate:"omitempty,min=7,max=20"`
	Amount        decimal.Decimal `json:"amount"`
	PlanID        string          `json:"planId" validate:"required"`
	BusinessID    string          `json:"businessId" validate:"required,uuid"`
	CustomerEmail string          `json:"customerEmail" validate:"required,email"`
	Provider      string          `json:"provider,omitempty"`
	Currency      string          `json:"currency,omitempty" validate:"omitempty,len=3"`
}

// Checkout is what the UI needs to send the payer to Paystack.
type Checkout struct {
	AuthorizationURL string `json:"authorization_url"`
	Reference        string `json:"reference"`
	AccessCode       string `json:"access_code"`
}

// PaymentInitiator starts provider charges and records them as pending.
type PaymentInitiator struct {
	repo            store.Repository
	provider        PaymentProvider
	logger          *zap.Logger
	feePercent      decimal.Decimal
	defaultCurrency string
	callbackURL     string
}

func NewPaymentInitiator(repo store.Repository, provider PaymentProvider, logger *zap.Logger, feePercent decimal.Decimal, defaultCurrency, callbackURL string) *PaymentInitiator {
	return &PaymentInitiator{
		repo:            repo,
		provider:        provider,
		logger:          logger.Named("payment_initiator"),
		feePercent:      feePercent,
		defaultCurrency: defaultCurrency,
		callbackURL:     callbackURL,
	}
}

func (p *PaymentInitiator) currency(requested string) string {
	if c := strings.ToUpper(strings.TrimSpace(requested)); c != "" {
		return c
	}
	return p.defaultCurrency
}

func channelsFor(paymentMethod string) []string {
	switch strings.ToLower(strings.TrimSpace(paymentMethod)) {
	case "mobile_money":
		return []string{"mobile_money"}
	case "card":
		return []string{"card"}
	default:
		return nil
	}
}

// InitiateClientPayment charges a client for a booking, 5% of which goes to the platform.
func (p *PaymentInitiator) InitiateClientPayment(ctx context.Context, req ClientPaymentRequest) (*Checkout, error) {
	amount := req.Amount.Round(2)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	businessID, err := uuid.Parse(req.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("invalid business id: %w", err)
	}
	bookingID, err := uuid.Parse(req.BookingID)
	if err != nil {
		return nil, fmt.Errorf("invalid booking id: %w", err)
	}

	platformFee, businessAmount := SplitPlatformFee(amount, p.feePercent)
	currency := p.currency(req.Currency)
	email := strings.ToLower(strings.TrimSpace(req.ClientEmail))
	paymentMethod := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if paymentMethod == "" {
		paymentMethod = "card"
	}

	data, err := p.provider.InitializeTransaction(ctx, paystackclient.InitializeRequest{
		Email:       email,
		Amount:      ToMinorUnits(amount),
		Currency:    currency,
		CallbackURL: p.callbackURL,
		Channels:    channelsFor(paymentMethod),
		Metadata: map[string]interface{}{
			"payment_type":    domain.PaymentTypeClientToBusiness,
			"business_id":     businessID.String(),
			"booking_id":      bookingID.String(),
			"client_email":    email,
			"client_phone":    strings.TrimSpace(req.ClientPhone),
			"platform_fee":    platformFee.StringFixed(2),
			"business_amount": businessAmount.StringFixed(2),
		},
	})
	if err != nil {
		p.logger.Warn("client charge initialization failed", zap.String("booking_id", bookingID.String()), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}

	var phone *string
	if trimmed := strings.TrimSpace(req.ClientPhone); trimmed != "" {
		phone = &trimmed
	}
	record := &domain.ClientBusinessTransaction{
		BookingID:        bookingID,
		BusinessID:       businessID,
		ClientEmail:      email,
		ClientPhone:      phone,
		Amount:           amount,
		PlatformFee:      platformFee,
		BusinessAmount:   businessAmount,
		Currency:         currency,
		PaymentMethod:    paymentMethod,
		PaymentReference: data.Reference,
		Status:           domain.PaymentStatusPending,
	}
	if err := p.repo.CreateClientTransaction(ctx, record); err != nil {
		p.logger.Error("failed to record pending client transaction",
			zap.String("reference", data.Reference),
			zap.String("booking_id", bookingID.String()),
			zap.Error(err),
		)
	}

	p.logger.Info("client payment initialized",
		zap.String("reference", data.Reference),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("platform_fee", platformFee.StringFixed(2)),
	)
	return &Checkout{AuthorizationURL: data.AuthorizationURL, Reference: data.Reference, AccessCode: data.AccessCode}, nil
}

// InitiateSubscriptionPayment charges a business the full plan price.
func (p *PaymentInitiator) InitiateSubscriptionPayment(ctx context.Context, req SubscriptionPaymentRequest) (*Checkout, error) {
	amount := req.Amount.Round(2)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	businessID, err := uuid.Parse(req.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("invalid business id: %w", err)
	}
	planType := strings.ToLower(strings.TrimSpace(req.PlanID))
	if _, ok := domain.LookupPlan(planType); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlan, req.PlanID)
	}

	currency := p.currency(req.Currency)
	email := strings.ToLower(strings.TrimSpace(req.CustomerEmail))
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider == "" {
		provider = "paystack"
	}

	data, err := p.provider.InitializeTransaction(ctx, paystackclient.InitializeRequest{
		Email:       email,
		Amount:      ToMinorUnits(amount),
		Currency:    currency,
		CallbackURL: p.callbackURL,
		Metadata: map[string]interface{}{
			"payment_type": domain.PaymentTypeSubscription,
			"business_id":  businessID.String(),
			"plan_type":    planType,
			"phone":        strings.TrimSpace(req.Phone),
		},
	})
	if err != nil {
		p.logger.Warn("subscription charge initialization failed", zap.String("business_id", businessID.String()), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}

	if err := p.repo.CreateSubscriptionPayment(ctx, &domain.SubscriptionPayment{
		BusinessID:        businessID,
		PlanType:          planType,
		Amount:            amount,
		Currency:          currency,
		Provider:          provider,
		CustomerEmail:     email,
		PaystackReference: data.Reference,
		Status:            domain.PaymentStatusPending,
	}); err != nil {
		p.logger.Error("failed to record pending subscription payment",
			zap.String("reference", data.Reference),
			zap.String("business_id", businessID.String()),
			zap.Error(err),
		)
	}

	p.logger.Info("subscription payment initialized", zap.String("reference", data.Reference), zap.String("plan_type", planType))
	return &Checkout{AuthorizationURL: data.AuthorizationURL, Reference: data.Reference, AccessCode: data.AccessCode}, nil
}

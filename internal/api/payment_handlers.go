/**
 * @description
 * Payment initiation and verification endpoints used by the booking UI. Request bodies are
 * validated with go-playground/validator before anything reaches the provider.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/bookpay/settlement-service/internal/app"
	"github.com/bookpay/settlement-service/internal/domain"
	"github.com/bookpay/settlement-service/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// PaymentService starts provider checkouts.
type PaymentService interface {
	InitiateClientPayment(ctx context.Context, req app.ClientPaymentRequest) (*app.Checkout, error)
	InitiateSubscriptionPayment(ctx context.Context, req app.SubscriptionPaymentRequest) (*app.Checkout, error)
}

// PaymentVerifier checks a reference with the provider and settles it when paid.
type PaymentVerifier interface {
	VerifyAndSettle(ctx context.Context, reference string) (*app.Verification, error)
}

// PaymentHandlers serves the /payments routes.
type PaymentHandlers struct {
	payments PaymentService
	verifier PaymentVerifier
	validate *validator.Validate
	logger   *zap.Logger
}

func NewPaymentHandlers(payments PaymentService, verifier PaymentVerifier, logger *zap.Logger) *PaymentHandlers {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &PaymentHandlers{
		payments: payments,
		verifier: verifier,
		validate: validate,
		logger:   logger.Named("payments_api"),
	}
}

type checkoutResponse struct {
	Success bool `json:"success"`
	app.Checkout
}

type verifyResponse struct {
	Success bool `json:"success"`
	*app.Verification
}

func (h *PaymentHandlers) handleInitiateClientPayment(w http.ResponseWriter, r *http.Request) {
	var req app.ClientPaymentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	checkout, err := h.payments.InitiateClientPayment(r.Context(), req)
	if err != nil {
		h.respondPaymentError(w, r, err, zap.String("booking_id", req.BookingID))
		return
	}
	respondWithJSON(w, http.StatusOK, checkoutResponse{Success: true, Checkout: *checkout})
}

func (h *PaymentHandlers) handleInitiateSubscriptionPayment(w http.ResponseWriter, r *http.Request) {
	var req app.SubscriptionPaymentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	checkout, err := h.payments.InitiateSubscriptionPayment(r.Context(), req)
	if err != nil {
		h.respondPaymentError(w, r, err, zap.String("business_id", req.BusinessID))
		return
	}
	respondWithJSON(w, http.StatusOK, checkoutResponse{Success: true, Checkout: *checkout})
}

func (h *PaymentHandlers) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	reference := strings.TrimSpace(chi.URLParam(r, "reference"))
	if reference == "" {
		respondWithError(w, http.StatusBadRequest, "Payment reference is required")
		return
	}

	verification, err := h.verifier.VerifyAndSettle(r.Context(), reference)
	if err != nil {
		h.respondPaymentError(w, r, err, zap.String("reference", reference))
		return
	}
	respondWithJSON(w, http.StatusOK, verifyResponse{Success: true, Verification: verification})
}

// decodeAndValidate writes the 400 response itself and reports false when the body is
// unusable.
func (h *PaymentHandlers) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "Validation failed", Fields: validationErrors(err)})
		return false
	}
	return true
}

func (h *PaymentHandlers) respondPaymentError(w http.ResponseWriter, r *http.Request, err error, field zap.Field) {
	log := h.logger.With(field)
	if userID, ok := UserFromContext(r.Context()); ok {
		log = log.With(zap.String("user_id", userID))
	}

	var missing *domain.MissingFieldsError
	switch {
	case errors.Is(err, app.ErrInvalidAmount), errors.Is(err, app.ErrUnknownPlan):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &missing):
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, store.ErrBookingNotFound), errors.Is(err, store.ErrBusinessNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrProviderFailure):
		log.Warn("payment provider request failed", zap.Error(err))
		respondWithError(w, http.StatusBadGateway, "Payment provider unavailable, please try again")
	default:
		log.Error("payment request failed", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// validationErrors maps each failing field to the rule it broke.
func validationErrors(err error) map[string]string {
	fields := make(map[string]string)
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		fields["request"] = err.Error()
		return fields
	}
	for _, fe := range validationErrs {
		fields[fe.Field()] = fe.Tag()
	}
	return fields
}

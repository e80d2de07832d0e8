/**
 * @description
 * The Paystack webhook endpoint. Every delivery passes the same gates in order:
 * configuration, signature, rate limit, JSON parse, structural validation and then
 * dispatch. Each rejection answers with its own status code and leaves one security event
 * behind; nothing is written to settlement state before dispatch.
 *
 * @dependencies
 * - internal/app: validation, dispatch and the audit logger.
 * - pkg/signature, pkg/middleware: HMAC verification and the request limiter.
 * - go.uber.org/zap: structured logging.
 */
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/bookpay/settlement-service/internal/app"
	"github.com/bookpay/settlement-service/internal/domain"
	"github.com/bookpay/settlement-service/internal/store"
	"github.com/bookpay/settlement-service/pkg/middleware"
	"github.com/bookpay/settlement-service/pkg/signature"
	"go.uber.org/zap"
)

const maxWebhookBodyBytes = 1 << 20

// EventDispatcher settles a verified, validated webhook event.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event domain.WebhookEvent) (app.Outcome, error)
}

// WebhookConfig carries what the handler needs from configuration.
type WebhookConfig struct {
	Secret         string
	MissingSecrets []string
}

// WebhookHandler serves POST deliveries from Paystack.
type WebhookHandler struct {
	secret     string
	missing    []string
	limiter    middleware.Limiter
	dispatcher EventDispatcher
	audit      *app.AuditLogger
	logger     *zap.Logger
}

func NewWebhookHandler(cfg WebhookConfig, limiter middleware.Limiter, dispatcher EventDispatcher, audit *app.AuditLogger, logger *zap.Logger) *WebhookHandler {
	if limiter == nil {
		limiter = middleware.NewWindowLimiter(middleware.DefaultMaxRequests, middleware.DefaultWindow)
	}
	return &WebhookHandler{
		secret:     cfg.Secret,
		missing:    append([]string(nil), cfg.MissingSecrets...),
		limiter:    limiter,
		dispatcher: dispatcher,
		audit:      audit,
		logger:     logger.Named("webhook"),
	}
}

type webhookAck struct {
	Received bool   `json:"received"`
	Status   string `json:"status"`
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ip := middleware.ClientIP(r)
	log := h.logger.With(zap.String("ip", ip))

	if len(h.missing) > 0 || h.secret == "" {
		log.Error("webhook rejected, service is missing configuration", zap.Strings("missing", h.missing))
		h.audit.Log(ctx, domain.SecurityEventConfigError, "webhook configuration incomplete", domain.SeverityCritical, map[string]interface{}{
			"missing": h.missing,
		})
		respondWithError(w, http.StatusInternalServerError, "Server configuration error")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		log.Warn("failed to read webhook body", zap.Error(err))
		h.audit.Log(ctx, domain.SecurityEventInvalidJSON, "webhook body could not be read", domain.SeverityWarning, map[string]interface{}{
			"ip":    ip,
			"error": err.Error(),
		})
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	header := strings.TrimSpace(r.Header.Get(signature.HeaderName))
	if header == "" {
		log.Warn("webhook without signature")
		h.audit.Log(ctx, domain.SecurityEventMissingSignature, "webhook received without signature", domain.SeverityWarning, map[string]interface{}{
			"ip":         ip,
			"user_agent": r.UserAgent(),
		})
		respondWithError(w, http.StatusUnauthorized, "Missing signature")
		return
	}
	if !signature.Verify(body, header, h.secret) {
		log.Warn("webhook signature mismatch")
		h.audit.Log(ctx, domain.SecurityEventInvalidSignature, "webhook signature verification failed", domain.SeverityError, map[string]interface{}{
			"ip":          ip,
			"user_agent":  r.UserAgent(),
			"body_length": len(body),
		})
		respondWithError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	if !h.limiter.Allow(ctx, ip) {
		log.Warn("webhook rate limit exceeded")
		h.audit.Log(ctx, domain.SecurityEventRateLimitExceeded, "webhook rate limit exceeded", domain.SeverityWarning, map[string]interface{}{
			"ip": ip,
		})
		respondWithError(w, http.StatusTooManyRequests, "Too many requests")
		return
	}

	event, validation, err := app.DecodeWebhookEvent(body)
	if err != nil {
		log.Warn("webhook body is not valid JSON", zap.Error(err))
		h.audit.Log(ctx, domain.SecurityEventInvalidJSON, "webhook body is not valid JSON", domain.SeverityWarning, map[string]interface{}{
			"ip":    ip,
			"error": err.Error(),
		})
		respondWithError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if !validation.IsValid {
		h.rejectInvalid(ctx, w, ip, validation.Errors)
		return
	}

	outcome, err := h.dispatcher.Dispatch(ctx, event)
	if err != nil {
		h.respondDispatchError(ctx, w, log, ip, event, err)
		return
	}

	log.Info("webhook processed",
		zap.String("event", event.Event),
		zap.String("reference", event.Data.Reference),
		zap.String("outcome", string(outcome.Kind)),
	)
	respondWithJSON(w, http.StatusOK, webhookAck{Received: true, Status: "success"})
}

func (h *WebhookHandler) rejectInvalid(ctx context.Context, w http.ResponseWriter, ip string, problems []string) {
	h.logger.Warn("webhook payload failed validation", zap.String("ip", ip), zap.Strings("errors", problems))
	h.audit.Log(ctx, domain.SecurityEventValidationFailed, "webhook payload failed validation", domain.SeverityWarning, map[string]interface{}{
		"ip":     ip,
		"errors": problems,
	})
	respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid payload", Details: problems})
}

func (h *WebhookHandler) respondDispatchError(ctx context.Context, w http.ResponseWriter, log *zap.Logger, ip string, event domain.WebhookEvent, err error) {
	log = log.With(zap.String("event", event.Event), zap.String("reference", event.Data.Reference))

	var missing *domain.MissingFieldsError
	switch {
	case errors.As(err, &missing):
		h.rejectInvalid(ctx, w, ip, missing.Problems())
	case errors.Is(err, app.ErrUnknownPlan):
		h.rejectInvalid(ctx, w, ip, []string{err.Error()})
	case errors.Is(err, store.ErrBookingNotFound):
		log.Warn("webhook references an unknown booking")
		respondWithError(w, http.StatusNotFound, "Booking not found")
	case errors.Is(err, store.ErrBusinessNotFound):
		log.Warn("webhook references an unknown business")
		respondWithError(w, http.StatusNotFound, "Business not found")
	default:
		log.Error("webhook settlement failed", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Security event types written to the audit log.
const (
	SecurityEventMissingSignature     = "MISSING_WEBHOOK_SIGNATURE"
	SecurityEventInvalidSignature     = "INVALID_WEBHOOK_SIGNATURE"
	SecurityEventRateLimitExceeded    = "RATE_LIMIT_EXCEEDED"
	SecurityEventInvalidJSON          = "WEBHOOK_INVALID_JSON"
	SecurityEventValidationFailed     = "WEBHOOK_VALIDATION_FAILED"
	SecurityEventUnhandledEvent       = "UNHANDLED_WEBHOOK_EVENT"
	SecurityEventClientPaymentSuccess = "CLIENT_PAYMENT_SUCCESS"
	SecurityEventWebhookProcessed     = "WEBHOOK_PROCESSED_SUCCESS"
	SecurityEventConfigError          = "WEBHOOK_CONFIG_ERROR"
	SecurityEventDuplicateWebhook     = "DUPLICATE_WEBHOOK_EVENT"
	SecurityEventSettlementStepFailed = "SETTLEMENT_STEP_FAILED"
)

// Severity grades a security event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// SecurityEvent is an append-only audit row.
type SecurityEvent struct {
	ID          uuid.UUID              `json:"id"`
	EventType   string                 `json:"event_type"`
	Description string                 `json:"description"`
	Severity    Severity               `json:"severity"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// Routing keys of the events published after a settlement completes.
const (
	RoutingKeyPaymentSettled        = "payment.settled"
	RoutingKeySubscriptionActivated = "subscription.activated"
)

// PaymentSettledEvent is published once a client-to-business charge has settled.
type PaymentSettledEvent struct {
	Reference      string          `json:"reference"`
	BusinessID     uuid.UUID       `json:"business_id"`
	BookingID      uuid.UUID       `json:"booking_id"`
	ClientEmail    string          `json:"client_email,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	PlatformFee    decimal.Decimal `json:"platform_fee"`
	BusinessAmount decimal.Decimal `json:"business_amount"`
	Currency       string          `json:"currency"`
	SettledAt      time.Time       `json:"settled_at"`
}

// SubscriptionActivatedEvent is published once a subscription charge has settled.
type SubscriptionActivatedEvent struct {
	Reference        string          `json:"reference"`
	BusinessID       uuid.UUID       `json:"business_id"`
	PlanType         string          `json:"plan_type"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	CurrentPeriodEnd time.Time       `json:"current_period_end"`
}

// OutboxMessage is an event waiting to be published to the broker.
type OutboxMessage struct {
	ID         int64     `json:"id"`
	Exchange   string    `json:"exchange"`
	RoutingKey string    `json:"routing_key"`
	Payload    []byte    `json:"payload"`
	Attempts   int       `json:"attempts"`
	CreatedAt  time.Time `json:"created_at"`
}

package app

import (
	"context"
	"encoding/json"

	"github.com/bookpay/settlement-service/internal/domain"
	"go.uber.org/zap"
)

// OutcomeKind is how the dispatcher disposed of an event.
type OutcomeKind string

const (
	OutcomeSettled    OutcomeKind = "settled"
	OutcomePartial    OutcomeKind = "partial"
	OutcomeDuplicate  OutcomeKind = "duplicate"
	OutcomeInProgress OutcomeKind = "in_progress"
	OutcomeUnhandled  OutcomeKind = "unhandled"
)

// Outcome is the result of dispatching one verified, validated event.
type Outcome struct {
	Kind       OutcomeKind
	Settlement *SettlementResult
}

// Dispatcher routes webhook events on event name and metadata payment_type.
type Dispatcher struct {
	settler         Settler
	audit           *AuditLogger
	logger          *zap.Logger
	defaultCurrency string
}

func NewDispatcher(settler Settler, audit *AuditLogger, logger *zap.Logger, defaultCurrency string) *Dispatcher {
	return &Dispatcher{
		settler:         settler,
		audit:           audit,
		logger:          logger.Named("dispatcher"),
		defaultCurrency: defaultCurrency,
	}
}

// Dispatch settles charge.success events tagged client_to_business or subscription. Any
// other event is acknowledged as unhandled and changes nothing. A recognised event missing
// the identifiers its path needs returns *domain.MissingFieldsError.
func (d *Dispatcher) Dispatch(ctx context.Context, event domain.WebhookEvent) (Outcome, error) {
	settlement, err := event.Settlement(d.defaultCurrency)
	if err != nil {
		return Outcome{}, err
	}
	if settlement == nil {
		d.logger.Info("unhandled webhook event", zap.String("event", event.Event), zap.String("payment_type", event.Data.PaymentType()))
		d.audit.Log(ctx, domain.SecurityEventUnhandledEvent, "webhook event not handled", domain.SeverityInfo, map[string]interface{}{
			"event":        event.Event,
			"payment_type": event.Data.PaymentType(),
			"reference":    event.Data.Reference,
		})
		return Outcome{Kind: OutcomeUnhandled}, nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return Outcome{}, err
	}

	result, err := d.settler.Settle(ctx, settlement, payload)
	if err != nil {
		return Outcome{}, err
	}

	kind := OutcomeSettled
	switch result.Status {
	case SettlementPartial:
		kind = OutcomePartial
	case SettlementDuplicate:
		kind = OutcomeDuplicate
	case SettlementInProgress:
		kind = OutcomeInProgress
	}
	return Outcome{Kind: kind, Settlement: result}, nil
}

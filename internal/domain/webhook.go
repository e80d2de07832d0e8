/**
 * @description
 * Paystack webhook payloads and the settlement variants decoded from them.
 *
 * A verified `charge.success` delivery carries `data.metadata.payment_type`, which selects
 * one of two settlement variants. Everything else is an unhandled event: accepted, logged
 * and left alone.
 */
package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventChargeSuccess = "charge.success"

	PaymentTypeClientToBusiness = "client_to_business"
	PaymentTypeSubscription     = "subscription"
)

// WebhookEvent is the envelope of every Paystack webhook delivery.
type WebhookEvent struct {
	Event string     `json:"event"`
	Data  ChargeData `json:"data"`
}

// ChargeData is the `data` object of a charge event. Amount is in minor units.
type ChargeData struct {
	ID        int64                  `json:"id,omitempty"`
	Reference string                 `json:"reference"`
	Amount    decimal.Decimal        `json:"amount"`
	Currency  string                 `json:"currency,omitempty"`
	Status    string                 `json:"status,omitempty"`
	Channel   string                 `json:"channel,omitempty"`
	PaidAt    string                 `json:"paid_at,omitempty"`
	Customer  ChargeCustomer         `json:"customer"`
	Metadata  map[string]interface{} `json:"metadata"`
}

type ChargeCustomer struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// MetadataString returns a metadata value as a trimmed string. Non-string scalars are
// formatted; missing keys and nulls yield "".
func (d ChargeData) MetadataString(key string) string {
	if d.Metadata == nil {
		return ""
	}
	v, ok := d.Metadata[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return decimal.NewFromFloat(t).String()
	case json.Number:
		return t.String()
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// PaymentType is the metadata tag that selects the settlement path.
func (d ChargeData) PaymentType() string {
	return strings.ToLower(d.MetadataString("payment_type"))
}

// PaidTime parses paid_at, falling back to the current time when it is absent or
// unparseable.
func (d ChargeData) PaidTime() time.Time {
	if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(d.PaidAt)); err == nil {
		return t.UTC()
	}
	return time.Now().UTC()
}

// MajorAmount converts the minor-unit charge amount to major units.
func (d ChargeData) MajorAmount() decimal.Decimal {
	return d.Amount.Div(decimal.NewFromInt(100)).Round(2)
}

// ChargeSettlement is the decoded variant of a settle-able charge.
type ChargeSettlement interface {
	SettlementReference() string
	SettlementType() string
}

// ClientChargeSettlement settles a client paying a business for a booking.
type ClientChargeSettlement struct {
	Reference     string
	BusinessID    uuid.UUID
	BookingID     uuid.UUID
	ClientID      *uuid.UUID
	Amount        decimal.Decimal
	Currency      string
	Channel       string
	CustomerEmail string
	PaidAt        time.Time
}

func (s ClientChargeSettlement) SettlementReference() string { return s.Reference }
func (s ClientChargeSettlement) SettlementType() string      { return PaymentTypeClientToBusiness }

// SubscriptionChargeSettlement settles a business buying a plan.
type SubscriptionChargeSettlement struct {
	Reference     string
	BusinessID    uuid.UUID
	PlanType      string
	Amount        decimal.Decimal
	Currency      string
	Channel       string
	CustomerEmail string
	PaidAt        time.Time
}

func (s SubscriptionChargeSettlement) SettlementReference() string { return s.Reference }
func (s SubscriptionChargeSettlement) SettlementType() string      { return PaymentTypeSubscription }

// MissingFieldsError lists metadata fields a settlement path requires but did not get.
// Fields were absent; Malformed were present but not a UUID.
type MissingFieldsError struct {
	PaymentType string
	Fields      []string
	Malformed   []string
}

func (e *MissingFieldsError) Error() string {
	var parts []string
	if len(e.Fields) > 0 {
		parts = append(parts, "missing metadata: "+strings.Join(e.Fields, ", "))
	}
	if len(e.Malformed) > 0 {
		parts = append(parts, "metadata is not a UUID: "+strings.Join(e.Malformed, ", "))
	}
	return fmt.Sprintf("%s payment has %s", e.PaymentType, strings.Join(parts, "; "))
}

// Problems renders one message per field, addressed by its JSON path.
func (e *MissingFieldsError) Problems() []string {
	problems := make([]string, 0, len(e.Fields)+len(e.Malformed))
	for _, field := range e.Fields {
		problems = append(problems, "data.metadata."+field+" is required")
	}
	for _, field := range e.Malformed {
		problems = append(problems, "data.metadata."+field+" must be a UUID")
	}
	return problems
}

func (e *MissingFieldsError) empty() bool {
	return len(e.Fields) == 0 && len(e.Malformed) == 0
}

// Settlement decodes the event into its settlement variant. It returns (nil, nil) for
// events this service does not settle, and a *MissingFieldsError when a recognised
// variant lacks the identifiers its path needs.
func (e WebhookEvent) Settlement(fallbackCurrency string) (ChargeSettlement, error) {
	if e.Event != EventChargeSuccess {
		return nil, nil
	}
	d := e.Data
	currency := strings.ToUpper(strings.TrimSpace(d.Currency))
	if currency == "" {
		currency = fallbackCurrency
	}
	paidAt := d.PaidTime()

	switch d.PaymentType() {
	case PaymentTypeClientToBusiness:
		invalid := &MissingFieldsError{PaymentType: PaymentTypeClientToBusiness}
		bookingID := d.parseID("booking_id", invalid)
		businessID := d.parseID("business_id", invalid)
		if !invalid.empty() {
			return nil, invalid
		}
		s := ClientChargeSettlement{
			Reference:     d.Reference,
			BusinessID:    businessID,
			BookingID:     bookingID,
			Amount:        d.MajorAmount(),
			Currency:      currency,
			Channel:       d.Channel,
			CustomerEmail: d.Customer.Email,
			PaidAt:        paidAt,
		}
		if raw := d.MetadataString("client_id"); raw != "" {
			if id, err := uuid.Parse(raw); err == nil {
				s.ClientID = &id
			}
		}
		return s, nil
	case PaymentTypeSubscription:
		invalid := &MissingFieldsError{PaymentType: PaymentTypeSubscription}
		businessID := d.parseID("business_id", invalid)
		planType := d.MetadataString("plan_type")
		if planType == "" {
			planType = d.MetadataString("plan_id")
		}
		if planType == "" {
			invalid.Fields = append(invalid.Fields, "plan_type")
		}
		if !invalid.empty() {
			return nil, invalid
		}
		return SubscriptionChargeSettlement{
			Reference:     d.Reference,
			BusinessID:    businessID,
			PlanType:      strings.ToLower(planType),
			Amount:        d.MajorAmount(),
			Currency:      currency,
			Channel:       d.Channel,
			CustomerEmail: d.Customer.Email,
			PaidAt:        paidAt,
		}, nil
	default:
		return nil, nil
	}
}

// parseID reads a UUID from metadata, recording key on invalid when it is absent or
// malformed.
func (d ChargeData) parseID(key string, invalid *MissingFieldsError) uuid.UUID {
	raw := d.MetadataString(key)
	if raw == "" {
		invalid.Fields = append(invalid.Fields, key)
		return uuid.Nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		invalid.Malformed = append(invalid.Malformed, key)
		return uuid.Nil
	}
	return id
}

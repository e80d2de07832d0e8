package domain

import (
	"time"
)

// SettlementStatus is the state of a settlement journal row.
type SettlementStatus string

const (
	SettlementStatusProcessing SettlementStatus = "processing"
	SettlementStatusPartial    SettlementStatus = "partial"
	SettlementStatusCompleted  SettlementStatus = "completed"
)

// Settlement steps, in execution order per path.
const (
	StepBookingConfirmed       = "booking_confirmed"
	StepTransactionCompleted   = "transaction_completed"
	StepLedgerRecorded         = "ledger_recorded"
	StepRevenueUpdated         = "revenue_updated"
	StepClientUpdated          = "client_updated"
	StepSubscriptionUpserted   = "subscription_upserted"
	StepSubscriptionPaymentSet = "subscription_payment_completed"
	StepEventEnqueued          = "event_enqueued"
)

// Settlement is the journal row that makes one provider reference settle at most once.
// Payload holds the raw charge data so the sweep can resume without the provider.
type Settlement struct {
	Reference      string           `json:"reference"`
	PaymentType    string           `json:"payment_type"`
	Payload        []byte           `json:"payload"`
	Status         SettlementStatus `json:"status"`
	CompletedSteps []string         `json:"completed_steps"`
	Attempts       int              `json:"attempts"`
	LastError      *string          `json:"last_error,omitempty"`
	LeaseUntil     *time.Time       `json:"lease_until,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// HasStep reports whether a step already ran to completion.
func (s Settlement) HasStep(step string) bool {
	for _, done := range s.CompletedSteps {
		if done == step {
			return true
		}
	}
	return false
}

// ClaimOutcome describes what a settlement claim found.
type ClaimOutcome string

const (
	// ClaimAcquired means the caller owns the settlement and must run its pending steps.
	ClaimAcquired ClaimOutcome = "acquired"
	// ClaimCompleted means the reference already settled; the delivery is a replay.
	ClaimCompleted ClaimOutcome = "completed"
	// ClaimInProgress means another worker holds an unexpired lease.
	ClaimInProgress ClaimOutcome = "in_progress"
)

package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const SubscriptionStatusActive = "active"

// Unlimited marks a plan limit with no ceiling.
const Unlimited = -1

// PlanLimits are the quotas a subscription plan grants a business.
type PlanLimits struct {
	StaffLimit    int
	BookingsLimit int
}

var plans = map[string]PlanLimits{
	"starter":      {StaffLimit: 3, BookingsLimit: 100},
	"professional": {StaffLimit: 10, BookingsLimit: 1000},
	"enterprise":   {StaffLimit: Unlimited, BookingsLimit: Unlimited},
}

// LookupPlan maps a plan identifier to its limits. Identifiers are case-insensitive.
func LookupPlan(planType string) (PlanLimits, bool) {
	limits, ok := plans[strings.ToLower(strings.TrimSpace(planType))]
	return limits, ok
}

// Subscription is the business-plan record, one per business.
type Subscription struct {
	ID               uuid.UUID `json:"id"`
	BusinessID       uuid.UUID `json:"business_id"`
	PlanType         string    `json:"plan_type"`
	Status           string    `json:"status"`
	CurrentPeriodEnd time.Time `json:"current_period_end"`
	StaffLimit       int       `json:"staff_limit"`
	BookingsLimit    int       `json:"bookings_limit"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// SubscriptionPayment is the pending checkout row written when a subscription charge is
// initialized, keyed by the provider reference.
type SubscriptionPayment struct {
	ID                uuid.UUID       `json:"id"`
	BusinessID        uuid.UUID       `json:"business_id"`
	PlanType          string          `json:"plan_type"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Provider          string          `json:"provider"`
	CustomerEmail     string          `json:"customer_email"`
	PaystackReference string          `json:"paystack_reference"`
	Status            PaymentStatus   `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

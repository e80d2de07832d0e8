/**
 * @description
 * This file defines the persisted records the settlement pipeline reads and writes:
 * bookings, client-to-business transactions, ledger rows, clients and subscriptions.
 *
 * Money is carried as decimal.Decimal in major currency units everywhere except on the
 * wire to Paystack, which speaks minor units (pesewas/kobo).
 *
 * @dependencies
 * - github.com/shopspring/decimal: exact money arithmetic.
 * - github.com/google/uuid: record identifiers.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
)

// PaymentStatus is shared by bookings and client-to-business transactions.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	// PaymentStatusNeedsReview marks a charge Paystack reports as paid that cannot be
	// settled automatically.
	PaymentStatusNeedsReview PaymentStatus = "needs_review"
)

// TransactionType tags a ledger row with the settlement path that produced it.
type TransactionType string

const (
	TransactionTypeClientToBusiness TransactionType = "client_to_business"
	TransactionTypeSubscription     TransactionType = "subscription"
)

// Booking is created by the booking UI as pending/pending. Status, PaymentStatus and
// PaymentReference are owned by settlement.
type Booking struct {
	ID               uuid.UUID       `json:"id"`
	BusinessID       uuid.UUID       `json:"business_id"`
	ClientID         *uuid.UUID      `json:"client_id,omitempty"`
	ServiceID        *uuid.UUID      `json:"service_id,omitempty"`
	Date             string          `json:"date"`
	Time             string          `json:"time"`
	Status           BookingStatus   `json:"status"`
	PaymentStatus    PaymentStatus   `json:"payment_status"`
	PaymentReference *string         `json:"payment_reference,omitempty"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	ClientName       string          `json:"client_name"`
	ClientEmail      string          `json:"client_email"`
	ClientPhone      *string         `json:"client_phone,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// ConfirmTransition returns the status pair a successful settlement moves the booking to.
// Bookings only move forward: a cancelled or completed booking keeps its status, and a
// payment that already completed stays completed.
func (b Booking) ConfirmTransition() (BookingStatus, PaymentStatus, bool) {
	status := b.Status
	if status == BookingStatusPending {
		status = BookingStatusConfirmed
	}
	payment := b.PaymentStatus
	if payment != PaymentStatusCompleted {
		payment = PaymentStatusCompleted
	}
	changed := status != b.Status || payment != b.PaymentStatus
	return status, payment, changed
}

// ClientBusinessTransaction is written as pending by the payment initiator and completed
// by settlement.
type ClientBusinessTransaction struct {
	ID                uuid.UUID       `json:"id"`
	BookingID         uuid.UUID       `json:"booking_id"`
	BusinessID        uuid.UUID       `json:"business_id"`
	ClientEmail       string          `json:"client_email"`
	ClientPhone       *string         `json:"client_phone,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	PlatformFee       decimal.Decimal `json:"platform_fee"`
	BusinessAmount    decimal.Decimal `json:"business_amount"`
	Currency          string          `json:"currency"`
	PaymentMethod     string          `json:"payment_method"`
	PaymentReference  string          `json:"payment_reference"`
	PaystackReference *string         `json:"paystack_reference,omitempty"`
	Status            PaymentStatus   `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// PaymentTransaction is an append-only ledger row. One row exists per settled provider
// reference.
type PaymentTransaction struct {
	ID                uuid.UUID              `json:"id"`
	BusinessID        uuid.UUID              `json:"business_id"`
	Amount            decimal.Decimal        `json:"amount"`
	Currency          string                 `json:"currency"`
	Status            string                 `json:"status"`
	PaymentMethod     string                 `json:"payment_method"`
	PaystackReference string                 `json:"paystack_reference"`
	TransactionType   TransactionType        `json:"transaction_type"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
}

// ClientStatusActive is the status settlement gives every paying client.
const ClientStatusActive = "active"

// Client is a business's customer record. Settlement finds it by id, or by business and
// email when the booking names no client.
type Client struct {
	ID              uuid.UUID       `json:"id"`
	BusinessID      uuid.UUID       `json:"business_id"`
	Name            string          `json:"name"`
	Email           string          `json:"email"`
	Phone           *string         `json:"phone,omitempty"`
	Status          string          `json:"status"`
	TotalSpent      decimal.Decimal `json:"total_spent"`
	LastBookingDate *time.Time      `json:"last_booking_date,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Business is the tenant a booking or subscription belongs to.
type Business struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// RevenueEntry is one aggregation bucket of settled revenue for a business.
type RevenueEntry struct {
	BusinessID    uuid.UUID       `json:"business_id"`
	Period        time.Time       `json:"period"`
	GrossAmount   decimal.Decimal `json:"gross_amount"`
	PlatformFees  decimal.Decimal `json:"platform_fees"`
	NetAmount     decimal.Decimal `json:"net_amount"`
	PaymentCount  int             `json:"payment_count"`
	LastReference string          `json:"last_reference"`
}

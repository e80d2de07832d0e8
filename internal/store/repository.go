/**
 * @description
 * This file defines the `Repository` interface, the contract for every data access
 * operation the settlement service needs. Business logic depends on this interface only;
 * PostgresRepository backs it in production and MemoryRepository backs it in tests and
 * local runs without a database.
 *
 * @dependencies
 * - github.com/google/uuid: record identifiers.
 * - internal/domain: the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/bookpay/settlement-service/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrBookingNotFound      = errors.New("booking not found")
	ErrBusinessNotFound     = errors.New("business not found")
	ErrTransactionNotFound  = errors.New("client transaction not found")
	ErrSettlementNotFound   = errors.New("settlement not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrClientNotFound       = errors.New("client not found")
	ErrDuplicateReference   = errors.New("payment reference already exists")
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Booking and business methods
	FindBookingByID(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error)
	// ConfirmBookingPayment moves a booking forward to confirmed/completed and stamps the
	// provider reference. It reports false when the payment was already completed.
	ConfirmBookingPayment(ctx context.Context, bookingID uuid.UUID, reference string) (bool, error)
	FindBusinessByID(ctx context.Context, businessID uuid.UUID) (*domain.Business, error)

	// Client-to-business transaction methods
	CreateClientTransaction(ctx context.Context, tx *domain.ClientBusinessTransaction) error
	FindClientTransactionByReference(ctx context.Context, paymentReference string) (*domain.ClientBusinessTransaction, error)
	FindClientTransactionByBookingID(ctx context.Context, bookingID uuid.UUID) (*domain.ClientBusinessTransaction, error)
	CompleteClientTransaction(ctx context.Context, transactionID uuid.UUID, paystackReference string) (bool, error)
	// FailClientTransaction marks a pending transaction failed. Completed rows are untouched.
	FailClientTransaction(ctx context.Context, transactionID uuid.UUID) (bool, error)
	// FlagClientTransactionForReview moves a pending transaction to needs_review, taking
	// it out of the stale pending set.
	FlagClientTransactionForReview(ctx context.Context, transactionID uuid.UUID) (bool, error)
	ListStalePendingClientTransactions(ctx context.Context, createdBefore time.Time, limit int) ([]domain.ClientBusinessTransaction, error)

	// Ledger and revenue methods
	// InsertLedgerEntry appends a ledger row. It reports false, without error, when a row
	// for the same provider reference already exists.
	InsertLedgerEntry(ctx context.Context, entry *domain.PaymentTransaction) (bool, error)
	AddBusinessRevenue(ctx context.Context, entry domain.RevenueEntry) error

	// Client methods
	// RecordClientPayment adds amount to the client's total spend, marking them active,
	// and creates the client from the given record when none exists for the business
	// and email.
	RecordClientPayment(ctx context.Context, client domain.Client, amount decimal.Decimal, bookedAt time.Time) (*domain.Client, error)
	// RecordClientPaymentByID does the same for an existing client of the business,
	// returning ErrClientNotFound when there is no such row.
	RecordClientPaymentByID(ctx context.Context, businessID, clientID uuid.UUID, amount decimal.Decimal, bookedAt time.Time) (*domain.Client, error)

	// Subscription methods
	UpsertSubscription(ctx context.Context, sub *domain.Subscription) error
	FindSubscriptionByBusinessID(ctx context.Context, businessID uuid.UUID) (*domain.Subscription, error)
	CreateSubscriptionPayment(ctx context.Context, payment *domain.SubscriptionPayment) error
	CompleteSubscriptionPayment(ctx context.Context, paystackReference string) (bool, error)

	// Settlement journal methods
	ClaimSettlement(ctx context.Context, settlement domain.Settlement, lease time.Duration) (*domain.Settlement, domain.ClaimOutcome, error)
	MarkSettlementStep(ctx context.Context, reference string, step string) error
	FinishSettlement(ctx context.Context, reference string, status domain.SettlementStatus, lastError *string) error
	FindSettlement(ctx context.Context, reference string) (*domain.Settlement, error)
	ListResumableSettlements(ctx context.Context, limit int) ([]domain.Settlement, error)

	// Outbox methods
	EnqueueOutboxEvent(ctx context.Context, exchange, routingKey string, payload interface{}) error
	ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]domain.OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, id int64) error
	MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error

	// Audit and runtime configuration methods
	InsertSecurityEvent(ctx context.Context, event *domain.SecurityEvent) error
	GetAllowedOrigins(ctx context.Context) ([]string, error)
}

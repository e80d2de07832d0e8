/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface. It
 * contains the queries for bookings, client-to-business transactions, the payment ledger,
 * clients, subscriptions, revenue aggregation, the settlement journal, the event outbox,
 * security events and runtime configuration.
 *
 * Idempotency is enforced in SQL where it can be: the ledger is unique on
 * paystack_reference, booking and transaction updates only move forward, and settlement
 * claims are a single upsert.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bookpay/settlement-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// FindBookingByID retrieves a booking with its denormalized client fields.
func (r *PostgresRepository) FindBookingByID(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	var b domain.Booking
	query := `
		SELECT id, business_id, client_id, service_id, date::text, time::text, status, payment_status,
			payment_reference, total_amount, COALESCE(client_name, ''), COALESCE(client_email, ''),
			client_phone, created_at, updated_at
		FROM bookings
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, bookingID).Scan(
		&b.ID, &b.BusinessID, &b.ClientID, &b.ServiceID, &b.Date, &b.Time, &b.Status, &b.PaymentStatus,
		&b.PaymentReference, &b.TotalAmount, &b.ClientName, &b.ClientEmail,
		&b.ClientPhone, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return &b, nil
}

// ConfirmBookingPayment only touches bookings whose payment has not completed yet, and only
// promotes the booking status out of pending.
func (r *PostgresRepository) ConfirmBookingPayment(ctx context.Context, bookingID uuid.UUID, reference string) (bool, error) {
	query := `
		UPDATE bookings
		SET status = CASE WHEN status = 'pending' THEN 'confirmed' ELSE status END,
			payment_status = 'completed',
			payment_reference = $2,
			updated_at = NOW()
		WHERE id = $1 AND payment_status <> 'completed'
	`
	tag, err := r.db.Exec(ctx, query, bookingID, reference)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) FindBusinessByID(ctx context.Context, businessID uuid.UUID) (*domain.Business, error) {
	var b domain.Business
	err := r.db.QueryRow(ctx, `SELECT id, COALESCE(name, ''), COALESCE(email, '') FROM businesses WHERE id = $1`, businessID).
		Scan(&b.ID, &b.Name, &b.Email)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrBusinessNotFound
		}
		return nil, err
	}
	return &b, nil
}

// CreateClientTransaction inserts a client-to-business transaction.
func (r *PostgresRepository) CreateClientTransaction(ctx context.Context, tx *domain.ClientBusinessTransaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	query := `
		INSERT INTO client_business_transactions (
			id, booking_id, business_id, client_email, client_phone, amount, platform_fee,
			business_amount, currency, payment_method, payment_reference, paystack_reference, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		tx.ID, tx.BookingID, tx.BusinessID, tx.ClientEmail, tx.ClientPhone, tx.Amount, tx.PlatformFee,
		tx.BusinessAmount, tx.Currency, tx.PaymentMethod, tx.PaymentReference, tx.PaystackReference, tx.Status,
	).Scan(&tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateReference
		}
		return err
	}
	return nil
}

const clientTransactionColumns = `
	id, booking_id, business_id, client_email, client_phone, amount, platform_fee, business_amount,
	currency, COALESCE(payment_method, ''), payment_reference, paystack_reference, status, created_at, updated_at
`

func scanClientTransaction(row pgx.Row) (*domain.ClientBusinessTransaction, error) {
	var tx domain.ClientBusinessTransaction
	err := row.Scan(
		&tx.ID, &tx.BookingID, &tx.BusinessID, &tx.ClientEmail, &tx.ClientPhone, &tx.Amount, &tx.PlatformFee, &tx.BusinessAmount,
		&tx.Currency, &tx.PaymentMethod, &tx.PaymentReference, &tx.PaystackReference, &tx.Status, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// FindClientTransactionByReference looks a transaction up by the reference Paystack issued
// at checkout.
func (r *PostgresRepository) FindClientTransactionByReference(ctx context.Context, paymentReference string) (*domain.ClientBusinessTransaction, error) {
	query := `SELECT ` + clientTransactionColumns + `
		FROM client_business_transactions
		WHERE payment_reference = $1 OR paystack_reference = $1
		LIMIT 1`
	tx, err := scanClientTransaction(r.db.QueryRow(ctx, query, paymentReference))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return tx, nil
}

// FindClientTransactionByBookingID returns the most recent transaction for a booking.
func (r *PostgresRepository) FindClientTransactionByBookingID(ctx context.Context, bookingID uuid.UUID) (*domain.ClientBusinessTransaction, error) {
	query := `SELECT ` + clientTransactionColumns + `
		FROM client_business_transactions
		WHERE booking_id = $1
		ORDER BY created_at DESC
		LIMIT 1`
	tx, err := scanClientTransaction(r.db.QueryRow(ctx, query, bookingID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return tx, nil
}

func (r *PostgresRepository) CompleteClientTransaction(ctx context.Context, transactionID uuid.UUID, paystackReference string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE client_business_transactions
		SET status = 'completed', paystack_reference = $2, updated_at = NOW()
		WHERE id = $1 AND status <> 'completed'
	`, transactionID, paystackReference)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) FailClientTransaction(ctx context.Context, transactionID uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE client_business_transactions
		SET status = 'failed', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, transactionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) FlagClientTransactionForReview(ctx context.Context, transactionID uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE client_business_transactions
		SET status = 'needs_review', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, transactionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListStalePendingClientTransactions returns pending transactions created before the cutoff,
// oldest first.
func (r *PostgresRepository) ListStalePendingClientTransactions(ctx context.Context, createdBefore time.Time, limit int) ([]domain.ClientBusinessTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + clientTransactionColumns + `
		FROM client_business_transactions
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2`
	rows, err := r.db.Query(ctx, query, createdBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ClientBusinessTransaction
	for rows.Next() {
		tx, err := scanClientTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tx)
	}
	return out, rows.Err()
}

// InsertLedgerEntry relies on the unique index on paystack_reference.
func (r *PostgresRepository) InsertLedgerEntry(ctx context.Context, entry *domain.PaymentTransaction) (bool, error) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return false, fmt.Errorf("failed to marshal ledger metadata: %w", err)
	}
	tag, err := r.db.Exec(ctx, `
		INSERT INTO payment_transactions (
			id, business_id, amount, currency, status, payment_method, paystack_reference, transaction_type, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb)
		ON CONFLICT (paystack_reference) DO NOTHING
	`, entry.ID, entry.BusinessID, entry.Amount, entry.Currency, entry.Status, entry.PaymentMethod,
		entry.PaystackReference, entry.TransactionType, string(metadata))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// AddBusinessRevenue folds one settled payment into the business's daily revenue bucket.
func (r *PostgresRepository) AddBusinessRevenue(ctx context.Context, entry domain.RevenueEntry) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO business_revenue (business_id, period, gross_amount, platform_fees, net_amount, payment_count, last_reference)
		VALUES ($1, $2::date, $3, $4, $5, $6, $7)
		ON CONFLICT (business_id, period) DO UPDATE
		SET gross_amount = business_revenue.gross_amount + EXCLUDED.gross_amount,
			platform_fees = business_revenue.platform_fees + EXCLUDED.platform_fees,
			net_amount = business_revenue.net_amount + EXCLUDED.net_amount,
			payment_count = business_revenue.payment_count + EXCLUDED.payment_count,
			last_reference = EXCLUDED.last_reference,
			updated_at = NOW()
	`, entry.BusinessID, entry.Period, entry.GrossAmount, entry.PlatformFees, entry.NetAmount, entry.PaymentCount, entry.LastReference)
	return err
}

// RecordClientPayment upserts on (business_id, email). Emails are stored lowercased.
func (r *PostgresRepository) RecordClientPayment(ctx context.Context, client domain.Client, amount decimal.Decimal, bookedAt time.Time) (*domain.Client, error) {
	if client.ID == uuid.Nil {
		client.ID = uuid.New()
	}
	var out domain.Client
	err := r.db.QueryRow(ctx, `
		INSERT INTO clients (id, business_id, name, email, phone, status, total_spent, last_booking_date)
		VALUES ($1, $2, $3, lower($4), $5, 'active', $6, $7)
		ON CONFLICT (business_id, email) DO UPDATE
		SET total_spent = clients.total_spent + EXCLUDED.total_spent,
			status = 'active',
			last_booking_date = GREATEST(COALESCE(clients.last_booking_date, EXCLUDED.last_booking_date), EXCLUDED.last_booking_date),
			updated_at = NOW()
		RETURNING id, business_id, name, email, phone, status, total_spent, last_booking_date, created_at, updated_at
	`, client.ID, client.BusinessID, client.Name, client.Email, client.Phone, amount, bookedAt).Scan(
		&out.ID, &out.BusinessID, &out.Name, &out.Email, &out.Phone, &out.Status, &out.TotalSpent,
		&out.LastBookingDate, &out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RecordClientPaymentByID increments an existing client of the business.
func (r *PostgresRepository) RecordClientPaymentByID(ctx context.Context, businessID, clientID uuid.UUID, amount decimal.Decimal, bookedAt time.Time) (*domain.Client, error) {
	var out domain.Client
	err := r.db.QueryRow(ctx, `
		UPDATE clients
		SET total_spent = total_spent + $3,
			status = 'active',
			last_booking_date = GREATEST(COALESCE(last_booking_date, $4), $4),
			updated_at = NOW()
		WHERE id = $1 AND business_id = $2
		RETURNING id, business_id, name, email, phone, status, total_spent, last_booking_date, created_at, updated_at
	`, clientID, businessID, amount, bookedAt).Scan(
		&out.ID, &out.BusinessID, &out.Name, &out.Email, &out.Phone, &out.Status, &out.TotalSpent,
		&out.LastBookingDate, &out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrClientNotFound
		}
		return nil, err
	}
	return &out, nil
}

// UpsertSubscription keeps one subscription row per business.
func (r *PostgresRepository) UpsertSubscription(ctx context.Context, sub *domain.Subscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	return r.db.QueryRow(ctx, `
		INSERT INTO subscriptions (id, business_id, plan_type, status, current_period_end, staff_limit, bookings_limit)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (business_id) DO UPDATE
		SET plan_type = EXCLUDED.plan_type,
			status = EXCLUDED.status,
			current_period_end = EXCLUDED.current_period_end,
			staff_limit = EXCLUDED.staff_limit,
			bookings_limit = EXCLUDED.bookings_limit,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`, sub.ID, sub.BusinessID, sub.PlanType, sub.Status, sub.CurrentPeriodEnd, sub.StaffLimit, sub.BookingsLimit).
		Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
}

func (r *PostgresRepository) FindSubscriptionByBusinessID(ctx context.Context, businessID uuid.UUID) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := r.db.QueryRow(ctx, `
		SELECT id, business_id, plan_type, status, current_period_end, staff_limit, bookings_limit, created_at, updated_at
		FROM subscriptions
		WHERE business_id = $1
	`, businessID).Scan(
		&sub.ID, &sub.BusinessID, &sub.PlanType, &sub.Status, &sub.CurrentPeriodEnd,
		&sub.StaffLimit, &sub.BookingsLimit, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *PostgresRepository) CreateSubscriptionPayment(ctx context.Context, payment *domain.SubscriptionPayment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO subscription_payments (
			id, business_id, plan_type, amount, currency, provider, customer_email, paystack_reference, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, payment.ID, payment.BusinessID, payment.PlanType, payment.Amount, payment.Currency, payment.Provider,
		payment.CustomerEmail, payment.PaystackReference, payment.Status,
	).Scan(&payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateReference
		}
		return err
	}
	return nil
}

func (r *PostgresRepository) CompleteSubscriptionPayment(ctx context.Context, paystackReference string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE subscription_payments
		SET status = 'completed', updated_at = NOW()
		WHERE paystack_reference = $1 AND status <> 'completed'
	`, paystackReference)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

const settlementColumns = `
	reference, payment_type, payload::text, status, completed_steps, attempts, last_error, lease_until, created_at, updated_at
`

func scanSettlement(row pgx.Row) (*domain.Settlement, error) {
	var (
		s       domain.Settlement
		payload string
	)
	if err := row.Scan(
		&s.Reference, &s.PaymentType, &payload, &s.Status, &s.CompletedSteps, &s.Attempts,
		&s.LastError, &s.LeaseUntil, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.Payload = []byte(payload)
	return &s, nil
}

// ClaimSettlement inserts the journal row for a new reference, or takes over one that is
// partial or whose lease has lapsed. Completed rows and rows under a live lease are left
// alone and reported through the outcome.
func (r *PostgresRepository) ClaimSettlement(ctx context.Context, settlement domain.Settlement, lease time.Duration) (*domain.Settlement, domain.ClaimOutcome, error) {
	leaseSeconds := int(lease.Seconds())
	if leaseSeconds < 1 {
		leaseSeconds = 120
	}
	payload := string(settlement.Payload)
	if strings.TrimSpace(payload) == "" {
		payload = "{}"
	}

	query := `
		INSERT INTO settlements (reference, payment_type, payload, status, completed_steps, attempts, lease_until)
		VALUES ($1, $2, $3::jsonb, 'processing', '{}', 1, NOW() + ($4 * INTERVAL '1 second'))
		ON CONFLICT (reference) DO UPDATE
		SET status = 'processing',
			attempts = settlements.attempts + 1,
			lease_until = NOW() + ($4 * INTERVAL '1 second'),
			updated_at = NOW()
		WHERE settlements.status = 'partial'
			OR (settlements.status = 'processing' AND settlements.lease_until < NOW())
		RETURNING ` + settlementColumns
	claimed, err := scanSettlement(r.db.QueryRow(ctx, query, settlement.Reference, settlement.PaymentType, payload, leaseSeconds))
	if err == nil {
		return claimed, domain.ClaimAcquired, nil
	}
	if err != pgx.ErrNoRows {
		return nil, "", err
	}

	existing, err := r.FindSettlement(ctx, settlement.Reference)
	if err != nil {
		return nil, "", err
	}
	if existing.Status == domain.SettlementStatusCompleted {
		return existing, domain.ClaimCompleted, nil
	}
	return existing, domain.ClaimInProgress, nil
}

func (r *PostgresRepository) MarkSettlementStep(ctx context.Context, reference string, step string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE settlements
		SET completed_steps = array_append(completed_steps, $2), updated_at = NOW()
		WHERE reference = $1 AND NOT ($2 = ANY(completed_steps))
	`, reference, step)
	return err
}

// FinishSettlement releases the lease and records the final status of this attempt.
func (r *PostgresRepository) FinishSettlement(ctx context.Context, reference string, status domain.SettlementStatus, lastError *string) error {
	if lastError != nil && len(*lastError) > 2000 {
		trimmed := (*lastError)[:2000]
		lastError = &trimmed
	}
	_, err := r.db.Exec(ctx, `
		UPDATE settlements
		SET status = $2, last_error = $3, lease_until = NULL, updated_at = NOW()
		WHERE reference = $1
	`, reference, status, lastError)
	return err
}

func (r *PostgresRepository) FindSettlement(ctx context.Context, reference string) (*domain.Settlement, error) {
	s, err := scanSettlement(r.db.QueryRow(ctx, `SELECT `+settlementColumns+` FROM settlements WHERE reference = $1`, reference))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrSettlementNotFound
		}
		return nil, err
	}
	return s, nil
}

// ListResumableSettlements returns partial settlements and processing ones whose lease has
// expired, oldest first.
func (r *PostgresRepository) ListResumableSettlements(ctx context.Context, limit int) ([]domain.Settlement, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `SELECT `+settlementColumns+`
		FROM settlements
		WHERE status = 'partial' OR (status = 'processing' AND lease_until < NOW())
		ORDER BY updated_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Settlement
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) EnqueueOutboxEvent(ctx context.Context, exchange, routingKey string, payload interface{}) error {
	blob, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO event_outbox (exchange, routing_key, payload)
		VALUES ($1, $2, $3::jsonb)
	`, strings.TrimSpace(exchange), strings.TrimSpace(routingKey), string(blob))
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox event: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	if staleAfterSeconds <= 0 {
		staleAfterSeconds = 120
	}

	query := `
		WITH candidates AS (
			SELECT id
			FROM event_outbox
			WHERE (
				(status = 'pending' AND next_attempt_at <= NOW())
				OR (status = 'processing' AND processing_started_at < NOW() - ($2 * INTERVAL '1 second'))
			)
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE event_outbox AS o
		SET status = 'processing',
			processing_started_at = NOW(),
			attempts = o.attempts + 1
		FROM candidates
		WHERE o.id = candidates.id
		RETURNING o.id, o.exchange, o.routing_key, o.payload::text, o.attempts, o.created_at
	`
	rows, err := r.db.Query(ctx, query, limit, staleAfterSeconds)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]domain.OutboxMessage, 0, limit)
	for rows.Next() {
		var (
			msg         domain.OutboxMessage
			payloadText string
		)
		if err := rows.Scan(&msg.ID, &msg.Exchange, &msg.RoutingKey, &payloadText, &msg.Attempts, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.Payload = []byte(payloadText)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *PostgresRepository) MarkOutboxPublished(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE event_outbox
		SET status = 'published',
			published_at = NOW(),
			processing_started_at = NULL,
			last_error = NULL
		WHERE id = $1
	`, id)
	return err
}

func (r *PostgresRepository) MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error {
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	if len(reason) > 2000 {
		reason = reason[:2000]
	}
	_, err := r.db.Exec(ctx, `
		UPDATE event_outbox
		SET status = 'pending',
			next_attempt_at = NOW() + ($2 * INTERVAL '1 second'),
			processing_started_at = NULL,
			last_error = $3
		WHERE id = $1
	`, id, retryAfterSeconds, reason)
	return err
}

func (r *PostgresRepository) InsertSecurityEvent(ctx context.Context, event *domain.SecurityEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal security event metadata: %w", err)
	}
	return r.db.QueryRow(ctx, `
		INSERT INTO security_events (id, event_type, description, severity, metadata)
		VALUES ($1, $2, $3, $4, $5::jsonb)
		RETURNING created_at
	`, event.ID, event.EventType, event.Description, event.Severity, string(metadata)).Scan(&event.CreatedAt)
}

// GetAllowedOrigins reads the CORS allow-list from app_config. The value may be a JSON
// array of origins or a comma-separated string.
func (r *PostgresRepository) GetAllowedOrigins(ctx context.Context) ([]string, error) {
	var raw string
	err := r.db.QueryRow(ctx, `SELECT value::text FROM app_config WHERE key = 'cors_allowed_origins'`).Scan(&raw)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return ParseOriginList(raw), nil
}

// ParseOriginList accepts a JSON array, a JSON string or a bare comma-separated list.
func ParseOriginList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		var single string
		if err := json.Unmarshal([]byte(raw), &single); err == nil {
			raw = single
		}
		list = strings.Split(raw, ",")
	}

	origins := make([]string, 0, len(list))
	for _, origin := range list {
		if origin = strings.TrimSuffix(strings.TrimSpace(origin), "/"); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

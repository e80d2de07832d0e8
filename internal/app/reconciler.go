/**
 * @description
 * The settlement reconciler applies a verified Paystack charge to platform state.
 *
 * Each provider reference owns one row in the settlement journal. Claiming that row is the
 * idempotency guard: a completed reference turns a replayed webhook into a no-op, and a
 * reference left partial by a failed step is resumed later (by a redelivery or by the
 * sweep) from the first step that has not completed. Steps are not rolled back. A failed
 * step is recorded, audited and retried; the rest of the steps still run.
 *
 * Client-to-business steps: booking_confirmed, transaction_completed, ledger_recorded,
 * revenue_updated, client_updated, event_enqueued.
 * Subscription steps: subscription_upserted, subscription_payment_completed,
 * ledger_recorded, event_enqueued.
 *
 * @dependencies
 * - github.com/shopspring/decimal: fee split of the settled amount.
 * - go.uber.org/zap: structured logging.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bookpay/settlement-service/internal/domain"
	"github.com/bookpay/settlement-service/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrUnknownPlan means a subscription charge names a plan this platform does not sell.
var ErrUnknownPlan = errors.New("unknown subscription plan")

// SettlementStatus summarises what one settlement attempt did.
type SettlementStatus string

const (
	SettlementSettled    SettlementStatus = "settled"
	SettlementPartial    SettlementStatus = "partial"
	SettlementDuplicate  SettlementStatus = "duplicate"
	SettlementInProgress SettlementStatus = "in_progress"
)

// SettlementResult is returned by every settle call.
type SettlementResult struct {
	Reference   string           `json:"reference"`
	PaymentType string           `json:"payment_type"`
	Status      SettlementStatus `json:"status"`
	FailedSteps []string         `json:"failed_steps,omitempty"`
}

// Settler settles a decoded charge. payload is stored in the journal for later resumption.
type Settler interface {
	Settle(ctx context.Context, settlement domain.ChargeSettlement, payload []byte) (*SettlementResult, error)
}

// ReconcilerConfig carries the tunables of the reconciler.
type ReconcilerConfig struct {
	FeePercent     decimal.Decimal
	Lease          time.Duration
	EventsExchange string
}

// Reconciler implements Settler against a Repository.
type Reconciler struct {
	repo   store.Repository
	locker SettlementLocker
	audit  *AuditLogger
	logger *zap.Logger
	cfg    ReconcilerConfig
	now    func() time.Time
}

func NewReconciler(repo store.Repository, locker SettlementLocker, audit *AuditLogger, logger *zap.Logger, cfg ReconcilerConfig) *Reconciler {
	if locker == nil {
		locker = noopLocker{}
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 2 * time.Minute
	}
	if cfg.EventsExchange == "" {
		cfg.EventsExchange = "bookpay.events"
	}
	return &Reconciler{
		repo:   repo,
		locker: locker,
		audit:  audit,
		logger: logger.Named("reconciler"),
		cfg:    cfg,
		now:    time.Now,
	}
}

type settlementStep struct {
	name string
	run  func(ctx context.Context) error
}

// Settle routes a decoded charge to its settlement path.
func (r *Reconciler) Settle(ctx context.Context, settlement domain.ChargeSettlement, payload []byte) (*SettlementResult, error) {
	switch s := settlement.(type) {
	case domain.ClientChargeSettlement:
		return r.SettleClientPayment(ctx, s, payload)
	case domain.SubscriptionChargeSettlement:
		return r.SettleSubscription(ctx, s, payload)
	default:
		return nil, fmt.Errorf("unsupported settlement type %T", settlement)
	}
}

// SettleClientPayment settles a client paying a business for a booking. A missing booking
// returns store.ErrBookingNotFound before anything is written.
func (r *Reconciler) SettleClientPayment(ctx context.Context, s domain.ClientChargeSettlement, payload []byte) (*SettlementResult, error) {
	booking, err := r.repo.FindBookingByID(ctx, s.BookingID)
	if err != nil {
		return nil, err
	}

	platformFee, businessAmount := SplitPlatformFee(s.Amount, r.cfg.FeePercent)
	clientID := booking.ClientID
	if clientID == nil {
		clientID = s.ClientID
	}

	steps := []settlementStep{
		{domain.StepBookingConfirmed, func(ctx context.Context) error {
			changed, err := r.repo.ConfirmBookingPayment(ctx, booking.ID, s.Reference)
			if err == nil && !changed {
				r.logger.Info("booking payment already completed", zap.String("reference", s.Reference), zap.String("booking_id", booking.ID.String()))
			}
			return err
		}},
		{domain.StepTransactionCompleted, func(ctx context.Context) error {
			return r.completeClientTransaction(ctx, booking, s, platformFee, businessAmount)
		}},
		{domain.StepLedgerRecorded, func(ctx context.Context) error {
			metadata := map[string]interface{}{"booking_id": booking.ID.String()}
			if clientID != nil {
				metadata["client_id"] = clientID.String()
			}
			return r.recordLedger(ctx, s.Reference, &domain.PaymentTransaction{
				BusinessID:        s.BusinessID,
				Amount:            s.Amount,
				Currency:          s.Currency,
				Status:            string(domain.PaymentStatusCompleted),
				PaymentMethod:     s.Channel,
				PaystackReference: s.Reference,
				TransactionType:   domain.TransactionTypeClientToBusiness,
				Metadata:          metadata,
			})
		}},
		{domain.StepRevenueUpdated, func(ctx context.Context) error {
			return r.repo.AddBusinessRevenue(ctx, domain.RevenueEntry{
				BusinessID:    s.BusinessID,
				Period:        s.PaidAt.UTC().Truncate(24 * time.Hour),
				GrossAmount:   s.Amount,
				PlatformFees:  platformFee,
				NetAmount:     businessAmount,
				PaymentCount:  1,
				LastReference: s.Reference,
			})
		}},
		{domain.StepClientUpdated, func(ctx context.Context) error {
			return r.recordClientSpend(ctx, booking, clientID, s)
		}},
		{domain.StepEventEnqueued, func(ctx context.Context) error {
			return r.repo.EnqueueOutboxEvent(ctx, r.cfg.EventsExchange, domain.RoutingKeyPaymentSettled, domain.PaymentSettledEvent{
				Reference:      s.Reference,
				BusinessID:     s.BusinessID,
				BookingID:      booking.ID,
				ClientEmail:    r.clientEmail(booking, s),
				Amount:         s.Amount,
				PlatformFee:    platformFee,
				BusinessAmount: businessAmount,
				Currency:       s.Currency,
				SettledAt:      r.now().UTC(),
			})
		}},
	}

	result, err := r.run(ctx, s, payload, steps)
	if err != nil || result.Status != SettlementSettled {
		return result, err
	}

	r.audit.Log(ctx, domain.SecurityEventClientPaymentSuccess, "client payment settled", domain.SeverityInfo, map[string]interface{}{
		"reference":       s.Reference,
		"booking_id":      booking.ID.String(),
		"business_id":     s.BusinessID.String(),
		"amount":          s.Amount.StringFixed(2),
		"platform_fee":    platformFee.StringFixed(2),
		"business_amount": businessAmount.StringFixed(2),
	})
	return result, nil
}

// SettleSubscription activates or renews a business plan. A missing business returns
// store.ErrBusinessNotFound and an unknown plan ErrUnknownPlan, both before any write.
func (r *Reconciler) SettleSubscription(ctx context.Context, s domain.SubscriptionChargeSettlement, payload []byte) (*SettlementResult, error) {
	if _, err := r.repo.FindBusinessByID(ctx, s.BusinessID); err != nil {
		return nil, err
	}
	limits, ok := domain.LookupPlan(s.PlanType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlan, s.PlanType)
	}

	periodEnd := r.now().UTC().AddDate(0, 1, 0)

	steps := []settlementStep{
		{domain.StepSubscriptionUpserted, func(ctx context.Context) error {
			return r.repo.UpsertSubscription(ctx, &domain.Subscription{
				BusinessID:       s.BusinessID,
				PlanType:         s.PlanType,
				Status:           domain.SubscriptionStatusActive,
				CurrentPeriodEnd: periodEnd,
				StaffLimit:       limits.StaffLimit,
				BookingsLimit:    limits.BookingsLimit,
			})
		}},
		{domain.StepSubscriptionPaymentSet, func(ctx context.Context) error {
			changed, err := r.repo.CompleteSubscriptionPayment(ctx, s.Reference)
			if err == nil && !changed {
				r.logger.Info("no pending subscription checkout for reference", zap.String("reference", s.Reference))
			}
			return err
		}},
		{domain.StepLedgerRecorded, func(ctx context.Context) error {
			return r.recordLedger(ctx, s.Reference, &domain.PaymentTransaction{
				BusinessID:        s.BusinessID,
				Amount:            s.Amount,
				Currency:          s.Currency,
				Status:            string(domain.PaymentStatusCompleted),
				PaymentMethod:     s.Channel,
				PaystackReference: s.Reference,
				TransactionType:   domain.TransactionTypeSubscription,
				Metadata:          map[string]interface{}{"plan_type": s.PlanType},
			})
		}},
		{domain.StepEventEnqueued, func(ctx context.Context) error {
			return r.repo.EnqueueOutboxEvent(ctx, r.cfg.EventsExchange, domain.RoutingKeySubscriptionActivated, domain.SubscriptionActivatedEvent{
				Reference:        s.Reference,
				BusinessID:       s.BusinessID,
				PlanType:         s.PlanType,
				Amount:           s.Amount,
				Currency:         s.Currency,
				CurrentPeriodEnd: periodEnd,
			})
		}},
	}

	result, err := r.run(ctx, s, payload, steps)
	if err != nil || result.Status != SettlementSettled {
		return result, err
	}

	r.audit.Log(ctx, domain.SecurityEventWebhookProcessed, "subscription payment settled", domain.SeverityInfo, map[string]interface{}{
		"reference":   s.Reference,
		"business_id": s.BusinessID.String(),
		"plan_type":   s.PlanType,
		"amount":      s.Amount.StringFixed(2),
	})
	return result, nil
}

// run claims the journal row for the reference and executes every step not yet completed.
func (r *Reconciler) run(ctx context.Context, settlement domain.ChargeSettlement, payload []byte, steps []settlementStep) (*SettlementResult, error) {
	reference := settlement.SettlementReference()
	result := &SettlementResult{Reference: reference, PaymentType: settlement.SettlementType()}
	log := r.logger.With(zap.String("reference", reference), zap.String("payment_type", result.PaymentType))

	release, err := r.locker.Acquire(ctx, reference)
	if err != nil {
		if errors.Is(err, ErrSettlementLocked) {
			log.Info("settlement locked by another worker")
			result.Status = SettlementInProgress
			return result, nil
		}
		return nil, fmt.Errorf("failed to lock settlement %s: %w", reference, err)
	}
	defer release()

	journal, outcome, err := r.repo.ClaimSettlement(ctx, domain.Settlement{
		Reference:   reference,
		PaymentType: result.PaymentType,
		Payload:     payload,
	}, r.cfg.Lease)
	if err != nil {
		return nil, fmt.Errorf("failed to claim settlement %s: %w", reference, err)
	}

	switch outcome {
	case domain.ClaimCompleted:
		log.Info("duplicate delivery for settled reference")
		r.audit.Log(ctx, domain.SecurityEventDuplicateWebhook, "payment reference already settled", domain.SeverityInfo, map[string]interface{}{
			"reference":    reference,
			"payment_type": result.PaymentType,
		})
		result.Status = SettlementDuplicate
		return result, nil
	case domain.ClaimInProgress:
		log.Info("settlement already in progress")
		result.Status = SettlementInProgress
		return result, nil
	}

	var lastErr error
	for _, step := range steps {
		if journal.HasStep(step.name) {
			continue
		}
		if step.name == domain.StepEventEnqueued && len(result.FailedSteps) > 0 {
			// The settled event is only announced once every other step has landed.
			result.FailedSteps = append(result.FailedSteps, step.name)
			continue
		}
		if err := step.run(ctx); err != nil {
			lastErr = fmt.Errorf("%s: %w", step.name, err)
			result.FailedSteps = append(result.FailedSteps, step.name)
			log.Error("settlement step failed", zap.String("step", step.name), zap.Int("attempt", journal.Attempts), zap.Error(err))
			r.audit.Log(ctx, domain.SecurityEventSettlementStepFailed, "settlement step failed", domain.SeverityError, map[string]interface{}{
				"reference": reference,
				"step":      step.name,
				"attempt":   journal.Attempts,
				"error":     err.Error(),
			})
			continue
		}
		if err := r.repo.MarkSettlementStep(ctx, reference, step.name); err != nil {
			log.Warn("failed to journal completed step", zap.String("step", step.name), zap.Error(err))
		}
	}

	if lastErr != nil {
		msg := lastErr.Error()
		if err := r.repo.FinishSettlement(ctx, reference, domain.SettlementStatusPartial, &msg); err != nil {
			log.Error("failed to mark settlement partial", zap.Error(err))
		}
		result.Status = SettlementPartial
		return result, nil
	}

	if err := r.repo.FinishSettlement(ctx, reference, domain.SettlementStatusCompleted, nil); err != nil {
		log.Error("failed to mark settlement completed", zap.Error(err))
	}
	log.Info("settlement completed", zap.Int("attempt", journal.Attempts))
	result.Status = SettlementSettled
	return result, nil
}

func (r *Reconciler) completeClientTransaction(ctx context.Context, booking *domain.Booking, s domain.ClientChargeSettlement, platformFee, businessAmount decimal.Decimal) error {
	tx, err := r.repo.FindClientTransactionByReference(ctx, s.Reference)
	if errors.Is(err, store.ErrTransactionNotFound) {
		tx, err = r.repo.FindClientTransactionByBookingID(ctx, booking.ID)
	}
	if err == nil {
		changed, err := r.repo.CompleteClientTransaction(ctx, tx.ID, s.Reference)
		if err == nil && !changed {
			r.logger.Info("client transaction already completed", zap.String("reference", s.Reference), zap.String("transaction_id", tx.ID.String()))
		}
		return err
	}
	if !errors.Is(err, store.ErrTransactionNotFound) {
		return err
	}

	// The checkout row was never written; record the settled payment in its place.
	r.logger.Warn("no client transaction for booking, creating completed record", zap.String("reference", s.Reference), zap.String("booking_id", booking.ID.String()))
	reference := s.Reference
	err = r.repo.CreateClientTransaction(ctx, &domain.ClientBusinessTransaction{
		ID:                uuid.New(),
		BookingID:         booking.ID,
		BusinessID:        s.BusinessID,
		ClientEmail:       r.clientEmail(booking, s),
		ClientPhone:       booking.ClientPhone,
		Amount:            s.Amount,
		PlatformFee:       platformFee,
		BusinessAmount:    businessAmount,
		Currency:          s.Currency,
		PaymentMethod:     s.Channel,
		PaymentReference:  s.Reference,
		PaystackReference: &reference,
		Status:            domain.PaymentStatusCompleted,
	})
	if errors.Is(err, store.ErrDuplicateReference) {
		return nil
	}
	return err
}

func (r *Reconciler) recordLedger(ctx context.Context, reference string, entry *domain.PaymentTransaction) error {
	inserted, err := r.repo.InsertLedgerEntry(ctx, entry)
	if err != nil {
		return err
	}
	if !inserted {
		r.logger.Info("ledger row already recorded", zap.String("reference", reference))
	}
	return nil
}

// recordClientSpend credits the client the booking names. Without a known client id it
// falls back to the (business, email) upsert.
func (r *Reconciler) recordClientSpend(ctx context.Context, booking *domain.Booking, clientID *uuid.UUID, s domain.ClientChargeSettlement) error {
	if clientID != nil {
		client, err := r.repo.RecordClientPaymentByID(ctx, booking.BusinessID, *clientID, s.Amount, s.PaidAt)
		switch {
		case err == nil:
			r.logger.Info("client spend updated", zap.String("reference", s.Reference), zap.String("client_id", client.ID.String()), zap.String("total_spent", client.TotalSpent.StringFixed(2)))
			return nil
		case errors.Is(err, store.ErrClientNotFound):
			r.logger.Warn("booking names an unknown client, matching by email", zap.String("reference", s.Reference), zap.String("client_id", clientID.String()))
		default:
			return err
		}
	}

	email := r.clientEmail(booking, s)
	if email == "" {
		r.logger.Warn("booking has no client email, skipping client update", zap.String("reference", s.Reference))
		return nil
	}
	client, err := r.repo.RecordClientPayment(ctx, domain.Client{
		BusinessID: booking.BusinessID,
		Name:       booking.ClientName,
		Email:      email,
		Phone:      booking.ClientPhone,
		Status:     domain.ClientStatusActive,
	}, s.Amount, s.PaidAt)
	if err != nil {
		return err
	}
	r.logger.Info("client spend updated", zap.String("reference", s.Reference), zap.String("client_id", client.ID.String()), zap.String("total_spent", client.TotalSpent.StringFixed(2)))
	return nil
}

func (r *Reconciler) clientEmail(booking *domain.Booking, s domain.ClientChargeSettlement) string {
	if email := strings.TrimSpace(booking.ClientEmail); email != "" {
		return strings.ToLower(email)
	}
	return strings.ToLower(strings.TrimSpace(s.CustomerEmail))
}

package app

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bookpay/settlement-service/internal/domain"
	"github.com/bookpay/settlement-service/internal/store"
	"go.uber.org/zap"
)

// SweepReport counts what one sweep did.
type SweepReport struct {
	Resumed      int
	ResumeFailed int
	Verified     int
	VerifyFailed int
	StillPending int
	Abandoned    int
	NeedsReview  int
}

// Sweeper finishes settlements that webhooks left behind: journal rows marked partial or
// abandoned mid-flight, and pending charges that never produced a webhook at all.
type Sweeper struct {
	repo         store.Repository
	dispatcher   *Dispatcher
	verifier     *PaymentVerifier
	logger       *zap.Logger
	pendingAfter time.Duration
	batchSize    int
	now          func() time.Time
}

func NewSweeper(repo store.Repository, dispatcher *Dispatcher, verifier *PaymentVerifier, logger *zap.Logger, pendingAfter time.Duration) *Sweeper {
	if pendingAfter <= 0 {
		pendingAfter = 15 * time.Minute
	}
	return &Sweeper{
		repo:         repo,
		dispatcher:   dispatcher,
		verifier:     verifier,
		logger:       logger.Named("settlement_sweeper"),
		pendingAfter: pendingAfter,
		batchSize:    50,
		now:          time.Now,
	}
}

// Run performs one sweep.
func (s *Sweeper) Run(ctx context.Context) SweepReport {
	var report SweepReport
	s.resumeSettlements(ctx, &report)
	s.verifyStalePending(ctx, &report)

	if report != (SweepReport{}) {
		s.logger.Info("settlement sweep finished",
			zap.Int("resumed", report.Resumed),
			zap.Int("resume_failed", report.ResumeFailed),
			zap.Int("verified", report.Verified),
			zap.Int("verify_failed", report.VerifyFailed),
			zap.Int("still_pending", report.StillPending),
			zap.Int("abandoned", report.Abandoned),
			zap.Int("needs_review", report.NeedsReview),
		)
	}
	return report
}

// RunJob adapts Run to the cron job signature.
func (s *Sweeper) RunJob() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	s.Run(ctx)
}

func (s *Sweeper) resumeSettlements(ctx context.Context, report *SweepReport) {
	settlements, err := s.repo.ListResumableSettlements(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("failed to list resumable settlements", zap.Error(err))
		return
	}

	for _, settlement := range settlements {
		log := s.logger.With(zap.String("reference", settlement.Reference), zap.Int("attempts", settlement.Attempts))

		var event domain.WebhookEvent
		if err := json.Unmarshal(settlement.Payload, &event); err != nil {
			log.Error("stored settlement payload is unreadable", zap.Error(err))
			report.ResumeFailed++
			continue
		}

		outcome, err := s.dispatcher.Dispatch(ctx, event)
		if err != nil {
			log.Error("failed to resume settlement", zap.Error(err))
			report.ResumeFailed++
			continue
		}
		if outcome.Kind == OutcomeSettled {
			report.Resumed++
		} else {
			log.Warn("settlement still incomplete after resume", zap.String("outcome", string(outcome.Kind)))
			report.ResumeFailed++
		}
	}
}

func (s *Sweeper) verifyStalePending(ctx context.Context, report *SweepReport) {
	if s.verifier == nil {
		return
	}
	cutoff := s.now().Add(-s.pendingAfter)
	pending, err := s.repo.ListStalePendingClientTransactions(ctx, cutoff, s.batchSize)
	if err != nil {
		s.logger.Error("failed to list stale pending transactions", zap.Error(err))
		return
	}

	for _, tx := range pending {
		log := s.logger.With(zap.String("reference", tx.PaymentReference), zap.String("booking_id", tx.BookingID.String()))

		verification, err := s.verifier.VerifyAndSettle(ctx, tx.PaymentReference)
		if err != nil {
			var missing *domain.MissingFieldsError
			if errors.As(err, &missing) {
				log.Warn("verified charge lacks settlement metadata", zap.Strings("problems", missing.Problems()))
				s.flagForReview(ctx, log, tx, report)
				continue
			}
			log.Warn("failed to verify pending transaction", zap.Error(err))
			report.VerifyFailed++
			continue
		}
		if verification.Outcome == OutcomeUnhandled {
			log.Warn("paid charge carries no settlement payment type")
			s.flagForReview(ctx, log, tx, report)
			continue
		}
		if verification.Outcome == "" {
			if isTerminalFailure(verification.ProviderStatus) {
				if _, err := s.repo.FailClientTransaction(ctx, tx.ID); err != nil {
					log.Warn("failed to mark abandoned transaction failed", zap.Error(err))
				}
				report.Abandoned++
				continue
			}
			report.StillPending++
			continue
		}
		report.Verified++
	}
}

// flagForReview takes a paid but unsettleable transaction out of the pending set so it
// stops occupying the sweep batch.
func (s *Sweeper) flagForReview(ctx context.Context, log *zap.Logger, tx domain.ClientBusinessTransaction, report *SweepReport) {
	if _, err := s.repo.FlagClientTransactionForReview(ctx, tx.ID); err != nil {
		log.Error("failed to flag transaction for review", zap.Error(err))
		report.VerifyFailed++
		return
	}
	report.NeedsReview++
}

// isTerminalFailure reports Paystack transaction states that will never become a success.
func isTerminalFailure(status string) bool {
	switch strings.ToLower(status) {
	case "failed", "abandoned", "reversed":
		return true
	}
	return false
}

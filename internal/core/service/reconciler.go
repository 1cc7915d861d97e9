package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/ticket-marketplace/internal/core/domain"
	"github.com/rl1809/ticket-marketplace/internal/observability"
	"github.com/rl1809/ticket-marketplace/internal/port"
)

const reconcileBatch = 100

// Reconciler refunds attempts whose payment was captured but never became a
// ticket, finishes cancellations whose ticket row was left behind, and
// expires intents that were never confirmed. Every state change is guarded
// on the state it listed, so a confirm racing the sweep wins.
type Reconciler struct {
	attempts   port.AttemptRepository
	tickets    port.TicketRepository
	gateway    port.PaymentGateway
	logger     *zap.Logger
	metrics    *observability.Metrics
	attemptTTL time.Duration
	now        func() time.Time
}

func NewReconciler(attempts port.AttemptRepository, tickets port.TicketRepository, gateway port.PaymentGateway, logger *zap.Logger, metrics *observability.Metrics, attemptTTL time.Duration) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		attempts:   attempts,
		tickets:    tickets,
		gateway:    gateway,
		logger:     logger,
		metrics:    metrics,
		attemptTTL: attemptTTL,
		now:        time.Now,
	}
}

// Run does one pass. Failed refunds stay in their state for the next pass.
func (r *Reconciler) Run(ctx context.Context) {
	for _, state := range []domain.AttemptState{domain.AttemptInventoryRejected, domain.AttemptAmountRejected} {
		r.refundAll(ctx, state)
	}
	r.completeRefunds(ctx)
	r.expireStale(ctx)
}

func (r *Reconciler) refundAll(ctx context.Context, state domain.AttemptState) {
	attempts, err := r.attempts.ListAttempts(ctx, state, reconcileBatch)
	if err != nil {
		r.logger.Error("failed to list purchase attempts", zap.String("state", string(state)), zap.Error(err))
		return
	}

	for _, a := range attempts {
		refund, err := r.gateway.Refund(ctx, a.IntentID)
		if err != nil || refund.Status != domain.RefundSucceeded {
			r.metrics.AttemptReconciled("refund_failed")
			fields := []zap.Field{zap.String("intent_id", a.IntentID), zap.String("state", string(a.State))}
			if err != nil {
				fields = append(fields, zap.Error(err))
			} else {
				fields = append(fields, zap.String("refund_status", string(refund.Status)))
			}
			r.logger.Warn("compensating refund failed", fields...)
			continue
		}

		if err := r.attempts.MarkAttempt(ctx, a.IntentID, a.State, domain.AttemptRefunded, ""); err != nil {
			r.logger.Error("CRITICAL refund issued but attempt not updated",
				zap.String("intent_id", a.IntentID),
				zap.String("refund_id", refund.ID),
				zap.Error(err),
			)
			continue
		}
		r.metrics.AttemptReconciled("refunded")
		r.logger.Info("captured payment refunded",
			zap.String("intent_id", a.IntentID),
			zap.String("refund_id", refund.ID),
			zap.Int64("amount_minor", a.AmountMinor),
		)
	}
}

func (r *Reconciler) completeRefunds(ctx context.Context) {
	attempts, err := r.attempts.ListAttempts(ctx, domain.AttemptRefundPending, reconcileBatch)
	if err != nil {
		r.logger.Error("failed to list pending refunds", zap.Error(err))
		return
	}

	for _, a := range attempts {
		if a.TicketID == "" {
			r.logger.Error("pending refund has no ticket", zap.String("intent_id", a.IntentID))
			continue
		}

		_, misses, err := r.tickets.RefundTicket(ctx, a.TicketID)
		if err != nil && !errors.Is(err, port.ErrTicketNotRefundable) {
			r.metrics.AttemptReconciled("refund_failed")
			r.logger.Warn("failed to mark ticket refunded",
				zap.String("intent_id", a.IntentID),
				zap.String("ticket_id", a.TicketID),
				zap.Error(err),
			)
			continue
		}
		for _, li := range misses {
			r.metrics.ReconciliationError()
			r.logger.Error("inventory reconciliation: tier not restored",
				zap.String("ticket_id", a.TicketID),
				zap.String("event_id", a.EventID),
				zap.String("tier", string(li.TierName)),
				zap.Int("quantity", li.Quantity),
			)
		}

		if err := r.attempts.MarkAttempt(ctx, a.IntentID, domain.AttemptRefundPending, domain.AttemptRefunded, ""); err != nil {
			r.logger.Warn("failed to close pending refund", zap.String("intent_id", a.IntentID), zap.Error(err))
			continue
		}
		r.metrics.AttemptReconciled("refund_completed")
		r.logger.Info("pending refund completed",
			zap.String("intent_id", a.IntentID),
			zap.String("ticket_id", a.TicketID),
		)
	}
}

func (r *Reconciler) expireStale(ctx context.Context) {
	if r.attemptTTL <= 0 {
		return
	}
	attempts, err := r.attempts.ListAttempts(ctx, domain.AttemptIntentCreated, reconcileBatch)
	if err != nil {
		r.logger.Error("failed to list open intents", zap.Error(err))
		return
	}

	cutoff := r.now().Add(-r.attemptTTL)
	for _, a := range attempts {
		if a.CreatedAt.After(cutoff) {
			continue
		}
		err := r.attempts.MarkAttempt(ctx, a.IntentID, domain.AttemptIntentCreated, domain.AttemptExpired, "")
		if errors.Is(err, port.ErrAttemptConflict) {
			r.logger.Debug("attempt moved on before expiry", zap.String("intent_id", a.IntentID))
			continue
		}
		if err != nil {
			r.logger.Warn("failed to expire attempt", zap.String("intent_id", a.IntentID), zap.Error(err))
			continue
		}
		r.metrics.AttemptReconciled("expired")
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/ticket-marketplace/internal/core/domain"
	"github.com/rl1809/ticket-marketplace/internal/observability"
	"github.com/rl1809/ticket-marketplace/internal/port"
)

const (
	confirmKeyPrefix = "confirm:"
	refundKeyPrefix  = "refund:"
	paymentMethod    = "stripe"
)

var tracer = otel.Tracer("github.com/rl1809/ticket-marketplace/internal/core/service")

type PurchaseRequest struct {
	EventID  string
	TierName domain.TierName
	Quantity int
	Price    decimal.Decimal
}

type ConfirmRequest struct {
	PurchaseRequest
	PaymentIntentID string
}

type IntentResult struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
}

type TicketServiceDeps struct {
	Events   port.EventRepository
	Tickets  port.TicketRepository
	Attempts port.AttemptRepository
	Cache    port.CacheRepository
	Gateway  port.PaymentGateway
	Notifier port.Notifier
	Logger   *zap.Logger
	Metrics  *observability.Metrics
	Currency string
}

// TicketService runs the purchase and cancellation sagas. Inventory is only
// mutated through the repository's conditional updates.
type TicketService struct {
	events   port.EventRepository
	tickets  port.TicketRepository
	attempts port.AttemptRepository
	cache    port.CacheRepository
	gateway  port.PaymentGateway
	notifier port.Notifier
	logger   *zap.Logger
	metrics  *observability.Metrics
	currency string
	now      func() time.Time
}

func NewTicketService(deps TicketServiceDeps) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	currency := deps.Currency
	if currency == "" {
		currency = "inr"
	}
	return &TicketService{
		events:   deps.Events,
		tickets:  deps.Tickets,
		attempts: deps.Attempts,
		cache:    deps.Cache,
		gateway:  deps.Gateway,
		notifier: deps.Notifier,
		logger:   logger,
		metrics:  deps.Metrics,
		currency: currency,
		now:      time.Now,
	}
}

func validatePurchase(req PurchaseRequest) error {
	if req.EventID == "" {
		return validationError("eventId is required")
	}
	if !req.TierName.Valid() {
		return validationError("unknown ticket type %q", req.TierName)
	}
	if req.Quantity < 1 {
		return validationError("quantity must be at least 1")
	}
	if req.Price.IsNegative() {
		return validationError("price must not be negative")
	}
	return nil
}

// CreateIntent obtains a charge intent for quantity x unit price without
// touching inventory.
func (s *TicketService) CreateIntent(ctx context.Context, buyer domain.Principal, req PurchaseRequest) (*IntentResult, error) {
	ctx, span := tracer.Start(ctx, "ticket.create_intent", trace.WithAttributes(purchaseAttrs(req)...))
	defer span.End()

	if err := validatePurchase(req); err != nil {
		return nil, err
	}

	event, err := s.events.GetEvent(ctx, req.EventID)
	if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}
	if event == nil {
		return nil, fmt.Errorf("%w: event %s", ErrNotFound, req.EventID)
	}
	if event.Status != domain.EventStatusApproved {
		return nil, validationError("event is not open for sale")
	}

	tier, ok := event.Tier(req.TierName)
	if !ok {
		return nil, validationError("event has no %s tickets", req.TierName)
	}
	if !req.Price.Equal(tier.UnitPrice) {
		return nil, validationError("price %s does not match %s price %s", req.Price, tier.Name, tier.UnitPrice)
	}

	amountMinor := domain.ToMinorUnits(domain.LineTotal(tier.UnitPrice, req.Quantity))
	intent, err := s.gateway.CreateChargeIntent(ctx, domain.ChargeRequest{
		AmountMinor: amountMinor,
		Currency:    s.currency,
		PayerEmail:  buyer.Email,
		Metadata: map[string]string{
			"userId":     buyer.UserID,
			"eventId":    event.ID,
			"ticketType": string(tier.Name),
			"quantity":   strconv.Itoa(req.Quantity),
		},
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("create charge intent: %w", err)
	}

	now := s.now()
	err = s.attempts.SaveAttempt(ctx, domain.PurchaseAttempt{
		IntentID:    intent.ID,
		BuyerID:     buyer.UserID,
		EventID:     event.ID,
		TierName:    tier.Name,
		Quantity:    req.Quantity,
		UnitPrice:   tier.UnitPrice,
		AmountMinor: amountMinor,
		Currency:    s.currency,
		State:       domain.AttemptIntentCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return nil, fmt.Errorf("save purchase attempt: %w", err)
	}

	s.logger.Info("charge intent created",
		zap.String("intent_id", intent.ID),
		zap.String("event_id", event.ID),
		zap.String("tier", string(tier.Name)),
		zap.Int("quantity", req.Quantity),
		zap.Int64("amount_minor", amountMinor),
	)

	return &IntentResult{ClientSecret: intent.ClientSecret, PaymentIntentID: intent.ID}, nil
}

// Confirm verifies a paid intent, reserves inventory and records the ticket.
func (s *TicketService) Confirm(ctx context.Context, buyer domain.Principal, req ConfirmRequest) (*domain.Ticket, error) {
	ctx, span := tracer.Start(ctx, "ticket.confirm", trace.WithAttributes(purchaseAttrs(req.PurchaseRequest)...))
	defer span.End()

	ticket, err := s.confirm(ctx, buyer, req)
	s.metrics.Purchase(resultLabel(err))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, resultLabel(err))
		return nil, err
	}
	span.SetAttributes(attribute.String("ticket.id", ticket.ID))
	return ticket, nil
}

func (s *TicketService) confirm(ctx context.Context, buyer domain.Principal, req ConfirmRequest) (*domain.Ticket, error) {
	if err := validatePurchase(req.PurchaseRequest); err != nil {
		return nil, err
	}
	if req.PaymentIntentID == "" {
		return nil, validationError("paymentIntentId is required")
	}

	key := confirmKeyPrefix + req.PaymentIntentID
	ok, err := s.cache.SetIdempotency(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return nil, ErrDuplicateRequest
	}

	ticket, err := s.confirmClaimed(ctx, buyer, req)
	if err != nil && retriable(err) {
		if relErr := s.cache.ReleaseIdempotency(context.WithoutCancel(ctx), key); relErr != nil {
			s.logger.Warn("failed to release confirm key", zap.String("key", key), zap.Error(relErr))
		}
	}
	return ticket, err
}

// retriable reports whether a confirm failure left nothing decided, so the
// same intent may be confirmed again. Rejections by other callers are
// retriable too: they must not lock the owner out of their own intent.
func retriable(err error) bool {
	return !errors.Is(err, ErrInsufficientInventory) &&
		!errors.Is(err, ErrAmountMismatch) &&
		!errors.Is(err, ErrDuplicateRequest)
}

func (s *TicketService) confirmClaimed(ctx context.Context, buyer domain.Principal, req ConfirmRequest) (*domain.Ticket, error) {
	event, err := s.events.GetEvent(ctx, req.EventID)
	if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}
	if event == nil {
		return nil, fmt.Errorf("%w: event %s", ErrNotFound, req.EventID)
	}

	attempt, err := s.attempts.GetAttempt(ctx, req.PaymentIntentID)
	if err != nil {
		return nil, fmt.Errorf("load purchase attempt: %w", err)
	}
	if attempt != nil {
		if attempt.BuyerID != buyer.UserID {
			return nil, fmt.Errorf("%w: payment intent belongs to another buyer", ErrForbidden)
		}
		if !attempt.State.Confirmable() {
			return nil, fmt.Errorf("%w: payment intent already %s", ErrDuplicateRequest, attempt.State)
		}
		if attempt.EventID != req.EventID || attempt.TierName != req.TierName || attempt.Quantity != req.Quantity {
			return nil, validationError("request differs from the original purchase")
		}
	}

	intent, err := s.gateway.RetrieveChargeIntent(ctx, req.PaymentIntentID)
	if err != nil {
		return nil, fmt.Errorf("retrieve charge intent: %w", err)
	}
	if intent.Status != domain.IntentSucceeded {
		if attempt != nil {
			s.markAttempt(ctx, req.PaymentIntentID, attempt.State, domain.AttemptPaymentRejected, "")
		}
		return nil, fmt.Errorf("%w: intent status %s", ErrPaymentNotCompleted, intent.Status)
	}

	// From here on money is captured: every failure must leave an attempt row
	// the reconciler can refund.
	tier, hasTier := event.Tier(req.TierName)
	if attempt == nil {
		now := s.now()
		rec := domain.PurchaseAttempt{
			IntentID:    req.PaymentIntentID,
			BuyerID:     buyer.UserID,
			EventID:     req.EventID,
			TierName:    req.TierName,
			Quantity:    req.Quantity,
			UnitPrice:   req.Price,
			AmountMinor: intent.AmountMinor,
			Currency:    intent.Currency,
			State:       domain.AttemptPaymentVerified,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.attempts.SaveAttempt(ctx, rec); err != nil {
			return nil, fmt.Errorf("save purchase attempt: %w", err)
		}
	} else if err := s.verifyAttempt(ctx, attempt); err != nil {
		return nil, err
	}

	if !hasTier {
		s.markAttempt(ctx, req.PaymentIntentID, domain.AttemptPaymentVerified, domain.AttemptInventoryRejected, "")
		return nil, fmt.Errorf("%w: event has no %s tickets", ErrInsufficientInventory, req.TierName)
	}

	amount := domain.LineTotal(tier.UnitPrice, req.Quantity)
	if !req.Price.Equal(tier.UnitPrice) || domain.ToMinorUnits(amount) != intent.AmountMinor {
		s.markAttempt(ctx, req.PaymentIntentID, domain.AttemptPaymentVerified, domain.AttemptAmountRejected, "")
		s.logger.Error("charged amount does not match order",
			zap.String("intent_id", req.PaymentIntentID),
			zap.Int64("charged_minor", intent.AmountMinor),
			zap.Int64("expected_minor", domain.ToMinorUnits(amount)),
		)
		return nil, fmt.Errorf("%w: charged %d, expected %d", ErrAmountMismatch, intent.AmountMinor, domain.ToMinorUnits(amount))
	}

	currency := intent.Currency
	if currency == "" {
		currency = s.currency
	}
	now := s.now()
	ticket := domain.Ticket{
		ID:              uuid.NewString(),
		BuyerID:         buyer.UserID,
		EventID:         event.ID,
		OrganizerID:     event.OrganizerID,
		Amount:          amount,
		Currency:        currency,
		PaymentMethod:   paymentMethod,
		PaymentIntentID: req.PaymentIntentID,
		Status:          domain.TicketStatusSuccess,
		LineItems: []domain.LineItem{
			{TierName: tier.Name, Quantity: req.Quantity, UnitPrice: tier.UnitPrice},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.tickets.RecordPurchase(ctx, ticket)
	switch {
	case errors.Is(err, port.ErrInsufficientInventory):
		s.markAttempt(ctx, req.PaymentIntentID, domain.AttemptPaymentVerified, domain.AttemptInventoryRejected, "")
		s.logger.Warn("inventory reservation rejected after payment",
			zap.String("intent_id", req.PaymentIntentID),
			zap.String("event_id", event.ID),
			zap.String("tier", string(tier.Name)),
			zap.Int("quantity", req.Quantity),
		)
		return nil, fmt.Errorf("%w: not enough %s tickets available", ErrInsufficientInventory, tier.Name)
	case errors.Is(err, port.ErrDuplicateTicket):
		return nil, fmt.Errorf("%w: ticket already recorded for intent", ErrDuplicateRequest)
	case err != nil:
		return nil, fmt.Errorf("record purchase: %w", err)
	}

	s.markAttempt(ctx, req.PaymentIntentID, domain.AttemptPaymentVerified, domain.AttemptTicketRecorded, ticket.ID)
	s.logger.Info("ticket recorded",
		zap.String("ticket_id", ticket.ID),
		zap.String("intent_id", ticket.PaymentIntentID),
		zap.String("event_id", ticket.EventID),
		zap.String("amount", ticket.Amount.String()),
	)

	if s.notify(ctx, domain.Notification{
		Kind:       domain.NotificationTicketConfirmed,
		Recipient:  buyer,
		EventTitle: event.Title,
		Ticket:     ticket,
	}) {
		s.markAttempt(ctx, req.PaymentIntentID, domain.AttemptTicketRecorded, domain.AttemptNotified, ticket.ID)
	}

	return &ticket, nil
}

// Cancel refunds a successful ticket through the gateway and then, atomically,
// marks it refunded and restores its tiers.
func (s *TicketService) Cancel(ctx context.Context, requester domain.Principal, ticketID string) (*domain.Ticket, error) {
	ctx, span := tracer.Start(ctx, "ticket.cancel", trace.WithAttributes(attribute.String("ticket.id", ticketID)))
	defer span.End()

	ticket, err := s.cancel(ctx, requester, ticketID)
	s.metrics.Refund(resultLabel(err))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, resultLabel(err))
		return nil, err
	}
	return ticket, nil
}

func (s *TicketService) cancel(ctx context.Context, requester domain.Principal, ticketID string) (*domain.Ticket, error) {
	if _, err := uuid.Parse(ticketID); err != nil {
		return nil, validationError("invalid ticket id")
	}

	ticket, err := s.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("load ticket: %w", err)
	}
	if ticket == nil {
		return nil, fmt.Errorf("%w: ticket %s", ErrNotFound, ticketID)
	}
	if ticket.BuyerID != requester.UserID {
		return nil, fmt.Errorf("%w: ticket does not belong to you", ErrForbidden)
	}
	if ticket.Status == domain.TicketStatusRefunded {
		return nil, fmt.Errorf("%w: ticket has already been refunded", ErrInvalidState)
	}
	if !ticket.Status.CanTransition(domain.TicketStatusRefunded) {
		return nil, fmt.Errorf("%w: can only refund successfully purchased tickets", ErrInvalidState)
	}

	key := refundKeyPrefix + ticketID
	ok, err := s.cache.SetIdempotency(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return nil, ErrDuplicateRequest
	}

	refund, err := s.gateway.Refund(ctx, ticket.PaymentIntentID)
	if err != nil || refund.Status != domain.RefundSucceeded {
		if relErr := s.cache.ReleaseIdempotency(context.WithoutCancel(ctx), key); relErr != nil {
			s.logger.Warn("failed to release refund key", zap.String("key", key), zap.Error(relErr))
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRefundFailed, err)
		}
		return nil, fmt.Errorf("%w: refund status %s", ErrRefundFailed, refund.Status)
	}

	// The refund key stays claimed from here: the gateway must never see a
	// second refund for this ticket.
	updated, misses, err := s.tickets.RefundTicket(ctx, ticketID)
	if err != nil {
		s.logger.Error("CRITICAL refund issued but ticket not updated",
			zap.String("ticket_id", ticketID),
			zap.String("intent_id", ticket.PaymentIntentID),
			zap.String("refund_id", refund.ID),
			zap.Error(err),
		)
		s.markRefundPending(ctx, ticket)
		if errors.Is(err, port.ErrTicketNotRefundable) {
			return nil, fmt.Errorf("%w: ticket changed during refund", ErrInvalidState)
		}
		return nil, fmt.Errorf("mark ticket refunded: %w", err)
	}

	for _, li := range misses {
		s.metrics.ReconciliationError()
		s.logger.Error("inventory reconciliation: tier not restored",
			zap.String("ticket_id", ticketID),
			zap.String("event_id", updated.EventID),
			zap.String("tier", string(li.TierName)),
			zap.Int("quantity", li.Quantity),
		)
	}

	s.logger.Info("ticket refunded",
		zap.String("ticket_id", ticketID),
		zap.String("refund_id", refund.ID),
	)

	eventTitle := ""
	if event, err := s.events.GetEvent(ctx, updated.EventID); err == nil && event != nil {
		eventTitle = event.Title
	}
	s.notify(ctx, domain.Notification{
		Kind:       domain.NotificationTicketRefunded,
		Recipient:  requester,
		EventTitle: eventTitle,
		Ticket:     *updated,
	})

	return updated, nil
}

func (s *TicketService) ListMyTickets(ctx context.Context, buyer domain.Principal) ([]domain.Ticket, error) {
	tickets, err := s.tickets.ListTicketsByBuyer(ctx, buyer.UserID, domain.TicketStatusSuccess)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return tickets, nil
}

type TicketPage struct {
	Tickets []domain.Ticket `json:"data"`
	Page    int             `json:"page"`
	Limit   int             `json:"limit"`
	Total   int             `json:"total"`
	Pages   int             `json:"pages"`
}

// ListTransactions pages through all tickets for the admin view.
func (s *TicketService) ListTransactions(ctx context.Context, filter domain.TicketFilter) (*TicketPage, error) {
	filter.Page, filter.Limit = pageBounds(filter.Page, filter.Limit)
	switch filter.Status {
	case "", domain.TicketStatusPending, domain.TicketStatusSuccess, domain.TicketStatusFailed, domain.TicketStatusRefunded:
	default:
		return nil, validationError("invalid status %q", filter.Status)
	}

	tickets, total, err := s.tickets.ListTickets(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return &TicketPage{
		Tickets: tickets,
		Page:    filter.Page,
		Limit:   filter.Limit,
		Total:   total,
		Pages:   pageCount(total, filter.Limit),
	}, nil
}

// verifyAttempt moves a known attempt to payment_verified. When the
// reconciler expired it in the meantime the move is retried from the fresh
// state; an attempt that is no longer confirmable was settled elsewhere.
func (s *TicketService) verifyAttempt(ctx context.Context, attempt *domain.PurchaseAttempt) error {
	from := attempt.State
	for range 3 {
		err := s.attempts.MarkAttempt(ctx, attempt.IntentID, from, domain.AttemptPaymentVerified, "")
		if err == nil {
			return nil
		}
		if !errors.Is(err, port.ErrAttemptConflict) {
			return fmt.Errorf("mark payment verified: %w", err)
		}

		current, err := s.attempts.GetAttempt(ctx, attempt.IntentID)
		if err != nil {
			return fmt.Errorf("reload purchase attempt: %w", err)
		}
		if current == nil {
			return fmt.Errorf("purchase attempt %s disappeared", attempt.IntentID)
		}
		if !current.State.Confirmable() {
			return fmt.Errorf("%w: payment intent already %s", ErrDuplicateRequest, current.State)
		}
		from = current.State
	}
	return fmt.Errorf("purchase attempt %s keeps changing state", attempt.IntentID)
}

// EventSales is the admin view of one event and everything sold for it.
type EventSales struct {
	Event            *domain.Event   `json:"event"`
	TotalTicketsSold int             `json:"totalTicketsSold"`
	Revenue          decimal.Decimal `json:"revenue"`
	Tickets          []domain.Ticket `json:"tickets"`
}

// EventSales counts every ticket record for the event; revenue only sums
// successful ones.
func (s *TicketService) EventSales(ctx context.Context, admin domain.Principal, eventID string) (*EventSales, error) {
	if admin.Role != domain.RoleAdmin {
		return nil, ErrForbidden
	}
	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}
	if event == nil {
		return nil, fmt.Errorf("%w: event %s", ErrNotFound, eventID)
	}

	tickets, err := s.tickets.ListTicketsByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	revenue := decimal.Zero
	for _, t := range tickets {
		if t.Status == domain.TicketStatusSuccess {
			revenue = revenue.Add(t.Amount)
		}
	}
	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	return &EventSales{Event: event, TotalTicketsSold: len(tickets), Revenue: revenue, Tickets: tickets}, nil
}

func (s *TicketService) Transaction(ctx context.Context, admin domain.Principal, ticketID string) (*domain.Ticket, error) {
	if admin.Role != domain.RoleAdmin {
		return nil, ErrForbidden
	}
	if _, err := uuid.Parse(ticketID); err != nil {
		return nil, validationError("invalid transaction id")
	}
	ticket, err := s.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("load ticket: %w", err)
	}
	if ticket == nil {
		return nil, fmt.Errorf("%w: transaction %s", ErrNotFound, ticketID)
	}
	return ticket, nil
}

func (s *TicketService) markAttempt(ctx context.Context, intentID string, from, to domain.AttemptState, ticketID string) {
	if err := s.attempts.MarkAttempt(context.WithoutCancel(ctx), intentID, from, to, ticketID); err != nil {
		s.logger.Error("failed to update purchase attempt",
			zap.String("intent_id", intentID),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.Error(err),
		)
	}
}

// markRefundPending hands a refunded charge whose ticket row could not be
// updated to the reconciler, which finishes the job without refunding again.
func (s *TicketService) markRefundPending(ctx context.Context, ticket *domain.Ticket) {
	ctx = context.WithoutCancel(ctx)
	attempt, err := s.attempts.GetAttempt(ctx, ticket.PaymentIntentID)
	if err != nil || attempt == nil {
		s.logger.Error("CRITICAL no purchase attempt to track pending refund",
			zap.String("ticket_id", ticket.ID),
			zap.String("intent_id", ticket.PaymentIntentID),
			zap.Error(err),
		)
		return
	}
	s.markAttempt(ctx, attempt.IntentID, attempt.State, domain.AttemptRefundPending, ticket.ID)
}

// notify never fails the caller; it reports whether delivery succeeded.
func (s *TicketService) notify(ctx context.Context, n domain.Notification) bool {
	if s.notifier == nil {
		return false
	}
	if err := s.notifier.Notify(context.WithoutCancel(ctx), n); err != nil {
		s.logger.Warn("notification failed",
			zap.String("kind", string(n.Kind)),
			zap.String("ticket_id", n.Ticket.ID),
			zap.Error(err),
		)
		return false
	}
	return true
}

func purchaseAttrs(req PurchaseRequest) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("event.id", req.EventID),
		attribute.String("ticket.tier", string(req.TierName)),
		attribute.Int("ticket.quantity", req.Quantity),
	}
}

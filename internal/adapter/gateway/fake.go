package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/rl1809/ticket-marketplace/internal/core/domain"
	"github.com/rl1809/ticket-marketplace/internal/port"
)

// FakeGateway is an in-memory PaymentGateway. Intents start in
// requires_payment_method unless AutoSucceed is set.
type FakeGateway struct {
	mu          sync.Mutex
	seq         int
	intents     map[string]*domain.ChargeIntent
	refunded    map[string]string
	autoSucceed bool
	failRefunds bool
}

func NewFakeGateway(autoSucceed bool) *FakeGateway {
	return &FakeGateway{
		intents:     make(map[string]*domain.ChargeIntent),
		refunded:    make(map[string]string),
		autoSucceed: autoSucceed,
	}
}

func (g *FakeGateway) CreateChargeIntent(ctx context.Context, req domain.ChargeRequest) (*domain.ChargeIntent, error) {
	if req.AmountMinor <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", port.ErrGateway)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.seq++
	id := fmt.Sprintf("pi_fake_%06d", g.seq)
	status := domain.IntentRequiresPaymentMethod
	if g.autoSucceed {
		status = domain.IntentSucceeded
	}
	intent := &domain.ChargeIntent{
		ID:           id,
		ClientSecret: id + "_secret",
		Status:       status,
		AmountMinor:  req.AmountMinor,
		Currency:     req.Currency,
	}
	g.intents[id] = intent

	out := *intent
	return &out, nil
}

func (g *FakeGateway) RetrieveChargeIntent(ctx context.Context, intentID string) (*domain.ChargeIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	intent, ok := g.intents[intentID]
	if !ok {
		return nil, fmt.Errorf("%w: no such payment intent %s", port.ErrGateway, intentID)
	}
	out := *intent
	out.ClientSecret = ""
	return &out, nil
}

func (g *FakeGateway) Refund(ctx context.Context, intentID string) (*domain.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failRefunds {
		return &domain.RefundResult{Status: domain.RefundFailed}, nil
	}
	intent, ok := g.intents[intentID]
	if !ok {
		return nil, fmt.Errorf("%w: no such payment intent %s", port.ErrGateway, intentID)
	}
	if intent.Status != domain.IntentSucceeded {
		return nil, fmt.Errorf("%w: payment intent %s has no successful charge", port.ErrGateway, intentID)
	}
	if _, done := g.refunded[intentID]; done {
		return nil, fmt.Errorf("%w: charge for %s has already been refunded", port.ErrGateway, intentID)
	}

	id := "re_" + intentID
	g.refunded[intentID] = id
	return &domain.RefundResult{ID: id, Status: domain.RefundSucceeded}, nil
}

// Pay simulates the client completing payment.
func (g *FakeGateway) Pay(intentID string) {
	g.SetStatus(intentID, domain.IntentSucceeded)
}

func (g *FakeGateway) SetStatus(intentID string, status domain.IntentStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if intent, ok := g.intents[intentID]; ok {
		intent.Status = status
	}
}

// SetAmount overrides the captured amount of an intent.
func (g *FakeGateway) SetAmount(intentID string, amountMinor int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if intent, ok := g.intents[intentID]; ok {
		intent.AmountMinor = amountMinor
	}
}

func (g *FakeGateway) FailRefunds(fail bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failRefunds = fail
}

func (g *FakeGateway) Refunded(intentID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.refunded[intentID]
	return ok
}

func (g *FakeGateway) RefundCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.refunded)
}

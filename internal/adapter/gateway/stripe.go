package gateway

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/rl1809/ticket-marketplace/internal/core/domain"
	"github.com/rl1809/ticket-marketplace/internal/port"
)

type StripeGateway struct {
	api *client.API
}

// NewStripeGateway uses the default Stripe backends when backends is nil.
func NewStripeGateway(secretKey string, backends *stripe.Backends) *StripeGateway {
	return &StripeGateway{api: client.New(secretKey, backends)}
}

func (g *StripeGateway) CreateChargeIntent(ctx context.Context, req domain.ChargeRequest) (*domain.ChargeIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountMinor),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.PayerEmail != "" {
		params.ReceiptEmail = stripe.String(req.PayerEmail)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: create payment intent: %w", port.ErrGateway, err)
	}
	return toChargeIntent(pi), nil
}

func (g *StripeGateway) RetrieveChargeIntent(ctx context.Context, intentID string) (*domain.ChargeIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		return nil, fmt.Errorf("%w: retrieve payment intent: %w", port.ErrGateway, err)
	}
	intent := toChargeIntent(pi)
	intent.ClientSecret = ""
	return intent, nil
}

// Refund refunds the full charge. The idempotency key makes a retried call
// return the original refund instead of issuing a second one.
func (g *StripeGateway) Refund(ctx context.Context, intentID string) (*domain.RefundResult, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
	}
	params.Context = ctx
	params.SetIdempotencyKey("refund-" + intentID)

	r, err := g.api.Refunds.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: create refund: %w", port.ErrGateway, err)
	}
	return &domain.RefundResult{ID: r.ID, Status: domain.RefundStatus(r.Status)}, nil
}

func toChargeIntent(pi *stripe.PaymentIntent) *domain.ChargeIntent {
	return &domain.ChargeIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       domain.IntentStatus(pi.Status),
		AmountMinor:  pi.Amount,
		Currency:     string(pi.Currency),
	}
}

package port

import (
	"context"

	"github.com/rl1809/ticket-marketplace/internal/core/domain"
)

type PaymentGateway interface {
	CreateChargeIntent(ctx context.Context, req domain.ChargeRequest) (*domain.ChargeIntent, error)

	// RetrieveChargeIntent is read-only and idempotent
	RetrieveChargeIntent(ctx context.Context, intentID string) (*domain.ChargeIntent, error)

	Refund(ctx context.Context, intentID string) (*domain.RefundResult, error)
}

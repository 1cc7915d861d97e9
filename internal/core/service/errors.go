package service

import (
	"errors"
	"fmt"

	"github.com/rl1809/ticket-marketplace/internal/port"
)

var (
	ErrValidation            = errors.New("validation failed")
	ErrNotFound              = errors.New("not found")
	ErrForbidden             = errors.New("forbidden")
	ErrPaymentNotCompleted   = errors.New("payment not completed")
	ErrAmountMismatch        = errors.New("charged amount does not match order")
	ErrInsufficientInventory = port.ErrInsufficientInventory
	ErrInvalidState          = errors.New("invalid ticket state")
	ErrDuplicateRequest      = errors.New("duplicate request")
	ErrRefundFailed          = errors.New("refund failed")
	ErrGateway               = port.ErrGateway
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// resultLabel maps an outcome to a metrics label.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrPaymentNotCompleted):
		return "payment_not_completed"
	case errors.Is(err, ErrAmountMismatch):
		return "amount_mismatch"
	case errors.Is(err, ErrInsufficientInventory):
		return "insufficient_inventory"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrDuplicateRequest):
		return "duplicate"
	case errors.Is(err, ErrRefundFailed):
		return "refund_failed"
	case errors.Is(err, ErrGateway):
		return "gateway_error"
	}
	return "internal_error"
}

package port

import "errors"

// Storage-level outcomes of the conditional updates.
var (
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrDuplicateTicket       = errors.New("ticket already recorded for payment intent")
	ErrTicketNotRefundable   = errors.New("ticket not in refundable state")
	ErrAttemptConflict       = errors.New("purchase attempt is no longer in the expected state")
)

// ErrGateway wraps transport or provider failures from a PaymentGateway.
var ErrGateway = errors.New("payment gateway error")

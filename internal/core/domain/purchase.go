package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AttemptState tracks one purchase attempt through the confirmation saga.
// The tier decrement and the ticket insert commit together, so a successful
// reservation goes straight from payment_verified to ticket_recorded.
type AttemptState string

const (
	AttemptIntentCreated   AttemptState = "intent_created"
	AttemptPaymentVerified AttemptState = "payment_verified"
	AttemptTicketRecorded  AttemptState = "ticket_recorded"
	AttemptNotified        AttemptState = "notified"
	// AttemptRefundPending: the gateway refunded the ticket but storage did
	// not record it yet.
	AttemptRefundPending AttemptState = "refund_pending"

	AttemptPaymentRejected   AttemptState = "payment_rejected"
	AttemptInventoryRejected AttemptState = "inventory_rejected"
	AttemptAmountRejected    AttemptState = "amount_rejected"
	AttemptRefunded          AttemptState = "refunded"
	AttemptExpired           AttemptState = "expired"
)

// RefundDue reports whether money was captured for an attempt that will never
// produce a ticket.
func (s AttemptState) RefundDue() bool {
	return s == AttemptInventoryRejected || s == AttemptAmountRejected
}

// Confirmable reports whether a confirmation may still run for the attempt.
func (s AttemptState) Confirmable() bool {
	switch s {
	case AttemptIntentCreated, AttemptPaymentRejected, AttemptPaymentVerified, AttemptExpired:
		return true
	}
	return false
}

type PurchaseAttempt struct {
	IntentID    string
	BuyerID     string
	EventID     string
	TierName    TierName
	Quantity    int
	UnitPrice   decimal.Decimal
	AmountMinor int64
	Currency    string
	State       AttemptState
	TicketID    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

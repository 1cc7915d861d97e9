package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TicketStatus string

const (
	TicketStatusPending  TicketStatus = "pending"
	TicketStatusSuccess  TicketStatus = "success"
	TicketStatusFailed   TicketStatus = "failed"
	TicketStatusRefunded TicketStatus = "refunded"
)

// CanTransition reports whether the lifecycle allows moving from s to next.
// success -> refunded is the only transition after creation.
func (s TicketStatus) CanTransition(next TicketStatus) bool {
	return s == TicketStatusSuccess && next == TicketStatusRefunded
}

type LineItem struct {
	TierName  TierName        `json:"ticketType"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"price"`
}

type Ticket struct {
	ID              string          `json:"id"`
	BuyerID         string          `json:"userId"`
	EventID         string          `json:"eventId"`
	OrganizerID     string          `json:"organizerId"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	PaymentMethod   string          `json:"paymentMethod"`
	PaymentIntentID string          `json:"paymentIntentId"`
	Status          TicketStatus    `json:"status"`
	LineItems       []LineItem      `json:"tickets"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

func (t *Ticket) TotalQuantity() int {
	n := 0
	for _, li := range t.LineItems {
		n += li.Quantity
	}
	return n
}

type TicketFilter struct {
	Status TicketStatus
	Page   int
	Limit  int
}

func (f TicketFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

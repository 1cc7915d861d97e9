package port

import (
	"context"

	"github.com/rl1809/ticket-marketplace/internal/core/domain"
)

type TicketRepository interface {
	// RecordPurchase atomically decrements the tier if remaining >= quantity and
	// inserts the ticket with its line items. Returns ErrInsufficientInventory on a
	// failed precondition and ErrDuplicateTicket when the intent id already has a ticket.
	RecordPurchase(ctx context.Context, ticket domain.Ticket) error

	// RefundTicket moves a success ticket to refunded and restores every line item.
	// Line items whose tier no longer matches are returned as misses.
	RefundTicket(ctx context.Context, ticketID string) (*domain.Ticket, []domain.LineItem, error)

	// GetTicket returns nil, nil when the ticket does not exist
	GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error)

	ListTicketsByBuyer(ctx context.Context, buyerID string, status domain.TicketStatus) ([]domain.Ticket, error)

	ListTicketsByEvent(ctx context.Context, eventID string) ([]domain.Ticket, error)

	ListTickets(ctx context.Context, filter domain.TicketFilter) ([]domain.Ticket, int, error)
}

type AttemptRepository interface {
	SaveAttempt(ctx context.Context, attempt domain.PurchaseAttempt) error

	// GetAttempt returns nil, nil when no attempt exists for the intent
	GetAttempt(ctx context.Context, intentID string) (*domain.PurchaseAttempt, error)

	// MarkAttempt moves an attempt from one state to another, recording the ticket id
	// when non-empty. Returns ErrAttemptConflict when the attempt is not in from.
	MarkAttempt(ctx context.Context, intentID string, from, to domain.AttemptState, ticketID string) error

	ListAttempts(ctx context.Context, state domain.AttemptState, limit int) ([]domain.PurchaseAttempt, error)
}

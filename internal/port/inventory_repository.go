package port

import (
	"context"

	"github.com/rl1809/ticket-marketplace/internal/core/domain"
)

type EventRepository interface {
	// CreateEvent persists an event together with its tiers
	CreateEvent(ctx context.Context, event domain.Event) error

	// GetEvent returns nil, nil when the event does not exist
	GetEvent(ctx context.Context, eventID string) (*domain.Event, error)

	// ListEvents filters by status and/or organizer when non-empty
	ListEvents(ctx context.Context, status domain.EventStatus, organizerID string) ([]domain.Event, error)

	// SearchEvents pages through events newest first and returns the total match count
	SearchEvents(ctx context.Context, filter domain.EventFilter) ([]domain.Event, int, error)

	// UpdateEventDetails rewrites owner-editable fields, returns false if no row matched
	UpdateEventDetails(ctx context.Context, eventID string, details domain.EventDetails) (bool, error)

	// UpdateEventStatus sets status, optionally scoped to an organizer; false if no row matched
	UpdateEventStatus(ctx context.Context, eventID, organizerID string, status domain.EventStatus) (bool, error)

	// DeleteEvent removes the event, its tiers and its tickets
	DeleteEvent(ctx context.Context, eventID string) (bool, error)
}

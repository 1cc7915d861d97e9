package port

import (
	"context"

	"github.com/rl1809/ticket-marketplace/internal/core/domain"
)

type UserRepository interface {
	// RegisterUser inserts the user or refreshes email, name and role. Status is never changed.
	RegisterUser(ctx context.Context, user domain.User) error

	// GetUser returns nil, nil when the user is unknown
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// ListUsers skips deleted users; Search matches name or email
	ListUsers(ctx context.Context, filter domain.UserFilter) ([]domain.User, int, error)

	// SetUserStatus returns false if no live user matched
	SetUserStatus(ctx context.Context, userID string, status domain.UserStatus) (bool, error)

	// DeleteUser removes the user's events (with their tiers and tickets) and leaves a
	// deleted tombstone. Returns false if no live user matched.
	DeleteUser(ctx context.Context, userID string) (bool, error)
}

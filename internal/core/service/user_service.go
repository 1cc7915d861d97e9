package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/ticket-marketplace/internal/core/domain"
	"github.com/rl1809/ticket-marketplace/internal/port"
)

// UserService keeps the moderation record of every token subject. Identity
// itself comes from the bearer token; this only decides whether the subject
// may still act.
type UserService struct {
	users   port.UserRepository
	events  port.EventRepository
	tickets port.TicketRepository
	logger  *zap.Logger
	now     func() time.Time
}

func NewUserService(users port.UserRepository, events port.EventRepository, tickets port.TicketRepository, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{users: users, events: events, tickets: tickets, logger: logger, now: time.Now}
}

// Admit registers unknown subjects as active and refuses suspended or
// deleted ones with ErrForbidden.
func (s *UserService) Admit(ctx context.Context, p domain.Principal) error {
	user, err := s.users.GetUser(ctx, p.UserID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	if user != nil {
		switch user.Status {
		case domain.UserSuspended:
			return fmt.Errorf("%w: account suspended", ErrForbidden)
		case domain.UserDeleted:
			return fmt.Errorf("%w: account deleted", ErrForbidden)
		}
		if user.Email == p.Email && user.Name == p.Name && user.Role == p.Role {
			return nil
		}
	}

	now := s.now()
	rec := domain.User{
		ID:        p.UserID,
		Email:     p.Email,
		Name:      p.Name,
		Role:      p.Role,
		Status:    domain.UserActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.RegisterUser(ctx, rec); err != nil {
		return fmt.Errorf("register user: %w", err)
	}
	if user == nil {
		s.logger.Info("user registered", zap.String("user_id", p.UserID), zap.String("role", string(p.Role)))
	}
	return nil
}

type UserPage struct {
	Users []domain.User `json:"data"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
	Total int           `json:"total"`
	Pages int           `json:"pages"`
}

func (s *UserService) List(ctx context.Context, admin domain.Principal, filter domain.UserFilter) (*UserPage, error) {
	if admin.Role != domain.RoleAdmin {
		return nil, ErrForbidden
	}
	filter.Page, filter.Limit = pageBounds(filter.Page, filter.Limit)

	users, total, err := s.users.ListUsers(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	if users == nil {
		users = []domain.User{}
	}
	return &UserPage{
		Users: users,
		Page:  filter.Page,
		Limit: filter.Limit,
		Total: total,
		Pages: pageCount(total, filter.Limit),
	}, nil
}

type UserDetails struct {
	User    *domain.User    `json:"user"`
	Events  []domain.Event  `json:"events"`
	Tickets []domain.Ticket `json:"tickets"`
}

// Details returns the user with the events they organize and every ticket they bought.
func (s *UserService) Details(ctx context.Context, admin domain.Principal, userID string) (*UserDetails, error) {
	if admin.Role != domain.RoleAdmin {
		return nil, ErrForbidden
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil || user.Status == domain.UserDeleted {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}

	events, err := s.events.ListEvents(ctx, "", userID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	tickets, err := s.tickets.ListTicketsByBuyer(ctx, userID, "")
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	if events == nil {
		events = []domain.Event{}
	}
	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	return &UserDetails{User: user, Events: events, Tickets: tickets}, nil
}

func (s *UserService) SetStatus(ctx context.Context, admin domain.Principal, userID string, status domain.UserStatus) (*domain.User, error) {
	if admin.Role != domain.RoleAdmin {
		return nil, ErrForbidden
	}
	if status != domain.UserActive && status != domain.UserSuspended {
		return nil, validationError("status must be active or suspended")
	}
	if userID == admin.UserID {
		return nil, fmt.Errorf("%w: cannot change your own status", ErrForbidden)
	}

	ok, err := s.users.SetUserStatus(ctx, userID, status)
	if err != nil {
		return nil, fmt.Errorf("update user status: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}

	s.logger.Info("user status changed",
		zap.String("user_id", userID),
		zap.String("status", string(status)),
		zap.String("admin_id", admin.UserID),
	)

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

// Delete removes the user's events and leaves a tombstone that keeps their
// token refused. Tickets they bought stay as transaction records.
func (s *UserService) Delete(ctx context.Context, admin domain.Principal, userID string) error {
	if admin.Role != domain.RoleAdmin {
		return ErrForbidden
	}
	if userID == admin.UserID {
		return fmt.Errorf("%w: cannot delete yourself", ErrForbidden)
	}

	ok, err := s.users.DeleteUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	s.logger.Info("user deleted", zap.String("user_id", userID), zap.String("admin_id", admin.UserID))
	return nil
}

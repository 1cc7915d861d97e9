package handler

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/rl1809/ticket-marketplace/internal/core/domain"
)

type mockEvents struct{ mock.Mock }

func (m *mockEvents) CreateEvent(ctx context.Context, e domain.Event) error {
	return m.Called(ctx, e).Error(0)
}

func (m *mockEvents) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	args := m.Called(ctx, id)
	e, _ := args.Get(0).(*domain.Event)
	return e, args.Error(1)
}

func (m *mockEvents) ListEvents(ctx context.Context, status domain.EventStatus, organizerID string) ([]domain.Event, error) {
	args := m.Called(ctx, status, organizerID)
	evs, _ := args.Get(0).([]domain.Event)
	return evs, args.Error(1)
}

func (m *mockEvents) SearchEvents(ctx context.Context, f domain.EventFilter) ([]domain.Event, int, error) {
	args := m.Called(ctx, f)
	evs, _ := args.Get(0).([]domain.Event)
	return evs, args.Int(1), args.Error(2)
}

func (m *mockEvents) UpdateEventDetails(ctx context.Context, id string, d domain.EventDetails) (bool, error) {
	args := m.Called(ctx, id, d)
	return args.Bool(0), args.Error(1)
}

func (m *mockEvents) UpdateEventStatus(ctx context.Context, id, organizerID string, s domain.EventStatus) (bool, error) {
	args := m.Called(ctx, id, organizerID, s)
	return args.Bool(0), args.Error(1)
}

func (m *mockEvents) DeleteEvent(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

type mockTickets struct{ mock.Mock }

func (m *mockTickets) RecordPurchase(ctx context.Context, t domain.Ticket) error {
	return m.Called(ctx, t).Error(0)
}

func (m *mockTickets) RefundTicket(ctx context.Context, id string) (*domain.Ticket, []domain.LineItem, error) {
	args := m.Called(ctx, id)
	t, _ := args.Get(0).(*domain.Ticket)
	misses, _ := args.Get(1).([]domain.LineItem)
	return t, misses, args.Error(2)
}

func (m *mockTickets) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	args := m.Called(ctx, id)
	t, _ := args.Get(0).(*domain.Ticket)
	return t, args.Error(1)
}

func (m *mockTickets) ListTicketsByBuyer(ctx context.Context, buyerID string, s domain.TicketStatus) ([]domain.Ticket, error) {
	args := m.Called(ctx, buyerID, s)
	ts, _ := args.Get(0).([]domain.Ticket)
	return ts, args.Error(1)
}

func (m *mockTickets) ListTicketsByEvent(ctx context.Context, eventID string) ([]domain.Ticket, error) {
	args := m.Called(ctx, eventID)
	ts, _ := args.Get(0).([]domain.Ticket)
	return ts, args.Error(1)
}

func (m *mockTickets) ListTickets(ctx context.Context, f domain.TicketFilter) ([]domain.Ticket, int, error) {
	args := m.Called(ctx, f)
	ts, _ := args.Get(0).([]domain.Ticket)
	return ts, args.Int(1), args.Error(2)
}

type mockAttempts struct{ mock.Mock }

func (m *mockAttempts) SaveAttempt(ctx context.Context, a domain.PurchaseAttempt) error {
	return m.Called(ctx, a).Error(0)
}

func (m *mockAttempts) GetAttempt(ctx context.Context, id string) (*domain.PurchaseAttempt, error) {
	args := m.Called(ctx, id)
	a, _ := args.Get(0).(*domain.PurchaseAttempt)
	return a, args.Error(1)
}

func (m *mockAttempts) MarkAttempt(ctx context.Context, id string, from, to domain.AttemptState, ticketID string) error {
	return m.Called(ctx, id, from, to, ticketID).Error(0)
}

func (m *mockAttempts) ListAttempts(ctx context.Context, s domain.AttemptState, limit int) ([]domain.PurchaseAttempt, error) {
	args := m.Called(ctx, s, limit)
	as, _ := args.Get(0).([]domain.PurchaseAttempt)
	return as, args.Error(1)
}

type mockCache struct{ mock.Mock }

func (m *mockCache) SetIdempotency(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *mockCache) ReleaseIdempotency(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

type mockUsers struct{ mock.Mock }

func (m *mockUsers) RegisterUser(ctx context.Context, u domain.User) error {
	return m.Called(ctx, u).Error(0)
}

func (m *mockUsers) GetUser(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*domain.User)
	return u, args.Error(1)
}

func (m *mockUsers) ListUsers(ctx context.Context, f domain.UserFilter) ([]domain.User, int, error) {
	args := m.Called(ctx, f)
	us, _ := args.Get(0).([]domain.User)
	return us, args.Int(1), args.Error(2)
}

func (m *mockUsers) SetUserStatus(ctx context.Context, id string, s domain.UserStatus) (bool, error) {
	args := m.Called(ctx, id, s)
	return args.Bool(0), args.Error(1)
}

func (m *mockUsers) DeleteUser(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

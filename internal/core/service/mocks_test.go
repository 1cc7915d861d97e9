package service

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/rl1809/ticket-marketplace/internal/core/domain"
	"github.com/rl1809/ticket-marketplace/internal/port"
)

// memStore mirrors the MySQL adapter's conditional updates under one mutex.
type memStore struct {
	mu       sync.Mutex
	events   map[string]*domain.Event
	tickets  map[string]*domain.Ticket
	attempts map[string]*domain.PurchaseAttempt
	intents  map[string]string

	recordErr error
	refundErr error
}

func newMemStore() *memStore {
	return &memStore{
		events:   make(map[string]*domain.Event),
		tickets:  make(map[string]*domain.Ticket),
		attempts: make(map[string]*domain.PurchaseAttempt),
		intents:  make(map[string]string),
	}
}

func cloneEvent(e *domain.Event) *domain.Event {
	out := *e
	out.Tiers = append([]domain.Tier(nil), e.Tiers...)
	return &out
}

func cloneTicket(t *domain.Ticket) *domain.Ticket {
	out := *t
	out.LineItems = append([]domain.LineItem(nil), t.LineItems...)
	return &out
}

func (m *memStore) CreateEvent(ctx context.Context, event domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.ID] = cloneEvent(&event)
	return nil
}

func (m *memStore) GetEvent(ctx context.Context, eventID string) (*domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[eventID]
	if !ok {
		return nil, nil
	}
	return cloneEvent(e), nil
}

func (m *memStore) ListEvents(ctx context.Context, status domain.EventStatus, organizerID string) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Event
	for _, e := range m.events {
		if status != "" && e.Status != status {
			continue
		}
		if organizerID != "" && e.OrganizerID != organizerID {
			continue
		}
		out = append(out, *cloneEvent(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) SearchEvents(ctx context.Context, filter domain.EventFilter) ([]domain.Event, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []domain.Event
	for _, e := range m.events {
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if filter.Category != "" && e.Category != filter.Category {
			continue
		}
		all = append(all, *cloneEvent(e))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return page(all, filter.Offset(), filter.Limit), len(all), nil
}

func page[T any](all []T, offset, limit int) []T {
	start := min(offset, len(all))
	end := min(start+limit, len(all))
	return all[start:end]
}

func (m *memStore) UpdateEventDetails(ctx context.Context, eventID string, d domain.EventDetails) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[eventID]
	if !ok {
		return false, nil
	}
	e.Title, e.Description, e.Category, e.OtherCategory, e.ImageURL = d.Title, d.Description, d.Category, d.OtherCategory, d.ImageURL
	e.StartDate, e.StartTime, e.EndDate, e.EndTime = d.StartDate, d.StartTime, d.EndDate, d.EndTime
	e.VenueName, e.Address, e.City, e.State, e.ZipCode = d.VenueName, d.Address, d.City, d.State, d.ZipCode
	return true, nil
}

func (m *memStore) UpdateEventStatus(ctx context.Context, eventID, organizerID string, status domain.EventStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[eventID]
	if !ok || (organizerID != "" && e.OrganizerID != organizerID) {
		return false, nil
	}
	e.Status = status
	return true, nil
}

func (m *memStore) DeleteEvent(ctx context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[eventID]; !ok {
		return false, nil
	}
	delete(m.events, eventID)
	for id, t := range m.tickets {
		if t.EventID == eventID {
			delete(m.tickets, id)
			delete(m.intents, t.PaymentIntentID)
		}
	}
	return true, nil
}

func (m *memStore) tier(eventID string, name domain.TierName) *domain.Tier {
	e, ok := m.events[eventID]
	if !ok {
		return nil
	}
	for i := range e.Tiers {
		if e.Tiers[i].Name == name {
			return &e.Tiers[i]
		}
	}
	return nil
}

func (m *memStore) RecordPurchase(ctx context.Context, ticket domain.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return m.recordErr
	}
	if _, dup := m.intents[ticket.PaymentIntentID]; dup {
		return port.ErrDuplicateTicket
	}
	for _, li := range ticket.LineItems {
		t := m.tier(ticket.EventID, li.TierName)
		if t == nil || t.Remaining < li.Quantity {
			return port.ErrInsufficientInventory
		}
	}
	for _, li := range ticket.LineItems {
		m.tier(ticket.EventID, li.TierName).Remaining -= li.Quantity
	}
	m.tickets[ticket.ID] = cloneTicket(&ticket)
	m.intents[ticket.PaymentIntentID] = ticket.ID
	return nil
}

func (m *memStore) RefundTicket(ctx context.Context, ticketID string) (*domain.Ticket, []domain.LineItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refundErr != nil {
		return nil, nil, m.refundErr
	}
	t, ok := m.tickets[ticketID]
	if !ok || t.Status != domain.TicketStatusSuccess {
		return nil, nil, port.ErrTicketNotRefundable
	}
	t.Status = domain.TicketStatusRefunded

	var misses []domain.LineItem
	for _, li := range t.LineItems {
		tier := m.tier(t.EventID, li.TierName)
		if tier == nil || tier.Remaining+li.Quantity > tier.Allocated {
			misses = append(misses, li)
			continue
		}
		tier.Remaining += li.Quantity
	}
	return cloneTicket(t), misses, nil
}

func (m *memStore) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[ticketID]
	if !ok {
		return nil, nil
	}
	return cloneTicket(t), nil
}

func (m *memStore) ListTicketsByBuyer(ctx context.Context, buyerID string, status domain.TicketStatus) ([]domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Ticket
	for _, t := range m.tickets {
		if t.BuyerID == buyerID && (status == "" || t.Status == status) {
			out = append(out, *cloneTicket(t))
		}
	}
	return out, nil
}

func (m *memStore) ListTicketsByEvent(ctx context.Context, eventID string) ([]domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Ticket
	for _, t := range m.tickets {
		if t.EventID == eventID {
			out = append(out, *cloneTicket(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) ListTickets(ctx context.Context, filter domain.TicketFilter) ([]domain.Ticket, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []domain.Ticket
	for _, t := range m.tickets {
		if filter.Status == "" || t.Status == filter.Status {
			all = append(all, *cloneTicket(t))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return page(all, filter.Offset(), filter.Limit), len(all), nil
}

func (m *memStore) SaveAttempt(ctx context.Context, a domain.PurchaseAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[a.IntentID] = &a
	return nil
}

func (m *memStore) GetAttempt(ctx context.Context, intentID string) (*domain.PurchaseAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[intentID]
	if !ok {
		return nil, nil
	}
	out := *a
	return &out, nil
}

func (m *memStore) MarkAttempt(ctx context.Context, intentID string, from, to domain.AttemptState, ticketID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[intentID]
	if !ok || a.State != from {
		return port.ErrAttemptConflict
	}
	a.State = to
	if ticketID != "" {
		a.TicketID = ticketID
	}
	return nil
}

func (m *memStore) ListAttempts(ctx context.Context, state domain.AttemptState, limit int) ([]domain.PurchaseAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PurchaseAttempt
	for _, a := range m.attempts {
		if a.State == state {
			out = append(out, *a)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// sweepHook runs a callback between the reconciler's listing and its
// guarded updates, so a confirm can interleave with a sweep.
type sweepHook struct {
	*memStore
	state     domain.AttemptState
	afterList func()
}

func (h *sweepHook) ListAttempts(ctx context.Context, state domain.AttemptState, limit int) ([]domain.PurchaseAttempt, error) {
	out, err := h.memStore.ListAttempts(ctx, state, limit)
	if state == h.state && h.afterList != nil {
		run := h.afterList
		h.afterList = nil
		run()
	}
	return out, err
}

func (m *memStore) attemptState(intentID string) domain.AttemptState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.attempts[intentID]; ok {
		return a.State
	}
	return ""
}

func (m *memStore) remaining(eventID string, name domain.TierName) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t := m.tier(eventID, name); t != nil {
		return t.Remaining
	}
	return -1
}

func (m *memStore) ticketCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tickets)
}

// mockCache implements port.CacheRepository.
type mockCache struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMockCache() *mockCache {
	return &mockCache{keys: make(map[string]bool)}
}

func (c *mockCache) SetIdempotency(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keys[key] {
		return false, nil
	}
	c.keys[key] = true
	return true, nil
}

func (c *mockCache) ReleaseIdempotency(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.keys, key)
	return nil
}

func (c *mockCache) held(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keys[key]
}

// recordingNotifier captures notifications and can be told to fail.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
	err  error
}

func (n *recordingNotifier) Notify(ctx context.Context, note domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, note)
	return nil
}

func (n *recordingNotifier) kinds() []domain.NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.NotificationKind, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.Kind)
	}
	return out
}

// memUsers implements port.UserRepository.
type memUsers struct {
	mu     sync.Mutex
	users  map[string]*domain.User
	events *memStore
	err    error
}

func newMemUsers(events *memStore) *memUsers {
	return &memUsers{users: make(map[string]*domain.User), events: events}
}

func (u *memUsers) RegisterUser(ctx context.Context, user domain.User) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return u.err
	}
	if cur, ok := u.users[user.ID]; ok {
		cur.Email, cur.Name, cur.Role, cur.UpdatedAt = user.Email, user.Name, user.Role, user.UpdatedAt
		return nil
	}
	if user.Status == "" {
		user.Status = domain.UserActive
	}
	u.users[user.ID] = &user
	return nil
}

func (u *memUsers) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return nil, u.err
	}
	cur, ok := u.users[userID]
	if !ok {
		return nil, nil
	}
	out := *cur
	return &out, nil
}

func (u *memUsers) ListUsers(ctx context.Context, filter domain.UserFilter) ([]domain.User, int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	var all []domain.User
	for _, cur := range u.users {
		if cur.Status == domain.UserDeleted {
			continue
		}
		if filter.Search != "" && !strings.Contains(cur.Name, filter.Search) && !strings.Contains(cur.Email, filter.Search) {
			continue
		}
		all = append(all, *cur)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return page(all, filter.Offset(), filter.Limit), len(all), nil
}

func (u *memUsers) SetUserStatus(ctx context.Context, userID string, status domain.UserStatus) (bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	cur, ok := u.users[userID]
	if !ok || cur.Status == domain.UserDeleted {
		return false, nil
	}
	cur.Status = status
	return true, nil
}

func (u *memUsers) DeleteUser(ctx context.Context, userID string) (bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	cur, ok := u.users[userID]
	if !ok || cur.Status == domain.UserDeleted {
		return false, nil
	}
	cur.Status = domain.UserDeleted
	if u.events != nil {
		owned, _ := u.events.ListEvents(ctx, "", userID)
		for _, e := range owned {
			u.events.DeleteEvent(ctx, e.ID)
		}
	}
	return true, nil
}

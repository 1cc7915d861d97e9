package service

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/ticket-marketplace/internal/core/domain"
	"github.com/rl1809/ticket-marketplace/internal/port"
)

const placeholderImage = "https://placehold.co/600x400?text=Event"

var clockPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

var categories = map[domain.Category]struct{}{
	domain.CategoryMusic:    {},
	domain.CategoryTech:     {},
	domain.CategoryBusiness: {},
	domain.CategorySports:   {},
	domain.CategoryArt:      {},
	domain.CategoryFood:     {},
	domain.CategoryHealth:   {},
	domain.CategoryOther:    {},
}

type TierInput struct {
	Name     domain.TierName
	Price    decimal.Decimal
	Quantity int
}

type CreateEventRequest struct {
	Title         string
	Description   string
	Category      domain.Category
	OtherCategory string
	ImageURL      string
	StartDate     time.Time
	StartTime     string
	EndDate       time.Time
	EndTime       string
	VenueName     string
	Address       string
	City          string
	State         string
	ZipCode       string
	Tiers         []TierInput
}

type EventService struct {
	events port.EventRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewEventService(events port.EventRepository, logger *zap.Logger) *EventService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventService{events: events, logger: logger, now: time.Now}
}

func (s *EventService) Create(ctx context.Context, organizer domain.Principal, req CreateEventRequest) (*domain.Event, error) {
	if organizer.Role != domain.RoleOrganizer {
		return nil, fmt.Errorf("%w: only organizers can create events", ErrForbidden)
	}
	if err := validateEvent(req); err != nil {
		return nil, err
	}

	tiers := make([]domain.Tier, 0, len(req.Tiers))
	for _, t := range req.Tiers {
		tiers = append(tiers, domain.Tier{
			Name:      t.Name,
			UnitPrice: t.Price,
			Remaining: t.Quantity,
			Allocated: t.Quantity,
		})
	}

	image := req.ImageURL
	if image == "" {
		image = placeholderImage
	}
	other := ""
	if req.Category == domain.CategoryOther {
		other = req.OtherCategory
	}

	now := s.now()
	event := domain.Event{
		ID:            uuid.NewString(),
		OrganizerID:   organizer.UserID,
		Title:         req.Title,
		Description:   req.Description,
		Category:      req.Category,
		OtherCategory: other,
		ImageURL:      image,
		StartDate:     req.StartDate,
		StartTime:     req.StartTime,
		EndDate:       req.EndDate,
		EndTime:       req.EndTime,
		VenueName:     req.VenueName,
		Address:       req.Address,
		City:          req.City,
		State:         req.State,
		ZipCode:       req.ZipCode,
		Tiers:         tiers,
		Status:        domain.EventStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.events.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	s.logger.Info("event created",
		zap.String("event_id", event.ID),
		zap.String("organizer_id", organizer.UserID),
		zap.Int("tiers", len(tiers)),
	)
	return &event, nil
}

func validateEvent(req CreateEventRequest) error {
	if req.Title == "" || req.Description == "" || req.VenueName == "" || req.Address == "" {
		return validationError("title, description, venue and address are required")
	}
	if _, ok := categories[req.Category]; !ok {
		return validationError("unknown category %q", req.Category)
	}
	if req.Category == domain.CategoryOther && req.OtherCategory == "" {
		return validationError("otherCategory is required when category is Other")
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() {
		return validationError("start and end dates are required")
	}
	if req.EndDate.Before(req.StartDate) {
		return validationError("end date is before start date")
	}
	if !clockPattern.MatchString(req.StartTime) {
		return validationError("startTime must be HH:MM")
	}
	if req.EndTime != "" && !clockPattern.MatchString(req.EndTime) {
		return validationError("endTime must be HH:MM")
	}
	if len(req.Tiers) == 0 {
		return validationError("at least one ticket type is required")
	}

	seen := make(map[domain.TierName]bool, len(req.Tiers))
	for _, t := range req.Tiers {
		if !t.Name.Valid() {
			return validationError("unknown ticket type %q", t.Name)
		}
		if seen[t.Name] {
			return validationError("duplicate ticket type %s", t.Name)
		}
		seen[t.Name] = true
		if t.Price.IsNegative() {
			return validationError("%s price must not be negative", t.Name)
		}
		if t.Quantity < 0 {
			return validationError("%s quantity must not be negative", t.Name)
		}
	}
	return nil
}

func (s *EventService) Get(ctx context.Context, eventID string) (*domain.Event, error) {
	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}
	if event == nil {
		return nil, fmt.Errorf("%w: event %s", ErrNotFound, eventID)
	}
	return event, nil
}

func (s *EventService) ListApproved(ctx context.Context) ([]domain.Event, error) {
	events, err := s.events.ListEvents(ctx, domain.EventStatusApproved, "")
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

func (s *EventService) ListMine(ctx context.Context, organizer domain.Principal) ([]domain.Event, error) {
	events, err := s.events.ListEvents(ctx, "", organizer.UserID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// Update rewrites descriptive fields only. Tier inventory is never touched.
func (s *EventService) Update(ctx context.Context, owner domain.Principal, eventID string, details domain.EventDetails) (*domain.Event, error) {
	event, err := s.owned(ctx, owner, eventID)
	if err != nil {
		return nil, err
	}

	merged := mergeDetails(event, details)
	if _, ok := categories[merged.Category]; !ok {
		return nil, validationError("unknown category %q", merged.Category)
	}
	if merged.Category != domain.CategoryOther {
		merged.OtherCategory = ""
	} else if merged.OtherCategory == "" {
		return nil, validationError("otherCategory is required when category is Other")
	}
	if merged.StartTime != "" && !clockPattern.MatchString(merged.StartTime) {
		return nil, validationError("startTime must be HH:MM")
	}
	if merged.EndTime != "" && !clockPattern.MatchString(merged.EndTime) {
		return nil, validationError("endTime must be HH:MM")
	}

	ok, err := s.events.UpdateEventDetails(ctx, eventID, merged)
	if err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: event %s", ErrNotFound, eventID)
	}
	return s.Get(ctx, eventID)
}

func mergeDetails(e *domain.Event, d domain.EventDetails) domain.EventDetails {
	pick := func(v, cur string) string {
		if v == "" {
			return cur
		}
		return v
	}
	out := domain.EventDetails{
		Title:         pick(d.Title, e.Title),
		Description:   pick(d.Description, e.Description),
		Category:      domain.Category(pick(string(d.Category), string(e.Category))),
		OtherCategory: pick(d.OtherCategory, e.OtherCategory),
		ImageURL:      pick(d.ImageURL, e.ImageURL),
		StartDate:     e.StartDate,
		StartTime:     pick(d.StartTime, e.StartTime),
		EndDate:       e.EndDate,
		EndTime:       pick(d.EndTime, e.EndTime),
		VenueName:     pick(d.VenueName, e.VenueName),
		Address:       pick(d.Address, e.Address),
		City:          pick(d.City, e.City),
		State:         pick(d.State, e.State),
		ZipCode:       pick(d.ZipCode, e.ZipCode),
	}
	if !d.StartDate.IsZero() {
		out.StartDate = d.StartDate
	}
	if !d.EndDate.IsZero() {
		out.EndDate = d.EndDate
	}
	return out
}

func (s *EventService) Suspend(ctx context.Context, owner domain.Principal, eventID string) (*domain.Event, error) {
	if _, err := s.owned(ctx, owner, eventID); err != nil {
		return nil, err
	}
	ok, err := s.events.UpdateEventStatus(ctx, eventID, owner.UserID, domain.EventStatusSuspended)
	if err != nil {
		return nil, fmt.Errorf("suspend event: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: event %s", ErrNotFound, eventID)
	}
	return s.Get(ctx, eventID)
}

// SetStatus is the admin moderation action.
func (s *EventService) SetStatus(ctx context.Context, admin domain.Principal, eventID string, status domain.EventStatus) (*domain.Event, error) {
	if admin.Role != domain.RoleAdmin {
		return nil, ErrForbidden
	}
	switch status {
	case domain.EventStatusApproved, domain.EventStatusSuspended, domain.EventStatusRejected:
	default:
		return nil, validationError("status must be approved, suspended or rejected")
	}

	ok, err := s.events.UpdateEventStatus(ctx, eventID, "", status)
	if err != nil {
		return nil, fmt.Errorf("update event status: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: event %s", ErrNotFound, eventID)
	}

	s.logger.Info("event status changed",
		zap.String("event_id", eventID),
		zap.String("status", string(status)),
		zap.String("admin_id", admin.UserID),
	)
	return s.Get(ctx, eventID)
}

// Delete removes the event along with every ticket sold for it.
func (s *EventService) Delete(ctx context.Context, admin domain.Principal, eventID string) error {
	if admin.Role != domain.RoleAdmin {
		return ErrForbidden
	}
	ok, err := s.events.DeleteEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: event %s", ErrNotFound, eventID)
	}
	s.logger.Info("event deleted", zap.String("event_id", eventID), zap.String("admin_id", admin.UserID))
	return nil
}

// DeleteOwn lets an organizer remove their own event. Tickets sold for it go
// with it, as with the admin delete.
func (s *EventService) DeleteOwn(ctx context.Context, owner domain.Principal, eventID string) error {
	if _, err := s.owned(ctx, owner, eventID); err != nil {
		return err
	}
	ok, err := s.events.DeleteEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: event %s", ErrNotFound, eventID)
	}
	s.logger.Info("event deleted", zap.String("event_id", eventID), zap.String("organizer_id", owner.UserID))
	return nil
}

type EventPage struct {
	Events []domain.Event `json:"data"`
	Page   int            `json:"page"`
	Limit  int            `json:"limit"`
	Total  int            `json:"total"`
	Pages  int            `json:"pages"`
}

// ListAll pages through every event regardless of status, newest first.
func (s *EventService) ListAll(ctx context.Context, admin domain.Principal, filter domain.EventFilter) (*EventPage, error) {
	if admin.Role != domain.RoleAdmin {
		return nil, ErrForbidden
	}
	filter.Page, filter.Limit = pageBounds(filter.Page, filter.Limit)
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, validationError("invalid status %q", filter.Status)
	}
	if filter.Category != "" {
		if _, ok := categories[filter.Category]; !ok {
			return nil, validationError("unknown category %q", filter.Category)
		}
	}

	events, total, err := s.events.SearchEvents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("search events: %w", err)
	}
	if events == nil {
		events = []domain.Event{}
	}
	return &EventPage{
		Events: events,
		Page:   filter.Page,
		Limit:  filter.Limit,
		Total:  total,
		Pages:  pageCount(total, filter.Limit),
	}, nil
}

func (s *EventService) owned(ctx context.Context, owner domain.Principal, eventID string) (*domain.Event, error) {
	event, err := s.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.OrganizerID != owner.UserID {
		return nil, fmt.Errorf("%w: not the event owner", ErrForbidden)
	}
	return event, nil
}

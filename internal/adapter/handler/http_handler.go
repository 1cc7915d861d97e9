package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/ticket-marketplace/internal/core/domain"
	"github.com/rl1809/ticket-marketplace/internal/core/service"
	"github.com/rl1809/ticket-marketplace/internal/observability"
)

const dateLayout = "2006-01-02"

var validate = validator.New()

type HTTPHandler struct {
	tickets *service.TicketService
	events  *service.EventService
	users   *service.UserService
	logger  *zap.Logger
}

type response struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

type PaymentRequest struct {
	EventID    string           `json:"eventId" validate:"required"`
	TicketType string           `json:"ticketType" validate:"required,oneof=VIP Platinum Gold Silver"`
	Quantity   int              `json:"quantity" validate:"required,min=1"`
	Price      *decimal.Decimal `json:"price" validate:"required"`
}

func (r PaymentRequest) toPurchase() service.PurchaseRequest {
	return service.PurchaseRequest{
		EventID:  r.EventID,
		TierName: domain.TierName(r.TicketType),
		Quantity: r.Quantity,
		Price:    *r.Price,
	}
}

type ConfirmTicketRequest struct {
	PaymentRequest
	PaymentIntentID string `json:"paymentIntentId" validate:"required"`
}

type TierRequest struct {
	TicketType string           `json:"ticketType" validate:"required,oneof=VIP Platinum Gold Silver"`
	Price      *decimal.Decimal `json:"price" validate:"required"`
	Quantity   int              `json:"quantity" validate:"min=0"`
}

type EventRequest struct {
	Title         string        `json:"eventTitle" validate:"required,max=255"`
	Description   string        `json:"description" validate:"required"`
	Category      string        `json:"category" validate:"required,oneof=Music Tech Business Sports Art Food Health Other"`
	OtherCategory string        `json:"otherCategory" validate:"required_if=Category Other"`
	ImageURL      string        `json:"imageUrl" validate:"omitempty,url"`
	StartDate     string        `json:"startDate" validate:"required,datetime=2006-01-02"`
	StartTime     string        `json:"startTime" validate:"required,datetime=15:04"`
	EndDate       string        `json:"endDate" validate:"required,datetime=2006-01-02"`
	EndTime       string        `json:"endTime" validate:"omitempty,datetime=15:04"`
	VenueName     string        `json:"venueName" validate:"required"`
	Address       string        `json:"address" validate:"required"`
	City          string        `json:"city"`
	State         string        `json:"state"`
	ZipCode       string        `json:"zipCode"`
	Tickets       []TierRequest `json:"tickets" validate:"required,min=1,dive"`
}

type UpdateEventRequest struct {
	Title         string `json:"eventTitle" validate:"omitempty,max=255"`
	Description   string `json:"description"`
	Category      string `json:"category" validate:"omitempty,oneof=Music Tech Business Sports Art Food Health Other"`
	OtherCategory string `json:"otherCategory" validate:"max=64"`
	ImageURL      string `json:"imageUrl" validate:"omitempty,url"`
	StartDate     string `json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	StartTime     string `json:"startTime" validate:"omitempty,datetime=15:04"`
	EndDate       string `json:"endDate" validate:"omitempty,datetime=2006-01-02"`
	EndTime       string `json:"endTime" validate:"omitempty,datetime=15:04"`
	VenueName     string `json:"venueName"`
	Address       string `json:"address"`
	City          string `json:"city"`
	State         string `json:"state"`
	ZipCode       string `json:"zipCode"`
}

type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=approved suspended rejected"`
}

type UserStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active suspended"`
}

func NewHTTPHandler(tickets *service.TicketService, events *service.EventService, users *service.UserService, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{tickets: tickets, events: events, users: users, logger: logger}
}

// Register mounts every route on mux.
func (h *HTTPHandler) Register(mux *http.ServeMux, auth *Auth, metrics *observability.Metrics) {
	authed := func(name string, fn http.HandlerFunc, roles ...domain.Role) http.Handler {
		var next http.Handler = fn
		if len(roles) > 0 {
			next = RequireRole(roles...)(next)
		}
		return Instrument(metrics, name, auth.Authenticate(next))
	}
	public := func(name string, fn http.HandlerFunc) http.Handler {
		return Instrument(metrics, name, fn)
	}

	mux.Handle("GET /health", public("health", h.HealthCheck))

	mux.Handle("POST /api/payment/create-payment", authed("create_payment", h.CreatePayment))
	mux.Handle("POST /api/payment/confirm-ticket", authed("confirm_ticket", h.ConfirmTicket))
	mux.Handle("DELETE /api/payment/cancel-ticket/{ticketId}", authed("cancel_ticket", h.CancelTicket))
	mux.Handle("GET /api/payment/my-tickets", authed("my_tickets", h.MyTickets))

	mux.Handle("GET /api/organizer/events", public("list_events", h.ListEvents))
	mux.Handle("GET /api/organizer/events/{id}", public("get_event", h.GetEvent))
	mux.Handle("POST /api/organizer/events", authed("create_event", h.CreateEvent, domain.RoleOrganizer))
	mux.Handle("PUT /api/organizer/events/{id}", authed("update_event", h.UpdateEvent, domain.RoleOrganizer))
	mux.Handle("PATCH /api/organizer/events/{id}/suspend", authed("suspend_event", h.SuspendEvent, domain.RoleOrganizer))
	mux.Handle("DELETE /api/organizer/events/{id}", authed("delete_own_event", h.DeleteOwnEvent, domain.RoleOrganizer))
	mux.Handle("GET /api/organizer/my-events", authed("my_events", h.MyEvents, domain.RoleOrganizer))

	mux.Handle("GET /api/admin/events", authed("admin_events", h.AdminEvents, domain.RoleAdmin))
	mux.Handle("GET /api/admin/events/{id}", authed("admin_event_details", h.AdminEventDetails, domain.RoleAdmin))
	mux.Handle("PUT /api/admin/events/{id}/status", authed("set_event_status", h.SetEventStatus, domain.RoleAdmin))
	mux.Handle("DELETE /api/admin/events/{id}", authed("delete_event", h.DeleteEvent, domain.RoleAdmin))
	mux.Handle("GET /api/admin/transactions", authed("transactions", h.Transactions, domain.RoleAdmin))
	mux.Handle("GET /api/admin/transactions/{id}", authed("transaction_details", h.TransactionDetails, domain.RoleAdmin))

	if h.users != nil {
		mux.Handle("GET /api/admin/users", authed("admin_users", h.AdminUsers, domain.RoleAdmin))
		mux.Handle("GET /api/admin/users/{id}", authed("admin_user_details", h.AdminUserDetails, domain.RoleAdmin))
		mux.Handle("PATCH /api/admin/users/{id}/status", authed("set_user_status", h.SetUserStatus, domain.RoleAdmin))
		mux.Handle("DELETE /api/admin/users/{id}", authed("delete_user", h.DeleteUser, domain.RoleAdmin))
	}
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, _ := PrincipalFrom(r.Context())
	intent, err := h.tickets.CreateIntent(r.Context(), p, req.toPurchase())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, intent)
}

func (h *HTTPHandler) ConfirmTicket(w http.ResponseWriter, r *http.Request) {
	var req ConfirmTicketRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, _ := PrincipalFrom(r.Context())
	ticket, err := h.tickets.Confirm(r.Context(), p, service.ConfirmRequest{
		PurchaseRequest: req.toPurchase(),
		PaymentIntentID: req.PaymentIntentID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, response{Message: "Ticket booked successfully", Data: ticket})
}

func (h *HTTPHandler) CancelTicket(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	ticket, err := h.tickets.Cancel(r.Context(), p, r.PathValue("ticketId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Message: "Ticket cancelled and refund processed successfully", Data: ticket})
}

func (h *HTTPHandler) MyTickets(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	tickets, err := h.tickets.ListMyTickets(r.Context(), p)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Message: "Tickets fetched successfully", Data: nonNil(tickets)})
}

func (h *HTTPHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.ListApproved(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Message: "Events fetched successfully", Data: nonNil(events)})
}

func (h *HTTPHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.events.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Message: "Event fetched successfully", Data: event})
}

func (h *HTTPHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if !h.decode(w, r, &req) {
		return
	}

	start, _ := time.Parse(dateLayout, req.StartDate)
	end, _ := time.Parse(dateLayout, req.EndDate)
	tiers := make([]service.TierInput, 0, len(req.Tickets))
	for _, t := range req.Tickets {
		tiers = append(tiers, service.TierInput{
			Name:     domain.TierName(t.TicketType),
			Price:    *t.Price,
			Quantity: t.Quantity,
		})
	}

	p, _ := PrincipalFrom(r.Context())
	event, err := h.events.Create(r.Context(), p, service.CreateEventRequest{
		Title:         req.Title,
		Description:   req.Description,
		Category:      domain.Category(req.Category),
		OtherCategory: req.OtherCategory,
		ImageURL:      req.ImageURL,
		StartDate:     start,
		StartTime:     req.StartTime,
		EndDate:       end,
		EndTime:       req.EndTime,
		VenueName:     req.VenueName,
		Address:       req.Address,
		City:          req.City,
		State:         req.State,
		ZipCode:       req.ZipCode,
		Tiers:         tiers,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, response{Message: "Event created successfully", Data: event})
}

func (h *HTTPHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var req UpdateEventRequest
	if !h.decode(w, r, &req) {
		return
	}

	details := domain.EventDetails{
		Title:         req.Title,
		Description:   req.Description,
		Category:      domain.Category(req.Category),
		OtherCategory: req.OtherCategory,
		ImageURL:      req.ImageURL,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		VenueName:     req.VenueName,
		Address:       req.Address,
		City:          req.City,
		State:         req.State,
		ZipCode:       req.ZipCode,
	}
	if req.StartDate != "" {
		details.StartDate, _ = time.Parse(dateLayout, req.StartDate)
	}
	if req.EndDate != "" {
		details.EndDate, _ = time.Parse(dateLayout, req.EndDate)
	}

	p, _ := PrincipalFrom(r.Context())
	event, err := h.events.Update(r.Context(), p, r.PathValue("id"), details)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Message: "Event updated successfully", Data: event})
}

func (h *HTTPHandler) SuspendEvent(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	event, err := h.events.Suspend(r.Context(), p, r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Message: "Event suspended successfully", Data: event})
}

func (h *HTTPHandler) DeleteOwnEvent(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	if err := h.events.DeleteOwn(r.Context(), p, r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Message: "Event deleted successfully"})
}

func (h *HTTPHandler) MyEvents(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	events, err := h.events.ListMine(r.Context(), p)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Message: "Events fetched successfully", Data: nonNil(events)})
}

func (h *HTTPHandler) SetEventStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, _ := PrincipalFrom(r.Context())
	event, err := h.events.SetStatus(r.Context(), p, r.PathValue("id"), domain.EventStatus(req.Status))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Message: "Event status updated to " + req.Status, Data: event})
}

func (h *HTTPHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	if err := h.events.Delete(r.Context(), p, r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Message: "Event and its tickets deleted successfully"})
}

func (h *HTTPHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	result, err := h.tickets.ListTransactions(r.Context(), domain.TicketFilter{
		Status: domain.TicketStatus(q.Get("status")),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	if result.Tickets == nil {
		result.Tickets = []domain.Ticket{}
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) TransactionDetails(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	ticket, err := h.tickets.Transaction(r.Context(), p, r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Message: "Transaction fetched successfully", Data: ticket})
}

func (h *HTTPHandler) AdminEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	p, _ := PrincipalFrom(r.Context())
	result, err := h.events.ListAll(r.Context(), p, domain.EventFilter{
		Status:   domain.EventStatus(q.Get("status")),
		Category: domain.Category(q.Get("category")),
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) AdminEventDetails(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	sales, err := h.tickets.EventSales(r.Context(), p, r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Message: "Event fetched successfully", Data: sales})
}

func (h *HTTPHandler) AdminUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	p, _ := PrincipalFrom(r.Context())
	result, err := h.users.List(r.Context(), p, domain.UserFilter{Search: q.Get("search"), Page: page, Limit: limit})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) AdminUserDetails(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	details, err := h.users.Details(r.Context(), p, r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Message: "User fetched successfully", Data: details})
}

func (h *HTTPHandler) SetUserStatus(w http.ResponseWriter, r *http.Request) {
	var req UserStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, _ := PrincipalFrom(r.Context())
	user, err := h.users.SetStatus(r.Context(), p, r.PathValue("id"), domain.UserStatus(req.Status))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Message: "User " + req.Status, Data: user})
}

func (h *HTTPHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	if err := h.users.Delete(r.Context(), p, r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Message: "User deleted"})
}

// decode reads and validates a JSON body, writing a 400 on failure.
func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body", Error: "validation_error"})
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: validationMessage(err), Error: "validation_error"})
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return "invalid field " + fe.Field() + ": failed " + fe.Tag()
	}
	return err.Error()
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, service.ErrPaymentNotCompleted):
		return http.StatusBadRequest, "payment_not_completed"
	case errors.Is(err, service.ErrAmountMismatch):
		return http.StatusBadRequest, "amount_mismatch"
	case errors.Is(err, service.ErrInsufficientInventory):
		return http.StatusBadRequest, "insufficient_inventory"
	case errors.Is(err, service.ErrInvalidState):
		return http.StatusBadRequest, "invalid_state"
	case errors.Is(err, service.ErrDuplicateRequest):
		return http.StatusConflict, "duplicate_request"
	case errors.Is(err, service.ErrRefundFailed):
		return http.StatusInternalServerError, "refund_failed"
	case errors.Is(err, service.ErrGateway):
		return http.StatusInternalServerError, "gateway_error"
	}
	return http.StatusInternalServerError, "internal_error"
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("code", code), zap.Error(err))
		if code == "internal_error" {
			message = "internal server error"
		}
	}
	writeJSON(w, status, errorResponse{Message: message, Error: code})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

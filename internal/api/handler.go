package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"ticket-runners/internal/analytics"
	"ticket-runners/internal/auth"
	"ticket-runners/internal/logger"
	"ticket-runners/internal/models"
	"ticket-runners/internal/sse"
	"ticket-runners/internal/utils"

	"github.com/go-chi/chi/v5"
)

const ServiceRole = "service"

type AssignmentService interface {
	CreateTicketsFromBooking(ctx context.Context, outcome models.PaymentOutcome) ([]models.Ticket, error)
}

type ClaimResolver interface {
	ClaimTicket(ctx context.Context, caller models.CallerContext, ticketID string) (*models.Ticket, error)
}

type TransferEngine interface {
	ProcessTransferPayment(ctx context.Context, outcome models.PaymentOutcome) (*models.TransferRecord, error)
}

type RegistrationResolver interface {
	ReconcileAccountTickets(ctx context.Context, account models.Account) ([]models.Ticket, error)
}

type ViewBuilder interface {
	ListMyTickets(ctx context.Context, caller models.CallerContext) ([]models.Ticket, error)
	ListMyBookings(ctx context.Context, caller models.CallerContext, page int) ([]models.BookingGroup, error)
	ListTicketsBoughtForOthers(ctx context.Context, caller models.CallerContext, page int) ([]models.PurchasedForOther, error)
}

type CheckInService interface {
	RecordCheckIn(ctx context.Context, ticketID string, at time.Time) error
}

type StatsService interface {
	EventOwnershipStats(ctx context.Context, eventID string) (*analytics.EventOwnershipStats, error)
}

type Handler struct {
	Assignment   AssignmentService
	Claims       ClaimResolver
	Transfers    TransferEngine
	Registration RegistrationResolver
	Views        ViewBuilder
	CheckIn      CheckInService
	Stats        StatsService
	Emitter      *sse.OwnershipEventEmitter
	Logger       *logger.Logger
}

func NewHandler(assignment AssignmentService, claims ClaimResolver, transfers TransferEngine, registration RegistrationResolver, views ViewBuilder, checkIn CheckInService, stats StatsService, emitter *sse.OwnershipEventEmitter, log *logger.Logger) *Handler {
	return &Handler{
		Assignment:   assignment,
		Claims:       claims,
		Transfers:    transfers,
		Registration: registration,
		Views:        views,
		CheckIn:      checkIn,
		Stats:        stats,
		Emitter:      emitter,
		Logger:       log,
	}
}

// Routes mounts every endpoint behind the given auth middleware.
func (h *Handler) Routes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)

		r.Get("/tickets", h.ListMyTickets)
		r.Get("/tickets/stream", h.StreamMyTickets)
		r.Get("/bookings", h.ListMyBookings)
		r.Get("/purchases/others", h.ListBoughtForOthers)
		r.Post("/tickets/{ticketId}/claim", h.ClaimTicket)
		r.Post("/tickets/{ticketId}/checkin", h.CheckinTicket)
		r.Get("/events/{eventId}/stats", h.EventStats)

		// Service-to-service endpoints: payment gateway and account service.
		r.Post("/internal/payments", h.IngestPaymentOutcome)
		r.Post("/internal/accounts/registered", h.AccountRegistered)
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, utils.SuccessResponse("ok", nil))
}

func (h *Handler) ListMyTickets(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFrom(r.Context())
	if !ok {
		http.Error(w, "missing caller identity", http.StatusUnauthorized)
		return
	}

	tickets, err := h.Views.ListMyTickets(r.Context(), caller)
	if err != nil {
		h.writeError(w, "ListMyTickets", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("tickets", tickets))
}

func (h *Handler) ListMyBookings(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFrom(r.Context())
	if !ok {
		http.Error(w, "missing caller identity", http.StatusUnauthorized)
		return
	}

	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "invalid page parameter", http.StatusBadRequest)
			return
		}
		page = parsed
	}

	groups, err := h.Views.ListMyBookings(r.Context(), caller, page)
	if err != nil {
		h.writeError(w, "ListMyBookings", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("bookings", groups))
}

func (h *Handler) ListBoughtForOthers(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFrom(r.Context())
	if !ok {
		http.Error(w, "missing caller identity", http.StatusUnauthorized)
		return
	}

	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "invalid page parameter", http.StatusBadRequest)
			return
		}
		page = parsed
	}

	entries, err := h.Views.ListTicketsBoughtForOthers(r.Context(), caller, page)
	if err != nil {
		h.writeError(w, "ListBoughtForOthers", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("purchases for others", entries))
}

func (h *Handler) ClaimTicket(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFrom(r.Context())
	if !ok {
		http.Error(w, "missing caller identity", http.StatusUnauthorized)
		return
	}
	ticketID := chi.URLParam(r, "ticketId")
	h.Logger.Info("API", fmt.Sprintf("ClaimTicket: ticketId=%s account=%s", ticketID, caller.AccountID))

	ticket, err := h.Claims.ClaimTicket(r.Context(), caller, ticketID)
	if err != nil {
		h.writeError(w, "ClaimTicket", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("ticket claimed", ticket))
}

func (h *Handler) CheckinTicket(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFrom(r.Context())
	if !ok {
		http.Error(w, "missing caller identity", http.StatusUnauthorized)
		return
	}
	if caller.Role != "scanner" && caller.Role != ServiceRole {
		http.Error(w, "scanner role required", http.StatusForbidden)
		return
	}

	ticketID := chi.URLParam(r, "ticketId")
	if err := h.CheckIn.RecordCheckIn(r.Context(), ticketID, time.Now()); err != nil {
		h.writeError(w, "CheckinTicket", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("checkin successful", nil))
}

// EventStats reports an event's ownership breakdown. Restricted to organizer
// and service callers.
func (h *Handler) EventStats(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFrom(r.Context())
	if !ok {
		http.Error(w, "missing caller identity", http.StatusUnauthorized)
		return
	}
	if caller.Role != "organizer" && caller.Role != ServiceRole {
		http.Error(w, "organizer role required", http.StatusForbidden)
		return
	}

	eventID := chi.URLParam(r, "eventId")
	stats, err := h.Stats.EventOwnershipStats(r.Context(), eventID)
	if err != nil {
		h.writeError(w, "EventStats", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("event ownership stats", stats))
}

// IngestPaymentOutcome is the gateway-facing entry point. A booking outcome
// creates tickets; a transfer outcome moves one.
func (h *Handler) IngestPaymentOutcome(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFrom(r.Context())
	if !ok || caller.Role != ServiceRole {
		http.Error(w, "service role required", http.StatusForbidden)
		return
	}

	var outcome models.PaymentOutcome
	if err := json.NewDecoder(r.Body).Decode(&outcome); err != nil {
		http.Error(w, "invalid payment outcome JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if outcome.TransactionID == "" {
		http.Error(w, "transaction_id is required", http.StatusBadRequest)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("IngestPaymentOutcome: txn=%s kind=%s", outcome.TransactionID, outcome.Kind))

	switch outcome.Kind {
	case models.PaymentBooking:
		tickets, err := h.Assignment.CreateTicketsFromBooking(r.Context(), outcome)
		if err != nil {
			h.writeError(w, "IngestPaymentOutcome", err)
			return
		}
		writeJSON(w, http.StatusCreated, utils.SuccessResponse("tickets created", tickets))
	case models.PaymentTransfer:
		record, err := h.Transfers.ProcessTransferPayment(r.Context(), outcome)
		if err != nil {
			h.writeError(w, "IngestPaymentOutcome", err)
			return
		}
		writeJSON(w, http.StatusOK, utils.SuccessResponse("transfer completed", record))
	default:
		http.Error(w, fmt.Sprintf("unknown payment kind: %s", outcome.Kind), http.StatusBadRequest)
	}
}

// AccountRegistered lets the account service push a registration
// synchronously; the Kafka consumer covers the async path.
func (h *Handler) AccountRegistered(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFrom(r.Context())
	if !ok || caller.Role != ServiceRole {
		http.Error(w, "service role required", http.StatusForbidden)
		return
	}

	var account models.Account
	if err := json.NewDecoder(r.Body).Decode(&account); err != nil {
		http.Error(w, "invalid account JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if account.ID == "" || account.Phone == "" {
		http.Error(w, "account id and phone are required", http.StatusBadRequest)
		return
	}

	tickets, err := h.Registration.ReconcileAccountTickets(r.Context(), account)
	if err != nil {
		h.writeError(w, "AccountRegistered", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("account reconciled", tickets))
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrInvalidSlotData):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrNotAssignedToYou):
		status = http.StatusForbidden
	case errors.Is(err, models.ErrAlreadyClaimed),
		errors.Is(err, models.ErrAlreadyTransferred),
		errors.Is(err, models.ErrSelfTransfer),
		errors.Is(err, models.ErrInvalidState),
		errors.Is(err, models.ErrConcurrentModification):
		status = http.StatusConflict
	case errors.Is(err, models.ErrTransferDisabled):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrFeeChargeFailed):
		status = http.StatusPaymentRequired
	}

	if status == http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
	} else {
		h.Logger.Warn("API", fmt.Sprintf("%s: %v", op, err))
	}
	writeJSON(w, status, utils.ErrorResponse(op+" failed", err.Error()))
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

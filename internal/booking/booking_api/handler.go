package booking_api

import (
	"fmt"
	"net/http"

	"ms-marketplace/internal/auth"
	"ms-marketplace/internal/booking"
	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"
	"ms-marketplace/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	BookingService *booking.BookingService
	Logger         *logger.Logger
}

func NewHandler(svc *booking.BookingService, log *logger.Logger) *Handler {
	return &Handler{BookingService: svc, Logger: log}
}

func (h *Handler) Routes(r chi.Router) {
	r.Route("/bookings", func(r chi.Router) {
		r.Post("/", h.CreateBooking)
		r.Get("/", h.ListBookings)
		r.Get("/unread", h.UnreadCounts)
		r.Post("/read", h.MarkRead)
		r.Get("/reference/{reference}", h.GetBookingByReference)
		r.Get("/{id}", h.GetBooking)
		r.Post("/{id}/{event}", h.Transition)
	})
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	var req models.BookingRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, "Invalid booking request", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("CreateBooking: agency=%s group=%s seats=%d", actor.AgencyID, req.TicketGroupID, req.SeatsBooked))

	b, err := h.BookingService.CreateBooking(r.Context(), actor, req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateBooking: %v", err))
		utils.WriteError(w, "Booking failed", err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "Booking created", b)
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	b, err := h.BookingService.GetBooking(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		utils.WriteError(w, "Booking not available", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", b)
}

func (h *Handler) GetBookingByReference(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	b, err := h.BookingService.GetBookingByReference(r.Context(), actor, chi.URLParam(r, "reference"))
	if err != nil {
		utils.WriteError(w, "Booking not available", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", b)
}

// ListBookings serves ?type=sales or ?type=purchases (the default).
func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	views, err := h.BookingService.ListBookings(r.Context(), actor, r.URL.Query().Get("type"))
	if err != nil {
		utils.WriteError(w, "Could not list bookings", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", views)
}

func (h *Handler) UnreadCounts(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	counts, err := h.BookingService.UnreadCounts(r.Context(), actor)
	if err != nil {
		utils.WriteError(w, "Could not count unread bookings", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", counts)
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	n, err := h.BookingService.MarkRead(r.Context(), actor, r.URL.Query().Get("type"))
	if err != nil {
		utils.WriteError(w, "Could not mark bookings read", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Bookings marked read", map[string]int64{"updated": n})
}

// Transition applies confirm, reject or cancel. A refused transition
// answers 409 with the booking's current status.
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	id := chi.URLParam(r, "id")
	ev := booking.Event(chi.URLParam(r, "event"))

	b, err := h.BookingService.Transition(r.Context(), actor, id, ev)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("Transition: booking=%s event=%s agency=%s: %v", id, ev, actor.AgencyID, err))
		utils.WriteError(w, "Booking not updated", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("Transition: booking=%s now %s", id, b.Status))
	utils.WriteSuccess(w, http.StatusOK, "Booking "+b.Status, b)
}

package inventory_api

import (
	"fmt"
	"net/http"
	"strconv"

	"ms-marketplace/internal/auth"
	inventory "ms-marketplace/internal/inventory/service"
	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"
	"ms-marketplace/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	InventoryService *inventory.InventoryService
	Logger           *logger.Logger
}

func NewHandler(svc *inventory.InventoryService, log *logger.Logger) *Handler {
	return &Handler{InventoryService: svc, Logger: log}
}

// PublicRoutes are reachable without a token. An optional token widens the
// listing to the caller's own lots.
func (h *Handler) PublicRoutes(r chi.Router) {
	r.Get("/ticket-groups", h.ListTicketGroups)
	r.Get("/ticket-groups/stats", h.MarketplaceStats)
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/ticket-groups", h.CreateTicketGroup)
	r.Get("/ticket-groups/{id}", h.GetTicketGroup)
	r.Put("/ticket-groups/{id}", h.UpdateTicketGroup)
	r.Post("/ticket-groups/{id}/close", h.CloseTicketGroup)
	r.Post("/ticket-groups/{id}/reopen", h.ReopenTicketGroup)
}

func (h *Handler) CreateTicketGroup(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	var req models.TicketGroup
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, "Invalid ticket group", err)
		return
	}

	group, err := h.InventoryService.CreateTicketGroup(r.Context(), actor, req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateTicketGroup: %v", err))
		utils.WriteError(w, "Could not create ticket group", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("CreateTicketGroup: created %s for agency %s", group.ID, group.AgencyID))
	utils.WriteSuccess(w, http.StatusCreated, "Ticket group created", group)
}

func (h *Handler) GetTicketGroup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	group, err := h.InventoryService.GetTicketGroup(r.Context(), id)
	if err != nil {
		utils.WriteError(w, "Ticket group not available", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", group)
}

func (h *Handler) ListTicketGroups(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	f, err := filterFromQuery(r)
	if err != nil {
		utils.WriteError(w, "Invalid filter", err)
		return
	}

	page, err := h.InventoryService.ListTicketGroups(r.Context(), actor, f)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListTicketGroups: %v", err))
		utils.WriteError(w, "Could not list ticket groups", err)
		return
	}
	h.Logger.Debug("API", fmt.Sprintf("ListTicketGroups: %d of %d", len(page.TicketGroups), page.Total))
	utils.WriteSuccess(w, http.StatusOK, "", page)
}

func (h *Handler) UpdateTicketGroup(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	id := chi.URLParam(r, "id")
	var upd models.TicketGroupUpdate
	if err := utils.DecodeJSON(r, &upd); err != nil {
		utils.WriteError(w, "Invalid update", err)
		return
	}

	group, err := h.InventoryService.UpdateTicketGroup(r.Context(), actor, id, upd)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("UpdateTicketGroup: id=%s: %v", id, err))
		utils.WriteError(w, "Could not update ticket group", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Ticket group updated", group)
}

func (h *Handler) CloseTicketGroup(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, models.TicketGroupClosed)
}

func (h *Handler) ReopenTicketGroup(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, models.TicketGroupActive)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request, status string) {
	actor := auth.ActorFrom(r.Context())
	id := chi.URLParam(r, "id")
	group, err := h.InventoryService.SetStatus(r.Context(), actor, id, status)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("SetStatus: id=%s status=%s: %v", id, status, err))
		utils.WriteError(w, "Could not change ticket group status", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Ticket group "+status, group)
}

func (h *Handler) MarketplaceStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.InventoryService.MarketplaceStats(r.Context())
	if err != nil {
		utils.WriteError(w, "Could not load stats", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", stats)
}

func filterFromQuery(r *http.Request) (models.TicketGroupFilter, error) {
	q := r.URL.Query()
	f := models.TicketGroupFilter{
		Sector:     q.Get("sector"),
		Airline:    q.Get("airline"),
		TravelType: q.Get("travel_type"),
		Status:     q.Get("status"),
		SortBy:     q.Get("sort_by"),
		SortOrder:  q.Get("sort_order"),
	}
	if s := q.Get("date"); s != "" {
		d, err := utils.ParseDate(s)
		if err != nil {
			return f, err
		}
		f.Date = &d
	}
	if s := q.Get("mine"); s != "" {
		mine, err := strconv.ParseBool(s)
		if err != nil {
			return f, models.InvalidInput("mine must be a boolean")
		}
		f.OwnedOnly = mine
	}
	var err error
	if f.Page, err = intParam(q.Get("page")); err != nil {
		return f, err
	}
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		return f, err
	}
	return f, nil
}

// intParam parses an optional positive integer. Zero means default.
func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, models.InvalidInput("expected a non-negative integer, got %q", s)
	}
	return n, nil
}

package analytics_api

import (
	"fmt"
	"net/http"
	"strconv"

	"ms-marketplace/internal/analytics"
	"ms-marketplace/internal/auth"
	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"
	"ms-marketplace/internal/utils"

	"github.com/go-chi/chi/v5"
)

// Handler handles report HTTP endpoints
type Handler struct {
	Service *analytics.Service
	Logger  *logger.Logger
}

func NewHandler(service *analytics.Service, logger *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: logger}
}

// RegisterRoutes registers the report routes on a chi router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.Get("/ticket-sales", h.GetTicketSales)
		r.Get("/cash-flow", h.GetCashFlow)
		r.Get("/top-customers", h.GetTopCustomers)
		r.Get("/summary", h.GetSummary)
	})
}

func (h *Handler) GetTicketSales(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	rng, err := utils.DateRangeFromQuery(r)
	if err != nil {
		utils.WriteError(w, "Invalid date range", err)
		return
	}
	h.Logger.Debug("ANALYTICS", fmt.Sprintf("Ticket sales report for agency %s", actor.AgencyID))

	report, err := h.Service.GetTicketSalesReport(r.Context(), actor, rng)
	if err != nil {
		h.Logger.Error("ANALYTICS", fmt.Sprintf("Ticket sales report failed: %v", err))
		utils.WriteError(w, "Could not build ticket sales report", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", report)
}

func (h *Handler) GetCashFlow(w http.ResponseWriter, r *http.Request) {
	rng, err := utils.DateRangeFromQuery(r)
	if err != nil {
		utils.WriteError(w, "Invalid date range", err)
		return
	}
	flow, err := h.Service.GetCashFlow(r.Context(), auth.ActorFrom(r.Context()), rng)
	if err != nil {
		utils.WriteError(w, "Could not build cash flow", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", flow)
}

func (h *Handler) GetTopCustomers(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			utils.WriteError(w, "Invalid limit", models.InvalidInput("limit must be a number"))
			return
		}
		limit = n
	}
	top, err := h.Service.GetTopCustomers(r.Context(), auth.ActorFrom(r.Context()), limit)
	if err != nil {
		utils.WriteError(w, "Could not rank customers", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", top)
}

func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	rng, err := utils.DateRangeFromQuery(r)
	if err != nil {
		utils.WriteError(w, "Invalid date range", err)
		return
	}
	summary, err := h.Service.GetSummary(r.Context(), auth.ActorFrom(r.Context()), rng)
	if err != nil {
		utils.WriteError(w, "Could not build summary", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", summary)
}

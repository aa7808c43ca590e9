package ledger_api

import (
	"fmt"
	"net/http"

	"ms-marketplace/internal/auth"
	"ms-marketplace/internal/ledger"
	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"
	"ms-marketplace/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type Handler struct {
	LedgerService *ledger.LedgerService
	Logger        *logger.Logger
}

func NewHandler(svc *ledger.LedgerService, log *logger.Logger) *Handler {
	return &Handler{LedgerService: svc, Logger: log}
}

// CreditRequest is the short form of a customer payment.
type CreditRequest struct {
	CustomerID string          `json:"customer_id"`
	Amount     decimal.Decimal `json:"amount"`
	BookingID  *string         `json:"booking_id"`
}

// TotalsResponse is the response format for the ledger totals endpoint.
type TotalsResponse struct {
	Debit  models.DebitTotals `json:"debit"`
	Credit decimal.Decimal    `json:"credit"`
}

type totalRequest struct {
	TotalAmount decimal.Decimal `json:"total_amount"`
}

func (h *Handler) Routes(r chi.Router) {
	r.Route("/ledger", func(r chi.Router) {
		r.Post("/credits", h.ApplyCredit)
		r.Get("/totals", h.Totals)
		r.Get("/stats", h.Stats)

		r.Route("/entries", func(r chi.Router) {
			r.Post("/", h.CreateEntry)
			r.Get("/", h.ListEntries)
			r.Get("/{id}", h.GetEntry)
			r.Put("/{id}", h.UpdateEntry)
			r.Delete("/{id}", h.DeleteEntry)
			r.Post("/{id}/revert", h.RevertCredit)
		})

		r.Route("/sales-bookings", func(r chi.Router) {
			r.Post("/", h.CreateSalesBooking)
			r.Get("/unpaid", h.ListUnpaid)
			r.Get("/{id}", h.GetSalesBooking)
			r.Put("/{id}/total", h.UpdateSalesBookingTotal)
		})

		r.Route("/expenses", func(r chi.Router) {
			r.Post("/", h.CreateMiscExpense)
			r.Get("/", h.ListMiscExpenses)
			r.Put("/{id}", h.UpdateMiscExpense)
			r.Delete("/{id}", h.DeleteMiscExpense)
		})

		r.Route("/agent-payments", func(r chi.Router) {
			r.Post("/", h.CreateAgentPayment)
			r.Get("/", h.ListAgentPayments)
			r.Delete("/{id}", h.DeleteAgentPayment)
		})
	})
}

// ---------------- ENTRIES ----------------

func (h *Handler) ApplyCredit(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	var req CreditRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, "Invalid credit", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("ApplyCredit: agency=%s customer=%s amount=%s", actor.AgencyID, req.CustomerID, req.Amount))

	result, err := h.LedgerService.ApplyCredit(r.Context(), actor, req.CustomerID, req.Amount, req.BookingID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ApplyCredit: %v", err))
		utils.WriteError(w, "Credit not applied", err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "Credit applied", result)
}

func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	var req models.LedgerEntryRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, "Invalid ledger entry", err)
		return
	}

	result, err := h.LedgerService.CreateEntry(r.Context(), actor, req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateEntry: %v", err))
		utils.WriteError(w, "Ledger entry not created", err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "Ledger entry created", result)
}

// ListEntries accepts ?type=Credit|Debit and an optional date window.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	rng, err := utils.DateRangeFromQuery(r)
	if err != nil {
		utils.WriteError(w, "Invalid date range", err)
		return
	}
	entries, err := h.LedgerService.ListEntries(r.Context(), actor, r.URL.Query().Get("type"), rng)
	if err != nil {
		utils.WriteError(w, "Could not list ledger entries", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", entries)
}

func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	result, err := h.LedgerService.GetEntry(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		utils.WriteError(w, "Ledger entry not available", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", result)
}

func (h *Handler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	id := chi.URLParam(r, "id")
	var req models.LedgerEntryRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, "Invalid ledger entry", err)
		return
	}

	result, err := h.LedgerService.UpdateEntry(r.Context(), actor, id, req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("UpdateEntry: id=%s: %v", id, err))
		utils.WriteError(w, "Ledger entry not updated", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Ledger entry updated", result)
}

func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	id := chi.URLParam(r, "id")
	if err := h.LedgerService.DeleteEntry(r.Context(), actor, id); err != nil {
		h.Logger.Error("API", fmt.Sprintf("DeleteEntry: id=%s: %v", id, err))
		utils.WriteError(w, "Ledger entry not deleted", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Ledger entry deleted", nil)
}

func (h *Handler) RevertCredit(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	id := chi.URLParam(r, "id")
	entry, err := h.LedgerService.RevertCredit(r.Context(), actor, id)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("RevertCredit: id=%s: %v", id, err))
		utils.WriteError(w, "Credit not reverted", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Credit reverted", entry)
}

// ---------------- REPORTS ----------------

func (h *Handler) Totals(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	if actor.AgencyID == "" {
		utils.WriteError(w, "Totals need an agency", fmt.Errorf("actor has no agency: %w", models.ErrForbidden))
		return
	}
	rng, err := utils.DateRangeFromQuery(r)
	if err != nil {
		utils.WriteError(w, "Invalid date range", err)
		return
	}

	debit, err := h.LedgerService.CalculateTotalDebit(r.Context(), actor.AgencyID, rng)
	if err != nil {
		utils.WriteError(w, "Could not total debits", err)
		return
	}
	credit, err := h.LedgerService.CalculateTotalCredit(r.Context(), actor.AgencyID, rng)
	if err != nil {
		utils.WriteError(w, "Could not total credits", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", TotalsResponse{Debit: *debit, Credit: credit})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.LedgerService.AccountingStats(r.Context(), auth.ActorFrom(r.Context()))
	if err != nil {
		utils.WriteError(w, "Could not load accounting stats", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", stats)
}

// ---------------- SALES BOOKINGS ----------------

func (h *Handler) CreateSalesBooking(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	var req models.SalesBookingRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, "Invalid sales booking", err)
		return
	}
	b, err := h.LedgerService.CreateSalesBooking(r.Context(), actor, req)
	if err != nil {
		utils.WriteError(w, "Sales booking not created", err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "Sales booking created", b)
}

func (h *Handler) GetSalesBooking(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	b, err := h.LedgerService.GetSalesBooking(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		utils.WriteError(w, "Sales booking not available", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", b)
}

func (h *Handler) ListUnpaid(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.LedgerService.ListUnpaid(r.Context(), auth.ActorFrom(r.Context()))
	if err != nil {
		utils.WriteError(w, "Could not list unpaid bookings", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", bookings)
}

func (h *Handler) UpdateSalesBookingTotal(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	id := chi.URLParam(r, "id")
	var req totalRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, "Invalid total", err)
		return
	}
	b, err := h.LedgerService.UpdateSalesBookingTotal(r.Context(), actor, id, req.TotalAmount)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("UpdateSalesBookingTotal: id=%s: %v", id, err))
		utils.WriteError(w, "Sales booking not updated", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Sales booking updated", b)
}

// ---------------- EXPENSES ----------------

func (h *Handler) CreateMiscExpense(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	var req models.MiscExpense
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, "Invalid expense", err)
		return
	}
	e, err := h.LedgerService.CreateMiscExpense(r.Context(), actor, req)
	if err != nil {
		utils.WriteError(w, "Expense not recorded", err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "Expense recorded", e)
}

func (h *Handler) ListMiscExpenses(w http.ResponseWriter, r *http.Request) {
	list, err := h.LedgerService.ListMiscExpenses(r.Context(), auth.ActorFrom(r.Context()))
	if err != nil {
		utils.WriteError(w, "Could not list expenses", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", list)
}

func (h *Handler) UpdateMiscExpense(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	var upd models.MiscExpenseUpdate
	if err := utils.DecodeJSON(r, &upd); err != nil {
		utils.WriteError(w, "Invalid expense", err)
		return
	}
	e, err := h.LedgerService.UpdateMiscExpense(r.Context(), actor, chi.URLParam(r, "id"), upd)
	if err != nil {
		utils.WriteError(w, "Expense not updated", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Expense updated", e)
}

func (h *Handler) DeleteMiscExpense(w http.ResponseWriter, r *http.Request) {
	if err := h.LedgerService.DeleteMiscExpense(r.Context(), auth.ActorFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		utils.WriteError(w, "Expense not deleted", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Expense deleted", nil)
}

func (h *Handler) CreateAgentPayment(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	var req models.AgentPayment
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, "Invalid agent payment", err)
		return
	}
	p, err := h.LedgerService.CreateAgentPayment(r.Context(), actor, req)
	if err != nil {
		utils.WriteError(w, "Agent payment not recorded", err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "Agent payment recorded", p)
}

func (h *Handler) ListAgentPayments(w http.ResponseWriter, r *http.Request) {
	list, err := h.LedgerService.ListAgentPayments(r.Context(), auth.ActorFrom(r.Context()))
	if err != nil {
		utils.WriteError(w, "Could not list agent payments", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", list)
}

func (h *Handler) DeleteAgentPayment(w http.ResponseWriter, r *http.Request) {
	if err := h.LedgerService.DeleteAgentPayment(r.Context(), auth.ActorFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		utils.WriteError(w, "Agent payment not deleted", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Agent payment deleted", nil)
}

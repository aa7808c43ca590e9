package reconcile_api

import (
	"fmt"
	"net/http"

	"ms-marketplace/internal/auth"
	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"
	"ms-marketplace/internal/reconcile"
	"ms-marketplace/internal/utils"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the seat reconciliation report to platform admins.
type Handler struct {
	Reconciler *reconcile.Reconciler
	Logger     *logger.Logger
}

func NewHandler(rec *reconcile.Reconciler, log *logger.Logger) *Handler {
	return &Handler{Reconciler: rec, Logger: log}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/admin/reconciliation", h.Report)
	r.Post("/admin/reconciliation/fix", h.Fix)
}

func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	if !h.allowed(w, r) {
		return
	}
	drifts, err := h.Reconciler.Scan(r.Context())
	if err != nil {
		utils.WriteError(w, "Reconciliation scan failed", err)
		return
	}
	if drifts == nil {
		drifts = []reconcile.Drift{}
	}
	utils.WriteSuccess(w, http.StatusOK, fmt.Sprintf("%d ticket groups drifting", len(drifts)), drifts)
}

func (h *Handler) Fix(w http.ResponseWriter, r *http.Request) {
	if !h.allowed(w, r) {
		return
	}
	actor := auth.ActorFrom(r.Context())
	drifts, err := h.Reconciler.Fix(r.Context())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Reconciliation fix by %s failed: %v", actor.UserID, err))
		utils.WriteError(w, "Reconciliation fix failed", err)
		return
	}
	if drifts == nil {
		drifts = []reconcile.Drift{}
	}
	h.Logger.Info("API", fmt.Sprintf("Reconciliation fix by %s touched %d ticket groups", actor.UserID, len(drifts)))
	utils.WriteSuccess(w, http.StatusOK, "Reconciliation complete", drifts)
}

func (h *Handler) allowed(w http.ResponseWriter, r *http.Request) bool {
	actor := auth.ActorFrom(r.Context())
	if actor.IsSuperAdmin() {
		return true
	}
	h.Logger.LogSecurity("RECONCILE_FORBIDDEN", fmt.Sprintf("user %s of agency %s", actor.UserID, actor.AgencyID))
	utils.WriteError(w, "Reconciliation is restricted", fmt.Errorf("superadmin only: %w", models.ErrForbidden))
	return false
}

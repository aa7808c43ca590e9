package reconcile_api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ms-marketplace/internal/auth"
	booking_db "ms-marketplace/internal/booking/db"
	"ms-marketplace/internal/database"
	inventory_db "ms-marketplace/internal/inventory/db"
	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"
	"ms-marketplace/internal/reconcile"
	"ms-marketplace/internal/reconcile/reconcile_api"
	"ms-marketplace/internal/reservation"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconciliationEndpoints(t *testing.T) {
	db, err := database.OpenMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	now := time.Now().UTC()
	_, err = db.NewInsert().Model(&models.TicketGroup{
		ID: "lot-1", AgencyID: "seller", Airline: "Flydubai", Sector: "DXB-KHI", TravelType: "one_way",
		Date: now.Add(24 * time.Hour), PricePerSeat: decimal.NewFromInt(90),
		TotalSeats: 6, AvailableSeats: 2, Status: models.TicketGroupActive, CreatedAt: now, UpdatedAt: now,
	}).Exec(context.Background())
	require.NoError(t, err)

	log := logger.Nop()
	engine := reservation.NewEngine(db, log, 0)
	rec := reconcile.NewReconciler(&inventory_db.DB{Bun: db}, &booking_db.DB{Bun: db}, engine, log, 0)
	h := reconcile_api.NewHandler(rec, log)

	serve := func(actor models.Actor, method, path string) (int, []reconcile.Drift) {
		r := chi.NewRouter()
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(auth.WithActor(req.Context(), actor)))
			})
		})
		h.Routes(r)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(method, path, nil))

		var env struct {
			Data []reconcile.Drift `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
		return rr.Code, env.Data
	}

	admin := models.Actor{UserID: "ops", Role: models.RoleSuperAdmin}
	agent := models.Actor{AgencyID: "seller", UserID: "a", Role: models.RoleAgencyAdmin}

	code, _ := serve(agent, http.MethodGet, "/admin/reconciliation")
	assert.Equal(t, http.StatusForbidden, code)

	code, drifts := serve(admin, http.MethodGet, "/admin/reconciliation")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, drifts, 1)
	assert.Equal(t, 4, drifts[0].Missing())

	code, drifts = serve(admin, http.MethodPost, "/admin/reconciliation/fix")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, drifts, 1)
	assert.True(t, drifts[0].Fixed)

	code, drifts = serve(admin, http.MethodGet, "/admin/reconciliation")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, drifts)
}

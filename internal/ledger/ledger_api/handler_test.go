package ledger_api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ms-marketplace/internal/auth"
	"ms-marketplace/internal/database"
	"ms-marketplace/internal/ledger"
	ledger_db "ms-marketplace/internal/ledger/db"
	"ms-marketplace/internal/ledger/ledger_api"
	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var accountant = models.Actor{AgencyID: "agency-1", UserID: "acc-1", Role: models.RoleAgencyAdmin}

type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func setup(t *testing.T) *ledger_api.Handler {
	db, err := database.OpenMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logger.Nop()
	svc := ledger.NewLedgerService(&ledger_db.DB{Bun: db}, db, nil, nil, log, 3)
	start := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	tick := 0
	svc.Now = func() time.Time {
		tick++
		return start.Add(time.Duration(tick) * time.Second)
	}
	return ledger_api.NewHandler(svc, log)
}

func router(h *ledger_api.Handler, actor models.Actor) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(auth.WithActor(req.Context(), actor)))
		})
	})
	h.Routes(r)
	return r
}

func call(t *testing.T, rt http.Handler, method, path string, body interface{}, out interface{}) int {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	if out != nil && env.Success {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
	return rec.Code
}

func salesBooking(t *testing.T, rt http.Handler, customer, number, total string) models.SalesBooking {
	var b models.SalesBooking
	code := call(t, rt, http.MethodPost, "/ledger/sales-bookings", models.SalesBookingRequest{
		CustomerID: customer, BookingNumber: number, TotalAmount: dec(total),
	}, &b)
	require.Equal(t, http.StatusCreated, code)
	return b
}

func TestApplyCredit_FIFOOverHTTP(t *testing.T) {
	rt := router(setup(t), accountant)
	first := salesBooking(t, rt, "cust-9", "SB-1", "40")
	second := salesBooking(t, rt, "cust-9", "SB-2", "60")

	var result models.CreditResult
	code := call(t, rt, http.MethodPost, "/ledger/credits", ledger_api.CreditRequest{CustomerID: "cust-9", Amount: dec("50")}, &result)
	require.Equal(t, http.StatusCreated, code)
	require.Len(t, result.Allocations, 2)
	assert.Equal(t, first.ID, result.Allocations[0].BookingID)
	assert.True(t, dec("40").Equal(result.Allocations[0].Amount))
	assert.True(t, dec("10").Equal(result.Allocations[1].Amount))

	var got models.SalesBooking
	require.Equal(t, http.StatusOK, call(t, rt, http.MethodGet, "/ledger/sales-bookings/"+second.ID, nil, &got))
	assert.True(t, dec("50").Equal(got.BalanceDue))

	var unpaid []models.SalesBooking
	require.Equal(t, http.StatusOK, call(t, rt, http.MethodGet, "/ledger/sales-bookings/unpaid", nil, &unpaid))
	require.Len(t, unpaid, 1)
	assert.Equal(t, second.ID, unpaid[0].ID)
}

func TestRevertCredit(t *testing.T) {
	rt := router(setup(t), accountant)
	b := salesBooking(t, rt, "cust-1", "SB-9", "100")

	var result models.CreditResult
	require.Equal(t, http.StatusCreated, call(t, rt, http.MethodPost, "/ledger/credits",
		ledger_api.CreditRequest{Amount: dec("30"), BookingID: &b.ID}, &result))

	var entry models.LedgerEntry
	require.Equal(t, http.StatusOK, call(t, rt, http.MethodPost, "/ledger/entries/"+result.Entry.ID+"/revert", nil, &entry))
	assert.True(t, dec("30").Equal(entry.UnallocatedAmount))

	var got models.SalesBooking
	require.Equal(t, http.StatusOK, call(t, rt, http.MethodGet, "/ledger/sales-bookings/"+b.ID, nil, &got))
	assert.True(t, dec("100").Equal(got.BalanceDue))
}

func TestEntries_ValidationAndNotFound(t *testing.T) {
	rt := router(setup(t), accountant)

	code := call(t, rt, http.MethodPost, "/ledger/entries", models.LedgerEntryRequest{
		Type: "Refund", Amount: dec("10"), Description: "x",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code = call(t, rt, http.MethodPost, "/ledger/entries", models.LedgerEntryRequest{
		Type: models.EntryDebit, Amount: dec("10.005"), Description: "rent",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	assert.Equal(t, http.StatusNotFound, call(t, rt, http.MethodGet, "/ledger/entries/missing", nil, nil))
	assert.Equal(t, http.StatusNotFound, call(t, rt, http.MethodDelete, "/ledger/entries/missing", nil, nil))
	assert.Equal(t, http.StatusBadRequest, call(t, rt, http.MethodGet, "/ledger/entries?type=Refund", nil, nil))
	assert.Equal(t, http.StatusBadRequest, call(t, rt, http.MethodGet, "/ledger/entries?start_date=yesterday", nil, nil))
}

func TestTotalsAndStats(t *testing.T) {
	rt := router(setup(t), accountant)
	day := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)

	require.Equal(t, http.StatusCreated, call(t, rt, http.MethodPost, "/ledger/entries", models.LedgerEntryRequest{
		Type: models.EntryCredit, Amount: dec("200"), Date: &day, Description: "walk-in payment",
	}, nil))
	require.Equal(t, http.StatusCreated, call(t, rt, http.MethodPost, "/ledger/entries", models.LedgerEntryRequest{
		Type: models.EntryDebit, Amount: dec("45.50"), Date: &day, Description: "office rent",
	}, nil))
	require.Equal(t, http.StatusCreated, call(t, rt, http.MethodPost, "/ledger/expenses", models.MiscExpense{
		Title: "Printer ink", Amount: dec("4.50"), ExpenseDate: day,
	}, nil))

	var totals ledger_api.TotalsResponse
	require.Equal(t, http.StatusOK, call(t, rt, http.MethodGet, "/ledger/totals?start_date=2026-05-04&end_date=2026-05-04", nil, &totals))
	assert.True(t, dec("200").Equal(totals.Credit))
	assert.True(t, dec("50").Equal(totals.Debit.Total))

	require.Equal(t, http.StatusOK, call(t, rt, http.MethodGet, "/ledger/totals?start_date=2026-05-05", nil, &totals))
	assert.True(t, totals.Credit.IsZero())

	var stats models.AccountingStats
	require.Equal(t, http.StatusOK, call(t, rt, http.MethodGet, "/ledger/stats", nil, &stats))
	assert.True(t, dec("150").Equal(stats.NetProfit))

	noAgency := router(setup(t), models.Actor{UserID: "root", Role: models.RoleSuperAdmin})
	assert.Equal(t, http.StatusForbidden, call(t, noAgency, http.MethodGet, "/ledger/totals", nil, nil))
	assert.Equal(t, http.StatusForbidden, call(t, noAgency, http.MethodGet, "/ledger/stats", nil, nil))
}

func TestExpenseAndAgentPaymentLifecycle(t *testing.T) {
	rt := router(setup(t), accountant)

	var e models.MiscExpense
	require.Equal(t, http.StatusCreated, call(t, rt, http.MethodPost, "/ledger/expenses", models.MiscExpense{
		Title: "Courier", Amount: dec("12"),
	}, &e))

	title := "Courier (DHL)"
	var updated models.MiscExpense
	require.Equal(t, http.StatusOK, call(t, rt, http.MethodPut, "/ledger/expenses/"+e.ID, models.MiscExpenseUpdate{Title: &title}, &updated))
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, http.StatusOK, call(t, rt, http.MethodDelete, "/ledger/expenses/"+e.ID, nil, nil))
	assert.Equal(t, http.StatusNotFound, call(t, rt, http.MethodDelete, "/ledger/expenses/"+e.ID, nil, nil))

	var p models.AgentPayment
	require.Equal(t, http.StatusCreated, call(t, rt, http.MethodPost, "/ledger/agent-payments", models.AgentPayment{
		AgentName: "Bilal", AmountPaid: dec("300"),
	}, &p))
	var list []models.AgentPayment
	require.Equal(t, http.StatusOK, call(t, rt, http.MethodGet, "/ledger/agent-payments", nil, &list))
	assert.Len(t, list, 1)
	assert.Equal(t, http.StatusOK, call(t, rt, http.MethodDelete, "/ledger/agent-payments/"+p.ID, nil, nil))
}

func TestUpdateSalesBookingTotal(t *testing.T) {
	rt := router(setup(t), accountant)
	b := salesBooking(t, rt, "cust-2", "SB-7", "80")

	var got models.SalesBooking
	require.Equal(t, http.StatusOK, call(t, rt, http.MethodPut, "/ledger/sales-bookings/"+b.ID+"/total",
		map[string]string{"total_amount": "95.00"}, &got))
	assert.True(t, dec("95").Equal(got.BalanceDue))
	assert.Equal(t, int64(1), got.Version)
}

// Package analytics builds an agency's sales and cash reports from the
// marketplace and ledger tables.
package analytics

import (
	"context"
	"fmt"
	"sort"

	"ms-marketplace/internal/models"

	"github.com/shopspring/decimal"
)

const (
	DefaultTopCustomers = 10
	MaxTopCustomers     = 100
)

type ReportsDBLayer interface {
	SellerBookings(ctx context.Context, agencyID string, r models.DateRange) ([]models.TicketBooking, error)
	LedgerEntries(ctx context.Context, agencyID string, r models.DateRange) ([]models.LedgerEntry, error)
	TopCustomers(ctx context.Context, agencyID string, limit int) ([]CustomerTotalsData, error)
	Outstanding(ctx context.Context, agencyID string) (decimal.Decimal, int, error)
}

// Service handles report operations
type Service struct {
	DB ReportsDBLayer
}

func NewService(db ReportsDBLayer) *Service {
	return &Service{DB: db}
}

// TicketSalesReport summarizes what an agency sold on the marketplace.
// Revenue and seats count confirmed bookings only.
type TicketSalesReport struct {
	AgencyID         string              `json:"agency_id"`
	TotalRevenue     decimal.Decimal     `json:"total_revenue"`
	TotalSeatsSold   int                 `json:"total_seats_sold"`
	BookingsByStatus map[string]int      `json:"bookings_by_status"`
	DailySales       []DailySalesMetrics `json:"daily_sales"`
	SalesByLot       []LotSalesMetrics   `json:"sales_by_ticket_group"`
}

// DailySalesMetrics contains metrics for a single day
type DailySalesMetrics struct {
	Date      string          `json:"date"`
	Revenue   decimal.Decimal `json:"revenue"`
	SeatsSold int             `json:"seats_sold"`
}

type LotSalesMetrics struct {
	TicketGroupID string          `json:"ticket_group_id"`
	SeatsSold     int             `json:"seats_sold"`
	Revenue       decimal.Decimal `json:"revenue"`
}

// CashFlowDay is one day of money in and out of the ledger.
type CashFlowDay struct {
	Date   string          `json:"date"`
	Credit decimal.Decimal `json:"credit"`
	Debit  decimal.Decimal `json:"debit"`
	Net    decimal.Decimal `json:"net"`
}

type TopCustomer struct {
	CustomerID   string          `json:"customer_id"`
	TotalSpend   decimal.Decimal `json:"total_spend"`
	BookingCount int             `json:"booking_count"`
	TotalBalance decimal.Decimal `json:"total_balance"`
}

type Summary struct {
	TotalCredit       decimal.Decimal `json:"total_credit"`
	TotalDebit        decimal.Decimal `json:"total_debit"`
	Net               decimal.Decimal `json:"net"`
	PendingBalance    decimal.Decimal `json:"pending_balance"`
	OpenSalesBookings int             `json:"open_sales_bookings"`
}

// GetTicketSalesReport returns revenue analytics for the agency's lots.
func (s *Service) GetTicketSalesReport(ctx context.Context, actor models.Actor, r models.DateRange) (*TicketSalesReport, error) {
	if err := requireAgency(actor); err != nil {
		return nil, err
	}
	bookings, err := s.DB.SellerBookings(ctx, actor.AgencyID, r)
	if err != nil {
		return nil, err
	}

	report := &TicketSalesReport{
		AgencyID:         actor.AgencyID,
		TotalRevenue:     decimal.Zero,
		BookingsByStatus: map[string]int{},
		DailySales:       []DailySalesMetrics{},
		SalesByLot:       []LotSalesMetrics{},
	}
	daily := map[string]*DailySalesMetrics{}
	lots := map[string]*LotSalesMetrics{}
	var days, lotIDs []string

	for _, b := range bookings {
		report.BookingsByStatus[b.Status]++
		if b.Status != models.BookingConfirmed {
			continue
		}
		report.TotalRevenue = report.TotalRevenue.Add(b.TotalPrice)
		report.TotalSeatsSold += b.SeatsBooked

		d := day(b.CreatedAt)
		if daily[d] == nil {
			daily[d] = &DailySalesMetrics{Date: d, Revenue: decimal.Zero}
			days = append(days, d)
		}
		daily[d].Revenue = daily[d].Revenue.Add(b.TotalPrice)
		daily[d].SeatsSold += b.SeatsBooked

		if lots[b.TicketGroupID] == nil {
			lots[b.TicketGroupID] = &LotSalesMetrics{TicketGroupID: b.TicketGroupID, Revenue: decimal.Zero}
			lotIDs = append(lotIDs, b.TicketGroupID)
		}
		lots[b.TicketGroupID].Revenue = lots[b.TicketGroupID].Revenue.Add(b.TotalPrice)
		lots[b.TicketGroupID].SeatsSold += b.SeatsBooked
	}

	sort.Strings(days)
	for _, d := range days {
		report.DailySales = append(report.DailySales, *daily[d])
	}
	for _, id := range lotIDs {
		report.SalesByLot = append(report.SalesByLot, *lots[id])
	}
	sort.SliceStable(report.SalesByLot, func(i, j int) bool {
		return report.SalesByLot[i].Revenue.GreaterThan(report.SalesByLot[j].Revenue)
	})
	return report, nil
}

// GetCashFlow groups ledger entries by day.
func (s *Service) GetCashFlow(ctx context.Context, actor models.Actor, r models.DateRange) ([]CashFlowDay, error) {
	if err := requireAgency(actor); err != nil {
		return nil, err
	}
	entries, err := s.DB.LedgerEntries(ctx, actor.AgencyID, r)
	if err != nil {
		return nil, err
	}

	flow := []CashFlowDay{}
	index := map[string]int{}
	for _, e := range entries {
		d := day(e.Date)
		i, ok := index[d]
		if !ok {
			i = len(flow)
			index[d] = i
			flow = append(flow, CashFlowDay{Date: d, Credit: decimal.Zero, Debit: decimal.Zero})
		}
		if e.Type == models.EntryCredit {
			flow[i].Credit = flow[i].Credit.Add(e.Amount)
		} else {
			flow[i].Debit = flow[i].Debit.Add(e.Amount)
		}
	}
	for i := range flow {
		flow[i].Net = flow[i].Credit.Sub(flow[i].Debit)
	}
	return flow, nil
}

func (s *Service) GetTopCustomers(ctx context.Context, actor models.Actor, limit int) ([]TopCustomer, error) {
	if err := requireAgency(actor); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultTopCustomers
	}
	if limit > MaxTopCustomers {
		limit = MaxTopCustomers
	}
	rows, err := s.DB.TopCustomers(ctx, actor.AgencyID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]TopCustomer, 0, len(rows))
	for _, row := range rows {
		out = append(out, TopCustomer{
			CustomerID:   row.CustomerID,
			TotalSpend:   row.TotalSpend.Round(2),
			BookingCount: row.BookingCount,
			TotalBalance: row.TotalBalance.Round(2),
		})
	}
	return out, nil
}

// GetSummary totals the ledger over the range and adds what customers owe now.
func (s *Service) GetSummary(ctx context.Context, actor models.Actor, r models.DateRange) (*Summary, error) {
	flow, err := s.GetCashFlow(ctx, actor, r)
	if err != nil {
		return nil, err
	}
	sum := &Summary{TotalCredit: decimal.Zero, TotalDebit: decimal.Zero}
	for _, d := range flow {
		sum.TotalCredit = sum.TotalCredit.Add(d.Credit)
		sum.TotalDebit = sum.TotalDebit.Add(d.Debit)
	}
	sum.Net = sum.TotalCredit.Sub(sum.TotalDebit)

	sum.PendingBalance, sum.OpenSalesBookings, err = s.DB.Outstanding(ctx, actor.AgencyID)
	if err != nil {
		return nil, err
	}
	return sum, nil
}

func requireAgency(actor models.Actor) error {
	if actor.AgencyID == "" {
		return fmt.Errorf("actor has no agency: %w", models.ErrForbidden)
	}
	return nil
}

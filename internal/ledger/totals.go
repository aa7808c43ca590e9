package ledger

import (
	"context"
	"time"

	"ms-marketplace/internal/models"

	"github.com/shopspring/decimal"
)

// CalculateTotalDebit adds up everything that left the agency in the range:
// ledger debits, payments to agents and miscellaneous expenses.
func (s *LedgerService) CalculateTotalDebit(ctx context.Context, agencyID string, r models.DateRange) (*models.DebitTotals, error) {
	debits, err := s.DB.SumEntries(ctx, agencyID, models.EntryDebit, r)
	if err != nil {
		return nil, err
	}
	agents, err := s.DB.SumAgentPayments(ctx, agencyID, r)
	if err != nil {
		return nil, err
	}
	misc, err := s.DB.SumMiscExpenses(ctx, agencyID, r)
	if err != nil {
		return nil, err
	}
	return &models.DebitTotals{
		LedgerDebits:  debits,
		AgentPayments: agents,
		MiscExpenses:  misc,
		Total:         debits.Add(agents).Add(misc),
	}, nil
}

func (s *LedgerService) CalculateTotalCredit(ctx context.Context, agencyID string, r models.DateRange) (decimal.Decimal, error) {
	return s.DB.SumEntries(ctx, agencyID, models.EntryCredit, r)
}

// AccountingStats summarizes the agency's books. Today's sales are the
// bookings opened today plus the credits dated today.
func (s *LedgerService) AccountingStats(ctx context.Context, actor models.Actor) (*models.AccountingStats, error) {
	if err := requireAgency(actor); err != nil {
		return nil, err
	}
	now := s.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	sales, err := s.DB.SumSalesCreatedSince(ctx, actor.AgencyID, today)
	if err != nil {
		return nil, err
	}
	todayCredits, err := s.CalculateTotalCredit(ctx, actor.AgencyID, models.DateRange{Start: &today})
	if err != nil {
		return nil, err
	}
	income, err := s.CalculateTotalCredit(ctx, actor.AgencyID, models.DateRange{})
	if err != nil {
		return nil, err
	}
	expenses, err := s.CalculateTotalDebit(ctx, actor.AgencyID, models.DateRange{})
	if err != nil {
		return nil, err
	}

	return &models.AccountingStats{
		TodaySales:    sales.Add(todayCredits),
		TotalIncome:   income,
		TotalExpenses: expenses.Total,
		NetProfit:     income.Sub(expenses.Total),
	}, nil
}

package ledger

import (
	"context"
	"fmt"
	"strings"

	"ms-marketplace/internal/metrics"
	"ms-marketplace/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// applyTx puts a credit entry's amount on sales bookings and returns the
// allocation rows to persist. Whatever is left stays on the entry as
// unallocated.
func (s *LedgerService) applyTx(ctx context.Context, tx bun.IDB, entry *models.LedgerEntry) ([]models.LedgerAllocation, error) {
	entry.UnallocatedAmount = decimal.Zero

	var explicit *models.SalesBooking
	if entry.BookingID != nil {
		b, err := s.DB.GetSalesBookingTx(ctx, tx, entry.AgencyID, *entry.BookingID)
		if err != nil {
			return nil, err
		}
		if entry.CustomerID != nil && b.CustomerID != *entry.CustomerID {
			return nil, models.InvalidInput("booking %s does not belong to customer %s", b.ID, *entry.CustomerID)
		}
		explicit = b
	}

	if entry.Type != models.EntryCredit {
		return nil, nil
	}

	switch {
	case explicit != nil:
		metrics.CreditsApplied.WithLabelValues("explicit").Inc()
		alloc, err := s.pay(ctx, tx, entry, explicit, entry.Amount)
		if err != nil {
			return nil, err
		}
		return []models.LedgerAllocation{alloc}, nil

	case entry.CustomerID != nil:
		metrics.CreditsApplied.WithLabelValues("fifo").Inc()
		return s.fifo(ctx, tx, entry)

	default:
		metrics.CreditsApplied.WithLabelValues("unallocated").Inc()
		entry.UnallocatedAmount = entry.Amount
		return nil, nil
	}
}

// fifo settles the customer's open bookings oldest first.
func (s *LedgerService) fifo(ctx context.Context, tx bun.IDB, entry *models.LedgerEntry) ([]models.LedgerAllocation, error) {
	open, err := s.DB.OutstandingTx(ctx, tx, entry.AgencyID, *entry.CustomerID)
	if err != nil {
		return nil, err
	}

	remaining := entry.Amount
	allocs := []models.LedgerAllocation{}
	for i := range open {
		if !remaining.IsPositive() {
			break
		}
		payment := decimal.Min(remaining, open[i].BalanceDue)
		alloc, err := s.pay(ctx, tx, entry, &open[i], payment)
		if err != nil {
			return nil, err
		}
		allocs = append(allocs, alloc)
		remaining = remaining.Sub(payment)
	}
	entry.UnallocatedAmount = remaining
	return allocs, nil
}

// pay adds amount to a booking's paid total. The balance is not clamped so
// an explicit overpayment leaves it negative.
func (s *LedgerService) pay(ctx context.Context, tx bun.IDB, entry *models.LedgerEntry, b *models.SalesBooking, amount decimal.Decimal) (models.LedgerAllocation, error) {
	now := s.Now().UTC()
	b.PaidAmount = b.PaidAmount.Add(amount)
	if err := s.DB.SaveSalesBookingTx(ctx, tx, b, now); err != nil {
		return models.LedgerAllocation{}, err
	}
	return models.LedgerAllocation{
		ID:        newID(),
		EntryID:   entry.ID,
		BookingID: b.ID,
		Amount:    amount,
		CreatedAt: now,
	}, nil
}

// revertTx takes back every recorded allocation of the entry and drops the
// allocation rows.
func (s *LedgerService) revertTx(ctx context.Context, tx bun.IDB, entry *models.LedgerEntry) error {
	allocs, err := s.DB.AllocationsTx(ctx, tx, entry.ID)
	if err != nil {
		return err
	}
	now := s.Now().UTC()
	for _, a := range allocs {
		b, err := s.DB.GetSalesBookingTx(ctx, tx, entry.AgencyID, a.BookingID)
		if err != nil {
			return fmt.Errorf("revert allocation %s: %w", a.ID, err)
		}
		b.PaidAmount = b.PaidAmount.Sub(a.Amount)
		if err := s.DB.SaveSalesBookingTx(ctx, tx, b, now); err != nil {
			return err
		}
	}
	if err := s.DB.DeleteAllocationsTx(ctx, tx, entry.ID); err != nil {
		return err
	}
	if entry.Type == models.EntryCredit {
		entry.UnallocatedAmount = entry.Amount
	}
	return nil
}

// ---------------- VALIDATION ----------------

func validateEntry(req models.LedgerEntryRequest) error {
	if req.Type != models.EntryCredit && req.Type != models.EntryDebit {
		return models.InvalidInput("type must be %s or %s, got %q", models.EntryCredit, models.EntryDebit, req.Type)
	}
	if err := validMoney("amount", req.Amount); err != nil {
		return err
	}
	if strings.TrimSpace(req.Description) == "" {
		return models.InvalidInput("description is required")
	}
	return nil
}

func validMoney(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return models.InvalidInput("%s must not be negative", field)
	}
	if !d.Equal(d.Round(2)) {
		return models.InvalidInput("%s has more than two decimal places", field)
	}
	return nil
}

func newID() string {
	return uuid.New().String()
}

func blankToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

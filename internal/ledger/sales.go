package ledger

import (
	"context"
	"fmt"
	"strings"

	"ms-marketplace/internal/models"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// ---------------- SALES BOOKINGS ----------------

func (s *LedgerService) CreateSalesBooking(ctx context.Context, actor models.Actor, req models.SalesBookingRequest) (*models.SalesBooking, error) {
	if err := requireAgency(actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.CustomerID) == "" {
		return nil, models.InvalidInput("customer_id is required")
	}
	if strings.TrimSpace(req.BookingNumber) == "" {
		return nil, models.InvalidInput("booking_number is required")
	}
	if err := validMoney("total_amount", req.TotalAmount); err != nil {
		return nil, err
	}

	now := s.Now().UTC()
	b := &models.SalesBooking{
		ID:            newID(),
		AgencyID:      actor.AgencyID,
		CustomerID:    strings.TrimSpace(req.CustomerID),
		BookingNumber: strings.TrimSpace(req.BookingNumber),
		TotalAmount:   req.TotalAmount,
		PaidAmount:    decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	b.Recompute()
	if err := s.DB.CreateSalesBooking(ctx, b); err != nil {
		return nil, err
	}
	s.Logger.LogLedger("SALES_BOOKING", b.ID, fmt.Sprintf("%s for customer %s, total %s", b.BookingNumber, b.CustomerID, b.TotalAmount.StringFixed(2)))
	return b, nil
}

func (s *LedgerService) GetSalesBooking(ctx context.Context, actor models.Actor, id string) (*models.SalesBooking, error) {
	if err := requireAgency(actor); err != nil {
		return nil, err
	}
	return s.DB.GetSalesBooking(ctx, actor.AgencyID, id)
}

// ListUnpaid returns the agency's sales bookings that still owe money.
func (s *LedgerService) ListUnpaid(ctx context.Context, actor models.Actor) ([]models.SalesBooking, error) {
	if err := requireAgency(actor); err != nil {
		return nil, err
	}
	return s.DB.ListUnpaid(ctx, actor.AgencyID)
}

// UpdateSalesBookingTotal changes what a booking costs. It competes with
// credit allocation through the same version check, so a payment landing at
// the same moment is never lost.
func (s *LedgerService) UpdateSalesBookingTotal(ctx context.Context, actor models.Actor, id string, total decimal.Decimal) (*models.SalesBooking, error) {
	if err := requireAgency(actor); err != nil {
		return nil, err
	}
	if err := validMoney("total_amount", total); err != nil {
		return nil, err
	}
	current, err := s.DB.GetSalesBooking(ctx, actor.AgencyID, id)
	if err != nil {
		return nil, err
	}

	release := s.lock(ctx, actor.AgencyID, current.CustomerID)
	defer release()

	var updated *models.SalesBooking
	err = s.withRetry(ctx, "update sales booking", func(ctx context.Context, tx bun.Tx) error {
		b, err := s.DB.GetSalesBookingTx(ctx, tx, actor.AgencyID, id)
		if err != nil {
			return err
		}
		b.TotalAmount = total
		if err := s.DB.SaveSalesBookingTx(ctx, tx, b, s.Now().UTC()); err != nil {
			return err
		}
		updated = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Logger.LogLedger("SALES_BOOKING", id, fmt.Sprintf("total set to %s, balance %s", updated.TotalAmount.StringFixed(2), updated.BalanceDue.StringFixed(2)))
	return updated, nil
}

// Package ledger posts credits and debits against an agency's books and
// spreads customer payments over their open sales bookings.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/metrics"
	"ms-marketplace/internal/models"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type LedgerDBLayer interface {
	CreateSalesBooking(ctx context.Context, b *models.SalesBooking) error
	GetSalesBooking(ctx context.Context, agencyID, id string) (*models.SalesBooking, error)
	GetSalesBookingTx(ctx context.Context, tx bun.IDB, agencyID, id string) (*models.SalesBooking, error)
	OutstandingTx(ctx context.Context, tx bun.IDB, agencyID, customerID string) ([]models.SalesBooking, error)
	ListUnpaid(ctx context.Context, agencyID string) ([]models.SalesBooking, error)
	SaveSalesBookingTx(ctx context.Context, tx bun.IDB, b *models.SalesBooking, now time.Time) error

	InsertEntryTx(ctx context.Context, tx bun.IDB, e *models.LedgerEntry) error
	UpdateEntryTx(ctx context.Context, tx bun.IDB, e *models.LedgerEntry) error
	DeleteEntryTx(ctx context.Context, tx bun.IDB, id string) error
	GetEntry(ctx context.Context, agencyID, id string) (*models.LedgerEntry, error)
	GetEntryTx(ctx context.Context, tx bun.IDB, agencyID, id string) (*models.LedgerEntry, error)
	ListEntries(ctx context.Context, agencyID, entryType string, r models.DateRange) ([]models.LedgerEntry, error)

	InsertAllocationsTx(ctx context.Context, tx bun.IDB, allocs []models.LedgerAllocation) error
	Allocations(ctx context.Context, entryID string) ([]models.LedgerAllocation, error)
	AllocationsTx(ctx context.Context, tx bun.IDB, entryID string) ([]models.LedgerAllocation, error)
	DeleteAllocationsTx(ctx context.Context, tx bun.IDB, entryID string) error

	SumEntries(ctx context.Context, agencyID, entryType string, r models.DateRange) (decimal.Decimal, error)
	SumAgentPayments(ctx context.Context, agencyID string, r models.DateRange) (decimal.Decimal, error)
	SumMiscExpenses(ctx context.Context, agencyID string, r models.DateRange) (decimal.Decimal, error)
	SumSalesCreatedSince(ctx context.Context, agencyID string, t time.Time) (decimal.Decimal, error)

	CreateMiscExpense(ctx context.Context, e *models.MiscExpense) error
	GetMiscExpense(ctx context.Context, agencyID, id string) (*models.MiscExpense, error)
	ListMiscExpenses(ctx context.Context, agencyID string) ([]models.MiscExpense, error)
	UpdateMiscExpense(ctx context.Context, e *models.MiscExpense) error
	DeleteMiscExpense(ctx context.Context, agencyID, id string) error

	CreateAgentPayment(ctx context.Context, p *models.AgentPayment) error
	ListAgentPayments(ctx context.Context, agencyID string) ([]models.AgentPayment, error)
	DeleteAgentPayment(ctx context.Context, agencyID, id string) error
}

// TxRunner is satisfied by *bun.DB.
type TxRunner interface {
	RunInTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx bun.Tx) error) error
}

// CustomerLocker queues allocation work per customer. It is an optimization
// only; version checks on sales bookings keep the books correct without it.
type CustomerLocker interface {
	Acquire(ctx context.Context, agencyID, customerID string) (func(), error)
}

type EventPublisher interface {
	PublishCreditApplied(ctx context.Context, evt models.CreditAppliedEvent) error
}

type LedgerService struct {
	DB         LedgerDBLayer
	Tx         TxRunner
	Locks      CustomerLocker
	Events     EventPublisher
	Logger     *logger.Logger
	MaxRetries int
	Now        func() time.Time
}

func NewLedgerService(db LedgerDBLayer, tx TxRunner, locks CustomerLocker, events EventPublisher, log *logger.Logger, maxRetries int) *LedgerService {
	return &LedgerService{
		DB:         db,
		Tx:         tx,
		Locks:      locks,
		Events:     events,
		Logger:     log,
		MaxRetries: maxRetries,
		Now:        time.Now,
	}
}

// ---------------- ENTRIES ----------------

// ApplyCredit records a payment from a customer. With a booking the whole
// amount lands on it; otherwise it is spread over the customer's open
// bookings oldest first.
func (s *LedgerService) ApplyCredit(ctx context.Context, actor models.Actor, customerID string, amount decimal.Decimal, bookingID *string) (*models.CreditResult, error) {
	req := models.LedgerEntryRequest{
		Type:        models.EntryCredit,
		Amount:      amount,
		Description: "Payment received",
		BookingID:   bookingID,
	}
	if customerID != "" {
		req.CustomerID = &customerID
	}
	return s.CreateEntry(ctx, actor, req)
}

// CreateEntry posts a ledger entry. Debits never touch booking balances.
func (s *LedgerService) CreateEntry(ctx context.Context, actor models.Actor, req models.LedgerEntryRequest) (*models.CreditResult, error) {
	if err := requireAgency(actor); err != nil {
		return nil, err
	}
	if err := validateEntry(req); err != nil {
		return nil, err
	}

	now := s.Now().UTC()
	base := models.LedgerEntry{
		ID:          newID(),
		AgencyID:    actor.AgencyID,
		CustomerID:  blankToNil(req.CustomerID),
		BookingID:   blankToNil(req.BookingID),
		Type:        req.Type,
		Amount:      req.Amount,
		Date:        now,
		Description: req.Description,
		SlipNumber:  req.SlipNumber,
		CreatedAt:   now,
	}
	if req.Date != nil {
		base.Date = req.Date.UTC()
	}

	release := s.lock(ctx, actor.AgencyID, deref(base.CustomerID))
	defer release()

	var result *models.CreditResult
	err := s.withRetry(ctx, "create entry", func(ctx context.Context, tx bun.Tx) error {
		entry := base
		allocs, err := s.applyTx(ctx, tx, &entry)
		if err != nil {
			return err
		}
		if err := s.DB.InsertEntryTx(ctx, tx, &entry); err != nil {
			return err
		}
		if err := s.DB.InsertAllocationsTx(ctx, tx, allocs); err != nil {
			return err
		}
		result = &models.CreditResult{Entry: entry, Allocations: allocs}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogLedger("CREATE", result.Entry.ID, fmt.Sprintf("%s %s, %d allocations, %s unallocated",
		result.Entry.Type, result.Entry.Amount.StringFixed(2), len(result.Allocations), result.Entry.UnallocatedAmount.StringFixed(2)))
	s.publishCredit(ctx, result)
	return result, nil
}

func (s *LedgerService) GetEntry(ctx context.Context, actor models.Actor, entryID string) (*models.CreditResult, error) {
	if err := requireAgency(actor); err != nil {
		return nil, err
	}
	entry, err := s.DB.GetEntry(ctx, actor.AgencyID, entryID)
	if err != nil {
		return nil, err
	}
	allocs, err := s.DB.Allocations(ctx, entry.ID)
	if err != nil {
		return nil, err
	}
	return &models.CreditResult{Entry: *entry, Allocations: allocs}, nil
}

func (s *LedgerService) ListEntries(ctx context.Context, actor models.Actor, entryType string, r models.DateRange) ([]models.LedgerEntry, error) {
	if err := requireAgency(actor); err != nil {
		return nil, err
	}
	if entryType != "" && entryType != models.EntryCredit && entryType != models.EntryDebit {
		return nil, models.InvalidInput("unknown entry type %q", entryType)
	}
	return s.DB.ListEntries(ctx, actor.AgencyID, entryType, r)
}

// UpdateEntry reverts the entry's effect on balances and applies the new
// values, all in one transaction.
func (s *LedgerService) UpdateEntry(ctx context.Context, actor models.Actor, entryID string, req models.LedgerEntryRequest) (*models.CreditResult, error) {
	if err := requireAgency(actor); err != nil {
		return nil, err
	}
	if err := validateEntry(req); err != nil {
		return nil, err
	}
	current, err := s.DB.GetEntry(ctx, actor.AgencyID, entryID)
	if err != nil {
		return nil, err
	}

	release := s.lock(ctx, actor.AgencyID, deref(current.CustomerID), deref(req.CustomerID))
	defer release()

	var result *models.CreditResult
	err = s.withRetry(ctx, "update entry", func(ctx context.Context, tx bun.Tx) error {
		entry, err := s.DB.GetEntryTx(ctx, tx, actor.AgencyID, entryID)
		if err != nil {
			return err
		}
		if err := s.revertTx(ctx, tx, entry); err != nil {
			return err
		}

		entry.Type = req.Type
		entry.Amount = req.Amount
		entry.Description = req.Description
		entry.SlipNumber = req.SlipNumber
		entry.CustomerID = blankToNil(req.CustomerID)
		entry.BookingID = blankToNil(req.BookingID)
		if req.Date != nil {
			entry.Date = req.Date.UTC()
		}

		allocs, err := s.applyTx(ctx, tx, entry)
		if err != nil {
			return err
		}
		if err := s.DB.UpdateEntryTx(ctx, tx, entry); err != nil {
			return err
		}
		if err := s.DB.InsertAllocationsTx(ctx, tx, allocs); err != nil {
			return err
		}
		result = &models.CreditResult{Entry: *entry, Allocations: allocs}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogLedger("UPDATE", entryID, fmt.Sprintf("%s %s, %d allocations", result.Entry.Type, result.Entry.Amount.StringFixed(2), len(result.Allocations)))
	s.publishCredit(ctx, result)
	return result, nil
}

// DeleteEntry reverts the entry's effect on balances and removes it.
func (s *LedgerService) DeleteEntry(ctx context.Context, actor models.Actor, entryID string) error {
	if err := requireAgency(actor); err != nil {
		return err
	}
	current, err := s.DB.GetEntry(ctx, actor.AgencyID, entryID)
	if err != nil {
		return err
	}

	release := s.lock(ctx, actor.AgencyID, deref(current.CustomerID))
	defer release()

	err = s.withRetry(ctx, "delete entry", func(ctx context.Context, tx bun.Tx) error {
		entry, err := s.DB.GetEntryTx(ctx, tx, actor.AgencyID, entryID)
		if err != nil {
			return err
		}
		if err := s.revertTx(ctx, tx, entry); err != nil {
			return err
		}
		return s.DB.DeleteEntryTx(ctx, tx, entry.ID)
	})
	if err != nil {
		return err
	}
	s.Logger.LogLedger("DELETE", entryID, "entry reverted and deleted")
	return nil
}

// RevertCredit undoes exactly what a credit entry applied. The entry stays
// on the books with its full amount unallocated.
func (s *LedgerService) RevertCredit(ctx context.Context, actor models.Actor, entryID string) (*models.LedgerEntry, error) {
	if err := requireAgency(actor); err != nil {
		return nil, err
	}
	current, err := s.DB.GetEntry(ctx, actor.AgencyID, entryID)
	if err != nil {
		return nil, err
	}
	if current.Type != models.EntryCredit {
		return nil, models.InvalidInput("entry %s is a %s, only credits can be reverted", entryID, current.Type)
	}

	release := s.lock(ctx, actor.AgencyID, deref(current.CustomerID))
	defer release()

	var reverted *models.LedgerEntry
	err = s.withRetry(ctx, "revert credit", func(ctx context.Context, tx bun.Tx) error {
		entry, err := s.DB.GetEntryTx(ctx, tx, actor.AgencyID, entryID)
		if err != nil {
			return err
		}
		if err := s.revertTx(ctx, tx, entry); err != nil {
			return err
		}
		if err := s.DB.UpdateEntryTx(ctx, tx, entry); err != nil {
			return err
		}
		reverted = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Logger.LogLedger("REVERT", entryID, fmt.Sprintf("%s returned to unallocated", reverted.Amount.StringFixed(2)))
	return reverted, nil
}

// ---------------- PLUMBING ----------------

// withRetry runs fn in a transaction, starting over when a sales booking
// changed underneath it.
func (s *LedgerService) withRetry(ctx context.Context, op string, fn func(ctx context.Context, tx bun.Tx) error) error {
	attempts := s.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; ; attempt++ {
		err := s.Tx.RunInTx(ctx, nil, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, models.ErrConcurrentUpdate) {
			return domainError(op, err)
		}
		metrics.LedgerConflicts.Inc()
		if attempt >= attempts {
			s.Logger.Error("LEDGER", fmt.Sprintf("%s gave up after %d attempts: %v", op, attempt, err))
			return err
		}
		s.Logger.Warn("LEDGER", fmt.Sprintf("%s hit a concurrent update, retrying (%d/%d)", op, attempt, attempts))
	}
}

// lock takes the per-customer locks in a fixed order. Lock trouble is
// logged and ignored.
func (s *LedgerService) lock(ctx context.Context, agencyID string, customerIDs ...string) func() {
	if s.Locks == nil {
		return func() {}
	}
	seen := map[string]bool{}
	ids := make([]string, 0, len(customerIDs))
	for _, id := range customerIDs {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var releases []func()
	for _, id := range ids {
		release, err := s.Locks.Acquire(ctx, agencyID, id)
		if err != nil {
			s.Logger.Warn("LEDGER", fmt.Sprintf("Proceeding without lock for customer %s: %v", id, err))
			continue
		}
		releases = append(releases, release)
	}
	return func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
}

func (s *LedgerService) publishCredit(ctx context.Context, result *models.CreditResult) {
	if s.Events == nil || result.Entry.Type != models.EntryCredit {
		return
	}
	evt := models.CreditAppliedEvent{
		EntryID:     result.Entry.ID,
		AgencyID:    result.Entry.AgencyID,
		CustomerID:  deref(result.Entry.CustomerID),
		Amount:      result.Entry.Amount,
		Unallocated: result.Entry.UnallocatedAmount,
		Allocations: result.Allocations,
		Timestamp:   s.Now().UTC(),
	}
	if err := s.Events.PublishCreditApplied(ctx, evt); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish credit %s: %v", result.Entry.ID, err))
	}
}

// domainError leaves typed errors alone and tags anything else as a
// persistence failure.
func domainError(op string, err error) error {
	for _, known := range []error{
		models.ErrPersistence,
		models.ErrNotFound,
		models.ErrInvalidInput,
		models.ErrForbidden,
		models.ErrConcurrentUpdate,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return models.NewPersistenceError(op, err)
}

func requireAgency(actor models.Actor) error {
	if actor.AgencyID == "" {
		return fmt.Errorf("actor has no agency: %w", models.ErrForbidden)
	}
	return nil
}

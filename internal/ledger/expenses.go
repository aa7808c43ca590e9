package ledger

import (
	"context"
	"fmt"
	"strings"

	"ms-marketplace/internal/models"
)

// ---------------- MISC EXPENSES ----------------

func (s *LedgerService) CreateMiscExpense(ctx context.Context, actor models.Actor, e models.MiscExpense) (*models.MiscExpense, error) {
	if err := requireAgency(actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(e.Title) == "" {
		return nil, models.InvalidInput("title is required")
	}
	if err := validMoney("amount", e.Amount); err != nil {
		return nil, err
	}

	now := s.Now().UTC()
	e.ID = newID()
	e.AgencyID = actor.AgencyID
	e.CreatedAt = now
	if e.ExpenseDate.IsZero() {
		e.ExpenseDate = now
	}
	e.ExpenseDate = e.ExpenseDate.UTC()

	if err := s.DB.CreateMiscExpense(ctx, &e); err != nil {
		return nil, err
	}
	s.Logger.LogLedger("EXPENSE", e.ID, fmt.Sprintf("%s %s", e.Title, e.Amount.StringFixed(2)))
	return &e, nil
}

func (s *LedgerService) ListMiscExpenses(ctx context.Context, actor models.Actor) ([]models.MiscExpense, error) {
	if err := requireAgency(actor); err != nil {
		return nil, err
	}
	return s.DB.ListMiscExpenses(ctx, actor.AgencyID)
}

func (s *LedgerService) UpdateMiscExpense(ctx context.Context, actor models.Actor, id string, upd models.MiscExpenseUpdate) (*models.MiscExpense, error) {
	if err := requireAgency(actor); err != nil {
		return nil, err
	}
	e, err := s.DB.GetMiscExpense(ctx, actor.AgencyID, id)
	if err != nil {
		return nil, err
	}
	if upd.Title != nil {
		if strings.TrimSpace(*upd.Title) == "" {
			return nil, models.InvalidInput("title is required")
		}
		e.Title = *upd.Title
	}
	if upd.Amount != nil {
		if err := validMoney("amount", *upd.Amount); err != nil {
			return nil, err
		}
		e.Amount = *upd.Amount
	}
	if upd.ExpenseDate != nil {
		e.ExpenseDate = upd.ExpenseDate.UTC()
	}
	if upd.Description != nil {
		e.Description = *upd.Description
	}
	if err := s.DB.UpdateMiscExpense(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *LedgerService) DeleteMiscExpense(ctx context.Context, actor models.Actor, id string) error {
	if err := requireAgency(actor); err != nil {
		return err
	}
	return s.DB.DeleteMiscExpense(ctx, actor.AgencyID, id)
}

// ---------------- AGENT PAYMENTS ----------------

func (s *LedgerService) CreateAgentPayment(ctx context.Context, actor models.Actor, p models.AgentPayment) (*models.AgentPayment, error) {
	if err := requireAgency(actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.AgentName) == "" {
		return nil, models.InvalidInput("agent_name is required")
	}
	if err := validMoney("amount_paid", p.AmountPaid); err != nil {
		return nil, err
	}
	p.ID = newID()
	p.AgencyID = actor.AgencyID
	p.CreatedAt = s.Now().UTC()

	if err := s.DB.CreateAgentPayment(ctx, &p); err != nil {
		return nil, err
	}
	s.Logger.LogLedger("AGENT_PAYMENT", p.ID, fmt.Sprintf("%s %s", p.AgentName, p.AmountPaid.StringFixed(2)))
	return &p, nil
}

func (s *LedgerService) ListAgentPayments(ctx context.Context, actor models.Actor) ([]models.AgentPayment, error) {
	if err := requireAgency(actor); err != nil {
		return nil, err
	}
	return s.DB.ListAgentPayments(ctx, actor.AgencyID)
}

func (s *LedgerService) DeleteAgentPayment(ctx context.Context, actor models.Actor, id string) error {
	if err := requireAgency(actor); err != nil {
		return err
	}
	return s.DB.DeleteAgentPayment(ctx, actor.AgencyID, id)
}

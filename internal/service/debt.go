package service

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"sarisari/backend/internal/domain"
	"sarisari/backend/internal/store"
	"sarisari/backend/internal/xid"
)

// PayDebt credits a payment against an outstanding balance. Accounts that do
// not owe anything are rejected with store.ErrNoDebt.
func (s *Service) PayDebt(ctx context.Context, req domain.PayDebtRequest) (_ *domain.DebtResult, err error) {
	ctx, span := s.tracer.Start(ctx, "service.PayDebt")
	defer func() { s.endSpan(span, "pay_debt", err) }()

	if req.AmountCents <= 0 || req.AmountCents > domain.MaxAmountCents {
		return nil, fmt.Errorf("%w: payment amount must be between 1 and %d", store.ErrInvalidInput, domain.MaxAmountCents)
	}
	result, err := s.bookDebt(ctx, debtBooking{
		customerID:  strings.TrimSpace(req.CustomerID),
		delta:       req.AmountCents,
		kind:        domain.KindDebtPayment,
		method:      domain.PaymentCash,
		amountPaid:  req.AmountCents,
		requireDebt: true,
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int64("account.balance_cents", result.NewBalanceCents))
	s.logAudit(ctx, "debt.paid", req.CustomerID,
		zap.String("number", result.Transaction.Number),
		zap.Int64("amount_cents", req.AmountCents),
		zap.Int64("previous_balance_cents", result.PreviousBalanceCents),
		zap.Int64("new_balance_cents", result.NewBalanceCents))
	return result, nil
}

// AddDebt books a manual charge ("utang") against a customer, subject to the
// account's credit limit.
func (s *Service) AddDebt(ctx context.Context, req domain.AddDebtRequest) (_ *domain.DebtResult, err error) {
	ctx, span := s.tracer.Start(ctx, "service.AddDebt")
	defer func() { s.endSpan(span, "add_debt", err) }()

	if req.AmountCents <= 0 || req.AmountCents > domain.MaxAmountCents {
		return nil, fmt.Errorf("%w: debt amount must be between 1 and %d", store.ErrInvalidInput, domain.MaxAmountCents)
	}
	result, err := s.bookDebt(ctx, debtBooking{
		customerID: strings.TrimSpace(req.CustomerID),
		delta:      -req.AmountCents,
		kind:       domain.KindDebtAdd,
		method:     domain.PaymentDebt,
		note:       strings.TrimSpace(req.Note),
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int64("account.balance_cents", result.NewBalanceCents))
	s.logAudit(ctx, "debt.added", req.CustomerID,
		zap.String("number", result.Transaction.Number),
		zap.Int64("amount_cents", req.AmountCents),
		zap.Int64("previous_balance_cents", result.PreviousBalanceCents),
		zap.Int64("new_balance_cents", result.NewBalanceCents))
	return result, nil
}

type debtBooking struct {
	customerID  string
	delta       int64
	kind        string
	method      string
	amountPaid  int64
	note        string
	requireDebt bool
}

// bookDebt adjusts the balance and writes the audit transaction as one unit.
func (s *Service) bookDebt(ctx context.Context, b debtBooking) (*domain.DebtResult, error) {
	if b.customerID == "" {
		return nil, store.ErrCustomerRequired
	}
	var result domain.DebtResult
	err := s.inUnit(ctx, func(u *unit) error {
		cashier, err := s.resolveActor(ctx, u.repo)
		if err != nil {
			return err
		}
		customer, err := s.resolveCustomer(ctx, u.repo, b.customerID)
		if err != nil {
			return err
		}

		txID := xid.New("txn")
		res, err := u.adjust(ctx, store.AccountAdjustment{
			AccountID:   customer.ID,
			DeltaCents:  b.delta,
			Reason:      strings.ToLower(b.kind) + " " + txID,
			RequireDebt: b.requireDebt,
		})
		if err != nil {
			return err
		}

		number, err := s.seq.Next(ctx, u.repo)
		if err != nil {
			return err
		}
		amount := b.delta
		if amount < 0 {
			amount = -amount
		}
		created, err := u.repo.CreateTransaction(ctx, domain.Transaction{
			ID:              txID,
			Number:          number.Value,
			Kind:            b.kind,
			CashierID:       cashier.ID,
			CashierName:     cashier.FullName,
			CustomerID:      customer.ID,
			CustomerName:    customer.FullName,
			Items:           []domain.TransactionLine{},
			TotalCents:      amount,
			AmountPaidCents: b.amountPaid,
			PaymentMethod:   b.method,
			Status:          domain.StatusCompleted,
			Note:            b.note,
			CreatedAt:       number.At.UTC(),
		})
		if err != nil {
			return err
		}

		result = domain.DebtResult{
			Transaction:          *created,
			PreviousBalanceCents: res.PreviousCents,
			NewBalanceCents:      res.NewCents,
			RemainingDebtCents:   res.Account.DebtCents(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

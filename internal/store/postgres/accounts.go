package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkg/errors"

	"sarisari/backend/internal/domain"
	"sarisari/backend/internal/store"
)

const accountColumns = `id, full_name, balance_cents, credit_limit_cents, active, version`

func scanAccount(row rowScanner) (domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.FullName, &a.BalanceCents, &a.CreditLimitCents, &a.Active, &a.Version)
	return a, err
}

func (s *Store) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	a, err := scanAccount(s.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: account %s", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, classify(err, "get account")
	}
	return &a, nil
}

// Adjust applies the delta with a single conditional UPDATE so the limit and
// debt checks see the same row version as the write. When no row qualifies
// the account is re-read to name the reason.
func (s *Store) Adjust(ctx context.Context, adj store.AccountAdjustment) (store.AdjustResult, error) {
	if adj.DeltaCents == 0 {
		return store.AdjustResult{}, fmt.Errorf("%w: adjustment must be non-zero", store.ErrInvalidInput)
	}

	row := s.q.QueryRowContext(ctx, `
		UPDATE accounts
		SET balance_cents = balance_cents + $2, version = version + 1, updated_at = now()
		WHERE id = $1
			AND active = true
			AND (
				$3::boolean
				OR (
					(NOT $4::boolean OR balance_cents < 0)
					AND ($2::bigint >= 0 OR balance_cents + $2::bigint >= -credit_limit_cents)
				)
			)
		RETURNING `+accountColumns, adj.AccountID, adj.DeltaCents, adj.Compensation, adj.RequireDebt)
	acc, err := scanAccount(row)
	if err == nil {
		return store.AdjustResult{PreviousCents: acc.BalanceCents - adj.DeltaCents, NewCents: acc.BalanceCents, Account: acc}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return store.AdjustResult{}, classify(err, "adjust balance")
	}
	return store.AdjustResult{}, s.explainRejectedAdjust(ctx, adj)
}

func (s *Store) explainRejectedAdjust(ctx context.Context, adj store.AccountAdjustment) error {
	acc, err := s.GetAccount(ctx, adj.AccountID)
	if err != nil {
		return err
	}
	if !acc.Active {
		return fmt.Errorf("%w: account %s", store.ErrNotFound, adj.AccountID)
	}
	if adj.RequireDebt && acc.BalanceCents >= 0 {
		return store.ErrNoDebt
	}
	if _, err := store.CheckCredit(acc.ID, acc.BalanceCents, acc.CreditLimitCents, adj.DeltaCents); err != nil {
		return err
	}
	return store.Unavailable(fmt.Errorf("account %s changed during adjustment", adj.AccountID))
}

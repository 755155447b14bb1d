package memory

import (
	"context"
	"fmt"

	"sarisari/backend/internal/domain"
	"sarisari/backend/internal/store"
)

func (s *Store) accountCell(id string) (*accountCell, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cell, ok := s.accounts[id]
	return cell, ok
}

func (s *Store) GetAccount(_ context.Context, id string) (*domain.Account, error) {
	cell, ok := s.accountCell(id)
	if !ok {
		return nil, fmt.Errorf("%w: account %s", store.ErrNotFound, id)
	}
	cell.mu.Lock()
	a := cell.account
	cell.mu.Unlock()
	return &a, nil
}

// Adjust holds the account's mutex across the limit check and the write.
func (s *Store) Adjust(_ context.Context, adj store.AccountAdjustment) (store.AdjustResult, error) {
	if adj.DeltaCents == 0 {
		return store.AdjustResult{}, fmt.Errorf("%w: adjustment must be non-zero", store.ErrInvalidInput)
	}
	cell, ok := s.accountCell(adj.AccountID)
	if !ok {
		return store.AdjustResult{}, fmt.Errorf("%w: account %s", store.ErrNotFound, adj.AccountID)
	}

	cell.mu.Lock()
	defer cell.mu.Unlock()

	acc := cell.account
	if !acc.Active {
		return store.AdjustResult{}, fmt.Errorf("%w: account %s", store.ErrNotFound, adj.AccountID)
	}
	next := acc.BalanceCents + adj.DeltaCents
	if !adj.Compensation {
		if adj.RequireDebt && acc.BalanceCents >= 0 {
			return store.AdjustResult{}, store.ErrNoDebt
		}
		var err error
		if next, err = store.CheckCredit(acc.ID, acc.BalanceCents, acc.CreditLimitCents, adj.DeltaCents); err != nil {
			return store.AdjustResult{}, err
		}
	}

	prev := acc.BalanceCents
	cell.account.BalanceCents = next
	cell.account.Version++
	return store.AdjustResult{PreviousCents: prev, NewCents: next, Account: cell.account}, nil
}

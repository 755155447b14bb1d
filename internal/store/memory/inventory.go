package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"sarisari/backend/internal/domain"
	"sarisari/backend/internal/store"
)

func (s *Store) productCell(id string) (*productCell, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cell, ok := s.products[id]
	return cell, ok
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	cell, ok := s.productCell(id)
	if !ok {
		return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, id)
	}
	cell.mu.Lock()
	p := cell.product
	cell.mu.Unlock()
	return &p, nil
}

func (s *Store) GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		p, err := s.GetProduct(ctx, id)
		if err != nil {
			continue
		}
		out[id] = *p
	}
	return out, nil
}

// Reserve deducts stock for every line or for none. Cells are locked in
// sorted id order and held until all lines are checked and written.
func (s *Store) Reserve(_ context.Context, lines []store.StockLine) ([]domain.Product, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: no stock lines", store.ErrInvalidInput)
	}

	requested := make(map[string]int, len(lines))
	for _, line := range lines {
		if line.Quantity < 1 || line.Quantity > domain.MaxQuantity {
			return nil, fmt.Errorf("%w: quantity for %s must be between 1 and %d", store.ErrInvalidInput, line.ProductID, domain.MaxQuantity)
		}
		requested[line.ProductID] += line.Quantity
	}

	cells := make(map[string]*productCell, len(requested))
	for _, line := range lines {
		cell, ok := s.productCell(line.ProductID)
		if !ok {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, line.ProductID)
		}
		cells[line.ProductID] = cell
	}

	unlock := lockProducts(cells)
	defer unlock()

	for _, line := range lines {
		p := cells[line.ProductID].product
		if !p.Active {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, p.ID)
		}
		if p.Stock < requested[p.ID] {
			return nil, &store.InsufficientStockError{ProductID: p.ID, Name: p.Name, Requested: requested[p.ID], Available: p.Stock}
		}
	}

	for id, qty := range requested {
		cell := cells[id]
		cell.product.Stock -= qty
		cell.product.Version++
	}

	out := make([]domain.Product, 0, len(lines))
	for _, line := range lines {
		out = append(out, cells[line.ProductID].product)
	}
	return out, nil
}

// Release puts previously reserved stock back. It is the compensation for a
// sale that failed after Reserve and leaves the restock history untouched.
func (s *Store) Release(_ context.Context, lines []store.StockLine) error {
	cells := make(map[string]*productCell, len(lines))
	for _, line := range lines {
		if line.Quantity < 1 {
			continue
		}
		cell, ok := s.productCell(line.ProductID)
		if !ok {
			return fmt.Errorf("%w: product %s", store.ErrNotFound, line.ProductID)
		}
		cells[line.ProductID] = cell
	}

	unlock := lockProducts(cells)
	defer unlock()

	for _, line := range lines {
		if line.Quantity < 1 {
			continue
		}
		cell := cells[line.ProductID]
		cell.product.Stock += line.Quantity
		cell.product.Version++
	}
	return nil
}

func (s *Store) Restock(_ context.Context, entry domain.RestockEntry) (int, error) {
	totalCost, err := store.RestockCost(entry)
	if err != nil {
		return 0, err
	}
	cell, ok := s.productCell(entry.ProductID)
	if !ok {
		return 0, fmt.Errorf("%w: product %s", store.ErrNotFound, entry.ProductID)
	}

	cell.mu.Lock()
	defer cell.mu.Unlock()

	if !cell.product.Active {
		return 0, fmt.Errorf("%w: product %s", store.ErrNotFound, entry.ProductID)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if cell.product.Stock > domain.MaxStock-entry.Quantity {
		return 0, fmt.Errorf("%w: restocking %s would exceed %d on hand", store.ErrInvalidInput, entry.ProductID, domain.MaxStock)
	}
	entry.TotalCostCents = totalCost

	cell.restocks = append(cell.restocks, entry)
	cell.product.Stock += entry.Quantity
	cell.product.Version++
	return cell.product.Stock, nil
}

func (s *Store) ListRestocks(_ context.Context, productID string, limit int) ([]domain.RestockEntry, error) {
	cell, ok := s.productCell(productID)
	if !ok {
		return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, productID)
	}
	cell.mu.Lock()
	defer cell.mu.Unlock()

	n := len(cell.restocks)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.RestockEntry, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, cell.restocks[i])
	}
	return out, nil
}

func (s *Store) ListLowStock(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	cells := make([]*productCell, 0, len(s.products))
	for _, cell := range s.products {
		cells = append(cells, cell)
	}
	s.mu.RUnlock()

	out := make([]domain.Product, 0)
	for _, cell := range cells {
		cell.mu.Lock()
		p := cell.product
		cell.mu.Unlock()
		if p.Active && p.IsLowStock() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Stock != out[j].Stock {
			return out[i].Stock < out[j].Stock
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func lockProducts(cells map[string]*productCell) func() {
	ids := make([]string, 0, len(cells))
	for id := range cells {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		cells[id].mu.Lock()
	}
	return func() {
		for i := len(ids) - 1; i >= 0; i-- {
			cells[ids[i]].mu.Unlock()
		}
	}
}

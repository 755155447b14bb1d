package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"sarisari/backend/internal/domain"
	"sarisari/backend/internal/store"
)

const productColumns = `id, name, barcode, category, price_cents, stock, low_stock_threshold, active, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Barcode, &p.Category, &p.PriceCents, &p.Stock, &p.LowStockThreshold, &p.Active, &p.Version)
	return p, err
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, classify(err, "get product")
	}
	return &p, nil
}

func (s *Store) GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	return s.queryProducts(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
}

func (s *Store) queryProducts(ctx context.Context, query string, ids []string) (map[string]domain.Product, error) {
	rows, err := s.q.QueryContext(ctx, query, ids)
	if err != nil {
		return nil, classify(err, "query products")
	}
	defer rows.Close()

	out := make(map[string]domain.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, classify(err, "scan product")
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "query products")
	}
	return out, nil
}

// Reserve locks the touched rows in id order, checks every line in request
// order, then decrements. Outside RunInTx it opens its own transaction.
func (s *Store) Reserve(ctx context.Context, lines []store.StockLine) ([]domain.Product, error) {
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
	ids := sortedKeys(requested)

	var out []domain.Product
	err := s.RunInTx(ctx, func(repo store.Repository) error {
		tx := repo.(*Store)
		locked, err := tx.queryProducts(ctx, `
			SELECT `+productColumns+`
			FROM products
			WHERE id = ANY($1)
			ORDER BY id
			FOR UPDATE
		`, ids)
		if err != nil {
			return err
		}

		for _, line := range lines {
			p, ok := locked[line.ProductID]
			if !ok || !p.Active {
				return fmt.Errorf("%w: product %s", store.ErrNotFound, line.ProductID)
			}
			if p.Stock < requested[p.ID] {
				return &store.InsufficientStockError{ProductID: p.ID, Name: p.Name, Requested: requested[p.ID], Available: p.Stock}
			}
		}

		updated := make(map[string]domain.Product, len(ids))
		for _, id := range ids {
			p, err := scanProduct(tx.q.QueryRowContext(ctx, `
				UPDATE products
				SET stock = stock - $2, version = version + 1, updated_at = now()
				WHERE id = $1 AND active = true AND stock >= $2
				RETURNING `+productColumns, id, requested[id]))
			if errors.Is(err, sql.ErrNoRows) {
				return store.Unavailable(fmt.Errorf("stock for %s changed under lock", id))
			}
			if err != nil {
				return classify(err, "reserve stock")
			}
			updated[id] = p
		}

		out = make([]domain.Product, 0, len(lines))
		for _, line := range lines {
			out = append(out, updated[line.ProductID])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Release(ctx context.Context, lines []store.StockLine) error {
	returned := make(map[string]int, len(lines))
	for _, line := range lines {
		if line.Quantity > 0 {
			returned[line.ProductID] += line.Quantity
		}
	}
	return s.RunInTx(ctx, func(repo store.Repository) error {
		tx := repo.(*Store)
		for _, id := range sortedKeys(returned) {
			res, err := tx.q.ExecContext(ctx, `
				UPDATE products
				SET stock = stock + $2, version = version + 1, updated_at = now()
				WHERE id = $1
			`, id, returned[id])
			if err != nil {
				return classify(err, "release stock")
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("%w: product %s", store.ErrNotFound, id)
			}
		}
		return nil
	})
}

func (s *Store) Restock(ctx context.Context, entry domain.RestockEntry) (int, error) {
	totalCost, err := store.RestockCost(entry)
	if err != nil {
		return 0, err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Supplier == "" {
		entry.Supplier = domain.DefaultSupplier
	}
	entry.TotalCostCents = totalCost

	var newStock int
	err = s.RunInTx(ctx, func(repo store.Repository) error {
		tx := repo.(*Store)
		err := tx.q.QueryRowContext(ctx, `
			UPDATE products
			SET stock = stock + $2, version = version + 1, updated_at = now()
			WHERE id = $1 AND active = true AND stock <= $3::integer - $2::integer
			RETURNING stock
		`, entry.ProductID, entry.Quantity, domain.MaxStock).Scan(&newStock)
		if errors.Is(err, sql.ErrNoRows) {
			p, getErr := tx.GetProduct(ctx, entry.ProductID)
			if getErr != nil {
				return getErr
			}
			if !p.Active {
				return fmt.Errorf("%w: product %s", store.ErrNotFound, entry.ProductID)
			}
			return fmt.Errorf("%w: restocking %s would exceed %d on hand", store.ErrInvalidInput, entry.ProductID, domain.MaxStock)
		}
		if err != nil {
			return classify(err, "restock product")
		}

		_, err = tx.q.ExecContext(ctx, `
			INSERT INTO restock_entries (
				id, product_id, quantity, cost_per_unit_cents, total_cost_cents,
				supplier, actor_id, actor_name, notes, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, entry.ID, entry.ProductID, entry.Quantity, entry.CostPerUnitCents, entry.TotalCostCents,
			entry.Supplier, entry.ActorID, entry.ActorName, entry.Notes, entry.CreatedAt)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: duplicate restock entry %s", store.ErrInvalidInput, entry.ID)
		}
		return classify(err, "insert restock entry")
	})
	if err != nil {
		return 0, err
	}
	return newStock, nil
}

func (s *Store) ListRestocks(ctx context.Context, productID string, limit int) ([]domain.RestockEntry, error) {
	if _, err := s.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, product_id, quantity, cost_per_unit_cents, total_cost_cents,
			supplier, actor_id, actor_name, notes, created_at
		FROM restock_entries
		WHERE product_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, classify(err, "list restocks")
	}
	defer rows.Close()

	entries := make([]domain.RestockEntry, 0, limit)
	for rows.Next() {
		var e domain.RestockEntry
		if err := rows.Scan(&e.ID, &e.ProductID, &e.Quantity, &e.CostPerUnitCents, &e.TotalCostCents,
			&e.Supplier, &e.ActorID, &e.ActorName, &e.Notes, &e.CreatedAt); err != nil {
			return nil, classify(err, "scan restock")
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "list restocks")
	}
	return entries, nil
}

func (s *Store) ListLowStock(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true AND stock <= low_stock_threshold
		ORDER BY stock, id
	`)
	if err != nil {
		return nil, classify(err, "list low stock")
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 16)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, classify(err, "scan product")
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "list low stock")
	}
	return products, nil
}

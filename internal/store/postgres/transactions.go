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

func (s *Store) CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.ID == "" || tx.Number == "" {
		return nil, fmt.Errorf("%w: transaction id and number are required", store.ErrInvalidInput)
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	err := s.RunInTx(ctx, func(repo store.Repository) error {
		q := repo.(*Store).q
		_, err := q.ExecContext(ctx, `
			INSERT INTO transactions (
				id, number, kind, cashier_id, cashier_name, customer_id, customer_name,
				total_cents, amount_paid_cents, change_cents, payment_method, status, note, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		`, tx.ID, tx.Number, tx.Kind, tx.CashierID, tx.CashierName, nullIfEmpty(tx.CustomerID), tx.CustomerName,
			tx.TotalCents, tx.AmountPaidCents, tx.ChangeCents, tx.PaymentMethod, tx.Status, tx.Note, tx.CreatedAt)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: duplicate transaction %s/%s", store.ErrInvalidInput, tx.ID, tx.Number)
		}
		if err != nil {
			return classify(err, "insert transaction")
		}

		for i, line := range tx.Items {
			if _, err := q.ExecContext(ctx, `
				INSERT INTO transaction_items (
					transaction_id, line_no, product_id, name, barcode, price_cents, quantity, subtotal_cents
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, tx.ID, i+1, line.ProductID, line.Name, line.Barcode, line.PriceCents, line.Quantity, line.SubtotalCents); err != nil {
				return classify(err, "insert transaction item")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	created := tx
	created.Items = append([]domain.TransactionLine{}, tx.Items...)
	return &created, nil
}

func (s *Store) FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error) {
	return s.findTransaction(ctx, "id", id)
}

func (s *Store) FindTransactionByNumber(ctx context.Context, number string) (*domain.Transaction, error) {
	return s.findTransaction(ctx, "number", number)
}

func (s *Store) findTransaction(ctx context.Context, column string, value string) (*domain.Transaction, error) {
	var (
		tx         domain.Transaction
		customerID sql.NullString
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, number, kind, cashier_id, cashier_name, customer_id, customer_name,
			total_cents, amount_paid_cents, change_cents, payment_method, status, note, created_at
		FROM transactions
		WHERE `+column+` = $1
	`, value).Scan(&tx.ID, &tx.Number, &tx.Kind, &tx.CashierID, &tx.CashierName, &customerID, &tx.CustomerName,
		&tx.TotalCents, &tx.AmountPaidCents, &tx.ChangeCents, &tx.PaymentMethod, &tx.Status, &tx.Note, &tx.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, classify(err, "find transaction")
	}
	tx.CustomerID = customerID.String
	tx.CreatedAt = tx.CreatedAt.UTC()

	rows, err := s.q.QueryContext(ctx, `
		SELECT product_id, name, barcode, price_cents, quantity, subtotal_cents
		FROM transaction_items
		WHERE transaction_id = $1
		ORDER BY line_no
	`, tx.ID)
	if err != nil {
		return nil, classify(err, "load transaction items")
	}
	defer rows.Close()

	tx.Items = make([]domain.TransactionLine, 0, 8)
	for rows.Next() {
		var line domain.TransactionLine
		if err := rows.Scan(&line.ProductID, &line.Name, &line.Barcode, &line.PriceCents, &line.Quantity, &line.SubtotalCents); err != nil {
			return nil, classify(err, "scan transaction item")
		}
		tx.Items = append(tx.Items, line)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "load transaction items")
	}
	return &tx, nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}

package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"sarisari/backend/internal/domain"
	"sarisari/backend/internal/store"
)

func newIntegrationStore(t *testing.T) (*Store, string) {
	t.Helper()
	databaseURL := os.Getenv("SARISARI_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set SARISARI_TEST_DATABASE_URL to run postgres integration test")
	}
	require.NoError(t, Migrate(databaseURL, true))

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	require.NoError(t, err)

	suffix := fmt.Sprintf("it-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		like := "%" + suffix
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transactions WHERE cashier_id LIKE $1`, like)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM restock_entries WHERE product_id LIKE $1`, like)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transaction_counters WHERE day LIKE $1`, like)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id LIKE $1`, like)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id LIKE $1`, like)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM users WHERE id LIKE $1`, like)
		_ = s.Close()
	})

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, full_name, role) VALUES ($1, $1, 'IT Cashier', 'cashier')
	`, "cashier-"+suffix)
	require.NoError(t, err)
	return s, suffix
}

func seedProduct(t *testing.T, s *Store, id string, price int64, stock int) {
	t.Helper()
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO products (id, name, barcode, price_cents, stock)
		VALUES ($1, $1, $1, $2, $3)
	`, id, price, stock)
	require.NoError(t, err)
}

func seedAccount(t *testing.T, s *Store, id string, balance, limit int64) {
	t.Helper()
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO accounts (id, full_name, balance_cents, credit_limit_cents)
		VALUES ($1, $1, $2, $3)
	`, id, balance, limit)
	require.NoError(t, err)
}

func TestReserveAndReleaseIntegration(t *testing.T) {
	s, suffix := newIntegrationStore(t)
	ctx := context.Background()
	a, b := "a-"+suffix, "b-"+suffix
	seedProduct(t, s, a, 1500, 5)
	seedProduct(t, s, b, 800, 1)

	_, err := s.Reserve(ctx, []store.StockLine{{ProductID: a, Quantity: 2}, {ProductID: b, Quantity: 2}})
	var stockErr *store.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, b, stockErr.ProductID)
	assert.Equal(t, 1, stockErr.Available)

	p, err := s.GetProduct(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)

	got, err := s.Reserve(ctx, []store.StockLine{{ProductID: a, Quantity: 5}, {ProductID: b, Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, 0, got[0].Stock)
	require.NoError(t, s.Release(ctx, []store.StockLine{{ProductID: a, Quantity: 5}}))

	p, err = s.GetProduct(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)
}

func TestAdjustIntegration(t *testing.T) {
	s, suffix := newIntegrationStore(t)
	ctx := context.Background()
	c := "c-" + suffix
	seedAccount(t, s, c, -8000, 10000)

	res, err := s.Adjust(ctx, store.AccountAdjustment{AccountID: c, DeltaCents: -1500})
	require.NoError(t, err)
	assert.Equal(t, int64(-8000), res.PreviousCents)
	assert.Equal(t, int64(-9500), res.NewCents)

	_, err = s.Adjust(ctx, store.AccountAdjustment{AccountID: c, DeltaCents: -1000})
	var limitErr *store.CreditLimitExceededError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, int64(10500), limitErr.WouldBeCents)

	_, err = s.Adjust(ctx, store.AccountAdjustment{AccountID: c, DeltaCents: 9500, RequireDebt: true})
	require.NoError(t, err)
	_, err = s.Adjust(ctx, store.AccountAdjustment{AccountID: c, DeltaCents: 100, RequireDebt: true})
	require.ErrorIs(t, err, store.ErrNoDebt)
}

func TestRunInTxRollsBackEverything(t *testing.T) {
	s, suffix := newIntegrationStore(t)
	ctx := context.Background()
	p, c := "p-"+suffix, "c-"+suffix
	seedProduct(t, s, p, 5000, 10)
	seedAccount(t, s, c, 0, 1000)

	err := s.RunInTx(ctx, func(repo store.Repository) error {
		if _, err := repo.Reserve(ctx, []store.StockLine{{ProductID: p, Quantity: 3}}); err != nil {
			return err
		}
		_, err := repo.Adjust(ctx, store.AccountAdjustment{AccountID: c, DeltaCents: -15000})
		return err
	})
	require.ErrorIs(t, err, store.ErrCreditLimitExceeded)

	prod, err := s.GetProduct(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 10, prod.Stock)
}

func TestSequenceAndTransactionsIntegration(t *testing.T) {
	s, suffix := newIntegrationStore(t)
	ctx := context.Background()
	day := "day-" + suffix
	p := "p-" + suffix
	seedProduct(t, s, p, 1200, 10)

	const n = 20
	var g errgroup.Group
	values := make(chan int64, n)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			v, err := s.Next(ctx, day)
			values <- v
			return err
		})
	}
	require.NoError(t, g.Wait())
	close(values)
	seen := map[int64]bool{}
	for v := range values {
		seen[v] = true
	}
	assert.Len(t, seen, n)

	tx := domain.Transaction{
		ID:            "txn-" + suffix,
		Number:        "TXN-" + suffix,
		Kind:          domain.KindSale,
		CashierID:     "cashier-" + suffix,
		Items:         []domain.TransactionLine{{ProductID: p, Name: "Pan de sal", PriceCents: 1200, Quantity: 2, SubtotalCents: 2400}},
		TotalCents:    2400,
		PaymentMethod: domain.PaymentCash,
		Status:        domain.StatusCompleted,
	}
	_, err := s.CreateTransaction(ctx, tx)
	require.NoError(t, err)
	_, err = s.CreateTransaction(ctx, tx)
	require.ErrorIs(t, err, store.ErrInvalidInput)

	got, err := s.FindTransactionByNumber(ctx, tx.Number)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Pan de sal", got.Items[0].Name)
	assert.Empty(t, got.CustomerID)
}

func TestConcurrentUnitsOnOneDayAllCommit(t *testing.T) {
	s, suffix := newIntegrationStore(t)
	ctx := context.Background()
	day := "units-" + suffix

	const n = 12
	for i := 0; i < n; i++ {
		seedProduct(t, s, fmt.Sprintf("u%02d-%s", i, suffix), 100, 5)
	}

	var g errgroup.Group
	values := make(chan int64, n)
	for i := 0; i < n; i++ {
		productID := fmt.Sprintf("u%02d-%s", i, suffix)
		g.Go(func() error {
			return s.RunInTx(ctx, func(repo store.Repository) error {
				if _, err := repo.Reserve(ctx, []store.StockLine{{ProductID: productID, Quantity: 1}}); err != nil {
					return err
				}
				v, err := repo.Next(ctx, day)
				if err != nil {
					return err
				}
				values <- v
				return nil
			})
		})
	}
	require.NoError(t, g.Wait(), "same-day units must not fail serialization")
	close(values)

	seen := map[int64]bool{}
	for v := range values {
		seen[v] = true
	}
	for want := int64(1); want <= n; want++ {
		assert.True(t, seen[want], "missing sequence value %d", want)
	}
}

func TestRestockBoundsIntegration(t *testing.T) {
	s, suffix := newIntegrationStore(t)
	ctx := context.Background()
	p := "big-" + suffix
	seedProduct(t, s, p, 100, domain.MaxStock-10)

	_, err := s.Restock(ctx, domain.RestockEntry{ID: "rst-1-" + suffix, ProductID: p, Quantity: 11})
	require.ErrorIs(t, err, store.ErrInvalidInput)

	_, err = s.Restock(ctx, domain.RestockEntry{ID: "rst-2-" + suffix, ProductID: p, Quantity: domain.MaxQuantity + 1})
	require.ErrorIs(t, err, store.ErrInvalidInput)

	stock, err := s.Restock(ctx, domain.RestockEntry{ID: "rst-3-" + suffix, ProductID: p, Quantity: 10})
	require.NoError(t, err)
	assert.Equal(t, domain.MaxStock, stock)
}

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/pos", migrateURL("postgres://u:p@db:5432/pos"))
	assert.Equal(t, "pgx5://db/pos", migrateURL("postgresql://db/pos"))
	assert.Equal(t, "pgx5://db/pos", migrateURL("pgx5://db/pos"))
}

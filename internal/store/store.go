package store

import (
	"context"
	"fmt"
	"math"

	"sarisari/backend/internal/domain"
)

type StockLine struct {
	ProductID string
	Quantity  int
}

type AccountAdjustment struct {
	AccountID  string
	DeltaCents int64
	Reason     string
	// RequireDebt rejects the adjustment with ErrNoDebt unless the balance is negative.
	RequireDebt bool
	// Compensation undoes an earlier adjustment and bypasses both checks.
	Compensation bool
}

type AdjustResult struct {
	PreviousCents int64
	NewCents      int64
	Account       domain.Account
}

// Inventory is the stock ledger. Reserve is all-or-nothing across lines.
type Inventory interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error)
	Reserve(ctx context.Context, lines []StockLine) ([]domain.Product, error)
	Release(ctx context.Context, lines []StockLine) error
	Restock(ctx context.Context, entry domain.RestockEntry) (int, error)
	ListRestocks(ctx context.Context, productID string, limit int) ([]domain.RestockEntry, error)
	ListLowStock(ctx context.Context) ([]domain.Product, error)
}

// Accounts is the customer balance ledger.
type Accounts interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	Adjust(ctx context.Context, adj AccountAdjustment) (AdjustResult, error)
}

// Sequencer hands out the next value of a per-day counter, starting at 1.
type Sequencer interface {
	Next(ctx context.Context, day string) (int64, error)
}

type Transactions interface {
	CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error)
	FindTransactionByNumber(ctx context.Context, number string) (*domain.Transaction, error)
}

type Repository interface {
	Inventory
	Accounts
	Sequencer
	Transactions
	Ping(ctx context.Context) error
}

// Atomic is implemented by repositories that can run several ledger
// operations inside one enclosing transaction. The Repository passed to fn
// is bound to that transaction; fn returning an error rolls everything back.
type Atomic interface {
	RunInTx(ctx context.Context, fn func(repo Repository) error) error
}

// RestockCost validates the quantity and unit cost of a restock entry and
// returns its total cost.
func RestockCost(entry domain.RestockEntry) (int64, error) {
	if entry.Quantity < 1 || entry.Quantity > domain.MaxQuantity {
		return 0, fmt.Errorf("%w: restock quantity must be between 1 and %d", ErrInvalidInput, domain.MaxQuantity)
	}
	if entry.CostPerUnitCents < 0 {
		return 0, fmt.Errorf("%w: cost per unit must not be negative", ErrInvalidInput)
	}
	if entry.CostPerUnitCents > math.MaxInt64/int64(entry.Quantity) {
		return 0, fmt.Errorf("%w: restock cost is out of range", ErrInvalidInput)
	}
	return int64(entry.Quantity) * entry.CostPerUnitCents, nil
}

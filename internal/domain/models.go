package domain

import (
	"math"
	"time"
)

const (
	PaymentCash    = "CASH"
	PaymentDebt    = "DEBT"
	PaymentPartial = "PARTIAL"
)

const (
	StatusCompleted = "COMPLETED"
	// StatusVoid is reserved; nothing transitions a transaction into it yet.
	StatusVoid = "VOID"
)

const (
	KindSale        = "SALE"
	KindDebtPayment = "DEBT_PAYMENT"
	KindDebtAdd     = "DEBT_ADD"
)

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

const (
	DefaultLowStockThreshold = 10
	DefaultCreditLimitCents  = int64(100000)
	DefaultSupplier          = "N/A"
)

const (
	// MaxQuantity bounds a single sale line and a single restock.
	MaxQuantity = 1_000_000
	// MaxStock is the largest on-hand count; it matches the INTEGER stock column.
	MaxStock = math.MaxInt32
	// MaxAmountCents bounds a single payment, debt or sale total.
	MaxAmountCents = int64(1_000_000_000_000_000)
)

type Product struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Barcode           string `json:"barcode"`
	Category          string `json:"category"`
	PriceCents        int64  `json:"price_cents"`
	Stock             int    `json:"stock"`
	LowStockThreshold int    `json:"low_stock_threshold"`
	Active            bool   `json:"active"`
	Version           int64  `json:"version"`
}

func (p Product) IsLowStock() bool {
	return p.Stock <= p.LowStockThreshold
}

type RestockEntry struct {
	ID               string    `json:"id"`
	ProductID        string    `json:"product_id"`
	Quantity         int       `json:"quantity"`
	CostPerUnitCents int64     `json:"cost_per_unit_cents"`
	TotalCostCents   int64     `json:"total_cost_cents"`
	Supplier         string    `json:"supplier"`
	ActorID          string    `json:"actor_id"`
	ActorName        string    `json:"actor_name"`
	Notes            string    `json:"notes,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	Active   bool   `json:"active"`
}

// Account is a customer's running balance. Negative balances are debt.
type Account struct {
	ID               string `json:"id"`
	FullName         string `json:"full_name"`
	BalanceCents     int64  `json:"balance_cents"`
	CreditLimitCents int64  `json:"credit_limit_cents"`
	Active           bool   `json:"active"`
	Version          int64  `json:"version"`
}

func (a Account) DebtCents() int64 {
	if a.BalanceCents >= 0 {
		return 0
	}
	return -a.BalanceCents
}

type TransactionLine struct {
	ProductID     string `json:"product_id"`
	Name          string `json:"name"`
	Barcode       string `json:"barcode"`
	PriceCents    int64  `json:"price_cents"`
	Quantity      int    `json:"quantity"`
	SubtotalCents int64  `json:"subtotal_cents"`
}

type Transaction struct {
	ID              string            `json:"id"`
	Number          string            `json:"number"`
	Kind            string            `json:"kind"`
	CashierID       string            `json:"cashier_id"`
	CashierName     string            `json:"cashier_name"`
	CustomerID      string            `json:"customer_id,omitempty"`
	CustomerName    string            `json:"customer_name,omitempty"`
	Items           []TransactionLine `json:"items"`
	TotalCents      int64             `json:"total_cents"`
	AmountPaidCents int64             `json:"amount_paid_cents"`
	ChangeCents     int64             `json:"change_cents"`
	PaymentMethod   string            `json:"payment_method"`
	Status          string            `json:"status"`
	Note            string            `json:"note,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

type SaleItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type SaleRequest struct {
	CashierID       string     `json:"cashier_id"`
	Items           []SaleItem `json:"items"`
	AmountPaidCents int64      `json:"amount_paid_cents"`
	PaymentMethod   string     `json:"payment_method"`
	CustomerID      string     `json:"customer_id,omitempty"`
	Note            string     `json:"note,omitempty"`
}

type RestockRequest struct {
	ProductID        string `json:"product_id"`
	Quantity         int    `json:"quantity"`
	CostPerUnitCents int64  `json:"cost_per_unit_cents"`
	Supplier         string `json:"supplier,omitempty"`
	Notes            string `json:"notes,omitempty"`
}

type RestockResult struct {
	NewStock int          `json:"new_stock"`
	Entry    RestockEntry `json:"entry"`
	LowStock bool         `json:"low_stock"`
}

type PayDebtRequest struct {
	CustomerID  string `json:"customer_id"`
	AmountCents int64  `json:"amount_cents"`
}

type AddDebtRequest struct {
	CustomerID  string `json:"customer_id"`
	AmountCents int64  `json:"amount_cents"`
	Note        string `json:"note,omitempty"`
}

type DebtResult struct {
	Transaction          Transaction `json:"transaction"`
	PreviousBalanceCents int64       `json:"previous_balance_cents"`
	NewBalanceCents      int64       `json:"new_balance_cents"`
	RemainingDebtCents   int64       `json:"remaining_debt_cents"`
}

type Actor struct {
	UserID string
	Role   string
}

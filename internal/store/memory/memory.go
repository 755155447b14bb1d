package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"sarisari/backend/internal/domain"
	"sarisari/backend/internal/store"
)

// Store keeps every ledger in process memory. Each product and account is a
// cell with its own mutex, so unrelated sales never contend; the maps that
// index the cells are guarded by mu and only change when entities are added.
type Store struct {
	mu       sync.RWMutex
	products map[string]*productCell
	accounts map[string]*accountCell
	users    map[string]domain.User

	txMu         sync.RWMutex
	transactions map[string]*domain.Transaction
	byNumber     map[string]string

	seqMu    sync.Mutex
	counters map[string]int64
}

type productCell struct {
	mu       sync.Mutex
	product  domain.Product
	restocks []domain.RestockEntry
}

type accountCell struct {
	mu      sync.Mutex
	account domain.Account
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		products:     make(map[string]*productCell),
		accounts:     make(map[string]*accountCell),
		users:        make(map[string]domain.User),
		transactions: make(map[string]*domain.Transaction),
		byNumber:     make(map[string]string),
		counters:     make(map[string]int64),
	}
}

// NewSeeded returns a store with a small sari-sari catalog, two staff users
// and a few customer accounts for local runs.
func NewSeeded() *Store {
	s := New()
	for _, p := range []domain.Product{
		{ID: "prod-pancit-canton", Name: "Lucky Me Pancit Canton", Barcode: "1234567890123", Category: "Instant Noodles", PriceCents: 1500, Stock: 100, LowStockThreshold: 20},
		{ID: "prod-skyflakes", Name: "Skyflakes Crackers", Barcode: "2345678901234", Category: "Snacks", PriceCents: 800, Stock: 75, LowStockThreshold: 15},
		{ID: "prod-royal-15l", Name: "Royal Softdrink 1.5L", Barcode: "3456789012345", Category: "Beverages", PriceCents: 4500, Stock: 50, LowStockThreshold: 10},
		{ID: "prod-condensada", Name: "Alaska Condensada", Barcode: "4567890123456", Category: "Canned Goods", PriceCents: 3500, Stock: 60, LowStockThreshold: 15},
		{ID: "prod-tuna-flakes", Name: "Century Tuna Flakes", Barcode: "5678901234567", Category: "Canned Goods", PriceCents: 2800, Stock: 80, LowStockThreshold: 20},
		{ID: "prod-corned-beef", Name: "Argentina Corned Beef", Barcode: "6789012345678", Category: "Canned Goods", PriceCents: 4200, Stock: 55, LowStockThreshold: 15},
		{ID: "prod-tide-50g", Name: "Tide Detergent Powder 50g", Barcode: "7890123456789", Category: "Household", PriceCents: 1200, Stock: 90, LowStockThreshold: 25},
		{ID: "prod-milo-33g", Name: "Milo Powder 33g", Barcode: "8901234567890", Category: "Beverages", PriceCents: 1000, Stock: 120, LowStockThreshold: 30},
		{ID: "prod-bear-brand", Name: "Bear Brand 33ml", Barcode: "9012345678901", Category: "Beverages", PriceCents: 1300, Stock: 100, LowStockThreshold: 25},
	} {
		p.Active = true
		s.PutProduct(p)
	}

	s.PutUser(domain.User{ID: "usr-admin", Username: "admin", FullName: "Store Owner", Role: domain.RoleAdmin, Active: true})
	s.PutUser(domain.User{ID: "usr-cashier", Username: "cashier", FullName: "Counter Cashier", Role: domain.RoleCashier, Active: true})

	for _, a := range []domain.Account{
		{ID: "cust-aling-nena", FullName: "Aling Nena", CreditLimitCents: domain.DefaultCreditLimitCents},
		{ID: "cust-mang-tonyo", FullName: "Mang Tonyo", BalanceCents: -25000, CreditLimitCents: domain.DefaultCreditLimitCents},
		{ID: "cust-ate-joy", FullName: "Ate Joy", BalanceCents: 5000, CreditLimitCents: 50000},
	} {
		a.Active = true
		s.PutAccount(a)
	}

	zap.L().Debug("memory store seeded",
		zap.Int("products", len(s.products)),
		zap.Int("accounts", len(s.accounts)))
	return s
}

// PutProduct inserts or replaces a product record. The restock history of an
// existing product is kept.
func (s *Store) PutProduct(p domain.Product) {
	if p.LowStockThreshold == 0 {
		p.LowStockThreshold = domain.DefaultLowStockThreshold
	}
	s.mu.Lock()
	cell, ok := s.products[p.ID]
	if !ok {
		cell = &productCell{}
		s.products[p.ID] = cell
	}
	s.mu.Unlock()

	cell.mu.Lock()
	p.Version = cell.product.Version + 1
	cell.product = p
	cell.mu.Unlock()
}

func (s *Store) PutAccount(a domain.Account) {
	s.mu.Lock()
	cell, ok := s.accounts[a.ID]
	if !ok {
		cell = &accountCell{}
		s.accounts[a.ID] = cell
	}
	s.mu.Unlock()

	cell.mu.Lock()
	a.Version = cell.account.Version + 1
	cell.account = a
	cell.mu.Unlock()
}

func (s *Store) PutUser(u domain.User) {
	s.mu.Lock()
	s.users[u.ID] = u
	s.mu.Unlock()
}

func (s *Store) Ping(_ context.Context) error {
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", store.ErrNotFound, id)
	}
	return &u, nil
}

func (s *Store) Next(_ context.Context, day string) (int64, error) {
	if day == "" {
		return 0, fmt.Errorf("%w: empty sequence day", store.ErrInvalidInput)
	}
	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	s.counters[day]++
	return s.counters[day], nil
}

func (s *Store) CreateTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.ID == "" || tx.Number == "" {
		return nil, fmt.Errorf("%w: transaction id and number are required", store.ErrInvalidInput)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if _, exists := s.transactions[tx.ID]; exists {
		return nil, fmt.Errorf("%w: duplicate transaction id %s", store.ErrInvalidInput, tx.ID)
	}
	if _, exists := s.byNumber[tx.Number]; exists {
		return nil, fmt.Errorf("%w: duplicate transaction number %s", store.ErrInvalidInput, tx.Number)
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	stored := cloneTransaction(&tx)
	s.transactions[tx.ID] = stored
	s.byNumber[tx.Number] = tx.ID
	return cloneTransaction(stored), nil
}

func (s *Store) FindTransactionByID(_ context.Context, id string) (*domain.Transaction, error) {
	s.txMu.RLock()
	defer s.txMu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

func (s *Store) FindTransactionByNumber(_ context.Context, number string) (*domain.Transaction, error) {
	s.txMu.RLock()
	defer s.txMu.RUnlock()

	id, ok := s.byNumber[number]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(s.transactions[id]), nil
}

// Transactions returns every stored transaction ordered by number.
func (s *Store) Transactions() []domain.Transaction {
	s.txMu.RLock()
	defer s.txMu.RUnlock()

	out := make([]domain.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		out = append(out, *cloneTransaction(tx))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func cloneTransaction(src *domain.Transaction) *domain.Transaction {
	if src == nil {
		return nil
	}
	dup := *src
	dup.Items = make([]domain.TransactionLine, len(src.Items))
	copy(dup.Items, src.Items)
	return &dup
}

package service

import (
	"context"
	"testing"
	"time"

	"sarisari/backend/internal/domain"
	"sarisari/backend/internal/sequence"
	"sarisari/backend/internal/store"
	"sarisari/backend/internal/store/memory"
)

var fixedDay = time.Date(2026, time.October, 17, 9, 30, 0, 0, time.UTC)

const (
	cashierID = "usr-cashier"
	adminID   = "usr-admin"
)

type fixture struct {
	repo *memory.Store
	svc  *Service
	ctx  context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := memory.New()
	repo.PutUser(domain.User{ID: cashierID, Username: "cashier", FullName: "Counter Cashier", Role: domain.RoleCashier, Active: true})
	repo.PutUser(domain.User{ID: adminID, Username: "admin", FullName: "Store Owner", Role: domain.RoleAdmin, Active: true})
	return &fixture{
		repo: repo,
		svc:  newServiceOn(repo),
		ctx:  WithActor(context.Background(), domain.Actor{UserID: cashierID, Role: domain.RoleCashier}),
	}
}

func newServiceOn(repo store.Repository) *Service {
	seq := sequence.NewGenerator(time.UTC, nil).WithClock(func() time.Time { return fixedDay })
	return New(repo, seq)
}

func (f *fixture) product(id string, priceCents int64, stock int) {
	f.repo.PutProduct(domain.Product{ID: id, Name: "Product " + id, Barcode: "bc-" + id, PriceCents: priceCents, Stock: stock, LowStockThreshold: 2, Active: true})
}

func (f *fixture) account(id string, balance, limit int64) {
	f.repo.PutAccount(domain.Account{ID: id, FullName: "Customer " + id, BalanceCents: balance, CreditLimitCents: limit, Active: true})
}

func (f *fixture) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := f.repo.GetProduct(context.Background(), id)
	if err != nil {
		t.Fatalf("get product %s: %v", id, err)
	}
	return p.Stock
}

func (f *fixture) balance(t *testing.T, id string) int64 {
	t.Helper()
	a, err := f.repo.GetAccount(context.Background(), id)
	if err != nil {
		t.Fatalf("get account %s: %v", id, err)
	}
	return a.BalanceCents
}

func cashSale(items []domain.SaleItem, paid int64) domain.SaleRequest {
	return domain.SaleRequest{CashierID: cashierID, Items: items, AmountPaidCents: paid, PaymentMethod: domain.PaymentCash}
}

func item(id string, qty int) domain.SaleItem {
	return domain.SaleItem{ProductID: id, Quantity: qty}
}

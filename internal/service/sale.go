package service

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"sarisari/backend/internal/domain"
	"sarisari/backend/internal/store"
	"sarisari/backend/internal/xid"
)

// Sale rings up a basket. Stock for every line, the customer's balance change
// (DEBT and PARTIAL) and the transaction record are applied together or not
// at all.
func (s *Service) Sale(ctx context.Context, req domain.SaleRequest) (_ *domain.Transaction, err error) {
	ctx, span := s.tracer.Start(ctx, "service.Sale")
	defer func() { s.endSpan(span, "sale", err) }()

	if req.CashierID == "" {
		if actor, ok := ActorFromContext(ctx); ok {
			req.CashierID = actor.UserID
		}
	}
	items, err := validateSale(&req)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("sale.payment_method", req.PaymentMethod),
		attribute.Int("sale.lines", len(items)),
	)

	var (
		created  *domain.Transaction
		reserved []domain.Product
	)
	err = s.inUnit(ctx, func(u *unit) error {
		if _, ok := ActorFromContext(ctx); ok {
			if _, err := s.resolveActor(ctx, u.repo); err != nil {
				return err
			}
		}
		cashier, err := s.resolveStaff(ctx, u.repo, req.CashierID)
		if err != nil {
			return err
		}
		var customer *domain.Account
		if req.CustomerID != "" {
			if customer, err = s.resolveCustomer(ctx, u.repo, req.CustomerID); err != nil {
				return err
			}
		}

		if err := precheckStock(ctx, u.repo, items); err != nil {
			return err
		}
		if reserved, err = u.reserve(ctx, items); err != nil {
			return err
		}
		lines, total, err := buildLines(reserved, items)
		if err != nil {
			return err
		}

		tx := domain.Transaction{
			ID:            xid.New("txn"),
			Kind:          domain.KindSale,
			CashierID:     cashier.ID,
			CashierName:   cashier.FullName,
			Items:         lines,
			TotalCents:    total,
			PaymentMethod: req.PaymentMethod,
			Status:        domain.StatusCompleted,
			Note:          req.Note,
		}
		if customer != nil {
			tx.CustomerID = customer.ID
			tx.CustomerName = customer.FullName
		}
		if err := s.applyPayment(ctx, u, &tx, req.AmountPaidCents); err != nil {
			return err
		}

		number, err := s.seq.Next(ctx, u.repo)
		if err != nil {
			return err
		}
		tx.Number = number.Value
		tx.CreatedAt = number.At.UTC()

		created, err = u.repo.CreateTransaction(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("sale.number", created.Number), attribute.Int64("sale.total_cents", created.TotalCents))
	s.logAudit(ctx, "sale.completed", created.ID,
		zap.String("number", created.Number),
		zap.String("payment_method", created.PaymentMethod),
		zap.Int64("total_cents", created.TotalCents),
		zap.Int64("amount_paid_cents", created.AmountPaidCents),
		zap.String("customer_id", created.CustomerID))
	s.warnLowStock(reserved, items)
	return created, nil
}

// applyPayment fills in the paid and change amounts and books any unpaid
// remainder against the customer's balance.
func (s *Service) applyPayment(ctx context.Context, u *unit, tx *domain.Transaction, paid int64) error {
	total := tx.TotalCents
	var owed int64

	switch tx.PaymentMethod {
	case domain.PaymentCash:
		if paid < total {
			return &store.InsufficientPaymentError{TotalCents: total, PaidCents: paid}
		}
		tx.AmountPaidCents = paid
		tx.ChangeCents = paid - total
		return nil
	case domain.PaymentDebt:
		owed = total
	case domain.PaymentPartial:
		if paid > total {
			return fmt.Errorf("%w: partial payment %d exceeds total %d", store.ErrInvalidInput, paid, total)
		}
		tx.AmountPaidCents = paid
		owed = total - paid
	default:
		return fmt.Errorf("%w: unsupported payment method %q", store.ErrInvalidInput, tx.PaymentMethod)
	}

	tx.ChangeCents = 0
	if owed == 0 {
		return nil
	}
	_, err := u.adjust(ctx, store.AccountAdjustment{
		AccountID:  tx.CustomerID,
		DeltaCents: -owed,
		Reason:     "sale " + tx.ID,
	})
	return err
}

// precheckStock rejects the basket before anything is reserved. Reserve
// re-checks under lock, so this only spares a round of compensation.
func precheckStock(ctx context.Context, repo store.Repository, items []store.StockLine) error {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := repo.GetProducts(ctx, ids)
	if err != nil {
		return err
	}
	for _, item := range items {
		p, ok := products[item.ProductID]
		if !ok || !p.Active {
			return fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
		}
		if p.Stock < item.Quantity {
			return &store.InsufficientStockError{ProductID: p.ID, Name: p.Name, Requested: item.Quantity, Available: p.Stock}
		}
	}
	return nil
}

// buildLines snapshots name and price from the reserved products. Totals
// beyond MaxAmountCents are rejected.
func buildLines(reserved []domain.Product, items []store.StockLine) ([]domain.TransactionLine, int64, error) {
	lines := make([]domain.TransactionLine, 0, len(items))
	var total int64
	for i, item := range items {
		p := reserved[i]
		if p.PriceCents < 0 || p.PriceCents > domain.MaxAmountCents/int64(item.Quantity) {
			return nil, 0, fmt.Errorf("%w: line total for %s is out of range", store.ErrInvalidInput, p.ID)
		}
		subtotal := p.PriceCents * int64(item.Quantity)
		if total > domain.MaxAmountCents-subtotal {
			return nil, 0, fmt.Errorf("%w: sale total is out of range", store.ErrInvalidInput)
		}
		total += subtotal
		lines = append(lines, domain.TransactionLine{
			ProductID:     p.ID,
			Name:          p.Name,
			Barcode:       p.Barcode,
			PriceCents:    p.PriceCents,
			Quantity:      item.Quantity,
			SubtotalCents: subtotal,
		})
	}
	return lines, total, nil
}

func validateSale(req *domain.SaleRequest) ([]store.StockLine, error) {
	req.PaymentMethod = strings.ToUpper(strings.TrimSpace(req.PaymentMethod))
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.Note = strings.TrimSpace(req.Note)

	if !isSupportedPaymentMethod(req.PaymentMethod) {
		return nil, fmt.Errorf("%w: unsupported payment method %q", store.ErrInvalidInput, req.PaymentMethod)
	}
	if req.AmountPaidCents < 0 || req.AmountPaidCents > domain.MaxAmountCents {
		return nil, fmt.Errorf("%w: amount paid must be between 0 and %d", store.ErrInvalidInput, domain.MaxAmountCents)
	}
	if req.PaymentMethod != domain.PaymentCash && req.CustomerID == "" {
		return nil, store.ErrCustomerRequired
	}
	if req.PaymentMethod == domain.PaymentDebt {
		req.AmountPaidCents = 0
	}
	return normalizeItems(req.Items)
}

// normalizeItems merges repeated products into one line, keeping the order in
// which each product first appears.
func normalizeItems(items []domain.SaleItem) ([]store.StockLine, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: sale has no items", store.ErrInvalidInput)
	}
	index := make(map[string]int, len(items))
	lines := make([]store.StockLine, 0, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.ProductID)
		if id == "" {
			return nil, fmt.Errorf("%w: item without product id", store.ErrInvalidInput)
		}
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity for %s must be positive", store.ErrInvalidInput, id)
		}
		if item.Quantity > domain.MaxQuantity {
			return nil, fmt.Errorf("%w: quantity for %s must not exceed %d", store.ErrInvalidInput, id, domain.MaxQuantity)
		}
		if i, ok := index[id]; ok {
			lines[i].Quantity += item.Quantity
			continue
		}
		index[id] = len(lines)
		lines = append(lines, store.StockLine{ProductID: id, Quantity: item.Quantity})
	}
	for _, line := range lines {
		if line.Quantity > domain.MaxQuantity {
			return nil, fmt.Errorf("%w: quantity for %s must not exceed %d", store.ErrInvalidInput, line.ProductID, domain.MaxQuantity)
		}
	}
	return lines, nil
}

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case domain.PaymentCash, domain.PaymentDebt, domain.PaymentPartial:
		return true
	}
	return false
}

// warnLowStock logs the products this sale took to or below their
// threshold. Products that were already low before the sale stay quiet.
func (s *Service) warnLowStock(products []domain.Product, items []store.StockLine) {
	for _, p := range lowStockCrossings(products, items) {
		s.log.Warn("low stock",
			zap.String("product_id", p.ID),
			zap.String("name", p.Name),
			zap.Int("stock", p.Stock),
			zap.Int("threshold", p.LowStockThreshold))
	}
}

func lowStockCrossings(products []domain.Product, items []store.StockLine) []domain.Product {
	var crossed []domain.Product
	for i, p := range products {
		if p.IsLowStock() && p.Stock+items[i].Quantity > p.LowStockThreshold {
			crossed = append(crossed, p)
		}
	}
	return crossed
}

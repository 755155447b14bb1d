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

const maxRestockListLimit = 200

func (s *Service) Restock(ctx context.Context, req domain.RestockRequest) (_ *domain.RestockResult, err error) {
	ctx, span := s.tracer.Start(ctx, "service.Restock")
	defer func() { s.endSpan(span, "restock", err) }()

	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" {
		return nil, fmt.Errorf("%w: product id is required", store.ErrInvalidInput)
	}
	totalCost, err := store.RestockCost(domain.RestockEntry{Quantity: req.Quantity, CostPerUnitCents: req.CostPerUnitCents})
	if err != nil {
		return nil, err
	}
	actor, err := s.resolveActor(ctx, s.repo)
	if err != nil {
		return nil, err
	}

	supplier := strings.TrimSpace(req.Supplier)
	if supplier == "" {
		supplier = domain.DefaultSupplier
	}
	entry := domain.RestockEntry{
		ID:               xid.New("rst"),
		ProductID:        req.ProductID,
		Quantity:         req.Quantity,
		CostPerUnitCents: req.CostPerUnitCents,
		TotalCostCents:   totalCost,
		Supplier:         supplier,
		ActorID:          actor.ID,
		ActorName:        actor.FullName,
		Notes:            strings.TrimSpace(req.Notes),
		CreatedAt:        s.now(),
	}

	newStock, err := s.repo.Restock(ctx, entry)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("product.id", req.ProductID), attribute.Int("product.stock", newStock))
	s.logAudit(ctx, "stock.restocked", req.ProductID,
		zap.Int("quantity", req.Quantity),
		zap.Int("new_stock", newStock),
		zap.Int64("total_cost_cents", entry.TotalCostCents),
		zap.String("supplier", supplier))

	result := &domain.RestockResult{NewStock: newStock, Entry: entry}
	if p, err := s.repo.GetProduct(ctx, req.ProductID); err == nil {
		result.LowStock = newStock <= p.LowStockThreshold
	}
	return result, nil
}

func (s *Service) ListRestocks(ctx context.Context, productID string, limit int) ([]domain.RestockEntry, error) {
	if strings.TrimSpace(productID) == "" {
		return nil, fmt.Errorf("%w: product id is required", store.ErrInvalidInput)
	}
	if limit < 1 || limit > maxRestockListLimit {
		limit = maxRestockListLimit
	}
	return s.repo.ListRestocks(ctx, productID, limit)
}

func (s *Service) LowStock(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListLowStock(ctx)
}

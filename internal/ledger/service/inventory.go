package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storeledger/internal/ledger/domain"
)

// moveBatch adds delta to the batch quantity and keeps its state in step.
func (s *Store) moveBatch(m *mutation, batchID snowflake.ID, delta decimal.Decimal) {
	batch, ok := s.batches[batchID]
	if !ok || delta.IsZero() {
		return
	}
	batch.Quantity = batch.Quantity.Add(delta)
	switch {
	case !batch.Quantity.IsPositive() && batch.State == domain.BatchStateActive:
		batch.State = domain.BatchStateDepleted
	case batch.Quantity.IsPositive() && batch.State == domain.BatchStateDepleted:
		batch.State = domain.BatchStateActive
	}
	s.updated(m, batch)
}

func (s *Store) warehouseOrDefault(id snowflake.ID) snowflake.ID {
	if id != 0 {
		return id
	}
	for _, w := range s.warehouses {
		if w.IsDefault && w.Status.Live() {
			return w.ID
		}
	}
	return 0
}

func (s *Store) codeTaken(code string, except snowflake.ID) bool {
	if code == "" {
		return false
	}
	for _, p := range s.products {
		if p.ID != except && p.Status.Live() && strings.EqualFold(p.Code, code) {
			return true
		}
	}
	return false
}

func (s *Store) AddProduct(ctx context.Context, in domain.Product) (out domain.Product, err error) {
	defer func() { s.metrics.RecordMutation("add_product", err) }()

	in.Name = strings.TrimSpace(in.Name)
	in.Code = strings.TrimSpace(in.Code)
	if err := domain.Validate(in); err != nil {
		return domain.Product{}, err
	}
	if in.MinStock.IsNegative() {
		return domain.Product{}, domain.ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.codeTaken(in.Code, 0) {
		return domain.Product{}, domain.ErrDuplicateCode
	}

	m := newMutation("add_product")
	product := in
	product.Envelope = s.newEnvelope()
	s.products[product.ID] = &product
	s.created(m, &product)

	s.commit(ctx, m)
	return product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, id snowflake.ID, in domain.Product) (out domain.Product, err error) {
	defer func() { s.metrics.RecordMutation("update_product", err) }()

	in.Name = strings.TrimSpace(in.Name)
	in.Code = strings.TrimSpace(in.Code)
	if err := domain.Validate(in); err != nil {
		return domain.Product{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := liveRow(s.products, id)
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if s.codeTaken(in.Code, id) {
		return domain.Product{}, domain.ErrDuplicateCode
	}

	m := newMutation("update_product")
	product.Name = in.Name
	product.Code = in.Code
	product.Unit = in.Unit
	product.Category = in.Category
	product.SellingPrice = in.SellingPrice
	product.PurchasePrice = in.PurchasePrice
	product.MinStock = in.MinStock
	s.updated(m, product)

	s.commit(ctx, m)
	return *product, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id snowflake.ID) (err error) {
	defer func() { s.metrics.RecordMutation("delete_product", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := liveRow(s.products, id)
	if !ok {
		return domain.ErrProductNotFound
	}

	m := newMutation("delete_product")
	product.Status = domain.StatusDeleted
	s.updated(m, product)
	s.commit(ctx, m)
	return nil
}

func (s *Store) Products() []domain.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return liveRows(s.products, nil)
}

func (s *Store) Product(id snowflake.ID) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	product, ok := liveRow(s.products, id)
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return *product, nil
}

// LowStockProducts lists products whose available quantity is at or below
// their MinStock, or below threshold when MinStock is unset.
func (s *Store) LowStockProducts(threshold decimal.Decimal) []domain.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return liveRows(s.products, func(p *domain.Product) bool {
		limit := p.MinStock
		if limit.IsZero() {
			limit = threshold
		}
		return s.availableQuantity(p.ID, 0).LessThanOrEqual(limit)
	})
}

func (s *Store) AddBatch(ctx context.Context, in domain.Batch) (out domain.Batch, err error) {
	defer func() { s.metrics.RecordMutation("add_batch", err) }()

	if err := domain.Validate(in); err != nil {
		return domain.Batch{}, err
	}
	if in.Quantity.IsNegative() {
		return domain.Batch{}, domain.ErrInvalidQuantity
	}
	if in.PurchasePrice.IsNegative() || in.SellingPrice.IsNegative() {
		return domain.Batch{}, domain.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := liveRow(s.products, in.ProductID); !ok {
		return domain.Batch{}, domain.ErrProductNotFound
	}
	if in.WarehouseID != 0 {
		if _, ok := liveRow(s.warehouses, in.WarehouseID); !ok {
			return domain.Batch{}, domain.ErrWarehouseNotFound
		}
	}

	m := newMutation("add_batch")
	batch := in
	batch.Envelope = s.newEnvelope()
	batch.WarehouseID = s.warehouseOrDefault(in.WarehouseID)
	if batch.State == "" {
		batch.State = domain.BatchStateActive
	}
	s.batches[batch.ID] = &batch
	s.created(m, &batch)

	s.commit(ctx, m)
	return batch, nil
}

// Batches lists live batches; a zero id matches any product or warehouse.
func (s *Store) Batches(productID, warehouseID snowflake.ID) []domain.Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return liveRows(s.batches, func(b *domain.Batch) bool {
		return (productID == 0 || b.ProductID == productID) &&
			(warehouseID == 0 || b.WarehouseID == warehouseID)
	})
}

func (s *Store) AvailableQuantity(productID, warehouseID snowflake.ID) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.availableQuantity(productID, warehouseID)
}

func (s *Store) availableQuantity(productID, warehouseID snowflake.ID) decimal.Decimal {
	total := decimal.Zero
	for _, b := range s.batches {
		if b.ProductID != productID || !b.Status.Live() {
			continue
		}
		if warehouseID != 0 && b.WarehouseID != warehouseID {
			continue
		}
		total = total.Add(b.Quantity)
	}
	return total
}

func (s *Store) AddPendingAdjustment(ctx context.Context, req domain.AddPendingAdjustmentRequest) (out domain.PendingAdjustment, err error) {
	defer func() { s.metrics.RecordMutation("add_pending_adjustment", err) }()

	if err := domain.Validate(req); err != nil {
		return domain.PendingAdjustment{}, err
	}
	if req.CountedQuantity.IsNegative() {
		return domain.PendingAdjustment{}, domain.ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := liveRow(s.batches, req.BatchID)
	if !ok {
		return domain.PendingAdjustment{}, domain.ErrBatchNotFound
	}

	m := newMutation("add_pending_adjustment")
	adj := &domain.PendingAdjustment{
		Envelope:        s.newEnvelope(),
		BatchID:         batch.ID,
		ProductID:       batch.ProductID,
		WarehouseID:     batch.WarehouseID,
		SystemQuantity:  batch.Quantity,
		CountedQuantity: req.CountedQuantity,
		Reason:          req.Reason,
		State:           domain.AdjustmentPending,
		RequestedBy:     req.Actor,
	}
	s.pendingAdjustments[adj.ID] = adj
	s.created(m, adj)

	s.commit(ctx, m)
	return *adj, nil
}

// ApprovePendingAdjustment sets the batch quantity to the counted quantity.
func (s *Store) ApprovePendingAdjustment(ctx context.Context, id snowflake.ID, actor string) (out domain.PendingAdjustment, err error) {
	defer func() { s.metrics.RecordMutation("approve_pending_adjustment", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	adj, err := s.openAdjustment(id)
	if err != nil {
		return domain.PendingAdjustment{}, err
	}
	if _, ok := s.batches[adj.BatchID]; !ok {
		return domain.PendingAdjustment{}, domain.ErrBatchNotFound
	}

	m := newMutation("approve_pending_adjustment")
	batch := s.batches[adj.BatchID]
	s.moveBatch(m, batch.ID, adj.CountedQuantity.Sub(batch.Quantity))
	s.resolveAdjustment(m, adj, domain.AdjustmentApproved, actor)

	s.commit(ctx, m)
	return *adj, nil
}

func (s *Store) RejectPendingAdjustment(ctx context.Context, id snowflake.ID, actor string) (out domain.PendingAdjustment, err error) {
	defer func() { s.metrics.RecordMutation("reject_pending_adjustment", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	adj, err := s.openAdjustment(id)
	if err != nil {
		return domain.PendingAdjustment{}, err
	}

	m := newMutation("reject_pending_adjustment")
	s.resolveAdjustment(m, adj, domain.AdjustmentRejected, actor)

	s.commit(ctx, m)
	return *adj, nil
}

func (s *Store) openAdjustment(id snowflake.ID) (*domain.PendingAdjustment, error) {
	adj, ok := liveRow(s.pendingAdjustments, id)
	if !ok {
		return nil, domain.ErrPendingAdjustmentNotFound
	}
	if adj.State != domain.AdjustmentPending {
		return nil, domain.ErrAdjustmentResolved
	}
	return adj, nil
}

func (s *Store) resolveAdjustment(m *mutation, adj *domain.PendingAdjustment, state domain.AdjustmentState, actor string) {
	now := s.now()
	adj.State = state
	adj.ReviewedBy = actor
	adj.ReviewedAt = &now
	s.updated(m, adj)
}

func (s *Store) PendingAdjustments() []domain.PendingAdjustment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return liveRows(s.pendingAdjustments, nil)
}

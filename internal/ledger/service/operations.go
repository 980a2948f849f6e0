package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storeledger/internal/ledger/domain"
)

// AddWarehouse derives a slug code from the name when none is given. The first
// warehouse becomes the default one.
func (s *Store) AddWarehouse(ctx context.Context, in domain.Warehouse) (out domain.Warehouse, err error) {
	defer func() { s.metrics.RecordMutation("add_warehouse", err) }()

	in.Name = strings.TrimSpace(in.Name)
	if err := domain.Validate(in); err != nil {
		return domain.Warehouse{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m := newMutation("add_warehouse")
	warehouse := in
	warehouse.Envelope = s.newEnvelope()
	if strings.TrimSpace(warehouse.Code) == "" {
		warehouse.Code = slug.Make(warehouse.Name)
	}
	if s.warehouseOrDefault(0) == 0 {
		warehouse.IsDefault = true
	} else if warehouse.IsDefault {
		for _, w := range s.warehouses {
			if w.IsDefault {
				w.IsDefault = false
				s.updated(m, w)
			}
		}
	}
	s.warehouses[warehouse.ID] = &warehouse
	s.created(m, &warehouse)

	s.commit(ctx, m)
	return warehouse, nil
}

func (s *Store) Warehouses() []domain.Warehouse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return liveRows(s.warehouses, nil)
}

func (s *Store) AddRepresentative(ctx context.Context, in domain.Representative) (out domain.Representative, err error) {
	defer func() { s.metrics.RecordMutation("add_representative", err) }()

	in.Name = strings.TrimSpace(in.Name)
	if err := domain.Validate(in); err != nil {
		return domain.Representative{}, err
	}
	if in.CommissionRate.IsNegative() {
		return domain.Representative{}, domain.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m := newMutation("add_representative")
	rep := in
	rep.Envelope = s.newEnvelope()
	s.representatives[rep.ID] = &rep
	s.created(m, &rep)

	s.commit(ctx, m)
	return rep, nil
}

func (s *Store) Representatives() []domain.Representative {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return liveRows(s.representatives, nil)
}

func (s *Store) AddPurchaseOrder(ctx context.Context, in domain.PurchaseOrder) (out domain.PurchaseOrder, err error) {
	defer func() { s.metrics.RecordMutation("add_purchase_order", err) }()

	if err := domain.Validate(in); err != nil {
		return domain.PurchaseOrder{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := liveRow(s.suppliers, in.SupplierID); !ok {
		return domain.PurchaseOrder{}, domain.ErrSupplierNotFound
	}
	total := decimal.Zero
	for _, item := range in.Items {
		if _, ok := liveRow(s.products, item.ProductID); !ok {
			return domain.PurchaseOrder{}, domain.ErrProductNotFound
		}
		if !item.Quantity.IsPositive() {
			return domain.PurchaseOrder{}, domain.ErrInvalidQuantity
		}
		total = total.Add(item.Quantity.Mul(item.CostPrice))
	}

	m := newMutation("add_purchase_order")
	order := in
	order.Envelope = s.newEnvelope()
	order.Total = total
	order.State = domain.PurchaseOrderOpen
	s.purchaseOrders[order.ID] = &order
	s.created(m, &order)

	s.commit(ctx, m)
	return order, nil
}

// SetPurchaseOrderState closes an open order as received or cancelled.
func (s *Store) SetPurchaseOrderState(ctx context.Context, id snowflake.ID, state domain.PurchaseOrderState) (out domain.PurchaseOrder, err error) {
	defer func() { s.metrics.RecordMutation("set_purchase_order_state", err) }()

	if state != domain.PurchaseOrderReceived && state != domain.PurchaseOrderCancelled {
		return domain.PurchaseOrder{}, domain.ErrInvalidState
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := liveRow(s.purchaseOrders, id)
	if !ok {
		return domain.PurchaseOrder{}, domain.ErrPurchaseOrderNotFound
	}
	if order.State != domain.PurchaseOrderOpen {
		return domain.PurchaseOrder{}, domain.ErrInvalidState
	}

	m := newMutation("set_purchase_order_state")
	order.State = state
	s.updated(m, order)
	s.commit(ctx, m)
	return *order, nil
}

func (s *Store) PurchaseOrders() []domain.PurchaseOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return liveRows(s.purchaseOrders, nil)
}

// SaveDailyClosing records the counted drawer against the computed cash
// balance. Saving the same business date again overwrites the earlier count.
func (s *Store) SaveDailyClosing(ctx context.Context, req domain.SaveDailyClosingRequest) (out domain.DailyClosing, err error) {
	defer func() { s.metrics.RecordMutation("save_daily_closing", err) }()

	if err := domain.Validate(req); err != nil {
		return domain.DailyClosing{}, err
	}
	if req.CountedCash.IsNegative() {
		return domain.DailyClosing{}, domain.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m := newMutation("save_daily_closing")
	expected := s.cashBalance()

	var closing *domain.DailyClosing
	for _, c := range s.dailyClosings {
		if c.BusinessDate == req.BusinessDate && c.Status.Live() {
			closing = c
			s.updated(m, closing)
			break
		}
	}
	if closing == nil {
		closing = &domain.DailyClosing{Envelope: s.newEnvelope(), BusinessDate: req.BusinessDate}
		s.dailyClosings[closing.ID] = closing
		s.created(m, closing)
	}

	closing.ExpectedCash = expected
	closing.CountedCash = req.CountedCash
	closing.Difference = req.CountedCash.Sub(expected)
	closing.Notes = req.Notes
	closing.ClosedBy = req.Actor

	s.commit(ctx, m)
	return *closing, nil
}

func (s *Store) DailyClosings() []domain.DailyClosing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return liveRows(s.dailyClosings, nil)
}

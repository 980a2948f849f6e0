package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storeledger/internal/ledger/domain"
)

func (s *Store) resolvePurchaseItems(items []domain.PurchaseItem) ([]domain.PurchaseItem, error) {
	out := make([]domain.PurchaseItem, 0, len(items))
	for _, item := range items {
		product, ok := liveRow(s.products, item.ProductID)
		if !ok {
			return nil, domain.ErrProductNotFound
		}
		if !item.Quantity.IsPositive() {
			return nil, domain.ErrInvalidQuantity
		}
		if item.CostPrice.IsNegative() || item.SellingPrice.IsNegative() {
			return nil, domain.ErrInvalidAmount
		}
		if item.WarehouseID != 0 {
			if _, ok := liveRow(s.warehouses, item.WarehouseID); !ok {
				return nil, domain.ErrWarehouseNotFound
			}
		}
		if item.BatchID != 0 {
			batch, ok := s.batches[item.BatchID]
			if !ok || batch.ProductID != item.ProductID {
				return nil, domain.ErrBatchNotFound
			}
		}
		if item.Name == "" {
			item.Name = product.Name
		}
		out = append(out, item)
	}
	return out, nil
}

// receivePurchaseStock creates a batch for every purchase line that does not
// name one and records the new batch id on the line.
func (s *Store) receivePurchaseStock(m *mutation, items []domain.PurchaseItem) {
	for i := range items {
		item := &items[i]
		if item.BatchID != 0 {
			s.moveBatch(m, item.BatchID, item.Quantity)
			continue
		}
		batch := &domain.Batch{
			Envelope:      s.newEnvelope(),
			ProductID:     item.ProductID,
			WarehouseID:   s.warehouseOrDefault(item.WarehouseID),
			BatchNumber:   item.BatchNumber,
			PurchasePrice: item.CostPrice,
			SellingPrice:  item.SellingPrice,
			Quantity:      item.Quantity,
			ExpiryDate:    item.ExpiryDate,
			State:         domain.BatchStateActive,
		}
		if batch.BatchNumber == "" {
			batch.BatchNumber = fmt.Sprintf("B-%d", batch.ID)
			item.BatchNumber = batch.BatchNumber
		}
		s.batches[batch.ID] = batch
		s.created(m, batch)
		item.BatchID = batch.ID
	}
}

// movePurchaseStock applies sign × the stock effect of already received lines.
func (s *Store) movePurchaseStock(m *mutation, items []domain.PurchaseItem, isReturn bool, sign int64) {
	for _, item := range items {
		if item.BatchID == 0 {
			continue
		}
		delta := item.Quantity
		if isReturn {
			delta = item.Quantity.Neg()
		}
		s.moveBatch(m, item.BatchID, delta.Mul(decimal.NewFromInt(sign)))
	}
}

func (s *Store) CreatePurchaseInvoice(ctx context.Context, req domain.CreatePurchaseInvoiceRequest) (pi domain.PurchaseInvoice, err error) {
	defer func() { s.metrics.RecordMutation("create_purchase_invoice", err) }()

	if err := domain.Validate(req); err != nil {
		return domain.PurchaseInvoice{}, err
	}
	if req.CashPaid.IsNegative() {
		return domain.PurchaseInvoice{}, domain.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	supplier, ok := liveRow(s.suppliers, req.SupplierID)
	if !ok {
		return domain.PurchaseInvoice{}, domain.ErrSupplierNotFound
	}
	items, err := s.resolvePurchaseItems(req.Items)
	if err != nil {
		return domain.PurchaseInvoice{}, err
	}

	m := newMutation("create_purchase_invoice")

	invoiceType := domain.PurchaseInvoiceTypePurchase
	if req.IsReturn {
		invoiceType = domain.PurchaseInvoiceTypeReturn
		s.movePurchaseStock(m, items, true, 1)
	} else {
		s.receivePurchaseStock(m, items)
	}

	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Quantity.Mul(item.CostPrice))
	}

	invoice := &domain.PurchaseInvoice{
		Envelope:        s.newEnvelope(),
		Number:          nextNumber(s.purchaseInvoices, "PUR-", func(p *domain.PurchaseInvoice) string { return p.Number }),
		Type:            invoiceType,
		SupplierID:      supplier.ID,
		Items:           items,
		Total:           total,
		PreviousBalance: supplier.CurrentBalance,
		PaidAtCreation:  decimal.Zero,
		CreatedBy:       req.Actor,
		Notes:           req.Notes,
	}
	invoice.FinalBalance = applyDirection(invoice.PreviousBalance, total, req.IsReturn)
	supplier.CurrentBalance = invoice.FinalBalance
	s.purchaseInvoices[invoice.ID] = invoice
	s.created(m, invoice)

	if req.CashPaid.IsPositive() {
		effect := s.purchasePolicy.BalanceEffect(req.CashPaid, req.IsReturn)
		supplier.CurrentBalance = supplier.CurrentBalance.Add(effect)
		invoice.PaidAtCreation = req.CashPaid
		invoice.CashBalanceEffect = effect

		txType := domain.CashTransactionExpense
		if req.IsReturn {
			txType = domain.CashTransactionReceipt
		}
		s.appendCash(m, &domain.CashTransaction{
			Type:          txType,
			Amount:        req.CashPaid,
			Category:      "purchases",
			Description:   invoice.Number,
			ReferenceID:   invoice.ID,
			ReferenceType: domain.ReferencePurchaseInvoice,
			CounterpartID: supplier.ID,
			Source:        domain.CashSourceInvoiceCreation,
			BalanceEffect: effect,
			CreatedBy:     req.Actor,
		})
	}
	s.updated(m, supplier)

	s.commit(ctx, m)
	return *invoice, nil
}

func (s *Store) DeletePurchaseInvoice(ctx context.Context, id snowflake.ID) (err error) {
	defer func() { s.metrics.RecordMutation("delete_purchase_invoice", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	invoice, ok := liveRow(s.purchaseInvoices, id)
	if !ok {
		return domain.ErrPurchaseInvoiceNotFound
	}

	m := newMutation("delete_purchase_invoice")
	if supplier, ok := s.suppliers[invoice.SupplierID]; ok {
		supplier.CurrentBalance = applyDirection(supplier.CurrentBalance, invoice.Total, !invoice.IsReturn())
		s.updated(m, supplier)
	}
	s.cancelCreationCash(m, invoice.ID)
	s.movePurchaseStock(m, invoice.Items, invoice.IsReturn(), -1)
	invoice.Status = domain.StatusDeleted
	s.updated(m, invoice)

	s.commit(ctx, m)
	return nil
}

// RecordPurchasePayment books cash paid to (or refunded by) the invoice's supplier.
func (s *Store) RecordPurchasePayment(ctx context.Context, purchaseInvoiceID snowflake.ID, req domain.PaymentRequest) (tx domain.CashTransaction, err error) {
	defer func() { s.metrics.RecordMutation("record_purchase_payment", err) }()

	if !req.Amount.IsPositive() {
		return domain.CashTransaction{}, domain.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	invoice, ok := liveRow(s.purchaseInvoices, purchaseInvoiceID)
	if !ok {
		return domain.CashTransaction{}, domain.ErrPurchaseInvoiceNotFound
	}
	supplier, ok := s.suppliers[invoice.SupplierID]
	if !ok {
		return domain.CashTransaction{}, domain.ErrSupplierNotFound
	}

	m := newMutation("record_purchase_payment")
	effect := req.Amount.Neg()
	txType := domain.CashTransactionExpense
	if invoice.IsReturn() {
		effect = req.Amount
		txType = domain.CashTransactionReceipt
	}
	supplier.CurrentBalance = supplier.CurrentBalance.Add(effect)
	s.updated(m, supplier)

	payment := s.appendCash(m, &domain.CashTransaction{
		Type:          txType,
		Amount:        req.Amount,
		Category:      "supplier_payment",
		Description:   invoice.Number,
		ReferenceID:   invoice.ID,
		ReferenceType: domain.ReferencePurchaseInvoice,
		CounterpartID: supplier.ID,
		Source:        domain.CashSourcePayment,
		BalanceEffect: effect,
		CreatedBy:     req.Actor,
	})

	s.commit(ctx, m)
	return *payment, nil
}

func (s *Store) PurchaseInvoices() []domain.PurchaseInvoice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return liveRows(s.purchaseInvoices, nil)
}

func (s *Store) PurchaseInvoice(id snowflake.ID) (domain.PurchaseInvoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	invoice, ok := liveRow(s.purchaseInvoices, id)
	if !ok {
		return domain.PurchaseInvoice{}, domain.ErrPurchaseInvoiceNotFound
	}
	return *invoice, nil
}

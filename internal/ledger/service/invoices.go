package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storeledger/internal/ledger/domain"
)

type invoiceTotals struct {
	beforeDiscount decimal.Decimal
	discount       decimal.Decimal
	net            decimal.Decimal
}

func computeInvoiceTotals(items []domain.InvoiceItem, extraDiscount decimal.Decimal) invoiceTotals {
	var t invoiceTotals
	for _, item := range items {
		t.beforeDiscount = t.beforeDiscount.Add(item.Quantity.Mul(item.UnitPrice))
		t.discount = t.discount.Add(item.Discount)
	}
	t.net = decimal.Max(decimal.Zero, t.beforeDiscount.Sub(t.discount).Sub(extraDiscount))
	return t
}

// applyDirection adds amount for a sale or purchase and subtracts it for a return.
func applyDirection(balance, amount decimal.Decimal, isReturn bool) decimal.Decimal {
	if isReturn {
		return balance.Sub(amount)
	}
	return balance.Add(amount)
}

// resolveInvoiceItems validates lines against the catalog without mutating anything.
func (s *Store) resolveInvoiceItems(items []domain.InvoiceItem) ([]domain.InvoiceItem, error) {
	out := make([]domain.InvoiceItem, 0, len(items))
	for _, item := range items {
		product, ok := liveRow(s.products, item.ProductID)
		if !ok {
			return nil, domain.ErrProductNotFound
		}
		if !item.Quantity.IsPositive() {
			return nil, domain.ErrInvalidQuantity
		}
		if item.UnitPrice.IsNegative() || item.Discount.IsNegative() {
			return nil, domain.ErrInvalidAmount
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

// moveInvoiceStock applies sign × the stock effect of the lines: a sale takes
// stock out of the referenced batch, a return puts it back.
func (s *Store) moveInvoiceStock(m *mutation, items []domain.InvoiceItem, isReturn bool, sign int64) {
	for _, item := range items {
		if item.BatchID == 0 {
			continue
		}
		delta := item.Quantity.Neg()
		if isReturn {
			delta = item.Quantity
		}
		s.moveBatch(m, item.BatchID, delta.Mul(decimal.NewFromInt(sign)))
	}
}

func (s *Store) CreateInvoice(ctx context.Context, req domain.CreateInvoiceRequest) (inv domain.Invoice, err error) {
	defer func() { s.metrics.RecordMutation("create_invoice", err) }()

	if err := domain.Validate(req); err != nil {
		return domain.Invoice{}, err
	}
	if req.CashPayment.IsNegative() || req.ExtraDiscount.IsNegative() || req.Commission.IsNegative() {
		return domain.Invoice{}, domain.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	customer, ok := liveRow(s.customers, req.CustomerID)
	if !ok {
		return domain.Invoice{}, domain.ErrCustomerNotFound
	}
	if req.RepresentativeID != 0 {
		if _, ok := liveRow(s.representatives, req.RepresentativeID); !ok {
			return domain.Invoice{}, domain.ErrRepresentativeNotFound
		}
	}
	items, err := s.resolveInvoiceItems(req.Items)
	if err != nil {
		return domain.Invoice{}, err
	}

	m := newMutation("create_invoice")
	totals := computeInvoiceTotals(items, req.ExtraDiscount)

	invoiceType := domain.InvoiceTypeSale
	if req.IsReturn {
		invoiceType = domain.InvoiceTypeReturn
	}

	invoice := &domain.Invoice{
		Envelope:            s.newEnvelope(),
		Number:              nextNumber(s.invoices, "INV-", func(i *domain.Invoice) string { return i.Number }),
		Type:                invoiceType,
		CustomerID:          customer.ID,
		WarehouseID:         req.WarehouseID,
		Items:               items,
		TotalBeforeDiscount: totals.beforeDiscount,
		TotalDiscount:       totals.discount,
		ExtraDiscount:       req.ExtraDiscount,
		NetTotal:            totals.net,
		RepresentativeID:    req.RepresentativeID,
		Commission:          req.Commission,
		CreatedBy:           req.Actor,
		Notes:               req.Notes,
	}
	s.invoices[invoice.ID] = invoice
	s.created(m, invoice)

	s.applyInvoice(m, invoice, customer, req.CashPayment, req.Actor)
	s.moveInvoiceStock(m, items, req.IsReturn, 1)

	s.commit(ctx, m)
	return *invoice, nil
}

// applyInvoice books the invoice total and any creation-time cash against customer.
func (s *Store) applyInvoice(m *mutation, invoice *domain.Invoice, customer *domain.Customer, cash decimal.Decimal, actor string) {
	invoice.PreviousBalance = customer.CurrentBalance
	invoice.FinalBalance = applyDirection(invoice.PreviousBalance, invoice.NetTotal, invoice.IsReturn())
	customer.CurrentBalance = invoice.FinalBalance

	invoice.PaidAtCreation = decimal.Zero
	invoice.CashBalanceEffect = decimal.Zero
	if cash.IsPositive() {
		effect := s.salesPolicy.BalanceEffect(cash, invoice.IsReturn())
		customer.CurrentBalance = customer.CurrentBalance.Add(effect)
		invoice.PaidAtCreation = cash
		invoice.CashBalanceEffect = effect

		txType := domain.CashTransactionReceipt
		if invoice.IsReturn() {
			txType = domain.CashTransactionExpense
		}
		s.appendCash(m, &domain.CashTransaction{
			Type:          txType,
			Amount:        cash,
			Category:      "sales",
			Description:   invoice.Number,
			ReferenceID:   invoice.ID,
			ReferenceType: domain.ReferenceInvoice,
			CounterpartID: customer.ID,
			Source:        domain.CashSourceInvoiceCreation,
			BalanceEffect: effect,
			CreatedBy:     actor,
		})
	}
	s.updated(m, customer)
}

// reverseInvoice undoes the net total and the creation-time cash of invoice.
func (s *Store) reverseInvoice(m *mutation, invoice *domain.Invoice) {
	if customer, ok := s.customers[invoice.CustomerID]; ok {
		customer.CurrentBalance = applyDirection(customer.CurrentBalance, invoice.NetTotal, !invoice.IsReturn())
		s.updated(m, customer)
	}
	s.cancelCreationCash(m, invoice.ID)
	s.moveInvoiceStock(m, invoice.Items, invoice.IsReturn(), -1)
}

func (s *Store) UpdateInvoice(ctx context.Context, id snowflake.ID, req domain.UpdateInvoiceRequest) (inv domain.Invoice, err error) {
	defer func() { s.metrics.RecordMutation("update_invoice", err) }()

	if err := domain.Validate(req); err != nil {
		return domain.Invoice{}, err
	}
	if req.CashPayment.IsNegative() {
		return domain.Invoice{}, domain.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	invoice, ok := liveRow(s.invoices, id)
	if !ok {
		return domain.Invoice{}, domain.ErrInvoiceNotFound
	}
	customer, ok := liveRow(s.customers, req.CustomerID)
	if !ok {
		return domain.Invoice{}, domain.ErrCustomerNotFound
	}
	items, err := s.resolveInvoiceItems(req.Items)
	if err != nil {
		return domain.Invoice{}, err
	}

	m := newMutation("update_invoice")
	s.updated(m, invoice)
	s.reverseInvoice(m, invoice)

	totals := computeInvoiceTotals(items, invoice.ExtraDiscount)
	invoice.CustomerID = customer.ID
	invoice.Items = items
	invoice.TotalBeforeDiscount = totals.beforeDiscount
	invoice.TotalDiscount = totals.discount
	invoice.NetTotal = totals.net

	s.applyInvoice(m, invoice, customer, req.CashPayment, req.Actor)
	s.moveInvoiceStock(m, items, invoice.IsReturn(), 1)

	s.commit(ctx, m)
	return *invoice, nil
}

// DeleteInvoice reverses the invoice and flags it deleted. Payments recorded
// through RecordInvoicePayment stay on the customer.
func (s *Store) DeleteInvoice(ctx context.Context, id snowflake.ID) (err error) {
	defer func() { s.metrics.RecordMutation("delete_invoice", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	invoice, ok := liveRow(s.invoices, id)
	if !ok {
		return domain.ErrInvoiceNotFound
	}

	m := newMutation("delete_invoice")
	s.reverseInvoice(m, invoice)
	invoice.Status = domain.StatusDeleted
	s.updated(m, invoice)

	s.commit(ctx, m)
	return nil
}

// RecordInvoicePayment books a collected payment (or a refund for a return)
// against the invoice's customer.
func (s *Store) RecordInvoicePayment(ctx context.Context, invoiceID snowflake.ID, req domain.PaymentRequest) (tx domain.CashTransaction, err error) {
	defer func() { s.metrics.RecordMutation("record_invoice_payment", err) }()

	if !req.Amount.IsPositive() {
		return domain.CashTransaction{}, domain.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	invoice, ok := liveRow(s.invoices, invoiceID)
	if !ok {
		return domain.CashTransaction{}, domain.ErrInvoiceNotFound
	}
	customer, ok := s.customers[invoice.CustomerID]
	if !ok {
		return domain.CashTransaction{}, domain.ErrCustomerNotFound
	}

	m := newMutation("record_invoice_payment")
	effect := req.Amount.Neg()
	txType := domain.CashTransactionReceipt
	if invoice.IsReturn() {
		effect = req.Amount
		txType = domain.CashTransactionExpense
	}
	customer.CurrentBalance = customer.CurrentBalance.Add(effect)
	s.updated(m, customer)

	payment := s.appendCash(m, &domain.CashTransaction{
		Type:          txType,
		Amount:        req.Amount,
		Category:      "collection",
		Description:   invoice.Number,
		ReferenceID:   invoice.ID,
		ReferenceType: domain.ReferenceInvoice,
		CounterpartID: customer.ID,
		Source:        domain.CashSourcePayment,
		BalanceEffect: effect,
		CreatedBy:     req.Actor,
	})

	s.commit(ctx, m)
	return *payment, nil
}

func (s *Store) Invoices() []domain.Invoice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return liveRows(s.invoices, nil)
}

func (s *Store) CustomerInvoices(customerID snowflake.ID) []domain.Invoice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return liveRows(s.invoices, func(i *domain.Invoice) bool { return i.CustomerID == customerID })
}

func (s *Store) Invoice(id snowflake.ID) (domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	invoice, ok := liveRow(s.invoices, id)
	if !ok {
		return domain.Invoice{}, domain.ErrInvoiceNotFound
	}
	return *invoice, nil
}

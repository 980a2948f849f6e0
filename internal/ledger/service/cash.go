package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storeledger/internal/ledger/domain"
)

func (s *Store) appendCash(m *mutation, tx *domain.CashTransaction) *domain.CashTransaction {
	tx.Envelope = s.newEnvelope()
	if tx.Source == "" {
		tx.Source = domain.CashSourceManual
	}
	s.cashTransactions[tx.ID] = tx
	s.created(m, tx)
	return tx
}

// shiftCounterpart moves the balance of the customer or supplier a cash
// transaction points at.
func (s *Store) shiftCounterpart(m *mutation, tx *domain.CashTransaction, delta decimal.Decimal) {
	if delta.IsZero() || tx.CounterpartID == 0 {
		return
	}
	switch tx.ReferenceType {
	case domain.ReferenceInvoice, domain.ReferenceCustomer:
		if c, ok := s.customers[tx.CounterpartID]; ok {
			c.CurrentBalance = c.CurrentBalance.Add(delta)
			s.updated(m, c)
		}
	case domain.ReferencePurchaseInvoice, domain.ReferenceSupplier:
		if sup, ok := s.suppliers[tx.CounterpartID]; ok {
			sup.CurrentBalance = sup.CurrentBalance.Add(delta)
			s.updated(m, sup)
		}
	}
}

func (s *Store) cancelCash(m *mutation, tx *domain.CashTransaction) {
	s.shiftCounterpart(m, tx, tx.BalanceEffect.Neg())
	tx.Status = domain.StatusCancelled
	s.updated(m, tx)
}

// cancelCreationCash cancels the cash recorded when referenceID was created.
func (s *Store) cancelCreationCash(m *mutation, referenceID snowflake.ID) {
	for _, tx := range s.cashTransactions {
		if tx.ReferenceID != referenceID || tx.Source != domain.CashSourceInvoiceCreation || !tx.Status.Live() {
			continue
		}
		s.cancelCash(m, tx)
	}
}

// AddCashTransaction appends a manual cash movement. It never touches a balance.
func (s *Store) AddCashTransaction(ctx context.Context, req domain.AddCashTransactionRequest) (tx domain.CashTransaction, err error) {
	defer func() { s.metrics.RecordMutation("add_cash_transaction", err) }()

	if err := domain.Validate(req); err != nil {
		return domain.CashTransaction{}, err
	}
	if !req.Amount.IsPositive() {
		return domain.CashTransaction{}, domain.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m := newMutation("add_cash_transaction")
	created := s.appendCash(m, &domain.CashTransaction{
		Type:          req.Type,
		Amount:        req.Amount,
		Category:      req.Category,
		Description:   req.Description,
		ReferenceID:   req.ReferenceID,
		ReferenceType: req.ReferenceType,
		CounterpartID: req.CounterpartID,
		Source:        domain.CashSourceManual,
		BalanceEffect: decimal.Zero,
		CreatedBy:     req.Actor,
	})

	s.commit(ctx, m)
	return *created, nil
}

// CancelCashTransaction flags the transaction cancelled and undoes whatever it
// did to its counterpart balance.
func (s *Store) CancelCashTransaction(ctx context.Context, id snowflake.ID) (err error) {
	defer func() { s.metrics.RecordMutation("cancel_cash_transaction", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.cashTransactions[id]
	if !ok || tx.Status == domain.StatusDeleted {
		return domain.ErrCashTransactionNotFound
	}
	if tx.Status == domain.StatusCancelled {
		return domain.ErrAlreadyCancelled
	}

	m := newMutation("cancel_cash_transaction")
	s.cancelCash(m, tx)
	s.commit(ctx, m)
	return nil
}

func (s *Store) CashTransactions() []domain.CashTransaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return liveRows(s.cashTransactions, nil)
}

// CashBalance is the signed sum of every live transaction.
func (s *Store) CashBalance() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cashBalance()
}

func (s *Store) cashBalance() decimal.Decimal {
	total := decimal.Zero
	for _, tx := range s.cashTransactions {
		if tx.Status.Live() {
			total = total.Add(tx.Signed())
		}
	}
	return total
}

// InvoicePaidAmount sums the live transactions that reference id.
func (s *Store) InvoicePaidAmount(id snowflake.ID) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, tx := range s.cashTransactions {
		if tx.ReferenceID == id && tx.Status.Live() {
			total = total.Add(tx.Signed())
		}
	}
	return total
}

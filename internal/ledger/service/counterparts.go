package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storeledger/internal/ledger/domain"
)

func (s *Store) AddCustomer(ctx context.Context, in domain.Customer) (out domain.Customer, err error) {
	defer func() { s.metrics.RecordMutation("add_customer", err) }()

	in.Name = strings.TrimSpace(in.Name)
	if err := domain.Validate(in); err != nil {
		return domain.Customer{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m := newMutation("add_customer")
	customer := in
	customer.Envelope = s.newEnvelope()
	customer.CurrentBalance = customer.OpeningBalance
	s.customers[customer.ID] = &customer
	s.created(m, &customer)

	s.commit(ctx, m)
	return customer, nil
}

// UpdateCustomer edits contact fields. Changing the opening balance shifts the
// current balance by the same amount.
func (s *Store) UpdateCustomer(ctx context.Context, id snowflake.ID, in domain.Customer) (out domain.Customer, err error) {
	defer func() { s.metrics.RecordMutation("update_customer", err) }()

	in.Name = strings.TrimSpace(in.Name)
	if err := domain.Validate(in); err != nil {
		return domain.Customer{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	customer, ok := liveRow(s.customers, id)
	if !ok {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}

	m := newMutation("update_customer")
	customer.CurrentBalance = customer.CurrentBalance.Add(in.OpeningBalance.Sub(customer.OpeningBalance))
	customer.OpeningBalance = in.OpeningBalance
	customer.Name = in.Name
	customer.Phone = in.Phone
	customer.Address = in.Address
	customer.Notes = in.Notes
	s.updated(m, customer)

	s.commit(ctx, m)
	return *customer, nil
}

func (s *Store) DeleteCustomer(ctx context.Context, id snowflake.ID) (err error) {
	defer func() { s.metrics.RecordMutation("delete_customer", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	customer, ok := liveRow(s.customers, id)
	if !ok {
		return domain.ErrCustomerNotFound
	}

	m := newMutation("delete_customer")
	customer.Status = domain.StatusDeleted
	s.updated(m, customer)
	s.commit(ctx, m)
	return nil
}

func (s *Store) Customers() []domain.Customer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return liveRows(s.customers, nil)
}

func (s *Store) Customer(id snowflake.ID) (domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	customer, ok := liveRow(s.customers, id)
	if !ok {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	return *customer, nil
}

func (s *Store) AddSupplier(ctx context.Context, in domain.Supplier) (out domain.Supplier, err error) {
	defer func() { s.metrics.RecordMutation("add_supplier", err) }()

	in.Name = strings.TrimSpace(in.Name)
	if err := domain.Validate(in); err != nil {
		return domain.Supplier{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m := newMutation("add_supplier")
	supplier := in
	supplier.Envelope = s.newEnvelope()
	supplier.CurrentBalance = supplier.OpeningBalance
	s.suppliers[supplier.ID] = &supplier
	s.created(m, &supplier)

	s.commit(ctx, m)
	return supplier, nil
}

func (s *Store) UpdateSupplier(ctx context.Context, id snowflake.ID, in domain.Supplier) (out domain.Supplier, err error) {
	defer func() { s.metrics.RecordMutation("update_supplier", err) }()

	in.Name = strings.TrimSpace(in.Name)
	if err := domain.Validate(in); err != nil {
		return domain.Supplier{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	supplier, ok := liveRow(s.suppliers, id)
	if !ok {
		return domain.Supplier{}, domain.ErrSupplierNotFound
	}

	m := newMutation("update_supplier")
	supplier.CurrentBalance = supplier.CurrentBalance.Add(in.OpeningBalance.Sub(supplier.OpeningBalance))
	supplier.OpeningBalance = in.OpeningBalance
	supplier.Name = in.Name
	supplier.Phone = in.Phone
	supplier.Address = in.Address
	supplier.Notes = in.Notes
	s.updated(m, supplier)

	s.commit(ctx, m)
	return *supplier, nil
}

func (s *Store) DeleteSupplier(ctx context.Context, id snowflake.ID) (err error) {
	defer func() { s.metrics.RecordMutation("delete_supplier", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	supplier, ok := liveRow(s.suppliers, id)
	if !ok {
		return domain.ErrSupplierNotFound
	}

	m := newMutation("delete_supplier")
	supplier.Status = domain.StatusDeleted
	s.updated(m, supplier)
	s.commit(ctx, m)
	return nil
}

func (s *Store) Suppliers() []domain.Supplier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return liveRows(s.suppliers, nil)
}

func (s *Store) Supplier(id snowflake.ID) (domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	supplier, ok := liveRow(s.suppliers, id)
	if !ok {
		return domain.Supplier{}, domain.ErrSupplierNotFound
	}
	return *supplier, nil
}

package domain

import "errors"

var (
	ErrCustomerNotFound          = errors.New("customer_not_found")
	ErrSupplierNotFound          = errors.New("supplier_not_found")
	ErrProductNotFound           = errors.New("product_not_found")
	ErrBatchNotFound             = errors.New("batch_not_found")
	ErrInvoiceNotFound           = errors.New("invoice_not_found")
	ErrPurchaseInvoiceNotFound   = errors.New("purchase_invoice_not_found")
	ErrCashTransactionNotFound   = errors.New("cash_transaction_not_found")
	ErrWarehouseNotFound         = errors.New("warehouse_not_found")
	ErrRepresentativeNotFound    = errors.New("representative_not_found")
	ErrPurchaseOrderNotFound     = errors.New("purchase_order_not_found")
	ErrPendingAdjustmentNotFound = errors.New("pending_adjustment_not_found")
	ErrEmptyItems                = errors.New("empty_items")
	ErrInvalidAmount             = errors.New("invalid_amount")
	ErrInvalidQuantity           = errors.New("invalid_quantity")
	ErrInvalidTransactionType    = errors.New("invalid_transaction_type")
	ErrInvalidCashPolicy         = errors.New("invalid_cash_policy")
	ErrInvalidState              = errors.New("invalid_state")
	ErrAlreadyCancelled          = errors.New("already_cancelled")
	ErrAdjustmentResolved        = errors.New("adjustment_already_resolved")
	ErrInvalidBackup             = errors.New("invalid_backup_document")
	ErrDuplicateCode             = errors.New("duplicate_code")
)

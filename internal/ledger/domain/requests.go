package domain

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type CreateInvoiceRequest struct {
	CustomerID       snowflake.ID    `json:"customer_id" validate:"required"`
	Items            []InvoiceItem   `json:"items" validate:"required,min=1,dive"`
	CashPayment      decimal.Decimal `json:"cash_payment"`
	IsReturn         bool            `json:"is_return"`
	ExtraDiscount    decimal.Decimal `json:"extra_discount"`
	Actor            string          `json:"-"`
	RepresentativeID snowflake.ID    `json:"representative_id"`
	Commission       decimal.Decimal `json:"commission"`
	WarehouseID      snowflake.ID    `json:"warehouse_id"`
	Notes            string          `json:"notes"`
}

type UpdateInvoiceRequest struct {
	CustomerID  snowflake.ID    `json:"customer_id" validate:"required"`
	Items       []InvoiceItem   `json:"items" validate:"required,min=1,dive"`
	CashPayment decimal.Decimal `json:"cash_payment"`
	Actor       string          `json:"-"`
}

type CreatePurchaseInvoiceRequest struct {
	SupplierID snowflake.ID    `json:"supplier_id" validate:"required"`
	Items      []PurchaseItem  `json:"items" validate:"required,min=1,dive"`
	CashPaid   decimal.Decimal `json:"cash_paid"`
	IsReturn   bool            `json:"is_return"`
	Actor      string          `json:"-"`
	Notes      string          `json:"notes"`
}

type AddCashTransactionRequest struct {
	Type          CashTransactionType `json:"type" validate:"required,oneof=RECEIPT EXPENSE"`
	Amount        decimal.Decimal     `json:"amount"`
	Category      string              `json:"category"`
	Description   string              `json:"description"`
	ReferenceID   snowflake.ID        `json:"reference_id"`
	ReferenceType ReferenceType       `json:"reference_type" validate:"omitempty,oneof=INVOICE PURCHASE_INVOICE CUSTOMER SUPPLIER"`
	CounterpartID snowflake.ID        `json:"counterpart_id"`
	Actor         string              `json:"-"`
}

type PaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Actor  string          `json:"-"`
}

type AddPendingAdjustmentRequest struct {
	BatchID         snowflake.ID    `json:"batch_id" validate:"required"`
	CountedQuantity decimal.Decimal `json:"counted_quantity"`
	Reason          string          `json:"reason"`
	Actor           string          `json:"-"`
}

type SaveDailyClosingRequest struct {
	BusinessDate string          `json:"business_date" validate:"required,datetime=2006-01-02"`
	CountedCash  decimal.Decimal `json:"counted_cash"`
	Notes        string          `json:"notes"`
	Actor        string          `json:"-"`
}

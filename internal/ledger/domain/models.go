package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Status is the lifecycle flag every query filters on. Records are never removed.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusInactive  Status = "INACTIVE"
	StatusCancelled Status = "CANCELLED"
	StatusDeleted   Status = "DELETED"
)

// Live reports whether a record should be visible to getters and sums.
func (s Status) Live() bool {
	return s != StatusDeleted && s != StatusCancelled
}

// Envelope is embedded in every entity.
type Envelope struct {
	ID        snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Status    Status       `gorm:"type:varchar(16);not null;default:'ACTIVE';index" json:"status"`
	Version   int64        `gorm:"not null;default:1" json:"version"`
	CreatedAt time.Time    `gorm:"not null;index;autoCreateTime:false" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;autoUpdateTime:false" json:"updated_at"`
}

func (e Envelope) Meta() Envelope { return e }

// Touch records one more mutation of the owning entity.
func (e *Envelope) Touch(now time.Time) {
	e.Version++
	e.UpdatedAt = now
}

// Entity is satisfied by every ledger record through the embedded Envelope.
type Entity interface {
	Meta() Envelope
	TableName() string
}

type BatchState string

const (
	BatchStateActive   BatchState = "ACTIVE"
	BatchStateExpired  BatchState = "EXPIRED"
	BatchStateDepleted BatchState = "DEPLETED"
)

type InvoiceType string

const (
	InvoiceTypeSale   InvoiceType = "SALE"
	InvoiceTypeReturn InvoiceType = "RETURN"
)

type PurchaseInvoiceType string

const (
	PurchaseInvoiceTypePurchase PurchaseInvoiceType = "PURCHASE"
	PurchaseInvoiceTypeReturn   PurchaseInvoiceType = "RETURN"
)

type CashTransactionType string

const (
	CashTransactionReceipt CashTransactionType = "RECEIPT"
	CashTransactionExpense CashTransactionType = "EXPENSE"
)

type ReferenceType string

const (
	ReferenceInvoice         ReferenceType = "INVOICE"
	ReferencePurchaseInvoice ReferenceType = "PURCHASE_INVOICE"
	ReferenceCustomer        ReferenceType = "CUSTOMER"
	ReferenceSupplier        ReferenceType = "SUPPLIER"
)

type CashSource string

const (
	CashSourceManual          CashSource = "MANUAL"
	CashSourceInvoiceCreation CashSource = "INVOICE_CREATION"
	CashSourcePayment         CashSource = "PAYMENT"
)

type PurchaseOrderState string

const (
	PurchaseOrderOpen      PurchaseOrderState = "OPEN"
	PurchaseOrderReceived  PurchaseOrderState = "RECEIVED"
	PurchaseOrderCancelled PurchaseOrderState = "CANCELLED"
)

type AdjustmentState string

const (
	AdjustmentPending  AdjustmentState = "PENDING"
	AdjustmentApproved AdjustmentState = "APPROVED"
	AdjustmentRejected AdjustmentState = "REJECTED"
)

const (
	TableProducts           = "products"
	TableBatches            = "batches"
	TableCustomers          = "customers"
	TableSuppliers          = "suppliers"
	TableInvoices           = "invoices"
	TablePurchaseInvoices   = "purchase_invoices"
	TableCashTransactions   = "cash_transactions"
	TableWarehouses         = "warehouses"
	TableRepresentatives    = "representatives"
	TableDailyClosings      = "daily_closings"
	TablePendingAdjustments = "pending_adjustments"
	TablePurchaseOrders     = "purchase_orders"
)

// Tables lists every synchronised table in dependency order.
var Tables = []string{
	TableWarehouses,
	TableProducts,
	TableBatches,
	TableCustomers,
	TableSuppliers,
	TableRepresentatives,
	TableInvoices,
	TablePurchaseInvoices,
	TableCashTransactions,
	TablePurchaseOrders,
	TablePendingAdjustments,
	TableDailyClosings,
}

type Product struct {
	Envelope     `gorm:"embedded"`
	Name         string              `gorm:"type:text;not null" json:"name" validate:"required"`
	Code         string              `gorm:"type:varchar(64);index" json:"code"`
	Unit         string              `gorm:"type:varchar(32)" json:"unit,omitempty"`
	Category     string              `gorm:"type:varchar(64)" json:"category,omitempty"`
	SellingPrice decimal.NullDecimal `gorm:"type:decimal(18,4)" json:"selling_price"`
	// PurchasePrice and SellingPrice are only used when no batch carries transactional prices.
	PurchasePrice decimal.NullDecimal `gorm:"type:decimal(18,4)" json:"purchase_price"`
	MinStock      decimal.Decimal     `gorm:"type:decimal(18,4);not null;default:0" json:"min_stock"`
}

func (Product) TableName() string { return TableProducts }

type Batch struct {
	Envelope      `gorm:"embedded"`
	ProductID     snowflake.ID    `gorm:"not null;index" json:"product_id" validate:"required"`
	WarehouseID   snowflake.ID    `gorm:"not null;index" json:"warehouse_id"`
	BatchNumber   string          `gorm:"type:varchar(64);index" json:"batch_number"`
	PurchasePrice decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"purchase_price"`
	SellingPrice  decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"selling_price"`
	Quantity      decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"quantity"`
	ExpiryDate    *time.Time      `json:"expiry_date,omitempty"`
	State         BatchState      `gorm:"type:varchar(16);not null;default:'ACTIVE'" json:"state"`
}

func (Batch) TableName() string { return TableBatches }

type Customer struct {
	Envelope       `gorm:"embedded"`
	Name           string          `gorm:"type:text;not null" json:"name" validate:"required"`
	Phone          string          `gorm:"type:varchar(32);index" json:"phone,omitempty"`
	Address        string          `gorm:"type:text" json:"address,omitempty"`
	OpeningBalance decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"opening_balance"`
	CurrentBalance decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"current_balance"`
	Notes          string          `gorm:"type:text" json:"notes,omitempty"`
}

func (Customer) TableName() string { return TableCustomers }

type Supplier struct {
	Envelope       `gorm:"embedded"`
	Name           string          `gorm:"type:text;not null" json:"name" validate:"required"`
	Phone          string          `gorm:"type:varchar(32);index" json:"phone,omitempty"`
	Address        string          `gorm:"type:text" json:"address,omitempty"`
	OpeningBalance decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"opening_balance"`
	CurrentBalance decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"current_balance"`
	Notes          string          `gorm:"type:text" json:"notes,omitempty"`
}

func (Supplier) TableName() string { return TableSuppliers }

type InvoiceItem struct {
	ProductID snowflake.ID    `json:"product_id" validate:"required"`
	BatchID   snowflake.ID    `json:"batch_id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Discount  decimal.Decimal `json:"discount"`
}

type Invoice struct {
	Envelope            `gorm:"embedded"`
	Number              string                           `gorm:"type:varchar(32);index" json:"number"`
	Type                InvoiceType                      `gorm:"type:varchar(16);not null" json:"type"`
	CustomerID          snowflake.ID                     `gorm:"not null;index" json:"customer_id"`
	WarehouseID         snowflake.ID                     `gorm:"index" json:"warehouse_id,omitempty"`
	Items               datatypes.JSONSlice[InvoiceItem] `gorm:"type:json" json:"items"`
	TotalBeforeDiscount decimal.Decimal                  `gorm:"type:decimal(18,4);not null" json:"total_before_discount"`
	TotalDiscount       decimal.Decimal                  `gorm:"type:decimal(18,4);not null" json:"total_discount"`
	ExtraDiscount       decimal.Decimal                  `gorm:"type:decimal(18,4);not null" json:"extra_discount"`
	NetTotal            decimal.Decimal                  `gorm:"type:decimal(18,4);not null" json:"net_total"`
	PreviousBalance     decimal.Decimal                  `gorm:"type:decimal(18,4);not null" json:"previous_balance"`
	FinalBalance        decimal.Decimal                  `gorm:"type:decimal(18,4);not null" json:"final_balance"`
	PaidAtCreation      decimal.Decimal                  `gorm:"type:decimal(18,4);not null" json:"paid_at_creation"`
	// CashBalanceEffect is the signed amount the creation-time cash moved the customer balance.
	CashBalanceEffect decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"cash_balance_effect"`
	RepresentativeID  snowflake.ID    `gorm:"index" json:"representative_id,omitempty"`
	Commission        decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"commission"`
	CreatedBy         string          `gorm:"type:varchar(64)" json:"created_by,omitempty"`
	Notes             string          `gorm:"type:text" json:"notes,omitempty"`
}

func (Invoice) TableName() string { return TableInvoices }

func (i Invoice) IsReturn() bool { return i.Type == InvoiceTypeReturn }

type PurchaseItem struct {
	ProductID    snowflake.ID    `json:"product_id" validate:"required"`
	WarehouseID  snowflake.ID    `json:"warehouse_id,omitempty"`
	BatchID      snowflake.ID    `json:"batch_id,omitempty"`
	BatchNumber  string          `json:"batch_number,omitempty"`
	Name         string          `json:"name,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	ExpiryDate   *time.Time      `json:"expiry_date,omitempty"`
}

type PurchaseInvoice struct {
	Envelope          `gorm:"embedded"`
	Number            string                            `gorm:"type:varchar(32);index" json:"number"`
	Type              PurchaseInvoiceType               `gorm:"type:varchar(16);not null" json:"type"`
	SupplierID        snowflake.ID                      `gorm:"not null;index" json:"supplier_id"`
	Items             datatypes.JSONSlice[PurchaseItem] `gorm:"type:json" json:"items"`
	Total             decimal.Decimal                   `gorm:"type:decimal(18,4);not null" json:"total"`
	PreviousBalance   decimal.Decimal                   `gorm:"type:decimal(18,4);not null" json:"previous_balance"`
	FinalBalance      decimal.Decimal                   `gorm:"type:decimal(18,4);not null" json:"final_balance"`
	PaidAtCreation    decimal.Decimal                   `gorm:"type:decimal(18,4);not null" json:"paid_at_creation"`
	CashBalanceEffect decimal.Decimal                   `gorm:"type:decimal(18,4);not null" json:"cash_balance_effect"`
	CreatedBy         string                            `gorm:"type:varchar(64)" json:"created_by,omitempty"`
	Notes             string                            `gorm:"type:text" json:"notes,omitempty"`
}

func (PurchaseInvoice) TableName() string { return TablePurchaseInvoices }

func (p PurchaseInvoice) IsReturn() bool { return p.Type == PurchaseInvoiceTypeReturn }

type CashTransaction struct {
	Envelope      `gorm:"embedded"`
	Type          CashTransactionType `gorm:"type:varchar(16);not null" json:"type"`
	Amount        decimal.Decimal     `gorm:"type:decimal(18,4);not null" json:"amount"`
	Category      string              `gorm:"type:varchar(64)" json:"category,omitempty"`
	Description   string              `gorm:"type:text" json:"description,omitempty"`
	ReferenceID   snowflake.ID        `gorm:"index" json:"reference_id,omitempty"`
	ReferenceType ReferenceType       `gorm:"type:varchar(32)" json:"reference_type,omitempty"`
	CounterpartID snowflake.ID        `gorm:"index" json:"counterpart_id,omitempty"`
	Source        CashSource          `gorm:"type:varchar(32);not null;default:'MANUAL'" json:"source"`
	// BalanceEffect is the signed delta this transaction applied to its counterpart balance.
	BalanceEffect decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"balance_effect"`
	CreatedBy     string          `gorm:"type:varchar(64)" json:"created_by,omitempty"`
}

func (CashTransaction) TableName() string { return TableCashTransactions }

// Signed returns +amount for a receipt and -amount for an expense.
func (c CashTransaction) Signed() decimal.Decimal {
	if c.Type == CashTransactionExpense {
		return c.Amount.Neg()
	}
	return c.Amount
}

type Warehouse struct {
	Envelope  `gorm:"embedded"`
	Name      string `gorm:"type:text;not null" json:"name" validate:"required"`
	Code      string `gorm:"type:varchar(64);index" json:"code"`
	Location  string `gorm:"type:text" json:"location,omitempty"`
	IsDefault bool   `gorm:"not null;default:false" json:"is_default"`
}

func (Warehouse) TableName() string { return TableWarehouses }

type Representative struct {
	Envelope       `gorm:"embedded"`
	Name           string          `gorm:"type:text;not null" json:"name" validate:"required"`
	Phone          string          `gorm:"type:varchar(32)" json:"phone,omitempty"`
	CommissionRate decimal.Decimal `gorm:"type:decimal(9,4);not null" json:"commission_rate"`
}

func (Representative) TableName() string { return TableRepresentatives }

type PurchaseOrderItem struct {
	ProductID snowflake.ID    `json:"product_id" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity"`
	CostPrice decimal.Decimal `json:"cost_price"`
}

type PurchaseOrder struct {
	Envelope   `gorm:"embedded"`
	SupplierID snowflake.ID                           `gorm:"not null;index" json:"supplier_id" validate:"required"`
	Items      datatypes.JSONSlice[PurchaseOrderItem] `gorm:"type:json" json:"items" validate:"required,min=1,dive"`
	Total      decimal.Decimal                        `gorm:"type:decimal(18,4);not null" json:"total"`
	State      PurchaseOrderState                     `gorm:"type:varchar(16);not null;default:'OPEN'" json:"state"`
	ExpectedAt *time.Time                             `json:"expected_at,omitempty"`
	Notes      string                                 `gorm:"type:text" json:"notes,omitempty"`
}

func (PurchaseOrder) TableName() string { return TablePurchaseOrders }

type PendingAdjustment struct {
	Envelope        `gorm:"embedded"`
	BatchID         snowflake.ID    `gorm:"not null;index" json:"batch_id" validate:"required"`
	ProductID       snowflake.ID    `gorm:"not null;index" json:"product_id"`
	WarehouseID     snowflake.ID    `gorm:"index" json:"warehouse_id,omitempty"`
	SystemQuantity  decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"system_quantity"`
	CountedQuantity decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"counted_quantity"`
	Reason          string          `gorm:"type:text" json:"reason,omitempty"`
	State           AdjustmentState `gorm:"type:varchar(16);not null;default:'PENDING'" json:"state"`
	RequestedBy     string          `gorm:"type:varchar(64)" json:"requested_by,omitempty"`
	ReviewedBy      string          `gorm:"type:varchar(64)" json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time      `json:"reviewed_at,omitempty"`
}

func (PendingAdjustment) TableName() string { return TablePendingAdjustments }

type DailyClosing struct {
	Envelope     `gorm:"embedded"`
	BusinessDate string          `gorm:"type:varchar(10);not null;index" json:"business_date" validate:"required,datetime=2006-01-02"`
	ExpectedCash decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"expected_cash"`
	CountedCash  decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"counted_cash"`
	Difference   decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"difference"`
	Notes        string          `gorm:"type:text" json:"notes,omitempty"`
	ClosedBy     string          `gorm:"type:varchar(64)" json:"closed_by,omitempty"`
}

func (DailyClosing) TableName() string { return TableDailyClosings }

// PriceOverride is the latest transactional price pair for one product.
type PriceOverride struct {
	ProductID     snowflake.ID    `json:"product_id"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
}

// Models returns one pointer per synchronised entity, in the order of Tables.
func Models() []any {
	return []any{
		&Warehouse{},
		&Product{},
		&Batch{},
		&Customer{},
		&Supplier{},
		&Representative{},
		&Invoice{},
		&PurchaseInvoice{},
		&CashTransaction{},
		&PurchaseOrder{},
		&PendingAdjustment{},
		&DailyClosing{},
	}
}

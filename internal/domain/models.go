package domain

import "time"

// Stock entry types. Direction is encoded by type, not by quantity sign:
// purchase and adjustment add to on-hand stock, sale and return subtract.
const (
	EntryTypePurchase   = "purchase"
	EntryTypeSale       = "sale"
	EntryTypeReturn     = "return"
	EntryTypeAdjustment = "adjustment"
)

const (
	PaymentMethodCash = "CASH"
	PaymentMethodCard = "CARD"
)

const (
	TxStatusCompleted = "completed"
	TxStatusPending   = "pending"
	TxStatusFailed    = "failed"
	TxStatusRefunded  = "refunded"
)

const (
	OutboxStatusPending = "pending"
	OutboxStatusApplied = "applied"
	OutboxStatusDead    = "dead"
)

// DefaultStoreID is the single store every stock entry belongs to.
const DefaultStoreID = "1"

type ItemGroup struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
}

type ItemGroupCreateRequest struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

type ItemGroupUpdateRequest struct {
	Name *string `json:"name,omitempty"`
	Code *string `json:"code,omitempty"`
}

type Item struct {
	ID          string    `json:"id"`
	ItemCode    string    `json:"item_code"`
	Name        string    `json:"name"`
	Rate        float64   `json:"rate"`
	ItemGroupID string    `json:"item_group_id"`
	CreatedAt   time.Time `json:"created_at"`

	// Joined from the item group for list views.
	GroupName string `json:"groupName,omitempty"`
	GroupCode string `json:"groupCode,omitempty"`
}

type ItemCreateRequest struct {
	ItemCode    string  `json:"item_code"`
	ItemGroupID string  `json:"item_group_id"`
	Rate        float64 `json:"rate,omitempty"`
}

type StockEntry struct {
	ID            string    `json:"id"`
	ItemID        string    `json:"item_id"`
	StoreID       string    `json:"store_id"`
	Type          string    `json:"type"`
	Quantity      float64   `json:"quantity"`
	Unit          string    `json:"unit"`
	Rate          float64   `json:"rate"`
	Supplier      string    `json:"supplier,omitempty"`
	InvoiceNumber string    `json:"invoice_number,omitempty"`
	EntryDate     time.Time `json:"entry_date"`
	CreatedAt     time.Time `json:"created_at"`

	// Joined from the item for list views.
	ItemName string `json:"item_name,omitempty"`
	ItemCode string `json:"item_code,omitempty"`
}

type StockEntryCreateRequest struct {
	ItemID        string     `json:"item_id"`
	Type          string     `json:"type,omitempty"`
	Quantity      float64    `json:"quantity"`
	Unit          string     `json:"unit"`
	Rate          float64    `json:"rate"`
	Supplier      string     `json:"supplier,omitempty"`
	InvoiceNumber string     `json:"invoice_number,omitempty"`
	EntryDate     *time.Time `json:"entry_date,omitempty"`
}

// StockEntryUpdateRequest carries a partial field set; only non-nil fields
// are rewritten.
type StockEntryUpdateRequest struct {
	ItemID        *string    `json:"item_id,omitempty"`
	Type          *string    `json:"type,omitempty"`
	Quantity      *float64   `json:"quantity,omitempty"`
	Unit          *string    `json:"unit,omitempty"`
	Rate          *float64   `json:"rate,omitempty"`
	Supplier      *string    `json:"supplier,omitempty"`
	InvoiceNumber *string    `json:"invoice_number,omitempty"`
	EntryDate     *time.Time `json:"entry_date,omitempty"`
}

// StockMovementRequest is the body of POST /api/stock/transactions. Quantity
// may arrive negative for outgoing movements (the POS client convention); it
// is normalized to a positive stored quantity.
type StockMovementRequest struct {
	ProductID string  `json:"productId"`
	Quantity  float64 `json:"quantity"`
	Type      string  `json:"type"`
	Notes     string  `json:"notes,omitempty"`
}

// Product is the POS-facing view of a catalog item, synthesized from the
// item row and a fold of its stock ledger.
type Product struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Category string  `json:"category"`
	Barcode  string  `json:"barcode"`
	SKU      string  `json:"sku"`
	InStock  float64 `json:"inStock"`
}

type Transaction struct {
	ID            string            `json:"id"`
	Date          time.Time         `json:"date"`
	Total         float64           `json:"total"`
	PaymentMethod string            `json:"paymentMethod"`
	Status        string            `json:"status"`
	Items         []TransactionItem `json:"items"`
}

type TransactionItem struct {
	ID            string  `json:"id"`
	TransactionID string  `json:"transactionId"`
	ProductID     string  `json:"productId"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Quantity      float64 `json:"quantity"`
	SKU           string  `json:"sku,omitempty"`
}

type TransactionCreateRequest struct {
	Items         []TransactionItemInput `json:"items"`
	PaymentMethod string                 `json:"paymentMethod"`
	Total         float64                `json:"total"`
}

type TransactionItemInput struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  float64 `json:"quantity"`
	SKU       string  `json:"sku,omitempty"`
}

// OutboxEntry is a durably recorded intent to apply one stock-ledger movement
// for a committed transaction line. It is written in the same storage unit of
// work as the transaction and applied asynchronously by the outbox worker.
type OutboxEntry struct {
	ID            string     `json:"id"`
	TransactionID string     `json:"transaction_id"`
	ItemID        string     `json:"item_id"`
	Quantity      float64    `json:"quantity"`
	EntryType     string     `json:"entry_type"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	LastError     string     `json:"last_error,omitempty"`
	LockedAt      *time.Time `json:"locked_at,omitempty"`
	LockedBy      string     `json:"locked_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	AppliedAt     *time.Time `json:"applied_at,omitempty"`
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPagination derives totalPages from total and limit.
func NewPagination(page, limit, total int) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: totalPages}
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type PrintReceiptRequest struct {
	TransactionID   string `json:"transactionId"`
	PrinterName     string `json:"printerName,omitempty"`
	BusinessName    string `json:"businessName,omitempty"`
	BusinessAddress string `json:"businessAddress,omitempty"`
	BusinessPhone   string `json:"businessPhone,omitempty"`
	BusinessEmail   string `json:"businessEmail,omitempty"`
}

type PrintReceiptResponse struct {
	Success bool   `json:"success"`
	Printer string `json:"printer"`
	Receipt string `json:"receipt"`
}

// BusinessInfo is the header block printed at the top of a receipt.
type BusinessInfo struct {
	Name    string
	Address string
	Phone   string
	Email   string
}

// IsValidEntryType reports whether t is one of the four ledger entry types.
func IsValidEntryType(t string) bool {
	switch t {
	case EntryTypePurchase, EntryTypeSale, EntryTypeReturn, EntryTypeAdjustment:
		return true
	}
	return false
}

// EntrySign returns +1 for types that add to on-hand stock and -1 for types
// that subtract. Unknown types contribute nothing to the fold.
func EntrySign(t string) float64 {
	switch t {
	case EntryTypePurchase, EntryTypeAdjustment:
		return 1
	case EntryTypeSale, EntryTypeReturn:
		return -1
	}
	return 0
}

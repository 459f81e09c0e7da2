package domain

import "time"

type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Active    bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type Product struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	CategoryID  string    `json:"category_id,omitempty"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	SKU         string    `json:"sku,omitempty"`
	Barcode     string    `json:"barcode,omitempty"`
	BuyPrice    int64     `json:"buy_price"`
	SellPrice   int64     `json:"sell_price"`
	Stock       int       `json:"stock"`
	MinStock    int       `json:"min_stock"`
	Active      bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ProductCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CategoryID  string `json:"category_id,omitempty"`
	SKU         string `json:"sku,omitempty"`
	Barcode     string `json:"barcode,omitempty"`
	BuyPrice    int64  `json:"buy_price"`
	SellPrice   int64  `json:"sell_price"`
	Stock       int    `json:"stock"`
	MinStock    int    `json:"min_stock"`
}

type ProductUpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	CategoryID  *string `json:"category_id,omitempty"`
	SKU         *string `json:"sku,omitempty"`
	Barcode     *string `json:"barcode,omitempty"`
	BuyPrice    *int64  `json:"buy_price,omitempty"`
	SellPrice   *int64  `json:"sell_price,omitempty"`
	Stock       *int    `json:"stock,omitempty"`
	MinStock    *int    `json:"min_stock,omitempty"`
	Active      *bool   `json:"is_active,omitempty"`
}

// ProductFilter narrows tenant-scoped product listings. Search matches
// the product name case-insensitively as a substring.
type ProductFilter struct {
	CategoryID string
	Search     string
}

type Sale struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	InvoiceNumber  string    `json:"invoice_number"`
	CustomerName   string    `json:"customer_name,omitempty"`
	CustomerPhone  string    `json:"customer_phone,omitempty"`
	TotalAmount    int64     `json:"total_amount"`
	DiscountAmount int64     `json:"discount_amount"`
	FinalAmount    int64     `json:"final_amount"`
	PaymentMethod  string    `json:"payment_method"`
	PaymentStatus  string    `json:"payment_status"`
	Notes          string    `json:"notes,omitempty"`
	CreatedBy      string    `json:"created_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type SaleItem struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	SaleID     string    `json:"sale_id"`
	ProductID  string    `json:"product_id"`
	Quantity   int       `json:"quantity"`
	UnitPrice  int64     `json:"unit_price"`
	TotalPrice int64     `json:"total_price"`
	CreatedAt  time.Time `json:"created_at"`
}

// SaleLine is one cart line as submitted by the client. Line and sale
// totals are never trusted from the client; the service recomputes
// them from quantity and unit price.
type SaleLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

type SaleHeaderRequest struct {
	CustomerName   string `json:"customer_name,omitempty"`
	CustomerPhone  string `json:"customer_phone,omitempty"`
	DiscountAmount int64  `json:"discount_amount,omitempty"`
	PaymentMethod  string `json:"payment_method,omitempty"`
	PaymentStatus  string `json:"payment_status,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

type SaleCommitRequest struct {
	Sale  SaleHeaderRequest `json:"sale"`
	Items []SaleLine        `json:"items"`
}

// SaleCommitResponse reports the committed sale. LedgerPosted is false
// when the income entry could not be recorded; the sale itself is
// still durable.
type SaleCommitResponse struct {
	Sale         Sale       `json:"sale"`
	Items        []SaleItem `json:"items"`
	LedgerPosted bool       `json:"ledger_posted"`
}

// SaleWithItems is the read-side shape for sale history listings.
type SaleWithItems struct {
	Sale  Sale       `json:"sale"`
	Items []SaleItem `json:"items"`
}

type FinanceEntry struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Type        string    `json:"type"`
	Amount      int64     `json:"amount"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	ReferenceID string    `json:"reference_id,omitempty"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type FinanceCreateRequest struct {
	Type        string `json:"type"`
	Amount      int64  `json:"amount"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description"`
	ReferenceID string `json:"reference_id,omitempty"`
}

// DashboardStats is derived on demand and never persisted.
type DashboardStats struct {
	TotalProducts   int   `json:"totalProducts"`
	TodaySales      int64 `json:"todaySales"`
	TodaySalesCount int   `json:"todaySalesCount"`
	MonthlyIncome   int64 `json:"monthlyIncome"`
	MonthlyExpense  int64 `json:"monthlyExpense"`
	MonthlyBalance  int64 `json:"monthlyBalance"`
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// UserSummary is the credential-free view of an account returned by
// the provisioning endpoint.
type UserSummary struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	TenantID  string    `json:"tenant_id"`
	Active    bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	TenantID    string `json:"tenant_id"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor is the authenticated caller resolved from a token. TenantID is
// passed explicitly into every core call; nothing reads it from
// ambient state.
type Actor struct {
	ID       string
	Username string
	TenantID string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID        string
	Username  string
	Password  string
	Role      string
	TenantID  string
	Active    bool
	CreatedAt time.Time
}

const (
	PaymentMethodCash     = "cash"
	PaymentMethodTransfer = "transfer"
	PaymentMethodCard     = "card"
	PaymentMethodEwallet  = "ewallet"
)

const (
	PaymentStatusPaid      = "paid"
	PaymentStatusPending   = "pending"
	PaymentStatusCancelled = "cancelled"
)

const (
	FinanceTypeIncome  = "income"
	FinanceTypeExpense = "expense"
)

const (
	FinanceCategorySales   = "Penjualan"
	FinanceCategoryGeneral = "Umum"
)

const (
	RoleOwner = "owner"
	RoleStaff = "staff"
)

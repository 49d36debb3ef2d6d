package domain

import (
	"time"

	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/money"
)

const (
	PaymentCash          = "cash"
	PaymentCard          = "card"
	PaymentBankTransfer  = "bank_transfer"
	PaymentMobileBanking = "mobile_banking"
	PaymentDue           = "due"
)

const (
	RoleAdmin  = "admin"
	RoleSeller = "seller"
)

// DateLayout is the wire and storage layout of sale and collection dates.
const DateLayout = "2006-01-02"

type Product struct {
	ID            string       `json:"id"`
	BusinessID    string       `json:"business_id"`
	Name          string       `json:"name"`
	CostPrice     money.Amount `json:"cost_price"`
	SellingPrice  money.Amount `json:"selling_price"`
	StockQuantity int          `json:"stock_quantity"`
	CreatedAt     time.Time    `json:"created_at"`
}

type Customer struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"business_id"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Sale is a checkout record. CustomerID is empty for walk-in sales.
// AmountPaid is the only field that changes after creation.
type Sale struct {
	ID             string       `json:"id"`
	BusinessID     string       `json:"business_id"`
	CustomerID     string       `json:"customer_id,omitempty"`
	SellerID       string       `json:"seller_id"`
	SaleDate       time.Time    `json:"sale_date"`
	PaymentMethod  string       `json:"payment_method"`
	TotalAmount    money.Amount `json:"total_amount"`
	DiscountAmount money.Amount `json:"discount_amount"`
	FinalAmount    money.Amount `json:"final_amount"`
	AmountPaid     money.Amount `json:"amount_paid"`
	Notes          string       `json:"notes,omitempty"`
	IdempotencyKey string       `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	Items          []SaleItem   `json:"items,omitempty"`
}

func (s Sale) Due() money.Amount {
	return s.FinalAmount - s.AmountPaid
}

func (s Sale) IsWalkIn() bool {
	return s.CustomerID == ""
}

type SaleItem struct {
	SaleID    string       `json:"sale_id"`
	ProductID string       `json:"product_id"`
	Quantity  int          `json:"quantity"`
	UnitPrice money.Amount `json:"unit_price"`
}

func (i SaleItem) LineTotal() money.Amount {
	return i.UnitPrice.Times(i.Quantity)
}

type Collection struct {
	ID              string       `json:"id"`
	SaleID          string       `json:"sale_id"`
	BusinessID      string       `json:"business_id"`
	CollectedBy     string       `json:"collected_by"`
	AmountCollected money.Amount `json:"amount_collected"`
	CollectionDate  time.Time    `json:"collection_date"`
	PaymentMethod   string       `json:"payment_method"`
	Notes           string       `json:"notes,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

type Damage struct {
	ID         string       `json:"id"`
	BusinessID string       `json:"business_id"`
	UserID     string       `json:"user_id"`
	TotalLoss  money.Amount `json:"total_loss"`
	Note       string       `json:"note,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	Items      []DamageItem `json:"items"`
}

type DamageItem struct {
	DamageID   string       `json:"damage_id"`
	ProductID  string       `json:"product_id"`
	Quantity   int          `json:"quantity"`
	LossAmount money.Amount `json:"loss_amount"`
}

// InitialPayment is the part of a sale's amount_paid that was taken at
// checkout and is not backed by any Collection row.
type InitialPayment struct {
	SaleID     string       `json:"sale_id"`
	CustomerID string       `json:"customer_id,omitempty"`
	SaleDate   time.Time    `json:"sale_date"`
	Amount     money.Amount `json:"amount"`
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
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

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type ProductCreateRequest struct {
	BusinessID   string       `json:"business_id"`
	Name         string       `json:"name"`
	CostPrice    money.Amount `json:"cost_price"`
	SellingPrice money.Amount `json:"selling_price"`
	InitialStock int          `json:"initial_stock"`
}

type ProductUpdateRequest struct {
	Name         *string       `json:"name"`
	CostPrice    *money.Amount `json:"cost_price"`
	SellingPrice *money.Amount `json:"selling_price"`
}

type StockAdjustRequest struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

type CustomerCreateRequest struct {
	BusinessID string `json:"business_id"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
}

type CartLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// SaleDetails carries everything RecordSale needs besides the cart.
// SaleDate is YYYY-MM-DD; empty means today.
type SaleDetails struct {
	BusinessID     string       `json:"business_id"`
	CustomerID     string       `json:"customer_id"`
	SellerID       string       `json:"seller_id"`
	PaymentMethod  string       `json:"payment_method"`
	DiscountAmount money.Amount `json:"discount_amount"`
	AmountPaid     money.Amount `json:"amount_paid"`
	SaleDate       string       `json:"sale_date"`
	Notes          string       `json:"notes"`
	IdempotencyKey string       `json:"idempotency_key"`
}

type CheckoutRequest struct {
	Items []CartLine `json:"items"`
	SaleDetails
}

type SaleResponse struct {
	Sale      Sale         `json:"sale"`
	Due       money.Amount `json:"due"`
	Duplicate bool         `json:"duplicate"`
}

type SaleDetail struct {
	Sale           Sale         `json:"sale"`
	Due            money.Amount `json:"due"`
	InitialPayment money.Amount `json:"initial_payment"`
	Collections    []Collection `json:"collections"`
}

type SaleQuery struct {
	BusinessID string
	CustomerID string
	From       string
	To         string
	OnlyDue    bool
}

type CollectionRequest struct {
	Amount         money.Amount `json:"amount"`
	PaymentMethod  string       `json:"payment_method"`
	CollectedBy    string       `json:"collected_by"`
	CollectionDate string       `json:"collection_date"`
	Notes          string       `json:"notes"`
}

type CollectionUpdateRequest struct {
	Amount         *money.Amount `json:"amount"`
	CollectionDate *string       `json:"collection_date"`
	PaymentMethod  *string       `json:"payment_method"`
	Notes          *string       `json:"notes"`
}

type CollectionResponse struct {
	Collection Collection   `json:"collection"`
	Sale       Sale         `json:"sale"`
	Due        money.Amount `json:"due"`
}

type CollectionQuery struct {
	BusinessID string
	SaleID     string
	From       string
	To         string
}

type DamageLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type DamageRequest struct {
	BusinessID string       `json:"business_id"`
	ReportedBy string       `json:"reported_by"`
	Items      []DamageLine `json:"items"`
	Note       string       `json:"note"`
}

type DamageQuery struct {
	BusinessID string
	From       string
	To         string
}

// CustomerDue aggregates one customer's sales. CustomerID is empty for the
// walk-in bucket.
type CustomerDue struct {
	CustomerID   string       `json:"customer_id"`
	CustomerName string       `json:"customer_name,omitempty"`
	SaleCount    int          `json:"sale_count"`
	FinalAmount  money.Amount `json:"final_amount"`
	AmountPaid   money.Amount `json:"amount_paid"`
	Due          money.Amount `json:"due"`
}

type DueBoard struct {
	BusinessID       string        `json:"business_id"`
	Customers        []CustomerDue `json:"customers"`
	TotalOutstanding money.Amount  `json:"total_outstanding_due"`
	GeneratedAt      time.Time     `json:"generated_at"`
}

type CollectionReport struct {
	BusinessID      string       `json:"business_id"`
	Date            string       `json:"date"`
	InitialPayments money.Amount `json:"initial_payments"`
	Collections     money.Amount `json:"collections"`
	Total           money.Amount `json:"total"`
}

type PeriodSummary struct {
	BusinessID      string       `json:"business_id"`
	From            string       `json:"from"`
	To              string       `json:"to"`
	SaleCount       int          `json:"sale_count"`
	Billed          money.Amount `json:"billed"`
	Discounts       money.Amount `json:"discounts"`
	InitialPayments money.Amount `json:"initial_payments"`
	Collections     money.Amount `json:"collections"`
	TotalCollected  money.Amount `json:"total_collected"`
	NewDue          money.Amount `json:"new_due"`
}

type LifetimeCollection struct {
	BusinessID string       `json:"business_id"`
	Amount     money.Amount `json:"amount"`
	SaleCount  int          `json:"sale_count"`
}

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/domain"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/ledger"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/money"
)

var (
	ErrNotFound      = ledger.ErrNotFound
	ErrAlreadyExists = fmt.Errorf("%w: already exists", ledger.ErrConflict)
	ErrInvalidRecord = fmt.Errorf("%w: invalid record", ledger.ErrValidation)
)

// SaleDraft is a sale header plus the cart to price and decrement. Totals
// and items are derived inside the store's unit of work.
type SaleDraft struct {
	Sale domain.Sale
	Cart ledger.Cart
}

type DamageDraft struct {
	Damage domain.Damage
	Lines  ledger.DamageList
}

type CollectionPatch struct {
	Amount         *money.Amount
	CollectionDate *time.Time
	PaymentMethod  *string
	Notes          *string
}

// SaleFilter selects sales by business. Zero From/To leave that side open.
type SaleFilter struct {
	BusinessID string
	CustomerID string
	From       time.Time
	To         time.Time
	OnlyDue    bool
}

type CollectionFilter struct {
	BusinessID string
	SaleIDs    []string
	From       time.Time
	To         time.Time
}

type DamageFilter struct {
	BusinessID string
	From       time.Time
	To         time.Time
}

// Repository is the persistence boundary of the ledger. Every mutating call
// is one unit of work: it either applies all of its effects or none.
// Product.StockQuantity changes only through CreateSale, CreateDamage and
// AdjustStock; Sale.AmountPaid only through the collection calls.
type Repository interface {
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context, businessID string) ([]domain.Product, error)
	// UpdateProduct changes name and prices. Stock is left untouched.
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	AdjustStock(ctx context.Context, productID string, delta int) (*domain.Product, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	ListCustomers(ctx context.Context, businessID string) ([]domain.Customer, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUser(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error

	// CreateSale returns the existing sale and true when the draft's
	// idempotency key was already used.
	CreateSale(ctx context.Context, draft SaleDraft) (*domain.Sale, bool, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter SaleFilter) ([]domain.Sale, error)

	CreateCollection(ctx context.Context, collection domain.Collection) (*domain.Collection, *domain.Sale, error)
	GetCollection(ctx context.Context, id string) (*domain.Collection, error)
	UpdateCollection(ctx context.Context, id string, patch CollectionPatch) (*domain.Collection, *domain.Sale, error)
	DeleteCollection(ctx context.Context, id string) (*domain.Collection, *domain.Sale, error)
	ListCollections(ctx context.Context, filter CollectionFilter) ([]domain.Collection, error)

	CreateDamage(ctx context.Context, draft DamageDraft) (*domain.Damage, error)
	ListDamages(ctx context.Context, filter DamageFilter) ([]domain.Damage, error)
}

func (f SaleFilter) Match(sale domain.Sale) bool {
	if f.BusinessID != "" && sale.BusinessID != f.BusinessID {
		return false
	}
	if f.CustomerID != "" && sale.CustomerID != f.CustomerID {
		return false
	}
	if !f.From.IsZero() && sale.SaleDate.Before(ledger.Day(f.From)) {
		return false
	}
	if !f.To.IsZero() && sale.SaleDate.After(ledger.Day(f.To)) {
		return false
	}
	if f.OnlyDue && sale.Due() <= 0 {
		return false
	}
	return true
}

func (f CollectionFilter) Match(c domain.Collection) bool {
	if f.BusinessID != "" && c.BusinessID != f.BusinessID {
		return false
	}
	if len(f.SaleIDs) > 0 {
		found := false
		for _, id := range f.SaleIDs {
			if id == c.SaleID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.From.IsZero() && c.CollectionDate.Before(ledger.Day(f.From)) {
		return false
	}
	if !f.To.IsZero() && c.CollectionDate.After(ledger.Day(f.To)) {
		return false
	}
	return true
}

func (f DamageFilter) Match(d domain.Damage) bool {
	if f.BusinessID != "" && d.BusinessID != f.BusinessID {
		return false
	}
	if !f.From.IsZero() && ledger.Day(d.CreatedAt).Before(ledger.Day(f.From)) {
		return false
	}
	if !f.To.IsZero() && ledger.Day(d.CreatedAt).After(ledger.Day(f.To)) {
		return false
	}
	return true
}

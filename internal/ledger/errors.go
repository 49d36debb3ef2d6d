package ledger

import (
	"errors"
	"fmt"

	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/money"
)

// Error categories. Every error returned by a ledger operation unwraps to
// exactly one of these.
var (
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
)

var (
	ErrEmptyCart            = fmt.Errorf("%w: cart is empty", ErrValidation)
	ErrEmptyDamageList      = fmt.Errorf("%w: damage list is empty", ErrValidation)
	ErrNonPositiveAmount    = fmt.Errorf("%w: amount must be greater than zero", ErrValidation)
	ErrInvalidQuantity      = fmt.Errorf("%w: quantity must be greater than zero", ErrValidation)
	ErrNegativeAmountPaid   = fmt.Errorf("%w: amount paid cannot be negative", ErrValidation)
	ErrInvalidDiscount      = fmt.Errorf("%w: discount must be between zero and the sale total", ErrValidation)
	ErrInvalidCustomer      = fmt.Errorf("%w: unknown customer", ErrValidation)
	ErrInvalidSeller        = fmt.Errorf("%w: unknown or inactive seller", ErrValidation)
	ErrInvalidDate          = fmt.Errorf("%w: date must be YYYY-MM-DD", ErrValidation)
	ErrInvalidPaymentMethod = fmt.Errorf("%w: unsupported payment method", ErrValidation)
	ErrInvalidProduct       = fmt.Errorf("%w: invalid product", ErrValidation)
	ErrInvalidAdjustment    = fmt.Errorf("%w: stock adjustment must be non-zero", ErrValidation)
	ErrEmptyUpdate          = fmt.Errorf("%w: no fields to update", ErrValidation)
)

// ValidationError adds detail to one of the validation sentinels.
type ValidationError struct {
	Err     error
	Details string
}

func (e *ValidationError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Details)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrConflict
}

type AmountExceedsDueError struct {
	SaleID    string
	Due       money.Amount
	Requested money.Amount
}

func (e *AmountExceedsDueError) Error() string {
	return fmt.Sprintf("amount %s exceeds due %s on sale %s", e.Requested, e.Due, e.SaleID)
}

func (e *AmountExceedsDueError) Unwrap() error {
	return ErrConflict
}

// NegativeBalanceError reports a change that would drive a sale's
// amount_paid below zero.
type NegativeBalanceError struct {
	SaleID     string
	AmountPaid money.Amount
	Delta      money.Amount
}

func (e *NegativeBalanceError) Error() string {
	return fmt.Sprintf("sale %s amount paid %s cannot absorb change %s", e.SaleID, e.AmountPaid, e.Delta)
}

func (e *NegativeBalanceError) Unwrap() error {
	return ErrConflict
}

// OverpaymentError rejects a checkout whose amount_paid exceeds the final amount.
type OverpaymentError struct {
	FinalAmount money.Amount
	AmountPaid  money.Amount
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("amount paid %s exceeds final amount %s", e.AmountPaid, e.FinalAmount)
}

func (e *OverpaymentError) Unwrap() error {
	return ErrValidation
}

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// Invalid wraps one of the validation sentinels with detail.
func Invalid(err error, format string, args ...any) error {
	return &ValidationError{Err: err, Details: fmt.Sprintf(format, args...)}
}

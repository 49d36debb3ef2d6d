package ledger

import (
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/domain"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/money"
)

func ValidateCollectionAmount(amount money.Amount) error {
	if !amount.IsPositive() {
		return Invalid(ErrNonPositiveAmount, "got %s", amount)
	}
	return nil
}

// CheckCollection verifies amount fits in the sale's current due and returns
// the new amount_paid.
func CheckCollection(sale domain.Sale, amount money.Amount) (money.Amount, error) {
	if err := ValidateCollectionAmount(amount); err != nil {
		return 0, err
	}
	if amount > sale.Due() {
		return 0, &AmountExceedsDueError{SaleID: sale.ID, Due: sale.Due(), Requested: amount}
	}
	return sale.AmountPaid + amount, nil
}

// RecheckCollection applies the difference between a collection's old and
// new amount to the sale. The due reported on rejection is the room the
// collection could occupy, i.e. the current due plus its old amount.
func RecheckCollection(sale domain.Sale, oldAmount, newAmount money.Amount) (money.Amount, error) {
	if err := ValidateCollectionAmount(newAmount); err != nil {
		return 0, err
	}
	delta := newAmount - oldAmount
	paid := sale.AmountPaid + delta
	if paid > sale.FinalAmount {
		return 0, &AmountExceedsDueError{SaleID: sale.ID, Due: sale.Due() + oldAmount, Requested: newAmount}
	}
	if paid.IsNegative() {
		return 0, &NegativeBalanceError{SaleID: sale.ID, AmountPaid: sale.AmountPaid, Delta: delta}
	}
	return paid, nil
}

// ReverseCollection returns the sale's amount_paid once amount is removed.
func ReverseCollection(sale domain.Sale, amount money.Amount) (money.Amount, error) {
	paid := sale.AmountPaid - amount
	if paid.IsNegative() {
		return 0, &NegativeBalanceError{SaleID: sale.ID, AmountPaid: sale.AmountPaid, Delta: -amount}
	}
	return paid, nil
}

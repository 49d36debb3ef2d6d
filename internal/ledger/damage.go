package ledger

import (
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/domain"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/money"
)

// PriceDamage values every line at the product's cost price.
func PriceDamage(list DamageList, products map[string]domain.Product) ([]domain.DamageItem, money.Amount, error) {
	if list.IsEmpty() {
		return nil, 0, ErrEmptyDamageList
	}

	items := make([]domain.DamageItem, 0, len(list.lines))
	total := money.Amount(0)
	for _, line := range list.lines {
		product, ok := products[line.ProductID]
		if !ok {
			return nil, 0, NotFound("product", line.ProductID)
		}
		item := domain.DamageItem{
			ProductID:  line.ProductID,
			Quantity:   line.Quantity,
			LossAmount: product.CostPrice.Times(line.Quantity),
		}
		items = append(items, item)
		total += item.LossAmount
	}
	return items, total, nil
}

// CheckDamageStock mirrors CheckStock for damage lines.
func CheckDamageStock(list DamageList, products map[string]domain.Product) error {
	lines := make([]domain.CartLine, 0, len(list.lines))
	for _, line := range list.lines {
		lines = append(lines, domain.CartLine{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return CheckStock(lines, products)
}

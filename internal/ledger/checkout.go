package ledger

import (
	"strings"
	"time"

	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/domain"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/money"
)

// PricedSale is a cart priced against a product snapshot.
type PricedSale struct {
	Items          []domain.SaleItem
	TotalAmount    money.Amount
	DiscountAmount money.Amount
	FinalAmount    money.Amount
	AmountPaid     money.Amount
}

// PriceSale snapshots the selling price of every line and derives the sale
// totals. products must hold every product in the cart. Stock is not checked
// here; stores enforce it with the decrement itself.
func PriceSale(cart Cart, products map[string]domain.Product, discount, amountPaid money.Amount) (PricedSale, error) {
	if cart.IsEmpty() {
		return PricedSale{}, ErrEmptyCart
	}
	if amountPaid.IsNegative() {
		return PricedSale{}, ErrNegativeAmountPaid
	}
	if discount.IsNegative() {
		return PricedSale{}, Invalid(ErrInvalidDiscount, "discount %s", discount)
	}

	items := make([]domain.SaleItem, 0, cart.Len())
	total := money.Amount(0)
	for _, line := range cart.lines {
		product, ok := products[line.ProductID]
		if !ok {
			return PricedSale{}, NotFound("product", line.ProductID)
		}
		item := domain.SaleItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: product.SellingPrice,
		}
		items = append(items, item)
		total += item.LineTotal()
	}

	if discount > total {
		return PricedSale{}, Invalid(ErrInvalidDiscount, "discount %s exceeds total %s", discount, total)
	}
	final := total - discount
	if amountPaid > final {
		return PricedSale{}, &OverpaymentError{FinalAmount: final, AmountPaid: amountPaid}
	}

	return PricedSale{
		Items:          items,
		TotalAmount:    total,
		DiscountAmount: discount,
		FinalAmount:    final,
		AmountPaid:     amountPaid,
	}, nil
}

// CheckStock reports the first cart line that the snapshot cannot cover.
func CheckStock(lines []domain.CartLine, products map[string]domain.Product) error {
	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			return NotFound("product", line.ProductID)
		}
		if line.Quantity > product.StockQuantity {
			return &InsufficientStockError{
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Available: product.StockQuantity,
			}
		}
	}
	return nil
}

// ApplyPricing copies the priced totals and items onto sale.
func ApplyPricing(sale domain.Sale, priced PricedSale) domain.Sale {
	sale.TotalAmount = priced.TotalAmount
	sale.DiscountAmount = priced.DiscountAmount
	sale.FinalAmount = priced.FinalAmount
	sale.AmountPaid = priced.AmountPaid
	sale.Items = make([]domain.SaleItem, len(priced.Items))
	for i, item := range priced.Items {
		item.SaleID = sale.ID
		sale.Items[i] = item
	}
	return sale
}

func NormalizePaymentMethod(method string) (string, error) {
	method = strings.ToLower(strings.TrimSpace(method))
	if method == "" {
		return domain.PaymentCash, nil
	}
	switch method {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentBankTransfer, domain.PaymentMobileBanking, domain.PaymentDue:
		return method, nil
	default:
		return "", Invalid(ErrInvalidPaymentMethod, "%q", method)
	}
}

// ParseDate parses a YYYY-MM-DD date as UTC midnight. Empty input yields
// fallback truncated to its day.
func ParseDate(raw string, fallback time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Day(fallback), nil
	}
	parsed, err := time.Parse(domain.DateLayout, raw)
	if err != nil {
		return time.Time{}, Invalid(ErrInvalidDate, "%q", raw)
	}
	return parsed.UTC(), nil
}

// Day truncates t to UTC midnight.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

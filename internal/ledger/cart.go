package ledger

import (
	"sort"
	"strings"

	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/domain"
)

// Cart is an immutable set of product lines. Duplicate products are merged
// and every quantity is positive. The zero Cart is empty.
type Cart struct {
	lines []domain.CartLine
}

func NewCart(lines []domain.CartLine) (Cart, error) {
	if len(lines) == 0 {
		return Cart{}, ErrEmptyCart
	}
	merged, err := mergeLines(len(lines), func(i int) (string, int) {
		return lines[i].ProductID, lines[i].Quantity
	})
	if err != nil {
		return Cart{}, err
	}

	out := make([]domain.CartLine, 0, len(merged))
	for _, m := range merged {
		out = append(out, domain.CartLine{ProductID: m.productID, Quantity: m.qty})
	}
	return Cart{lines: out}, nil
}

// With returns a new cart with qty more units of productID.
func (c Cart) With(productID string, qty int) (Cart, error) {
	lines := append(c.Lines(), domain.CartLine{ProductID: productID, Quantity: qty})
	return NewCart(lines)
}

func (c Cart) Lines() []domain.CartLine {
	out := make([]domain.CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c Cart) Len() int {
	return len(c.lines)
}

func (c Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

// ProductIDs returns the distinct product ids in ascending order, the order
// in which stores lock product rows.
func (c Cart) ProductIDs() []string {
	ids := make([]string, 0, len(c.lines))
	for _, line := range c.lines {
		ids = append(ids, line.ProductID)
	}
	sort.Strings(ids)
	return ids
}

func (c Cart) Quantity(productID string) int {
	for _, line := range c.lines {
		if line.ProductID == productID {
			return line.Quantity
		}
	}
	return 0
}

// DamageList is the damage counterpart of Cart.
type DamageList struct {
	lines []domain.DamageLine
}

func NewDamageList(lines []domain.DamageLine) (DamageList, error) {
	if len(lines) == 0 {
		return DamageList{}, ErrEmptyDamageList
	}
	merged, err := mergeLines(len(lines), func(i int) (string, int) {
		return lines[i].ProductID, lines[i].Quantity
	})
	if err != nil {
		return DamageList{}, err
	}

	out := make([]domain.DamageLine, 0, len(merged))
	for _, m := range merged {
		out = append(out, domain.DamageLine{ProductID: m.productID, Quantity: m.qty})
	}
	return DamageList{lines: out}, nil
}

func (d DamageList) Lines() []domain.DamageLine {
	out := make([]domain.DamageLine, len(d.lines))
	copy(out, d.lines)
	return out
}

func (d DamageList) IsEmpty() bool {
	return len(d.lines) == 0
}

func (d DamageList) ProductIDs() []string {
	ids := make([]string, 0, len(d.lines))
	for _, line := range d.lines {
		ids = append(ids, line.ProductID)
	}
	sort.Strings(ids)
	return ids
}

type mergedLine struct {
	productID string
	qty       int
}

// mergeLines keeps first-seen order.
func mergeLines(n int, at func(int) (string, int)) ([]mergedLine, error) {
	index := make(map[string]int, n)
	merged := make([]mergedLine, 0, n)
	for i := 0; i < n; i++ {
		productID, qty := at(i)
		productID = strings.TrimSpace(productID)
		if productID == "" {
			return nil, Invalid(ErrInvalidProduct, "line %d has no product_id", i+1)
		}
		if qty <= 0 {
			return nil, Invalid(ErrInvalidQuantity, "product %s quantity %d", productID, qty)
		}
		if pos, ok := index[productID]; ok {
			merged[pos].qty += qty
			continue
		}
		index[productID] = len(merged)
		merged = append(merged, mergedLine{productID: productID, qty: qty})
	}
	return merged, nil
}

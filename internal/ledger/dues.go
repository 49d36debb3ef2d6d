package ledger

import (
	"sort"
	"time"

	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/domain"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/money"
)

// collectedBySale sums collections per sale, counting each collection id once.
func collectedBySale(collections []domain.Collection) map[string]money.Amount {
	seen := make(map[string]struct{}, len(collections))
	sums := make(map[string]money.Amount, len(collections))
	for _, c := range collections {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		sums[c.SaleID] += c.AmountCollected
	}
	return sums
}

// InitialPaymentOf is the part of amount_paid not covered by collections.
// collections may include rows for other sales.
func InitialPaymentOf(sale domain.Sale, collections []domain.Collection) money.Amount {
	return money.Max(0, sale.AmountPaid-collectedBySale(collections)[sale.ID])
}

func InitialPayments(sales []domain.Sale, collections []domain.Collection) []domain.InitialPayment {
	collected := collectedBySale(collections)
	out := make([]domain.InitialPayment, 0, len(sales))
	for _, sale := range sales {
		amount := money.Max(0, sale.AmountPaid-collected[sale.ID])
		if amount == 0 {
			continue
		}
		out = append(out, domain.InitialPayment{
			SaleID:     sale.ID,
			CustomerID: sale.CustomerID,
			SaleDate:   sale.SaleDate,
			Amount:     amount,
		})
	}
	return out
}

// CustomerDues groups sales by customer, walk-in sales under the empty id.
// Rows are ordered by due descending, then customer id.
func CustomerDues(sales []domain.Sale, names map[string]string) []domain.CustomerDue {
	byCustomer := make(map[string]*domain.CustomerDue)
	for _, sale := range sales {
		row, ok := byCustomer[sale.CustomerID]
		if !ok {
			row = &domain.CustomerDue{CustomerID: sale.CustomerID, CustomerName: names[sale.CustomerID]}
			byCustomer[sale.CustomerID] = row
		}
		row.SaleCount++
		row.FinalAmount += sale.FinalAmount
		row.AmountPaid += sale.AmountPaid
		row.Due += sale.Due()
	}

	out := make([]domain.CustomerDue, 0, len(byCustomer))
	for _, row := range byCustomer {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Due != out[j].Due {
			return out[i].Due > out[j].Due
		}
		return out[i].CustomerID < out[j].CustomerID
	})
	return out
}

func CustomerDueOf(customerID string, sales []domain.Sale) domain.CustomerDue {
	row := domain.CustomerDue{CustomerID: customerID}
	for _, sale := range sales {
		if sale.CustomerID != customerID {
			continue
		}
		row.SaleCount++
		row.FinalAmount += sale.FinalAmount
		row.AmountPaid += sale.AmountPaid
		row.Due += sale.Due()
	}
	return row
}

func TotalOutstanding(dues []domain.CustomerDue) money.Amount {
	total := money.Amount(0)
	for _, row := range dues {
		total += money.Max(0, row.Due)
	}
	return total
}

func LifetimeCollection(sales []domain.Sale) money.Amount {
	total := money.Amount(0)
	for _, sale := range sales {
		total += sale.AmountPaid
	}
	return total
}

// CollectedBetween returns the money taken on days in [from, to]: the
// collections dated in range plus the initial payment of every sale dated in
// range. collections must include every collection against those sales,
// whatever its date, so initial payments are not overstated.
func CollectedBetween(from, to time.Time, sales []domain.Sale, collections []domain.Collection) (initial, collected money.Amount) {
	from, to = Day(from), Day(to)
	perSale := collectedBySale(collections)

	for _, sale := range sales {
		if !inDays(sale.SaleDate, from, to) {
			continue
		}
		initial += money.Max(0, sale.AmountPaid-perSale[sale.ID])
	}

	seen := make(map[string]struct{}, len(collections))
	for _, c := range collections {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		if inDays(c.CollectionDate, from, to) {
			collected += c.AmountCollected
		}
	}
	return initial, collected
}

func CollectedOnDate(day time.Time, sales []domain.Sale, collections []domain.Collection) domain.CollectionReport {
	initial, collected := CollectedBetween(day, day, sales, collections)
	return domain.CollectionReport{
		Date:            Day(day).Format(domain.DateLayout),
		InitialPayments: initial,
		Collections:     collected,
		Total:           initial + collected,
	}
}

func Summarize(from, to time.Time, sales []domain.Sale, collections []domain.Collection) domain.PeriodSummary {
	summary := domain.PeriodSummary{
		From: Day(from).Format(domain.DateLayout),
		To:   Day(to).Format(domain.DateLayout),
	}
	for _, sale := range sales {
		if !inDays(sale.SaleDate, Day(from), Day(to)) {
			continue
		}
		summary.SaleCount++
		summary.Billed += sale.FinalAmount
		summary.Discounts += sale.DiscountAmount
		summary.NewDue += sale.Due()
	}
	summary.InitialPayments, summary.Collections = CollectedBetween(from, to, sales, collections)
	summary.TotalCollected = summary.InitialPayments + summary.Collections
	return summary
}

func inDays(t, from, to time.Time) bool {
	d := Day(t)
	return !d.Before(from) && !d.After(to)
}

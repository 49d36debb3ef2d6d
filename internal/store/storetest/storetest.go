// Package storetest is a behaviour suite shared by every store.Repository
// implementation.
package storetest

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/domain"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/ledger"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/money"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/store"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/xid"
)

const BusinessID = "biz-test"

// Factory returns an empty repository for one test.
type Factory func(t *testing.T) store.Repository

func Run(t *testing.T, newRepo Factory) {
	t.Run("checkout scenario A", func(t *testing.T) { testCheckout(t, newRepo(t)) })
	t.Run("checkout rejections leave no trace", func(t *testing.T) { testCheckoutRejections(t, newRepo(t)) })
	t.Run("checkout idempotency", func(t *testing.T) { testIdempotency(t, newRepo(t)) })
	t.Run("collection scenarios B and C", func(t *testing.T) { testCollections(t, newRepo(t)) })
	t.Run("collection update and delete", func(t *testing.T) { testCollectionCorrections(t, newRepo(t)) })
	t.Run("damage", func(t *testing.T) { testDamage(t, newRepo(t)) })
	t.Run("stock adjustment", func(t *testing.T) { testAdjustStock(t, newRepo(t)) })
	t.Run("concurrent checkouts", func(t *testing.T) { testConcurrentCheckouts(t, newRepo(t)) })
	t.Run("concurrent collections scenario D", func(t *testing.T) { testConcurrentCollections(t, newRepo(t)) })
	t.Run("concurrent collection corrections", func(t *testing.T) { testConcurrentCollectionCorrections(t, newRepo(t)) })
	t.Run("concurrent damage and checkout", func(t *testing.T) { testConcurrentDamageAndCheckout(t, newRepo(t)) })
	t.Run("listing filters", func(t *testing.T) { testListing(t, newRepo(t)) })
}

func Day(s string) time.Time {
	d, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func seedProduct(t *testing.T, repo store.Repository, stock int, price int64) domain.Product {
	t.Helper()
	p, err := repo.CreateProduct(context.Background(), domain.Product{
		ID:            xid.New("prd"),
		BusinessID:    BusinessID,
		Name:          "Rice 5kg",
		CostPrice:     money.FromMajor(price * 6 / 10),
		SellingPrice:  money.FromMajor(price),
		StockQuantity: stock,
	})
	require.NoError(t, err)
	return *p
}

func seedCustomer(t *testing.T, repo store.Repository) domain.Customer {
	t.Helper()
	c, err := repo.CreateCustomer(context.Background(), domain.Customer{
		ID:         xid.New("cus"),
		BusinessID: BusinessID,
		Name:       "Karim Traders",
	})
	require.NoError(t, err)
	return *c
}

func cart(t *testing.T, lines ...domain.CartLine) ledger.Cart {
	t.Helper()
	c, err := ledger.NewCart(lines)
	require.NoError(t, err)
	return c
}

func draft(c ledger.Cart, customerID string, paid money.Amount) store.SaleDraft {
	return store.SaleDraft{
		Sale: domain.Sale{
			BusinessID:    BusinessID,
			CustomerID:    customerID,
			SellerID:      "seller",
			SaleDate:      Day("2026-03-01"),
			PaymentMethod: domain.PaymentCash,
			AmountPaid:    paid,
		},
		Cart: c,
	}
}

func stockOf(t *testing.T, repo store.Repository, id string) int {
	t.Helper()
	p, err := repo.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.StockQuantity
}

func testCheckout(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	product := seedProduct(t, repo, 10, 100)
	customer := seedCustomer(t, repo)

	sale, dup, err := repo.CreateSale(ctx, draft(cart(t, domain.CartLine{ProductID: product.ID, Quantity: 3}), customer.ID, money.FromMajor(200)))
	require.NoError(t, err)
	assert.False(t, dup)
	assert.Equal(t, money.FromMajor(300), sale.TotalAmount)
	assert.Equal(t, money.FromMajor(300), sale.FinalAmount)
	assert.Equal(t, money.FromMajor(200), sale.AmountPaid)
	assert.Equal(t, money.FromMajor(100), sale.Due())
	assert.Equal(t, 7, stockOf(t, repo, product.ID))

	stored, err := repo.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, money.FromMajor(100), stored.Items[0].UnitPrice)
	assert.Equal(t, 3, stored.Items[0].Quantity)
	assert.Equal(t, customer.ID, stored.CustomerID)
	assert.True(t, Day("2026-03-01").Equal(stored.SaleDate))

	// A later price change does not touch the snapshot.
	product.SellingPrice = money.FromMajor(130)
	_, err = repo.UpdateProduct(ctx, product)
	require.NoError(t, err)
	again, err := repo.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, money.FromMajor(100), again.Items[0].UnitPrice)

	walkIn, _, err := repo.CreateSale(ctx, draft(cart(t, domain.CartLine{ProductID: product.ID, Quantity: 1}), "", 0))
	require.NoError(t, err)
	assert.True(t, walkIn.IsWalkIn())
	assert.Equal(t, money.FromMajor(130), walkIn.Due())
}

func testCheckoutRejections(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	a := seedProduct(t, repo, 5, 100)
	b := seedProduct(t, repo, 1, 50)

	_, _, err := repo.CreateSale(ctx, draft(cart(t,
		domain.CartLine{ProductID: a.ID, Quantity: 2},
		domain.CartLine{ProductID: b.ID, Quantity: 2},
	), "", 0))
	var short *ledger.InsufficientStockError
	require.True(t, errors.As(err, &short), "got %v", err)
	assert.Equal(t, b.ID, short.ProductID)
	assert.Equal(t, 2, short.Requested)
	assert.Equal(t, 1, short.Available)
	assert.Equal(t, 5, stockOf(t, repo, a.ID))
	assert.Equal(t, 1, stockOf(t, repo, b.ID))

	_, _, err = repo.CreateSale(ctx, draft(cart(t, domain.CartLine{ProductID: a.ID, Quantity: 1}), "", money.FromMajor(101)))
	var over *ledger.OverpaymentError
	require.True(t, errors.As(err, &over), "got %v", err)
	assert.Equal(t, 5, stockOf(t, repo, a.ID))

	_, _, err = repo.CreateSale(ctx, draft(cart(t, domain.CartLine{ProductID: "missing", Quantity: 1}), "", 0))
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	// Stock is checked before any line is priced.
	_, _, err = repo.CreateSale(ctx, draft(cart(t, domain.CartLine{ProductID: a.ID, Quantity: math.MaxInt / 1000}), "", money.FromMajor(1)))
	require.True(t, errors.As(err, &short), "got %v", err)
	assert.Equal(t, math.MaxInt/1000, short.Requested)
	assert.Equal(t, 5, short.Available)

	sales, err := repo.ListSales(ctx, store.SaleFilter{BusinessID: BusinessID})
	require.NoError(t, err)
	assert.Empty(t, sales)

	// Retrying with a fixed cart succeeds cleanly.
	_, _, err = repo.CreateSale(ctx, draft(cart(t,
		domain.CartLine{ProductID: a.ID, Quantity: 2},
		domain.CartLine{ProductID: b.ID, Quantity: 1},
	), "", 0))
	require.NoError(t, err)
	assert.Equal(t, 3, stockOf(t, repo, a.ID))
	assert.Equal(t, 0, stockOf(t, repo, b.ID))
}

func testIdempotency(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	product := seedProduct(t, repo, 10, 100)

	d := draft(cart(t, domain.CartLine{ProductID: product.ID, Quantity: 2}), "", 0)
	d.Sale.IdempotencyKey = "idem-" + xid.New("k")

	first, dup, err := repo.CreateSale(ctx, d)
	require.NoError(t, err)
	assert.False(t, dup)

	second, dup, err := repo.CreateSale(ctx, d)
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 8, stockOf(t, repo, product.ID))
}

func testCollections(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	product := seedProduct(t, repo, 10, 100)
	customer := seedCustomer(t, repo)
	sale, _, err := repo.CreateSale(ctx, draft(cart(t, domain.CartLine{ProductID: product.ID, Quantity: 3}), customer.ID, money.FromMajor(200)))
	require.NoError(t, err)

	_, _, err = repo.CreateCollection(ctx, domain.Collection{
		SaleID: sale.ID, CollectedBy: "seller", AmountCollected: money.FromMajor(150),
		CollectionDate: Day("2026-03-02"), PaymentMethod: domain.PaymentCash,
	})
	var exceeds *ledger.AmountExceedsDueError
	require.True(t, errors.As(err, &exceeds), "got %v", err)
	assert.Equal(t, money.FromMajor(100), exceeds.Due)
	assert.Equal(t, money.FromMajor(150), exceeds.Requested)

	unchanged, err := repo.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, money.FromMajor(200), unchanged.AmountPaid)

	collection, updated, err := repo.CreateCollection(ctx, domain.Collection{
		SaleID: sale.ID, CollectedBy: "seller", AmountCollected: money.FromMajor(100),
		CollectionDate: Day("2026-03-02"), PaymentMethod: domain.PaymentCash,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, collection.ID)
	assert.Equal(t, BusinessID, collection.BusinessID)
	assert.Equal(t, money.FromMajor(300), updated.AmountPaid)
	assert.Equal(t, money.Amount(0), updated.Due())

	_, _, err = repo.CreateCollection(ctx, domain.Collection{
		SaleID: "missing", AmountCollected: money.FromMajor(1), CollectionDate: Day("2026-03-02"),
	})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func testCollectionCorrections(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	product := seedProduct(t, repo, 10, 100)
	sale, _, err := repo.CreateSale(ctx, draft(cart(t, domain.CartLine{ProductID: product.ID, Quantity: 3}), "", money.FromMajor(100)))
	require.NoError(t, err)

	collection, _, err := repo.CreateCollection(ctx, domain.Collection{
		SaleID: sale.ID, CollectedBy: "seller", AmountCollected: money.FromMajor(60),
		CollectionDate: Day("2026-03-02"), PaymentMethod: domain.PaymentCash,
	})
	require.NoError(t, err)

	bigger := money.FromMajor(200)
	updated, s, err := repo.UpdateCollection(ctx, collection.ID, store.CollectionPatch{Amount: &bigger})
	require.NoError(t, err)
	assert.Equal(t, bigger, updated.AmountCollected)
	assert.Equal(t, money.FromMajor(300), s.AmountPaid)

	tooBig := money.FromMajor(201)
	_, _, err = repo.UpdateCollection(ctx, collection.ID, store.CollectionPatch{Amount: &tooBig})
	var exceeds *ledger.AmountExceedsDueError
	require.True(t, errors.As(err, &exceeds), "got %v", err)
	assert.Equal(t, money.FromMajor(200), exceeds.Due)

	smaller := money.FromMajor(50)
	newDate := Day("2026-03-04")
	note := "corrected"
	updated, s, err = repo.UpdateCollection(ctx, collection.ID, store.CollectionPatch{Amount: &smaller, CollectionDate: &newDate, Notes: &note})
	require.NoError(t, err)
	assert.Equal(t, money.FromMajor(150), s.AmountPaid)
	assert.True(t, newDate.Equal(updated.CollectionDate))
	assert.Equal(t, "corrected", updated.Notes)

	deleted, s, err := repo.DeleteCollection(ctx, collection.ID)
	require.NoError(t, err)
	assert.Equal(t, smaller, deleted.AmountCollected)
	assert.Equal(t, money.FromMajor(100), s.AmountPaid)

	_, err = repo.GetCollection(ctx, collection.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	_, _, err = repo.DeleteCollection(ctx, collection.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	remaining, err := repo.ListCollections(ctx, store.CollectionFilter{SaleIDs: []string{sale.ID}})
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func testDamage(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	a := seedProduct(t, repo, 5, 100)
	b := seedProduct(t, repo, 2, 50)

	list, err := ledger.NewDamageList([]domain.DamageLine{{ProductID: a.ID, Quantity: 2}, {ProductID: b.ID, Quantity: 3}})
	require.NoError(t, err)
	_, err = repo.CreateDamage(ctx, store.DamageDraft{Damage: domain.Damage{BusinessID: BusinessID, UserID: "seller"}, Lines: list})
	var short *ledger.InsufficientStockError
	require.True(t, errors.As(err, &short), "got %v", err)
	assert.Equal(t, 5, stockOf(t, repo, a.ID))
	assert.Equal(t, 2, stockOf(t, repo, b.ID))

	list, err = ledger.NewDamageList([]domain.DamageLine{{ProductID: a.ID, Quantity: 2}, {ProductID: b.ID, Quantity: 2}})
	require.NoError(t, err)
	damage, err := repo.CreateDamage(ctx, store.DamageDraft{Damage: domain.Damage{BusinessID: BusinessID, UserID: "seller", Note: "rain"}, Lines: list})
	require.NoError(t, err)
	assert.Equal(t, money.FromMajor(2*60+2*30), damage.TotalLoss)
	require.Len(t, damage.Items, 2)
	assert.Equal(t, 3, stockOf(t, repo, a.ID))
	assert.Equal(t, 0, stockOf(t, repo, b.ID))

	damages, err := repo.ListDamages(ctx, store.DamageFilter{BusinessID: BusinessID})
	require.NoError(t, err)
	require.Len(t, damages, 1)
	assert.Equal(t, damage.ID, damages[0].ID)
	assert.Len(t, damages[0].Items, 2)
}

func testAdjustStock(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	product := seedProduct(t, repo, 3, 100)

	p, err := repo.AdjustStock(ctx, product.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 7, p.StockQuantity)

	_, err = repo.AdjustStock(ctx, product.ID, -8)
	var short *ledger.InsufficientStockError
	require.True(t, errors.As(err, &short), "got %v", err)
	assert.Equal(t, 7, short.Available)
	assert.Equal(t, 7, stockOf(t, repo, product.ID))

	_, err = repo.AdjustStock(ctx, "missing", 1)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func testConcurrentCheckouts(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	const (
		stock   = 10
		qty     = 3
		callers = 8
	)
	product := seedProduct(t, repo, stock, 100)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		rejected  int
		other     []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, _ := ledger.NewCart([]domain.CartLine{{ProductID: product.ID, Quantity: qty}})
			_, _, err := repo.CreateSale(ctx, draft(c, "", 0))
			mu.Lock()
			defer mu.Unlock()
			var short *ledger.InsufficientStockError
			switch {
			case err == nil:
				successes++
			case errors.As(err, &short):
				rejected++
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	require.Empty(t, other)
	assert.Equal(t, stock/qty, successes)
	assert.Equal(t, callers-stock/qty, rejected)
	assert.Equal(t, stock-(stock/qty)*qty, stockOf(t, repo, product.ID))
}

func testConcurrentCollections(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	product := seedProduct(t, repo, 10, 100)
	sale, _, err := repo.CreateSale(ctx, draft(cart(t, domain.CartLine{ProductID: product.ID, Quantity: 1}), "", 0))
	require.NoError(t, err)
	require.Equal(t, money.FromMajor(100), sale.Due())

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = repo.CreateCollection(ctx, domain.Collection{
				SaleID: sale.ID, CollectedBy: "seller", AmountCollected: money.FromMajor(60),
				CollectionDate: Day("2026-03-02"), PaymentMethod: domain.PaymentCash,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var exceeds *ledger.AmountExceedsDueError
		require.True(t, errors.As(err, &exceeds), "got %v", err)
		assert.Equal(t, money.FromMajor(40), exceeds.Due)
		assert.Equal(t, money.FromMajor(60), exceeds.Requested)
	}
	assert.Equal(t, 1, succeeded)

	final, err := repo.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, money.FromMajor(60), final.AmountPaid)
	assert.Equal(t, money.FromMajor(40), final.Due())
}

// assertSaleBalances checks that amount_paid stays within the sale and
// equals the initial payment plus every stored collection.
func assertSaleBalances(t *testing.T, repo store.Repository, saleID string, initial money.Amount) {
	t.Helper()
	ctx := context.Background()
	sale, err := repo.GetSale(ctx, saleID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, sale.AmountPaid, money.Amount(0))
	assert.LessOrEqual(t, sale.AmountPaid, sale.FinalAmount)

	collections, err := repo.ListCollections(ctx, store.CollectionFilter{SaleIDs: []string{saleID}})
	require.NoError(t, err)
	sum := initial
	for _, c := range collections {
		sum += c.AmountCollected
	}
	assert.Equal(t, sum, sale.AmountPaid)
}

func testConcurrentCollectionCorrections(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	product := seedProduct(t, repo, 10, 100)
	initial := money.FromMajor(20)
	sale, _, err := repo.CreateSale(ctx, draft(cart(t, domain.CartLine{ProductID: product.ID, Quantity: 1}), "", initial))
	require.NoError(t, err)

	newCollection := func(amount int64) domain.Collection {
		return domain.Collection{
			SaleID: sale.ID, CollectedBy: "seller", AmountCollected: money.FromMajor(amount),
			CollectionDate: Day("2026-03-02"), PaymentMethod: domain.PaymentCash,
		}
	}
	edited, _, err := repo.CreateCollection(ctx, newCollection(30))
	require.NoError(t, err)
	removed, _, err := repo.CreateCollection(ctx, newCollection(10))
	require.NoError(t, err)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		other []error
	)
	record := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		var exceeds *ledger.AmountExceedsDueError
		if err != nil && !errors.As(err, &exceeds) {
			other = append(other, err)
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		raised := money.FromMajor(70)
		_, _, err := repo.UpdateCollection(ctx, edited.ID, store.CollectionPatch{Amount: &raised})
		record(err)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _, err := repo.DeleteCollection(ctx, removed.ID)
		record(err)
	}()
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := repo.CreateCollection(ctx, newCollection(25))
			record(err)
		}()
	}
	wg.Wait()

	require.Empty(t, other)
	_, err = repo.GetCollection(ctx, removed.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	assertSaleBalances(t, repo, sale.ID, initial)
}

func testConcurrentDamageAndCheckout(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	const (
		stock     = 10
		saleQty   = 3
		damageQty = 2
		callers   = 4
	)
	product := seedProduct(t, repo, stock, 100)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		sold    int
		damaged int
		other   []error
	)
	record := func(err error, qty int, counter *int) {
		mu.Lock()
		defer mu.Unlock()
		var short *ledger.InsufficientStockError
		switch {
		case err == nil:
			*counter += qty
		case errors.As(err, &short):
		default:
			other = append(other, err)
		}
	}

	for i := 0; i < callers; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c, _ := ledger.NewCart([]domain.CartLine{{ProductID: product.ID, Quantity: saleQty}})
			_, _, err := repo.CreateSale(ctx, draft(c, "", 0))
			record(err, saleQty, &sold)
		}()
		go func() {
			defer wg.Done()
			list, _ := ledger.NewDamageList([]domain.DamageLine{{ProductID: product.ID, Quantity: damageQty}})
			_, err := repo.CreateDamage(ctx, store.DamageDraft{Damage: domain.Damage{BusinessID: BusinessID, UserID: "seller"}, Lines: list})
			record(err, damageQty, &damaged)
		}()
	}
	wg.Wait()

	require.Empty(t, other)
	remaining := stockOf(t, repo, product.ID)
	assert.GreaterOrEqual(t, remaining, 0)
	assert.Equal(t, stock-sold-damaged, remaining)

	sales, err := repo.ListSales(ctx, store.SaleFilter{BusinessID: BusinessID})
	require.NoError(t, err)
	assert.Equal(t, sold/saleQty, len(sales))
	damages, err := repo.ListDamages(ctx, store.DamageFilter{BusinessID: BusinessID})
	require.NoError(t, err)
	assert.Equal(t, damaged/damageQty, len(damages))
}

func testListing(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	product := seedProduct(t, repo, 20, 100)
	customer := seedCustomer(t, repo)

	d1 := draft(cart(t, domain.CartLine{ProductID: product.ID, Quantity: 1}), customer.ID, money.FromMajor(100))
	d1.Sale.SaleDate = Day("2026-03-01")
	d2 := draft(cart(t, domain.CartLine{ProductID: product.ID, Quantity: 2}), customer.ID, money.FromMajor(50))
	d2.Sale.SaleDate = Day("2026-03-03")
	d3 := draft(cart(t, domain.CartLine{ProductID: product.ID, Quantity: 1}), "", 0)
	d3.Sale.SaleDate = Day("2026-03-03")

	s1, _, err := repo.CreateSale(ctx, d1)
	require.NoError(t, err)
	s2, _, err := repo.CreateSale(ctx, d2)
	require.NoError(t, err)
	_, _, err = repo.CreateSale(ctx, d3)
	require.NoError(t, err)

	all, err := repo.ListSales(ctx, store.SaleFilter{BusinessID: BusinessID})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byCustomer, err := repo.ListSales(ctx, store.SaleFilter{BusinessID: BusinessID, CustomerID: customer.ID})
	require.NoError(t, err)
	assert.Len(t, byCustomer, 2)

	onDay, err := repo.ListSales(ctx, store.SaleFilter{BusinessID: BusinessID, From: Day("2026-03-03"), To: Day("2026-03-03")})
	require.NoError(t, err)
	assert.Len(t, onDay, 2)

	owing, err := repo.ListSales(ctx, store.SaleFilter{BusinessID: BusinessID, OnlyDue: true})
	require.NoError(t, err)
	assert.Len(t, owing, 2)
	for _, s := range owing {
		assert.NotEqual(t, s1.ID, s.ID)
	}

	_, _, err = repo.CreateCollection(ctx, domain.Collection{SaleID: s2.ID, CollectedBy: "seller", AmountCollected: money.FromMajor(20), CollectionDate: Day("2026-03-05"), PaymentMethod: domain.PaymentCash})
	require.NoError(t, err)
	_, _, err = repo.CreateCollection(ctx, domain.Collection{SaleID: s2.ID, CollectedBy: "seller", AmountCollected: money.FromMajor(30), CollectionDate: Day("2026-03-06"), PaymentMethod: domain.PaymentCash})
	require.NoError(t, err)

	bySale, err := repo.ListCollections(ctx, store.CollectionFilter{SaleIDs: []string{s2.ID}})
	require.NoError(t, err)
	assert.Len(t, bySale, 2)

	byDate, err := repo.ListCollections(ctx, store.CollectionFilter{BusinessID: BusinessID, From: Day("2026-03-06"), To: Day("2026-03-06")})
	require.NoError(t, err)
	require.Len(t, byDate, 1)
	assert.Equal(t, money.FromMajor(30), byDate[0].AmountCollected)
}

package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/cache"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/domain"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/ledger"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/money"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/reconcile"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/store/memory"
)

const testBusiness = "main-business"

type testEnv struct {
	svc      *Service
	repo     *memory.Store
	ctx      context.Context
	product  domain.Product
	customer domain.Customer
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	repo := memory.New()
	ctx := context.Background()
	require.NoError(t, repo.CreateUser(ctx, domain.UserAccount{Username: "rafi", Password: "hash", Role: domain.RoleSeller}))

	reconciler := reconcile.NewEngine(repo, cache.NewMemoryDueCache(), time.Minute, zap.NewNop())
	svc := New(repo, reconciler, zap.NewNop(), testBusiness)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC) }

	ctx = WithActor(ctx, domain.Actor{Username: "rafi", Role: domain.RoleSeller})
	product, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Name:         "Miniket Rice 5kg",
		CostPrice:    money.FromMajor(60),
		SellingPrice: money.FromMajor(100),
		InitialStock: 10,
	})
	require.NoError(t, err)
	customer, err := svc.CreateCustomer(ctx, domain.CustomerCreateRequest{Name: "Karim Traders", Phone: "01711000001"})
	require.NoError(t, err)

	return testEnv{svc: svc, repo: repo, ctx: ctx, product: product, customer: customer}
}

func (e testEnv) checkout(t *testing.T, qty int, paid int64) domain.SaleResponse {
	t.Helper()
	resp, err := e.svc.Checkout(e.ctx, domain.CheckoutRequest{
		Items: []domain.CartLine{{ProductID: e.product.ID, Quantity: qty}},
		SaleDetails: domain.SaleDetails{
			CustomerID: e.customer.ID,
			AmountPaid: money.FromMajor(paid),
		},
	})
	require.NoError(t, err)
	return resp
}

func (e testEnv) stock(t *testing.T) int {
	t.Helper()
	p, err := e.svc.GetProduct(e.ctx, e.product.ID)
	require.NoError(t, err)
	return p.StockQuantity
}

func TestScenarioARecordSale(t *testing.T) {
	env := newTestEnv(t)

	resp := env.checkout(t, 3, 200)
	assert.False(t, resp.Duplicate)
	assert.Equal(t, money.FromMajor(300), resp.Sale.FinalAmount)
	assert.Equal(t, money.FromMajor(200), resp.Sale.AmountPaid)
	assert.Equal(t, money.FromMajor(100), resp.Due)
	assert.Equal(t, "rafi", resp.Sale.SellerID)
	assert.Equal(t, domain.PaymentCash, resp.Sale.PaymentMethod)
	assert.Equal(t, "2026-03-01", resp.Sale.SaleDate.Format(domain.DateLayout))
	assert.Equal(t, 7, env.stock(t))

	detail, err := env.svc.GetSale(env.ctx, resp.Sale.ID)
	require.NoError(t, err)
	assert.Equal(t, money.FromMajor(200), detail.InitialPayment)
	assert.Empty(t, detail.Collections)
}

func TestScenarioBAndC(t *testing.T) {
	env := newTestEnv(t)
	sale := env.checkout(t, 3, 200).Sale

	_, err := env.svc.CollectPayment(env.ctx, sale.ID, domain.CollectionRequest{Amount: money.FromMajor(150)})
	var exceeds *ledger.AmountExceedsDueError
	require.True(t, errors.As(err, &exceeds), "got %v", err)
	assert.Equal(t, money.FromMajor(100), exceeds.Due)
	assert.Equal(t, money.FromMajor(150), exceeds.Requested)
	assert.ErrorIs(t, err, ledger.ErrConflict)

	unchanged, err := env.svc.GetSale(env.ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, money.FromMajor(200), unchanged.Sale.AmountPaid)

	resp, err := env.svc.CollectPayment(env.ctx, sale.ID, domain.CollectionRequest{
		Amount:         money.FromMajor(100),
		PaymentMethod:  "mobile_banking",
		CollectionDate: "2026-03-04",
	})
	require.NoError(t, err)
	assert.Equal(t, money.FromMajor(300), resp.Sale.AmountPaid)
	assert.Equal(t, money.Amount(0), resp.Due)
	assert.Equal(t, "rafi", resp.Collection.CollectedBy)
	assert.Equal(t, domain.PaymentMobileBanking, resp.Collection.PaymentMethod)

	detail, err := env.svc.GetSale(env.ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, money.FromMajor(200), detail.InitialPayment)
	require.Len(t, detail.Collections, 1)
	assert.Equal(t, detail.Sale.AmountPaid, detail.InitialPayment+detail.Collections[0].AmountCollected)
}

func TestScenarioDConcurrentCollections(t *testing.T) {
	env := newTestEnv(t)
	sale := env.checkout(t, 1, 0).Sale

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.CollectPayment(env.ctx, sale.ID, domain.CollectionRequest{Amount: money.FromMajor(60)})
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
	}
	assert.Equal(t, 1, succeeded)
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	env := newTestEnv(t)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		success  int
		rejected int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Checkout(env.ctx, domain.CheckoutRequest{
				Items: []domain.CartLine{{ProductID: env.product.ID, Quantity: 4}},
			})
			mu.Lock()
			defer mu.Unlock()
			var short *ledger.InsufficientStockError
			switch {
			case err == nil:
				success++
			case errors.As(err, &short):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, success)
	assert.Equal(t, 4, rejected)
	assert.Equal(t, 2, env.stock(t))
}

func TestRecordSaleRejections(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		req  domain.CheckoutRequest
		want error
	}{
		{
			name: "empty cart",
			req:  domain.CheckoutRequest{},
			want: ledger.ErrEmptyCart,
		},
		{
			name: "zero quantity",
			req:  domain.CheckoutRequest{Items: []domain.CartLine{{ProductID: env.product.ID, Quantity: 0}}},
			want: ledger.ErrInvalidQuantity,
		},
		{
			name: "unknown customer",
			req: domain.CheckoutRequest{
				Items:       []domain.CartLine{{ProductID: env.product.ID, Quantity: 1}},
				SaleDetails: domain.SaleDetails{CustomerID: "cus-missing"},
			},
			want: ledger.ErrInvalidCustomer,
		},
		{
			name: "unknown seller",
			req: domain.CheckoutRequest{
				Items:       []domain.CartLine{{ProductID: env.product.ID, Quantity: 1}},
				SaleDetails: domain.SaleDetails{SellerID: "ghost"},
			},
			want: ledger.ErrInvalidSeller,
		},
		{
			name: "negative payment",
			req: domain.CheckoutRequest{
				Items:       []domain.CartLine{{ProductID: env.product.ID, Quantity: 1}},
				SaleDetails: domain.SaleDetails{AmountPaid: money.FromMajor(-1)},
			},
			want: ledger.ErrNegativeAmountPaid,
		},
		{
			name: "malformed date",
			req: domain.CheckoutRequest{
				Items:       []domain.CartLine{{ProductID: env.product.ID, Quantity: 1}},
				SaleDetails: domain.SaleDetails{SaleDate: "01/03/2026"},
			},
			want: ledger.ErrInvalidDate,
		},
		{
			name: "unsupported payment method",
			req: domain.CheckoutRequest{
				Items:       []domain.CartLine{{ProductID: env.product.ID, Quantity: 1}},
				SaleDetails: domain.SaleDetails{PaymentMethod: "cheque"},
			},
			want: ledger.ErrInvalidPaymentMethod,
		},
		{
			name: "discount above total",
			req: domain.CheckoutRequest{
				Items:       []domain.CartLine{{ProductID: env.product.ID, Quantity: 1}},
				SaleDetails: domain.SaleDetails{DiscountAmount: money.FromMajor(101)},
			},
			want: ledger.ErrInvalidDiscount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Checkout(env.ctx, tt.req)
			require.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ledger.ErrValidation)
		})
	}

	_, err := env.svc.Checkout(env.ctx, domain.CheckoutRequest{
		Items:       []domain.CartLine{{ProductID: env.product.ID, Quantity: 2}},
		SaleDetails: domain.SaleDetails{AmountPaid: money.FromMajor(201)},
	})
	var over *ledger.OverpaymentError
	require.True(t, errors.As(err, &over), "got %v", err)
	assert.Equal(t, money.FromMajor(200), over.FinalAmount)

	_, err = env.svc.Checkout(env.ctx, domain.CheckoutRequest{
		Items: []domain.CartLine{{ProductID: env.product.ID, Quantity: 11}},
	})
	var short *ledger.InsufficientStockError
	require.True(t, errors.As(err, &short), "got %v", err)
	assert.Equal(t, 10, short.Available)

	assert.Equal(t, 10, env.stock(t))
	sales, err := env.svc.ListSales(env.ctx, domain.SaleQuery{})
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestRecordSaleIdempotencyKey(t *testing.T) {
	env := newTestEnv(t)
	req := domain.CheckoutRequest{
		Items:       []domain.CartLine{{ProductID: env.product.ID, Quantity: 2}},
		SaleDetails: domain.SaleDetails{IdempotencyKey: "till-1-0001"},
	}

	first, err := env.svc.Checkout(env.ctx, req)
	require.NoError(t, err)
	second, err := env.svc.Checkout(env.ctx, req)
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Sale.ID, second.Sale.ID)
	assert.Equal(t, 8, env.stock(t))
}

func TestRecordSaleUsesImmutableCart(t *testing.T) {
	env := newTestEnv(t)

	cart, err := ledger.NewCart([]domain.CartLine{{ProductID: env.product.ID, Quantity: 1}})
	require.NoError(t, err)
	bigger, err := cart.With(env.product.ID, 2)
	require.NoError(t, err)

	resp, err := env.svc.RecordSale(env.ctx, bigger, domain.SaleDetails{PaymentMethod: domain.PaymentDue})
	require.NoError(t, err)
	assert.Equal(t, money.FromMajor(300), resp.Due)
	assert.True(t, resp.Sale.IsWalkIn())
	assert.Equal(t, 1, cart.Quantity(env.product.ID))
	assert.Equal(t, 7, env.stock(t))
}

func TestUpdateAndDeleteCollectionApplyDelta(t *testing.T) {
	env := newTestEnv(t)
	sale := env.checkout(t, 3, 100).Sale

	collected, err := env.svc.CollectPayment(env.ctx, sale.ID, domain.CollectionRequest{Amount: money.FromMajor(80)})
	require.NoError(t, err)
	require.Equal(t, money.FromMajor(180), collected.Sale.AmountPaid)

	amount := money.FromMajor(50)
	date := "2026-03-03"
	updated, err := env.svc.UpdateCollection(env.ctx, collected.Collection.ID, domain.CollectionUpdateRequest{Amount: &amount, CollectionDate: &date})
	require.NoError(t, err)
	assert.Equal(t, money.FromMajor(150), updated.Sale.AmountPaid)
	assert.Equal(t, money.FromMajor(150), updated.Due)
	assert.Equal(t, "2026-03-03", updated.Collection.CollectionDate.Format(domain.DateLayout))

	tooMuch := money.FromMajor(201)
	_, err = env.svc.UpdateCollection(env.ctx, collected.Collection.ID, domain.CollectionUpdateRequest{Amount: &tooMuch})
	var exceeds *ledger.AmountExceedsDueError
	require.True(t, errors.As(err, &exceeds), "got %v", err)
	assert.Equal(t, money.FromMajor(200), exceeds.Due)

	_, err = env.svc.UpdateCollection(env.ctx, collected.Collection.ID, domain.CollectionUpdateRequest{})
	assert.ErrorIs(t, err, ledger.ErrEmptyUpdate)

	zero := money.Amount(0)
	_, err = env.svc.UpdateCollection(env.ctx, collected.Collection.ID, domain.CollectionUpdateRequest{Amount: &zero})
	assert.ErrorIs(t, err, ledger.ErrNonPositiveAmount)

	deleted, err := env.svc.DeleteCollection(env.ctx, collected.Collection.ID)
	require.NoError(t, err)
	assert.Equal(t, money.FromMajor(100), deleted.Sale.AmountPaid)

	_, err = env.svc.DeleteCollection(env.ctx, collected.Collection.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestCollectPaymentValidation(t *testing.T) {
	env := newTestEnv(t)
	sale := env.checkout(t, 1, 0).Sale

	_, err := env.svc.CollectPayment(env.ctx, sale.ID, domain.CollectionRequest{Amount: 0})
	assert.ErrorIs(t, err, ledger.ErrNonPositiveAmount)

	_, err = env.svc.CollectPayment(env.ctx, "sale-missing", domain.CollectionRequest{Amount: money.FromMajor(10)})
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = env.svc.CollectPayment(env.ctx, sale.ID, domain.CollectionRequest{Amount: money.FromMajor(10), PaymentMethod: "due"})
	assert.ErrorIs(t, err, ledger.ErrInvalidPaymentMethod)

	_, err = env.svc.CollectPayment(context.Background(), sale.ID, domain.CollectionRequest{Amount: money.FromMajor(10)})
	assert.ErrorIs(t, err, ledger.ErrInvalidSeller)
}

func TestRecordDamage(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.RecordDamage(env.ctx, domain.DamageRequest{})
	assert.ErrorIs(t, err, ledger.ErrEmptyDamageList)

	_, err = env.svc.RecordDamage(env.ctx, domain.DamageRequest{Items: []domain.DamageLine{{ProductID: env.product.ID, Quantity: 11}}})
	var short *ledger.InsufficientStockError
	require.True(t, errors.As(err, &short), "got %v", err)
	assert.Equal(t, 10, env.stock(t))

	damage, err := env.svc.RecordDamage(env.ctx, domain.DamageRequest{
		Items: []domain.DamageLine{{ProductID: env.product.ID, Quantity: 2}, {ProductID: env.product.ID, Quantity: 1}},
		Note:  "water damage",
	})
	require.NoError(t, err)
	require.Len(t, damage.Items, 1)
	assert.Equal(t, 3, damage.Items[0].Quantity)
	assert.Equal(t, money.FromMajor(180), damage.TotalLoss)
	assert.Equal(t, "rafi", damage.UserID)
	assert.Equal(t, 7, env.stock(t))
}

func TestAdjustStockAndUpdateProduct(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.AdjustStock(env.ctx, env.product.ID, domain.StockAdjustRequest{})
	assert.ErrorIs(t, err, ledger.ErrInvalidAdjustment)

	p, err := env.svc.AdjustStock(env.ctx, env.product.ID, domain.StockAdjustRequest{Delta: -4, Reason: "recount"})
	require.NoError(t, err)
	assert.Equal(t, 6, p.StockQuantity)

	_, err = env.svc.AdjustStock(env.ctx, env.product.ID, domain.StockAdjustRequest{Delta: -7})
	assert.ErrorIs(t, err, ledger.ErrConflict)

	sold := env.checkout(t, 1, 0).Sale
	price := money.FromMajor(120)
	updated, err := env.svc.UpdateProduct(env.ctx, env.product.ID, domain.ProductUpdateRequest{SellingPrice: &price})
	require.NoError(t, err)
	assert.Equal(t, price, updated.SellingPrice)
	assert.Equal(t, 5, updated.StockQuantity)

	detail, err := env.svc.GetSale(env.ctx, sold.ID)
	require.NoError(t, err)
	assert.Equal(t, money.FromMajor(100), detail.Sale.Items[0].UnitPrice)
}

func TestDueReportsFollowMutations(t *testing.T) {
	env := newTestEnv(t)
	sale := env.checkout(t, 3, 200).Sale

	board, err := env.svc.DueBoard(env.ctx, "")
	require.NoError(t, err)
	assert.Equal(t, money.FromMajor(100), board.TotalOutstanding)

	_, err = env.svc.CollectPayment(env.ctx, sale.ID, domain.CollectionRequest{Amount: money.FromMajor(40), CollectionDate: "2026-03-02"})
	require.NoError(t, err)

	board, err = env.svc.DueBoard(env.ctx, "")
	require.NoError(t, err)
	assert.Equal(t, money.FromMajor(60), board.TotalOutstanding)

	due, err := env.svc.CustomerDue(env.ctx, env.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, "Karim Traders", due.CustomerName)
	assert.Equal(t, money.FromMajor(60), due.Due)

	day1, err := env.svc.CollectedOnDate(env.ctx, "", "2026-03-01")
	require.NoError(t, err)
	day2, err := env.svc.CollectedOnDate(env.ctx, "", "2026-03-02")
	require.NoError(t, err)
	lifetime, err := env.svc.LifetimeCollection(env.ctx, "")
	require.NoError(t, err)
	assert.Equal(t, money.FromMajor(200), day1.Total)
	assert.Equal(t, money.FromMajor(40), day2.Total)
	assert.Equal(t, lifetime.Amount, day1.Total+day2.Total)

	summary, err := env.svc.PeriodSummary(env.ctx, "", "2026-03-01", "2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, money.FromMajor(240), summary.TotalCollected)
	assert.Equal(t, money.FromMajor(60), summary.NewDue)

	_, err = env.svc.PeriodSummary(env.ctx, "", "2026-03-05", "2026-03-02")
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestListFiltersParseDates(t *testing.T) {
	env := newTestEnv(t)
	env.checkout(t, 1, 0)

	_, err := env.svc.ListSales(env.ctx, domain.SaleQuery{From: "2026-13-01"})
	assert.ErrorIs(t, err, ledger.ErrInvalidDate)

	_, err = env.svc.ListCollections(env.ctx, domain.CollectionQuery{From: "2026-03-05", To: "2026-03-01"})
	assert.ErrorIs(t, err, ledger.ErrInvalidDate)

	owing, err := env.svc.ListSales(env.ctx, domain.SaleQuery{OnlyDue: true, From: "2026-03-01", To: "2026-03-01"})
	require.NoError(t, err)
	assert.Len(t, owing, 1)
}

// Package reconcile answers due and collection questions by deriving them
// from sales and collections at read time.
package reconcile

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/cache"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/domain"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/ledger"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/store"
)

// Reader is the part of store.Repository the engine reads from.
type Reader interface {
	ListSales(ctx context.Context, filter store.SaleFilter) ([]domain.Sale, error)
	ListCollections(ctx context.Context, filter store.CollectionFilter) ([]domain.Collection, error)
	ListCustomers(ctx context.Context, businessID string) ([]domain.Customer, error)
}

type Engine struct {
	reader   Reader
	cache    cache.DueCache
	cacheTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewEngine(reader Reader, cacheStore cache.DueCache, cacheTTL time.Duration, logger *zap.Logger) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopDueCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		reader:   reader,
		cache:    cacheStore,
		cacheTTL: cacheTTL,
		logger:   logger,
		now:      time.Now,
	}
}

func dueBoardKey(businessID string, generation int64) string {
	return "ledger:dues:" + businessID + ":" + strconv.FormatInt(generation, 10)
}

// DueBoard lists every customer's due, largest first, with the business
// total. Walk-in sales form one row with an empty customer id.
//
// The cache key carries the business generation read before loading sales,
// so a board computed across an Invalidate lands under a key nobody reads.
func (e *Engine) DueBoard(ctx context.Context, businessID string) (*domain.DueBoard, error) {
	generation, err := e.cache.Generation(ctx, businessID)
	cacheable := err == nil
	if err != nil {
		e.logger.Warn("due cache generation read failed", zap.String("business_id", businessID), zap.Error(err))
	}
	key := dueBoardKey(businessID, generation)
	if cacheable {
		if cached, ok, err := e.cache.Get(ctx, key); err != nil {
			e.logger.Warn("due cache read failed", zap.String("business_id", businessID), zap.Error(err))
		} else if ok {
			return cached, nil
		}
	}

	sales, err := e.reader.ListSales(ctx, store.SaleFilter{BusinessID: businessID})
	if err != nil {
		return nil, err
	}
	customers, err := e.reader.ListCustomers(ctx, businessID)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(customers))
	for _, c := range customers {
		names[c.ID] = c.Name
	}

	rows := ledger.CustomerDues(sales, names)
	board := &domain.DueBoard{
		BusinessID:       businessID,
		Customers:        rows,
		TotalOutstanding: ledger.TotalOutstanding(rows),
		GeneratedAt:      e.now().UTC(),
	}
	if cacheable {
		if err := e.cache.Set(ctx, key, board, e.cacheTTL); err != nil {
			e.logger.Warn("due cache write failed", zap.String("business_id", businessID), zap.Error(err))
		}
	}
	return board, nil
}

// Invalidate advances the generation of businessID and drops the board
// cached under the previous one.
func (e *Engine) Invalidate(ctx context.Context, businessID string) {
	generation, err := e.cache.Bump(ctx, businessID)
	if err != nil {
		e.logger.Warn("due cache invalidation failed", zap.String("business_id", businessID), zap.Error(err))
		return
	}
	if err := e.cache.Delete(ctx, dueBoardKey(businessID, generation-1)); err != nil {
		e.logger.Warn("due cache delete failed", zap.String("business_id", businessID), zap.Error(err))
	}
}

func (e *Engine) CustomerDue(ctx context.Context, businessID, customerID string) (domain.CustomerDue, error) {
	sales, err := e.reader.ListSales(ctx, store.SaleFilter{BusinessID: businessID, CustomerID: customerID})
	if err != nil {
		return domain.CustomerDue{}, err
	}
	return ledger.CustomerDueOf(customerID, sales), nil
}

func (e *Engine) CollectedOnDate(ctx context.Context, businessID string, day time.Time) (domain.CollectionReport, error) {
	sales, collections, err := e.window(ctx, businessID, day, day)
	if err != nil {
		return domain.CollectionReport{}, err
	}
	report := ledger.CollectedOnDate(day, sales, collections)
	report.BusinessID = businessID
	return report, nil
}

func (e *Engine) PeriodSummary(ctx context.Context, businessID string, from, to time.Time) (domain.PeriodSummary, error) {
	if ledger.Day(from).After(ledger.Day(to)) {
		return domain.PeriodSummary{}, &ledger.ValidationError{
			Err:     ledger.ErrInvalidDate,
			Details: "from is after to",
		}
	}
	sales, collections, err := e.window(ctx, businessID, from, to)
	if err != nil {
		return domain.PeriodSummary{}, err
	}
	summary := ledger.Summarize(from, to, sales, collections)
	summary.BusinessID = businessID
	return summary, nil
}

func (e *Engine) LifetimeCollection(ctx context.Context, businessID string) (domain.LifetimeCollection, error) {
	sales, err := e.reader.ListSales(ctx, store.SaleFilter{BusinessID: businessID})
	if err != nil {
		return domain.LifetimeCollection{}, err
	}
	return domain.LifetimeCollection{
		BusinessID: businessID,
		Amount:     ledger.LifetimeCollection(sales),
		SaleCount:  len(sales),
	}, nil
}

// window loads the sales dated in [from, to], the collections dated in the
// same days, and every collection against those sales whatever its date.
// The last set is what keeps initial payments from being overstated.
func (e *Engine) window(ctx context.Context, businessID string, from, to time.Time) ([]domain.Sale, []domain.Collection, error) {
	sales, err := e.reader.ListSales(ctx, store.SaleFilter{BusinessID: businessID, From: from, To: to})
	if err != nil {
		return nil, nil, err
	}
	dated, err := e.reader.ListCollections(ctx, store.CollectionFilter{BusinessID: businessID, From: from, To: to})
	if err != nil {
		return nil, nil, err
	}
	if len(sales) == 0 {
		return sales, dated, nil
	}

	ids := make([]string, 0, len(sales))
	for _, sale := range sales {
		ids = append(ids, sale.ID)
	}
	bySale, err := e.reader.ListCollections(ctx, store.CollectionFilter{SaleIDs: ids})
	if err != nil {
		return nil, nil, err
	}
	return sales, append(dated, bySale...), nil
}

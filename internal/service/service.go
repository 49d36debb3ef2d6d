package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/domain"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/ledger"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/reconcile"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo              store.Repository
	reconciler        *reconcile.Engine
	logger            *zap.Logger
	defaultBusinessID string
	now               func() time.Time
}

func New(repo store.Repository, reconciler *reconcile.Engine, logger *zap.Logger, defaultBusinessID string) *Service {
	if defaultBusinessID == "" {
		defaultBusinessID = "main-business"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if reconciler == nil {
		reconciler = reconcile.NewEngine(repo, nil, 0, logger)
	}

	return &Service{
		repo:              repo,
		reconciler:        reconciler,
		logger:            logger,
		defaultBusinessID: defaultBusinessID,
		now:               time.Now,
	}
}

func (s *Service) businessID(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return s.defaultBusinessID
}

func (s *Service) ListProducts(ctx context.Context, businessID string) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, s.businessID(businessID))
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Product{}, ledger.Invalid(ledger.ErrInvalidProduct, "name is required")
	}
	if req.CostPrice.IsNegative() || req.SellingPrice.IsNegative() {
		return domain.Product{}, ledger.Invalid(ledger.ErrInvalidProduct, "prices cannot be negative")
	}
	if req.InitialStock < 0 {
		return domain.Product{}, ledger.Invalid(ledger.ErrInvalidProduct, "initial stock cannot be negative")
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		BusinessID:    s.businessID(req.BusinessID),
		Name:          req.Name,
		CostPrice:     req.CostPrice,
		SellingPrice:  req.SellingPrice,
		StockQuantity: req.InitialStock,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logger.Info("product created",
		zap.String("product_id", created.ID),
		zap.String("business_id", created.BusinessID),
		zap.Stringer("selling_price", created.SellingPrice),
		zap.Int("stock_quantity", created.StockQuantity),
	)
	return *created, nil
}

// UpdateProduct changes name and prices. Existing sale items keep the price
// they were sold at.
func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if req.Name == nil && req.CostPrice == nil && req.SellingPrice == nil {
		return domain.Product{}, ledger.ErrEmptyUpdate
	}
	existing, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, ledger.Invalid(ledger.ErrInvalidProduct, "name is required")
		}
		updated.Name = name
	}
	if req.CostPrice != nil {
		if req.CostPrice.IsNegative() {
			return domain.Product{}, ledger.Invalid(ledger.ErrInvalidProduct, "cost price cannot be negative")
		}
		updated.CostPrice = *req.CostPrice
	}
	if req.SellingPrice != nil {
		if req.SellingPrice.IsNegative() {
			return domain.Product{}, ledger.Invalid(ledger.ErrInvalidProduct, "selling price cannot be negative")
		}
		updated.SellingPrice = *req.SellingPrice
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	s.logger.Info("product updated",
		zap.String("product_id", saved.ID),
		zap.Stringer("cost_price", saved.CostPrice),
		zap.Stringer("selling_price", saved.SellingPrice),
	)
	return *saved, nil
}

// AdjustStock is the manual correction path for stock counts.
func (s *Service) AdjustStock(ctx context.Context, productID string, req domain.StockAdjustRequest) (domain.Product, error) {
	if req.Delta == 0 {
		return domain.Product{}, ledger.ErrInvalidAdjustment
	}

	product, err := s.repo.AdjustStock(ctx, strings.TrimSpace(productID), req.Delta)
	if err != nil {
		s.logRejected("stock adjustment rejected", err, zap.String("product_id", productID), zap.Int("delta", req.Delta))
		return domain.Product{}, err
	}
	s.logger.Info("stock adjusted",
		zap.String("product_id", product.ID),
		zap.Int("delta", req.Delta),
		zap.Int("stock_quantity", product.StockQuantity),
		zap.String("reason", req.Reason),
		zap.String("actor", actorName(ctx)),
	)
	return *product, nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Customer{}, ledger.Invalid(ledger.ErrInvalidCustomer, "name is required")
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		BusinessID: s.businessID(req.BusinessID),
		Name:       req.Name,
		Phone:      strings.TrimSpace(req.Phone),
	})
	if err != nil {
		return domain.Customer{}, err
	}
	s.logger.Info("customer created", zap.String("customer_id", created.ID), zap.String("business_id", created.BusinessID))
	return *created, nil
}

func (s *Service) ListCustomers(ctx context.Context, businessID string) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx, s.businessID(businessID))
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	customer, err := s.repo.GetCustomer(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

// Checkout builds a cart from request lines and records the sale.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.SaleResponse, error) {
	cart, err := ledger.NewCart(req.Items)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	return s.RecordSale(ctx, cart, req.SaleDetails)
}

// RecordSale prices cart at current selling prices, stores the sale with its
// items and decrements stock as one unit of work. An amount paid above the
// final amount is rejected, never clamped.
func (s *Service) RecordSale(ctx context.Context, cart ledger.Cart, details domain.SaleDetails) (domain.SaleResponse, error) {
	if cart.IsEmpty() {
		return domain.SaleResponse{}, ledger.ErrEmptyCart
	}
	if details.AmountPaid.IsNegative() {
		return domain.SaleResponse{}, ledger.ErrNegativeAmountPaid
	}
	if details.DiscountAmount.IsNegative() {
		return domain.SaleResponse{}, ledger.Invalid(ledger.ErrInvalidDiscount, "discount %s", details.DiscountAmount)
	}

	businessID := s.businessID(details.BusinessID)
	sellerID, err := s.requireStaff(ctx, details.SellerID)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	customerID := strings.TrimSpace(details.CustomerID)
	if customerID != "" {
		if err := s.requireCustomer(ctx, customerID, businessID); err != nil {
			return domain.SaleResponse{}, err
		}
	}
	method, err := ledger.NormalizePaymentMethod(details.PaymentMethod)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	saleDate, err := ledger.ParseDate(details.SaleDate, s.now())
	if err != nil {
		return domain.SaleResponse{}, err
	}

	sale, duplicate, err := s.repo.CreateSale(ctx, store.SaleDraft{
		Sale: domain.Sale{
			BusinessID:     businessID,
			CustomerID:     customerID,
			SellerID:       sellerID,
			SaleDate:       saleDate,
			PaymentMethod:  method,
			DiscountAmount: details.DiscountAmount,
			AmountPaid:     details.AmountPaid,
			Notes:          strings.TrimSpace(details.Notes),
			IdempotencyKey: strings.TrimSpace(details.IdempotencyKey),
		},
		Cart: cart,
	})
	if err != nil {
		s.logRejected("sale rejected", err, zap.String("business_id", businessID), zap.String("seller_id", sellerID))
		return domain.SaleResponse{}, err
	}

	if duplicate {
		s.logger.Info("sale replayed", zap.String("sale_id", sale.ID), zap.String("idempotency_key", sale.IdempotencyKey))
	} else {
		s.reconciler.Invalidate(ctx, sale.BusinessID)
		s.logger.Info("sale recorded",
			zap.String("sale_id", sale.ID),
			zap.String("business_id", sale.BusinessID),
			zap.String("customer_id", sale.CustomerID),
			zap.Int("lines", len(sale.Items)),
			zap.Stringer("final_amount", sale.FinalAmount),
			zap.Stringer("amount_paid", sale.AmountPaid),
			zap.Stringer("due", sale.Due()),
		)
	}
	return domain.SaleResponse{Sale: *sale, Due: sale.Due(), Duplicate: duplicate}, nil
}

// GetSale returns the sale with its items, collections and the split
// between the payment taken at checkout and later collections.
func (s *Service) GetSale(ctx context.Context, id string) (domain.SaleDetail, error) {
	sale, err := s.repo.GetSale(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.SaleDetail{}, err
	}
	collections, err := s.repo.ListCollections(ctx, store.CollectionFilter{SaleIDs: []string{sale.ID}})
	if err != nil {
		return domain.SaleDetail{}, err
	}
	return domain.SaleDetail{
		Sale:           *sale,
		Due:            sale.Due(),
		InitialPayment: ledger.InitialPaymentOf(*sale, collections),
		Collections:    collections,
	}, nil
}

func (s *Service) ListSales(ctx context.Context, q domain.SaleQuery) ([]domain.Sale, error) {
	from, to, err := parseRange(q.From, q.To)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSales(ctx, store.SaleFilter{
		BusinessID: s.businessID(q.BusinessID),
		CustomerID: strings.TrimSpace(q.CustomerID),
		From:       from,
		To:         to,
		OnlyDue:    q.OnlyDue,
	})
}

// CollectPayment records a later payment against a sale's due.
func (s *Service) CollectPayment(ctx context.Context, saleID string, req domain.CollectionRequest) (domain.CollectionResponse, error) {
	if err := ledger.ValidateCollectionAmount(req.Amount); err != nil {
		return domain.CollectionResponse{}, err
	}
	collectedBy, err := s.requireStaff(ctx, req.CollectedBy)
	if err != nil {
		return domain.CollectionResponse{}, err
	}
	method, err := ledger.NormalizePaymentMethod(req.PaymentMethod)
	if err != nil {
		return domain.CollectionResponse{}, err
	}
	if method == domain.PaymentDue {
		return domain.CollectionResponse{}, ledger.Invalid(ledger.ErrInvalidPaymentMethod, "a collection cannot be paid as due")
	}
	collectionDate, err := ledger.ParseDate(req.CollectionDate, s.now())
	if err != nil {
		return domain.CollectionResponse{}, err
	}

	collection, sale, err := s.repo.CreateCollection(ctx, domain.Collection{
		SaleID:          strings.TrimSpace(saleID),
		CollectedBy:     collectedBy,
		AmountCollected: req.Amount,
		CollectionDate:  collectionDate,
		PaymentMethod:   method,
		Notes:           strings.TrimSpace(req.Notes),
	})
	if err != nil {
		s.logRejected("collection rejected", err, zap.String("sale_id", saleID), zap.Stringer("amount", req.Amount))
		return domain.CollectionResponse{}, err
	}

	s.reconciler.Invalidate(ctx, sale.BusinessID)
	s.logger.Info("collection recorded",
		zap.String("collection_id", collection.ID),
		zap.String("sale_id", sale.ID),
		zap.Stringer("amount", collection.AmountCollected),
		zap.Stringer("amount_paid", sale.AmountPaid),
		zap.Stringer("due", sale.Due()),
	)
	return domain.CollectionResponse{Collection: *collection, Sale: *sale, Due: sale.Due()}, nil
}

// UpdateCollection corrects a collection. An amount change moves the sale's
// amount_paid by the difference only.
func (s *Service) UpdateCollection(ctx context.Context, id string, req domain.CollectionUpdateRequest) (domain.CollectionResponse, error) {
	var patch store.CollectionPatch
	if req.Amount != nil {
		if err := ledger.ValidateCollectionAmount(*req.Amount); err != nil {
			return domain.CollectionResponse{}, err
		}
		patch.Amount = req.Amount
	}
	if req.CollectionDate != nil {
		d, err := ledger.ParseDate(*req.CollectionDate, s.now())
		if err != nil {
			return domain.CollectionResponse{}, err
		}
		patch.CollectionDate = &d
	}
	if req.PaymentMethod != nil {
		method, err := ledger.NormalizePaymentMethod(*req.PaymentMethod)
		if err != nil {
			return domain.CollectionResponse{}, err
		}
		if method == domain.PaymentDue {
			return domain.CollectionResponse{}, ledger.Invalid(ledger.ErrInvalidPaymentMethod, "a collection cannot be paid as due")
		}
		patch.PaymentMethod = &method
	}
	if req.Notes != nil {
		notes := strings.TrimSpace(*req.Notes)
		patch.Notes = &notes
	}
	if patch.Amount == nil && patch.CollectionDate == nil && patch.PaymentMethod == nil && patch.Notes == nil {
		return domain.CollectionResponse{}, ledger.ErrEmptyUpdate
	}

	collection, sale, err := s.repo.UpdateCollection(ctx, strings.TrimSpace(id), patch)
	if err != nil {
		s.logRejected("collection update rejected", err, zap.String("collection_id", id))
		return domain.CollectionResponse{}, err
	}

	s.reconciler.Invalidate(ctx, sale.BusinessID)
	s.logger.Info("collection updated",
		zap.String("collection_id", collection.ID),
		zap.String("sale_id", sale.ID),
		zap.Stringer("amount", collection.AmountCollected),
		zap.Stringer("amount_paid", sale.AmountPaid),
		zap.Stringer("due", sale.Due()),
		zap.String("actor", actorName(ctx)),
	)
	return domain.CollectionResponse{Collection: *collection, Sale: *sale, Due: sale.Due()}, nil
}

// DeleteCollection removes a collection and takes its amount back off the sale.
func (s *Service) DeleteCollection(ctx context.Context, id string) (domain.CollectionResponse, error) {
	collection, sale, err := s.repo.DeleteCollection(ctx, strings.TrimSpace(id))
	if err != nil {
		s.logRejected("collection delete rejected", err, zap.String("collection_id", id))
		return domain.CollectionResponse{}, err
	}

	s.reconciler.Invalidate(ctx, sale.BusinessID)
	s.logger.Info("collection deleted",
		zap.String("collection_id", collection.ID),
		zap.String("sale_id", sale.ID),
		zap.Stringer("amount", collection.AmountCollected),
		zap.Stringer("amount_paid", sale.AmountPaid),
		zap.Stringer("due", sale.Due()),
		zap.String("actor", actorName(ctx)),
	)
	return domain.CollectionResponse{Collection: *collection, Sale: *sale, Due: sale.Due()}, nil
}

func (s *Service) ListCollections(ctx context.Context, q domain.CollectionQuery) ([]domain.Collection, error) {
	from, to, err := parseRange(q.From, q.To)
	if err != nil {
		return nil, err
	}
	filter := store.CollectionFilter{
		BusinessID: s.businessID(q.BusinessID),
		From:       from,
		To:         to,
	}
	if saleID := strings.TrimSpace(q.SaleID); saleID != "" {
		filter.SaleIDs = []string{saleID}
	}
	return s.repo.ListCollections(ctx, filter)
}

// RecordDamage writes off stock at cost price.
func (s *Service) RecordDamage(ctx context.Context, req domain.DamageRequest) (domain.Damage, error) {
	list, err := ledger.NewDamageList(req.Items)
	if err != nil {
		return domain.Damage{}, err
	}
	reportedBy, err := s.requireStaff(ctx, req.ReportedBy)
	if err != nil {
		return domain.Damage{}, err
	}

	businessID := s.businessID(req.BusinessID)
	damage, err := s.repo.CreateDamage(ctx, store.DamageDraft{
		Damage: domain.Damage{
			BusinessID: businessID,
			UserID:     reportedBy,
			Note:       strings.TrimSpace(req.Note),
		},
		Lines: list,
	})
	if err != nil {
		s.logRejected("damage rejected", err, zap.String("business_id", businessID))
		return domain.Damage{}, err
	}

	s.logger.Info("damage recorded",
		zap.String("damage_id", damage.ID),
		zap.String("business_id", damage.BusinessID),
		zap.Int("lines", len(damage.Items)),
		zap.Stringer("total_loss", damage.TotalLoss),
	)
	return *damage, nil
}

func (s *Service) ListDamages(ctx context.Context, q domain.DamageQuery) ([]domain.Damage, error) {
	from, to, err := parseRange(q.From, q.To)
	if err != nil {
		return nil, err
	}
	return s.repo.ListDamages(ctx, store.DamageFilter{BusinessID: s.businessID(q.BusinessID), From: from, To: to})
}

func (s *Service) DueBoard(ctx context.Context, businessID string) (domain.DueBoard, error) {
	board, err := s.reconciler.DueBoard(ctx, s.businessID(businessID))
	if err != nil {
		return domain.DueBoard{}, err
	}
	return *board, nil
}

func (s *Service) CustomerDue(ctx context.Context, customerID string) (domain.CustomerDue, error) {
	customer, err := s.repo.GetCustomer(ctx, strings.TrimSpace(customerID))
	if err != nil {
		return domain.CustomerDue{}, err
	}
	due, err := s.reconciler.CustomerDue(ctx, customer.BusinessID, customer.ID)
	if err != nil {
		return domain.CustomerDue{}, err
	}
	due.CustomerName = customer.Name
	return due, nil
}

// CollectedOnDate reports money taken on date, today when empty.
func (s *Service) CollectedOnDate(ctx context.Context, businessID string, date string) (domain.CollectionReport, error) {
	day, err := ledger.ParseDate(date, s.now())
	if err != nil {
		return domain.CollectionReport{}, err
	}
	return s.reconciler.CollectedOnDate(ctx, s.businessID(businessID), day)
}

// PeriodSummary defaults both bounds to today.
func (s *Service) PeriodSummary(ctx context.Context, businessID string, from string, to string) (domain.PeriodSummary, error) {
	fromDay, err := ledger.ParseDate(from, s.now())
	if err != nil {
		return domain.PeriodSummary{}, err
	}
	toDay, err := ledger.ParseDate(to, s.now())
	if err != nil {
		return domain.PeriodSummary{}, err
	}
	return s.reconciler.PeriodSummary(ctx, s.businessID(businessID), fromDay, toDay)
}

func (s *Service) LifetimeCollection(ctx context.Context, businessID string) (domain.LifetimeCollection, error) {
	return s.reconciler.LifetimeCollection(ctx, s.businessID(businessID))
}

// requireStaff resolves the acting staff member: the explicit username, or
// the authenticated actor when none is given. The account must be active.
func (s *Service) requireStaff(ctx context.Context, username string) (string, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		if actor, ok := ActorFromContext(ctx); ok {
			username = actor.Username
		}
	}
	if username == "" {
		return "", ledger.Invalid(ledger.ErrInvalidSeller, "no seller given")
	}

	user, err := s.repo.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return "", ledger.Invalid(ledger.ErrInvalidSeller, "%q", username)
		}
		return "", err
	}
	if !user.Active {
		return "", ledger.Invalid(ledger.ErrInvalidSeller, "%q is inactive", username)
	}
	return user.Username, nil
}

func (s *Service) requireCustomer(ctx context.Context, customerID string, businessID string) error {
	customer, err := s.repo.GetCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return ledger.Invalid(ledger.ErrInvalidCustomer, "%q", customerID)
		}
		return err
	}
	if customer.BusinessID != businessID {
		return ledger.Invalid(ledger.ErrInvalidCustomer, "%q belongs to another business", customerID)
	}
	return nil
}

// logRejected logs business-rule rejections at Warn and anything else at Error.
func (s *Service) logRejected(msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	switch {
	case errors.Is(err, ledger.ErrConflict), errors.Is(err, ledger.ErrValidation), errors.Is(err, ledger.ErrNotFound):
		s.logger.Warn(msg, fields...)
	default:
		s.logger.Error(msg, fields...)
	}
}

func actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.Username
	}
	return ""
}

// parseRange parses optional YYYY-MM-DD bounds. Empty bounds stay zero.
func parseRange(from string, to string) (time.Time, time.Time, error) {
	var fromDay, toDay time.Time
	var err error
	if strings.TrimSpace(from) != "" {
		if fromDay, err = ledger.ParseDate(from, time.Time{}); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if strings.TrimSpace(to) != "" {
		if toDay, err = ledger.ParseDate(to, time.Time{}); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if !fromDay.IsZero() && !toDay.IsZero() && fromDay.After(toDay) {
		return time.Time{}, time.Time{}, ledger.Invalid(ledger.ErrInvalidDate, "from %s is after to %s", from, to)
	}
	return fromDay, toDay, nil
}

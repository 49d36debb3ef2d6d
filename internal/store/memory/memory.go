package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/domain"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/ledger"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/money"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/store"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/xid"
)

const DefaultBusinessID = "main-business"

// Store keeps the ledger in maps. One mutex serialises every unit of work,
// so a check and the write it guards always see the same state.
type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	customers       map[string]domain.Customer
	usersByUsername map[string]domain.UserAccount
	sales           map[string]*domain.Sale
	saleOrder       []string
	salesByIdem     map[string]string
	collections     map[string]domain.Collection
	collectionOrder []string
	damages         []domain.Damage
}

func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		customers:       make(map[string]domain.Customer),
		usersByUsername: make(map[string]domain.UserAccount),
		sales:           make(map[string]*domain.Sale),
		salesByIdem:     make(map[string]string),
		collections:     make(map[string]domain.Collection),
	}
}

// seedUsers builds the dev/demo accounts. Passwords come from
// SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD, with fixed dev defaults.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	sellerPwd := envOr("SEED_SELLER_PASSWORD", "seller123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_SELLER_PASSWORD") == "" {
		zap.L().Warn("memory store is using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"seller", sellerPwd, domain.RoleSeller},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			zap.L().Fatal("failed to hash seed password", zap.String("username", u.username), zap.Error(err))
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with demo staff, products and customers.
func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()

	now := time.Now().UTC()
	for _, p := range []domain.Product{
		{ID: "prd-rice-5kg", Name: "Miniket Rice 5kg", CostPrice: money.FromMajor(340), SellingPrice: money.FromMajor(380), StockQuantity: 120},
		{ID: "prd-lentil-1kg", Name: "Masoor Dal 1kg", CostPrice: money.FromMajor(105), SellingPrice: money.FromMajor(125), StockQuantity: 80},
		{ID: "prd-oil-1l", Name: "Soybean Oil 1L", CostPrice: money.FromMajor(160), SellingPrice: money.FromMajor(175), StockQuantity: 60},
		{ID: "prd-sugar-1kg", Name: "Sugar 1kg", CostPrice: money.FromMajor(120), SellingPrice: money.FromMajor(135), StockQuantity: 90},
		{ID: "prd-tea-400g", Name: "Tea Leaves 400g", CostPrice: money.FromMajor(190), SellingPrice: money.FromMajor(220), StockQuantity: 40},
		{ID: "prd-soap", Name: "Bath Soap", CostPrice: money.FromMajor(42), SellingPrice: money.FromMajor(55), StockQuantity: 150},
	} {
		p.BusinessID = DefaultBusinessID
		p.CreatedAt = now
		s.products[p.ID] = p
	}
	for _, c := range []domain.Customer{
		{ID: "cus-karim", Name: "Karim Traders", Phone: "01711000001"},
		{ID: "cus-rahima", Name: "Rahima Store", Phone: "01811000002"},
	} {
		c.BusinessID = DefaultBusinessID
		c.CreatedAt = now
		s.customers[c.ID] = c
	}
	return s
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(product.Name) == "" || product.StockQuantity < 0 {
		return nil, store.ErrInvalidRecord
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrAlreadyExists
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, ledger.NotFound("product", id)
	}
	return &product, nil
}

func (s *Store) ListProducts(_ context.Context, businessID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if businessID != "" && p.BusinessID != businessID {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, ledger.NotFound("product", product.ID)
	}
	if strings.TrimSpace(product.Name) == "" {
		return nil, store.ErrInvalidRecord
	}
	existing.Name = product.Name
	existing.CostPrice = product.CostPrice
	existing.SellingPrice = product.SellingPrice
	s.products[product.ID] = existing
	return &existing, nil
}

func (s *Store) AdjustStock(_ context.Context, productID string, delta int) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[productID]
	if !ok {
		return nil, ledger.NotFound("product", productID)
	}
	if product.StockQuantity+delta < 0 {
		return nil, &ledger.InsufficientStockError{ProductID: productID, Requested: -delta, Available: product.StockQuantity}
	}
	product.StockQuantity += delta
	s.products[productID] = product
	return &product, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidRecord
	}
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if _, exists := s.customers[customer.ID]; exists {
		return nil, store.ErrAlreadyExists
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customers[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customers[id]
	if !ok {
		return nil, ledger.NotFound("customer", id)
	}
	return &customer, nil
}

func (s *Store) ListCustomers(_ context.Context, businessID string) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		if businessID != "" && c.BusinessID != businessID {
			continue
		}
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return strings.Compare(a.Name, b.Name)
	})
	return customers, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidRecord
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrAlreadyExists
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleSeller
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) GetUser(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return nil, ledger.NotFound("user", username)
	}
	return &user, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidRecord
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return ledger.NotFound("user", username)
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) CreateSale(_ context.Context, draft store.SaleDraft) (*domain.Sale, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale := draft.Sale
	if key := sale.IdempotencyKey; key != "" {
		if id, ok := s.salesByIdem[key]; ok {
			return cloneSale(s.sales[id]), true, nil
		}
	}

	lines := draft.Cart.Lines()
	snapshot := make(map[string]domain.Product, len(lines))
	for _, line := range lines {
		product, ok := s.products[line.ProductID]
		if !ok || (sale.BusinessID != "" && product.BusinessID != sale.BusinessID) {
			return nil, false, ledger.NotFound("product", line.ProductID)
		}
		snapshot[line.ProductID] = product
	}

	if err := ledger.CheckStock(lines, snapshot); err != nil {
		return nil, false, err
	}
	priced, err := ledger.PriceSale(draft.Cart, snapshot, sale.DiscountAmount, sale.AmountPaid)
	if err != nil {
		return nil, false, err
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	sale = ledger.ApplyPricing(sale, priced)

	for _, line := range lines {
		product := s.products[line.ProductID]
		product.StockQuantity -= line.Quantity
		s.products[line.ProductID] = product
	}
	s.sales[sale.ID] = cloneSale(&sale)
	s.saleOrder = append(s.saleOrder, sale.ID)
	if sale.IdempotencyKey != "" {
		s.salesByIdem[sale.IdempotencyKey] = sale.ID
	}
	return cloneSale(&sale), false, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, ledger.NotFound("sale", id)
	}
	return cloneSale(sale), nil
}

func (s *Store) ListSales(_ context.Context, filter store.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.saleOrder))
	for _, id := range s.saleOrder {
		sale := s.sales[id]
		if !filter.Match(*sale) {
			continue
		}
		row := *sale
		row.Items = nil
		sales = append(sales, row)
	}
	return sales, nil
}

func (s *Store) CreateCollection(_ context.Context, collection domain.Collection) (*domain.Collection, *domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[collection.SaleID]
	if !ok {
		return nil, nil, ledger.NotFound("sale", collection.SaleID)
	}
	paid, err := ledger.CheckCollection(*sale, collection.AmountCollected)
	if err != nil {
		return nil, nil, err
	}

	if collection.ID == "" {
		collection.ID = xid.New("col")
	}
	if collection.BusinessID == "" {
		collection.BusinessID = sale.BusinessID
	}
	if collection.CreatedAt.IsZero() {
		collection.CreatedAt = time.Now().UTC()
	}
	sale.AmountPaid = paid
	s.collections[collection.ID] = collection
	s.collectionOrder = append(s.collectionOrder, collection.ID)

	created := collection
	return &created, cloneSale(sale), nil
}

func (s *Store) GetCollection(_ context.Context, id string) (*domain.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	collection, ok := s.collections[id]
	if !ok {
		return nil, ledger.NotFound("collection", id)
	}
	return &collection, nil
}

func (s *Store) UpdateCollection(_ context.Context, id string, patch store.CollectionPatch) (*domain.Collection, *domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	collection, ok := s.collections[id]
	if !ok {
		return nil, nil, ledger.NotFound("collection", id)
	}
	sale, ok := s.sales[collection.SaleID]
	if !ok {
		return nil, nil, ledger.NotFound("sale", collection.SaleID)
	}

	paid := sale.AmountPaid
	if patch.Amount != nil {
		var err error
		paid, err = ledger.RecheckCollection(*sale, collection.AmountCollected, *patch.Amount)
		if err != nil {
			return nil, nil, err
		}
		collection.AmountCollected = *patch.Amount
	}
	if patch.CollectionDate != nil {
		collection.CollectionDate = ledger.Day(*patch.CollectionDate)
	}
	if patch.PaymentMethod != nil {
		collection.PaymentMethod = *patch.PaymentMethod
	}
	if patch.Notes != nil {
		collection.Notes = *patch.Notes
	}

	sale.AmountPaid = paid
	s.collections[id] = collection
	updated := collection
	return &updated, cloneSale(sale), nil
}

func (s *Store) DeleteCollection(_ context.Context, id string) (*domain.Collection, *domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	collection, ok := s.collections[id]
	if !ok {
		return nil, nil, ledger.NotFound("collection", id)
	}
	sale, ok := s.sales[collection.SaleID]
	if !ok {
		return nil, nil, ledger.NotFound("sale", collection.SaleID)
	}
	paid, err := ledger.ReverseCollection(*sale, collection.AmountCollected)
	if err != nil {
		return nil, nil, err
	}

	sale.AmountPaid = paid
	delete(s.collections, id)
	s.collectionOrder = slices.DeleteFunc(s.collectionOrder, func(cid string) bool { return cid == id })
	return &collection, cloneSale(sale), nil
}

func (s *Store) ListCollections(_ context.Context, filter store.CollectionFilter) ([]domain.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Collection, 0, len(s.collectionOrder))
	for _, id := range s.collectionOrder {
		c := s.collections[id]
		if filter.Match(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) CreateDamage(_ context.Context, draft store.DamageDraft) (*domain.Damage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	damage := draft.Damage
	lines := draft.Lines.Lines()
	snapshot := make(map[string]domain.Product, len(lines))
	for _, line := range lines {
		product, ok := s.products[line.ProductID]
		if !ok || (damage.BusinessID != "" && product.BusinessID != damage.BusinessID) {
			return nil, ledger.NotFound("product", line.ProductID)
		}
		snapshot[line.ProductID] = product
	}
	if err := ledger.CheckDamageStock(draft.Lines, snapshot); err != nil {
		return nil, err
	}
	items, total, err := ledger.PriceDamage(draft.Lines, snapshot)
	if err != nil {
		return nil, err
	}

	if damage.ID == "" {
		damage.ID = xid.New("dmg")
	}
	if damage.CreatedAt.IsZero() {
		damage.CreatedAt = time.Now().UTC()
	}
	for i := range items {
		items[i].DamageID = damage.ID
	}
	damage.Items = items
	damage.TotalLoss = total

	for _, line := range lines {
		product := s.products[line.ProductID]
		product.StockQuantity -= line.Quantity
		s.products[line.ProductID] = product
	}
	s.damages = append(s.damages, cloneDamage(damage))
	return &damage, nil
}

func (s *Store) ListDamages(_ context.Context, filter store.DamageFilter) ([]domain.Damage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Damage, 0, len(s.damages))
	for _, d := range s.damages {
		if filter.Match(d) {
			out = append(out, cloneDamage(d))
		}
	}
	return out, nil
}

func cloneSale(src *domain.Sale) *domain.Sale {
	if src == nil {
		return nil
	}
	dup := *src
	dup.Items = make([]domain.SaleItem, len(src.Items))
	copy(dup.Items, src.Items)
	return &dup
}

func cloneDamage(src domain.Damage) domain.Damage {
	dup := src
	dup.Items = make([]domain.DamageItem, len(src.Items))
	copy(dup.Items, src.Items)
	return dup
}

var _ store.Repository = (*Store)(nil)

// Package sqlite is a single-file store.Repository for one-till deployments.
// The pool holds one connection, so transactions are serialised by the pool
// and every query inside a transaction must go through that transaction.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/domain"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/ledger"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/money"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/store"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/xid"
)

var schema = []string{
	`PRAGMA foreign_keys = ON;`,
	`CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY,
		password TEXT NOT NULL,
		role TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		business_id TEXT NOT NULL,
		name TEXT NOT NULL,
		cost_price INTEGER NOT NULL CHECK (cost_price >= 0),
		selling_price INTEGER NOT NULL CHECK (selling_price >= 0),
		stock_quantity INTEGER NOT NULL CHECK (stock_quantity >= 0),
		created_at TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		business_id TEXT NOT NULL,
		name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS sales (
		id TEXT PRIMARY KEY,
		business_id TEXT NOT NULL,
		customer_id TEXT REFERENCES customers(id),
		seller_id TEXT NOT NULL,
		sale_date TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		total_amount INTEGER NOT NULL,
		discount_amount INTEGER NOT NULL,
		final_amount INTEGER NOT NULL,
		amount_paid INTEGER NOT NULL CHECK (amount_paid >= 0 AND amount_paid <= final_amount),
		notes TEXT NOT NULL DEFAULT '',
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS sale_items (
		sale_id TEXT NOT NULL REFERENCES sales(id),
		product_id TEXT NOT NULL REFERENCES products(id),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price INTEGER NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (sale_id, product_id)
	);`,
	`CREATE TABLE IF NOT EXISTS collections (
		id TEXT PRIMARY KEY,
		sale_id TEXT NOT NULL REFERENCES sales(id),
		business_id TEXT NOT NULL,
		collected_by TEXT NOT NULL,
		amount_collected INTEGER NOT NULL CHECK (amount_collected > 0),
		collection_date TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_collections_sale ON collections (sale_id);`,
	`CREATE TABLE IF NOT EXISTS damages (
		id TEXT PRIMARY KEY,
		business_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		total_loss INTEGER NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS damage_items (
		damage_id TEXT NOT NULL REFERENCES damages(id),
		product_id TEXT NOT NULL REFERENCES products(id),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		loss_amount INTEGER NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (damage_id, product_id)
	);`,
}

type Store struct {
	db *sqlx.DB
}

// New opens dsn and creates the schema when it is missing.
func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type productRow struct {
	ID            string       `db:"id"`
	BusinessID    string       `db:"business_id"`
	Name          string       `db:"name"`
	CostPrice     money.Amount `db:"cost_price"`
	SellingPrice  money.Amount `db:"selling_price"`
	StockQuantity int          `db:"stock_quantity"`
	CreatedAt     string       `db:"created_at"`
}

func (r productRow) toDomain() (domain.Product, error) {
	createdAt, err := parseTime(r.CreatedAt)
	if err != nil {
		return domain.Product{}, fmt.Errorf("product %s: %w", r.ID, err)
	}
	return domain.Product{
		ID:            r.ID,
		BusinessID:    r.BusinessID,
		Name:          r.Name,
		CostPrice:     r.CostPrice,
		SellingPrice:  r.SellingPrice,
		StockQuantity: r.StockQuantity,
		CreatedAt:     createdAt,
	}, nil
}

type customerRow struct {
	ID         string `db:"id"`
	BusinessID string `db:"business_id"`
	Name       string `db:"name"`
	Phone      string `db:"phone"`
	CreatedAt  string `db:"created_at"`
}

func (r customerRow) toDomain() (domain.Customer, error) {
	createdAt, err := parseTime(r.CreatedAt)
	if err != nil {
		return domain.Customer{}, fmt.Errorf("customer %s: %w", r.ID, err)
	}
	return domain.Customer{
		ID:         r.ID,
		BusinessID: r.BusinessID,
		Name:       r.Name,
		Phone:      r.Phone,
		CreatedAt:  createdAt,
	}, nil
}

type userRow struct {
	Username  string `db:"username"`
	Password  string `db:"password"`
	Role      string `db:"role"`
	Active    bool   `db:"active"`
	CreatedAt string `db:"created_at"`
}

type saleRow struct {
	ID             string         `db:"id"`
	BusinessID     string         `db:"business_id"`
	CustomerID     sql.NullString `db:"customer_id"`
	SellerID       string         `db:"seller_id"`
	SaleDate       string         `db:"sale_date"`
	PaymentMethod  string         `db:"payment_method"`
	TotalAmount    money.Amount   `db:"total_amount"`
	DiscountAmount money.Amount   `db:"discount_amount"`
	FinalAmount    money.Amount   `db:"final_amount"`
	AmountPaid     money.Amount   `db:"amount_paid"`
	Notes          string         `db:"notes"`
	IdempotencyKey sql.NullString `db:"idempotency_key"`
	CreatedAt      string         `db:"created_at"`
}

func (r saleRow) toDomain() (domain.Sale, error) {
	saleDate, err := parseDate(r.SaleDate)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("sale %s: %w", r.ID, err)
	}
	createdAt, err := parseTime(r.CreatedAt)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("sale %s: %w", r.ID, err)
	}
	return domain.Sale{
		ID:             r.ID,
		BusinessID:     r.BusinessID,
		CustomerID:     r.CustomerID.String,
		SellerID:       r.SellerID,
		SaleDate:       saleDate,
		PaymentMethod:  r.PaymentMethod,
		TotalAmount:    r.TotalAmount,
		DiscountAmount: r.DiscountAmount,
		FinalAmount:    r.FinalAmount,
		AmountPaid:     r.AmountPaid,
		Notes:          r.Notes,
		IdempotencyKey: r.IdempotencyKey.String,
		CreatedAt:      createdAt,
	}, nil
}

type collectionRow struct {
	ID              string       `db:"id"`
	SaleID          string       `db:"sale_id"`
	BusinessID      string       `db:"business_id"`
	CollectedBy     string       `db:"collected_by"`
	AmountCollected money.Amount `db:"amount_collected"`
	CollectionDate  string       `db:"collection_date"`
	PaymentMethod   string       `db:"payment_method"`
	Notes           string       `db:"notes"`
	CreatedAt       string       `db:"created_at"`
}

func (r collectionRow) toDomain() (domain.Collection, error) {
	collectionDate, err := parseDate(r.CollectionDate)
	if err != nil {
		return domain.Collection{}, fmt.Errorf("collection %s: %w", r.ID, err)
	}
	createdAt, err := parseTime(r.CreatedAt)
	if err != nil {
		return domain.Collection{}, fmt.Errorf("collection %s: %w", r.ID, err)
	}
	return domain.Collection{
		ID:              r.ID,
		SaleID:          r.SaleID,
		BusinessID:      r.BusinessID,
		CollectedBy:     r.CollectedBy,
		AmountCollected: r.AmountCollected,
		CollectionDate:  collectionDate,
		PaymentMethod:   r.PaymentMethod,
		Notes:           r.Notes,
		CreatedAt:       createdAt,
	}, nil
}

type damageRow struct {
	ID         string       `db:"id"`
	BusinessID string       `db:"business_id"`
	UserID     string       `db:"user_id"`
	TotalLoss  money.Amount `db:"total_loss"`
	Note       string       `db:"note"`
	CreatedAt  string       `db:"created_at"`
}

const (
	productColumns    = `id, business_id, name, cost_price, selling_price, stock_quantity, created_at`
	saleColumns       = `id, business_id, customer_id, seller_id, sale_date, payment_method, total_amount, discount_amount, final_amount, amount_paid, notes, idempotency_key, created_at`
	collectionColumns = `id, sale_id, business_id, collected_by, amount_collected, collection_date, payment_method, notes, created_at`
)

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.StockQuantity < 0 {
		return nil, store.ErrInvalidRecord
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if exists, err := rowExists(ctx, tx, `SELECT 1 FROM products WHERE id = ?`, product.ID); err != nil {
		return nil, err
	} else if exists {
		return nil, store.ErrAlreadyExists
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO products (`+productColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		product.ID, product.BusinessID, product.Name, product.CostPrice, product.SellingPrice, product.StockQuantity, formatTime(product.CreatedAt)); err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return getProduct(ctx, s.db, id)
}

func getProduct(ctx context.Context, q sqlx.QueryerContext, id string) (*domain.Product, error) {
	var row productRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NotFound("product", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	product, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Store) ListProducts(ctx context.Context, businessID string) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products`
	args := []any{}
	if businessID != "" {
		query += ` WHERE business_id = ?`
		args = append(args, businessID)
	}
	query += ` ORDER BY name, id`

	var rows []productRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	products := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		product, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" {
		return nil, store.ErrInvalidRecord
	}
	res, err := s.db.ExecContext(ctx, `UPDATE products SET name = ?, cost_price = ?, selling_price = ? WHERE id = ?`,
		product.Name, product.CostPrice, product.SellingPrice, product.ID)
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ledger.NotFound("product", product.ID)
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) AdjustStock(ctx context.Context, productID string, delta int) (*domain.Product, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	product, err := getProduct(ctx, tx, productID)
	if err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx, `UPDATE products SET stock_quantity = stock_quantity + ? WHERE id = ? AND stock_quantity + ? >= 0`,
		delta, productID, delta)
	if err != nil {
		return nil, fmt.Errorf("adjust stock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, &ledger.InsufficientStockError{ProductID: productID, Requested: -delta, Available: product.StockQuantity}
	}
	product, err = getProduct(ctx, tx, productID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return product, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidRecord
	}
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if exists, err := rowExists(ctx, tx, `SELECT 1 FROM customers WHERE id = ?`, customer.ID); err != nil {
		return nil, err
	} else if exists {
		return nil, store.ErrAlreadyExists
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO customers (id, business_id, name, phone, created_at) VALUES (?, ?, ?, ?, ?)`,
		customer.ID, customer.BusinessID, customer.Name, customer.Phone, formatTime(customer.CreatedAt)); err != nil {
		return nil, fmt.Errorf("insert customer: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &customer, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	var row customerRow
	err := s.db.GetContext(ctx, &row, `SELECT id, business_id, name, phone, created_at FROM customers WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NotFound("customer", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	customer, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (s *Store) ListCustomers(ctx context.Context, businessID string) ([]domain.Customer, error) {
	query := `SELECT id, business_id, name, phone, created_at FROM customers`
	args := []any{}
	if businessID != "" {
		query += ` WHERE business_id = ?`
		args = append(args, businessID)
	}
	query += ` ORDER BY name, id`

	var rows []customerRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	customers := make([]domain.Customer, 0, len(rows))
	for _, row := range rows {
		customer, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		customers = append(customers, customer)
	}
	return customers, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidRecord
	}
	if user.Role == "" {
		user.Role = domain.RoleSeller
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if exists, err := rowExists(ctx, tx, `SELECT 1 FROM users WHERE username = ?`, username); err != nil {
		return err
	} else if exists {
		return store.ErrAlreadyExists
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO users (username, password, role, active, created_at) VALUES (?, ?, ?, 1, ?)`,
		username, user.Password, user.Role, formatTime(user.CreatedAt)); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return tx.Commit()
}

func (s *Store) GetUser(ctx context.Context, username string) (*domain.UserAccount, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, `SELECT username, password, role, active, created_at FROM users WHERE username = ?`,
		strings.ToLower(strings.TrimSpace(username)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NotFound("user", username)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	createdAt, err := parseTime(row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", row.Username, err)
	}
	return &domain.UserAccount{
		Username:  row.Username,
		Password:  row.Password,
		Role:      row.Role,
		Active:    row.Active,
		CreatedAt: createdAt,
	}, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT username, password, role, active, created_at FROM users ORDER BY username`); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make([]domain.UserAccount, 0, len(rows))
	for _, row := range rows {
		createdAt, err := parseTime(row.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", row.Username, err)
		}
		users = append(users, domain.UserAccount{
			Username:  row.Username,
			Password:  row.Password,
			Role:      row.Role,
			Active:    row.Active,
			CreatedAt: createdAt,
		})
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidRecord
	}
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password = ? WHERE username = ?`, password, username)
	if err != nil {
		return fmt.Errorf("update user password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.NotFound("user", username)
	}
	return nil
}

func (s *Store) CreateSale(ctx context.Context, draft store.SaleDraft) (*domain.Sale, bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback() }()

	sale := draft.Sale
	if key := sale.IdempotencyKey; key != "" {
		var id string
		err := tx.GetContext(ctx, &id, `SELECT id FROM sales WHERE idempotency_key = ?`, key)
		if err == nil {
			existing, err := loadSale(ctx, tx, id)
			return existing, err == nil, err
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, false, fmt.Errorf("lookup idempotency key: %w", err)
		}
	}

	snapshot, err := productSnapshot(ctx, tx, draft.Cart.ProductIDs(), sale.BusinessID)
	if err != nil {
		return nil, false, err
	}
	if err := ledger.CheckStock(draft.Cart.Lines(), snapshot); err != nil {
		return nil, false, err
	}
	priced, err := ledger.PriceSale(draft.Cart, snapshot, sale.DiscountAmount, sale.AmountPaid)
	if err != nil {
		return nil, false, err
	}
	for _, id := range draft.Cart.ProductIDs() {
		if err := decrementStock(ctx, tx, id, draft.Cart.Quantity(id)); err != nil {
			return nil, false, err
		}
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	sale = ledger.ApplyPricing(sale, priced)

	if _, err := tx.ExecContext(ctx, `INSERT INTO sales (`+saleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sale.ID, sale.BusinessID, nullString(sale.CustomerID), sale.SellerID, sale.SaleDate.Format(domain.DateLayout),
		sale.PaymentMethod, sale.TotalAmount, sale.DiscountAmount, sale.FinalAmount, sale.AmountPaid,
		sale.Notes, nullString(sale.IdempotencyKey), formatTime(sale.CreatedAt)); err != nil {
		return nil, false, fmt.Errorf("insert sale: %w", err)
	}
	for i, item := range sale.Items {
		if _, err := tx.ExecContext(ctx, `INSERT INTO sale_items (sale_id, product_id, quantity, unit_price, position) VALUES (?, ?, ?, ?, ?)`,
			sale.ID, item.ProductID, item.Quantity, item.UnitPrice, i); err != nil {
			return nil, false, fmt.Errorf("insert sale item: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return &sale, false, nil
}

// productSnapshot reads the given products. A product of another business
// is reported as missing.
func productSnapshot(ctx context.Context, q sqlx.QueryerContext, ids []string, businessID string) (map[string]domain.Product, error) {
	snapshot := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		product, err := getProduct(ctx, q, id)
		if err != nil {
			return nil, err
		}
		if businessID != "" && product.BusinessID != businessID {
			return nil, ledger.NotFound("product", id)
		}
		snapshot[id] = *product
	}
	return snapshot, nil
}

func decrementStock(ctx context.Context, tx *sqlx.Tx, productID string, qty int) error {
	res, err := tx.ExecContext(ctx, `UPDATE products SET stock_quantity = stock_quantity - ? WHERE id = ? AND stock_quantity >= ?`,
		qty, productID, qty)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		product, err := getProduct(ctx, tx, productID)
		if err != nil {
			return err
		}
		return &ledger.InsufficientStockError{ProductID: productID, Requested: qty, Available: product.StockQuantity}
	}
	return nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return loadSale(ctx, s.db, id)
}

func loadSale(ctx context.Context, q sqlx.QueryerContext, id string) (*domain.Sale, error) {
	var row saleRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT `+saleColumns+` FROM sales WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NotFound("sale", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get sale: %w", err)
	}
	sale, err := row.toDomain()
	if err != nil {
		return nil, err
	}

	var items []struct {
		ProductID string       `db:"product_id"`
		Quantity  int          `db:"quantity"`
		UnitPrice money.Amount `db:"unit_price"`
	}
	if err := sqlx.SelectContext(ctx, q, &items, `SELECT product_id, quantity, unit_price FROM sale_items WHERE sale_id = ? ORDER BY position`, id); err != nil {
		return nil, fmt.Errorf("get sale items: %w", err)
	}
	sale.Items = make([]domain.SaleItem, 0, len(items))
	for _, item := range items {
		sale.Items = append(sale.Items, domain.SaleItem{
			SaleID:    id,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, filter store.SaleFilter) ([]domain.Sale, error) {
	var (
		where []string
		args  []any
	)
	if filter.BusinessID != "" {
		where = append(where, `business_id = ?`)
		args = append(args, filter.BusinessID)
	}
	if filter.CustomerID != "" {
		where = append(where, `customer_id = ?`)
		args = append(args, filter.CustomerID)
	}
	if !filter.From.IsZero() {
		where = append(where, `sale_date >= ?`)
		args = append(args, ledger.Day(filter.From).Format(domain.DateLayout))
	}
	if !filter.To.IsZero() {
		where = append(where, `sale_date <= ?`)
		args = append(args, ledger.Day(filter.To).Format(domain.DateLayout))
	}
	if filter.OnlyDue {
		where = append(where, `final_amount > amount_paid`)
	}

	query := `SELECT ` + saleColumns + ` FROM sales`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY rowid`

	var rows []saleRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	sales := make([]domain.Sale, 0, len(rows))
	for _, row := range rows {
		sale, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, nil
}

func (s *Store) CreateCollection(ctx context.Context, collection domain.Collection) (*domain.Collection, *domain.Sale, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	sale, err := loadSale(ctx, tx, collection.SaleID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := ledger.CheckCollection(*sale, collection.AmountCollected); err != nil {
		return nil, nil, err
	}
	if err := shiftAmountPaid(ctx, tx, sale, collection.AmountCollected, collection.AmountCollected); err != nil {
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
	collection.CollectionDate = ledger.Day(collection.CollectionDate)
	if _, err := tx.ExecContext(ctx, `INSERT INTO collections (`+collectionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		collection.ID, collection.SaleID, collection.BusinessID, collection.CollectedBy, collection.AmountCollected,
		collection.CollectionDate.Format(domain.DateLayout), collection.PaymentMethod, collection.Notes,
		formatTime(collection.CreatedAt)); err != nil {
		return nil, nil, fmt.Errorf("insert collection: %w", err)
	}

	updated, err := loadSale(ctx, tx, sale.ID)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return &collection, updated, nil
}

// shiftAmountPaid adds delta to the sale's amount_paid only while the result
// stays within [0, final_amount]. requested is the amount reported when the
// upper bound is hit.
func shiftAmountPaid(ctx context.Context, tx *sqlx.Tx, sale *domain.Sale, delta, requested money.Amount) error {
	res, err := tx.ExecContext(ctx, `UPDATE sales SET amount_paid = amount_paid + ?
		WHERE id = ? AND amount_paid + ? >= 0 AND amount_paid + ? <= final_amount`,
		delta, sale.ID, delta, delta)
	if err != nil {
		return fmt.Errorf("update amount paid: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	current, err := loadSale(ctx, tx, sale.ID)
	if err != nil {
		return err
	}
	if delta < 0 {
		return &ledger.NegativeBalanceError{SaleID: sale.ID, AmountPaid: current.AmountPaid, Delta: delta}
	}
	return &ledger.AmountExceedsDueError{SaleID: sale.ID, Due: current.Due() + requested - delta, Requested: requested}
}

func (s *Store) GetCollection(ctx context.Context, id string) (*domain.Collection, error) {
	return loadCollection(ctx, s.db, id)
}

func loadCollection(ctx context.Context, q sqlx.QueryerContext, id string) (*domain.Collection, error) {
	var row collectionRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT `+collectionColumns+` FROM collections WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NotFound("collection", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get collection: %w", err)
	}
	collection, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &collection, nil
}

func (s *Store) UpdateCollection(ctx context.Context, id string, patch store.CollectionPatch) (*domain.Collection, *domain.Sale, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	collection, err := loadCollection(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}
	sale, err := loadSale(ctx, tx, collection.SaleID)
	if err != nil {
		return nil, nil, err
	}

	if patch.Amount != nil {
		if _, err := ledger.RecheckCollection(*sale, collection.AmountCollected, *patch.Amount); err != nil {
			return nil, nil, err
		}
		if delta := *patch.Amount - collection.AmountCollected; delta != 0 {
			if err := shiftAmountPaid(ctx, tx, sale, delta, *patch.Amount); err != nil {
				return nil, nil, err
			}
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

	if _, err := tx.ExecContext(ctx, `UPDATE collections SET amount_collected = ?, collection_date = ?, payment_method = ?, notes = ? WHERE id = ?`,
		collection.AmountCollected, collection.CollectionDate.Format(domain.DateLayout), collection.PaymentMethod, collection.Notes, id); err != nil {
		return nil, nil, fmt.Errorf("update collection: %w", err)
	}
	updated, err := loadSale(ctx, tx, sale.ID)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return collection, updated, nil
}

func (s *Store) DeleteCollection(ctx context.Context, id string) (*domain.Collection, *domain.Sale, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	collection, err := loadCollection(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}
	sale, err := loadSale(ctx, tx, collection.SaleID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := ledger.ReverseCollection(*sale, collection.AmountCollected); err != nil {
		return nil, nil, err
	}
	if err := shiftAmountPaid(ctx, tx, sale, -collection.AmountCollected, 0); err != nil {
		return nil, nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, id); err != nil {
		return nil, nil, fmt.Errorf("delete collection: %w", err)
	}

	updated, err := loadSale(ctx, tx, sale.ID)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return collection, updated, nil
}

func (s *Store) ListCollections(ctx context.Context, filter store.CollectionFilter) ([]domain.Collection, error) {
	var (
		where []string
		args  []any
	)
	if filter.BusinessID != "" {
		where = append(where, `business_id = ?`)
		args = append(args, filter.BusinessID)
	}
	if len(filter.SaleIDs) > 0 {
		where = append(where, `sale_id IN (?)`)
		args = append(args, filter.SaleIDs)
	}
	if !filter.From.IsZero() {
		where = append(where, `collection_date >= ?`)
		args = append(args, ledger.Day(filter.From).Format(domain.DateLayout))
	}
	if !filter.To.IsZero() {
		where = append(where, `collection_date <= ?`)
		args = append(args, ledger.Day(filter.To).Format(domain.DateLayout))
	}

	query := `SELECT ` + collectionColumns + ` FROM collections`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY rowid`

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("build collection query: %w", err)
	}
	var rows []collectionRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	out := make([]domain.Collection, 0, len(rows))
	for _, row := range rows {
		collection, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, collection)
	}
	return out, nil
}

func (s *Store) CreateDamage(ctx context.Context, draft store.DamageDraft) (*domain.Damage, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	damage := draft.Damage
	snapshot, err := productSnapshot(ctx, tx, draft.Lines.ProductIDs(), damage.BusinessID)
	if err != nil {
		return nil, err
	}
	if err := ledger.CheckDamageStock(draft.Lines, snapshot); err != nil {
		return nil, err
	}
	items, total, err := ledger.PriceDamage(draft.Lines, snapshot)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if err := decrementStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return nil, err
		}
	}

	if damage.ID == "" {
		damage.ID = xid.New("dmg")
	}
	if damage.CreatedAt.IsZero() {
		damage.CreatedAt = time.Now().UTC()
	}
	damage.TotalLoss = total
	if _, err := tx.ExecContext(ctx, `INSERT INTO damages (id, business_id, user_id, total_loss, note, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		damage.ID, damage.BusinessID, damage.UserID, damage.TotalLoss, damage.Note, formatTime(damage.CreatedAt)); err != nil {
		return nil, fmt.Errorf("insert damage: %w", err)
	}
	for i := range items {
		items[i].DamageID = damage.ID
		if _, err := tx.ExecContext(ctx, `INSERT INTO damage_items (damage_id, product_id, quantity, loss_amount, position) VALUES (?, ?, ?, ?, ?)`,
			damage.ID, items[i].ProductID, items[i].Quantity, items[i].LossAmount, i); err != nil {
			return nil, fmt.Errorf("insert damage item: %w", err)
		}
	}
	damage.Items = items
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &damage, nil
}

func (s *Store) ListDamages(ctx context.Context, filter store.DamageFilter) ([]domain.Damage, error) {
	query := `SELECT id, business_id, user_id, total_loss, note, created_at FROM damages`
	args := []any{}
	if filter.BusinessID != "" {
		query += ` WHERE business_id = ?`
		args = append(args, filter.BusinessID)
	}
	query += ` ORDER BY rowid`

	var rows []damageRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list damages: %w", err)
	}

	out := make([]domain.Damage, 0, len(rows))
	for _, row := range rows {
		createdAt, err := parseTime(row.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("damage %s: %w", row.ID, err)
		}
		damage := domain.Damage{
			ID:         row.ID,
			BusinessID: row.BusinessID,
			UserID:     row.UserID,
			TotalLoss:  row.TotalLoss,
			Note:       row.Note,
			CreatedAt:  createdAt,
		}
		// created_at is a full timestamp, so day bounds are applied here.
		if !filter.Match(damage) {
			continue
		}
		var items []struct {
			ProductID  string       `db:"product_id"`
			Quantity   int          `db:"quantity"`
			LossAmount money.Amount `db:"loss_amount"`
		}
		if err := s.db.SelectContext(ctx, &items, `SELECT product_id, quantity, loss_amount FROM damage_items WHERE damage_id = ? ORDER BY position`, row.ID); err != nil {
			return nil, fmt.Errorf("list damage items: %w", err)
		}
		for _, item := range items {
			damage.Items = append(damage.Items, domain.DamageItem{
				DamageID:   row.ID,
				ProductID:  item.ProductID,
				Quantity:   item.Quantity,
				LossAmount: item.LossAmount,
			})
		}
		out = append(out, damage)
	}
	return out, nil
}

func rowExists(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) (bool, error) {
	var one int
	err := sqlx.GetContext(ctx, q, &one, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("stored date %q: %w", s, err)
	}
	return t, nil
}

var _ store.Repository = (*Store)(nil)

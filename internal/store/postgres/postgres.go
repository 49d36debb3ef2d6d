package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/domain"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/ledger"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/store"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

const (
	productColumns    = `id, business_id, name, cost_price, selling_price, stock_quantity, created_at`
	customerColumns   = `id, business_id, name, phone, created_at`
	saleColumns       = `id, business_id, customer_id, seller_id, sale_date, payment_method, total_amount, discount_amount, final_amount, amount_paid, notes, idempotency_key, created_at`
	collectionColumns = `id, sale_id, business_id, collected_by, amount_collected, collection_date, payment_method, notes, created_at`
)

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.BusinessID, &p.Name, &p.CostPrice, &p.SellingPrice, &p.StockQuantity, &p.CreatedAt)
	p.CreatedAt = p.CreatedAt.UTC()
	return p, err
}

func scanCustomer(row rowScanner) (domain.Customer, error) {
	var c domain.Customer
	err := row.Scan(&c.ID, &c.BusinessID, &c.Name, &c.Phone, &c.CreatedAt)
	c.CreatedAt = c.CreatedAt.UTC()
	return c, err
}

func scanSale(row rowScanner) (domain.Sale, error) {
	var (
		sale           domain.Sale
		customerID     sql.NullString
		idempotencyKey sql.NullString
	)
	err := row.Scan(
		&sale.ID, &sale.BusinessID, &customerID, &sale.SellerID, &sale.SaleDate, &sale.PaymentMethod,
		&sale.TotalAmount, &sale.DiscountAmount, &sale.FinalAmount, &sale.AmountPaid,
		&sale.Notes, &idempotencyKey, &sale.CreatedAt,
	)
	sale.CustomerID = customerID.String
	sale.IdempotencyKey = idempotencyKey.String
	sale.SaleDate = ledger.Day(sale.SaleDate)
	sale.CreatedAt = sale.CreatedAt.UTC()
	return sale, err
}

func scanCollection(row rowScanner) (domain.Collection, error) {
	var c domain.Collection
	err := row.Scan(&c.ID, &c.SaleID, &c.BusinessID, &c.CollectedBy, &c.AmountCollected, &c.CollectionDate, &c.PaymentMethod, &c.Notes, &c.CreatedAt)
	c.CollectionDate = ledger.Day(c.CollectionDate)
	c.CreatedAt = c.CreatedAt.UTC()
	return c, err
}

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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, product.ID, product.BusinessID, product.Name, product.CostPrice, product.SellingPrice, product.StockQuantity, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrAlreadyExists
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return getProduct(ctx, s.db, id, false)
}

func getProduct(ctx context.Context, q queryer, id string, lock bool) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	product, err := scanProduct(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.NotFound("product", id)
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) ListProducts(ctx context.Context, businessID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE ($1 = '' OR business_id = $1)
		ORDER BY name, id
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" {
		return nil, store.ErrInvalidRecord
	}

	updated, err := scanProduct(s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, cost_price = $3, selling_price = $4
		WHERE id = $1
		RETURNING `+productColumns, product.ID, product.Name, product.CostPrice, product.SellingPrice))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.NotFound("product", product.ID)
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) AdjustStock(ctx context.Context, productID string, delta int) (*domain.Product, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	product, err := getProduct(ctx, tx, productID, true)
	if err != nil {
		return nil, err
	}
	if product.StockQuantity+delta < 0 {
		return nil, &ledger.InsufficientStockError{ProductID: productID, Requested: -delta, Available: product.StockQuantity}
	}

	updated, err := scanProduct(tx.QueryRowContext(ctx, `
		UPDATE products SET stock_quantity = stock_quantity + $2
		WHERE id = $1
		RETURNING `+productColumns, productID, delta))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &updated, nil
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (`+customerColumns+`)
		VALUES ($1,$2,$3,$4,$5)
	`, customer.ID, customer.BusinessID, customer.Name, customer.Phone, customer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrAlreadyExists
		}
		return nil, err
	}
	created := customer
	return &created, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	customer, err := scanCustomer(s.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.NotFound("customer", id)
		}
		return nil, err
	}
	return &customer, nil
}

func (s *Store) ListCustomers(ctx context.Context, businessID string) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE ($1 = '' OR business_id = $1)
		ORDER BY name, id
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,true,$4)
	`, username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username))).Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.NotFound("user", username)
		}
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidRecord
	}
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password = $2 WHERE username = $1`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ledger.NotFound("user", username)
	}
	return nil
}

// CreateSale locks the cart's product rows in id order, prices the cart
// against them and decrements stock in one transaction. A concurrent insert
// with the same idempotency key surfaces as a unique violation, after which
// the winner's sale is returned.
func (s *Store) CreateSale(ctx context.Context, draft store.SaleDraft) (*domain.Sale, bool, error) {
	sale := draft.Sale
	if sale.IdempotencyKey != "" {
		existing, err := s.saleByIdempotencyKey(ctx, sale.IdempotencyKey)
		if err == nil {
			return existing, true, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, false, err
		}
	}

	created, err := s.insertSale(ctx, draft)
	if err != nil {
		if sale.IdempotencyKey != "" && isUniqueViolation(err) {
			existing, lookupErr := s.saleByIdempotencyKey(ctx, sale.IdempotencyKey)
			if lookupErr != nil {
				return nil, false, lookupErr
			}
			return existing, true, nil
		}
		return nil, false, err
	}
	return created, false, nil
}

func (s *Store) insertSale(ctx context.Context, draft store.SaleDraft) (*domain.Sale, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	sale := draft.Sale
	snapshot, err := lockProducts(ctx, tx, draft.Cart.ProductIDs(), sale.BusinessID)
	if err != nil {
		return nil, err
	}
	if err := ledger.CheckStock(draft.Cart.Lines(), snapshot); err != nil {
		return nil, err
	}
	priced, err := ledger.PriceSale(draft.Cart, snapshot, sale.DiscountAmount, sale.AmountPaid)
	if err != nil {
		return nil, err
	}
	for _, id := range draft.Cart.ProductIDs() {
		if err := decrementStock(ctx, tx, id, draft.Cart.Quantity(id)); err != nil {
			return nil, err
		}
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	sale = ledger.ApplyPricing(sale, priced)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (`+saleColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`,
		sale.ID, sale.BusinessID, nullString(sale.CustomerID), sale.SellerID, sale.SaleDate, sale.PaymentMethod,
		sale.TotalAmount, sale.DiscountAmount, sale.FinalAmount, sale.AmountPaid,
		sale.Notes, nullString(sale.IdempotencyKey), sale.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	for i, item := range sale.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, product_id, quantity, unit_price, position)
			VALUES ($1,$2,$3,$4,$5)
		`, sale.ID, item.ProductID, item.Quantity, item.UnitPrice, i); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) saleByIdempotencyKey(ctx context.Context, key string) (*domain.Sale, error) {
	var id string
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM sales WHERE idempotency_key = $1`, key).Scan(&id); err != nil {
		return nil, err
	}
	return loadSale(ctx, s.db, id, false)
}

// lockProducts takes row locks on ids, which callers pass sorted so that
// concurrent carts acquire them in the same order.
func lockProducts(ctx context.Context, tx *sql.Tx, ids []string, businessID string) (map[string]domain.Product, error) {
	snapshot := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		product, err := getProduct(ctx, tx, id, true)
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

func decrementStock(ctx context.Context, tx *sql.Tx, productID string, qty int) error {
	var remaining int
	err := tx.QueryRowContext(ctx, `
		UPDATE products SET stock_quantity = stock_quantity - $2
		WHERE id = $1 AND stock_quantity >= $2
		RETURNING stock_quantity
	`, productID, qty).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		product, getErr := getProduct(ctx, tx, productID, false)
		if getErr != nil {
			return getErr
		}
		return &ledger.InsufficientStockError{ProductID: productID, Requested: qty, Available: product.StockQuantity}
	}
	return err
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return loadSale(ctx, s.db, id, false)
}

func loadSale(ctx context.Context, q queryer, id string, lock bool) (*domain.Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	sale, err := scanSale(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.NotFound("sale", id)
		}
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT product_id, quantity, unit_price
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY position
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sale.Items = make([]domain.SaleItem, 0, 4)
	for rows.Next() {
		item := domain.SaleItem{SaleID: id}
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		sale.Items = append(sale.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, filter store.SaleFilter) ([]domain.Sale, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.BusinessID != "" {
		where = append(where, "business_id = "+arg(filter.BusinessID))
	}
	if filter.CustomerID != "" {
		where = append(where, "customer_id = "+arg(filter.CustomerID))
	}
	if !filter.From.IsZero() {
		where = append(where, "sale_date >= "+arg(ledger.Day(filter.From)))
	}
	if !filter.To.IsZero() {
		where = append(where, "sale_date <= "+arg(ledger.Day(filter.To)))
	}
	if filter.OnlyDue {
		where = append(where, "final_amount > amount_paid")
	}

	query := `SELECT ` + saleColumns + ` FROM sales`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) CreateCollection(ctx context.Context, collection domain.Collection) (*domain.Collection, *domain.Sale, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	sale, err := loadSale(ctx, tx, collection.SaleID, true)
	if err != nil {
		return nil, nil, err
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
	collection.CollectionDate = ledger.Day(collection.CollectionDate)

	if _, err := tx.ExecContext(ctx, `UPDATE sales SET amount_paid = $2 WHERE id = $1`, sale.ID, paid); err != nil {
		return nil, nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO collections (`+collectionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, collection.ID, collection.SaleID, collection.BusinessID, collection.CollectedBy, collection.AmountCollected,
		collection.CollectionDate, collection.PaymentMethod, collection.Notes, collection.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, nil, store.ErrAlreadyExists
		}
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}

	sale.AmountPaid = paid
	return &collection, sale, nil
}

func (s *Store) GetCollection(ctx context.Context, id string) (*domain.Collection, error) {
	return loadCollection(ctx, s.db, id, false)
}

func loadCollection(ctx context.Context, q queryer, id string, lock bool) (*domain.Collection, error) {
	query := `SELECT ` + collectionColumns + ` FROM collections WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	collection, err := scanCollection(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.NotFound("collection", id)
		}
		return nil, err
	}
	return &collection, nil
}

func (s *Store) UpdateCollection(ctx context.Context, id string, patch store.CollectionPatch) (*domain.Collection, *domain.Sale, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	collection, err := loadCollection(ctx, tx, id, true)
	if err != nil {
		return nil, nil, err
	}
	sale, err := loadSale(ctx, tx, collection.SaleID, true)
	if err != nil {
		return nil, nil, err
	}

	paid := sale.AmountPaid
	if patch.Amount != nil {
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

	if _, err := tx.ExecContext(ctx, `UPDATE sales SET amount_paid = $2 WHERE id = $1`, sale.ID, paid); err != nil {
		return nil, nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE collections
		SET amount_collected = $2, collection_date = $3, payment_method = $4, notes = $5
		WHERE id = $1
	`, id, collection.AmountCollected, collection.CollectionDate, collection.PaymentMethod, collection.Notes); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}

	sale.AmountPaid = paid
	return collection, sale, nil
}

func (s *Store) DeleteCollection(ctx context.Context, id string) (*domain.Collection, *domain.Sale, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	collection, err := loadCollection(ctx, tx, id, true)
	if err != nil {
		return nil, nil, err
	}
	sale, err := loadSale(ctx, tx, collection.SaleID, true)
	if err != nil {
		return nil, nil, err
	}
	paid, err := ledger.ReverseCollection(*sale, collection.AmountCollected)
	if err != nil {
		return nil, nil, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE sales SET amount_paid = $2 WHERE id = $1`, sale.ID, paid); err != nil {
		return nil, nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE id = $1`, id); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}

	sale.AmountPaid = paid
	return collection, sale, nil
}

func (s *Store) ListCollections(ctx context.Context, filter store.CollectionFilter) ([]domain.Collection, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.BusinessID != "" {
		where = append(where, "business_id = "+arg(filter.BusinessID))
	}
	if len(filter.SaleIDs) > 0 {
		where = append(where, "sale_id = ANY("+arg(filter.SaleIDs)+")")
	}
	if !filter.From.IsZero() {
		where = append(where, "collection_date >= "+arg(ledger.Day(filter.From)))
	}
	if !filter.To.IsZero() {
		where = append(where, "collection_date <= "+arg(ledger.Day(filter.To)))
	}

	query := `SELECT ` + collectionColumns + ` FROM collections`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Collection, 0, 64)
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) CreateDamage(ctx context.Context, draft store.DamageDraft) (*domain.Damage, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	damage := draft.Damage
	snapshot, err := lockProducts(ctx, tx, draft.Lines.ProductIDs(), damage.BusinessID)
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
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO damages (id, business_id, user_id, total_loss, note, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, damage.ID, damage.BusinessID, damage.UserID, damage.TotalLoss, damage.Note, damage.CreatedAt); err != nil {
		return nil, err
	}
	for i := range items {
		items[i].DamageID = damage.ID
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO damage_items (damage_id, product_id, quantity, loss_amount, position)
			VALUES ($1,$2,$3,$4,$5)
		`, damage.ID, items[i].ProductID, items[i].Quantity, items[i].LossAmount, i); err != nil {
			return nil, err
		}
	}
	damage.Items = items

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &damage, nil
}

func (s *Store) ListDamages(ctx context.Context, filter store.DamageFilter) ([]domain.Damage, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.BusinessID != "" {
		where = append(where, "business_id = "+arg(filter.BusinessID))
	}
	if !filter.From.IsZero() {
		where = append(where, "created_at >= "+arg(ledger.Day(filter.From)))
	}
	if !filter.To.IsZero() {
		where = append(where, "created_at < "+arg(ledger.Day(filter.To).AddDate(0, 0, 1)))
	}

	query := `SELECT id, business_id, user_id, total_loss, note, created_at FROM damages`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	damages := make([]domain.Damage, 0, 16)
	index := make(map[string]int)
	for rows.Next() {
		var d domain.Damage
		if err := rows.Scan(&d.ID, &d.BusinessID, &d.UserID, &d.TotalLoss, &d.Note, &d.CreatedAt); err != nil {
			_ = rows.Close()
			return nil, err
		}
		d.CreatedAt = d.CreatedAt.UTC()
		index[d.ID] = len(damages)
		damages = append(damages, d)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()
	if len(damages) == 0 {
		return damages, nil
	}

	ids := make([]string, 0, len(damages))
	for _, d := range damages {
		ids = append(ids, d.ID)
	}
	itemRows, err := s.db.QueryContext(ctx, `
		SELECT damage_id, product_id, quantity, loss_amount
		FROM damage_items
		WHERE damage_id = ANY($1)
		ORDER BY damage_id, position
	`, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var item domain.DamageItem
		if err := itemRows.Scan(&item.DamageID, &item.ProductID, &item.Quantity, &item.LossAmount); err != nil {
			return nil, err
		}
		i := index[item.DamageID]
		damages[i].Items = append(damages[i].Items, item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}
	return damages, nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ store.Repository = (*Store)(nil)

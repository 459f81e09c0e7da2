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

	"warungpos/backend/internal/domain"
	"warungpos/backend/internal/store"
	"warungpos/backend/internal/xid"
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

func (s *Store) ListProducts(ctx context.Context, tenantID string, filter domain.ProductFilter) ([]domain.Product, error) {
	search := strings.TrimSpace(filter.Search)
	if search != "" {
		search = "%" + search + "%"
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, COALESCE(category_id,''), name, COALESCE(description,''),
			COALESCE(sku,''), COALESCE(barcode,''), buy_price, sell_price, stock, min_stock,
			is_active, created_at, updated_at
		FROM products
		WHERE tenant_id = $1
			AND is_active = true
			AND ($2 = '' OR category_id = $2)
			AND ($3 = '' OR name ILIKE $3)
		ORDER BY name ASC
	`, tenantID, filter.CategoryID, search)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.TenantID, &p.CategoryID, &p.Name, &p.Description, &p.SKU, &p.Barcode, &p.BuyPrice, &p.SellPrice, &p.Stock, &p.MinStock, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		p.UpdatedAt = p.UpdatedAt.UTC()
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, tenantID string, productID string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, COALESCE(category_id,''), name, COALESCE(description,''),
			COALESCE(sku,''), COALESCE(barcode,''), buy_price, sell_price, stock, min_stock,
			is_active, created_at, updated_at
		FROM products
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, productID).Scan(&p.ID, &p.TenantID, &p.CategoryID, &p.Name, &p.Description, &p.SKU, &p.Barcode, &p.BuyPrice, &p.SellPrice, &p.Stock, &p.MinStock, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.TenantID == "" || strings.TrimSpace(product.Name) == "" || product.SellPrice < 0 || product.Stock < 0 {
		return nil, store.ErrValidation
	}

	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	product.Active = true
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.UpdatedAt = product.CreatedAt

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (
			id, tenant_id, category_id, name, description, sku, barcode,
			buy_price, sell_price, stock, min_stock, is_active, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, product.ID, product.TenantID, nullIfEmpty(product.CategoryID), product.Name, product.Description,
		nullIfEmpty(product.SKU), nullIfEmpty(product.Barcode), product.BuyPrice, product.SellPrice,
		product.Stock, product.MinStock, product.Active, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.TenantID == "" || strings.TrimSpace(product.Name) == "" || product.SellPrice < 0 || product.Stock < 0 {
		return nil, store.ErrValidation
	}

	product.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET category_id = $3, name = $4, description = $5, sku = $6, barcode = $7,
			buy_price = $8, sell_price = $9, stock = $10, min_stock = $11, is_active = $12,
			updated_at = $13
		WHERE tenant_id = $1 AND id = $2
	`, product.TenantID, product.ID, nullIfEmpty(product.CategoryID), product.Name, product.Description,
		nullIfEmpty(product.SKU), nullIfEmpty(product.Barcode), product.BuyPrice, product.SellPrice,
		product.Stock, product.MinStock, product.Active, product.UpdatedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, tenantID string, productID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM products
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, productID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CreateSale writes the sale header, its items, and the stock
// decrements in one transaction. FOR UPDATE serializes concurrent
// commits per product row at the default isolation level, and the
// decrement carries its own stock >= qty guard, so the loser of a race
// re-reads the decremented stock and gets ErrInsufficientStock rather
// than a serialization abort.
func (s *Store) CreateSale(ctx context.Context, sale domain.Sale, items []domain.SaleItem) (*domain.Sale, []domain.SaleItem, error) {
	if sale.TenantID == "" || len(items) == 0 {
		return nil, nil, store.ErrValidation
	}

	qtyByProduct := make(map[string]int, len(items))
	for _, item := range items {
		if item.ProductID == "" || item.Quantity < 1 || item.UnitPrice < 0 {
			return nil, nil, store.ErrValidation
		}
		qtyByProduct[item.ProductID] += item.Quantity
	}

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	productIDs := make([]string, 0, len(qtyByProduct))
	for productID := range qtyByProduct {
		productIDs = append(productIDs, productID)
	}

	stockRows, err := pgTx.QueryContext(ctx, `
		SELECT id, stock
		FROM products
		WHERE tenant_id = $1 AND is_active = true AND id = ANY($2)
		FOR UPDATE
	`, sale.TenantID, productIDs)
	if err != nil {
		return nil, nil, err
	}
	stockMap := make(map[string]int, len(productIDs))
	for stockRows.Next() {
		var productID string
		var stock int
		if err := stockRows.Scan(&productID, &stock); err != nil {
			_ = stockRows.Close()
			return nil, nil, err
		}
		stockMap[productID] = stock
	}
	if err := stockRows.Err(); err != nil {
		_ = stockRows.Close()
		return nil, nil, err
	}
	_ = stockRows.Close()

	for productID, qty := range qtyByProduct {
		stock, exists := stockMap[productID]
		if !exists {
			return nil, nil, fmt.Errorf("%w: product %s", store.ErrNotFound, productID)
		}
		if stock < qty {
			return nil, nil, store.ErrInsufficientStock
		}
	}

	now := time.Now().UTC()
	for productID, qty := range qtyByProduct {
		res, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock - $1, updated_at = $2
			WHERE tenant_id = $3 AND id = $4 AND stock >= $1
		`, qty, now, sale.TenantID, productID)
		if err != nil {
			return nil, nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, nil, err
		}
		if affected == 0 {
			return nil, nil, store.ErrInsufficientStock
		}
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = now
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (
			id, tenant_id, invoice_number, customer_name, customer_phone,
			total_amount, discount_amount, final_amount, payment_method,
			payment_status, notes, created_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, sale.ID, sale.TenantID, sale.InvoiceNumber, nullIfEmpty(sale.CustomerName), nullIfEmpty(sale.CustomerPhone),
		sale.TotalAmount, sale.DiscountAmount, sale.FinalAmount, sale.PaymentMethod,
		sale.PaymentStatus, nullIfEmpty(sale.Notes), nullIfEmpty(sale.CreatedBy), sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, nil, store.ErrValidation
		}
		return nil, nil, err
	}

	saved := make([]domain.SaleItem, 0, len(items))
	for _, item := range items {
		if item.ID == "" {
			item.ID = xid.New("item")
		}
		item.TenantID = sale.TenantID
		item.SaleID = sale.ID
		item.TotalPrice = int64(item.Quantity) * item.UnitPrice
		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_items (id, tenant_id, sale_id, product_id, quantity, unit_price, total_price, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, item.ID, item.TenantID, item.SaleID, item.ProductID, item.Quantity, item.UnitPrice, item.TotalPrice, item.CreatedAt)
		if err != nil {
			return nil, nil, err
		}
		saved = append(saved, item)
	}

	if err := pgTx.Commit(); err != nil {
		return nil, nil, err
	}

	created := sale
	return &created, saved, nil
}

func (s *Store) ListSales(ctx context.Context, tenantID string, limit int, offset int) ([]domain.SaleWithItems, error) {
	if limit < 1 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, invoice_number, COALESCE(customer_name,''), COALESCE(customer_phone,''),
			total_amount, discount_amount, final_amount, payment_method, payment_status,
			COALESCE(notes,''), COALESCE(created_by,''), created_at
		FROM sales
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	ids := make([]string, 0, limit)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.TenantID, &sale.InvoiceNumber, &sale.CustomerName, &sale.CustomerPhone, &sale.TotalAmount, &sale.DiscountAmount, &sale.FinalAmount, &sale.PaymentMethod, &sale.PaymentStatus, &sale.Notes, &sale.CreatedBy, &sale.CreatedAt); err != nil {
			return nil, err
		}
		sale.CreatedAt = sale.CreatedAt.UTC()
		sales = append(sales, sale)
		ids = append(ids, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]domain.SaleWithItems, 0, len(sales))
	if len(ids) == 0 {
		return result, nil
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, sale_id, product_id, quantity, unit_price, total_price, created_at
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY created_at ASC, id ASC
	`, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	itemMap := make(map[string][]domain.SaleItem, len(ids))
	for itemRows.Next() {
		var item domain.SaleItem
		if err := itemRows.Scan(&item.ID, &item.TenantID, &item.SaleID, &item.ProductID, &item.Quantity, &item.UnitPrice, &item.TotalPrice, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.CreatedAt = item.CreatedAt.UTC()
		itemMap[item.SaleID] = append(itemMap[item.SaleID], item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	for _, sale := range sales {
		result = append(result, domain.SaleWithItems{Sale: sale, Items: itemMap[sale.ID]})
	}
	return result, nil
}

func (s *Store) GetSaleByID(ctx context.Context, tenantID string, saleID string) (*domain.SaleWithItems, error) {
	var sale domain.Sale
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, invoice_number, COALESCE(customer_name,''), COALESCE(customer_phone,''),
			total_amount, discount_amount, final_amount, payment_method, payment_status,
			COALESCE(notes,''), COALESCE(created_by,''), created_at
		FROM sales
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, saleID).Scan(&sale.ID, &sale.TenantID, &sale.InvoiceNumber, &sale.CustomerName, &sale.CustomerPhone, &sale.TotalAmount, &sale.DiscountAmount, &sale.FinalAmount, &sale.PaymentMethod, &sale.PaymentStatus, &sale.Notes, &sale.CreatedBy, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.CreatedAt = sale.CreatedAt.UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, sale_id, product_id, quantity, unit_price, total_price, created_at
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY created_at ASC, id ASC
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 8)
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ID, &item.TenantID, &item.SaleID, &item.ProductID, &item.Quantity, &item.UnitPrice, &item.TotalPrice, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.CreatedAt = item.CreatedAt.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &domain.SaleWithItems{Sale: sale, Items: items}, nil
}

func (s *Store) CreateFinanceEntry(ctx context.Context, entry domain.FinanceEntry) (*domain.FinanceEntry, error) {
	if entry.TenantID == "" || entry.Amount == 0 || strings.TrimSpace(entry.Description) == "" {
		return nil, store.ErrValidation
	}
	if entry.Type != domain.FinanceTypeIncome && entry.Type != domain.FinanceTypeExpense {
		return nil, store.ErrValidation
	}

	if entry.ID == "" {
		entry.ID = xid.New("fin")
	}
	if entry.Category == "" {
		entry.Category = domain.FinanceCategoryGeneral
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO finance_entries (id, tenant_id, type, amount, category, description, reference_id, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.TenantID, entry.Type, entry.Amount, entry.Category, entry.Description,
		nullIfEmpty(entry.ReferenceID), nullIfEmpty(entry.CreatedBy), entry.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := entry
	return &created, nil
}

func (s *Store) ListFinanceEntries(ctx context.Context, tenantID string, typeFilter string, limit int) ([]domain.FinanceEntry, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, type, amount, category, description,
			COALESCE(reference_id,''), COALESCE(created_by,''), created_at
		FROM finance_entries
		WHERE tenant_id = $1
			AND ($2 = '' OR type = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, tenantID, typeFilter, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.FinanceEntry, 0, limit)
	for rows.Next() {
		var entry domain.FinanceEntry
		if err := rows.Scan(&entry.ID, &entry.TenantID, &entry.Type, &entry.Amount, &entry.Category, &entry.Description, &entry.ReferenceID, &entry.CreatedBy, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) CountActiveProducts(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::int
		FROM products
		WHERE tenant_id = $1 AND is_active = true
	`, tenantID).Scan(&count)
	return count, err
}

func (s *Store) SumPaidSales(ctx context.Context, tenantID string, from time.Time, to time.Time) (int64, int, error) {
	var total int64
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(final_amount),0)::bigint, COUNT(*)::int
		FROM sales
		WHERE tenant_id = $1
			AND payment_status = $2
			AND created_at >= $3
			AND created_at < $4
	`, tenantID, domain.PaymentStatusPaid, from, to).Scan(&total, &count)
	return total, count, err
}

func (s *Store) SumFinanceByType(ctx context.Context, tenantID string, from time.Time, to time.Time) (int64, int64, error) {
	var income, expense int64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN type = $2 THEN amount ELSE 0 END),0)::bigint,
			COALESCE(SUM(CASE WHEN type = $3 THEN amount ELSE 0 END),0)::bigint
		FROM finance_entries
		WHERE tenant_id = $1
			AND created_at >= $4
			AND created_at <= $5
	`, tenantID, domain.FinanceTypeIncome, domain.FinanceTypeExpense, from, to).Scan(&income, &expense)
	return income, expense, err
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" || user.TenantID == "" {
		return store.ErrValidation
	}
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (id, username, password, role, tenant_id, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, user.ID, user.Username, user.Password, user.Role, user.TenantID, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrValidation
		}
		return err
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password, role, tenant_id, active, created_at
		FROM app_users
		WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username))).Scan(&user.ID, &user.Username, &user.Password, &user.Role, &user.TenantID, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

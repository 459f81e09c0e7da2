package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"warungpos/backend/internal/domain"
	"warungpos/backend/internal/store"
	"warungpos/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	tenants         map[string]domain.Tenant
	products        map[string]domain.Product
	salesByID       map[string]domain.Sale
	saleItemsBySale map[string][]domain.SaleItem
	finances        []domain.FinanceEntry
	usersByUsername map[string]domain.UserAccount
}

const (
	SeedTenantID      = "tenant-warung-utama"
	SeedOtherTenantID = "tenant-warung-kedua"
)

// seedUsers builds the initial in-memory user accounts for dev/demo
// mode. Credentials come from SEED_OWNER_PASSWORD and
// SEED_STAFF_PASSWORD; hardcoded dev defaults are used otherwise with
// a warning. Production deployments use PostgreSQL (DATABASE_URL set).
func seedUsers() map[string]domain.UserAccount {
	ownerPwd := envOr("SEED_OWNER_PASSWORD", "owner123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_OWNER_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_OWNER_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
		tenantID string
	}{
		{"owner", ownerPwd, domain.RoleOwner, SeedTenantID},
		{"staff", staffPwd, domain.RoleStaff, SeedTenantID},
		{"owner2", ownerPwd, domain.RoleOwner, SeedOtherTenantID},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			ID:        xid.New("user"),
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			TenantID:  u.tenantID,
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

func NewSeeded() *Store {
	now := time.Now().UTC()
	products := []domain.Product{
		{ID: "prod-mie-01", TenantID: SeedTenantID, Name: "Mie Goreng Instan", CategoryID: "cat-grocery", SKU: "SKU-MIE-01", BuyPrice: 2700, SellPrice: 3500, Stock: 120, MinStock: 20, Active: true},
		{ID: "prod-telur-01", TenantID: SeedTenantID, Name: "Telur 10 Butir", CategoryID: "cat-grocery", SKU: "SKU-TELUR-01", BuyPrice: 23000, SellPrice: 26500, Stock: 40, MinStock: 10, Active: true},
		{ID: "prod-susu-01", TenantID: SeedTenantID, Name: "Susu UHT 1L", CategoryID: "cat-dairy", SKU: "SKU-SUSU-01", BuyPrice: 13500, SellPrice: 18900, Stock: 60, MinStock: 12, Active: true},
		{ID: "prod-roti-01", TenantID: SeedTenantID, Name: "Roti Tawar", CategoryID: "cat-bakery", SKU: "SKU-ROTI-01", BuyPrice: 12500, SellPrice: 17800, Stock: 25, MinStock: 8, Active: true},
		{ID: "prod-kopi-01", TenantID: SeedTenantID, Name: "Kopi Sachet", CategoryID: "cat-beverage", SKU: "SKU-KOPI-01", BuyPrice: 1700, SellPrice: 2600, Stock: 200, MinStock: 40, Active: true},
		{ID: "prod-air-01", TenantID: SeedTenantID, Name: "Air Mineral 600ml", CategoryID: "cat-beverage", SKU: "SKU-AIR-01", BuyPrice: 3200, SellPrice: 3900, Stock: 150, MinStock: 24, Active: true},
		{ID: "prod-lama-01", TenantID: SeedTenantID, Name: "Produk Nonaktif", CategoryID: "cat-grocery", SKU: "SKU-LAMA-01", BuyPrice: 1000, SellPrice: 1500, Stock: 5, MinStock: 0, Active: false},
		{ID: "prod-gula-02", TenantID: SeedOtherTenantID, Name: "Gula 1kg", CategoryID: "cat-grocery", SKU: "SKU-GULA-02", BuyPrice: 15300, SellPrice: 17400, Stock: 80, MinStock: 15, Active: true},
	}

	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		p.CreatedAt = now
		p.UpdatedAt = now
		productMap[p.ID] = p
	}

	return &Store{
		tenants: map[string]domain.Tenant{
			SeedTenantID:      {ID: SeedTenantID, Name: "Warung Utama", Active: true, CreatedAt: now},
			SeedOtherTenantID: {ID: SeedOtherTenantID, Name: "Warung Kedua", Active: true, CreatedAt: now},
		},
		products:        productMap,
		salesByID:       make(map[string]domain.Sale),
		saleItemsBySale: make(map[string][]domain.SaleItem),
		finances:        make([]domain.FinanceEntry, 0, 64),
		usersByUsername: seedUsers(),
	}
}

func (s *Store) ListProducts(_ context.Context, tenantID string, filter domain.ProductFilter) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.TenantID != tenantID || !p.Active {
			continue
		}
		if filter.CategoryID != "" && p.CategoryID != filter.CategoryID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, tenantID string, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[productID]
	if !exists || product.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.TenantID == "" || product.Name == "" || product.SellPrice < 0 || product.Stock < 0 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrValidation
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	product.Active = true

	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.TenantID == "" || product.Name == "" || product.SellPrice < 0 || product.Stock < 0 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists || existing.TenantID != product.TenantID {
		return nil, store.ErrNotFound
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()

	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, tenantID string, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[productID]
	if !exists || existing.TenantID != tenantID {
		return store.ErrNotFound
	}
	delete(s.products, productID)
	return nil
}

// CreateSale validates everything before the first mutation so a
// failed commit leaves no partial trace. The write lock serializes
// concurrent commits, which is what makes check-then-decrement atomic
// here.
func (s *Store) CreateSale(_ context.Context, sale domain.Sale, items []domain.SaleItem) (*domain.Sale, []domain.SaleItem, error) {
	if sale.TenantID == "" || len(items) == 0 {
		return nil, nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[sale.TenantID]; !ok {
		return nil, nil, store.ErrNotFound
	}

	qtyByProduct := make(map[string]int, len(items))
	for _, item := range items {
		if item.Quantity < 1 || item.UnitPrice < 0 {
			return nil, nil, store.ErrValidation
		}
		qtyByProduct[item.ProductID] += item.Quantity
	}
	for productID, qty := range qtyByProduct {
		product, exists := s.products[productID]
		if !exists || product.TenantID != sale.TenantID || !product.Active {
			return nil, nil, fmt.Errorf("%w: product %s", store.ErrNotFound, productID)
		}
		if product.Stock < qty {
			return nil, nil, store.ErrInsufficientStock
		}
	}

	now := time.Now().UTC()
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = now
	}

	for productID, qty := range qtyByProduct {
		product := s.products[productID]
		product.Stock -= qty
		product.UpdatedAt = now
		s.products[productID] = product
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
		saved = append(saved, item)
	}

	s.salesByID[sale.ID] = sale
	s.saleItemsBySale[sale.ID] = saved

	created := sale
	result := make([]domain.SaleItem, len(saved))
	copy(result, saved)
	return &created, result, nil
}

func (s *Store) ListSales(_ context.Context, tenantID string, limit int, offset int) ([]domain.SaleWithItems, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	sales := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if sale.TenantID != tenantID {
			continue
		}
		sales = append(sales, sale)
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})

	if offset >= len(sales) {
		return []domain.SaleWithItems{}, nil
	}
	sales = sales[offset:]
	if len(sales) > limit {
		sales = sales[:limit]
	}

	result := make([]domain.SaleWithItems, 0, len(sales))
	for _, sale := range sales {
		result = append(result, domain.SaleWithItems{
			Sale:  sale,
			Items: cloneItems(s.saleItemsBySale[sale.ID]),
		})
	}
	return result, nil
}

func (s *Store) GetSaleByID(_ context.Context, tenantID string, saleID string) (*domain.SaleWithItems, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[saleID]
	if !exists || sale.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	result := domain.SaleWithItems{Sale: sale, Items: cloneItems(s.saleItemsBySale[saleID])}
	return &result, nil
}

func (s *Store) CreateFinanceEntry(_ context.Context, entry domain.FinanceEntry) (*domain.FinanceEntry, error) {
	if entry.TenantID == "" || entry.Amount == 0 || entry.Description == "" {
		return nil, store.ErrValidation
	}
	if entry.Type != domain.FinanceTypeIncome && entry.Type != domain.FinanceTypeExpense {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("fin")
	}
	if entry.Category == "" {
		entry.Category = domain.FinanceCategoryGeneral
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.finances = append(s.finances, entry)
	created := entry
	return &created, nil
}

func (s *Store) ListFinanceEntries(_ context.Context, tenantID string, typeFilter string, limit int) ([]domain.FinanceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.FinanceEntry, 0, limit)
	for _, entry := range s.finances {
		if entry.TenantID != tenantID {
			continue
		}
		if typeFilter != "" && entry.Type != typeFilter {
			continue
		}
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.FinanceEntry) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CountActiveProducts(_ context.Context, tenantID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, p := range s.products {
		if p.TenantID == tenantID && p.Active {
			count++
		}
	}
	return count, nil
}

func (s *Store) SumPaidSales(_ context.Context, tenantID string, from time.Time, to time.Time) (int64, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	count := 0
	for _, sale := range s.salesByID {
		if sale.TenantID != tenantID || sale.PaymentStatus != domain.PaymentStatusPaid {
			continue
		}
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		total += sale.FinalAmount
		count++
	}
	return total, count, nil
}

func (s *Store) SumFinanceByType(_ context.Context, tenantID string, from time.Time, to time.Time) (int64, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var income, expense int64
	for _, entry := range s.finances {
		if entry.TenantID != tenantID {
			continue
		}
		if entry.CreatedAt.Before(from) || entry.CreatedAt.After(to) {
			continue
		}
		switch entry.Type {
		case domain.FinanceTypeIncome:
			income += entry.Amount
		case domain.FinanceTypeExpense:
			expense += entry.Amount
		}
	}
	return income, expense, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" || user.TenantID == "" {
		return store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrValidation
	}
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyUser := user
	return &copyUser, nil
}

func cloneItems(items []domain.SaleItem) []domain.SaleItem {
	result := make([]domain.SaleItem, len(items))
	copy(result, items)
	return result
}

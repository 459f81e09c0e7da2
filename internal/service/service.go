package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"warungpos/backend/internal/cache"
	"warungpos/backend/internal/domain"
	"warungpos/backend/internal/store"
	"warungpos/backend/internal/xid"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("owner role required")
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
	repo            store.Repository
	productCache    cache.ProductCache
	productCacheTTL time.Duration
	defaultTenantID string
}

func New(repo store.Repository, productCache cache.ProductCache, productCacheTTL time.Duration, defaultTenantID string) *Service {
	if productCache == nil {
		productCache = cache.NoopProductCache{}
	}
	if productCacheTTL < time.Second {
		productCacheTTL = 30 * time.Second
	}
	if defaultTenantID == "" {
		defaultTenantID = "tenant-warung-utama"
	}

	return &Service{
		repo:            repo,
		productCache:    productCache,
		productCacheTTL: productCacheTTL,
		defaultTenantID: defaultTenantID,
	}
}

func (s *Service) ListProducts(ctx context.Context, tenantID string, filter domain.ProductFilter) ([]domain.Product, error) {
	if tenantID == "" {
		return nil, store.ErrValidation
	}

	key := cache.Key(tenantID, filter)
	if cached, hit, err := s.productCache.Get(ctx, key); err == nil && hit {
		return cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: product cache get tenant=%s: %v", tenantID, err)
	}

	products, err := s.repo.ListProducts(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}

	if err := s.productCache.Set(ctx, key, products, s.productCacheTTL); err != nil {
		log.Printf("[service] WARN: product cache set tenant=%s: %v", tenantID, err)
	}
	return products, nil
}

func (s *Service) GetProduct(ctx context.Context, tenantID string, productID string) (domain.Product, error) {
	if tenantID == "" || productID == "" {
		return domain.Product{}, store.ErrValidation
	}
	product, err := s.repo.GetProductByID(ctx, tenantID, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, tenantID string, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleOwner {
		return domain.Product{}, ErrForbidden
	}
	if tenantID == "" {
		return domain.Product{}, store.ErrValidation
	}

	req.Name = strings.TrimSpace(req.Name)
	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	if req.Name == "" || req.SellPrice < 0 || req.BuyPrice < 0 || req.Stock < 0 || req.MinStock < 0 {
		return domain.Product{}, store.ErrValidation
	}

	product := domain.Product{
		ID:          xid.New("prod"),
		TenantID:    tenantID,
		CategoryID:  strings.TrimSpace(req.CategoryID),
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		SKU:         req.SKU,
		Barcode:     strings.TrimSpace(req.Barcode),
		BuyPrice:    req.BuyPrice,
		SellPrice:   req.SellPrice,
		Stock:       req.Stock,
		MinStock:    req.MinStock,
		Active:      true,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateProducts(ctx, tenantID)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, tenantID string, productID string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, ok := ActorFromContext(ctx); !ok {
		return domain.Product{}, ErrUnauthenticated
	}
	if tenantID == "" || productID == "" {
		return domain.Product{}, store.ErrValidation
	}

	existing, err := s.repo.GetProductByID(ctx, tenantID, productID)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrValidation
		}
		updated.Name = name
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.CategoryID != nil {
		updated.CategoryID = strings.TrimSpace(*req.CategoryID)
	}
	if req.SKU != nil {
		updated.SKU = strings.ToUpper(strings.TrimSpace(*req.SKU))
	}
	if req.Barcode != nil {
		updated.Barcode = strings.TrimSpace(*req.Barcode)
	}
	if req.BuyPrice != nil {
		if *req.BuyPrice < 0 {
			return domain.Product{}, store.ErrValidation
		}
		updated.BuyPrice = *req.BuyPrice
	}
	if req.SellPrice != nil {
		if *req.SellPrice < 0 {
			return domain.Product{}, store.ErrValidation
		}
		updated.SellPrice = *req.SellPrice
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return domain.Product{}, store.ErrValidation
		}
		updated.Stock = *req.Stock
	}
	if req.MinStock != nil {
		if *req.MinStock < 0 {
			return domain.Product{}, store.ErrValidation
		}
		updated.MinStock = *req.MinStock
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateProducts(ctx, tenantID)
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, tenantID string, productID string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleOwner {
		return ErrForbidden
	}
	if tenantID == "" || productID == "" {
		return store.ErrValidation
	}

	if err := s.repo.DeleteProduct(ctx, tenantID, productID); err != nil {
		return err
	}
	s.invalidateProducts(ctx, tenantID)
	return nil
}

// CommitSale runs the sale pipeline: validate the draft, recompute
// every money figure from quantity and unit price, commit header,
// items and stock decrements atomically, then post the income entry
// to the finance ledger. Ledger posting happens after the sale is
// durable and its failure never undoes the sale.
func (s *Service) CommitSale(ctx context.Context, tenantID string, req domain.SaleCommitRequest) (domain.SaleCommitResponse, error) {
	if tenantID == "" {
		return domain.SaleCommitResponse{}, store.ErrValidation
	}
	if len(req.Items) == 0 {
		return domain.SaleCommitResponse{}, fmt.Errorf("%w: sale needs at least one item", store.ErrValidation)
	}

	// Every submitted line must stand on its own before any merging;
	// a negative delta must never hide behind a valid duplicate.
	for _, line := range req.Items {
		if line.ProductID == "" {
			return domain.SaleCommitResponse{}, fmt.Errorf("%w: item product id is required", store.ErrValidation)
		}
		if line.Quantity < 1 {
			return domain.SaleCommitResponse{}, fmt.Errorf("%w: quantity must be positive", store.ErrValidation)
		}
		if line.UnitPrice < 0 {
			return domain.SaleCommitResponse{}, fmt.Errorf("%w: unit price cannot be negative", store.ErrValidation)
		}
	}

	lines := normalizeLines(req.Items)

	header := req.Sale
	header.PaymentMethod = strings.ToLower(strings.TrimSpace(header.PaymentMethod))
	if header.PaymentMethod == "" {
		header.PaymentMethod = domain.PaymentMethodCash
	}
	if !isSupportedPaymentMethod(header.PaymentMethod) {
		return domain.SaleCommitResponse{}, fmt.Errorf("%w: unsupported payment method %q", store.ErrValidation, header.PaymentMethod)
	}
	header.PaymentStatus = strings.ToLower(strings.TrimSpace(header.PaymentStatus))
	if header.PaymentStatus == "" {
		header.PaymentStatus = domain.PaymentStatusPaid
	}
	if !isSupportedPaymentStatus(header.PaymentStatus) {
		return domain.SaleCommitResponse{}, fmt.Errorf("%w: unsupported payment status %q", store.ErrValidation, header.PaymentStatus)
	}

	var totalAmount int64
	for _, line := range lines {
		totalAmount += int64(line.Quantity) * line.UnitPrice
	}
	if header.DiscountAmount < 0 || header.DiscountAmount > totalAmount {
		return domain.SaleCommitResponse{}, fmt.Errorf("%w: discount out of range", store.ErrValidation)
	}
	finalAmount := totalAmount - header.DiscountAmount

	actor, _ := ActorFromContext(ctx)
	now := time.Now()
	sale := domain.Sale{
		ID:             xid.New("sale"),
		TenantID:       tenantID,
		InvoiceNumber:  newInvoiceNumber(now),
		CustomerName:   strings.TrimSpace(header.CustomerName),
		CustomerPhone:  strings.TrimSpace(header.CustomerPhone),
		TotalAmount:    totalAmount,
		DiscountAmount: header.DiscountAmount,
		FinalAmount:    finalAmount,
		PaymentMethod:  header.PaymentMethod,
		PaymentStatus:  header.PaymentStatus,
		Notes:          strings.TrimSpace(header.Notes),
		CreatedBy:      actor.ID,
		CreatedAt:      now.UTC(),
	}

	items := make([]domain.SaleItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, domain.SaleItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}

	created, savedItems, err := s.repo.CreateSale(ctx, sale, items)
	if err != nil {
		return domain.SaleCommitResponse{}, err
	}

	s.invalidateProducts(ctx, tenantID)
	ledgerPosted := s.postSaleToLedger(ctx, created)

	return domain.SaleCommitResponse{Sale: *created, Items: savedItems, LedgerPosted: ledgerPosted}, nil
}

// postSaleToLedger records the sale's income in the finance ledger.
// The sale is already committed; a ledger failure is logged and the
// response merely marks the entry as missing so the cashier still gets
// a receipt. Reconciliation finds the gap through the sale's reference
// id.
func (s *Service) postSaleToLedger(ctx context.Context, sale *domain.Sale) bool {
	entry := domain.FinanceEntry{
		TenantID:    sale.TenantID,
		Type:        domain.FinanceTypeIncome,
		Amount:      sale.FinalAmount,
		Category:    domain.FinanceCategorySales,
		Description: fmt.Sprintf("Penjualan - %s (%s)", sale.InvoiceNumber, sale.PaymentMethod),
		ReferenceID: sale.ID,
		CreatedBy:   sale.CreatedBy,
	}
	if _, err := s.repo.CreateFinanceEntry(ctx, entry); err != nil {
		log.Printf("[service] WARN: failed to post sale %s to finance ledger: %v", sale.ID, err)
		return false
	}
	return true
}

func (s *Service) ListSales(ctx context.Context, tenantID string, limit int, offset int) ([]domain.SaleWithItems, error) {
	if tenantID == "" {
		return nil, store.ErrValidation
	}
	return s.repo.ListSales(ctx, tenantID, limit, offset)
}

func (s *Service) GetSale(ctx context.Context, tenantID string, saleID string) (domain.SaleWithItems, error) {
	if tenantID == "" || saleID == "" {
		return domain.SaleWithItems{}, store.ErrValidation
	}
	sale, err := s.repo.GetSaleByID(ctx, tenantID, saleID)
	if err != nil {
		return domain.SaleWithItems{}, err
	}
	return *sale, nil
}

func (s *Service) CreateFinanceEntry(ctx context.Context, tenantID string, req domain.FinanceCreateRequest) (domain.FinanceEntry, error) {
	if tenantID == "" {
		return domain.FinanceEntry{}, store.ErrValidation
	}

	req.Type = strings.ToLower(strings.TrimSpace(req.Type))
	req.Description = strings.TrimSpace(req.Description)
	if req.Type != domain.FinanceTypeIncome && req.Type != domain.FinanceTypeExpense {
		return domain.FinanceEntry{}, fmt.Errorf("%w: type must be income or expense", store.ErrValidation)
	}
	if req.Amount < 1 {
		return domain.FinanceEntry{}, fmt.Errorf("%w: amount must be positive", store.ErrValidation)
	}
	if req.Description == "" {
		return domain.FinanceEntry{}, fmt.Errorf("%w: description is required", store.ErrValidation)
	}
	category := strings.TrimSpace(req.Category)
	if category == "" {
		category = domain.FinanceCategoryGeneral
	}

	actor, _ := ActorFromContext(ctx)
	entry := domain.FinanceEntry{
		TenantID:    tenantID,
		Type:        req.Type,
		Amount:      req.Amount,
		Category:    category,
		Description: req.Description,
		ReferenceID: strings.TrimSpace(req.ReferenceID),
		CreatedBy:   actor.ID,
	}

	created, err := s.repo.CreateFinanceEntry(ctx, entry)
	if err != nil {
		return domain.FinanceEntry{}, err
	}
	return *created, nil
}

func (s *Service) ListFinanceEntries(ctx context.Context, tenantID string, typeFilter string, limit int) ([]domain.FinanceEntry, error) {
	if tenantID == "" {
		return nil, store.ErrValidation
	}
	typeFilter = strings.ToLower(strings.TrimSpace(typeFilter))
	if typeFilter != "" && typeFilter != domain.FinanceTypeIncome && typeFilter != domain.FinanceTypeExpense {
		return nil, fmt.Errorf("%w: type filter must be income or expense", store.ErrValidation)
	}
	return s.repo.ListFinanceEntries(ctx, tenantID, typeFilter, limit)
}

// Dashboard aggregates the read-side stats for one tenant as of the
// given instant. The three aggregates are independent reads and run
// concurrently; the day window starts at the calendar midnight of
// asOf, the month window at the first of the month.
func (s *Service) Dashboard(ctx context.Context, tenantID string, asOf time.Time) (domain.DashboardStats, error) {
	if tenantID == "" {
		return domain.DashboardStats{}, store.ErrValidation
	}
	if asOf.IsZero() {
		asOf = time.Now()
	}

	dayStart := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, asOf.Location())
	dayEnd := dayStart.Add(24 * time.Hour)
	monthStart := time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, asOf.Location())

	var stats domain.DashboardStats
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		count, err := s.repo.CountActiveProducts(gctx, tenantID)
		if err != nil {
			return err
		}
		stats.TotalProducts = count
		return nil
	})
	g.Go(func() error {
		total, count, err := s.repo.SumPaidSales(gctx, tenantID, dayStart, dayEnd)
		if err != nil {
			return err
		}
		stats.TodaySales = total
		stats.TodaySalesCount = count
		return nil
	})
	g.Go(func() error {
		income, expense, err := s.repo.SumFinanceByType(gctx, tenantID, monthStart, asOf)
		if err != nil {
			return err
		}
		stats.MonthlyIncome = income
		stats.MonthlyExpense = expense
		return nil
	})

	if err := g.Wait(); err != nil {
		return domain.DashboardStats{}, err
	}

	stats.MonthlyBalance = stats.MonthlyIncome - stats.MonthlyExpense
	return stats, nil
}

func (s *Service) DefaultTenantID() string {
	return s.defaultTenantID
}

func (s *Service) invalidateProducts(ctx context.Context, tenantID string) {
	if err := s.productCache.Invalidate(ctx, tenantID); err != nil {
		log.Printf("[service] WARN: product cache invalidate tenant=%s: %v", tenantID, err)
	}
}

// normalizeLines merges duplicate product lines, summing quantities.
// Lines are validated before this runs. The first line's unit price
// wins for a product; mixed prices for the same product in one draft
// are a client bug.
func normalizeLines(lines []domain.SaleLine) []domain.SaleLine {
	order := make([]string, 0, len(lines))
	agg := make(map[string]domain.SaleLine, len(lines))
	for _, line := range lines {
		existing, seen := agg[line.ProductID]
		if !seen {
			order = append(order, line.ProductID)
			agg[line.ProductID] = line
			continue
		}
		existing.Quantity += line.Quantity
		agg[line.ProductID] = existing
	}

	normalized := make([]domain.SaleLine, 0, len(agg))
	for _, productID := range order {
		normalized = append(normalized, agg[productID])
	}
	return normalized
}

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case domain.PaymentMethodCash, domain.PaymentMethodTransfer, domain.PaymentMethodCard, domain.PaymentMethodEwallet:
		return true
	}
	return false
}

func isSupportedPaymentStatus(status string) bool {
	switch status {
	case domain.PaymentStatusPaid, domain.PaymentStatusPending, domain.PaymentStatusCancelled:
		return true
	}
	return false
}

func newInvoiceNumber(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("INV-%s-%s", at.Format("20060102"), suffix)
}

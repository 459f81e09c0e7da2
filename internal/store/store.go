package store

import (
	"context"
	"errors"
	"time"

	"warungpos/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrValidation        = errors.New("invalid request")
)

// Repository is the tenant-scoped persistence boundary. Every call
// takes the tenant id explicitly; implementations must never return or
// mutate rows belonging to another tenant.
type Repository interface {
	ListProducts(ctx context.Context, tenantID string, filter domain.ProductFilter) ([]domain.Product, error)
	GetProductByID(ctx context.Context, tenantID string, productID string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, tenantID string, productID string) error

	// CreateSale persists the sale header, its items and the stock
	// decrements as one atomic unit. On any failure nothing is written
	// and stock is untouched. ErrInsufficientStock is returned when any
	// decrement would drive stock negative.
	CreateSale(ctx context.Context, sale domain.Sale, items []domain.SaleItem) (*domain.Sale, []domain.SaleItem, error)
	ListSales(ctx context.Context, tenantID string, limit int, offset int) ([]domain.SaleWithItems, error)
	GetSaleByID(ctx context.Context, tenantID string, saleID string) (*domain.SaleWithItems, error)

	CreateFinanceEntry(ctx context.Context, entry domain.FinanceEntry) (*domain.FinanceEntry, error)
	ListFinanceEntries(ctx context.Context, tenantID string, typeFilter string, limit int) ([]domain.FinanceEntry, error)

	CountActiveProducts(ctx context.Context, tenantID string) (int, error)
	SumPaidSales(ctx context.Context, tenantID string, from time.Time, to time.Time) (total int64, count int, err error)
	SumFinanceByType(ctx context.Context, tenantID string, from time.Time, to time.Time) (income int64, expense int64, err error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
}

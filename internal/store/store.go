package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vendafacil/backend/internal/domain"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidSale      = errors.New("invalid sale")
	ErrAlreadyCancelled = errors.New("sale already cancelled")
)

// InsufficientStockError distinguishes an empty shelf from a partial one so
// the caller can name the product and the exact shortfall.
type InsufficientStockError struct {
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	if e.Available == 0 {
		return fmt.Sprintf("produto %s sem estoque disponivel", e.ProductName)
	}
	return fmt.Sprintf("estoque insuficiente para %s: disponivel %d, solicitado %d", e.ProductName, e.Available, e.Requested)
}

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	UpsertProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	ReserveStock(ctx context.Context, productID string, qty int) error
	RestoreStock(ctx context.Context, productID string, qty int) error
	CreateSale(ctx context.Context, draft domain.SaleDraft) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleListFilter) ([]domain.Sale, int, error)
	CancelSale(ctx context.Context, id string, at time.Time) (*domain.Sale, error)
	DeleteSale(ctx context.Context, id string) error
	UpdateSaleStatus(ctx context.Context, id string, status string) (*domain.Sale, error)
	UpdateSale(ctx context.Context, id string, req domain.SaleUpdateRequest) (*domain.Sale, error)
	GetStatistics(ctx context.Context, filter domain.StatisticsFilter, todayStart time.Time, todayEnd time.Time) (domain.SalesStatistics, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

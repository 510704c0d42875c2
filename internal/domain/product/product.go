// Package product defines the catalog snapshot the order pipeline reads at
// validation time. Catalog writes are owned by the admin subsystem; this
// package only ever reads the freshest state.
package product

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Product is a point-in-time snapshot of a catalog item.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Category    string
	IsAvailable bool
}

// NotFoundError indicates a requested product does not exist in the catalog.
type NotFoundError struct {
	ProductID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// UnavailableError indicates a product exists but is not currently orderable.
type UnavailableError struct {
	ProductID string
	Name      string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("product %s is not available", e.Name)
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}

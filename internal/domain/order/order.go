// Package order implements the order-intake pipeline: cart validation,
// authoritative pricing, coupon evaluation, atomic persistence, and the
// post-commit announcement to the fulfillment queue.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status enumerates the order lifecycle. Intake always creates orders as
// StatusPending; every later transition goes through UpdateStatus.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusPreparing  Status = "PREPARING"
	StatusReady      Status = "READY"
	StatusOnDelivery Status = "ON_DELIVERY"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusReady,
		StatusOnDelivery, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// PaymentMethod enumerates supported payment options.
type PaymentMethod string

const (
	PaymentCash PaymentMethod = "CASH"
	PaymentCard PaymentMethod = "CARD"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentCard
}

// Order is a persisted customer order. Items are immutable after creation;
// each item carries the unit price frozen at order time.
type Order struct {
	ID            string
	UserID        string
	AddressID     string
	Status        Status
	Total         decimal.Decimal
	PaymentMethod PaymentMethod
	Notes         string
	CouponCode    string
	Discount      decimal.Decimal
	Items         []Item
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Item is one order line. Price is the unit price captured when the order was
// created and must never be recomputed from the live catalog.
type Item struct {
	ProductID string
	Quantity  int
	Price     decimal.Decimal
}

// Sentinel validation errors.
var (
	ErrEmptyItems     = errors.New("order must contain at least one item")
	ErrMissingAddress = errors.New("delivery address is required")
)

// InvalidQuantityError indicates a line item with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// PersistenceError wraps an infrastructure failure inside the order
// transaction. Nothing was committed; the request is safe to retry.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("order persistence failed: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ErrNotFound is returned when an order id does not resolve for the caller.
var ErrNotFound = errors.New("order not found")

// Repository defines persistence operations for orders. Create is atomic:
// the header and every item are committed together or not at all.
type Repository interface {
	Create(ctx context.Context, o *Order) (*Order, error)
	GetByID(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, status Status) (*Order, error)
}

// Publisher announces committed orders to the fulfillment queue.
type Publisher interface {
	PublishOrderCreated(ctx context.Context, o *Order) error
}

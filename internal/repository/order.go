package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/softdomifood/order-intake/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders
		(id, user_id, address_id, status, total, payment_method, notes, coupon_code, discount)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9)
		RETURNING created_at, updated_at`

	insertOrderItemSQL = `INSERT INTO order_items (id, order_id, position, product_id, quantity, price)
		VALUES ($1, $2, $3, $4, $5, $6)`

	getOrderSQL = `SELECT id, user_id, address_id, status, total, payment_method,
		COALESCE(notes, ''), COALESCE(coupon_code, ''), discount, created_at, updated_at
		FROM orders WHERE id = $1`

	getOrderItemsSQL = `SELECT product_id, quantity, price
		FROM order_items WHERE order_id = $1 ORDER BY position`

	listOrdersByUserSQL = `SELECT id, user_id, address_id, status, total, payment_method,
		COALESCE(notes, ''), COALESCE(coupon_code, ''), discount, created_at, updated_at
		FROM orders WHERE user_id = $1 ORDER BY created_at DESC`

	updateOrderStatusSQL = `UPDATE orders SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING id, user_id, address_id, status, total, payment_method,
		COALESCE(notes, ''), COALESCE(coupon_code, ''), discount, created_at, updated_at`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order header and all line items in one transaction and
// returns the materialized order as committed. The deferred rollback releases
// the transaction on every failure path; after a successful commit it is a
// no-op.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) (*order.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning order transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	created := *o
	err = tx.QueryRow(ctx, insertOrderSQL,
		o.ID, o.UserID, o.AddressID, o.Status, o.Total,
		o.PaymentMethod, o.Notes, o.CouponCode, o.Discount,
	).Scan(&created.CreatedAt, &created.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting order %q: %w", o.ID, err)
	}

	// Position freezes the request's line order; read-backs sort on it.
	for i, item := range o.Items {
		_, err = tx.Exec(ctx, insertOrderItemSQL,
			newID(), o.ID, i+1, item.ProductID, item.Quantity, item.Price,
		)
		if err != nil {
			return nil, fmt.Errorf("inserting item %q for order %q: %w", item.ProductID, o.ID, err)
		}
	}

	// Read the items back inside the transaction so the returned view is
	// exactly what will be visible after commit.
	items, err := fetchItems(ctx, tx, o.ID)
	if err != nil {
		return nil, err
	}
	created.Items = items

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing order %q: %w", o.ID, err)
	}

	return &created, nil
}

// GetByID returns one order with its items, or order.ErrNotFound.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	items, err := fetchItems(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return &o, nil
}

// ListByUser returns all of a user's orders with items, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders for user %q: %w", userID, err)
	}

	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders for user %q: %w", userID, err)
	}

	for i := range orders {
		items, err := fetchItems(ctx, r.pool, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

// UpdateStatus moves an order to a new status and returns the updated order.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, updateOrderStatusSQL, id, status)
	if err != nil {
		return nil, fmt.Errorf("updating status of order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("updating status of order %q: %w", id, err)
	}

	items, err := fetchItems(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return &o, nil
}

// querier is satisfied by both pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func fetchItems(ctx context.Context, q querier, orderID string) ([]order.Item, error) {
	rows, err := q.Query(ctx, getOrderItemsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting items of order %q: %w", orderID, err)
	}

	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Item, error) {
		var item order.Item
		err := row.Scan(&item.ProductID, &item.Quantity, &item.Price)
		return item, err
	})
	if err != nil {
		return nil, fmt.Errorf("getting items of order %q: %w", orderID, err)
	}
	return items, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o             order.Order
		status        string
		paymentMethod string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.AddressID, &status, &o.Total, &paymentMethod,
		&o.Notes, &o.CouponCode, &o.Discount, &o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = order.Status(status)
	o.PaymentMethod = order.PaymentMethod(paymentMethod)
	return o, err
}

func newID() string {
	return uuid.New().String()
}

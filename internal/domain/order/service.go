package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/softdomifood/order-intake/internal/domain/coupon"
)

// CouponEvaluator decides coupon applicability and computes the clamped
// discount for a subtotal. Implemented by coupon.Evaluator.
type CouponEvaluator interface {
	Evaluate(ctx context.Context, code, userID string, subtotal decimal.Decimal) (*coupon.Result, error)
}

// UsageRecorder records a coupon usage after the order transaction commits.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, couponID, userID, orderID string) error
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	UserID        string
	AddressID     string
	Items         []LineRequest
	CouponCode    string
	PaymentMethod PaymentMethod
	Notes         string
}

// PlaceOrderResult holds the materialized order and the discount actually applied.
type PlaceOrderResult struct {
	Order    *Order
	Discount decimal.Decimal
}

// Service sequences the intake pipeline: validate shape, resolve pricing,
// evaluate coupon, commit the transaction, then run the best-effort
// post-commit steps (usage recording, event publish).
type Service struct {
	pricing   *PricingResolver
	coupons   CouponEvaluator
	usages    UsageRecorder
	orders    Repository
	publisher Publisher
	lg        *zap.Logger
}

// NewService creates an order Service with the required dependencies.
func NewService(
	pricing *PricingResolver,
	coupons CouponEvaluator,
	usages UsageRecorder,
	orders Repository,
	publisher Publisher,
	lg *zap.Logger,
) *Service {
	return &Service{
		pricing:   pricing,
		coupons:   coupons,
		usages:    usages,
		orders:    orders,
		publisher: publisher,
		lg:        lg,
	}
}

// PlaceOrder runs the full intake pipeline. Any failure before the commit
// aborts with nothing persisted. Failures after the commit (usage recording,
// event publish) are logged and swallowed: the order already stands and the
// caller sees success.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	if req.AddressID == "" {
		return nil, ErrMissingAddress
	}
	if !req.PaymentMethod.Valid() {
		req.PaymentMethod = PaymentCash
	}

	pricing, err := s.pricing.Resolve(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	discount := decimal.Zero
	var applied *coupon.Result
	if req.CouponCode != "" {
		applied, err = s.coupons.Evaluate(ctx, req.CouponCode, req.UserID, pricing.Subtotal)
		if err != nil {
			return nil, err
		}
		discount = applied.Discount
	}

	items := make([]Item, len(pricing.Lines))
	for i, line := range pricing.Lines {
		items[i] = Item{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Price:     line.UnitPrice,
		}
	}

	o := &Order{
		ID:            uuid.New().String(),
		UserID:        req.UserID,
		AddressID:     req.AddressID,
		Status:        StatusPending,
		Total:         pricing.Subtotal.Sub(discount).Round(2),
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
		Discount:      discount.Round(2),
		Items:         items,
	}
	if applied != nil {
		o.CouponCode = applied.Code
	}

	created, err := s.orders.Create(ctx, o)
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}

	// Post-commit, best-effort: the order stands even if these degrade.
	if applied != nil {
		if err := s.usages.RecordUsage(ctx, applied.CouponID, req.UserID, created.ID); err != nil {
			s.lg.Warn("coupon usage not recorded",
				zap.String("order_id", created.ID),
				zap.String("coupon_code", applied.Code),
				zap.Error(err),
			)
		}
	}
	if err := s.publisher.PublishOrderCreated(ctx, created); err != nil {
		s.lg.Warn("order event not published",
			zap.String("order_id", created.ID),
			zap.Error(err),
		)
	}

	return &PlaceOrderResult{Order: created, Discount: created.Discount}, nil
}

// GetOrder returns one order with items, scoped to the requesting user.
func (s *Service) GetOrder(ctx context.Context, id, userID string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

// ListOrders returns all orders for one user, newest first.
func (s *Service) ListOrders(ctx context.Context, userID string) ([]Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

// ErrInvalidStatus is returned when a status transition names an unknown state.
var ErrInvalidStatus = errors.New("invalid order status")

// UpdateStatus moves an order to a new lifecycle state. This is the only
// mutation allowed after creation.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status) (*Order, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	return s.orders.UpdateStatus(ctx, id, status)
}

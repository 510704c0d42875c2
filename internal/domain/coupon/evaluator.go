package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Evaluator decides whether a coupon applies to a request and computes the
// discount from the trusted subtotal. It performs no writes.
type Evaluator struct {
	repo Repository
	now  func() time.Time
}

// NewEvaluator creates an Evaluator backed by the given Repository.
func NewEvaluator(repo Repository) *Evaluator {
	return &Evaluator{repo: repo, now: time.Now}
}

// Evaluate normalizes and looks up the coupon code, checks every
// applicability constraint, and returns the clamped discount for the given
// pre-discount subtotal.
//
// Failure modes: ErrNotFound when the code does not resolve to an active
// coupon, *InvalidError when a constraint fails.
func (e *Evaluator) Evaluate(ctx context.Context, code, userID string, subtotal decimal.Decimal) (*Result, error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	c, err := e.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}
	// Inactive coupons are indistinguishable from unknown codes to the caller.
	if !c.IsActive {
		return nil, ErrNotFound
	}

	now := e.now()
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return nil, &InvalidError{Code: code, Reason: "coupon is not valid yet"}
	}
	if c.ValidTo != nil && now.After(*c.ValidTo) {
		return nil, &InvalidError{Code: code, Reason: "coupon has expired"}
	}

	if c.MaxUses > 0 {
		used, err := e.repo.CountUsage(ctx, c.ID)
		if err != nil {
			return nil, errors.Wrap(err, "count coupon usage")
		}
		if used >= c.MaxUses {
			return nil, &InvalidError{Code: code, Reason: "coupon usage limit reached"}
		}
	}

	if c.PerUserLimit > 0 {
		used, err := e.repo.CountUsageByUser(ctx, c.ID, userID)
		if err != nil {
			return nil, errors.Wrap(err, "count coupon usage by user")
		}
		if used >= c.PerUserLimit {
			return nil, &InvalidError{Code: code, Reason: "coupon already used the maximum number of times"}
		}
	}

	if c.ApplicableUserID != "" && c.ApplicableUserID != userID {
		return nil, &InvalidError{Code: code, Reason: "coupon is not available for this account"}
	}

	return &Result{
		CouponID: c.ID,
		Code:     code,
		Discount: clamp(discountFor(c, subtotal), subtotal),
	}, nil
}

// discountFor computes the raw discount before clamping.
func discountFor(c *Coupon, subtotal decimal.Decimal) decimal.Decimal {
	switch c.Type {
	case DiscountPercentage:
		return subtotal.Mul(c.Percentage).Div(hundred).Round(2)
	case DiscountAmount:
		return c.Amount
	default:
		return decimal.Zero
	}
}

// clamp bounds a discount to [0, subtotal].
func clamp(discount, subtotal decimal.Decimal) decimal.Decimal {
	if discount.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(discount, subtotal)
}

// Package coupon implements discount coupons and their applicability rules.
//
// Evaluation is a pure read: usage caps are checked optimistically before the
// order transaction, and a usage row is recorded only after the order commits.
// Two concurrent requests can therefore overrun a nearly exhausted cap by a
// small margin; the intake pipeline accepts that trade-off.
package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountAmount subtracts a fixed monetary amount, capped at the subtotal.
	DiscountAmount DiscountType = "AMOUNT"
	// DiscountPercentage subtracts a percentage of the subtotal.
	DiscountPercentage DiscountType = "PERCENTAGE"
)

// ErrNotFound is returned when a coupon code does not resolve to an active coupon.
var ErrNotFound = errors.New("coupon not found")

// InvalidError indicates a coupon exists but cannot be applied to this request.
// Reason is safe to show to the customer.
type InvalidError struct {
	Code   string
	Reason string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("coupon %s is not applicable: %s", e.Code, e.Reason)
}

// Coupon is a named discount rule with usage constraints. Exactly one of
// Amount or Percentage is set, depending on Type.
type Coupon struct {
	ID               string
	Code             string
	Description      string
	Type             DiscountType
	Amount           decimal.Decimal
	Percentage       decimal.Decimal
	ValidFrom        *time.Time
	ValidTo          *time.Time
	MaxUses          int
	PerUserLimit     int
	ApplicableUserID string
	IsActive         bool
}

// Result holds the outcome of a successful evaluation. CouponID is kept so the
// caller can record a usage row once the order commits.
type Result struct {
	CouponID string
	Code     string
	Discount decimal.Decimal
}

// Repository provides coupon lookup and usage accounting.
type Repository interface {
	// FindByCode returns the coupon for the given upper-cased code, active or
	// not, or ErrNotFound.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// CountUsage returns the total number of recorded usages for a coupon.
	CountUsage(ctx context.Context, couponID string) (int, error)
	// CountUsageByUser returns the number of recorded usages for a coupon by
	// one user.
	CountUsageByUser(ctx context.Context, couponID, userID string) (int, error)
	// RecordUsage links a coupon, a user, and the committed order it was
	// applied to.
	RecordUsage(ctx context.Context, couponID, userID, orderID string) error
}

package repository

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/softdomifood/order-intake/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT id, code, description, discount_type,
		COALESCE(amount, 0), COALESCE(percentage, 0), valid_from, valid_to,
		COALESCE(max_uses, 0), COALESCE(per_user_limit, 0),
		COALESCE(applicable_user_id, ''), is_active
		FROM coupons WHERE code = UPPER($1)`

	countUsageSQL = `SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1`

	countUsageByUserSQL = `SELECT COUNT(*) FROM coupon_usages
		WHERE coupon_id = $1 AND user_id = $2`

	recordUsageSQL = `INSERT INTO coupon_usages (id, coupon_id, user_id, order_id)
		VALUES ($1, $2, $3, $4)`

	listCouponCodesSQL = `SELECT code FROM coupons WHERE is_active = TRUE`
)

// prefilter sizing: generous headroom over the expected code count keeps the
// false positive rate low without reallocation between refreshes.
const (
	prefilterMinCapacity = 1024
	prefilterFPR         = 0.001
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
//
// An optional bloom prefilter of active codes short-circuits lookups for
// codes that cannot exist, so garbage input never reaches the database. The
// filter can report false negatives for codes created after the last refresh;
// callers that need newly created coupons visible immediately should run
// RefreshPrefilter on a short interval (see StartPrefilterRefresh).
type CouponRepository struct {
	pool   *pgxpool.Pool
	filter atomic.Pointer[bloom.BloomFilter]
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
// The prefilter is disabled until the first RefreshPrefilter call.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its upper-cased code, active or inactive.
// Returns coupon.ErrNotFound when no coupon exists for the code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	if f := r.filter.Load(); f != nil && !f.TestString(code) {
		return nil, coupon.ErrNotFound
	}

	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// CountUsage returns the total recorded usages for a coupon.
func (r *CouponRepository) CountUsage(ctx context.Context, couponID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countUsageSQL, couponID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting usage for coupon %q: %w", couponID, err)
	}
	return n, nil
}

// CountUsageByUser returns the recorded usages of a coupon by one user.
func (r *CouponRepository) CountUsageByUser(ctx context.Context, couponID, userID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countUsageByUserSQL, couponID, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting usage for coupon %q by user %q: %w", couponID, userID, err)
	}
	return n, nil
}

// RecordUsage inserts a usage row linking a coupon, a user, and a committed
// order. The id parameter of the row is generated here.
func (r *CouponRepository) RecordUsage(ctx context.Context, couponID, userID, orderID string) error {
	_, err := r.pool.Exec(ctx, recordUsageSQL, newID(), couponID, userID, orderID)
	if err != nil {
		return fmt.Errorf("recording usage for coupon %q on order %q: %w", couponID, orderID, err)
	}
	return nil
}

// RefreshPrefilter rebuilds the bloom prefilter from the active coupon codes
// and swaps it in atomically. Lookups proceed unfiltered until the first
// successful refresh.
func (r *CouponRepository) RefreshPrefilter(ctx context.Context) error {
	rows, err := r.pool.Query(ctx, listCouponCodesSQL)
	if err != nil {
		return fmt.Errorf("listing coupon codes: %w", err)
	}

	codes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var code string
		err := row.Scan(&code)
		return code, err
	})
	if err != nil {
		return fmt.Errorf("listing coupon codes: %w", err)
	}

	capacity := uint(len(codes))
	if capacity < prefilterMinCapacity {
		capacity = prefilterMinCapacity
	}
	f := bloom.NewWithEstimates(capacity, prefilterFPR)
	for _, code := range codes {
		f.AddString(code)
	}

	r.filter.Store(f)
	return nil
}

// StartPrefilterRefresh refreshes the prefilter on the given interval until
// ctx is cancelled. Refresh errors are reported through onErr; the previous
// filter stays in effect.
func (r *CouponRepository) StartPrefilterRefresh(ctx context.Context, interval time.Duration, onErr func(error)) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.RefreshPrefilter(ctx); err != nil && onErr != nil {
					onErr(err)
				}
			}
		}
	}()
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
		validFrom    *time.Time
		validTo      *time.Time
		maxUses      int32
		perUserLimit int32
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Description, &discountType,
		&c.Amount, &c.Percentage, &validFrom, &validTo,
		&maxUses, &perUserLimit, &c.ApplicableUserID, &c.IsActive,
	)
	c.Type = coupon.DiscountType(discountType)
	c.ValidFrom = validFrom
	c.ValidTo = validTo
	c.MaxUses = int(maxUses)
	c.PerUserLimit = int(perUserLimit)
	return c, err
}

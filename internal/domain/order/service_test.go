package order

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/softdomifood/order-intake/internal/domain/coupon"
)

type mockOrderRepo struct {
	created *Order
	err     error

	byID map[string]*Order
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) (*Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.created = o
	return o, nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*Order, error) {
	if o, ok := m.byID[id]; ok {
		return o, nil
	}
	return nil, ErrNotFound
}

func (m *mockOrderRepo) ListByUser(_ context.Context, userID string) ([]Order, error) {
	var out []Order
	for _, o := range m.byID {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id string, status Status) (*Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	o.Status = status
	return o, nil
}

type mockEvaluator struct {
	result *coupon.Result
	err    error

	gotCode     string
	gotSubtotal decimal.Decimal
}

func (m *mockEvaluator) Evaluate(_ context.Context, code, _ string, subtotal decimal.Decimal) (*coupon.Result, error) {
	m.gotCode = code
	m.gotSubtotal = subtotal
	return m.result, m.err
}

type mockUsageRecorder struct {
	err      error
	recorded bool
	orderID  string
}

func (m *mockUsageRecorder) RecordUsage(_ context.Context, _, _, orderID string) error {
	m.recorded = true
	m.orderID = orderID
	return m.err
}

type mockPublisher struct {
	err       error
	published *Order
}

func (m *mockPublisher) PublishOrderCreated(_ context.Context, o *Order) error {
	m.published = o
	return m.err
}

func newTestService(repo *mockOrderRepo, eval *mockEvaluator, usages *mockUsageRecorder, pub *mockPublisher) *Service {
	pricing := NewPricingResolver(catalog())
	return NewService(pricing, eval, usages, repo, pub, zap.NewNop())
}

func TestService_PlaceOrder(t *testing.T) {
	ctx := context.Background()

	baseRequest := func() PlaceOrderRequest {
		return PlaceOrderRequest{
			UserID:    "u1",
			AddressID: "addr-1",
			Items: []LineRequest{
				{ProductID: "prod-margherita", Quantity: 2},
			},
			PaymentMethod: PaymentCard,
		}
	}

	t.Run("happy path without coupon", func(t *testing.T) {
		repo := &mockOrderRepo{}
		pub := &mockPublisher{}
		usages := &mockUsageRecorder{}
		svc := newTestService(repo, &mockEvaluator{}, usages, pub)

		res, err := svc.PlaceOrder(ctx, baseRequest())
		require.NoError(t, err)

		assert.NotEmpty(t, res.Order.ID)
		assert.Equal(t, StatusPending, res.Order.Status)
		assert.Equal(t, "24000.00", res.Order.Total.StringFixed(2))
		assert.True(t, res.Discount.IsZero())
		assert.Empty(t, res.Order.CouponCode)
		require.Len(t, res.Order.Items, 1)
		assert.Equal(t, "12000.00", res.Order.Items[0].Price.StringFixed(2))

		require.NotNil(t, pub.published)
		assert.Equal(t, res.Order.ID, pub.published.ID)
		assert.False(t, usages.recorded)
	})

	t.Run("coupon discount reduces total", func(t *testing.T) {
		repo := &mockOrderRepo{}
		pub := &mockPublisher{}
		usages := &mockUsageRecorder{}
		eval := &mockEvaluator{result: &coupon.Result{
			CouponID: "c1",
			Code:     "SAVE20",
			Discount: decimal.NewFromInt(4800),
		}}
		svc := newTestService(repo, eval, usages, pub)

		req := baseRequest()
		req.CouponCode = "SAVE20"

		res, err := svc.PlaceOrder(ctx, req)
		require.NoError(t, err)

		assert.Equal(t, "19200.00", res.Order.Total.StringFixed(2))
		assert.Equal(t, "4800.00", res.Discount.StringFixed(2))
		assert.Equal(t, "SAVE20", res.Order.CouponCode)
		assert.True(t, decimal.NewFromInt(24000).Equal(eval.gotSubtotal),
			"evaluator got subtotal %s", eval.gotSubtotal)

		assert.True(t, usages.recorded)
		assert.Equal(t, res.Order.ID, usages.orderID)
	})

	t.Run("discount covering the whole subtotal yields a zero total", func(t *testing.T) {
		repo := &mockOrderRepo{}
		eval := &mockEvaluator{result: &coupon.Result{
			CouponID: "c2",
			Code:     "FLAT5000",
			Discount: decimal.NewFromInt(24000),
		}}
		svc := newTestService(repo, eval, &mockUsageRecorder{}, &mockPublisher{})

		req := baseRequest()
		req.CouponCode = "FLAT5000"

		res, err := svc.PlaceOrder(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "0.00", res.Order.Total.StringFixed(2))
	})

	t.Run("missing address", func(t *testing.T) {
		svc := newTestService(&mockOrderRepo{}, &mockEvaluator{}, &mockUsageRecorder{}, &mockPublisher{})

		req := baseRequest()
		req.AddressID = ""

		_, err := svc.PlaceOrder(ctx, req)
		assert.ErrorIs(t, err, ErrMissingAddress)
	})

	t.Run("unknown payment method defaults to cash", func(t *testing.T) {
		repo := &mockOrderRepo{}
		svc := newTestService(repo, &mockEvaluator{}, &mockUsageRecorder{}, &mockPublisher{})

		req := baseRequest()
		req.PaymentMethod = "CRYPTO"

		res, err := svc.PlaceOrder(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, PaymentCash, res.Order.PaymentMethod)
	})

	t.Run("coupon rejection aborts before persistence", func(t *testing.T) {
		repo := &mockOrderRepo{}
		eval := &mockEvaluator{err: coupon.ErrNotFound}
		svc := newTestService(repo, eval, &mockUsageRecorder{}, &mockPublisher{})

		req := baseRequest()
		req.CouponCode = "BOGUS"

		_, err := svc.PlaceOrder(ctx, req)
		assert.ErrorIs(t, err, coupon.ErrNotFound)
		assert.Nil(t, repo.created)
	})

	t.Run("persistence failure is wrapped", func(t *testing.T) {
		repo := &mockOrderRepo{err: errors.New("connection reset")}
		pub := &mockPublisher{}
		svc := newTestService(repo, &mockEvaluator{}, &mockUsageRecorder{}, pub)

		_, err := svc.PlaceOrder(ctx, baseRequest())
		var persistence *PersistenceError
		require.True(t, errors.As(err, &persistence))
		assert.Nil(t, pub.published)
	})

	t.Run("publish failure does not fail the order", func(t *testing.T) {
		repo := &mockOrderRepo{}
		pub := &mockPublisher{err: errors.New("broker down")}
		svc := newTestService(repo, &mockEvaluator{}, &mockUsageRecorder{}, pub)

		res, err := svc.PlaceOrder(ctx, baseRequest())
		require.NoError(t, err)
		assert.NotNil(t, res.Order)
	})

	t.Run("usage recording failure does not fail the order", func(t *testing.T) {
		repo := &mockOrderRepo{}
		usages := &mockUsageRecorder{err: errors.New("insert failed")}
		eval := &mockEvaluator{result: &coupon.Result{
			CouponID: "c1",
			Code:     "SAVE20",
			Discount: decimal.NewFromInt(100),
		}}
		svc := newTestService(repo, eval, usages, &mockPublisher{})

		req := baseRequest()
		req.CouponCode = "SAVE20"

		res, err := svc.PlaceOrder(ctx, req)
		require.NoError(t, err)
		assert.NotNil(t, res.Order)
	})
}

func TestService_GetOrder(t *testing.T) {
	repo := &mockOrderRepo{byID: map[string]*Order{
		"o1": {ID: "o1", UserID: "u1", Status: StatusPending},
	}}
	svc := newTestService(repo, &mockEvaluator{}, &mockUsageRecorder{}, &mockPublisher{})

	t.Run("owner sees the order", func(t *testing.T) {
		o, err := svc.GetOrder(context.Background(), "o1", "u1")
		require.NoError(t, err)
		assert.Equal(t, "o1", o.ID)
	})

	t.Run("other users get not found", func(t *testing.T) {
		_, err := svc.GetOrder(context.Background(), "o1", "u2")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := svc.GetOrder(context.Background(), "missing", "u1")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestService_UpdateStatus(t *testing.T) {
	repo := &mockOrderRepo{byID: map[string]*Order{
		"o1": {ID: "o1", UserID: "u1", Status: StatusPending},
	}}
	svc := newTestService(repo, &mockEvaluator{}, &mockUsageRecorder{}, &mockPublisher{})

	t.Run("valid transition", func(t *testing.T) {
		o, err := svc.UpdateStatus(context.Background(), "o1", StatusConfirmed)
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, o.Status)
	})

	t.Run("unknown status", func(t *testing.T) {
		_, err := svc.UpdateStatus(context.Background(), "o1", "SHIPPED")
		assert.ErrorIs(t, err, ErrInvalidStatus)
	})

	t.Run("unknown order", func(t *testing.T) {
		_, err := svc.UpdateStatus(context.Background(), "missing", StatusConfirmed)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

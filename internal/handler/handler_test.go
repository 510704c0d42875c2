package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/softdomifood/order-intake/internal/domain/coupon"
	"github.com/softdomifood/order-intake/internal/domain/order"
	"github.com/softdomifood/order-intake/internal/domain/product"
)

type stubProductRepo struct {
	products map[string]product.Product
}

func (s *stubProductRepo) List(_ context.Context) ([]product.Product, error) {
	out := make([]product.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	return out, nil
}

func (s *stubProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, &product.NotFoundError{ProductID: id}
	}
	return &p, nil
}

func (s *stubProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type stubCouponRepo struct {
	coupons map[string]*coupon.Coupon
}

func (s *stubCouponRepo) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	c, ok := s.coupons[code]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return c, nil
}

func (s *stubCouponRepo) CountUsage(_ context.Context, _ string) (int, error) { return 0, nil }

func (s *stubCouponRepo) CountUsageByUser(_ context.Context, _, _ string) (int, error) {
	return 0, nil
}

func (s *stubCouponRepo) RecordUsage(_ context.Context, _, _, _ string) error { return nil }

type stubOrderRepo struct {
	orders map[string]*order.Order
}

func (s *stubOrderRepo) Create(_ context.Context, o *order.Order) (*order.Order, error) {
	s.orders[o.ID] = o
	return o, nil
}

func (s *stubOrderRepo) GetByID(_ context.Context, id string) (*order.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (s *stubOrderRepo) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	var out []order.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *stubOrderRepo) UpdateStatus(_ context.Context, id string, status order.Status) (*order.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	o.Status = status
	return o, nil
}

type noopPublisher struct{}

func (noopPublisher) PublishOrderCreated(_ context.Context, _ *order.Order) error { return nil }

func newTestServer(t *testing.T) (*httptest.Server, *stubOrderRepo) {
	t.Helper()

	products := &stubProductRepo{products: map[string]product.Product{
		"prod-margherita": {
			ID:          "prod-margherita",
			Name:        "Pizza Margherita",
			Price:       decimal.NewFromInt(12000),
			IsAvailable: true,
		},
		"prod-lemonade": {
			ID:          "prod-lemonade",
			Name:        "Lemonade",
			Price:       decimal.NewFromInt(3000),
			IsAvailable: true,
		},
		"prod-tiramisu": {
			ID:          "prod-tiramisu",
			Name:        "Tiramisu",
			Price:       decimal.NewFromInt(6900),
			IsAvailable: false,
		},
	}}
	coupons := &stubCouponRepo{coupons: map[string]*coupon.Coupon{
		"SAVE20": {
			ID:         "c1",
			Code:       "SAVE20",
			Type:       coupon.DiscountPercentage,
			Percentage: decimal.NewFromInt(20),
			IsActive:   true,
		},
		"FLAT5000": {
			ID:       "c2",
			Code:     "FLAT5000",
			Type:     coupon.DiscountAmount,
			Amount:   decimal.NewFromInt(5000),
			IsActive: true,
		},
	}}
	orders := &stubOrderRepo{orders: map[string]*order.Order{}}

	svc := order.NewService(
		order.NewPricingResolver(products),
		coupon.NewEvaluator(coupons),
		coupons,
		orders,
		noopPublisher{},
		zap.NewNop(),
	)

	srv := httptest.NewServer(New(svc, products).Routes())
	t.Cleanup(srv.Close)
	return srv, orders
}

func doRequest(t *testing.T, method, url, userID string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestCreateOrder(t *testing.T) {
	t.Run("creates order and applies coupon", func(t *testing.T) {
		srv, _ := newTestServer(t)

		resp := doRequest(t, http.MethodPost, srv.URL+"/orders", "u1", map[string]any{
			"addressId": "addr-1",
			"items": []map[string]any{
				{"productId": "prod-margherita", "quantity": 2},
			},
			"couponCode":    "save20",
			"paymentMethod": "CARD",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		body := decodeBody[createOrderResponse](t, resp)
		assert.NotEmpty(t, body.Order.ID)
		assert.Equal(t, "PENDING", body.Order.Status)
		assert.InDelta(t, 19200, body.Order.Total, 0.001)
		assert.InDelta(t, 4800, body.Discount, 0.001)
		assert.Equal(t, "SAVE20", body.Order.CouponCode)
		require.Len(t, body.Order.Items, 1)
		assert.InDelta(t, 12000, body.Order.Items[0].Price, 0.001)
	})

	t.Run("fixed discount larger than the subtotal is clamped", func(t *testing.T) {
		srv, _ := newTestServer(t)

		resp := doRequest(t, http.MethodPost, srv.URL+"/orders", "u1", map[string]any{
			"addressId": "addr-1",
			"items": []map[string]any{
				{"productId": "prod-lemonade", "quantity": 1},
			},
			"couponCode": "FLAT5000",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		body := decodeBody[createOrderResponse](t, resp)
		assert.InDelta(t, 3000, body.Discount, 0.001)
		assert.InDelta(t, 0, body.Order.Total, 0.001)
	})

	t.Run("requires user identity", func(t *testing.T) {
		srv, _ := newTestServer(t)

		resp := doRequest(t, http.MethodPost, srv.URL+"/orders", "", map[string]any{
			"addressId": "addr-1",
			"items":     []map[string]any{{"productId": "prod-margherita", "quantity": 1}},
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		srv, _ := newTestServer(t)

		req, err := http.NewRequest(http.MethodPost, srv.URL+"/orders", bytes.NewBufferString("{not json"))
		require.NoError(t, err)
		req.Header.Set("X-User-ID", "u1")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("empty cart returns 422", func(t *testing.T) {
		srv, _ := newTestServer(t)

		resp := doRequest(t, http.MethodPost, srv.URL+"/orders", "u1", map[string]any{
			"addressId": "addr-1",
			"items":     []map[string]any{},
		})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("missing address returns 422", func(t *testing.T) {
		srv, _ := newTestServer(t)

		resp := doRequest(t, http.MethodPost, srv.URL+"/orders", "u1", map[string]any{
			"items": []map[string]any{{"productId": "prod-margherita", "quantity": 1}},
		})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("zero quantity returns 422", func(t *testing.T) {
		srv, _ := newTestServer(t)

		resp := doRequest(t, http.MethodPost, srv.URL+"/orders", "u1", map[string]any{
			"addressId": "addr-1",
			"items":     []map[string]any{{"productId": "prod-margherita", "quantity": 0}},
		})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("unknown product returns 404", func(t *testing.T) {
		srv, _ := newTestServer(t)

		resp := doRequest(t, http.MethodPost, srv.URL+"/orders", "u1", map[string]any{
			"addressId": "addr-1",
			"items":     []map[string]any{{"productId": "XYZ", "quantity": 1}},
		})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)

		body := decodeBody[errorResponse](t, resp)
		assert.Contains(t, body.Error, "XYZ")
	})

	t.Run("unavailable product returns 400", func(t *testing.T) {
		srv, _ := newTestServer(t)

		resp := doRequest(t, http.MethodPost, srv.URL+"/orders", "u1", map[string]any{
			"addressId": "addr-1",
			"items":     []map[string]any{{"productId": "prod-tiramisu", "quantity": 1}},
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown coupon returns 404", func(t *testing.T) {
		srv, _ := newTestServer(t)

		resp := doRequest(t, http.MethodPost, srv.URL+"/orders", "u1", map[string]any{
			"addressId":  "addr-1",
			"items":      []map[string]any{{"productId": "prod-margherita", "quantity": 1}},
			"couponCode": "BOGUS",
		})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)

		body := decodeBody[errorResponse](t, resp)
		assert.Equal(t, "coupon not found", body.Error)
	})
}

func TestGetOrder(t *testing.T) {
	srv, repo := newTestServer(t)
	repo.orders["o1"] = &order.Order{
		ID:     "o1",
		UserID: "u1",
		Status: order.StatusPending,
		Total:  decimal.NewFromInt(100),
	}

	t.Run("owner sees the order", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, srv.URL+"/orders/o1", "u1", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody[orderResponse](t, resp)
		assert.Equal(t, "o1", body.ID)
	})

	t.Run("other user gets 404", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, srv.URL+"/orders/o1", "u2", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("unknown id gets 404", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, srv.URL+"/orders/missing", "u1", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestListOrders(t *testing.T) {
	srv, repo := newTestServer(t)
	repo.orders["o1"] = &order.Order{ID: "o1", UserID: "u1", Total: decimal.NewFromInt(100)}
	repo.orders["o2"] = &order.Order{ID: "o2", UserID: "u2", Total: decimal.NewFromInt(200)}

	resp := doRequest(t, http.MethodGet, srv.URL+"/orders", "u1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[[]orderResponse](t, resp)
	require.Len(t, body, 1)
	assert.Equal(t, "o1", body[0].ID)
}

func TestUpdateOrderStatus(t *testing.T) {
	srv, repo := newTestServer(t)
	repo.orders["o1"] = &order.Order{ID: "o1", UserID: "u1", Status: order.StatusPending}

	t.Run("valid transition", func(t *testing.T) {
		resp := doRequest(t, http.MethodPatch, srv.URL+"/orders/o1/status", "admin", map[string]any{
			"status": "CONFIRMED",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody[orderResponse](t, resp)
		assert.Equal(t, "CONFIRMED", body.Status)
	})

	t.Run("unknown status returns 422", func(t *testing.T) {
		resp := doRequest(t, http.MethodPatch, srv.URL+"/orders/o1/status", "admin", map[string]any{
			"status": "SHIPPED",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})
}

func TestProducts(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("list", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, srv.URL+"/products", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody[[]productResponse](t, resp)
		assert.Len(t, body, 3)
	})

	t.Run("get by id", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, srv.URL+"/products/prod-margherita", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody[productResponse](t, resp)
		assert.Equal(t, "Pizza Margherita", body.Name)
		assert.InDelta(t, 12000, body.Price, 0.001)
	})

	t.Run("unknown id gets 404", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, srv.URL+"/products/nope", "", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

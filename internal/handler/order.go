package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/softdomifood/order-intake/internal/domain/coupon"
	"github.com/softdomifood/order-intake/internal/domain/order"
	"github.com/softdomifood/order-intake/internal/domain/product"
)

type createOrderRequest struct {
	AddressID     string          `json:"addressId"`
	Items         []lineRequest   `json:"items"`
	CouponCode    string          `json:"couponCode,omitempty"`
	PaymentMethod string          `json:"paymentMethod,omitempty"`
	Notes         string          `json:"notes,omitempty"`
}

type lineRequest struct {
	ProductID string   `json:"productId"`
	Quantity  int      `json:"quantity"`
	Price     *float64 `json:"price,omitempty"`
}

type orderResponse struct {
	ID            string         `json:"id"`
	UserID        string         `json:"userId"`
	AddressID     string         `json:"addressId"`
	Status        string         `json:"status"`
	Total         float64        `json:"total"`
	PaymentMethod string         `json:"paymentMethod"`
	Notes         string         `json:"notes,omitempty"`
	CouponCode    string         `json:"couponCode,omitempty"`
	Discount      float64        `json:"discount"`
	Items         []itemResponse `json:"items"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

type itemResponse struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

type createOrderResponse struct {
	Order    orderResponse `json:"order"`
	Discount float64       `json:"discount"`
}

// CreateOrder handles POST /orders: the full intake pipeline.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	uid := userID(w, r)
	if uid == "" {
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	lines := make([]order.LineRequest, len(req.Items))
	for i, item := range req.Items {
		lines[i] = order.LineRequest{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		}
		if item.Price != nil {
			p := decimal.NewFromFloat(*item.Price)
			lines[i].Price = &p
		}
	}

	result, err := h.orders.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		UserID:        uid,
		AddressID:     req.AddressID,
		Items:         lines,
		CouponCode:    req.CouponCode,
		PaymentMethod: order.PaymentMethod(req.PaymentMethod),
		Notes:         req.Notes,
	})
	if err != nil {
		writeOrderError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, createOrderResponse{
		Order:    toOrderResponse(result.Order),
		Discount: result.Discount.InexactFloat64(),
	})
}

// GetOrder handles GET /orders/{id}, scoped to the requesting customer.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	uid := userID(w, r)
	if uid == "" {
		return
	}

	o, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "id"), uid)
	if err != nil {
		writeOrderError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toOrderResponse(o))
}

// ListOrders handles GET /orders for the requesting customer.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	uid := userID(w, r)
	if uid == "" {
		return
	}

	orders, err := h.orders.ListOrders(r.Context(), uid)
	if err != nil {
		writeOrderError(w, r, err)
		return
	}

	resp := make([]orderResponse, len(orders))
	for i := range orders {
		resp[i] = toOrderResponse(&orders[i])
	}
	writeJSON(w, r, http.StatusOK, resp)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateOrderStatus handles PATCH /orders/{id}/status, the admin transition.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), order.Status(req.Status))
	if err != nil {
		writeOrderError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toOrderResponse(o))
}

// writeOrderError maps the intake error taxonomy to HTTP statuses. Cart and
// coupon state errors carry descriptive messages; infrastructure failures get
// a generic body with the detail kept in the log.
func writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		notFound    *product.NotFoundError
		unavailable *product.UnavailableError
		badQty      *order.InvalidQuantityError
		badCoupon   *coupon.InvalidError
		persistence *order.PersistenceError
	)

	switch {
	case errors.Is(err, order.ErrMissingAddress),
		errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrInvalidStatus),
		errors.As(err, &badQty):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &notFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.As(err, &unavailable):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, coupon.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "coupon not found")
	case errors.As(err, &badCoupon):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "order not found")
	case errors.As(err, &persistence):
		zctx.From(r.Context()).Error("order transaction failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "could not create order")
	default:
		zctx.From(r.Context()).Error("order request failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]itemResponse, len(o.Items))
	for i, item := range o.Items {
		items[i] = itemResponse{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price.InexactFloat64(),
		}
	}
	return orderResponse{
		ID:            o.ID,
		UserID:        o.UserID,
		AddressID:     o.AddressID,
		Status:        string(o.Status),
		Total:         o.Total.InexactFloat64(),
		PaymentMethod: string(o.PaymentMethod),
		Notes:         o.Notes,
		CouponCode:    o.CouponCode,
		Discount:      o.Discount.InexactFloat64(),
		Items:         items,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

// Package handler exposes the order-intake service over HTTP. It is a thin
// layer: decode, delegate to the domain, map errors to statuses.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/softdomifood/order-intake/internal/domain/order"
	"github.com/softdomifood/order-intake/internal/domain/product"
)

// userIDHeader carries the authenticated customer id, set by the upstream
// gateway. Authentication itself is an external collaborator.
const userIDHeader = "X-User-ID"

// Handler holds the HTTP endpoints for orders and the product catalog.
type Handler struct {
	orders   *order.Service
	products product.Repository
}

// New constructs a Handler with the required domain dependencies.
func New(orders *order.Service, products product.Repository) *Handler {
	return &Handler{orders: orders, products: products}
}

// Routes returns the API router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Get("/{id}", h.GetProduct)
	})

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.CreateOrder)
		r.Get("/", h.ListOrders)
		r.Get("/{id}", h.GetOrder)
		r.Patch("/{id}/status", h.UpdateOrderStatus)
	})

	return r
}

// userID extracts the customer identity from the request, or fails the
// request with 401 and returns "".
func userID(w http.ResponseWriter, r *http.Request) string {
	id := r.Header.Get(userIDHeader)
	if id == "" {
		writeError(w, r, http.StatusUnauthorized, "user not authenticated")
	}
	return id
}

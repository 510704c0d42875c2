package rabbitmq

import (
	"github.com/go-faster/jx"

	"github.com/softdomifood/order-intake/internal/domain/order"
)

// encodeOrderMessage builds the fulfillment-queue message the downstream
// worker expects:
//
//	{"orderId": "...", "userId": "...", "addressId": "...",
//	 "items": [{"productId": "...", "quantity": 2, "price": 12000.00}],
//	 "total": 24000.00, "notes": "..." | null}
//
// Identifiers are canonical strings; money fields are JSON numbers with two
// decimal places.
func encodeOrderMessage(o *order.Order) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("orderId", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("userId", func(e *jx.Encoder) { e.Str(o.UserID) })
		e.Field("addressId", func(e *jx.Encoder) { e.Str(o.AddressID) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, item := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("productId", func(e *jx.Encoder) { e.Str(item.ProductID) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(item.Quantity) })
						e.Field("price", func(e *jx.Encoder) { e.Raw([]byte(item.Price.StringFixed(2))) })
					})
				}
			})
		})
		e.Field("total", func(e *jx.Encoder) { e.Raw([]byte(o.Total.StringFixed(2))) })
		e.Field("notes", func(e *jx.Encoder) {
			if o.Notes == "" {
				e.Null()
			} else {
				e.Str(o.Notes)
			}
		})
	})
	return e.Bytes()
}

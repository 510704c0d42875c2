package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/softdomifood/order-intake/internal/domain/product"
)

// LineRequest is one requested cart line. Price is the optional client-sent
// unit price; it is advisory only and never overrides the catalog price.
type LineRequest struct {
	ProductID string
	Quantity  int
	Price     *decimal.Decimal
}

// ResolvedLine is a validated line with its authoritative unit price.
type ResolvedLine struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Pricing is the result of resolving a cart against the live catalog.
type Pricing struct {
	Lines    []ResolvedLine
	Subtotal decimal.Decimal
}

// PricingResolver recomputes a trusted subtotal for a requested cart from the
// current catalog state. It is a pure read with no side effects.
type PricingResolver struct {
	products product.Repository
}

// NewPricingResolver creates a PricingResolver over the given catalog.
func NewPricingResolver(products product.Repository) *PricingResolver {
	return &PricingResolver{products: products}
}

// Resolve validates every line and prices it from the catalog in a single
// batch fetch. Unknown products fail with *product.NotFoundError, unavailable
// ones with *product.UnavailableError. The client-sent price is ignored
// whenever the catalog resolves a price, which it always does for a product
// that exists.
func (r *PricingResolver) Resolve(ctx context.Context, lines []LineRequest) (*Pricing, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyItems
	}

	ids := make([]string, len(lines))
	for i, line := range lines {
		if line.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: line.ProductID}
		}
		ids[i] = line.ProductID
	}

	fetched, err := r.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}

	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	resolved := make([]ResolvedLine, len(lines))
	subtotal := decimal.Zero
	for i, line := range lines {
		p, ok := byID[line.ProductID]
		if !ok {
			return nil, &product.NotFoundError{ProductID: line.ProductID}
		}
		if !p.IsAvailable {
			return nil, &product.UnavailableError{ProductID: p.ID, Name: p.Name}
		}

		resolved[i] = ResolvedLine{
			ProductID: p.ID,
			Quantity:  line.Quantity,
			UnitPrice: p.Price,
		}
		subtotal = subtotal.Add(p.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	return &Pricing{Lines: resolved, Subtotal: subtotal}, nil
}

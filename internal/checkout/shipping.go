package checkout

import "github.com/fjod/go_cart/checkout-core/domain"

// ShippingConfig holds the store-wide shipping rule.
type ShippingConfig struct {
	FreeShippingThreshold int64
	FlatShippingFee       int64
}

// ShippingFee is the only place the free-shipping rule is computed. Orders
// strictly above the threshold ship free, as does any freeship promo.
func ShippingFee(cfg ShippingConfig, subtotal int64, freeShip bool) int64 {
	if freeShip || subtotal > cfg.FreeShippingThreshold {
		return 0
	}
	return cfg.FlatShippingFee
}

// PriceLines prices cart lines at the current catalog price, never the cart's
// snapshot. Orders and promo quotes both go through it.
func PriceLines(lines []domain.CartLineItem, products map[int64]domain.Product) ([]domain.OrderItem, int64, error) {
	items := make([]domain.OrderItem, len(lines))
	var subtotal int64
	for i, line := range lines {
		p, ok := products[line.ProductID]
		if !ok {
			return nil, 0, domain.ErrProductNotFound
		}
		items[i] = domain.OrderItem{
			ProductID:   p.ID,
			ProductName: p.Name,
			UnitPrice:   p.Price,
			Quantity:    line.Quantity,
		}
		subtotal += items[i].LineTotal()
	}
	return items, subtotal, nil
}

package domain

import (
	"sort"
	"time"
)

type CartLineItem struct {
	ProductID     int64     `json:"product_id"`
	Quantity      int       `json:"quantity"`
	PriceSnapshot int64     `json:"price_snapshot"`
	AddedAt       time.Time `json:"added_at"`
}

type Cart struct {
	UserID    string         `json:"user_id"`
	Items     []CartLineItem `json:"items"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Total is always derived from the line items.
func (c *Cart) Total() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.PriceSnapshot * int64(item.Quantity)
	}
	return total
}

func (c *Cart) Item(productID int64) (CartLineItem, bool) {
	for _, item := range c.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return CartLineItem{}, false
}

// Select returns every line when all is true, otherwise the lines whose
// product id is in ids. Unknown ids are ignored.
func (c *Cart) Select(all bool, ids []int64) []CartLineItem {
	if all {
		return append([]CartLineItem(nil), c.Items...)
	}
	wanted := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	var selected []CartLineItem
	for _, item := range c.Items {
		if _, ok := wanted[item.ProductID]; ok {
			selected = append(selected, item)
		}
	}
	return selected
}

// MergeCarts folds a client-held guest cart into the server cart. Quantities
// of matching products are summed and then clamped to current stock; lines
// left with no available stock are dropped. The server's price snapshot wins
// for products already in the server cart.
func MergeCarts(guest, server Cart, stockOf func(productID int64) int) Cart {
	byID := make(map[int64]CartLineItem, len(server.Items)+len(guest.Items))
	for _, item := range server.Items {
		byID[item.ProductID] = item
	}
	for _, item := range guest.Items {
		if item.Quantity <= 0 {
			continue
		}
		if existing, ok := byID[item.ProductID]; ok {
			existing.Quantity += item.Quantity
			byID[item.ProductID] = existing
			continue
		}
		byID[item.ProductID] = item
	}

	merged := Cart{UserID: server.UserID, UpdatedAt: server.UpdatedAt}
	for id, item := range byID {
		if available := stockOf(id); item.Quantity > available {
			item.Quantity = available
		}
		if item.Quantity <= 0 {
			continue
		}
		merged.Items = append(merged.Items, item)
	}
	sort.Slice(merged.Items, func(i, j int) bool {
		return merged.Items[i].ProductID < merged.Items[j].ProductID
	})
	return merged
}

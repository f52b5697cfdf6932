package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OrderItem is the immutable snapshot of one purchased line.
type OrderItem struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	UnitPrice   int64  `json:"unit_price"`
	Quantity    int    `json:"quantity"`
}

func (i OrderItem) LineTotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

type CustomerInfo struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

type Address struct {
	Line     string `json:"line"`
	Ward     string `json:"ward,omitempty"`
	District string `json:"district,omitempty"`
	City     string `json:"city,omitempty"`
}

// PaymentInfo holds the provider metadata recorded by the gateway callback.
type PaymentInfo struct {
	TransactionRef string     `json:"transaction_ref,omitempty"`
	ProviderTxnID  string     `json:"provider_txn_id,omitempty"`
	ResponseCode   string     `json:"response_code,omitempty"`
	BankCode       string     `json:"bank_code,omitempty"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
}

type Order struct {
	ID              uuid.UUID
	OrderNumber     string
	UserID          string
	Items           []OrderItem
	Subtotal        int64
	Discount        int64
	ShippingFee     int64
	Total           int64
	PromoCode       *string
	PaymentMethod   PaymentMethod
	Customer        CustomerInfo
	ShippingAddress Address
	Notes           string

	OrderStatus   OrderStatus
	PaymentStatus PaymentStatus
	Payment       PaymentInfo
	CancelReason  string
	StockRestored bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// StockLines returns the quantities the order took out of inventory.
func (o *Order) StockLines() []StockLine {
	lines := make([]StockLine, len(o.Items))
	for i, item := range o.Items {
		lines[i] = StockLine{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	return lines
}

// ItemsSubtotal recomputes Σ unitPrice × quantity over the snapshot.
func (o *Order) ItemsSubtotal() int64 {
	var sum int64
	for _, item := range o.Items {
		sum += item.LineTotal()
	}
	return sum
}

// ComputeTotal is subtotal − discount + shipping, never below zero.
func ComputeTotal(subtotal, discount, shippingFee int64) int64 {
	total := subtotal - discount + shippingFee
	if total < 0 {
		return 0
	}
	return total
}

// FormatOrderNumber renders the human-shareable order number for a sequence value.
func FormatOrderNumber(day time.Time, seq int64) string {
	return fmt.Sprintf("ORD-%s-%06d", day.Format("20060102"), seq)
}

// StockLine is a (product, quantity) pair handed to the stock ledger.
type StockLine struct {
	ProductID int64
	Quantity  int
}

// Product is the catalog collaborator's view of a sellable item.
type Product struct {
	ID    int64
	Name  string
	Price int64
	Stock int
}

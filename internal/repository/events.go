package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fjod/go_cart/checkout-core/domain"
)

// OrderEventPayload is the body of every order event on the wire.
type OrderEventPayload struct {
	OrderNumber   string               `json:"order_number"`
	UserID        string               `json:"user_id"`
	OrderStatus   domain.OrderStatus   `json:"order_status"`
	PaymentStatus domain.PaymentStatus `json:"payment_status"`
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
	Total         int64                `json:"total"`
	Items         []domain.OrderItem   `json:"items,omitempty"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

// NewOrderEvent builds the outbox row for an order state change.
func NewOrderEvent(eventType string, order *domain.Order, at time.Time) (*OutboxEvent, error) {
	payload, err := json.Marshal(OrderEventPayload{
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		OrderStatus:   order.OrderStatus,
		PaymentStatus: order.PaymentStatus,
		PaymentMethod: order.PaymentMethod,
		Total:         order.Total,
		Items:         order.Items,
		OccurredAt:    at,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return &OutboxEvent{AggregateId: order.OrderNumber, EventType: eventType, Payload: payload}, nil
}

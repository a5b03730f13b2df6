package broker

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/checkout-core/internal/domain/order"
)

// Event types consumed by the notification service. Only the trigger matters
// here; template rendering and delivery are external.
const (
	EventOrderCreated        = "order.created"
	EventSettlementConfirmed = "order.settlement_confirmed"
	EventStatusChanged       = "order.status_changed"
	EventSettlementConflict  = "order.settlement_conflict"
)

// OrderEvent is the message published on order lifecycle changes.
type OrderEvent struct {
	Type           string              `json:"type"`
	OrderID        string              `json:"order_id"`
	UserID         string              `json:"user_id,omitempty"`
	GuestEmail     string              `json:"guest_email,omitempty"`
	Status         order.Status        `json:"status"`
	PreviousStatus order.Status        `json:"previous_status,omitempty"`
	Method         order.PaymentMethod `json:"method"`
	Amount         decimal.Decimal     `json:"amount"`
	GatewayOrderID string              `json:"gateway_order_id,omitempty"`
	Timestamp      time.Time           `json:"timestamp"`
}

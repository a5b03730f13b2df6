package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/checkout-core/internal/domain/order"
)

// ErrIntentNotFound is returned when no pending intent matches a gateway
// order id: the checkout expired, never existed, or was already consumed by
// an earlier delivery of the same callback.
var ErrIntentNotFound = errors.New("pending checkout intent not found")

// PendingIntent binds a gateway-issued order id to the cart contents,
// address, and amounts that produced it. It is the only pre-settlement
// record of a gateway checkout; no durable order exists until settlement is
// confirmed. Intents expire after a fixed TTL so abandoned checkouts cannot
// accumulate.
type PendingIntent struct {
	GatewayOrderID string
	Method         order.PaymentMethod
	Owner          order.Owner
	Items          []order.LineItem
	Address        order.Address
	Amount         decimal.Decimal
	DeliveryCharge decimal.Decimal
	Coupon         *order.AppliedCoupon
	CreatedAt      time.Time
}

// IntentStore persists pending intents with automatic expiry.
type IntentStore interface {
	// Put stores an intent keyed by its gateway order id, expiring after ttl.
	Put(ctx context.Context, intent *PendingIntent, ttl time.Duration) error
	// Consume atomically fetches and deletes an intent. A second Consume for
	// the same key returns ErrIntentNotFound, which is what makes settlement
	// callbacks idempotent under at-least-once delivery.
	Consume(ctx context.Context, gatewayOrderID string) (*PendingIntent, error)
}

// CartClearer empties a user's cart after a committed checkout. The cart
// itself is owned by an external service.
type CartClearer interface {
	Clear(ctx context.Context, userID string) error
}

// NopCartClearer is used when no cart service is wired (guest checkouts,
// tests).
type NopCartClearer struct{}

func (NopCartClearer) Clear(context.Context, string) error { return nil }

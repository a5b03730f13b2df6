package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// PaymentMethod identifies the settlement path chosen at checkout.
type PaymentMethod string

const (
	// MethodCash is cash on delivery: no gateway, stock committed at creation.
	MethodCash PaymentMethod = "cash"
	// MethodPayPal is the hosted-session gateway.
	MethodPayPal PaymentMethod = "paypal"
	// MethodRazorpay is the hosted-order gateway with signed callbacks.
	MethodRazorpay PaymentMethod = "razorpay"
)

// Owner identifies who placed an order: a registered user id, or a guest
// contact snapshot when no account exists.
type Owner struct {
	UserID     string
	GuestName  string
	GuestEmail string
	GuestPhone string
}

// Address is the shipping address snapshot taken at order time.
type Address struct {
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// LineItem is a snapshot of a product at order time. Later catalog edits
// never retroactively change historical orders.
type LineItem struct {
	ProductID string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
	Size      string // empty for items without size variants
	Category  string
}

// AppliedCoupon is the coupon snapshot stored on an order: the code and the
// amounts it produced, not a live reference.
type AppliedCoupon struct {
	Code             string
	DiscountAmount   decimal.Decimal
	ShippingDiscount decimal.Decimal
}

// Order is a durable customer order.
type Order struct {
	ID               string
	Owner            Owner
	Items            []LineItem
	Address          Address
	Amount           decimal.Decimal
	DeliveryCharge   decimal.Decimal // as charged, net of any shipping discount
	Status           Status
	PaymentMethod    PaymentMethod
	PaymentConfirmed bool
	Coupon           *AppliedCoupon
	GatewayOrderID   string
	GatewayPaymentID string
	CreatedAt        time.Time
}

// Subtotal returns the sum of unit price times quantity across line items.
func (o *Order) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range o.Items {
		sum = sum.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return sum
}

// RecomputeAmount derives the order amount from its stored parts:
// subtotal - discount + delivery charge. Amount must always equal this.
func (o *Order) RecomputeAmount() decimal.Decimal {
	discount := decimal.Zero
	if o.Coupon != nil {
		discount = o.Coupon.DiscountAmount
	}
	return o.Subtotal().Sub(discount).Add(o.DeliveryCharge)
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	// TransitionStatus moves an order from one status to another as a single
	// conditional update; it fails with ErrNotFound when the order is absent
	// or no longer in the expected status.
	TransitionStatus(ctx context.Context, id string, from, to Status) error
}

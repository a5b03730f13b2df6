package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/checkout-core/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (id, user_id, guest_name, guest_email, guest_phone,
		items, address, amount, delivery_charge, status, payment_method, payment_confirmed,
		coupon_code, discount_amount, shipping_discount,
		gateway_order_id, gateway_payment_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	getOrderByIDSQL = `SELECT id, user_id, guest_name, guest_email, guest_phone,
		items, address, amount, delivery_charge, status, payment_method, payment_confirmed,
		coupon_code, discount_amount, shipping_discount,
		gateway_order_id, gateway_payment_id, created_at
		FROM orders WHERE id = $1`

	// Conditional on the expected status: a concurrent transition loses the
	// race cleanly instead of overwriting.
	transitionOrderStatusSQL = `UPDATE orders SET status = $3 WHERE id = $1 AND status = $2`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Line
// items and the address are stored as JSONB snapshots; the coupon snapshot
// is flattened into columns.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

type lineItemRow struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Size      string          `json:"size,omitempty"`
	Category  string          `json:"category,omitempty"`
}

type addressRow struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Create persists a new order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	items := make([]lineItemRow, len(o.Items))
	for i, item := range o.Items {
		items[i] = lineItemRow(item)
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	addressJSON, err := json.Marshal(addressRow(o.Address))
	if err != nil {
		return fmt.Errorf("marshaling order address: %w", err)
	}

	var (
		couponCode       *string
		discountAmount   decimal.Decimal
		shippingDiscount decimal.Decimal
	)
	if o.Coupon != nil {
		couponCode = &o.Coupon.Code
		discountAmount = o.Coupon.DiscountAmount
		shippingDiscount = o.Coupon.ShippingDiscount
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, nullable(o.Owner.UserID), o.Owner.GuestName, o.Owner.GuestEmail, o.Owner.GuestPhone,
		itemsJSON, addressJSON, o.Amount, o.DeliveryCharge,
		string(o.Status), string(o.PaymentMethod), o.PaymentConfirmed,
		couponCode, discountAmount, shippingDiscount,
		o.GatewayOrderID, o.GatewayPaymentID, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID loads an order with its item and address snapshots.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("finding order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("finding order %q: %w", id, err)
	}
	return &o, nil
}

// TransitionStatus moves an order from one status to another as a single
// conditional update.
func (r *OrderRepository) TransitionStatus(ctx context.Context, id string, from, to order.Status) error {
	tag, err := r.pool.Exec(ctx, transitionOrderStatusSQL, id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("transitioning order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                order.Order
		userID           *string
		itemsJSON        []byte
		addressJSON      []byte
		status           string
		method           string
		couponCode       *string
		discountAmount   decimal.Decimal
		shippingDiscount decimal.Decimal
		createdAt        time.Time
	)
	err := row.Scan(
		&o.ID, &userID, &o.Owner.GuestName, &o.Owner.GuestEmail, &o.Owner.GuestPhone,
		&itemsJSON, &addressJSON, &o.Amount, &o.DeliveryCharge,
		&status, &method, &o.PaymentConfirmed,
		&couponCode, &discountAmount, &shippingDiscount,
		&o.GatewayOrderID, &o.GatewayPaymentID, &createdAt,
	)
	if err != nil {
		return order.Order{}, err
	}

	var items []lineItemRow
	if err := json.Unmarshal(itemsJSON, &items); err != nil {
		return order.Order{}, fmt.Errorf("unmarshaling order items: %w", err)
	}
	o.Items = make([]order.LineItem, len(items))
	for i, item := range items {
		o.Items[i] = order.LineItem(item)
	}

	var addr addressRow
	if err := json.Unmarshal(addressJSON, &addr); err != nil {
		return order.Order{}, fmt.Errorf("unmarshaling order address: %w", err)
	}
	o.Address = order.Address(addr)

	if userID != nil {
		o.Owner.UserID = *userID
	}
	o.Status = order.Status(status)
	o.PaymentMethod = order.PaymentMethod(method)
	if couponCode != nil {
		o.Coupon = &order.AppliedCoupon{
			Code:             *couponCode,
			DiscountAmount:   discountAmount,
			ShippingDiscount: shippingDiscount,
		}
	}
	o.CreatedAt = createdAt
	return o, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

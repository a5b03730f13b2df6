package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/xenking/checkout-core/internal/domain/checkout"
	"github.com/xenking/checkout-core/internal/domain/order"
)

var _ checkout.IntentStore = (*RedisIntentStore)(nil)

// RedisIntentStore keeps pending checkout intents in Redis. Expiry is the
// key TTL; consume-once is GETDEL, so a duplicate settlement callback finds
// nothing and the caller treats it as already handled. The payload is a
// hand-written jx document, same codec as the HTTP wire layer.
type RedisIntentStore struct {
	client *redis.Client
}

// NewRedisIntentStore returns a RedisIntentStore using the given client.
func NewRedisIntentStore(client *redis.Client) *RedisIntentStore {
	return &RedisIntentStore{client: client}
}

func intentKey(gatewayOrderID string) string {
	return "checkout:intent:" + gatewayOrderID
}

func (s *RedisIntentStore) Put(ctx context.Context, intent *checkout.PendingIntent, ttl time.Duration) error {
	payload := encodeIntent(intent)
	if err := s.client.Set(ctx, intentKey(intent.GatewayOrderID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("storing intent %q: %w", intent.GatewayOrderID, err)
	}
	return nil
}

func (s *RedisIntentStore) Consume(ctx context.Context, gatewayOrderID string) (*checkout.PendingIntent, error) {
	payload, err := s.client.GetDel(ctx, intentKey(gatewayOrderID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, checkout.ErrIntentNotFound
		}
		return nil, fmt.Errorf("consuming intent %q: %w", gatewayOrderID, err)
	}

	intent, err := decodeIntent(payload)
	if err != nil {
		return nil, fmt.Errorf("decoding intent %q: %w", gatewayOrderID, err)
	}
	return intent, nil
}

func encodeIntent(intent *checkout.PendingIntent) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("gateway_order_id", func(e *jx.Encoder) { e.Str(intent.GatewayOrderID) })
		e.Field("method", func(e *jx.Encoder) { e.Str(string(intent.Method)) })
		if intent.Owner.UserID != "" {
			e.Field("user_id", func(e *jx.Encoder) { e.Str(intent.Owner.UserID) })
		}
		if intent.Owner.GuestName != "" {
			e.Field("guest_name", func(e *jx.Encoder) { e.Str(intent.Owner.GuestName) })
		}
		if intent.Owner.GuestEmail != "" {
			e.Field("guest_email", func(e *jx.Encoder) { e.Str(intent.Owner.GuestEmail) })
		}
		if intent.Owner.GuestPhone != "" {
			e.Field("guest_phone", func(e *jx.Encoder) { e.Str(intent.Owner.GuestPhone) })
		}
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, item := range intent.Items {
					encodeIntentItem(e, item)
				}
			})
		})
		e.Field("address", func(e *jx.Encoder) { encodeIntentAddress(e, intent.Address) })
		e.Field("amount", func(e *jx.Encoder) { encodeIntentNum(e, intent.Amount) })
		e.Field("delivery_charge", func(e *jx.Encoder) { encodeIntentNum(e, intent.DeliveryCharge) })
		if intent.Coupon != nil {
			e.Field("coupon", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					e.Field("code", func(e *jx.Encoder) { e.Str(intent.Coupon.Code) })
					e.Field("discount_amount", func(e *jx.Encoder) { encodeIntentNum(e, intent.Coupon.DiscountAmount) })
					e.Field("shipping_discount", func(e *jx.Encoder) { encodeIntentNum(e, intent.Coupon.ShippingDiscount) })
				})
			})
		}
		e.Field("created_at", func(e *jx.Encoder) { e.Str(intent.CreatedAt.Format(time.RFC3339Nano)) })
	})
	return e.Bytes()
}

func decodeIntent(payload []byte) (*checkout.PendingIntent, error) {
	d := jx.DecodeBytes(payload)
	intent := &checkout.PendingIntent{}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "gateway_order_id":
			intent.GatewayOrderID, err = d.Str()
		case "method":
			var v string
			v, err = d.Str()
			intent.Method = order.PaymentMethod(v)
		case "user_id":
			intent.Owner.UserID, err = d.Str()
		case "guest_name":
			intent.Owner.GuestName, err = d.Str()
		case "guest_email":
			intent.Owner.GuestEmail, err = d.Str()
		case "guest_phone":
			intent.Owner.GuestPhone, err = d.Str()
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				item, err := decodeIntentItem(d)
				if err != nil {
					return err
				}
				intent.Items = append(intent.Items, item)
				return nil
			})
		case "address":
			err = decodeIntentAddress(d, &intent.Address)
		case "amount":
			intent.Amount, err = decodeIntentNum(d)
		case "delivery_charge":
			intent.DeliveryCharge, err = decodeIntentNum(d)
		case "coupon":
			applied := &order.AppliedCoupon{}
			err = d.Obj(func(d *jx.Decoder, key string) error {
				var err error
				switch key {
				case "code":
					applied.Code, err = d.Str()
				case "discount_amount":
					applied.DiscountAmount, err = decodeIntentNum(d)
				case "shipping_discount":
					applied.ShippingDiscount, err = decodeIntentNum(d)
				default:
					err = d.Skip()
				}
				return err
			})
			intent.Coupon = applied
		case "created_at":
			var v string
			if v, err = d.Str(); err == nil {
				intent.CreatedAt, err = time.Parse(time.RFC3339Nano, v)
			}
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return intent, nil
}

func encodeIntentItem(e *jx.Encoder, item order.LineItem) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("product_id", func(e *jx.Encoder) { e.Str(item.ProductID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(item.Name) })
		e.Field("unit_price", func(e *jx.Encoder) { encodeIntentNum(e, item.UnitPrice) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(item.Quantity) })
		if item.Size != "" {
			e.Field("size", func(e *jx.Encoder) { e.Str(item.Size) })
		}
		if item.Category != "" {
			e.Field("category", func(e *jx.Encoder) { e.Str(item.Category) })
		}
	})
}

func decodeIntentItem(d *jx.Decoder) (order.LineItem, error) {
	var item order.LineItem
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product_id":
			item.ProductID, err = d.Str()
		case "name":
			item.Name, err = d.Str()
		case "unit_price":
			item.UnitPrice, err = decodeIntentNum(d)
		case "quantity":
			item.Quantity, err = d.Int()
		case "size":
			item.Size, err = d.Str()
		case "category":
			item.Category, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	return item, err
}

func encodeIntentAddress(e *jx.Encoder, addr order.Address) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("line1", func(e *jx.Encoder) { e.Str(addr.Line1) })
		if addr.Line2 != "" {
			e.Field("line2", func(e *jx.Encoder) { e.Str(addr.Line2) })
		}
		e.Field("city", func(e *jx.Encoder) { e.Str(addr.City) })
		if addr.State != "" {
			e.Field("state", func(e *jx.Encoder) { e.Str(addr.State) })
		}
		e.Field("postal_code", func(e *jx.Encoder) { e.Str(addr.PostalCode) })
		e.Field("country", func(e *jx.Encoder) { e.Str(addr.Country) })
	})
}

func decodeIntentAddress(d *jx.Decoder, addr *order.Address) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "line1":
			addr.Line1, err = d.Str()
		case "line2":
			addr.Line2, err = d.Str()
		case "city":
			addr.City, err = d.Str()
		case "state":
			addr.State, err = d.Str()
		case "postal_code":
			addr.PostalCode, err = d.Str()
		case "country":
			addr.Country, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
}

// decodeIntentNum accepts both plain and quoted JSON numbers, keeping exact
// precision.
func decodeIntentNum(d *jx.Decoder) (decimal.Decimal, error) {
	n, err := d.Num()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(strings.Trim(string(n), `"`))
}

func encodeIntentNum(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.String()))
}

package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/checkout-core/internal/domain/checkout"
	"github.com/xenking/checkout-core/internal/domain/order"
)

// placeOrder handles POST /api/orders: the cash-on-delivery path.
func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCheckoutRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Method = order.MethodCash

	o, err := h.svc.PlaceCashOrder(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

// createSession handles POST /api/checkout/sessions: hosted gateway
// checkouts.
func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCheckoutRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Method == "" || req.Method == order.MethodCash {
		writeError(w, http.StatusBadRequest, "payment_method must name a gateway")
		return
	}

	res, err := h.svc.CreateGatewaySession(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("gateway_order_id", func(e *jx.Encoder) { e.Str(res.GatewayOrderID) })
			e.Field("redirect_url", func(e *jx.Encoder) { e.Str(res.RedirectURL) })
		})
	})
}

// settlementCallback handles POST /api/checkout/callback/{gateway}.
func (h *Handler) settlementCallback(w http.ResponseWriter, r *http.Request) {
	method := order.PaymentMethod(r.PathValue("gateway"))

	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req := checkout.CallbackRequest{Method: method}
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "gateway_order_id":
			req.GatewayOrderID, err = d.Str()
		case "gateway_payment_id":
			req.GatewayPaymentID, err = d.Str()
		case "signature":
			req.Signature, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.GatewayOrderID == "" {
		writeError(w, http.StatusBadRequest, "gateway_order_id required")
		return
	}

	o, err := h.svc.ConfirmSettlement(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

func decodeCheckoutRequest(r *http.Request) (checkout.Request, error) {
	body, err := readBody(r)
	if err != nil {
		return checkout.Request{}, err
	}

	var req checkout.Request
	d := jx.DecodeBytes(body)
	err = d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "user_id":
			req.Owner.UserID, err = d.Str()
		case "guest":
			err = decodeGuest(d, &req.Owner)
		case "items":
			req.Items, err = decodeItems(d)
		case "address":
			err = decodeAddress(d, &req.Address)
		case "payment_method":
			var method string
			method, err = d.Str()
			req.Method = order.PaymentMethod(method)
		case "coupon_code":
			req.CouponCode, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	return req, err
}

func decodeGuest(d *jx.Decoder, owner *order.Owner) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			owner.GuestName, err = d.Str()
		case "email":
			owner.GuestEmail, err = d.Str()
		case "phone":
			owner.GuestPhone, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
}

func decodeItems(d *jx.Decoder) ([]order.LineItem, error) {
	var items []order.LineItem
	err := d.Arr(func(d *jx.Decoder) error {
		var item order.LineItem
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "product_id":
				item.ProductID, err = d.Str()
			case "name":
				item.Name, err = d.Str()
			case "unit_price":
				item.UnitPrice, err = decodeDecimal(d)
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
		}); err != nil {
			return err
		}
		items = append(items, item)
		return nil
	})
	return items, err
}

func decodeAddress(d *jx.Decoder, addr *order.Address) error {
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

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("payment_method", func(e *jx.Encoder) { e.Str(string(o.PaymentMethod)) })
		e.Field("payment_confirmed", func(e *jx.Encoder) { e.Bool(o.PaymentConfirmed) })
		e.Field("amount", func(e *jx.Encoder) { encodeDecimal(e, o.Amount) })
		e.Field("delivery_charge", func(e *jx.Encoder) { encodeDecimal(e, o.DeliveryCharge) })

		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, item := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("product_id", func(e *jx.Encoder) { e.Str(item.ProductID) })
						e.Field("name", func(e *jx.Encoder) { e.Str(item.Name) })
						e.Field("unit_price", func(e *jx.Encoder) { encodeDecimal(e, item.UnitPrice) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(item.Quantity) })
						if item.Size != "" {
							e.Field("size", func(e *jx.Encoder) { e.Str(item.Size) })
						}
					})
				}
			})
		})

		if o.Coupon != nil {
			e.Field("coupon", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					e.Field("code", func(e *jx.Encoder) { e.Str(o.Coupon.Code) })
					e.Field("discount_amount", func(e *jx.Encoder) { encodeDecimal(e, o.Coupon.DiscountAmount) })
					e.Field("shipping_discount", func(e *jx.Encoder) { encodeDecimal(e, o.Coupon.ShippingDiscount) })
				})
			})
		}
		if o.GatewayOrderID != "" {
			e.Field("gateway_order_id", func(e *jx.Encoder) { e.Str(o.GatewayOrderID) })
		}
		e.Field("created_at", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00")) })
	})
}

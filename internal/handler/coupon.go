package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/checkout-core/internal/domain/order"
)

// previewCoupon handles POST /api/coupons/preview: eligibility and amounts
// without consuming any usage budget. Public and rate limited.
func (h *Handler) previewCoupon(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var (
		code   string
		userID string
		items  []order.LineItem
	)
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			code, err = d.Str()
		case "user_id":
			userID, err = d.Str()
		case "items":
			items, err = decodeItems(d)
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	discount, err := h.svc.PreviewCoupon(r.Context(), code, items, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("eligible", func(e *jx.Encoder) { e.Bool(true) })
			e.Field("discount_amount", func(e *jx.Encoder) { encodeDecimal(e, discount.Amount) })
			e.Field("shipping_discount", func(e *jx.Encoder) { encodeDecimal(e, discount.ShippingDiscount) })
		})
	})
}

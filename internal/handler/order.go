package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

// getOrder handles GET /api/orders/{id}.
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

// advanceOrder handles POST /api/orders/{id}/advance: one forward step along
// the fulfillment chain.
func (h *Handler) advanceOrder(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.AdvanceFulfillment(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("id", func(e *jx.Encoder) { e.Str(r.PathValue("id")) })
			e.Field("status", func(e *jx.Encoder) { e.Str(string(status)) })
		})
	})
}

// cancelOrder handles POST /api/orders/{id}/cancel.
func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Cancel(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("id", func(e *jx.Encoder) { e.Str(r.PathValue("id")) })
			e.Field("status", func(e *jx.Encoder) { e.Str("cancelled") })
		})
	})
}

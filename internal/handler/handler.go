// Package handler exposes the checkout service over HTTP. Request and
// response bodies are encoded with jx; domain errors map to stable
// code/message JSON errors.
package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/checkout-core/internal/domain/auth"
	"github.com/xenking/checkout-core/internal/domain/checkout"
	"github.com/xenking/checkout-core/internal/domain/coupon"
	"github.com/xenking/checkout-core/internal/domain/order"
	"github.com/xenking/checkout-core/internal/domain/stock"
	"github.com/xenking/checkout-core/internal/gateway"
	"github.com/xenking/checkout-core/pkg/httpmiddleware"
)

// Scope required to drive fulfillment transitions.
const ScopeOrdersWrite = "orders:write"

// Config holds non-dependency handler settings.
type Config struct {
	// PreviewRateLimit caps public coupon preview calls per client per
	// minute. Zero disables the limiter.
	PreviewRateLimit int
}

// Handler wires HTTP routes to the checkout service.
type Handler struct {
	svc      *checkout.Service
	verifier *auth.Verifier
	cfg      Config
}

// NewHandler constructs a Handler with the required dependencies. verifier
// may be nil, in which case admin routes reject every request.
func NewHandler(svc *checkout.Service, verifier *auth.Verifier, cfg Config) *Handler {
	return &Handler{svc: svc, verifier: verifier, cfg: cfg}
}

// Routes returns the API route tree. Middleware that applies to every route
// (request id, logging, recovery) is layered by the caller.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/orders", h.placeOrder)
	mux.HandleFunc("GET /api/orders/{id}", h.getOrder)
	mux.HandleFunc("POST /api/orders/{id}/advance", h.requireScope(ScopeOrdersWrite, h.advanceOrder))
	mux.HandleFunc("POST /api/orders/{id}/cancel", h.requireScope(ScopeOrdersWrite, h.cancelOrder))

	mux.HandleFunc("POST /api/checkout/sessions", h.createSession)
	mux.HandleFunc("POST /api/checkout/callback/{gateway}", h.settlementCallback)

	preview := http.Handler(http.HandlerFunc(h.previewCoupon))
	if h.cfg.PreviewRateLimit > 0 {
		preview = httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
			Max:    h.cfg.PreviewRateLimit,
			Window: time.Minute,
		})(preview)
	}
	mux.Handle("POST /api/coupons/preview", preview)

	return mux
}

// writeDomainError maps domain errors to HTTP responses. Unknown errors
// become an opaque 500.
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		invalidQty     *checkout.InvalidQuantityError
		insufficient   *stock.InsufficientStockError
		invalidTransit *order.InvalidTransitionError
		settleConflict *checkout.SettlementConflictError
	)

	switch {
	case errors.Is(err, checkout.ErrEmptyItems),
		errors.Is(err, coupon.ErrMalformedCode),
		errors.Is(err, checkout.ErrUnsupportedMethod):
		writeError(w, http.StatusBadRequest, err.Error())

	case errors.As(err, &invalidQty),
		errors.Is(err, stock.ErrUnknownItem):
		writeError(w, http.StatusUnprocessableEntity, err.Error())

	case errors.Is(err, coupon.ErrNotFound):
		writeError(w, http.StatusNotFound, "coupon not found")

	case errors.Is(err, coupon.ErrExpired),
		errors.Is(err, coupon.ErrUsageLimitReached),
		errors.Is(err, coupon.ErrMinimumAmountNotMet),
		errors.Is(err, coupon.ErrCategoryNotApplicable),
		errors.Is(err, coupon.ErrCategoryExcluded),
		errors.Is(err, coupon.ErrUserLimitReached),
		errors.Is(err, coupon.ErrFirstOrderOnly),
		errors.Is(err, coupon.ErrMinimumItemsNotMet):
		writeError(w, http.StatusUnprocessableEntity, err.Error())

	case errors.As(err, &insufficient):
		writeError(w, http.StatusConflict, insufficient.Error())

	case errors.As(err, &settleConflict):
		writeError(w, http.StatusConflict, "settlement recorded for manual reconciliation")

	case errors.Is(err, gateway.ErrSignatureMismatch):
		writeError(w, http.StatusBadRequest, "signature verification failed")

	case errors.Is(err, gateway.ErrSettlementNotConfirmed):
		writeError(w, http.StatusBadRequest, "settlement not confirmed")

	case errors.Is(err, checkout.ErrIntentNotFound):
		writeError(w, http.StatusNotFound, "unknown or already processed checkout")

	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")

	case errors.As(err, &invalidTransit):
		writeError(w, http.StatusConflict, invalidTransit.Error())

	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")

	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

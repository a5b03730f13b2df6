// Package checkout orchestrates a single checkout attempt end to end:
// discount evaluation, atomic stock and coupon-usage commits, order
// materialization, and reconciliation against the chosen settlement path.
package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/checkout-core/internal/broker"
	"github.com/xenking/checkout-core/internal/domain/coupon"
	"github.com/xenking/checkout-core/internal/domain/order"
	"github.com/xenking/checkout-core/internal/domain/stock"
	"github.com/xenking/checkout-core/internal/gateway"
	"github.com/xenking/checkout-core/internal/metrics"
)

var (
	// ErrEmptyItems is returned for a checkout with no line items.
	ErrEmptyItems = errors.New("items required")
	// ErrUnsupportedMethod is returned when no gateway is wired for the
	// requested payment method.
	ErrUnsupportedMethod = errors.New("unsupported payment method")
)

// InvalidQuantityError indicates a line item with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// SettlementConflictError reports a settlement the gateway confirmed that
// inventory could no longer cover. Money has moved, so this is escalated as
// a distinct condition requiring manual reconciliation, never silently
// dropped: the order is materialized in StatusSettlementConflict and an
// event and metric fire alongside this error.
type SettlementConflictError struct {
	GatewayOrderID string
	OrderID        string
	Cause          error
}

func (e *SettlementConflictError) Error() string {
	return fmt.Sprintf("settlement %s confirmed but inventory insufficient (order %s): %v",
		e.GatewayOrderID, e.OrderID, e.Cause)
}

func (e *SettlementConflictError) Unwrap() error { return e.Cause }

// EventPublisher is the notification trigger. broker.Publisher satisfies it;
// a nil publisher drops events.
type EventPublisher interface {
	Publish(ctx context.Context, event broker.OrderEvent) error
}

// Config holds the orchestrator's pricing and lifecycle knobs.
type Config struct {
	DeliveryCharge decimal.Decimal
	Currency       string
	IntentTTL      time.Duration
	// RestockOnCancel controls whether cancelling an order restores its
	// stock. The modeled storefront never restocked; the capability exists
	// either way.
	RestockOnCancel bool
}

// Request is one checkout attempt: owner, cart snapshot, address, settlement
// path, optional coupon code.
type Request struct {
	Owner      order.Owner
	Items      []order.LineItem
	Address    order.Address
	Method     order.PaymentMethod
	CouponCode string
}

// SessionResult is the redirect handle returned for gateway checkouts.
type SessionResult struct {
	GatewayOrderID string
	RedirectURL    string
}

// CallbackRequest is a settlement verification callback from a gateway.
type CallbackRequest struct {
	Method           order.PaymentMethod
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

// Service composes the discount evaluator, the stock and coupon-usage
// ledgers, the order state machine, and the payment gateways.
type Service struct {
	previewer *coupon.Previewer
	usage     coupon.UsageLedger
	stock     stock.Ledger
	orders    order.Repository
	intents   IntentStore
	gateways  map[order.PaymentMethod]gateway.Gateway
	carts     CartClearer
	events    EventPublisher
	cfg       Config

	tracer trace.Tracer
	now    func() time.Time
	newID  func() string
}

// NewService wires an orchestrator. events may be nil; carts may be nil, in
// which case carts are not cleared.
func NewService(
	previewer *coupon.Previewer,
	usage coupon.UsageLedger,
	stockLedger stock.Ledger,
	orders order.Repository,
	intents IntentStore,
	gateways map[order.PaymentMethod]gateway.Gateway,
	carts CartClearer,
	events EventPublisher,
	cfg Config,
) *Service {
	if carts == nil {
		carts = NopCartClearer{}
	}
	if cfg.IntentTTL <= 0 {
		cfg.IntentTTL = time.Hour
	}
	return &Service{
		previewer: previewer,
		usage:     usage,
		stock:     stockLedger,
		orders:    orders,
		intents:   intents,
		gateways:  gateways,
		carts:     carts,
		events:    events,
		cfg:       cfg,
		tracer:    otel.Tracer("checkout"),
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

// PreviewCoupon evaluates a coupon code against a cart without consuming any
// usage budget.
func (s *Service) PreviewCoupon(ctx context.Context, code string, items []order.LineItem, userID string) (coupon.Discount, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.PreviewCoupon")
	defer span.End()

	d, err := s.previewer.Preview(ctx, code, orderContext(items, userID))
	if err != nil {
		metrics.CouponPreviewTotal.WithLabelValues("rejected").Inc()
		return coupon.Discount{}, err
	}
	metrics.CouponPreviewTotal.WithLabelValues("eligible").Inc()
	return d, nil
}

// PlaceCashOrder runs the cash-on-delivery path: stock is committed
// synchronously at creation and the order enters StatusCreated unpaid.
func (s *Service) PlaceCashOrder(ctx context.Context, req Request) (*order.Order, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.PlaceCashOrder")
	defer span.End()

	if err := validate(req); err != nil {
		return nil, err
	}

	applied, err := s.applyCoupon(ctx, req)
	if err != nil {
		metrics.CheckoutFailedTotal.WithLabelValues("coupon").Inc()
		return nil, err
	}

	lines := stockLines(req.Items)
	if err := stock.DecrementAll(ctx, s.stock, lines); err != nil {
		var insufficient *stock.InsufficientStockError
		if errors.As(err, &insufficient) {
			metrics.CheckoutFailedTotal.WithLabelValues("stock").Inc()
		}
		return nil, err
	}

	// Usage is committed before the order insert so a lost race on the
	// coupon budget still aborts cleanly: stock restored, no order row.
	if applied != nil {
		if err := s.usage.Commit(ctx, applied.Code, req.Owner.UserID); err != nil {
			stock.RestoreAll(ctx, s.stock, lines)
			metrics.CheckoutFailedTotal.WithLabelValues("coupon_usage").Inc()
			return nil, err
		}
	}

	o := s.buildOrder(req, applied, order.StatusCreated, false, "", "")
	if err := s.orders.Create(ctx, o); err != nil {
		stock.RestoreAll(ctx, s.stock, lines)
		return nil, errors.Wrap(err, "create order")
	}

	s.afterCommit(ctx, o, broker.EventOrderCreated, "")
	metrics.OrdersCreatedTotal.WithLabelValues(string(order.MethodCash)).Inc()
	return o, nil
}

// CreateGatewaySession starts a hosted-checkout attempt: a pending intent is
// stored with a TTL and the provider's redirect handle is returned. No stock
// or coupon state changes until settlement is confirmed.
func (s *Service) CreateGatewaySession(ctx context.Context, req Request) (*SessionResult, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.CreateGatewaySession")
	defer span.End()

	if err := validate(req); err != nil {
		return nil, err
	}

	gw, ok := s.gateways[req.Method]
	if !ok {
		return nil, ErrUnsupportedMethod
	}

	applied, err := s.applyCoupon(ctx, req)
	if err != nil {
		metrics.CheckoutFailedTotal.WithLabelValues("coupon").Inc()
		return nil, err
	}

	amount, delivery := s.totals(req.Items, applied)

	session, err := gw.CreateSession(ctx, gateway.SessionRequest{
		ReferenceID: s.newID(),
		Amount:      amount,
		Currency:    s.cfg.Currency,
		Description: fmt.Sprintf("order of %d items", len(req.Items)),
	})
	if err != nil {
		metrics.CheckoutFailedTotal.WithLabelValues("gateway").Inc()
		return nil, errors.Wrap(err, "create gateway session")
	}

	intent := &PendingIntent{
		GatewayOrderID: session.OrderID,
		Method:         req.Method,
		Owner:          req.Owner,
		Items:          req.Items,
		Address:        req.Address,
		Amount:         amount,
		DeliveryCharge: delivery,
		Coupon:         applied,
		CreatedAt:      s.now(),
	}
	if err := s.intents.Put(ctx, intent, s.cfg.IntentTTL); err != nil {
		return nil, errors.Wrap(err, "store pending intent")
	}

	metrics.GatewaySessionsTotal.WithLabelValues(string(req.Method)).Inc()
	return &SessionResult{GatewayOrderID: session.OrderID, RedirectURL: session.RedirectURL}, nil
}

// ConfirmSettlement handles a gateway's verification callback. It verifies
// authenticity first (a mismatch changes nothing, leaving the intent
// available for a legitimate retry), then consumes the matching intent
// exactly once: a duplicate delivery finds no intent and is a no-op. A
// transient failure after consumption puts the intent back so the gateway's
// redelivery can still settle.
func (s *Service) ConfirmSettlement(ctx context.Context, req CallbackRequest) (*order.Order, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.ConfirmSettlement")
	defer span.End()
	lg := zctx.From(ctx)

	gw, ok := s.gateways[req.Method]
	if !ok {
		return nil, ErrUnsupportedMethod
	}

	if err := gw.VerifySettlement(ctx, req.GatewayOrderID, req.GatewayPaymentID, req.Signature); err != nil {
		if errors.Is(err, gateway.ErrSignatureMismatch) {
			metrics.SignatureMismatchesTotal.Inc()
			lg.Warn("callback signature mismatch",
				zap.String("gateway_order_id", req.GatewayOrderID),
				zap.String("gateway", string(req.Method)),
			)
		}
		metrics.CallbacksTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	intent, err := s.intents.Consume(ctx, req.GatewayOrderID)
	if err != nil {
		metrics.CallbacksTotal.WithLabelValues("unknown_intent").Inc()
		return nil, err
	}

	intentReq := Request{Owner: intent.Owner, Items: intent.Items, Address: intent.Address, Method: intent.Method}

	lines := stockLines(intent.Items)
	if err := stock.DecrementAll(ctx, s.stock, lines); err != nil {
		var insufficient *stock.InsufficientStockError
		if !errors.As(err, &insufficient) {
			s.restoreIntent(ctx, intent)
			return nil, err
		}
		return nil, s.settleConflict(ctx, intentReq, intent, req.GatewayPaymentID, err)
	}

	o := s.buildOrder(intentReq, intent.Coupon, order.StatusSettlementConfirmed, true, req.GatewayOrderID, req.GatewayPaymentID)
	o.Amount = intent.Amount
	o.DeliveryCharge = intent.DeliveryCharge
	if err := s.orders.Create(ctx, o); err != nil {
		stock.RestoreAll(ctx, s.stock, lines)
		s.restoreIntent(ctx, intent)
		return nil, errors.Wrap(err, "create order")
	}

	if intent.Coupon != nil {
		if err := s.usage.Commit(ctx, intent.Coupon.Code, intent.Owner.UserID); err != nil {
			// Settlement is already confirmed and the discount already priced
			// in; the budget loss is recorded for audit instead of failing
			// the buyer's paid order.
			lg.Error("coupon usage commit failed after settlement",
				zap.String("order_id", o.ID),
				zap.String("coupon", intent.Coupon.Code),
				zap.Error(err),
			)
		}
	}

	s.afterCommit(ctx, o, broker.EventSettlementConfirmed, "")
	metrics.OrdersCreatedTotal.WithLabelValues(string(intent.Method)).Inc()
	metrics.CallbacksTotal.WithLabelValues("confirmed").Inc()
	return o, nil
}

// AdvanceFulfillment moves an order one step forward along the fulfillment
// chain. Administrator-driven and strictly forward.
func (s *Service) AdvanceFulfillment(ctx context.Context, orderID string) (order.Status, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.AdvanceFulfillment")
	defer span.End()

	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return "", err
	}

	next, ok := o.Status.NextFulfillment()
	if !ok {
		return "", &order.InvalidTransitionError{From: o.Status, To: next}
	}

	if err := s.orders.TransitionStatus(ctx, orderID, o.Status, next); err != nil {
		return "", err
	}

	previous := o.Status
	o.Status = next
	s.afterCommit(ctx, o, broker.EventStatusChanged, previous)
	return next, nil
}

// Cancel moves an order to StatusCancelled where the state machine allows
// it, optionally restoring stock per configuration.
func (s *Service) Cancel(ctx context.Context, orderID string) error {
	ctx, span := s.tracer.Start(ctx, "checkout.Cancel")
	defer span.End()

	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}

	if !o.Status.CanTransitionTo(order.StatusCancelled) {
		return &order.InvalidTransitionError{From: o.Status, To: order.StatusCancelled}
	}
	if err := s.orders.TransitionStatus(ctx, orderID, o.Status, order.StatusCancelled); err != nil {
		return err
	}

	if s.cfg.RestockOnCancel {
		stock.RestoreAll(ctx, s.stock, stockLines(o.Items))
	}

	previous := o.Status
	o.Status = order.StatusCancelled
	s.afterCommit(ctx, o, broker.EventStatusChanged, previous)
	return nil
}

// GetOrder returns a durable order by id.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*order.Order, error) {
	return s.orders.GetByID(ctx, orderID)
}

// restoreIntent puts a consumed intent back for the gateway's redelivery
// after a transient failure. Money has already moved; a lost intent here
// would strand the confirmed settlement with no durable order.
func (s *Service) restoreIntent(ctx context.Context, intent *PendingIntent) {
	if err := s.intents.Put(ctx, intent, s.cfg.IntentTTL); err != nil {
		zctx.From(ctx).Error("failed to restore intent after transient settlement failure",
			zap.String("gateway_order_id", intent.GatewayOrderID),
			zap.Error(err),
		)
	}
}

// settleConflict materializes the paid-but-unfulfillable order so manual
// reconciliation has a durable row to work from.
func (s *Service) settleConflict(ctx context.Context, req Request, intent *PendingIntent, paymentID string, cause error) error {
	lg := zctx.From(ctx)

	o := s.buildOrder(req, intent.Coupon, order.StatusSettlementConflict, true, intent.GatewayOrderID, paymentID)
	o.Amount = intent.Amount
	o.DeliveryCharge = intent.DeliveryCharge
	if err := s.orders.Create(ctx, o); err != nil {
		lg.Error("failed to record settlement conflict order",
			zap.String("gateway_order_id", intent.GatewayOrderID),
			zap.Error(err),
		)
	}

	metrics.SettlementConflictsTotal.Inc()
	metrics.CallbacksTotal.WithLabelValues("conflict").Inc()
	lg.Error("settlement confirmed but inventory insufficient, manual reconciliation required",
		zap.String("gateway_order_id", intent.GatewayOrderID),
		zap.String("order_id", o.ID),
		zap.Error(cause),
	)
	s.publish(ctx, o, broker.EventSettlementConflict, "")

	return &SettlementConflictError{
		GatewayOrderID: intent.GatewayOrderID,
		OrderID:        o.ID,
		Cause:          cause,
	}
}

// applyCoupon previews the coupon when a code is present and returns the
// order snapshot of the result. It never consumes budget.
func (s *Service) applyCoupon(ctx context.Context, req Request) (*order.AppliedCoupon, error) {
	if req.CouponCode == "" {
		return nil, nil
	}

	d, err := s.previewer.Preview(ctx, req.CouponCode, orderContext(req.Items, req.Owner.UserID))
	if err != nil {
		return nil, err
	}

	code, err := coupon.NormalizeCode(req.CouponCode)
	if err != nil {
		return nil, err
	}
	return &order.AppliedCoupon{
		Code:             code,
		DiscountAmount:   d.Amount,
		ShippingDiscount: d.ShippingDiscount,
	}, nil
}

// totals computes the final amount and the delivery charge as billed:
// subtotal - discount + delivery, where a shipping discount reduces the
// delivery charge, floored at zero.
func (s *Service) totals(items []order.LineItem, applied *order.AppliedCoupon) (amount, delivery decimal.Decimal) {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	delivery = s.cfg.DeliveryCharge
	discount := decimal.Zero
	if applied != nil {
		discount = applied.DiscountAmount
		delivery = delivery.Sub(applied.ShippingDiscount)
		if delivery.IsNegative() {
			delivery = decimal.Zero
		}
	}
	return subtotal.Sub(discount).Add(delivery), delivery
}

func (s *Service) buildOrder(req Request, applied *order.AppliedCoupon, status order.Status, paid bool, gatewayOrderID, gatewayPaymentID string) *order.Order {
	amount, delivery := s.totals(req.Items, applied)
	return &order.Order{
		ID:               s.newID(),
		Owner:            req.Owner,
		Items:            req.Items,
		Address:          req.Address,
		Amount:           amount,
		DeliveryCharge:   delivery,
		Status:           status,
		PaymentMethod:    req.Method,
		PaymentConfirmed: paid,
		Coupon:           applied,
		GatewayOrderID:   gatewayOrderID,
		GatewayPaymentID: gatewayPaymentID,
		CreatedAt:        s.now(),
	}
}

// afterCommit clears the cart and publishes the lifecycle event. Both are
// best-effort: the order is already durable.
func (s *Service) afterCommit(ctx context.Context, o *order.Order, eventType string, previous order.Status) {
	lg := zctx.From(ctx)

	if o.Owner.UserID != "" {
		if err := s.carts.Clear(ctx, o.Owner.UserID); err != nil {
			lg.Warn("cart clear failed", zap.String("user_id", o.Owner.UserID), zap.Error(err))
		}
	}
	s.publish(ctx, o, eventType, previous)
}

func (s *Service) publish(ctx context.Context, o *order.Order, eventType string, previous order.Status) {
	if s.events == nil {
		return
	}
	event := broker.OrderEvent{
		Type:           eventType,
		OrderID:        o.ID,
		UserID:         o.Owner.UserID,
		GuestEmail:     o.Owner.GuestEmail,
		Status:         o.Status,
		PreviousStatus: previous,
		Method:         o.PaymentMethod,
		Amount:         o.Amount,
		GatewayOrderID: o.GatewayOrderID,
		Timestamp:      s.now(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		zctx.From(ctx).Warn("event publish failed",
			zap.String("type", eventType),
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}
}

func validate(req Request) error {
	if len(req.Items) == 0 {
		return ErrEmptyItems
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return &InvalidQuantityError{ProductID: item.ProductID}
		}
	}
	return nil
}

func stockLines(items []order.LineItem) []stock.Line {
	lines := make([]stock.Line, len(items))
	for i, item := range items {
		lines[i] = stock.Line{ItemID: item.ProductID, Size: item.Size, Quantity: item.Quantity}
	}
	return lines
}

func orderContext(items []order.LineItem, userID string) coupon.OrderContext {
	subtotal := decimal.Zero
	count := 0
	couponItems := make([]coupon.Item, len(items))
	for i, item := range items {
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
		count += item.Quantity
		couponItems[i] = coupon.Item{
			ProductID: item.ProductID,
			Category:  item.Category,
			Price:     item.UnitPrice,
			Quantity:  item.Quantity,
		}
	}
	return coupon.OrderContext{
		OrderAmount: subtotal,
		Items:       couponItems,
		UserID:      userID,
		ItemCount:   count,
	}
}

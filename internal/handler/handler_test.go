package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/checkout-core/internal/domain/auth"
	"github.com/xenking/checkout-core/internal/domain/checkout"
	"github.com/xenking/checkout-core/internal/domain/coupon"
	"github.com/xenking/checkout-core/internal/domain/order"
	"github.com/xenking/checkout-core/internal/domain/stock"
	"github.com/xenking/checkout-core/internal/gateway"
)

// --- Mock implementations ---

type mockCouponRepo struct {
	coupons map[string]*coupon.Coupon
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	c, ok := m.coupons[code]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return c, nil
}

func (m *mockCouponRepo) ListCodes(context.Context) ([]string, error) {
	codes := make([]string, 0, len(m.coupons))
	for code := range m.coupons {
		codes = append(codes, code)
	}
	return codes, nil
}

type mockUsageLedger struct {
	mu      sync.Mutex
	commits []string
	err     error
}

func (m *mockUsageLedger) Commit(_ context.Context, code, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.commits = append(m.commits, code)
	return nil
}

type mockOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*order.Order
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[string]*order.Order)}
}

func (m *mockOrderRepo) Create(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := *o
	m.orders[o.ID] = &snapshot
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	snapshot := *o
	return &snapshot, nil
}

func (m *mockOrderRepo) TransitionStatus(_ context.Context, id string, from, to order.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return order.ErrNotFound
	}
	o.Status = to
	return nil
}

type mockIntentStore struct {
	mu      sync.Mutex
	intents map[string]*checkout.PendingIntent
}

func newMockIntentStore() *mockIntentStore {
	return &mockIntentStore{intents: make(map[string]*checkout.PendingIntent)}
}

func (m *mockIntentStore) Put(_ context.Context, intent *checkout.PendingIntent, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intents[intent.GatewayOrderID] = intent
	return nil
}

func (m *mockIntentStore) Consume(_ context.Context, id string) (*checkout.PendingIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	intent, ok := m.intents[id]
	if !ok {
		return nil, checkout.ErrIntentNotFound
	}
	delete(m.intents, id)
	return intent, nil
}

type mockGateway struct {
	verifyErr error
}

func (m *mockGateway) CreateSession(context.Context, gateway.SessionRequest) (*gateway.Session, error) {
	return &gateway.Session{OrderID: "gw_1", RedirectURL: "https://pay.example/gw_1"}, nil
}

func (m *mockGateway) VerifySettlement(context.Context, string, string, string) error {
	return m.verifyErr
}

type mockAPIKeyRepo struct {
	info *auth.APIKeyInfo
}

func (m *mockAPIKeyRepo) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	if m.info == nil || m.info.KeyHash != hash {
		return nil, auth.ErrUnauthorized
	}
	return m.info, nil
}

// --- Helpers ---

const adminKey = "test-admin-key"

var pepper = []byte("pepper")

type env struct {
	handler http.Handler
	orders  *mockOrderRepo
	ledger  *stock.MemoryLedger
	gateway *mockGateway
	usage   *mockUsageLedger
}

func newEnv(t *testing.T, cfg Config) *env {
	t.Helper()

	ledger := stock.NewMemoryLedger()
	ledger.Set("tote", stock.Scalar(10))

	coupons := &mockCouponRepo{coupons: map[string]*coupon.Coupon{
		"WELCOME10": {
			Code:           "WELCOME10",
			Benefit:        coupon.Percentage{Value: decimal.NewFromInt(10), Cap: decimal.NewFromInt(200)},
			MinOrderAmount: decimal.NewFromInt(500),
			Active:         true,
		},
	}}
	usage := &mockUsageLedger{}
	orders := newMockOrderRepo()
	gw := &mockGateway{}

	svc := checkout.NewService(
		coupon.NewPreviewer(coupons, nil),
		usage,
		ledger,
		orders,
		newMockIntentStore(),
		map[order.PaymentMethod]gateway.Gateway{order.MethodRazorpay: gw},
		nil,
		nil,
		checkout.Config{
			DeliveryCharge: decimal.NewFromInt(40),
			Currency:       "INR",
		},
	)

	verifier := auth.NewVerifier(&mockAPIKeyRepo{info: &auth.APIKeyInfo{
		ID:      "key-1",
		KeyHash: auth.HashKey(adminKey, pepper),
		Name:    "ops",
		Scopes:  []string{ScopeOrdersWrite},
	}}, pepper)

	return &env{
		handler: NewHandler(svc, verifier, cfg).Routes(),
		orders:  orders,
		ledger:  ledger,
		gateway: gw,
		usage:   usage,
	}
}

func (e *env) do(method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

const cashOrderBody = `{
	"user_id": "user-1",
	"items": [{"product_id": "tote", "name": "Tote Bag", "unit_price": 600, "quantity": 2, "category": "bags"}],
	"address": {"line1": "1 Main St", "city": "Pune", "postal_code": "411001", "country": "IN"},
	"coupon_code": "WELCOME10"
}`

// --- Tests ---

func TestPlaceOrderEndpoint(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		e := newEnv(t, Config{})

		w := e.do(http.MethodPost, "/api/orders", cashOrderBody, nil)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		body := w.Body.String()
		assert.Contains(t, body, `"status":"created"`)
		assert.Contains(t, body, `"payment_method":"cash"`)
		// 1200 subtotal, 10% = 120, delivery 40.
		assert.Contains(t, body, `"amount":1120`)
		assert.Contains(t, body, `"code":"WELCOME10"`)
		assert.Equal(t, []string{"WELCOME10"}, e.usage.commits)
	})

	t.Run("malformed body", func(t *testing.T) {
		e := newEnv(t, Config{})
		w := e.do(http.MethodPost, "/api/orders", `{"items": [`, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown coupon", func(t *testing.T) {
		e := newEnv(t, Config{})
		w := e.do(http.MethodPost, "/api/orders",
			strings.Replace(cashOrderBody, "WELCOME10", "NOPE", 1), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("insufficient stock", func(t *testing.T) {
		e := newEnv(t, Config{})
		e.ledger.Set("tote", stock.Scalar(1))

		w := e.do(http.MethodPost, "/api/orders", cashOrderBody, nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("empty items", func(t *testing.T) {
		e := newEnv(t, Config{})
		w := e.do(http.MethodPost, "/api/orders", `{"items": []}`, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCreateSessionEndpoint(t *testing.T) {
	e := newEnv(t, Config{})

	body := strings.Replace(cashOrderBody, `"coupon_code"`, `"payment_method": "razorpay", "coupon_code"`, 1)
	w := e.do(http.MethodPost, "/api/checkout/sessions", body, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"gateway_order_id":"gw_1"`)

	t.Run("cash is not a gateway", func(t *testing.T) {
		w := e.do(http.MethodPost, "/api/checkout/sessions", cashOrderBody, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown gateway", func(t *testing.T) {
		body := strings.Replace(cashOrderBody, `"coupon_code"`, `"payment_method": "paypal", "coupon_code"`, 1)
		w := e.do(http.MethodPost, "/api/checkout/sessions", body, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSettlementCallbackEndpoint(t *testing.T) {
	callbackBody := `{"gateway_order_id": "gw_1", "gateway_payment_id": "pay_1", "signature": "sig"}`
	sessionBody := strings.Replace(cashOrderBody, `"coupon_code"`, `"payment_method": "razorpay", "coupon_code"`, 1)

	t.Run("confirmed", func(t *testing.T) {
		e := newEnv(t, Config{})
		require.Equal(t, http.StatusCreated,
			e.do(http.MethodPost, "/api/checkout/sessions", sessionBody, nil).Code)

		w := e.do(http.MethodPost, "/api/checkout/callback/razorpay", callbackBody, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Contains(t, w.Body.String(), `"status":"settlement_confirmed"`)
		assert.Contains(t, w.Body.String(), `"payment_confirmed":true`)
	})

	t.Run("duplicate delivery", func(t *testing.T) {
		e := newEnv(t, Config{})
		require.Equal(t, http.StatusCreated,
			e.do(http.MethodPost, "/api/checkout/sessions", sessionBody, nil).Code)

		require.Equal(t, http.StatusOK,
			e.do(http.MethodPost, "/api/checkout/callback/razorpay", callbackBody, nil).Code)
		w := e.do(http.MethodPost, "/api/checkout/callback/razorpay", callbackBody, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("signature mismatch", func(t *testing.T) {
		e := newEnv(t, Config{})
		require.Equal(t, http.StatusCreated,
			e.do(http.MethodPost, "/api/checkout/sessions", sessionBody, nil).Code)
		e.gateway.verifyErr = gateway.ErrSignatureMismatch

		w := e.do(http.MethodPost, "/api/checkout/callback/razorpay", callbackBody, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing gateway order id", func(t *testing.T) {
		e := newEnv(t, Config{})
		w := e.do(http.MethodPost, "/api/checkout/callback/razorpay", `{"signature": "x"}`, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestPreviewEndpoint(t *testing.T) {
	previewBody := `{
		"code": "welcome10",
		"items": [{"product_id": "tote", "unit_price": 600, "quantity": 2}]
	}`

	t.Run("eligible", func(t *testing.T) {
		e := newEnv(t, Config{})
		w := e.do(http.MethodPost, "/api/coupons/preview", previewBody, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Contains(t, w.Body.String(), `"eligible":true`)
		assert.Contains(t, w.Body.String(), `"discount_amount":120`)
		assert.Empty(t, e.usage.commits, "preview never consumes budget")
	})

	t.Run("below minimum", func(t *testing.T) {
		e := newEnv(t, Config{})
		small := `{
			"code": "welcome10",
			"items": [{"product_id": "tote", "unit_price": 300, "quantity": 1}]
		}`
		w := e.do(http.MethodPost, "/api/coupons/preview", small, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("rate limited", func(t *testing.T) {
		e := newEnv(t, Config{PreviewRateLimit: 2})
		for range 2 {
			require.Equal(t, http.StatusOK,
				e.do(http.MethodPost, "/api/coupons/preview", previewBody, nil).Code)
		}
		w := e.do(http.MethodPost, "/api/coupons/preview", previewBody, nil)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
	})
}

func TestOrderEndpoints(t *testing.T) {
	authHeader := map[string]string{"X-API-Key": adminKey}

	placeOrder := func(t *testing.T, e *env) string {
		t.Helper()
		w := e.do(http.MethodPost, "/api/orders", cashOrderBody, nil)
		require.Equal(t, http.StatusCreated, w.Code)
		e.orders.mu.Lock()
		defer e.orders.mu.Unlock()
		for id := range e.orders.orders {
			return id
		}
		t.Fatal("no order created")
		return ""
	}

	t.Run("get order", func(t *testing.T) {
		e := newEnv(t, Config{})
		id := placeOrder(t, e)

		w := e.do(http.MethodGet, "/api/orders/"+id, "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"id":"`+id+`"`)

		w = e.do(http.MethodGet, "/api/orders/missing", "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("advance requires api key", func(t *testing.T) {
		e := newEnv(t, Config{})
		id := placeOrder(t, e)

		w := e.do(http.MethodPost, "/api/orders/"+id+"/advance", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		w = e.do(http.MethodPost, "/api/orders/"+id+"/advance", "",
			map[string]string{"X-API-Key": "wrong"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		w = e.do(http.MethodPost, "/api/orders/"+id+"/advance", "", authHeader)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"packing"`)
	})

	t.Run("advance past terminal conflicts", func(t *testing.T) {
		e := newEnv(t, Config{})
		id := placeOrder(t, e)

		for range 4 {
			require.Equal(t, http.StatusOK,
				e.do(http.MethodPost, "/api/orders/"+id+"/advance", "", authHeader).Code)
		}
		w := e.do(http.MethodPost, "/api/orders/"+id+"/advance", "", authHeader)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("cancel", func(t *testing.T) {
		e := newEnv(t, Config{})
		id := placeOrder(t, e)

		w := e.do(http.MethodPost, "/api/orders/"+id+"/cancel", "", authHeader)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"cancelled"`)
	})
}

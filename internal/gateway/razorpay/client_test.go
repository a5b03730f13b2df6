package razorpay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/checkout-core/internal/gateway"
)

func TestVerifySettlement(t *testing.T) {
	c := New(Config{KeyID: "rzp_test_key", Secret: "super-secret"})

	sig := c.Sign("order_123", "pay_456")

	require.NoError(t, c.VerifySettlement(context.Background(), "order_123", "pay_456", sig))

	tests := []struct {
		name      string
		orderID   string
		paymentID string
		signature string
	}{
		{name: "tampered signature", orderID: "order_123", paymentID: "pay_456", signature: flipLastHexDigit(sig)},
		{name: "signature for different order", orderID: "order_999", paymentID: "pay_456", signature: sig},
		{name: "signature for different payment", orderID: "order_123", paymentID: "pay_999", signature: sig},
		{name: "non-hex signature", orderID: "order_123", paymentID: "pay_456", signature: "zz-not-hex"},
		{name: "empty signature", orderID: "order_123", paymentID: "pay_456", signature: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.VerifySettlement(context.Background(), tt.orderID, tt.paymentID, tt.signature)
			require.ErrorIs(t, err, gateway.ErrSignatureMismatch)
		})
	}
}

func TestVerifySettlement_DifferentSecretsDisagree(t *testing.T) {
	a := New(Config{KeyID: "k", Secret: "secret-a"})
	b := New(Config{KeyID: "k", Secret: "secret-b"})

	sig := a.Sign("order_1", "pay_1")
	require.NoError(t, a.VerifySettlement(context.Background(), "order_1", "pay_1", sig))
	require.ErrorIs(t, b.VerifySettlement(context.Background(), "order_1", "pay_1", sig), gateway.ErrSignatureMismatch)
}

func TestCreateSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "super-secret", pass)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_abc","amount":150000,"currency":"INR","status":"created"}`))
	}))
	defer srv.Close()

	c := New(Config{KeyID: "rzp_test_key", Secret: "super-secret", BaseURL: srv.URL})

	session, err := c.CreateSession(context.Background(), gateway.SessionRequest{
		ReferenceID: "checkout-1",
		Amount:      decimal.NewFromInt(1500),
		Currency:    "INR",
	})
	require.NoError(t, err)
	assert.Equal(t, "order_abc", session.OrderID)
	assert.Equal(t, "rzp_test_key:order_abc", session.RedirectURL)
}

func TestCreateSession_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(Config{KeyID: "bad", Secret: "bad", BaseURL: srv.URL})

	_, err := c.CreateSession(context.Background(), gateway.SessionRequest{
		ReferenceID: "checkout-1",
		Amount:      decimal.NewFromInt(100),
		Currency:    "INR",
	})
	require.Error(t, err)
}

func flipLastHexDigit(sig string) string {
	last := sig[len(sig)-1]
	replacement := byte('0')
	if last == '0' {
		replacement = '1'
	}
	return sig[:len(sig)-1] + string(replacement)
}

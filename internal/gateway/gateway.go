// Package gateway defines the hosted-checkout payment gateway contract and
// its provider clients. Credentials are constructor parameters sourced from
// configuration; nothing reads ambient process-wide state.
package gateway

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrSignatureMismatch is returned when a settlement callback carries a
	// signature that does not verify. Treated as a potential tampering
	// signal: the caller must reject without any state change.
	ErrSignatureMismatch = errors.New("gateway signature mismatch")
	// ErrSettlementNotConfirmed is returned when the provider reports the
	// payment as not (yet) captured.
	ErrSettlementNotConfirmed = errors.New("settlement not confirmed by gateway")
)

// SessionRequest asks a provider for a hosted checkout session.
type SessionRequest struct {
	ReferenceID string // internal checkout reference, echoed back by the provider
	Amount      decimal.Decimal
	Currency    string
	Description string
}

// Session is a provider-issued hosted checkout handle. RedirectURL is where
// the buyer completes payment; for widget-based providers it is a descriptor
// the frontend feeds to the provider's SDK instead of a plain link.
type Session struct {
	OrderID     string
	RedirectURL string
}

// Gateway is one hosted-checkout provider.
type Gateway interface {
	// CreateSession requests a hosted checkout session for the given amount.
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	// VerifySettlement checks that a settlement callback is authentic and the
	// funds are captured. Implementations either verify a signature locally
	// (constant time) or confirm capture with the provider.
	VerifySettlement(ctx context.Context, orderID, paymentID, signature string) error
}

package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a coupon code does not exist or has been
	// soft-deactivated.
	ErrNotFound = errors.New("coupon not found")
	// ErrMalformedCode is returned for codes containing characters outside
	// [A-Za-z0-9_-]. Rejected before any lookup.
	ErrMalformedCode = errors.New("malformed coupon code")
	// ErrExpired is returned when now is outside [ValidFrom, ValidUntil].
	ErrExpired = errors.New("coupon expired")
	// ErrUsageLimitReached is returned when the coupon's global usage budget
	// is exhausted.
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrMinimumAmountNotMet is returned when the order subtotal is below the
	// coupon's minimum order amount.
	ErrMinimumAmountNotMet = errors.New("minimum order amount not met")
	// ErrCategoryNotApplicable is returned when none of the cart items belong
	// to the coupon's applicable categories.
	ErrCategoryNotApplicable = errors.New("coupon not applicable to cart categories")
	// ErrCategoryExcluded is returned when a cart item belongs to one of the
	// coupon's excluded categories.
	ErrCategoryExcluded = errors.New("cart contains excluded category")
	// ErrUserLimitReached is returned when the requesting user has exhausted
	// their per-user usage budget.
	ErrUserLimitReached = errors.New("per-user usage limit reached")
	// ErrFirstOrderOnly is returned when a first-time-user coupon is applied
	// without an identified user.
	ErrFirstOrderOnly = errors.New("coupon is for first-time users only")
	// ErrMinimumItemsNotMet is returned when the cart holds fewer items than
	// the coupon requires.
	ErrMinimumItemsNotMet = errors.New("minimum purchase items not met")
)

// Benefit is the closed set of discount variants a coupon can carry.
// Invalid combinations (a cap on a fixed discount, a shipping value on a
// percentage) are unrepresentable.
type Benefit interface {
	benefit()
}

// Percentage discounts the order subtotal by Value percent, clamped to Cap
// when Cap is positive. A zero Cap means uncapped.
type Percentage struct {
	Value decimal.Decimal
	Cap   decimal.Decimal
}

// Fixed discounts the order subtotal by a fixed amount, clamped to the
// subtotal itself.
type Fixed struct {
	Value decimal.Decimal
}

// FreeShipping waives Value of the delivery charge and leaves the product
// subtotal untouched.
type FreeShipping struct {
	Value decimal.Decimal
}

func (Percentage) benefit()   {}
func (Fixed) benefit()        {}
func (FreeShipping) benefit() {}

// Coupon is a promotional code with its discount rule and usage constraints.
// UsedCount and UserUsage are mutated only by the usage ledger when an order
// is actually committed, never by evaluation.
type Coupon struct {
	Code                 string
	Benefit              Benefit
	MinOrderAmount       decimal.Decimal
	UsageLimit           int // 0 = unlimited
	UsedCount            int
	MaxUsagePerUser      int // 0 = unlimited
	UserUsage            map[string]int
	ValidFrom            *time.Time
	ValidUntil           *time.Time
	ApplicableCategories []string
	ExcludedCategories   []string
	MinPurchaseItems     int
	FirstTimeUserOnly    bool
	Stackable            bool
	Priority             int
	Active               bool
}

// Item is a cart line item as seen by discount evaluation.
type Item struct {
	ProductID string
	Category  string
	Price     decimal.Decimal
	Quantity  int
}

// OrderContext is the order-side input to evaluation.
type OrderContext struct {
	OrderAmount decimal.Decimal
	Items       []Item
	UserID      string // empty for guests
	ItemCount   int    // total quantity across line items
}

// Discount is the outcome of a successful evaluation.
type Discount struct {
	Amount           decimal.Decimal
	ShippingDiscount decimal.Decimal
}

// Repository provides coupon lookup. Lookups exclude deactivated coupons.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	ListCodes(ctx context.Context) ([]string, error)
}

// UsageLedger atomically commits a redemption against the global and
// per-user counters. Invoked only from the checkout path once an order is
// actually materialized. Returns ErrUsageLimitReached or ErrUserLimitReached
// when the matching budget is exhausted; on error nothing is recorded.
type UsageLedger interface {
	Commit(ctx context.Context, code, userID string) error
}

// NormalizeCode upper-cases a coupon code and rejects malformed characters.
func NormalizeCode(code string) (string, error) {
	if code == "" {
		return "", ErrMalformedCode
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return "", ErrMalformedCode
		}
	}
	return strings.ToUpper(code), nil
}

package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Evaluate decides eligibility and computes the discount for a coupon against
// an order context. It is a pure function: usage counters are never touched
// here, so speculative preview calls cannot consume budget.
//
// Rules short-circuit in a fixed precedence so the first failing rule is the
// one reported: validity window, global usage budget, minimum order amount,
// category scoping, per-user budget, first-time-user requirement, minimum
// item count.
func Evaluate(c *Coupon, o OrderContext, now time.Time) (Discount, error) {
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return Discount{}, ErrExpired
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return Discount{}, ErrExpired
	}

	if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
		return Discount{}, ErrUsageLimitReached
	}

	if o.OrderAmount.LessThan(c.MinOrderAmount) {
		return Discount{}, ErrMinimumAmountNotMet
	}

	if len(o.Items) > 0 {
		if err := checkCategories(c, o.Items); err != nil {
			return Discount{}, err
		}
	}

	if o.UserID != "" && c.MaxUsagePerUser > 0 {
		if c.UserUsage[o.UserID] >= c.MaxUsagePerUser {
			return Discount{}, ErrUserLimitReached
		}
	}

	// True first-order detection is delegated to order history; here the
	// coupon merely refuses anonymous carts.
	if c.FirstTimeUserOnly && o.UserID == "" {
		return Discount{}, ErrFirstOrderOnly
	}

	if c.MinPurchaseItems > 0 && o.ItemCount < c.MinPurchaseItems {
		return Discount{}, ErrMinimumItemsNotMet
	}

	return compute(c.Benefit, o.OrderAmount)
}

func checkCategories(c *Coupon, items []Item) error {
	if len(c.ApplicableCategories) > 0 {
		applicable := false
		for _, item := range items {
			if containsFold(c.ApplicableCategories, item.Category) {
				applicable = true
				break
			}
		}
		if !applicable {
			return ErrCategoryNotApplicable
		}
	}
	for _, item := range items {
		if containsFold(c.ExcludedCategories, item.Category) {
			return ErrCategoryExcluded
		}
	}
	return nil
}

// compute maps a benefit variant to a discount. Product discounts never
// exceed the order amount; percentage values floor to whole currency units.
func compute(b Benefit, amount decimal.Decimal) (Discount, error) {
	switch v := b.(type) {
	case Percentage:
		d := amount.Mul(v.Value).Div(hundred).Floor()
		if v.Cap.IsPositive() && d.GreaterThan(v.Cap) {
			d = v.Cap
		}
		if d.GreaterThan(amount) {
			d = amount
		}
		return Discount{Amount: d, ShippingDiscount: decimal.Zero}, nil
	case Fixed:
		return Discount{Amount: decimal.Min(v.Value, amount), ShippingDiscount: decimal.Zero}, nil
	case FreeShipping:
		return Discount{Amount: decimal.Zero, ShippingDiscount: v.Value}, nil
	default:
		return Discount{}, errors.Errorf("unsupported benefit type %T", b)
	}
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// Previewer serves the public preview endpoint: a bloom prefilter keeps junk
// codes away from the repository, then Evaluate runs without side effects.
type Previewer struct {
	repo   Repository
	filter *CodeFilter
	now    func() time.Time
}

// NewPreviewer creates a Previewer. The filter may be nil, in which case
// every code goes to the repository.
func NewPreviewer(repo Repository, filter *CodeFilter) *Previewer {
	return &Previewer{repo: repo, filter: filter, now: time.Now}
}

// Preview normalizes and evaluates a coupon code against an order context.
func (p *Previewer) Preview(ctx context.Context, code string, o OrderContext) (Discount, error) {
	normalized, err := NormalizeCode(code)
	if err != nil {
		return Discount{}, err
	}

	if p.filter != nil && !p.filter.MayContain(normalized) {
		return Discount{}, ErrNotFound
	}

	c, err := p.repo.FindByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Discount{}, ErrNotFound
		}
		return Discount{}, errors.Wrap(err, "lookup coupon")
	}

	return Evaluate(c, o, p.now())
}

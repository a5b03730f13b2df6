package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestEvaluate(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	pastTime := fixedNow.Add(-24 * time.Hour)
	futureTime := fixedNow.Add(24 * time.Hour)

	tests := []struct {
		name         string
		coupon       Coupon
		octx         OrderContext
		wantAmount   decimal.Decimal
		wantShipping decimal.Decimal
		wantErr      error
	}{
		{
			name: "percentage capped at max discount",
			coupon: Coupon{
				Code:           "WELCOME10",
				Benefit:        Percentage{Value: dec(10), Cap: dec(200)},
				MinOrderAmount: dec(500),
			},
			octx:       OrderContext{OrderAmount: dec(3000), ItemCount: 1},
			wantAmount: dec(200),
		},
		{
			name: "percentage under cap",
			coupon: Coupon{
				Code:           "WELCOME10",
				Benefit:        Percentage{Value: dec(10), Cap: dec(200)},
				MinOrderAmount: dec(500),
			},
			octx:       OrderContext{OrderAmount: dec(1500), ItemCount: 1},
			wantAmount: dec(150),
		},
		{
			name: "percentage floors to whole units",
			coupon: Coupon{
				Code:    "SEVEN",
				Benefit: Percentage{Value: dec(7)},
			},
			octx:       OrderContext{OrderAmount: dec(999), ItemCount: 1},
			wantAmount: dec(69), // 69.93 floored
		},
		{
			name: "fixed clamped to order amount",
			coupon: Coupon{
				Code:    "FLAT500",
				Benefit: Fixed{Value: dec(500)},
			},
			octx:       OrderContext{OrderAmount: dec(300), ItemCount: 1},
			wantAmount: dec(300),
		},
		{
			name: "free shipping leaves product discount at zero",
			coupon: Coupon{
				Code:    "FREESHIP",
				Benefit: FreeShipping{Value: dec(50)},
			},
			octx:         OrderContext{OrderAmount: dec(1000), ItemCount: 1},
			wantAmount:   dec(0),
			wantShipping: dec(50),
		},
		{
			name: "not yet valid",
			coupon: Coupon{
				Code:      "EARLY",
				Benefit:   Fixed{Value: dec(10)},
				ValidFrom: &futureTime,
			},
			octx:    OrderContext{OrderAmount: dec(1000), ItemCount: 1},
			wantErr: ErrExpired,
		},
		{
			name: "past validity window",
			coupon: Coupon{
				Code:       "LATE",
				Benefit:    Fixed{Value: dec(10)},
				ValidUntil: &pastTime,
			},
			octx:    OrderContext{OrderAmount: dec(1000), ItemCount: 1},
			wantErr: ErrExpired,
		},
		{
			name: "global usage budget exhausted",
			coupon: Coupon{
				Code:       "LIMITED",
				Benefit:    Fixed{Value: dec(10)},
				UsageLimit: 5,
				UsedCount:  5,
			},
			octx:    OrderContext{OrderAmount: dec(1000), ItemCount: 1},
			wantErr: ErrUsageLimitReached,
		},
		{
			name: "minimum order amount not met",
			coupon: Coupon{
				Code:           "BIG",
				Benefit:        Fixed{Value: dec(10)},
				MinOrderAmount: dec(500),
			},
			octx:    OrderContext{OrderAmount: dec(499), ItemCount: 1},
			wantErr: ErrMinimumAmountNotMet,
		},
		{
			name: "no item in applicable categories",
			coupon: Coupon{
				Code:                 "BOOKS10",
				Benefit:              Percentage{Value: dec(10)},
				ApplicableCategories: []string{"books"},
			},
			octx: OrderContext{
				OrderAmount: dec(1000),
				Items:       []Item{{ProductID: "p1", Category: "electronics", Quantity: 1}},
				ItemCount:   1,
			},
			wantErr: ErrCategoryNotApplicable,
		},
		{
			name: "item in excluded category",
			coupon: Coupon{
				Code:               "NOGIFT",
				Benefit:            Percentage{Value: dec(10)},
				ExcludedCategories: []string{"giftcards"},
			},
			octx: OrderContext{
				OrderAmount: dec(1000),
				Items: []Item{
					{ProductID: "p1", Category: "books", Quantity: 1},
					{ProductID: "p2", Category: "giftcards", Quantity: 1},
				},
				ItemCount: 2,
			},
			wantErr: ErrCategoryExcluded,
		},
		{
			name: "applicable category matched case-insensitively",
			coupon: Coupon{
				Code:                 "BOOKS10",
				Benefit:              Percentage{Value: dec(10)},
				ApplicableCategories: []string{"Books"},
			},
			octx: OrderContext{
				OrderAmount: dec(1000),
				Items:       []Item{{ProductID: "p1", Category: "books", Quantity: 1}},
				ItemCount:   1,
			},
			wantAmount: dec(100),
		},
		{
			name: "per-user budget exhausted",
			coupon: Coupon{
				Code:            "ONCEEACH",
				Benefit:         Fixed{Value: dec(10)},
				MaxUsagePerUser: 1,
				UserUsage:       map[string]int{"u1": 1},
			},
			octx:    OrderContext{OrderAmount: dec(1000), UserID: "u1", ItemCount: 1},
			wantErr: ErrUserLimitReached,
		},
		{
			name: "per-user budget does not block other users",
			coupon: Coupon{
				Code:            "ONCEEACH",
				Benefit:         Fixed{Value: dec(10)},
				MaxUsagePerUser: 1,
				UserUsage:       map[string]int{"u1": 1},
			},
			octx:       OrderContext{OrderAmount: dec(1000), UserID: "u2", ItemCount: 1},
			wantAmount: dec(10),
		},
		{
			name: "first-time-user coupon rejects anonymous cart",
			coupon: Coupon{
				Code:              "NEWBIE",
				Benefit:           Fixed{Value: dec(10)},
				FirstTimeUserOnly: true,
			},
			octx:    OrderContext{OrderAmount: dec(1000), ItemCount: 1},
			wantErr: ErrFirstOrderOnly,
		},
		{
			name: "minimum purchase items not met",
			coupon: Coupon{
				Code:             "BULK",
				Benefit:          Fixed{Value: dec(10)},
				MinPurchaseItems: 3,
			},
			octx:    OrderContext{OrderAmount: dec(1000), ItemCount: 2},
			wantErr: ErrMinimumItemsNotMet,
		},
		{
			name: "window failure reported before usage failure",
			coupon: Coupon{
				Code:       "BOTH",
				Benefit:    Fixed{Value: dec(10)},
				ValidUntil: &pastTime,
				UsageLimit: 1,
				UsedCount:  1,
			},
			octx:    OrderContext{OrderAmount: dec(1000), ItemCount: 1},
			wantErr: ErrExpired,
		},
		{
			name: "usage failure reported before minimum amount failure",
			coupon: Coupon{
				Code:           "BOTH2",
				Benefit:        Fixed{Value: dec(10)},
				UsageLimit:     1,
				UsedCount:      1,
				MinOrderAmount: dec(5000),
			},
			octx:    OrderContext{OrderAmount: dec(1000), ItemCount: 1},
			wantErr: ErrUsageLimitReached,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(&tt.coupon, tt.octx, fixedNow)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.True(t, tt.wantAmount.Equal(got.Amount),
				"expected amount %s, got %s", tt.wantAmount, got.Amount)
			wantShipping := tt.wantShipping
			assert.True(t, wantShipping.Equal(got.ShippingDiscount),
				"expected shipping discount %s, got %s", wantShipping, got.ShippingDiscount)
		})
	}
}

func TestEvaluate_DiscountNeverExceedsOrderAmount(t *testing.T) {
	amounts := []int64{1, 50, 499, 500, 999, 3000, 100000}
	coupons := []Coupon{
		{Code: "P110", Benefit: Percentage{Value: dec(110)}},
		{Code: "P100", Benefit: Percentage{Value: dec(100)}},
		{Code: "F9999", Benefit: Fixed{Value: dec(9999)}},
	}

	for _, c := range coupons {
		for _, amount := range amounts {
			got, err := Evaluate(&c, OrderContext{OrderAmount: dec(amount), ItemCount: 1}, time.Now())
			require.NoError(t, err)
			assert.True(t, got.Amount.LessThanOrEqual(dec(amount)),
				"coupon %s at amount %d produced discount %s", c.Code, amount, got.Amount)
		}
	}
}

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr error
	}{
		{in: "welcome10", want: "WELCOME10"},
		{in: "WELCOME10", want: "WELCOME10"},
		{in: "summer_sale-24", want: "SUMMER_SALE-24"},
		{in: "", wantErr: ErrMalformedCode},
		{in: "TEN%OFF", wantErr: ErrMalformedCode},
		{in: "CODE WITH SPACE", wantErr: ErrMalformedCode},
		{in: "drop';--", wantErr: ErrMalformedCode},
	}
	for _, tt := range tests {
		got, err := NormalizeCode(tt.in)
		if tt.wantErr != nil {
			require.ErrorIs(t, err, tt.wantErr, "code %q", tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

type stubCouponRepo struct {
	coupons map[string]*Coupon
	calls   int
}

func (s *stubCouponRepo) FindByCode(_ context.Context, code string) (*Coupon, error) {
	s.calls++
	c, ok := s.coupons[code]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (s *stubCouponRepo) ListCodes(_ context.Context) ([]string, error) {
	codes := make([]string, 0, len(s.coupons))
	for code := range s.coupons {
		codes = append(codes, code)
	}
	return codes, nil
}

func TestPreviewer_FilterShortCircuitsUnknownCodes(t *testing.T) {
	repo := &stubCouponRepo{coupons: map[string]*Coupon{
		"WELCOME10": {Code: "WELCOME10", Benefit: Percentage{Value: dec(10)}},
	}}
	p := NewPreviewer(repo, NewCodeFilter([]string{"WELCOME10"}))

	_, err := p.Preview(context.Background(), "TOTALLYBOGUS", OrderContext{OrderAmount: dec(1000), ItemCount: 1})
	require.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, repo.calls, "filtered code must not reach the repository")

	got, err := p.Preview(context.Background(), "welcome10", OrderContext{OrderAmount: dec(1000), ItemCount: 1})
	require.NoError(t, err)
	assert.True(t, dec(100).Equal(got.Amount))
	assert.Equal(t, 1, repo.calls)
}

func TestPreviewer_MalformedCodeRejectedBeforeLookup(t *testing.T) {
	repo := &stubCouponRepo{coupons: map[string]*Coupon{}}
	p := NewPreviewer(repo, nil)

	_, err := p.Preview(context.Background(), "bad code!", OrderContext{OrderAmount: dec(1000)})
	require.ErrorIs(t, err, ErrMalformedCode)
	assert.Zero(t, repo.calls)
}

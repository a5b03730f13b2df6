package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/checkout-core/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT code, benefit_type, value, cap, min_order_amount,
		usage_limit, used_count, max_uses_per_user,
		valid_from, valid_until, applicable_categories, excluded_categories,
		min_purchase_items, first_time_user_only, stackable, priority
		FROM coupons WHERE code = $1 AND active = TRUE`

	getUserUsageSQL = `SELECT user_id, uses FROM coupon_usage WHERE code = $1`

	listCouponCodesSQL = `SELECT code FROM coupons WHERE active = TRUE`

	// The guard lives in the WHERE clause: the increment lands only while the
	// global budget still covers it, so concurrent redemptions can never
	// overshoot usage_limit.
	incrementGlobalUsageSQL = `UPDATE coupons
		SET used_count = used_count + 1
		WHERE code = $1 AND active = TRUE
			AND (usage_limit = 0 OR used_count < usage_limit)
		RETURNING max_uses_per_user`

	couponExistsSQL = `SELECT EXISTS (SELECT 1 FROM coupons WHERE code = $1 AND active = TRUE)`

	incrementUserUsageSQL = `INSERT INTO coupon_usage (code, user_id, uses)
		VALUES ($1, $2, 1)
		ON CONFLICT (code, user_id) DO UPDATE
		SET uses = coupon_usage.uses + 1
		WHERE coupon_usage.uses < $3`
)

var (
	_ coupon.Repository  = (*CouponRepository)(nil)
	_ coupon.UsageLedger = (*CouponRepository)(nil)
)

// CouponRepository implements coupon lookup and the usage ledger backed by
// PostgreSQL. Callers pass codes already normalized by coupon.NormalizeCode.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up an active coupon by its normalized code. Returns
// coupon.ErrNotFound when no matching active coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	// Per-user counters are loaded only when the coupon enforces them.
	if c.MaxUsagePerUser > 0 {
		if c.UserUsage, err = r.userUsage(ctx, code); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

func (r *CouponRepository) userUsage(ctx context.Context, code string) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, getUserUsageSQL, code)
	if err != nil {
		return nil, fmt.Errorf("loading usage for coupon %q: %w", code, err)
	}
	defer rows.Close()

	usage := make(map[string]int)
	for rows.Next() {
		var (
			userID string
			uses   int32
		)
		if err := rows.Scan(&userID, &uses); err != nil {
			return nil, fmt.Errorf("loading usage for coupon %q: %w", code, err)
		}
		usage[userID] = int(uses)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading usage for coupon %q: %w", code, err)
	}
	return usage, nil
}

// ListCodes returns every active coupon code, used to seed the preview
// prefilter at startup.
func (r *CouponRepository) ListCodes(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, listCouponCodesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coupon codes: %w", err)
	}

	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("listing coupon codes: %w", err)
	}
	return codes, nil
}

// Commit records one redemption against both the global and the per-user
// budget in a single transaction. Either both counters move or neither does.
func (r *CouponRepository) Commit(ctx context.Context, code, userID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("committing usage for coupon %q: %w", code, err)
	}
	defer tx.Rollback(ctx)

	var maxPerUser int32
	err = tx.QueryRow(ctx, incrementGlobalUsageSQL, code).Scan(&maxPerUser)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("committing usage for coupon %q: %w", code, err)
		}
		// Guard rejected: distinguish a missing coupon from an exhausted one.
		var exists bool
		if err := r.pool.QueryRow(ctx, couponExistsSQL, code).Scan(&exists); err != nil {
			return fmt.Errorf("committing usage for coupon %q: %w", code, err)
		}
		if !exists {
			return coupon.ErrNotFound
		}
		return coupon.ErrUsageLimitReached
	}

	if userID != "" && maxPerUser > 0 {
		tag, err := tx.Exec(ctx, incrementUserUsageSQL, code, userID, maxPerUser)
		if err != nil {
			return fmt.Errorf("committing usage for coupon %q: %w", code, err)
		}
		if tag.RowsAffected() == 0 {
			return coupon.ErrUserLimitReached
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing usage for coupon %q: %w", code, err)
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c           coupon.Coupon
		benefitType string
		value       decimal.Decimal
		capValue    decimal.Decimal
		usageLimit  int32
		usedCount   int32
		maxPerUser  int32
		validFrom   *time.Time
		validUntil  *time.Time
		minItems    int32
		applicable  []string
		excluded    []string
	)
	err := row.Scan(
		&c.Code, &benefitType, &value, &capValue, &c.MinOrderAmount,
		&usageLimit, &usedCount, &maxPerUser,
		&validFrom, &validUntil, &applicable, &excluded,
		&minItems, &c.FirstTimeUserOnly, &c.Stackable, &c.Priority,
	)
	if err != nil {
		return coupon.Coupon{}, err
	}

	switch benefitType {
	case "percentage":
		c.Benefit = coupon.Percentage{Value: value, Cap: capValue}
	case "fixed":
		c.Benefit = coupon.Fixed{Value: value}
	case "free_shipping":
		c.Benefit = coupon.FreeShipping{Value: value}
	default:
		return coupon.Coupon{}, fmt.Errorf("unknown benefit type %q for coupon %q", benefitType, c.Code)
	}

	c.UsageLimit = int(usageLimit)
	c.UsedCount = int(usedCount)
	c.MaxUsagePerUser = int(maxPerUser)
	c.ValidFrom = validFrom
	c.ValidUntil = validUntil
	c.ApplicableCategories = applicable
	c.ExcludedCategories = excluded
	c.MinPurchaseItems = int(minItems)
	c.Active = true
	return c, nil
}

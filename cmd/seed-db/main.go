// Command seed-db provisions a development database: schema, an admin API
// key, starter stock rows, and a handful of coupons.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/checkout-core/internal/domain/auth"
	"github.com/xenking/checkout-core/internal/handler"
	"github.com/xenking/checkout-core/internal/repository"
)

const (
	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, scopes, active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (key_hash) DO UPDATE SET scopes = EXCLUDED.scopes, active = TRUE`

	upsertStockSQL = `INSERT INTO stock (item_id, size, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (item_id, size) DO UPDATE SET quantity = EXCLUDED.quantity`

	upsertCouponSQL = `INSERT INTO coupons
		(code, benefit_type, value, cap, min_order_amount, max_uses_per_user, active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		ON CONFLICT (code) DO NOTHING`
)

type stockRow struct {
	itemID   string
	size     string
	quantity int
}

var stockRows = []stockRow{
	{itemID: "classic-tee", size: "S", quantity: 40},
	{itemID: "classic-tee", size: "M", quantity: 60},
	{itemID: "classic-tee", size: "L", quantity: 50},
	{itemID: "canvas-tote", size: "", quantity: 120},
	{itemID: "trail-sneaker", size: "42", quantity: 25},
	{itemID: "trail-sneaker", size: "43", quantity: 20},
}

func main() {
	var (
		databaseURL  string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&apiKey, "api-key", "", "admin API key to seed (or CHECKOUT_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or CHECKOUT_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("CHECKOUT_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or CHECKOUT_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("CHECKOUT_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	if err := seedStock(ctx, pool); err != nil {
		return errors.Wrap(err, "seed stock")
	}
	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	hash := auth.HashKey(apiKey, []byte(pepper))
	_, err := pool.Exec(ctx, upsertAPIKeySQL,
		uuid.New().String(), hash, "ops", []string{handler.ScopeOrdersWrite},
	)
	if err != nil {
		return err
	}
	slog.Info("seeded admin api key", slog.String("name", "ops"))
	return nil
}

func seedStock(ctx context.Context, pool *pgxpool.Pool) error {
	for _, row := range stockRows {
		if _, err := pool.Exec(ctx, upsertStockSQL, row.itemID, row.size, row.quantity); err != nil {
			return errors.Wrapf(err, "upsert stock %s/%s", row.itemID, row.size)
		}
	}
	slog.Info("seeded stock", slog.Int("rows", len(stockRows)))
	return nil
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	type row struct {
		code, benefitType, value, cap, minOrder string
		maxPerUser                              int
	}
	rows := []row{
		{code: "WELCOME10", benefitType: "percentage", value: "10", cap: "200", minOrder: "500", maxPerUser: 1},
		{code: "FLAT200", benefitType: "fixed", value: "200", cap: "0", minOrder: "999"},
		{code: "SHIPFREE", benefitType: "free_shipping", value: "40", cap: "0", minOrder: "0"},
	}
	for _, r := range rows {
		_, err := pool.Exec(ctx, upsertCouponSQL,
			r.code, r.benefitType, r.value, r.cap, r.minOrder, r.maxPerUser,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert coupon %s", r.code)
		}
	}
	slog.Info("seeded coupons", slog.Int("rows", len(rows)))
	return nil
}

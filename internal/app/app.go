// Package app wires the checkout service: configuration, storage, gateways,
// event publishing, HTTP surface, and graceful shutdown.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/checkout-core/internal/broker"
	"github.com/xenking/checkout-core/internal/domain/auth"
	"github.com/xenking/checkout-core/internal/domain/checkout"
	"github.com/xenking/checkout-core/internal/domain/coupon"
	"github.com/xenking/checkout-core/internal/domain/order"
	"github.com/xenking/checkout-core/internal/gateway"
	"github.com/xenking/checkout-core/internal/gateway/paypal"
	"github.com/xenking/checkout-core/internal/gateway/razorpay"
	"github.com/xenking/checkout-core/internal/handler"
	"github.com/xenking/checkout-core/internal/repository"
	"github.com/xenking/checkout-core/pkg/health"
	"github.com/xenking/checkout-core/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	deliveryCharge, err := decimal.NewFromString(cfg.Checkout.DeliveryCharge)
	if err != nil {
		return errors.Wrap(err, "parse delivery charge")
	}

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Redis holds pending gateway checkout intents.
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return errors.Wrap(err, "parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() { _ = redisClient.Close() }()

	// Repositories.
	couponRepo := repository.NewCouponRepository(pool)
	stockLedger := repository.NewStockLedger(pool)
	orderRepo := repository.NewOrderRepository(pool)
	apikeyRepo := repository.NewAPIKeyRepository(pool)
	intentStore := repository.NewRedisIntentStore(redisClient)

	// Preview prefilter over the known coupon codes.
	codes, err := couponRepo.ListCodes(ctx)
	if err != nil {
		return errors.Wrap(err, "list coupon codes")
	}
	previewer := coupon.NewPreviewer(couponRepo, coupon.NewCodeFilter(codes))
	lg.Info("Loaded coupon code filter", zap.Int("codes", len(codes)))

	// Payment gateways, wired only when credentials are present.
	gateways := make(map[order.PaymentMethod]gateway.Gateway)
	if cfg.Gateways.Razorpay.KeyID != "" {
		gateways[order.MethodRazorpay] = razorpay.New(razorpay.Config{
			KeyID:  cfg.Gateways.Razorpay.KeyID,
			Secret: cfg.Gateways.Razorpay.Secret,
		})
	}
	if cfg.Gateways.PayPal.ClientID != "" {
		gateways[order.MethodPayPal] = paypal.New(paypal.Config{
			ClientID: cfg.Gateways.PayPal.ClientID,
			Secret:   cfg.Gateways.PayPal.Secret,
			BaseURL:  cfg.Gateways.PayPal.BaseURL,
		})
	}
	lg.Info("Gateways configured", zap.Int("count", len(gateways)))

	// Order event publisher; nil when no brokers are configured.
	var events *broker.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		events = broker.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, lg.Named("broker"))
		defer func() { _ = events.Close() }()
	}

	// Checkout orchestrator.
	svc := checkout.NewService(
		previewer,
		couponRepo,
		stockLedger,
		orderRepo,
		intentStore,
		gateways,
		nil,
		events,
		checkout.Config{
			DeliveryCharge:  deliveryCharge,
			Currency:        cfg.Checkout.Currency,
			IntentTTL:       cfg.Checkout.IntentTTL,
			RestockOnCancel: cfg.Checkout.RestockOnCancel,
		},
	)

	verifier := auth.NewVerifier(apikeyRepo, []byte(cfg.APIKeyPepper))

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PostgresCheck(pool))
	healthSvc.AddReadinessCheck("redis", 5*time.Second, health.RedisCheck(redisClient))
	if len(cfg.Kafka.Brokers) > 0 {
		healthSvc.AddReadinessCheck("kafka", 5*time.Second, health.KafkaCheck(cfg.Kafka.Brokers),
			health.WithFailureThreshold(5))
	}
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// HTTP surface.
	h := handler.NewHandler(svc, verifier, handler.Config{
		PreviewRateLimit: cfg.RateLimit.PreviewMax,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/api/", otelhttp.NewHandler(h.Routes(), "checkout-api",
		otelhttp.WithTracerProvider(m.TracerProvider()),
		otelhttp.WithMeterProvider(m.MeterProvider()),
	))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "X-API-Key", httpmiddleware.HeaderRequestID},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (CHECKOUT_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (CHECKOUT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL     string `usage:"Redis connection URL for pending checkout intents (CHECKOUT_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	APIKeyPepper string `usage:"HMAC pepper for admin API key hashing" flag:"api-key-pepper"`

	Checkout  CheckoutConfig
	Gateways  GatewaysConfig
	Kafka     KafkaConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// CheckoutConfig controls pricing and lifecycle policy.
type CheckoutConfig struct {
	DeliveryCharge  string        `default:"40" usage:"Flat delivery charge added to every order" flag:"delivery-charge"`
	Currency        string        `default:"INR" usage:"ISO currency code for gateway sessions"`
	IntentTTL       time.Duration `default:"1h" usage:"Pending gateway checkout expiry" flag:"intent-ttl"`
	RestockOnCancel bool          `default:"false" usage:"Restore stock when an order is cancelled" flag:"restock-on-cancel"`
}

// GatewaysConfig carries credentials for the hosted checkout providers. A
// gateway with empty credentials is not wired.
type GatewaysConfig struct {
	Razorpay RazorpayConfig
	PayPal   PayPalConfig
}

// RazorpayConfig holds merchant credentials for the signed-callback gateway.
type RazorpayConfig struct {
	KeyID  string `usage:"Razorpay key id" flag:"razorpay-key-id"`
	Secret string `usage:"Razorpay secret" flag:"razorpay-secret"`
}

// PayPalConfig holds REST credentials for the hosted-session gateway.
type PayPalConfig struct {
	ClientID string `usage:"PayPal client id" flag:"paypal-client-id"`
	Secret   string `usage:"PayPal secret" flag:"paypal-secret"`
	BaseURL  string `usage:"PayPal API base URL (sandbox by default)" flag:"paypal-base-url"`
}

// KafkaConfig controls order event publishing. Empty brokers disable it.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka broker addresses for order events"`
	Topic   string   `default:"order-events" usage:"Kafka topic for order events"`
}

// RateLimitConfig controls the per-client sliding window rate limiters.
type RateLimitConfig struct {
	Max        int           `default:"100" usage:"Max requests per window"`
	Window     time.Duration `default:"1m"  usage:"Rate limit window duration"`
	PreviewMax int           `default:"10" usage:"Max coupon preview calls per client per minute" flag:"preview-max"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CHECKOUT",
		Files:     []string{"config.yaml", "/etc/checkout/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set CHECKOUT_DATABASE_URL or DATABASE_URL")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("redis URL is required: set CHECKOUT_REDIS_URL or REDIS_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables
// (Railway, Render, etc.) that use standard names like DATABASE_URL and PORT
// to the application's CHECKOUT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.RedisURL == "" {
		if v := os.Getenv("REDIS_URL"); v != "" {
			c.RedisURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	CartToken    CartTokenConfig
	Stripe       StripeConfig
	Carrier      CarrierConfig
	Checkout     CheckoutConfig
	Pricing      PricingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FERNCART_APP_ENV" required:"true"`
	Port         string `envconfig:"FERNCART_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FERNCART_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FERNCART_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"FERNCART_DB_DSN"`
	Driver string `envconfig:"FERNCART_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"FERNCART_DB_HOST"`
	Port     int    `envconfig:"FERNCART_DB_PORT" default:"5432"`
	User     string `envconfig:"FERNCART_DB_USER"`
	Password string `envconfig:"FERNCART_DB_PASSWORD"`
	Name     string `envconfig:"FERNCART_DB_NAME"`
	SSLMode  string `envconfig:"FERNCART_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FERNCART_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FERNCART_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FERNCART_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FERNCART_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FERNCART_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FERNCART_REDIS_ADDR"`
	Password     string        `envconfig:"FERNCART_REDIS_PASSWORD"`
	DB           int           `envconfig:"FERNCART_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FERNCART_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FERNCART_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FERNCART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FERNCART_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FERNCART_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// CartTokenConfig drives the HS256 tokens that bind a storefront session to its cart.
type CartTokenConfig struct {
	Secret     string `envconfig:"FERNCART_CART_TOKEN_SECRET" required:"true"`
	Issuer     string `envconfig:"FERNCART_CART_TOKEN_ISSUER" required:"true"`
	TTLMinutes int    `envconfig:"FERNCART_CART_TOKEN_TTL_MINUTES" default:"10080"`
}

func (c CartTokenConfig) TTL() time.Duration {
	if c.TTLMinutes <= 0 {
		return 0
	}
	return time.Duration(c.TTLMinutes) * time.Minute
}

type StripeConfig struct {
	APIKey string `envconfig:"FERNCART_STRIPE_API_KEY"`
	Secret string `envconfig:"FERNCART_STRIPE_SECRET"`
	Env    string `envconfig:"FERNCART_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// CarrierConfig points at the external shipping rate quoting service.
type CarrierConfig struct {
	BaseURL string        `envconfig:"FERNCART_CARRIER_BASE_URL"`
	APIKey  string        `envconfig:"FERNCART_CARRIER_API_KEY"`
	Timeout time.Duration `envconfig:"FERNCART_CARRIER_TIMEOUT" default:"10s"`
}

type CheckoutConfig struct {
	FreeShippingThresholdCents int           `envconfig:"FERNCART_FREE_SHIPPING_THRESHOLD_CENTS" default:"10000"`
	PostalCodeLength           int           `envconfig:"FERNCART_POSTAL_CODE_LENGTH" default:"5"`
	RateDebounceWindow         time.Duration `envconfig:"FERNCART_RATE_DEBOUNCE_WINDOW" default:"500ms"`
	PriceSyncAttempts          int           `envconfig:"FERNCART_PRICE_SYNC_ATTEMPTS" default:"3"`
	PriceSyncBaseDelay         time.Duration `envconfig:"FERNCART_PRICE_SYNC_BASE_DELAY" default:"500ms"`
	SessionLockTTL             time.Duration `envconfig:"FERNCART_SESSION_LOCK_TTL" default:"30m"`
}

// PricingConfig drives the authoritative totals computation. Rates are basis
// points to keep the env surface integer-only.
type PricingConfig struct {
	TaxRateBasisPoints  int `envconfig:"FERNCART_TAX_RATE_BASIS_POINTS" default:"875"`
	DriftToleranceCents int `envconfig:"FERNCART_PRICE_DRIFT_TOLERANCE_CENTS" default:"1"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"FERNCART_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"FERNCART_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"FERNCART_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic           string `envconfig:"FERNCART_PUBSUB_ORDERS_TOPIC" default:"fc-order-events"`
	OrdersSubscription    string `envconfig:"FERNCART_PUBSUB_ORDERS_SUBSCRIPTION"`
	MarketingTopic        string `envconfig:"FERNCART_PUBSUB_MARKETING_TOPIC" default:"fc-marketing-events"`
	MarketingSubscription string `envconfig:"FERNCART_PUBSUB_MARKETING_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"FERNCART_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"FERNCART_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"FERNCART_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"FERNCART_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"FERNCART_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	for _, pair := range []struct {
		env   string
		value string
	}{
		{"FERNCART_DB_HOST", db.Host},
		{"FERNCART_DB_USER", db.User},
		{"FERNCART_DB_NAME", db.Name},
	} {
		if pair.value == "" {
			missing = append(missing, pair.env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either FERNCART_DB_DSN or %s are required", strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Kafka        KafkaConfig
	Stripe       StripeConfig
	Outbox       OutboxConfig
	Products     ProductsConfig
	Cart         CartConfig
	Checkout     CheckoutConfig
	Cron         CronConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Eventing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"STOREFRONT_LOG_FORMAT" default:"json"`

	CORSOrigins []string `envconfig:"STOREFRONT_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STOREFRONT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig holds the verification side only; tokens are minted by the auth service.
type JWTConfig struct {
	Secret string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate    bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
	SeedPromoCodes bool `envconfig:"STOREFRONT_SEED_PROMO_CODES" default:"true"`
}

type EventingConfig struct {
	Transport            string        `envconfig:"STOREFRONT_EVENTING_TRANSPORT" default:"pubsub"`
	OutboxIdempotencyTTL time.Duration `envconfig:"STOREFRONT_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	OrderEventsTopic     string        `envconfig:"STOREFRONT_TOPIC_ORDER_EVENTS" default:"order-events"`
	PaymentCapturedTopic string        `envconfig:"STOREFRONT_TOPIC_PAYMENT_CAPTURED" default:"payment-captured"`
	PaymentFailedTopic   string        `envconfig:"STOREFRONT_TOPIC_PAYMENT_FAILED" default:"payment-failed"`
}

// UsesKafka reports whether events travel over Kafka instead of Pub/Sub.
func (e EventingConfig) UsesKafka() bool {
	return strings.EqualFold(strings.TrimSpace(e.Transport), TransportKafka)
}

func (e EventingConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(e.Transport)) {
	case TransportPubSub, TransportKafka:
		return nil
	default:
		return fmt.Errorf("unsupported eventing transport %q", e.Transport)
	}
}

type GCPConfig struct {
	ProjectID              string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
	ApplicationCredentials string `envconfig:"STOREFRONT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	PaymentCapturedSubscription string `envconfig:"STOREFRONT_PUBSUB_PAYMENT_CAPTURED_SUBSCRIPTION" default:"order-service.payment-captured"`
	PaymentFailedSubscription   string `envconfig:"STOREFRONT_PUBSUB_PAYMENT_FAILED_SUBSCRIPTION" default:"order-service.payment-failed"`
}

type KafkaConfig struct {
	Brokers       []string `envconfig:"STOREFRONT_KAFKA_BROKERS" default:"localhost:9092"`
	ConsumerGroup string   `envconfig:"STOREFRONT_KAFKA_CONSUMER_GROUP" default:"order-group"`
	ClientID      string   `envconfig:"STOREFRONT_KAFKA_CLIENT_ID" default:"storefront"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"STOREFRONT_OUTBOX_RETENTION_DAYS" default:"30"`

	MetricsAddr string `envconfig:"STOREFRONT_OUTBOX_METRICS_ADDR" default:":9103"`
}

type StripeConfig struct {
	APIKey string `envconfig:"STOREFRONT_STRIPE_API_KEY"`
	Secret string `envconfig:"STOREFRONT_STRIPE_SECRET"`
	Env    string `envconfig:"STOREFRONT_STRIPE_ENV" default:"test"`

	WebhookTolerance time.Duration `envconfig:"STOREFRONT_STRIPE_WEBHOOK_TOLERANCE" default:"5m"`
	WebhookDedupeTTL time.Duration `envconfig:"STOREFRONT_STRIPE_WEBHOOK_DEDUPE_TTL" default:"72h"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type ProductsConfig struct {
	BaseURL             string        `envconfig:"STOREFRONT_PRODUCTS_URL" default:"http://localhost:8082/api"`
	Timeout             time.Duration `envconfig:"STOREFRONT_PRODUCTS_TIMEOUT" default:"5s"`
	BreakerFailures     uint32        `envconfig:"STOREFRONT_PRODUCTS_BREAKER_FAILURES" default:"5"`
	BreakerOpenDuration time.Duration `envconfig:"STOREFRONT_PRODUCTS_BREAKER_OPEN" default:"30s"`
}

type CartConfig struct {
	TTL time.Duration `envconfig:"STOREFRONT_CART_TTL" default:"168h"`
}

type CheckoutConfig struct {
	StockCommitGrace       time.Duration `envconfig:"STOREFRONT_CHECKOUT_STOCK_COMMIT_GRACE" default:"2m"`
	MaxStockCommitAttempts int           `envconfig:"STOREFRONT_CHECKOUT_MAX_STOCK_COMMIT_ATTEMPTS" default:"5"`
	ReconcileBatchSize     int           `envconfig:"STOREFRONT_CHECKOUT_RECONCILE_BATCH_SIZE" default:"50"`
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"STOREFRONT_CRON_INTERVAL" default:"1m"`
	LockTTL             time.Duration `envconfig:"STOREFRONT_CRON_LOCK_TTL" default:"5m"`
	StalePaymentAge     time.Duration `envconfig:"STOREFRONT_CRON_STALE_PAYMENT_AGE" default:"15m"`
	StalePaymentBatch   int           `envconfig:"STOREFRONT_CRON_STALE_PAYMENT_BATCH" default:"25"`
	StalePaymentEvery   time.Duration `envconfig:"STOREFRONT_CRON_STALE_PAYMENT_EVERY" default:"5m"`
	RetentionEvery      time.Duration `envconfig:"STOREFRONT_CRON_RETENTION_EVERY" default:"24h"`
	MetricsAddr         string        `envconfig:"STOREFRONT_CRON_METRICS_ADDR" default:":9102"`
	DisableStockCommits bool          `envconfig:"STOREFRONT_CRON_DISABLE_STOCK_COMMITS" default:"false"`
}

// RateLimitConfig bounds promo-code guessing and checkout bursts per user.
type RateLimitConfig struct {
	Window        time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_WINDOW" default:"1m"`
	PromoLimit    int           `envconfig:"STOREFRONT_RATE_LIMIT_PROMO" default:"10"`
	CheckoutLimit int           `envconfig:"STOREFRONT_RATE_LIMIT_CHECKOUT" default:"5"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}

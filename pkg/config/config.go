package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App     AppConfig
	Service ServiceConfig
	DB      DBConfig
	Redis   RedisConfig
	GCP     GCPConfig
	PubSub  PubSubConfig
	Square  SquareConfig
	Outbox  OutboxConfig
	Webhook WebhookConfig
	Booking BookingConfig
	Flags   FeatureFlagsConfig
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
	Env          string `envconfig:"PLANBOOK_APP_ENV" required:"true"`
	Port         string `envconfig:"PLANBOOK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PLANBOOK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PLANBOOK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PLANBOOK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"PLANBOOK_DB_DSN"`

	Host     string `envconfig:"PLANBOOK_DB_HOST"`
	Port     int    `envconfig:"PLANBOOK_DB_PORT" default:"5432"`
	User     string `envconfig:"PLANBOOK_DB_USER"`
	Password string `envconfig:"PLANBOOK_DB_PASSWORD"`
	Name     string `envconfig:"PLANBOOK_DB_NAME"`
	SSLMode  string `envconfig:"PLANBOOK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PLANBOOK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PLANBOOK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PLANBOOK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PLANBOOK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	for key, value := range map[string]string{
		"PLANBOOK_DB_HOST": db.Host,
		"PLANBOOK_DB_USER": db.User,
		"PLANBOOK_DB_NAME": db.Name,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("database config incomplete: set PLANBOOK_DB_DSN or %s", strings.Join(missing, ", "))
	}

	db.DSN = fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(db.User),
		url.QueryEscape(db.Password),
		db.Host,
		db.Port,
		db.Name,
		db.SSLMode,
	)
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"PLANBOOK_REDIS_URL"`
	Address      string        `envconfig:"PLANBOOK_REDIS_ADDR"`
	Password     string        `envconfig:"PLANBOOK_REDIS_PASSWORD"`
	DB           int           `envconfig:"PLANBOOK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PLANBOOK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PLANBOOK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PLANBOOK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PLANBOOK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PLANBOOK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"PLANBOOK_GCP_PROJECT_ID" required:"true"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"PLANBOOK_PUBSUB_DOMAIN_TOPIC" default:"planbook-domain-events"`
	DomainSubscription string `envconfig:"PLANBOOK_PUBSUB_DOMAIN_SUBSCRIPTION" required:"true"`
	PaymentsTopic      string `envconfig:"PLANBOOK_PUBSUB_PAYMENTS_TOPIC" default:"planbook-payment-events"`
}

type SquareConfig struct {
	AccessToken   string        `envconfig:"PLANBOOK_SQUARE_ACCESS_TOKEN"`
	Env           string        `envconfig:"PLANBOOK_SQUARE_ENV" default:"sandbox"`
	LocationID    string        `envconfig:"PLANBOOK_SQUARE_LOCATION_ID"`
	ChargeTimeout time.Duration `envconfig:"PLANBOOK_SQUARE_CHARGE_TIMEOUT" default:"10s"`
}

// Enabled reports whether the real gateway binding is configured; when false
// the payment service falls back to the no-op gateway.
func (s SquareConfig) Enabled() bool {
	return strings.TrimSpace(s.AccessToken) != ""
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PLANBOOK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PLANBOOK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PLANBOOK_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type WebhookConfig struct {
	SigningSecret  string        `envconfig:"PLANBOOK_WEBHOOK_SIGNING_SECRET" required:"true"`
	IdempotencyTTL time.Duration `envconfig:"PLANBOOK_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
	// ReconcileGraceWindow bounds how long after a timeout-derived failure a
	// webhook may still overturn the local outcome.
	ReconcileGraceWindow time.Duration `envconfig:"PLANBOOK_WEBHOOK_RECONCILE_GRACE_WINDOW" default:"24h"`
}

type BookingConfig struct {
	ReferencePrefix  string `envconfig:"PLANBOOK_BOOKING_REFERENCE_PREFIX" default:"ENR"`
	SequencePadding  int    `envconfig:"PLANBOOK_BOOKING_SEQUENCE_PADDING" default:"5"`
	UnboundedDisplay int    `envconfig:"PLANBOOK_BOOKING_UNBOUNDED_DISPLAY_SLOTS" default:"50"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PLANBOOK_AUTO_MIGRATE" default:"false"`
}

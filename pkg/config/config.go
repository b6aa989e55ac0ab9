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
	Bus          BusConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Kafka        KafkaConfig
	Outbox       OutboxConfig
	Dedup        DedupConfig
	Campaigns    CampaignsConfig
	Pledges      PledgesClientConfig
	Payments     PaymentsConfig
	Internal     InternalConfig
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
	if err := cfg.Service.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Bus.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CAREFORALL_APP_ENV" required:"true"`
	Port         string `envconfig:"CAREFORALL_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"CAREFORALL_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CAREFORALL_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// ServiceConfig selects which route groups and workers a cmd/api process owns.
type ServiceConfig struct {
	Kind string `envconfig:"CAREFORALL_SERVICE_KIND" default:"all"`
}

// Owns reports whether this process serves the given kind.
func (s ServiceConfig) Owns(kind string) bool {
	current := strings.ToLower(strings.TrimSpace(s.Kind))
	return current == ServiceKindAll || current == kind
}

func (s ServiceConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(s.Kind)) {
	case ServiceKindAll, ServiceKindPledges, ServiceKindPayments, ServiceKindTotals:
		return nil
	}
	return fmt.Errorf("%s must be one of all, pledges, payments, totals (got %q)", EnvServiceKind, s.Kind)
}

type DBConfig struct {
	DSN    string `envconfig:"CAREFORALL_DB_DSN"`
	Driver string `envconfig:"CAREFORALL_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CAREFORALL_DB_HOST"`
	LegacyPort     int    `envconfig:"CAREFORALL_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CAREFORALL_DB_USER"`
	LegacyPassword string `envconfig:"CAREFORALL_DB_PASSWORD"`
	LegacyName     string `envconfig:"CAREFORALL_DB_NAME"`
	LegacySSLMode  string `envconfig:"CAREFORALL_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CAREFORALL_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CAREFORALL_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CAREFORALL_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CAREFORALL_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// RedisConfig is optional; an empty URL and address disables the dedup cache.
type RedisConfig struct {
	URL          string        `envconfig:"CAREFORALL_REDIS_URL"`
	Address      string        `envconfig:"CAREFORALL_REDIS_ADDR"`
	Password     string        `envconfig:"CAREFORALL_REDIS_PASSWORD"`
	DB           int           `envconfig:"CAREFORALL_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CAREFORALL_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CAREFORALL_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CAREFORALL_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CAREFORALL_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CAREFORALL_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type JWTConfig struct {
	Secret            string `envconfig:"CAREFORALL_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CAREFORALL_JWT_ISSUER" default:"careforall-identity"`
	ExpirationMinutes int    `envconfig:"CAREFORALL_JWT_EXPIRATION_MINUTES" default:"10080"`
}

type BusConfig struct {
	Driver string `envconfig:"CAREFORALL_BUS_DRIVER" default:"pubsub"`
}

func (b BusConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(b.Driver)) {
	case BusDriverPubSub, BusDriverKafka, BusDriverMemory:
		return nil
	}
	return fmt.Errorf("%s must be one of pubsub, kafka, memory (got %q)", EnvBusDriver, b.Driver)
}

// Normalized returns the lower-cased driver name.
func (b BusConfig) Normalized() string {
	return strings.ToLower(strings.TrimSpace(b.Driver))
}

type GCPConfig struct {
	ProjectID string `envconfig:"CAREFORALL_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	PledgeCreatedTopic  string `envconfig:"CAREFORALL_PUBSUB_PLEDGE_CREATED_TOPIC" default:"pledge.created"`
	PledgeCapturedTopic string `envconfig:"CAREFORALL_PUBSUB_PLEDGE_CAPTURED_TOPIC" default:"pledge.captured"`
	TotalsSubscription  string `envconfig:"CAREFORALL_PUBSUB_TOTALS_SUBSCRIPTION" default:"totals.pledge.captured"`
}

type KafkaConfig struct {
	Brokers  []string `envconfig:"CAREFORALL_KAFKA_BROKERS" default:"localhost:9092"`
	GroupID  string   `envconfig:"CAREFORALL_KAFKA_GROUP_ID" default:"totals-service"`
	ClientID string   `envconfig:"CAREFORALL_KAFKA_CLIENT_ID" default:"careforall"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"CAREFORALL_OUTBOX_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"CAREFORALL_OUTBOX_POLL_MS" default:"5000"`
	MaxRetries     int           `envconfig:"CAREFORALL_OUTBOX_MAX_RETRIES" default:"5"`
	PublishTimeout time.Duration `envconfig:"CAREFORALL_OUTBOX_PUBLISH_TIMEOUT" default:"15s"`
}

// PollInterval converts the configured milliseconds into a duration.
func (o OutboxConfig) PollInterval() time.Duration {
	if o.PollIntervalMS <= 0 {
		return 0
	}
	return time.Duration(o.PollIntervalMS) * time.Millisecond
}

type DedupConfig struct {
	TTL time.Duration `envconfig:"CAREFORALL_DEDUP_TTL" default:"168h"`
}

type CampaignsConfig struct {
	BaseURL string        `envconfig:"CAREFORALL_CAMPAIGN_SERVICE_URL" default:"http://campaign-service:3002"`
	Timeout time.Duration `envconfig:"CAREFORALL_CAMPAIGN_LOOKUP_TIMEOUT" default:"5s"`
}

type PledgesClientConfig struct {
	BaseURL        string        `envconfig:"CAREFORALL_PLEDGE_SERVICE_URL" default:"http://pledge-service:3003"`
	ForwardTimeout time.Duration `envconfig:"CAREFORALL_PLEDGE_FORWARD_TIMEOUT" default:"5s"`
}

type PaymentsConfig struct {
	WebhookURL     string        `envconfig:"CAREFORALL_PAYMENT_WEBHOOK_URL" default:"http://payment-service:3004/payments/webhooks"`
	AuthorizeDelay time.Duration `envconfig:"CAREFORALL_PAYMENT_AUTHORIZE_DELAY" default:"2s"`
	CaptureDelay   time.Duration `envconfig:"CAREFORALL_PAYMENT_CAPTURE_DELAY" default:"1s"`
}

type InternalConfig struct {
	Token string `envconfig:"CAREFORALL_INTERNAL_TOKEN"`
}

type FeatureFlagsConfig struct {
	AutoMigrate     bool `envconfig:"CAREFORALL_AUTO_MIGRATE" default:"false"`
	EmbeddedWorkers bool `envconfig:"CAREFORALL_EMBEDDED_WORKERS" default:"false"`
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

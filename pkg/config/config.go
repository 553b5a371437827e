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
	Razorpay     RazorpayConfig
	Webhook      WebhookConfig
	Reconcile    ReconcileConfig
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
	Env          string `envconfig:"GYMDESK_APP_ENV" required:"true"`
	Port         string `envconfig:"GYMDESK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"GYMDESK_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"GYMDESK_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"GYMDESK_LOG_WARN_STACK" default:"false"`

	CORSAllowedOrigins []string `envconfig:"GYMDESK_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"GYMDESK_SERVICE_KIND" default:"api"`
	// MetricsPort exposes /metrics on workers that have no public router.
	MetricsPort string `envconfig:"GYMDESK_METRICS_PORT" default:"9091"`
}

type DBConfig struct {
	DSN    string `envconfig:"GYMDESK_DB_DSN"`
	Driver string `envconfig:"GYMDESK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"GYMDESK_DB_HOST"`
	LegacyPort     int    `envconfig:"GYMDESK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"GYMDESK_DB_USER"`
	LegacyPassword string `envconfig:"GYMDESK_DB_PASSWORD"`
	LegacyName     string `envconfig:"GYMDESK_DB_NAME"`
	LegacySSLMode  string `envconfig:"GYMDESK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"GYMDESK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GYMDESK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GYMDESK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"GYMDESK_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"GYMDESK_DB_SLOW_QUERY_THRESHOLD" default:"250ms"`
}

// IsSQLite reports whether the sqlite dialector was requested.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"GYMDESK_REDIS_URL"`
	Address      string        `envconfig:"GYMDESK_REDIS_ADDR"`
	Password     string        `envconfig:"GYMDESK_REDIS_PASSWORD"`
	DB           int           `envconfig:"GYMDESK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GYMDESK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GYMDESK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GYMDESK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GYMDESK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GYMDESK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig is used to verify access tokens minted by the accounts service.
type JWTConfig struct {
	Secret string        `envconfig:"GYMDESK_JWT_SECRET" required:"true"`
	Issuer string        `envconfig:"GYMDESK_JWT_ISSUER" required:"true"`
	Leeway time.Duration `envconfig:"GYMDESK_JWT_LEEWAY" default:"30s"`
}

type RazorpayConfig struct {
	KeyID         string        `envconfig:"GYMDESK_RAZORPAY_KEY_ID"`
	KeySecret     string        `envconfig:"GYMDESK_RAZORPAY_KEY_SECRET"`
	WebhookSecret string        `envconfig:"GYMDESK_RAZORPAY_WEBHOOK_SECRET" required:"true"`
	FetchTimeout  time.Duration `envconfig:"GYMDESK_RAZORPAY_FETCH_TIMEOUT" default:"5s"`
}

type WebhookConfig struct {
	IdempotencyTTL time.Duration `envconfig:"GYMDESK_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
	MaxBodyBytes   int64         `envconfig:"GYMDESK_WEBHOOK_MAX_BODY_BYTES" default:"1048576"`
}

type ReconcileConfig struct {
	Interval    time.Duration `envconfig:"GYMDESK_RECONCILE_INTERVAL" default:"15m"`
	BatchSize   int           `envconfig:"GYMDESK_RECONCILE_BATCH_SIZE" default:"100"`
	Lookback    time.Duration `envconfig:"GYMDESK_RECONCILE_LOOKBACK" default:"72h"`
	MaxAttempts int           `envconfig:"GYMDESK_RECONCILE_MAX_ATTEMPTS" default:"10"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"GYMDESK_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
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

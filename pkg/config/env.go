package config

// EnvPrefix is passed to envconfig; every field declares its full key explicitly.
const EnvPrefix = "GYMDESK"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "GYMDESK_APP_ENV"
	EnvPort     = "GYMDESK_APP_PORT"
	EnvLogLevel = "GYMDESK_LOG_LEVEL"

	EnvDBDSN    = "GYMDESK_DB_DSN"
	EnvDBDriver = "GYMDESK_DB_DRIVER"
	EnvDBHost   = "GYMDESK_DB_HOST"
	EnvDBUser   = "GYMDESK_DB_USER"
	EnvDBName   = "GYMDESK_DB_NAME"

	EnvRedisURL = "GYMDESK_REDIS_URL"

	EnvJWTSecret = "GYMDESK_JWT_SECRET"
	EnvJWTIssuer = "GYMDESK_JWT_ISSUER"

	EnvRazorpayKeyID         = "GYMDESK_RAZORPAY_KEY_ID"
	EnvRazorpayKeySecret     = "GYMDESK_RAZORPAY_KEY_SECRET"
	EnvRazorpayWebhookSecret = "GYMDESK_RAZORPAY_WEBHOOK_SECRET"
	EnvRazorpayFetchTimeout  = "GYMDESK_RAZORPAY_FETCH_TIMEOUT"

	EnvReconcileInterval = "GYMDESK_RECONCILE_INTERVAL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

package config

const EnvPrefix = "CAREFORALL"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	ServiceKindAll      = "all"
	ServiceKindPledges  = "pledges"
	ServiceKindPayments = "payments"
	ServiceKindTotals   = "totals"
)

const (
	BusDriverPubSub = "pubsub"
	BusDriverKafka  = "kafka"
	BusDriverMemory = "memory"
)

const (
	EnvAppEnv       = "CAREFORALL_APP_ENV"
	EnvPort         = "CAREFORALL_APP_PORT"
	EnvServiceKind  = "CAREFORALL_SERVICE_KIND"
	EnvDBDSN        = "CAREFORALL_DB_DSN"
	EnvDBHost       = "CAREFORALL_DB_HOST"
	EnvDBUser       = "CAREFORALL_DB_USER"
	EnvDBName       = "CAREFORALL_DB_NAME"
	EnvRedisURL     = "CAREFORALL_REDIS_URL"
	EnvJWTSecret    = "CAREFORALL_JWT_SECRET"
	EnvBusDriver    = "CAREFORALL_BUS_DRIVER"
	EnvGCPProjectID = "CAREFORALL_GCP_PROJECT_ID"
	EnvKafkaBrokers = "CAREFORALL_KAFKA_BROKERS"
	EnvOutboxPollMS = "CAREFORALL_OUTBOX_POLL_MS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

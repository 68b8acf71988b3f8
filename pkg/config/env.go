package config

const (
	EnvPrefix = "BISTRO"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv         = "BISTRO_APP_ENV"
	EnvPort           = "BISTRO_APP_PORT"
	EnvLogLevel       = "BISTRO_LOG_LEVEL"
	EnvDBDSN          = "BISTRO_DB_DSN"
	EnvDBHost         = "BISTRO_DB_HOST"
	EnvDBUser         = "BISTRO_DB_USER"
	EnvDBName         = "BISTRO_DB_NAME"
	EnvDBPassword     = "BISTRO_DB_PASSWORD"
	EnvRedisURL       = "BISTRO_REDIS_URL"
	EnvRabbitMQURL    = "BISTRO_RABBITMQ_URL"
	EnvUseSQLite      = "BISTRO_USE_SQLITE"
	EnvAllowEmpty     = "BISTRO_ORDERS_ALLOW_EMPTY_CLOSE"
	EnvApprovalPolicy = "BISTRO_SCHEDULING_APPROVAL_POLICY"
	EnvMaxRetries     = "BISTRO_INVENTORY_MAX_RETRIES"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

package env

const (
	// POSTGRES

	EnvPostgresURL = "POSTGRES_URL"

	// REDIS

	EnvRedisURL = "REDIS_URL"

	// EVENT BUS

	EnvEventBusConsumerGroup = "EVENT_BUS_CONSUMER_GROUP"

	// GO CHAT RELAY

	EnvConfigPath  = "GO_CHAT_RELAY_CONFIG_PATH"
	EnvBaseURL     = "GO_CHAT_RELAY_BASE_URL"
	EnvDatabaseURL = "GO_CHAT_RELAY_DATABASE_URL"

	// ENVIRONMENT

	EnvGoEnvironment = "GO_ENV"
	EnvPort          = "PORT"
)

package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"
	EnvStoreBackend      = "STORE_BACKEND"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvUsageDuration             = "USAGE_DURATION"
	EnvExtensionDuration         = "EXTENSION_DURATION"
	EnvGraceWindow               = "GRACE_WINDOW"
	EnvAdmissionWindow           = "ADMISSION_WINDOW"
	EnvNoShowWindow              = "NO_SHOW_WINDOW"
	EnvMaxExtensions             = "MAX_EXTENSIONS"
	EnvBlockExtensionDuringGrace = "BLOCK_EXTENSION_DURING_GRACE"
	EnvAdmissionExpiryStatus     = "ADMISSION_EXPIRY_STATUS"
	EnvSweepInterval             = "SWEEP_INTERVAL"
	EnvServiceCatalogPath        = "SERVICE_CATALOG_PATH"

	EnvKafkaEnabled = "KAFKA_ENABLED"

	EnvOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvOTLPInsecure = "OTEL_EXPORTER_OTLP_INSECURE"
)

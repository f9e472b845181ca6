package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"campusq/pkg/client"
	"campusq/pkg/logger"
)

type Config struct {
	ServiceName string

	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration
	StoreBackend      string

	Port string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	UsageDuration             time.Duration
	ExtensionDuration         time.Duration
	GraceWindow               time.Duration
	AdmissionWindow           time.Duration
	NoShowWindow              time.Duration
	MaxExtensions             int
	BlockExtensionDuringGrace bool
	AdmissionExpiryStatus     string
	SweepInterval             time.Duration
	ServiceCatalogPath        string

	// KafkaEnabled switches event publishing to Kafka. Broker, topic and
	// group settings live in pkg/kafka/config.
	KafkaEnabled bool

	OTLPEndpoint string
	OTLPInsecure bool

	Log    *logger.Logger
	Client *client.Client
}

func Load(serviceName string) *Config {
	cfg := &Config{
		ServiceName: serviceName,

		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),
		StoreBackend:      getEnvStr(EnvStoreBackend, DefaultStoreBackend),

		Port: getEnvStr(EnvPort, DefaultPort),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		UsageDuration:             getEnvDuration(EnvUsageDuration, DefaultUsageDuration),
		ExtensionDuration:         getEnvDuration(EnvExtensionDuration, DefaultExtensionDuration),
		GraceWindow:               getEnvDuration(EnvGraceWindow, DefaultGraceWindow),
		AdmissionWindow:           getEnvDuration(EnvAdmissionWindow, DefaultAdmissionWindow),
		NoShowWindow:              getEnvDuration(EnvNoShowWindow, DefaultNoShowWindow),
		MaxExtensions:             getEnvNum(EnvMaxExtensions, DefaultMaxExtensions),
		BlockExtensionDuringGrace: getEnvBool(EnvBlockExtensionDuringGrace, DefaultBlockExtensionDuringGrace),
		AdmissionExpiryStatus:     getEnvStr(EnvAdmissionExpiryStatus, DefaultAdmissionExpiryStatus),
		SweepInterval:             getEnvDuration(EnvSweepInterval, DefaultSweepInterval),
		ServiceCatalogPath:        getEnvStr(EnvServiceCatalogPath, ""),

		KafkaEnabled: getEnvBool(EnvKafkaEnabled, DefaultKafkaEnabled),

		OTLPEndpoint: getEnvStr(EnvOTLPEndpoint, ""),
		OTLPInsecure: getEnvBool(EnvOTLPInsecure, false),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}

	err := cfg.Validate()
	if err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) UsesMongo() bool {
	return cfg.StoreBackend == StoreMongo
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	switch cfg.StoreBackend {
	case StoreMemory:
	case StoreMongo:
		if cfg.MongoURI == "" {
			errors = append(errors, "MongoURI cannot be empty")
		} else if len(cfg.MongoURI) < 10 || !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
			errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactMongoURI(cfg.MongoURI)))
		}
		if cfg.MongoDatabaseName == "" {
			errors = append(errors, "MongoDatabaseName cannot be empty")
		}
		if cfg.MongoConnTimeout <= 0 {
			errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
		}
	default:
		errors = append(errors, fmt.Sprintf("StoreBackend must be one of [%s, %s], got: %s", StoreMemory, StoreMongo, cfg.StoreBackend))
	}

	positiveDurations := []struct {
		name  string
		value time.Duration
	}{
		{"RateLimitWindow", cfg.RateLimitWindow},
		{"RequestTimeout", cfg.RequestTimeout},
		{"IdempotencyTTL", cfg.IdempotencyTTL},
		{"ReadTimeout", cfg.ReadTimeout},
		{"WriteTimeout", cfg.WriteTimeout},
		{"IdleTimeout", cfg.IdleTimeout},
		{"ShutdownTimeout", cfg.ShutdownTimeout},
		{"UsageDuration", cfg.UsageDuration},
		{"ExtensionDuration", cfg.ExtensionDuration},
		{"GraceWindow", cfg.GraceWindow},
		{"AdmissionWindow", cfg.AdmissionWindow},
		{"NoShowWindow", cfg.NoShowWindow},
		{"SweepInterval", cfg.SweepInterval},
	}
	for _, d := range positiveDurations {
		if d.value <= 0 {
			errors = append(errors, fmt.Sprintf("%s must be positive, got: %s", d.name, d.value))
		}
	}

	if cfg.RateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}
	if cfg.MaxExtensions < 0 {
		errors = append(errors, fmt.Sprintf("MaxExtensions cannot be negative, got: %d", cfg.MaxExtensions))
	}

	if cfg.AdmissionExpiryStatus != ExpiryStatusCancelled && cfg.AdmissionExpiryStatus != ExpiryStatusExpired {
		errors = append(errors, fmt.Sprintf("AdmissionExpiryStatus must be one of [%s, %s], got: %s", ExpiryStatusCancelled, ExpiryStatusExpired, cfg.AdmissionExpiryStatus))
	}

	if cfg.ServiceCatalogPath != "" {
		if _, err := os.Stat(cfg.ServiceCatalogPath); err != nil {
			errors = append(errors, fmt.Sprintf("ServiceCatalogPath is not readable: %v", err))
		}
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"store_backend", cfg.StoreBackend,
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"port", cfg.Port,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"usage_duration", cfg.UsageDuration,
		"extension_duration", cfg.ExtensionDuration,
		"grace_window", cfg.GraceWindow,
		"admission_window", cfg.AdmissionWindow,
		"no_show_window", cfg.NoShowWindow,
		"max_extensions", cfg.MaxExtensions,
		"block_extension_during_grace", cfg.BlockExtensionDuringGrace,
		"admission_expiry_status", cfg.AdmissionExpiryStatus,
		"sweep_interval", cfg.SweepInterval,
		"service_catalog_path", cfg.ServiceCatalogPath,
		"kafka_enabled", cfg.KafkaEnabled,
		"otlp_endpoint_set", cfg.OTLPEndpoint != "",
	)
}

func redactMongoURI(uri string) string {
	credentialRegex := regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown()
}

func NormalizePaginationLimit(limit int) int {
	if limit <= 0 {
		limit = 10
	} else if limit > DefaultPaginationLimit {
		limit = DefaultPaginationLimit
	}
	return limit
}

func NormalizeOffset(offset int64) int64 {
	return max(0, offset)
}

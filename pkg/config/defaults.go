package config

import "time"

const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"

	ExpiryStatusCancelled = "cancelled"
	ExpiryStatusExpired   = "expired"
)

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "campusq"
	DefaultMongoConnTimeout  = 10 * time.Second
	DefaultStoreBackend      = StoreMemory

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	DefaultRateLimitRequests = 60
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultPaginationLimit = 100

	DefaultUsageDuration             = 2 * time.Hour
	DefaultExtensionDuration         = 2 * time.Hour
	DefaultGraceWindow               = 10 * time.Minute
	DefaultAdmissionWindow           = 3 * time.Minute
	DefaultNoShowWindow              = 10 * time.Second
	DefaultMaxExtensions             = 0 // unlimited
	DefaultBlockExtensionDuringGrace = false
	DefaultAdmissionExpiryStatus     = ExpiryStatusCancelled
	DefaultSweepInterval             = 30 * time.Second

	DefaultKafkaEnabled = false
)

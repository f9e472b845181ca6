package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		MongoURI:          DefaultMongoURI,
		MongoDatabaseName: DefaultMongoDatabaseName,
		MongoConnTimeout:  DefaultMongoConnTimeout,
		StoreBackend:      StoreMemory,

		Port: DefaultPort,

		RateLimitRequests: DefaultRateLimitRequests,
		RateLimitWindow:   DefaultRateLimitWindow,
		RequestTimeout:    DefaultRequestTimeout,
		IdempotencyTTL:    DefaultIdempotencyTTL,
		MaxRequestSize:    DefaultMaxRequestSize,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		ShutdownTimeout:   DefaultShutdownTimeout,

		UsageDuration:         DefaultUsageDuration,
		ExtensionDuration:     DefaultExtensionDuration,
		GraceWindow:           DefaultGraceWindow,
		AdmissionWindow:       DefaultAdmissionWindow,
		NoShowWindow:          DefaultNoShowWindow,
		AdmissionExpiryStatus: DefaultAdmissionExpiryStatus,
		SweepInterval:         DefaultSweepInterval,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Port = "70000" },
			wantErr: "Port must be between",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.StoreBackend = "redis" },
			wantErr: "StoreBackend must be one of",
		},
		{
			name: "mongo backend requires a mongo uri",
			mutate: func(c *Config) {
				c.StoreBackend = StoreMongo
				c.MongoURI = "postgres://x"
			},
			wantErr: "MongoURI must start with",
		},
		{
			name:   "memory backend ignores mongo uri",
			mutate: func(c *Config) { c.MongoURI = "" },
		},
		{
			name:    "zero admission window",
			mutate:  func(c *Config) { c.AdmissionWindow = 0 },
			wantErr: "AdmissionWindow must be positive",
		},
		{
			name:    "negative no-show window",
			mutate:  func(c *Config) { c.NoShowWindow = -time.Second },
			wantErr: "NoShowWindow must be positive",
		},
		{
			name:    "negative max extensions",
			mutate:  func(c *Config) { c.MaxExtensions = -1 },
			wantErr: "MaxExtensions cannot be negative",
		},
		{
			name:   "expired admission status",
			mutate: func(c *Config) { c.AdmissionExpiryStatus = ExpiryStatusExpired },
		},
		{
			name:    "unknown admission status",
			mutate:  func(c *Config) { c.AdmissionExpiryStatus = "finished" },
			wantErr: "AdmissionExpiryStatus must be one of",
		},
		{
			name:    "missing catalog file",
			mutate:  func(c *Config) { c.ServiceCatalogPath = "/nonexistent/catalog.yaml" },
			wantErr: "ServiceCatalogPath is not readable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Port = "0"
	cfg.GraceWindow = 0
	cfg.SweepInterval = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"1. Port", "2. GraceWindow", "3. SweepInterval"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing %q in %q", want, err.Error())
		}
	}
}

func TestRedactMongoURI(t *testing.T) {
	got := redactMongoURI("mongodb://admin:s3cret@db:27017/campusq")
	if strings.Contains(got, "s3cret") {
		t.Errorf("credentials leaked: %s", got)
	}
	if got != "mongodb://***:***@db:27017/campusq" {
		t.Errorf("unexpected redaction: %s", got)
	}
}

func TestNormalizePaginationLimit(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, 10},
		{-5, 10},
		{25, 25},
		{DefaultPaginationLimit + 1, DefaultPaginationLimit},
	}
	for _, tt := range tests {
		if got := NormalizePaginationLimit(tt.in); got != tt.want {
			t.Errorf("NormalizePaginationLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv(EnvNoShowWindow, "15s")
	t.Setenv(EnvMaxExtensions, "2")
	t.Setenv(EnvKafkaEnabled, "true")
	t.Setenv(EnvGraceWindow, "not-a-duration")

	if got := getEnvDuration(EnvNoShowWindow, DefaultNoShowWindow); got != 15*time.Second {
		t.Errorf("no-show window = %s", got)
	}
	if got := getEnvNum(EnvMaxExtensions, 0); got != 2 {
		t.Errorf("max extensions = %d", got)
	}
	if !getEnvBool(EnvKafkaEnabled, false) {
		t.Errorf("kafka enabled should be true")
	}
	if got := getEnvDuration(EnvGraceWindow, DefaultGraceWindow); got != DefaultGraceWindow {
		t.Errorf("invalid duration should fall back, got %s", got)
	}
}

// Package kafka_config loads the broker, topic and client settings shared
// by the engine's event publisher and the alert consumer.
package kafka_config

import (
	"encoding"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"
)

// Topics names where domain events go. An empty DLQ disables dead-lettering.
type Topics struct {
	Events string
	DLQ    string
}

type Producer struct {
	MaxAttempts  int
	BatchTimeout time.Duration
	RequiredAcks kafka.RequiredAcks
	Compression  compress.Compression
}

type Consumer struct {
	GroupID           string
	StartOffset       int64 // kafka.FirstOffset or kafka.LastOffset
	MinBytes          int
	MaxBytes          int
	MaxWait           time.Duration
	CommitInterval    time.Duration
	HeartbeatInterval time.Duration
	SessionTimeout    time.Duration
	RebalanceTimeout  time.Duration
	MaxRetries        int
}

type Config struct {
	Brokers          []string
	Topics           Topics
	Producer         Producer
	Consumer         Consumer
	EnableMiddleware bool
}

// Load reads the Kafka settings from the environment. Unlike the service
// config, a malformed value is an error rather than a silent default.
func Load() (*Config, error) {
	env := &envReader{}

	cfg := &Config{
		Brokers: splitBrokers(env.str(EnvKafkaBrokers, DefaultKafkaBrokers)),
		Topics: Topics{
			Events: env.str(EnvKafkaEventsTopic, DefaultKafkaEventsTopic),
			DLQ:    env.str(EnvKafkaDLQTopic, DefaultKafkaDLQTopic),
		},
		Producer: Producer{
			MaxAttempts:  env.integer(EnvKafkaProducerMaxAttempts, DefaultProducerMaxAttempts),
			BatchTimeout: env.duration(EnvKafkaProducerBatchTimeout, DefaultProducerBatchTimeout),
		},
		Consumer: Consumer{
			GroupID:           env.str(EnvKafkaAlertsGroupID, DefaultKafkaAlertsGroupID),
			StartOffset:       env.offset(EnvKafkaConsumerStartOffset, DefaultConsumerStartOffset),
			MinBytes:          DefaultConsumerMinBytes,
			MaxBytes:          DefaultConsumerMaxBytes,
			MaxWait:           env.duration(EnvKafkaConsumerMaxWait, DefaultConsumerMaxWait),
			CommitInterval:    env.duration(EnvKafkaConsumerCommitInterval, DefaultConsumerCommitInterval),
			HeartbeatInterval: DefaultConsumerHeartbeat,
			SessionTimeout:    env.duration(EnvKafkaConsumerSessionTimeout, DefaultConsumerSessionTimeout),
			RebalanceTimeout:  DefaultConsumerRebalance,
			MaxRetries:        env.integer(EnvKafkaConsumerMaxRetries, DefaultConsumerMaxRetries),
		},
		EnableMiddleware: env.flag(EnvKafkaEnableMiddleware, DefaultEnableMiddleware),
	}
	env.text(EnvKafkaProducerRequireAcks, DefaultProducerRequireAcks, &cfg.Producer.RequiredAcks)
	env.text(EnvKafkaProducerCompression, DefaultProducerCompression, &cfg.Producer.Compression)

	if err := errors.Join(append(env.errs, cfg.Validate())...); err != nil {
		return nil, fmt.Errorf("kafka configuration: %w", err)
	}
	return cfg, nil
}

func splitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// Validate reports every problem at once.
func (cfg *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(len(cfg.Brokers) > 0, "at least one broker is required")
	check(cfg.Topics.Events != "", "events topic cannot be empty")
	check(cfg.Topics.DLQ != cfg.Topics.Events, "DLQ topic must differ from the events topic %q", cfg.Topics.Events)
	check(cfg.Consumer.GroupID != "", "alerts consumer group cannot be empty")

	check(cfg.Producer.MaxAttempts > 0, "producer max attempts must be positive, got %d", cfg.Producer.MaxAttempts)
	check(cfg.Producer.BatchTimeout > 0, "producer batch timeout must be positive, got %s", cfg.Producer.BatchTimeout)

	check(cfg.Consumer.StartOffset == kafka.FirstOffset || cfg.Consumer.StartOffset == kafka.LastOffset,
		"consumer start offset must be oldest or newest, got %d", cfg.Consumer.StartOffset)
	check(cfg.Consumer.MaxWait > 0, "consumer max wait must be positive, got %s", cfg.Consumer.MaxWait)
	check(cfg.Consumer.CommitInterval > 0, "consumer commit interval must be positive, got %s", cfg.Consumer.CommitInterval)
	check(cfg.Consumer.SessionTimeout > cfg.Consumer.HeartbeatInterval,
		"consumer session timeout %s must exceed the heartbeat interval %s", cfg.Consumer.SessionTimeout, cfg.Consumer.HeartbeatInterval)
	check(cfg.Consumer.MaxRetries >= 0, "consumer max retries cannot be negative, got %d", cfg.Consumer.MaxRetries)

	return errors.Join(errs...)
}

func (cfg *Config) LogConfiguration(logFunc func(msg string, keysAndValues ...any)) {
	if logFunc == nil {
		return
	}

	logFunc("Kafka configuration loaded",
		"brokers", cfg.Brokers,
		"events_topic", cfg.Topics.Events,
		"dlq_topic", cfg.Topics.DLQ,
		"alerts_group_id", cfg.Consumer.GroupID,
		"producer_required_acks", cfg.Producer.RequiredAcks.String(),
		"producer_compression", cfg.Producer.Compression.String(),
		"producer_max_attempts", cfg.Producer.MaxAttempts,
		"consumer_start_offset", cfg.Consumer.StartOffset,
		"consumer_max_retries", cfg.Consumer.MaxRetries,
		"enable_middleware", cfg.EnableMiddleware,
	)
}

// envReader records malformed values instead of falling back quietly.
type envReader struct {
	errs []error
}

func (e *envReader) lookup(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	value = strings.TrimSpace(value)
	return value, ok && value != ""
}

func (e *envReader) fail(key, value string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s=%q: %w", key, value, err))
}

func (e *envReader) str(key, def string) string {
	if value, ok := e.lookup(key); ok {
		return value
	}
	return def
}

func (e *envReader) integer(key string, def int) int {
	value, ok := e.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		e.fail(key, value, err)
		return def
	}
	return n
}

func (e *envReader) flag(key string, def bool) bool {
	value, ok := e.lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		e.fail(key, value, err)
		return def
	}
	return b
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	value, ok := e.lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		e.fail(key, value, err)
		return def
	}
	return d
}

func (e *envReader) offset(key, def string) int64 {
	value := e.str(key, def)
	switch strings.ToLower(value) {
	case "oldest", "first":
		return kafka.FirstOffset
	case "newest", "last":
		return kafka.LastOffset
	default:
		e.fail(key, value, errors.New("must be oldest or newest"))
		return kafka.LastOffset
	}
}

func (e *envReader) text(key, def string, into encoding.TextUnmarshaler) {
	value := e.str(key, def)
	if err := into.UnmarshalText([]byte(value)); err != nil {
		e.fail(key, value, err)
	}
}

package kafka_config

import "time"

const (
	DefaultKafkaBrokers       = "localhost:9092"
	DefaultKafkaEventsTopic   = "campusq.events"
	DefaultKafkaDLQTopic      = "campusq.events.dlq"
	DefaultKafkaAlertsGroupID = "campusq-alerts"

	DefaultProducerMaxAttempts  = 3
	DefaultProducerBatchTimeout = 10 * time.Millisecond
	DefaultProducerRequireAcks  = "all"
	DefaultProducerCompression  = "snappy"

	DefaultConsumerStartOffset    = "newest"
	DefaultConsumerMinBytes       = 1
	DefaultConsumerMaxBytes       = 1 << 20
	DefaultConsumerMaxWait        = 500 * time.Millisecond
	DefaultConsumerCommitInterval = time.Second
	DefaultConsumerHeartbeat      = 3 * time.Second
	DefaultConsumerSessionTimeout = 10 * time.Second
	DefaultConsumerRebalance      = 30 * time.Second
	DefaultConsumerMaxRetries     = 3

	DefaultEnableMiddleware = true
)

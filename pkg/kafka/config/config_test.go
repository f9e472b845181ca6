package kafka_config

import (
	"strings"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Topics.Events != DefaultKafkaEventsTopic || cfg.Topics.DLQ != DefaultKafkaDLQTopic {
		t.Errorf("topics = %+v", cfg.Topics)
	}
	if cfg.Consumer.GroupID != DefaultKafkaAlertsGroupID {
		t.Errorf("group = %q, want %q", cfg.Consumer.GroupID, DefaultKafkaAlertsGroupID)
	}
	if cfg.Producer.RequiredAcks != kafka.RequireAll || cfg.Producer.Compression != compress.Snappy {
		t.Errorf("producer = %+v", cfg.Producer)
	}
	if cfg.Consumer.StartOffset != kafka.LastOffset {
		t.Errorf("start offset = %d, want newest", cfg.Consumer.StartOffset)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv(EnvKafkaBrokers, " broker-1:9092, ,broker-2:9092 ")
	t.Setenv(EnvKafkaEventsTopic, "campus.events")
	t.Setenv(EnvKafkaDLQTopic, "")
	t.Setenv(EnvKafkaAlertsGroupID, "alerts-eu")
	t.Setenv(EnvKafkaProducerRequireAcks, "one")
	t.Setenv(EnvKafkaProducerCompression, "zstd")
	t.Setenv(EnvKafkaConsumerStartOffset, "oldest")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Brokers) != 2 || cfg.Brokers[1] != "broker-2:9092" {
		t.Errorf("brokers = %v", cfg.Brokers)
	}
	if cfg.Topics.Events != "campus.events" || cfg.Topics.DLQ != DefaultKafkaDLQTopic {
		t.Errorf("topics = %+v", cfg.Topics)
	}
	if cfg.Consumer.GroupID != "alerts-eu" || cfg.Consumer.StartOffset != kafka.FirstOffset {
		t.Errorf("consumer = %+v", cfg.Consumer)
	}
	if cfg.Producer.RequiredAcks != kafka.RequireOne || cfg.Producer.Compression != compress.Zstd {
		t.Errorf("producer = %+v", cfg.Producer)
	}
}

func TestLoad_RejectsMalformedValues(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{name: "acks", key: EnvKafkaProducerRequireAcks, value: "most", wantErr: EnvKafkaProducerRequireAcks},
		{name: "compression", key: EnvKafkaProducerCompression, value: "brotli", wantErr: EnvKafkaProducerCompression},
		{name: "offset", key: EnvKafkaConsumerStartOffset, value: "middle", wantErr: EnvKafkaConsumerStartOffset},
		{name: "duration", key: EnvKafkaConsumerMaxWait, value: "soon", wantErr: EnvKafkaConsumerMaxWait},
		{name: "retries", key: EnvKafkaConsumerMaxRetries, value: "-1", wantErr: "max retries"},
		{name: "dlq equals events", key: EnvKafkaDLQTopic, value: DefaultKafkaEventsTopic, wantErr: "DLQ topic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected errors for an empty config")
	}
	for _, want := range []string{"broker", "events topic", "consumer group", "max attempts"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	kafka_config "campusq/pkg/kafka/config"
	"campusq/pkg/logger"

	"github.com/segmentio/kafka-go"
)

type Consumer struct {
	reader     *kafka.Reader
	dlqWriter  *kafka.Writer
	topic      string
	groupID    string
	dlqTopic   string
	maxRetries int
	handler    MessageHandler
	middleware []ConsumerMiddleware
	log        *logger.Logger
	closed     bool
	mu         sync.RWMutex
	wg         sync.WaitGroup
}

type ConsumerMiddleware func(ctx context.Context, msg Message, next MessageHandler) error

// NewConsumer reads the configured events topic in the configured group.
// Messages that exhaust their retries go to the DLQ topic when one is set.
func NewConsumer(cfg *kafka_config.Config, log *logger.Logger, handler MessageHandler) (*Consumer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if log == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}

	topic, groupID, dlqTopic := cfg.Topics.Events, cfg.Consumer.GroupID, cfg.Topics.DLQ
	if topic == "" {
		return nil, fmt.Errorf("events topic cannot be empty")
	}

	if groupID == "" {
		return nil, fmt.Errorf("group ID cannot be empty")
	}

	if handler == nil {
		return nil, fmt.Errorf("message handler cannot be nil")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           cfg.Brokers,
		Topic:             topic,
		GroupID:           groupID,
		MinBytes:          cfg.Consumer.MinBytes,
		MaxBytes:          cfg.Consumer.MaxBytes,
		MaxWait:           cfg.Consumer.MaxWait,
		CommitInterval:    cfg.Consumer.CommitInterval,
		HeartbeatInterval: cfg.Consumer.HeartbeatInterval,
		SessionTimeout:    cfg.Consumer.SessionTimeout,
		RebalanceTimeout:  cfg.Consumer.RebalanceTimeout,
		StartOffset:       cfg.Consumer.StartOffset,
		Logger:            kafka.LoggerFunc(func(msg string, args ...any) {}), // Silence default logger
		ErrorLogger:       kafka.LoggerFunc(log.Printf),
	})

	consumer := &Consumer{
		reader:     reader,
		topic:      topic,
		groupID:    groupID,
		dlqTopic:   dlqTopic,
		maxRetries: cfg.Consumer.MaxRetries,
		handler:    handler,
		middleware: make([]ConsumerMiddleware, 0),
		log:        log,
	}

	if dlqTopic != "" {
		dlqWriter := &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        dlqTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Compression:  kafka.Snappy,
			MaxAttempts:  3,
			Logger:       kafka.LoggerFunc(func(msg string, args ...any) {}),
			ErrorLogger:  kafka.LoggerFunc(log.Printf),
		}
		consumer.dlqWriter = dlqWriter
	}

	return consumer, nil
}

func (c *Consumer) Use(middleware ConsumerMiddleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middleware = append(c.middleware, middleware)
}

// Start begins consuming messages
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrConsumerClosed
	}
	c.mu.RUnlock()

	c.wg.Add(1)
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			// Fetch message
			kafkaMsg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				c.log.Error("Kafka consumer failed to fetch message", "topic", c.topic, "error", err)
				time.Sleep(1 * time.Second)
				continue
			}

			// Convert to internal message type
			msg := c.convertMessage(kafkaMsg)

			// Process message with retry logic
			if err := c.processMessage(ctx, msg); err != nil {
				c.log.Error("Kafka consumer failed to process message",
					"topic", c.topic,
					"offset", msg.Offset,
					"event_id", msg.GetEventID(),
					"error", err,
				)
			}

			// Commit offset after successful processing
			if err := c.reader.CommitMessages(ctx, kafkaMsg); err != nil {
				c.log.Error("Kafka consumer failed to commit offset", "topic", c.topic, "offset", kafkaMsg.Offset, "error", err)
			}
		}
	}
}

// processMessage runs the handler chain, retrying transient failures in
// place and routing the rest to the DLQ
func (c *Consumer) processMessage(ctx context.Context, msg Message) error {
	retries := msg.GetRetryCount()

	c.mu.RLock()
	handler := c.handler
	for i := len(c.middleware) - 1; i >= 0; i-- {
		middleware := c.middleware[i]
		next := handler
		handler = func(ctx context.Context, m Message) error {
			return middleware(ctx, m, next)
		}
	}
	c.mu.RUnlock()

	err := handler(ctx, msg)
	if err == nil {
		return nil
	}

	// Check if we should retry
	if ShouldRetry(err, retries, c.maxRetries) {
		msg.IncrementRetryCount()
		c.log.Warn("Retrying Kafka message", "attempt", retries+1, "max_retries", c.maxRetries, "error", err)
		return c.processMessage(ctx, msg)
	}

	// Max retries exceeded or permanent error, send to DLQ
	if c.dlqWriter != nil {
		if dlqErr := c.sendToDLQ(ctx, msg, err); dlqErr != nil {
			c.log.Error("Failed to send message to DLQ", "dlq_error", dlqErr, "error", err)
		} else {
			c.log.Warn("Message sent to DLQ", "retries", retries, "error", err)
		}
	}

	return err
}

// sendToDLQ sends a failed message to the dead letter queue
func (c *Consumer) sendToDLQ(ctx context.Context, msg Message, originalErr error) error {
	if c.dlqWriter == nil {
		return nil
	}

	msg.Headers[HeaderOriginalTopic] = c.topic
	msg.Headers[HeaderDLQError] = originalErr.Error()
	msg.Headers[HeaderDLQTimestamp] = time.Now().UTC().Format(time.RFC3339)
	msg.Headers[HeaderDLQConsumerGroup] = c.groupID

	return c.dlqWriter.WriteMessages(ctx, toKafkaMessage(msg, time.Now()))
}

// convertMessage converts a kafka-go message to internal Message type
func (c *Consumer) convertMessage(kafkaMsg kafka.Message) Message {
	msg := Message{
		Key:       string(kafkaMsg.Key),
		Value:     kafkaMsg.Value,
		Headers:   make(map[string]string),
		Topic:     kafkaMsg.Topic,
		Partition: kafkaMsg.Partition,
		Offset:    kafkaMsg.Offset,
		Timestamp: kafkaMsg.Time,
	}

	// Convert headers
	for _, header := range kafkaMsg.Headers {
		msg.Headers[header.Key] = string(header.Value)
	}

	return msg
}

// Close closes the consumer and releases resources. Cancel the context
// passed to Start first; Close waits for the in-flight message.
func (c *Consumer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.wg.Wait()

	var err error
	if c.reader != nil {
		err = c.reader.Close()
	}

	if c.dlqWriter != nil {
		dlqErr := c.dlqWriter.Close()
		if err == nil {
			err = dlqErr
		}
	}

	return err
}

// Stats returns consumer statistics
func (c *Consumer) Stats() kafka.ReaderStats {
	return c.reader.Stats()
}

// Lag returns the current consumer lag
func (c *Consumer) Lag() (int64, error) {
	stats := c.reader.Stats()
	return stats.Lag, nil
}

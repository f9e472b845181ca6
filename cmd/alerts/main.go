package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"campusq/internal/alerts"
	"campusq/pkg/config"
	"campusq/pkg/kafka"
	kafka_config "campusq/pkg/kafka/config"
	kafkamiddleware "campusq/pkg/kafka/middleware"
)

const ServiceName = "campusq-alerts"

func main() {
	cfg := config.Load(ServiceName)
	cfg.Log.Info("Starting holder alert consumer")

	kcfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kcfg.LogConfiguration(cfg.Log.Info)

	handler := alerts.NewHandler(alerts.NewLogSender(cfg.Log), cfg.Log)
	consumer, err := kafka.NewConsumer(kcfg, cfg.Log, handler.Handle)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka consumer", "error", err)
	}
	if kcfg.EnableMiddleware {
		consumer.Use(kafkamiddleware.LoggingConsumerMiddleware(cfg.Log))
		consumer.Use(kafkamiddleware.MetricsConsumerMiddleware())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		cfg.Log.Error("Kafka consumer stopped", "error", err)
	}

	snapshot := kafkamiddleware.GetMetrics().Snapshot()
	cfg.Log.Info("Holder alert consumer stopping", "consumed", snapshot.MessagesConsumed, "errors", snapshot.MessagesConsumedFailed)
	if err := consumer.Close(); err != nil {
		cfg.Log.Error("Failed to close Kafka consumer", "error", err)
	}
}

package main

import (
	"context"

	"campusq/internal/engine"
	"campusq/pkg/app"
	"campusq/pkg/clock"
	"campusq/pkg/config"
	"campusq/pkg/telemetry"
)

const ServiceName = "campusq-engine"

func main() {
	cfg := config.Load(ServiceName)
	cfg.Log.Info("Starting queue and reservation engine")

	shutdownTracing := telemetry.Setup(cfg.Log, cfg.ServiceName, cfg.OTLPEndpoint, cfg.OTLPInsecure)

	if cfg.UsesMongo() {
		cfg.SetMongo()
	}
	defer cfg.GracefulShutdown()

	publisher, healthOpts, err := engine.NewPublisher(cfg)
	if err != nil {
		cfg.Log.Fatal("Failed to set up event publishing", "error", err)
	}

	eng, err := engine.New(cfg, clock.Real(), publisher, healthOpts...)
	if err != nil {
		cfg.Log.Fatal("Failed to initialize engine", "error", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		cfg.Log.Fatal("Failed to start engine", "error", err)
	}

	application := app.NewApplication(cfg)
	application.SetApp(eng.Health, eng.Handlers, eng.Streams)
	application.OnShutdown(eng.Stop)
	application.OnShutdown(shutdownTracing)
	application.Run()
}

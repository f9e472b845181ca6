// Package engine assembles the queue and reservation services, their
// stores, timers and HTTP handlers from one configuration.
package engine

import (
	"context"
	"fmt"
	"sync"

	adminhandler "campusq/internal/admin/handler"
	adminservice "campusq/internal/admin/service"
	"campusq/internal/events"
	"campusq/internal/expiry"
	"campusq/internal/health"
	"campusq/internal/reservations/catalog"
	reservationshandler "campusq/internal/reservations/handler"
	reservationsrepository "campusq/internal/reservations/repository"
	reservationsservice "campusq/internal/reservations/service"
	reservationsvalidator "campusq/internal/reservations/validator"
	ticketshandler "campusq/internal/tickets/handler"
	ticketsrepository "campusq/internal/tickets/repository"
	ticketsservice "campusq/internal/tickets/service"
	ticketsvalidator "campusq/internal/tickets/validator"
	"campusq/pkg/clock"
	"campusq/pkg/config"
	"campusq/pkg/contracts"
	"campusq/pkg/kafka"
	kafka_config "campusq/pkg/kafka/config"
	kafkamiddleware "campusq/pkg/kafka/middleware"
	"campusq/pkg/logger"
)

type Engine struct {
	Tickets      ticketsservice.TicketService
	Reservations reservationsservice.ReservationService
	Admin        adminservice.AdminService
	Scheduler    *expiry.Scheduler

	Health   contracts.Handler
	Handlers []contracts.Handler
	Streams  []contracts.StreamingHandler

	cfg       *config.Config
	publisher events.Publisher
	log       *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPublisher returns the Kafka publisher when Kafka is enabled, otherwise
// a publisher that only logs. The returned options put the producer on the
// readiness report.
func NewPublisher(cfg *config.Config) (events.Publisher, []health.Option, error) {
	if !cfg.KafkaEnabled {
		return events.NewLogPublisher(cfg.Log), nil, nil
	}

	kcfg, err := kafka_config.Load()
	if err != nil {
		return nil, nil, err
	}
	kcfg.LogConfiguration(cfg.Log.Info)

	producer, err := kafka.NewProducer(kcfg, cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	var metrics *kafkamiddleware.Metrics
	if kcfg.EnableMiddleware {
		producer.Use(kafkamiddleware.LoggingProducerMiddleware(cfg.Log))
		producer.Use(kafkamiddleware.MetricsProducerMiddleware())
		metrics = kafkamiddleware.GetMetrics()
	}
	return events.NewKafkaPublisher(producer), []health.Option{health.WithKafka(producer, metrics)}, nil
}

// New builds the engine on the store selected by cfg.StoreBackend. The
// Mongo client must already be connected when the mongo backend is used.
func New(cfg *config.Config, clk clock.Clock, publisher events.Publisher, healthOpts ...health.Option) (*Engine, error) {
	log := cfg.Log

	services := catalog.Default()
	if cfg.ServiceCatalogPath != "" {
		loaded, err := catalog.Load(cfg.ServiceCatalogPath)
		if err != nil {
			return nil, err
		}
		services = loaded
	}
	log.Info("Service catalog loaded", "services", services.Names())

	var (
		ticketRepo      ticketsrepository.TicketRepository
		reservationRepo reservationsrepository.ReservationRepository
	)
	if cfg.UsesMongo() {
		if cfg.Client == nil || cfg.Client.Mongo == nil {
			return nil, fmt.Errorf("mongo store selected but no mongo client is connected")
		}
		ticketRepo = ticketsrepository.NewMongoTicketRepository(cfg)
		reservationRepo = reservationsrepository.NewMongoReservationRepository(cfg)
		healthOpts = append(healthOpts, health.WithDatabase(cfg.Client.Mongo))
	} else {
		ticketRepo = ticketsrepository.NewMemoryTicketRepository()
		reservationRepo = reservationsrepository.NewMemoryReservationRepository()
	}

	scheduler := expiry.NewScheduler(clk, log)
	emitter := events.NewEmitter(publisher, log, clk.Now)
	ticketValidator := ticketsvalidator.NewTicketValidator(log)

	tickets := ticketsservice.NewTicketService(
		ticketRepo,
		ticketValidator,
		scheduler,
		emitter,
		clk,
		ticketsservice.Options{NoShowWindow: cfg.NoShowWindow},
		log,
	)
	reservations := reservationsservice.NewReservationService(
		reservationRepo,
		services,
		reservationsvalidator.NewReservationValidator(log),
		scheduler,
		emitter,
		clk,
		reservationsservice.PolicyFromConfig(cfg),
		log,
	)
	admin := adminservice.NewAdminService(tickets, reservations, ticketValidator, log)

	reservationHandler := reservationshandler.NewReservationHandler(reservations, log)
	healthOpts = append(healthOpts, health.WithTimers(scheduler))

	log.Info("Engine initialized", "store", cfg.StoreBackend)
	return &Engine{
		Tickets:      tickets,
		Reservations: reservations,
		Admin:        admin,
		Scheduler:    scheduler,
		Health:       health.NewHealthHandler(cfg.StoreBackend, log, healthOpts...),
		Handlers: []contracts.Handler{
			ticketshandler.NewTicketHandler(tickets, log),
			reservationHandler,
			adminhandler.NewAdminHandler(admin, log),
		},
		Streams:   []contracts.StreamingHandler{reservationHandler},
		cfg:       cfg,
		publisher: publisher,
		log:       log,
	}, nil
}

// Start re-arms timers for records persisted before a restart and starts
// the periodic sweepers.
func (e *Engine) Start(ctx context.Context) error {
	noShows, err := e.Tickets.Recover(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover no-show windows: %w", err)
	}
	admissions, err := e.Reservations.Recover(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover admission timers: %w", err)
	}
	e.log.Info("Timers recovered", "no_show_windows", noShows, "admission_windows", admissions)

	ctx, e.cancel = context.WithCancel(ctx)
	for _, sweep := range []func(context.Context) (int, error){e.Tickets.Sweep, e.Reservations.Sweep} {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.Scheduler.RunSweeper(ctx, e.cfg.SweepInterval, sweep)
		}()
	}
	return nil
}

// Stop halts sweepers and timers, then closes the publisher.
func (e *Engine) Stop(_ context.Context) error {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.Scheduler.Stop()

	if err := e.publisher.Close(); err != nil {
		return fmt.Errorf("failed to close event publisher: %w", err)
	}
	e.log.Info("Engine stopped")
	return nil
}

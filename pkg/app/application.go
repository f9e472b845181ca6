package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"campusq/pkg/config"
	"campusq/pkg/contracts"
	"campusq/pkg/middleware"

	"github.com/julienschmidt/httprouter"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const StreamPrefix = "/api/v1/stream/"

type Application struct {
	cfg              *config.Config
	server           *http.Server
	idempotencyStore *middleware.InMemoryIdempotencyStore
	rateLimiter      *middleware.HolderRateLimiter
	healthHandler    http.Handler
	appHandler       http.Handler
	streamHandler    http.Handler
	shutdownHooks    []func(context.Context) error
}

func NewApplication(cfg *config.Config) *Application {
	return &Application{cfg: cfg}
}

// SetApp builds the three middleware stacks and the server. Health routes
// get the minimal stack, streams skip the request timeout, everything else
// gets the full stack.
func (a *Application) SetApp(health contracts.Handler, handlers []contracts.Handler, streams []contracts.StreamingHandler) {
	a.rateLimiter = middleware.NewHolderRateLimiter(
		a.cfg.RateLimitRequests,
		a.cfg.RateLimitWindow,
		middleware.HolderExtractor,
		a.cfg.Log,
	)
	a.setHealthHandler(health)
	a.setAppHandler(handlers)
	a.setStreamHandler(streams)
	a.setAppServer()
}

// OnShutdown registers a hook run after the HTTP server stops.
func (a *Application) OnShutdown(hook func(context.Context) error) {
	a.shutdownHooks = append(a.shutdownHooks, hook)
}

func (a *Application) setHealthHandler(health contracts.Handler) {
	healthRouter := httprouter.New()
	health.RegisterRoutes(healthRouter)

	var h http.Handler = healthRouter
	h = middleware.RequestLogging(a.cfg.Log)(h)
	h = middleware.Recovery(a.cfg.Log)(h)
	a.healthHandler = h
	a.cfg.Log.Info("Health endpoints configured with minimal middleware (Recovery + Logging only)")
}

func (a *Application) setAppHandler(handlers []contracts.Handler) {
	appRouter := httprouter.New()
	for _, handler := range handlers {
		handler.RegisterRoutes(appRouter)
	}

	a.idempotencyStore = middleware.NewInMemoryIdempotencyStore(a.cfg.IdempotencyTTL)

	var h http.Handler = appRouter
	h = middleware.Idempotency(a.idempotencyStore)(h)
	h = middleware.RequestTimeout(a.cfg.RequestTimeout)(h)
	h = middleware.HolderRateLimit(a.rateLimiter)(h)
	h = middleware.ContentTypeValidation(a.cfg.Log)(h)
	h = middleware.MaxRequestSize(int64(a.cfg.MaxRequestSize))(h)
	h = middleware.RequestLogging(a.cfg.Log)(h)
	h = middleware.Recovery(a.cfg.Log)(h)
	a.appHandler = h
	a.cfg.Log.Info("Application endpoints configured with full middleware stack")
}

func (a *Application) setStreamHandler(streams []contracts.StreamingHandler) {
	streamRouter := httprouter.New()
	for _, stream := range streams {
		stream.RegisterStreamRoutes(streamRouter)
	}

	var h http.Handler = streamRouter
	h = middleware.HolderRateLimit(a.rateLimiter)(h)
	h = middleware.RequestLogging(a.cfg.Log)(h)
	h = middleware.Recovery(a.cfg.Log)(h)
	a.streamHandler = h
}

// Handler is the fully assembled root handler.
func (a *Application) Handler() http.Handler {
	return a.server.Handler
}

func (a *Application) setAppServer() {
	mux := http.NewServeMux()
	mux.Handle("/health", a.healthHandler)
	mux.Handle("/ready", a.healthHandler)
	mux.Handle(StreamPrefix, a.streamHandler)
	mux.Handle("/", a.appHandler)

	handler := otelhttp.NewHandler(mux, a.cfg.ServiceName,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)

	a.server = &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      handler,
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
		IdleTimeout:  a.cfg.IdleTimeout,
	}

	a.cfg.Log.Info("HTTP server configured", "port", a.cfg.Port)
}

func (a *Application) Run() {
	serverErrors := make(chan error, 1)

	go func() {
		a.cfg.Log.Info("Starting HTTP server", "address", a.server.Addr)
		serverErrors <- a.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		a.cfg.Log.Fatal("HTTP server failed", "error", err)

	case sig := <-shutdown:
		a.cfg.Log.Info("Shutdown signal received", "signal", sig)
		a.gracefulShutdown()
	}
}

func (a *Application) gracefulShutdown() {
	a.cfg.Log.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.cfg.Log.Error("Server shutdown failed", "error", err)
		if err := a.server.Close(); err != nil {
			a.cfg.Log.Error("Could not stop server gracefully", "error", err)
		}
	}

	a.cfg.Log.Info("Stopping background workers...")
	a.idempotencyStore.Stop()
	a.rateLimiter.Stop()
	for _, hook := range a.shutdownHooks {
		if err := hook(ctx); err != nil {
			a.cfg.Log.Error("Shutdown hook failed", "error", err)
		}
	}

	a.cfg.Log.Info("Server stopped gracefully")
}

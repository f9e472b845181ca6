package health

import (
	"context"
	"net/http"
	"time"

	httputil "campusq/pkg/http"
	kafkamiddleware "campusq/pkg/kafka/middleware"
	"campusq/pkg/logger"

	"github.com/julienschmidt/httprouter"
	"github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Pinger is satisfied by *mongo.Client.
type Pinger interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
}

// WriterStats is satisfied by the pkg/kafka producer.
type WriterStats interface {
	Stats() kafka.WriterStats
}

// TimerCounter is satisfied by *expiry.Scheduler.
type TimerCounter interface {
	Pending() int
}

type KafkaStatus struct {
	Topic    string                    `json:"topic"`
	Messages int64                     `json:"messages"`
	Errors   int64                     `json:"errors"`
	Pipeline *kafkamiddleware.Snapshot `json:"pipeline,omitempty"`
}

type HealthResponse struct {
	Status        string       `json:"status"`
	Store         string       `json:"store,omitempty"`
	Database      string       `json:"database,omitempty"`
	PendingTimers *int         `json:"pending_timers,omitempty"`
	Kafka         *KafkaStatus `json:"kafka,omitempty"`
}

type HealthHandler struct {
	store   string
	db      Pinger
	kafka   WriterStats
	timers  TimerCounter
	metrics *kafkamiddleware.Metrics
	timeout time.Duration
	log     *logger.Logger
}

type Option func(*HealthHandler)

// WithDatabase makes readiness depend on a database ping.
func WithDatabase(db Pinger) Option {
	return func(h *HealthHandler) { h.db = db }
}

// WithKafka reports producer stats on readiness. metrics may be nil when
// the producer runs without middleware.
func WithKafka(stats WriterStats, metrics *kafkamiddleware.Metrics) Option {
	return func(h *HealthHandler) {
		h.kafka = stats
		h.metrics = metrics
	}
}

func WithTimers(timers TimerCounter) Option {
	return func(h *HealthHandler) { h.timers = timers }
}

func NewHealthHandler(store string, log *logger.Logger, opts ...Option) *HealthHandler {
	h := &HealthHandler{
		store:   store,
		timeout: 2 * time.Second,
		log:     log,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := httputil.WriteJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
	}); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Health", "operation", "WriteJSON", "error", err)
	}
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	resp := HealthResponse{Status: "ready", Store: h.store}
	status := http.StatusOK

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		err := h.db.Ping(ctx, readpref.Primary())
		cancel()
		if err != nil {
			h.log.Error("Database health check failed",
				"error", err,
				"path", r.URL.Path,
			)
			resp.Status = "unavailable"
			resp.Database = "error"
			status = http.StatusServiceUnavailable
		} else {
			resp.Database = "ok"
		}
	}

	if h.timers != nil {
		pending := h.timers.Pending()
		resp.PendingTimers = &pending
	}

	// Kafka is reported but never fails readiness; publish failures are logged.
	if h.kafka != nil {
		stats := h.kafka.Stats()
		resp.Kafka = &KafkaStatus{
			Topic:    stats.Topic,
			Messages: stats.Messages,
			Errors:   stats.Errors,
		}
		if h.metrics != nil {
			snapshot := h.metrics.Snapshot()
			resp.Kafka.Pipeline = &snapshot
		}
	}

	if err := httputil.WriteJSON(w, status, resp); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Ready", "operation", "WriteJSON", "error", err)
	}
}

func (h *HealthHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}

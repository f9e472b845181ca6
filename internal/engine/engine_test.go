package engine_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"campusq/internal/engine"
	"campusq/internal/events"
	"campusq/pkg/app"
	"campusq/pkg/client"
	"campusq/pkg/clock"
	"campusq/pkg/config"
	apperrors "campusq/pkg/errors"
	"campusq/pkg/logger"
	"campusq/pkg/model"
)

func testConfig() *config.Config {
	return &config.Config{
		ServiceName:       "campusq-test",
		StoreBackend:      config.StoreMemory,
		Port:              config.DefaultPort,
		RateLimitRequests: 1000,
		RateLimitWindow:   time.Minute,
		RequestTimeout:    5 * time.Second,
		IdempotencyTTL:    time.Hour,
		MaxRequestSize:    config.DefaultMaxRequestSize,
		ReadTimeout:       config.DefaultReadTimeout,
		WriteTimeout:      config.DefaultWriteTimeout,
		IdleTimeout:       config.DefaultIdleTimeout,
		ShutdownTimeout:   config.DefaultShutdownTimeout,

		UsageDuration:         config.DefaultUsageDuration,
		ExtensionDuration:     config.DefaultExtensionDuration,
		GraceWindow:           config.DefaultGraceWindow,
		AdmissionWindow:       config.DefaultAdmissionWindow,
		NoShowWindow:          config.DefaultNoShowWindow,
		AdmissionExpiryStatus: config.ExpiryStatusCancelled,
		SweepInterval:         24 * time.Hour,

		Log:    logger.Discard(),
		Client: client.NewClient(),
	}
}

type harness struct {
	engine   *engine.Engine
	recorder *events.Recorder
	clock    *clock.FakeClock
	admin    *client.EngineClient
	baseURL  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testConfig()
	clk := clock.Fake(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	recorder := events.NewRecorder()

	eng, err := engine.New(cfg, clk, recorder)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		if err := eng.Stop(context.Background()); err != nil {
			t.Errorf("Stop: %v", err)
		}
	})

	application := app.NewApplication(cfg)
	application.SetApp(eng.Health, eng.Handlers, eng.Streams)
	server := httptest.NewServer(application.Handler())
	t.Cleanup(server.Close)

	return &harness{
		engine:   eng,
		recorder: recorder,
		clock:    clk,
		admin:    client.NewEngineClient(server.URL, client.Identity{HolderID: "staff", Admin: true}),
		baseURL:  server.URL,
	}
}

func (h *harness) holder(id string) *client.EngineClient {
	return h.admin.As(client.Identity{HolderID: id, Name: "Holder " + id})
}

func expectStatus(t *testing.T, resp *client.Response, err error, want int) {
	t.Helper()
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != want {
		t.Fatalf("status = %d, want %d, body %s", resp.StatusCode, want, resp.Body)
	}
}

func TestEngine_QueueFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp, err := h.admin.CreateActivity(ctx, "Career Fair")
	expectStatus(t, resp, err, http.StatusCreated)
	var activity model.Activity
	if err := resp.DecodeData(&activity); err != nil {
		t.Fatalf("decode activity: %v", err)
	}

	var tickets []model.Ticket
	for _, id := range []string{"A", "B"} {
		resp, err := h.holder(id).Join(ctx, activity.ID)
		expectStatus(t, resp, err, http.StatusCreated)
		var ticket model.Ticket
		if err := resp.DecodeData(&ticket); err != nil {
			t.Fatalf("decode ticket: %v", err)
		}
		tickets = append(tickets, ticket)
	}

	resp, err = h.holder("A").Join(ctx, activity.ID)
	expectStatus(t, resp, err, http.StatusConflict)
	if code := client.GetErrorCode(resp); code != apperrors.CodeAlreadyQueued {
		t.Errorf("rejoin code = %s, want %s", code, apperrors.CodeAlreadyQueued)
	}

	resp, err = h.holder("B").Position(ctx, tickets[1].ID)
	expectStatus(t, resp, err, http.StatusOK)
	var position struct {
		Ahead int `json:"ahead"`
	}
	if err := resp.DecodeData(&position); err != nil {
		t.Fatalf("decode position: %v", err)
	}
	if position.Ahead != 1 {
		t.Errorf("ahead = %d, want 1", position.Ahead)
	}

	resp, err = h.holder("A").CallNext(ctx, activity.ID)
	expectStatus(t, resp, err, http.StatusForbidden)

	resp, err = h.admin.CallNext(ctx, activity.ID)
	expectStatus(t, resp, err, http.StatusOK)
	resp, err = h.admin.Resolve(ctx, tickets[0].ID, "arrived")
	expectStatus(t, resp, err, http.StatusOK)

	resp, err = h.admin.CallNext(ctx, activity.ID)
	expectStatus(t, resp, err, http.StatusOK)
	resp, err = h.admin.Resolve(ctx, tickets[1].ID, "absent")
	expectStatus(t, resp, err, http.StatusOK)

	h.clock.Advance(config.DefaultNoShowWindow)
	ticket, err := h.engine.Tickets.GetTicket(ctx, tickets[1].ID)
	if err != nil {
		t.Fatalf("GetTicket: %v", err)
	}
	if ticket.Status != model.TicketTimedOut {
		t.Errorf("B status = %s, want %s", ticket.Status, model.TicketTimedOut)
	}
	if got := len(h.recorder.OfType(events.TicketCalled)); got != 2 {
		t.Errorf("called events = %d, want 2", got)
	}
}

func TestEngine_ReservationFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp, err := h.holder("H").Reserve(ctx, "study-room", "room-2", "10:00-12:00")
	expectStatus(t, resp, err, http.StatusCreated)
	var res model.Reservation
	if err := resp.DecodeData(&res); err != nil {
		t.Fatalf("decode reservation: %v", err)
	}

	resp, err = h.holder("K").Reserve(ctx, "study-room", "room-2", "10:00-12:00")
	expectStatus(t, resp, err, http.StatusConflict)
	if code := client.GetErrorCode(resp); code != apperrors.CodeSlotTaken {
		t.Errorf("code = %s, want %s", code, apperrors.CodeSlotTaken)
	}

	resp, err = h.holder("K").Availability(ctx, "study-room", "10:00-12:00")
	expectStatus(t, resp, err, http.StatusOK)
	var availability struct {
		OccupiedSlots []string `json:"occupied_slots"`
	}
	if err := resp.DecodeData(&availability); err != nil {
		t.Fatalf("decode availability: %v", err)
	}
	if len(availability.OccupiedSlots) != 1 || availability.OccupiedSlots[0] != "room-2" {
		t.Errorf("occupied = %v, want [room-2]", availability.OccupiedSlots)
	}

	resp, err = h.admin.Reservation(ctx, res.ID, "check-in")
	expectStatus(t, resp, err, http.StatusOK)

	resp, err = h.holder("H").Extend(ctx, res.ID)
	expectStatus(t, resp, err, http.StatusOK)
	var extended model.Reservation
	if err := resp.DecodeData(&extended); err != nil {
		t.Fatalf("decode extended: %v", err)
	}
	if extended.ExtensionCount != 1 {
		t.Errorf("extension count = %d, want 1", extended.ExtensionCount)
	}

	resp, err = h.holder("K").Extend(ctx, res.ID)
	if err != nil || resp.StatusCode < 400 {
		t.Errorf("extend by another holder succeeded: %v", err)
	}

	resp, err = h.admin.Reservation(ctx, res.ID, "finish")
	expectStatus(t, resp, err, http.StatusOK)

	resp, err = h.holder("K").Reserve(ctx, "study-room", "room-2", "10:00-12:00")
	expectStatus(t, resp, err, http.StatusCreated)

	resp, err = h.admin.ListReservations(ctx, "study-room", 10, 0)
	expectStatus(t, resp, err, http.StatusOK)
}

func TestEngine_QueueEntryAdmissionExpires(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp, err := h.holder("H").Reserve(ctx, "printer", "printer-1", "")
	expectStatus(t, resp, err, http.StatusCreated)

	h.clock.Advance(10 * time.Minute)

	resp, err = h.holder("H").MyReservation(ctx)
	if err != nil {
		t.Fatalf("MyReservation: %v", err)
	}
	if resp.StatusCode == http.StatusOK {
		var res *model.Reservation
		if err := resp.DecodeData(&res); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if res != nil && res.IsActive() {
			t.Errorf("reservation still active after admission window: %+v", res)
		}
	}

	alerts := h.recorder.OfType(events.ReservationAdmissionExpired)
	if len(alerts) != 1 || !alerts[0].Alert || alerts[0].HolderID != "H" {
		t.Errorf("admission alerts = %+v", alerts)
	}
}

func TestEngine_HealthAndReadiness(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := client.NewHttpClient(h.baseURL).WaitForHealthy(time.Second); err != nil {
		t.Fatalf("WaitForHealthy: %v", err)
	}

	resp, err := h.admin.Reserve(ctx, "advising-desk", "desk-1", "")
	expectStatus(t, resp, err, http.StatusCreated)

	resp, err = client.NewHttpClient(h.baseURL).Do(ctx, http.MethodGet, "/ready", nil, nil)
	expectStatus(t, resp, err, http.StatusOK)
	var ready struct {
		Store         string `json:"store"`
		PendingTimers *int   `json:"pending_timers"`
	}
	if err := resp.DecodeJSON(&ready); err != nil {
		t.Fatalf("decode ready: %v", err)
	}
	if ready.Store != config.StoreMemory {
		t.Errorf("store = %q, want %q", ready.Store, config.StoreMemory)
	}
	if ready.PendingTimers == nil || *ready.PendingTimers != 1 {
		t.Errorf("pending timers = %v, want 1", ready.PendingTimers)
	}
}

func TestEngine_MongoRequiresClient(t *testing.T) {
	cfg := testConfig()
	cfg.StoreBackend = config.StoreMongo

	if _, err := engine.New(cfg, clock.Real(), events.NewRecorder()); err == nil {
		t.Fatal("expected error without a mongo client")
	}
}

func TestEngine_UnknownCatalogPath(t *testing.T) {
	cfg := testConfig()
	cfg.ServiceCatalogPath = t.TempDir() + "/missing.yaml"

	if _, err := engine.New(cfg, clock.Real(), events.NewRecorder()); err == nil {
		t.Fatal("expected error for a missing catalog file")
	}
}

func TestEngine_TicketAndReservationCoexist(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp, err := h.admin.CreateActivity(ctx, "Open Day")
	expectStatus(t, resp, err, http.StatusCreated)
	var activity model.Activity
	if err := resp.DecodeData(&activity); err != nil {
		t.Fatalf("decode activity: %v", err)
	}

	resp, err = h.holder("H").Join(ctx, activity.ID)
	expectStatus(t, resp, err, http.StatusCreated)

	resp, err = h.holder("H").Reserve(ctx, "study-room", "room-2", "10:00-12:00")
	expectStatus(t, resp, err, http.StatusCreated)

	resp, err = h.holder("H").Reserve(ctx, "study-room", "room-3", "10:00-12:00")
	expectStatus(t, resp, err, http.StatusConflict)
	if code := client.GetErrorCode(resp); code != apperrors.CodeAlreadyBooked {
		t.Errorf("second reservation code = %s, want %s", code, apperrors.CodeAlreadyBooked)
	}
}

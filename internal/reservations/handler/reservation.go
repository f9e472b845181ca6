package handler

import (
	"context"
	"net/http"
	"time"

	"campusq/internal/reservations/service"
	"campusq/internal/reservations/validator"
	apperrors "campusq/pkg/errors"
	httputil "campusq/pkg/http"
	"campusq/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Origins are checked by the gateway that sets the identity headers.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type ReservationHandler struct {
	service service.ReservationService
	log     *logger.Logger
}

func NewReservationHandler(service service.ReservationService, log *logger.Logger) *ReservationHandler {
	return &ReservationHandler{
		service: service,
		log:     log,
	}
}

type availabilityResponse struct {
	Service       string   `json:"service"`
	TimeWindow    string   `json:"time_window,omitempty"`
	SlotID        string   `json:"slot_id,omitempty"`
	Occupied      *bool    `json:"occupied,omitempty"`
	OccupiedSlots []string `json:"occupied_slots,omitempty"`
}

func (h *ReservationHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	actor, err := httputil.ActorFromRequest(r)
	if err != nil {
		h.fail(w, "Create", err)
		return
	}

	var req validator.CreateReservationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, "Create", err)
		return
	}

	res, err := h.service.Create(r.Context(), actor, &req)
	if err != nil {
		h.fail(w, "Create", err)
		return
	}
	if err := httputil.WriteCreated(w, res); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

// Get returns a reservation to its holder or to staff.
func (h *ReservationHandler) Get(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := httputil.ActorFromRequest(r)
	if err != nil {
		h.fail(w, "Get", err)
		return
	}

	res, err := h.service.Get(r.Context(), ps.ByName("id"))
	if err != nil {
		h.fail(w, "Get", err)
		return
	}
	if res.HolderID != actor.ID && !actor.IsAdmin() {
		h.fail(w, "Get", apperrors.Forbidden("Reservation belongs to another holder"))
		return
	}
	if err := httputil.WriteSuccess(w, res); err != nil {
		h.log.Error("failed to write success response", "handler", "Get", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) Mine(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	actor, err := httputil.ActorFromRequest(r)
	if err != nil {
		h.fail(w, "Mine", err)
		return
	}

	res, err := h.service.ActiveForHolder(r.Context(), actor.ID)
	if err != nil {
		h.fail(w, "Mine", err)
		return
	}
	if err := httputil.WriteSuccess(w, res); err != nil {
		h.log.Error("failed to write success response", "handler", "Mine", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := httputil.ActorFromRequest(r)
	if err != nil {
		h.fail(w, "Cancel", err)
		return
	}

	res, err := h.service.Cancel(r.Context(), ps.ByName("id"), actor)
	if err != nil {
		h.fail(w, "Cancel", err)
		return
	}
	if err := httputil.WriteSuccess(w, res); err != nil {
		h.log.Error("failed to write success response", "handler", "Cancel", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) Extend(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := httputil.ActorFromRequest(r)
	if err != nil {
		h.fail(w, "Extend", err)
		return
	}

	res, err := h.service.Extend(r.Context(), ps.ByName("id"), actor)
	if err != nil {
		h.fail(w, "Extend", err)
		return
	}
	if err := httputil.WriteSuccess(w, res); err != nil {
		h.log.Error("failed to write success response", "handler", "Extend", "operation", "WriteSuccess", "error", err)
	}
}

// Availability answers a single slot question when slot_id is given and
// lists the occupied slots of the service otherwise.
func (h *ReservationHandler) Availability(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	query := r.URL.Query()
	resp := availabilityResponse{
		Service:    query.Get("service"),
		TimeWindow: query.Get("time_window"),
		SlotID:     query.Get("slot_id"),
	}
	if resp.Service == "" {
		h.fail(w, "Availability", apperrors.InvalidInput("service query parameter is required"))
		return
	}

	if resp.SlotID != "" {
		occupied, err := h.service.IsOccupied(r.Context(), resp.Service, resp.SlotID, resp.TimeWindow)
		if err != nil {
			h.fail(w, "Availability", err)
			return
		}
		resp.Occupied = &occupied
	} else {
		slots, err := h.service.OccupiedSlots(r.Context(), resp.Service, resp.TimeWindow)
		if err != nil {
			h.fail(w, "Availability", err)
			return
		}
		resp.OccupiedSlots = slots
	}

	if err := httputil.WriteSuccess(w, resp); err != nil {
		h.log.Error("failed to write success response", "handler", "Availability", "operation", "WriteSuccess", "error", err)
	}
}

// Stream upgrades to a websocket and pushes a snapshot of the caller's
// active reservation on connect and after every change.
func (h *ReservationHandler) Stream(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	actor, err := httputil.ActorFromRequest(r)
	if err != nil {
		h.fail(w, "Stream", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	snapshots, err := h.service.Watch(ctx, actor.ID)
	if err != nil {
		h.fail(w, "Stream", err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "holder_id", actor.ID, "error", err)
		return
	}
	defer conn.Close()

	h.log.Info("Reservation stream opened", "holder_id", actor.ID)
	go h.readPump(conn, cancel)
	h.writePump(ctx, conn, snapshots)
	h.log.Info("Reservation stream closed", "holder_id", actor.ID)
}

// readPump discards client frames and cancels the stream once the peer goes
// away or stops answering pings.
func (h *ReservationHandler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *ReservationHandler) writePump(ctx context.Context, conn *websocket.Conn, snapshots <-chan service.Snapshot) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case snapshot, ok := <-snapshots:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(snapshot); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (h *ReservationHandler) fail(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *ReservationHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/reservations", h.Create)
	router.GET("/api/v1/reservations/:id", h.Get)
	router.DELETE("/api/v1/reservations/:id", h.Cancel)
	router.POST("/api/v1/reservations/:id/extend", h.Extend)
	router.GET("/api/v1/me/reservation", h.Mine)
	router.GET("/api/v1/availability", h.Availability)
}

// RegisterStreamRoutes mounts long-lived connections. They must stay out of
// the request timeout middleware.
func (h *ReservationHandler) RegisterStreamRoutes(router *httprouter.Router) {
	router.GET("/api/v1/stream/reservations", h.Stream)
}

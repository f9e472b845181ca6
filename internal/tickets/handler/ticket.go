package handler

import (
	"net/http"

	"campusq/internal/tickets/service"
	httputil "campusq/pkg/http"
	"campusq/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

// TicketHandler serves the holder-facing queue endpoints. Staff operations
// live in the admin handler.
type TicketHandler struct {
	service service.TicketService
	log     *logger.Logger
}

func NewTicketHandler(service service.TicketService, log *logger.Logger) *TicketHandler {
	return &TicketHandler{
		service: service,
		log:     log,
	}
}

type positionResponse struct {
	TicketID string `json:"ticket_id"`
	Ahead    int    `json:"ahead"`
}

func (h *TicketHandler) ListActivities(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	activities, err := h.service.ListActivities(r.Context())
	if err != nil {
		h.fail(w, "ListActivities", err)
		return
	}
	if err := httputil.WriteSuccess(w, activities); err != nil {
		h.log.Error("failed to write success response", "handler", "ListActivities", "operation", "WriteSuccess", "error", err)
	}
}

func (h *TicketHandler) GetActivity(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	activity, err := h.service.GetActivity(r.Context(), ps.ByName("id"))
	if err != nil {
		h.fail(w, "GetActivity", err)
		return
	}
	if err := httputil.WriteSuccess(w, activity); err != nil {
		h.log.Error("failed to write success response", "handler", "GetActivity", "operation", "WriteSuccess", "error", err)
	}
}

func (h *TicketHandler) ListWaiting(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	waiting, err := h.service.ListWaiting(r.Context(), ps.ByName("id"))
	if err != nil {
		h.fail(w, "ListWaiting", err)
		return
	}
	if err := httputil.WriteSuccess(w, waiting); err != nil {
		h.log.Error("failed to write success response", "handler", "ListWaiting", "operation", "WriteSuccess", "error", err)
	}
}

func (h *TicketHandler) Join(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := httputil.ActorFromRequest(r)
	if err != nil {
		h.fail(w, "Join", err)
		return
	}

	ticket, err := h.service.Join(r.Context(), ps.ByName("id"), actor)
	if err != nil {
		h.fail(w, "Join", err)
		return
	}
	if err := httputil.WriteCreated(w, ticket); err != nil {
		h.log.Error("failed to write created response", "handler", "Join", "operation", "WriteCreated", "error", err)
	}
}

func (h *TicketHandler) GetTicket(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ticket, err := h.service.GetTicket(r.Context(), ps.ByName("id"))
	if err != nil {
		h.fail(w, "GetTicket", err)
		return
	}
	if err := httputil.WriteSuccess(w, ticket); err != nil {
		h.log.Error("failed to write success response", "handler", "GetTicket", "operation", "WriteSuccess", "error", err)
	}
}

func (h *TicketHandler) Position(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	ahead, err := h.service.Position(r.Context(), id)
	if err != nil {
		h.fail(w, "Position", err)
		return
	}
	if err := httputil.WriteSuccess(w, positionResponse{TicketID: id, Ahead: ahead}); err != nil {
		h.log.Error("failed to write success response", "handler", "Position", "operation", "WriteSuccess", "error", err)
	}
}

func (h *TicketHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := httputil.ActorFromRequest(r)
	if err != nil {
		h.fail(w, "Cancel", err)
		return
	}

	ticket, err := h.service.Cancel(r.Context(), ps.ByName("id"), actor)
	if err != nil {
		h.fail(w, "Cancel", err)
		return
	}
	if err := httputil.WriteSuccess(w, ticket); err != nil {
		h.log.Error("failed to write success response", "handler", "Cancel", "operation", "WriteSuccess", "error", err)
	}
}

func (h *TicketHandler) fail(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *TicketHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/activities", h.ListActivities)
	router.GET("/api/v1/activities/:id", h.GetActivity)
	router.GET("/api/v1/activities/:id/waiting", h.ListWaiting)
	router.POST("/api/v1/activities/:id/tickets", h.Join)
	router.GET("/api/v1/tickets/:id", h.GetTicket)
	router.GET("/api/v1/tickets/:id/position", h.Position)
	router.DELETE("/api/v1/tickets/:id", h.Cancel)
}

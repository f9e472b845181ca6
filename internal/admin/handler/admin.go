package handler

import (
	"context"
	"net/http"

	"campusq/internal/admin/service"
	ticketsvalidator "campusq/internal/tickets/validator"
	httputil "campusq/pkg/http"
	"campusq/pkg/logger"
	"campusq/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type AdminHandler struct {
	service service.AdminService
	log     *logger.Logger
}

func NewAdminHandler(service service.AdminService, log *logger.Logger) *AdminHandler {
	return &AdminHandler{
		service: service,
		log:     log,
	}
}

type callNextResponse struct {
	Called bool          `json:"called"`
	Ticket *model.Ticket `json:"ticket,omitempty"`
}

// action adapts the many "actor acts on one record" operations.
func action[T any](h *AdminHandler, name string, fn func(context.Context, model.Actor, string) (T, error)) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		actor, err := httputil.ActorFromRequest(r)
		if err != nil {
			h.fail(w, name, err)
			return
		}
		result, err := fn(r.Context(), actor, ps.ByName("id"))
		if err != nil {
			h.fail(w, name, err)
			return
		}
		if err := httputil.WriteSuccess(w, result); err != nil {
			h.log.Error("failed to write success response", "handler", name, "operation", "WriteSuccess", "error", err)
		}
	}
}

func (h *AdminHandler) CreateActivity(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	actor, err := httputil.ActorFromRequest(r)
	if err != nil {
		h.fail(w, "CreateActivity", err)
		return
	}

	var req ticketsvalidator.CreateActivityRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, "CreateActivity", err)
		return
	}

	activity, err := h.service.CreateActivity(r.Context(), actor, &req)
	if err != nil {
		h.fail(w, "CreateActivity", err)
		return
	}
	if err := httputil.WriteCreated(w, activity); err != nil {
		h.log.Error("failed to write created response", "handler", "CreateActivity", "operation", "WriteCreated", "error", err)
	}
}

func (h *AdminHandler) DeleteActivity(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := httputil.ActorFromRequest(r)
	if err != nil {
		h.fail(w, "DeleteActivity", err)
		return
	}
	if err := h.service.DeleteActivity(r.Context(), actor, ps.ByName("id")); err != nil {
		h.fail(w, "DeleteActivity", err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *AdminHandler) CallNext(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := httputil.ActorFromRequest(r)
	if err != nil {
		h.fail(w, "CallNext", err)
		return
	}

	ticket, called, err := h.service.CallNext(r.Context(), actor, ps.ByName("id"))
	if err != nil {
		h.fail(w, "CallNext", err)
		return
	}
	if err := httputil.WriteSuccess(w, callNextResponse{Called: called, Ticket: ticket}); err != nil {
		h.log.Error("failed to write success response", "handler", "CallNext", "operation", "WriteSuccess", "error", err)
	}
}

func (h *AdminHandler) ResolveCall(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := httputil.ActorFromRequest(r)
	if err != nil {
		h.fail(w, "ResolveCall", err)
		return
	}

	var req ticketsvalidator.ResolveRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, "ResolveCall", err)
		return
	}

	ticket, err := h.service.ResolveCall(r.Context(), actor, ps.ByName("id"), &req)
	if err != nil {
		h.fail(w, "ResolveCall", err)
		return
	}
	if err := httputil.WriteSuccess(w, ticket); err != nil {
		h.log.Error("failed to write success response", "handler", "ResolveCall", "operation", "WriteSuccess", "error", err)
	}
}

func (h *AdminHandler) ListReservations(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	actor, err := httputil.ActorFromRequest(r)
	if err != nil {
		h.fail(w, "ListReservations", err)
		return
	}
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.fail(w, "ListReservations", err)
		return
	}

	reservations, total, err := h.service.ListReservations(r.Context(), actor, r.URL.Query().Get("service"), limit, offset)
	if err != nil {
		h.fail(w, "ListReservations", err)
		return
	}
	if err := httputil.WritePaginated(w, reservations, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "ListReservations", "operation", "WritePaginated", "error", err)
	}
}

func (h *AdminHandler) DeleteReservation(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := httputil.ActorFromRequest(r)
	if err != nil {
		h.fail(w, "DeleteReservation", err)
		return
	}
	if err := h.service.DeleteReservation(r.Context(), actor, ps.ByName("id")); err != nil {
		h.fail(w, "DeleteReservation", err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *AdminHandler) fail(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *AdminHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/admin/activities", h.CreateActivity)
	router.DELETE("/api/v1/admin/activities/:id", h.DeleteActivity)
	router.GET("/api/v1/admin/activities/:id/tickets", action(h, "ListTickets", h.service.ListTickets))
	router.POST("/api/v1/admin/activities/:id/call-next", h.CallNext)

	router.POST("/api/v1/admin/tickets/:id/arrived", action(h, "MarkArrived", h.service.MarkArrived))
	router.POST("/api/v1/admin/tickets/:id/skip", action(h, "ForceSkip", h.service.ForceSkip))
	router.POST("/api/v1/admin/tickets/:id/resolve", h.ResolveCall)
	router.POST("/api/v1/admin/tickets/:id/absent", action(h, "MarkAbsent", h.service.MarkAbsent))
	router.DELETE("/api/v1/admin/tickets/:id/absent", action(h, "AbortAbsent", h.service.AbortAbsent))
	router.DELETE("/api/v1/admin/tickets/:id", action(h, "CancelTicket", h.service.CancelTicket))

	router.GET("/api/v1/admin/reservations", h.ListReservations)
	router.POST("/api/v1/admin/reservations/:id/check-in", action(h, "CheckIn", h.service.CheckIn))
	router.POST("/api/v1/admin/reservations/:id/finish", action(h, "Finish", h.service.Finish))
	router.POST("/api/v1/admin/reservations/:id/skip-time", action(h, "ExtendSkip", h.service.ExtendSkip))
	router.POST("/api/v1/admin/reservations/:id/cancel", action(h, "CancelReservation", h.service.CancelReservation))
	router.DELETE("/api/v1/admin/reservations/:id", h.DeleteReservation)
}

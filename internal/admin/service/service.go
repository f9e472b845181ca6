package service

import (
	"context"

	reservationsservice "campusq/internal/reservations/service"
	ticketsservice "campusq/internal/tickets/service"
	ticketsvalidator "campusq/internal/tickets/validator"
	apperrors "campusq/pkg/errors"
	"campusq/pkg/logger"
	"campusq/pkg/model"
)

// AdminService is the staff control surface over both managers. Every
// operation requires the admin role.
type AdminService interface {
	CreateActivity(ctx context.Context, actor model.Actor, req *ticketsvalidator.CreateActivityRequest) (*model.Activity, error)
	DeleteActivity(ctx context.Context, actor model.Actor, activityID string) error
	ListTickets(ctx context.Context, actor model.Actor, activityID string) ([]*model.Ticket, error)
	CallNext(ctx context.Context, actor model.Actor, activityID string) (*model.Ticket, bool, error)
	MarkArrived(ctx context.Context, actor model.Actor, ticketID string) (*model.Ticket, error)
	ForceSkip(ctx context.Context, actor model.Actor, ticketID string) (*model.Ticket, error)
	ResolveCall(ctx context.Context, actor model.Actor, ticketID string, req *ticketsvalidator.ResolveRequest) (*model.Ticket, error)
	MarkAbsent(ctx context.Context, actor model.Actor, ticketID string) (*model.Ticket, error)
	AbortAbsent(ctx context.Context, actor model.Actor, ticketID string) (*model.Ticket, error)
	CancelTicket(ctx context.Context, actor model.Actor, ticketID string) (*model.Ticket, error)

	ListReservations(ctx context.Context, actor model.Actor, serviceName string, limit int, offset int64) ([]*model.Reservation, int64, error)
	CheckIn(ctx context.Context, actor model.Actor, reservationID string) (*model.Reservation, error)
	Finish(ctx context.Context, actor model.Actor, reservationID string) (*model.Reservation, error)
	ExtendSkip(ctx context.Context, actor model.Actor, reservationID string) (*model.Reservation, error)
	CancelReservation(ctx context.Context, actor model.Actor, reservationID string) (*model.Reservation, error)
	DeleteReservation(ctx context.Context, actor model.Actor, reservationID string) error
}

type adminService struct {
	tickets         ticketsservice.TicketService
	reservations    reservationsservice.ReservationService
	ticketValidator *ticketsvalidator.TicketValidator
	log             *logger.Logger
}

func NewAdminService(
	tickets ticketsservice.TicketService,
	reservations reservationsservice.ReservationService,
	ticketValidator *ticketsvalidator.TicketValidator,
	log *logger.Logger,
) AdminService {
	return &adminService{
		tickets:         tickets,
		reservations:    reservations,
		ticketValidator: ticketValidator,
		log:             log.With("component", "admin"),
	}
}

func (s *adminService) authorize(actor model.Actor, action, target string) error {
	if !actor.IsAdmin() {
		s.log.Warn("Admin action refused", "action", action, "actor_id", actor.ID, "target", target)
		return apperrors.Forbidden("This operation requires the admin role")
	}
	s.log.Info("Admin action", "action", action, "actor_id", actor.ID, "target", target)
	return nil
}

func (s *adminService) CreateActivity(ctx context.Context, actor model.Actor, req *ticketsvalidator.CreateActivityRequest) (*model.Activity, error) {
	if err := s.authorize(actor, "CreateActivity", req.Name); err != nil {
		return nil, err
	}
	return s.tickets.CreateActivity(ctx, req)
}

func (s *adminService) DeleteActivity(ctx context.Context, actor model.Actor, activityID string) error {
	if err := s.authorize(actor, "DeleteActivity", activityID); err != nil {
		return err
	}
	return s.tickets.DeleteActivity(ctx, activityID)
}

func (s *adminService) ListTickets(ctx context.Context, actor model.Actor, activityID string) ([]*model.Ticket, error) {
	if err := s.authorize(actor, "ListTickets", activityID); err != nil {
		return nil, err
	}
	return s.tickets.ListTickets(ctx, activityID)
}

func (s *adminService) CallNext(ctx context.Context, actor model.Actor, activityID string) (*model.Ticket, bool, error) {
	if err := s.authorize(actor, "CallNext", activityID); err != nil {
		return nil, false, err
	}
	return s.tickets.CallNext(ctx, activityID)
}

func (s *adminService) MarkArrived(ctx context.Context, actor model.Actor, ticketID string) (*model.Ticket, error) {
	if err := s.authorize(actor, "MarkArrived", ticketID); err != nil {
		return nil, err
	}
	return s.tickets.ResolveCall(ctx, ticketID, model.OutcomeArrived)
}

func (s *adminService) ForceSkip(ctx context.Context, actor model.Actor, ticketID string) (*model.Ticket, error) {
	if err := s.authorize(actor, "ForceSkip", ticketID); err != nil {
		return nil, err
	}
	return s.tickets.ResolveCall(ctx, ticketID, model.OutcomeSkip)
}

func (s *adminService) ResolveCall(ctx context.Context, actor model.Actor, ticketID string, req *ticketsvalidator.ResolveRequest) (*model.Ticket, error) {
	if err := s.authorize(actor, "ResolveCall", ticketID); err != nil {
		return nil, err
	}
	if err := s.ticketValidator.ValidateResolve(req); err != nil {
		return nil, err
	}
	return s.tickets.ResolveCall(ctx, ticketID, req.Outcome)
}

func (s *adminService) MarkAbsent(ctx context.Context, actor model.Actor, ticketID string) (*model.Ticket, error) {
	if err := s.authorize(actor, "MarkAbsent", ticketID); err != nil {
		return nil, err
	}
	return s.tickets.MarkAbsent(ctx, ticketID)
}

func (s *adminService) AbortAbsent(ctx context.Context, actor model.Actor, ticketID string) (*model.Ticket, error) {
	if err := s.authorize(actor, "AbortAbsent", ticketID); err != nil {
		return nil, err
	}
	return s.tickets.AbortAbsent(ctx, ticketID)
}

func (s *adminService) CancelTicket(ctx context.Context, actor model.Actor, ticketID string) (*model.Ticket, error) {
	if err := s.authorize(actor, "CancelTicket", ticketID); err != nil {
		return nil, err
	}
	return s.tickets.Cancel(ctx, ticketID, actor)
}

func (s *adminService) ListReservations(ctx context.Context, actor model.Actor, serviceName string, limit int, offset int64) ([]*model.Reservation, int64, error) {
	if err := s.authorize(actor, "ListReservations", serviceName); err != nil {
		return nil, 0, err
	}
	return s.reservations.ListByService(ctx, serviceName, limit, offset)
}

func (s *adminService) CheckIn(ctx context.Context, actor model.Actor, reservationID string) (*model.Reservation, error) {
	if err := s.authorize(actor, "CheckIn", reservationID); err != nil {
		return nil, err
	}
	return s.reservations.CheckIn(ctx, reservationID)
}

func (s *adminService) Finish(ctx context.Context, actor model.Actor, reservationID string) (*model.Reservation, error) {
	if err := s.authorize(actor, "Finish", reservationID); err != nil {
		return nil, err
	}
	return s.reservations.Finish(ctx, reservationID)
}

func (s *adminService) ExtendSkip(ctx context.Context, actor model.Actor, reservationID string) (*model.Reservation, error) {
	if err := s.authorize(actor, "ExtendSkip", reservationID); err != nil {
		return nil, err
	}
	return s.reservations.SkipTime(ctx, reservationID)
}

func (s *adminService) CancelReservation(ctx context.Context, actor model.Actor, reservationID string) (*model.Reservation, error) {
	if err := s.authorize(actor, "CancelReservation", reservationID); err != nil {
		return nil, err
	}
	return s.reservations.Cancel(ctx, reservationID, actor)
}

func (s *adminService) DeleteReservation(ctx context.Context, actor model.Actor, reservationID string) error {
	if err := s.authorize(actor, "DeleteReservation", reservationID); err != nil {
		return err
	}
	return s.reservations.Delete(ctx, reservationID)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campusq/internal/events"
	"campusq/internal/expiry"
	ticketserrors "campusq/internal/tickets/errors"
	"campusq/internal/tickets/repository"
	"campusq/internal/tickets/sequence"
	"campusq/internal/tickets/validator"
	"campusq/pkg/clock"
	apperrors "campusq/pkg/errors"
	"campusq/pkg/logger"
	"campusq/pkg/model"
	"campusq/pkg/sanitizer"
	"campusq/pkg/telemetry"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

type TicketService interface {
	CreateActivity(ctx context.Context, req *validator.CreateActivityRequest) (*model.Activity, error)
	GetActivity(ctx context.Context, id string) (*model.Activity, error)
	ListActivities(ctx context.Context) ([]*model.Activity, error)
	DeleteActivity(ctx context.Context, id string) error

	Join(ctx context.Context, activityID string, actor model.Actor) (*model.Ticket, error)
	// CallNext promotes the lowest-numbered waiting ticket. The boolean is
	// false when nobody is waiting.
	CallNext(ctx context.Context, activityID string) (*model.Ticket, bool, error)
	ResolveCall(ctx context.Context, ticketID string, outcome model.CallOutcome) (*model.Ticket, error)
	Cancel(ctx context.Context, ticketID string, actor model.Actor) (*model.Ticket, error)
	Position(ctx context.Context, ticketID string) (int, error)
	MarkAbsent(ctx context.Context, ticketID string) (*model.Ticket, error)
	AbortAbsent(ctx context.Context, ticketID string) (*model.Ticket, error)

	GetTicket(ctx context.Context, id string) (*model.Ticket, error)
	ListWaiting(ctx context.Context, activityID string) ([]*model.Ticket, error)
	ListTickets(ctx context.Context, activityID string) ([]*model.Ticket, error)

	// Recover re-arms no-show windows persisted before a restart.
	Recover(ctx context.Context) (int, error)
	// Sweep resolves no-show windows whose deadline passed without their
	// timer firing.
	Sweep(ctx context.Context) (int, error)
}

type Options struct {
	NoShowWindow time.Duration
}

type ticketService struct {
	repo      repository.TicketRepository
	validator *validator.TicketValidator
	scheduler *expiry.Scheduler
	emitter   *events.Emitter
	clock     clock.Clock
	opts      Options
	log       *logger.Logger
}

func NewTicketService(
	repo repository.TicketRepository,
	validator *validator.TicketValidator,
	scheduler *expiry.Scheduler,
	emitter *events.Emitter,
	clk clock.Clock,
	opts Options,
	log *logger.Logger,
) TicketService {
	return &ticketService{
		repo:      repo,
		validator: validator,
		scheduler: scheduler,
		emitter:   emitter,
		clock:     clk,
		opts:      opts,
		log:       log.With("component", "tickets"),
	}
}

func noShowKey(ticketID string) string {
	return "ticket:" + ticketID
}

func (s *ticketService) CreateActivity(ctx context.Context, req *validator.CreateActivityRequest) (*model.Activity, error) {
	req.Name = sanitizer.NormalizeDisplayName(req.Name)
	if err := s.validator.ValidateCreateActivity(req); err != nil {
		s.log.Warn("Activity validation failed", "error", err)
		return nil, err
	}

	activity := &model.Activity{
		ID:               uuid.NewString(),
		Name:             req.Name,
		NextTicketNumber: sequence.First,
		CurrentCall:      model.IdleCall(),
		CreatedAt:        s.clock.Now(),
	}
	if err := s.repo.CreateActivity(ctx, activity); err != nil {
		s.log.Error("Failed to create activity", "error", err)
		return nil, apperrors.Internal("Failed to create activity", err)
	}

	s.log.Info("Activity created", "id", activity.ID, "name", activity.Name)
	s.emitter.Emit(ctx, events.Event{Type: events.ActivityCreated, ActivityID: activity.ID})
	return activity, nil
}

func (s *ticketService) GetActivity(ctx context.Context, id string) (*model.Activity, error) {
	if err := s.validator.ValidateID("Activity ID", id); err != nil {
		return nil, err
	}
	return s.findActivity(ctx, id)
}

func (s *ticketService) ListActivities(ctx context.Context) ([]*model.Activity, error) {
	activities, err := s.repo.ListActivities(ctx)
	if err != nil {
		s.log.Error("Failed to list activities", "error", err)
		return nil, apperrors.Internal("Failed to retrieve activities", err)
	}
	return activities, nil
}

func (s *ticketService) DeleteActivity(ctx context.Context, id string) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "tickets.DeleteActivity", attribute.String("activity.id", id))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := s.validator.ValidateID("Activity ID", id); err != nil {
		return err
	}

	removed, err := s.repo.DeleteActivity(ctx, id)
	if err != nil {
		if errors.Is(err, ticketserrors.ErrNotFound) {
			return apperrors.NotFoundWithID("Activity", id)
		}
		s.log.Error("Failed to delete activity", "id", id, "error", err)
		return apperrors.Internal("Failed to delete activity", err)
	}
	for _, ticketID := range removed {
		s.scheduler.Cancel(noShowKey(ticketID))
	}

	s.log.Info("Activity deleted", "id", id, "tickets_removed", len(removed))
	s.emitter.Emit(ctx, events.Event{Type: events.ActivityDeleted, ActivityID: id})
	return nil
}

func (s *ticketService) Join(ctx context.Context, activityID string, actor model.Actor) (ticket *model.Ticket, err error) {
	ctx, span := telemetry.StartSpan(ctx, "tickets.Join",
		attribute.String("activity.id", activityID),
		attribute.String("holder.id", actor.ID),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	if err := s.validator.ValidateID("Activity ID", activityID); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateID("Holder ID", actor.ID); err != nil {
		return nil, err
	}

	activity, err := s.findActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindActiveTicket(ctx, activityID, actor.ID)
	switch {
	case err == nil && existing != nil:
		return nil, apperrors.AlreadyQueued(activityID, actor.ID)
	case err != nil && !errors.Is(err, ticketserrors.ErrNotFound):
		return nil, apperrors.Internal("Failed to check existing ticket", err)
	}

	expected := activity.Version
	number := sequence.Issue(activity)
	activity.WaitingCount++

	ticket = &model.Ticket{
		ID:         uuid.NewString(),
		ActivityID: activityID,
		HolderID:   actor.ID,
		Number:     number,
		Status:     model.TicketWaiting,
		CreatedAt:  s.clock.Now(),
	}

	err = s.repo.Apply(ctx, repository.Change{
		Activity:                activity,
		ExpectedActivityVersion: expected,
		Ticket:                  ticket,
	})
	if err != nil {
		if errors.Is(err, ticketserrors.ErrHolderQueued) {
			return nil, apperrors.AlreadyQueued(activityID, actor.ID)
		}
		return nil, s.writeError("join", err)
	}

	s.log.Info("Ticket issued",
		"ticket_id", ticket.ID,
		"activity_id", activityID,
		"holder_id", actor.ID,
		"number", number,
	)
	s.emitter.Emit(ctx, events.Event{
		Type:         events.TicketJoined,
		HolderID:     ticket.HolderID,
		ActivityID:   activityID,
		TicketID:     ticket.ID,
		TicketNumber: ticket.Number,
		Status:       string(ticket.Status),
	})
	return ticket, nil
}

func (s *ticketService) CallNext(ctx context.Context, activityID string) (ticket *model.Ticket, called bool, err error) {
	ctx, span := telemetry.StartSpan(ctx, "tickets.CallNext", attribute.String("activity.id", activityID))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := s.validator.ValidateID("Activity ID", activityID); err != nil {
		return nil, false, err
	}

	activity, err := s.findActivity(ctx, activityID)
	if err != nil {
		return nil, false, err
	}
	if !activity.CurrentCall.IsIdle() {
		return nil, false, apperrors.InvalidTransition("activity", string(model.CallCalling), string(model.CallCalling)).
			WithDetails(map[string]any{"current_ticket_id": activity.CurrentCall.TicketID})
	}

	waiting, err := s.repo.ListWaiting(ctx, activityID)
	if err != nil {
		return nil, false, apperrors.Internal("Failed to list waiting tickets", err)
	}
	if len(waiting) == 0 {
		return nil, false, nil
	}

	now := s.clock.Now()
	head := waiting[0]
	expectedTicket := head.Version
	expectedActivity := activity.Version

	head.Status = model.TicketCalled
	head.CalledAt = &now
	activity.CurrentCall = model.CallingTicket(head, now)
	activity.WaitingCount = max(activity.WaitingCount-1, 0)

	err = s.repo.Apply(ctx, repository.Change{
		Activity:                activity,
		ExpectedActivityVersion: expectedActivity,
		Ticket:                  head,
		ExpectedTicketVersion:   expectedTicket,
	})
	if err != nil {
		return nil, false, s.writeError("call next", err)
	}

	s.log.Info("Ticket called", "ticket_id", head.ID, "activity_id", activityID, "number", head.Number)
	s.emitter.Emit(ctx, events.Event{
		Type:         events.TicketCalled,
		HolderID:     head.HolderID,
		ActivityID:   activityID,
		TicketID:     head.ID,
		TicketNumber: head.Number,
		Status:       string(head.Status),
		Alert:        true,
	})
	return head, true, nil
}

func (s *ticketService) ResolveCall(ctx context.Context, ticketID string, outcome model.CallOutcome) (ticket *model.Ticket, err error) {
	ctx, span := telemetry.StartSpan(ctx, "tickets.ResolveCall",
		attribute.String("ticket.id", ticketID),
		attribute.String("outcome", string(outcome)),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	status, ok := model.ResolvedStatus(outcome)
	if !ok {
		return nil, apperrors.InvalidInput(fmt.Sprintf("Unknown call outcome '%s'", outcome))
	}

	ticket, err = s.findTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, ticket, status, true)
}

// resolve moves a called ticket to its terminal status and releases the
// activity's current call. disarm must be false when running inside the
// ticket's own no-show callback.
func (s *ticketService) resolve(ctx context.Context, ticket *model.Ticket, status model.TicketStatus, disarm bool) (*model.Ticket, error) {
	if !model.CanTransitionTicket(ticket.Status, status) {
		return nil, apperrors.InvalidTransition("ticket", string(ticket.Status), string(status))
	}

	activity, err := s.findActivity(ctx, ticket.ActivityID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	expectedTicket := ticket.Version
	ticket.Status = status
	ticket.ResolvedAt = &now
	ticket.NoShowDeadline = nil

	change := repository.Change{Ticket: ticket, ExpectedTicketVersion: expectedTicket}
	if activity.CurrentCall.Is(ticket.ID) {
		change.Activity = activity
		change.ExpectedActivityVersion = activity.Version
		activity.CurrentCall = model.IdleCall()
	}

	if err := s.repo.Apply(ctx, change); err != nil {
		return nil, s.writeError("resolve call", err)
	}
	if disarm {
		s.scheduler.Cancel(noShowKey(ticket.ID))
	}

	s.log.Info("Call resolved", "ticket_id", ticket.ID, "activity_id", ticket.ActivityID, "status", status)
	s.emitter.Emit(ctx, events.Event{
		Type:         events.TicketResolved,
		HolderID:     ticket.HolderID,
		ActivityID:   ticket.ActivityID,
		TicketID:     ticket.ID,
		TicketNumber: ticket.Number,
		Status:       string(status),
	})
	return ticket, nil
}

func (s *ticketService) Cancel(ctx context.Context, ticketID string, actor model.Actor) (ticket *model.Ticket, err error) {
	ctx, span := telemetry.StartSpan(ctx, "tickets.Cancel", attribute.String("ticket.id", ticketID))
	defer func() { telemetry.EndSpan(span, err) }()

	ticket, err = s.findTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.ID != ticket.HolderID {
		return nil, apperrors.Forbidden("Only the ticket holder or an admin can cancel this ticket")
	}
	if !model.CanTransitionTicket(ticket.Status, model.TicketCancelled) {
		return nil, apperrors.InvalidTransition("ticket", string(ticket.Status), string(model.TicketCancelled))
	}

	activity, err := s.findActivity(ctx, ticket.ActivityID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	expectedTicket := ticket.Version
	expectedActivity := activity.Version

	ticket.Status = model.TicketCancelled
	ticket.ResolvedAt = &now
	activity.WaitingCount = max(activity.WaitingCount-1, 0)
	retracted := sequence.Retract(activity, ticket.Number)

	err = s.repo.Apply(ctx, repository.Change{
		Activity:                activity,
		ExpectedActivityVersion: expectedActivity,
		Ticket:                  ticket,
		ExpectedTicketVersion:   expectedTicket,
	})
	if err != nil {
		return nil, s.writeError("cancel ticket", err)
	}

	s.log.Info("Ticket cancelled",
		"ticket_id", ticket.ID,
		"activity_id", ticket.ActivityID,
		"by", actor.ID,
		"number_retracted", retracted,
	)
	s.emitter.Emit(ctx, events.Event{
		Type:         events.TicketCancelled,
		HolderID:     ticket.HolderID,
		ActivityID:   ticket.ActivityID,
		TicketID:     ticket.ID,
		TicketNumber: ticket.Number,
		Status:       string(ticket.Status),
	})
	return ticket, nil
}

func (s *ticketService) Position(ctx context.Context, ticketID string) (int, error) {
	ticket, err := s.findTicket(ctx, ticketID)
	if err != nil {
		return 0, err
	}
	if ticket.Status != model.TicketWaiting {
		return 0, apperrors.InvalidInput(fmt.Sprintf("Ticket is %s, position is only defined while waiting", ticket.Status))
	}

	waiting, err := s.repo.ListWaiting(ctx, ticket.ActivityID)
	if err != nil {
		return 0, apperrors.Internal("Failed to list waiting tickets", err)
	}

	ahead := 0
	for _, t := range waiting {
		if t.Number < ticket.Number {
			ahead++
		}
	}
	return ahead, nil
}

func (s *ticketService) MarkAbsent(ctx context.Context, ticketID string) (ticket *model.Ticket, err error) {
	ctx, span := telemetry.StartSpan(ctx, "tickets.MarkAbsent", attribute.String("ticket.id", ticketID))
	defer func() { telemetry.EndSpan(span, err) }()

	ticket, err = s.findTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != model.TicketCalled {
		return nil, apperrors.InvalidTransition("ticket", string(ticket.Status), string(model.TicketTimedOut))
	}
	if ticket.NoShowDeadline != nil {
		return ticket, nil
	}

	deadline := s.clock.Now().Add(s.opts.NoShowWindow)
	expected := ticket.Version
	ticket.NoShowDeadline = &deadline

	if err := s.repo.Apply(ctx, repository.Change{Ticket: ticket, ExpectedTicketVersion: expected}); err != nil {
		return nil, s.writeError("mark absent", err)
	}
	s.arm(ticket)

	s.log.Info("No-show window started", "ticket_id", ticket.ID, "deadline", deadline)
	s.emitter.Emit(ctx, events.Event{
		Type:         events.TicketNoShowStarted,
		HolderID:     ticket.HolderID,
		ActivityID:   ticket.ActivityID,
		TicketID:     ticket.ID,
		TicketNumber: ticket.Number,
		Alert:        true,
	})
	return ticket, nil
}

func (s *ticketService) AbortAbsent(ctx context.Context, ticketID string) (ticket *model.Ticket, err error) {
	ctx, span := telemetry.StartSpan(ctx, "tickets.AbortAbsent", attribute.String("ticket.id", ticketID))
	defer func() { telemetry.EndSpan(span, err) }()

	ticket, err = s.findTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != model.TicketCalled || ticket.NoShowDeadline == nil {
		return nil, apperrors.InvalidInput("No no-show window is running for this ticket")
	}

	expected := ticket.Version
	ticket.NoShowDeadline = nil
	if err := s.repo.Apply(ctx, repository.Change{Ticket: ticket, ExpectedTicketVersion: expected}); err != nil {
		return nil, s.writeError("abort absent", err)
	}
	s.scheduler.Cancel(noShowKey(ticket.ID))

	s.log.Info("No-show window aborted", "ticket_id", ticket.ID)
	s.emitter.Emit(ctx, events.Event{
		Type:       events.TicketNoShowAborted,
		HolderID:   ticket.HolderID,
		ActivityID: ticket.ActivityID,
		TicketID:   ticket.ID,
	})
	return ticket, nil
}

func (s *ticketService) GetTicket(ctx context.Context, id string) (*model.Ticket, error) {
	return s.findTicket(ctx, id)
}

func (s *ticketService) ListWaiting(ctx context.Context, activityID string) ([]*model.Ticket, error) {
	if _, err := s.GetActivity(ctx, activityID); err != nil {
		return nil, err
	}
	waiting, err := s.repo.ListWaiting(ctx, activityID)
	if err != nil {
		return nil, apperrors.Internal("Failed to list waiting tickets", err)
	}
	return waiting, nil
}

func (s *ticketService) ListTickets(ctx context.Context, activityID string) ([]*model.Ticket, error) {
	if _, err := s.GetActivity(ctx, activityID); err != nil {
		return nil, err
	}
	tickets, err := s.repo.ListTickets(ctx, activityID)
	if err != nil {
		return nil, apperrors.Internal("Failed to list tickets", err)
	}
	return tickets, nil
}

func (s *ticketService) Recover(ctx context.Context) (int, error) {
	pending, err := s.repo.ListNoShowPending(ctx)
	if err != nil {
		return 0, apperrors.Internal("Failed to list pending no-show windows", err)
	}
	for _, ticket := range pending {
		s.arm(ticket)
	}
	if len(pending) > 0 {
		s.log.Info("No-show windows re-armed", "count", len(pending))
	}
	return len(pending), nil
}

func (s *ticketService) Sweep(ctx context.Context) (int, error) {
	pending, err := s.repo.ListNoShowPending(ctx)
	if err != nil {
		return 0, apperrors.Internal("Failed to list pending no-show windows", err)
	}

	now := s.clock.Now()
	expired := 0
	for _, ticket := range pending {
		if ticket.NoShowDeadline.After(now) {
			continue
		}
		if s.expireNoShow(ctx, ticket.ID, ticket.Version, true) {
			expired++
		}
	}
	return expired, nil
}

// arm schedules the no-show callback against the version the window was
// stored with; any later write to the ticket turns the callback into a no-op.
func (s *ticketService) arm(ticket *model.Ticket) {
	id, version := ticket.ID, ticket.Version
	s.scheduler.Schedule(noShowKey(id), *ticket.NoShowDeadline, func(ctx context.Context) {
		s.expireNoShow(ctx, id, version, false)
	})
}

func (s *ticketService) expireNoShow(ctx context.Context, ticketID string, armedVersion int64, disarm bool) bool {
	ticket, err := s.repo.FindTicket(ctx, ticketID)
	if err != nil {
		if !errors.Is(err, ticketserrors.ErrNotFound) {
			s.log.Error("No-show check failed", "ticket_id", ticketID, "error", err)
		}
		return false
	}
	if ticket.Version != armedVersion || ticket.Status != model.TicketCalled || ticket.NoShowDeadline == nil {
		s.log.Debug("No-show window no longer current", "ticket_id", ticketID)
		return false
	}

	if _, err := s.resolve(ctx, ticket, model.TicketTimedOut, disarm); err != nil {
		if apperrors.HasCode(err, apperrors.CodeConflict) {
			s.log.Info("No-show expiry lost to a concurrent update", "ticket_id", ticketID)
			return false
		}
		s.log.Error("No-show expiry failed", "ticket_id", ticketID, "error", err)
		return false
	}
	return true
}

func (s *ticketService) findActivity(ctx context.Context, id string) (*model.Activity, error) {
	activity, err := s.repo.FindActivity(ctx, id)
	if err != nil {
		if errors.Is(err, ticketserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Activity", id)
		}
		return nil, apperrors.Internal("Failed to retrieve activity", err)
	}
	return activity, nil
}

func (s *ticketService) findTicket(ctx context.Context, id string) (*model.Ticket, error) {
	if err := s.validator.ValidateID("Ticket ID", id); err != nil {
		return nil, err
	}
	ticket, err := s.repo.FindTicket(ctx, id)
	if err != nil {
		if errors.Is(err, ticketserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Ticket", id)
		}
		return nil, apperrors.Internal("Failed to retrieve ticket", err)
	}
	return ticket, nil
}

func (s *ticketService) writeError(op string, err error) error {
	switch {
	case errors.Is(err, ticketserrors.ErrVersionConflict):
		s.log.Info("Write lost a concurrent race", "op", op)
		return apperrors.Conflict("The queue changed concurrently, refresh and retry")
	case errors.Is(err, ticketserrors.ErrNotFound):
		return apperrors.NotFound("Activity or ticket")
	default:
		s.log.Error("Ticket write failed", "op", op, "error", err)
		return apperrors.Internal("Failed to "+op, err)
	}
}

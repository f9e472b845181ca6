package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campusq/internal/events"
	"campusq/internal/expiry"
	"campusq/internal/reservations/availability"
	"campusq/internal/reservations/catalog"
	reservationserrors "campusq/internal/reservations/errors"
	"campusq/internal/reservations/repository"
	"campusq/internal/reservations/validator"
	"campusq/pkg/clock"
	apperrors "campusq/pkg/errors"
	"campusq/pkg/logger"
	"campusq/pkg/model"
	"campusq/pkg/sanitizer"
	"campusq/pkg/telemetry"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

type ReservationService interface {
	Create(ctx context.Context, actor model.Actor, req *validator.CreateReservationRequest) (*model.Reservation, error)
	Get(ctx context.Context, id string) (*model.Reservation, error)
	ActiveForHolder(ctx context.Context, holderID string) (*model.Reservation, error)
	ListByService(ctx context.Context, serviceName string, limit int, offset int64) ([]*model.Reservation, int64, error)
	IsOccupied(ctx context.Context, serviceName, slotID, timeWindow string) (bool, error)
	OccupiedSlots(ctx context.Context, serviceName, timeWindow string) ([]string, error)

	CheckIn(ctx context.Context, id string) (*model.Reservation, error)
	Extend(ctx context.Context, id string, actor model.Actor) (*model.Reservation, error)
	Finish(ctx context.Context, id string) (*model.Reservation, error)
	Cancel(ctx context.Context, id string, actor model.Actor) (*model.Reservation, error)
	// SkipTime cuts the remaining usage of an in-use reservation down to the
	// grace window. The status does not change.
	SkipTime(ctx context.Context, id string) (*model.Reservation, error)
	Delete(ctx context.Context, id string) error

	// Watch streams the holder's active reservation, once immediately and
	// again after every change, until ctx ends.
	Watch(ctx context.Context, holderID string) (<-chan Snapshot, error)

	// Recover re-arms admission timers of persisted queued reservations.
	Recover(ctx context.Context) (int, error)
	// Sweep expires queued reservations whose admission deadline passed
	// without their timer firing.
	Sweep(ctx context.Context) (int, error)
}

// Snapshot is what a watching holder sees. Active is nil when the holder
// has nothing booked.
type Snapshot struct {
	HolderID         string             `json:"holder_id"`
	Active           *model.Reservation `json:"active"`
	RemainingSeconds int64              `json:"remaining_seconds,omitempty"`
	At               time.Time          `json:"at"`
}

type reservationService struct {
	repo      repository.ReservationRepository
	index     *availability.Index
	catalog   *catalog.Catalog
	validator *validator.ReservationValidator
	scheduler *expiry.Scheduler
	emitter   *events.Emitter
	clock     clock.Clock
	policy    Policy
	log       *logger.Logger
}

func NewReservationService(
	repo repository.ReservationRepository,
	catalog *catalog.Catalog,
	validator *validator.ReservationValidator,
	scheduler *expiry.Scheduler,
	emitter *events.Emitter,
	clk clock.Clock,
	policy Policy,
	log *logger.Logger,
) ReservationService {
	return &reservationService{
		repo:      repo,
		index:     availability.NewIndex(repo),
		catalog:   catalog,
		validator: validator,
		scheduler: scheduler,
		emitter:   emitter,
		clock:     clk,
		policy:    policy,
		log:       log.With("component", "reservations"),
	}
}

func admissionKey(id string) string {
	return "reservation:" + id
}

func (s *reservationService) Create(ctx context.Context, actor model.Actor, req *validator.CreateReservationRequest) (res *model.Reservation, err error) {
	ctx, span := telemetry.StartSpan(ctx, "reservations.Create",
		attribute.String("holder.id", actor.ID),
		attribute.String("service", req.ServiceName),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	if err := s.validator.ValidateID("Holder ID", actor.ID); err != nil {
		return nil, err
	}
	s.sanitize(req)
	if err := s.validator.ValidateCreate(req); err != nil {
		return nil, err
	}

	entry := s.catalog.Resolve(req.ServiceName, req.TimeWindow)
	if !s.catalog.AllowsSlot(entry.Service, req.SlotID) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("Slot '%s' does not exist for service '%s'", req.SlotID, entry.Service))
	}

	if err := s.checkExclusivity(ctx, actor.ID, entry.Service, req.SlotID, req.TimeWindow); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	res = &model.Reservation{
		ID:          uuid.NewString(),
		HolderID:    actor.ID,
		HolderName:  sanitizer.NormalizeDisplayName(actor.Name),
		ServiceName: entry.Service,
		Kind:        entry.Kind,
		SlotID:      req.SlotID,
		TimeWindow:  req.TimeWindow,
		Items:       req.Items,
		Status:      model.ReservationBooked,
		StartTime:   now,
	}
	if entry.Kind == model.KindQueueEntry {
		window := entry.AdmissionWindow
		if window <= 0 {
			window = s.policy.AdmissionWindow
		}
		deadline := now.Add(window)
		res.Status = model.ReservationQueued
		res.AdmissionDeadline = &deadline
	}
	if len(res.Items) == 0 {
		res.Items = nil
	}

	if err := s.repo.Create(ctx, res); err != nil {
		return nil, s.exclusivityError(err, res)
	}
	if res.Status == model.ReservationQueued {
		s.arm(res)
	}

	s.log.Info("Reservation created",
		"id", res.ID,
		"holder_id", res.HolderID,
		"service", res.ServiceName,
		"slot_id", res.SlotID,
		"time_window", res.TimeWindow,
		"status", res.Status,
	)
	s.emit(ctx, events.ReservationCreated, res, false)
	return res, nil
}

func (s *reservationService) sanitize(req *validator.CreateReservationRequest) {
	req.ServiceName = sanitizer.SanitizeKey(req.ServiceName)
	req.SlotID = sanitizer.NormalizeSlotID(req.SlotID)
	req.TimeWindow = validator.NormalizeTimeWindow(req.TimeWindow)
	req.Items = sanitizer.NormalizeItems(req.Items)
}

// checkExclusivity is the single place the one-active-per-holder and
// one-active-per-slot rules are checked before a write. The store enforces
// the same rules atomically; this gives the common case a precise error
// without a failed write.
func (s *reservationService) checkExclusivity(ctx context.Context, holderID, serviceName, slotID, timeWindow string) error {
	if existing, err := s.repo.FindActiveByHolder(ctx, holderID); err == nil && existing != nil {
		return apperrors.AlreadyBooked(holderID).WithDetails(map[string]any{
			"holder_id":      holderID,
			"reservation_id": existing.ID,
		})
	} else if err != nil && !errors.Is(err, reservationserrors.ErrNotFound) {
		return apperrors.Internal("Failed to check holder reservations", err)
	}

	occupied, err := s.index.IsOccupied(ctx, serviceName, slotID, timeWindow)
	if err != nil {
		return apperrors.Internal("Failed to check slot availability", err)
	}
	if occupied {
		return apperrors.SlotTaken(serviceName, slotID, timeWindow)
	}
	return nil
}

func (s *reservationService) exclusivityError(err error, res *model.Reservation) error {
	switch {
	case errors.Is(err, reservationserrors.ErrHolderBusy):
		return apperrors.AlreadyBooked(res.HolderID)
	case errors.Is(err, reservationserrors.ErrSlotBusy):
		return apperrors.SlotTaken(res.ServiceName, res.SlotID, res.TimeWindow)
	default:
		return s.writeError("create reservation", err)
	}
}

func (s *reservationService) Get(ctx context.Context, id string) (*model.Reservation, error) {
	if err := s.validator.ValidateID("Reservation ID", id); err != nil {
		return nil, err
	}
	res, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, reservationserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Reservation", id)
		}
		return nil, apperrors.Internal("Failed to retrieve reservation", err)
	}
	return res, nil
}

func (s *reservationService) ActiveForHolder(ctx context.Context, holderID string) (*model.Reservation, error) {
	if err := s.validator.ValidateID("Holder ID", holderID); err != nil {
		return nil, err
	}
	res, err := s.repo.FindActiveByHolder(ctx, holderID)
	if err != nil {
		if errors.Is(err, reservationserrors.ErrNotFound) {
			return nil, apperrors.NotFound("Active reservation")
		}
		return nil, apperrors.Internal("Failed to retrieve active reservation", err)
	}
	return res, nil
}

func (s *reservationService) ListByService(ctx context.Context, serviceName string, limit int, offset int64) ([]*model.Reservation, int64, error) {
	reservations, total, err := s.repo.ListByService(ctx, sanitizer.SanitizeKey(serviceName), limit, offset)
	if err != nil {
		s.log.Error("Failed to list reservations", "service", serviceName, "error", err)
		return nil, 0, apperrors.Internal("Failed to retrieve reservations", err)
	}
	return reservations, total, nil
}

func (s *reservationService) IsOccupied(ctx context.Context, serviceName, slotID, timeWindow string) (bool, error) {
	occupied, err := s.index.IsOccupied(ctx,
		sanitizer.SanitizeKey(serviceName),
		sanitizer.NormalizeSlotID(slotID),
		validator.NormalizeTimeWindow(timeWindow),
	)
	if err != nil {
		return false, apperrors.Internal("Failed to check slot availability", err)
	}
	return occupied, nil
}

func (s *reservationService) OccupiedSlots(ctx context.Context, serviceName, timeWindow string) ([]string, error) {
	if err := s.validator.ValidateID("Service name", serviceName); err != nil {
		return nil, err
	}
	slots, err := s.index.OccupiedSlots(ctx, sanitizer.SanitizeKey(serviceName), validator.NormalizeTimeWindow(timeWindow))
	if err != nil {
		return nil, apperrors.Internal("Failed to list occupied slots", err)
	}
	return slots, nil
}

func (s *reservationService) CheckIn(ctx context.Context, id string) (res *model.Reservation, err error) {
	ctx, span := telemetry.StartSpan(ctx, "reservations.CheckIn", attribute.String("reservation.id", id))
	defer func() { telemetry.EndSpan(span, err) }()

	res, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(res, model.ReservationInUse); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	expected := res.Version
	end := now.Add(s.policy.UsageDuration)
	res.Status = model.ReservationInUse
	res.EndTime = &end
	res.AdmissionDeadline = nil

	if err := s.update(ctx, res, expected, "check in"); err != nil {
		return nil, err
	}
	s.scheduler.Cancel(admissionKey(res.ID))

	s.log.Info("Reservation checked in", "id", res.ID, "holder_id", res.HolderID, "end_time", end)
	s.emit(ctx, events.ReservationCheckedIn, res, false)
	return res, nil
}

func (s *reservationService) Extend(ctx context.Context, id string, actor model.Actor) (res *model.Reservation, err error) {
	ctx, span := telemetry.StartSpan(ctx, "reservations.Extend", attribute.String("reservation.id", id))
	defer func() { telemetry.EndSpan(span, err) }()

	res, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.ID != res.HolderID {
		return nil, apperrors.Forbidden("Only the reservation holder can extend it")
	}
	if res.Status != model.ReservationInUse {
		return nil, apperrors.InvalidTransition("reservation", string(res.Status), string(model.ReservationInUse))
	}
	if err := s.policy.allowExtension(res); err != nil {
		return nil, err
	}

	expected := res.Version
	base := s.clock.Now()
	if res.EndTime != nil {
		base = *res.EndTime
	}
	end := base.Add(s.policy.ExtensionDuration)
	res.EndTime = &end
	res.ExtensionCount++

	if err := s.update(ctx, res, expected, "extend reservation"); err != nil {
		return nil, err
	}

	s.log.Info("Reservation extended", "id", res.ID, "end_time", end, "extensions", res.ExtensionCount)
	s.emit(ctx, events.ReservationExtended, res, false)
	return res, nil
}

func (s *reservationService) Finish(ctx context.Context, id string) (res *model.Reservation, err error) {
	ctx, span := telemetry.StartSpan(ctx, "reservations.Finish", attribute.String("reservation.id", id))
	defer func() { telemetry.EndSpan(span, err) }()

	res, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.close(ctx, res, model.ReservationFinished, model.CloseReasonFinished, "finish reservation"); err != nil {
		return nil, err
	}

	s.log.Info("Reservation finished", "id", res.ID, "holder_id", res.HolderID)
	s.emit(ctx, events.ReservationFinished, res, false)
	return res, nil
}

func (s *reservationService) Cancel(ctx context.Context, id string, actor model.Actor) (res *model.Reservation, err error) {
	ctx, span := telemetry.StartSpan(ctx, "reservations.Cancel", attribute.String("reservation.id", id))
	defer func() { telemetry.EndSpan(span, err) }()

	res, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.ID != res.HolderID {
		return nil, apperrors.Forbidden("Only the reservation holder or an admin can cancel it")
	}

	reason := model.CloseReasonCancelledByHolder
	if actor.IsAdmin() && actor.ID != res.HolderID {
		reason = model.CloseReasonCancelledByAdmin
	}
	if err := s.close(ctx, res, model.ReservationCancelled, reason, "cancel reservation"); err != nil {
		return nil, err
	}

	s.log.Info("Reservation cancelled", "id", res.ID, "holder_id", res.HolderID, "by", actor.ID)
	s.emit(ctx, events.ReservationCancelled, res, actor.ID != res.HolderID)
	return res, nil
}

// close moves res into a terminal status and disarms its admission timer.
// It must not run inside that timer's own callback.
func (s *reservationService) close(ctx context.Context, res *model.Reservation, to model.ReservationStatus, reason, op string) error {
	if err := s.transition(res, to); err != nil {
		return err
	}

	now := s.clock.Now()
	expected := res.Version
	res.Status = to
	res.CloseReason = reason
	res.ClosedAt = &now

	if err := s.update(ctx, res, expected, op); err != nil {
		return err
	}
	s.scheduler.Cancel(admissionKey(res.ID))
	return nil
}

func (s *reservationService) SkipTime(ctx context.Context, id string) (res *model.Reservation, err error) {
	ctx, span := telemetry.StartSpan(ctx, "reservations.SkipTime", attribute.String("reservation.id", id))
	defer func() { telemetry.EndSpan(span, err) }()

	res, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.Status != model.ReservationInUse {
		return nil, apperrors.InvalidTransition("reservation", string(res.Status), string(model.ReservationInUse))
	}

	now := s.clock.Now()
	expected := res.Version
	graceEnd := now.Add(s.policy.GraceWindow)
	if res.EndTime == nil || res.EndTime.After(graceEnd) {
		res.EndTime = &graceEnd
	}
	res.GraceApplied = true

	if err := s.update(ctx, res, expected, "skip time"); err != nil {
		return nil, err
	}

	s.log.Info("Grace window applied", "id", res.ID, "end_time", res.EndTime)
	s.emit(ctx, events.ReservationGraceApplied, res, true)
	return res, nil
}

func (s *reservationService) Delete(ctx context.Context, id string) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "reservations.Delete", attribute.String("reservation.id", id))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := s.validator.ValidateID("Reservation ID", id); err != nil {
		return err
	}
	res, err := s.repo.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, reservationserrors.ErrNotFound) {
			return apperrors.NotFoundWithID("Reservation", id)
		}
		s.log.Error("Failed to delete reservation", "id", id, "error", err)
		return apperrors.Internal("Failed to delete reservation", err)
	}
	s.scheduler.Cancel(admissionKey(id))

	s.log.Info("Reservation deleted", "id", id, "holder_id", res.HolderID)
	s.emit(ctx, events.ReservationDeleted, res, res.IsActive())
	return nil
}

func (s *reservationService) Watch(ctx context.Context, holderID string) (<-chan Snapshot, error) {
	if err := s.validator.ValidateID("Holder ID", holderID); err != nil {
		return nil, err
	}
	signals, err := s.repo.Watch(ctx, holderID)
	if err != nil {
		return nil, apperrors.Unavailable("Reservation watch")
	}

	out := make(chan Snapshot, 1)
	go func() {
		defer close(out)
		if !s.push(ctx, out, holderID) {
			return
		}
		for range signals {
			if !s.push(ctx, out, holderID) {
				return
			}
		}
	}()
	return out, nil
}

func (s *reservationService) push(ctx context.Context, out chan<- Snapshot, holderID string) bool {
	now := s.clock.Now()
	snapshot := Snapshot{HolderID: holderID, At: now}

	res, err := s.repo.FindActiveByHolder(ctx, holderID)
	switch {
	case err == nil:
		snapshot.Active = res
		snapshot.RemainingSeconds = int64(res.RemainingUsage(now) / time.Second)
	case !errors.Is(err, reservationserrors.ErrNotFound):
		s.log.Warn("Watch read failed", "holder_id", holderID, "error", err)
		return ctx.Err() == nil
	}

	select {
	case out <- snapshot:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *reservationService) Recover(ctx context.Context) (int, error) {
	queued, err := s.repo.ListQueuedDue(ctx, time.Time{})
	if err != nil {
		return 0, apperrors.Internal("Failed to list queued reservations", err)
	}
	for _, res := range queued {
		s.arm(res)
	}
	if len(queued) > 0 {
		s.log.Info("Admission timers re-armed", "count", len(queued))
	}
	return len(queued), nil
}

func (s *reservationService) Sweep(ctx context.Context) (int, error) {
	due, err := s.repo.ListQueuedDue(ctx, s.clock.Now())
	if err != nil {
		return 0, apperrors.Internal("Failed to list overdue reservations", err)
	}

	expired := 0
	for _, res := range due {
		if s.expireAdmission(ctx, res.ID, res.Version, true) {
			expired++
		}
	}
	return expired, nil
}

// arm registers the admission timer against the version that carries the
// deadline; a check-in or cancel bumps the version and defuses it.
func (s *reservationService) arm(res *model.Reservation) {
	id, version := res.ID, res.Version
	s.scheduler.Schedule(admissionKey(id), *res.AdmissionDeadline, func(ctx context.Context) {
		s.expireAdmission(ctx, id, version, false)
	})
}

func (s *reservationService) expireAdmission(ctx context.Context, id string, armedVersion int64, disarm bool) bool {
	res, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if !errors.Is(err, reservationserrors.ErrNotFound) {
			s.log.Error("Admission check failed", "id", id, "error", err)
		}
		return false
	}
	if res.Version != armedVersion || res.Status != model.ReservationQueued {
		s.log.Debug("Admission deadline no longer current", "id", id, "status", res.Status)
		return false
	}

	now := s.clock.Now()
	res.Status = s.policy.AdmissionExpiryStatus
	res.CloseReason = model.CloseReasonAdmissionExpired
	res.ClosedAt = &now

	if err := s.repo.Update(ctx, res, armedVersion); err != nil {
		if errors.Is(err, reservationserrors.ErrVersionConflict) || errors.Is(err, reservationserrors.ErrNotFound) {
			s.log.Info("Admission expiry lost to a concurrent update", "id", id)
			return false
		}
		s.log.Error("Admission expiry failed", "id", id, "error", err)
		return false
	}
	if disarm {
		s.scheduler.Cancel(admissionKey(id))
	}

	s.log.Info("Queued reservation expired",
		"id", id,
		"holder_id", res.HolderID,
		"service", res.ServiceName,
		"slot_id", res.SlotID,
		"status", res.Status,
	)
	s.emit(ctx, events.ReservationAdmissionExpired, res, true)
	return true
}

func (s *reservationService) transition(res *model.Reservation, to model.ReservationStatus) error {
	if !model.CanTransitionReservation(res.Status, to) {
		return apperrors.InvalidTransition("reservation", string(res.Status), string(to))
	}
	return nil
}

func (s *reservationService) update(ctx context.Context, res *model.Reservation, expected int64, op string) error {
	if err := s.repo.Update(ctx, res, expected); err != nil {
		return s.writeError(op, err)
	}
	return nil
}

func (s *reservationService) writeError(op string, err error) error {
	switch {
	case errors.Is(err, reservationserrors.ErrVersionConflict):
		s.log.Info("Write lost a concurrent race", "op", op)
		return apperrors.Conflict("The reservation changed concurrently, refresh and retry")
	case errors.Is(err, reservationserrors.ErrNotFound):
		return apperrors.NotFound("Reservation")
	default:
		s.log.Error("Reservation write failed", "op", op, "error", err)
		return apperrors.Internal("Failed to "+op, err)
	}
}

func (s *reservationService) emit(ctx context.Context, t events.Type, res *model.Reservation, alert bool) {
	s.emitter.Emit(ctx, events.Event{
		Type:          t,
		HolderID:      res.HolderID,
		ReservationID: res.ID,
		ServiceName:   res.ServiceName,
		SlotID:        res.SlotID,
		Status:        string(res.Status),
		Reason:        res.CloseReason,
		Alert:         alert,
	})
}

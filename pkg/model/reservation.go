package model

import (
	"strings"
	"time"

	"campusq/pkg/sanitizer"
)

type ReservationKind string

const (
	KindReservation ReservationKind = "reservation"
	KindQueueEntry  ReservationKind = "queue-entry"
)

type ReservationStatus string

const (
	ReservationBooked    ReservationStatus = "booked"
	ReservationQueued    ReservationStatus = "queued"
	ReservationInUse     ReservationStatus = "in-use"
	ReservationFinished  ReservationStatus = "finished"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationExpired   ReservationStatus = "expired"
)

var ActiveReservationStatuses = []ReservationStatus{
	ReservationBooked,
	ReservationQueued,
	ReservationInUse,
}

const (
	CloseReasonCancelledByHolder = "cancelled_by_holder"
	CloseReasonCancelledByAdmin  = "cancelled_by_admin"
	CloseReasonAdmissionExpired  = "admission_expired"
	CloseReasonFinished          = "finished"
)

type Reservation struct {
	ID                string            `json:"id" bson:"_id"`
	HolderID          string            `json:"holder_id" bson:"holder_id"`
	HolderName        string            `json:"holder_name,omitempty" bson:"holder_name,omitempty"`
	ServiceName       string            `json:"service_name" bson:"service_name"`
	Kind              ReservationKind   `json:"kind" bson:"kind"`
	SlotID            string            `json:"slot_id" bson:"slot_id"`
	TimeWindow        string            `json:"time_window,omitempty" bson:"time_window,omitempty"`
	Items             []string          `json:"items,omitempty" bson:"items,omitempty"`
	Status            ReservationStatus `json:"status" bson:"status"`
	StartTime         time.Time         `json:"start_time" bson:"start_time"`
	EndTime           *time.Time        `json:"end_time,omitempty" bson:"end_time,omitempty"`
	AdmissionDeadline *time.Time        `json:"admission_deadline,omitempty" bson:"admission_deadline,omitempty"`
	ExtensionCount    int               `json:"extension_count" bson:"extension_count"`
	GraceApplied      bool              `json:"grace_applied" bson:"grace_applied"`
	CloseReason       string            `json:"close_reason,omitempty" bson:"close_reason,omitempty"`
	ClosedAt          *time.Time        `json:"closed_at,omitempty" bson:"closed_at,omitempty"`
	Version           int64             `json:"version" bson:"version"`
}

func (r *Reservation) IsActive() bool {
	return IsActiveReservationStatus(r.Status)
}

func (r *Reservation) SlotKey() string {
	return SlotKey(r.ServiceName, r.SlotID, r.TimeWindow)
}

// RemainingUsage is zero for reservations that were never checked in.
func (r *Reservation) RemainingUsage(now time.Time) time.Duration {
	if r.EndTime == nil || !r.EndTime.After(now) {
		return 0
	}
	return r.EndTime.Sub(now)
}

func IsActiveReservationStatus(s ReservationStatus) bool {
	for _, active := range ActiveReservationStatuses {
		if s == active {
			return true
		}
	}
	return false
}

// SlotKey identifies one exclusive (service, slot, window) tuple. Slot ids
// compare case-insensitively.
func SlotKey(serviceName, slotID, timeWindow string) string {
	return strings.Join([]string{serviceName, sanitizer.FoldSlotID(slotID), timeWindow}, "|")
}

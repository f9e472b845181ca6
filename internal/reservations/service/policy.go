package service

import (
	"fmt"
	"time"

	"campusq/pkg/config"
	apperrors "campusq/pkg/errors"
	"campusq/pkg/model"
)

// Policy holds the reservation lifecycle knobs.
type Policy struct {
	UsageDuration     time.Duration
	ExtensionDuration time.Duration
	GraceWindow       time.Duration
	AdmissionWindow   time.Duration

	// MaxExtensions caps extensions per reservation; zero means no cap.
	MaxExtensions int
	// BlockExtensionDuringGrace refuses extensions once an admin has cut the
	// reservation down to its grace window.
	BlockExtensionDuringGrace bool

	AdmissionExpiryStatus model.ReservationStatus
}

func DefaultPolicy() Policy {
	return Policy{
		UsageDuration:         config.DefaultUsageDuration,
		ExtensionDuration:     config.DefaultExtensionDuration,
		GraceWindow:           config.DefaultGraceWindow,
		AdmissionWindow:       config.DefaultAdmissionWindow,
		MaxExtensions:         config.DefaultMaxExtensions,
		AdmissionExpiryStatus: model.ReservationCancelled,
	}
}

func PolicyFromConfig(cfg *config.Config) Policy {
	status := model.ReservationCancelled
	if cfg.AdmissionExpiryStatus == config.ExpiryStatusExpired {
		status = model.ReservationExpired
	}
	return Policy{
		UsageDuration:             cfg.UsageDuration,
		ExtensionDuration:         cfg.ExtensionDuration,
		GraceWindow:               cfg.GraceWindow,
		AdmissionWindow:           cfg.AdmissionWindow,
		MaxExtensions:             cfg.MaxExtensions,
		BlockExtensionDuringGrace: cfg.BlockExtensionDuringGrace,
		AdmissionExpiryStatus:     status,
	}
}

func (p Policy) allowExtension(res *model.Reservation) error {
	if p.MaxExtensions > 0 && res.ExtensionCount >= p.MaxExtensions {
		return apperrors.InvalidInput(fmt.Sprintf("Reservation already extended %d times, the limit is %d", res.ExtensionCount, p.MaxExtensions)).
			WithDetails(map[string]any{"extension_count": res.ExtensionCount, "max_extensions": p.MaxExtensions})
	}
	if p.BlockExtensionDuringGrace && res.GraceApplied {
		return apperrors.InvalidInput("Reservation is in its grace window and cannot be extended")
	}
	return nil
}

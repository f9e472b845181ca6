package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	apperrors "campusq/pkg/errors"
	"campusq/pkg/logger"

	"github.com/go-playground/validator/v10"
)

const (
	MaxKeyLength  = 64
	MaxItems      = 10
	timeOfDayForm = "15:04"
)

// Slot ids are stored as given. Characters outside this set are rejected.
var reSlotID = regexp.MustCompile(`^[\p{L}\p{N}][\p{L}\p{N} ._:#/-]*$`)

type CreateReservationRequest struct {
	ServiceName string   `json:"service_name" validate:"required,max=64"`
	SlotID      string   `json:"slot_id" validate:"required,max=64,slot_id"`
	TimeWindow  string   `json:"time_window,omitempty" validate:"omitempty,time_window"`
	Items       []string `json:"items,omitempty" validate:"max=10,dive,min=1,max=64"`
}

type ReservationValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewReservationValidator(log *logger.Logger) *ReservationValidator {
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)

	if err := v.RegisterValidation("time_window", validateTimeWindow); err != nil {
		log.Fatal("Failed to register 'time_window' validator", "error", err)
	}
	if err := v.RegisterValidation("slot_id", validateSlotID); err != nil {
		log.Fatal("Failed to register 'slot_id' validator", "error", err)
	}

	return &ReservationValidator{
		validate: v,
		logger:   log,
	}
}

func validateSlotID(fl validator.FieldLevel) bool {
	return reSlotID.MatchString(fl.Field().String())
}

func validateTimeWindow(fl validator.FieldLevel) bool {
	_, _, err := ParseTimeWindow(fl.Field().String())
	return err == nil
}

// ParseTimeWindow parses "HH:MM-HH:MM" into offsets from midnight. The
// window must not be empty or wrap past midnight.
func ParseTimeWindow(window string) (time.Duration, time.Duration, error) {
	startStr, endStr, ok := strings.Cut(window, "-")
	if !ok {
		return 0, 0, fmt.Errorf("time window %q must look like HH:MM-HH:MM", window)
	}
	start, err := time.Parse(timeOfDayForm, strings.TrimSpace(startStr))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid window start %q", startStr)
	}
	end, err := time.Parse(timeOfDayForm, strings.TrimSpace(endStr))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid window end %q", endStr)
	}
	if !end.After(start) {
		return 0, 0, fmt.Errorf("time window %q ends before it starts", window)
	}
	midnight := time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC)
	return start.Sub(midnight), end.Sub(midnight), nil
}

// NormalizeTimeWindow rewrites a valid window as "HH:MM-HH:MM" so equal
// windows share one slot key. Invalid input is returned unchanged for the
// validator to reject.
func NormalizeTimeWindow(window string) string {
	window = strings.TrimSpace(window)
	if window == "" {
		return ""
	}
	start, end, err := ParseTimeWindow(window)
	if err != nil {
		return window
	}
	midnight := time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC)
	return midnight.Add(start).Format(timeOfDayForm) + "-" + midnight.Add(end).Format(timeOfDayForm)
}

func (v *ReservationValidator) ValidateCreate(req *CreateReservationRequest) error {
	return v.check(req)
}

func (v *ReservationValidator) ValidateID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperrors.InvalidInput(fmt.Sprintf("%s cannot be empty", field))
	}
	return nil
}

func (v *ReservationValidator) check(req any) error {
	err := v.validate.Struct(req)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return apperrors.InvalidInput(err.Error())
	}

	details := make(map[string]any, len(validationErrs))
	for _, fe := range validationErrs {
		details[fe.Field()] = translate(fe)
	}
	v.logger.Warn("Reservation validation failed", "details", details)
	return apperrors.Validation("Reservation validation failed", details)
}

func translate(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		if fe.Kind().String() == "slice" {
			return fmt.Sprintf("must contain at most %s entries", fe.Param())
		}
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "slot_id":
		return "may only contain letters, digits, spaces and . _ : # / -"
	case "time_window":
		return "must look like HH:MM-HH:MM and end after it starts"
	default:
		return fmt.Sprintf("failed '%s' validation", fe.Tag())
	}
}

// jsonFieldName reports fields by their JSON name so error details match
// the request body.
func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return fld.Name
	}
	return name
}

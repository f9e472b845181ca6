package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	apperrors "campusq/pkg/errors"
	"campusq/pkg/logger"
	"campusq/pkg/model"

	"github.com/go-playground/validator/v10"
)

type CreateActivityRequest struct {
	Name string `json:"name" validate:"required,min=2,max=100"`
}

type ResolveRequest struct {
	Outcome model.CallOutcome `json:"outcome" validate:"required,call_outcome"`
}

type TicketValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewTicketValidator(log *logger.Logger) *TicketValidator {
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)

	if err := v.RegisterValidation("call_outcome", validateCallOutcome); err != nil {
		log.Fatal("Failed to register 'call_outcome' validator", "error", err)
	}

	return &TicketValidator{
		validate: v,
		logger:   log,
	}
}

func validateCallOutcome(fl validator.FieldLevel) bool {
	_, ok := model.ResolvedStatus(model.CallOutcome(fl.Field().String()))
	return ok
}

func (v *TicketValidator) ValidateCreateActivity(req *CreateActivityRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	return v.check(req)
}

func (v *TicketValidator) ValidateResolve(req *ResolveRequest) error {
	return v.check(req)
}

func (v *TicketValidator) ValidateID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperrors.InvalidInput(fmt.Sprintf("%s cannot be empty", field))
	}
	return nil
}

func (v *TicketValidator) check(req any) error {
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
	v.logger.Warn("Request validation failed", "details", details)
	return apperrors.Validation("Request validation failed", details)
}

func translate(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "call_outcome":
		return "must be one of: arrived, no-show-timeout, skip"
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

package validator

import (
	"testing"

	apperrors "campusq/pkg/errors"
	"campusq/pkg/logger"
	"campusq/pkg/model"
)

func TestValidateCreateActivity(t *testing.T) {
	v := NewTicketValidator(logger.Discard())

	tests := []struct {
		name     string
		req      CreateActivityRequest
		wantCode string
	}{
		{name: "valid", req: CreateActivityRequest{Name: "Open House"}},
		{name: "trimmed to empty", req: CreateActivityRequest{Name: "   "}, wantCode: apperrors.CodeValidation},
		{name: "too short", req: CreateActivityRequest{Name: "A"}, wantCode: apperrors.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateCreateActivity(&tt.req)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !apperrors.HasCode(err, tt.wantCode) {
				t.Fatalf("expected %s, got %v", tt.wantCode, err)
			}
			if _, ok := apperrors.AsAppError(err).Details["name"]; !ok {
				t.Errorf("details should name the field: %v", apperrors.AsAppError(err).Details)
			}
		})
	}
}

func TestValidateResolve(t *testing.T) {
	v := NewTicketValidator(logger.Discard())

	for _, outcome := range []model.CallOutcome{model.OutcomeArrived, model.OutcomeNoShow, model.OutcomeSkip} {
		if err := v.ValidateResolve(&ResolveRequest{Outcome: outcome}); err != nil {
			t.Errorf("outcome %q rejected: %v", outcome, err)
		}
	}
	err := v.ValidateResolve(&ResolveRequest{Outcome: "served"})
	if !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, ok := apperrors.AsAppError(err).Details["outcome"]; !ok {
		t.Errorf("details should use the json field name: %v", apperrors.AsAppError(err).Details)
	}
}

func TestValidateID(t *testing.T) {
	v := NewTicketValidator(logger.Discard())
	if err := v.ValidateID("ticket id", " "); !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}
}

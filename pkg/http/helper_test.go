package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "campusq/pkg/errors"
	"campusq/pkg/model"
)

func TestActorFromRequest(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		wantRole model.Role
		wantErr  bool
	}{
		{
			name:     "holder",
			headers:  map[string]string{HeaderHolderID: "u1", HeaderHolderName: "Ana"},
			wantRole: model.RoleHolder,
		},
		{
			name:     "admin case insensitive",
			headers:  map[string]string{HeaderHolderID: "staff", HeaderRole: "Admin"},
			wantRole: model.RoleAdmin,
		},
		{
			name:     "unknown role falls back to holder",
			headers:  map[string]string{HeaderHolderID: "u2", HeaderRole: "root"},
			wantRole: model.RoleHolder,
		},
		{
			name:    "missing id",
			headers: map[string]string{HeaderRole: "admin"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			actor, err := ActorFromRequest(r)
			if tt.wantErr {
				if !apperrors.HasCode(err, apperrors.CodeForbidden) {
					t.Fatalf("expected FORBIDDEN, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if actor.Role != tt.wantRole {
				t.Errorf("role = %s, want %s", actor.Role, tt.wantRole)
			}
		})
	}
}

func TestExtractLimitOffset(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=500&offset=-3", nil)
	limit, offset, err := ExtractLimitOffset(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if limit != 100 || offset != 0 {
		t.Errorf("got limit=%d offset=%d", limit, offset)
	}

	r = httptest.NewRequest(http.MethodGet, "/?limit=abc", nil)
	if _, _, err := ExtractLimitOffset(r); !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}
}

func TestWriteError(t *testing.T) {
	t.Run("taxonomy code", func(t *testing.T) {
		w := httptest.NewRecorder()
		_ = WriteError(w, apperrors.SlotTaken("room", "2", ""))
		if w.Code != http.StatusConflict {
			t.Errorf("status = %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), `"code":"SLOT_TAKEN"`) {
			t.Errorf("body = %s", w.Body.String())
		}
	})

	t.Run("plain error hides message", func(t *testing.T) {
		w := httptest.NewRecorder()
		_ = WriteError(w, errTest("connection string with secrets"))
		if w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d", w.Code)
		}
		if strings.Contains(w.Body.String(), "secrets") {
			t.Errorf("leaked internal error: %s", w.Body.String())
		}
	})
}

type errTest string

func (e errTest) Error() string { return string(e) }

package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKind_Status(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindUnauthorized, http.StatusUnauthorized},
		{KindForbidden, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindConflict, http.StatusConflict},
		{KindUpstream, http.StatusInternalServerError},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := tt.kind.Status(); got != tt.want {
				t.Errorf("Status() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestError_IsByCode(t *testing.T) {
	wrapped := fmt.Errorf("upload: %w", ErrTooManyFiles)
	if !errors.Is(wrapped, ErrTooManyFiles) {
		t.Error("expected wrapped error to match ErrTooManyFiles")
	}
	if errors.Is(wrapped, ErrFileTooLarge) {
		t.Error("TooManyFiles must not match FileTooLarge")
	}
	if !HasCode(wrapped, CodeTooManyFiles) {
		t.Error("HasCode should find TooManyFiles")
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Upstream("could not store image", cause)
	if !errors.Is(err, cause) {
		t.Error("expected Upstream error to unwrap to cause")
	}
	if KindOf(err) != KindUpstream {
		t.Errorf("KindOf = %v, want upstream", KindOf(err))
	}
}

func TestPublic(t *testing.T) {
	status, msg := Public(ErrAdminCannotLeave)
	if status != http.StatusConflict {
		t.Errorf("status = %d, want 409", status)
	}
	if msg != ErrAdminCannotLeave.Message {
		t.Errorf("msg = %q", msg)
	}

	status, msg = Public(errors.New("secret driver detail"))
	if status != http.StatusInternalServerError || msg != "Internal server error" {
		t.Errorf("unclassified error leaked: %d %q", status, msg)
	}
}

package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindAndStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		kind   Kind
		status int
	}{
		{Validation("blank_reason", "reason", "reason required"), KindValidation, http.StatusBadRequest},
		{Conflict("overlapping_window", "start_time", "window overlaps"), KindConflict, http.StatusConflict},
		{Authorization("not_assigned_driver", "not the assigned driver"), KindAuthorization, http.StatusForbidden},
		{NotFound("appointment_not_found", "no such appointment"), KindNotFound, http.StatusNotFound},
		{System(errors.New("connection reset")), KindSystem, http.StatusInternalServerError},
		{errors.New("anonymous"), KindSystem, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.kind {
			t.Fatalf("%v: expected kind %v, got %v", tc.err, tc.kind, got)
		}
		if got := HTTPStatus(tc.err); got != tc.status {
			t.Fatalf("%v: expected status %d, got %d", tc.err, tc.status, got)
		}
	}
}

func TestWrappedErrorsKeepKind(t *testing.T) {
	inner := Conflict("duplicate_window", "", "identical window exists")
	wrapped := fmt.Errorf("create availability: %w", inner)
	if KindOf(wrapped) != KindConflict {
		t.Fatal("expected wrapped conflict to keep its kind")
	}
	if CodeOf(wrapped) != "duplicate_window" {
		t.Fatalf("unexpected code %q", CodeOf(wrapped))
	}
}

func TestSystemUnwraps(t *testing.T) {
	cause := errors.New("tcp timeout")
	err := System(cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected System to wrap its cause")
	}
}

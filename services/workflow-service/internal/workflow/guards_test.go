package workflow

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/santaihub/santai-server/services/workflow-service/internal/apperr"
	"github.com/santaihub/santai-server/services/workflow-service/internal/interval"
	"github.com/santaihub/santai-server/services/workflow-service/internal/model"
)

func mustClock(t *testing.T, s string) interval.TimeOfDay {
	t.Helper()
	tod, err := interval.ParseClock(s)
	if err != nil {
		t.Fatalf("parse clock %q: %v", s, err)
	}
	return tod
}

func validInput(t *testing.T) CreateAppointmentInput {
	return CreateAppointmentInput{
		ClientID:     "client-1",
		ServiceID:    "service-1",
		TherapistIDs: []string{"t-1", "t-2"},
		Date:         time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		Start:        mustClock(t, "22:00"),
		End:          mustClock(t, "02:00"),
	}
}

func TestValidateCreateInput(t *testing.T) {
	if err := validateCreateInput(validInput(t)); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*CreateAppointmentInput)
		code   string
	}{
		{"missing client", func(in *CreateAppointmentInput) { in.ClientID = "" }, "missing_field"},
		{"missing service", func(in *CreateAppointmentInput) { in.ServiceID = "" }, "missing_field"},
		{"no therapists", func(in *CreateAppointmentInput) { in.TherapistIDs = nil }, "missing_field"},
		{"empty therapist id", func(in *CreateAppointmentInput) { in.TherapistIDs = []string{"t-1", ""} }, "missing_field"},
		{"duplicate therapist", func(in *CreateAppointmentInput) { in.TherapistIDs = []string{"t-1", "t-1"} }, "duplicate_therapist"},
		{"missing date", func(in *CreateAppointmentInput) { in.Date = time.Time{} }, "missing_field"},
		{"bad clock", func(in *CreateAppointmentInput) { in.Start = interval.TimeOfDay(1440) }, "invalid_interval"},
		{"zero-length interval", func(in *CreateAppointmentInput) { in.End = in.Start }, "invalid_interval"},
	}
	for _, c := range cases {
		in := validInput(t)
		c.mutate(&in)
		err := validateCreateInput(in)
		if err == nil {
			t.Fatalf("%s: expected error", c.name)
		}
		if apperr.KindOf(err) != apperr.KindValidation {
			t.Fatalf("%s: expected validation kind, got %v", c.name, apperr.KindOf(err))
		}
		if apperr.CodeOf(err) != c.code {
			t.Fatalf("%s: expected code %s, got %s", c.name, c.code, apperr.CodeOf(err))
		}
	}
}

func TestRequireRole(t *testing.T) {
	op := model.Actor{ID: "u-1", Role: model.RoleOperator}
	if err := requireRole(op, model.RoleOperator); err != nil {
		t.Fatalf("operator rejected: %v", err)
	}
	err := requireRole(op, model.RoleDriver)
	if apperr.KindOf(err) != apperr.KindAuthorization {
		t.Fatalf("expected authorization error, got %v", err)
	}
	if apperr.CodeOf(err) != "driver_required" {
		t.Fatalf("unexpected code %s", apperr.CodeOf(err))
	}
}

func TestRequireAssignedDriver(t *testing.T) {
	a := model.Appointment{DriverID: "d-1"}
	if err := requireAssignedDriver(a, model.Actor{ID: "d-1", Role: model.RoleDriver}); err != nil {
		t.Fatalf("assigned driver rejected: %v", err)
	}
	cases := []model.Actor{
		{ID: "d-2", Role: model.RoleDriver},
		{ID: "d-1", Role: model.RoleTherapist},
		{ID: "d-1", Role: model.RoleOperator},
	}
	for _, actor := range cases {
		if err := requireAssignedDriver(a, actor); apperr.KindOf(err) != apperr.KindAuthorization {
			t.Fatalf("actor %s/%s: expected authorization error, got %v", actor.ID, actor.Role, err)
		}
	}
	if err := requireAssignedDriver(model.Appointment{}, model.Actor{ID: "d-1", Role: model.RoleDriver}); err == nil {
		t.Fatal("no driver assigned yet, expected rejection")
	}
}

func TestRequireCar(t *testing.T) {
	if err := requireCar(model.Appointment{RequiresCar: true}); err != nil {
		t.Fatalf("transported appointment rejected: %v", err)
	}
	err := requireCar(model.Appointment{})
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if apperr.CodeOf(err) != "car_not_required" {
		t.Fatalf("unexpected code %s", apperr.CodeOf(err))
	}
}

func TestRequireSelfOrOperator(t *testing.T) {
	if err := requireSelfOrOperator(model.Actor{ID: "u-1", Role: model.RoleTherapist}, "u-1"); err != nil {
		t.Fatalf("owner rejected: %v", err)
	}
	if err := requireSelfOrOperator(model.Actor{ID: "op-1", Role: model.RoleOperator}, "u-1"); err != nil {
		t.Fatalf("operator rejected: %v", err)
	}
	err := requireSelfOrOperator(model.Actor{ID: "u-2", Role: model.RoleDriver}, "u-1")
	if apperr.KindOf(err) != apperr.KindAuthorization {
		t.Fatalf("expected authorization error, got %v", err)
	}
}

func TestIllegalTransitionIsValidation(t *testing.T) {
	e := &Engine{}
	a := model.Appointment{ID: "a-1", Status: model.StatusCompleted}
	err := e.advance(context.Background(), nil, &a, model.StatusPending, "")
	if err == nil {
		t.Fatal("expected error for completed -> pending")
	}
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation kind, got %v", apperr.KindOf(err))
	}
	if apperr.CodeOf(err) != "illegal_transition" {
		t.Fatalf("unexpected code %s", apperr.CodeOf(err))
	}
	if apperr.HTTPStatus(err) != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", apperr.HTTPStatus(err))
	}
	if a.Status != model.StatusCompleted {
		t.Fatalf("appointment mutated on rejected transition: %s", a.Status)
	}
}

func TestIsNoDriverAvailable(t *testing.T) {
	if !isNoDriverAvailable(apperr.Conflict("no_driver_available", "", "pool empty")) {
		t.Fatal("allocator conflict not recognized")
	}
	if isNoDriverAvailable(apperr.Conflict("driver_already_assigned", "status", "nope")) {
		t.Fatal("unrelated conflict recognized")
	}
	if isNoDriverAvailable(nil) {
		t.Fatal("nil error recognized")
	}
}

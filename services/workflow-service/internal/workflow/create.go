package workflow

import (
	"context"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/santaihub/santai-server/services/workflow-service/internal/apperr"
	"github.com/santaihub/santai-server/services/workflow-service/internal/interval"
	"github.com/santaihub/santai-server/services/workflow-service/internal/model"
	"github.com/santaihub/santai-server/services/workflow-service/internal/storage"
)

type CreateAppointmentInput struct {
	ClientID  string
	ServiceID string
	// TherapistIDs lists the whole group; the first entry is the primary
	// therapist. Group size is the length of this list.
	TherapistIDs []string
	Date         time.Time
	Start        interval.TimeOfDay
	End          interval.TimeOfDay
	RequiresCar  bool
	// ResponseDeadline zero means "now plus the configured TTL".
	ResponseDeadline time.Time
}

// CreateAppointment books a pending appointment after validating every
// therapist in the group: each must be an active therapist, have an
// availability window containing the requested interval, and have no
// overlapping appointment. Therapist user rows are locked in id order so two
// concurrent creates for the same therapists serialize instead of
// deadlocking.
func (e *Engine) CreateAppointment(ctx context.Context, actor model.Actor, in CreateAppointmentInput) (model.Appointment, error) {
	if err := requireRole(actor, model.RoleOperator); err != nil {
		return model.Appointment{}, err
	}
	if err := validateCreateInput(in); err != nil {
		return model.Appointment{}, err
	}

	if _, err := e.catalog.GetClient(ctx, in.ClientID); err != nil {
		if storage.IsNotFound(err) {
			return model.Appointment{}, apperr.NotFound("client_not_found", "client does not exist")
		}
		return model.Appointment{}, apperr.System(err)
	}
	if _, err := e.catalog.GetService(ctx, in.ServiceID); err != nil {
		if storage.IsNotFound(err) {
			return model.Appointment{}, apperr.NotFound("service_not_found", "service does not exist")
		}
		return model.Appointment{}, apperr.System(err)
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	span := interval.Normalize(in.Date, in.Start, in.End)

	lockOrder := append([]string(nil), in.TherapistIDs...)
	sort.Strings(lockOrder)
	for _, id := range lockOrder {
		if err := e.validateTherapistForBooking(ctx, tx, id, in.Date, span); err != nil {
			return model.Appointment{}, err
		}
	}

	deadline := in.ResponseDeadline
	if deadline.IsZero() {
		deadline = e.now().Add(e.responseTTL)
	}

	a := model.Appointment{
		ClientID:         in.ClientID,
		ServiceID:        in.ServiceID,
		OperatorID:       actor.ID,
		TherapistID:      in.TherapistIDs[0],
		Date:             in.Date,
		StartTime:        in.Start,
		EndTime:          in.End,
		Status:           model.StatusPending,
		GroupSize:        len(in.TherapistIDs),
		RequiresCar:      in.RequiresCar,
		ResponseDeadline: deadline,
	}
	id, err := e.appointments.Create(ctx, tx, &a)
	if err != nil {
		return model.Appointment{}, apperr.System(err)
	}
	a.ID = id
	for _, tid := range in.TherapistIDs {
		if err := e.appointments.AddTherapist(ctx, tx, id, tid); err != nil {
			return model.Appointment{}, apperr.System(err)
		}
	}

	if err := e.notify(ctx, tx, a, "appointment_created",
		"New appointment", "You have a new appointment to confirm.",
		in.TherapistIDs...); err != nil {
		return model.Appointment{}, err
	}

	if err := e.commit(ctx, tx); err != nil {
		return model.Appointment{}, err
	}

	created, err := e.appointments.Get(ctx, id)
	if err != nil {
		return model.Appointment{}, apperr.System(err)
	}
	return created, nil
}

func validateCreateInput(in CreateAppointmentInput) error {
	if in.ClientID == "" {
		return apperr.Validation("missing_field", "client_id", "client_id is required")
	}
	if in.ServiceID == "" {
		return apperr.Validation("missing_field", "service_id", "service_id is required")
	}
	if len(in.TherapistIDs) == 0 {
		return apperr.Validation("missing_field", "therapist_ids", "at least one therapist is required")
	}
	seen := make(map[string]struct{}, len(in.TherapistIDs))
	for _, id := range in.TherapistIDs {
		if id == "" {
			return apperr.Validation("missing_field", "therapist_ids", "therapist id must not be empty")
		}
		if _, dup := seen[id]; dup {
			return apperr.Validation("duplicate_therapist", "therapist_ids", "therapist listed twice")
		}
		seen[id] = struct{}{}
	}
	if in.Date.IsZero() {
		return apperr.Validation("missing_field", "date", "date is required")
	}
	if !in.Start.Valid() || !in.End.Valid() {
		return apperr.Validation("invalid_interval", "start_time", "clock times must be within 00:00-23:59")
	}
	if in.Start == in.End {
		return apperr.Validation("invalid_interval", "end_time", "end time must differ from start time")
	}
	return nil
}

func (e *Engine) validateTherapistForBooking(ctx context.Context, tx pgx.Tx, therapistID string, date time.Time, span interval.Span) error {
	if err := e.availability.LockUser(ctx, tx, therapistID); err != nil {
		if storage.IsNotFound(err) {
			return apperr.NotFound("therapist_not_found", "therapist does not exist")
		}
		return apperr.System(err)
	}
	u, err := e.users.GetTx(ctx, tx, therapistID)
	if err != nil {
		return apperr.System(err)
	}
	if u.Role != model.RoleTherapist {
		return apperr.Validation("not_a_therapist", "therapist_ids", "user is not a therapist")
	}
	if !u.IsActive {
		return apperr.Conflict("therapist_inactive", "therapist_ids", "therapist account is deactivated")
	}

	windows, err := e.availability.ListCoveringCandidates(ctx, tx, therapistID, date)
	if err != nil {
		return apperr.System(err)
	}
	covered := false
	for _, w := range windows {
		if w.Span().Contains(span) {
			covered = true
			break
		}
	}
	if !covered {
		return apperr.Validation("outside_availability", "therapist_ids",
			"requested interval is outside the therapist's availability")
	}

	appts, err := e.appointments.ListForTherapistAround(ctx, tx, therapistID, date)
	if err != nil {
		return apperr.System(err)
	}
	for _, other := range appts {
		if span.Overlaps(other.Span()) {
			return apperr.Conflict("overlapping_appointment", "therapist_ids",
				"therapist already has an appointment in this interval")
		}
	}
	return nil
}

package workflow

import (
	"context"
	"time"

	"github.com/santaihub/santai-server/services/workflow-service/internal/apperr"
	"github.com/santaihub/santai-server/services/workflow-service/internal/model"
	"github.com/santaihub/santai-server/services/workflow-service/internal/storage"
)

// AppointmentDetail is the read model for a single appointment.
type AppointmentDetail struct {
	Appointment   model.Appointment
	TherapistIDs  []string
	Confirmations []model.TherapistConfirmation
	Reviews       []model.RejectionReview
}

func (e *Engine) GetAppointment(ctx context.Context, id string) (AppointmentDetail, error) {
	a, err := e.appointments.Get(ctx, id)
	if storage.IsNotFound(err) {
		return AppointmentDetail{}, apperr.NotFound("appointment_not_found", "appointment does not exist")
	}
	if err != nil {
		return AppointmentDetail{}, apperr.System(err)
	}

	therapists, err := e.appointments.TherapistIDs(ctx, id)
	if err != nil {
		return AppointmentDetail{}, apperr.System(err)
	}
	confs, err := e.confirmations.List(ctx, id)
	if err != nil {
		return AppointmentDetail{}, apperr.System(err)
	}
	reviews, err := e.reviews.ListForAppointment(ctx, id)
	if err != nil {
		return AppointmentDetail{}, apperr.System(err)
	}
	return AppointmentDetail{
		Appointment:   a,
		TherapistIDs:  therapists,
		Confirmations: confs,
		Reviews:       reviews,
	}, nil
}

func (e *Engine) ListAppointments(ctx context.Context, status model.Status, date *time.Time, limit int) ([]model.Appointment, error) {
	if status != "" && !status.Valid() {
		return nil, apperr.Validation("invalid_status", "status", "unknown status filter")
	}
	appts, err := e.appointments.List(ctx, status, date, limit)
	if err != nil {
		return nil, apperr.System(err)
	}
	return appts, nil
}

func (e *Engine) DriverQueue(ctx context.Context) ([]model.User, error) {
	users, err := e.allocator.Queue(ctx)
	if err != nil {
		return nil, apperr.System(err)
	}
	return users, nil
}

func (e *Engine) DriverQueuePosition(ctx context.Context, driverID string) (int, error) {
	pos, found, err := e.allocator.QueuePosition(ctx, driverID)
	if err != nil {
		return 0, apperr.System(err)
	}
	if !found {
		return 0, apperr.NotFound("driver_not_queued", "driver is not in the available pool")
	}
	return pos, nil
}

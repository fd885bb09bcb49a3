package workflow

import (
	"context"

	"github.com/santaihub/santai-server/services/workflow-service/internal/apperr"
	"github.com/santaihub/santai-server/services/workflow-service/internal/model"
)

// Start is the operator kicking off the day-of flow. Transported
// appointments must have a confirmed driver first; car-free ones start
// straight from therapist_confirmed.
func (e *Engine) Start(ctx context.Context, actor model.Actor, appointmentID string) (model.Appointment, error) {
	if err := requireRole(actor, model.RoleOperator); err != nil {
		return model.Appointment{}, err
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a, err := e.getForUpdate(ctx, tx, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if a.Status == model.StatusTherapistConfirmed && a.RequiresCar {
		return model.Appointment{}, apperr.Conflict("driver_confirmation_required", "status",
			"the driver must confirm before a transported appointment can start")
	}
	if err := e.advance(ctx, tx, &a, model.StatusInProgress, ""); err != nil {
		return model.Appointment{}, err
	}

	recipients, err := e.stageRecipients(ctx, tx, a, false)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := e.notify(ctx, tx, a, "appointment_started",
		"Appointment started", "The appointment is underway.",
		recipients...); err != nil {
		return model.Appointment{}, err
	}

	if err := e.commit(ctx, tx); err != nil {
		return model.Appointment{}, err
	}
	return a, nil
}

// StartJourney is the driver departing with the therapist group on board.
func (e *Engine) StartJourney(ctx context.Context, actor model.Actor, appointmentID string) (model.Appointment, error) {
	return e.driverStep(ctx, actor, appointmentID, model.StatusJourneyStarted, "journey_started_at",
		"journey_started", "Journey started", "The driver is on the way to the client.")
}

// Arrive is the driver reaching the client's address.
func (e *Engine) Arrive(ctx context.Context, actor model.Actor, appointmentID string) (model.Appointment, error) {
	return e.driverStep(ctx, actor, appointmentID, model.StatusArrived, "arrived_at",
		"arrived", "Arrived", "The driver has arrived at the client.")
}

// DropOff is the driver leaving the therapists at the client. The driver
// re-enters the pool immediately; the session continues without them.
func (e *Engine) DropOff(ctx context.Context, actor model.Actor, appointmentID string) (model.Appointment, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a, err := e.getForUpdate(ctx, tx, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := requireCar(a); err != nil {
		return model.Appointment{}, err
	}
	if err := requireAssignedDriver(a, actor); err != nil {
		return model.Appointment{}, err
	}
	if err := e.advance(ctx, tx, &a, model.StatusDroppedOff, "dropped_off_at"); err != nil {
		return model.Appointment{}, err
	}
	if err := e.allocator.Release(ctx, tx, a.DriverID); err != nil {
		return model.Appointment{}, err
	}

	if err := e.notify(ctx, tx, a, "dropped_off",
		"Drop-off complete", "The therapists have been dropped off at the client.",
		a.OperatorID); err != nil {
		return model.Appointment{}, err
	}

	if err := e.commit(ctx, tx); err != nil {
		return model.Appointment{}, err
	}
	return a, nil
}

// driverStep is the shared shape of the assigned driver's outbound steps.
func (e *Engine) driverStep(ctx context.Context, actor model.Actor, appointmentID string, to model.Status, stampColumn, kind, title, body string) (model.Appointment, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a, err := e.getForUpdate(ctx, tx, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := requireCar(a); err != nil {
		return model.Appointment{}, err
	}
	if err := requireAssignedDriver(a, actor); err != nil {
		return model.Appointment{}, err
	}
	if err := e.advance(ctx, tx, &a, to, stampColumn); err != nil {
		return model.Appointment{}, err
	}

	if err := e.notify(ctx, tx, a, kind, title, body, a.OperatorID); err != nil {
		return model.Appointment{}, err
	}

	if err := e.commit(ctx, tx); err != nil {
		return model.Appointment{}, err
	}
	return a, nil
}

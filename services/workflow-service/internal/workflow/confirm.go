package workflow

import (
	"context"
	"errors"

	"github.com/santaihub/santai-server/services/workflow-service/internal/apperr"
	"github.com/santaihub/santai-server/services/workflow-service/internal/model"
)

// TherapistConfirm records one therapist's acceptance. Repeat confirms are
// idempotent. When the last member of the group confirms, the appointment
// moves to therapist_confirmed and, for transported appointments, a driver is
// allocated from the pool head. If the pool is empty the confirmation still
// commits and the operator is asked to assign a driver once one frees up.
func (e *Engine) TherapistConfirm(ctx context.Context, actor model.Actor, appointmentID string) (model.Appointment, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a, err := e.getForUpdate(ctx, tx, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if a.Status != model.StatusPending {
		return model.Appointment{}, apperr.Validation("illegal_transition", "status",
			"confirmations are only accepted while the appointment is pending")
	}
	if err := e.requireGroupTherapist(ctx, tx, a, actor); err != nil {
		return model.Appointment{}, err
	}

	inserted, err := e.confirmations.Upsert(ctx, tx, a.ID, actor.ID)
	if err != nil {
		return model.Appointment{}, apperr.System(err)
	}
	if !inserted {
		if err := e.commit(ctx, tx); err != nil {
			return model.Appointment{}, err
		}
		return a, nil
	}

	confirmed, err := e.confirmations.CountConfirmed(ctx, tx, a.ID)
	if err != nil {
		return model.Appointment{}, apperr.System(err)
	}
	if confirmed < a.GroupSize {
		if err := e.commit(ctx, tx); err != nil {
			return model.Appointment{}, err
		}
		return a, nil
	}

	if err := e.appointments.SetGroupConfirmed(ctx, tx, a.ID); err != nil {
		return model.Appointment{}, apperr.System(err)
	}
	a.GroupConfirmationComplete = true
	if err := e.advance(ctx, tx, &a, model.StatusTherapistConfirmed, "therapist_confirmed_at"); err != nil {
		return model.Appointment{}, err
	}

	if a.RequiresCar {
		driver, err := e.allocator.Allocate(ctx, tx)
		switch {
		case err == nil:
			if err := e.appointments.AssignDriver(ctx, tx, a.ID, driver.ID); err != nil {
				return model.Appointment{}, apperr.System(err)
			}
			a.DriverID = driver.ID
			if err := e.notify(ctx, tx, a, "driver_assigned",
				"Trip assigned", "You have been assigned a trip; please confirm.",
				driver.ID); err != nil {
				return model.Appointment{}, err
			}
		case isNoDriverAvailable(err):
			e.logger.Warn("driver pool empty at group confirmation", "appointment_id", a.ID)
			if err := e.notify(ctx, tx, a, "driver_pool_empty",
				"No driver available", "All therapists confirmed but no driver is free; assign one manually.",
				a.OperatorID); err != nil {
				return model.Appointment{}, err
			}
		default:
			return model.Appointment{}, err
		}
	}

	if err := e.notify(ctx, tx, a, "group_confirmed",
		"Appointment confirmed", "All therapists have confirmed the appointment.",
		a.OperatorID); err != nil {
		return model.Appointment{}, err
	}

	if err := e.commit(ctx, tx); err != nil {
		return model.Appointment{}, err
	}
	return a, nil
}

func isNoDriverAvailable(err error) bool {
	var e *apperr.Error
	return errors.As(err, &e) && e.Code == "no_driver_available"
}

// AssignDriver lets the operator allocate a driver for a transported
// appointment whose group confirmed while the pool was empty. Allocation
// still takes the pool head, never a hand-picked driver.
func (e *Engine) AssignDriver(ctx context.Context, actor model.Actor, appointmentID string) (model.Appointment, error) {
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
	if err := requireCar(a); err != nil {
		return model.Appointment{}, err
	}
	if a.Status != model.StatusTherapistConfirmed {
		return model.Appointment{}, apperr.Validation("illegal_transition", "status",
			"a driver can only be assigned to a therapist_confirmed appointment")
	}
	if a.DriverID != "" {
		return model.Appointment{}, apperr.Conflict("driver_already_assigned", "", "appointment already has a driver")
	}

	driver, err := e.allocator.Allocate(ctx, tx)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := e.appointments.AssignDriver(ctx, tx, a.ID, driver.ID); err != nil {
		return model.Appointment{}, apperr.System(err)
	}
	a.DriverID = driver.ID

	if err := e.notify(ctx, tx, a, "driver_assigned",
		"Trip assigned", "You have been assigned a trip; please confirm.",
		driver.ID); err != nil {
		return model.Appointment{}, err
	}

	if err := e.commit(ctx, tx); err != nil {
		return model.Appointment{}, err
	}
	return a, nil
}

// DriverConfirm is the assigned driver accepting the outbound trip.
func (e *Engine) DriverConfirm(ctx context.Context, actor model.Actor, appointmentID string) (model.Appointment, error) {
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
	if err := e.advance(ctx, tx, &a, model.StatusDriverConfirmed, "driver_confirmed_at"); err != nil {
		return model.Appointment{}, err
	}

	if err := e.notify(ctx, tx, a, "driver_confirmed",
		"Driver confirmed", "The driver has confirmed the trip.",
		a.OperatorID); err != nil {
		return model.Appointment{}, err
	}

	if err := e.commit(ctx, tx); err != nil {
		return model.Appointment{}, err
	}
	return a, nil
}

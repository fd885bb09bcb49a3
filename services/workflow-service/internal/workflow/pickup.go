package workflow

import (
	"context"

	"github.com/santaihub/santai-server/services/workflow-service/internal/apperr"
	"github.com/santaihub/santai-server/services/workflow-service/internal/model"
)

// RequestPickup is a group therapist asking for the ride home after a
// completed session. Urgent requests change the notification, not the queue:
// allocation order stays first-in-first-out regardless.
func (e *Engine) RequestPickup(ctx context.Context, actor model.Actor, appointmentID string, urgency model.PickupUrgency) (model.Appointment, error) {
	if urgency == "" {
		urgency = model.UrgencyNormal
	}
	if !urgency.Valid() {
		return model.Appointment{}, apperr.Validation("invalid_urgency", "urgency", "urgency must be normal or urgent")
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
	if err := e.requireGroupTherapist(ctx, tx, a, actor); err != nil {
		return model.Appointment{}, err
	}
	if !model.CanTransition(a.Status, model.StatusPickupRequested) {
		return model.Appointment{}, apperr.Validation("illegal_transition", "status",
			"pickup can only be requested after the session is completed")
	}

	at, err := e.appointments.SetPickupRequested(ctx, tx, a.ID, urgency)
	if err != nil {
		return model.Appointment{}, apperr.System(err)
	}
	a.Status = model.StatusPickupRequested
	a.PickupRequested = true
	a.PickupRequestTime = &at
	a.PickupUrgency = urgency

	body := "The therapists are ready to be picked up."
	if urgency == model.UrgencyUrgent {
		body = "URGENT: the therapists need to be picked up as soon as possible."
	}
	if err := e.notify(ctx, tx, a, "pickup_requested", "Pickup requested", body, a.OperatorID); err != nil {
		return model.Appointment{}, err
	}

	if err := e.commit(ctx, tx); err != nil {
		return model.Appointment{}, err
	}
	return a, nil
}

// AssignPickupDriver is the operator dispatching the return leg. The driver
// comes off the head of the pool; the outbound driver has long since been
// released and may or may not be the one who comes back.
func (e *Engine) AssignPickupDriver(ctx context.Context, actor model.Actor, appointmentID string) (model.Appointment, error) {
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
	if !model.CanTransition(a.Status, model.StatusDriverAssignedPickup) {
		return model.Appointment{}, apperr.Validation("illegal_transition", "status",
			"a pickup driver can only be assigned after a pickup request")
	}

	driver, err := e.allocator.Allocate(ctx, tx)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := e.appointments.AssignDriver(ctx, tx, a.ID, driver.ID); err != nil {
		return model.Appointment{}, apperr.System(err)
	}
	a.DriverID = driver.ID
	if err := e.advance(ctx, tx, &a, model.StatusDriverAssignedPickup, ""); err != nil {
		return model.Appointment{}, err
	}

	if err := e.notify(ctx, tx, a, "pickup_assigned",
		"Pickup assigned", "You have been assigned a pickup trip.",
		driver.ID); err != nil {
		return model.Appointment{}, err
	}

	if err := e.commit(ctx, tx); err != nil {
		return model.Appointment{}, err
	}
	return a, nil
}

// StartReturnJourney is the pickup driver departing with the group on board.
func (e *Engine) StartReturnJourney(ctx context.Context, actor model.Actor, appointmentID string) (model.Appointment, error) {
	return e.driverStep(ctx, actor, appointmentID, model.StatusReturnJourney, "",
		"return_journey_started", "Return journey started", "The driver is bringing the therapists back.")
}

// CompleteReturnJourney closes the appointment: the group is home, the driver
// re-enters the pool, and the record reaches its terminal state.
func (e *Engine) CompleteReturnJourney(ctx context.Context, actor model.Actor, appointmentID string) (model.Appointment, error) {
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
	if err := e.advance(ctx, tx, &a, model.StatusTransportCompleted, "return_journey_completed_at"); err != nil {
		return model.Appointment{}, err
	}
	if err := e.allocator.Release(ctx, tx, a.DriverID); err != nil {
		return model.Appointment{}, err
	}

	if err := e.notify(ctx, tx, a, "transport_completed",
		"Trip completed", "The therapists are home; the appointment is closed.",
		a.OperatorID); err != nil {
		return model.Appointment{}, err
	}

	if err := e.commit(ctx, tx); err != nil {
		return model.Appointment{}, err
	}
	return a, nil
}

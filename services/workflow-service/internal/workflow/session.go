package workflow

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/santaihub/santai-server/services/workflow-service/internal/apperr"
	"github.com/santaihub/santai-server/services/workflow-service/internal/model"
)

// StartSession is a group therapist beginning the massage. Transported
// appointments must have completed drop-off first.
func (e *Engine) StartSession(ctx context.Context, actor model.Actor, appointmentID string) (model.Appointment, error) {
	return e.therapistStep(ctx, actor, appointmentID,
		func(ctx context.Context, tx pgx.Tx, a *model.Appointment) error {
			if a.RequiresCar && a.Status == model.StatusInProgress {
				return apperr.Conflict("drop_off_required", "status",
					"the session cannot start before the therapists are dropped off")
			}
			return e.advance(ctx, tx, a, model.StatusSessionInProgress, "session_started_at")
		},
		"session_started", "Session started", "The massage session has begun.")
}

// RequestPayment is a group therapist asking the client to settle up.
func (e *Engine) RequestPayment(ctx context.Context, actor model.Actor, appointmentID string) (model.Appointment, error) {
	return e.therapistStep(ctx, actor, appointmentID,
		func(ctx context.Context, tx pgx.Tx, a *model.Appointment) error {
			return e.advance(ctx, tx, a, model.StatusAwaitingPayment, "payment_initiated_at")
		},
		"payment_requested", "Payment requested", "The session is done and payment has been requested.")
}

// VerifyPayment is the operator acknowledging that the payment arrived.
func (e *Engine) VerifyPayment(ctx context.Context, actor model.Actor, appointmentID string) (model.Appointment, error) {
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
	if err := e.advance(ctx, tx, &a, model.StatusPaymentVerified, ""); err != nil {
		return model.Appointment{}, err
	}

	recipients, err := e.stageRecipients(ctx, tx, a, false)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := e.notify(ctx, tx, a, "payment_verified",
		"Payment verified", "The operator verified the payment.",
		recipients...); err != nil {
		return model.Appointment{}, err
	}

	if err := e.commit(ctx, tx); err != nil {
		return model.Appointment{}, err
	}
	return a, nil
}

// CompleteSession is a group therapist wrapping up after the payment cleared.
func (e *Engine) CompleteSession(ctx context.Context, actor model.Actor, appointmentID string) (model.Appointment, error) {
	return e.therapistStep(ctx, actor, appointmentID,
		func(ctx context.Context, tx pgx.Tx, a *model.Appointment) error {
			return e.advance(ctx, tx, a, model.StatusCompleted, "")
		},
		"session_completed", "Session completed", "The session has been completed.")
}

// therapistStep is the shared shape of group-therapist operations: lock,
// membership check, the step itself, notify the operator.
func (e *Engine) therapistStep(ctx context.Context, actor model.Actor, appointmentID string, step func(context.Context, pgx.Tx, *model.Appointment) error, kind, title, body string) (model.Appointment, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a, err := e.getForUpdate(ctx, tx, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := e.requireGroupTherapist(ctx, tx, a, actor); err != nil {
		return model.Appointment{}, err
	}
	if err := step(ctx, tx, &a); err != nil {
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

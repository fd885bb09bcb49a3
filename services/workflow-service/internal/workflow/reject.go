package workflow

import (
	"context"
	"strings"

	"github.com/santaihub/santai-server/services/workflow-service/internal/apperr"
	"github.com/santaihub/santai-server/services/workflow-service/internal/model"
)

// Reject is a group therapist declining a pending appointment. The reason is
// mandatory; a rejection without one is useless to the reviewing operator.
func (e *Engine) Reject(ctx context.Context, actor model.Actor, appointmentID, reason string) (model.Appointment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return model.Appointment{}, apperr.Validation("blank_reason", "reason", "a rejection reason is required")
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
	if !model.CanTransition(a.Status, model.StatusRejected) {
		return model.Appointment{}, apperr.Validation("illegal_transition", "status",
			"only a pending appointment can be rejected")
	}
	if err := e.requireGroupTherapist(ctx, tx, a, actor); err != nil {
		return model.Appointment{}, err
	}

	at, err := e.appointments.SetRejected(ctx, tx, a.ID, reason, actor.ID)
	if err != nil {
		return model.Appointment{}, apperr.System(err)
	}
	a.Status = model.StatusRejected
	a.RejectionReason = reason
	a.RejectedBy = actor.ID
	a.RejectedAt = &at

	if err := e.notify(ctx, tx, a, "appointment_rejected",
		"Appointment rejected", "A therapist rejected the appointment: "+reason,
		a.OperatorID); err != nil {
		return model.Appointment{}, err
	}

	if err := e.commit(ctx, tx); err != nil {
		return model.Appointment{}, err
	}
	return a, nil
}

// ReviewRejection records the operator's verdict on a rejected appointment.
// Approving re-opens the appointment as pending with a fresh response
// deadline; denying keeps it cancelled.
func (e *Engine) ReviewRejection(ctx context.Context, actor model.Actor, appointmentID string, outcome model.ReviewOutcome, note string) (model.Appointment, error) {
	if err := requireRole(actor, model.RoleOperator); err != nil {
		return model.Appointment{}, err
	}
	if !outcome.Valid() {
		return model.Appointment{}, apperr.Validation("invalid_outcome", "outcome", "outcome must be approved or denied")
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
	if a.Status != model.StatusRejected {
		return model.Appointment{}, apperr.Validation("illegal_transition", "status",
			"only a rejected appointment can be reviewed")
	}

	review := model.RejectionReview{
		AppointmentID: a.ID,
		ReviewedBy:    actor.ID,
		Outcome:       outcome,
		Note:          note,
	}
	if _, _, err := e.reviews.Insert(ctx, tx, &review); err != nil {
		return model.Appointment{}, apperr.System(err)
	}

	if outcome == model.ReviewApproved {
		deadline := e.now().Add(e.responseTTL)
		if err := e.appointments.ReopenFromRejection(ctx, tx, a.ID, deadline); err != nil {
			return model.Appointment{}, apperr.System(err)
		}
		a.Status = model.StatusPending
		a.RejectionReason = ""
		a.RejectedBy = ""
		a.RejectedAt = nil
		a.ResponseDeadline = deadline

		recipients, err := e.stageRecipients(ctx, tx, a, false)
		if err != nil {
			return model.Appointment{}, err
		}
		if err := e.notify(ctx, tx, a, "appointment_reopened",
			"Appointment re-opened", "The operator re-opened the appointment; please confirm.",
			recipients...); err != nil {
			return model.Appointment{}, err
		}
	}

	if err := e.commit(ctx, tx); err != nil {
		return model.Appointment{}, err
	}
	return a, nil
}

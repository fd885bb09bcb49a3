// Package workflow implements the appointment state machine: creation,
// confirmation aggregation, the transport and session legs, rejection review,
// and the availability calendar behind it all. Every mutation runs in a
// single transaction that locks the appointment row, re-checks the transition
// against the current status, and queues its notifications through the
// outbox, so concurrent actors can never double-apply a step.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/santaihub/santai-server/libs/db"
	"github.com/santaihub/santai-server/services/workflow-service/internal/apperr"
	"github.com/santaihub/santai-server/services/workflow-service/internal/dispatch"
	"github.com/santaihub/santai-server/services/workflow-service/internal/model"
	"github.com/santaihub/santai-server/services/workflow-service/internal/outbox"
	"github.com/santaihub/santai-server/services/workflow-service/internal/storage"
)

const defaultResponseTTL = 30 * time.Minute

type Engine struct {
	appointments  *storage.AppointmentRepository
	availability  *storage.AvailabilityRepository
	confirmations *storage.ConfirmationRepository
	users         *storage.UserRepository
	reviews       *storage.ReviewRepository
	catalog       *storage.CatalogRepository
	allocator     *dispatch.Allocator
	outbox        *outbox.Repository
	logger        *slog.Logger
	now           func() time.Time
	responseTTL   time.Duration
}

type Config struct {
	// ResponseTTL is how long a new or re-opened appointment stays pending
	// before the sweeper cancels it.
	ResponseTTL time.Duration
}

func NewEngine(pool *db.Pool, logger *slog.Logger, cfg Config) *Engine {
	if cfg.ResponseTTL <= 0 {
		cfg.ResponseTTL = defaultResponseTTL
	}
	users := storage.NewUserRepository(pool)
	return &Engine{
		appointments:  storage.NewAppointmentRepository(pool),
		availability:  storage.NewAvailabilityRepository(pool),
		confirmations: storage.NewConfirmationRepository(pool),
		users:         users,
		reviews:       storage.NewReviewRepository(pool),
		catalog:       storage.NewCatalogRepository(pool),
		allocator:     dispatch.NewAllocator(users),
		outbox:        outbox.NewRepository(pool),
		logger:        logger,
		now:           time.Now,
		responseTTL:   cfg.ResponseTTL,
	}
}

func (e *Engine) begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := e.appointments.Begin(ctx)
	if err != nil {
		return nil, apperr.System(err)
	}
	return tx, nil
}

func (e *Engine) commit(ctx context.Context, tx pgx.Tx) error {
	if err := tx.Commit(ctx); err != nil {
		return apperr.System(err)
	}
	return nil
}

func (e *Engine) getForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error) {
	a, err := e.appointments.GetForUpdate(ctx, tx, id)
	if storage.IsNotFound(err) {
		return model.Appointment{}, apperr.NotFound("appointment_not_found", "appointment does not exist")
	}
	if err != nil {
		return model.Appointment{}, apperr.System(err)
	}
	return a, nil
}

// advance validates and applies a status change on an already-locked row.
func (e *Engine) advance(ctx context.Context, tx pgx.Tx, a *model.Appointment, to model.Status, stampColumn string) error {
	if !model.CanTransition(a.Status, to) {
		return apperr.Validation("illegal_transition", "status",
			fmt.Sprintf("cannot move a %s appointment to %s", a.Status, to))
	}
	at, err := e.appointments.ApplyTransition(ctx, tx, a.ID, to, stampColumn)
	if err != nil {
		return apperr.System(err)
	}
	a.Status = to
	a.UpdatedAt = at
	return nil
}

// notify queues a push through the outbox in the caller's transaction.
func (e *Engine) notify(ctx context.Context, tx pgx.Tx, a model.Appointment, kind, title, body string, recipients ...string) error {
	if len(recipients) == 0 {
		return nil
	}
	evt, err := outbox.NotificationRequested(outbox.NotificationPayload{
		AppointmentID: a.ID,
		Kind:          kind,
		Recipients:    recipients,
		Title:         title,
		Body:          body,
	})
	if err != nil {
		return apperr.System(err)
	}
	if err := e.outbox.Insert(ctx, tx, evt); err != nil {
		return apperr.System(err)
	}
	return nil
}

// stageRecipients is everyone who should hear about a stage change: the
// whole therapist group plus, when asked, the assigned driver.
func (e *Engine) stageRecipients(ctx context.Context, tx pgx.Tx, a model.Appointment, includeDriver bool) ([]string, error) {
	ids, err := e.appointments.TherapistIDsTx(ctx, tx, a.ID)
	if err != nil {
		return nil, apperr.System(err)
	}
	if includeDriver && a.DriverID != "" {
		ids = append(ids, a.DriverID)
	}
	return ids, nil
}

func requireRole(actor model.Actor, role model.Role) error {
	if actor.Role != role {
		return apperr.Authorization(string(role)+"_required",
			"operation requires the "+string(role)+" role")
	}
	return nil
}

func requireAssignedDriver(a model.Appointment, actor model.Actor) error {
	if actor.Role != model.RoleDriver || a.DriverID == "" || actor.ID != a.DriverID {
		return apperr.Authorization("not_assigned_driver", "only the assigned driver may perform this step")
	}
	return nil
}

// requireGroupTherapist checks that the actor is one of the appointment's
// therapists. Needs the transaction because membership lives in its own table.
func (e *Engine) requireGroupTherapist(ctx context.Context, tx pgx.Tx, a model.Appointment, actor model.Actor) error {
	if actor.Role != model.RoleTherapist {
		return apperr.Authorization("not_assigned_therapist", "only an assigned therapist may perform this step")
	}
	ids, err := e.appointments.TherapistIDsTx(ctx, tx, a.ID)
	if err != nil {
		return apperr.System(err)
	}
	for _, id := range ids {
		if id == actor.ID {
			return nil
		}
	}
	return apperr.Authorization("not_assigned_therapist", "only an assigned therapist may perform this step")
}

func requireCar(a model.Appointment) error {
	if !a.RequiresCar {
		return apperr.Conflict("car_not_required", "", "appointment has no transport leg")
	}
	return nil
}

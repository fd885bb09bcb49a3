package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/santaihub/santai-server/libs/db"
	"github.com/santaihub/santai-server/services/workflow-service/internal/interval"
	"github.com/santaihub/santai-server/services/workflow-service/internal/model"
)

type AppointmentRepository struct {
	pool *db.Pool
}

func NewAppointmentRepository(pool *db.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

func (r *AppointmentRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const appointmentColumns = `
	id, client_id, service_id, operator_id::text, therapist_id::text,
	COALESCE(driver_id::text, ''),
	date, start_minute, end_minute, status, group_size, requires_car,
	group_confirmation_complete,
	therapist_confirmed_at, driver_confirmed_at, journey_started_at, arrived_at,
	dropped_off_at, session_started_at, payment_initiated_at, return_journey_completed_at,
	pickup_requested, pickup_request_time, pickup_urgency,
	response_deadline, auto_cancelled_at,
	COALESCE(rejection_reason, ''), COALESCE(rejected_by::text, ''), rejected_at,
	created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var startMin, endMin int
	err := row.Scan(
		&a.ID, &a.ClientID, &a.ServiceID, &a.OperatorID, &a.TherapistID,
		&a.DriverID,
		&a.Date, &startMin, &endMin, &a.Status, &a.GroupSize, &a.RequiresCar,
		&a.GroupConfirmationComplete,
		&a.TherapistConfirmedAt, &a.DriverConfirmedAt, &a.JourneyStartedAt, &a.ArrivedAt,
		&a.DroppedOffAt, &a.SessionStartedAt, &a.PaymentInitiatedAt, &a.ReturnJourneyCompletedAt,
		&a.PickupRequested, &a.PickupRequestTime, &a.PickupUrgency,
		&a.ResponseDeadline, &a.AutoCancelledAt,
		&a.RejectionReason, &a.RejectedBy, &a.RejectedAt,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	a.StartTime = interval.TimeOfDay(startMin)
	a.EndTime = interval.TimeOfDay(endMin)
	return a, nil
}

func (r *AppointmentRepository) Create(ctx context.Context, tx pgx.Tx, a *model.Appointment) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO appointments
			(client_id, service_id, operator_id, therapist_id, date,
			 start_minute, end_minute, status, group_size, requires_car, response_deadline)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, a.ClientID, a.ServiceID, a.OperatorID, a.TherapistID, a.Date,
		int(a.StartTime), int(a.EndTime), a.Status, a.GroupSize, a.RequiresCar,
		a.ResponseDeadline).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *AppointmentRepository) AddTherapist(ctx context.Context, tx pgx.Tx, appointmentID, therapistID string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO appointment_therapists (appointment_id, therapist_id)
		VALUES ($1, $2)
	`, appointmentID, therapistID)
	return err
}

func (r *AppointmentRepository) TherapistIDs(ctx context.Context, appointmentID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, therapistIDsQuery, appointmentID)
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

func (r *AppointmentRepository) TherapistIDsTx(ctx context.Context, tx pgx.Tx, appointmentID string) ([]string, error) {
	rows, err := tx.Query(ctx, therapistIDsQuery, appointmentID)
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

const therapistIDsQuery = `
	SELECT therapist_id::text
	FROM appointment_therapists
	WHERE appointment_id = $1
	ORDER BY therapist_id`

func collectIDs(rows pgx.Rows) ([]string, error) {
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	return scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
}

func (r *AppointmentRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error) {
	return scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
}

// stampColumns is the closed set of per-stage timestamp columns a transition
// may set alongside the status change.
var stampColumns = map[string]struct{}{
	"therapist_confirmed_at":      {},
	"driver_confirmed_at":         {},
	"journey_started_at":          {},
	"arrived_at":                  {},
	"dropped_off_at":              {},
	"session_started_at":          {},
	"payment_initiated_at":        {},
	"return_journey_completed_at": {},
}

// ApplyTransition moves the row to the next status and stamps the stage
// column, if any. The row must already be locked by GetForUpdate in the same
// transaction.
func (r *AppointmentRepository) ApplyTransition(ctx context.Context, tx pgx.Tx, id string, to model.Status, stampColumn string) (time.Time, error) {
	var at time.Time
	if stampColumn == "" {
		err := tx.QueryRow(ctx, `
			UPDATE appointments
			SET status = $2, updated_at = now()
			WHERE id = $1
			RETURNING updated_at
		`, id, to).Scan(&at)
		return at, err
	}
	if _, ok := stampColumns[stampColumn]; !ok {
		return time.Time{}, fmt.Errorf("unknown stamp column %q", stampColumn)
	}
	err := tx.QueryRow(ctx, fmt.Sprintf(`
		UPDATE appointments
		SET status = $2, %s = now(), updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, stampColumn), id, to).Scan(&at)
	return at, err
}

func (r *AppointmentRepository) SetGroupConfirmed(ctx context.Context, tx pgx.Tx, id string) error {
	_, err := tx.Exec(ctx, `
		UPDATE appointments
		SET group_confirmation_complete = TRUE, updated_at = now()
		WHERE id = $1
	`, id)
	return err
}

func (r *AppointmentRepository) AssignDriver(ctx context.Context, tx pgx.Tx, id, driverID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE appointments
		SET driver_id = $2, updated_at = now()
		WHERE id = $1
	`, id, driverID)
	return err
}

func (r *AppointmentRepository) SetRejected(ctx context.Context, tx pgx.Tx, id, reason, rejectedBy string) (time.Time, error) {
	var at time.Time
	err := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'rejected',
			rejection_reason = $2,
			rejected_by = $3,
			rejected_at = now(),
			updated_at = now()
		WHERE id = $1
		RETURNING rejected_at
	`, id, reason, rejectedBy).Scan(&at)
	return at, err
}

func (r *AppointmentRepository) ReopenFromRejection(ctx context.Context, tx pgx.Tx, id string, newDeadline time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'pending',
			rejection_reason = '',
			rejected_by = NULL,
			rejected_at = NULL,
			response_deadline = $2,
			updated_at = now()
		WHERE id = $1
	`, id, newDeadline)
	return err
}

func (r *AppointmentRepository) SetAutoCancelled(ctx context.Context, tx pgx.Tx, id string) (time.Time, error) {
	var at time.Time
	err := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'auto_cancelled',
			auto_cancelled_at = now(),
			updated_at = now()
		WHERE id = $1
		RETURNING auto_cancelled_at
	`, id).Scan(&at)
	return at, err
}

func (r *AppointmentRepository) SetPickupRequested(ctx context.Context, tx pgx.Tx, id string, urgency model.PickupUrgency) (time.Time, error) {
	var at time.Time
	err := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'pickup_requested',
			pickup_requested = TRUE,
			pickup_request_time = now(),
			pickup_urgency = $2,
			updated_at = now()
		WHERE id = $1
		RETURNING pickup_request_time
	`, id, urgency).Scan(&at)
	return at, err
}

// ListForTherapistAround loads the therapist's non-cancelled appointments for
// date and its two neighbours, so the caller can run cross-midnight overlap
// checks against absolute spans.
func (r *AppointmentRepository) ListForTherapistAround(ctx context.Context, tx pgx.Tx, therapistID string, date time.Time) ([]model.Appointment, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id IN (
			SELECT appointment_id FROM appointment_therapists WHERE therapist_id = $1
		)
		AND date BETWEEN $2::date - 1 AND $2::date + 1
		AND status NOT IN ('rejected', 'auto_cancelled')
		ORDER BY date, start_minute
	`, therapistID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	return appts, rows.Err()
}

func (r *AppointmentRepository) List(ctx context.Context, status model.Status, date *time.Time, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE ($1 = '' OR status = $1)
			AND ($2::date IS NULL OR date = $2)
		ORDER BY date DESC, start_minute DESC
		LIMIT $3
	`, string(status), date, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	return appts, rows.Err()
}

// ListAutoCancelCandidates returns ids of pending appointments whose response
// deadline has passed. Candidates are re-checked row by row under a lock
// before cancellation, so a stale entry here is harmless.
func (r *AppointmentRepository) ListAutoCancelCandidates(ctx context.Context, now time.Time, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id
		FROM appointments
		WHERE status = 'pending' AND response_deadline <= $1
		ORDER BY response_deadline ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetPendingExpiredForUpdate locks the row iff it is still pending and past
// its deadline. Returns found=false both when the row is gone and when a
// concurrent worker holds the lock, making the sweep idempotent.
func (r *AppointmentRepository) GetPendingExpiredForUpdate(ctx context.Context, tx pgx.Tx, id string, now time.Time) (model.Appointment, bool, error) {
	a, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND status = 'pending' AND response_deadline <= $2
		FOR UPDATE SKIP LOCKED
	`, id, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, false, nil
	}
	if err != nil {
		return model.Appointment{}, false, err
	}
	return a, true, nil
}

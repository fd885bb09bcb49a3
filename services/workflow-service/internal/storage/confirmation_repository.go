package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/santaihub/santai-server/libs/db"
	"github.com/santaihub/santai-server/services/workflow-service/internal/model"
)

type ConfirmationRepository struct {
	pool *db.Pool
}

func NewConfirmationRepository(pool *db.Pool) *ConfirmationRepository {
	return &ConfirmationRepository{pool: pool}
}

// Upsert records a therapist's confirmation. Returns false when the therapist
// had already confirmed; a repeat confirm is a no-op, never an error.
func (r *ConfirmationRepository) Upsert(ctx context.Context, tx pgx.Tx, appointmentID, therapistID string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO therapist_confirmations (appointment_id, therapist_id)
		VALUES ($1, $2)
		ON CONFLICT (appointment_id, therapist_id) DO NOTHING
	`, appointmentID, therapistID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ConfirmationRepository) CountConfirmed(ctx context.Context, tx pgx.Tx, appointmentID string) (int, error) {
	var n int
	err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM therapist_confirmations WHERE appointment_id = $1
	`, appointmentID).Scan(&n)
	return n, err
}

func (r *ConfirmationRepository) ConfirmedIDs(ctx context.Context, tx pgx.Tx, appointmentID string) (map[string]struct{}, error) {
	rows, err := tx.Query(ctx, `
		SELECT therapist_id::text FROM therapist_confirmations WHERE appointment_id = $1
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

func (r *ConfirmationRepository) List(ctx context.Context, appointmentID string) ([]model.TherapistConfirmation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id::text, therapist_id::text, confirmed_at
		FROM therapist_confirmations
		WHERE appointment_id = $1
		ORDER BY confirmed_at
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var confs []model.TherapistConfirmation
	for rows.Next() {
		var c model.TherapistConfirmation
		if err := rows.Scan(&c.ID, &c.AppointmentID, &c.TherapistID, &c.ConfirmedAt); err != nil {
			return nil, err
		}
		confs = append(confs, c)
	}
	return confs, rows.Err()
}

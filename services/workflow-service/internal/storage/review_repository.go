package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/santaihub/santai-server/libs/db"
	"github.com/santaihub/santai-server/services/workflow-service/internal/model"
)

type ReviewRepository struct {
	pool *db.Pool
}

func NewReviewRepository(pool *db.Pool) *ReviewRepository {
	return &ReviewRepository{pool: pool}
}

func (r *ReviewRepository) Insert(ctx context.Context, tx pgx.Tx, rev *model.RejectionReview) (int64, time.Time, error) {
	var id int64
	var at time.Time
	err := tx.QueryRow(ctx, `
		INSERT INTO rejection_reviews (appointment_id, reviewed_by, outcome, note)
		VALUES ($1, $2, $3, $4)
		RETURNING id, reviewed_at
	`, rev.AppointmentID, rev.ReviewedBy, rev.Outcome, rev.Note).Scan(&id, &at)
	return id, at, err
}

func (r *ReviewRepository) ListForAppointment(ctx context.Context, appointmentID string) ([]model.RejectionReview, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id::text, reviewed_by::text, outcome, COALESCE(note, ''), reviewed_at
		FROM rejection_reviews
		WHERE appointment_id = $1
		ORDER BY reviewed_at
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reviews []model.RejectionReview
	for rows.Next() {
		var rev model.RejectionReview
		if err := rows.Scan(&rev.ID, &rev.AppointmentID, &rev.ReviewedBy, &rev.Outcome, &rev.Note, &rev.ReviewedAt); err != nil {
			return nil, err
		}
		reviews = append(reviews, rev)
	}
	return reviews, rows.Err()
}

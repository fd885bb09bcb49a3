package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/santaihub/santai-server/libs/db"
	"github.com/santaihub/santai-server/services/workflow-service/internal/interval"
	"github.com/santaihub/santai-server/services/workflow-service/internal/model"
)

type AvailabilityRepository struct {
	pool *db.Pool
}

func NewAvailabilityRepository(pool *db.Pool) *AvailabilityRepository {
	return &AvailabilityRepository{pool: pool}
}

func (r *AvailabilityRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// LockUser serializes availability writes per user. Concurrent window inserts
// for the same user queue on the user row, so the duplicate and overlap
// checks always see the latest committed state.
func (r *AvailabilityRepository) LockUser(ctx context.Context, tx pgx.Tx, userID string) error {
	var id string
	return tx.QueryRow(ctx, `
		SELECT id::text FROM users WHERE id = $1 FOR UPDATE
	`, userID).Scan(&id)
}

const windowColumns = `
	id, user_id::text, date, start_minute, end_minute, is_available, created_at`

func scanWindow(row pgx.Row) (model.AvailabilityWindow, error) {
	var w model.AvailabilityWindow
	var startMin, endMin int
	err := row.Scan(&w.ID, &w.UserID, &w.Date, &startMin, &endMin, &w.IsAvailable, &w.CreatedAt)
	if err != nil {
		return model.AvailabilityWindow{}, err
	}
	w.StartTime = interval.TimeOfDay(startMin)
	w.EndTime = interval.TimeOfDay(endMin)
	return w, nil
}

func (r *AvailabilityRepository) Insert(ctx context.Context, tx pgx.Tx, w *model.AvailabilityWindow) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO availability_windows (user_id, date, start_minute, end_minute, is_available)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, w.UserID, w.Date, int(w.StartTime), int(w.EndTime), w.IsAvailable).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// ListForUserAround loads the user's windows for date and its two neighbours,
// enough to test duplicates and cross-midnight overlap against a window on
// date.
func (r *AvailabilityRepository) ListForUserAround(ctx context.Context, tx pgx.Tx, userID string, date time.Time) ([]model.AvailabilityWindow, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+windowColumns+`
		FROM availability_windows
		WHERE user_id = $1 AND date BETWEEN $2::date - 1 AND $2::date + 1
		ORDER BY date, start_minute
	`, userID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWindows(rows)
}

func (r *AvailabilityRepository) List(ctx context.Context, userID string, from, to time.Time) ([]model.AvailabilityWindow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+windowColumns+`
		FROM availability_windows
		WHERE user_id = $1 AND date BETWEEN $2 AND $3
		ORDER BY date, start_minute
	`, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWindows(rows)
}

// ListCoveringCandidates loads the windows that could contain an interval
// starting on date: windows on the date itself plus the previous day's, whose
// cross-midnight tails spill into it.
func (r *AvailabilityRepository) ListCoveringCandidates(ctx context.Context, tx pgx.Tx, userID string, date time.Time) ([]model.AvailabilityWindow, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+windowColumns+`
		FROM availability_windows
		WHERE user_id = $1
			AND is_available
			AND date BETWEEN $2::date - 1 AND $2::date
		ORDER BY date, start_minute
	`, userID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWindows(rows)
}

func (r *AvailabilityRepository) Delete(ctx context.Context, userID, windowID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM availability_windows WHERE id = $1 AND user_id = $2
	`, windowID, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func collectWindows(rows pgx.Rows) ([]model.AvailabilityWindow, error) {
	var windows []model.AvailabilityWindow
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	return windows, rows.Err()
}

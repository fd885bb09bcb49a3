package storage

import (
	"context"
	"encoding/json"

	"github.com/santaihub/santai-server/libs/db"
)

type Notification struct {
	AppointmentID string
	UserID        string
	Kind          string
	Title         string
	Body          string
	Payload       map[string]string
	Status        string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO notifications (appointment_id, user_id, kind, title, body, payload, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, n.AppointmentID, n.UserID, n.Kind, n.Title, n.Body, payload, n.Status)
	return err
}

// RegisterDevice upserts a user's Expo push token. One row per token; a token
// that moves to another user follows it.
func (r *Repository) RegisterDevice(ctx context.Context, userID, token, platform string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO devices (user_id, token, platform)
		VALUES ($1, $2, $3)
		ON CONFLICT (token) DO UPDATE
		SET user_id = EXCLUDED.user_id, platform = EXCLUDED.platform, updated_at = now()
	`, userID, token, platform)
	return err
}

func (r *Repository) DeleteDevice(ctx context.Context, userID, token string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM devices WHERE user_id = $1 AND token = $2
	`, userID, token)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) TokensForUsers(ctx context.Context, userIDs []string) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT token FROM devices WHERE user_id = ANY($1)
	`, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

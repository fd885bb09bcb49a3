package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/santaihub/santai-server/libs/db"
	"github.com/santaihub/santai-server/services/workflow-service/internal/model"
)

type UserRepository struct {
	pool *db.Pool
}

func NewUserRepository(pool *db.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `
	id::text, full_name, COALESCE(phone, ''), role, is_active, last_available_at`

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.FullName, &u.Phone, &u.Role, &u.IsActive, &u.LastAvailableAt)
	if err != nil {
		return model.User{}, err
	}
	return u, nil
}

func (r *UserRepository) Get(ctx context.Context, id string) (model.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users WHERE id = $1
	`, id))
}

func (r *UserRepository) GetTx(ctx context.Context, tx pgx.Tx, id string) (model.User, error) {
	return scanUser(tx.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users WHERE id = $1
	`, id))
}

// NextAvailableDriverForUpdate locks and returns the driver who has been idle
// the longest. No SKIP LOCKED here: concurrent allocations must queue on the
// head of the line, or two callers would each take a different driver and
// break first-in-first-out ordering.
func (r *UserRepository) NextAvailableDriverForUpdate(ctx context.Context, tx pgx.Tx) (model.User, bool, error) {
	u, err := scanUser(tx.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE role = 'driver' AND is_active AND last_available_at IS NOT NULL
		ORDER BY last_available_at ASC
		LIMIT 1
		FOR UPDATE
	`))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, false, nil
	}
	if err != nil {
		return model.User{}, false, err
	}
	return u, true, nil
}

// MarkEngaged removes the driver from the pool until Release is called.
func (r *UserRepository) MarkEngaged(ctx context.Context, tx pgx.Tx, id string) error {
	_, err := tx.Exec(ctx, `
		UPDATE users SET last_available_at = NULL WHERE id = $1
	`, id)
	return err
}

// Release re-enters the driver at the back of the pool.
func (r *UserRepository) Release(ctx context.Context, tx pgx.Tx, id string) error {
	_, err := tx.Exec(ctx, `
		UPDATE users SET last_available_at = now() WHERE id = $1
	`, id)
	return err
}

func (r *UserRepository) SetActive(ctx context.Context, tx pgx.Tx, id string, active bool) error {
	_, err := tx.Exec(ctx, `
		UPDATE users SET is_active = $2 WHERE id = $1
	`, id, active)
	return err
}

// QueuePosition is the driver's 1-based place in the pool, or found=false if
// the driver is engaged or inactive.
func (r *UserRepository) QueuePosition(ctx context.Context, id string) (int, bool, error) {
	var pos *int
	err := r.pool.QueryRow(ctx, `
		SELECT (
			SELECT COUNT(*) + 1
			FROM users q
			WHERE q.role = 'driver' AND q.is_active AND q.last_available_at IS NOT NULL
				AND q.last_available_at < u.last_available_at
		)
		FROM users u
		WHERE u.id = $1 AND u.role = 'driver' AND u.is_active AND u.last_available_at IS NOT NULL
	`, id).Scan(&pos)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return *pos, true, nil
}

func (r *UserRepository) ListAvailableDrivers(ctx context.Context) ([]model.User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE role = 'driver' AND is_active AND last_available_at IS NOT NULL
		ORDER BY last_available_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

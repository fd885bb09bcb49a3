package storage

import (
	"context"

	"github.com/santaihub/santai-server/libs/db"
	"github.com/santaihub/santai-server/services/workflow-service/internal/model"
)

// CatalogRepository holds the plumbing entities around the workflow core:
// clients and the massage service menu.
type CatalogRepository struct {
	pool *db.Pool
}

func NewCatalogRepository(pool *db.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

func (r *CatalogRepository) CreateClient(ctx context.Context, c *model.Client) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO clients (name, phone, address, notes)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, c.Name, c.Phone, c.Address, c.Notes).Scan(&id)
	return id, err
}

func (r *CatalogRepository) GetClient(ctx context.Context, id string) (model.Client, error) {
	var c model.Client
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, COALESCE(phone, ''), COALESCE(address, ''), COALESCE(notes, ''), created_at
		FROM clients
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.Notes, &c.CreatedAt)
	return c, err
}

func (r *CatalogRepository) ListClients(ctx context.Context, limit int) ([]model.Client, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, COALESCE(phone, ''), COALESCE(address, ''), COALESCE(notes, ''), created_at
		FROM clients
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []model.Client
	for rows.Next() {
		var c model.Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.Notes, &c.CreatedAt); err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (r *CatalogRepository) CreateService(ctx context.Context, s *model.Service) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO services (name, duration_minutes, price, description)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, s.Name, s.DurationMinutes, s.Price, s.Description).Scan(&id)
	return id, err
}

func (r *CatalogRepository) GetService(ctx context.Context, id string) (model.Service, error) {
	var s model.Service
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, duration_minutes, price::text, COALESCE(description, ''), created_at
		FROM services
		WHERE id = $1
	`, id).Scan(&s.ID, &s.Name, &s.DurationMinutes, &s.Price, &s.Description, &s.CreatedAt)
	return s, err
}

func (r *CatalogRepository) ListServices(ctx context.Context) ([]model.Service, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, duration_minutes, price::text, COALESCE(description, ''), created_at
		FROM services
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []model.Service
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.Name, &s.DurationMinutes, &s.Price, &s.Description, &s.CreatedAt); err != nil {
			return nil, err
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

// Package dispatch implements the driver pool: a strict first-in-first-out
// queue ordered by how long each driver has been idle. A driver leaves the
// queue when allocated to an appointment and re-enters at the back when the
// trip ends.
package dispatch

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/santaihub/santai-server/services/workflow-service/internal/apperr"
	"github.com/santaihub/santai-server/services/workflow-service/internal/model"
	"github.com/santaihub/santai-server/services/workflow-service/internal/storage"
)

type Allocator struct {
	users *storage.UserRepository
}

func NewAllocator(users *storage.UserRepository) *Allocator {
	return &Allocator{users: users}
}

// Allocate takes the driver at the head of the queue and marks it engaged.
// Must run inside the same transaction as the appointment update so a failed
// assignment returns the driver to the pool.
func (a *Allocator) Allocate(ctx context.Context, tx pgx.Tx) (model.User, error) {
	u, ok, err := a.users.NextAvailableDriverForUpdate(ctx, tx)
	if err != nil {
		return model.User{}, apperr.System(err)
	}
	if !ok {
		return model.User{}, apperr.Conflict("no_driver_available", "", "no driver is currently available")
	}
	if err := a.users.MarkEngaged(ctx, tx, u.ID); err != nil {
		return model.User{}, apperr.System(err)
	}
	return u, nil
}

// Release puts the driver at the back of the queue.
func (a *Allocator) Release(ctx context.Context, tx pgx.Tx, driverID string) error {
	if err := a.users.Release(ctx, tx, driverID); err != nil {
		return apperr.System(err)
	}
	return nil
}

func (a *Allocator) QueuePosition(ctx context.Context, driverID string) (int, bool, error) {
	return a.users.QueuePosition(ctx, driverID)
}

func (a *Allocator) Queue(ctx context.Context) ([]model.User, error) {
	return a.users.ListAvailableDrivers(ctx)
}

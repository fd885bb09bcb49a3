package workflow

import (
	"context"
	"time"

	"github.com/santaihub/santai-server/services/workflow-service/internal/apperr"
	"github.com/santaihub/santai-server/services/workflow-service/internal/interval"
	"github.com/santaihub/santai-server/services/workflow-service/internal/model"
	"github.com/santaihub/santai-server/services/workflow-service/internal/storage"
)

type CreateAvailabilityInput struct {
	UserID string
	Date   time.Time
	Start  interval.TimeOfDay
	End    interval.TimeOfDay
}

// CreateAvailability opens a window in a user's calendar. Equal start and end
// clocks mean the full 24 hours; an end before the start runs past midnight.
// The user row is locked first so concurrent inserts for the same user
// serialize, then the new window is checked against its date and both
// neighbours for duplicates and overlap.
func (e *Engine) CreateAvailability(ctx context.Context, actor model.Actor, in CreateAvailabilityInput) (model.AvailabilityWindow, error) {
	if err := requireSelfOrOperator(actor, in.UserID); err != nil {
		return model.AvailabilityWindow{}, err
	}
	if in.Date.IsZero() {
		return model.AvailabilityWindow{}, apperr.Validation("missing_field", "date", "date is required")
	}
	if !in.Start.Valid() || !in.End.Valid() {
		return model.AvailabilityWindow{}, apperr.Validation("invalid_interval", "start_time", "clock times must be within 00:00-23:59")
	}

	tx, err := e.availability.Begin(ctx)
	if err != nil {
		return model.AvailabilityWindow{}, apperr.System(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := e.availability.LockUser(ctx, tx, in.UserID); err != nil {
		if storage.IsNotFound(err) {
			return model.AvailabilityWindow{}, apperr.NotFound("user_not_found", "user does not exist")
		}
		return model.AvailabilityWindow{}, apperr.System(err)
	}

	existing, err := e.availability.ListForUserAround(ctx, tx, in.UserID, in.Date)
	if err != nil {
		return model.AvailabilityWindow{}, apperr.System(err)
	}
	span := interval.Normalize(in.Date, in.Start, in.End)
	for _, w := range existing {
		if w.Date.Equal(truncateDate(in.Date)) && w.StartTime == in.Start && w.EndTime == in.End {
			return model.AvailabilityWindow{}, apperr.Conflict("duplicate_window", "", "an identical window already exists")
		}
		if span.Overlaps(w.Span()) {
			return model.AvailabilityWindow{}, apperr.Conflict("overlapping_window", "start_time",
				"window overlaps an existing one")
		}
	}

	w := model.AvailabilityWindow{
		UserID:      in.UserID,
		Date:        in.Date,
		StartTime:   in.Start,
		EndTime:     in.End,
		IsAvailable: true,
	}
	id, err := e.availability.Insert(ctx, tx, &w)
	// The schema carries a unique constraint on (user, date, start, end); a
	// violation here means a writer slipped past the overlap check.
	if storage.IsUniqueViolation(err) {
		return model.AvailabilityWindow{}, apperr.Conflict("duplicate_window", "", "an identical window already exists")
	}
	if err != nil {
		return model.AvailabilityWindow{}, apperr.System(err)
	}
	w.ID = id

	if err := e.commit(ctx, tx); err != nil {
		return model.AvailabilityWindow{}, err
	}
	return w, nil
}

func (e *Engine) ListAvailability(ctx context.Context, actor model.Actor, userID string, from, to time.Time) ([]model.AvailabilityWindow, error) {
	if err := requireSelfOrOperator(actor, userID); err != nil {
		return nil, err
	}
	windows, err := e.availability.List(ctx, userID, from, to)
	if err != nil {
		return nil, apperr.System(err)
	}
	return windows, nil
}

func (e *Engine) DeleteAvailability(ctx context.Context, actor model.Actor, userID, windowID string) error {
	if err := requireSelfOrOperator(actor, userID); err != nil {
		return err
	}
	found, err := e.availability.Delete(ctx, userID, windowID)
	if err != nil {
		return apperr.System(err)
	}
	if !found {
		return apperr.NotFound("window_not_found", "availability window does not exist")
	}
	return nil
}

// requireSelfOrOperator: users manage their own calendars, operators manage
// everyone's.
func requireSelfOrOperator(actor model.Actor, userID string) error {
	if actor.Role == model.RoleOperator || actor.ID == userID {
		return nil
	}
	return apperr.Authorization("not_calendar_owner", "only the calendar owner or an operator may do this")
}

func truncateDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

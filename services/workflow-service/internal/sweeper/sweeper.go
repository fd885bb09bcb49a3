// Package sweeper auto-cancels pending appointments whose response deadline
// passed. Each candidate is finalized in its own transaction under FOR UPDATE
// SKIP LOCKED, so several instances can sweep concurrently and one bad row
// never blocks the rest of the batch.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/santaihub/santai-server/libs/db"
	"github.com/santaihub/santai-server/services/workflow-service/internal/outbox"
	"github.com/santaihub/santai-server/services/workflow-service/internal/storage"
)

type Sweeper struct {
	pool          *db.Pool
	appointments  *storage.AppointmentRepository
	confirmations *storage.ConfirmationRepository
	users         *storage.UserRepository
	outbox        *outbox.Repository
	logger        *slog.Logger
	sweepEvery    time.Duration
	batchSize     int
	now           func() time.Time
}

type Config struct {
	SweepEvery time.Duration
	BatchSize  int
}

func New(pool *db.Pool, logger *slog.Logger, cfg Config) *Sweeper {
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Sweeper{
		pool:          pool,
		appointments:  storage.NewAppointmentRepository(pool),
		confirmations: storage.NewConfirmationRepository(pool),
		users:         storage.NewUserRepository(pool),
		outbox:        outbox.NewRepository(pool),
		logger:        logger,
		sweepEvery:    cfg.SweepEvery,
		batchSize:     cfg.BatchSize,
		now:           time.Now,
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	ids, err := s.appointments.ListAutoCancelCandidates(ctx, s.now(), s.batchSize)
	if err != nil {
		s.logger.Error("listing auto-cancel candidates failed", "err", err)
		return
	}
	for _, id := range ids {
		if err := s.cancelOne(ctx, id); err != nil {
			s.logger.Error("auto-cancel failed", "appointment_id", id, "err", err)
		}
	}
}

// cancelOne re-checks the candidate under a lock before cancelling: the
// appointment may have been confirmed, rejected, or grabbed by another
// instance since the candidate list was read.
func (s *Sweeper) cancelOne(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a, found, err := s.appointments.GetPendingExpiredForUpdate(ctx, tx, id, s.now())
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	if _, err := s.appointments.SetAutoCancelled(ctx, tx, a.ID); err != nil {
		return err
	}

	// Therapists who let the deadline lapse without answering are pulled
	// from rostering until an operator reactivates them.
	therapists, err := s.appointments.TherapistIDsTx(ctx, tx, a.ID)
	if err != nil {
		return err
	}
	confirmed, err := s.confirmations.ConfirmedIDs(ctx, tx, a.ID)
	if err != nil {
		return err
	}
	var unresponsive []string
	for _, tid := range therapists {
		if _, ok := confirmed[tid]; !ok {
			unresponsive = append(unresponsive, tid)
		}
	}
	for _, tid := range unresponsive {
		if err := s.users.SetActive(ctx, tx, tid, false); err != nil {
			return err
		}
	}

	evt, err := outbox.NotificationRequested(outbox.NotificationPayload{
		AppointmentID: a.ID,
		Kind:          "auto_cancelled",
		Recipients:    append([]string{a.OperatorID}, therapists...),
		Title:         "Appointment auto-cancelled",
		Body:          "The appointment was cancelled because not all therapists confirmed in time.",
	})
	if err != nil {
		return err
	}
	if err := s.outbox.Insert(ctx, tx, evt); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.logger.Info("appointment auto-cancelled",
		"appointment_id", a.ID,
		"deactivated_therapists", len(unresponsive))
	return nil
}

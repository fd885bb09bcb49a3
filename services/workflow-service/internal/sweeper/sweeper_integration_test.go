package sweeper

// End-to-end sweep tests against a real database. Skipped unless
// TEST_DATABASE_URL points at a Postgres with the migrations applied.

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/santaihub/santai-server/libs/db"
	"github.com/santaihub/santai-server/services/workflow-service/internal/interval"
	"github.com/santaihub/santai-server/services/workflow-service/internal/model"
	"github.com/santaihub/santai-server/services/workflow-service/internal/workflow"
)

func newTestPool(t *testing.T) *db.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	pool, err := db.Open(context.Background(), url, db.Options{MaxConns: 4})
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(pool.Close)

	_, err = pool.Exec(context.Background(), `
		TRUNCATE appointments, appointment_therapists, therapist_confirmations,
			availability_windows, rejection_reviews, outbox_events,
			users, clients, services RESTART IDENTITY CASCADE
	`)
	if err != nil {
		t.Fatalf("reset tables: %v", err)
	}
	return pool
}

func seedUser(t *testing.T, pool *db.Pool, role model.Role) string {
	t.Helper()
	id := uuid.NewString()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO users (id, full_name, role, is_active)
		VALUES ($1, $2, $3, TRUE)
	`, id, string(role)+"-"+id[:8], string(role))
	if err != nil {
		t.Fatalf("seed %s: %v", role, err)
	}
	return id
}

func clock(t *testing.T, s string) interval.TimeOfDay {
	t.Helper()
	tod, err := interval.ParseClock(s)
	if err != nil {
		t.Fatalf("parse clock %q: %v", s, err)
	}
	return tod
}

// seedExpiredAppointment books a pending two-therapist appointment whose
// response deadline has already passed, with only the first therapist
// confirmed.
func seedExpiredAppointment(t *testing.T, pool *db.Pool) (appointmentID, confirmedID, silentID string) {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := workflow.NewEngine(pool, logger, workflow.Config{ResponseTTL: time.Hour})

	op := seedUser(t, pool, model.RoleOperator)
	t1 := seedUser(t, pool, model.RoleTherapist)
	t2 := seedUser(t, pool, model.RoleTherapist)

	var clientID, serviceID string
	if err := pool.QueryRow(ctx, `
		INSERT INTO clients (name) VALUES ('sweep client') RETURNING id::text
	`).Scan(&clientID); err != nil {
		t.Fatalf("seed client: %v", err)
	}
	if err := pool.QueryRow(ctx, `
		INSERT INTO services (name, duration_minutes) VALUES ('massage', 120) RETURNING id::text
	`).Scan(&serviceID); err != nil {
		t.Fatalf("seed service: %v", err)
	}

	date := time.Now().UTC().AddDate(0, 0, 1)
	for _, th := range []string{t1, t2} {
		_, err := e.CreateAvailability(ctx,
			model.Actor{ID: th, Role: model.RoleTherapist},
			workflow.CreateAvailabilityInput{UserID: th, Date: date, Start: clock(t, "08:00"), End: clock(t, "22:00")})
		if err != nil {
			t.Fatalf("open window: %v", err)
		}
	}

	a, err := e.CreateAppointment(ctx,
		model.Actor{ID: op, Role: model.RoleOperator},
		workflow.CreateAppointmentInput{
			ClientID:         clientID,
			ServiceID:        serviceID,
			TherapistIDs:     []string{t1, t2},
			Date:             date,
			Start:            clock(t, "10:00"),
			End:              clock(t, "12:00"),
			ResponseDeadline: time.Now().Add(-time.Minute),
		})
	if err != nil {
		t.Fatalf("create appointment: %v", err)
	}

	if _, err := e.TherapistConfirm(ctx, model.Actor{ID: t1, Role: model.RoleTherapist}, a.ID); err != nil {
		t.Fatalf("confirm t1: %v", err)
	}
	return a.ID, t1, t2
}

func appointmentState(t *testing.T, pool *db.Pool, id string) (status string, cancelledAt *time.Time) {
	t.Helper()
	if err := pool.QueryRow(context.Background(), `
		SELECT status, auto_cancelled_at FROM appointments WHERE id = $1
	`, id).Scan(&status, &cancelledAt); err != nil {
		t.Fatalf("read appointment: %v", err)
	}
	return status, cancelledAt
}

func userActive(t *testing.T, pool *db.Pool, id string) bool {
	t.Helper()
	var active bool
	if err := pool.QueryRow(context.Background(), `
		SELECT is_active FROM users WHERE id = $1
	`, id).Scan(&active); err != nil {
		t.Fatalf("read user: %v", err)
	}
	return active
}

func cancelEventCount(t *testing.T, pool *db.Pool, appointmentID string) int {
	t.Helper()
	var n int
	if err := pool.QueryRow(context.Background(), `
		SELECT count(*) FROM outbox_events
		WHERE aggregate_id = $1 AND payload->>'kind' = 'auto_cancelled'
	`, appointmentID).Scan(&n); err != nil {
		t.Fatalf("count outbox events: %v", err)
	}
	return n
}

func TestSweepCancelsExpiredPendingOnce(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	apptID, confirmedID, silentID := seedExpiredAppointment(t, pool)

	s := New(pool, logger, Config{})
	s.sweep(ctx)

	status, cancelledAt := appointmentState(t, pool, apptID)
	if status != string(model.StatusAutoCancelled) || cancelledAt == nil {
		t.Fatalf("expected auto_cancelled with stamp, got %s cancelled_at=%v", status, cancelledAt)
	}

	// Only the therapist who never answered loses rostering.
	if !userActive(t, pool, confirmedID) {
		t.Fatal("confirmed therapist was deactivated")
	}
	if userActive(t, pool, silentID) {
		t.Fatal("unresponsive therapist still active")
	}

	if n := cancelEventCount(t, pool, apptID); n != 1 {
		t.Fatalf("expected 1 cancellation event, got %d", n)
	}

	// A second pass finds the row no longer pending and leaves it alone.
	s.sweep(ctx)
	status, second := appointmentState(t, pool, apptID)
	if status != string(model.StatusAutoCancelled) || !second.Equal(*cancelledAt) {
		t.Fatalf("second sweep changed state: %s %v", status, second)
	}
	if n := cancelEventCount(t, pool, apptID); n != 1 {
		t.Fatalf("second sweep duplicated the cancellation event, got %d", n)
	}
}

func TestSweepLeavesUnexpiredPendingAlone(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := workflow.NewEngine(pool, logger, workflow.Config{ResponseTTL: time.Hour})

	op := seedUser(t, pool, model.RoleOperator)
	th := seedUser(t, pool, model.RoleTherapist)
	var clientID, serviceID string
	if err := pool.QueryRow(ctx, `
		INSERT INTO clients (name) VALUES ('sweep client') RETURNING id::text
	`).Scan(&clientID); err != nil {
		t.Fatalf("seed client: %v", err)
	}
	if err := pool.QueryRow(ctx, `
		INSERT INTO services (name, duration_minutes) VALUES ('massage', 60) RETURNING id::text
	`).Scan(&serviceID); err != nil {
		t.Fatalf("seed service: %v", err)
	}
	date := time.Now().UTC().AddDate(0, 0, 1)
	if _, err := e.CreateAvailability(ctx,
		model.Actor{ID: th, Role: model.RoleTherapist},
		workflow.CreateAvailabilityInput{UserID: th, Date: date, Start: clock(t, "08:00"), End: clock(t, "22:00")}); err != nil {
		t.Fatalf("open window: %v", err)
	}
	a, err := e.CreateAppointment(ctx,
		model.Actor{ID: op, Role: model.RoleOperator},
		workflow.CreateAppointmentInput{
			ClientID: clientID, ServiceID: serviceID, TherapistIDs: []string{th},
			Date: date, Start: clock(t, "10:00"), End: clock(t, "11:00"),
		})
	if err != nil {
		t.Fatalf("create appointment: %v", err)
	}

	s := New(pool, logger, Config{})
	s.sweep(ctx)

	status, cancelledAt := appointmentState(t, pool, a.ID)
	if status != string(model.StatusPending) || cancelledAt != nil {
		t.Fatalf("appointment inside its deadline was touched: %s %v", status, cancelledAt)
	}
	if !userActive(t, pool, th) {
		t.Fatal("therapist deactivated before the deadline")
	}
}

package workflow

// These tests exercise the locking paths against a real database. They are
// skipped unless TEST_DATABASE_URL points at a Postgres with the migrations
// applied; every test starts from truncated tables.

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/santaihub/santai-server/libs/db"
	"github.com/santaihub/santai-server/services/workflow-service/internal/apperr"
	"github.com/santaihub/santai-server/services/workflow-service/internal/model"
)

func newTestEngine(t *testing.T) (*Engine, *db.Pool) {
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

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(pool, logger, Config{ResponseTTL: time.Hour}), pool
}

func seedUser(t *testing.T, pool *db.Pool, role model.Role, idle time.Duration) string {
	t.Helper()
	id := uuid.NewString()
	var lastAvailable *time.Time
	if role == model.RoleDriver {
		at := time.Now().Add(-idle)
		lastAvailable = &at
	}
	_, err := pool.Exec(context.Background(), `
		INSERT INTO users (id, full_name, role, is_active, last_available_at)
		VALUES ($1, $2, $3, TRUE, $4)
	`, id, string(role)+"-"+id[:8], string(role), lastAvailable)
	if err != nil {
		t.Fatalf("seed %s: %v", role, err)
	}
	return id
}

func seedCatalog(t *testing.T, pool *db.Pool) (clientID, serviceID string) {
	t.Helper()
	ctx := context.Background()
	if err := pool.QueryRow(ctx, `
		INSERT INTO clients (name) VALUES ('integration client') RETURNING id::text
	`).Scan(&clientID); err != nil {
		t.Fatalf("seed client: %v", err)
	}
	if err := pool.QueryRow(ctx, `
		INSERT INTO services (name, duration_minutes) VALUES ('massage', 120) RETURNING id::text
	`).Scan(&serviceID); err != nil {
		t.Fatalf("seed service: %v", err)
	}
	return clientID, serviceID
}

func openWindow(t *testing.T, e *Engine, userID string, date time.Time, start, end string) {
	t.Helper()
	_, err := e.CreateAvailability(context.Background(),
		model.Actor{ID: userID, Role: model.RoleTherapist},
		CreateAvailabilityInput{UserID: userID, Date: date, Start: mustClock(t, start), End: mustClock(t, end)})
	if err != nil {
		t.Fatalf("open window %s-%s: %v", start, end, err)
	}
}

func book(t *testing.T, e *Engine, operatorID, clientID, serviceID string, therapists []string, date time.Time, start, end string, car bool) model.Appointment {
	t.Helper()
	a, err := e.CreateAppointment(context.Background(),
		model.Actor{ID: operatorID, Role: model.RoleOperator},
		CreateAppointmentInput{
			ClientID:     clientID,
			ServiceID:    serviceID,
			TherapistIDs: therapists,
			Date:         date,
			Start:        mustClock(t, start),
			End:          mustClock(t, end),
			RequiresCar:  car,
		})
	if err != nil {
		t.Fatalf("create appointment: %v", err)
	}
	return a
}

func driverPoolAt(t *testing.T, pool *db.Pool, driverID string) *time.Time {
	t.Helper()
	var at *time.Time
	if err := pool.QueryRow(context.Background(), `
		SELECT last_available_at FROM users WHERE id = $1
	`, driverID).Scan(&at); err != nil {
		t.Fatalf("read driver pool state: %v", err)
	}
	return at
}

func testDate() time.Time {
	return time.Now().UTC().AddDate(0, 0, 1)
}

func therapist(id string) model.Actor { return model.Actor{ID: id, Role: model.RoleTherapist} }
func operator(id string) model.Actor  { return model.Actor{ID: id, Role: model.RoleOperator} }
func driver(id string) model.Actor    { return model.Actor{ID: id, Role: model.RoleDriver} }

func TestGroupConfirmationAdvancesExactlyOnce(t *testing.T) {
	e, pool := newTestEngine(t)
	ctx := context.Background()

	op := seedUser(t, pool, model.RoleOperator, 0)
	t1 := seedUser(t, pool, model.RoleTherapist, 0)
	t2 := seedUser(t, pool, model.RoleTherapist, 0)
	clientID, serviceID := seedCatalog(t, pool)
	date := testDate()
	openWindow(t, e, t1, date, "08:00", "22:00")
	openWindow(t, e, t2, date, "08:00", "22:00")

	a := book(t, e, op, clientID, serviceID, []string{t1, t2}, date, "10:00", "12:00", false)
	if a.GroupSize != 2 || a.Status != model.StatusPending {
		t.Fatalf("unexpected initial state %s group=%d", a.Status, a.GroupSize)
	}

	first, err := e.TherapistConfirm(ctx, therapist(t1), a.ID)
	if err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if first.Status != model.StatusPending || first.GroupConfirmationComplete {
		t.Fatalf("advanced before the whole group confirmed: %s", first.Status)
	}

	again, err := e.TherapistConfirm(ctx, therapist(t1), a.ID)
	if err != nil {
		t.Fatalf("repeat confirm should be idempotent: %v", err)
	}
	if again.Status != model.StatusPending {
		t.Fatalf("repeat confirm changed status to %s", again.Status)
	}

	done, err := e.TherapistConfirm(ctx, therapist(t2), a.ID)
	if err != nil {
		t.Fatalf("final confirm: %v", err)
	}
	if done.Status != model.StatusTherapistConfirmed || !done.GroupConfirmationComplete {
		t.Fatalf("expected therapist_confirmed with complete group, got %s complete=%v",
			done.Status, done.GroupConfirmationComplete)
	}

	detail, err := e.GetAppointment(ctx, a.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(detail.Confirmations) != 2 {
		t.Fatalf("expected 2 confirmation rows, got %d", len(detail.Confirmations))
	}
	if detail.Appointment.TherapistConfirmedAt == nil {
		t.Fatal("therapist_confirmed_at not stamped")
	}

	_, err = e.TherapistConfirm(ctx, therapist(t1), a.ID)
	if apperr.CodeOf(err) != "illegal_transition" || apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("confirm after advance: expected illegal_transition validation, got %v", err)
	}
}

func TestAvailabilityDuplicateOverlapAndCoverage(t *testing.T) {
	e, pool := newTestEngine(t)
	ctx := context.Background()

	op := seedUser(t, pool, model.RoleOperator, 0)
	th := seedUser(t, pool, model.RoleTherapist, 0)
	clientID, serviceID := seedCatalog(t, pool)
	date := testDate()

	openWindow(t, e, th, date, "22:00", "02:00")

	_, err := e.CreateAvailability(ctx, therapist(th),
		CreateAvailabilityInput{UserID: th, Date: date, Start: mustClock(t, "22:00"), End: mustClock(t, "02:00")})
	if apperr.CodeOf(err) != "duplicate_window" || apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("identical window: expected duplicate_window conflict, got %v", err)
	}

	_, err = e.CreateAvailability(ctx, therapist(th),
		CreateAvailabilityInput{UserID: th, Date: date, Start: mustClock(t, "23:00"), End: mustClock(t, "01:00")})
	if apperr.CodeOf(err) != "overlapping_window" || apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("overlapping window: expected overlapping_window conflict, got %v", err)
	}

	// Booking outside the window is a validation failure, not a conflict.
	_, err = e.CreateAppointment(ctx, operator(op), CreateAppointmentInput{
		ClientID: clientID, ServiceID: serviceID, TherapistIDs: []string{th},
		Date: date, Start: mustClock(t, "10:00"), End: mustClock(t, "12:00"),
	})
	if apperr.CodeOf(err) != "outside_availability" || apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected outside_availability validation, got %v", err)
	}

	// The cross-midnight window covers a booking that wraps past 00:00.
	a := book(t, e, op, clientID, serviceID, []string{th}, date, "23:00", "01:00", false)
	if a.Status != model.StatusPending {
		t.Fatalf("unexpected status %s", a.Status)
	}

	// A next-day 00:30 booking lands inside the first appointment's span.
	_, err = e.CreateAppointment(ctx, operator(op), CreateAppointmentInput{
		ClientID: clientID, ServiceID: serviceID, TherapistIDs: []string{th},
		Date: date.AddDate(0, 0, 1), Start: mustClock(t, "00:30"), End: mustClock(t, "01:30"),
	})
	if apperr.CodeOf(err) != "overlapping_appointment" || apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected overlapping_appointment conflict, got %v", err)
	}
}

func TestTransportedGroupLifecycle(t *testing.T) {
	e, pool := newTestEngine(t)
	ctx := context.Background()

	op := seedUser(t, pool, model.RoleOperator, 0)
	t1 := seedUser(t, pool, model.RoleTherapist, 0)
	t2 := seedUser(t, pool, model.RoleTherapist, 0)
	d1 := seedUser(t, pool, model.RoleDriver, time.Hour)
	clientID, serviceID := seedCatalog(t, pool)
	date := testDate()
	openWindow(t, e, t1, date, "08:00", "22:00")
	openWindow(t, e, t2, date, "08:00", "22:00")

	a := book(t, e, op, clientID, serviceID, []string{t1, t2}, date, "10:00", "12:00", true)

	if _, err := e.TherapistConfirm(ctx, therapist(t1), a.ID); err != nil {
		t.Fatalf("confirm t1: %v", err)
	}
	confirmed, err := e.TherapistConfirm(ctx, therapist(t2), a.ID)
	if err != nil {
		t.Fatalf("confirm t2: %v", err)
	}
	if confirmed.Status != model.StatusTherapistConfirmed || confirmed.DriverID != d1 {
		t.Fatalf("expected driver %s allocated at group confirmation, got %q (%s)",
			d1, confirmed.DriverID, confirmed.Status)
	}
	if driverPoolAt(t, pool, d1) != nil {
		t.Fatal("allocated driver still in the pool")
	}

	steps := []struct {
		name  string
		actor model.Actor
		fn    func(context.Context, model.Actor, string) (model.Appointment, error)
		want  model.Status
	}{
		{"driver confirm", driver(d1), e.DriverConfirm, model.StatusDriverConfirmed},
		{"start", operator(op), e.Start, model.StatusInProgress},
		{"journey start", driver(d1), e.StartJourney, model.StatusJourneyStarted},
		{"arrive", driver(d1), e.Arrive, model.StatusArrived},
		{"drop off", driver(d1), e.DropOff, model.StatusDroppedOff},
		{"session start", therapist(t1), e.StartSession, model.StatusSessionInProgress},
		{"request payment", therapist(t2), e.RequestPayment, model.StatusAwaitingPayment},
		{"verify payment", operator(op), e.VerifyPayment, model.StatusPaymentVerified},
		{"complete session", therapist(t1), e.CompleteSession, model.StatusCompleted},
	}
	for _, s := range steps {
		got, err := s.fn(ctx, s.actor, a.ID)
		if err != nil {
			t.Fatalf("%s: %v", s.name, err)
		}
		if got.Status != s.want {
			t.Fatalf("%s: expected %s, got %s", s.name, s.want, got.Status)
		}
	}

	if driverPoolAt(t, pool, d1) == nil {
		t.Fatal("driver not released at drop-off")
	}

	if _, err := e.RequestPickup(ctx, therapist(t1), a.ID, model.UrgencyUrgent); err != nil {
		t.Fatalf("request pickup: %v", err)
	}
	assigned, err := e.AssignPickupDriver(ctx, operator(op), a.ID)
	if err != nil {
		t.Fatalf("assign pickup driver: %v", err)
	}
	if assigned.Status != model.StatusDriverAssignedPickup || assigned.DriverID != d1 {
		t.Fatalf("pickup assignment: got %s driver=%q", assigned.Status, assigned.DriverID)
	}
	if _, err := e.StartReturnJourney(ctx, driver(d1), a.ID); err != nil {
		t.Fatalf("start return journey: %v", err)
	}
	final, err := e.CompleteReturnJourney(ctx, driver(d1), a.ID)
	if err != nil {
		t.Fatalf("complete return journey: %v", err)
	}
	if final.Status != model.StatusTransportCompleted || !final.Status.Terminal() {
		t.Fatalf("expected terminal transport_completed, got %s", final.Status)
	}
	if driverPoolAt(t, pool, d1) == nil {
		t.Fatal("driver not released after the return journey")
	}

	detail, err := e.GetAppointment(ctx, a.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if detail.Appointment.ReturnJourneyCompletedAt == nil || detail.Appointment.DroppedOffAt == nil {
		t.Fatal("stage timestamps missing on the completed appointment")
	}
}

func TestRejectionReviewReopensWithFreshDeadline(t *testing.T) {
	e, pool := newTestEngine(t)
	ctx := context.Background()

	op := seedUser(t, pool, model.RoleOperator, 0)
	th := seedUser(t, pool, model.RoleTherapist, 0)
	clientID, serviceID := seedCatalog(t, pool)
	date := testDate()
	openWindow(t, e, th, date, "08:00", "22:00")

	a := book(t, e, op, clientID, serviceID, []string{th}, date, "10:00", "12:00", false)

	rejected, err := e.Reject(ctx, therapist(th), a.ID, "client address unreachable")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != model.StatusRejected || rejected.RejectedBy != th {
		t.Fatalf("unexpected rejected state %s by %q", rejected.Status, rejected.RejectedBy)
	}

	reopened, err := e.ReviewRejection(ctx, operator(op), a.ID, model.ReviewApproved, "second chance")
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if reopened.Status != model.StatusPending || reopened.RejectionReason != "" {
		t.Fatalf("approval should re-open as pending with cleared rejection, got %s %q",
			reopened.Status, reopened.RejectionReason)
	}
	if !reopened.ResponseDeadline.After(rejected.ResponseDeadline) {
		t.Fatal("re-opened appointment did not get a fresh response deadline")
	}

	detail, err := e.GetAppointment(ctx, a.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(detail.Reviews) != 1 || detail.Reviews[0].Outcome != model.ReviewApproved {
		t.Fatalf("expected one approved review row, got %+v", detail.Reviews)
	}
}

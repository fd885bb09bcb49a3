package dispatch

// Queue-order tests against a real database. Skipped unless TEST_DATABASE_URL
// points at a Postgres with the migrations applied.

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/santaihub/santai-server/libs/db"
	"github.com/santaihub/santai-server/services/workflow-service/internal/apperr"
	"github.com/santaihub/santai-server/services/workflow-service/internal/model"
	"github.com/santaihub/santai-server/services/workflow-service/internal/storage"
)

func newTestAllocator(t *testing.T) (*Allocator, *db.Pool) {
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

	if _, err := pool.Exec(context.Background(), `TRUNCATE users RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("reset users: %v", err)
	}
	return NewAllocator(storage.NewUserRepository(pool)), pool
}

func seedDriver(t *testing.T, pool *db.Pool, idle time.Duration) string {
	t.Helper()
	id := uuid.NewString()
	at := time.Now().Add(-idle)
	_, err := pool.Exec(context.Background(), `
		INSERT INTO users (id, full_name, role, is_active, last_available_at)
		VALUES ($1, $2, 'driver', TRUE, $3)
	`, id, "driver-"+id[:8], at)
	if err != nil {
		t.Fatalf("seed driver: %v", err)
	}
	return id
}

func TestAllocateFollowsIdleOrder(t *testing.T) {
	alloc, pool := newTestAllocator(t)
	ctx := context.Background()

	a := seedDriver(t, pool, 3*time.Hour)
	b := seedDriver(t, pool, 2*time.Hour)
	c := seedDriver(t, pool, time.Hour)

	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i, want := range []string{a, b, c} {
		got, err := alloc.Allocate(ctx, tx)
		if err != nil {
			t.Fatalf("allocate #%d: %v", i+1, err)
		}
		if got.ID != want {
			t.Fatalf("allocate #%d: expected %s, got %s", i+1, want, got.ID)
		}
	}

	_, err = alloc.Allocate(ctx, tx)
	if apperr.CodeOf(err) != "no_driver_available" || apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("empty pool: expected no_driver_available conflict, got %v", err)
	}

	// Releasing puts the driver back at the queue head while it is empty.
	if err := alloc.Release(ctx, tx, a); err != nil {
		t.Fatalf("release: %v", err)
	}
	got, err := alloc.Allocate(ctx, tx)
	if err != nil {
		t.Fatalf("allocate after release: %v", err)
	}
	if got.ID != a {
		t.Fatalf("expected released driver %s, got %s", a, got.ID)
	}
}

func TestReleasedDriverJoinsAtTheBack(t *testing.T) {
	alloc, pool := newTestAllocator(t)
	ctx := context.Background()

	a := seedDriver(t, pool, 2*time.Hour)
	b := seedDriver(t, pool, time.Hour)

	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	first, err := alloc.Allocate(ctx, tx)
	if err != nil || first.ID != a {
		t.Fatalf("expected %s first, got %v %v", a, first.ID, err)
	}
	if err := alloc.Release(ctx, tx, a); err != nil {
		t.Fatalf("release: %v", err)
	}

	// b has been idle longer than the freshly released a.
	second, err := alloc.Allocate(ctx, tx)
	if err != nil || second.ID != b {
		t.Fatalf("expected %s after release, got %v %v", b, second.ID, err)
	}
}

func TestQueuePosition(t *testing.T) {
	alloc, pool := newTestAllocator(t)
	ctx := context.Background()

	a := seedDriver(t, pool, 2*time.Hour)
	b := seedDriver(t, pool, time.Hour)

	pos, found, err := alloc.QueuePosition(ctx, a)
	if err != nil || !found || pos != 1 {
		t.Fatalf("driver a: expected position 1, got %d found=%v err=%v", pos, found, err)
	}
	pos, found, err = alloc.QueuePosition(ctx, b)
	if err != nil || !found || pos != 2 {
		t.Fatalf("driver b: expected position 2, got %d found=%v err=%v", pos, found, err)
	}

	// An engaged driver has no queue position.
	var engaged model.User
	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if engaged, err = alloc.Allocate(ctx, tx); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if engaged.ID != a {
		t.Fatalf("expected %s allocated, got %s", a, engaged.ID)
	}
	_, found, err = alloc.QueuePosition(ctx, a)
	if err != nil {
		t.Fatalf("queue position: %v", err)
	}
	if found {
		t.Fatal("engaged driver should not be in the queue")
	}

	queue, err := alloc.Queue(ctx)
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if len(queue) != 1 || queue[0].ID != b {
		t.Fatalf("expected only %s queued, got %+v", b, queue)
	}
}

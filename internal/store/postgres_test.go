package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/modqueue/modq/internal/record"
)

// startPostgresContainer starts a PostgreSQL container for tests and
// returns a DSN suitable for pgx stdlib. It skips the test if Docker is
// unavailable.
func startPostgresContainer(t *testing.T) (dsn string, terminate func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)

	// testcontainers panics (rather than returning an error) when no
	// Docker daemon can be found; convert that into an error so the
	// skip below still applies.
	container, err := func() (c *postgres.PostgresContainer, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers: %v", r)
			}
		}()
		return postgres.Run(ctx, "postgres:16-alpine",
			postgres.WithDatabase("testdb"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
		)
	}()
	if err != nil {
		cancel()
		t.Skipf("Failed to start PostgreSQL container: %v", err)
		return "", nil
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		t.Skipf("Failed to get host info: %v", err)
		return "", nil
	}

	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		t.Skipf("Failed to get mapped port: %v", err)
		return "", nil
	}

	dsn = fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	terminate = func() {
		_ = container.Terminate(ctx)
		cancel()
	}
	return dsn, terminate
}

func waitForPostgres(t *testing.T, dsn string) {
	t.Helper()
	deadline := time.Now().Add(45 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		db, err := sql.Open("pgx", dsn)
		if err == nil {
			if err = db.PingContext(ctx); err == nil {
				_ = db.Close()
				cancel()
				return
			}
			_ = db.Close()
		}
		cancel()
		if time.Now().After(deadline) {
			t.Fatalf("postgres not ready in time: %v", err)
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func TestPostgresAdapter(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	dsn, terminate := startPostgresContainer(t)
	waitForPostgres(t, dsn)
	defer terminate()

	s, err := NewPostgres(Config{DSN: dsn, Columns: Columns{ID: "id"}})
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	insert := `INSERT INTO "posts" ("id", "content", "platform", "scheduled_date", "status") VALUES ($1, $2, $3, $4, $5)`
	seed := []struct{ id, content, date, status string }{
		{"p-1", "first", "2025-07-01", "pending"},
		{"p-2", "second", "2025-07-02", "pending"},
		{"p-3", "done", "2025-07-03", "approved"},
	}
	for _, r := range seed {
		if _, err := s.db.ExecContext(ctx, insert, r.id, r.content, "x", r.date, r.status); err != nil {
			t.Fatalf("insert %s: %v", r.id, err)
		}
	}

	recs, err := s.FetchPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].NativeID != "p-1" || recs[1].NativeID != "p-2" {
		t.Fatalf("unexpected pending set: %+v", recs)
	}

	if err := s.WriteStatus(ctx, recs[0], record.StatusPending, record.StatusApproved); err != nil {
		t.Fatalf("write: %v", err)
	}
	var lit string
	if err := s.db.QueryRowContext(ctx, `SELECT "status" FROM "posts" WHERE "id" = $1`, "p-1").Scan(&lit); err != nil {
		t.Fatal(err)
	}
	if lit != "approved" {
		t.Fatalf("p-1 is %q", lit)
	}

	// Losing race: the transition already happened.
	err = s.WriteStatus(ctx, recs[0], record.StatusPending, record.StatusRejected)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}

	ghost := record.Record{NativeID: "p-404"}
	if err := s.WriteStatus(ctx, ghost, record.StatusPending, record.StatusApproved); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

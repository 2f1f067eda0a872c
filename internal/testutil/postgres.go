package testutil

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/eventhub/eventhub/internal/repository"
)

var (
	containerOnce sync.Once
	containerURL  string
	containerErr  error
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

// DatabaseURL returns TEST_DATABASE_URL when set. Otherwise it starts a shared
// PostgreSQL container, or skips the test if Docker is unavailable.
func DatabaseURL(t testing.TB) string {
	t.Helper()

	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		return url
	}

	containerOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		container, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("eventhub"),
			postgres.WithUsername("eventhub"),
			postgres.WithPassword("eventhub"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(time.Minute),
			),
		)
		if err != nil {
			containerErr = err
			return
		}

		containerURL, containerErr = container.ConnectionString(ctx, "sslmode=disable")
	})

	if containerErr != nil {
		t.Skipf("postgres container unavailable: %v", containerErr)
	}
	return containerURL
}

const advisoryLockID int64 = 420420

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// NewRepository migrates the test database, truncates all tables, and returns
// a Repository holding the advisory lock for the duration of the test.
func NewRepository(t testing.TB) (context.Context, *repository.Repository) {
	t.Helper()

	databaseURL := DatabaseURL(t)
	ctx := context.Background()

	if err := repository.MigrateUp(databaseURL, ""); err != nil {
		t.Fatalf("migrate up: %v", err)
	}

	repo, err := repository.New(ctx, databaseURL, repository.PoolConfig{MaxConns: 20})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	unlock, err := AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		repo.Close()
		t.Fatalf("lock: %v", err)
	}

	if _, err := repo.Pool().Exec(ctx, `TRUNCATE registrations, events, users RESTART IDENTITY CASCADE`); err != nil {
		_ = unlock()
		repo.Close()
		t.Fatalf("truncate: %v", err)
	}

	t.Cleanup(func() {
		if err := unlock(); err != nil {
			t.Errorf("unlock: %v", err)
		}
		repo.Close()
	})

	return ctx, repo
}

// InsertUser creates a user row and returns its ID.
func InsertUser(t testing.TB, ctx context.Context, pool *pgxpool.Pool, name, email string) int64 {
	t.Helper()

	var id int64
	err := pool.QueryRow(ctx,
		`INSERT INTO users (name, email) VALUES ($1, $2) RETURNING id`,
		name, email,
	).Scan(&id)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return id
}

// InsertEvent creates an event row directly, bypassing validation.
func InsertEvent(t testing.TB, ctx context.Context, pool *pgxpool.Pool, title string, datetime time.Time, location string, capacity int) int64 {
	t.Helper()

	var id int64
	err := pool.QueryRow(ctx,
		`INSERT INTO events (title, datetime, location, capacity) VALUES ($1, $2, $3, $4) RETURNING id`,
		title, datetime, location, capacity,
	).Scan(&id)
	if err != nil {
		t.Fatalf("insert event: %v", err)
	}
	return id
}

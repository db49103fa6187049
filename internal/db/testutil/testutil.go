package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	testDatabase = "youtube_sync_test"
	testUser     = "test"
	testPassword = "test"
)

// TestDatabase is a migrated Postgres instance running in a container.
type TestDatabase struct {
	Pool      *pgxpool.Pool
	Container *postgres.PostgresContainer
	ConnStr   string
}

type options struct {
	image    string
	initArgs string
}

// Option customizes the test database container.
type Option func(*options)

// WithImage overrides the Postgres image.
func WithImage(image string) Option {
	return func(o *options) { o.image = image }
}

// WithInitDBArgs passes extra arguments to initdb, e.g. a locale.
func WithInitDBArgs(args string) Option {
	return func(o *options) { o.initArgs = args }
}

// SetupTestDatabase starts Postgres, applies the migrations found at
// migrationsDir (relative to the calling package) and returns a pool.
// It skips the test when running with -short.
func SetupTestDatabase(t *testing.T, migrationsDir string, opts ...Option) *TestDatabase {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	o := options{image: "postgres:17-alpine"}
	for _, opt := range opts {
		opt(&o)
	}

	ctx := context.Background()

	customizers := []testcontainers.ContainerCustomizer{
		postgres.WithDatabase(testDatabase),
		postgres.WithUsername(testUser),
		postgres.WithPassword(testPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second)),
	}
	if o.initArgs != "" {
		customizers = append(customizers, testcontainers.WithEnv(map[string]string{
			"POSTGRES_INITDB_ARGS": o.initArgs,
		}))
	}

	pgContainer, err := postgres.Run(ctx, o.image, customizers...)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	migrationsPath, err := filepath.Abs(migrationsDir)
	require.NoError(t, err)

	m, err := migrate.New(fmt.Sprintf("file://%s", migrationsPath), connStr)
	require.NoError(t, err)
	require.NoError(t, m.Up())
	srcErr, dbErr := m.Close()
	require.NoError(t, srcErr)
	require.NoError(t, dbErr)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	require.NoError(t, pool.Ping(ctx))

	return &TestDatabase{
		Pool:      pool,
		Container: pgContainer,
		ConnStr:   connStr,
	}
}

// Cleanup closes the pool and terminates the container.
func (td *TestDatabase) Cleanup(t *testing.T) {
	t.Helper()

	if td.Pool != nil {
		td.Pool.Close()
	}
	if td.Container != nil {
		require.NoError(t, td.Container.Terminate(context.Background()))
	}
}

// TruncateTables empties every table and resets sequences.
func (td *TestDatabase) TruncateTables(t *testing.T) {
	t.Helper()

	_, err := td.Pool.Exec(context.Background(), `
		TRUNCATE TABLE video_buckets, videos, bucket_subscriptions, buckets,
		               subscriptions, oauth_tokens, users, api_quota_usage
		RESTART IDENTITY CASCADE
	`)
	require.NoError(t, err)
}

// CreateUser inserts a user row and returns its id.
func (td *TestDatabase) CreateUser(t *testing.T, email string, active bool) int64 {
	t.Helper()

	var id int64
	err := td.Pool.QueryRow(context.Background(),
		`INSERT INTO users (email, is_active) VALUES ($1, $2) RETURNING id`,
		email, active,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

// CreateCredential stores an OAuth payload for ownerID.
func (td *TestDatabase) CreateCredential(t *testing.T, ownerID int64, data string) {
	t.Helper()

	_, err := td.Pool.Exec(context.Background(),
		`INSERT INTO oauth_tokens (owner_id, data) VALUES ($1, $2)`,
		ownerID, data,
	)
	require.NoError(t, err)
}

// Package testutil provides shared integration-test scaffolding: a
// testcontainers-backed Postgres instance with pgvector and the schema
// migrations already applied.
package testutil

import (
	"context"
	"net/url"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/nexuslabs/nexusmem/pkg/config"
	"github.com/nexuslabs/nexusmem/pkg/storage"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// NewTestPool creates a storage.Pool for integration tests.
// In CI (when CI_DATABASE_URL is set): connects to an external PostgreSQL
// service container. In local dev: spins up a pgvector-enabled testcontainer.
// The container/pool is automatically cleaned up when the test ends.
func NewTestPool(t *testing.T) *storage.Pool {
	t.Helper()
	ctx := context.Background()

	storageCfg := &config.StorageConfig{
		User:         "test",
		Password:     "test",
		Database:     "test",
		SSLMode:      "disable",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
	}

	if ciURL := os.Getenv("CI_DATABASE_URL"); ciURL != "" {
		t.Log("Using external PostgreSQL from CI_DATABASE_URL")
		u, err := url.Parse(ciURL)
		require.NoError(t, err)
		storageCfg.Host = u.Hostname()
		storageCfg.Port = 5432
		if p := u.Port(); p != "" {
			storageCfg.Port, err = strconv.Atoi(p)
			require.NoError(t, err)
		}
		storageCfg.User = u.User.Username()
		storageCfg.Password, _ = u.User.Password()
		storageCfg.Database = strings.TrimPrefix(u.Path, "/")
	} else {
		t.Log("Using testcontainers for PostgreSQL with pgvector")
		pgContainer, err := postgres.Run(ctx,
			"pgvector/pgvector:pg16",
			postgres.WithDatabase(storageCfg.Database),
			postgres.WithUsername(storageCfg.User),
			postgres.WithPassword(storageCfg.Password),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		require.NoError(t, err)

		t.Cleanup(func() {
			if err := testcontainers.TerminateContainer(pgContainer); err != nil {
				t.Logf("failed to terminate container: %v", err)
			}
		})

		host, err := pgContainer.Host(ctx)
		require.NoError(t, err)
		port, err := pgContainer.MappedPort(ctx, "5432/tcp")
		require.NoError(t, err)

		storageCfg.Host = host
		storageCfg.Port = port.Int()
	}

	pool, err := storage.NewPool(ctx, storageCfg)
	require.NoError(t, err)

	t.Cleanup(pool.Close)
	return pool
}

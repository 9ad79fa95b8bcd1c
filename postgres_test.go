package lockbox_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/lockbox"
)

// postgresDSN gates the Postgres backend tests behind a reachable server
func postgresDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("LOCKBOX_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LOCKBOX_POSTGRES_DSN not set")
	}
	return dsn
}

func openPostgres(t *testing.T, dsn, prefix string) *lockbox.Handle {
	t.Helper()
	h, err := lockbox.OpenPostgres(
		context.Background(),
		lockbox.DefaultConfig(),
		lockbox.PostgresConfig{DSN: dsn, Prefix: prefix},
		counterModel(),
	)
	require.NoError(t, err)
	return h
}

func TestPostgresDurability(t *testing.T) {
	dsn := postgresDSN(t)
	prefix := fmt.Sprintf("lockbox_test_%d", time.Now().UnixNano())
	ctx := context.Background()

	h := openPostgres(t, dsn, prefix)
	t.Cleanup(func() { dropPostgresTables(t, dsn, prefix) })

	_, err := h.Update(ctx, mustEvent(t, EventAdded, 5))
	assert.NoError(t, err)
	_, err = h.Update(ctx, mustEvent(t, EventMultiplied, 4))
	assert.NoError(t, err)
	assert.NoError(t, h.Close())

	h = openPostgres(t, dsn, prefix)
	defer func() { _ = h.Close() }()
	assert.Equal(t, 20, queryValue(t, h))
}

func TestPostgresCheckpoint(t *testing.T) {
	dsn := postgresDSN(t)
	prefix := fmt.Sprintf("lockbox_test_%d", time.Now().UnixNano())
	ctx := context.Background()

	h := openPostgres(t, dsn, prefix)
	t.Cleanup(func() { dropPostgresTables(t, dsn, prefix) })

	for i := 0; i < 5; i++ {
		_, err := h.Update(ctx, mustEvent(t, EventAdded, 2))
		assert.NoError(t, err)
	}
	assert.NoError(t, h.Checkpoint(ctx))

	sub, err := lockbox.Downcast[*lockbox.PostgresState](
		lockbox.TagPostgres, h,
	)
	require.NoError(t, err)

	var remaining int
	row := sub.Pool().QueryRow(ctx, fmt.Sprintf(
		"SELECT count(*) FROM %s_journal", prefix,
	))
	assert.NoError(t, row.Scan(&remaining))
	assert.Equal(t, 0, remaining)

	_, err = h.Update(ctx, mustEvent(t, EventAdded, 3))
	assert.NoError(t, err)
	assert.NoError(t, h.Close())

	h = openPostgres(t, dsn, prefix)
	defer func() { _ = h.Close() }()
	assert.Equal(t, 13, queryValue(t, h))
}

func dropPostgresTables(t *testing.T, dsn, prefix string) {
	t.Helper()
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return
	}
	defer pool.Close()
	_, _ = pool.Exec(context.Background(), fmt.Sprintf(
		"DROP TABLE IF EXISTS %s_journal, %s_checkpoint", prefix, prefix,
	))
}

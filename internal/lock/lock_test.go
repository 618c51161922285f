package lock

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	release, err := l.Acquire(ctx, "ingest", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "ingest", time.Minute)
	assert.True(t, errors.Is(err, ErrLockHeld))

	other, err := l.Acquire(ctx, "report", time.Minute)
	require.NoError(t, err, "different keys do not contend")
	other()

	release()
	release() // idempotent

	again, err := l.Acquire(ctx, "ingest", time.Minute)
	require.NoError(t, err)
	again()
}

func TestLocalLocker_ExpiredLockIsReclaimed(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	stale, err := l.Acquire(ctx, "ingest", time.Millisecond)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	fresh, err := l.Acquire(ctx, "ingest", time.Minute)
	require.NoError(t, err)

	// Releasing the stale hold must not drop the fresh one.
	stale()
	_, err = l.Acquire(ctx, "ingest", time.Minute)
	assert.True(t, errors.Is(err, ErrLockHeld))
	fresh()
}

func TestLocalLocker_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLocalLocker().Acquire(ctx, "ingest", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("NIGHTRATE_TEST_REDIS_ADDR")
	if testing.Short() || addr == "" {
		t.Skip("Skipping integration test: set NIGHTRATE_TEST_REDIS_ADDR")
	}

	ctx := context.Background()
	rdb, err := Dial(ctx, addr, "", 0)
	require.NoError(t, err)
	defer rdb.Close()

	l := NewRedisLocker(rdb, "nightrate-test:"+uuid.NewString()+":")

	release, err := l.Acquire(ctx, "ingest", 10*time.Second)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "ingest", 10*time.Second)
	assert.True(t, errors.Is(err, ErrLockHeld))

	release()
	release()

	again, err := l.Acquire(ctx, "ingest", 10*time.Second)
	require.NoError(t, err)
	again()
}

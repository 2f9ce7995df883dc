package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestRedisLockExclusive(t *testing.T) {
	client, mr := setupRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, "migrate", time.Minute)
	b := NewRedisLock(client, "migrate", time.Minute)
	assert.Equal(t, "segments:lock:migrate", a.Key())

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// b cannot release a's lock.
	assert.ErrorIs(t, b.Release(ctx), ErrNotHeld)
	assert.True(t, mr.Exists(a.Key()))

	require.NoError(t, a.Release(ctx))
	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockExpiresAndExtends(t *testing.T) {
	client, mr := setupRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, "job", time.Second)
	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, a.Extend(ctx, time.Minute))
	mr.FastForward(30 * time.Second)
	assert.True(t, mr.Exists(a.Key()))

	mr.FastForward(time.Minute)
	assert.False(t, mr.Exists(a.Key()))
	assert.ErrorIs(t, a.Extend(ctx, time.Minute), ErrNotHeld)
}

func TestWaitGivesUpWithContext(t *testing.T) {
	client, _ := setupRedis(t)
	holder := NewRedisLock(client, "busy", time.Minute)
	ok, err := holder.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = Wait(ctx, NewRedisLock(client, "busy", time.Minute), 10*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewLockPrefersRedis(t *testing.T) {
	client, _ := setupRedis(t)
	_, isRedis := NewLock(client, nil, "k", time.Minute).(*RedisLock)
	assert.True(t, isRedis)
	_, isPG := NewLock(nil, nil, "k", time.Minute).(*PGAdvisoryLock)
	assert.True(t, isPG)
}

func TestPGAdvisoryLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewPGAdvisoryLock(db, "migrate")
	ctx := context.Background()

	mock.ExpectQuery(`SELECT pg_try_advisory_lock\(\$1\)`).
		WithArgs(l.lockID).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectQuery(`SELECT pg_advisory_unlock\(\$1\)`).
		WithArgs(l.lockID).
		WillReturnRows(sqlmock.NewRows([]string{"pg_advisory_unlock"}).AddRow(true))

	ok, err := l.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, l.Release(ctx))
	assert.ErrorIs(t, l.Release(ctx), ErrNotHeld)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGAdvisoryLockBusy(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewPGAdvisoryLock(db, "migrate")
	mock.ExpectQuery(`SELECT pg_try_advisory_lock`).
		WithArgs(l.lockID).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	ok, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKeepAliveRenewsRedisLock(t *testing.T) {
	client, mr := setupRedis(t)
	ctx := context.Background()

	l := NewRedisLock(client, "migrate", time.Minute)
	ok, err := l.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	stop := KeepAlive(ctx, l, time.Minute, 10*time.Millisecond, func(error) {
		t.Error("lock reported lost while held")
	})
	defer stop()

	// Without renewal the lock would have 5s left and expire on the next jump.
	mr.FastForward(55 * time.Second)
	require.Eventually(t, func() bool {
		return mr.TTL(l.Key()) > 30*time.Second
	}, time.Second, 10*time.Millisecond)

	mr.FastForward(55 * time.Second)
	require.Eventually(t, func() bool {
		return mr.TTL(l.Key()) > 30*time.Second
	}, time.Second, 10*time.Millisecond)
	assert.True(t, mr.Exists(l.Key()))
}

func TestKeepAliveReportsLostLock(t *testing.T) {
	client, mr := setupRedis(t)
	ctx := context.Background()

	l := NewRedisLock(client, "migrate", time.Minute)
	ok, err := l.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	lost := make(chan error, 1)
	stop := KeepAlive(ctx, l, time.Minute, 10*time.Millisecond, func(err error) { lost <- err })
	defer stop()

	mr.Del(l.Key())
	select {
	case err := <-lost:
		assert.ErrorIs(t, err, ErrNotHeld)
	case <-time.After(time.Second):
		t.Fatal("lost lock was not reported")
	}
}

func TestKeepAliveIgnoresLocksWithoutTTL(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	stop := KeepAlive(context.Background(), NewPGAdvisoryLock(db, "migrate"), time.Minute, time.Millisecond, func(error) {
		t.Error("advisory locks never expire")
	})
	stop()
}

package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedis(client, "formationflow:lock:", time.Minute)
}

func exerciseMutualExclusion(t *testing.T, l Locker) {
	t.Helper()
	var (
		inside  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "request:1")
			if !assert.NoError(t, err) {
				return
			}
			defer release()
			n := inside.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			time.Sleep(5 * time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxSeen.Load())
}

func TestLocalMutualExclusion(t *testing.T) {
	exerciseMutualExclusion(t, NewLocal())
}

func TestLocalTimeout(t *testing.T) {
	l := NewLocal()
	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "k")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotAcquired))

	release()
	release()
	other, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)
	other()
	assert.Empty(t, l.slots)
}

func TestRedisMutualExclusion(t *testing.T) {
	_, l := setupTestRedis(t)
	exerciseMutualExclusion(t, l)
}

func TestRedisReleaseOnlyOwnToken(t *testing.T) {
	mr, l := setupTestRedis(t)
	release, err := l.Acquire(context.Background(), "request:2")
	require.NoError(t, err)
	assert.True(t, mr.Exists("formationflow:lock:request:2"))

	// Lease expired and someone else took the key.
	mr.FastForward(2 * time.Minute)
	require.NoError(t, mr.Set("formationflow:lock:request:2", "other"))

	release()
	got, err := mr.Get("formationflow:lock:request:2")
	require.NoError(t, err)
	assert.Equal(t, "other", got)
}

func TestRedisTimeout(t *testing.T) {
	_, l := setupTestRedis(t)
	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "k")
	assert.True(t, errors.Is(err, ErrNotAcquired))
}

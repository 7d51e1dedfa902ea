package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

// exerciseMutualExclusion runs n goroutines incrementing a counter under the
// same key and fails if two ever overlap.
func exerciseMutualExclusion(t *testing.T, l Locker, n int) {
	t.Helper()
	var (
		inside int32
		total  int32
		wg     sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Lock(context.Background(), CartKey("u1"))
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			if atomic.AddInt32(&inside, 1) != 1 {
				t.Errorf("two holders inside the critical section")
			}
			atomic.AddInt32(&total, 1)
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(n), atomic.LoadInt32(&total))
}

func TestLocal_MutualExclusion(t *testing.T) {
	exerciseMutualExclusion(t, NewLocal(0), 20)
}

func TestLocal_IndependentKeys(t *testing.T) {
	l := NewLocal(50 * time.Millisecond)
	r1, err := l.Lock(context.Background(), CartKey("a"))
	require.NoError(t, err)
	defer r1()

	r2, err := l.Lock(context.Background(), CartKey("b"))
	require.NoError(t, err)
	r2()
}

func TestLocal_TimeoutAndCancel(t *testing.T) {
	l := NewLocal(20 * time.Millisecond)
	release, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	_, err = l.Lock(context.Background(), "k")
	assert.ErrorIs(t, err, ErrTimeout)


	release()
	release() // second call is a no-op
	again, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	again()
}

func TestLocal_CancelledContextNeverAcquires(t *testing.T) {
	l := NewLocal(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 200; i++ {
		release, err := l.Lock(ctx, "free")
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("attempt %d: expected context.Canceled, got %v", i, err)
		}
		if release != nil {
			t.Fatalf("attempt %d: got a release func for a cancelled request", i)
		}
	}
	assert.Empty(t, l.slots)
}

func TestRedis_MutualExclusion(t *testing.T) {
	_, client := setupTestRedis(t)
	exerciseMutualExclusion(t, NewRedis(client, RedisOptions{RetryInterval: time.Millisecond}), 10)
}

func TestRedis_TimeoutWhileHeld(t *testing.T) {
	_, client := setupTestRedis(t)
	l := NewRedis(client, RedisOptions{Wait: 30 * time.Millisecond, RetryInterval: 5 * time.Millisecond})

	release, err := l.Lock(context.Background(), CartKey("u1"))
	require.NoError(t, err)

	_, err = l.Lock(context.Background(), CartKey("u1"))
	assert.True(t, errors.Is(err, ErrTimeout), "got %v", err)

	release()
	again, err := l.Lock(context.Background(), CartKey("u1"))
	require.NoError(t, err)
	again()
}

func TestRedis_ReleaseKeepsForeignToken(t *testing.T) {
	mr, client := setupTestRedis(t)
	l := NewRedis(client, RedisOptions{Prefix: "t:", TTL: time.Second})

	release, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	// simulate expiry followed by another holder taking the key
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("t:k", "someone-else"))

	release()
	got, err := mr.Get("t:k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

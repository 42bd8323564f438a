package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SessionsAreSerializedPerChat(t *testing.T) {
	store := NewStore(0, 0)

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess := store.acquire(7)
			counter++ // guarded by the session lock
			store.release(sess)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 1, store.Len())
}

func TestStore_SweepKeepsSessionsInUse(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore(time.Minute, 0)
	store.now = func() time.Time { return now }

	busy := store.acquire(1)
	idle := store.acquire(2)
	idle.state = AwaitingCategory
	store.release(idle)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, Idle, store.State(2))
	assert.Equal(t, 1, store.Sweep())
	assert.Equal(t, 1, store.Len())

	store.release(busy)
	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, store.Sweep())
	assert.Equal(t, 0, store.Len())
}

func TestStore_NoTimeoutNeverSweeps(t *testing.T) {
	store := NewStore(0, 0)
	store.release(store.acquire(1))
	assert.Equal(t, 0, store.Sweep())
	assert.Equal(t, 1, store.Len())
}

func TestStore_LoginLimiter(t *testing.T) {
	store := NewStore(0, 3)
	sess := store.acquire(1)
	defer store.release(sess)

	for i := 0; i < 3; i++ {
		require.True(t, sess.limiter.Allow())
	}
	assert.False(t, sess.limiter.Allow())

	other := NewStore(0, 0).acquire(1)
	for i := 0; i < 100; i++ {
		require.True(t, other.limiter.Allow())
	}
}

func TestStore_JanitorStopsWithContext(t *testing.T) {
	store := NewStore(time.Minute, 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.Janitor(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "awaiting_product", AwaitingProduct.String())
	assert.Equal(t, "unknown", State(42).String())
}

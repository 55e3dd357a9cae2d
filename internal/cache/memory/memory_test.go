package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cardmarket/internal/domain"
)

func TestBusPatternSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := NewBus(10)

	ch, err := b.Subscribe(ctx, "market:*")
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, "other:x", []byte("skip")))
	require.NoError(t, b.Publish(ctx, "market:card_sold", []byte("sold")))

	select {
	case got := <-ch:
		assert.Equal(t, []byte("sold"), got)
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}

	cancel()
	require.Eventually(t, func() bool {
		_, open := <-ch
		return !open
	}, time.Second, 10*time.Millisecond)
}

func TestBusStreamReadAfter(t *testing.T) {
	ctx := context.Background()
	b := NewBus(2)
	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, b.StreamAppend(ctx, "s", []byte(p)))
	}

	msgs, err := b.StreamRead(ctx, "s", "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, []byte("b"), msgs[0].Payload)

	msgs, err = b.StreamRead(ctx, "s", msgs[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("c"), msgs[0].Payload)
}

func TestLockManagerExclusiveUntilExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	m := NewLockManager()
	m.now = func() time.Time { return now }

	unlock, err := m.Acquire(ctx, "settler", time.Minute)
	require.NoError(t, err)
	_, err = m.Acquire(ctx, "settler", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	now = now.Add(time.Minute)
	unlock2, err := m.Acquire(ctx, "settler", time.Minute)
	require.NoError(t, err)

	// A stale holder's unlock must not free the new lease.
	unlock()
	_, err = m.Acquire(ctx, "settler", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock2()
	_, err = m.Acquire(ctx, "settler", time.Minute)
	assert.NoError(t, err)
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	r := NewRateLimiter()
	r.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		ok, err := r.Allow(ctx, "ip", 3, time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := r.Allow(ctx, "ip", 3, time.Second)
	assert.False(t, ok)

	now = now.Add(1100 * time.Millisecond)
	ok, _ = r.Allow(ctx, "ip", 3, time.Second)
	assert.True(t, ok)

	now = now.Add(time.Hour)
	r.Cleanup(time.Second)
	assert.Empty(t, r.hits)
}

package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(mr.Addr(), "", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSlotLocker(client, 5*time.Second), mr
}

func TestSlotKey_SameSlotSameKey(t *testing.T) {
	at := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	berlin := time.FixedZone("CET", 3600)

	assert.Equal(t, SlotKey("dr-1", at), SlotKey("dr-1", at.In(berlin)))
	assert.Equal(t, SlotKey("dr-1", at), SlotKey("dr-1", at.Add(400*time.Millisecond)), "sub-second noise is dropped")
	assert.NotEqual(t, SlotKey("dr-1", at), SlotKey("dr-2", at))
}

func TestWithSlotLock_RunsAndReleases(t *testing.T) {
	locker, mr := newTestLocker(t)
	at := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

	called := false
	err := locker.WithSlotLock(context.Background(), "dr-1", at, func(ctx context.Context) error {
		called = true
		assert.True(t, mr.Exists(SlotKey("dr-1", at)), "key held while fn runs")
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.False(t, mr.Exists(SlotKey("dr-1", at)), "key released after fn")
}

func TestWithSlotLock_Contended(t *testing.T) {
	locker, _ := newTestLocker(t)
	at := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

	err := locker.WithSlotLock(context.Background(), "dr-1", at, func(ctx context.Context) error {
		inner := locker.WithSlotLock(ctx, "dr-1", at, func(context.Context) error {
			t.Fatal("inner fn must not run while the slot is held")
			return nil
		})
		assert.ErrorIs(t, inner, ErrNotAcquired)

		// a different slot is independent
		return locker.WithSlotLock(ctx, "dr-1", at.Add(time.Hour), func(context.Context) error { return nil })
	})
	require.NoError(t, err)
}

func TestWithSlotLock_PropagatesError(t *testing.T) {
	locker, mr := newTestLocker(t)
	at := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	boom := errors.New("boom")

	err := locker.WithSlotLock(context.Background(), "dr-1", at, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists(SlotKey("dr-1", at)))
}

func TestWithSlotLock_DoesNotReleaseForeignToken(t *testing.T) {
	locker, mr := newTestLocker(t)
	at := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	key := SlotKey("dr-1", at)

	err := locker.WithSlotLock(context.Background(), "dr-1", at, func(context.Context) error {
		// simulate expiry and takeover by another holder
		require.NoError(t, mr.Set(key, "someone-else"))
		return nil
	})
	require.NoError(t, err)

	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestNoopLocker(t *testing.T) {
	calls := 0
	err := NoopLocker{}.WithSlotLock(context.Background(), "dr-1", time.Now(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

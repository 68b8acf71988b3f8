package cron

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryLockStore struct {
	values map[string]string
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryLockStore) DelIfEquals(_ context.Context, key, owner string) (bool, error) {
	if m.values[key] != owner {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockIsExclusive(t *testing.T) {
	store := &memoryLockStore{values: map[string]string{}}
	ctx := context.Background()

	first, err := NewRedisLock(store, "bistro:lock:cron", time.Minute)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "bistro:lock:cron", time.Minute)
	require.NoError(t, err)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, second.Release(ctx))
	assert.Contains(t, store.values, "bistro:lock:cron", "a loser must not release the winner's lock")

	require.NoError(t, first.Release(ctx))
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockLeavesForeignOwnerAlone(t *testing.T) {
	store := &memoryLockStore{values: map[string]string{}}
	ctx := context.Background()
	lock, err := NewRedisLock(store, "k", time.Minute)
	require.NoError(t, err)

	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	store.values["k"] = "someone-else"

	require.NoError(t, lock.Release(ctx))
	assert.Equal(t, "someone-else", store.values["k"])
}

func TestNewRedisLockValidation(t *testing.T) {
	_, err := NewRedisLock(nil, "k", 0)
	assert.Error(t, err)
	_, err = NewRedisLock(&memoryLockStore{}, "", 0)
	assert.Error(t, err)
	lock, err := NewRedisLock(&memoryLockStore{}, "k", 0)
	require.NoError(t, err)
	assert.Equal(t, defaultLockTTL, lock.ttl)
}

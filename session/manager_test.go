package session

import (
	iface "FaceSyncServer/interface"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_AllocRelease(t *testing.T) {
	m := NewManager(ManagerConfig{MaxSessions: 2, Options: Options{Simulator: &fixedSim{}}})
	defer m.Close()

	a, err := m.Alloc(1)
	require.NoError(t, err)
	b, err := m.Alloc(2)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	_, err = m.Alloc(3)
	assert.ErrorIs(t, err, ErrNoCapacity)

	got, err := m.Get(a.ID)
	require.NoError(t, err)
	assert.Same(t, a, got)

	list := m.List()
	require.Len(t, list, 2)
	assert.True(t, list[0].ID < list[1].ID)

	require.NoError(t, a.Start(context.Background(), iface.PermissionGranted))
	require.NoError(t, m.Release(a.ID))
	assert.False(t, a.Streaming())
	assert.ErrorIs(t, m.Release(a.ID), ErrNotFound)
	_, err = m.Get(a.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.Alloc(4)
	assert.NoError(t, err)
	assert.Equal(t, 2, m.Len())

	m.Close()
	assert.Equal(t, 0, m.Len())
}

func TestManager_IdleRelease(t *testing.T) {
	m := NewManager(ManagerConfig{
		MaxSessions: 4,
		IdleTimeout: 50 * time.Millisecond,
		Options:     Options{Simulator: &fixedSim{}},
	})
	defer m.Close()

	idle, err := m.Alloc(0)
	require.NoError(t, err)
	watched, err := m.Alloc(0)
	require.NoError(t, err)
	_, unsubscribe := watched.Subscribe()

	assert.Eventually(t, func() bool {
		_, err := m.Get(idle.ID)
		return err != nil
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(120 * time.Millisecond)
	_, err = m.Get(watched.ID)
	assert.NoError(t, err, "session with a subscriber must stay allocated")

	unsubscribe()
	assert.Eventually(t, func() bool { return m.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestIdleCheckInterval(t *testing.T) {
	assert.Equal(t, 10*time.Millisecond, idleCheckInterval(time.Millisecond))
	assert.Equal(t, 100*time.Millisecond, idleCheckInterval(time.Second))
	assert.Equal(t, time.Second, idleCheckInterval(time.Hour))
}

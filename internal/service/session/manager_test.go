package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cleansight/internal/domain"
	"cleansight/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, e *env, cfg ManagerConfig) (*Manager, *atomic.Int32) {
	t.Helper()
	var opens atomic.Int32
	open := FromIdentityService(e.identities)
	m := NewManager(func(ctx context.Context, sid string) (IdentityClient, error) {
		opens.Add(1)
		return open(ctx, sid)
	}, e.source, cfg, logger.NewNop())
	t.Cleanup(m.Close)
	return m, &opens
}

func TestManager_AcquireReusesSession(t *testing.T) {
	e := newEnv(t)
	m, opens := newTestManager(t, e, ManagerConfig{})
	ctx := context.Background()

	first, err := m.Acquire(ctx, "sid-a")
	require.NoError(t, err)
	again, err := m.Acquire(ctx, "sid-a")
	require.NoError(t, err)
	other, err := m.Acquire(ctx, "sid-b")
	require.NoError(t, err)

	assert.Same(t, first, again)
	assert.NotSame(t, first, other)
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, int32(2), opens.Load())
}

func TestManager_ConcurrentAcquireCreatesOnce(t *testing.T) {
	e := newEnv(t)
	m, opens := newTestManager(t, e, ManagerConfig{})

	const n = 16
	got := make([]*Session, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.Acquire(context.Background(), "shared")
			assert.NoError(t, err)
			got[i] = s
		}(i)
	}
	wg.Wait()

	for _, s := range got[1:] {
		assert.Same(t, got[0], s)
	}
	assert.Equal(t, int32(1), opens.Load())
}

func TestManager_AcquireOpenError(t *testing.T) {
	e := newEnv(t)
	boom := errors.New("kv down")
	m := NewManager(func(context.Context, string) (IdentityClient, error) {
		return nil, boom
	}, e.source, ManagerConfig{}, logger.NewNop())
	defer m.Close()

	_, err := m.Acquire(context.Background(), "sid")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, m.Len())
}

func TestManager_ReplacesFailedSession(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "asha@example.com", &domain.Profile{Role: domain.RoleRagpicker})
	m, _ := newTestManager(t, e, ManagerConfig{})
	ctx := context.Background()

	e.source.broken.Store(true)
	s, err := m.Acquire(ctx, "sid")
	require.NoError(t, err)
	_, err = s.SignIn(ctx, "asha@example.com", "demo123")
	require.Error(t, err)
	require.Equal(t, StateFailed, s.Snapshot().State)

	e.source.broken.Store(false)
	fresh, err := m.Acquire(ctx, "sid")
	require.NoError(t, err)
	assert.NotSame(t, s, fresh)

	snap := waitSettled(t, fresh)
	assert.Equal(t, StateAuthenticated, snap.State)
	assert.Equal(t, domain.RouteRagpickerTasks, snap.DashboardRoute)
}

func TestManager_SweepEvictsIdleSessions(t *testing.T) {
	e := newEnv(t)
	m, _ := newTestManager(t, e, ManagerConfig{IdleTTL: time.Minute})
	ctx := context.Background()

	stale, err := m.Acquire(ctx, "stale")
	require.NoError(t, err)
	_, err = m.Acquire(ctx, "fresh")
	require.NoError(t, err)

	base := time.Now()
	m.now = func() time.Time { return base.Add(2 * time.Minute) }
	fresh, err := m.Acquire(ctx, "fresh")
	require.NoError(t, err)
	fresh.now = m.now
	fresh.touch()

	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, 1, m.Len())

	again, err := m.Acquire(ctx, "stale")
	require.NoError(t, err)
	assert.NotSame(t, stale, again)
}

func TestManager_SweepDisabledWithoutTTL(t *testing.T) {
	e := newEnv(t)
	m, _ := newTestManager(t, e, ManagerConfig{})
	_, err := m.Acquire(context.Background(), "sid")
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(24 * time.Hour) }
	assert.Equal(t, 0, m.Sweep())
	assert.Equal(t, 1, m.Len())
}

func TestManager_CapEvictsLeastRecentlyActive(t *testing.T) {
	e := newEnv(t)
	m, _ := newTestManager(t, e, ManagerConfig{MaxSessions: 3})
	ctx := context.Background()

	base := time.Now()
	sessions := make(map[string]*Session)
	for i, sid := range []string{"a", "b", "c"} {
		s, err := m.Acquire(ctx, sid)
		require.NoError(t, err)
		s.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		s.touch()
		sessions[sid] = s
	}
	// a is used again, leaving b as the least recently active
	sessions["a"].now = func() time.Time { return base.Add(time.Hour) }
	sessions["a"].touch()

	tests := []struct {
		sid     string
		evicted string
	}{
		{sid: "d", evicted: "b"},
		{sid: "e", evicted: "c"},
	}
	for _, tt := range tests {
		s, err := m.Acquire(ctx, tt.sid)
		require.NoError(t, err)
		s.now = func() time.Time { return base.Add(2 * time.Hour) }
		s.touch()
		assert.Equal(t, 3, m.Len())

		victim := sessions[tt.evicted]
		victim.mu.Lock()
		closed := victim.closed
		victim.mu.Unlock()
		assert.True(t, closed, tt.evicted)
	}

	again, err := m.Acquire(ctx, "a")
	require.NoError(t, err)
	assert.Same(t, sessions["a"], again)
}

func TestManager_CapWithEveryoneBusy(t *testing.T) {
	e := newEnv(t)
	m, _ := newTestManager(t, e, ManagerConfig{MaxSessions: 1})
	ctx := context.Background()

	s, err := m.Acquire(ctx, "a")
	require.NoError(t, err)
	s.mu.Lock()
	s.inOp = true
	s.mu.Unlock()

	_, err = m.Acquire(ctx, "b")
	assert.ErrorIs(t, err, ErrTooManySessions)
	assert.Equal(t, 1, m.Len())

	s.mu.Lock()
	s.inOp = false
	s.mu.Unlock()
	_, err = m.Acquire(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())
}

func TestManager_JanitorStartStop(t *testing.T) {
	e := newEnv(t)
	m, _ := newTestManager(t, e, ManagerConfig{IdleTTL: time.Nanosecond, JanitorInterval: 5 * time.Millisecond})

	_, err := m.Acquire(context.Background(), "sid")
	require.NoError(t, err)

	m.Start()
	m.Start()
	assert.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 5*time.Millisecond)

	m.Stop()
	m.Stop()
}

func TestManager_CloseClosesSessions(t *testing.T) {
	e := newEnv(t)
	m, _ := newTestManager(t, e, ManagerConfig{})

	s, err := m.Acquire(context.Background(), "sid")
	require.NoError(t, err)
	m.Close()

	assert.Equal(t, 0, m.Len())
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	assert.True(t, closed)
}

package session_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/photobooth/internal/render"
	"github.com/aretw0/photobooth/internal/runtime"
	"github.com/aretw0/photobooth/internal/testutils"
	"github.com/aretw0/photobooth/pkg/adapters/memory"
	"github.com/aretw0/photobooth/pkg/adapters/synthetic"
	"github.com/aretw0/photobooth/pkg/domain"
	"github.com/aretw0/photobooth/pkg/ports"
	"github.com/aretw0/photobooth/pkg/session"
)

func controllerFactory(cam *synthetic.Camera) session.Factory {
	return func(ctx context.Context, id string) (ports.BoothSession, error) {
		return runtime.NewController(domain.DefaultConfig(), cam, render.New(),
			testutils.NewRecordingSurface(), testutils.NewManualScheduler(),
			runtime.WithSessionID(id))
	}
}

func TestManager_CreateAndGet(t *testing.T) {
	cam := synthetic.New()
	mgr := session.NewManager(memory.NewStore(), controllerFactory(cam))
	ctx := context.Background()

	id, booth, err := mgr.Create(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, booth.Snapshot().SessionID)

	got, err := mgr.Get(ctx, id)
	require.NoError(t, err)
	assert.Same(t, booth, got)

	ids, err := mgr.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids)
}

func TestManager_NotFound(t *testing.T) {
	mgr := session.NewManager(memory.NewStore(), controllerFactory(synthetic.New()))
	ctx := context.Background()

	_, err := mgr.Get(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrSessionNotFound))

	err = mgr.Do(ctx, "missing", func(context.Context, ports.BoothSession) error { return nil })
	assert.True(t, errors.Is(err, domain.ErrSessionNotFound))

	assert.True(t, errors.Is(mgr.Delete(ctx, "missing"), domain.ErrSessionNotFound))
}

func TestManager_DeleteReleasesCamera(t *testing.T) {
	cam := synthetic.New()
	mgr := session.NewManager(memory.NewStore(), controllerFactory(cam))
	ctx := context.Background()

	id, booth, err := mgr.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, booth.StartSession(ctx))
	assert.Equal(t, 1, cam.Open())

	require.NoError(t, mgr.Delete(ctx, id))
	assert.Equal(t, 0, cam.Open())

	_, err = mgr.Get(ctx, id)
	assert.True(t, errors.Is(err, domain.ErrSessionNotFound))
}

func TestManager_RecreateClosesPrevious(t *testing.T) {
	cam := synthetic.New()
	mgr := session.NewManager(memory.NewStore(), controllerFactory(cam))
	ctx := context.Background()

	_, first, err := mgr.CreateWithID(ctx, "kiosk")
	require.NoError(t, err)
	require.NoError(t, first.StartSession(ctx))

	_, second, err := mgr.CreateWithID(ctx, "kiosk")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, 0, cam.Open(), "previous booth released its stream")
}

func TestManager_Close(t *testing.T) {
	cam := synthetic.New()
	mgr := session.NewManager(memory.NewStore(), controllerFactory(cam))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, booth, err := mgr.Create(ctx)
		require.NoError(t, err)
		require.NoError(t, booth.StartSession(ctx))
	}
	assert.Equal(t, 3, cam.Open())

	require.NoError(t, mgr.Close(ctx))
	assert.Equal(t, 0, cam.Open())
	ids, _ := mgr.List(ctx)
	assert.Empty(t, ids)
}

func TestManager_FactoryError(t *testing.T) {
	boom := errors.New("boom")
	mgr := session.NewManager(memory.NewStore(), func(context.Context, string) (ports.BoothSession, error) {
		return nil, boom
	})

	_, _, err := mgr.Create(context.Background())
	assert.True(t, errors.Is(err, boom))
}

func TestManager_Locking(t *testing.T) {
	mgr := session.NewManager(memory.NewStore(), controllerFactory(synthetic.New()))
	ctx := context.Background()
	id, _, err := mgr.Create(ctx)
	require.NoError(t, err)

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := mgr.Do(ctx, id, func(ctx context.Context, b ports.BoothSession) error {
				n := inside.Add(1)
				if n > maxInside.Load() {
					maxInside.Store(n)
				}
				time.Sleep(5 * time.Millisecond) // Simulate IO
				inside.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load(), "operations on one session are serialized")
}

type recordingLocker struct {
	mu   sync.Mutex
	keys []string
}

func (l *recordingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	l.mu.Lock()
	l.keys = append(l.keys, key)
	l.mu.Unlock()
	return func(context.Context) error { return nil }, nil
}

func TestManager_DistributedLock(t *testing.T) {
	locker := &recordingLocker{}
	mgr := session.NewManager(memory.NewStore(), controllerFactory(synthetic.New()),
		session.WithLocker(locker, time.Second))

	_, _, err := mgr.CreateWithID(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []string{"session:abc"}, locker.keys)
}

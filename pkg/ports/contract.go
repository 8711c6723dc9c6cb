package ports

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/photobooth/pkg/domain"
)

// stubSession is a BoothSession that only remembers its ID.
type stubSession struct {
	id string
}

func (s *stubSession) Config() domain.Config {
	return domain.DefaultConfig()
}

func (s *stubSession) StartSession(context.Context) error {
	return nil
}

func (s *stubSession) BeginCaptureCycle(context.Context) bool {
	return false
}

func (s *stubSession) RestartSession(context.Context) {}

func (s *stubSession) Snapshot() domain.SessionState {
	return domain.NewSessionState(s.id)
}

func (s *stubSession) Close(context.Context) error {
	return nil
}

func (s *stubSession) ComposeDownload(context.Context) (*domain.Artifact, error) {
	return nil, domain.ErrInsufficientImages
}

// RunSessionStoreContract runs a suite of tests to verify that a SessionStore implementation
// adheres to the defined interface contract.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("Save and Load", func(t *testing.T) {
		id := "contract-save-load"
		require.NoError(t, store.Save(ctx, id, &stubSession{id: id}))

		loaded, err := store.Load(ctx, id)
		require.NoError(t, err, "Load should not return error for existing session")
		assert.Equal(t, id, loaded.Snapshot().SessionID)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "contract-missing")
		assert.True(t, errors.Is(err, domain.ErrSessionNotFound), "expected ErrSessionNotFound, got %v", err)
	})

	t.Run("Replace", func(t *testing.T) {
		id := "contract-replace"
		first, second := &stubSession{id: id}, &stubSession{id: id}
		require.NoError(t, store.Save(ctx, id, first))
		require.NoError(t, store.Save(ctx, id, second))

		loaded, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.Same(t, second, loaded)
	})

	t.Run("Delete", func(t *testing.T) {
		id := "contract-delete"
		require.NoError(t, store.Save(ctx, id, &stubSession{id: id}))
		require.NoError(t, store.Delete(ctx, id))

		_, err := store.Load(ctx, id)
		assert.True(t, errors.Is(err, domain.ErrSessionNotFound))
		assert.NoError(t, store.Delete(ctx, id), "deleting twice is not an error")
	})

	t.Run("List", func(t *testing.T) {
		id := "contract-list"
		require.NoError(t, store.Save(ctx, id, &stubSession{id: id}))

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id)
		assert.NotContains(t, ids, "contract-delete")
	})
}

// RunCameraDeviceContract runs a suite of tests to verify that a CameraDevice implementation
// adheres to the defined interface contract. The device must be able to acquire a stream.
func RunCameraDeviceContract(t *testing.T, cam CameraDevice) {
	t.Helper()
	ctx := context.Background()

	t.Run("Acquire and Read", func(t *testing.T) {
		stream, err := cam.Acquire(ctx, 320, 240)
		require.NoError(t, err, "Acquire should not return error")
		require.NotNil(t, stream)
		defer func() { _ = cam.Release(stream) }()

		assert.NotEmpty(t, stream.ID(), "stream must carry an ID")

		frame, err := stream.ReadFrame(ctx)
		require.NoError(t, err, "ReadFrame should not return error")
		assert.False(t, frame.Bounds().Empty(), "frame must not be empty")
	})

	t.Run("Distinct Streams", func(t *testing.T) {
		s1, err := cam.Acquire(ctx, 320, 240)
		require.NoError(t, err)
		require.NoError(t, cam.Release(s1))

		s2, err := cam.Acquire(ctx, 320, 240)
		require.NoError(t, err)
		defer func() { _ = cam.Release(s2) }()

		assert.NotEqual(t, s1.ID(), s2.ID(), "each acquisition must yield a new handle")
	})

	t.Run("Read After Release", func(t *testing.T) {
		stream, err := cam.Acquire(ctx, 320, 240)
		require.NoError(t, err)
		require.NoError(t, cam.Release(stream))

		_, err = stream.ReadFrame(ctx)
		assert.Error(t, err, "a released stream must not produce frames")
	})
}

// RunDistributedLockerContract verifies mutual exclusion and release semantics of a DistributedLocker.
func RunDistributedLockerContract(t *testing.T, locker DistributedLocker) {
	t.Helper()
	key := "contract-camera-" + time.Now().Format("20060102150405.000000")

	t.Run("Exclusive", func(t *testing.T) {
		ctx := context.Background()
		unlock, err := locker.Lock(ctx, key, 5*time.Second)
		require.NoError(t, err)

		blocked, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
		defer cancel()
		_, err = locker.Lock(blocked, key, 5*time.Second)
		assert.Error(t, err, "second Lock on a held key must fail once the context expires")

		require.NoError(t, unlock(ctx))
	})

	t.Run("Reacquire After Unlock", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		unlock, err := locker.Lock(ctx, key, 5*time.Second)
		require.NoError(t, err)
		require.NoError(t, unlock(ctx))

		unlock, err = locker.Lock(ctx, key, 5*time.Second)
		require.NoError(t, err, "lock must be free after unlock")
		require.NoError(t, unlock(ctx))
	})
}

// RunLeaseLockerContract verifies that a refreshed lease outlives its first TTL and
// that a lease cannot be refreshed once released.
func RunLeaseLockerContract(t *testing.T, locker LeaseLocker) {
	t.Helper()
	key := "contract-lease-" + time.Now().Format("20060102150405.000000")
	ctx := context.Background()

	unlock, refresh, err := locker.LockLease(ctx, key, 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, refresh(ctx, 5*time.Second), "refreshing a held lease must succeed")

	blocked, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(blocked, key, time.Second)
	assert.Error(t, err, "a refreshed lease stays exclusive")

	require.NoError(t, unlock(ctx))
	assert.Error(t, refresh(ctx, 5*time.Second), "a released lease cannot be refreshed")
}

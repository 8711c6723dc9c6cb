package runtime_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/photobooth/internal/render"
	"github.com/aretw0/photobooth/internal/runtime"
	"github.com/aretw0/photobooth/internal/testutils"
	"github.com/aretw0/photobooth/pkg/adapters/redis"
	"github.com/aretw0/photobooth/pkg/adapters/synthetic"
	"github.com/aretw0/photobooth/pkg/domain"
	"github.com/aretw0/photobooth/pkg/ports"
)

type harness struct {
	ctrl    *runtime.Controller
	cam     *synthetic.Camera
	surface *testutils.RecordingSurface
	sched   *testutils.ManualScheduler
	cfg     domain.Config
}

func newHarness(t *testing.T, cam ports.CameraDevice, opts ...runtime.Option) *harness {
	t.Helper()
	cfg := domain.DefaultConfig()
	cfg.FrameWidth, cfg.FrameHeight = 62, 46
	return newHarnessWithConfig(t, cfg, cam, opts...)
}

func newHarnessWithConfig(t *testing.T, cfg domain.Config, cam ports.CameraDevice, opts ...runtime.Option) *harness {
	t.Helper()
	h := &harness{
		surface: testutils.NewRecordingSurface(),
		sched:   testutils.NewManualScheduler(),
		cfg:     cfg,
	}
	if cam == nil {
		h.cam = synthetic.New()
		cam = h.cam
	}

	ctrl, err := runtime.NewController(cfg, cam, render.New(), h.surface, h.sched, opts...)
	require.NoError(t, err)
	h.ctrl = ctrl
	return h
}

func rgba(c color.Color) color.RGBA {
	return color.RGBAModel.Convert(c).(color.RGBA)
}

// cycle runs one countdown through its completion.
func (h *harness) cycle(t *testing.T) {
	t.Helper()
	require.True(t, h.ctrl.BeginCaptureCycle(context.Background()))
	for i := 0; i < h.cfg.CountdownSeconds; i++ {
		h.sched.Advance(h.cfg.TickInterval)
	}
	h.sched.Advance(h.cfg.CompletionDelay)
}

func TestNewController_Validation(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.MaxCaptures = 0
	_, err := runtime.NewController(cfg, synthetic.New(), render.New(), testutils.NewRecordingSurface(), testutils.NewManualScheduler())
	assert.Error(t, err)

	_, err = runtime.NewController(domain.DefaultConfig(), nil, render.New(), testutils.NewRecordingSurface(), testutils.NewManualScheduler())
	assert.Error(t, err)
}

func TestController_FullSession(t *testing.T) {
	var phases []domain.Phase
	var captures, completions int
	hooks := domain.LifecycleHooks{
		OnPhaseChange:     func(_ context.Context, e *domain.PhaseEvent) { phases = append(phases, e.To) },
		OnCapture:         func(_ context.Context, e *domain.CaptureEvent) { captures++ },
		OnSessionComplete: func(_ context.Context, e *domain.PhaseEvent) { completions++ },
	}
	h := newHarness(t, nil, runtime.WithLifecycleHooks(hooks), runtime.WithSessionID("booth-1"))
	ctx := context.Background()

	require.NoError(t, h.ctrl.StartSession(ctx))
	assert.Equal(t, domain.ViewCapture, h.surface.View)
	assert.True(t, h.surface.CaptureEnabled)
	assert.Equal(t, 1, h.cam.Open())

	for i := 1; i <= h.cfg.MaxCaptures; i++ {
		h.cycle(t)
		assert.Equal(t, [2]int{i, h.cfg.MaxCaptures}, h.surface.Progress)
	}

	snap := h.ctrl.Snapshot()
	assert.Equal(t, "booth-1", snap.SessionID)
	assert.Equal(t, domain.PhaseSessionComplete, snap.Phase)
	assert.Len(t, snap.CapturedImages, 3)
	assert.False(t, snap.IsCapturing)

	assert.Equal(t, domain.ViewResults, h.surface.View)
	assert.Len(t, h.surface.Results, 3)
	assert.Equal(t, 1, h.cam.Released(), "stream released exactly once")
	assert.Equal(t, 0, h.cam.Open())
	assert.Equal(t, 0, h.sched.Pending())

	assert.Equal(t, 3, captures)
	assert.Equal(t, 1, completions)
	assert.Equal(t, domain.PhaseSessionComplete, phases[len(phases)-1])
	assert.Equal(t, []string{"ready", "3", "2", "1", "ready", "3", "2", "1", "ready", "3", "2", "1"}, h.surface.Countdowns())

	// No further cycles once complete.
	assert.False(t, h.ctrl.BeginCaptureCycle(ctx))
}

func TestController_ComposeDownload(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, h.ctrl.StartSession(ctx))
	for i := 0; i < h.cfg.MaxCaptures; i++ {
		h.cycle(t)
	}

	artifact, err := h.ctrl.ComposeDownload(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StripFilename, artifact.Filename)
	assert.Equal(t, 62, artifact.Width)
	assert.Equal(t, 138, artifact.Height)

	strip, err := png.Decode(bytes.NewReader(artifact.Data))
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 62, 138), strip.Bounds())

	for i, img := range h.ctrl.Snapshot().CapturedImages {
		original, err := png.Decode(bytes.NewReader(img.Original))
		require.NoError(t, err)
		for y := 0; y < 46; y += 9 {
			for x := 0; x < 62; x += 7 {
				require.Equal(t, rgba(original.At(x, y)), rgba(strip.At(x, i*46+y)), "image %d pixel %d,%d", i, x, y)
			}
		}
		assert.Equal(t, synthetic.MarkerColor, rgba(original.At(0, 0)), "strip slices are unmirrored")

		preview, err := png.Decode(bytes.NewReader(img.Preview))
		require.NoError(t, err)
		assert.Equal(t, synthetic.MarkerColor, rgba(preview.At(61, 0)), "preview is mirrored")
	}
}

func TestController_ComposeDownloadFullSize(t *testing.T) {
	h := newHarnessWithConfig(t, domain.DefaultConfig(), nil)
	ctx := context.Background()
	require.NoError(t, h.ctrl.StartSession(ctx))
	for i := 0; i < h.cfg.MaxCaptures; i++ {
		h.cycle(t)
	}

	artifact, err := h.ctrl.ComposeDownload(ctx)
	require.NoError(t, err)
	assert.Equal(t, 620, artifact.Width)
	assert.Equal(t, 1380, artifact.Height)

	strip, err := png.Decode(bytes.NewReader(artifact.Data))
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 620, 1380), strip.Bounds())

	// Slots are [0,460), [460,920) and [920,1380).
	for i, img := range h.ctrl.Snapshot().CapturedImages {
		original, err := png.Decode(bytes.NewReader(img.Original))
		require.NoError(t, err)
		require.Equal(t, image.Rect(0, 0, 620, 460), original.Bounds())
		for _, y := range []int{0, 229, 459} {
			for _, x := range []int{0, 310, 619} {
				require.Equal(t, rgba(original.At(x, y)), rgba(strip.At(x, i*460+y)), "image %d pixel %d,%d", i, x, y)
			}
		}
	}
}

func TestController_ComposeDownloadInsufficient(t *testing.T) {
	var kinds []string
	hooks := domain.LifecycleHooks{
		OnError: func(_ context.Context, e *domain.ErrorEvent) { kinds = append(kinds, e.Kind) },
	}
	h := newHarness(t, nil, runtime.WithLifecycleHooks(hooks))
	ctx := context.Background()
	require.NoError(t, h.ctrl.StartSession(ctx))
	h.cycle(t)

	before := h.ctrl.Snapshot()
	artifact, err := h.ctrl.ComposeDownload(ctx)
	assert.Nil(t, artifact)
	assert.True(t, errors.Is(err, domain.ErrInsufficientImages))
	assert.Len(t, h.surface.Messages, 1)
	assert.Equal(t, before, h.ctrl.Snapshot(), "no state change")
	assert.Equal(t, []string{"insufficient_images"}, kinds)
}

func TestController_BeginCycleGuards(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	assert.False(t, h.ctrl.BeginCaptureCycle(ctx), "no stream before start")

	require.NoError(t, h.ctrl.StartSession(ctx))
	require.True(t, h.ctrl.BeginCaptureCycle(ctx))
	assert.False(t, h.ctrl.BeginCaptureCycle(ctx), "already counting")
	assert.False(t, h.surface.CaptureEnabled)

	h.sched.Advance(3 * h.cfg.TickInterval)
	assert.False(t, h.ctrl.BeginCaptureCycle(ctx), "still inside the completion delay")
	h.sched.Advance(h.cfg.CompletionDelay)
	assert.True(t, h.ctrl.BeginCaptureCycle(ctx))
}

func TestController_RestartMidCountdown(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, h.ctrl.StartSession(ctx))
	h.cycle(t)

	require.True(t, h.ctrl.BeginCaptureCycle(ctx))
	h.sched.Advance(h.cfg.TickInterval)

	h.ctrl.RestartSession(ctx)
	assert.Equal(t, 0, h.sched.Pending(), "countdown canceled")

	h.sched.Advance(10 * time.Second)

	snap := h.ctrl.Snapshot()
	assert.Equal(t, domain.PhaseIdle, snap.Phase)
	assert.Empty(t, snap.CapturedImages)
	assert.False(t, snap.IsCapturing)
	assert.False(t, snap.HasStream())
	assert.Equal(t, domain.ViewStart, h.surface.View)
	assert.Equal(t, [2]int{0, h.cfg.MaxCaptures}, h.surface.Progress)
	assert.Equal(t, 1, h.cam.Released())
	assert.Equal(t, 0, h.cam.Open())

	// A new session starts clean.
	require.NoError(t, h.ctrl.StartSession(ctx))
	h.cycle(t)
	assert.Equal(t, 1, h.ctrl.Snapshot().Count())
}

func TestController_StartTwiceReleasesPreviousStream(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	require.NoError(t, h.ctrl.StartSession(ctx))
	h.cycle(t)
	require.NoError(t, h.ctrl.StartSession(ctx))

	assert.Equal(t, 0, h.ctrl.Snapshot().Count())
	assert.Equal(t, 2, h.cam.Acquired())
	assert.Equal(t, 1, h.cam.Released())
	assert.Equal(t, 1, h.cam.Open())
}

func TestController_DeviceUnavailable(t *testing.T) {
	var kinds []string
	hooks := domain.LifecycleHooks{
		OnError: func(_ context.Context, e *domain.ErrorEvent) { kinds = append(kinds, e.Kind) },
	}
	cam := synthetic.New(synthetic.WithFailure(domain.DevicePermissionDenied))
	h := newHarness(t, cam, runtime.WithLifecycleHooks(hooks))
	ctx := context.Background()

	err := h.ctrl.StartSession(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDeviceUnavailable))

	assert.Equal(t, domain.ViewCapture, h.surface.View)
	assert.False(t, h.surface.CaptureEnabled)
	require.Len(t, h.surface.Errors, 1)
	assert.Contains(t, h.surface.Errors[0], "denied")

	snap := h.ctrl.Snapshot()
	assert.Empty(t, snap.CapturedImages)
	assert.NotEmpty(t, snap.LastError)
	assert.False(t, h.ctrl.BeginCaptureCycle(ctx), "not retried, capture stays disabled")
	assert.Equal(t, []string{"device_unavailable"}, kinds)
}

type refusingLocker struct{}

func (refusingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	return nil, errors.New("held elsewhere")
}

type countingLocker struct {
	locks, unlocks int
}

func (l *countingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	l.locks++
	return func(context.Context) error {
		l.unlocks++
		return nil
	}, nil
}

func TestController_CameraLock(t *testing.T) {
	t.Run("Busy", func(t *testing.T) {
		h := newHarness(t, nil, runtime.WithCameraLock(refusingLocker{}, "camera:0", time.Minute))
		err := h.ctrl.StartSession(context.Background())
		require.Error(t, err)

		var devErr *domain.DeviceError
		require.True(t, errors.As(err, &devErr))
		assert.Equal(t, domain.DeviceBusy, devErr.Category)
		assert.Equal(t, 0, h.cam.Acquired(), "camera untouched while locked")
	})

	t.Run("Held With Stream", func(t *testing.T) {
		locker := &countingLocker{}
		h := newHarness(t, nil, runtime.WithCameraLock(locker, "camera:0", time.Minute))
		ctx := context.Background()

		require.NoError(t, h.ctrl.StartSession(ctx))
		assert.Equal(t, 1, locker.locks)
		assert.Equal(t, 0, locker.unlocks)

		for i := 0; i < h.cfg.MaxCaptures; i++ {
			h.cycle(t)
		}
		assert.Equal(t, 1, locker.unlocks, "released with the stream")
	})
}

// gatedCamera blocks Acquire until the test opens the gate.
type gatedCamera struct {
	*synthetic.Camera
	entered chan struct{}
	gate    chan struct{}
}

func (g *gatedCamera) Acquire(ctx context.Context, w, h int) (ports.Stream, error) {
	close(g.entered)
	<-g.gate
	return g.Camera.Acquire(ctx, w, h)
}

func TestController_RestartDuringAcquisition(t *testing.T) {
	cam := &gatedCamera{Camera: synthetic.New(), entered: make(chan struct{}), gate: make(chan struct{})}
	h := newHarness(t, cam)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- h.ctrl.StartSession(ctx) }()

	<-cam.entered
	h.ctrl.RestartSession(ctx)
	close(cam.gate)
	require.NoError(t, <-done)

	snap := h.ctrl.Snapshot()
	assert.Equal(t, domain.PhaseIdle, snap.Phase)
	assert.False(t, snap.HasStream())
	assert.Equal(t, 1, cam.Acquired())
	assert.Equal(t, 1, cam.Released(), "late stream handed back")
	assert.Equal(t, domain.ViewStart, h.surface.View)
}

func TestController_Close(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, h.ctrl.StartSession(ctx))

	require.NoError(t, h.ctrl.Close(ctx))
	assert.Equal(t, 0, h.cam.Open())
}

func TestController_BeginCycleConcurrent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, h.ctrl.StartSession(ctx))

	var started atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if h.ctrl.BeginCaptureCycle(ctx) {
				started.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), started.Load(), "only the cycle that actually began reports true")
	assert.Equal(t, 1, h.sched.Pending())
}

// slowCamera holds every frame read until the test opens the gate.
type slowCamera struct {
	*synthetic.Camera
	reading chan struct{}
	gate    chan struct{}
}

type slowStream struct {
	ports.Stream
	cam *slowCamera
}

func newSlowCamera() *slowCamera {
	return &slowCamera{Camera: synthetic.New(), reading: make(chan struct{}, 4), gate: make(chan struct{})}
}

func (c *slowCamera) Acquire(ctx context.Context, w, h int) (ports.Stream, error) {
	st, err := c.Camera.Acquire(ctx, w, h)
	if err != nil {
		return nil, err
	}
	return &slowStream{Stream: st, cam: c}, nil
}

func (c *slowCamera) Release(st ports.Stream) error {
	return c.Camera.Release(st.(*slowStream).Stream)
}

func (s *slowStream) ReadFrame(ctx context.Context) (image.Image, error) {
	s.cam.reading <- struct{}{}
	<-s.cam.gate
	return s.Stream.ReadFrame(ctx)
}

// countdownInBackground runs the countdown to zero on another goroutine.
func (h *harness) countdownInBackground() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.sched.Advance(time.Duration(h.cfg.CountdownSeconds) * h.cfg.TickInterval)
	}()
	return done
}

func TestController_SnapshotDuringFrameRead(t *testing.T) {
	cam := newSlowCamera()
	h := newHarness(t, cam)
	ctx := context.Background()
	require.NoError(t, h.ctrl.StartSession(ctx))
	require.True(t, h.ctrl.BeginCaptureCycle(ctx))

	done := h.countdownInBackground()
	<-cam.reading

	snapshots := make(chan domain.SessionState, 1)
	go func() { snapshots <- h.ctrl.Snapshot() }()
	select {
	case snap := <-snapshots:
		assert.True(t, snap.IsCapturing)
		assert.Zero(t, snap.Count())
	case <-time.After(2 * time.Second):
		t.Fatal("Snapshot blocked while a frame was being read")
	}

	close(cam.gate)
	<-done
	assert.Equal(t, 1, h.ctrl.Snapshot().Count())
}

func TestController_RestartDuringFrameRead(t *testing.T) {
	cam := newSlowCamera()
	h := newHarness(t, cam)
	ctx := context.Background()
	require.NoError(t, h.ctrl.StartSession(ctx))
	require.True(t, h.ctrl.BeginCaptureCycle(ctx))

	done := h.countdownInBackground()
	<-cam.reading

	h.ctrl.RestartSession(ctx)
	assert.Equal(t, 0, cam.Released(), "stream stays open until the read returns")

	close(cam.gate)
	<-done

	snap := h.ctrl.Snapshot()
	assert.Equal(t, domain.PhaseIdle, snap.Phase)
	assert.Zero(t, snap.Count(), "late frame dropped")
	assert.Equal(t, 1, cam.Released())
	assert.Equal(t, 0, cam.Open())
	assert.Equal(t, 0, h.sched.Pending())
}

const (
	cameraKey      = "camera:synthetic:0"
	cameraRedisKey = "photobooth:lock:camera:synthetic:0"
)

func newRedisLocker(t *testing.T) (*redis.Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redis.NewLocker(client, "photobooth:", redis.WithRetryInterval(5*time.Millisecond)), mr
}

func TestController_SharedCameraLock(t *testing.T) {
	locker, mr := newRedisLocker(t)
	opts := []runtime.Option{
		runtime.WithCameraLock(locker, cameraKey, time.Minute),
		runtime.WithCameraLockWait(50 * time.Millisecond),
	}
	a := newHarness(t, nil, opts...)
	b := newHarness(t, nil, opts...)
	ctx := context.Background()

	require.NoError(t, a.ctrl.StartSession(ctx))
	assert.True(t, mr.Exists(cameraRedisKey))

	began := time.Now()
	err := b.ctrl.StartSession(ctx)
	require.Error(t, err)
	assert.Less(t, time.Since(began), time.Second, "a busy camera is reported, not waited on")

	var devErr *domain.DeviceError
	require.True(t, errors.As(err, &devErr))
	assert.Equal(t, domain.DeviceBusy, devErr.Category)
	assert.True(t, errors.Is(err, domain.ErrDeviceUnavailable))
	assert.Equal(t, 0, b.cam.Acquired())
	assert.False(t, b.surface.CaptureEnabled)

	a.ctrl.RestartSession(ctx)
	assert.False(t, mr.Exists(cameraRedisKey))

	require.NoError(t, b.ctrl.StartSession(ctx))
	assert.Equal(t, 1, b.cam.Open())
}

func TestController_CameraLeaseOutlivesTTL(t *testing.T) {
	locker, mr := newRedisLocker(t)
	ttl := time.Minute
	opts := []runtime.Option{
		runtime.WithCameraLock(locker, cameraKey, ttl),
		runtime.WithCameraLockWait(50 * time.Millisecond),
	}
	a := newHarness(t, nil, opts...)
	b := newHarness(t, nil, opts...)
	ctx := context.Background()

	require.NoError(t, a.ctrl.StartSession(ctx))
	for i := 0; i < 4; i++ {
		a.sched.Advance(ttl / 3)
		mr.FastForward(ttl / 3)
	}
	assert.True(t, mr.Exists(cameraRedisKey), "lease refreshed while the stream is held")

	require.Error(t, b.ctrl.StartSession(ctx))
	assert.Equal(t, 0, b.cam.Open())
	assert.Equal(t, 1, a.cam.Open())

	a.ctrl.RestartSession(ctx)
	assert.Equal(t, 0, a.sched.Pending(), "refresh stops with the stream")
	require.NoError(t, b.ctrl.StartSession(ctx))
}

func TestController_CameraLeaseLost(t *testing.T) {
	var kinds []string
	hooks := domain.LifecycleHooks{
		OnError: func(_ context.Context, e *domain.ErrorEvent) { kinds = append(kinds, e.Kind) },
	}
	locker, mr := newRedisLocker(t)
	ttl := time.Minute
	h := newHarness(t, nil, runtime.WithCameraLock(locker, cameraKey, ttl), runtime.WithLifecycleHooks(hooks))
	ctx := context.Background()
	require.NoError(t, h.ctrl.StartSession(ctx))

	// The lease expires and another booth takes the camera.
	mr.FastForward(2 * ttl)
	other, err := locker.Lock(ctx, cameraKey, ttl)
	require.NoError(t, err)
	defer func() { _ = other(ctx) }()

	h.sched.Advance(ttl / 3)
	assert.Equal(t, []string{"lock_lost"}, kinds)
	assert.Equal(t, 0, h.sched.Pending(), "no refresh once the lease is lost")
	assert.True(t, mr.Exists(cameraRedisKey), "the new holder keeps its lock")
}

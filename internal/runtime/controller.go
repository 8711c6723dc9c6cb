package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/photobooth/internal/logging"
	"github.com/aretw0/photobooth/pkg/domain"
	"github.com/aretw0/photobooth/pkg/ports"
)

// Controller is the capture sequence controller.
// It owns the session state, feeds events through Transition and executes the
// resulting effects against the camera, renderer, surface and scheduler.
// All events are serialized on one mutex, so the machine behaves as if it ran on a
// single logical thread; the only waits happening outside the mutex are camera
// acquisition, frame reads and strip composition.
type Controller struct {
	cfg       domain.Config
	camera    ports.CameraDevice
	renderer  ports.FrameRenderer
	surface   ports.DisplaySurface
	scheduler ports.Scheduler

	locker   ports.DistributedLocker
	lockKey  string
	lockTTL  time.Duration
	lockWait time.Duration

	hooks     domain.LifecycleHooks
	logger    *slog.Logger
	now       func() time.Time
	sessionID string

	mu      sync.Mutex
	state   domain.SessionState
	streams map[string]*heldStream
	timer   ports.Timer
}

// heldStream is a camera stream owned by the controller, with its camera lock.
type heldStream struct {
	stream    ports.Stream
	unlock    ports.UnlockFunc
	refresh   ports.RefreshFunc
	keepalive ports.Timer
	reading   bool // a frame read is in flight outside the mutex
	released  bool // released during the read; closed when it returns
}

// blocking is the work effects leave for after the mutex is released.
type blocking struct {
	acquire *domain.Acquire
	read    *frameRead
}

type frameRead struct {
	token uint64
	id    string
	held  *heldStream
}

var _ ports.BoothSession = (*Controller)(nil)

// Option configures the Controller.
type Option func(*Controller)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(c *Controller) {
		c.hooks = hooks
	}
}

// WithCameraLock makes every session hold key on locker while it owns a stream.
// Lease lockers are refreshed every third of ttl until the stream is released.
func WithCameraLock(locker ports.DistributedLocker, key string, ttl time.Duration) Option {
	return func(c *Controller) {
		c.locker = locker
		c.lockKey = key
		if ttl > 0 {
			c.lockTTL = ttl
		}
	}
}

// WithCameraLockWait bounds how long StartSession waits for a busy camera lock
// before reporting the device as busy.
func WithCameraLockWait(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.lockWait = d
		}
	}
}

// WithSessionID names the session owned by the controller.
func WithSessionID(id string) Option {
	return func(c *Controller) {
		c.state.SessionID = id
	}
}

// WithClock overrides the timestamp source used for captured images and events.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// NewController creates a controller in the Idle phase.
func NewController(cfg domain.Config, camera ports.CameraDevice, renderer ports.FrameRenderer,
	surface ports.DisplaySurface, scheduler ports.Scheduler, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid booth config: %w", err)
	}
	if camera == nil || renderer == nil || surface == nil || scheduler == nil {
		return nil, errors.New("camera, renderer, surface and scheduler are required")
	}

	c := &Controller{
		cfg:       cfg,
		camera:    camera,
		renderer:  renderer,
		surface:   surface,
		scheduler: scheduler,
		lockTTL:   time.Minute,
		lockWait:  2 * time.Second,
		logger:    logging.NewNop(),
		now:       time.Now,
		state:     domain.NewSessionState(""),
		streams:   make(map[string]*heldStream),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.sessionID = c.state.SessionID
	c.logger = c.logger.With("session_id", c.sessionID)
	return c, nil
}

// Config returns the fixed booth configuration.
func (c *Controller) Config() domain.Config {
	return c.cfg
}

// Snapshot returns a copy of the current session state.
func (c *Controller) Snapshot() domain.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Snapshot()
}

// StartSession clears any previous session, acquires a camera stream and shows the
// capture view. A failed acquisition is shown to the user and returned; it leaves the
// session with zero images and capture disabled.
func (c *Controller) StartSession(ctx context.Context) error {
	out := c.dispatch(ctx, domain.Event{Type: domain.EventStartSession})
	if out.acquire == nil {
		return nil
	}
	req := *out.acquire

	held, err := c.acquire(ctx, req)
	if err != nil {
		c.dispatch(ctx, domain.Event{Type: domain.EventStreamFailed, Epoch: req.Epoch, Err: err})
		c.fireError(ctx, "device_unavailable", err)
		return fmt.Errorf("start session: %w", err)
	}

	// Register the handle before the event so a release effect can find it,
	// including the one emitted when the session restarted meanwhile.
	id := held.stream.ID()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streams[id] = held
	c.keepAlive(id, held)
	c.dispatchLocked(ctx, domain.Event{Type: domain.EventStreamAcquired, Epoch: req.Epoch, StreamID: id})
	return nil
}

// BeginCaptureCycle starts a countdown. It is a no-op, reported as false, while a
// cycle is running, when every frame is already captured or when no stream is held.
func (c *Controller) BeginCaptureCycle(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !CanBeginCycle(c.cfg, c.state) {
		c.logger.Debug("capture cycle declined")
		return false
	}
	c.dispatchLocked(ctx, domain.Event{Type: domain.EventBeginCycle})
	return true
}

// RestartSession cancels any running countdown, releases the stream and returns to
// the start view with no images.
func (c *Controller) RestartSession(ctx context.Context) {
	c.dispatch(ctx, domain.Event{Type: domain.EventRestart})
}

// ComposeDownload builds the strip once every frame has been captured.
// With fewer images it shows a transient message and returns ErrInsufficientImages.
func (c *Controller) ComposeDownload(ctx context.Context) (*domain.Artifact, error) {
	c.mu.Lock()
	snap := c.state.Snapshot()
	if !CanCompose(c.cfg, snap) {
		c.surface.ShowTransientMessage(
			fmt.Sprintf("Take all %d photos before downloading.", c.cfg.MaxCaptures),
			c.cfg.MessageDuration,
		)
		c.mu.Unlock()
		err := fmt.Errorf("%w: have %d of %d", domain.ErrInsufficientImages, snap.Count(), c.cfg.MaxCaptures)
		c.fireError(ctx, "insufficient_images", err)
		return nil, err
	}
	c.mu.Unlock()

	stills := make([][]byte, 0, len(snap.CapturedImages))
	for _, img := range snap.CapturedImages {
		stills = append(stills, img.Original)
	}

	began := c.now()
	data, err := c.renderer.Compose(ctx, stills, c.cfg.FrameWidth, c.cfg.FrameHeight)
	if err != nil {
		c.fireError(ctx, "render_failure", err)
		return nil, fmt.Errorf("compose strip: %w", err)
	}

	if c.hooks.OnCompose != nil {
		c.hooks.OnCompose(ctx, &domain.ComposeEvent{
			Timestamp: c.now(),
			SessionID: snap.SessionID,
			Duration:  c.now().Sub(began),
			Size:      len(data),
		})
	}
	c.logger.Info("strip composed", "bytes", len(data))

	return &domain.Artifact{
		Filename: domain.StripFilename,
		Width:    c.cfg.FrameWidth,
		Height:   c.cfg.StripHeight(),
		Data:     data,
	}, nil
}

// Close abandons the session and releases the camera.
func (c *Controller) Close(ctx context.Context) error {
	c.RestartSession(ctx)
	return nil
}

// dispatch runs ev and every follow-up event to completion under the lock.
func (c *Controller) dispatch(ctx context.Context, ev domain.Event) blocking {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dispatchLocked(ctx, ev)
}

// dispatchLocked is dispatch for callers already holding c.mu. Camera acquisition and
// frame reads block, so they are returned for the caller to run without the lock.
func (c *Controller) dispatchLocked(ctx context.Context, ev domain.Event) blocking {
	var (
		out     blocking
		pending = []domain.Event{ev}
	)

	for len(pending) > 0 {
		ev, pending = pending[0], pending[1:]

		prev := c.state
		next, effects := Transition(c.cfg, prev, ev)
		c.state = next

		c.logger.Debug("transition", "event", ev.Type, "from", prev.Phase, "to", next.Phase, "effects", len(effects))

		for _, eff := range effects {
			if followUp := c.execute(ctx, eff, &out); followUp != nil {
				pending = append(pending, *followUp)
			}
		}

		c.observe(ctx, prev, next)
	}
	return out
}

// execute performs one effect. Must be called with c.mu held.
func (c *Controller) execute(ctx context.Context, eff domain.Effect, out *blocking) *domain.Event {
	switch eff.Type {
	case domain.EffectShowView:
		c.surface.ShowView(eff.Payload.(domain.View))

	case domain.EffectSetProgress:
		p := eff.Payload.(domain.Progress)
		c.surface.SetProgressText(p.Current, p.Max)

	case domain.EffectSetCountdown:
		c.surface.SetCountdownText(eff.Payload.(domain.Countdown))

	case domain.EffectSetCaptureEnabled:
		c.surface.SetCaptureEnabled(eff.Payload.(bool))

	case domain.EffectShowMessage:
		m := eff.Payload.(domain.Message)
		c.surface.ShowTransientMessage(m.Text, m.Duration)

	case domain.EffectShowError:
		c.surface.ShowError(eff.Payload.(string))

	case domain.EffectShowResults:
		c.surface.ShowResults(eff.Payload.([]domain.CapturedImage))

	case domain.EffectAcquireStream:
		acq := eff.Payload.(domain.Acquire)
		out.acquire = &acq

	case domain.EffectReleaseStream:
		c.releaseStream(ctx, eff.Payload.(string))

	case domain.EffectCancelTimers:
		if c.timer != nil {
			c.timer.Stop()
			c.timer = nil
		}

	case domain.EffectScheduleTick:
		t := eff.Payload.(domain.Timer)
		c.arm(t.After, domain.Event{Type: domain.EventTick, Token: t.Token})

	case domain.EffectScheduleCompletion:
		t := eff.Payload.(domain.Timer)
		c.arm(t.After, domain.Event{Type: domain.EventCycleComplete, Token: t.Token})

	case domain.EffectCaptureFrame:
		t := eff.Payload.(domain.Timer)
		return c.beginRead(t.Token, out)

	default:
		c.logger.Warn("unknown effect", "type", eff.Type)
	}
	return nil
}

// arm schedules ev. At most one timer is pending per session: a tick or a completion.
// The callback dispatches on its own, so the scheduler must not run it inline.
func (c *Controller) arm(after time.Duration, ev domain.Event) {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = c.scheduler.AfterFunc(after, func() {
		ctx := context.Background()
		if out := c.dispatch(ctx, ev); out.read != nil {
			c.readFrame(ctx, *out.read)
		}
	})
}

// beginRead marks the current stream busy and leaves the read to the caller.
// Must be called with c.mu held.
func (c *Controller) beginRead(token uint64, out *blocking) *domain.Event {
	id := c.state.StreamID
	held, ok := c.streams[id]
	if !ok {
		err := fmt.Errorf("%w: no stream", domain.ErrRenderFailure)
		c.logger.Warn("capture without stream", "err", err)
		return &domain.Event{Type: domain.EventFrameFailed, Token: token, Err: err}
	}
	held.reading = true
	out.read = &frameRead{token: token, id: id, held: held}
	return nil
}

// readFrame renders the still outside the lock and feeds the result back as an event.
// A restart in the meantime makes the event stale.
func (c *Controller) readFrame(ctx context.Context, r frameRead) {
	ev := c.renderStill(ctx, r.held.stream, r.token)

	c.mu.Lock()
	defer c.mu.Unlock()
	r.held.reading = false
	if r.held.released {
		c.closeStream(ctx, r.id, r.held)
	}
	c.dispatchLocked(ctx, ev)
}

func (c *Controller) renderStill(ctx context.Context, stream ports.Stream, token uint64) domain.Event {
	preview, err := c.renderer.Capture(ctx, stream, c.cfg.FrameWidth, c.cfg.FrameHeight, true)
	if err == nil {
		var original []byte
		original, err = c.renderer.Flip(preview)
		if err == nil {
			return domain.Event{
				Type:  domain.EventFrameCaptured,
				Token: token,
				Image: &domain.CapturedImage{
					Original:   original,
					Preview:    preview,
					CapturedAt: c.now(),
				},
			}
		}
	}

	err = fmt.Errorf("%w: %v", domain.ErrRenderFailure, err)
	c.logger.Warn("frame capture failed", "err", err)
	c.fireError(ctx, "render_failure", err)
	return domain.Event{Type: domain.EventFrameFailed, Token: token, Err: err}
}

// acquire opens the camera, holding the camera lock first when one is configured.
// The lock wait is bounded by lockWait; a held lock reports the device as busy.
func (c *Controller) acquire(ctx context.Context, req domain.Acquire) (*heldStream, error) {
	held := &heldStream{}
	if c.locker != nil {
		lockCtx, cancel := context.WithTimeout(ctx, c.lockWait)
		var err error
		if lease, ok := c.locker.(ports.LeaseLocker); ok {
			held.unlock, held.refresh, err = lease.LockLease(lockCtx, c.lockKey, c.lockTTL)
		} else {
			held.unlock, err = c.locker.Lock(lockCtx, c.lockKey, c.lockTTL)
		}
		cancel()
		if err != nil {
			c.logger.Warn("camera lock unavailable", "key", c.lockKey, "err", err)
			return nil, domain.NewDeviceError(domain.DeviceBusy, "camera "+c.lockKey+" is locked", err)
		}
	}

	stream, err := c.camera.Acquire(ctx, req.Width, req.Height)
	if err != nil {
		if held.unlock != nil {
			c.runUnlock(ctx, held.unlock)
		}
		var devErr *domain.DeviceError
		if !errors.As(err, &devErr) {
			err = domain.NewDeviceError(domain.DeviceOSFailure, "acquire camera", err)
		}
		c.logger.Warn("camera acquisition failed", "err", err)
		return nil, err
	}

	c.logger.Info("camera acquired", "stream_id", stream.ID(), "epoch", req.Epoch)
	held.stream = stream
	return held, nil
}

// keepAlive refreshes the camera lease every third of its TTL while id stays registered.
// Must be called with c.mu held.
func (c *Controller) keepAlive(id string, held *heldStream) {
	every := c.lockTTL / 3
	if held.refresh == nil || every <= 0 {
		return
	}
	held.keepalive = c.scheduler.AfterFunc(every, func() {
		ctx := context.Background()
		err := held.refresh(ctx, c.lockTTL)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.streams[id] != held {
			return
		}
		if err != nil {
			c.logger.Warn("camera lock lost", "key", c.lockKey, "stream_id", id, "err", err)
			c.fireError(ctx, "lock_lost", err)
			return
		}
		c.keepAlive(id, held)
	})
}

// releaseStream gives the stream back to the camera. Must be called with c.mu held.
// A stream with a frame read in flight is closed once the read returns.
func (c *Controller) releaseStream(ctx context.Context, id string) {
	held, ok := c.streams[id]
	if !ok {
		return
	}
	delete(c.streams, id)
	if held.keepalive != nil {
		held.keepalive.Stop()
	}
	if held.reading {
		held.released = true
		return
	}
	c.closeStream(ctx, id, held)
}

func (c *Controller) closeStream(ctx context.Context, id string, held *heldStream) {
	if err := c.camera.Release(held.stream); err != nil {
		c.logger.Warn("release stream failed", "stream_id", id, "err", err)
	}
	if held.unlock != nil {
		c.runUnlock(ctx, held.unlock)
	}
	c.logger.Info("camera released", "stream_id", id)
}

func (c *Controller) runUnlock(ctx context.Context, unlock ports.UnlockFunc) {
	if err := unlock(context.WithoutCancel(ctx)); err != nil {
		c.logger.Warn("Failed to release camera lock (will expire via TTL)",
			"key", c.lockKey,
			"err", err,
		)
	}
}

func (c *Controller) observe(ctx context.Context, prev, next domain.SessionState) {
	if next.Count() > prev.Count() && c.hooks.OnCapture != nil {
		c.hooks.OnCapture(ctx, &domain.CaptureEvent{
			Timestamp: c.now(),
			SessionID: next.SessionID,
			Index:     next.Count() - 1,
			Max:       c.cfg.MaxCaptures,
		})
	}
	if prev.Phase == next.Phase {
		return
	}
	ev := &domain.PhaseEvent{
		Timestamp: c.now(),
		SessionID: next.SessionID,
		From:      prev.Phase,
		To:        next.Phase,
	}
	c.logger.Info("phase changed", "from", prev.Phase, "to", next.Phase, "count", next.Count())
	if c.hooks.OnPhaseChange != nil {
		c.hooks.OnPhaseChange(ctx, ev)
	}
	if next.Phase == domain.PhaseSessionComplete && c.hooks.OnSessionComplete != nil {
		c.hooks.OnSessionComplete(ctx, ev)
	}
}

func (c *Controller) fireError(ctx context.Context, kind string, err error) {
	if c.hooks.OnError != nil {
		c.hooks.OnError(ctx, &domain.ErrorEvent{
			Timestamp: c.now(),
			SessionID: c.sessionID,
			Kind:      kind,
			Err:       err,
		})
	}
}

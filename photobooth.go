package photobooth

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aretw0/photobooth/internal/render"
	"github.com/aretw0/photobooth/internal/runtime"
	"github.com/aretw0/photobooth/pkg/adapters/clock"
	"github.com/aretw0/photobooth/pkg/domain"
	"github.com/aretw0/photobooth/pkg/ports"
)

// Booth is the high-level entry point for the photobooth library.
// It wraps the capture sequence controller with sensible defaults.
type Booth struct {
	*runtime.Controller
}

var _ ports.BoothSession = (*Booth)(nil)

type options struct {
	cfg        domain.Config
	renderer   ports.FrameRenderer
	scheduler  ports.Scheduler
	controller []runtime.Option
}

// Option defines a functional option for configuring the Booth.
type Option func(*options)

// WithConfig replaces the default three-photo configuration.
func WithConfig(cfg domain.Config) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

// WithRenderer injects a custom FrameRenderer.
func WithRenderer(r ports.FrameRenderer) Option {
	return func(o *options) {
		o.renderer = r
	}
}

// WithScheduler injects the scheduler driving countdown ticks. Tests use a manual one.
func WithScheduler(s ports.Scheduler) Option {
	return func(o *options) {
		o.scheduler = s
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.controller = append(o.controller, runtime.WithLogger(logger))
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(o *options) {
		o.controller = append(o.controller, runtime.WithLifecycleHooks(hooks))
	}
}

// WithCameraLock guards camera acquisition with a distributed lock on key.
func WithCameraLock(locker ports.DistributedLocker, key string, ttl time.Duration) Option {
	return func(o *options) {
		o.controller = append(o.controller, runtime.WithCameraLock(locker, key, ttl))
	}
}

// WithCameraLockWait bounds how long StartSession waits for a camera held elsewhere.
func WithCameraLockWait(d time.Duration) Option {
	return func(o *options) {
		o.controller = append(o.controller, runtime.WithCameraLockWait(d))
	}
}

// WithSessionID sets the ID reported in snapshots and hooks.
func WithSessionID(id string) Option {
	return func(o *options) {
		o.controller = append(o.controller, runtime.WithSessionID(id))
	}
}

// New builds a booth showing the start view on surface.
func New(camera ports.CameraDevice, surface ports.DisplaySurface, opts ...Option) (*Booth, error) {
	o := &options{
		cfg:       domain.DefaultConfig(),
		renderer:  render.New(),
		scheduler: clock.New(),
	}
	for _, opt := range opts {
		opt(o)
	}

	ctrl, err := runtime.NewController(o.cfg, camera, o.renderer, surface, o.scheduler, o.controller...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize booth: %w", err)
	}
	return &Booth{Controller: ctrl}, nil
}

// WriteStrip composes the strip and writes it into dir under domain.StripFilename.
func (b *Booth) WriteStrip(ctx context.Context, dir string) (string, error) {
	artifact, err := b.ComposeDownload(ctx)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, artifact.Filename)
	if err := os.WriteFile(path, artifact.Data, 0o644); err != nil {
		return "", fmt.Errorf("write strip: %w", err)
	}
	return path, nil
}

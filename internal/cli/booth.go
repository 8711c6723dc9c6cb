package cli

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/aretw0/photobooth"
	"github.com/aretw0/photobooth/internal/config"
	"github.com/aretw0/photobooth/pkg/adapters/redis"
	"github.com/aretw0/photobooth/pkg/adapters/synthetic"
	"github.com/aretw0/photobooth/pkg/domain"
	"github.com/aretw0/photobooth/pkg/ports"
)

// CameraOpener builds the camera for a driver.
type CameraOpener func(cfg config.CameraConfig) (ports.CameraDevice, error)

var (
	driversMu sync.RWMutex
	drivers   = map[string]CameraOpener{
		config.DriverSynthetic: func(config.CameraConfig) (ports.CameraDevice, error) {
			return synthetic.New(), nil
		},
	}
)

// RegisterDriver makes a camera driver available by name.
// Drivers needing native libraries register themselves behind build tags.
func RegisterDriver(name string, open CameraOpener) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = open
}

// Drivers lists the compiled-in camera drivers.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func openCamera(cfg config.CameraConfig) (ports.CameraDevice, error) {
	driversMu.RLock()
	open, ok := drivers[cfg.Driver]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("camera driver %q is not compiled in (available: %v)", cfg.Driver, Drivers())
	}
	return open(cfg)
}

// cameraLockKey names the distributed lock guarding one physical camera.
func cameraLockKey(cfg config.CameraConfig) string {
	return fmt.Sprintf("camera:%s:%d", cfg.Driver, cfg.Device)
}

// openLocker connects to redis when configured. The returned closer is never nil.
func openLocker(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ports.DistributedLocker, func() error, error) {
	noop := func() error { return nil }
	if cfg.Redis.URL == "" {
		return nil, noop, nil
	}

	locker, err := redis.NewFromURL(cfg.Redis.URL, cfg.Redis.Prefix)
	if err != nil {
		return nil, noop, err
	}
	if err := locker.Ping(ctx); err != nil {
		_ = locker.Close()
		return nil, noop, fmt.Errorf("redis unreachable: %w", err)
	}
	logger.Info("Camera lock enabled", "backend", "redis")
	return locker, locker.Close, nil
}

// boothOptions collects the facade options shared by every command.
func boothOptions(cfg *config.Config, logger *slog.Logger, hooks domain.LifecycleHooks, locker ports.DistributedLocker) []photobooth.Option {
	opts := []photobooth.Option{
		photobooth.WithConfig(cfg.Domain()),
		photobooth.WithLogger(logger),
		photobooth.WithLifecycleHooks(hooks),
	}
	if locker != nil {
		opts = append(opts,
			photobooth.WithCameraLock(locker, cameraLockKey(cfg.Camera), cfg.Redis.LockTTL),
			photobooth.WithCameraLockWait(cfg.Redis.LockWait),
		)
	}
	return opts
}

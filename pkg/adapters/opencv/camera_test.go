//go:build opencv

package opencv

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/photobooth/pkg/domain"
	"github.com/aretw0/photobooth/pkg/ports"
)

// These tests need a camera on device 0 and skip otherwise.
func requireDevice(t *testing.T) *Camera {
	t.Helper()
	cam := New(0)
	st, err := cam.Acquire(context.Background(), 320, 240)
	if err != nil {
		t.Skipf("no camera available: %v", err)
	}
	require.NoError(t, cam.Release(st))
	return cam
}

func TestCamera_Contract(t *testing.T) {
	ports.RunCameraDeviceContract(t, requireDevice(t))
}

func TestCamera_SingleStream(t *testing.T) {
	cam := requireDevice(t)
	ctx := context.Background()

	st, err := cam.Acquire(ctx, 320, 240)
	require.NoError(t, err)
	defer func() { _ = cam.Release(st) }()

	_, err = cam.Acquire(ctx, 320, 240)
	var devErr *domain.DeviceError
	require.True(t, errors.As(err, &devErr))
	assert.Equal(t, domain.DeviceBusy, devErr.Category)
}

func TestCamera_MissingDevice(t *testing.T) {
	cam := New(97)
	_, err := cam.Acquire(context.Background(), 320, 240)
	assert.ErrorIs(t, err, domain.ErrDeviceUnavailable)
}

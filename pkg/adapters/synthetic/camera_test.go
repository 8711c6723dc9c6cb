package synthetic_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/photobooth/pkg/adapters/synthetic"
	"github.com/aretw0/photobooth/pkg/domain"
	"github.com/aretw0/photobooth/pkg/ports"
)

func TestCamera_Contract(t *testing.T) {
	ports.RunCameraDeviceContract(t, synthetic.New())
}

func TestCamera_Counters(t *testing.T) {
	cam := synthetic.New()
	ctx := context.Background()

	s, err := cam.Acquire(ctx, 64, 48)
	require.NoError(t, err)
	assert.Equal(t, 1, cam.Open())

	require.NoError(t, cam.Release(s))
	assert.Error(t, cam.Release(s), "double release must fail")

	assert.Equal(t, 1, cam.Acquired())
	assert.Equal(t, 1, cam.Released())
	assert.Equal(t, 0, cam.Open())
}

func TestCamera_Failure(t *testing.T) {
	cam := synthetic.New(synthetic.WithFailure(domain.DevicePermissionDenied))

	_, err := cam.Acquire(context.Background(), 64, 48)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDeviceUnavailable))

	var devErr *domain.DeviceError
	require.True(t, errors.As(err, &devErr))
	assert.Equal(t, domain.DevicePermissionDenied, devErr.Category)
	assert.Equal(t, 0, cam.Open())
}

func TestPattern_Marker(t *testing.T) {
	img := synthetic.Pattern(80, 40, 0)

	assert.Equal(t, synthetic.MarkerColor, img.RGBAAt(0, 0))
	assert.Equal(t, synthetic.MarkerColor, img.RGBAAt(9, 4))
	assert.NotEqual(t, synthetic.MarkerColor, img.RGBAAt(79, 0), "marker is asymmetric")
	assert.NotEqual(t, synthetic.MarkerColor, img.RGBAAt(10, 5))
}

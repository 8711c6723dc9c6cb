// Package synthetic provides a CameraDevice that needs no hardware.
// Frames are a color gradient with a marker in the top-left corner, so mirrored and
// unmirrored stills can be told apart.
package synthetic

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/aretw0/photobooth/pkg/domain"
	"github.com/aretw0/photobooth/pkg/ports"
)

// MarkerColor fills the top-left marker of every frame.
var MarkerColor = color.RGBA{R: 255, A: 255}

// ErrStreamClosed is returned when reading from a released stream.
var ErrStreamClosed = errors.New("stream closed")

// Camera is a test-pattern CameraDevice.
type Camera struct {
	mu      sync.Mutex
	fail    *domain.DeviceError
	open    map[string]*stream
	frameNo atomic.Int64

	acquired atomic.Int64
	released atomic.Int64
}

// Option configures the Camera.
type Option func(*Camera)

// WithFailure makes every Acquire fail with the given category.
func WithFailure(category domain.DeviceCategory) Option {
	return func(c *Camera) {
		c.fail = domain.NewDeviceError(category, "synthetic camera configured to fail", nil)
	}
}

// New creates a synthetic camera.
func New(opts ...Option) *Camera {
	c := &Camera{open: make(map[string]*stream)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ ports.CameraDevice = (*Camera)(nil)

// Acquire opens a stream producing width x height frames.
func (c *Camera) Acquire(ctx context.Context, width, height int) (ports.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewDeviceError(domain.DeviceOSFailure, "acquire canceled", err)
	}
	if width <= 0 || height <= 0 {
		return nil, domain.NewDeviceError(domain.DeviceOSFailure, fmt.Sprintf("invalid size %dx%d", width, height), nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return nil, c.fail
	}

	s := &stream{id: uuid.NewString(), cam: c, width: width, height: height}
	c.open[s.id] = s
	c.acquired.Add(1)
	return s, nil
}

// Release closes the stream. Releasing twice is an error.
func (c *Camera) Release(st ports.Stream) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := st.(*stream)
	if !ok || c.open[s.id] != s {
		return fmt.Errorf("release: unknown stream %q", st.ID())
	}
	delete(c.open, s.id)
	s.closed.Store(true)
	c.released.Add(1)
	return nil
}

// Acquired returns how many streams were handed out.
func (c *Camera) Acquired() int { return int(c.acquired.Load()) }

// Released returns how many streams were given back.
func (c *Camera) Released() int { return int(c.released.Load()) }

// Open returns how many streams are currently held.
func (c *Camera) Open() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.open)
}

type stream struct {
	id     string
	cam    *Camera
	width  int
	height int
	closed atomic.Bool
}

func (s *stream) ID() string { return s.id }

func (s *stream) ReadFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrStreamClosed
	}
	return Pattern(s.width, s.height, uint8(s.cam.frameNo.Add(1))), nil
}

// Pattern draws a gradient test frame. The marker occupies the top-left eighth
// of the width and height.
func Pattern(width, height int, shade uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	mw, mh := max(width/8, 1), max(height/8, 1)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x < mw && y < mh {
				img.SetRGBA(x, y, MarkerColor)
				continue
			}
			img.SetRGBA(x, y, color.RGBA{
				R: 0,
				G: uint8(x * 255 / max(width-1, 1)),
				B: uint8(y*255/max(height-1, 1)) ^ shade&0x0f,
				A: 255,
			})
		}
	}
	return img
}

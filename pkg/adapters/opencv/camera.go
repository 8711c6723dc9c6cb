//go:build opencv

// Package opencv provides a CameraDevice backed by an OpenCV video capture device.
// Build with -tags opencv; it needs the OpenCV libraries installed.
package opencv

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/aretw0/photobooth/pkg/domain"
	"github.com/aretw0/photobooth/pkg/ports"
)

// ErrStreamClosed is returned when reading from a released stream.
var ErrStreamClosed = errors.New("stream closed")

// Camera opens one OpenCV device. A device serves a single stream at a time.
type Camera struct {
	deviceID int

	mu     sync.Mutex
	active *stream
}

var _ ports.CameraDevice = (*Camera)(nil)

// New returns a camera for the given device index.
func New(deviceID int) *Camera {
	return &Camera{deviceID: deviceID}
}

// Acquire opens the device and requests width x height frames.
func (c *Camera) Acquire(ctx context.Context, width, height int) (ports.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewDeviceError(domain.DeviceOSFailure, "acquire cancelled", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		return nil, domain.NewDeviceError(domain.DeviceBusy, fmt.Sprintf("device %d already streaming", c.deviceID), nil)
	}

	capture, err := gocv.OpenVideoCapture(c.deviceID)
	if err != nil {
		return nil, domain.NewDeviceError(domain.DeviceNotFound, fmt.Sprintf("open device %d", c.deviceID), err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, domain.NewDeviceError(domain.DeviceNotFound, fmt.Sprintf("device %d did not open", c.deviceID), nil)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(height))

	st := &stream{id: uuid.NewString(), capture: capture, frame: gocv.NewMat()}
	c.active = st
	return st, nil
}

// Release closes the device.
func (c *Camera) Release(s ports.Stream) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil || s == nil || c.active.id != s.ID() {
		return fmt.Errorf("release: %w", ErrStreamClosed)
	}
	st := c.active
	c.active = nil
	return st.close()
}

type stream struct {
	id string

	mu      sync.Mutex
	capture *gocv.VideoCapture
	frame   gocv.Mat
	closed  bool
}

func (s *stream) ID() string { return s.id }

// ReadFrame grabs the next frame from the device.
func (s *stream) ReadFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStreamClosed
	}
	if ok := s.capture.Read(&s.frame); !ok {
		return nil, errors.New("failed to read frame from camera")
	}
	if s.frame.Empty() {
		return nil, errors.New("captured frame is empty")
	}
	return s.frame.ToImage()
}

func (s *stream) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.frame.Close()
	return s.capture.Close()
}

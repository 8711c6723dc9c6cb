package ports

import (
	"context"
	"image"
)

// Stream is a live source of video frames.
type Stream interface {
	// ID identifies the stream handle held in the session state.
	ID() string

	// ReadFrame returns the most recent frame.
	ReadFrame(ctx context.Context) (image.Image, error)
}

// CameraDevice supplies live streams.
// Acquire failures should be reported as *domain.DeviceError.
type CameraDevice interface {
	Acquire(ctx context.Context, width, height int) (Stream, error)
	Release(stream Stream) error
}

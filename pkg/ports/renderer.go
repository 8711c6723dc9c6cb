package ports

import "context"

// FrameRenderer turns live frames into encoded stills and stills into a strip.
// Buffers are PNG encoded.
type FrameRenderer interface {
	// Capture reads one frame from src, fits it to width x height and optionally
	// flips it horizontally.
	Capture(ctx context.Context, src Stream, width, height int, mirror bool) ([]byte, error)

	// Flip returns the horizontal mirror image of an encoded still.
	Flip(still []byte) ([]byte, error)

	// Compose stacks the stills top to bottom, one tileWidth x tileHeight slot each.
	// It returns once every input has been decoded.
	Compose(ctx context.Context, stills [][]byte, tileWidth, tileHeight int) ([]byte, error)
}

// Package render implements ports.FrameRenderer on top of the image packages:
// frames are fitted to the tile size, optionally mirrored and encoded as PNG.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/aretw0/photobooth/pkg/domain"
	"github.com/aretw0/photobooth/pkg/ports"
)

// Renderer is the default FrameRenderer.
type Renderer struct {
	scaler draw.Scaler
}

// Option configures the Renderer.
type Option func(*Renderer)

// WithScaler selects the interpolator used to fit frames, e.g. draw.NearestNeighbor
// on slow hardware.
func WithScaler(s draw.Scaler) Option {
	return func(r *Renderer) {
		if s != nil {
			r.scaler = s
		}
	}
}

// New creates a Renderer using bilinear scaling.
func New(opts ...Option) *Renderer {
	r := &Renderer{scaler: draw.ApproxBiLinear}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ ports.FrameRenderer = (*Renderer)(nil)

// Capture reads one frame, crops it to the tile aspect ratio around its center,
// scales it to width x height and mirrors it when asked.
func (r *Renderer) Capture(ctx context.Context, src ports.Stream, width, height int, mirror bool) ([]byte, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: no stream", domain.ErrRenderFailure)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: invalid size %dx%d", domain.ErrRenderFailure, width, height)
	}

	frame, err := src.ReadFrame(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: read frame: %v", domain.ErrRenderFailure, err)
	}
	if frame == nil || frame.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty frame", domain.ErrRenderFailure)
	}

	still := r.fit(frame, width, height)
	if mirror {
		still = mirrorRGBA(still)
	}
	return encode(still)
}

// Flip returns the horizontal mirror of an encoded still.
func (r *Renderer) Flip(still []byte) ([]byte, error) {
	img, err := decode(still)
	if err != nil {
		return nil, err
	}
	return encode(mirrorRGBA(toRGBA(img)))
}

// Compose stacks stills top to bottom, still i filling rows [i*tileHeight, (i+1)*tileHeight).
// Every still is decoded concurrently; the strip is drawn only once all of them are in,
// and a failed decode cancels the rest.
func (r *Renderer) Compose(ctx context.Context, stills [][]byte, tileWidth, tileHeight int) ([]byte, error) {
	if len(stills) == 0 {
		return nil, fmt.Errorf("%w: nothing to compose", domain.ErrRenderFailure)
	}
	if tileWidth <= 0 || tileHeight <= 0 {
		return nil, fmt.Errorf("%w: invalid tile %dx%d", domain.ErrRenderFailure, tileWidth, tileHeight)
	}

	decoded := make([]image.Image, len(stills))
	g, gctx := errgroup.WithContext(ctx)
	for i, data := range stills {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			img, err := decode(data)
			if err != nil {
				return fmt.Errorf("still %d: %w", i, err)
			}
			decoded[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, domain.ErrRenderFailure) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrRenderFailure, err)
	}

	strip := image.NewRGBA(image.Rect(0, 0, tileWidth, tileHeight*len(decoded)))
	for i, img := range decoded {
		slot := image.Rect(0, i*tileHeight, tileWidth, (i+1)*tileHeight)
		if img.Bounds().Dx() == tileWidth && img.Bounds().Dy() == tileHeight {
			draw.Draw(strip, slot, img, img.Bounds().Min, draw.Src)
			continue
		}
		r.scaler.Scale(strip, slot, img, img.Bounds(), draw.Src, nil)
	}
	return encode(strip)
}

// fit center-crops frame to the width:height ratio and scales it to that size.
func (r *Renderer) fit(frame image.Image, width, height int) *image.RGBA {
	b := frame.Bounds()
	crop := b
	// Compare b.Dx/b.Dy against width/height without floating point.
	if b.Dx()*height > b.Dy()*width {
		w := b.Dy() * width / height
		x0 := b.Min.X + (b.Dx()-w)/2
		crop = image.Rect(x0, b.Min.Y, x0+w, b.Max.Y)
	} else if b.Dx()*height < b.Dy()*width {
		h := b.Dx() * height / width
		y0 := b.Min.Y + (b.Dy()-h)/2
		crop = image.Rect(b.Min.X, y0, b.Max.X, y0+h)
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if crop.Dx() == width && crop.Dy() == height {
		draw.Draw(dst, dst.Bounds(), frame, crop.Min, draw.Src)
		return dst
	}
	r.scaler.Scale(dst, dst.Bounds(), frame, crop, draw.Src, nil)
	return dst
}

func mirrorRGBA(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	w := b.Dx()
	for y := 0; y < b.Dy(); y++ {
		srow := src.Pix[y*src.Stride : y*src.Stride+w*4]
		drow := dst.Pix[y*dst.Stride : y*dst.Stride+w*4]
		for x := 0; x < w; x++ {
			copy(drow[(w-1-x)*4:(w-x)*4], srow[x*4:(x+1)*4])
		}
	}
	return dst
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

func decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty still", domain.ErrRenderFailure)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", domain.ErrRenderFailure, err)
	}
	return img, nil
}

func encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: encode: %v", domain.ErrRenderFailure, err)
	}
	return buf.Bytes(), nil
}

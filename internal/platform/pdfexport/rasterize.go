package pdfexport

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // snapshot decoders
	_ "image/png"
	"io"

	"golang.org/x/image/draw"
)

// Scale is the fixed upscaling factor applied to client snapshots.
const Scale = 2

// MaxSourcePixels bounds the decoded snapshot size before upscaling.
const MaxSourcePixels = 25_000_000

var ErrSnapshotTooLarge = errors.New("snapshot too large")

// Rasterize decodes a PNG or JPEG snapshot of the rendered form and
// returns it upscaled by Scale over an opaque white background, so any
// transparent regions of the capture print as white.
func Rasterize(snapshot io.Reader) (image.Image, error) {
	// The header is checked before decoding so an oversized image is
	// rejected without allocating its bitmap.
	var head bytes.Buffer
	cfg, _, err := image.DecodeConfig(io.TeeReader(snapshot, &head))
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("decode snapshot: empty image")
	}
	if cfg.Width*cfg.Height > MaxSourcePixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrSnapshotTooLarge, cfg.Width, cfg.Height)
	}

	src, _, err := image.Decode(io.MultiReader(&head, snapshot))
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	b := src.Bounds()

	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*Scale, b.Dy()*Scale))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst, nil
}

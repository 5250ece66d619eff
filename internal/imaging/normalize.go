// Package imaging normalizes uploaded book covers and stores them on disk.
//
// Every upload, whatever its source format, is decoded, scaled down to fit a
// bounding box and re-encoded as a baseline JPEG. Clients can therefore rely
// on one format and an upper bound on cover dimensions.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	_ "image/png" // Register PNG decoder
	"io"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// Extension is the file extension of every stored cover.
const Extension = ".jpg"

var (
	// ErrUnsupportedImage is returned when the upload cannot be decoded.
	ErrUnsupportedImage = errors.New("imaging: unsupported image")
	// ErrTooManyPixels is returned when the declared dimensions exceed
	// Normalizer.MaxPixels. Nothing has been decoded at that point.
	ErrTooManyPixels = errors.New("imaging: image dimensions too large")
)

// Normalizer converts uploads to the stored cover format.
type Normalizer struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
	// MaxPixels caps width*height of the source image. Zero means no cap.
	MaxPixels int64
}

// Result is a normalized cover ready to be written to storage.
type Result struct {
	Data     []byte
	Width    int
	Height   int
	BlurHash string
	// SourceFormat is the decoder name: "jpeg", "png", "gif" or "webp".
	SourceFormat string
}

// Normalize decodes r, scales it to fit within MaxWidth x MaxHeight while
// keeping its aspect ratio and encodes it as JPEG. Images already inside the
// box are not enlarged.
//
// The header is checked against MaxPixels before any pixel data is decoded,
// so a small file declaring huge dimensions is refused without allocating
// the full frame.
func (n Normalizer) Normalize(r io.Reader) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("imaging: read upload: %w", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	if n.MaxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > n.MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height)
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrUnsupportedImage)
	}

	w, h := fit(b.Dx(), b.Dy(), n.MaxWidth, n.MaxHeight)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	// JPEG has no alpha; paint transparent regions white instead of black.
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: n.Quality}); err != nil {
		return nil, fmt.Errorf("imaging: encode jpeg: %w", err)
	}

	hash, err := BlurHash(dst)
	if err != nil {
		return nil, err
	}

	return &Result{
		Data:         buf.Bytes(),
		Width:        w,
		Height:       h,
		BlurHash:     hash,
		SourceFormat: format,
	}, nil
}

// fit returns the largest size with the aspect ratio of w x h that fits
// inside maxW x maxH, never larger than w x h itself.
func fit(w, h, maxW, maxH int) (int, int) {
	if (maxW <= 0 || w <= maxW) && (maxH <= 0 || h <= maxH) {
		return w, h
	}

	scale := 1.0
	if maxW > 0 && w > maxW {
		scale = float64(maxW) / float64(w)
	}
	if maxH > 0 && float64(h)*scale > float64(maxH) {
		scale = float64(maxH) / float64(h)
	}

	return max(1, int(float64(w)*scale+0.5)), max(1, int(float64(h)*scale+0.5))
}

package imaging

import (
	"fmt"
	"image"

	"github.com/bbrks/go-blurhash"
	"golang.org/x/image/draw"
)

// blurHashSize bounds the thumbnail the hash is computed from. BlurHash is a
// low-resolution placeholder, so a 64px image gives a near-identical result
// in a fraction of the time.
const blurHashSize = 64

// BlurHash encodes img with 4x3 components (roughly 20-30 characters).
func BlurHash(img image.Image) (string, error) {
	b := img.Bounds()
	w, h := fit(b.Dx(), b.Dy(), blurHashSize, blurHashSize)

	thumb := img
	if w != b.Dx() || h != b.Dy() {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		thumb = dst
	}

	hash, err := blurhash.Encode(4, 3, thumb)
	if err != nil {
		return "", fmt.Errorf("imaging: encode blurhash: %w", err)
	}
	return hash, nil
}

// Package checksum fingerprints image content.
//
// Digests are taken over decoded pixel data, so two files carrying the same
// picture compare equal even when their encoder metadata differs.
package checksum

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/webp"
)

var ErrCorrupted = errors.New("corrupted image")

// Sum returns the hex MD5 digest of buf.
func Sum(buf []byte) string {
	sum := md5.Sum(buf)
	return hex.EncodeToString(sum[:])
}

// Pixels returns the image as tightly packed NRGBA bytes, origin at 0,0.
func Pixels(img image.Image) []byte {
	b := img.Bounds()
	if n, ok := img.(*image.NRGBA); ok && n.Stride == 4*b.Dx() && b.Min == (image.Point{}) {
		return n.Pix
	}

	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst.Pix
}

// File decodes the image at path and returns the digest of its pixels.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrCorrupted, path, err)
	}

	return Sum(Pixels(img)), nil
}

// Package imageprep normalizes uploaded photos before they are sent to a
// vision model: oversized dimensions are downscaled and the image is
// re-encoded as JPEG so payload size stays predictable.
package imageprep

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/disintegration/imaging"
)

const (
	// maxDimension caps the longest side. Receipt text survives 2000px fine
	// and larger photos only inflate the request body.
	maxDimension = 2000

	jpegQuality = 90
)

// Prepare decodes, downscales and re-encodes an uploaded image. Images
// already within bounds are still re-encoded to JPEG so the request builder
// can assume one MIME type for prepared images.
func Prepare(data []byte) ([]byte, string, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}

	img = downscale(img)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, "", fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), "image/jpeg", nil
}

func downscale(img image.Image) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= maxDimension && height <= maxDimension {
		return img
	}
	if width > height {
		return imaging.Resize(img, maxDimension, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, maxDimension, imaging.Lanczos)
}

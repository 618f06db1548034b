package recognition

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/likhithmdev/Final-Sic/internal/constants"
)

// Downscale shrinks an image by a linear factor while keeping aspect ratio.
// Scales of 1 or more return the image unchanged.
func Downscale(img image.Image, scale float64) image.Image {
	if scale >= 1 || scale <= 0 {
		return img
	}

	bounds := img.Bounds()
	newWidth := max(1, int(float64(bounds.Dx())*scale))
	newHeight := max(1, int(float64(bounds.Dy())*scale))

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.ApproxBiLinear.Scale(resized, resized.Bounds(), img, bounds, draw.Src, nil)
	return resized
}

// EncodeJPEG encodes an image in the format the extractors consume.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: constants.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeImage decodes JPEG, PNG, BMP or WebP data.
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

package assets

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/chai2010/webp"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/starford/raido/internal/apperr"
)

// DefaultQuality is the lossy WebP quality used when none is configured.
const DefaultQuality = 75

// ImageOptions tunes the image pipeline.
type ImageOptions struct {
	Quality float32
	// PassThroughWebP copies WebP input unchanged instead of re-encoding it.
	PassThroughWebP bool
}

// EncodeImage re-encodes a raster image as WebP. SVG input (by extension of
// name) is returned unchanged.
func EncodeImage(data []byte, name string, opts ImageOptions) ([]byte, error) {
	if sourceExt(name) == ".svg" {
		return data, nil
	}
	if isWebP(data) && opts.PassThroughWebP {
		return data, nil
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperr.ErrUnsupportedImageFormat, name, err)
	}

	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("assets: encode %s (%s) as webp: %w", name, format, err)
	}
	return buf.Bytes(), nil
}

func isWebP(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP"
}

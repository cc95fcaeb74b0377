// Package imageprep normalizes uploaded invoice photographs before they are sent to
// recognition and extraction backends: the content type is sniffed, EXIF orientation
// is applied, oversized images are scaled down and everything is re-encoded as JPEG.
package imageprep

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"
)

const (
	// MaxDimension bounds the longer side of a prepared image.
	MaxDimension = 2048

	// JPEGQuality is used when re-encoding.
	JPEGQuality = 90

	OutputMIME = "image/jpeg"
)

var ErrUnsupportedImage = errors.New("unsupported image type")

var supported = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
	"image/bmp":  true,
	"image/tiff": true,
}

// Image is a prepared invoice photograph.
type Image struct {
	Data         []byte
	MIME         string
	SourceMIME   string
	Width        int
	Height       int
	Resized      bool
	OriginalSize int
}

// Supported reports whether the bytes look like an image type this package can decode.
func Supported(data []byte) bool {
	return supported[mimetype.Detect(data).String()]
}

// Load reads and prepares an image file.
func Load(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", path, err)
	}
	return Prepare(data)
}

// Prepare decodes data, applies orientation, bounds its size and encodes it as JPEG.
func Prepare(data []byte) (*Image, error) {
	mt := mimetype.Detect(data)
	if !supported[mt.String()] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedImage, mt.String())
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", mt.String(), err)
	}

	resized := false
	bounds := img.Bounds()
	if bounds.Dx() > MaxDimension || bounds.Dy() > MaxDimension {
		img = imaging.Fit(img, MaxDimension, MaxDimension, imaging.Lanczos)
		resized = true
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	return &Image{
		Data:         buf.Bytes(),
		MIME:         OutputMIME,
		SourceMIME:   mt.String(),
		Width:        img.Bounds().Dx(),
		Height:       img.Bounds().Dy(),
		Resized:      resized,
		OriginalSize: len(data),
	}, nil
}

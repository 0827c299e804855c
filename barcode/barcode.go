// Package barcode renders Code 128 labels for packer badges and test codes.
package barcode

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
)

const (
	DefaultWidth  = 400
	DefaultHeight = 120
)

var ErrEmptyCode = errors.New("barcode content is empty")

// Generate encodes code as a Code 128 symbol of at least width x height
// pixels.
func Generate(code string, width, height int) (image.Image, error) {
	if code == "" {
		return nil, ErrEmptyCode
	}
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}

	matrix, err := oned.NewCode128Writer().Encode(code, gozxing.BarcodeFormat_CODE_128, width, height, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %q: %w", code, err)
	}
	return matrix, nil
}

// WritePNG encodes code and writes it as PNG to w.
func WritePNG(w io.Writer, code string, width, height int) error {
	img, err := Generate(code, width, height)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

// SavePNG writes the label for code to path.
func SavePNG(path, code string, width, height int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create label file: %w", err)
	}
	if err := WritePNG(f, code, width, height); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// Decode reads a Code 128 symbol back from an image.
func Decode(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", err
	}
	result, err := oned.NewCode128Reader().Decode(bmp, nil)
	if err != nil {
		return "", err
	}
	return result.GetText(), nil
}

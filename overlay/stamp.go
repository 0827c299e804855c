// Package overlay stamps scan details onto snapshots.
package overlay

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var ErrDecode = errors.New("snapshot is not a decodable image")

// Stamp is the text burned into a scan photo.
type Stamp struct {
	Code      string
	Timestamp string
	Source    string
}

// Renderer draws stamps with fixed positions and colors.
type Renderer struct {
	codeColor   color.RGBA
	sourceColor color.RGBA
	codeOrigin  image.Point
	srcOrigin   image.Point
	codeScale   float64
	srcScale    float64
	thickness   int
	quality     int
}

// NewRenderer creates the renderer used for scan photos: code and time in
// red at the top left, the image source in green underneath.
func NewRenderer() *Renderer {
	return &Renderer{
		codeColor:   color.RGBA{255, 0, 0, 255},
		sourceColor: color.RGBA{0, 255, 0, 255},
		codeOrigin:  image.Point{X: 10, Y: 30},
		srcOrigin:   image.Point{X: 10, Y: 70},
		codeScale:   1.0,
		srcScale:    0.7,
		thickness:   2,
		quality:     90,
	}
}

// Annotate decodes a JPEG snapshot, draws the stamp and re-encodes it.
func (r *Renderer) Annotate(snapshot []byte, s Stamp) ([]byte, error) {
	img, err := gocv.IMDecode(snapshot, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, ErrDecode
	}

	r.Draw(&img, s)

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{int(gocv.IMWriteJpegQuality), r.quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode stamped image: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// Draw stamps in place.
func (r *Renderer) Draw(img *gocv.Mat, s Stamp) {
	gocv.PutTextWithParams(img, fmt.Sprintf("%s %s", s.Code, s.Timestamp), r.codeOrigin,
		gocv.FontHersheySimplex, r.codeScale, r.codeColor, r.thickness, gocv.LineAA, false)

	if s.Source != "" {
		gocv.PutTextWithParams(img, "Source: "+s.Source, r.srcOrigin,
			gocv.FontHersheySimplex, r.srcScale, r.sourceColor, r.thickness, gocv.LineAA, false)
	}
}

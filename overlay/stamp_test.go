package overlay

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func blankJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 40, 40, 0), h, w, gocv.MatTypeCV8UC3)
	defer mat.Close()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	require.NoError(t, err)
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...)
}

func TestAnnotate_KeepsSizeAndDrawsText(t *testing.T) {
	src := blankJPEG(t, 640, 360)

	out, err := NewRenderer().Annotate(src, Stamp{Code: "4820000000017", Timestamp: "2024-05-01 10:11:12", Source: "Recorder"})
	require.NoError(t, err)
	assert.NotEqual(t, src, out)

	img, err := gocv.IMDecode(out, gocv.IMReadColor)
	require.NoError(t, err)
	defer img.Close()
	assert.Equal(t, 640, img.Cols())
	assert.Equal(t, 360, img.Rows())

	// The code line sits in the top band; the bottom band stays untouched.
	top := img.Region(image.Rect(0, 0, 640, 80))
	defer top.Close()
	bottom := img.Region(image.Rect(0, 280, 640, 360))
	defer bottom.Close()
	assert.Greater(t, top.Mean().Val3, bottom.Mean().Val3+1)
}

func TestAnnotate_RejectsGarbage(t *testing.T) {
	_, err := NewRenderer().Annotate([]byte("definitely not a jpeg"), Stamp{Code: "x"})
	assert.ErrorIs(t, err, ErrDecode)
}

// Package capture grabs frames from RTSP streams with OpenCV.
package capture

import (
	"context"
	"fmt"
	"os"

	"gocv.io/x/gocv"

	"packscan/rtsp"
)

// GoCV grabs frames through OpenCV's FFmpeg backend.
type GoCV struct{}

// NewGoCV configures OpenCV for TCP transport with a 5s socket timeout and
// returns the grabber. The option applies to every capture in the process.
func NewGoCV() *GoCV {
	if os.Getenv("OPENCV_FFMPEG_CAPTURE_OPTIONS") == "" {
		os.Setenv("OPENCV_FFMPEG_CAPTURE_OPTIONS", "rtsp_transport;tcp|stimeout;5000000")
	}
	return &GoCV{}
}

type grabResult struct {
	frame rtsp.Frame
	err   error
}

// Grab reads up to warmup frames and encodes the last good one. OpenCV calls
// cannot be interrupted; on cancellation the capture finishes in the
// background and its result is dropped.
func (g *GoCV) Grab(ctx context.Context, streamURL string, warmup int) (rtsp.Frame, error) {
	done := make(chan grabResult, 1)
	go func() {
		f, err := grab(streamURL, warmup)
		done <- grabResult{f, err}
	}()

	select {
	case r := <-done:
		return r.frame, r.err
	case <-ctx.Done():
		return rtsp.Frame{}, ctx.Err()
	}
}

func grab(streamURL string, warmup int) (rtsp.Frame, error) {
	webcam, err := gocv.VideoCaptureFile(streamURL)
	if err != nil {
		return rtsp.Frame{}, fmt.Errorf("%w: %v", rtsp.ErrOpen, err)
	}
	defer webcam.Close()

	if !webcam.IsOpened() {
		return rtsp.Frame{}, rtsp.ErrOpen
	}
	webcam.Set(gocv.VideoCaptureBufferSize, 1)

	if warmup < 1 {
		warmup = 1
	}

	img := gocv.NewMat()
	defer img.Close()
	last := gocv.NewMat()
	defer last.Close()

	for i := 0; i < warmup; i++ {
		if ok := webcam.Read(&img); !ok {
			break
		}
		if img.Empty() {
			continue
		}
		img.CopyTo(&last)
	}

	if last.Empty() {
		return rtsp.Frame{}, rtsp.ErrNoVideo
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, last)
	if err != nil {
		return rtsp.Frame{}, fmt.Errorf("failed to encode frame: %w", err)
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	return rtsp.Frame{JPEG: data, Width: last.Cols(), Height: last.Rows()}, nil
}

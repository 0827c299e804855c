package rtsp

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const (
	// WarmupFrames are read before a frame is kept so the decoder has a
	// keyframe and exposure has settled.
	WarmupFrames = 5

	// MinFrameBytes rejects frames that encoded to an obviously broken image.
	MinFrameBytes = 1024
)

var (
	ErrNoSnapshot = errors.New("all RTSP screenshot attempts failed")
	ErrNoVideo    = errors.New("stream opened but produced no frame")
	ErrOpen       = errors.New("could not open RTSP stream")
)

// Frame is a single encoded still.
type Frame struct {
	JPEG   []byte
	Width  int
	Height int
}

// Grabber opens a stream URL and returns one JPEG-encoded frame after
// reading up to warmup frames.
type Grabber interface {
	Grab(ctx context.Context, streamURL string, warmup int) (Frame, error)
}

// Recorder takes screenshots from one recorder channel.
type Recorder struct {
	ep      Endpoint
	tmpl    Template
	grabber Grabber
	logger  *zap.Logger
}

// NewRecorder resolves the template and binds it to the endpoint.
func NewRecorder(ep Endpoint, templateKey string, g Grabber, logger *zap.Logger) (*Recorder, error) {
	t, err := Lookup(templateKey)
	if err != nil {
		return nil, err
	}
	return &Recorder{
		ep:      ep,
		tmpl:    t,
		grabber: g,
		logger:  logger.With(zap.String("component", "rtsp")),
	}, nil
}

// Name identifies the source in captions and logs.
func (r *Recorder) Name() string { return "Recorder" }

// Snapshot tries the main stream, then the sub stream.
func (r *Recorder) Snapshot(ctx context.Context) ([]byte, error) {
	for _, u := range []string{r.tmpl.MainURL(r.ep), r.tmpl.SubURL(r.ep)} {
		masked := MaskURL(u)
		r.logger.Info("screenshot attempt", zap.String("url", masked))

		frame, err := r.grabber.Grab(ctx, u, WarmupFrames)
		if err != nil {
			r.logger.Warn("screenshot failed", zap.String("url", masked), zap.Error(err))
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if len(frame.JPEG) <= MinFrameBytes {
			r.logger.Warn("screenshot too small", zap.String("url", masked), zap.Int("bytes", len(frame.JPEG)))
			continue
		}
		r.logger.Info("screenshot received", zap.String("url", masked),
			zap.Int("width", frame.Width), zap.Int("height", frame.Height))
		return frame.JPEG, nil
	}

	r.logger.Error("all screenshot attempts failed")
	return nil, ErrNoSnapshot
}

// TestResult describes a connection test against the main stream.
type TestResult struct {
	OK      bool
	Vendor  string
	URL     string
	Width   int
	Height  int
	Channel string
	Err     error
}

func (t TestResult) String() string {
	if t.OK {
		return fmt.Sprintf("RTSP connection OK\n\nVendor: %s\nURL: %s\nResolution: %dx%d\nChannel: %s",
			t.Vendor, t.URL, t.Width, t.Height, t.Channel)
	}
	switch {
	case errors.Is(t.Err, ErrOpen):
		return fmt.Sprintf("Could not connect to the RTSP stream\n\nURL: %s\n\nCheck:\n- IP address and port\n- login and password\n- channel number\n- network settings", t.URL)
	case errors.Is(t.Err, ErrNoVideo):
		return fmt.Sprintf("RTSP stream connected but there is no video\n\nURL: %s\n\nPossible causes:\n- channel disabled\n- codec problems\n- stream busy with another client", t.URL)
	default:
		return fmt.Sprintf("RTSP test error: %v", t.Err)
	}
}

// Test opens the main stream and reads a single frame.
func (r *Recorder) Test(ctx context.Context) TestResult {
	u := r.tmpl.MainURL(r.ep)
	res := TestResult{Vendor: r.tmpl.Name, URL: MaskURL(u), Channel: r.ep.Channel}

	r.logger.Info("testing stream", zap.String("url", res.URL))
	frame, err := r.grabber.Grab(ctx, u, 1)
	if err != nil {
		res.Err = err
		return res
	}
	res.OK = true
	res.Width = frame.Width
	res.Height = frame.Height
	return res
}

// Package ffmpeg grabs single frames from RTSP streams by running the ffmpeg
// binary. It is the fallback for hosts where OpenCV was built without FFmpeg.
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"io"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"packscan/rtsp"
)

const DefaultTimeout = 15 * time.Second

const stderrTailLines = 20

var connectErrorRegex = regexp.MustCompile(`(?i)(401 Unauthorized|403 Forbidden|404 Not Found|Connection refused|No route to host|Connection timed out|Network is unreachable|Invalid data found|Server returned)`)

// Grabber runs one ffmpeg process per frame.
type Grabber struct {
	Path    string
	Timeout time.Duration
}

// NewGrabber uses the ffmpeg binary found on PATH.
func NewGrabber() *Grabber {
	return &Grabber{Path: "ffmpeg", Timeout: DefaultTimeout}
}

// Args builds the ffmpeg command line. Frames before the warmup count are
// decoded and dropped by the select filter.
func Args(streamURL string, warmup int) []string {
	if warmup < 1 {
		warmup = 1
	}
	return []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-rtsp_transport", "tcp",
		"-i", streamURL,
		"-vf", fmt.Sprintf(`select=gte(n\,%d)`, warmup-1),
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "2",
		"pipe:1",
	}
}

// Grab implements rtsp.Grabber.
func (g *Grabber) Grab(ctx context.Context, streamURL string, warmup int) (rtsp.Frame, error) {
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, g.Path, Args(streamURL, warmup)...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return rtsp.Frame{}, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return rtsp.Frame{}, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	lastLines := newTail(stderrTailLines)
	connectFailed := collectOutput(stderr, lastLines)
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return rtsp.Frame{}, fmt.Errorf("ffmpeg: %w", ctx.Err())
	}
	if stdout.Len() == 0 {
		if connectFailed {
			return rtsp.Frame{}, fmt.Errorf("%w: %s", rtsp.ErrOpen, lastLines)
		}
		if waitErr != nil {
			return rtsp.Frame{}, fmt.Errorf("%w: ffmpeg exited: %v: %s", rtsp.ErrOpen, waitErr, lastLines)
		}
		return rtsp.Frame{}, fmt.Errorf("%w: %s", rtsp.ErrNoVideo, lastLines)
	}

	data := stdout.Bytes()
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return rtsp.Frame{}, fmt.Errorf("%w: ffmpeg output is not a JPEG: %v", rtsp.ErrNoVideo, err)
	}
	return rtsp.Frame{JPEG: data, Width: cfg.Width, Height: cfg.Height}, nil
}

// collectOutput drains pipe into out and reports whether any line looked
// like a connection or authentication failure.
func collectOutput(pipe io.Reader, out *tail) bool {
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	failed := false
	for scanner.Scan() {
		line := scanner.Text()
		out.add(line)
		if connectErrorRegex.MatchString(line) {
			failed = true
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		out.add("read error: " + err.Error())
	}
	return failed
}

// tail keeps the last few stderr lines of one ffmpeg run for error messages.
type tail struct {
	lines []string
	size  int
}

func newTail(size int) *tail {
	if size < 1 {
		size = 1
	}
	return &tail{size: size}
}

func (t *tail) add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if len(t.lines) == t.size {
		t.lines = append(t.lines[:0], t.lines[1:]...)
	}
	t.lines = append(t.lines, line)
}

func (t *tail) String() string {
	return strings.Join(t.lines, "; ")
}

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"packscan/config"
	"packscan/processor"
)

type consoleProcessor struct {
	codes []string
	ended int
}

func (c *consoleProcessor) ProcessCode(ctx context.Context, code string) processor.Result {
	c.codes = append(c.codes, code)
	if code == "007" {
		return processor.Result{Status: processor.StatusPackerSelected, Message: "Packer selected: Olena"}
	}
	return processor.Result{Status: processor.StatusSaved, Message: "Saved: " + code, Photo: "/photos/" + code + ".jpg"}
}

func (c *consoleProcessor) Status() processor.State {
	return processor.State{Packer: &config.Packer{ID: "007", Name: "Olena"}, Scans: 2, Station: "st-1", Source: "Camera"}
}

func (c *consoleProcessor) EndSession() processor.State {
	c.ended++
	return processor.State{Packer: &config.Packer{ID: "007", Name: "Olena"}, Scans: 2}
}

func TestScanLoop(t *testing.T) {
	in := strings.NewReader("007\n\n  4820000000017  \r\n/status\n/end\n")
	var out bytes.Buffer
	p := &consoleProcessor{}

	require.NoError(t, scanLoop(context.Background(), in, &out, p))

	assert.Equal(t, []string{"007", "4820000000017"}, p.codes)
	assert.Equal(t, 1, p.ended)
	text := out.String()
	assert.Contains(t, text, "Packer selected: Olena")
	assert.Contains(t, text, "Saved: 4820000000017")
	assert.Contains(t, text, "/photos/4820000000017.jpg")
	assert.Contains(t, text, "Source:  Camera")
	assert.Contains(t, text, "Session closed")
}

type blockingReader struct{}

func (blockingReader) Read(p []byte) (int, error) {
	time.Sleep(time.Hour)
	return 0, nil
}

func TestScanLoop_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- scanLoop(ctx, blockingReader{}, &bytes.Buffer{}, &consoleProcessor{}) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scan loop did not stop")
	}
}

func TestRenderResult(t *testing.T) {
	ok := renderResult(processor.Result{Status: processor.StatusSaved, Message: "Saved: A"})
	assert.Contains(t, ok, "OK")
	assert.Contains(t, ok, "Saved: A")

	fail := renderResult(processor.Result{Status: processor.StatusSnapshotFailed, Message: "Snapshot failed: A"})
	assert.Contains(t, fail, "FAIL")

	warn := renderResult(processor.Result{Status: processor.StatusNoPacker, Message: "Scan packer ID first!"})
	assert.Contains(t, warn, "WARN")
}

func TestOrDefault(t *testing.T) {
	assert.Equal(t, "a", orDefault("a", "b"))
	assert.Equal(t, "b", orDefault("", "b"))
}

func TestSourceFor(t *testing.T) {
	c := config.Default()
	off := false
	c.UseRecorder = &off
	assert.Nil(t, sourceFor(c, zapNop()))

	c.CameraIP = "192.168.1.20"
	src := sourceFor(c, zapNop())
	require.NotNil(t, src)
	assert.Equal(t, "Camera", src.Name())

	on := true
	c.UseRecorder = &on
	c.RecorderIP = "192.168.1.10"
	src = sourceFor(c, zapNop())
	require.NotNil(t, src)
	assert.Equal(t, "Recorder", src.Name())

	c.RecorderTemplate = "nope"
	assert.Nil(t, sourceFor(c, zapNop()))
}

func zapNop() *zap.Logger { return zap.NewNop() }

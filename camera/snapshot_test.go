package camera

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"packscan/config"
)

var fakeJPEG = []byte{0xFF, 0xD8, 0xFF, 0xE0, 'J', 'F', 'I', 'F', 0xFF, 0xD9}

// fakeCamera records every request and lets each test decide the answer.
type fakeCamera struct {
	mu       sync.Mutex
	requests []string
	handle   func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeCamera) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.URL.Path+" "+authKind(r))
	f.mu.Unlock()
	f.handle(w, r)
}

func authKind(r *http.Request) string {
	h := r.Header.Get("Authorization")
	switch {
	case strings.HasPrefix(h, "Basic "):
		return "basic"
	case strings.HasPrefix(h, "Digest "):
		return "digest"
	default:
		return "none"
	}
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c := NewClient("127.0.0.1", "admin", "s3cr3t!", zap.NewNop())
	c.baseURL = srv.URL
	return c
}

func TestSnapshot_InvalidIPMakesNoRequests(t *testing.T) {
	cam := &fakeCamera{handle: func(w http.ResponseWriter, r *http.Request) {}}
	c := newTestClient(t, cam)
	c.ip = "999.1.1.1"

	_, err := c.Snapshot(context.Background())
	assert.ErrorIs(t, err, config.ErrInvalidIP)
	assert.Empty(t, cam.requests)
}

func TestSnapshot_BasicOnFirstPath(t *testing.T) {
	cam := &fakeCamera{handle: func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "s3cr3t!" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(fakeJPEG)
	}}
	c := newTestClient(t, cam)

	img, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fakeJPEG, img)
	assert.Equal(t, []string{"/cgi-bin/snapshot.cgi basic"}, cam.requests)
}

func TestSnapshot_FallsThroughPathsAndToDigest(t *testing.T) {
	cam := &fakeCamera{}
	cam.handle = func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/snapshot.jpg" {
			http.NotFound(w, r)
			return
		}
		h := r.Header.Get("Authorization")
		if !strings.HasPrefix(h, "Digest ") {
			w.Header().Set("WWW-Authenticate", `Digest realm="IP Camera", nonce="abc123", qop="auth", opaque="xyz"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if !strings.Contains(h, `username="admin"`) || !strings.Contains(h, `uri="/snapshot.jpg"`) || !strings.Contains(h, `opaque="xyz"`) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "IMAGE/JPEG")
		w.Write(fakeJPEG)
	}
	c := newTestClient(t, cam)

	img, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fakeJPEG, img)

	want := []string{
		"/cgi-bin/snapshot.cgi basic", "/cgi-bin/snapshot.cgi none",
		"/snapshot.cgi basic", "/snapshot.cgi none",
		"/cgi-bin/snapshot.jpg basic", "/cgi-bin/snapshot.jpg none",
		"/snapshot.jpg basic", "/snapshot.jpg none", "/snapshot.jpg digest",
	}
	assert.Equal(t, want, cam.requests)
}

func TestSnapshot_DigestAfterBasicChallenge(t *testing.T) {
	cam := &fakeCamera{}
	cam.handle = func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/snapshot.jpg" {
			http.NotFound(w, r)
			return
		}
		if authKind(r) != "digest" {
			w.Header().Add("WWW-Authenticate", `Basic realm="cam"`)
			w.Header().Add("WWW-Authenticate", `Digest realm="cam", nonce="abc", qop="auth"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(fakeJPEG)
	}
	c := newTestClient(t, cam)

	img, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fakeJPEG, img)
	assert.Contains(t, cam.requests, "/snapshot.jpg digest")
}

func TestDigestHeader(t *testing.T) {
	h, ok := digestHeader([]string{`Basic realm="cam"`, `Digest realm="cam", nonce="n"`})
	require.True(t, ok)
	assert.Equal(t, `Digest realm="cam", nonce="n"`, h)

	h, ok = digestHeader([]string{`Basic realm="cam", Digest realm="cam", nonce="n"`})
	require.True(t, ok)
	assert.Equal(t, `Digest realm="cam", nonce="n"`, h)

	_, ok = digestHeader([]string{`Basic realm="cam"`})
	assert.False(t, ok)
}

func TestTest_BasicOnlyChallengeIsAuthError(t *testing.T) {
	cam := &fakeCamera{handle: func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("WWW-Authenticate", `Basic realm="cam"`)
		w.WriteHeader(http.StatusUnauthorized)
	}}
	c := newTestClient(t, cam)

	report, err := c.Test(context.Background())
	require.NoError(t, err)
	assert.False(t, report.OK)
	for _, a := range report.Attempts {
		assert.Equal(t, http.StatusUnauthorized, a.Status, a.URL)
		assert.Equal(t, "authentication error", a.Note, a.URL)
	}
}

func TestSnapshot_RejectsNonImage(t *testing.T) {
	cam := &fakeCamera{handle: func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>login</html>"))
	}}
	c := newTestClient(t, cam)

	_, err := c.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshot)
	// 5 paths x (basic, digest); digest sends a single request when no 401 comes back
	assert.Len(t, cam.requests, 10)
}

func TestTest_ReportsEveryAttempt(t *testing.T) {
	cam := &fakeCamera{handle: func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cgi-bin/snapshot.cgi":
			w.WriteHeader(http.StatusUnauthorized)
		case "/snapshot.cgi":
			w.WriteHeader(http.StatusForbidden)
		case "/jpg/image.jpg":
			w.Header().Set("Content-Type", "text/plain")
		default:
			http.NotFound(w, r)
		}
	}}
	c := newTestClient(t, cam)

	report, err := c.Test(context.Background())
	require.NoError(t, err)
	assert.False(t, report.OK)
	assert.Len(t, report.Attempts, 7*3)

	text := report.String()
	assert.Contains(t, text, "authentication error")
	assert.Contains(t, text, "access denied")
	assert.Contains(t, text, "URL not found")
	assert.Contains(t, text, "not an image: text/plain")
	assert.Contains(t, text, "pwd=******")
	assert.NotContains(t, text, "s3cr3t")
}

func TestTest_StopsAtFirstImage(t *testing.T) {
	cam := &fakeCamera{handle: func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/image/jpeg.cgi" && authKind(r) == "basic" {
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write(fakeJPEG)
			return
		}
		http.NotFound(w, r)
	}}
	c := newTestClient(t, cam)

	report, err := c.Test(context.Background())
	require.NoError(t, err)
	require.True(t, report.OK)
	assert.Equal(t, AuthBasic, report.Success.Auth)
	assert.Len(t, report.Attempts, 4*3+1)
	assert.True(t, strings.HasSuffix(report.Success.URL, "/image/jpeg.cgi"))
	assert.Contains(t, report.String(), "image/jpeg")
}

func TestClassify_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c := NewClient("127.0.0.1", "u", "p", zap.NewNop())
	c.baseURL = addr
	a := c.try(context.Background(), addr+"/snapshot.jpg", AuthBasic, TestTimeout)
	require.Error(t, a.Err)
	assert.Equal(t, "connection error", a.Note)
}

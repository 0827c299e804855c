// Package camera fetches still images from standalone IP cameras over HTTP.
//
// Cameras in the field disagree on both the snapshot path and the auth scheme,
// so every request walks a fixed list of paths and, for each path, a fixed list
// of auth methods until one answers 200 with an image body.
package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"packscan/config"
)

// AuthMethod selects how credentials are presented.
type AuthMethod int

const (
	AuthBasic AuthMethod = iota
	AuthDigest
	AuthNone
)

func (m AuthMethod) String() string {
	switch m {
	case AuthBasic:
		return "Basic"
	case AuthDigest:
		return "Digest"
	case AuthNone:
		return "No Auth"
	default:
		return "unknown"
	}
}

const (
	SnapshotTimeout = 10 * time.Second
	TestTimeout     = 5 * time.Second

	maxImageBytes = 32 << 20
)

var (
	ErrNoSnapshot = errors.New("all snapshot attempts failed")

	// snapshotPaths are tried in order when grabbing a still.
	snapshotPaths = []string{
		"/cgi-bin/snapshot.cgi",
		"/snapshot.cgi",
		"/cgi-bin/snapshot.jpg",
		"/snapshot.jpg",
		"/image/jpeg.cgi",
	}
	snapshotAuth = []AuthMethod{AuthBasic, AuthDigest}

	testAuth = []AuthMethod{AuthBasic, AuthDigest, AuthNone}
)

// Client talks to one camera.
type Client struct {
	ip      string
	user    string
	pass    string
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewClient creates a snapshot client for the camera at ip.
func NewClient(ip, user, pass string, logger *zap.Logger) *Client {
	return &Client{
		ip:      ip,
		user:    user,
		pass:    pass,
		baseURL: "http://" + ip,
		client:  &http.Client{},
		logger:  logger.With(zap.String("component", "snapshot")),
	}
}

// Name identifies the source in captions and logs.
func (c *Client) Name() string { return "Camera" }

// Snapshot returns the first image any snapshot path yields.
func (c *Client) Snapshot(ctx context.Context) ([]byte, error) {
	if !config.ValidateIP(c.ip) {
		c.logger.Error("invalid camera address", zap.String("ip", c.ip))
		return nil, fmt.Errorf("%w: %s", config.ErrInvalidIP, c.ip)
	}

	for _, path := range snapshotPaths {
		target := c.baseURL + path
		for _, method := range snapshotAuth {
			c.logger.Info("snapshot attempt", zap.String("url", target), zap.Stringer("auth", method))

			a := c.try(ctx, target, method, SnapshotTimeout)
			switch {
			case a.Err != nil:
				c.logger.Warn("snapshot request failed", zap.String("url", target),
					zap.Stringer("auth", method), zap.String("note", a.Note), zap.Error(a.Err))
			case a.Status != http.StatusOK:
				c.logger.Warn("snapshot http status", zap.String("url", target),
					zap.Stringer("auth", method), zap.Int("status", a.Status))
			case !isImage(a.ContentType):
				c.logger.Warn("snapshot is not an image", zap.String("url", target),
					zap.String("content_type", a.ContentType))
			default:
				c.logger.Info("snapshot received", zap.String("url", target),
					zap.Stringer("auth", method), zap.Int("bytes", len(a.body)))
				return a.body, nil
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
		}
	}

	c.logger.Error("all snapshot attempts failed")
	return nil, ErrNoSnapshot
}

// Attempt is one request made while probing the camera.
type Attempt struct {
	URL         string
	Auth        AuthMethod
	Status      int
	ContentType string
	Note        string
	Err         error

	body []byte
}

func (a Attempt) String() string {
	if a.Err != nil {
		return fmt.Sprintf("%s [%s] - %s", a.URL, a.Auth, a.Note)
	}
	s := fmt.Sprintf("%s [%s] - Status: %d", a.URL, a.Auth, a.Status)
	if a.Note != "" {
		s += " (" + a.Note + ")"
	}
	return s
}

// Report summarizes a connection test.
type Report struct {
	OK       bool
	Success  *Attempt
	Attempts []Attempt
}

func (r Report) String() string {
	if r.OK {
		return fmt.Sprintf("Success! %s\nContent type: %s", r.Success, r.Success.ContentType)
	}
	lines := make([]string, 0, len(r.Attempts))
	for _, a := range r.Attempts {
		lines = append(lines, a.String())
	}
	return "Could not connect to the camera.\n\nResults:\n" + strings.Join(lines, "\n")
}

// Test probes a wider set of paths and auth methods than Snapshot and
// reports every attempt. It stops at the first image.
func (c *Client) Test(ctx context.Context) (Report, error) {
	if !config.ValidateIP(c.ip) {
		return Report{}, fmt.Errorf("%w: %s", config.ErrInvalidIP, c.ip)
	}

	paths := append([]string{}, snapshotPaths...)
	paths = append(paths,
		"/jpg/image.jpg",
		fmt.Sprintf("/videostream.cgi?rate=0&user=%s&pwd=%s", url.QueryEscape(c.user), url.QueryEscape(c.pass)),
	)

	var report Report
	for _, path := range paths {
		target := c.baseURL + path
		for _, method := range testAuth {
			a := c.try(ctx, target, method, TestTimeout)
			a.URL = c.redact(a.URL)
			a.body = nil
			if a.Err == nil {
				switch {
				case a.Status == http.StatusOK && isImage(a.ContentType):
					report.OK = true
					report.Success = &a
					report.Attempts = append(report.Attempts, a)
					return report, nil
				case a.Status == http.StatusOK:
					a.Note = "not an image: " + a.ContentType
				case a.Status == http.StatusUnauthorized:
					a.Note = "authentication error"
				case a.Status == http.StatusNotFound:
					a.Note = "URL not found"
				case a.Status == http.StatusForbidden:
					a.Note = "access denied"
				}
			}
			report.Attempts = append(report.Attempts, a)
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
		}
	}
	return report, nil
}

func (c *Client) redact(u string) string {
	if c.pass == "" {
		return u
	}
	return strings.Replace(u, "pwd="+url.QueryEscape(c.pass), "pwd=******", 1)
}

// try performs one GET with the given auth method. Digest first sends an
// unauthenticated request to obtain the challenge.
func (c *Client) try(ctx context.Context, target string, method AuthMethod, timeout time.Duration) Attempt {
	a := Attempt{URL: target, Auth: method}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.do(ctx, target, method)
	if err != nil {
		a.Err = err
		a.Note = classify(err)
		return a
	}
	defer resp.Body.Close()

	a.Status = resp.StatusCode
	a.ContentType = resp.Header.Get("Content-Type")
	if resp.StatusCode == http.StatusOK && isImage(a.ContentType) {
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
		if err != nil {
			a.Err = fmt.Errorf("failed to read image: %w", err)
			a.Note = classify(err)
			return a
		}
		a.body = body
	} else {
		drain(resp.Body, c.logger)
	}
	return a
}

func (c *Client) do(ctx context.Context, target string, method AuthMethod) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "packscan/1.0")

	if method == AuthBasic {
		req.SetBasicAuth(c.user, c.pass)
	}

	resp, err := c.client.Do(req)
	if err != nil || method != AuthDigest || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	authHeader, ok := digestHeader(resp.Header.Values("WWW-Authenticate"))
	if !ok {
		// no digest offered: report the plain 401
		return resp, nil
	}
	drain(resp.Body, c.logger)
	resp.Body.Close()

	ch, err := parseChallenge(authHeader)
	if err != nil {
		return nil, err
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "packscan/1.0")
	req.Header.Set("Authorization", ch.authorization(c.user, c.pass, http.MethodGet, req.URL.RequestURI(), newCnonce()))
	return c.client.Do(req)
}

// digestHeader picks the Digest challenge out of possibly several
// WWW-Authenticate headers, some of which may combine schemes in one value.
func digestHeader(values []string) (string, bool) {
	for _, v := range values {
		if i := strings.Index(strings.ToLower(v), "digest "); i >= 0 {
			return v[i:], true
		}
	}
	return "", false
}

func drain(body io.Reader, logger *zap.Logger) {
	if _, err := io.Copy(io.Discard, io.LimitReader(body, 64<<10)); err != nil {
		logger.Debug("failed to drain response body", zap.Error(err))
	}
}

func isImage(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "image")
}

func classify(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.As(err, &netErr):
		return "connection error"
	default:
		return "error: " + err.Error()
	}
}

// Package rtsp builds recorder stream URLs and grabs stills from them.
package rtsp

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrUnknownTemplate = errors.New("unknown RTSP template")

// Template describes how one vendor lays out its stream URLs.
type Template struct {
	Key  string
	Name string
	Main string
	Sub  string
}

var templates = []Template{
	{
		Key:  "hikvision",
		Name: "Hikvision",
		Main: "rtsp://{login}:{password}@{ip}:{port}/Streaming/Channels/{channel}01",
		Sub:  "rtsp://{login}:{password}@{ip}:{port}/Streaming/Channels/{channel}02",
	},
	{
		Key:  "dahua",
		Name: "Dahua",
		Main: "rtsp://{login}:{password}@{ip}:{port}/cam/realmonitor?channel={channel}&subtype=0",
		Sub:  "rtsp://{login}:{password}@{ip}:{port}/cam/realmonitor?channel={channel}&subtype=1",
	},
	{
		Key:  "generic",
		Name: "Generic",
		Main: "rtsp://{login}:{password}@{ip}:{port}/live/ch{channel}",
		Sub:  "rtsp://{login}:{password}@{ip}:{port}/live/ch{channel}_sub",
	},
	{
		Key:  "axis",
		Name: "Axis",
		Main: "rtsp://{login}:{password}@{ip}:{port}/axis-media/media.amp?videocodec=h264&resolution=1920x1080",
		Sub:  "rtsp://{login}:{password}@{ip}:{port}/axis-media/media.amp?videocodec=h264&resolution=640x480",
	},
	{
		Key:  "foscam",
		Name: "Foscam",
		Main: "rtsp://{login}:{password}@{ip}:{port}/videoMain",
		Sub:  "rtsp://{login}:{password}@{ip}:{port}/videoSub",
	},
}

// Templates lists the known vendors in display order.
func Templates() []Template {
	out := make([]Template, len(templates))
	copy(out, templates)
	return out
}

// Lookup finds a template by key.
func Lookup(key string) (Template, error) {
	for _, t := range templates {
		if t.Key == key {
			return t, nil
		}
	}
	return Template{}, fmt.Errorf("%w: %s", ErrUnknownTemplate, key)
}

// Endpoint is a recorder channel.
type Endpoint struct {
	IP       string
	Port     string
	Login    string
	Password string
	Channel  string
}

// MainURL renders the main (full resolution) stream URL.
func (t Template) MainURL(ep Endpoint) string { return render(t.Main, ep) }

// SubURL renders the secondary (low resolution) stream URL.
func (t Template) SubURL(ep Endpoint) string { return render(t.Sub, ep) }

func render(tmpl string, ep Endpoint) string {
	user, pass := escapeUserinfo(ep.Login, ep.Password)
	return strings.NewReplacer(
		"{login}", user,
		"{password}", pass,
		"{ip}", ep.IP,
		"{port}", ep.Port,
		"{channel}", url.QueryEscape(ep.Channel),
	).Replace(tmpl)
}

// escapeUserinfo escapes credentials for the userinfo part of a URL. The
// escaped username never contains ':' so the split is unambiguous.
func escapeUserinfo(login, password string) (string, string) {
	s := url.UserPassword(login, password).String()
	user, pass, _ := strings.Cut(s, ":")
	return user, pass
}

// MaskURL hides the password of an RTSP URL for logging.
func MaskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); !ok {
		return raw
	}
	u.User = url.UserPassword(u.User.Username(), "xxxxx")
	return u.String()
}

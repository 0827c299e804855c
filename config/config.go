// Package config loads the packing-station configuration.
//
// The file is YAML; the JSON config files written by older station builds are
// accepted as-is since JSON is valid YAML. Missing or broken files never stop
// the station: Load falls back to defaults and reports the problem.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/denisbrodbeck/machineid"
	"gopkg.in/yaml.v3"
)

const (
	DefaultFile         = "config.json"
	DefaultLogFile      = "app.log"
	DefaultListen       = "127.0.0.1:8085"
	DefaultRecorderPort = "554"
	DefaultChannel      = "1"
	DefaultTemplate     = "hikvision"

	BackendGoCV   = "gocv"
	BackendFFmpeg = "ffmpeg"
)

var (
	ErrInvalidIP       = errors.New("invalid IPv4 address")
	ErrInvalidPackerID = errors.New("packer id must be exactly three digits")
	ErrDuplicatePacker = errors.New("duplicate packer id")

	ipPattern = regexp.MustCompile(`^((25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)$`)
)

// Packer is an operator allowed to open a packing session.
type Packer struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// Retention controls how long scratch and session files are kept.
type Retention struct {
	TempMaxAge    time.Duration `yaml:"temp_max_age" json:"temp_max_age"`
	SessionMaxAge time.Duration `yaml:"session_max_age" json:"session_max_age"`
}

// Config holds all station settings.
type Config struct {
	TelegramToken  string `yaml:"telegram_token" json:"telegram_token"`
	TelegramChatID string `yaml:"telegram_chat_id" json:"telegram_chat_id"`

	// Standalone IP camera (HTTP snapshot endpoints)
	CameraIP       string `yaml:"camera_ip" json:"camera_ip"`
	CameraLogin    string `yaml:"camera_login" json:"camera_login"`
	CameraPassword string `yaml:"camera_password" json:"camera_password"`

	// Recorder (RTSP)
	RecorderIP       string `yaml:"recorder_ip" json:"recorder_ip"`
	RecorderLogin    string `yaml:"recorder_login" json:"recorder_login"`
	RecorderPassword string `yaml:"recorder_password" json:"recorder_password"`
	RecorderPort     string `yaml:"recorder_port" json:"recorder_port"`
	RecorderChannel  string `yaml:"recorder_channel" json:"recorder_channel"`
	RecorderTemplate string `yaml:"recorder_rtsp_template" json:"recorder_rtsp_template"`
	UseRecorder      *bool  `yaml:"use_recorder" json:"use_recorder"`
	RTSPBackend      string `yaml:"rtsp_backend" json:"rtsp_backend"`

	SaveFolder string   `yaml:"save_folder" json:"save_folder"`
	Packers    []Packer `yaml:"packers" json:"packers"`

	DesktopAlerts bool      `yaml:"desktop_alerts" json:"desktop_alerts"`
	Station       string    `yaml:"station" json:"station"`
	HistoryDB     string    `yaml:"history_db" json:"history_db"`
	LogFile       string    `yaml:"log_file" json:"log_file"`
	Listen        string    `yaml:"listen" json:"listen"`
	Retention     Retention `yaml:"retention" json:"retention"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	return cfg
}

// DefaultSaveFolder is ~/Desktop/SkanerFoto, or a relative folder when the
// home directory cannot be resolved.
func DefaultSaveFolder() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "SkanerFoto"
	}
	return filepath.Join(home, "Desktop", "SkanerFoto")
}

// Load reads path. A missing file yields defaults with a nil error. An
// unreadable or malformed file yields defaults together with the error so the
// caller can log it and keep running.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Default(), fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML or JSON document and fills unset fields with defaults.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return Default(), fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.RecorderPort == "" {
		c.RecorderPort = DefaultRecorderPort
	}
	if c.RecorderChannel == "" {
		c.RecorderChannel = DefaultChannel
	}
	if c.RecorderTemplate == "" {
		c.RecorderTemplate = DefaultTemplate
	}
	if c.UseRecorder == nil {
		on := true
		c.UseRecorder = &on
	}
	if c.RTSPBackend == "" {
		c.RTSPBackend = BackendGoCV
	}
	if c.SaveFolder == "" {
		c.SaveFolder = DefaultSaveFolder()
	}
	if c.HistoryDB == "" {
		c.HistoryDB = filepath.Join(c.SaveFolder, "scans.db")
	}
	if c.LogFile == "" {
		c.LogFile = DefaultLogFile
	}
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Retention.TempMaxAge <= 0 {
		c.Retention.TempMaxAge = time.Hour
	}
	if c.Retention.SessionMaxAge <= 0 {
		c.Retention.SessionMaxAge = 14 * 24 * time.Hour
	}
	if c.Station == "" {
		c.Station = defaultStation()
	}
	if c.Packers == nil {
		c.Packers = []Packer{}
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PACKSCAN_TELEGRAM_TOKEN"); v != "" {
		c.TelegramToken = v
	}
	if v := os.Getenv("PACKSCAN_TELEGRAM_CHAT_ID"); v != "" {
		c.TelegramChatID = v
	}
}

// defaultStation derives a stable, non-reversible station name from the
// machine id, falling back to the hostname.
func defaultStation() string {
	if id, err := machineid.ProtectedID("packscan"); err == nil && len(id) >= 8 {
		return "station-" + id[:8]
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "station"
}

// RecorderEnabled reports whether snapshots should come from the recorder.
func (c *Config) RecorderEnabled() bool {
	return c.UseRecorder != nil && *c.UseRecorder && c.RecorderIP != ""
}

// SourceName names the snapshot source this configuration selects:
// "Recorder", "Camera" or "none".
func (c *Config) SourceName() string {
	switch {
	case c.RecorderEnabled():
		return "Recorder"
	case c.CameraIP != "":
		return "Camera"
	default:
		return "none"
	}
}

// FindPacker returns the packer with the given id.
func (c *Config) FindPacker(id string) (Packer, bool) {
	for _, p := range c.Packers {
		if p.ID == id {
			return p, true
		}
	}
	return Packer{}, false
}

// SessionsDir is where per-packer session folders are created.
func (c *Config) SessionsDir() string {
	return filepath.Join(c.SaveFolder, "sessions")
}

// TempDir holds raw snapshots until they are stamped.
func (c *Config) TempDir() string {
	return filepath.Join(c.SaveFolder, "temp")
}

// Validate checks packer ids, IP addresses and the RTSP backend.
func (c *Config) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(c.Packers))
	for _, p := range c.Packers {
		if !IsPackerID(p.ID) {
			errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidPackerID, p.ID))
			continue
		}
		if seen[p.ID] {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicatePacker, p.ID))
		}
		seen[p.ID] = true
	}
	if c.CameraIP != "" && !ValidateIP(c.CameraIP) {
		errs = append(errs, fmt.Errorf("camera_ip: %w: %s", ErrInvalidIP, c.CameraIP))
	}
	if c.RecorderIP != "" && !ValidateIP(c.RecorderIP) {
		errs = append(errs, fmt.Errorf("recorder_ip: %w: %s", ErrInvalidIP, c.RecorderIP))
	}
	if c.RTSPBackend != BackendGoCV && c.RTSPBackend != BackendFFmpeg {
		errs = append(errs, fmt.Errorf("rtsp_backend: unknown backend %q", c.RTSPBackend))
	}
	return errors.Join(errs...)
}

// ValidateIP accepts dotted-quad IPv4 addresses only.
func ValidateIP(ip string) bool {
	return ipPattern.MatchString(ip)
}

// IsPackerID reports whether code is exactly three ASCII digits.
func IsPackerID(code string) bool {
	if len(code) != 3 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// Redacted returns a copy safe for printing.
func (c *Config) Redacted() Config {
	out := *c
	out.TelegramToken = mask(c.TelegramToken)
	out.CameraPassword = mask(c.CameraPassword)
	out.RecorderPassword = mask(c.RecorderPassword)
	return out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return strings.Repeat("*", 6)
}

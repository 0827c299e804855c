// Package processor turns scanned codes into packer sessions and stamped
// product photos.
package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"packscan/config"
	"packscan/history"
	"packscan/journal"
)

const (
	// TimestampLayout is stamped on photos and written to the journal.
	TimestampLayout = "2006-01-02 15:04:05"
	// FileTimeLayout is used in folder and file names.
	FileTimeLayout = "2006-01-02_15-04-05"
)

// Source fetches one JPEG snapshot.
type Source interface {
	Name() string
	Snapshot(ctx context.Context) ([]byte, error)
}

// SourceFunc picks the snapshot source for a configuration. It returns nil
// when neither a recorder nor a camera is configured.
type SourceFunc func(cfg *config.Config) Source

// Annotator burns the code, time and source into a snapshot.
type Annotator interface {
	Annotate(snapshot []byte, code, timestamp, source string) ([]byte, error)
}

// Notifier delivers messages to the team chat.
type Notifier interface {
	SendMessage(ctx context.Context, text string) error
	SendPhoto(ctx context.Context, path, caption string) error
}

// NotifierFunc builds a notifier for a configuration.
type NotifierFunc func(cfg *config.Config) Notifier

// Alerter gives feedback at the station itself.
type Alerter interface {
	Info(title, message string)
	Alert(title, message string)
}

// ScanRecorder indexes saved scans.
type ScanRecorder interface {
	Record(ctx context.Context, scan history.Scan) (history.Scan, error)
}

// Deps are the collaborators of a Processor. Only Sources is required.
type Deps struct {
	Sources   SourceFunc
	Annotator Annotator
	Notifier  NotifierFunc
	Alerts    Alerter
	History   ScanRecorder
}

// Processor holds the active packer session. Scans are handled one at a
// time; state queries do not wait for a scan in progress.
type Processor struct {
	busy sync.Mutex

	mu        sync.RWMutex
	cfg       *config.Config
	packer    *config.Packer
	folder    string
	sessionID string
	scans     int

	deps   Deps
	logger *zap.Logger
	now    func() time.Time
}

// New creates a processor with no active packer.
func New(cfg *config.Config, deps Deps, logger *zap.Logger) *Processor {
	return &Processor{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With(zap.String("component", "processor")),
		now:    time.Now,
	}
}

// UpdateConfig swaps the configuration used from the next scan on.
func (p *Processor) UpdateConfig(cfg *config.Config) {
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
	p.logger.Info("configuration updated", zap.Int("packers", len(cfg.Packers)))
}

// Config returns the configuration currently in use.
func (p *Processor) Config() *config.Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// Status returns the current session state.
func (p *Processor) Status() State {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st := State{
		SessionID: p.sessionID,
		Folder:    p.folder,
		Scans:     p.scans,
		Station:   p.cfg.Station,
		Source:    p.cfg.SourceName(),
	}
	if p.packer != nil {
		pk := *p.packer
		st.Packer = &pk
	}
	return st
}

// EndSession clears the active packer. The next product scan requires a
// packer ID again.
func (p *Processor) EndSession() State {
	p.busy.Lock()
	defer p.busy.Unlock()

	prev := p.Status()
	p.mu.Lock()
	p.packer = nil
	p.folder = ""
	p.sessionID = ""
	p.scans = 0
	p.mu.Unlock()

	if prev.Packer != nil {
		p.logger.Info("session ended",
			zap.String("packer", prev.Packer.Name),
			zap.String("session", prev.SessionID),
			zap.Int("scans", prev.Scans))
	}
	return prev
}

// ProcessCode handles one scanned code: a three-digit packer ID opens a new
// session, anything else is a product barcode for the current session.
func (p *Processor) ProcessCode(ctx context.Context, code string) Result {
	p.busy.Lock()
	defer p.busy.Unlock()

	code = strings.TrimSpace(code)
	if code == "" {
		p.logger.Warn("empty code received")
		return Result{Status: StatusEmpty, Message: "Empty code"}
	}
	p.logger.Info("code received", zap.String("code", code))

	cfg := p.Config()
	if config.IsPackerID(code) {
		return p.selectPacker(ctx, cfg, code)
	}

	p.mu.RLock()
	active := p.packer != nil
	p.mu.RUnlock()
	if !active {
		p.logger.Warn("product scanned without a packer", zap.String("code", code))
		p.alert("Scan packer ID first", code)
		return Result{Status: StatusNoPacker, Code: code, Message: "Scan packer ID first!"}
	}
	return p.processProduct(ctx, cfg, code)
}

func (p *Processor) selectPacker(ctx context.Context, cfg *config.Config, id string) Result {
	packer, ok := cfg.FindPacker(id)
	if !ok {
		p.logger.Warn("packer not found", zap.String("id", id))
		p.alert("Unknown packer", id)
		return Result{Status: StatusPackerNotFound, Code: id, Message: fmt.Sprintf("Packer with ID %s not found", id)}
	}

	folder := filepath.Join(cfg.SessionsDir(),
		fmt.Sprintf("%s_%s_%s", p.now().Format(FileTimeLayout), sanitize(packer.Name), packer.ID))
	if err := os.MkdirAll(folder, 0o755); err != nil {
		p.logger.Error("failed to create session folder", zap.String("folder", folder), zap.Error(err))
		p.alert("Session folder error", err.Error())
		return Result{Status: StatusSessionError, Code: id, Message: "Session folder error"}
	}

	sessionID := uuid.NewString()
	p.mu.Lock()
	p.packer = &packer
	p.folder = folder
	p.sessionID = sessionID
	p.scans = 0
	p.mu.Unlock()

	p.logger.Info("packer selected",
		zap.String("packer", packer.Name),
		zap.String("id", packer.ID),
		zap.String("session", sessionID),
		zap.String("folder", folder))

	if n := p.notifier(cfg); n != nil {
		_ = n.SendMessage(ctx, fmt.Sprintf("Packer %s (#%s) started work at %s.", packer.Name, packer.ID, cfg.Station))
	}
	if p.deps.Alerts != nil {
		p.deps.Alerts.Info("Packer selected", packer.Name)
	}

	pk := packer
	return Result{Status: StatusPackerSelected, Code: id, Packer: &pk, Message: "Packer selected: " + packer.Name}
}

// processProduct fetches, stamps and files a snapshot for a product code.
func (p *Processor) processProduct(ctx context.Context, cfg *config.Config, code string) Result {
	p.mu.RLock()
	packer := *p.packer
	folder := p.folder
	sessionID := p.sessionID
	p.mu.RUnlock()

	at := p.now()
	timestamp := at.Format(TimestampLayout)
	res := Result{Code: code, Packer: &packer}

	if err := journal.Append(folder, code, timestamp); err != nil {
		p.logger.Error("failed to append journal row", zap.String("code", code), zap.Error(err))
	}

	src := p.source(cfg)
	var snapshot []byte
	if src == nil {
		p.logger.Warn("no snapshot source configured")
	} else {
		res.Source = src.Name()
		p.logger.Info("requesting snapshot", zap.String("source", src.Name()), zap.String("code", code))
		var err error
		snapshot, err = src.Snapshot(ctx)
		if err != nil {
			p.logger.Error("snapshot failed", zap.String("source", src.Name()), zap.String("code", code), zap.Error(err))
			snapshot = nil
		}
	}

	if snapshot == nil {
		if n := p.notifier(cfg); n != nil {
			_ = n.SendMessage(ctx, fmt.Sprintf("Code: %s\nPacker: %s (#%s)\nTime: %s\nSnapshot could not be taken.",
				code, packer.Name, packer.ID, timestamp))
		}
		p.alert("Snapshot failed", code)
		p.countScan()
		res.Status = StatusSnapshotFailed
		res.Message = "Snapshot failed: " + code
		return res
	}

	tempPath := p.writeTemp(cfg, at, snapshot)

	stamped := snapshot
	if p.deps.Annotator != nil {
		out, err := p.deps.Annotator.Annotate(snapshot, code, timestamp, src.Name())
		if err != nil {
			p.logger.Warn("annotation failed, saving raw snapshot", zap.String("code", code), zap.Error(err))
		} else {
			stamped = out
		}
	}

	finalPath := filepath.Join(folder, fmt.Sprintf("%s_%s.jpg", sanitize(code), at.Format(FileTimeLayout)))
	if err := os.WriteFile(finalPath, stamped, 0o644); err != nil {
		p.logger.Error("failed to save photo", zap.String("path", finalPath), zap.Error(err))
		p.alert("Photo not saved", code)
		p.countScan()
		res.Status = StatusSaveFailed
		res.Message = "Failed to save photo: " + code
		return res
	}
	if tempPath != "" {
		if err := os.Remove(tempPath); err != nil {
			p.logger.Debug("failed to remove temp snapshot", zap.String("path", tempPath), zap.Error(err))
		}
	}
	p.logger.Info("photo saved", zap.String("code", code), zap.String("path", finalPath))

	if p.deps.History != nil {
		_, err := p.deps.History.Record(ctx, history.Scan{
			SessionID:  sessionID,
			PackerID:   packer.ID,
			PackerName: packer.Name,
			Code:       code,
			Photo:      finalPath,
			Source:     src.Name(),
			Station:    cfg.Station,
			ScannedAt:  at,
		})
		if err != nil {
			p.logger.Error("failed to record scan history", zap.String("code", code), zap.Error(err))
		}
	}

	if n := p.notifier(cfg); n != nil {
		caption := fmt.Sprintf("Code: %s\nPacker: %s (#%s)\nTime: %s\nSource: %s",
			code, packer.Name, packer.ID, timestamp, src.Name())
		_ = n.SendPhoto(ctx, finalPath, caption)
	}

	p.countScan()
	res.Status = StatusSaved
	res.Photo = finalPath
	res.Message = "Saved: " + code
	return res
}

// writeTemp keeps the raw snapshot on disk until the stamped photo exists.
func (p *Processor) writeTemp(cfg *config.Config, at time.Time, snapshot []byte) string {
	dir := cfg.TempDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		p.logger.Warn("failed to create temp folder", zap.String("dir", dir), zap.Error(err))
		return ""
	}
	path := filepath.Join(dir, fmt.Sprintf("snap_%d.jpg", at.Unix()))
	if err := os.WriteFile(path, snapshot, 0o644); err != nil {
		p.logger.Warn("failed to write temp snapshot", zap.String("path", path), zap.Error(err))
		return ""
	}
	return path
}

func (p *Processor) countScan() {
	p.mu.Lock()
	p.scans++
	p.mu.Unlock()
}

func (p *Processor) source(cfg *config.Config) Source {
	if p.deps.Sources == nil {
		return nil
	}
	return p.deps.Sources(cfg)
}

func (p *Processor) notifier(cfg *config.Config) Notifier {
	if p.deps.Notifier == nil {
		return nil
	}
	return p.deps.Notifier(cfg)
}

func (p *Processor) alert(title, message string) {
	if p.deps.Alerts != nil {
		p.deps.Alerts.Alert(title, message)
	}
}

var unsafeChars = strings.NewReplacer(
	"/", "_", `\`, "_", ":", "_", "*", "_", "?", "_",
	`"`, "_", "<", "_", ">", "_", "|", "_",
)

// sanitize makes a scanned code safe to use as a file name.
func sanitize(s string) string {
	s = unsafeChars.Replace(s)
	if s == "." || s == ".." {
		return "_"
	}
	return s
}

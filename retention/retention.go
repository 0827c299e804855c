// Package retention removes stale scratch snapshots and expired sessions.
package retention

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Cleaner deletes files by modification time under the station's save
// folder.
type Cleaner struct {
	sessionsDir string
	tempDir     string
	tempMaxAge  time.Duration
	maxAge      time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewCleaner creates a cleaner. tempMaxAge applies to raw snapshots in
// tempDir, maxAge to everything in sessionsDir and tempDir.
func NewCleaner(sessionsDir, tempDir string, tempMaxAge, maxAge time.Duration, logger *zap.Logger) *Cleaner {
	return &Cleaner{
		sessionsDir: sessionsDir,
		tempDir:     tempDir,
		tempMaxAge:  tempMaxAge,
		maxAge:      maxAge,
		logger:      logger.With(zap.String("component", "retention")),
		now:         time.Now,
	}
}

// CleanupTemp deletes raw snapshots older than the temp limit.
func (c *Cleaner) CleanupTemp() int {
	n := c.removeFiles(c.tempDir, c.now().Add(-c.tempMaxAge))
	if n > 0 {
		c.logger.Info("temp snapshots removed", zap.Int("count", n))
	}
	return n
}

// CleanupOld deletes session files and temp files older than the retention
// limit, then removes expired session folders that ended up empty. It
// returns the number of files and folders deleted.
func (c *Cleaner) CleanupOld() int {
	cutoff := c.now().Add(-c.maxAge)
	// removing files bumps a folder's mtime, so pick the expired ones first
	dirs := c.expiredDirs(c.sessionsDir, cutoff)
	n := c.removeFiles(c.sessionsDir, cutoff)
	n += c.removeFiles(c.tempDir, cutoff)
	n += c.removeEmptyDirs(dirs)
	c.logger.Info("old files removed", zap.Int("count", n), zap.Time("cutoff", cutoff))
	return n
}
func (c *Cleaner) removeFiles(root string, cutoff time.Time) int {
	removed := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			c.logger.Warn("walk failed", zap.String("path", path), zap.Error(err))
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			c.logger.Warn("failed to remove file", zap.String("path", path), zap.Error(err))
			return nil
		}
		c.logger.Debug("file removed", zap.String("path", path))
		removed++
		return nil
	})
	if err != nil {
		c.logger.Warn("cleanup walk aborted", zap.String("root", root), zap.Error(err))
	}
	return removed
}

// expiredDirs lists folders below root last modified before cutoff, deepest
// first. root itself is never listed.
func (c *Cleaner) expiredDirs(root string, cutoff time.Time) []string {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				c.logger.Debug("walk failed", zap.String("path", path), zap.Error(err))
			}
			return nil
		}
		if !d.IsDir() || path == root {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			c.logger.Debug("stat failed", zap.String("path", path), zap.Error(err))
			return nil
		}
		if info.ModTime().Before(cutoff) {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		c.logger.Debug("folder walk aborted", zap.String("root", root), zap.Error(err))
	}
	sort.Slice(dirs, func(i, j int) bool {
		return strings.Count(dirs[i], string(os.PathSeparator)) > strings.Count(dirs[j], string(os.PathSeparator))
	})
	return dirs
}

// removeEmptyDirs deletes the given folders that are empty. dirs must be
// ordered deepest first.
func (c *Cleaner) removeEmptyDirs(dirs []string) int {
	removed := 0
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := os.Remove(dir); err != nil {
			c.logger.Warn("failed to remove folder", zap.String("path", dir), zap.Error(err))
			continue
		}
		c.logger.Debug("folder removed", zap.String("path", dir))
		removed++
	}
	return removed
}

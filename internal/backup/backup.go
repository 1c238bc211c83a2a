// Package backup implements file-copy backups of the database, taken before
// destructive operations and training runs.
package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Manager copies the database file into a backup directory. Labels become
// part of the backup filename so the trigger of each backup stays visible.
type Manager struct {
	dbPath string
	dir    string
	keep   int
	log    *logrus.Logger
}

// New creates a backup manager. keep bounds how many backups are retained
// per label; zero keeps everything.
func New(dbPath, dir string, keep int, log *logrus.Logger) *Manager {
	return &Manager{dbPath: dbPath, dir: dir, keep: keep, log: log}
}

// Create copies the database file to <dir>/<label>_<timestamp>.db and
// returns the backup path. The copy is flushed to disk before returning so a
// crash right after a reset cannot lose both the live file and the backup.
func (m *Manager) Create(label string) (string, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory %s: %w", m.dir, err)
	}

	src, err := os.Open(m.dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to open database for backup: %w", err)
	}
	defer src.Close()

	name := fmt.Sprintf("%s_%s.db", label, time.Now().UTC().Format("20060102T150405Z"))
	path := filepath.Join(m.dir, name)

	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create backup file %s: %w", path, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to copy database to %s: %w", path, err)
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to sync backup %s: %w", path, err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("failed to close backup %s: %w", path, err)
	}

	if m.log != nil {
		m.log.WithFields(logrus.Fields{"label": label, "path": path}).Info("Database backup created")
	}

	if m.keep > 0 {
		if err := m.prune(label); err != nil && m.log != nil {
			m.log.WithError(err).Warn("Failed to prune old backups")
		}
	}
	return path, nil
}

// prune deletes the oldest backups of a label beyond the retention count.
// Timestamped names sort chronologically.
func (m *Manager) prune(label string) error {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return fmt.Errorf("failed to read backup directory: %w", err)
	}
	var matches []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), label+"_") && strings.HasSuffix(e.Name(), ".db") {
			matches = append(matches, e.Name())
		}
	}
	if len(matches) <= m.keep {
		return nil
	}
	sort.Strings(matches)
	for _, name := range matches[:len(matches)-m.keep] {
		if err := os.Remove(filepath.Join(m.dir, name)); err != nil {
			return fmt.Errorf("failed to remove old backup %s: %w", name, err)
		}
	}
	return nil
}

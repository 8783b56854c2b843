package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/jward/trellis/internal/config"
)

const (
	pidFileName  = "daemon.pid"
	lockFileName = "daemon.lock"
	logFileName  = "daemon.log"
)

// PIDFile is what a running daemon records about itself.
type PIDFile struct {
	PID           int       `json:"pid"`
	Version       string    `json:"version"`
	SchemaVersion int       `json:"schema_version"`
	StartedAt     time.Time `json:"started_at"`
	Root          string    `json:"root"`
	DB            string    `json:"db,omitempty"`
}

// StateDir is the per-workspace directory holding the PID, lock and log files.
func StateDir(root string) string {
	return filepath.Join(root, config.DefaultDBDir)
}

// PIDPath returns the PID file location for root.
func PIDPath(root string) string {
	return filepath.Join(StateDir(root), pidFileName)
}

// LogPath returns the default log file for a background daemon.
func LogPath(root string) string {
	return filepath.Join(StateDir(root), logFileName)
}

// ReadPID returns the PID file for root, or nil when there is none.
func ReadPID(root string) (*PIDFile, error) {
	data, err := os.ReadFile(PIDPath(root))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pid file: %w", err)
	}
	var pf PIDFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse pid file %s: %w", PIDPath(root), err)
	}
	return &pf, nil
}

func writePID(root string, pf *PIDFile) error {
	if err := os.MkdirAll(StateDir(root), 0o755); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	data, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	tmp := PIDPath(root) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return os.Rename(tmp, PIDPath(root))
}

func removePID(root string) error {
	if err := os.Remove(PIDPath(root)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove pid file: %w", err)
	}
	return nil
}

// livePID returns the PID file when it names a running process. A stale
// file is removed.
func livePID(root string) (*PIDFile, error) {
	pf, err := ReadPID(root)
	if err != nil || pf == nil {
		return nil, err
	}
	if processAlive(pf.PID) {
		return pf, nil
	}
	return nil, removePID(root)
}

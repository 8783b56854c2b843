//go:build windows

package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	p.Release()
	return true
}

// Windows has no SIGTERM; both paths kill the process.
func signalProcess(pid int, _ bool) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

// lockFile relies on the PID file check alone on Windows.
type lockFile struct {
	f *os.File
}

func acquireLock(root string) (*lockFile, error) {
	if err := os.MkdirAll(StateDir(root), 0o755); err != nil {
		return nil, fmt.Errorf("lock: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(StateDir(root), lockFileName), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lock: %w", err)
	}
	return &lockFile{f: f}, nil
}

func (l *lockFile) release() {
	l.f.Close()
}

func detach(*exec.Cmd) {}

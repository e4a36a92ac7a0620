package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	apperrors "github.com/eliteGoblin/focusd/focuslock/internal/errors"
)

const pidFileName = "focuslock.pid"

// PIDFile records the running daemon so the CLI can report on it and a
// second daemon refuses to start.
type PIDFile struct {
	path string
}

// NewPIDFile returns the pid file for dataDir.
func NewPIDFile(dataDir string) *PIDFile {
	return &PIDFile{path: filepath.Join(dataDir, pidFileName)}
}

// Running returns the recorded pid if that process is still alive.
func (f *PIDFile) Running() (int, bool) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	alive, err := process.PidExists(int32(pid))
	if err != nil || !alive {
		return 0, false
	}
	return pid, true
}

// Acquire writes pid, failing if another live daemon holds the file.
func (f *PIDFile) Acquire(pid int) error {
	if other, ok := f.Running(); ok && other != pid {
		return apperrors.Attr(apperrors.New(apperrors.KindConflict, "daemon already running"), "pid", other)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return apperrors.Wrap(err, apperrors.KindUnavailable, "create data directory")
	}
	if err := os.WriteFile(f.path, []byte(strconv.Itoa(pid)), 0600); err != nil {
		return apperrors.Wrap(err, apperrors.KindUnavailable, "write pid file")
	}
	return nil
}

// Release removes the file if it still names pid.
func (f *PIDFile) Release(pid int) {
	data, err := os.ReadFile(f.path)
	if err != nil || strings.TrimSpace(string(data)) != strconv.Itoa(pid) {
		return
	}
	_ = os.Remove(f.path)
}

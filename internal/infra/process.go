// Package infra implements the adapters behind the domain interfaces:
// the encrypted store, processes, the virtual interface and notifications.
package infra

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
	apperrors "github.com/eliteGoblin/focusd/focuslock/internal/errors"
)

// ProcessManagerImpl implements domain.ProcessManager using gopsutil.
type ProcessManagerImpl struct{}

// NewProcessManager creates a new process manager.
func NewProcessManager() domain.ProcessManager {
	return &ProcessManagerImpl{}
}

// FindByName returns PIDs of processes whose name or executable contains
// pattern, case-insensitively.
func (pm *ProcessManagerImpl) FindByName(pattern string) ([]int, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, nil
	}
	procs, err := process.Processes()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindUnavailable, "list processes")
	}

	var found []int
	patternLower := strings.ToLower(pattern)

	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue // Process may have exited
		}
		if matchesProcess(name, patternLower) {
			found = append(found, int(p.Pid))
			continue
		}
		// Bundled apps often run under a generic name; fall back to the binary path.
		if exe, err := p.Exe(); err == nil && matchesProcess(filepath.Base(exe), patternLower) {
			found = append(found, int(p.Pid))
		}
	}

	return found, nil
}

func matchesProcess(name, patternLower string) bool {
	return strings.Contains(strings.ToLower(name), patternLower)
}

// Kill terminates a process by PID using SIGKILL.
func (pm *ProcessManagerImpl) Kill(pid int) error {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return apperrors.Attr(apperrors.Wrap(err, apperrors.KindNotFound, "find process"), "pid", pid)
	}
	if err := p.Kill(); err != nil {
		return apperrors.Attr(apperrors.Wrap(err, apperrors.KindUnavailable, "kill process"), "pid", pid)
	}
	return nil
}

// GetCurrentPID returns the current process PID.
func (pm *ProcessManagerImpl) GetCurrentPID() int {
	return os.Getpid()
}

// Ensure ProcessManagerImpl implements domain.ProcessManager.
var _ domain.ProcessManager = (*ProcessManagerImpl)(nil)

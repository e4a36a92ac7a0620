package daemon

import (
	"os"
	"os/exec"
	"syscall"

	apperrors "github.com/eliteGoblin/focusd/focuslock/internal/errors"
)

// StartDetached spawns "<executable> daemon run" in its own session so it
// outlives the calling shell. args are appended to the command line.
func StartDetached(args ...string) (int, error) {
	executable, err := os.Executable()
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.KindInternal, "resolve executable")
	}
	return startDetachedWithPath(executable, args...)
}

func startDetachedWithPath(executable string, args ...string) (int, error) {
	cmd := exec.Command(executable, append([]string{"daemon", "run"}, args...)...)

	// Detach from parent process
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return 0, apperrors.Attr(apperrors.Wrap(err, apperrors.KindUnavailable, "spawn daemon"), "executable", executable)
	}
	pid := cmd.Process.Pid
	// The child is not waited on; release it so no zombie bookkeeping remains.
	_ = cmd.Process.Release()
	return pid, nil
}

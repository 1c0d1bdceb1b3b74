//go:build unix

package sandbox

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

type platformController struct{}

// Prepare puts the child in a new session so the whole tree shares one
// process group id.
func (platformController) Prepare(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setsid = true
	cmd.WaitDelay = waitDelay
}

func (platformController) Kill(p *os.Process) error {
	if p == nil {
		return nil
	}
	pid := p.Pid
	// kill(-1) and kill(0) would hit far more than the child.
	if pid <= 1 {
		return nil
	}
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return err
	}
	return nil
}

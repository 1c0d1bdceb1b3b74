//go:build windows

package sandbox

import (
	"errors"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"golang.org/x/sys/windows"
)

type platformController struct{}

func (platformController) Prepare(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags |= windows.CREATE_NEW_PROCESS_GROUP
	cmd.WaitDelay = waitDelay
}

// Kill uses taskkill /t because TerminateProcess leaves children running.
func (platformController) Kill(p *os.Process) error {
	if p == nil {
		return nil
	}
	err := exec.Command("taskkill", "/pid", strconv.Itoa(p.Pid), "/f", "/t").Run()
	if err == nil {
		return nil
	}
	if kerr := p.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
		return kerr
	}
	return nil
}

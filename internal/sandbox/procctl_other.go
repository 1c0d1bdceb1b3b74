//go:build !unix && !windows

package sandbox

import (
	"errors"
	"os"
	"os/exec"
)

type platformController struct{}

func (platformController) Prepare(cmd *exec.Cmd) {
	cmd.WaitDelay = waitDelay
}

func (platformController) Kill(p *os.Process) error {
	if p == nil {
		return nil
	}
	if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

package sandbox

import (
	"os"
	"os/exec"
	"time"
)

// waitDelay bounds how long Wait keeps reading pipes after the process group
// has been killed, in case an orphaned grandchild still holds them open.
const waitDelay = 3 * time.Second

// ProcessController isolates the platform-specific parts of process
// supervision: starting a child in its own process group and killing that
// whole group later.
type ProcessController interface {
	// Prepare configures cmd before Start so that Kill can reach every
	// descendant it spawns. It never sets cmd.Cancel, so it is safe for
	// commands built without a context.
	Prepare(cmd *exec.Cmd)

	// Kill forcefully terminates p and its descendants. Killing a process
	// that has already exited is not an error.
	Kill(p *os.Process) error
}

// KillOnCancel makes a context-bound cmd kill its whole process tree when the
// context ends. cmd must come from exec.CommandContext.
func KillOnCancel(procs ProcessController, cmd *exec.Cmd) {
	cmd.Cancel = func() error { return procs.Kill(cmd.Process) }
}

// NewProcessController returns the controller for the running platform.
func NewProcessController() ProcessController {
	return platformController{}
}

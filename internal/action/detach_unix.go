//go:build unix

package action

import (
	"os/exec"
	"syscall"
)

// detach starts the command in its own process group so the daemon's
// SIGINT does not reach it.
func detach(cmd *exec.Cmd) {
	if cmd == nil {
		return
	}
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

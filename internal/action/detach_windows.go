//go:build windows

package action

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// detach keeps console commands from flashing a window and from receiving
// the daemon's Ctrl+C. Existing SysProcAttr fields are preserved.
func detach(cmd *exec.Cmd) {
	if cmd == nil {
		return
	}
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags |= windows.CREATE_NO_WINDOW | windows.CREATE_NEW_PROCESS_GROUP
}

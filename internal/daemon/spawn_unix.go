//go:build !windows

package daemon

import (
	"os/exec"
	"syscall"
)

// detachProcess puts the spawned daemon in its own session so it survives
// the CLI invocation and its terminal.
func detachProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

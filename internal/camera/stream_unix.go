//go:build unix

package camera

import (
	"os/exec"
	"syscall"
)

// configureProcess runs the tool in its own process group so Close also
// kills any helper processes it spawned.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}

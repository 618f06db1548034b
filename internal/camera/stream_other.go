//go:build !unix

package camera

import "os/exec"

func configureProcess(*exec.Cmd) {}

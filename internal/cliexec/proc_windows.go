//go:build windows

package cliexec

import "os/exec"

func configureCommandProcess(cmd *exec.Cmd) {}

// interruptProcess has no graceful equivalent for console-less children on
// Windows, so it kills outright.
func interruptProcess(cmd *exec.Cmd) {
	killProcess(cmd)
}

func killProcess(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}

//go:build windows

package proc

import "os/exec"

func configureGroup(*exec.Cmd) {}

// Windows has no SIGINT for child processes, so the interrupt is a kill.
func interruptGroup(cmd *exec.Cmd) error {
	return killGroup(cmd)
}

func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

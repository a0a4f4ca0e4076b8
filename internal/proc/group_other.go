//go:build !unix && !windows

package proc

import "os/exec"

func configureGroup(*exec.Cmd) {}

func interruptGroup(cmd *exec.Cmd) error { return killGroup(cmd) }

func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

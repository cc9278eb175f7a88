// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup spawns subprocesses in their own process group and tears
// the whole group down on cancellation.
package procgroup

import (
	"errors"
	"os"
	"os/exec"
	"time"
)

var ErrKillFailed = errors.New("kill operation failed")

// Set configures the command to start in a new process group.
// Mandatory for Terminate to reach grandchildren.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// Terminate stops the process group led by proc: SIGTERM, then SIGKILL if
// exited has not closed within grace. exited must be closed by whoever owns
// cmd.Wait; Terminate never reaps the process itself. ErrKillFailed is
// returned when the leader survives SIGKILL for longer than timeout.
func Terminate(proc *os.Process, exited <-chan struct{}, grace, timeout time.Duration) error {
	if proc == nil || proc.Pid <= 0 {
		return nil
	}
	return terminate(proc, exited, grace, timeout)
}

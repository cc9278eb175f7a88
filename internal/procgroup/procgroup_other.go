// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build !unix

package procgroup

import (
	"os"
	"os/exec"
	"time"

	"github.com/ManuGH/mediad/internal/log"
)

func set(cmd *exec.Cmd) {
	// No process groups; only the root process is managed.
}

func terminate(proc *os.Process, exited <-chan struct{}, grace, timeout time.Duration) error {
	log.L().Debug().Int(log.FieldPID, proc.Pid).Msg("interrupting root process (no process groups)")
	_ = proc.Signal(os.Interrupt)

	select {
	case <-exited:
		return nil
	case <-time.After(grace):
		_ = proc.Kill()
	}

	select {
	case <-exited:
		return nil
	case <-time.After(timeout):
		return ErrKillFailed
	}
}

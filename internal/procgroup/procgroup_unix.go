// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package procgroup

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/ManuGH/mediad/internal/log"
)

func set(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// signalGroup signals -pid, falling back to the leader alone when the group
// is not reachable. ESRCH means everything is gone already.
func signalGroup(proc *os.Process, sig syscall.Signal) (gone bool) {
	err := syscall.Kill(-proc.Pid, sig)
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ESRCH) {
		return true
	}
	_ = proc.Signal(sig)
	return false
}

func terminate(proc *os.Process, exited <-chan struct{}, grace, timeout time.Duration) error {
	pid := proc.Pid

	log.L().Debug().Int(log.FieldPID, pid).Msg("sending SIGTERM to process group")
	if signalGroup(proc, syscall.SIGTERM) {
		return nil
	}

	select {
	case <-exited:
		// The leader is gone; sweep anything it left behind in the group.
		_ = syscall.Kill(-pid, syscall.SIGKILL)
		return nil
	case <-time.After(grace):
	}

	log.L().Warn().Int(log.FieldPID, pid).Dur("grace", grace).Msg("SIGTERM grace period exceeded, sending SIGKILL to process group")
	if signalGroup(proc, syscall.SIGKILL) {
		return nil
	}

	select {
	case <-exited:
		return nil
	case <-time.After(timeout):
		return ErrKillFailed
	}
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package procgroup

import (
	"errors"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startGroup(t *testing.T, script string) (*exec.Cmd, <-chan struct{}) {
	t.Helper()

	cmd := exec.Command("sh", "-c", script)
	Set(cmd)
	require.NoError(t, cmd.Start())

	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()

	// Give the shell a moment to spawn its children.
	time.Sleep(100 * time.Millisecond)
	return cmd, exited
}

func groupGone(pgid int) bool {
	err := syscall.Kill(-pgid, syscall.Signal(0))
	return errors.Is(err, syscall.ESRCH)
}

func TestTerminate_SIGTERMKillsGroup(t *testing.T) {
	cmd, exited := startGroup(t, "sleep 10 & sleep 10")
	pid := cmd.Process.Pid

	pgid, err := syscall.Getpgid(pid)
	require.NoError(t, err)
	assert.Equal(t, pid, pgid, "process should be group leader")

	start := time.Now()
	require.NoError(t, Terminate(cmd.Process, exited, 2*time.Second, 2*time.Second))
	assert.Less(t, time.Since(start), 2*time.Second)

	require.Eventually(t, func() bool { return groupGone(pgid) }, 2*time.Second, 20*time.Millisecond)
}

func TestTerminate_EscalatesToSIGKILL(t *testing.T) {
	cmd, exited := startGroup(t, "trap '' TERM; sleep 10 & wait")
	pgid := cmd.Process.Pid

	start := time.Now()
	require.NoError(t, Terminate(cmd.Process, exited, 200*time.Millisecond, 2*time.Second))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond, "must wait out the grace period")
	assert.Less(t, elapsed, 3*time.Second)
	require.Eventually(t, func() bool { return groupGone(pgid) }, 2*time.Second, 20*time.Millisecond)
}

func TestTerminate_AlreadyExited(t *testing.T) {
	cmd, exited := startGroup(t, "exit 0")
	<-exited

	assert.NoError(t, Terminate(cmd.Process, exited, 100*time.Millisecond, 100*time.Millisecond))
}

func TestTerminate_NilProcess(t *testing.T) {
	assert.NoError(t, Terminate(nil, nil, time.Millisecond, time.Millisecond))
}

// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"os/exec"
)

// BinaryChecker checks that an executable resolves on disk or PATH.
type BinaryChecker struct {
	name     string
	bin      string
	severity Status
}

// NewBinaryChecker creates a checker for bin. severity is reported when the
// binary is missing.
func NewBinaryChecker(name, bin string, severity Status) *BinaryChecker {
	return &BinaryChecker{name: name, bin: bin, severity: severity}
}

func (c *BinaryChecker) Name() string {
	return c.name
}

func (c *BinaryChecker) Check(_ context.Context) CheckResult {
	path, err := exec.LookPath(c.bin)
	if err != nil {
		return CheckResult{
			Status:  c.severity,
			Error:   err.Error(),
			Message: c.bin,
		}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Message: path,
	}
}

// PingChecker wraps a ping function, such as a database ping.
type PingChecker struct {
	name string
	ping func(context.Context) error
}

// NewPingChecker creates a checker that is unhealthy when ping fails.
func NewPingChecker(name string, ping func(context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping}
}

func (c *PingChecker) Name() string {
	return c.name
}

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	if err := c.ping(ctx); err != nil {
		return CheckResult{
			Status: StatusUnhealthy,
			Error:  err.Error(),
		}
	}
	return CheckResult{Status: StatusHealthy}
}

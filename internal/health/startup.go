// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/ManuGH/mediad/internal/config"
	"github.com/ManuGH/mediad/internal/log"
)

// PerformStartupChecks validates the environment before the server starts.
// A missing data directory is fatal; missing media tools only warn because
// passthrough delivery works without them.
func PerformStartupChecks(cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")

	if err := checkDataDir(logger, cfg.DataDir); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}

	for _, bin := range []string{cfg.FFmpeg.Bin, cfg.FFmpeg.FFprobeBin} {
		if path, err := exec.LookPath(bin); err != nil {
			logger.Warn().Err(err).Str("bin", bin).Msg("media tool not found; transcoding or probing will fail")
		} else {
			logger.Info().Str("bin", path).Msg("media tool available")
		}
	}

	for _, dir := range cfg.Library.Watch {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			logger.Warn().Str(log.FieldDir, dir).Msg("configured library directory is not accessible")
		}
	}
	return nil
}

func checkDataDir(logger zerolog.Logger, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(testFile)

	logger.Debug().Str("path", path).Msg("data directory is writable")
	return nil
}

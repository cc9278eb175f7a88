// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"

	"github.com/rs/zerolog"
)

// App owns the running daemon and delegates server management to Manager.
type App struct {
	logger  zerolog.Logger
	manager Manager
}

// NewApp creates a new App orchestrator.
func NewApp(logger zerolog.Logger, manager Manager) *App {
	return &App{logger: logger, manager: manager}
}

// Run blocks until ctx is cancelled or a server fails. Shutdown hooks have
// run by the time it returns.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}
	a.logger.Info().Str("event", "daemon.start").Msg("mediad starting")
	err := a.manager.Start(ctx)
	if err != nil {
		a.logger.Error().Err(err).Str("event", "daemon.stopped").Msg("mediad stopped with error")
		return err
	}
	a.logger.Info().Str("event", "daemon.stopped").Msg("mediad stopped")
	return nil
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command mediad resolves media references and serves them over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ManuGH/mediad/internal/config"
	"github.com/ManuGH/mediad/internal/daemon"
	"github.com/ManuGH/mediad/internal/health"
	xglog "github.com/ManuGH/mediad/internal/log"
	"github.com/ManuGH/mediad/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		switch args[0] {
		case "config":
			return runConfigCLI(args[1:], stdout, stderr)
		case "resolve":
			return runResolveCLI(args[1:], stdout, stderr)
		case "probe":
			return runProbeCLI(args[1:], stdout, stderr)
		case "open":
			return runOpenCLI(args[1:], stdout, stderr)
		case "healthcheck":
			return runHealthcheckCLI(args[1:], stdout, stderr)
		case "serve":
			args = args[1:]
		}
	}
	return runServe(args, stdout, stderr)
}

func runServe(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("mediad serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	showVersion := fs.Bool("version", false, "print version and exit")
	configPath := fs.String("config", "", "path to config file (YAML)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		fmt.Fprintln(stdout, version.String())
		return 0
	}

	// Safe defaults until the configuration is loaded.
	xglog.Configure(xglog.Config{
		Level:   "info",
		Output:  stderr,
		Service: "mediad",
		Version: version.Version,
	})
	logger := xglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	effectiveConfigPath := strings.TrimSpace(*configPath)
	if effectiveConfigPath == "" {
		effectiveConfigPath = resolveDefaultConfigPath()
	}

	cfg, err := config.NewLoader(effectiveConfigPath, version.Version).Load()
	if err != nil {
		logger.Error().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", effectiveConfigPath).
			Msg("failed to load configuration")
		return 1
	}

	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Output:  stderr,
		Service: "mediad",
		Version: cfg.Version,
		File:    cfg.LogFile,
	})
	defer func() { _ = xglog.Close() }()
	logger = xglog.WithComponent("daemon")

	source := "env+defaults"
	if effectiveConfigPath != "" {
		source = "file"
	}
	logger.Info().
		Str("event", "config.loaded").
		Str("source", source).
		Str("path", effectiveConfigPath).
		Msg("configuration loaded")

	if err := health.PerformStartupChecks(cfg); err != nil {
		logger.Error().
			Err(err).
			Str("event", "startup.check_failed").
			Msg("Startup checks failed. Please verify configuration and permissions.")
		return 1
	}

	app, err := daemon.Bootstrap(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Str("event", "bootstrap.failed").Msg("failed to initialize daemon")
		return 1
	}
	if err := app.Run(ctx); err != nil {
		return 1
	}
	return 0
}

// resolveDefaultConfigPath returns <data dir>/config.yaml when it exists.
func resolveDefaultConfigPath() string {
	dataDir := strings.TrimSpace(os.Getenv(config.EnvDataDir))
	if dataDir == "" {
		dataDir = config.Defaults().DataDir
	}
	autoPath := filepath.Join(dataDir, "config.yaml")
	if _, err := os.Stat(autoPath); err == nil {
		return autoPath
	}
	return ""
}

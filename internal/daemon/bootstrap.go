// SPDX-License-Identifier: MIT

// Package daemon wires the mediad components together and manages the
// server lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/mediad/internal/api"
	"github.com/ManuGH/mediad/internal/cast"
	"github.com/ManuGH/mediad/internal/config"
	"github.com/ManuGH/mediad/internal/delivery"
	"github.com/ManuGH/mediad/internal/health"
	"github.com/ManuGH/mediad/internal/library"
	"github.com/ManuGH/mediad/internal/log"
	"github.com/ManuGH/mediad/internal/media/probe"
	"github.com/ManuGH/mediad/internal/media/reference"
	"github.com/ManuGH/mediad/internal/telemetry"
	"github.com/ManuGH/mediad/internal/transcode"
)

const serviceName = "mediad"

// Bootstrap builds every component from cfg and returns an App ready to
// run. Components created before a failure are released again.
func Bootstrap(ctx context.Context, cfg config.AppConfig) (app *App, err error) {
	logger := log.WithComponent("daemon")

	var cleanup []namedHook
	defer func() {
		if err == nil {
			return
		}
		for i := len(cleanup) - 1; i >= 0; i-- {
			if cerr := cleanup[i].hook(context.WithoutCancel(ctx)); cerr != nil {
				logger.Warn().Err(cerr).Str("hook", cleanup[i].name).Msg("cleanup after failed bootstrap")
			}
		}
	}()

	tp, terr := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: cfg.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	tracingService := ""
	if terr != nil {
		logger.Warn().Err(terr).Msg("Telemetry initialization failed, continuing without tracing")
	} else {
		if cfg.Telemetry.Enabled {
			tracingService = serviceName
		}
		cleanup = append(cleanup, namedHook{name: "telemetry", hook: tp.Shutdown})
	}

	prober := probe.New(cfg.FFmpeg.FFprobeBin, cfg.FFmpeg.ProbeTimeout)
	transcoder := transcode.New(transcode.Config{
		FFmpegBin:    cfg.FFmpeg.Bin,
		VideoBitrate: cfg.Transcode.VideoBitrate,
		AudioBitrate: cfg.Transcode.AudioBitrate,
		Preset:       cfg.Transcode.Preset,
		MaxSessions:  cfg.Transcode.MaxSessions,
		KillGrace:    cfg.FFmpeg.KillGrace,
	}, transcode.WithProber(prober))
	platform := reference.HostPlatform()
	dispatcher := delivery.NewDispatcher(prober, transcoder, cfg.Delivery,
		delivery.WithPlatform(platform),
		delivery.WithErrorWriter(api.RespondError),
	)

	store, err := library.NewStore(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open library store: %w", err)
	}
	cleanup = append(cleanup, namedHook{name: "library_store", hook: func(context.Context) error { return store.Close() }})

	registry, err := library.NewRegistry(store, cfg.Library.Extensions)
	if err != nil {
		return nil, fmt.Errorf("start library watcher: %w", err)
	}
	cleanup = append(cleanup, namedHook{name: "library_registry", hook: func(context.Context) error { return registry.Close() }})
	restoreLibrary(ctx, logger, registry, cfg.Library.Watch)

	castMgr := cast.NewManager(cast.Config{
		AdvertiseHost: cfg.Cast.AdvertiseHost,
		MaxConns:      cfg.Cast.MaxConns,
	})
	cleanup = append(cleanup, namedHook{name: "cast", hook: castMgr.Close})

	hm := health.NewManager(cfg.Version)
	hm.RegisterChecker(health.NewBinaryChecker("ffmpeg", cfg.FFmpeg.Bin, health.StatusUnhealthy))
	hm.RegisterChecker(health.NewBinaryChecker("ffprobe", cfg.FFmpeg.FFprobeBin, health.StatusDegraded))
	hm.RegisterChecker(health.NewPingChecker("library_store", store.Ping))

	requestsPerMinute := 0
	if cfg.RateLimit.Enabled {
		requestsPerMinute = cfg.RateLimit.RequestsPerMinute
	}
	server := api.New(api.Config{
		TracingService:    tracingService,
		RequestsPerMinute: requestsPerMinute,
		ServeMetrics:      cfg.MetricsAddr == "",
		Platform:          platform,
	}, api.Deps{
		Player:  dispatcher,
		Prober:  prober,
		Cast:    castMgr,
		Library: registry,
		Health:  hm,
	})

	mgr, err := NewManager(ServerConfigFrom(cfg), Deps{
		Logger:         logger,
		APIHandler:     server.Handler(),
		MetricsHandler: promhttp.Handler(),
		MetricsAddr:    cfg.MetricsAddr,
	})
	if err != nil {
		return nil, err
	}
	for _, h := range cleanup {
		mgr.RegisterShutdownHook(h.name, h.hook)
	}

	return NewApp(logger, mgr), nil
}

// restoreLibrary re-watches persisted directories and then the configured
// ones. Failures only cost the affected directory.
func restoreLibrary(ctx context.Context, logger zerolog.Logger, registry *library.Registry, dirs []string) {
	if err := registry.Restore(ctx); err != nil {
		logger.Warn().Err(err).Str(log.FieldEvent, "library.restore_failed").Msg("could not restore watched directories")
	}
	for _, dir := range dirs {
		if err := registry.Add(ctx, dir); err != nil {
			ev := logger.Warn()
			if errors.Is(err, library.ErrNotDirectory) {
				ev = logger.Error()
			}
			ev.Err(err).Str(log.FieldEvent, "library.watch_failed").Str(log.FieldDir, dir).Msg("could not watch configured directory")
		}
	}
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"regexp"

	"github.com/ManuGH/mediad/internal/validate"
)

var x264Presets = []string{
	"ultrafast", "superfast", "veryfast", "faster", "fast",
	"medium", "slow", "slower", "veryslow", "placebo",
}

var bitratePattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?[kKmM]?$`)

// Validate checks an effective configuration. DataDir is created when it
// does not exist yet.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.ListenAddr("listenAddr", cfg.ListenAddr, false)
	v.ListenAddr("metricsAddr", cfg.MetricsAddr, true)
	v.LogLevel("logLevel", cfg.LogLevel)
	v.Directory("dataDir", cfg.DataDir, false)

	v.NotEmpty("ffmpeg.bin", cfg.FFmpeg.Bin)
	if cfg.FFmpeg.ProbeTimeout <= 0 {
		v.AddError("ffmpeg.probeTimeout", "must be positive", cfg.FFmpeg.ProbeTimeout.String())
	}
	if cfg.FFmpeg.KillGrace <= 0 {
		v.AddError("ffmpeg.killGrace", "must be positive", cfg.FFmpeg.KillGrace.String())
	}

	bitrate(v, "transcode.videoBitrate", cfg.Transcode.VideoBitrate)
	bitrate(v, "transcode.audioBitrate", cfg.Transcode.AudioBitrate)
	v.OneOf("transcode.preset", cfg.Transcode.Preset, x264Presets)
	v.NonNegative("transcode.maxSessions", cfg.Transcode.MaxSessions)

	v.Extensions("delivery.nativeExtensions", cfg.Delivery.NativeExtensions)
	v.Extensions("delivery.deepCheckExtensions", cfg.Delivery.DeepCheckExtensions)
	v.Extensions("library.extensions", cfg.Library.Extensions)
	for i, dir := range cfg.Library.Watch {
		v.NotEmpty(fmt.Sprintf("library.watch[%d]", i), dir)
	}

	v.Range("cast.maxConns", cfg.Cast.MaxConns, 1, 1024)

	if cfg.RateLimit.Enabled {
		v.Range("rateLimit.requestsPerMinute", cfg.RateLimit.RequestsPerMinute, 1, 1_000_000)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
	}
	v.FloatRange("telemetry.samplingRate", cfg.Telemetry.SamplingRate, 0, 1)

	return v.Err()
}

func bitrate(v *validate.Validator, field, value string) {
	if !bitratePattern.MatchString(value) {
		v.AddError(field, "must be a number with an optional k or M suffix", value)
	}
}

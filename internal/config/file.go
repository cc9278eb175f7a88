// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"github.com/ManuGH/mediad/internal/decision"
)

// FileConfig is the YAML representation. Pointer fields distinguish an
// explicit zero from an omitted key.
type FileConfig struct {
	ListenAddr  string `yaml:"listenAddr,omitempty"`
	MetricsAddr string `yaml:"metricsAddr,omitempty"`
	LogLevel    string `yaml:"logLevel,omitempty"`
	LogFile     string `yaml:"logFile,omitempty"`
	DataDir     string `yaml:"dataDir,omitempty"`

	FFmpeg    FFmpegFileConfig    `yaml:"ffmpeg,omitempty"`
	Transcode TranscodeFileConfig `yaml:"transcode,omitempty"`
	Delivery  decision.Policy     `yaml:"delivery,omitempty"`
	Library   LibraryFileConfig   `yaml:"library,omitempty"`
	Cast      CastFileConfig      `yaml:"cast,omitempty"`
	RateLimit RateLimitFileConfig `yaml:"rateLimit,omitempty"`
	Telemetry TelemetryFileConfig `yaml:"telemetry,omitempty"`
}

type FFmpegFileConfig struct {
	Bin          string `yaml:"bin,omitempty"`
	FFprobeBin   string `yaml:"ffprobeBin,omitempty"`
	ProbeTimeout string `yaml:"probeTimeout,omitempty"`
	KillGrace    string `yaml:"killGrace,omitempty"`
}

type TranscodeFileConfig struct {
	VideoBitrate string `yaml:"videoBitrate,omitempty"`
	AudioBitrate string `yaml:"audioBitrate,omitempty"`
	Preset       string `yaml:"preset,omitempty"`
	MaxSessions  *int   `yaml:"maxSessions,omitempty"`
}

type LibraryFileConfig struct {
	Watch      []string `yaml:"watch,omitempty"`
	Extensions []string `yaml:"extensions,omitempty"`
}

type CastFileConfig struct {
	AdvertiseHost string `yaml:"advertiseHost,omitempty"`
	MaxConns      *int   `yaml:"maxConns,omitempty"`
}

type RateLimitFileConfig struct {
	Enabled           *bool `yaml:"enabled,omitempty"`
	RequestsPerMinute *int  `yaml:"requestsPerMinute,omitempty"`
}

type TelemetryFileConfig struct {
	Enabled      *bool    `yaml:"enabled,omitempty"`
	Exporter     string   `yaml:"exporter,omitempty"`
	Endpoint     string   `yaml:"endpoint,omitempty"`
	SamplingRate *float64 `yaml:"samplingRate,omitempty"`
}

// ToFileConfig renders an effective configuration in file form.
func ToFileConfig(cfg AppConfig) FileConfig {
	maxSessions := cfg.Transcode.MaxSessions
	maxConns := cfg.Cast.MaxConns
	rlEnabled := cfg.RateLimit.Enabled
	rpm := cfg.RateLimit.RequestsPerMinute
	telEnabled := cfg.Telemetry.Enabled
	sampling := cfg.Telemetry.SamplingRate

	return FileConfig{
		ListenAddr:  cfg.ListenAddr,
		MetricsAddr: cfg.MetricsAddr,
		LogLevel:    cfg.LogLevel,
		LogFile:     cfg.LogFile,
		DataDir:     cfg.DataDir,
		FFmpeg: FFmpegFileConfig{
			Bin:          cfg.FFmpeg.Bin,
			FFprobeBin:   cfg.FFmpeg.FFprobeBin,
			ProbeTimeout: cfg.FFmpeg.ProbeTimeout.String(),
			KillGrace:    cfg.FFmpeg.KillGrace.String(),
		},
		Transcode: TranscodeFileConfig{
			VideoBitrate: cfg.Transcode.VideoBitrate,
			AudioBitrate: cfg.Transcode.AudioBitrate,
			Preset:       cfg.Transcode.Preset,
			MaxSessions:  &maxSessions,
		},
		Delivery: cfg.Delivery,
		Library: LibraryFileConfig{
			Watch:      cfg.Library.Watch,
			Extensions: cfg.Library.Extensions,
		},
		Cast: CastFileConfig{
			AdvertiseHost: cfg.Cast.AdvertiseHost,
			MaxConns:      &maxConns,
		},
		RateLimit: RateLimitFileConfig{
			Enabled:           &rlEnabled,
			RequestsPerMinute: &rpm,
		},
		Telemetry: TelemetryFileConfig{
			Enabled:      &telEnabled,
			Exporter:     cfg.Telemetry.Exporter,
			Endpoint:     cfg.Telemetry.Endpoint,
			SamplingRate: &sampling,
		},
	}
}

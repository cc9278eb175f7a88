// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/ManuGH/mediad/internal/decision"
	"github.com/ManuGH/mediad/internal/media/probe"
	"github.com/ManuGH/mediad/internal/media/reference"
	"github.com/ManuGH/mediad/internal/transcode"
)

// AppConfig is the effective runtime configuration.
type AppConfig struct {
	Version     string
	ListenAddr  string
	MetricsAddr string
	LogLevel    string
	LogFile     string
	DataDir     string

	FFmpeg    FFmpegConfig
	Transcode TranscodeConfig
	Delivery  decision.Policy
	Library   LibraryConfig
	Cast      CastConfig
	RateLimit RateLimitConfig
	Telemetry TelemetryConfig
}

// FFmpegConfig locates the encoder and prober binaries.
type FFmpegConfig struct {
	Bin          string
	FFprobeBin   string
	ProbeTimeout time.Duration
	KillGrace    time.Duration
}

// TranscodeConfig holds encoder output settings.
type TranscodeConfig struct {
	VideoBitrate string
	AudioBitrate string
	Preset       string
	MaxSessions  int
}

// LibraryConfig lists directories watched at startup.
type LibraryConfig struct {
	Watch      []string
	Extensions []string
}

// CastConfig configures the single-file cast server.
type CastConfig struct {
	// AdvertiseHost replaces the detected LAN address in cast URLs.
	AdvertiseHost string
	MaxConns      int
}

// RateLimitConfig configures the per-IP API limiter.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool
	Exporter     string
	Endpoint     string
	SamplingRate float64
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		ListenAddr: "127.0.0.1:8089",
		LogLevel:   "info",
		DataDir:    defaultDataDir(),
		FFmpeg: FFmpegConfig{
			Bin:          "ffmpeg",
			ProbeTimeout: probe.DefaultTimeout,
			KillGrace:    transcode.DefaultKillGrace,
		},
		Transcode: TranscodeConfig{
			VideoBitrate: transcode.DefaultVideoBitrate,
			AudioBitrate: transcode.DefaultAudioBitrate,
			Preset:       transcode.DefaultPreset,
		},
		Delivery: decision.DefaultPolicy(),
		Library: LibraryConfig{
			Extensions: reference.MediaExtensions(),
		},
		Cast: CastConfig{
			MaxConns: 8,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 600,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}

func defaultDataDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "mediad")
	}
	return filepath.Join(os.TempDir(), "mediad")
}

// DatabasePath is the library index location inside DataDir.
func (c AppConfig) DatabasePath() string {
	return filepath.Join(c.DataDir, "library.db")
}

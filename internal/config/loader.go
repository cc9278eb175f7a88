// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names.
const (
	EnvListenAddr          = "MEDIAD_LISTEN_ADDR"
	EnvMetricsAddr         = "MEDIAD_METRICS_ADDR"
	EnvLogLevel            = "MEDIAD_LOG_LEVEL"
	EnvLogFile             = "MEDIAD_LOG_FILE"
	EnvDataDir             = "MEDIAD_DATA_DIR"
	EnvFFmpegBin           = "MEDIAD_FFMPEG_BIN"
	EnvFFprobeBin          = "MEDIAD_FFPROBE_BIN"
	EnvProbeTimeout        = "MEDIAD_PROBE_TIMEOUT"
	EnvKillGrace           = "MEDIAD_KILL_GRACE"
	EnvVideoBitrate        = "MEDIAD_VIDEO_BITRATE"
	EnvAudioBitrate        = "MEDIAD_AUDIO_BITRATE"
	EnvPreset              = "MEDIAD_PRESET"
	EnvMaxSessions         = "MEDIAD_MAX_SESSIONS"
	EnvNativeExtensions    = "MEDIAD_NATIVE_EXTENSIONS"
	EnvDeepCheckExtensions = "MEDIAD_DEEP_CHECK_EXTENSIONS"
	EnvSafeVideoCodecs     = "MEDIAD_SAFE_VIDEO_CODECS"
	EnvUnsafeAudioCodecs   = "MEDIAD_UNSAFE_AUDIO_CODECS"
	EnvLibraryWatch        = "MEDIAD_LIBRARY_WATCH"
	EnvLibraryExtensions   = "MEDIAD_LIBRARY_EXTENSIONS"
	EnvCastAdvertiseHost   = "MEDIAD_CAST_ADVERTISE_HOST"
	EnvCastMaxConns        = "MEDIAD_CAST_MAX_CONNS"
	EnvRateLimitEnabled    = "MEDIAD_RATE_LIMIT_ENABLED"
	EnvRateLimitRPM        = "MEDIAD_RATE_LIMIT_RPM"
	EnvTelemetryEnabled    = "MEDIAD_TELEMETRY_ENABLED"
	EnvTelemetryExporter   = "MEDIAD_TELEMETRY_EXPORTER"
	EnvTelemetryEndpoint   = "MEDIAD_TELEMETRY_ENDPOINT"
	EnvTelemetrySampling   = "MEDIAD_TELEMETRY_SAMPLING_RATE"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

func (l *Loader) envList(key string, defaultVal []string) []string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseList(key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults, then
// validates the result.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := mergeFileConfig(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge file config: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)

	cfg.FFmpeg.FFprobeBin = ResolveFFprobeBin(cfg.FFmpeg.FFprobeBin, cfg.FFmpeg.Bin)
	if cfg.FFmpeg.FFprobeBin == "" {
		cfg.FFmpeg.FFprobeBin = "ffprobe"
	}

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile loads configuration from a YAML file with STRICT parsing.
// Unknown fields will cause a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}

	return &fileCfg, nil
}

func mergeFileConfig(cfg *AppConfig, f *FileConfig) error {
	setString(&cfg.ListenAddr, f.ListenAddr)
	setString(&cfg.MetricsAddr, f.MetricsAddr)
	setString(&cfg.LogLevel, f.LogLevel)
	setString(&cfg.LogFile, f.LogFile)
	setString(&cfg.DataDir, f.DataDir)

	setString(&cfg.FFmpeg.Bin, f.FFmpeg.Bin)
	setString(&cfg.FFmpeg.FFprobeBin, f.FFmpeg.FFprobeBin)
	if err := setDuration(&cfg.FFmpeg.ProbeTimeout, f.FFmpeg.ProbeTimeout, "ffmpeg.probeTimeout"); err != nil {
		return err
	}
	if err := setDuration(&cfg.FFmpeg.KillGrace, f.FFmpeg.KillGrace, "ffmpeg.killGrace"); err != nil {
		return err
	}

	setString(&cfg.Transcode.VideoBitrate, f.Transcode.VideoBitrate)
	setString(&cfg.Transcode.AudioBitrate, f.Transcode.AudioBitrate)
	setString(&cfg.Transcode.Preset, f.Transcode.Preset)
	setPtr(&cfg.Transcode.MaxSessions, f.Transcode.MaxSessions)

	setList(&cfg.Delivery.NativeExtensions, f.Delivery.NativeExtensions)
	setList(&cfg.Delivery.DeepCheckExtensions, f.Delivery.DeepCheckExtensions)
	setList(&cfg.Delivery.SafeVideoCodecs, f.Delivery.SafeVideoCodecs)
	setList(&cfg.Delivery.UnsafeAudioCodecs, f.Delivery.UnsafeAudioCodecs)

	setList(&cfg.Library.Watch, f.Library.Watch)
	setList(&cfg.Library.Extensions, f.Library.Extensions)

	setString(&cfg.Cast.AdvertiseHost, f.Cast.AdvertiseHost)
	setPtr(&cfg.Cast.MaxConns, f.Cast.MaxConns)

	setPtr(&cfg.RateLimit.Enabled, f.RateLimit.Enabled)
	setPtr(&cfg.RateLimit.RequestsPerMinute, f.RateLimit.RequestsPerMinute)

	setPtr(&cfg.Telemetry.Enabled, f.Telemetry.Enabled)
	setString(&cfg.Telemetry.Exporter, f.Telemetry.Exporter)
	setString(&cfg.Telemetry.Endpoint, f.Telemetry.Endpoint)
	setPtr(&cfg.Telemetry.SamplingRate, f.Telemetry.SamplingRate)
	return nil
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.ListenAddr = l.envString(EnvListenAddr, cfg.ListenAddr)
	cfg.MetricsAddr = l.envString(EnvMetricsAddr, cfg.MetricsAddr)
	cfg.LogLevel = l.envString(EnvLogLevel, cfg.LogLevel)
	cfg.LogFile = l.envString(EnvLogFile, cfg.LogFile)
	cfg.DataDir = l.envString(EnvDataDir, cfg.DataDir)

	cfg.FFmpeg.Bin = l.envString(EnvFFmpegBin, cfg.FFmpeg.Bin)
	cfg.FFmpeg.FFprobeBin = l.envString(EnvFFprobeBin, cfg.FFmpeg.FFprobeBin)
	cfg.FFmpeg.ProbeTimeout = l.envDuration(EnvProbeTimeout, cfg.FFmpeg.ProbeTimeout)
	cfg.FFmpeg.KillGrace = l.envDuration(EnvKillGrace, cfg.FFmpeg.KillGrace)

	cfg.Transcode.VideoBitrate = l.envString(EnvVideoBitrate, cfg.Transcode.VideoBitrate)
	cfg.Transcode.AudioBitrate = l.envString(EnvAudioBitrate, cfg.Transcode.AudioBitrate)
	cfg.Transcode.Preset = l.envString(EnvPreset, cfg.Transcode.Preset)
	cfg.Transcode.MaxSessions = l.envInt(EnvMaxSessions, cfg.Transcode.MaxSessions)

	cfg.Delivery.NativeExtensions = l.envList(EnvNativeExtensions, cfg.Delivery.NativeExtensions)
	cfg.Delivery.DeepCheckExtensions = l.envList(EnvDeepCheckExtensions, cfg.Delivery.DeepCheckExtensions)
	cfg.Delivery.SafeVideoCodecs = l.envList(EnvSafeVideoCodecs, cfg.Delivery.SafeVideoCodecs)
	cfg.Delivery.UnsafeAudioCodecs = l.envList(EnvUnsafeAudioCodecs, cfg.Delivery.UnsafeAudioCodecs)

	cfg.Library.Watch = l.envList(EnvLibraryWatch, cfg.Library.Watch)
	cfg.Library.Extensions = l.envList(EnvLibraryExtensions, cfg.Library.Extensions)

	cfg.Cast.AdvertiseHost = l.envString(EnvCastAdvertiseHost, cfg.Cast.AdvertiseHost)
	cfg.Cast.MaxConns = l.envInt(EnvCastMaxConns, cfg.Cast.MaxConns)

	cfg.RateLimit.Enabled = l.envBool(EnvRateLimitEnabled, cfg.RateLimit.Enabled)
	cfg.RateLimit.RequestsPerMinute = l.envInt(EnvRateLimitRPM, cfg.RateLimit.RequestsPerMinute)

	cfg.Telemetry.Enabled = l.envBool(EnvTelemetryEnabled, cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString(EnvTelemetryExporter, cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString(EnvTelemetryEndpoint, cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat(EnvTelemetrySampling, cfg.Telemetry.SamplingRate)
}

func setString(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setList(dst *[]string, v []string) {
	if len(v) > 0 {
		*dst = append([]string(nil), v...)
	}
}

func setPtr[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v, field string) error {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolveFFprobeBin returns the ffprobe binary to use.
//
// Resolution order:
// 1) Explicit ffprobeBin (MEDIAD_FFPROBE_BIN or ffmpeg.ffprobeBin)
// 2) The sibling of a concrete ffmpeg path (.../ffmpeg -> .../ffprobe), if it exists
// 3) Empty string; the loader then falls back to "ffprobe" on PATH
func ResolveFFprobeBin(ffprobeBin, ffmpegBin string) string {
	return resolveFFprobeBinWithStat(ffprobeBin, ffmpegBin, os.Stat)
}

func resolveFFprobeBinWithStat(ffprobeBin, ffmpegBin string, stat func(string) (os.FileInfo, error)) string {
	if ffprobeBin = strings.TrimSpace(ffprobeBin); ffprobeBin != "" {
		return ffprobeBin
	}

	ffmpegBin = strings.TrimSpace(ffmpegBin)
	if !strings.ContainsAny(ffmpegBin, `/\`) {
		return ""
	}

	dir, base := filepath.Split(ffmpegBin)
	probeName := ""
	switch strings.ToLower(base) {
	case "ffmpeg":
		probeName = "ffprobe"
	case "ffmpeg.exe":
		probeName = "ffprobe.exe"
	default:
		return ""
	}

	candidate := filepath.Join(dir, probeName)
	if fi, err := stat(candidate); err == nil && fi != nil && !fi.IsDir() {
		return candidate
	}
	return ""
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package reference

import (
	"slices"
	"strings"
)

// VideoExtensions lists the movie containers the player opens.
var VideoExtensions = []string{
	"mp4", "webm", "ogg", "mkv", "avi", "mov", "flv", "wmv", "m4v",
	"mpg", "mpeg", "m2ts", "mts", "ts", "3gp",
}

// AudioExtensions lists the audio containers the player opens.
var AudioExtensions = []string{
	"mp3", "wav", "aac", "flac", "m4a", "opus", "wma",
}

// MediaExtensions returns video and audio extensions in one fresh slice.
func MediaExtensions() []string {
	return slices.Concat(VideoExtensions, AudioExtensions)
}

// IsMediaExtension reports whether ext (with or without a dot, any case) is
// a known media container.
func IsMediaExtension(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	return slices.Contains(VideoExtensions, ext) || slices.Contains(AudioExtensions, ext)
}

// IsMediaFile reports whether name ends in a known media extension.
func IsMediaFile(name string) bool {
	return IsMediaExtension(extensionOf(name))
}

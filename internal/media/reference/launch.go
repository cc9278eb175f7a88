// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package reference

import (
	"path/filepath"
	"strings"
)

// AppScheme is the player's own URL scheme.
const AppScheme = "lorapok"

// LaunchReference converts a launch argument into the reference the player
// shell should load. Arguments already in the app scheme pass through; media
// file paths become "lorapok://<absolute path>". Anything else (flags, shell
// noise) is rejected.
func LaunchReference(arg string) (string, bool) {
	arg = strings.TrimSpace(arg)
	if arg == "" || strings.HasPrefix(arg, "-") {
		return "", false
	}
	if strings.HasPrefix(strings.ToLower(arg), AppScheme+"://") {
		return arg, true
	}
	if !IsMediaFile(arg) {
		return "", false
	}
	abs, err := filepath.Abs(arg)
	if err != nil {
		return "", false
	}
	return AppScheme + "://" + filepath.ToSlash(abs), true
}

// FirstLaunchReference scans argv (without the program name) and returns the
// launch reference to load. An app-scheme argument anywhere in argv wins over
// media file paths; otherwise the first media file is used.
func FirstLaunchReference(args []string) (string, bool) {
	for _, a := range args {
		a = strings.TrimSpace(a)
		if strings.HasPrefix(strings.ToLower(a), AppScheme+"://") {
			return a, true
		}
	}
	for _, a := range args {
		if ref, ok := LaunchReference(a); ok {
			return ref, true
		}
	}
	return "", false
}

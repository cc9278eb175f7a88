// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package library keeps the set of watched media directories and an index of
// the media files discovered in them.
package library

import (
	"errors"
	"time"
)

var (
	// ErrNotWatched is returned when removing a directory that is not watched.
	ErrNotWatched = errors.New("directory not watched")
	// ErrNotDirectory is returned when adding a path that is not a directory.
	ErrNotDirectory = errors.New("not a directory")
)

// Watch is a watched root directory.
type Watch struct {
	Path      string    `json:"path"`
	AddedAt   time.Time `json:"addedAt"`
	ItemCount int       `json:"itemCount"`
}

// Item is a discovered media file.
type Item struct {
	Root      string    `json:"root"`
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Extension string    `json:"extension"`
	SizeBytes int64     `json:"sizeBytes"`
	ModTime   time.Time `json:"modTime"`
	IndexedAt time.Time `json:"indexedAt"`
}

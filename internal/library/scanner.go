// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package library

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// scanResult is the outcome of walking a watched root.
type scanResult struct {
	items  []Item
	dirs   []string
	errors int
}

// scanRoot walks root and collects media files with an allowed extension.
// Symlinks resolving outside root are skipped.
func scanRoot(ctx context.Context, root string, allowed map[string]struct{}) (scanResult, error) {
	var res scanResult

	rootResolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return res, fmt.Errorf("resolve root path: %w", err)
	}
	rootResolved = filepath.Clean(rootResolved)

	now := time.Now().UTC()
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			res.errors++
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			if path == root {
				return walkErr
			}
			return nil
		}
		if d.IsDir() {
			res.dirs = append(res.dirs, path)
			return nil
		}

		item, ok, err := itemFor(root, rootResolved, path, allowed, now)
		if err != nil {
			res.errors++
			return nil
		}
		if ok {
			res.items = append(res.items, item)
		}
		return nil
	})
	return res, err
}

// itemFor stats path and builds its item. ok is false for files that are
// not indexed.
func itemFor(root, rootResolved, path string, allowed map[string]struct{}, now time.Time) (Item, bool, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if _, ok := allowed[ext]; !ok {
		return Item{}, false, nil
	}

	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return Item{}, false, err
	}
	rel, err := filepath.Rel(rootResolved, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return Item{}, false, nil
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return Item{}, false, err
	}
	if !info.Mode().IsRegular() {
		return Item{}, false, nil
	}

	return Item{
		Root:      root,
		Path:      path,
		Name:      filepath.Base(path),
		Extension: ext,
		SizeBytes: info.Size(),
		ModTime:   info.ModTime().UTC(),
		IndexedAt: now,
	}, true, nil
}

func extensionSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(e)), ".")
		if e != "" {
			set[e] = struct{}{}
		}
	}
	return set
}

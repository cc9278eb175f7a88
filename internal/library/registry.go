// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	xglog "github.com/ManuGH/mediad/internal/log"
	"github.com/ManuGH/mediad/internal/metrics"
)

const eventTimeout = 10 * time.Second

// Registry is the process-wide set of watched directories. Each root is
// watched recursively; discovered media files are kept in the Store.
type Registry struct {
	store   *Store
	allowed map[string]struct{}
	logger  zerolog.Logger
	errLog  rate.Sometimes

	watcher *fsnotify.Watcher
	done    chan struct{}

	mu    sync.Mutex
	roots map[string]map[string]struct{} // root -> watched subdirectories
}

// NewRegistry starts the filesystem event loop. extensions lists the file
// extensions to index (without dot).
func NewRegistry(store *Store, extensions []string) (*Registry, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify.NewWatcher: %w", err)
	}
	r := &Registry{
		store:   store,
		allowed: extensionSet(extensions),
		logger:  xglog.WithComponent("library"),
		errLog:  rate.Sometimes{Interval: 10 * time.Second},
		watcher: w,
		done:    make(chan struct{}),
		roots:   make(map[string]map[string]struct{}),
	}
	go r.run()
	return r, nil
}

// CanonicalPath returns the registry key for dir.
func CanonicalPath(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

// Add watches dir. Adding a directory that is already watched, or that lies
// inside a watched root, succeeds without doing anything. Watched roots
// inside dir are folded into it.
func (r *Registry) Add(ctx context.Context, dir string) error {
	root, err := CanonicalPath(dir)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if outer, ok := r.coveringRoot(root); ok {
		if outer != root {
			r.logger.Debug().Str(xglog.FieldDir, root).Str("root", outer).Msg("directory already covered by a watched root")
		}
		return nil
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}

	res, err := scanRoot(ctx, root, r.allowed)
	if err != nil {
		return fmt.Errorf("scan %s: %w", root, err)
	}

	dirs := make(map[string]struct{}, len(res.dirs))
	for _, d := range res.dirs {
		if err := r.watcher.Add(d); err != nil {
			r.unwatch(dirs)
			return fmt.Errorf("watch %s: %w", d, err)
		}
		dirs[d] = struct{}{}
	}

	if err := r.store.ReplaceItems(ctx, root, res.items); err != nil {
		r.unwatch(dirs)
		return fmt.Errorf("index %s: %w", root, err)
	}
	if err := r.store.AddWatch(ctx, root, time.Now()); err != nil {
		r.unwatch(dirs)
		return fmt.Errorf("persist watch %s: %w", root, err)
	}

	// Items of nested roots were re-assigned to root by the scan above.
	for inner := range r.roots {
		if within(inner, root) {
			delete(r.roots, inner)
			if err := r.store.RemoveWatch(ctx, inner); err != nil {
				r.logger.Warn().Err(err).Str(xglog.FieldDir, inner).Msg("failed to forget nested watch")
			}
		}
	}

	r.roots[root] = dirs
	metrics.LibraryWatches.Set(float64(len(r.roots)))
	r.logger.Info().
		Str(xglog.FieldEvent, "library.watch_added").
		Str(xglog.FieldDir, root).
		Int("items", len(res.items)).
		Int("dirs", len(dirs)).
		Int("errors", res.errors).
		Msg("watching directory")
	return nil
}

// Remove stops watching dir and drops its items. It returns ErrNotWatched
// when dir is not watched.
func (r *Registry) Remove(ctx context.Context, dir string) error {
	root, err := CanonicalPath(dir)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dirs, ok := r.roots[root]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotWatched, root)
	}
	delete(r.roots, root)
	r.unwatch(dirs)
	metrics.LibraryWatches.Set(float64(len(r.roots)))

	if err := r.store.RemoveWatch(ctx, root); err != nil {
		return fmt.Errorf("forget %s: %w", root, err)
	}
	r.logger.Info().Str(xglog.FieldEvent, "library.watch_removed").Str(xglog.FieldDir, root).Msg("stopped watching directory")
	return nil
}

// List returns the watched roots in lexical order.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.roots))
	for root := range r.roots {
		out = append(out, root)
	}
	sort.Strings(out)
	return out
}

// Watches returns the watched roots with their item counts.
func (r *Registry) Watches(ctx context.Context) ([]Watch, error) {
	return r.store.Watches(ctx)
}

// Items lists the indexed files under root; an empty root lists all.
func (r *Registry) Items(ctx context.Context, root string) ([]Item, error) {
	if root != "" {
		var err error
		if root, err = CanonicalPath(root); err != nil {
			return nil, err
		}
	}
	return r.store.Items(ctx, root)
}

// Restore re-adds the directories persisted by a previous run. Directories
// that no longer exist are dropped from the store.
func (r *Registry) Restore(ctx context.Context) error {
	watches, err := r.store.Watches(ctx)
	if err != nil {
		return fmt.Errorf("load watches: %w", err)
	}
	var errs []error
	for _, w := range watches {
		r.mu.Lock()
		outer, covered := r.coveringRoot(w.Path)
		r.mu.Unlock()
		if covered && outer != w.Path {
			if err := r.store.RemoveWatch(ctx, w.Path); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if err := r.Add(ctx, w.Path); err != nil {
			r.logger.Warn().Err(err).Str(xglog.FieldDir, w.Path).Msg("dropping stale watch")
			if rmErr := r.store.RemoveWatch(ctx, w.Path); rmErr != nil {
				errs = append(errs, rmErr)
			}
		}
	}
	return errors.Join(errs...)
}

// Close stops the event loop and releases all watches.
func (r *Registry) Close() error {
	err := r.watcher.Close()
	<-r.done
	r.mu.Lock()
	r.roots = make(map[string]map[string]struct{})
	r.mu.Unlock()
	metrics.LibraryWatches.Set(0)
	return err
}

// unwatch drops the watches on dirs that no registered root still holds.
func (r *Registry) unwatch(dirs map[string]struct{}) {
	for d := range dirs {
		if !r.held(d) {
			_ = r.watcher.Remove(d)
		}
	}
}

func (r *Registry) held(dir string) bool {
	for _, dirs := range r.roots {
		if _, ok := dirs[dir]; ok {
			return true
		}
	}
	return false
}

func (r *Registry) run() {
	defer close(r.done)
	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			r.handle(event)
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			metrics.RecordLibraryEvent("error")
			r.errLog.Do(func() {
				r.logger.Warn().Err(err).Msg("fsnotify watcher error")
			})
		}
	}
}

func (r *Registry) handle(event fsnotify.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	root, ok := r.rootFor(event.Name)
	if !ok {
		return
	}

	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		if _, watched := r.roots[root][event.Name]; watched {
			r.dropDir(root, event.Name)
		}
		if n, err := r.store.DeletePath(ctx, event.Name); err != nil {
			r.eventError(err, event)
		} else if n > 0 {
			metrics.RecordLibraryEvent("remove")
		}

	case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			r.addSubtree(ctx, root, event.Name)
			return
		}
		r.index(ctx, root, event.Name)
	}
}

// addSubtree watches a directory created inside root and indexes its files.
func (r *Registry) addSubtree(ctx context.Context, root, dir string) {
	res, err := scanRoot(ctx, dir, r.allowed)
	if err != nil {
		r.eventError(err, fsnotify.Event{Name: dir, Op: fsnotify.Create})
		return
	}
	for _, d := range res.dirs {
		if err := r.watcher.Add(d); err != nil {
			r.eventError(err, fsnotify.Event{Name: d, Op: fsnotify.Create})
			continue
		}
		r.roots[root][d] = struct{}{}
	}
	for _, item := range res.items {
		item.Root = root
		if err := r.store.UpsertItem(ctx, item); err != nil {
			r.eventError(err, fsnotify.Event{Name: item.Path, Op: fsnotify.Create})
			continue
		}
		metrics.RecordLibraryEvent("upsert")
	}
}

func (r *Registry) index(ctx context.Context, root, path string) {
	rootResolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		r.eventError(err, fsnotify.Event{Name: path, Op: fsnotify.Write})
		return
	}
	item, ok, err := itemFor(root, filepath.Clean(rootResolved), path, r.allowed, time.Now().UTC())
	if err != nil || !ok {
		return
	}
	if err := r.store.UpsertItem(ctx, item); err != nil {
		r.eventError(err, fsnotify.Event{Name: path, Op: fsnotify.Write})
		return
	}
	metrics.RecordLibraryEvent("upsert")
}

func (r *Registry) dropDir(root, dir string) {
	prefix := dir + string(filepath.Separator)
	for d := range r.roots[root] {
		if d == dir || strings.HasPrefix(d, prefix) {
			_ = r.watcher.Remove(d)
			delete(r.roots[root], d)
		}
	}
}

// rootFor returns the most specific watched root containing path.
func (r *Registry) rootFor(path string) (string, bool) {
	best := ""
	for root := range r.roots {
		if (path == root || within(path, root)) && len(root) > len(best) {
			best = root
		}
	}
	return best, best != ""
}

// coveringRoot returns the watched root equal to or containing dir.
func (r *Registry) coveringRoot(dir string) (string, bool) {
	if _, ok := r.roots[dir]; ok {
		return dir, true
	}
	for root := range r.roots {
		if within(dir, root) {
			return root, true
		}
	}
	return "", false
}

// within reports whether path lies strictly below dir.
func within(path, dir string) bool {
	prefix := dir
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return len(path) > len(prefix) && strings.HasPrefix(path, prefix)
}

func (r *Registry) eventError(err error, event fsnotify.Event) {
	metrics.RecordLibraryEvent("error")
	r.errLog.Do(func() {
		r.logger.Warn().Err(err).Str(xglog.FieldPath, event.Name).Str("op", event.Op.String()).Msg("library event failed")
	})
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package cast runs the single-file HTTP server that network renderers
// stream from. At most one server is live at a time.
package cast

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/net/netutil"

	"github.com/ManuGH/mediad/internal/delivery"
	xglog "github.com/ManuGH/mediad/internal/log"
	"github.com/ManuGH/mediad/internal/metrics"
	platformnet "github.com/ManuGH/mediad/internal/platform/net"
)

const (
	defaultBindAddr = "0.0.0.0:0"
	defaultMaxConns = 8
	shutdownTimeout = 5 * time.Second
)

var (
	// ErrNotFound means the file to cast does not exist or is not a regular file.
	ErrNotFound = errors.New("cast source not found")
	// ErrNotRunning is returned by Stop when no server is active.
	ErrNotRunning = errors.New("no cast server running")
)

// Config configures the cast server.
type Config struct {
	// BindAddr defaults to 0.0.0.0:0 (all interfaces, ephemeral port).
	BindAddr string
	// AdvertiseHost overrides the detected LAN address in the public URL.
	AdvertiseHost string
	// MaxConns caps concurrent connections to the listener.
	MaxConns int
}

// Session describes the active cast server.
type Session struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	URL       string    `json:"url"`
	Port      int       `json:"port"`
	StartedAt time.Time `json:"startedAt"`
}

type server struct {
	session Session
	srv     *http.Server
	done    chan struct{}
}

// Manager owns the single cast slot.
type Manager struct {
	cfg    Config
	logger zerolog.Logger

	mu     sync.Mutex
	active *server
}

// NewManager creates a manager with no active server.
func NewManager(cfg Config) *Manager {
	if cfg.BindAddr == "" {
		cfg.BindAddr = defaultBindAddr
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = defaultMaxConns
	}
	return &Manager{
		cfg:    cfg,
		logger: xglog.WithComponent("cast"),
	}
}

// Start serves path on a fresh ephemeral port, replacing any active server.
// The previous server is fully shut down before the new listener is bound.
func (m *Manager) Start(ctx context.Context, path string) (Session, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if !info.Mode().IsRegular() {
		return Session{}, fmt.Errorf("%w: %s is not a regular file", ErrNotFound, abs)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		if err := m.stopLocked(ctx); err != nil {
			return Session{}, fmt.Errorf("stop previous cast server: %w", err)
		}
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", m.cfg.BindAddr)
	if err != nil {
		return Session{}, fmt.Errorf("listen %s: %w", m.cfg.BindAddr, err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	host, err := m.advertiseHost()
	if err != nil {
		_ = ln.Close()
		return Session{}, err
	}

	name := filepath.Base(abs)
	session := Session{
		ID:        uuid.NewString(),
		Path:      abs,
		URL:       "http://" + platformnet.JoinHostPort(host, port) + "/" + url.PathEscape(name),
		Port:      port,
		StartedAt: time.Now().UTC(),
	}
	logger := m.logger.With().Str(xglog.FieldCastID, session.ID).Logger()

	s := &server{
		session: session,
		srv: &http.Server{
			Handler:           fileHandler(abs, name, logger),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		done: make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		if err := s.srv.Serve(netutil.LimitListener(ln, m.cfg.MaxConns)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str(xglog.FieldEvent, "cast.server.failed").Msg("cast server failed")
		}
	}()

	m.active = s
	metrics.CastServerActive.Set(1)
	metrics.CastStartsTotal.Inc()
	logger.Info().
		Str(xglog.FieldEvent, "cast.started").
		Str(xglog.FieldPath, abs).
		Str(xglog.FieldURL, session.URL).
		Msg("cast server started")
	return session, nil
}

// Stop shuts the active server down.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return ErrNotRunning
	}
	return m.stopLocked(ctx)
}

// Close stops the active server if there is one.
func (m *Manager) Close(ctx context.Context) error {
	err := m.Stop(ctx)
	if errors.Is(err, ErrNotRunning) {
		return nil
	}
	return err
}

// Status returns the active session.
func (m *Manager) Status() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return Session{}, false
	}
	return m.active.session, true
}

func (m *Manager) stopLocked(ctx context.Context) error {
	s := m.active
	m.active = nil
	metrics.CastServerActive.Set(0)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	err := s.srv.Shutdown(shutdownCtx)
	if err != nil {
		// Streaming clients can hold connections past the deadline.
		err = errors.Join(err, s.srv.Close())
	}
	<-s.done

	m.logger.Info().
		Str(xglog.FieldEvent, "cast.stopped").
		Str(xglog.FieldCastID, s.session.ID).
		Msg("cast server stopped")
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func (m *Manager) advertiseHost() (string, error) {
	if m.cfg.AdvertiseHost != "" {
		host, err := platformnet.NormalizeHost(m.cfg.AdvertiseHost)
		if err != nil {
			return "", fmt.Errorf("advertise host: %w", err)
		}
		return host, nil
	}
	ip, err := platformnet.LANAddress()
	if err != nil {
		m.logger.Warn().Err(err).Msg("no LAN address, advertising loopback")
		return "127.0.0.1", nil
	}
	return ip.String(), nil
}

func fileHandler(path, name string, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if r.URL.Path != "/"+name {
			http.NotFound(w, r)
			return
		}
		if err := delivery.ServeRange(w, r, path); err != nil {
			logger.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("cast request ended")
		}
	})
}

// Package delivery answers playback requests: it resolves a raw reference,
// applies the delivery policy and then serves bytes directly, redirects to a
// remote source or streams a live transcode.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ManuGH/mediad/internal/decision"
	xglog "github.com/ManuGH/mediad/internal/log"
	"github.com/ManuGH/mediad/internal/media/probe"
	"github.com/ManuGH/mediad/internal/media/reference"
	"github.com/ManuGH/mediad/internal/metrics"
	platformnet "github.com/ManuGH/mediad/internal/platform/net"
	"github.com/ManuGH/mediad/internal/telemetry"
	"github.com/ManuGH/mediad/internal/transcode"
)

// Prober inspects a reference's streams.
type Prober interface {
	Probe(ctx context.Context, ref reference.Reference) (*probe.Result, error)
}

// Transcoder starts encoder sessions.
type Transcoder interface {
	Start(ctx context.Context, input string, spec decision.TranscodeSpec) (*transcode.Session, error)
}

// Resolution is the outcome of resolving a raw reference without serving it.
type Resolution struct {
	Reference reference.Reference `json:"reference"`
	Extension string              `json:"extension"`
	Size      int64               `json:"size,omitempty"`
	Decision  decision.Decision   `json:"decision"`
	Probe     *probe.Result       `json:"probe,omitempty"`
}

// Dispatcher routes a playback request to range serving, a redirect or a
// transcode session.
type Dispatcher struct {
	prober     Prober
	transcoder Transcoder
	policy     decision.Policy
	platform   reference.Platform
	writeError ErrorWriter
}

// ErrorWriter renders an error response. code is a stable machine-readable
// identifier such as "NOT_FOUND".
type ErrorWriter func(w http.ResponseWriter, r *http.Request, status int, code, message string)

func plainError(w http.ResponseWriter, _ *http.Request, status int, _ string, message string) {
	http.Error(w, message, status)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPlatform overrides the path convention used to normalize references.
func WithPlatform(p reference.Platform) Option {
	return func(d *Dispatcher) { d.platform = p }
}

// WithErrorWriter replaces the plain-text error responses.
func WithErrorWriter(fn ErrorWriter) Option {
	return func(d *Dispatcher) { d.writeError = fn }
}

// NewDispatcher creates a dispatcher. prober may be nil, in which case
// deep-check containers are always transcoded.
func NewDispatcher(prober Prober, transcoder Transcoder, policy decision.Policy, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		prober:     prober,
		transcoder: transcoder,
		policy:     policy,
		platform:   reference.HostPlatform(),
		writeError: plainError,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Resolve normalizes raw, checks that a local file exists and applies the
// delivery policy. It returns ErrNotFound for missing local files.
func (d *Dispatcher) Resolve(ctx context.Context, raw string) (Resolution, error) {
	ref := reference.NormalizeFor(raw, d.platform)
	res := Resolution{Reference: ref, Extension: ref.Extension()}

	if !ref.IsRemote() {
		info, err := os.Stat(ref.Path())
		if err != nil {
			return res, fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		if !info.Mode().IsRegular() {
			return res, fmt.Errorf("%w: not a regular file", ErrNotFound)
		}
		res.Size = info.Size()
	}

	var (
		probeFn  decision.ProbeFunc
		probeErr error
	)
	if d.prober != nil {
		var once sync.Once
		probeFn = func() (*probe.Result, error) {
			once.Do(func() { res.Probe, probeErr = d.prober.Probe(ctx, ref) })
			return res.Probe, probeErr
		}
	}

	res.Decision = decision.Decide(decision.Input{
		Ref:       ref,
		Extension: res.Extension,
		Probe:     probeFn,
		Params:    decision.ParamsFromReference(ref),
		Policy:    d.policy,
	})

	// Browsers can only be redirected to web URLs; other remote schemes are
	// pulled through the encoder instead.
	if ref.IsRemote() && res.Decision.Kind == decision.KindPassthrough && !redirectable(ref) {
		res.Decision = decision.Decision{
			Kind:   decision.KindTranscode,
			Spec:   decision.ParamsFromReference(ref).Spec(),
			Reason: decision.ReasonRemoteNotNative,
			Detail: "scheme not redirectable",
		}
	}
	if probeErr != nil {
		res.Probe = nil
	}

	source := "local"
	if ref.IsRemote() {
		source = "remote"
	}
	metrics.RecordDecision(string(res.Decision.Kind), string(res.Decision.Reason), source)
	return res, nil
}

// ServeReference resolves raw and writes the media to w.
func (d *Dispatcher) ServeReference(w http.ResponseWriter, r *http.Request, raw string) {
	ctx, span := telemetry.StartSpan(r.Context(), "delivery.serve")
	logger := xglog.WithComponentFromContext(ctx, "delivery")

	res, err := d.Resolve(ctx, raw)
	span.SetAttributes(telemetry.ReferenceAttributes(string(res.Reference.Kind()), res.Extension)...)
	if err != nil {
		logger.Warn().Err(err).Str(xglog.FieldReference, platformnet.SanitizeURL(raw)).Str(xglog.FieldEvent, "delivery.not_found").Msg("media not found")
		d.writeError(w, r, http.StatusNotFound, "NOT_FOUND", "File not found")
		metrics.RecordDelivery("error", http.StatusNotFound)
		telemetry.EndSpan(span, err)
		return
	}
	span.SetAttributes(telemetry.DecisionAttributes(string(res.Decision.Kind), string(res.Decision.Reason))...)

	logger = logger.With().
		Str(xglog.FieldReference, platformnet.SanitizeURL(res.Reference.String())).
		Str(xglog.FieldKind, string(res.Reference.Kind())).
		Str(xglog.FieldExtension, res.Extension).
		Str(xglog.FieldDecision, string(res.Decision.Kind)).
		Str(xglog.FieldReason, string(res.Decision.Reason)).
		Logger()
	w.Header().Set("X-Delivery-Decision", FormatDecisionHeader(res.Decision))
	logger.Info().Str(xglog.FieldEvent, "delivery.decided").Str("detail", res.Decision.Detail).Msg("delivery decided")

	r = r.WithContext(ctx)
	var (
		mode   string
		status int
	)
	switch {
	case res.Decision.Kind == decision.KindPassthrough && res.Reference.IsRemote():
		mode, status = "redirect", http.StatusTemporaryRedirect
		http.Redirect(w, r, res.Reference.Path(), status)
	case res.Decision.Kind == decision.KindPassthrough:
		mode = "range"
		status, err = serveRange(w, r, res.Reference.Path(), logger)
	default:
		mode = "transcode"
		status, err = d.serveTranscode(w, r, res, logger)
	}
	if err != nil && status < http.StatusInternalServerError {
		logger.Debug().Err(err).Int("status", status).Msg("delivery ended early")
	} else if err != nil {
		logger.Error().Err(err).Int("status", status).Msg("delivery failed")
	}
	if status >= http.StatusBadRequest {
		mode = "error"
	}
	metrics.RecordDelivery(mode, status)
	telemetry.EndSpan(span, err)
}

func (d *Dispatcher) serveTranscode(w http.ResponseWriter, r *http.Request, res Resolution, logger zerolog.Logger) (int, error) {
	if d.transcoder == nil {
		d.writeError(w, r, http.StatusServiceUnavailable, "TRANSCODER_UNAVAILABLE", "transcoding unavailable")
		return http.StatusServiceUnavailable, errors.New("no transcoder configured")
	}
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "video/mp4")
		w.WriteHeader(http.StatusOK)
		return http.StatusOK, nil
	}

	input := res.Reference.Path()
	if res.Reference.IsRemote() {
		if target, err := probe.Target(res.Reference); err == nil {
			input = target
		}
	}
	var spec decision.TranscodeSpec
	if res.Decision.Spec != nil {
		spec = *res.Decision.Spec
	}

	session, err := d.transcoder.Start(r.Context(), input, spec)
	switch {
	case errors.Is(err, transcode.ErrBusy):
		w.Header().Set("Retry-After", "5")
		d.writeError(w, r, http.StatusServiceUnavailable, "TRANSCODER_BUSY", "too many transcode sessions")
		return http.StatusServiceUnavailable, err
	case err != nil:
		d.writeError(w, r, http.StatusNotFound, "TRANSCODE_SPAWN_FAILED", "File not found")
		return http.StatusNotFound, err
	}

	lw := &lazyWriter{w: w, sessionID: session.ID()}
	err = session.Stream(r.Context(), lw)
	if !lw.started {
		if session.State() == transcode.StateAborted {
			return http.StatusOK, err
		}
		// The encoder failed before emitting anything, typically an
		// unreadable input.
		logger.Warn().Strs("stderr", session.Diagnostics()).Msg("encoder produced no output")
		d.writeError(w, r, http.StatusNotFound, "TRANSCODE_FAILED", "File not found")
		return http.StatusNotFound, err
	}
	return http.StatusOK, err
}

// lazyWriter defers the response header until the encoder emits its first
// byte so that an early failure can still be answered with an error status.
type lazyWriter struct {
	w         http.ResponseWriter
	sessionID string
	started   bool
}

func (l *lazyWriter) Write(p []byte) (int, error) {
	if !l.started {
		l.started = true
		h := l.w.Header()
		h.Set("Content-Type", "video/mp4")
		h.Set("Cache-Control", "no-store")
		h.Set("X-Transcode-Session", l.sessionID)
		l.w.WriteHeader(http.StatusOK)
	}
	return l.w.Write(p)
}

func (l *lazyWriter) Flush() {
	if f, ok := l.w.(http.Flusher); ok && l.started {
		f.Flush()
	}
}

func redirectable(ref reference.Reference) bool {
	_, ok := platformnet.ParseDirectHTTPURL(ref.Path())
	return ok
}

// FormatDecisionHeader renders a decision for the X-Delivery-Decision
// debug header.
func FormatDecisionHeader(dec decision.Decision) string {
	return string(dec.Kind) + ";reason=" + string(dec.Reason) + ";forced=" + strconv.FormatBool(dec.Spec != nil && dec.Spec.Forced)
}

// Package transcode supervises ffmpeg processes that re-encode a source into
// fragmented MP4 on stdout for immediate playback.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/ManuGH/mediad/internal/decision"
	xglog "github.com/ManuGH/mediad/internal/log"
	"github.com/ManuGH/mediad/internal/media/probe"
	"github.com/ManuGH/mediad/internal/media/reference"
	"github.com/ManuGH/mediad/internal/metrics"
	"github.com/ManuGH/mediad/internal/procgroup"
	"github.com/ManuGH/mediad/internal/telemetry"
)

const (
	DefaultVideoBitrate = "4M"
	DefaultAudioBitrate = "192k"
	DefaultPreset       = "veryfast"
	DefaultKillGrace    = 2 * time.Second

	killTimeout   = 5 * time.Second
	diagnosticLen = 50
)

var (
	// ErrSpawn means the encoder process could not be started at all.
	ErrSpawn = errors.New("transcoder spawn failed")
	// ErrBusy means the session limit is reached.
	ErrBusy = errors.New("transcoder busy")
	// ErrEncoderFailed means the encoder exited unsuccessfully.
	ErrEncoderFailed = errors.New("encoder failed")
	// ErrAlreadyStreamed is returned when a session is consumed twice.
	ErrAlreadyStreamed = errors.New("session already streamed")
)

// Config holds encoder settings.
type Config struct {
	FFmpegBin    string
	VideoBitrate string
	AudioBitrate string
	Preset       string
	// MaxSessions caps concurrent encoders; 0 means unlimited.
	MaxSessions int
	KillGrace   time.Duration
}

// Prober resolves subtitle stream ordinals for burn-in.
type Prober interface {
	Probe(ctx context.Context, ref reference.Reference) (*probe.Result, error)
}

// Transcoder starts sessions. It holds no per-session state.
type Transcoder struct {
	cfg    Config
	sem    *semaphore.Weighted
	prober Prober
	logger zerolog.Logger
}

// Option configures a Transcoder.
type Option func(*Transcoder)

// WithProber enables subtitle index translation through p.
func WithProber(p Prober) Option {
	return func(t *Transcoder) { t.prober = p }
}

// New creates a Transcoder.
func New(cfg Config, opts ...Option) *Transcoder {
	if cfg.FFmpegBin == "" {
		cfg.FFmpegBin = "ffmpeg"
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = DefaultKillGrace
	}
	t := &Transcoder{
		cfg:    cfg,
		logger: xglog.WithComponent("transcode"),
	}
	if cfg.MaxSessions > 0 {
		t.sem = semaphore.NewWeighted(int64(cfg.MaxSessions))
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start spawns an encoder for input. The returned session is Running and
// must be consumed with Stream or released with Close.
func (t *Transcoder) Start(ctx context.Context, input string, spec decision.TranscodeSpec) (*Session, error) {
	if t.sem != nil && !t.sem.TryAcquire(1) {
		metrics.RecordTranscodeOutcome("busy")
		return nil, ErrBusy
	}
	release := func() {
		if t.sem != nil {
			t.sem.Release(1)
		}
	}

	id := uuid.NewString()
	logger := t.logger.With().Str(xglog.FieldSessionID, id).Str(xglog.FieldPath, input).Logger()

	args := BuildArgs(t.argsInput(ctx, input, spec, logger))

	s, err := t.spawn(id, input, args, logger)
	if err != nil {
		release()
		metrics.RecordTranscodeOutcome("spawn_error")
		logger.Error().Err(err).Str(xglog.FieldEvent, "transcode.spawn_failed").Msg("failed to start encoder")
		return nil, err
	}
	s.release = release

	seek, audio, sub := -1.0, -1, -1
	if spec.SeekSeconds != nil {
		seek = *spec.SeekSeconds
	}
	if spec.AudioStream != nil {
		audio = *spec.AudioStream
	}
	if spec.SubtitleStream != nil {
		sub = *spec.SubtitleStream
	}
	_, s.span = telemetry.StartSpan(ctx, "transcode.session", telemetry.TranscodeAttributes(id, seek, audio, sub)...)

	metrics.TranscodeSessionsActive.Inc()
	logger.Info().
		Str(xglog.FieldEvent, "transcode.started").
		Int(xglog.FieldPID, s.cmd.Process.Pid).
		Strs("args", args).
		Msg("encoder started")
	return s, nil
}

func (t *Transcoder) argsInput(ctx context.Context, input string, spec decision.TranscodeSpec, logger zerolog.Logger) ArgsInput {
	in := ArgsInput{
		Input:        input,
		Spec:         spec,
		VideoBitrate: t.cfg.VideoBitrate,
		AudioBitrate: t.cfg.AudioBitrate,
		Preset:       t.cfg.Preset,
	}
	if spec.SubtitleStream == nil {
		return in
	}

	ref := reference.Normalize(input)
	if ref.IsRemote() {
		logger.Warn().Int("subtitle_stream", *spec.SubtitleStream).Msg("subtitle burn-in needs a local file, ignoring")
		return in
	}

	ordinal := *spec.SubtitleStream
	if t.prober != nil {
		res, err := t.prober.Probe(ctx, ref)
		switch {
		case err != nil:
			logger.Warn().Err(err).Msg("probe for subtitle mapping failed, using index as ordinal")
		default:
			si, ok := res.SubtitleOrdinal(*spec.SubtitleStream)
			if !ok {
				logger.Warn().Int("subtitle_stream", *spec.SubtitleStream).Msg("stream is not a subtitle, skipping burn-in")
				return in
			}
			ordinal = si
		}
	}
	in.SubtitlePath = input
	in.SubtitleOrdinal = &ordinal
	return in
}

func (t *Transcoder) spawn(id, input string, args []string, logger zerolog.Logger) (*Session, error) {
	// #nosec G204 -- binary is operator configured; input is a single argv entry
	cmd := exec.Command(t.cfg.FFmpegBin, args...)
	procgroup.Set(cmd)

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrSpawn, err)
	}
	cmd.Stdout = stdoutW

	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdoutR.Close()
		_ = stdoutW.Close()
		return nil, fmt.Errorf("%w: stderr pipe: %v", ErrSpawn, err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdoutR.Close()
		_ = stdoutW.Close()
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	// The child holds its own copy of the write end.
	_ = stdoutW.Close()

	s := &Session{
		id:      id,
		input:   input,
		cmd:     cmd,
		stdout:  stdoutR,
		ring:    NewRingBuffer(diagnosticLen),
		exited:  make(chan struct{}),
		grace:   t.cfg.KillGrace,
		logger:  logger,
		started: time.Now(),
		state:   StateCreated,
	}
	s.setState(StateRunning)
	go s.monitor(stderr)
	return s, nil
}

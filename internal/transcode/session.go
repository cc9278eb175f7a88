package transcode

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	xglog "github.com/ManuGH/mediad/internal/log"
	"github.com/ManuGH/mediad/internal/metrics"
	"github.com/ManuGH/mediad/internal/procgroup"
	"github.com/ManuGH/mediad/internal/telemetry"
)

// State is the lifecycle state of a session.
type State string

const (
	StateCreated   State = "created"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted || s == StateFailed
}

const copyBufferSize = 32 * 1024

// Session owns one encoder process and its stdout pipe. It is consumed by
// exactly one Stream call.
type Session struct {
	id      string
	input   string
	cmd     *exec.Cmd
	stdout  *os.File
	ring    *RingBuffer
	exited  chan struct{}
	waitErr error // set before exited is closed
	grace   time.Duration
	logger  zerolog.Logger
	span    trace.Span
	release func()
	started time.Time

	mu       sync.Mutex
	state    State
	consumed bool

	aborted    atomic.Bool
	drained    atomic.Bool // stdout reached EOF
	bytes      atomic.Int64
	abortOnce  sync.Once
	finishOnce sync.Once
	finalErr   error
}

// ID returns the session identifier used in logs and traces.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// BytesWritten returns the number of encoder bytes delivered to the writer.
func (s *Session) BytesWritten() int64 { return s.bytes.Load() }

// Diagnostics returns the most recent encoder stderr lines.
func (s *Session) Diagnostics() []string { return s.ring.GetAll() }

// Done is closed once the encoder process has exited and been reaped.
func (s *Session) Done() <-chan struct{} { return s.exited }

func (s *Session) setState(next State) {
	s.mu.Lock()
	prev := s.state
	if prev.Terminal() {
		s.mu.Unlock()
		return
	}
	s.state = next
	s.mu.Unlock()

	s.logger.Debug().
		Str(xglog.FieldOldState, string(prev)).
		Str(xglog.FieldNewState, string(next)).
		Msg("transcode state change")
}

func (s *Session) claim() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consumed {
		return false
	}
	s.consumed = true
	return true
}

// Stream copies encoder output to w until the encoder finishes, ctx is
// cancelled, or a write fails. Cancellation and write failures terminate the
// encoder's process group; nothing is written after ctx is done. The
// returned error is nil only for a Completed session.
func (s *Session) Stream(ctx context.Context, w io.Writer) error {
	if !s.claim() {
		return ErrAlreadyStreamed
	}

	stop := make(chan struct{})
	watched := make(chan struct{})
	go func() {
		defer close(watched)
		select {
		case <-ctx.Done():
			if s.drained.Load() && s.awaitExit() {
				return
			}
			s.abort("context cancelled")
		case <-stop:
		}
	}()

	copyErr := s.pump(ctx, w)
	if copyErr != nil {
		s.abort("delivery stopped")
	} else {
		s.drained.Store(true)
	}

	<-s.exited
	close(stop)
	<-watched

	return s.finish(ctx, copyErr)
}

// Close releases a session that was never streamed. It is a no-op once
// Stream has been called.
func (s *Session) Close() error {
	if !s.claim() {
		return nil
	}
	s.abort("closed before streaming")
	<-s.exited
	_ = s.finish(context.Background(), nil)
	return nil
}

func (s *Session) pump(ctx context.Context, w io.Writer) error {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, copyBufferSize)
	for {
		n, rerr := s.stdout.Read(buf)
		if n > 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := w.Write(buf[:n]); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			s.bytes.Add(int64(n))
			metrics.TranscodeBytesOutput.Add(float64(n))
			if flusher != nil {
				flusher.Flush()
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return nil
			}
			return fmt.Errorf("read encoder output: %w", rerr)
		}
	}
}

// awaitExit gives an encoder that has already delivered all of its output
// the grace period to exit on its own.
func (s *Session) awaitExit() bool {
	timer := time.NewTimer(s.grace)
	defer timer.Stop()
	select {
	case <-s.exited:
		return true
	case <-timer.C:
		return false
	}
}

func (s *Session) abort(reason string) {
	s.abortOnce.Do(func() {
		select {
		case <-s.exited:
			return
		default:
		}
		s.aborted.Store(true)
		s.logger.Info().
			Str(xglog.FieldEvent, "transcode.abort").
			Str(xglog.FieldReason, reason).
			Msg("terminating encoder process group")
		if err := procgroup.Terminate(s.cmd.Process, s.exited, s.grace, killTimeout); err != nil {
			s.logger.Error().Err(err).Int(xglog.FieldPID, s.cmd.Process.Pid).Msg("encoder did not exit after SIGKILL")
		}
	})
}

// monitor drains stderr into the ring buffer, then reaps the process.
func (s *Session) monitor(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		s.ring.Add(scanner.Text())
	}
	// Keep the pipe drained if the scanner gave up on an oversized line.
	_, _ = io.Copy(io.Discard, stderr)

	s.waitErr = s.cmd.Wait()
	close(s.exited)
}

func (s *Session) finish(ctx context.Context, copyErr error) error {
	s.finishOnce.Do(func() {
		_ = s.stdout.Close()
		if s.release != nil {
			s.release()
		}

		var (
			state State
			err   error
		)
		switch {
		case s.aborted.Load():
			state = StateAborted
			err = copyErr
			if err == nil {
				err = ctx.Err()
			}
			if err == nil {
				err = context.Canceled
			}
		case s.waitErr != nil:
			state = StateFailed
			err = fmt.Errorf("%w: %v", ErrEncoderFailed, s.waitErr)
		case copyErr != nil:
			state = StateFailed
			err = copyErr
		default:
			state = StateCompleted
		}
		s.setState(state)

		elapsed := time.Since(s.started)
		metrics.TranscodeSessionsActive.Dec()
		metrics.RecordTranscodeOutcome(string(state))
		metrics.TranscodeDuration.WithLabelValues(string(state)).Observe(elapsed.Seconds())

		ev := s.logger.Info()
		if state == StateFailed {
			ev = s.logger.Error().Err(err).Strs("stderr_tail", s.ring.GetAll())
		}
		ev.Str(xglog.FieldEvent, "transcode.finished").
			Str("state", string(state)).
			Int64("bytes", s.bytes.Load()).
			Dur("duration", elapsed).
			Msg("transcode session finished")

		if s.span != nil {
			s.span.SetAttributes(
				attribute.String(telemetry.TranscodeStateKey, string(state)),
				attribute.Int64(telemetry.TranscodeBytesKey, s.bytes.Load()),
			)
			var spanErr error
			if state == StateFailed {
				spanErr = err
			}
			telemetry.EndSpan(s.span, spanErr)
		}
		s.finalErr = err
	})
	return s.finalErr
}

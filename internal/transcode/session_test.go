//go:build unix

package transcode

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/mediad/internal/decision"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func fakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

// lockedBuffer records writes and when the last one happened.
type lockedBuffer struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	last time.Time
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = time.Now()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type failingWriter struct{ n int }

func (w *failingWriter) Write(p []byte) (int, error) {
	w.n++
	if w.n > 1 {
		return 0, errors.New("broken pipe")
	}
	return len(p), nil
}

func TestSession_Completes(t *testing.T) {
	bin := fakeFFmpeg(t, "printf 'ftypisom-fragment'\n")
	tr := New(Config{FFmpegBin: bin})

	s, err := tr.Start(context.Background(), "/m/a.mkv", decision.TranscodeSpec{})
	require.NoError(t, err)
	assert.Equal(t, StateRunning, s.State())

	var out lockedBuffer
	require.NoError(t, s.Stream(context.Background(), &out))

	assert.Equal(t, "ftypisom-fragment", out.String())
	assert.Equal(t, StateCompleted, s.State())
	assert.Equal(t, int64(len("ftypisom-fragment")), s.BytesWritten())
}

func TestSession_EncoderFailure(t *testing.T) {
	bin := fakeFFmpeg(t, "echo 'Invalid data found when processing input' >&2\nexit 1\n")
	tr := New(Config{FFmpegBin: bin})

	s, err := tr.Start(context.Background(), "/m/broken.mkv", decision.TranscodeSpec{})
	require.NoError(t, err)

	var out lockedBuffer
	err = s.Stream(context.Background(), &out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEncoderFailed))
	assert.Equal(t, StateFailed, s.State())
	assert.Zero(t, s.BytesWritten())
	assert.Contains(t, s.Diagnostics(), "Invalid data found when processing input")
}

// cancelOnFirstWrite cancels the stream context from inside the first Write.
type cancelOnFirstWrite struct {
	cancel context.CancelFunc
	writes int
}

func (w *cancelOnFirstWrite) Write(p []byte) (int, error) {
	w.writes++
	if w.writes == 1 {
		w.cancel()
	}
	return len(p), nil
}

func TestSession_CancellationKillsEncoder(t *testing.T) {
	bin := fakeFFmpeg(t, "while :; do printf 'chunk'; sleep 0.01; done\n")
	tr := New(Config{FFmpegBin: bin, KillGrace: 500 * time.Millisecond})

	s, err := tr.Start(context.Background(), "/m/a.mkv", decision.TranscodeSpec{})
	require.NoError(t, err)
	pgid := s.cmd.Process.Pid

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := &cancelOnFirstWrite{cancel: cancel}

	done := make(chan error, 1)
	start := time.Now()
	go func() { done <- s.Stream(ctx, w) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Stream did not return after cancellation")
	}
	assert.Less(t, time.Since(start), 3*time.Second)

	assert.Equal(t, StateAborted, s.State())
	assert.Equal(t, 1, w.writes, "no bytes may be written after cancellation")

	require.Eventually(t, func() bool {
		return errors.Is(syscall.Kill(-pgid, syscall.Signal(0)), syscall.ESRCH)
	}, 2*time.Second, 20*time.Millisecond, "encoder process group must be gone")
}

func TestSession_CancelAfterOutputDrainedCompletes(t *testing.T) {
	// stdout closes right after the payload; the process lingers briefly.
	bin := fakeFFmpeg(t, "printf 'payload'\nexec 1>&-\nsleep 0.5\n")
	tr := New(Config{FFmpegBin: bin, KillGrace: 3 * time.Second})

	s, err := tr.Start(context.Background(), "/m/a.mkv", decision.TranscodeSpec{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var out lockedBuffer
	done := make(chan error, 1)
	go func() { done <- s.Stream(ctx, &out) }()

	require.Eventually(t, func() bool { return out.Len() == len("payload") }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Stream did not return")
	}
	assert.Equal(t, StateCompleted, s.State())
	assert.Equal(t, "payload", out.String())
}

func TestSession_WriteFailureAborts(t *testing.T) {
	bin := fakeFFmpeg(t, "while :; do printf 'chunk'; sleep 0.01; done\n")
	tr := New(Config{FFmpegBin: bin, KillGrace: 500 * time.Millisecond})

	s, err := tr.Start(context.Background(), "/m/a.mkv", decision.TranscodeSpec{})
	require.NoError(t, err)

	err = s.Stream(context.Background(), &failingWriter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pipe")
	assert.Equal(t, StateAborted, s.State())
}

func TestSession_StreamTwice(t *testing.T) {
	bin := fakeFFmpeg(t, "printf 'x'\n")
	s, err := New(Config{FFmpegBin: bin}).Start(context.Background(), "/m/a.mkv", decision.TranscodeSpec{})
	require.NoError(t, err)

	require.NoError(t, s.Stream(context.Background(), &lockedBuffer{}))
	assert.ErrorIs(t, s.Stream(context.Background(), &lockedBuffer{}), ErrAlreadyStreamed)
	assert.NoError(t, s.Close())
}

func TestTranscoder_SpawnFailure(t *testing.T) {
	tr := New(Config{FFmpegBin: filepath.Join(t.TempDir(), "no-such-ffmpeg")})

	_, err := tr.Start(context.Background(), "/m/a.mkv", decision.TranscodeSpec{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSpawn))
}

func TestTranscoder_AdmissionLimit(t *testing.T) {
	bin := fakeFFmpeg(t, "exec sleep 10\n")
	tr := New(Config{FFmpegBin: bin, MaxSessions: 1, KillGrace: 200 * time.Millisecond})

	first, err := tr.Start(context.Background(), "/m/a.mkv", decision.TranscodeSpec{})
	require.NoError(t, err)

	_, err = tr.Start(context.Background(), "/m/b.mkv", decision.TranscodeSpec{})
	assert.ErrorIs(t, err, ErrBusy)

	require.NoError(t, first.Close())
	assert.Equal(t, StateAborted, first.State())

	second, err := tr.Start(context.Background(), "/m/b.mkv", decision.TranscodeSpec{})
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

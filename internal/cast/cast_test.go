package cast

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestManager() *Manager {
	return NewManager(Config{BindAddr: "127.0.0.1:0", AdvertiseHost: "127.0.0.1"})
}

func writeFile(t *testing.T, name string, size int) string {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func get(t *testing.T, url, rangeHeader string) *http.Response {
	t.Helper()
	client := &http.Client{
		Timeout:   5 * time.Second,
		Transport: &http.Transport{DisableKeepAlives: true},
	}
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

func TestManager_ServesFileWithRanges(t *testing.T) {
	m := newTestManager()
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	path := writeFile(t, "my movie.mp4", 1000)

	s, err := m.Start(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:"+strconv.Itoa(s.Port)+"/my%20movie.mp4", s.URL)
	assert.NotEmpty(t, s.ID)

	resp := get(t, s.URL, "bytes=200-299")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)
	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "bytes 200-299/1000", resp.Header.Get("Content-Range"))
	assert.Len(t, body, 100)

	resp = get(t, "http://127.0.0.1:"+strconv.Itoa(s.Port)+"/other.mp4", "")
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestManager_SecondStartLeavesOneListener(t *testing.T) {
	m := newTestManager()
	t.Cleanup(func() { _ = m.Close(context.Background()) })

	first, err := m.Start(context.Background(), writeFile(t, "a.mp4", 10))
	require.NoError(t, err)
	second, err := m.Start(context.Background(), writeFile(t, "b.mp4", 10))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	conn, err := net.DialTimeout("tcp", "127.0.0.1:"+strconv.Itoa(first.Port), time.Second)
	if err == nil {
		_ = conn.Close()
		// The OS may hand the same port to the new listener.
		require.Equal(t, first.Port, second.Port, "previous listener still accepting")
	}

	status, ok := m.Status()
	require.True(t, ok)
	assert.Equal(t, second.ID, status.ID)

	resp := get(t, second.URL, "")
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestManager_Stop(t *testing.T) {
	m := newTestManager()

	require.ErrorIs(t, m.Stop(context.Background()), ErrNotRunning)
	require.NoError(t, m.Close(context.Background()))

	s, err := m.Start(context.Background(), writeFile(t, "a.mp4", 10))
	require.NoError(t, err)
	require.NoError(t, m.Stop(context.Background()))

	_, ok := m.Status()
	assert.False(t, ok)

	_, err = net.DialTimeout("tcp", "127.0.0.1:"+strconv.Itoa(s.Port), time.Second)
	assert.Error(t, err)
}

func TestManager_StartNotFound(t *testing.T) {
	m := newTestManager()

	_, err := m.Start(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"))
	require.ErrorIs(t, err, ErrNotFound)

	_, err = m.Start(context.Background(), t.TempDir())
	require.ErrorIs(t, err, ErrNotFound)

	_, ok := m.Status()
	assert.False(t, ok)
}

func TestManager_FailedStartKeepsPreviousStopped(t *testing.T) {
	m := NewManager(Config{BindAddr: "127.0.0.1:0", AdvertiseHost: "bad host:1"})

	_, err := m.Start(context.Background(), writeFile(t, "a.mp4", 10))
	require.Error(t, err)
	_, ok := m.Status()
	assert.False(t, ok)
}

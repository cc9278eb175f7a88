//go:build unix

package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/mediad/internal/config"
)

func TestBootstrap_ServesAndShutsDown(t *testing.T) {
	media := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(media, "clip.webm"), []byte("webm-bytes"), 0o600))

	cfg := config.Defaults()
	cfg.Version = "test"
	cfg.ListenAddr = reserveListenAddr(t)
	cfg.DataDir = t.TempDir()
	cfg.FFmpeg.Bin = filepath.Join(t.TempDir(), "no-ffmpeg")
	cfg.FFmpeg.FFprobeBin = filepath.Join(t.TempDir(), "no-ffprobe")
	cfg.Library.Watch = []string{media}
	cfg.RateLimit.Enabled = false
	cfg.Telemetry.Enabled = false

	app, err := Bootstrap(context.Background(), cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	waitForListen(t, cfg.ListenAddr)

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}, Timeout: 5 * time.Second}
	base := "http://" + cfg.ListenAddr

	resp, err := client.Get(base + "/media" + filepath.Join(media, "clip.webm"))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "video/webm", resp.Header.Get("Content-Type"))

	resp, err = client.Get(base + "/api/v1/library/items")
	require.NoError(t, err)
	var items struct {
		Items []struct {
			Name string `json:"name"`
		} `json:"items"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&items))
	_ = resp.Body.Close()
	require.Len(t, items.Items, 1)
	assert.Equal(t, "clip.webm", items.Items[0].Name)

	// ffmpeg is missing, which makes the daemon unready but still live.
	resp, err = client.Get(base + "/readyz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = client.Get(base + "/metrics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}
}

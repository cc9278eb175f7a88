//go:build unix

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/mediad/internal/api/problem"
	"github.com/ManuGH/mediad/internal/cast"
	"github.com/ManuGH/mediad/internal/decision"
	"github.com/ManuGH/mediad/internal/delivery"
	"github.com/ManuGH/mediad/internal/health"
	"github.com/ManuGH/mediad/internal/library"
	"github.com/ManuGH/mediad/internal/media/probe"
	"github.com/ManuGH/mediad/internal/media/reference"
)

type fakeProber struct {
	res *probe.Result
	err error
}

func (f *fakeProber) Probe(context.Context, reference.Reference) (*probe.Result, error) {
	return f.res, f.err
}

type fakeLibrary struct {
	mu      sync.Mutex
	watches map[string]bool
	items   []library.Item
}

func (f *fakeLibrary) Add(_ context.Context, dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", library.ErrNotDirectory, dir)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watches[dir] = true
	return nil
}

func (f *fakeLibrary) Remove(_ context.Context, dir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.watches[dir] {
		return fmt.Errorf("%w: %s", library.ErrNotWatched, dir)
	}
	delete(f.watches, dir)
	return nil
}

func (f *fakeLibrary) Watches(context.Context) ([]library.Watch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []library.Watch
	for dir := range f.watches {
		out = append(out, library.Watch{Path: dir})
	}
	return out, nil
}

func (f *fakeLibrary) Items(_ context.Context, root string) ([]library.Item, error) {
	var out []library.Item
	for _, it := range f.items {
		if root == "" || it.Root == root {
			out = append(out, it)
		}
	}
	return out, nil
}

func h264AAC() *probe.Result {
	return &probe.Result{Container: "mp4", Streams: []probe.Stream{
		{Index: 0, Type: probe.StreamVideo, Codec: "h264"},
		{Index: 1, Type: probe.StreamAudio, Codec: "aac"},
	}}
}

func writeMedia(t *testing.T, name string, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

type testEnv struct {
	handler http.Handler
	cast    *cast.Manager
	library *fakeLibrary
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	cfg.Platform = reference.POSIX
	prober := &fakeProber{res: h264AAC()}
	dispatcher := delivery.NewDispatcher(prober, nil, decision.DefaultPolicy(),
		delivery.WithPlatform(reference.POSIX),
		delivery.WithErrorWriter(RespondError),
	)
	castMgr := cast.NewManager(cast.Config{BindAddr: "127.0.0.1:0", AdvertiseHost: "127.0.0.1"})
	t.Cleanup(func() { _ = castMgr.Close(context.Background()) })
	lib := &fakeLibrary{watches: map[string]bool{}}

	srv := New(cfg, Deps{
		Player:  dispatcher,
		Prober:  prober,
		Cast:    castMgr,
		Library: lib,
		Health:  health.NewManager("test"),
	})
	return &testEnv{handler: srv.Handler(), cast: castMgr, library: lib}
}

func (e *testEnv) do(t *testing.T, method, target string, body io.Reader, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) problem.Body {
	t.Helper()
	var body problem.Body
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestMedia_ServesRange(t *testing.T) {
	env := newTestEnv(t, Config{})
	path := writeMedia(t, "clip.mp4", 1000)

	rec := env.do(t, http.MethodGet, "/media"+path, nil, "Range", "bytes=200-299")

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "bytes 200-299/1000", rec.Header().Get("Content-Range"))
	assert.Equal(t, 100, rec.Body.Len())
	assert.Equal(t, "passthrough;reason=codecs_safe;forced=false", rec.Header().Get("X-Delivery-Decision"))
	assert.NotEmpty(t, rec.Header().Get(problem.HeaderRequestID))
}

func TestMedia_EscapedPayload(t *testing.T) {
	env := newTestEnv(t, Config{})
	path := writeMedia(t, "my movie.webm", 10)

	rec := env.do(t, http.MethodGet, "/media"+strings.ReplaceAll(path, " ", "%20"), nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, rec.Body.Len())
}

func TestMedia_NotFoundIsJSON(t *testing.T) {
	env := newTestEnv(t, Config{})

	rec := env.do(t, http.MethodGet, "/media/no/such/file.mp4", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "NOT_FOUND", body.Code)
	assert.Equal(t, rec.Header().Get(problem.HeaderRequestID), body.RequestID)
}

func TestPlay_TranscodeWithoutEncoder(t *testing.T) {
	env := newTestEnv(t, Config{})
	path := writeMedia(t, "show.avi", 100)

	rec := env.do(t, http.MethodGet, "/api/v1/play?ref="+path, nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "TRANSCODER_UNAVAILABLE", decodeError(t, rec).Code)
}

func TestPlay_RemoteRedirect(t *testing.T) {
	env := newTestEnv(t, Config{})

	rec := env.do(t, http.MethodGet, "/api/v1/play?ref="+
		"lorapok%3A%2F%2Fhttps%3A%2F%2Fcdn.example.com%2Fv%2Fa.mp4%3Ft%3D30", nil)

	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "https://cdn.example.com/v/a.mp4", rec.Header().Get("Location"))
}

func TestPlay_MissingRef(t *testing.T) {
	env := newTestEnv(t, Config{})

	rec := env.do(t, http.MethodGet, "/api/v1/play", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MISSING_REF", decodeError(t, rec).Code)
}

func TestResolve(t *testing.T) {
	env := newTestEnv(t, Config{})
	path := writeMedia(t, "film.mkv", 100)

	rec := env.do(t, http.MethodGet, "/api/v1/resolve?ref=file://"+path+"%3Ftranscode%3Dtrue", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res struct {
		Reference struct {
			Kind string `json:"kind"`
			Path string `json:"path"`
		} `json:"reference"`
		Extension string            `json:"extension"`
		Size      int64             `json:"size"`
		Decision  decision.Decision `json:"decision"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "local", res.Reference.Kind)
	assert.Equal(t, path, res.Reference.Path)
	assert.Equal(t, "mkv", res.Extension)
	assert.Equal(t, int64(100), res.Size)
	assert.Equal(t, decision.KindTranscode, res.Decision.Kind)
	assert.Equal(t, decision.ReasonForced, res.Decision.Reason)
	assert.Equal(t, "transcode;reason=forced;forced=true", rec.Header().Get("X-Delivery-Decision"))
}

func TestResolve_NotFound(t *testing.T) {
	env := newTestEnv(t, Config{})

	rec := env.do(t, http.MethodGet, "/api/v1/resolve?ref=/missing.mp4", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProbe(t *testing.T) {
	env := newTestEnv(t, Config{})
	path := writeMedia(t, "a.mp4", 10)

	rec := env.do(t, http.MethodGet, "/api/v1/probe?ref="+path, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var res probe.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, *h264AAC(), res)

	rec = env.do(t, http.MethodGet, "/api/v1/probe?ref=/missing.mp4", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProbe_Failure(t *testing.T) {
	path := writeMedia(t, "a.mp4", 10)
	srv := New(Config{Platform: reference.POSIX}, Deps{
		Prober: &fakeProber{err: errors.Join(probe.ErrProbeFailed, errors.New("exit status 1"))},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/probe?ref="+path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "PROBE_FAILED", decodeError(t, rec).Code)
}

func TestCast_Lifecycle(t *testing.T) {
	env := newTestEnv(t, Config{})
	path := writeMedia(t, "movie.mp4", 1000)

	rec := env.do(t, http.MethodGet, "/api/v1/cast", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"active":false}`, rec.Body.String())

	body, _ := json.Marshal(map[string]string{"ref": "lorapok://" + path})
	rec = env.do(t, http.MethodPost, "/api/v1/cast", bytes.NewReader(body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var started castStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	require.NotNil(t, started.Session)
	assert.Equal(t, path, started.Session.Path)
	assert.True(t, strings.HasPrefix(started.Session.URL, "http://127.0.0.1:"))

	rec = env.do(t, http.MethodGet, "/api/v1/cast", nil)
	assert.Contains(t, rec.Body.String(), started.Session.ID)

	rec = env.do(t, http.MethodDelete, "/api/v1/cast", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/v1/cast", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "CAST_NOT_RUNNING", decodeError(t, rec).Code)
}

func TestCast_Rejects(t *testing.T) {
	env := newTestEnv(t, Config{})

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{name: "remote", body: `{"ref":"https://cdn.example.com/a.mp4"}`, status: http.StatusBadRequest, code: "CAST_REMOTE_UNSUPPORTED"},
		{name: "missing file", body: `{"ref":"/no/such/file.mp4"}`, status: http.StatusNotFound, code: "NOT_FOUND"},
		{name: "empty ref", body: `{"ref":" "}`, status: http.StatusBadRequest, code: "MISSING_REF"},
		{name: "unknown field", body: `{"path":"/a.mp4"}`, status: http.StatusBadRequest, code: "INVALID_BODY"},
		{name: "not json", body: `ref=/a.mp4`, status: http.StatusBadRequest, code: "INVALID_BODY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/cast", strings.NewReader(tt.body))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
	_, active := env.cast.Status()
	assert.False(t, active)
}

func TestLibrary_Watches(t *testing.T) {
	env := newTestEnv(t, Config{})
	dir := t.TempDir()

	rec := env.do(t, http.MethodGet, "/api/v1/library/watches", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"watches":[]}`, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/v1/library/watches", strings.NewReader(`{"path":"`+dir+`"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, env.library.watches[dir])

	rec = env.do(t, http.MethodGet, "/api/v1/library/watches", nil)
	assert.Contains(t, rec.Body.String(), dir)

	rec = env.do(t, http.MethodDelete, "/api/v1/library/watches?path="+dir, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/v1/library/watches?path="+dir, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_WATCHED", decodeError(t, rec).Code)
}

func TestLibrary_AddErrors(t *testing.T) {
	env := newTestEnv(t, Config{})
	file := writeMedia(t, "a.mp4", 1)

	rec := env.do(t, http.MethodPost, "/api/v1/library/watches", strings.NewReader(`{"path":"`+file+`"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "NOT_A_DIRECTORY", decodeError(t, rec).Code)

	rec = env.do(t, http.MethodPost, "/api/v1/library/watches", strings.NewReader(`{"path":"/no/such/dir"}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/v1/library/watches", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MISSING_PATH", decodeError(t, rec).Code)
}

func TestLibrary_Items(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.library.items = []library.Item{
		{Root: "/a", Path: "/a/x.mkv", Name: "x.mkv", Extension: "mkv"},
		{Root: "/b", Path: "/b/y.mp4", Name: "y.mp4", Extension: "mp4"},
	}

	rec := env.do(t, http.MethodGet, "/api/v1/library/items?dir=/b", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Items []library.Item `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Items, 1)
	assert.Equal(t, "/b/y.mp4", out.Items[0].Path)
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	env := newTestEnv(t, Config{ServeMetrics: true})

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/readyz", nil).Code)

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mediad_http_requests_in_flight")
}

func TestUnknownRouteIsJSON(t *testing.T) {
	env := newTestEnv(t, Config{})

	rec := env.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Code)

	rec = env.do(t, http.MethodPut, "/api/v1/cast", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAPIRateLimit(t *testing.T) {
	env := newTestEnv(t, Config{RequestsPerMinute: 2})

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/cast", nil).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, env.do(t, http.MethodGet, "/api/v1/cast", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", nil).Code)
}

func TestMissingDependenciesAreUnavailable(t *testing.T) {
	h := New(Config{}, Deps{}).Handler()

	for _, target := range []string{"/media/a.mp4", "/api/v1/resolve?ref=a", "/api/v1/probe?ref=a", "/api/v1/cast", "/api/v1/library/items"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, target)
	}
}

package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aescanero/hrrelay/internal/application/relay"
	metricsprom "github.com/aescanero/hrrelay/pkg/adapters/metrics/prometheus"
	"github.com/aescanero/hrrelay/pkg/adapters/storage/file"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testRelay struct {
	path   string
	svc    *relay.Service
	server *Server
}

// newTestRelay starts a relay over a backing file holding initial; an empty
// initial leaves the file absent.
func newTestRelay(t *testing.T, initial string) *testRelay {
	t.Helper()

	path := filepath.Join(t.TempDir(), "heartrate.txt")
	if initial != "" {
		writeFile(t, path, initial)
	}

	reg := prometheus.NewRegistry()
	collector := metricsprom.NewCollector(reg)

	svc := relay.NewService(file.NewStore(path, false, zap.NewNop()), nil, collector, zap.NewNop())
	svc.Load(context.Background())

	server := NewServer(&Config{
		Addr:     "localhost:0",
		Relay:    svc,
		Metrics:  collector,
		Gatherer: reg,
		Logger:   zap.NewNop(),
	})

	return &testRelay{path: path, svc: svc, server: server}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func (r *testRelay) do(t *testing.T, method, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader("ignored body"))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (r *testRelay) get(t *testing.T) *httptest.ResponseRecorder {
	return r.do(t, http.MethodGet, "/", nil)
}

func (r *testRelay) fileContents(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(r.path)
	require.NoError(t, err)
	return string(data)
}

func TestGetReturnsFileValue(t *testing.T) {
	r := newTestRelay(t, "72")

	rec := r.get(t)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, `{"bpm": 72}`, rec.Body.String())
}

func TestGetAcceptsAnyPath(t *testing.T) {
	r := newTestRelay(t, "64")

	for _, target := range []string{"/", "/bpm", "/some/nested/path?x=1", "/healthz/"} {
		rec := r.do(t, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusOK, rec.Code, target)
		assert.Equal(t, `{"bpm": 64}`, rec.Body.String(), target)
	}
}

func TestPostUpdatesSubsequentGet(t *testing.T) {
	r := newTestRelay(t, "72")

	rec := r.do(t, http.MethodPost, "/", map[string]string{"bpm": "88"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Equal(t, "POST request received", rec.Body.String())

	assert.Equal(t, `{"bpm": 88}`, r.get(t).Body.String())
	assert.Equal(t, "88", r.fileContents(t))
}

func TestMissingFileDefaultsToZero(t *testing.T) {
	r := newTestRelay(t, "")

	assert.Equal(t, 0, r.svc.Value())
	rec := r.get(t)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"bpm": 0}`, rec.Body.String())
}

func TestMalformedFileDefaultsToZero(t *testing.T) {
	r := newTestRelay(t, "not-a-number")

	rec := r.get(t)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"bpm": 0}`, rec.Body.String())
}

func TestFileRemovedAfterStartupReportsZero(t *testing.T) {
	r := newTestRelay(t, "72")
	require.NoError(t, os.Remove(r.path))

	assert.Equal(t, `{"bpm": 0}`, r.get(t).Body.String())
}

func TestPostWithoutHeaderKeepsValue(t *testing.T) {
	r := newTestRelay(t, "60")

	rec := r.do(t, http.MethodPost, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "POST request received", rec.Body.String())

	assert.Equal(t, `{"bpm": 60}`, r.get(t).Body.String())
	assert.Equal(t, "60", r.fileContents(t))
}

func TestPostWithMalformedHeaderKeepsValue(t *testing.T) {
	r := newTestRelay(t, "60")

	for _, v := range []string{"fast", "72.5", "99999999999"} {
		rec := r.do(t, http.MethodPost, "/", map[string]string{"bpm": v})
		assert.Equal(t, http.StatusOK, rec.Code, v)
		assert.Equal(t, "POST request received", rec.Body.String(), v)
	}

	assert.Equal(t, `{"bpm": 60}`, r.get(t).Body.String())
}

func TestPostRewritesFileFromMemoryNotFromFile(t *testing.T) {
	r := newTestRelay(t, "60")
	writeFile(t, r.path, "75")

	r.do(t, http.MethodPost, "/", nil)
	assert.Equal(t, "60", r.fileContents(t))
}

func TestPostCreatesMissingFile(t *testing.T) {
	r := newTestRelay(t, "")

	r.do(t, http.MethodPost, "/", map[string]string{"bpm": "70"})
	assert.Equal(t, "70", r.fileContents(t))
}

func TestGetIsIdempotent(t *testing.T) {
	r := newTestRelay(t, "81")

	first := r.get(t).Body.String()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, r.get(t).Body.String())
	}
	assert.Equal(t, "81", r.fileContents(t))
}

func TestWriteThenReadConsistency(t *testing.T) {
	r := newTestRelay(t, "0")

	for _, n := range []string{"0", "1", "45", "120", "220", "-1", "2147483647"} {
		r.do(t, http.MethodPost, "/", map[string]string{"bpm": n})
		assert.Equal(t, `{"bpm": `+n+`}`, r.get(t).Body.String())
	}
}

func TestOtherMethodsNotAllowed(t *testing.T) {
	r := newTestRelay(t, "60")

	for _, method := range []string{http.MethodPut, http.MethodDelete, http.MethodPatch} {
		rec := r.do(t, method, "/", map[string]string{"bpm": "99"})
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, method)
	}
	assert.Equal(t, "60", r.fileContents(t))
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRelay(t, "60")

	rec := r.do(t, http.MethodOptions, "/", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "bpm")
}

func TestHealthz(t *testing.T) {
	r := newTestRelay(t, "66")

	rec := r.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","bpm":66}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRelay(t, "60")
	r.do(t, http.MethodPost, "/", map[string]string{"bpm": "61"})

	rec := r.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `hrrelay_readings_total{result="accepted"} 1`)
	assert.Contains(t, rec.Body.String(), "hrrelay_current_bpm 61")
}

func TestMetricsDisabledFallsThroughToRelay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartrate.txt")
	writeFile(t, path, "58")
	svc := relay.NewService(file.NewStore(path, false, zap.NewNop()), nil, nil, zap.NewNop())
	server := NewServer(&Config{Relay: svc, Logger: zap.NewNop()})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, `{"bpm": 58}`, rec.Body.String())
}

func TestOverRealConnection(t *testing.T) {
	r := newTestRelay(t, "72")
	ts := httptest.NewServer(r.server.Handler())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodPost, ts.URL, strings.NewReader("payload"))
	require.NoError(t, err)
	req.Header.Set("bpm", "93")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, "POST request received", string(body))

	resp, err = ts.Client().Get(ts.URL + "/")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, `{"bpm": 93}`, string(body))
}

package server

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := New(Config{
		Addr:   "127.0.0.1:0",
		DBPath: filepath.Join(t.TempDir(), "database.db"),
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestServer_Routes(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t).Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/todos", "application/json", bytes.NewBufferString(`{"title":"Buy milk"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, err = http.Get(ts.URL + "/api/todos/1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `todo_operations_total{op="create",outcome="ok"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestServer_UnknownRouteIs404(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestServer(t).Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServer_ReportFatalNeverBlocks(t *testing.T) {
	s := newTestServer(t)

	s.reportFatal(errors.New("first"))
	s.reportFatal(errors.New("second"))

	err := <-s.fatal
	assert.True(t, strings.Contains(err.Error(), "first"))
}

func TestServer_BadDatabasePath(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := New(Config{Addr: ":0", DBPath: ""}, logger)
	assert.Error(t, err)
}

package cmd

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/tracker/internal/api"
)

func TestServeRun_StopsOnCancel(t *testing.T) {
	dir := testEnv(t)
	logger = slog.New(slog.DiscardHandler)
	viper.Set("server.host", "127.0.0.1")
	viper.Set("server.port", 0)

	// Open the store up front; serveRun reuses it.
	_, err := getStore(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = serveRun(ctx)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "tracker.db"))
	assert.NoError(t, err, "database should be created and migrated")
	assert.Nil(t, dataStore, "store should be closed after shutdown")
}

func TestServeRun_InvalidTimeout(t *testing.T) {
	testEnv(t)
	logger = slog.New(slog.DiscardHandler)
	viper.Set("server.request_timeout", "soon")

	err := serveRun(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.request_timeout")
}

func TestGetStore_UnknownDriver(t *testing.T) {
	testEnv(t)
	viper.Set("store.driver", "mongo")

	_, err := getStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open database")
}

func TestNewHandler_MountsAPIAndPage(t *testing.T) {
	testEnv(t)
	svc, s, err := getService(context.Background())
	require.NoError(t, err)

	handler, err := newHandler(api.NewServer(svc, s, nil, time.Second))
	require.NoError(t, err)

	tests := []struct {
		method, path, body string
		wantStatus         int
		wantBody           string
	}{
		{"GET", "/", "", http.StatusOK, "Issue Tracker"},
		{"GET", "/apitest/", "", http.StatusOK, "Issue Tracker"},
		{"GET", "/health", "", http.StatusOK, "ok"},
		{"GET", "/api/issues/apitest", "", http.StatusOK, "[]"},
		{"DELETE", "/api/issues/apitest", "{}", http.StatusOK, "missing _id"},
		{"GET", "/api/other", "", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, tt.wantStatus, w.Code, tt.path)
		assert.Contains(t, w.Body.String(), tt.wantBody, tt.path)
	}
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/music-service/internal/config"
	"github.com/book-expert/music-service/internal/core"
	"github.com/stretchr/testify/require"
)

func newServiceLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "music-service-test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	return log
}

// TestApp_CloseStopsWarmUp checks that shutdown does not wait out the startup timeout
// while the model server is still unhealthy.
func TestApp_CloseStopsWarmUp(t *testing.T) {
	t.Parallel()

	probed := make(chan struct{})

	var once sync.Once

	modelServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		once.Do(func() { close(probed) })
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(modelServer.Close)

	dir := t.TempDir()
	cfg, err := config.Parse(fmt.Appendf(nil, `
[model]
service_url = %q
wait_for_healthy = true
startup_timeout_seconds = 300
health_interval_seconds = 1

[storage]
output_dir = %q

[paths]
base_logs_dir = %q
`, modelServer.URL, filepath.Join(dir, "audio_output"), dir))
	require.NoError(t, err)

	a, err := newApp(context.Background(), cfg, newServiceLogger(t))
	require.NoError(t, err)

	select {
	case <-probed:
	case <-time.After(5 * time.Second):
		t.Fatal("warm-up never reached the model server")
	}

	closed := make(chan struct{})

	go func() {
		a.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close blocked on the model warm-up")
	}

	_, err = a.provider.Get(context.Background())
	require.ErrorIs(t, err, core.ErrModelLoad)
}

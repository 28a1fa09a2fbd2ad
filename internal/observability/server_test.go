// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, ready ReadinessChecker) *Server {
	t.Helper()
	server := NewServer("127.0.0.1:0", "v-test", ready, nil)
	_, err := server.Start()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})
	return server
}

func get(t *testing.T, server *Server, path string) (int, string) {
	t.Helper()
	resp, err := http.Get("http://" + server.Addr() + path)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_Metrics(t *testing.T) {
	server := NewServer("127.0.0.1:0", "v-test", nil, nil)
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "authcore_test_total", Help: "test"})
	server.Registry().MustRegister(counter)
	counter.Inc()

	_, err := server.Start()
	require.NoError(t, err)
	defer func() { _ = server.Stop(context.Background()) }()

	status, body := get(t, server, "/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "# HELP")
	assert.Contains(t, body, "go_")
	assert.Contains(t, body, "process_")
	assert.Contains(t, body, `authcore_build_info{version="v-test"} 1`)
	assert.Contains(t, body, "authcore_test_total 1")
}

func TestServer_Liveness(t *testing.T) {
	server := startServer(t, func(context.Context) error { return errors.New("db down") })

	status, body := get(t, server, "/healthz/liveness")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", strings.TrimSpace(body))
}

func TestServer_Readiness(t *testing.T) {
	var down atomic.Bool
	server := startServer(t, func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline, "readiness check is bounded")
		if down.Load() {
			return errors.New("db down")
		}
		return nil
	})

	status, body := get(t, server, "/healthz/readiness")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", strings.TrimSpace(body))

	down.Store(true)
	status, body = get(t, server, "/healthz/readiness")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "not ready", strings.TrimSpace(body))
}

func TestServer_ReadinessWithoutChecker(t *testing.T) {
	server := startServer(t, nil)
	status, _ := get(t, server, "/healthz/readiness")
	assert.Equal(t, http.StatusOK, status)
}

func TestServer_Handle(t *testing.T) {
	server := NewServer("127.0.0.1:0", "v-test", nil, nil)
	require.NoError(t, server.Handle("/extra", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))

	_, err := server.Start()
	require.NoError(t, err)
	defer func() { _ = server.Stop(context.Background()) }()

	status, _ := get(t, server, "/extra")
	assert.Equal(t, http.StatusTeapot, status)
	assert.Error(t, server.Handle("/late", http.NotFoundHandler()))
}

func TestServer_StartTwice(t *testing.T) {
	server := startServer(t, nil)
	_, err := server.Start()
	assert.Error(t, err)
}

func TestServer_StopWhenNotRunning(t *testing.T) {
	server := NewServer("127.0.0.1:0", "v-test", nil, nil)
	assert.NoError(t, server.Stop(context.Background()))
	assert.Empty(t, server.Addr())
}

func TestServer_StartInvalidAddr(t *testing.T) {
	server := NewServer("invalid-address-no-port", "v-test", nil, nil)
	_, err := server.Start()
	require.Error(t, err)

	// a failed start leaves the server startable
	assert.False(t, server.running.Load())
}

func TestServer_ErrorChannelClosedOnStop(t *testing.T) {
	server := NewServer("127.0.0.1:0", "v-test", nil, nil)
	errCh, err := server.Start()
	require.NoError(t, err)
	require.NoError(t, server.Stop(context.Background()))

	select {
	case err, ok := <-errCh:
		assert.False(t, ok, "channel closed without error, got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("error channel not closed after Stop")
	}
}

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/bookstore/internal/health"
	"github.com/vladislavdragonenkov/bookstore/internal/version"
)

func TestStartMetricsServer_Endpoints(t *testing.T) {
	logger := log.WithField("test", "http")

	port := findFreePort(t)
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	healthHandler := healthcheck.NewHandler(version.Version())
	healthHandler.RegisterChecker("storage", healthcheck.NewPingChecker("storage", func(context.Context) error { return nil }))
	srv := startMetricsServer(ctx, addr, logger, healthHandler)
	if srv == nil {
		t.Fatal("startMetricsServer should not return nil")
	}
	waitForHTTP(t, fmt.Sprintf("http://%s/livez", addr))

	cases := []struct {
		path string
		body string
	}{
		{path: "/metrics"},
		{path: "/healthz"},
		{path: "/livez", body: "ok"},
		{path: "/readyz", body: "ready"},
	}
	for _, tc := range cases {
		resp, err := http.Get(fmt.Sprintf("http://%s%s", addr, tc.path))
		if err != nil {
			t.Fatalf("failed to get %s: %v", tc.path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s returned status %d, expected 200", tc.path, resp.StatusCode)
		}
		if len(body) == 0 {
			t.Errorf("%s returned empty body", tc.path)
		}
		if tc.body != "" && string(body) != tc.body {
			t.Errorf("%s: expected %q, got %q", tc.path, tc.body, string(body))
		}
	}
}

func TestStartMetricsServer_UnhealthyStorage(t *testing.T) {
	logger := log.WithField("test", "http-unhealthy")

	port := findFreePort(t)
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	healthHandler := healthcheck.NewHandler(version.Version())
	healthHandler.RegisterChecker("storage", healthcheck.NewPingChecker("storage", func(context.Context) error {
		return errors.New("connection refused")
	}))
	startMetricsServer(ctx, addr, logger, healthHandler)
	waitForHTTP(t, fmt.Sprintf("http://%s/livez", addr))

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", addr))
	if err != nil {
		t.Fatalf("failed to get /healthz: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for /healthz, got %d", resp.StatusCode)
	}
	var report healthcheck.Response
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode health report: %v", err)
	}
	if report.Checks["storage"].Message != "connection refused" {
		t.Fatalf("unexpected storage check: %+v", report.Checks["storage"])
	}

	ready, err := http.Get(fmt.Sprintf("http://%s/readyz", addr))
	if err != nil {
		t.Fatalf("failed to get /readyz: %v", err)
	}
	ready.Body.Close()
	if ready.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for /readyz, got %d", ready.StatusCode)
	}

	live, err := http.Get(fmt.Sprintf("http://%s/livez", addr))
	if err != nil {
		t.Fatalf("failed to get /livez: %v", err)
	}
	live.Body.Close()
	if live.StatusCode != http.StatusOK {
		t.Fatalf("liveness must not depend on storage, got %d", live.StatusCode)
	}
}

func TestStartMetricsServer_Shutdown(t *testing.T) {
	logger := log.WithField("test", "http-shutdown")

	port := findFreePort(t)
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	ctx, cancel := context.WithCancel(context.Background())
	srv := startMetricsServer(ctx, addr, logger, healthcheck.NewHandler(version.Version()))
	if srv == nil {
		t.Fatal("startMetricsServer should not return nil")
	}

	url := fmt.Sprintf("http://%s/livez", addr)
	waitForHTTP(t, url)

	cancel()
	time.Sleep(200 * time.Millisecond)

	if resp, err := http.Get(url); err == nil {
		resp.Body.Close()
		t.Error("server should be stopped after context cancellation")
	}
}

func TestShutdownHTTP_NilServer(_ *testing.T) {
	shutdownHTTP(nil, log.WithField("test", "http-nil"))
}

func TestStartMetricsServer_BusyAddr(t *testing.T) {
	logger := log.WithField("test", "http-busy")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer listener.Close()

	// Сервер создаётся, ошибка ListenAndServe только логируется.
	srv := startMetricsServer(ctx, listener.Addr().String(), logger, healthcheck.NewHandler(version.Version()))
	if srv == nil {
		t.Error("startMetricsServer should not return nil even with busy addr")
	}
}

// findFreePort находит свободный порт для тестов
func findFreePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}

func waitForHTTP(t *testing.T, url string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("server at %s did not start in time", url)
}

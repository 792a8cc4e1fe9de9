package main

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"
)

func TestMainIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	// Isolate the store and pick a port unlikely to conflict
	t.Setenv("STORE_DIR", t.TempDir())
	t.Setenv("SERVER_HTTP_PORT", "18099")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx)
	}()

	// Wait for server to start
	var resp *http.Response
	var err error
	for i := 0; i < 20; i++ {
		time.Sleep(100 * time.Millisecond)
		resp, err = http.Get("http://127.0.0.1:18099/health")
		if err == nil {
			break
		}
	}
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /health status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decoding health response: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("health status = %q, want %q", health.Status, "ok")
	}

	// Cancel context to shut the server down
	cancel()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shutdown in time")
	}
}

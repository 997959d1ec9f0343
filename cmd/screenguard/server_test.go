package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goodtune/screenguard/internal/storage/bolt"
)

func TestServeFailsCleanlyWhenMetricsPortBusy(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer func() { _ = ln.Close() }()
	port := ln.Addr().(*net.TCPAddr).Port

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "screenguard.bolt")
	body := fmt.Sprintf(`
monitor:
  probe: file
  file_path: %s
storage:
  type: bolt
  path: %s
metrics:
  enabled: true
  bind_address: 127.0.0.1
  port: %d
logging:
  level: error
`, filepath.Join(dir, "foreground"), dbPath, port)

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	previous := configPath
	configPath = path
	t.Cleanup(func() { configPath = previous })

	err = runServe(serveCmd, nil)
	if err == nil || !strings.Contains(err.Error(), "metrics server") {
		t.Fatalf("Expected metrics server error, got %v", err)
	}

	// Deferred cleanup must have released the store
	store, err := bolt.Open(dbPath)
	if err != nil {
		t.Fatalf("Store still held after failed start: %v", err)
	}
	_ = store.Close()
}

package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
monitor:
  intervall: 2s
labels:
  com.example.video: Video Player
storage:
  redis:
    password: secret
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	unknown, err := findUnknownKeys(path)
	if err != nil {
		t.Fatalf("findUnknownKeys failed: %v", err)
	}
	if len(unknown) != 1 || unknown[0] != "monitor.intervall" {
		t.Errorf("Expected only monitor.intervall to be unknown, got %v", unknown)
	}
}

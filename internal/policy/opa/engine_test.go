package opa

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const staticPolicy = `package screenguard

limited_apps := [
	{"package_name": "com.example.video", "time_limit": "10m", "display_name": "Video"},
	{"package_name": "com.example.game", "time_limit_ms": 300000}
]
`

const weekdayPolicy = `package screenguard

limited_apps := [
	{"package_name": "com.example.video", "time_limit_ms": 60000 * (input.time.day_of_week + 1)}
]
`

func writePolicy(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
		t.Fatalf("write policy: %v", err)
	}
}

func TestGetAllLimitedAppsOnce(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "limits.rego", staticPolicy)

	engine, err := NewEngine(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}

	apps, err := engine.GetAllLimitedAppsOnce(context.Background())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	if len(apps) != 2 {
		t.Fatalf("expected 2 apps, got %d: %+v", len(apps), apps)
	}
	if apps[0].PackageName != "com.example.game" || apps[0].TimeLimitMillis != 300000 {
		t.Errorf("unexpected first app %+v", apps[0])
	}
	if apps[1].PackageName != "com.example.video" || apps[1].TimeLimit() != 10*time.Minute || apps[1].DisplayName != "Video" {
		t.Errorf("unexpected second app %+v", apps[1])
	}
}

func TestLimitsCanDependOnTime(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "limits.rego", weekdayPolicy)

	engine, err := NewEngine(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}
	// Saturday
	engine.now = func() time.Time { return time.Date(2024, 1, 6, 12, 0, 0, 0, time.UTC) }

	apps, err := engine.GetAllLimitedAppsOnce(context.Background())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(apps) != 1 || apps[0].TimeLimit() != 7*time.Minute {
		t.Fatalf("expected a 7m Saturday limit, got %+v", apps)
	}
}

func TestReloadKeepsPreviousPolicyOnError(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "limits.rego", staticPolicy)

	engine, err := NewEngine(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}

	writePolicy(t, dir, "limits.rego", "package screenguard\n\nlimited_apps := [\n")
	if err := engine.Reload(); err == nil {
		t.Fatal("expected reload of broken policy to fail")
	}

	apps, err := engine.GetAllLimitedAppsOnce(context.Background())
	if err != nil {
		t.Fatalf("evaluate after failed reload: %v", err)
	}
	if len(apps) != 2 {
		t.Fatalf("expected previous policy to remain active, got %+v", apps)
	}
}

// TestReloadThreadSafety tests that reload is thread-safe with concurrent evaluations
func TestReloadThreadSafety(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "limits.rego", staticPolicy)

	engine, err := NewEngine(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}

	var wg sync.WaitGroup
	ctx := context.Background()
	done := make(chan bool)

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					_, _ = engine.GetAllLimitedAppsOnce(ctx)
					time.Sleep(1 * time.Millisecond)
				}
			}
		}()
	}

	for i := 0; i < 5; i++ {
		time.Sleep(10 * time.Millisecond)
		if err := engine.Reload(); err != nil {
			t.Errorf("Reload failed: %v", err)
		}
	}

	close(done)
	wg.Wait()
}

// TestNewEngineWithoutPolicies tests engine creation when policies are not available
func TestNewEngineWithoutPolicies(t *testing.T) {
	if _, err := NewEngine("/nonexistent/path", zerolog.Nop()); err == nil {
		t.Error("Expected error when creating engine with invalid policy dir")
	}
}

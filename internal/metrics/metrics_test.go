package metrics

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestServerExposesMetricsAndHealth(t *testing.T) {
	srv := NewServer("127.0.0.1:0", zerolog.Nop())
	InterventionsTotal.WithLabelValues("warning", "com.example.video").Inc()

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if string(body) != "OK" {
		t.Fatalf("unexpected health body %q", body)
	}

	resp, err = ts.Client().Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if !strings.Contains(string(body), `screenguard_interventions_total{kind="warning",package="com.example.video"}`) {
		t.Fatalf("metrics output missing intervention counter")
	}
}

func TestServerStartReportsBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = ln.Close() }()

	srv := NewServer(ln.Addr().String(), zerolog.Nop())
	if err := srv.Start(); err == nil {
		_ = srv.Stop()
		t.Fatal("expected start to fail on an address in use")
	}
}

func TestServerStartServes(t *testing.T) {
	srv := NewServer("127.0.0.1:0", zerolog.Nop())
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = srv.Stop() }()

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

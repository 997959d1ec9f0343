package metrics

import (
	"fmt"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Monitor metrics
	ProbeErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "screenguard_probe_errors_total",
			Help: "Total foreground probe failures",
		},
	)

	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screenguard_events_total",
			Help: "Total monitor events emitted",
		},
		[]string{"type"},
	)

	// Session metrics
	SessionsPersisted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screenguard_sessions_persisted_total",
			Help: "Total finalized sessions by persistence result",
		},
		[]string{"result"},
	)

	SessionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "screenguard_session_duration_seconds",
			Help:    "Foreground session duration in seconds",
			Buckets: []float64{5, 30, 60, 300, 600, 1800, 3600, 7200},
		},
	)

	UsageSecondsConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screenguard_usage_seconds_total",
			Help: "Total foreground seconds recorded",
		},
		[]string{"package"},
	)

	// Limiter metrics
	InterventionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screenguard_interventions_total",
			Help: "Total limit interventions fired",
		},
		[]string{"kind", "package"},
	)

	NotifyErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screenguard_notify_errors_total",
			Help: "Total notification dispatch failures",
		},
		[]string{"kind"},
	)

	LimitedApps = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "screenguard_limited_apps",
			Help: "Number of limited apps in the active snapshot",
		},
	)

	LimitReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screenguard_limit_reloads_total",
			Help: "Total limited app reloads by result",
		},
		[]string{"result"},
	)

	TrackedApp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "screenguard_tracking_active",
			Help: "1 while a limited app is being tracked",
		},
	)

	// Retention metrics
	RetentionDeleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screenguard_retention_deleted_total",
			Help: "Total records removed by retention",
		},
		[]string{"kind"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		ProbeErrors,
		EventsTotal,
		SessionsPersisted,
		SessionDuration,
		UsageSecondsConsumed,
		InterventionsTotal,
		NotifyErrors,
		LimitedApps,
		LimitReloads,
		TrackedApp,
		RetentionDeleted,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Handler exposes the server mux, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")

	ln := s.listener
	if ln != nil {
		s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
	} else {
		// Bind here so address conflicts fail startup
		var err error
		ln, err = net.Listen("tcp", s.server.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
		}
		s.listener = ln
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Addr returns the bound address once started
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.server.Addr
	}
	return s.listener.Addr().String()
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}

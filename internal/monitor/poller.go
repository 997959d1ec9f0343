package monitor

import (
	"context"
	"time"

	"github.com/goodtune/screenguard/internal/metrics"
	"github.com/rs/zerolog"
)

// Options configures a Poller
type Options struct {
	Interval time.Duration
	Buffer   int
	Clock    Clock
	Logger   zerolog.Logger
}

// Poller samples a probe on a fixed interval and emits events
type Poller struct {
	probe    Probe
	interval time.Duration
	clock    Clock
	logger   zerolog.Logger
	events   chan Event
	state    screenState
}

// NewPoller creates a new poller
func NewPoller(probe Probe, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Buffer < 0 {
		opts.Buffer = 0
	}
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}

	return &Poller{
		probe:    probe,
		interval: opts.Interval,
		clock:    opts.Clock,
		logger:   opts.Logger.With().Str("component", "poller").Logger(),
		events:   make(chan Event, opts.Buffer),
	}
}

// Events returns the event stream. It is closed when Run returns.
func (p *Poller) Events() <-chan Event {
	return p.events
}

// Run polls until the context is cancelled
func (p *Poller) Run(ctx context.Context) {
	defer close(p.events)

	var changes <-chan struct{}
	if cn, ok := p.probe.(ChangeNotifier); ok {
		changes = cn.Changes()
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info().Dur("interval", p.interval).Bool("change_notify", changes != nil).Msg("Poller started")

	if !p.poll(ctx) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("Poller stopped")
			return
		case <-ticker.C:
		case <-changes:
		}

		if !p.poll(ctx) {
			p.logger.Info().Msg("Poller stopped")
			return
		}
	}
}

// poll samples once and emits the resulting event. It returns false when
// the context ended while waiting for the consumer.
func (p *Poller) poll(ctx context.Context) bool {
	sample, err := p.probe.Sample(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		metrics.ProbeErrors.Inc()
		p.logger.Warn().Err(err).Msg("Probe failed, skipping tick")
		return true
	}

	event, ok := p.state.observe(sample, p.clock.Now())
	if !ok {
		return true
	}

	select {
	case p.events <- event:
		metrics.EventsTotal.WithLabelValues(event.Type.String()).Inc()
		return true
	case <-ctx.Done():
		return false
	}
}

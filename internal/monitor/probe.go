package monitor

import (
	"context"
	"time"
)

// EventType distinguishes monitor events
type EventType int

const (
	// Foreground reports the current foreground package. It is emitted on
	// every tick so consumers can re-check limits for an unchanged app.
	Foreground EventType = iota + 1
	// ScreenOff is emitted once when the screen turns off.
	ScreenOff
)

// String returns the metric label for the event type
func (t EventType) String() string {
	switch t {
	case Foreground:
		return "foreground"
	case ScreenOff:
		return "screen_off"
	default:
		return "unknown"
	}
}

// Event is a single observation from the monitor
type Event struct {
	Type    EventType
	Package string // empty when no app is in the foreground
	At      time.Time
}

// Sample is what a probe reports for a single poll
type Sample struct {
	Package  string
	ScreenOn bool
}

// Probe queries the platform for the foreground app
type Probe interface {
	Sample(ctx context.Context) (Sample, error)
}

// ChangeNotifier is implemented by probes that know when their source
// changed, so the poller can sample immediately instead of waiting a tick.
type ChangeNotifier interface {
	Changes() <-chan struct{}
}

// screenState turns raw samples into events. The screen starts on.
type screenState struct {
	off bool
}

// observe returns the event for a sample, if any
func (s *screenState) observe(sample Sample, at time.Time) (Event, bool) {
	if !sample.ScreenOn {
		if s.off {
			return Event{}, false
		}
		s.off = true
		return Event{Type: ScreenOff, At: at}, true
	}

	s.off = false
	return Event{Type: Foreground, Package: sample.Package, At: at}, true
}

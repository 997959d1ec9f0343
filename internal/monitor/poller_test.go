package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// queueProbe returns queued samples in order and signals changes on an
// unbuffered channel, so each send maps to exactly one poll.
type queueProbe struct {
	mu      sync.Mutex
	queue   []probeResult
	changes chan struct{}
}

type probeResult struct {
	sample Sample
	err    error
}

func (p *queueProbe) Sample(ctx context.Context) (Sample, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.queue) == 0 {
		return Sample{ScreenOn: true}, nil
	}
	next := p.queue[0]
	p.queue = p.queue[1:]
	return next.sample, next.err
}

func (p *queueProbe) Changes() <-chan struct{} {
	return p.changes
}

func receive(t *testing.T, events <-chan Event) Event {
	t.Helper()

	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatal("event stream closed early")
		}
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestPollerEmitsHeartbeatsAndSingleScreenOff(t *testing.T) {
	probe := &queueProbe{
		queue: []probeResult{
			{sample: Sample{Package: "com.example.video", ScreenOn: true}},
			{sample: Sample{Package: "com.example.video", ScreenOn: true}},
			{sample: Sample{ScreenOn: false}},
			{sample: Sample{ScreenOn: false}},
			{err: errors.New("probe unavailable")},
			{sample: Sample{Package: "com.example.reader", ScreenOn: true}},
		},
		changes: make(chan struct{}),
	}
	clock := &TestClock{CurrentTime: time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)}

	poller := NewPoller(probe, Options{
		Interval: time.Hour,
		Buffer:   16,
		Clock:    clock,
		Logger:   zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()

	// The initial poll happens without a trigger
	for i := 0; i < 5; i++ {
		probe.changes <- struct{}{}
	}

	want := []Event{
		{Type: Foreground, Package: "com.example.video"},
		{Type: Foreground, Package: "com.example.video"},
		{Type: ScreenOff},
		{Type: Foreground, Package: "com.example.reader"},
	}
	for i, w := range want {
		got := receive(t, poller.Events())
		if got.Type != w.Type || got.Package != w.Package {
			t.Fatalf("event %d: expected %v %q, got %v %q", i, w.Type, w.Package, got.Type, got.Package)
		}
		if !got.At.Equal(clock.Now()) {
			t.Errorf("event %d: expected timestamp from clock, got %s", i, got.At)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop")
	}

	if _, ok := <-poller.Events(); ok {
		t.Fatal("expected event stream to be closed")
	}
}

func TestPollerStopsWhileConsumerIsBlocked(t *testing.T) {
	probe := &queueProbe{changes: make(chan struct{})}
	poller := NewPoller(probe, Options{Interval: time.Millisecond, Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("poller blocked on send after cancellation")
	}
}

func TestScreenStateTransitions(t *testing.T) {
	var state screenState
	at := time.Unix(0, 0)

	tests := []struct {
		sample Sample
		want   EventType
		emit   bool
	}{
		{Sample{Package: "a", ScreenOn: true}, Foreground, true},
		{Sample{ScreenOn: false}, ScreenOff, true},
		{Sample{ScreenOn: false}, 0, false},
		{Sample{Package: "", ScreenOn: true}, Foreground, true},
		{Sample{ScreenOn: false}, ScreenOff, true},
	}

	for i, tt := range tests {
		ev, ok := state.observe(tt.sample, at)
		if ok != tt.emit {
			t.Fatalf("step %d: expected emit=%v, got %v", i, tt.emit, ok)
		}
		if ok && ev.Type != tt.want {
			t.Fatalf("step %d: expected %v, got %v", i, tt.want, ev.Type)
		}
	}
}

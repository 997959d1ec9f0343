package limiter

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/goodtune/screenguard/internal/storage"
	"github.com/rs/zerolog"
)

const (
	appA = "com.example.video"
	appB = "com.example.reader"
)

var t0 = time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu   sync.Mutex
	apps []storage.LimitedApp
	err  error
}

func (f *fakeSource) GetAllLimitedAppsOnce(ctx context.Context) ([]storage.LimitedApp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]storage.LimitedApp(nil), f.apps...), nil
}

type call struct {
	method string
	arg    string
}

type recordingNotifier struct {
	calls []call
	err   error
}

func (r *recordingNotifier) ShowWarningNotification(ctx context.Context, app storage.LimitedApp, elapsed time.Duration) error {
	r.calls = append(r.calls, call{"warning", app.PackageName})
	return r.err
}

func (r *recordingNotifier) BringAppToForeground(ctx context.Context, pkg string) error {
	r.calls = append(r.calls, call{"foreground", pkg})
	return r.err
}

func (r *recordingNotifier) ShowDissuasionToast(ctx context.Context, name string) error {
	r.calls = append(r.calls, call{"toast", name})
	return r.err
}

func newTestLimiter(t *testing.T, apps ...storage.LimitedApp) (*Limiter, *recordingNotifier) {
	t.Helper()

	notifier := &recordingNotifier{}
	l := New(&fakeSource{apps: apps}, notifier, nil, zerolog.Nop())
	if err := l.LoadLimitedAppSettings(context.Background()); err != nil {
		t.Fatalf("load limited apps: %v", err)
	}
	return l, notifier
}

func tenMinuteApp() storage.LimitedApp {
	return storage.LimitedApp{PackageName: appA, TimeLimitMillis: (10 * time.Minute).Milliseconds(), DisplayName: "Video"}
}

func TestScenarioWarningThenTripleActionOnce(t *testing.T) {
	l, notifier := newTestLimiter(t, tenMinuteApp())
	ctx := context.Background()

	l.OnNewSession(appA, t0)

	if actions := l.CheckUsageLimits(ctx, appA, t0); len(actions) != 0 {
		t.Fatalf("expected no actions at start, got %v", actions)
	}

	actions := l.CheckUsageLimits(ctx, appA, t0.Add(10*time.Minute+time.Second))
	if len(actions) != 1 || actions[0].Kind != ActionWarning {
		t.Fatalf("expected a single warning at 10m01s, got %v", actions)
	}

	actions = l.CheckUsageLimits(ctx, appA, t0.Add(30*time.Minute+time.Second))
	if len(actions) != 1 || actions[0].Kind != ActionTripleAction {
		t.Fatalf("expected a single triple-action at 30m01s, got %v", actions)
	}
	if state := l.State(); !state.WarningShown() || !state.TripleActionTaken() {
		t.Fatal("expected both markers to be set after 30m01s")
	}

	if actions := l.CheckUsageLimits(ctx, appA, t0.Add(31*time.Minute)); len(actions) != 0 {
		t.Fatalf("expected nothing more at 31m, got %v", actions)
	}

	want := []call{{"warning", appA}, {"foreground", appA}, {"toast", "Video"}}
	if len(notifier.calls) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, notifier.calls)
	}
	for i := range want {
		if notifier.calls[i] != want[i] {
			t.Errorf("call %d: expected %v, got %v", i, want[i], notifier.calls[i])
		}
	}
}

func TestThresholdsFireExactlyWhenFirstReached(t *testing.T) {
	l, _ := newTestLimiter(t, tenMinuteApp())
	ctx := context.Background()

	l.OnNewSession(appA, t0)

	fired := map[ActionKind][]time.Duration{}
	for offset := time.Duration(0); offset <= 45*time.Minute; offset += time.Second {
		for _, action := range l.CheckUsageLimits(ctx, appA, t0.Add(offset)) {
			fired[action.Kind] = append(fired[action.Kind], offset)
		}
	}

	if got := fired[ActionWarning]; len(got) != 1 || got[0] != 10*time.Minute {
		t.Errorf("expected one warning at 10m, got %v", got)
	}
	if got := fired[ActionTripleAction]; len(got) != 1 || got[0] != 30*time.Minute {
		t.Errorf("expected one triple-action at 30m, got %v", got)
	}
}

func TestScenarioSwitchAwayResetsContinuousUsage(t *testing.T) {
	l, _ := newTestLimiter(t, tenMinuteApp())
	ctx := context.Background()

	current := ""
	var warnedAt []time.Duration
	for offset := time.Duration(0); offset <= 20*time.Minute; offset += time.Second {
		pkg := appA
		if offset >= 5*time.Minute && offset < 6*time.Minute {
			pkg = appB
		}
		now := t0.Add(offset)

		if pkg != current {
			l.OnSessionFinalized()
			l.OnNewSession(pkg, now)
			current = pkg
		}
		for _, action := range l.CheckUsageLimits(ctx, pkg, now) {
			if action.Kind == ActionWarning {
				warnedAt = append(warnedAt, offset)
			}
		}
	}

	if len(warnedAt) != 1 || warnedAt[0] != 16*time.Minute {
		t.Fatalf("expected one warning at 16m, got %v", warnedAt)
	}
}

func TestUnlimitedAppClearsState(t *testing.T) {
	l, _ := newTestLimiter(t, tenMinuteApp())
	ctx := context.Background()

	l.OnNewSession(appA, t0)
	l.CheckUsageLimits(ctx, appA, t0.Add(11*time.Minute))
	if !l.State().WarningShown() {
		t.Fatal("expected warning marker to be set")
	}

	l.OnNewSession(appB, t0.Add(12*time.Minute))
	if _, _, ok := l.State().Tracked(); ok {
		t.Fatal("expected no tracked app after switching to an unlimited app")
	}
	if l.State() != (State{}) {
		t.Fatalf("expected zero state, got %+v", l.State())
	}

	// Returning to the limited app starts over with fresh markers
	l.OnNewSession(appA, t0.Add(13*time.Minute))
	if l.State().WarningShown() {
		t.Fatal("expected markers to be cleared for the new session")
	}
	if actions := l.CheckUsageLimits(ctx, appA, t0.Add(14*time.Minute)); len(actions) != 0 {
		t.Fatalf("expected no stale latches, got %v", actions)
	}
}

func TestCheckIgnoresOtherPackages(t *testing.T) {
	l, notifier := newTestLimiter(t, tenMinuteApp())

	l.OnNewSession(appA, t0)
	if actions := l.CheckUsageLimits(context.Background(), appB, t0.Add(time.Hour)); len(actions) != 0 {
		t.Fatalf("expected no actions for an untracked package, got %v", actions)
	}
	if len(notifier.calls) != 0 {
		t.Fatalf("expected no notifications, got %v", notifier.calls)
	}
}

func TestSessionFinalizedClearsState(t *testing.T) {
	l, _ := newTestLimiter(t, tenMinuteApp())

	l.OnNewSession(appA, t0)
	l.CheckUsageLimits(context.Background(), appA, t0.Add(40*time.Minute))
	l.OnSessionFinalized()

	if l.State() != (State{}) {
		t.Fatalf("expected zero state after finalize, got %+v", l.State())
	}
}

func TestSecondLimitedAppReplacesFirst(t *testing.T) {
	other := storage.LimitedApp{PackageName: appB, TimeLimitMillis: time.Minute.Milliseconds()}
	l, _ := newTestLimiter(t, tenMinuteApp(), other)

	l.OnNewSession(appA, t0)
	l.OnNewSession(appB, t0.Add(5*time.Minute))

	app, start, ok := l.State().Tracked()
	if !ok || app.PackageName != appB || !start.Equal(t0.Add(5*time.Minute)) {
		t.Fatalf("expected %s tracked from 5m, got %+v %s %v", appB, app, start, ok)
	}
}

func TestDispatchFailureStillLatches(t *testing.T) {
	l, notifier := newTestLimiter(t, tenMinuteApp())
	notifier.err = errors.New("permission denied")
	ctx := context.Background()

	l.OnNewSession(appA, t0)
	if actions := l.CheckUsageLimits(ctx, appA, t0.Add(10*time.Minute)); len(actions) != 1 {
		t.Fatalf("expected warning despite dispatch failure, got %v", actions)
	}
	if actions := l.CheckUsageLimits(ctx, appA, t0.Add(11*time.Minute)); len(actions) != 0 {
		t.Fatalf("expected warning to stay latched, got %v", actions)
	}

	if actions := l.CheckUsageLimits(ctx, appA, t0.Add(30*time.Minute)); len(actions) != 1 {
		t.Fatalf("expected triple-action despite dispatch failure, got %v", actions)
	}
	if !l.State().TripleActionTaken() {
		t.Error("expected triple-action marker to be set after a failed dispatch")
	}
}

func TestLoadFailureKeepsPreviousSnapshot(t *testing.T) {
	source := &fakeSource{apps: []storage.LimitedApp{tenMinuteApp()}}
	l := New(source, &recordingNotifier{}, nil, zerolog.Nop())
	ctx := context.Background()

	if err := l.LoadLimitedAppSettings(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	before := l.Snapshot()

	source.mu.Lock()
	source.err = errors.New("database locked")
	source.mu.Unlock()

	if err := l.LoadLimitedAppSettings(ctx); err == nil {
		t.Fatal("expected load error")
	}
	if l.Snapshot() != before {
		t.Fatal("expected previous snapshot to be retained")
	}
	if _, ok := l.Snapshot().Lookup(appA); !ok {
		t.Fatal("expected limited app to remain")
	}
}

func TestLoadIgnoresInvalidApps(t *testing.T) {
	l, _ := newTestLimiter(t,
		tenMinuteApp(),
		storage.LimitedApp{PackageName: appB, TimeLimitMillis: 0},
		storage.LimitedApp{PackageName: "", TimeLimitMillis: 1000},
	)

	if got := l.Snapshot().Len(); got != 1 {
		t.Fatalf("expected 1 valid app, got %d", got)
	}
	if _, ok := l.Snapshot().Lookup(appB); ok {
		t.Fatal("expected zero-limit app to be ignored")
	}
}

func TestReloadIsSafeDuringChecks(t *testing.T) {
	source := &fakeSource{apps: []storage.LimitedApp{tenMinuteApp()}}
	l := New(source, &recordingNotifier{}, nil, zerolog.Nop())
	ctx := context.Background()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_ = l.LoadLimitedAppSettings(ctx)
			}
		}
	}()

	for i := 0; i < 1000; i++ {
		now := t0.Add(time.Duration(i) * time.Second)
		l.OnNewSession(appA, now)
		l.CheckUsageLimits(ctx, appA, now)
	}

	close(stop)
	wg.Wait()
}

// TestRandomSequencesLatchOncePerSession drives the pure state with random
// switches and screen-offs and checks both latches against a model.
func TestRandomSequencesLatchOncePerSession(t *testing.T) {
	snapshot, _ := NewSnapshot(1, t0, []storage.LimitedApp{
		{PackageName: appA, TimeLimitMillis: (2 * time.Minute).Milliseconds()},
		{PackageName: appB, TimeLimitMillis: (5 * time.Minute).Milliseconds()},
	})
	packages := []string{appA, appB, "com.example.free", ""}
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 200; run++ {
		var (
			state   State
			current string
			start   time.Time
			warned  bool
			tripled bool
			now     = t0
		)

		for step := 0; step < 300; step++ {
			now = now.Add(time.Duration(rng.Intn(90)+1) * time.Second)

			switch r := rng.Intn(20); {
			case r == 0:
				state = state.Reset()
				current = ""
				warned, tripled = false, false
				continue
			case r < 3:
				pkg := packages[rng.Intn(len(packages))]
				if pkg != current {
					state = state.Begin(snapshot, pkg, now)
					current, start = pkg, now
					warned, tripled = false, false
				}
			}

			var actions []Action
			state, actions = state.Check(current, now)

			app, limited := snapshot.Lookup(current)
			for _, action := range actions {
				if !limited {
					t.Fatalf("run %d: action for unlimited package %q", run, current)
				}
				elapsed := now.Sub(start)
				switch action.Kind {
				case ActionWarning:
					if warned || elapsed < app.TimeLimit() {
						t.Fatalf("run %d: bad warning at %s (warned=%v)", run, elapsed, warned)
					}
					warned = true
				case ActionTripleAction:
					if tripled || elapsed < 3*app.TimeLimit() || !warned {
						t.Fatalf("run %d: bad triple-action at %s (tripled=%v warned=%v)", run, elapsed, tripled, warned)
					}
					tripled = true
				}
			}

			if limited {
				if elapsed := now.Sub(start); elapsed >= app.TimeLimit() && !warned {
					t.Fatalf("run %d: warning missing at %s", run, elapsed)
				}
			}
		}
	}
}

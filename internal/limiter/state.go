package limiter

import (
	"time"

	"github.com/goodtune/screenguard/internal/storage"
)

// TripleMultiplier is the multiple of the limit at which the dissuasion
// intervention fires.
const TripleMultiplier = 3

// ActionKind identifies an intervention
type ActionKind int

const (
	// ActionWarning fires once when continuous usage reaches the limit
	ActionWarning ActionKind = iota + 1
	// ActionTripleAction fires once at three times the limit
	ActionTripleAction
)

// String returns the metric label for the action kind
func (k ActionKind) String() string {
	switch k {
	case ActionWarning:
		return "warning"
	case ActionTripleAction:
		return "triple_action"
	default:
		return "unknown"
	}
}

// Action is an intervention produced by a limit check
type Action struct {
	Kind    ActionKind
	App     storage.LimitedApp
	Elapsed time.Duration
	At      time.Time
}

// State is the continuous-usage state for the single tracked app. It is a
// value: transitions return a new State and never mutate the receiver.
type State struct {
	tracked              *storage.LimitedApp
	start                time.Time
	warningShownFor      string
	tripleActionTakenFor string
}

// Begin starts a new continuous session for pkg at start. Markers are
// cleared. The app is tracked only when it is in the snapshot.
func (s State) Begin(snapshot *Snapshot, pkg string, start time.Time) State {
	app, ok := snapshot.Lookup(pkg)
	if !ok {
		return State{}
	}
	return State{tracked: &app, start: start}
}

// Check evaluates the thresholds for pkg at now. The warning is evaluated
// before the triple-action, and each fires at most once per session.
func (s State) Check(pkg string, now time.Time) (State, []Action) {
	if s.tracked == nil || s.start.IsZero() || s.tracked.PackageName != pkg {
		return s, nil
	}

	limit := s.tracked.TimeLimit()
	if limit <= 0 {
		return s, nil
	}

	elapsed := now.Sub(s.start)
	var actions []Action

	if elapsed >= limit && s.warningShownFor != pkg {
		s.warningShownFor = pkg
		actions = append(actions, Action{Kind: ActionWarning, App: *s.tracked, Elapsed: elapsed, At: now})
	}

	if elapsed >= TripleMultiplier*limit && s.tripleActionTakenFor != pkg {
		s.tripleActionTakenFor = pkg
		actions = append(actions, Action{Kind: ActionTripleAction, App: *s.tracked, Elapsed: elapsed, At: now})
	}

	return s, actions
}

// Reset clears all tracked and marker state
func (State) Reset() State {
	return State{}
}

// Tracked returns the tracked app and its continuous-usage start
func (s State) Tracked() (storage.LimitedApp, time.Time, bool) {
	if s.tracked == nil {
		return storage.LimitedApp{}, time.Time{}, false
	}
	return *s.tracked, s.start, true
}

// WarningShown reports whether the warning fired this session
func (s State) WarningShown() bool {
	return s.tracked != nil && s.warningShownFor == s.tracked.PackageName
}

// TripleActionTaken reports whether the triple-action fired this session
func (s State) TripleActionTaken() bool {
	return s.tracked != nil && s.tripleActionTakenFor == s.tracked.PackageName
}

package monitor

import (
	"strings"
	"testing"
	"time"
)

func TestParseScript(t *testing.T) {
	steps, err := ParseScript(strings.NewReader(`
# limit check
0s    com.example.video
5m    -
6m    com.example.video
40m   screen_off
`))
	if err != nil {
		t.Fatalf("parse script: %v", err)
	}

	want := []ScriptStep{
		{Offset: 0, Sample: Sample{Package: "com.example.video", ScreenOn: true}},
		{Offset: 5 * time.Minute, Sample: Sample{ScreenOn: true}},
		{Offset: 6 * time.Minute, Sample: Sample{Package: "com.example.video", ScreenOn: true}},
		{Offset: 40 * time.Minute, Sample: Sample{ScreenOn: false}},
	}
	if len(steps) != len(want) {
		t.Fatalf("expected %d steps, got %d", len(want), len(steps))
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Errorf("step %d: expected %+v, got %+v", i, want[i], steps[i])
		}
	}
}

func TestParseScriptErrors(t *testing.T) {
	tests := map[string]string{
		"missing package": "0s\n",
		"bad offset":      "soon com.example.video\n",
		"backwards":       "5m com.example.video\n1m com.example.reader\n",
	}

	for name, script := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseScript(strings.NewReader(script)); err == nil {
				t.Fatal("expected parse error")
			}
		})
	}
}

func TestScriptEvents(t *testing.T) {
	start := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	steps := []ScriptStep{
		{Offset: 0, Sample: Sample{Package: "a", ScreenOn: true}},
		{Offset: 90 * time.Second, Sample: Sample{ScreenOn: false}},
		{Offset: 3 * time.Minute, Sample: Sample{Package: "b", ScreenOn: true}},
	}

	events := ScriptEvents(steps, start, time.Minute)

	want := []Event{
		{Type: Foreground, Package: "a", At: start},
		{Type: Foreground, Package: "a", At: start.Add(time.Minute)},
		{Type: ScreenOff, At: start.Add(90 * time.Second)},
		{Type: Foreground, Package: "b", At: start.Add(3 * time.Minute)},
	}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d: %+v", len(want), len(events), events)
	}
	for i := range want {
		if events[i].Type != want[i].Type || events[i].Package != want[i].Package || !events[i].At.Equal(want[i].At) {
			t.Errorf("event %d: expected %+v, got %+v", i, want[i], events[i])
		}
	}
}

func TestScriptEventsWithoutTicks(t *testing.T) {
	steps := []ScriptStep{
		{Offset: time.Minute, Sample: Sample{Package: "a", ScreenOn: true}},
		{Offset: time.Hour, Sample: Sample{Package: "a", ScreenOn: true}},
	}

	events := ScriptEvents(steps, time.Unix(0, 0), 0)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
}

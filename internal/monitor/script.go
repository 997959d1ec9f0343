package monitor

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// NoForeground in a script means no app is in the foreground
const NoForeground = "-"

// ScriptStep is one line of a replay script: from Offset on, the probe
// reports Sample.
type ScriptStep struct {
	Offset time.Duration
	Sample Sample
}

// ParseScript reads a replay script. Each non-empty line holds an offset
// from the start and a package name, "screen_off" or "-":
//
//	0s   com.example.video
//	5m   com.example.reader
//	40m  screen_off
//
// Lines starting with # are ignored. Offsets must not decrease.
func ParseScript(r io.Reader) ([]ScriptStep, error) {
	var (
		steps []ScriptStep
		last  time.Duration
	)

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("line %d: expected \"<offset> <package>\", got %q", lineNo, line)
		}

		offset, err := time.ParseDuration(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid offset: %w", lineNo, err)
		}
		if offset < 0 || offset < last {
			return nil, fmt.Errorf("line %d: offset %s goes backwards", lineNo, offset)
		}
		last = offset

		step := ScriptStep{Offset: offset, Sample: Sample{ScreenOn: true}}
		switch fields[1] {
		case ScreenOffMarker:
			step.Sample.ScreenOn = false
		case NoForeground:
		default:
			step.Sample.Package = fields[1]
		}
		steps = append(steps, step)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}

	return steps, nil
}

// ScriptEvents expands steps into the events a poller would emit when
// sampling every tick from start, plus one sample at each step offset.
// A zero tick samples only at the step offsets.
func ScriptEvents(steps []ScriptStep, start time.Time, tick time.Duration) []Event {
	if len(steps) == 0 {
		return nil
	}

	end := steps[len(steps)-1].Offset
	seen := make(map[time.Duration]bool)
	var offsets []time.Duration
	for _, step := range steps {
		if !seen[step.Offset] {
			seen[step.Offset] = true
			offsets = append(offsets, step.Offset)
		}
	}
	if tick > 0 {
		for t := time.Duration(0); t <= end; t += tick {
			if !seen[t] {
				seen[t] = true
				offsets = append(offsets, t)
			}
		}
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

	var (
		events []Event
		state  screenState
		next   int
		cur    *Sample
	)
	for _, offset := range offsets {
		for next < len(steps) && steps[next].Offset <= offset {
			cur = &steps[next].Sample
			next++
		}
		if cur == nil {
			continue
		}
		if event, ok := state.observe(*cur, start.Add(offset)); ok {
			events = append(events, event)
		}
	}

	return events
}

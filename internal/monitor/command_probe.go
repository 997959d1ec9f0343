package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CommandProbe runs shell commands to find the foreground app.
// Command prints the package on stdout. ScreenCommand, when set, exits 0
// while the screen is on and non-zero while it is off.
type CommandProbe struct {
	Command       string
	ScreenCommand string
}

// Sample runs the configured commands
func (p *CommandProbe) Sample(ctx context.Context) (Sample, error) {
	if p.ScreenCommand != "" {
		on, err := p.screenOn(ctx)
		if err != nil {
			return Sample{}, err
		}
		if !on {
			return Sample{ScreenOn: false}, nil
		}
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "sh", "-c", p.Command)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Sample{}, fmt.Errorf("foreground command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return Sample{Package: firstLine(stdout.String()), ScreenOn: true}, nil
}

func (p *CommandProbe) screenOn(ctx context.Context) (bool, error) {
	err := exec.CommandContext(ctx, "sh", "-c", p.ScreenCommand).Run()
	if err == nil {
		return true, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		return false, nil
	}
	return false, fmt.Errorf("screen command failed: %w", err)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(line)
}

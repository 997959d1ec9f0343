package notify

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/goodtune/screenguard/internal/storage"
	"github.com/rs/zerolog"
)

// CommandConfig holds the shell templates for each intervention. An empty
// template skips that intervention.
type CommandConfig struct {
	Warning    string
	Foreground string
	Dissuasion string
	Timeout    time.Duration
}

// CommandNotifier runs shell commands for interventions.
//
// Templates may use {package}, {name}, {elapsed} and {limit}. Values are
// shell-quoted on substitution, so placeholders must not sit inside quotes
// in the template. The same values are exported as SCREENGUARD_PACKAGE,
// SCREENGUARD_NAME, SCREENGUARD_ELAPSED and SCREENGUARD_LIMIT.
type CommandNotifier struct {
	cfg     CommandConfig
	labeler *Labeler
	logger  zerolog.Logger
}

// NewCommandNotifier creates a command-backed notifier
func NewCommandNotifier(cfg CommandConfig, labeler *Labeler, logger zerolog.Logger) *CommandNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &CommandNotifier{
		cfg:     cfg,
		labeler: labeler,
		logger:  logger.With().Str("component", "notify-command").Logger(),
	}
}

func (n *CommandNotifier) ShowWarningNotification(ctx context.Context, app storage.LimitedApp, elapsed time.Duration) error {
	return n.run(ctx, n.cfg.Warning, map[string]string{
		"package": app.PackageName,
		"name":    n.labeler.Name(app),
		"elapsed": elapsed.Round(time.Second).String(),
		"limit":   app.TimeLimit().String(),
	})
}

func (n *CommandNotifier) BringAppToForeground(ctx context.Context, packageName string) error {
	return n.run(ctx, n.cfg.Foreground, map[string]string{
		"package": packageName,
		"name":    n.labeler.Label(packageName),
	})
}

func (n *CommandNotifier) ShowDissuasionToast(ctx context.Context, name string) error {
	return n.run(ctx, n.cfg.Dissuasion, map[string]string{
		"name": name,
	})
}

func (n *CommandNotifier) run(ctx context.Context, template string, vars map[string]string) error {
	if template == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	command := expand(template, vars)
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Stderr = &stderr
	cmd.Env = os.Environ()
	for key, value := range vars {
		cmd.Env = append(cmd.Env, "SCREENGUARD_"+strings.ToUpper(key)+"="+value)
	}

	n.logger.Debug().Str("command", command).Msg("Running notification command")

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("notification command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// expand replaces {key} placeholders with shell-quoted values
func expand(template string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for key, value := range vars {
		pairs = append(pairs, "{"+key+"}", shellQuote(value))
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("._-/:", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

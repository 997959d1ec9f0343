package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/screenguard/internal/limiter"
	"github.com/goodtune/screenguard/internal/monitor"
	"github.com/goodtune/screenguard/internal/notify"
	"github.com/goodtune/screenguard/internal/storage"
	"github.com/goodtune/screenguard/internal/tracking"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	replayApps    map[string]string
	replayTick    time.Duration
	replayPersist bool
)

var replayCmd = &cobra.Command{
	Use:   "replay [flags] SCRIPT",
	Short: "Run an event script through the limiter",
	Long: `Replay a foreground script through session tracking and the limiter and
print the interventions and sessions it produces. Each script line holds an
offset and a package, "screen_off" or "-" for no foreground app.

Limited apps come from --app flags, or from the configured source when no
--app is given.`,
	Example: `  screenguard replay --app com.example.video=10m testdata/evening.txt
  screenguard replay --persist evening.txt`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringToStringVar(&replayApps, "app", nil, "Limited app as PACKAGE=DURATION (repeatable)")
	replayCmd.Flags().DurationVar(&replayTick, "tick", time.Second, "Simulated poll interval (0 samples only at script offsets)")
	replayCmd.Flags().BoolVar(&replayPersist, "persist", false, "Write replayed sessions to the configured store")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open script: %w", err)
	}
	steps, err := monitor.ParseScript(f)
	_ = f.Close()
	if err != nil {
		return err
	}

	ctx := context.Background()
	out := cmd.OutOrStdout()
	logger := zerolog.Nop()

	var (
		source limiter.AppSource
		store  storage.Store
		labels map[string]string
	)
	if len(replayApps) > 0 && !replayPersist {
		source, err = flagApps(replayApps)
		if err != nil {
			return err
		}
	} else {
		cfg, s, err := loadStore()
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()
		store, labels = s, cfg.Labels

		if len(replayApps) > 0 {
			source, err = flagApps(replayApps)
		} else {
			source, _, err = appSource(cfg, s, logger)
		}
		if err != nil {
			return err
		}
	}

	labeler, err := notify.NewLabeler(labels, 0)
	if err != nil {
		return err
	}

	start := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	if replayPersist {
		start = time.Now().UTC()
	}

	printer := &replayPrinter{out: out, start: start, store: store}
	lim := limiter.New(source, printer, labeler, logger)
	if err := lim.LoadLimitedAppSettings(ctx); err != nil {
		return err
	}
	service := tracking.NewService(printer, lim, tracking.Config{}, logger)

	for _, event := range monitor.ScriptEvents(steps, start, replayTick) {
		printer.now = event.At
		service.HandleEvent(ctx, event)
	}

	// Close whatever is still open at the last event
	events := make(chan monitor.Event)
	close(events)
	service.Run(ctx, events)

	return nil
}

// flagApps turns --app flags into an app source
func flagApps(flags map[string]string) (limiter.AppSource, error) {
	apps := make(staticApps, 0, len(flags))
	for pkg, limit := range flags {
		d, err := time.ParseDuration(limit)
		if err != nil {
			return nil, fmt.Errorf("invalid limit for %s: %w", pkg, err)
		}
		app := storage.LimitedApp{PackageName: pkg, TimeLimitMillis: d.Milliseconds()}
		if err := app.Validate(); err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, nil
}

type staticApps []storage.LimitedApp

func (s staticApps) GetAllLimitedAppsOnce(ctx context.Context) ([]storage.LimitedApp, error) {
	return s, nil
}

// replayPrinter prints interventions and sessions with their script offset
type replayPrinter struct {
	out   io.Writer
	start time.Time
	now   time.Time
	store storage.Store
}

func (p *replayPrinter) offset(at time.Time) string {
	return fmt.Sprintf("%10s", at.Sub(p.start))
}

func (p *replayPrinter) ShowWarningNotification(ctx context.Context, app storage.LimitedApp, elapsed time.Duration) error {
	yellow := color.New(color.FgYellow, color.Bold)
	_, _ = yellow.Fprintf(p.out, "%s  WARNING     %s continuous for %s (limit %s)\n", p.offset(p.now), app.PackageName, elapsed, app.TimeLimit())
	return nil
}

func (p *replayPrinter) BringAppToForeground(ctx context.Context, packageName string) error {
	red := color.New(color.FgRed, color.Bold)
	_, _ = red.Fprintf(p.out, "%s  REDIRECT    away from %s\n", p.offset(p.now), packageName)
	return nil
}

func (p *replayPrinter) ShowDissuasionToast(ctx context.Context, name string) error {
	red := color.New(color.FgRed)
	_, _ = red.Fprintf(p.out, "%s  TOAST       time for a break from %s\n", p.offset(p.now), name)
	return nil
}

func (p *replayPrinter) InsertAppSession(ctx context.Context, session storage.AppSession) error {
	fmt.Fprintf(p.out, "%s  SESSION     %s from %s for %s\n",
		p.offset(session.EndTime),
		session.PackageName,
		session.StartTime.Sub(p.start),
		session.Duration(),
	)
	if p.store == nil || !replayPersist {
		return nil
	}
	return p.store.Sessions().InsertAppSession(ctx, session)
}

var _ notify.Notifier = (*replayPrinter)(nil)

package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/screenguard/internal/storage"
	"github.com/spf13/cobra"
)

var (
	usageDate     string
	sessionsPkg   string
	sessionsSince time.Duration
	sessionsLimit int
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show daily usage per app",
	Example: `  screenguard usage
  screenguard usage --date 2024-01-02`,
	Args: cobra.NoArgs,
	RunE: runUsage,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded foreground sessions, newest first",
	Example: `  screenguard sessions --since 24h
  screenguard sessions --package com.example.video --limit 10`,
	Args: cobra.NoArgs,
	RunE: runSessions,
}

func init() {
	usageCmd.Flags().StringVar(&usageDate, "date", "", "Day to report (YYYY-MM-DD, UTC) - defaults to today")

	sessionsCmd.Flags().StringVar(&sessionsPkg, "package", "", "Only sessions for this package")
	sessionsCmd.Flags().DurationVar(&sessionsSince, "since", 0, "Only sessions that started within this duration")
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 50, "Maximum sessions to show (0 for all)")

	rootCmd.AddCommand(usageCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func runUsage(cmd *cobra.Command, args []string) error {
	date := usageDate
	if date == "" {
		date = time.Now().UTC().Format(storage.DateLayout)
	}
	if _, err := time.Parse(storage.DateLayout, date); err != nil {
		return fmt.Errorf("invalid date %q: use YYYY-MM-DD", date)
	}

	cfg, store, err := loadStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	usages, err := store.Sessions().ListDailyUsage(ctx, date)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(usages) == 0 {
		fmt.Fprintf(out, "No usage recorded for %s\n", date)
		return nil
	}

	// Flag apps whose total passed their continuous limit
	limits := map[string]time.Duration{}
	if cfg.Limits.Source == "store" {
		if apps, err := store.LimitedApps().GetAllLimitedAppsOnce(ctx); err == nil {
			for _, app := range apps {
				limits[app.PackageName] = app.TimeLimit()
			}
		}
	}

	yellow := color.New(color.FgYellow)
	var total time.Duration
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PACKAGE\tTOTAL\tSESSIONS\tLIMIT")
	for _, usage := range usages {
		total += usage.Total()
		limit := "-"
		if l, ok := limits[usage.PackageName]; ok {
			limit = l.String()
			if usage.Total() >= l {
				limit = yellow.Sprint(limit)
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", usage.PackageName, usage.Total().Round(time.Second), usage.Sessions, limit)
	}
	_ = w.Flush()

	fmt.Fprintf(out, "\nTotal for %s: %s\n", date, total.Round(time.Second))
	return nil
}

func runSessions(cmd *cobra.Command, args []string) error {
	_, store, err := loadStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	filter := storage.SessionFilter{
		PackageName: sessionsPkg,
		Limit:       sessionsLimit,
	}
	if sessionsSince > 0 {
		since := time.Now().Add(-sessionsSince)
		filter.Since = &since
	}

	sessions, err := store.Sessions().ListSessions(context.Background(), filter)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tENDED\tDURATION\tPACKAGE")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			s.StartTime.Local().Format(time.DateTime),
			s.EndTime.Local().Format(time.TimeOnly),
			s.Duration().Round(time.Second),
			s.PackageName,
		)
	}
	return w.Flush()
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/screenguard/internal/storage"
	"github.com/spf13/cobra"
)

var (
	appsLimit time.Duration
	appsName  string
)

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "Manage limited apps",
	Long:  `List, set and remove the apps that have a continuous usage limit.`,
}

var appsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List limited apps",
	Args:  cobra.NoArgs,
	RunE:  runAppsList,
}

var appsSetCmd = &cobra.Command{
	Use:   "set [flags] PACKAGE",
	Short: "Add or update a limited app",
	Example: `  screenguard apps set --limit 30m com.example.video
  screenguard apps set --limit 1h --name "Video Player" com.example.video`,
	Args: cobra.ExactArgs(1),
	RunE: runAppsSet,
}

var appsRemoveCmd = &cobra.Command{
	Use:   "remove PACKAGE",
	Short: "Remove a limited app",
	Args:  cobra.ExactArgs(1),
	RunE:  runAppsRemove,
}

func init() {
	appsSetCmd.Flags().DurationVar(&appsLimit, "limit", 0, "Continuous usage limit (required)")
	appsSetCmd.Flags().StringVar(&appsName, "name", "", "Display name used in notifications")
	_ = appsSetCmd.MarkFlagRequired("limit")

	appsCmd.AddCommand(appsListCmd)
	appsCmd.AddCommand(appsSetCmd)
	appsCmd.AddCommand(appsRemoveCmd)
	rootCmd.AddCommand(appsCmd)
}

func runAppsList(cmd *cobra.Command, args []string) error {
	_, store, err := loadStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	apps, err := store.LimitedApps().GetAllLimitedAppsOnce(context.Background())
	if err != nil {
		return err
	}

	if len(apps) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No limited apps configured")
		return nil
	}

	writeApps(cmd.OutOrStdout(), apps)
	return nil
}

func runAppsSet(cmd *cobra.Command, args []string) error {
	_, store, err := loadStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	app := storage.LimitedApp{
		PackageName:     args[0],
		TimeLimitMillis: appsLimit.Milliseconds(),
		DisplayName:     appsName,
		UpdatedAt:       time.Now().UTC(),
	}
	if err := store.LimitedApps().Upsert(context.Background(), app); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	_, _ = green.Fprintf(cmd.OutOrStdout(), "✅ %s limited to %s\n", app.PackageName, app.TimeLimit())
	fmt.Fprintln(cmd.OutOrStdout(), "Send SIGHUP to a running daemon to apply the change.")
	return nil
}

func runAppsRemove(cmd *cobra.Command, args []string) error {
	_, store, err := loadStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	err = store.LimitedApps().Delete(context.Background(), args[0])
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s is not a limited app", args[0])
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed limit for %s\n", args[0])
	return nil
}

func writeApps(out io.Writer, apps []storage.LimitedApp) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PACKAGE\tLIMIT\tNAME\tUPDATED")
	for _, app := range apps {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			app.PackageName,
			app.TimeLimit(),
			app.DisplayName,
			app.UpdatedAt.Local().Format(time.RFC3339),
		)
	}
	_ = w.Flush()
}

package notify

import (
	"context"
	"errors"
	"time"

	"github.com/goodtune/screenguard/internal/storage"
	"github.com/rs/zerolog"
)

// Notifier presents limit interventions to the user
type Notifier interface {
	// ShowWarningNotification tells the user a limited app passed its limit
	ShowWarningNotification(ctx context.Context, app storage.LimitedApp, elapsed time.Duration) error
	// BringAppToForeground redirects the user away from the limited app
	BringAppToForeground(ctx context.Context, packageName string) error
	// ShowDissuasionToast shows a short message naming the limited app
	ShowDissuasionToast(ctx context.Context, name string) error
}

// LogNotifier writes interventions to the log
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a log-backed notifier
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) ShowWarningNotification(ctx context.Context, app storage.LimitedApp, elapsed time.Duration) error {
	n.logger.Warn().
		Str("package", app.PackageName).
		Dur("elapsed", elapsed).
		Dur("limit", app.TimeLimit()).
		Msg("Continuous usage limit reached")
	return nil
}

func (n *LogNotifier) BringAppToForeground(ctx context.Context, packageName string) error {
	n.logger.Warn().Str("package", packageName).Msg("Redirecting away from limited app")
	return nil
}

func (n *LogNotifier) ShowDissuasionToast(ctx context.Context, name string) error {
	n.logger.Warn().Str("name", name).Msg("Time for a break")
	return nil
}

// Multi fans a call out to every notifier and joins their errors
type Multi []Notifier

func (m Multi) ShowWarningNotification(ctx context.Context, app storage.LimitedApp, elapsed time.Duration) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.ShowWarningNotification(ctx, app, elapsed))
	}
	return errors.Join(errs...)
}

func (m Multi) BringAppToForeground(ctx context.Context, packageName string) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.BringAppToForeground(ctx, packageName))
	}
	return errors.Join(errs...)
}

func (m Multi) ShowDissuasionToast(ctx context.Context, name string) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.ShowDissuasionToast(ctx, name))
	}
	return errors.Join(errs...)
}

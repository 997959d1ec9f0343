package main

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/fatih/color"
	"github.com/goodtune/screenguard/internal/config"
	"github.com/spf13/cobra"
)

var (
	validateDump bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the screenguard configuration file for syntax and semantic errors.`,
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateDump, "dump", false, "Dump full configuration with defaults highlighted")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation failed: %v\n", err)
		return err
	}

	// Check for unknown keys (always, not just with --dump)
	unknownKeys, err := findUnknownKeys(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "⚠️  Warning: Could not check for unknown keys: %v\n", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "✅ Configuration is valid: %s\n", configPath)

	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)
		fmt.Fprintln(os.Stdout)
		_, _ = red.Fprintf(os.Stdout, "⚠️  WARNING: Found %d unknown configuration key(s):\n", len(unknownKeys))
		for _, key := range unknownKeys {
			_, _ = red.Fprintf(os.Stdout, "   - %s\n", key)
		}
		fmt.Fprintln(os.Stdout, "\nThese keys will be ignored and may indicate typos or deprecated settings.")
	}

	if validateDump {
		_, _ = fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
		_, _ = fmt.Fprintln(os.Stdout, "FULL CONFIGURATION (values different from defaults are highlighted)")
		_, _ = fmt.Fprintln(os.Stdout, strings.Repeat("=", 80))

		dumpConfig(cfg, getDefaultConfig())
	}

	return nil
}

// getDefaultConfig creates a configuration with default values
func getDefaultConfig() *config.Config {
	v := config.NewViper()
	config.SetDefaults(v)

	var cfg config.Config
	_ = v.Unmarshal(&cfg)

	return &cfg
}

// findUnknownKeys loads the config file and checks for unknown keys
func findUnknownKeys(configPath string) ([]string, error) {
	v := config.NewViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	validKeys := getValidKeys()

	unknown := []string{}
	for _, key := range v.AllKeys() {
		// Labels are free-form package names
		if strings.HasPrefix(key, "labels"+config.KeyDelimiter) {
			continue
		}
		if !validKeys[key] {
			unknown = append(unknown, strings.ReplaceAll(key, config.KeyDelimiter, "."))
		}
	}

	return unknown, nil
}

// getValidKeys returns the set of keys that carry a default
func getValidKeys() map[string]bool {
	v := config.NewViper()
	config.SetDefaults(v)

	keys := make(map[string]bool)
	for _, key := range v.AllKeys() {
		keys[key] = true
	}
	// No default, still valid
	keys["storage"+config.KeyDelimiter+"redis"+config.KeyDelimiter+"password"] = true
	return keys
}

// dumpConfig dumps configuration with color highlighting for non-default values
func dumpConfig(cfg, defaultCfg *config.Config) {
	yellow := color.New(color.FgYellow, color.Bold)
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan, color.Bold)

	_, _ = cyan.Println("\n[monitor]")
	dumpField("  probe", cfg.Monitor.Probe, defaultCfg.Monitor.Probe, yellow, green)
	dumpField("  interval", cfg.Monitor.Interval, defaultCfg.Monitor.Interval, yellow, green)
	dumpField("  buffer", cfg.Monitor.Buffer, defaultCfg.Monitor.Buffer, yellow, green)
	dumpField("  command", cfg.Monitor.Command, defaultCfg.Monitor.Command, yellow, green)
	dumpField("  screen_command", cfg.Monitor.ScreenCommand, defaultCfg.Monitor.ScreenCommand, yellow, green)
	dumpField("  file_path", cfg.Monitor.FilePath, defaultCfg.Monitor.FilePath, yellow, green)

	_, _ = cyan.Println("\n[limits]")
	dumpField("  source", cfg.Limits.Source, defaultCfg.Limits.Source, yellow, green)
	dumpField("  policy_dir", cfg.Limits.PolicyDir, defaultCfg.Limits.PolicyDir, yellow, green)
	dumpField("  reload_interval", cfg.Limits.ReloadInterval, defaultCfg.Limits.ReloadInterval, yellow, green)

	_, _ = cyan.Println("\n[tracking]")
	dumpField("  min_session_duration", cfg.Tracking.MinSessionDuration, defaultCfg.Tracking.MinSessionDuration, yellow, green)
	dumpField("  persist_timeout", cfg.Tracking.PersistTimeout, defaultCfg.Tracking.PersistTimeout, yellow, green)

	_, _ = cyan.Println("\n[notify]")
	dumpField("  log", cfg.Notify.Log, defaultCfg.Notify.Log, yellow, green)
	dumpField("  warning_command", cfg.Notify.WarningCommand, defaultCfg.Notify.WarningCommand, yellow, green)
	dumpField("  foreground_command", cfg.Notify.ForegroundCommand, defaultCfg.Notify.ForegroundCommand, yellow, green)
	dumpField("  dissuasion_command", cfg.Notify.DissuasionCommand, defaultCfg.Notify.DissuasionCommand, yellow, green)
	dumpField("  command_timeout", cfg.Notify.CommandTimeout, defaultCfg.Notify.CommandTimeout, yellow, green)
	dumpField("  label_cache_size", cfg.Notify.LabelCacheSize, defaultCfg.Notify.LabelCacheSize, yellow, green)

	if len(cfg.Labels) > 0 {
		_, _ = cyan.Println("\n[labels]")
		for pkg, label := range cfg.Labels {
			_, _ = yellow.Printf("  %s = %s\n", pkg, label)
		}
	}

	_, _ = cyan.Println("\n[storage]")
	dumpField("  type", cfg.Storage.Type, defaultCfg.Storage.Type, yellow, green)
	dumpField("  path", cfg.Storage.Path, defaultCfg.Storage.Path, yellow, green)
	_, _ = cyan.Println("  [storage.redis]")
	dumpField("    host", cfg.Storage.Redis.Host, defaultCfg.Storage.Redis.Host, yellow, green)
	dumpField("    port", cfg.Storage.Redis.Port, defaultCfg.Storage.Redis.Port, yellow, green)
	dumpField("    password", redactPassword(cfg.Storage.Redis.Password), redactPassword(defaultCfg.Storage.Redis.Password), yellow, green)
	dumpField("    db", cfg.Storage.Redis.DB, defaultCfg.Storage.Redis.DB, yellow, green)
	dumpField("    pool_size", cfg.Storage.Redis.PoolSize, defaultCfg.Storage.Redis.PoolSize, yellow, green)
	dumpField("    min_idle_conns", cfg.Storage.Redis.MinIdleConns, defaultCfg.Storage.Redis.MinIdleConns, yellow, green)
	dumpField("    dial_timeout", cfg.Storage.Redis.DialTimeout, defaultCfg.Storage.Redis.DialTimeout, yellow, green)
	dumpField("    read_timeout", cfg.Storage.Redis.ReadTimeout, defaultCfg.Storage.Redis.ReadTimeout, yellow, green)
	dumpField("    write_timeout", cfg.Storage.Redis.WriteTimeout, defaultCfg.Storage.Redis.WriteTimeout, yellow, green)

	_, _ = cyan.Println("\n[retention]")
	dumpField("  days", cfg.Retention.Days, defaultCfg.Retention.Days, yellow, green)
	dumpField("  daily_time", cfg.Retention.DailyTime, defaultCfg.Retention.DailyTime, yellow, green)

	_, _ = cyan.Println("\n[metrics]")
	dumpField("  enabled", cfg.Metrics.Enabled, defaultCfg.Metrics.Enabled, yellow, green)
	dumpField("  bind_address", cfg.Metrics.BindAddress, defaultCfg.Metrics.BindAddress, yellow, green)
	dumpField("  port", cfg.Metrics.Port, defaultCfg.Metrics.Port, yellow, green)

	_, _ = cyan.Println("\n[logging]")
	dumpField("  level", cfg.Logging.Level, defaultCfg.Logging.Level, yellow, green)
	dumpField("  format", cfg.Logging.Format, defaultCfg.Logging.Format, yellow, green)

	_, _ = fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
}

// dumpField prints a field with color if it differs from default
func dumpField(name string, value, defaultValue interface{}, modifiedColor, defaultColor *color.Color) {
	isDefault := reflect.DeepEqual(value, defaultValue)

	valueStr := fmt.Sprintf("%v", value)

	if isDefault {
		_, _ = defaultColor.Printf("%s = %s\n", name, valueStr)
	} else {
		_, _ = modifiedColor.Printf("%s = %s  (modified from default: %v)\n", name, valueStr, defaultValue)
	}
}

// redactPassword redacts password if not empty
func redactPassword(password string) string {
	if password == "" {
		return ""
	}
	return "***REDACTED***"
}

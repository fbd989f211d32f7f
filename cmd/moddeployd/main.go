package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/automationz/moddeployd/internal/config"
	"github.com/automationz/moddeployd/internal/engine"
	"github.com/automationz/moddeployd/internal/notify"
	"github.com/automationz/moddeployd/internal/state"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "moddeployd",
	Short: "Watch local game mod folders and deploy changes to a server",
	Long: `moddeployd watches a set of local mod folders for changes and automatically
deploys them to a game server over FTP, SFTP, or to a local directory.

Changes are debounced so that a mod still being edited is not shipped
half-written, and changes landing close together go out as one deployment.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the watch daemon",
	Long: `Run starts the long-running watch loop: every scan interval each enabled mod
folder is fingerprinted, detected changes are queued, and mature batches are
deployed over the configured transport.

State survives restarts; changes observed before a shutdown deploy once the
daemon is back up.`,
	RunE: runDaemon,
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a single detection pass and exit",
	Long: `Scan fingerprints every enabled mod folder once, records the result in the
state file, and reports which mods changed. Queued changes that are already
past their debounce are deployed before the command exits; fresher ones stay
queued for the next daemon run.`,
	RunE: runScan,
}

var testConnectionCmd = &cobra.Command{
	Use:   "test-connection",
	Short: "Verify the configured transport is reachable",
	Long: `Test-connection opens a session over the configured deploy mode (FTP login,
SFTP handshake, or local directory setup) and closes it again without
transferring anything.`,
	RunE: runTestConnection,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("moddeployd %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/moddeployd/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	// Add commands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(testConnectionCmd)
	rootCmd.AddCommand(versionCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := state.Load(cfg.StateFilePath())
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}

	notifier := notify.New(cfg.Discord, logger)
	eng := engine.New(cfg, store, notifier, logger)

	logger.Info("starting watch daemon", "version", version)
	if err := eng.Run(ctx); err != nil {
		logger.Error("watch daemon failed", "error", err)
		return err
	}

	return nil
}

func runScan(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := state.Load(cfg.StateFilePath())
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}

	eng := engine.New(cfg, store, notify.New(cfg.Discord, logger), logger)
	changed, err := eng.ScanNow(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	eng.Wait()

	if len(changed) > 0 {
		logger.Info("changes detected", "mods", changed)
	} else {
		logger.Info("no changes detected")
	}
	status := eng.Status()
	logger.Info("queue status", "pending", len(status.Pending), "busy", status.Busy)
	return nil
}

func runTestConnection(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := state.Load(cfg.StateFilePath())
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}

	eng := engine.New(cfg, store, notify.Nop{}, logger)
	if err := eng.TestConnection(ctx); err != nil {
		return err
	}

	logger.Info("connection ok", "mode", cfg.Deploy.Mode)
	return nil
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Create handler based on format
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	// A .env next to the working directory feeds ${VAR} expansion in the
	// config file, mainly for server passwords and the webhook URL.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to load .env file", "error", err)
	}

	configPath := cfgFile
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		configPath = fmt.Sprintf("%s/.config/moddeployd/config.yaml", home)
	}

	logger.Info("loading configuration", "path", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"mode", cfg.Deploy.Mode,
		"mods", len(cfg.Mods),
		"state_dir", cfg.State.Dir)

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}

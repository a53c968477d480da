package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/manudelosrios02/datalogger/internal/config"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	cfg          *config.Config
	cfgFile      string
	profile      string
	verboseLevel int
	logFile      io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "datalogger [label]",
	Short: "Electrical measurement datalogger",
	Long: `Datalogger samples two current/voltage sensors and an AC energy meter
at a fixed period and records the readings as CSV files.

Recording is controlled from the local console menu or over HTTP.

When a label is provided, it acts as 'datalogger record [label]'.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Bootstrap logging so config loading can report problems
		setupLogging(verboseLevel, config.Default().Log, nil)

		var err error
		cfg, err = config.Load(cfgFile, profile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		var file *lumberjack.Logger
		if cfg.Log.File.Path != "" {
			file = &lumberjack.Logger{
				Filename:   cfg.Log.File.Path,
				MaxSize:    cfg.Log.File.MaxSizeMB,
				MaxBackups: cfg.Log.File.MaxBackups,
				MaxAge:     cfg.Log.File.MaxAgeDays,
			}
			logFile = file
		}
		setupLogging(verboseLevel, cfg.Log, file)

		slog.Debug("Configuration loaded", "profile", cfg.Profile, "config", cfgFile)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logFile != nil {
			return logFile.Close()
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// If a label is provided, delegate to record command
		if len(args) == 1 {
			return recordCmd.RunE(cmd, args)
		}
		return cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/datalogger.yaml)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "configuration profile to use (overrides active_profile from file)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=config log level, 1=debug, 2=debug with source locations")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(infoCmd)
}

// setupLogging configures slog from the verbose level and the log section.
// A text handler is used on a terminal and JSON otherwise, unless the
// format is set explicitly. When file is set, records are copied to it.
func setupLogging(level int, lc config.LogConfig, file io.Writer) {
	slogLevel := parseLevel(lc.Level)
	if level >= 1 {
		slogLevel = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level:     slogLevel,
		AddSource: level >= 2,
	}

	var out io.Writer = os.Stderr
	if file != nil {
		out = io.MultiWriter(os.Stderr, file)
	}

	var handler slog.Handler
	switch resolveFormat(lc.Format, os.Stderr.Fd()) {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewTextHandler(out, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// resolveFormat maps "auto" to text on a terminal and json elsewhere.
func resolveFormat(format string, fd uintptr) string {
	switch strings.ToLower(format) {
	case "text", "json":
		return strings.ToLower(format)
	}
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return "text"
	}
	return "json"
}

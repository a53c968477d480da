package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record [label]",
	Short: "Run the logger with a recording already started",
	Long: `Run the logger exactly like 'run', starting a recording session named after
the label straight away. The label is sanitized into an 8.3 file name; use
'datalogger info [label]' to preview it. Press Ctrl+C to stop.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		label := args[0]
		slog.Info("Record command started", "label", label)
		return runLogger(cmd.Context(), loggerOptions{label: label, console: true})
	},
}

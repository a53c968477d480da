package cmd

import (
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the logger controlled over HTTP only",
	Long: `Run the logger without reading console input, for use as a system service.
Console messages are still kept and served at /log.

The server logs the local network URL for easy access from other devices.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
			cfg.HTTP.Listen = listen
		}
		return runLogger(cmd.Context(), loggerOptions{})
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "listen address (overrides http.listen)")
}

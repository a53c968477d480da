package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/manudelosrios02/datalogger/internal/command"
	"github.com/manudelosrios02/datalogger/internal/filename"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info [label]",
	Short: "Show the recording file name for a label and the resolved configuration",
	Long:  `Display the file a recording with the given label would write to, and the resolved configuration with inheritance indicators. Shows which values come from the built-in defaults, the default profile, the selected profile, globals or the environment.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		label := args[0]

		name, err := filename.Sanitize(label)
		if err != nil {
			return fmt.Errorf("label %q: %s", label, command.Describe(err))
		}

		fmt.Printf("=== FILE PATHS ===\n")
		fmt.Printf("file_name: %s\n", name)
		fmt.Printf("output: %s\n", filepath.Join(cfg.Storage.Directory, name))

		keys := cfg.Inheritance.Keys
		fmt.Printf("\n=== RESOLVED CONFIGURATION (%s) ===\n", cfg.Profile)

		fmt.Printf("\n[Storage]\n")
		fmt.Printf("directory: %s %s\n", cfg.Storage.Directory, getInheritanceIndicator(keys["storage.directory"]))

		fmt.Printf("\n[Sampling]\n")
		fmt.Printf("period: %s %s\n", cfg.Sampling.Period, getInheritanceIndicator(keys["sampling.period"]))
		fmt.Printf("live_refresh: %s %s\n", cfg.Sampling.LiveRefresh, getInheritanceIndicator(keys["sampling.live_refresh"]))

		fmt.Printf("\n[HTTP]\n")
		fmt.Printf("listen: %s %s\n", cfg.HTTP.Listen, getInheritanceIndicator(keys["http.listen"]))
		fmt.Printf("accept_timeout: %s %s\n", cfg.HTTP.AcceptTimeout, getInheritanceIndicator(keys["http.accept_timeout"]))
		fmt.Printf("metrics: %t %s\n", cfg.HTTP.MetricsEnabled(), getInheritanceIndicator(keys["http.metrics"]))

		fmt.Printf("\n[Console]\n")
		device := cfg.Console.Device
		if device == "" {
			device = "stdin/stdout"
		}
		fmt.Printf("device: %s %s\n", device, getInheritanceIndicator(keys["console.device"]))
		fmt.Printf("log_capacity: %d %s\n", cfg.Console.LogCapacity, getInheritanceIndicator(keys["console.log_capacity"]))

		fmt.Printf("\n[Sensors]\n")
		fmt.Printf("driver: %s %s\n", cfg.Sensors.Driver, getInheritanceIndicator(keys["sensors.driver"]))
		fmt.Printf("bus: %s %s\n", cfg.Sensors.Bus, getInheritanceIndicator(keys["sensors.bus"]))
		for i, ch := range cfg.Sensors.Channels {
			fmt.Printf("%d. name: %s %s\n", i+1, ch.Name, getInheritanceIndicator(cfg.Inheritance.Channels[ch.Name]))
			fmt.Printf("   address: %#x, shunt: %gΩ, max_current: %gA\n", ch.Address, ch.ShuntOhms, ch.MaxCurrent)
			fmt.Printf("   r_eq: %g, ratio: %g\n", ch.REq, ch.Ratio)
		}

		fmt.Printf("\n[Meter]\n")
		fmt.Printf("driver: %s %s\n", cfg.Meter.Driver, getInheritanceIndicator(keys["meter.driver"]))
		fmt.Printf("port: %s %s\n", cfg.Meter.Port, getInheritanceIndicator(keys["meter.port"]))
		fmt.Printf("address: %#x %s\n", cfg.Meter.Address, getInheritanceIndicator(keys["meter.address"]))

		fmt.Printf("\n[Log]\n")
		fmt.Printf("level: %s %s\n", cfg.Log.Level, getInheritanceIndicator(keys["log.level"]))
		fmt.Printf("format: %s %s\n", cfg.Log.Format, getInheritanceIndicator(keys["log.format"]))
		if cfg.Log.File.Path != "" {
			fmt.Printf("file: %s %s\n", cfg.Log.File.Path, getInheritanceIndicator(keys["log.file.path"]))
		}

		return nil
	},
}

// getInheritanceIndicator returns a formatted indicator for inheritance status
func getInheritanceIndicator(status string) string {
	switch status {
	case "builtin", "inherited", "profile-specific", "global", "env":
		return "[" + status + "]"
	default:
		return "[unknown]"
	}
}

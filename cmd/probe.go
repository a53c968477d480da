package cmd

import (
	"fmt"
	"time"

	"github.com/manudelosrios02/datalogger/internal/config"
	"github.com/manudelosrios02/datalogger/internal/record"
	"github.com/manudelosrios02/datalogger/internal/sensor"
	"github.com/manudelosrios02/datalogger/internal/sensor/pzem"
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Read the sensors and the energy meter without recording",
	Long: `Open the configured sensor channels and energy meter, take one or more
readings and print them in the recording format. Nothing is written to storage.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if list, _ := cmd.Flags().GetBool("drivers"); list {
			listDrivers()
			return nil
		}
		if reset, _ := cmd.Flags().GetBool("reset-energy"); reset {
			return resetEnergy(cfg)
		}

		count, _ := cmd.Flags().GetInt("count")
		if count < 1 {
			count = 1
		}

		set, closer, err := sensor.Open(cfg)
		if err != nil {
			return fmt.Errorf("failed to set up sensors: %w", err)
		}
		defer closer.Close()

		fmt.Println(record.Header)
		for i := 1; i <= count; i++ {
			if i > 1 {
				time.Sleep(cfg.Sampling.Period)
			}
			sample, err := set.Acquire(uint64(i) * uint64(cfg.Sampling.Period/time.Second))
			fmt.Println(record.Format(sample))
			for _, re := range sensor.ReadErrors(err) {
				fmt.Printf("# %s: %v\n", re.Device, re.Err)
			}
		}
		return nil
	},
}

func listDrivers() {
	channels, meters := sensor.AvailableDrivers()
	fmt.Printf("=== DRIVERS ===\n")
	fmt.Printf("sensors: %v (configured: %s)\n", channels, cfg.Sensors.Driver)
	fmt.Printf("meter: %v (configured: %s)\n", meters, cfg.Meter.Driver)
	fmt.Printf("\n=== CHANNELS ===\n")
	for i, ch := range cfg.Sensors.Channels {
		fmt.Printf("%d. %s address=%#x shunt=%gΩ max_current=%gA r_eq=%g ratio=%g\n",
			i+1, ch.Name, ch.Address, ch.ShuntOhms, ch.MaxCurrent, ch.REq, ch.Ratio)
	}
}

// resetEnergy clears the meter's accumulated energy register.
func resetEnergy(cfg *config.Config) error {
	if cfg.Meter.Driver != config.DriverPZEM {
		return fmt.Errorf("energy reset needs meter.driver %q, configured %q", config.DriverPZEM, cfg.Meter.Driver)
	}
	dev, err := pzem.Open(pzem.Config{
		Port:     cfg.Meter.Port,
		BaudRate: cfg.Meter.BaudRate,
		Address:  cfg.Meter.Address,
		Timeout:  cfg.Meter.Timeout,
	})
	if err != nil {
		return err
	}
	defer dev.Close()

	if err := dev.ResetEnergy(); err != nil {
		return fmt.Errorf("failed to reset energy counter: %w", err)
	}
	fmt.Println("Energy counter reset")
	return nil
}

func init() {
	probeCmd.Flags().IntP("count", "n", 1, "number of readings, one sampling period apart")
	probeCmd.Flags().Bool("drivers", false, "list built-in drivers and the configured channels")
	probeCmd.Flags().Bool("reset-energy", false, "reset the energy meter's accumulated energy")
}

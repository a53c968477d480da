package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/manudelosrios02/datalogger/internal/console"
	"github.com/manudelosrios02/datalogger/internal/metrics"
	"github.com/manudelosrios02/datalogger/internal/sensor"
	"github.com/manudelosrios02/datalogger/internal/server"
	"github.com/manudelosrios02/datalogger/internal/service"
	"github.com/manudelosrios02/datalogger/internal/storage"
	"github.com/mattn/go-isatty"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the logger with the console menu and the HTTP interface",
	Long: `Run the acquisition loop. Recording is started and stopped from the
console menu (stdin, or the serial device set in console.device) or over HTTP.
Press Ctrl+C to stop; an active recording is closed cleanly.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLogger(cmd.Context(), loggerOptions{console: true})
	},
}

type loggerOptions struct {
	// Label starts a recording as soon as the loop runs
	label string
	// Console enables the operator console; otherwise output only feeds /log
	console bool
}

// runLogger wires storage, sensors, the coordinator and the HTTP front-end,
// and blocks until SIGINT/SIGTERM. Only a failed listener aborts startup.
func runLogger(parent context.Context, opts loggerOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := server.Listen(cfg.HTTP.Listen)
	if err != nil {
		slog.Error("HTTP listener unavailable, refusing to run without remote access", "listen", cfg.HTTP.Listen, "error", err)
		return err
	}

	store := openStore(cfg.Storage.Directory)

	set, closer, err := sensor.Open(cfg)
	if err != nil {
		ln.Close()
		return fmt.Errorf("failed to set up sensors: %w", err)
	}
	defer closer.Close()

	var m *metrics.Metrics
	if cfg.HTTP.MetricsEnabled() {
		m = metrics.New()
	}

	var (
		in  io.Reader
		out io.Writer = io.Discard
	)
	if opts.console {
		in, out = os.Stdin, os.Stdout
		if cfg.Console.Device != "" {
			port, err := console.OpenSerial(console.SerialOptions{Device: cfg.Console.Device, BaudRate: cfg.Console.BaudRate})
			if err != nil {
				slog.Error("Serial console unavailable, falling back to stdin", "device", cfg.Console.Device, "error", err)
			} else {
				defer port.Close()
				in, out = port, port
			}
		} else if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
			slog.Info("Standard input is not a terminal, console commands are read as lines")
		}
	}

	con := console.New(out, console.NewLog(cfg.Console.LogCapacity))
	coord := service.New(store, set, con, service.Options{
		Period:      cfg.Sampling.Period,
		LiveRefresh: cfg.Sampling.LiveRefresh,
		Metrics:     m,
	})
	srv := server.New(coord, server.Options{
		AcceptTimeout: cfg.HTTP.AcceptTimeout,
		Metrics:       m,
	})

	var lines <-chan string
	if in != nil {
		lines = console.ReadLines(ctx, in)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ctx, ln)
		cancel()
	}()

	if opts.label != "" {
		go func() {
			if err := coord.Start(ctx, opts.label); err != nil {
				slog.Error("Initial recording not started", "label", opts.label, "error", err)
			}
		}()
	}

	slog.Info("Datalogger running",
		"profile", cfg.Profile,
		"storage", cfg.Storage.Directory,
		"period", cfg.Sampling.Period,
		"sensors", cfg.Sensors.Driver,
		"meter", cfg.Meter.Driver)

	if err := coord.Run(ctx, lines); err != nil {
		return err
	}
	if err := <-serveErr; err != nil {
		return fmt.Errorf("HTTP front-end failed: %w", err)
	}
	return nil
}

// openStore opens the recording directory. A directory that cannot be
// created is not fatal: session starts then report storage unavailable.
func openStore(dir string) storage.Store {
	store, err := storage.NewDir(dir)
	if err != nil {
		slog.Error("Storage unavailable", "directory", dir, "error", err)
		return storage.New(afero.NewBasePathFs(afero.NewOsFs(), dir))
	}
	return store
}

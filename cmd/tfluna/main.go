package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/banshee-data/tfluna/internal/config"
	"github.com/banshee-data/tfluna/internal/db"
	"github.com/banshee-data/tfluna/internal/luna"
	"github.com/banshee-data/tfluna/internal/metrics"
	"github.com/banshee-data/tfluna/internal/monitoring"
	"github.com/banshee-data/tfluna/internal/serialmux"
	"github.com/banshee-data/tfluna/internal/version"
)

var (
	configPath = flag.String("config", "", "Configuration file (default $TFLUNA_CONFIG or ./tfluna.yaml)")
	portFlag   = flag.String("port", "", "Serial port (overrides serial.port)")
	dbFlag     = flag.String("db", "", "Database path (overrides db.path)")
	devMode    = flag.Bool("dev", false, "Use a simulated sensor instead of a serial port")
)

// sensor is the part of a serial mux the commands drive.
type sensor interface {
	serialmux.SerialMuxInterface
	UseMetrics(*metrics.LunaMetrics)
	OnCommand(func(luna.CommandID, []byte, *luna.Response, error))
}

// app carries the loaded configuration and logger into each command.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	out    io.Writer
	sensor func() (sensor, error)
}

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "help":
		printUsage()
		return
	case "about":
		fmt.Println(version.String())
		return
	}

	a, cleanup, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.run(ctx, command, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errUsage) {
			printUsage()
		}
		cleanup()
		os.Exit(1)
	}
}

var errUsage = errors.New("usage")

func newApp() (*app, func(), error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, nil, err
	}
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *dbFlag != "" {
		cfg.DB.Path = *dbFlag
	}

	logger, err := monitoring.NewLogger(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	restore := monitoring.UseZap(logger)

	a := &app{cfg: cfg, log: logger, out: os.Stdout}
	a.sensor = func() (sensor, error) {
		if *devMode {
			return serialmux.NewMockSerialMux(), nil
		}
		mux, err := serialmux.OpenSerialMux(serialmux.RealPortFactory, cfg.Serial.Port, cfg.Serial.PortOptions())
		if err != nil {
			return nil, err
		}
		return mux, nil
	}

	cleanup := func() {
		restore()
		_ = logger.Sync()
	}
	return a, cleanup, nil
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "stream":
		return a.handleStream(ctx, args)
	case "version":
		return a.handleVersion(ctx, args)
	case "set-freq":
		return a.handleSetFreq(ctx, args)
	case "set-divisor":
		return a.handleSetDivisor(ctx, args)
	case "trigger":
		return a.handleTrigger(ctx, args)
	case "reset":
		return a.handleReset(ctx, args)
	case "serve":
		return a.handleServe(ctx, args)
	case "sessions":
		return a.handleSessions(args)
	case "stats":
		return a.handleStats(args)
	case "migrate":
		return db.RunMigrateCommand(args, a.cfg.DB.Path, a.out)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}

func printUsage() {
	fmt.Println(`tfluna - TF-Luna LIDAR serial tool

Usage: tfluna [global flags] <command> [options]

Commands:
  stream       Print telemetry frames (--record stores them, --count stops early, --units)
  version      Query the sensor firmware version
  set-freq     Set the output rate (--hz, 0 selects trigger mode)
  set-divisor  Set the output rate as 500/divisor (--divisor, 0 selects trigger mode)
  trigger      Stop continuous output
  reset        Soft reset the sensor
  serve        Run the admin HTTP server with live tail, metrics and recording
  sessions     List recorded sessions
  stats        Summarise a recorded session (--session, default latest, --units)
  migrate      Manage the database schema (tfluna migrate help)
  about        Show build information
  help         Show this help message

Global Flags:
  --config <file>  Configuration file (YAML, JSON or TOML)
  --port <path>    Serial port, overrides serial.port
  --db <path>      Database path, overrides db.path
  --dev            Use a simulated sensor

Environment variables prefixed with TFLUNA_ override the configuration file,
e.g. TFLUNA_SERIAL_PORT=/dev/ttyAMA0.`)
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"

	"opencv-bridge/internal/bridge"
	"opencv-bridge/internal/config"
	"opencv-bridge/internal/logger"
	"opencv-bridge/internal/shutdown"
)

const AppVersion = "1.0.0"

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "opencv-bridge: %v\n", err)
		}
		os.Exit(1)
	}
}

type command func(ctx context.Context, env *environment, args []string) error

type environment struct {
	cfg      config.Config
	logger   logger.Logger
	module   *bridge.Module
	shutdown *shutdown.Manager
	stdin    io.Reader
	stdout   io.Writer
	stderr   io.Writer
}

var commands = map[string]command{
	"segment": runSegment,
	"blur":    runBlur,
	"serve":   runServe,
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("opencv-bridge", flag.ContinueOnError)
	global.SetOutput(stderr)
	configPath := global.String("config", "", "path to a YAML configuration file")
	logLevel := global.String("log-level", "", "debug, info, warn or error (overrides config)")
	logFormat := global.String("log-format", "", "console or json (overrides config)")
	global.Usage = func() {
		fmt.Fprintf(stderr, "usage: opencv-bridge [flags] <segment|blur|serve> [command flags]\n\n")
		global.PrintDefaults()
	}

	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return errors.New("missing command")
	}

	name := global.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		global.Usage()
		return fmt.Errorf("unknown command %q", name)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	log := logger.New(stderr, level, cfg.Log.Format)

	module, err := bridge.New(cfg, bridge.WithLogger(log))
	if err != nil {
		return err
	}

	mgr := shutdown.NewManager(ctx, log)
	mgr.SetStepTimeout(cfg.Shutdown.StepTimeout)
	mgr.Register(module)
	mgr.Listen()
	defer mgr.Shutdown()

	log.Debug("Main", "starting command", map[string]interface{}{
		"command":    name,
		"version":    AppVersion,
		"go_version": runtime.Version(),
		"workers":    cfg.Workers,
		"metric":     cfg.Blur.Metric,
	})

	env := &environment{
		cfg:      cfg,
		logger:   log,
		module:   module,
		shutdown: mgr,
		stdin:    stdin,
		stdout:   stdout,
		stderr:   stderr,
	}
	return cmd(mgr.Context(), env, global.Args()[1:])
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hejijunhao/warden/internal/config"
	"github.com/hejijunhao/warden/internal/logging"
	"github.com/hejijunhao/warden/internal/scheduler"
	"github.com/hejijunhao/warden/internal/server"

	// Register connector implementations.
	_ "github.com/hejijunhao/warden/internal/connector/flyio"
	_ "github.com/hejijunhao/warden/internal/connector/vercel"

	// Register idempotence store backends.
	_ "github.com/hejijunhao/warden/internal/idempotence/memory"
	_ "github.com/hejijunhao/warden/internal/idempotence/redis"
	_ "github.com/hejijunhao/warden/internal/idempotence/sqlstore"
)

const usage = `usage: warden <command> [flags]

commands:
  run-once           run a single cycle and print its report
  start              run cycles on a schedule and serve /health, /status, /run
  test-connections   check the store, every target, the issue tracker and alert channels
  version            print the version
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "run-once":
		err = runOnce(args)
	case "start":
		err = start(args)
	case "test-connections":
		err = testConnections(args)
	case "version", "-version", "--version":
		fmt.Println("warden", config.Version)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "warden: unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "warden: %v\n", err)
		os.Exit(1)
	}
}

// setup loads and validates configuration and installs the default logger.
func setup() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	logging.Init(cfg.Log.Format, logging.ParseLevel(cfg.Log.Level))
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}
	return cfg, slog.Default(), nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			slog.Info("shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func runOnce(args []string) error {
	fs := flag.NewFlagSet("run-once", flag.ExitOnError)
	pretty := fs.Bool("pretty", true, "indent the report JSON")
	fs.Parse(args)

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	a, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	rep := a.coord.Run(ctx)

	enc := json.NewEncoder(os.Stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(rep)
}

func start(args []string) error {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	schedule := fs.String("schedule", "", "cron schedule, overrides WARDEN_SCHEDULE")
	addr := fs.String("addr", "", "status server address, overrides WARDEN_SERVER_ADDR; \"off\" disables it")
	runNow := fs.Bool("run-on-start", false, "run a cycle immediately")
	fs.Parse(args)

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	if *schedule != "" {
		cfg.Cycle.Schedule = *schedule
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *runNow {
		cfg.Cycle.RunOnStart = true
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := scheduler.New(cfg.Cycle.Schedule, a.coord,
		scheduler.WithRunOnStart(cfg.Cycle.RunOnStart), scheduler.WithLogger(logger))
	if err != nil {
		return err
	}

	var srv *server.Server
	if cfg.Server.Addr != "" && cfg.Server.Addr != "off" {
		opts := []server.Option{server.WithVersion(config.Version), server.WithLogger(logger)}
		for _, c := range a.checks() {
			opts = append(opts, server.WithCheck(c.name, server.PingFunc(c.ping)))
		}
		srv = server.New(cfg.Server.Addr, a.coord, opts...)
		srv.Start()
	}

	logger.Info("warden started",
		"version", config.Version,
		"targets", len(cfg.Targets),
		"schedule", cfg.Cycle.Schedule,
		"store", cfg.Store.Driver,
	)
	sched.Start()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	var errs []error
	if srv != nil {
		errs = append(errs, srv.Stop(shutdownCtx))
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Warn("cycle did not finish before shutdown timeout", "timeout", cfg.ShutdownTimeout)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func testConnections(args []string) error {
	fs := flag.NewFlagSet("test-connections", flag.ExitOnError)
	timeout := fs.Duration("timeout", 30*time.Second, "overall timeout")
	fs.Parse(args)

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	a, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	failed := 0
	report := func(name string, err error) {
		if err != nil {
			failed++
			fmt.Printf("FAIL  %-24s %v\n", name, err)
			return
		}
		fmt.Printf("ok    %s\n", name)
	}

	for _, t := range cfg.Targets {
		report("target:"+t.Label(), a.collector.Ping(ctx, t))
	}
	for _, c := range a.checks() {
		report(c.name, c.ping(ctx))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, len(cfg.Targets)+len(a.checks()))
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relayforge/relayforge/internal/adapter/executor"
	"github.com/relayforge/relayforge/internal/adapter/registry"
	"github.com/relayforge/relayforge/internal/app/supervisor"
	"github.com/relayforge/relayforge/internal/config"
	"github.com/relayforge/relayforge/internal/dashboard"
	"github.com/relayforge/relayforge/internal/logger"
	"github.com/relayforge/relayforge/internal/version"
	"github.com/relayforge/relayforge/pkg/profiler"
)

func main() {
	vlog := log.New(log.Writer(), "", 0)
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.PrintVersionInfo(true, vlog)
		os.Exit(0)
	}
	if len(os.Args) > 1 && os.Args[1] == "status" {
		addr := "http://127.0.0.1:8080"
		if len(os.Args) > 2 {
			addr = os.Args[2]
		}
		if err := dashboard.Run(addr); err != nil {
			fmt.Fprintf(os.Stderr, "dashboard exited: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}
	version.PrintVersionInfo(false, vlog)

	cfg, err := config.Load(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logInstance, styledLogger, cleanup, err := logger.NewWithTheme(&logger.Config{
		Level:      cfg.Logging.Level,
		LogDir:     cfg.Logging.LogDir,
		Theme:      cfg.Logging.Theme,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		FileOutput: cfg.Logging.FileOutput,
		PrettyLogs: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()
	slog.SetDefault(logInstance)

	styledLogger.Info("initialising", "version", version.Version, "pid", os.Getpid())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		styledLogger.Info("shutdown signal received", "signal", sig.String())
		cancel()
	}()

	startTime := time.Now()

	exec := executor.New(nil, executor.DefaultConfig(), styledLogger)

	reg, err := registry.New(ctx, cfg.Provider.DataSources, cfg.Provider.WasmDir, exec, styledLogger)
	if err != nil {
		logger.FatalWithLogger(logInstance, "failed to initialise provider registry", "err", err)
	}
	exec.SetRegistry(reg)

	if cfg.Server.ProfilerAddr != "" {
		profSrv := profiler.Start(cfg.Server.ProfilerAddr, styledLogger)
		defer profiler.Stop(profSrv)
	}

	sup := supervisor.New(cfg, reg, exec, styledLogger)

	runErr := sup.Run(ctx)

	styledLogger.Info("relayforged has shutdown", "uptime", time.Since(startTime).String())

	switch {
	case runErr == nil:
		os.Exit(0)
	default:
		styledLogger.Error("session unrecoverable after retries exhausted", "err", runErr)
		os.Exit(2)
	}
}

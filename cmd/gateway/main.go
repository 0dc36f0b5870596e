package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mohammed-shakir/cartodb-adapter/internal/app"
	"github.com/mohammed-shakir/cartodb-adapter/internal/core/config"
	"github.com/mohammed-shakir/cartodb-adapter/internal/core/observability"
	"github.com/mohammed-shakir/cartodb-adapter/internal/core/server"
	"github.com/mohammed-shakir/cartodb-adapter/internal/logger"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configFlag := flag.String("config", os.Getenv("CONFIG_FILE"), "optional YAML config file")
	flag.Parse()

	// a missing .env is fine; the environment may already be set
	_ = godotenv.Load()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		zl := logger.Build(logger.Config{Component: "gateway"}, os.Stderr)
		zl.Error().Err(err).Msg("load config")
		return 1
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "gateway",
		Account:   cfg.Carto.Account,
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(Version)
	appLog.Info("starting gateway",
		"addr", cfg.Addr,
		"version", Version,
		"backend", cfg.Backend,
		"cache", cfg.Cache.Driver,
		"events", cfg.Events.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, appLog)
	if err != nil {
		appLog.Error("setup failed", "err", err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			appLog.Error("shutdown", "err", err)
		}
	}()

	if a.Consumer != nil {
		go func() {
			if err := a.Consumer.Start(ctx); err != nil {
				appLog.Error("change event consumer stopped", "err", err)
			}
		}()
	}

	if err := server.Run(ctx, cfg.Addr, appLog, server.Handler(appLog, a.Adapter, a.Checks)); err != nil {
		appLog.Error("server exited", "err", err)
		return 1
	}
	appLog.Info("gateway stopped")
	return 0
}

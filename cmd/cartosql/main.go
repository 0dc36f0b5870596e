// Command cartosql runs single record operations against a CARTO account.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/mohammed-shakir/cartodb-adapter/internal/app"
	"github.com/mohammed-shakir/cartodb-adapter/internal/core/config"
	"github.com/mohammed-shakir/cartodb-adapter/internal/core/router"
	"github.com/mohammed-shakir/cartodb-adapter/internal/logger"
)

var Version = "dev"

func main() {
	_ = godotenv.Load()

	root := newRootCommand(os.Stdout, openApp)
	root.Version = Version
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openApp builds the adapter from env and the optional YAML file; logs go to stderr
func openApp(ctx context.Context, configPath string, verbose bool) (router.Store, func() error, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	level := "warn"
	if verbose {
		level = "debug"
	}
	zl := logger.Build(logger.Config{Level: level, Console: true, Component: "cartosql"}, os.Stderr)

	a, err := app.Build(ctx, cfg, logger.NewSlog(&zl))
	if err != nil {
		return nil, nil, err
	}
	return a.Adapter, a.Close, nil
}

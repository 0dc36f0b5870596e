// Package app assembles the adapter and its optional collaborators from
// configuration. Both binaries share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mohammed-shakir/cartodb-adapter/internal/cache"
	"github.com/mohammed-shakir/cartodb-adapter/internal/cache/memory"
	"github.com/mohammed-shakir/cartodb-adapter/internal/cache/redisstore"
	"github.com/mohammed-shakir/cartodb-adapter/internal/changeevents"
	"github.com/mohammed-shakir/cartodb-adapter/internal/core/config"
	"github.com/mohammed-shakir/cartodb-adapter/internal/core/health"
	"github.com/mohammed-shakir/cartodb-adapter/internal/core/httpclient"
	"github.com/mohammed-shakir/cartodb-adapter/internal/executor"
	"github.com/mohammed-shakir/cartodb-adapter/internal/executor/cached"
	"github.com/mohammed-shakir/cartodb-adapter/internal/executor/postgres"
	"github.com/mohammed-shakir/cartodb-adapter/internal/executor/sqlapi"
	"github.com/mohammed-shakir/cartodb-adapter/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/cartodb-adapter/pkg/cartodb"
)

type App struct {
	Adapter *cartodb.Adapter
	Checks  map[string]health.Check
	// Consumer is set when change events from other instances should bump
	// the local cache; the caller runs Start.
	Consumer *kafkaconsumer.Consumer

	closers []io.Closer
}

// Build wires the configured backend, cache and event publisher around
// one adapter. Close releases whatever was opened, also after a failed Build.
func Build(ctx context.Context, cfg config.Config, log *slog.Logger) (_ *App, err error) {
	app := &App{Checks: map[string]health.Check{}}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	notFound, err := cartodb.ParseNotFoundPolicy(cfg.Carto.NotFound)
	if err != nil {
		return nil, err
	}
	writeMode, err := cartodb.ParseWriteMode(cfg.Carto.WriteMode)
	if err != nil {
		return nil, err
	}

	exec, err := app.backend(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	store, err := app.cacheStore(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}
	if store == nil && cfg.Events.Consume {
		return nil, errors.New("app: EVENTS_CONSUME requires CACHE_DRIVER memory or redis")
	}
	if store != nil {
		exec = cached.New(exec, store, cfg.Cache.TTL, log.With("component", "cache"))
		log.Info("result cache enabled", "driver", cfg.Cache.Driver, "ttl", cfg.Cache.TTL.String())
		if cfg.Events.Consume {
			kc := kafkaconsumer.DefaultConfig(cfg.Events.BrokerList(), cfg.Events.Topic, cfg.Events.GroupID)
			app.Consumer = kafkaconsumer.New(kc, log.With("component", "kafka_consumer"), store)
		}
	}

	opts := []cartodb.Option{cartodb.WithLogger(log)}
	if cfg.Events.Enabled {
		pub, err := changeevents.NewPublisher(cfg.Events.BrokerList(), cfg.Events.Topic, 1024, cfg.Events.H3Res, log.With("component", "changeevents"))
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, pub)
		opts = append(opts, cartodb.WithNotifier(pub))
		log.Info("change events enabled", "topic", cfg.Events.Topic, "h3_res", cfg.Events.H3Res)
	}

	app.Adapter, err = cartodb.New(cartodb.Config{
		TablePrefix: cfg.Carto.TablePrefix,
		NotFound:    notFound,
		WriteMode:   writeMode,
	}, exec, opts...)
	if err != nil {
		return nil, err
	}
	return app, nil
}

func (a *App) backend(ctx context.Context, cfg config.Config, log *slog.Logger) (executor.Interface, error) {
	switch cfg.Backend {
	case "", "sqlapi":
		sc := sqlapi.Config{
			Account: cfg.Carto.Account,
			APIKey:  cfg.Carto.APIKey,
			Domain:  cfg.Carto.Domain,
			Scheme:  cfg.Carto.Scheme,
		}
		a.Checks["carto"] = func(context.Context) error {
			_, err := sqlapi.Endpoint(sc)
			return err
		}
		client := httpclient.NewOutbound(cfg.HTTPTimeout, httpclient.WithUserAgent("cartodb-gateway"))
		return sqlapi.New(sc, client,
			sqlapi.WithLogger(log.With("component", "sqlapi")),
			sqlapi.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
		), nil
	case "postgres":
		pg, err := postgres.Open(ctx, cfg.DatabaseURL, log.With("component", "postgres"))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg)
		a.Checks["postgres"] = pg.Ping
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown backend %q (want sqlapi|postgres)", cfg.Backend)
	}
}

func (a *App) cacheStore(ctx context.Context, cfg config.CacheCfg) (cache.Store, error) {
	var store cache.Store
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "memory":
		store = memory.New(cfg.Size, cfg.TTL)
	case "redis":
		rc, err := redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		store = rc
		a.Checks["redis"] = func(ctx context.Context) error {
			_, err := rc.Generation(ctx, "readyz")
			return err
		}
	default:
		return nil, fmt.Errorf("unknown cache driver %q (want none|memory|redis)", cfg.Driver)
	}
	a.closers = append(a.closers, store)
	return store, nil
}

// Close flushes the event publisher and releases connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Package cached decorates an executor with a read-through result cache.
//
// Results are keyed by statement and table generation. Every successful
// write bumps the generation of its table, so reads issued after a write
// never see results cached before it.
package cached

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mohammed-shakir/cartodb-adapter/internal/cache"
	"github.com/mohammed-shakir/cartodb-adapter/internal/cache/keys"
	"github.com/mohammed-shakir/cartodb-adapter/internal/core/model"
	"github.com/mohammed-shakir/cartodb-adapter/internal/core/observability"
	"github.com/mohammed-shakir/cartodb-adapter/internal/executor"
	"github.com/mohammed-shakir/cartodb-adapter/internal/sqlgen"
)

type Executor struct {
	next   executor.Interface
	store  cache.Store
	ttl    time.Duration
	logger *slog.Logger
}

var _ executor.Interface = (*Executor)(nil)

func New(next executor.Interface, store cache.Store, ttl time.Duration, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{next: next, store: store, ttl: ttl, logger: logger}
}

func (e *Executor) CheckWrite() error { return e.next.CheckWrite() }

// QueryFeatures serves from the cache when possible. Cache failures are
// logged and the statement goes upstream.
func (e *Executor) QueryFeatures(ctx context.Context, st sqlgen.Statement) (model.FeatureCollection, error) {
	gen, err := e.store.Generation(ctx, st.Table)
	if err != nil {
		observability.IncCacheError()
		e.logger.WarnContext(ctx, "cache generation lookup failed", "err", err)
		return e.next.QueryFeatures(ctx, st)
	}
	key := keys.Key(st.Table, gen, st)

	b, ok, err := e.store.Get(ctx, key)
	switch {
	case err != nil:
		observability.IncCacheError()
		e.logger.WarnContext(ctx, "cache get failed", "key", key, "err", err)
	case ok:
		var fc model.FeatureCollection
		if err := json.Unmarshal(b, &fc); err == nil {
			observability.IncCacheHit()
			if fc.Features == nil {
				fc.Features = []model.Record{}
			}
			return fc, nil
		}
		observability.IncCacheError()
		e.logger.WarnContext(ctx, "cached entry unreadable", "key", key)
	default:
		observability.IncCacheMiss()
	}

	fc, err := e.next.QueryFeatures(ctx, st)
	if err != nil {
		return model.FeatureCollection{}, err
	}
	if b, err := json.Marshal(fc); err == nil {
		if err := e.store.Set(ctx, key, b, e.ttl); err != nil {
			observability.IncCacheError()
			e.logger.WarnContext(ctx, "cache set failed", "key", key, "err", err)
		}
	}
	return fc, nil
}

// Exec always goes upstream and bumps the table generation once it succeeds.
func (e *Executor) Exec(ctx context.Context, st sqlgen.Statement) (model.WriteResult, error) {
	res, err := e.next.Exec(ctx, st)
	if err != nil {
		return res, err
	}
	if err := e.store.Bump(ctx, st.Table); err != nil {
		observability.IncCacheError()
		e.logger.ErrorContext(ctx, "cache generation bump failed", "table", st.Table, "err", err)
	}
	return res, nil
}

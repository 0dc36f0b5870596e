// Package postgres executes statements directly against a PostGIS database
// that holds CARTO-style tables.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/mohammed-shakir/cartodb-adapter/internal/core/model"
	"github.com/mohammed-shakir/cartodb-adapter/internal/core/observability"
	"github.com/mohammed-shakir/cartodb-adapter/internal/executor"
	"github.com/mohammed-shakir/cartodb-adapter/internal/sqlgen"
)

const upstreamName = "postgres"

type Executor struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ executor.Interface = (*Executor)(nil)

// Open connects with the lib/pq driver and pings before returning.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Executor, error) {
	if dsn == "" {
		return nil, errors.New("database url is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(db, logger), nil
}

func New(db *sql.DB, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{db: db, logger: logger}
}

// CheckWrite always passes; access is governed by the database role.
func (e *Executor) CheckWrite() error { return nil }

func (e *Executor) Ping(ctx context.Context) error { return e.db.PingContext(ctx) }

func (e *Executor) Close() error { return e.db.Close() }

// featuresQuery wraps a row query so the database assembles the GeoJSON
// FeatureCollection the SQL API would have returned.
func featuresQuery(inner string) string {
	return `SELECT json_build_object(` +
		`'type', 'FeatureCollection', ` +
		`'features', COALESCE(json_agg(json_build_object(` +
		`'type', 'Feature', ` +
		`'geometry', ST_AsGeoJSON(q.` + model.ColumnGeom + `)::json, ` +
		`'properties', to_jsonb(q) - '` + model.ColumnGeom + `' - '` + model.ColumnGeomWebMercator + `'` +
		`)), '[]'::json)) FROM (` + inner + `) AS q`
}

func (e *Executor) QueryFeatures(ctx context.Context, st sqlgen.Statement) (model.FeatureCollection, error) {
	e.logger.DebugContext(ctx, "postgres query", "table", st.Table, "sql", st.SQL)

	start := time.Now()
	var raw []byte
	err := e.db.QueryRowContext(ctx, featuresQuery(st.SQL), st.Args...).Scan(&raw)
	observability.ObserveUpstreamLatency(upstreamName, time.Since(start).Seconds())
	if err != nil {
		return model.FeatureCollection{}, describe(err)
	}

	var fc model.FeatureCollection
	if err := json.Unmarshal(raw, &fc); err != nil {
		return model.FeatureCollection{}, fmt.Errorf("decode feature collection: %w", err)
	}
	if fc.Features == nil {
		fc.Features = []model.Record{}
	}
	return fc, nil
}

func (e *Executor) Exec(ctx context.Context, st sqlgen.Statement) (model.WriteResult, error) {
	e.logger.DebugContext(ctx, "postgres exec", "table", st.Table, "sql", st.SQL, "returning", st.Returning)

	start := time.Now()
	defer func() { observability.ObserveUpstreamLatency(upstreamName, time.Since(start).Seconds()) }()

	if !st.Returning {
		res, err := e.db.ExecContext(ctx, st.SQL, st.Args...)
		if err != nil {
			return model.WriteResult{}, describe(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return model.WriteResult{}, fmt.Errorf("rows affected: %w", err)
		}
		return model.WriteResult{TotalRows: int(n), Time: time.Since(start).Seconds()}, nil
	}

	rows, err := e.db.QueryContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return model.WriteResult{}, describe(err)
	}
	defer func() { _ = rows.Close() }()

	out, err := scanMaps(rows)
	if err != nil {
		return model.WriteResult{}, describe(err)
	}
	return model.WriteResult{TotalRows: len(out), Rows: out, Time: time.Since(start).Seconds()}, nil
}

func scanMaps(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []map[string]any{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = columnValue(vals[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// columnValue turns driver text into strings so rows match what the SQL API
// decodes from JSON
func columnValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// describe keeps the SQLSTATE of server errors in the message
func describe(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("postgres %s (%s): %w", pqErr.Code.Name(), pqErr.Code, err)
	}
	return err
}

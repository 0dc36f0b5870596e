// Package cartodb persists and queries model records in CARTO tables.
//
// Each operation builds one parameterized statement, runs it through an
// executor (the CARTO SQL API or a direct PostGIS connection) and maps the
// GeoJSON features or returned rows back into records.
package cartodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mohammed-shakir/cartodb-adapter/internal/core/model"
	"github.com/mohammed-shakir/cartodb-adapter/internal/core/observability"
	"github.com/mohammed-shakir/cartodb-adapter/internal/executor"
	"github.com/mohammed-shakir/cartodb-adapter/internal/logger"
	"github.com/mohammed-shakir/cartodb-adapter/internal/sqlgen"
	"github.com/mohammed-shakir/cartodb-adapter/internal/tablename"
)

// NotFoundPolicy decides what FindByID returns when no row matches.
type NotFoundPolicy string

const (
	// NotFoundError fails with ErrNotFound.
	NotFoundError NotFoundPolicy = "error"
	// NotFoundStub returns a record carrying only the requested id.
	NotFoundStub NotFoundPolicy = "stub"
)

// WriteMode decides how a written row is read back.
type WriteMode string

const (
	// WriteReturning reads the row from the statement's RETURNING clause.
	WriteReturning WriteMode = "returning"
	// WriteRequery issues a second SELECT for the affected row.
	WriteRequery WriteMode = "requery"
)

// Operation names used in errors, logs and metrics.
const (
	OpFindAll   = "find_all"
	OpFindQuery = "find_query"
	OpFindByID  = "find_by_id"
	OpCreate    = "create"
	OpUpdate    = "update"
	OpDelete    = "delete"
)

type Config struct {
	TablePrefix string
	NotFound    NotFoundPolicy
	WriteMode   WriteMode
}

// Notifier is told about every successful write.
type Notifier interface {
	RecordChanged(ctx context.Context, op, table string, rec model.Record)
}

type Option func(*Adapter)

func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(a *Adapter) { a.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		if now != nil {
			a.now = now
		}
	}
}

type Adapter struct {
	cfg      Config
	exec     executor.Interface
	logger   *slog.Logger
	notifier Notifier
	now      func() time.Time
}

func New(cfg Config, exec executor.Interface, opts ...Option) (*Adapter, error) {
	if exec == nil {
		return nil, errors.New("cartodb: executor is required")
	}
	switch cfg.NotFound {
	case "":
		cfg.NotFound = NotFoundError
	case NotFoundError, NotFoundStub:
	default:
		return nil, fmt.Errorf("cartodb: unknown not-found policy %q", cfg.NotFound)
	}
	switch cfg.WriteMode {
	case "":
		cfg.WriteMode = WriteReturning
	case WriteReturning, WriteRequery:
	default:
		return nil, fmt.Errorf("cartodb: unknown write mode %q", cfg.WriteMode)
	}
	a := &Adapter{
		cfg:    cfg,
		exec:   exec,
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

func (a *Adapter) Config() Config { return a.cfg }

// BuildTableName returns the table backing typeName.
func (a *Adapter) BuildTableName(typeName string) string {
	return tablename.Build(typeName, a.cfg.TablePrefix)
}

func (a *Adapter) FindAll(ctx context.Context, typeName string) (fc model.FeatureCollection, err error) {
	table := a.BuildTableName(typeName)
	ctx, done := a.begin(ctx, OpFindAll, table)
	defer func() { done(err) }()

	return a.query(ctx, OpFindAll, sqlgen.SelectAll(), table, nil)
}

// FindQuery selects rows whose columns equal every value in filter.
func (a *Adapter) FindQuery(ctx context.Context, typeName string, filter map[string]any) (fc model.FeatureCollection, err error) {
	table := a.BuildTableName(typeName)
	ctx, done := a.begin(ctx, OpFindQuery, table)
	defer func() { done(err) }()

	tpl, err := sqlgen.SelectWhere(filter)
	if err != nil {
		return model.FeatureCollection{}, &OpError{Op: OpFindQuery, Table: table, Err: err}
	}
	return a.query(ctx, OpFindQuery, tpl, table, nil)
}

func (a *Adapter) FindByID(ctx context.Context, typeName string, id int64) (rec model.Record, err error) {
	table := a.BuildTableName(typeName)
	ctx, done := a.begin(ctx, OpFindByID, table)
	defer func() { done(err) }()

	fc, err := a.query(ctx, OpFindByID, sqlgen.SelectByID(), table, &id)
	if err != nil {
		return model.Record{}, err
	}
	if len(fc.Features) == 0 {
		if a.cfg.NotFound == NotFoundStub {
			return model.Record{ID: id}, nil
		}
		return model.Record{}, &OpError{Op: OpFindByID, Table: table, ID: id, Err: ErrNotFound}
	}
	return fc.Features[0], nil
}

func (a *Adapter) CreateRecord(ctx context.Context, typeName string, rec model.Record) (out model.Record, err error) {
	table := a.BuildTableName(typeName)
	ctx, done := a.begin(ctx, OpCreate, table)
	defer func() { done(err) }()

	fail := func(err error) (model.Record, error) {
		return model.Record{}, &OpError{Op: OpCreate, Table: table, Err: err}
	}
	if err := a.exec.CheckWrite(); err != nil {
		return fail(err)
	}
	cols, err := sqlgen.SerializeAttributes(rec)
	if err != nil {
		return fail(err)
	}
	st, err := sqlgen.Insert(cols, a.returning()).Resolve(table, nil)
	if err != nil {
		return fail(err)
	}
	res, err := a.exec.Exec(ctx, st)
	if err != nil {
		return fail(err)
	}
	if res.TotalRows != 1 {
		return fail(rowCountError(ErrCreateFailed, res.TotalRows))
	}
	out, err = a.readBack(ctx, res, sqlgen.SelectLatest(), table, nil, ErrCreateFailed)
	if err != nil {
		return fail(err)
	}
	a.notify(ctx, OpCreate, table, out)
	return out, nil
}

func (a *Adapter) UpdateRecord(ctx context.Context, typeName string, rec model.Record) (out model.Record, err error) {
	table := a.BuildTableName(typeName)
	ctx, done := a.begin(ctx, OpUpdate, table)
	defer func() { done(err) }()

	id := rec.ID
	fail := func(err error) (model.Record, error) {
		return model.Record{}, &OpError{Op: OpUpdate, Table: table, ID: id, Err: err}
	}
	if err := a.exec.CheckWrite(); err != nil {
		return fail(err)
	}
	cols, err := sqlgen.SerializeAttributes(rec)
	if err != nil {
		return fail(err)
	}
	tpl, err := sqlgen.Update(cols, a.returning())
	if err != nil {
		return fail(err)
	}
	st, err := tpl.Resolve(table, &id)
	if err != nil {
		return fail(err)
	}
	res, err := a.exec.Exec(ctx, st)
	if err != nil {
		return fail(err)
	}
	if res.TotalRows != 1 {
		return fail(rowCountError(ErrUpdateFailed, res.TotalRows))
	}
	out, err = a.readBack(ctx, res, sqlgen.SelectByID(), table, &id, ErrUpdateFailed)
	if err != nil {
		return fail(err)
	}
	a.notify(ctx, OpUpdate, table, out)
	return out, nil
}

// DeleteRecord removes the row with rec.ID and returns a record carrying only that id.
func (a *Adapter) DeleteRecord(ctx context.Context, typeName string, rec model.Record) (out model.Record, err error) {
	table := a.BuildTableName(typeName)
	ctx, done := a.begin(ctx, OpDelete, table)
	defer func() { done(err) }()

	id := rec.ID
	fail := func(err error) (model.Record, error) {
		return model.Record{}, &OpError{Op: OpDelete, Table: table, ID: id, Err: err}
	}
	if err := a.exec.CheckWrite(); err != nil {
		return fail(err)
	}
	st, err := sqlgen.Delete().Resolve(table, &id)
	if err != nil {
		return fail(err)
	}
	res, err := a.exec.Exec(ctx, st)
	if err != nil {
		return fail(err)
	}
	if res.TotalRows != 1 {
		return fail(rowCountError(ErrDeleteFailed, res.TotalRows))
	}
	// the deleted geometry is still useful to downstream spatial consumers
	a.notify(ctx, OpDelete, table, model.Record{ID: id, Geometry: rec.Geometry})
	return model.Record{ID: id}, nil
}

func (a *Adapter) returning() bool { return a.cfg.WriteMode == WriteReturning }

func (a *Adapter) query(ctx context.Context, op string, tpl sqlgen.Template, table string, id *int64) (model.FeatureCollection, error) {
	var rid int64
	if id != nil {
		rid = *id
	}
	st, err := tpl.Resolve(table, id)
	if err != nil {
		return model.FeatureCollection{}, &OpError{Op: op, Table: table, ID: rid, Err: err}
	}
	fc, err := a.exec.QueryFeatures(ctx, st)
	if err != nil {
		return model.FeatureCollection{}, &OpError{Op: op, Table: table, ID: rid, Err: err}
	}
	return adoptIDs(fc), nil
}

// readBack maps the written row, either from RETURNING rows or by re-querying
func (a *Adapter) readBack(ctx context.Context, res model.WriteResult, requery sqlgen.Template, table string, id *int64, sentinel error) (model.Record, error) {
	if a.returning() {
		if len(res.Rows) == 0 {
			return model.Record{}, fmt.Errorf("%w: no row returned", sentinel)
		}
		return NormalizeRow(res.Rows[0])
	}
	st, err := requery.Resolve(table, id)
	if err != nil {
		return model.Record{}, err
	}
	fc, err := a.exec.QueryFeatures(ctx, st)
	if err != nil {
		return model.Record{}, fmt.Errorf("re-query: %w", err)
	}
	if len(fc.Features) != 1 {
		return model.Record{}, fmt.Errorf("%w: re-query matched %d rows", sentinel, len(fc.Features))
	}
	return adoptIDs(fc).Features[0], nil
}

func (a *Adapter) notify(ctx context.Context, op, table string, rec model.Record) {
	if a.notifier == nil {
		return
	}
	a.notifier.RecordChanged(ctx, op, table, rec)
}

// begin tags ctx with op and table; the returned func logs and observes the outcome
func (a *Adapter) begin(ctx context.Context, op, table string) (context.Context, func(error)) {
	ctx = logger.WithOp(ctx, op)
	ctx = logger.WithTable(ctx, table)
	start := a.now()
	return ctx, func(err error) {
		dur := a.now().Sub(start)
		observability.ObserveOperation(op, err, dur.Seconds())
		if err != nil {
			a.logger.WarnContext(ctx, "cartodb operation failed", "err", err, "duration", dur.String())
			return
		}
		a.logger.DebugContext(ctx, "cartodb operation done", "duration", dur.String())
	}
}

// ParseNotFoundPolicy accepts "error" or "stub", case-insensitively.
func ParseNotFoundPolicy(s string) (NotFoundPolicy, error) {
	switch p := NotFoundPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", NotFoundError:
		return NotFoundError, nil
	case NotFoundStub:
		return p, nil
	default:
		return "", fmt.Errorf("unknown not-found policy %q (want error|stub)", s)
	}
}

// ParseWriteMode accepts "returning" or "requery", case-insensitively.
func ParseWriteMode(s string) (WriteMode, error) {
	switch m := WriteMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", WriteReturning:
		return WriteReturning, nil
	case WriteRequery:
		return m, nil
	default:
		return "", fmt.Errorf("unknown write mode %q (want returning|requery)", s)
	}
}

package cached

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mohammed-shakir/cartodb-adapter/internal/cache/memory"
	"github.com/mohammed-shakir/cartodb-adapter/internal/core/model"
	"github.com/mohammed-shakir/cartodb-adapter/internal/sqlgen"
)

type countingExec struct {
	reads, writes int
	name          string
}

func (c *countingExec) QueryFeatures(context.Context, sqlgen.Statement) (model.FeatureCollection, error) {
	c.reads++
	return model.FeatureCollection{Type: "FeatureCollection", Features: []model.Record{
		{ID: 1, Properties: map[string]any{"cartodb_id": float64(1), "name": c.name}},
	}}, nil
}

func (c *countingExec) Exec(context.Context, sqlgen.Statement) (model.WriteResult, error) {
	c.writes++
	return model.WriteResult{TotalRows: 1}, nil
}

func (c *countingExec) CheckWrite() error { return nil }

// brokenStore fails every call
type brokenStore struct{}

var errStore = errors.New("store down")

func (brokenStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, errStore }
func (brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return errStore
}
func (brokenStore) Generation(context.Context, string) (int64, error) { return 0, errStore }
func (brokenStore) Bump(context.Context, string) error              { return errStore }
func (brokenStore) Close() error                                    { return nil }

var sel = sqlgen.Statement{SQL: `SELECT * FROM "playgrounds"`, Table: "playgrounds"}

func TestQueryFeatures_ReadThrough(t *testing.T) {
	inner := &countingExec{name: "a"}
	e := New(inner, memory.New(16, time.Minute), time.Minute, nil)
	ctx := context.Background()

	for range 3 {
		fc, err := e.QueryFeatures(ctx, sel)
		if err != nil {
			t.Fatalf("QueryFeatures: %v", err)
		}
		if len(fc.Features) != 1 || fc.Features[0].ID != 1 || fc.Features[0].Properties["name"] != "a" {
			t.Fatalf("unexpected collection %+v", fc)
		}
	}
	if inner.reads != 1 {
		t.Fatalf("upstream reads=%d want 1", inner.reads)
	}
}

func TestExec_InvalidatesTable(t *testing.T) {
	inner := &countingExec{name: "before"}
	e := New(inner, memory.New(16, time.Minute), time.Minute, nil)
	ctx := context.Background()

	if _, err := e.QueryFeatures(ctx, sel); err != nil {
		t.Fatalf("QueryFeatures: %v", err)
	}
	if _, err := e.Exec(ctx, sqlgen.Statement{SQL: `DELETE FROM "playgrounds" WHERE cartodb_id = $1`, Args: []any{int64(1)}, Table: "playgrounds"}); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	inner.name = "after"

	fc, err := e.QueryFeatures(ctx, sel)
	if err != nil {
		t.Fatalf("QueryFeatures: %v", err)
	}
	if inner.reads != 2 || fc.Features[0].Properties["name"] != "after" {
		t.Fatalf("reads=%d name=%v, want fresh read after write", inner.reads, fc.Features[0].Properties["name"])
	}
}

func TestStoreFailuresFallThrough(t *testing.T) {
	inner := &countingExec{name: "a"}
	e := New(inner, brokenStore{}, time.Minute, nil)
	ctx := context.Background()

	if _, err := e.QueryFeatures(ctx, sel); err != nil {
		t.Fatalf("QueryFeatures: %v", err)
	}
	if _, err := e.Exec(ctx, sel); err != nil {
		t.Fatalf("Exec must succeed when only the cache fails: %v", err)
	}
	if inner.reads != 1 || inner.writes != 1 {
		t.Fatalf("reads=%d writes=%d", inner.reads, inner.writes)
	}
}

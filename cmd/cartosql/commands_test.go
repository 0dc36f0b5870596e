package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mohammed-shakir/cartodb-adapter/internal/core/model"
	"github.com/mohammed-shakir/cartodb-adapter/internal/core/router"
)

type recordedStore struct {
	op     string
	typ    string
	filter map[string]any
	rec    model.Record
	closed bool
}

func (s *recordedStore) FindAll(_ context.Context, typ string) (model.FeatureCollection, error) {
	s.op, s.typ = "all", typ
	return model.FeatureCollection{Type: "FeatureCollection", Features: []model.Record{}}, nil
}

func (s *recordedStore) FindQuery(_ context.Context, typ string, f map[string]any) (model.FeatureCollection, error) {
	s.op, s.typ, s.filter = "query", typ, f
	return model.FeatureCollection{Type: "FeatureCollection", Features: []model.Record{}}, nil
}

func (s *recordedStore) FindByID(_ context.Context, typ string, id int64) (model.Record, error) {
	s.op, s.typ = "get", typ
	return model.Record{ID: id, Properties: map[string]any{"name": "x"}}, nil
}

func (s *recordedStore) CreateRecord(_ context.Context, typ string, rec model.Record) (model.Record, error) {
	s.op, s.typ, s.rec = "create", typ, rec
	rec.ID = 3
	return rec, nil
}

func (s *recordedStore) UpdateRecord(_ context.Context, typ string, rec model.Record) (model.Record, error) {
	s.op, s.typ, s.rec = "update", typ, rec
	return rec, nil
}

func (s *recordedStore) DeleteRecord(_ context.Context, typ string, rec model.Record) (model.Record, error) {
	s.op, s.typ, s.rec = "delete", typ, rec
	return model.Record{ID: rec.ID}, nil
}

func execute(t *testing.T, args ...string) (*recordedStore, string, error) {
	t.Helper()
	store := &recordedStore{}
	open := func(context.Context, string, bool) (router.Store, func() error, error) {
		return store, func() error { store.closed = true; return nil }, nil
	}
	var out bytes.Buffer
	root := newRootCommand(&out, open)
	root.SetArgs(args)
	root.SetErr(&bytes.Buffer{})
	err := root.Execute()
	return store, out.String(), err
}

func TestGet(t *testing.T) {
	store, out, err := execute(t, "get", "playground", "7")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var rec model.Record
	if err := json.Unmarshal([]byte(out), &rec); err != nil || rec.ID != 7 {
		t.Fatalf("output %q: %v", out, err)
	}
	if store.op != "get" || !store.closed {
		t.Fatalf("store=%+v", store)
	}
}

func TestFind(t *testing.T) {
	store, _, err := execute(t, "find", "playground")
	if err != nil || store.op != "all" {
		t.Fatalf("find all: op=%q err=%v", store.op, err)
	}
	store, _, err = execute(t, "find", "playground", "name=Boston Common", "kind=park")
	if err != nil || store.op != "query" || store.filter["name"] != "Boston Common" || store.filter["kind"] != "park" {
		t.Fatalf("find query: %+v err=%v", store, err)
	}
	if _, _, err := execute(t, "find", "playground", "novalue"); err == nil {
		t.Fatalf("expected filter parse error")
	}
	for _, bad := range [][]string{{"{id}=1"}, {"name;drop=1"}, {"name=a", "name=b"}} {
		store, _, err := execute(t, append([]string{"find", "playground"}, bad...)...)
		if err == nil {
			t.Fatalf("find %v: expected error", bad)
		}
		if store.op != "" {
			t.Fatalf("find %v reached the store", bad)
		}
	}
}

func TestCreateWithPoint(t *testing.T) {
	store, out, err := execute(t, "create", "playground", "--props", `{"name":"y"}`, "--lon", "1", "--lat", "2")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if store.rec.Properties["name"] != "y" {
		t.Fatalf("props=%v", store.rec.Properties)
	}
	lon, lat, err := store.rec.Geometry.Point()
	if err != nil || lon != 1 || lat != 2 {
		t.Fatalf("point=%v,%v err=%v", lon, lat, err)
	}
	big, _, err := execute(t, "create", "playground", "--props", `{"osm_id":9007199254740993}`)
	if err != nil {
		t.Fatalf("execute big int: %v", err)
	}
	if got := big.rec.Properties["osm_id"]; got != json.Number("9007199254740993") {
		t.Fatalf("osm_id=%#v want exact json.Number", got)
	}
	if !strings.Contains(out, `"id": 3`) {
		t.Fatalf("output=%s", out)
	}
}

func TestCreate_FlagErrors(t *testing.T) {
	if _, _, err := execute(t, "create", "playground", "--lon", "1"); err == nil {
		t.Fatalf("expected error for lon without lat")
	}
	if _, _, err := execute(t, "create", "playground", "--props", "[1,2]"); err == nil {
		t.Fatalf("expected error for non-object props")
	}
}

func TestUpdateAndDelete(t *testing.T) {
	store, _, err := execute(t, "update", "playground", "5", "--props", `{"name":"u"}`)
	if err != nil || store.op != "update" || store.rec.ID != 5 || store.rec.Geometry != nil {
		t.Fatalf("update: %+v err=%v", store, err)
	}
	store, _, err = execute(t, "delete", "playground", "8")
	if err != nil || store.op != "delete" || store.rec.ID != 8 {
		t.Fatalf("delete: %+v err=%v", store, err)
	}
	if _, _, err := execute(t, "delete", "playground", "x"); err == nil {
		t.Fatalf("expected invalid id error")
	}
}

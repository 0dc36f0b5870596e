// Package model defines core domain types shared across the adapter.
package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Column names managed by CARTO itself.
const (
	ColumnID              = "cartodb_id"
	ColumnCreatedAt       = "created_at"
	ColumnUpdatedAt       = "updated_at"
	ColumnGeom            = "the_geom"
	ColumnGeomWebMercator = "the_geom_webmercator"
	// geometry re-expressed as GeoJSON text by RETURNING clauses
	ColumnGeometryJSON = "geometry"
)

// ReservedColumns are never serialized as user attributes.
var ReservedColumns = []string{ColumnID, ColumnCreatedAt, ColumnUpdatedAt}

func IsReserved(name string) bool {
	for _, r := range ReservedColumns {
		if r == name {
			return true
		}
	}
	return false
}

var ErrNotPoint = errors.New("geometry is not a two-element point")

type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

func NewPoint(lon, lat float64) *Geometry {
	coords, _ := json.Marshal([]float64{lon, lat})
	return &Geometry{Type: "Point", Coordinates: coords}
}

// Point returns [lon, lat] of a Point geometry
func (g *Geometry) Point() (lon, lat float64, err error) {
	if g == nil || g.Type != "Point" {
		return 0, 0, ErrNotPoint
	}
	var xy []float64
	if err := json.Unmarshal(g.Coordinates, &xy); err != nil {
		return 0, 0, fmt.Errorf("parse point coords: %w", err)
	}
	if len(xy) != 2 {
		return 0, 0, ErrNotPoint
	}
	return xy[0], xy[1], nil
}

// ParseGeometry decodes GeoJSON geometry text; empty or "null" yields nil.
func ParseGeometry(text string) (*Geometry, error) {
	if text == "" || text == "null" {
		return nil, nil
	}
	var g Geometry
	if err := json.Unmarshal([]byte(text), &g); err != nil {
		return nil, fmt.Errorf("parse geometry: %w", err)
	}
	return &g, nil
}

// Record is a GeoJSON feature with a numeric row id.
type Record struct {
	ID         int64
	Properties map[string]any
	Geometry   *Geometry
}

type recordJSON struct {
	Type       string         `json:"type"`
	ID         *int64         `json:"id,omitempty"`
	Geometry   *Geometry      `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{Type: "Feature", Geometry: r.Geometry, Properties: r.Properties}
	if r.ID != 0 {
		id := r.ID
		out.ID = &id
	}
	if out.Properties == nil {
		out.Properties = map[string]any{}
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts a feature whose id is missing, numeric or a numeric
// string. Numeric properties are kept as json.Number so integers beyond
// 2^53 survive a round trip into SQL.
func (r *Record) UnmarshalJSON(b []byte) error {
	var in struct {
		ID         json.RawMessage `json:"id"`
		Geometry   *Geometry       `json:"geometry"`
		Properties map[string]any  `json:"properties"`
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&in); err != nil {
		return err
	}
	*r = Record{Properties: in.Properties, Geometry: in.Geometry}
	if len(in.ID) > 0 && string(in.ID) != "null" {
		var v any
		if err := json.Unmarshal(in.ID, &v); err != nil {
			return fmt.Errorf("parse id: %w", err)
		}
		id, ok := ToID(v)
		if !ok {
			return fmt.Errorf("invalid feature id %s", string(in.ID))
		}
		r.ID = id
	}
	return nil
}

// AdoptPropertyID copies properties.cartodb_id onto the record id.
func (r *Record) AdoptPropertyID() {
	if v, ok := r.Properties[ColumnID]; ok {
		if id, ok := ToID(v); ok {
			r.ID = id
		}
	}
}

// ToID converts a decoded JSON or SQL value to a row id
func ToID(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case float64:
		if t != float64(int64(t)) {
			return 0, false
		}
		return int64(t), true
	case json.Number:
		n, err := t.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		return n, err == nil
	case []byte:
		n, err := strconv.ParseInt(string(t), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

type FeatureCollection struct {
	Type     string   `json:"type"`
	Features []Record `json:"features"`
}

// WriteResult is the metadata object returned for non-GeoJSON statements.
type WriteResult struct {
	TotalRows int              `json:"total_rows"`
	Rows      []map[string]any `json:"rows"`
	Time      float64          `json:"time,omitempty"`
}

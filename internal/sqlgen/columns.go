// Package sqlgen builds parameterized SQL statements for CARTO tables.
package sqlgen

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/mohammed-shakir/cartodb-adapter/internal/core/model"
)

// SRID of WGS 84, used for every written point.
const SRID = 4326

var (
	ErrUnsupportedValue    = errors.New("unsupported attribute value")
	ErrUnsupportedGeometry = errors.New("unsupported geometry")
	ErrNoColumns           = errors.New("no columns to write")
)

// PointValue renders as ST_SetSRID(ST_Point(lon, lat), srid).
type PointValue struct {
	Lon, Lat float64
	SRID     int
}

// Columns is an ordered pair of column names and their values.
type Columns struct {
	Names  []string
	Values []any
}

func (c Columns) Len() int { return len(c.Names) }

// SerializeAttributes turns a record into columns. Properties come first in
// name order, reserved columns are skipped, the_geom is appended last when
// the record has a geometry.
func SerializeAttributes(rec model.Record) (Columns, error) {
	names := make([]string, 0, len(rec.Properties))
	for k := range rec.Properties {
		if model.IsReserved(k) {
			continue
		}
		names = append(names, k)
	}
	sort.Strings(names)

	cols := Columns{
		Names:  make([]string, 0, len(names)+1),
		Values: make([]any, 0, len(names)+1),
	}
	for _, name := range names {
		v, err := scalar(rec.Properties[name])
		if err != nil {
			return Columns{}, fmt.Errorf("column %q: %w", name, err)
		}
		cols.Names = append(cols.Names, name)
		cols.Values = append(cols.Values, v)
	}

	if rec.Geometry != nil {
		lon, lat, err := rec.Geometry.Point()
		if err != nil {
			return Columns{}, fmt.Errorf("%w: %w", ErrUnsupportedGeometry, err)
		}
		cols.Names = append(cols.Names, model.ColumnGeom)
		cols.Values = append(cols.Values, PointValue{Lon: lon, Lat: lat, SRID: SRID})
	}
	return cols, nil
}

// nil becomes the empty string, numbers and bools pass through
func scalar(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string, bool, json.Number:
		return t, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return t, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedValue, reflect.TypeOf(v))
	}
}

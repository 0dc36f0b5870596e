package cartodb

import (
	"fmt"

	"github.com/mohammed-shakir/cartodb-adapter/internal/core/model"
)

// adoptIDs maps each feature's embedded cartodb_id onto its top-level id
func adoptIDs(fc model.FeatureCollection) model.FeatureCollection {
	if fc.Type == "" {
		fc.Type = "FeatureCollection"
	}
	for i := range fc.Features {
		fc.Features[i].AdoptPropertyID()
	}
	return fc
}

// NormalizeRow turns a row returned by a RETURNING clause into a record.
// Internal geometry columns are dropped and the GeoJSON geometry text is
// parsed back into a structured geometry.
func NormalizeRow(row map[string]any) (model.Record, error) {
	rec := model.Record{Properties: make(map[string]any, len(row))}
	for k, v := range row {
		switch k {
		case model.ColumnGeom, model.ColumnGeomWebMercator:
			continue
		case model.ColumnGeometryJSON:
			g, err := geometryFrom(v)
			if err != nil {
				return model.Record{}, err
			}
			rec.Geometry = g
			continue
		}
		rec.Properties[k] = v
	}
	if v, ok := row[model.ColumnID]; ok {
		id, ok := model.ToID(v)
		if !ok {
			return model.Record{}, fmt.Errorf("invalid %s %v", model.ColumnID, v)
		}
		rec.ID = id
	}
	return rec, nil
}

func geometryFrom(v any) (*model.Geometry, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return model.ParseGeometry(t)
	case []byte:
		return model.ParseGeometry(string(t))
	default:
		return nil, fmt.Errorf("geometry column has type %T, want GeoJSON text", v)
	}
}

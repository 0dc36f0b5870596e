package sqlgen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"

	"github.com/mohammed-shakir/cartodb-adapter/internal/core/model"
)

// returningRow re-expresses the geometry as GeoJSON text next to the row
const returningRow = "RETURNING *, ST_AsGeoJSON(" + model.ColumnGeom + ") AS " + model.ColumnGeometryJSON

func SelectAll() Template {
	return Template{SQL: "SELECT * FROM " + TableToken}
}

func SelectByID() Template {
	return Template{SQL: "SELECT * FROM " + TableToken + " WHERE " + model.ColumnID + " = " + IDToken}
}

// SelectLatest selects the most recently created row.
func SelectLatest() Template {
	return Template{SQL: "SELECT * FROM " + TableToken + " ORDER BY " + model.ColumnCreatedAt + " DESC LIMIT 1"}
}

// SelectWhere chains equality conditions with AND, keys in name order.
func SelectWhere(filter map[string]any) (Template, error) {
	if len(filter) == 0 {
		return SelectAll(), nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var args []any
	conds := make([]string, 0, len(keys))
	for _, k := range keys {
		v, err := scalar(filter[k])
		if err != nil {
			return Template{}, fmt.Errorf("filter %q: %w", k, err)
		}
		conds = append(conds, pq.QuoteIdentifier(k)+" = "+bind(&args, v))
	}
	return Template{
		SQL:  "SELECT * FROM " + TableToken + " WHERE " + strings.Join(conds, " AND "),
		Args: args,
	}, nil
}

func Insert(cols Columns, returning bool) Template {
	var b strings.Builder
	var args []any
	b.WriteString("INSERT INTO " + TableToken)
	if cols.Len() == 0 {
		b.WriteString(" DEFAULT VALUES")
	} else {
		names := make([]string, cols.Len())
		vals := make([]string, cols.Len())
		for i := range cols.Names {
			names[i] = pq.QuoteIdentifier(cols.Names[i])
			vals[i] = bind(&args, cols.Values[i])
		}
		fmt.Fprintf(&b, " (%s) VALUES (%s)", strings.Join(names, ", "), strings.Join(vals, ", "))
	}
	if returning {
		b.WriteString(" " + returningRow)
	}
	return Template{SQL: b.String(), Args: args, Returning: returning}
}

func Update(cols Columns, returning bool) (Template, error) {
	if cols.Len() == 0 {
		return Template{}, ErrNoColumns
	}
	var args []any
	sets := make([]string, cols.Len())
	for i := range cols.Names {
		sets[i] = pq.QuoteIdentifier(cols.Names[i]) + " = " + bind(&args, cols.Values[i])
	}
	sql := "UPDATE " + TableToken + " SET " + strings.Join(sets, ", ") +
		" WHERE " + model.ColumnID + " = " + IDToken
	if returning {
		sql += " " + returningRow
	}
	return Template{SQL: sql, Args: args, Returning: returning}, nil
}

func Delete() Template {
	return Template{SQL: "DELETE FROM " + TableToken + " WHERE " + model.ColumnID + " = " + IDToken}
}

func bind(args *[]any, v any) string {
	if p, ok := v.(PointValue); ok {
		*args = append(*args, p.Lon, p.Lat)
		n := len(*args)
		return fmt.Sprintf("ST_SetSRID(ST_Point($%d, $%d), %d)", n-1, n, p.SRID)
	}
	*args = append(*args, v)
	return fmt.Sprintf("$%d", len(*args))
}

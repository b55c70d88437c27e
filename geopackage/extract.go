package geopackage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-spatial/geom/encoding/gpkg"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/pdok/gpkgload/geomhelp"
	"github.com/pdok/gpkgload/processing"
)

// tableSource reads the rows of one feature table
type tableSource struct {
	db    *sql.DB
	table TableInfo
}

func (source tableSource) ReadFeatures(ctx context.Context, features chan<- processing.Feature) error {
	t := source.table
	rows, err := source.db.QueryContext(ctx, t.selectSQL())
	if err != nil {
		return fmt.Errorf("error querying table %q: %w", t.Name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("error reading the columns of %q: %w", t.Name, err)
	}
	if err = t.checkColumns(cols); err != nil {
		return &SchemaError{Table: t.Name, Err: err}
	}

	pk := t.primaryKey()
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		valPtrs := make([]interface{}, len(cols))
		for i := 0; i < len(cols); i++ {
			valPtrs[i] = &vals[i]
		}

		if err = rows.Scan(valPtrs...); err != nil {
			return fmt.Errorf("error reading row values of %q: %w", t.Name, err)
		}
		row, err := t.newRow(pk, vals)
		if err != nil {
			return err
		}
		if err = processing.Send(ctx, features, row); err != nil {
			return err
		}
	}
	return rows.Err()
}

// newRow turns the scanned values into a Row: the primary key becomes the ID,
// the geometry column is decoded and all other columns become properties.
func (t TableInfo) newRow(pk string, vals []interface{}) (*Row, error) {
	var id interface{}
	for i, c := range t.columns {
		if c.name == pk {
			id = vals[i]
		}
	}

	var geometry orb.Geometry
	properties := make(geojson.Properties, len(t.columns))
	for i, c := range t.columns {
		switch c.name {
		case t.GeometryColumn:
			g, err := decodeGeometry(vals[i])
			if err != nil {
				return nil, &DecodeError{Table: t.Name, FID: id, Err: err}
			}
			geometry = g
		case pk:
			continue
		default:
			properties[c.name] = coerceValue(vals[i], t.fieldType(c), c.ctype)
		}
	}
	return NewRow(id, geometry, properties), nil
}

// decodeGeometry decodes a GeoPackage binary geometry: header, envelope and
// ISO WKB. Geometries flagged empty in the header are nil.
func decodeGeometry(val interface{}) (orb.Geometry, error) {
	switch v := val.(type) {
	case nil:
		return nil, nil
	case []byte:
		if len(v) < 8 || v[0] != 'G' || v[1] != 'P' {
			return nil, errors.New("not a GeoPackage binary geometry")
		}
		h, err := gpkg.DecodeBinaryHeader(v)
		if err != nil {
			return nil, err
		}
		if h.IsGeometryEmpty() {
			return nil, nil
		}
		g, err := wkb.Unmarshal(v[h.Size():])
		if err != nil {
			return nil, err
		}
		return geomhelp.ToOrb(g)
	default:
		return nil, fmt.Errorf("geometry should be a blob, not %T", v)
	}
}

// coerceValue converts a value as returned by the SQL driver to the Go type of the semantic field type.
// Values SQLite stored with another type than declared are passed on as is.
//
//nolint:cyclop
func coerceValue(val interface{}, fieldType FieldType, ctype string) interface{} {
	switch v := val.(type) {
	case nil:
		return nil
	case []byte:
		if fieldType == FieldTypeBlob {
			asBytes := make([]byte, len(v))
			copy(asBytes, v)
			return asBytes
		}
		return string(v)
	case int64:
		switch fieldType {
		case FieldTypeBoolean:
			return v != 0
		case FieldTypeReal:
			return float64(v)
		}
		return v
	case bool:
		if fieldType == FieldTypeInteger {
			if v {
				return int64(1)
			}
			return int64(0)
		}
		return v
	case time.Time:
		if strings.EqualFold(strings.TrimSpace(ctype), "DATE") {
			return v.Format(time.DateOnly)
		}
		return v.UTC().Format(time.RFC3339Nano)
	default:
		// float64 and string
		return v
	}
}

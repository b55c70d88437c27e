// Package gpkgtest writes small GeoPackages to test the loader against.
package gpkgtest

import (
	"fmt"
	"strings"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/gpkg"
)

// GeoPackage application_id, "GPKG"
const applicationID = 0x47504B47

type Column struct {
	Name    string
	Type    string
	NotNull bool
	PK      bool
}

// Table describes a feature table. Columns include the geometry column.
type Table struct {
	Name           string
	Columns        []Column
	GeometryColumn string
	GeometryType   string
	SRS            gpkg.SpatialReferenceSystem
}

// Feature holds the values of the non-geometry columns in column order and the geometry.
// RawGeometry, when set, is written to the geometry column as is.
type Feature struct {
	Values      []interface{}
	Geometry    geom.Geometry
	RawGeometry []byte
}

// Target is a GeoPackage being written.
type Target struct {
	handle *gpkg.Handle
}

// Create creates (or opens) the GeoPackage at path.
func Create(path string) (*Target, error) {
	handle, err := gpkg.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening GeoPackage: %w", err)
	}
	if _, err = handle.Exec(fmt.Sprintf(`PRAGMA application_id = %d;`, applicationID)); err != nil {
		handle.Close()
		return nil, err
	}
	return &Target{handle: handle}, nil
}

func (target *Target) Close() error {
	return target.handle.Close()
}

// CreateTable creates the table and registers it with its SRS in the metadata tables.
func (target *Target) CreateTable(t Table) error {
	if err := target.handle.UpdateSRS(t.SRS); err != nil {
		return err
	}
	if _, err := target.handle.Exec(t.createSQL()); err != nil {
		return fmt.Errorf("error building table %s: %w", t.Name, err)
	}
	return target.handle.AddGeometryTable(gpkg.TableDescription{
		Name:          t.Name,
		ShortName:     t.Name,
		Description:   t.Name,
		GeometryField: t.GeometryColumn,
		GeometryType:  geometryTypeFromString(t.GeometryType),
		SRS:           int32(t.SRS.ID),
		//
		Z: gpkg.Prohibited,
		M: gpkg.Prohibited,
	})
}

// WriteFeatures inserts the features in one transaction and updates the table extent.
func (target *Target) WriteFeatures(t Table, features []Feature) error {
	tx, err := target.handle.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(t.insertSQL())
	if err != nil {
		_ = tx.Rollback()
		return err
	}

	var ext *geom.Extent
	for _, f := range features {
		data := append([]interface{}{}, f.Values...)
		switch {
		case f.RawGeometry != nil:
			data = append(data, f.RawGeometry)
		case f.Geometry == nil:
			data = append(data, nil)
		default:
			sb, err := gpkg.NewBinary(int32(t.SRS.ID), f.Geometry)
			if err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("could not create a binary geometry: %w", err)
			}
			data = append(data, sb)

			if ext == nil {
				ext, err = geom.NewExtentFromGeometry(f.Geometry)
				if err != nil {
					ext = nil
				}
			} else {
				ext.AddGeometry(f.Geometry)
			}
		}
		if _, err = stmt.Exec(data...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("could not insert into %s: %w", t.Name, err)
		}
	}
	stmt.Close()
	if err = tx.Commit(); err != nil {
		return err
	}
	if ext == nil {
		return nil
	}
	return target.handle.UpdateGeometryExtent(t.Name, ext)
}

// Write creates a GeoPackage at path holding the given table and features.
func Write(path string, t Table, features []Feature) error {
	target, err := Create(path)
	if err != nil {
		return err
	}
	defer target.Close()
	if err = target.CreateTable(t); err != nil {
		return err
	}
	return target.WriteFeatures(t, features)
}

// createSQL creates a CREATE statement on the given table and column information
func (t Table) createSQL() string {
	var columnparts []string
	for _, column := range t.Columns {
		columnpart := `"` + column.Name + `" ` + column.Type
		if column.NotNull {
			columnpart += ` NOT NULL`
		}
		if column.PK {
			columnpart += ` PRIMARY KEY`
		}
		columnparts = append(columnparts, columnpart)
	}
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%v"`, t.Name) + `(` + strings.Join(columnparts, `, `) + `);`
}

// insertSQL builds the INSERT statement, the geometry column goes last
func (t Table) insertSQL() string {
	var csql, vsql []string
	for _, c := range t.Columns {
		if c.Name != t.GeometryColumn {
			csql = append(csql, `"`+c.Name+`"`)
			vsql = append(vsql, `?`)
		}
	}
	csql = append(csql, `"`+t.GeometryColumn+`"`)
	vsql = append(vsql, `?`)
	return `INSERT INTO "` + t.Name + `"(` + strings.Join(csql, `,`) + `) VALUES(` + strings.Join(vsql, `,`) + `)`
}

// geometryTypeFromString returns the numeric value of a geometry type name
func geometryTypeFromString(geometrytype string) gpkg.GeometryType {
	switch strings.ToUpper(geometrytype) {
	case "POINT":
		return gpkg.Point
	case "LINESTRING":
		return gpkg.Linestring
	case "POLYGON":
		return gpkg.Polygon
	case "MULTIPOINT":
		return gpkg.MultiPoint
	case "MULTILINESTRING":
		return gpkg.MultiLinestring
	case "MULTIPOLYGON":
		return gpkg.MultiPolygon
	case "GEOMETRYCOLLECTION":
		return gpkg.GeometryCollection
	default:
		return gpkg.Geometry
	}
}

// Package geopackage loads the feature tables of an OGC GeoPackage as a table
// collection or as GeoJSON features, optionally reprojected.
//
// A load opens the container read-only, lists the feature tables declared in
// gpkg_contents and gpkg_geometry_columns, reads every row in native order,
// decodes the geometry and shapes the rows. Both output shapes are built from
// the same rows. Any error aborts the whole load; there are no partial results.
package geopackage

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"github.com/pdok/gpkgload/crs"
	"github.com/pdok/gpkgload/geomhelp"
	"github.com/pdok/gpkgload/processing"
)

const wktErrorLength = 120

// Load reads the GeoPackage at source, a file path or an http(s) URL, in the shape cfg.GIS.Format selects.
func Load(ctx context.Context, source string, cfg Config) (*Result, error) {
	c, err := openSource(ctx, source, cfg)
	if err != nil {
		return nil, err
	}
	return withContainer(ctx, c, cfg, cfg.GIS.Format)
}

// LoadBytes is Load for a GeoPackage held in memory.
func LoadBytes(ctx context.Context, data []byte, cfg Config) (*Result, error) {
	c, err := OpenBytes(ctx, data, cfg)
	if err != nil {
		return nil, err
	}
	return withContainer(ctx, c, cfg, cfg.GIS.Format)
}

// LoadTables reads the GeoPackage at source as a table collection, whatever cfg.GIS.Format says.
func LoadTables(ctx context.Context, source string, cfg Config) (*Tables, error) {
	c, err := openSource(ctx, source, cfg)
	if err != nil {
		return nil, err
	}
	result, err := withContainer(ctx, c, cfg, FormatTable)
	if err != nil {
		return nil, err
	}
	return result.Tables, nil
}

// LoadFeatures reads the GeoPackage at source as a mapping of table name to features, whatever cfg.GIS.Format says.
func LoadFeatures(ctx context.Context, source string, cfg Config) (*FeatureMapping, error) {
	c, err := openSource(ctx, source, cfg)
	if err != nil {
		return nil, err
	}
	result, err := withContainer(ctx, c, cfg, FormatGeoJSON)
	if err != nil {
		return nil, err
	}
	return result.Features, nil
}

func openSource(ctx context.Context, source string, cfg Config) (*Container, error) {
	if isURL(source) {
		return OpenURL(ctx, source, cfg)
	}
	return OpenFile(ctx, source, cfg)
}

// withContainer extracts and shapes, closing the container on every path
func withContainer(ctx context.Context, c *Container, cfg Config, format Format) (result *Result, err error) {
	defer func() {
		if closeErr := c.Close(); closeErr != nil && err == nil {
			err = closeErr
			result = nil
		}
	}()
	tables, err := c.extract(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return shape(format, tables), nil
}

func (c *Container) extract(ctx context.Context, cfg Config) ([]extractedTable, error) {
	infos, err := c.Tables(ctx)
	if err != nil {
		return nil, err
	}

	var target crs.Identifier
	registry := cfg.registry()
	if cfg.GIS.Reproject {
		if target, err = cfg.GIS.target(); err != nil {
			return nil, err
		}
	}

	tables := make([]extractedTable, 0, len(infos))
	for _, info := range infos {
		var f processing.ProcessGeometryFunc
		if cfg.GIS.Reproject {
			if f, err = reprojectFunc(info, target, registry); err != nil {
				return nil, err
			}
		}
		rows, err := c.ReadRows(ctx, info, f)
		if err != nil {
			return nil, err
		}
		tables = append(tables, extractedTable{info: info, rows: rows})
	}
	return tables, nil
}

// reprojectFunc returns the geometry processing transforming a table's geometries to target
func reprojectFunc(table TableInfo, target crs.Identifier, registry *crs.Registry) (processing.ProcessGeometryFunc, error) {
	sourceName := fmt.Sprintf("srs_id %d", table.SRS.ID)
	reprojectionError := func(err error) error {
		return &ReprojectionError{Table: table.Name, Source: sourceName, Target: target.String(), Err: err}
	}

	source, err := crs.FromSRS(table.SRS)
	if err != nil {
		return nil, reprojectionError(err)
	}
	sourceName = source.String()
	projection, err := registry.Projection(source, target)
	if err != nil {
		return nil, reprojectionError(err)
	}

	return func(g orb.Geometry) (orb.Geometry, error) {
		if g == nil {
			return nil, nil
		}
		if projection != nil {
			g = project.Geometry(g, projection)
		}
		if target == crs.WGS84 && !geomhelp.WithinBounds(g, geomhelp.WGS84Bounds) {
			return nil, reprojectionError(fmt.Errorf("%w: %s", ErrOutOfDomain, geomhelp.WktMustEncode(g, wktErrorLength)))
		}
		return g, nil
	}, nil
}
